package apperror

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesKind(t *testing.T) {
	errEmpty := Validation("cart is empty")
	wrapped := fmt.Errorf("create sale: %w", errEmpty)

	assert.True(t, errors.Is(wrapped, ErrValidation))
	assert.True(t, errors.Is(wrapped, errEmpty))
	assert.False(t, errors.Is(wrapped, ErrNotFound))
	assert.Equal(t, KindValidation, KindOf(wrapped))
}

func TestKindOfUnclassified(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("disk full")))
	assert.Equal(t, Kind(""), KindOf(nil))
}

func TestErrorMessage(t *testing.T) {
	err := Wrap(KindFxUnavailable, "fx rate unavailable", errors.New("timeout"))
	assert.Equal(t, "fx rate unavailable: timeout", err.Error())
	assert.Equal(t, "not_found", ErrNotFound.Error())
}
