package masking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "", MaskSecret("  "))
	assert.Equal(t, "****", MaskSecret("1234"))
	assert.Equal(t, "****24", MaskSecret("counter2024"))
}

func TestIsSensitive(t *testing.T) {
	for _, key := range []string{"pin", "PIN", "new_pin", "pin_hash", "api_key", "token"} {
		assert.True(t, IsSensitive(key), key)
	}
	for _, key := range []string{"sku", "username", "keyboard", "spinner", "role"} {
		assert.False(t, IsSensitive(key), key)
	}
}

func TestMaskMetadata(t *testing.T) {
	assert.Nil(t, MaskMetadata(nil))
	assert.Nil(t, MaskMetadata(map[string]any{" ": "x"}))

	got := MaskMetadata(map[string]any{
		"username": "bob",
		"pin":      "bob-pin-99",
		"attempts": 3,
		"nested": map[string]any{
			"secret": 42,
			"role":   "seller",
		},
		"list": []any{map[string]any{"token": "abcdef"}, "plain"},
	})

	assert.Equal(t, "bob", got["username"])
	assert.Equal(t, "****99", got["pin"])
	assert.Equal(t, 3, got["attempts"])
	assert.Equal(t, map[string]any{"secret": "****", "role": "seller"}, got["nested"])
	assert.Equal(t, []any{map[string]any{"token": "****ef"}, "plain"}, got["list"])
}
