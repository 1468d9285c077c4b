package domain

import (
	"fmt"
	"math"
	"time"

	"github.com/smallbiznis/stockbook/internal/apperror"
)

var (
	ErrInvalidCredentials = apperror.New(apperror.KindAuthorization, "Invalid username or PIN")
	ErrAccountLocked      = apperror.New(apperror.KindAuthorization, "account locked")
	ErrUserNotFound       = apperror.NotFound("user not found")
	ErrUsernameTaken      = apperror.Validation("username already exists")
	ErrInvalidUsername    = apperror.Validation("username must be 3-32 characters of letters, digits, '_', '.' or '-'")
	ErrRoleNotAllowed     = apperror.Validation("new users may only be seller or viewer")
	ErrPinMismatch        = apperror.Validation("new PIN and confirmation do not match")
	ErrPinUnchanged       = apperror.Validation("new PIN must differ from the current PIN")
	ErrMissingActor       = apperror.New(apperror.KindAuthorization, "an authenticated user is required")
)

// LockedError is returned while an account is locked out.
type LockedError struct {
	Remaining time.Duration
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("Too many failed attempts. Try again in %d seconds.", e.Seconds())
}

// Seconds is the remaining lockout rounded up to whole seconds.
func (e *LockedError) Seconds() int64 {
	s := int64(math.Ceil(e.Remaining.Seconds()))
	if s < 1 {
		s = 1
	}
	return s
}

func (e *LockedError) Is(target error) bool {
	return target == ErrAccountLocked || target == apperror.ErrAuthorization
}

func (e *LockedError) Kind() apperror.Kind { return apperror.KindAuthorization }
