package password

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"unicode"

	"github.com/smallbiznis/stockbook/internal/apperror"
)

var (
	ErrPinTooShort = apperror.Validation("pin is too short")
	ErrPinTooWeak  = apperror.Validation("pin must contain at least one letter and one digit")
)

// ValidatePin enforces the PIN strength policy.
func ValidatePin(pin string, minLength int) error {
	if len([]rune(pin)) < minLength {
		return fmt.Errorf("%w: minimum %d characters", ErrPinTooShort, minLength)
	}
	var hasLetter, hasDigit bool
	for _, r := range pin {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasLetter || !hasDigit {
		return ErrPinTooWeak
	}
	return nil
}

const secretAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz23456789"

// GenerateSecret returns a random secret of n characters that satisfies
// ValidatePin for any minimum length up to n.
func GenerateSecret(n int) (string, error) {
	if n < 2 {
		n = 2
	}
	max := big.NewInt(int64(len(secretAlphabet)))
	for {
		out := make([]byte, n)
		for i := range out {
			idx, err := rand.Int(rand.Reader, max)
			if err != nil {
				return "", err
			}
			out[i] = secretAlphabet[idx.Int64()]
		}
		secret := string(out)
		if ValidatePin(secret, n) == nil {
			return secret, nil
		}
	}
}
