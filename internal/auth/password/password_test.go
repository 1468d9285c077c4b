package password

import (
	"errors"
	"strings"
	"testing"

	"github.com/smallbiznis/stockbook/internal/apperror"
	"github.com/smallbiznis/stockbook/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndVerifyPBKDF2(t *testing.T) {
	v := NewVault(config.HashAlgorithmPBKDF2, MinIterations)

	stored, err := v.Hash("s3cretPin")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stored, "pbkdf2_sha256$150000$"))
	assert.Len(t, strings.Split(stored, "$"), 4)

	ok, rehash := v.Verify(stored, "s3cretPin")
	assert.True(t, ok)
	assert.False(t, rehash)

	ok, _ = v.Verify(stored, "s3cretPim")
	assert.False(t, ok)
}

func TestHashUsesFreshSalt(t *testing.T) {
	v := NewVault(config.HashAlgorithmPBKDF2, MinIterations)
	a, err := v.Hash("same1pin")
	require.NoError(t, err)
	b, err := v.Hash("same1pin")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestVerifyLegacyPlaintextNeedsRehash(t *testing.T) {
	v := NewVault(config.HashAlgorithmPBKDF2, MinIterations)

	ok, rehash := v.Verify("1234", "1234")
	assert.True(t, ok)
	assert.True(t, rehash)

	ok, rehash = v.Verify("1234", "12345")
	assert.False(t, ok)
	assert.False(t, rehash)

	ok, _ = v.Verify("", "")
	assert.False(t, ok)
	assert.False(t, IsHashed("1234"))
}

func TestVerifyArgon2idAndUpgrade(t *testing.T) {
	argonVault := NewVault(config.HashAlgorithmArgon2id, 0)
	stored, err := argonVault.Hash("argonPin9")
	require.NoError(t, err)
	assert.True(t, IsHashed(stored))

	ok, rehash := argonVault.Verify(stored, "argonPin9")
	assert.True(t, ok)
	assert.False(t, rehash)

	pbkdfVault := NewVault(config.HashAlgorithmPBKDF2, MinIterations)
	ok, rehash = pbkdfVault.Verify(stored, "argonPin9")
	assert.True(t, ok)
	assert.True(t, rehash)
}

func TestLowerIterationsNeedRehash(t *testing.T) {
	weak := NewVault(config.HashAlgorithmPBKDF2, MinIterations)
	stored, err := weak.Hash("pin12345")
	require.NoError(t, err)

	strong := NewVault(config.HashAlgorithmPBKDF2, MaxIterations)
	ok, rehash := strong.Verify(stored, "pin12345")
	assert.True(t, ok)
	assert.True(t, rehash)
}

func TestIterationsAreClamped(t *testing.T) {
	assert.Equal(t, MinIterations, NewVault("", 10).iterations)
	assert.Equal(t, MaxIterations, NewVault("", 10_000_000).iterations)
	assert.Equal(t, DefaultIterations, NewVault("", 0).iterations)
	assert.Equal(t, config.HashAlgorithmPBKDF2, NewVault("md5", 0).algorithm)
}

func TestMalformedStoredFormsFail(t *testing.T) {
	v := NewVault(config.HashAlgorithmPBKDF2, MinIterations)
	for _, stored := range []string{
		"pbkdf2_sha256$abc$salt$digest",
		"pbkdf2_sha256$1000$!!$digest",
		"pbkdf2_sha256$1000",
		"$argon2id$v=18$m=1,t=1,p=1$a$b",
	} {
		ok, _ := v.Verify(stored, "anything")
		assert.False(t, ok, stored)
	}
}

func TestValidatePin(t *testing.T) {
	assert.NoError(t, ValidatePin("abc12345", 8))
	assert.True(t, errors.Is(ValidatePin("ab1", 8), ErrPinTooShort))
	assert.True(t, errors.Is(ValidatePin("abcdefgh", 8), ErrPinTooWeak))
	assert.True(t, errors.Is(ValidatePin("12345678", 8), apperror.ErrValidation))
}

func TestGenerateSecret(t *testing.T) {
	secret, err := GenerateSecret(16)
	require.NoError(t, err)
	assert.Len(t, secret, 16)
	assert.NoError(t, ValidatePin(secret, 16))
}
