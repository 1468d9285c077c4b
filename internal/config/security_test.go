package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecurityConfigDefaultsWithoutFile(t *testing.T) {
	holder, err := NewSecurityConfigHolder(Config{SecurityConfigDir: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, DefaultSecurityConfig(), holder.Get())
}

func TestSecurityConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	body := "security:\n  maxFailedAttempts: 3\n  lockoutSeconds: 120\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "security.yml"), []byte(body), 0o600))

	holder, err := NewSecurityConfigHolder(Config{SecurityConfigDir: dir})
	require.NoError(t, err)

	got := holder.Get()
	assert.Equal(t, 3, got.MaxFailedAttempts)
	assert.Equal(t, 120, got.LockoutSeconds)
	assert.Equal(t, 8, got.MinPinLength)
	assert.Equal(t, HashAlgorithmPBKDF2, got.HashAlgorithm)
}

func TestSecurityConfigRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	body := "security:\n  hashAlgorithm: md5\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "security.yml"), []byte(body), 0o600))

	_, err := NewSecurityConfigHolder(Config{SecurityConfigDir: dir})
	assert.Error(t, err)
}
