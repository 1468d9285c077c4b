package backup

import (
	"bytes"
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/chacha20poly1305"
)

const sealedMagic = "SBENC1\n"

var ErrInvalidBackup = errors.New("backup file is corrupt or was sealed with another key")

func loadOrCreateKey(path string) ([]byte, error) {
	key, err := loadKey(path)
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	key = make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, key, 0o600); err != nil {
		return nil, fmt.Errorf("write backup key: %w", err)
	}
	return key, nil
}

func loadKey(path string) ([]byte, error) {
	key, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("backup key %s has %d bytes, want %d", path, len(key), chacha20poly1305.KeySize)
	}
	return key, nil
}

func seal(key, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(sealedMagic)+len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, sealedMagic...)
	out = append(out, nonce...)
	return aead.Seal(out, nonce, plaintext, []byte(sealedMagic)), nil
}

func open(key, sealed []byte) ([]byte, error) {
	if !bytes.HasPrefix(sealed, []byte(sealedMagic)) {
		return nil, ErrInvalidBackup
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	body := sealed[len(sealedMagic):]
	if len(body) < aead.NonceSize()+aead.Overhead() {
		return nil, ErrInvalidBackup
	}
	nonce, ciphertext := body[:aead.NonceSize()], body[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, []byte(sealedMagic))
	if err != nil {
		return nil, ErrInvalidBackup
	}
	return plaintext, nil
}
