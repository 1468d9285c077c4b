package password

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const pbkdf2Prefix = "pbkdf2_sha256$"

func hashPBKDF2(secret string, iterations int) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	digest := pbkdf2.Key([]byte(secret), salt, iterations, keyLen, sha256.New)
	return fmt.Sprintf("pbkdf2_sha256$%d$%s$%s",
		iterations,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(digest),
	), nil
}

func verifyPBKDF2(stored, candidate string) (int, bool) {
	parts := strings.Split(stored, "$")
	if len(parts) != 4 {
		return 0, false
	}
	iterations, err := strconv.Atoi(parts[1])
	if err != nil || iterations <= 0 {
		return 0, false
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[2])
	if err != nil {
		return 0, false
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[3])
	if err != nil || len(want) == 0 {
		return 0, false
	}

	got := pbkdf2.Key([]byte(candidate), salt, iterations, len(want), sha256.New)
	return iterations, subtle.ConstantTimeCompare(got, want) == 1
}
