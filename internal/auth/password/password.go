// Package password hashes and verifies user PINs.
//
// Stored forms:
//
//	pbkdf2_sha256$<iterations>$<salt>$<digest>
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<digest>
//
// Salts and digests are unpadded standard base64. Anything else is treated as
// a legacy plaintext PIN written before hashing was introduced.
package password

import (
	"crypto/subtle"
	"strings"

	"github.com/smallbiznis/stockbook/internal/config"
)

const (
	MinIterations     = 150_000
	MaxIterations     = 250_000
	DefaultIterations = 200_000

	saltLen = 16
	keyLen  = 32
)

// Vault hashes new secrets with one configured algorithm and verifies any
// supported stored form.
type Vault struct {
	algorithm  string
	iterations int
}

func NewVault(algorithm string, iterations int) *Vault {
	switch algorithm {
	case config.HashAlgorithmArgon2id:
	default:
		algorithm = config.HashAlgorithmPBKDF2
	}
	if iterations <= 0 {
		iterations = DefaultIterations
	}
	if iterations < MinIterations {
		iterations = MinIterations
	}
	if iterations > MaxIterations {
		iterations = MaxIterations
	}
	return &Vault{algorithm: algorithm, iterations: iterations}
}

// FromHolder builds a vault from the current security policy.
func FromHolder(holder *config.SecurityConfigHolder) *Vault {
	sc := holder.Get()
	return NewVault(sc.HashAlgorithm, sc.HashIterations)
}

func (v *Vault) Hash(secret string) (string, error) {
	if v.algorithm == config.HashAlgorithmArgon2id {
		return hashArgon2id(secret)
	}
	return hashPBKDF2(secret, v.iterations)
}

// Verify reports whether candidate matches stored, and whether stored should
// be replaced by a fresh Hash because it is plaintext or weaker than the
// current policy.
func (v *Vault) Verify(stored, candidate string) (ok bool, needsRehash bool) {
	switch {
	case strings.HasPrefix(stored, pbkdf2Prefix):
		iterations, ok := verifyPBKDF2(stored, candidate)
		if !ok {
			return false, false
		}
		return true, v.algorithm != config.HashAlgorithmPBKDF2 || iterations < v.iterations
	case strings.HasPrefix(stored, argon2Prefix):
		if !verifyArgon2id(candidate, stored) {
			return false, false
		}
		return true, v.algorithm != config.HashAlgorithmArgon2id
	default:
		if stored == "" {
			return false, false
		}
		return subtle.ConstantTimeCompare([]byte(stored), []byte(candidate)) == 1, true
	}
}

// IsHashed reports whether stored is one of the hashed forms.
func IsHashed(stored string) bool {
	return strings.HasPrefix(stored, pbkdf2Prefix) || strings.HasPrefix(stored, argon2Prefix)
}
