// Package seed bootstraps the data every store needs before first use.
package seed

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/smallbiznis/stockbook/internal/auth/password"
	"github.com/smallbiznis/stockbook/internal/clock"
	"github.com/smallbiznis/stockbook/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultAdminUsername = "admin"
	bootstrapSecretLen   = 16
)

type Outcome string

const (
	OutcomeUnchanged   Outcome = "unchanged"
	OutcomeCreated     Outcome = "created"
	OutcomeReactivated Outcome = "reactivated"
)

type Params struct {
	Vault      *password.Vault
	SecretPath string
	Clock      clock.Clock
	Log        *zap.Logger
}

// EnsureAdmin guarantees at least one active admin account. When none exists
// it reactivates the first admin row (or the "admin" username) or creates
// one, assigns a random secret that must be changed at first login, and
// writes that secret to SecretPath with owner-only permissions.
func EnsureAdmin(ctx context.Context, conn *gorm.DB, p Params) (Outcome, error) {
	if conn == nil {
		return "", errors.New("seed database handle is required")
	}
	if p.Vault == nil {
		return "", errors.New("seed vault is required")
	}
	if p.SecretPath == "" {
		return "", errors.New("bootstrap secret path is required")
	}
	if p.Clock == nil {
		p.Clock = clock.SystemClock{}
	}
	if p.Log == nil {
		p.Log = zap.NewNop()
	}

	outcome := OutcomeUnchanged
	err := conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var active int64
		if err := tx.Raw(`SELECT COUNT(*) FROM users WHERE role = 'admin' AND active = 1`).Scan(&active).Error; err != nil {
			return err
		}
		if active > 0 {
			return nil
		}

		existing, err := findAdminCandidate(tx)
		if err != nil {
			return err
		}

		secret, err := password.GenerateSecret(bootstrapSecretLen)
		if err != nil {
			return err
		}
		hashed, err := p.Vault.Hash(secret)
		if err != nil {
			return err
		}

		username := defaultAdminUsername
		if existing.Valid {
			var name string
			if err := tx.Raw(`SELECT username FROM users WHERE id = ?`, existing.Int64).Scan(&name).Error; err != nil {
				return err
			}
			username = name
			if err := tx.Exec(`
				UPDATE users
				SET pin = ?, role = 'admin', active = 1, must_change_pin = 1, failed_attempts = 0, locked_until = NULL
				WHERE id = ?`, hashed, existing.Int64).Error; err != nil {
				return err
			}
			outcome = OutcomeReactivated
		} else {
			if err := tx.Exec(`
				INSERT INTO users (username, pin, role, active, created_at, failed_attempts, locked_until, must_change_pin)
				VALUES (?, ?, 'admin', 1, ?, 0, NULL, 1)`,
				username, hashed, db.FormatTime(p.Clock.Now()),
			).Error; err != nil {
				return err
			}
			outcome = OutcomeCreated
		}

		// Written before commit so a failed write leaves no unknown secret behind.
		return writeSecretFile(p.SecretPath, username, secret)
	})
	if err != nil {
		return "", fmt.Errorf("ensure admin: %w", err)
	}

	if outcome != OutcomeUnchanged {
		p.Log.Warn("bootstrap admin credentials issued",
			zap.String("outcome", string(outcome)),
			zap.String("secret_path", p.SecretPath),
		)
	}
	return outcome, nil
}

func findAdminCandidate(tx *gorm.DB) (sql.NullInt64, error) {
	var id sql.NullInt64
	if err := tx.Raw(`SELECT MIN(id) FROM users WHERE role = 'admin'`).Scan(&id).Error; err != nil {
		return id, err
	}
	if id.Valid {
		return id, nil
	}
	err := tx.Raw(`SELECT MIN(id) FROM users WHERE username = ?`, defaultAdminUsername).Scan(&id).Error
	return id, err
}

func writeSecretFile(path, username, secret string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create secret dir: %w", err)
	}
	content := fmt.Sprintf("username=%s\npin=%s\n", username, secret)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return fmt.Errorf("write bootstrap secret: %w", err)
	}
	// WriteFile keeps the mode of an existing file.
	return os.Chmod(path, 0o600)
}
