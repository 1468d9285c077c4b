package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/smallbiznis/stockbook/internal/auth/domain"
	"github.com/smallbiznis/stockbook/pkg/db"
	"gorm.io/gorm"
)

const userColumns = `id, username, pin, role, active, must_change_pin, failed_attempts, locked_until, created_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

type userRow struct {
	ID             int64
	Username       string
	Pin            string
	Role           string
	Active         bool
	MustChangePin  bool
	FailedAttempts int
	LockedUntil    sql.NullString
	CreatedAt      string
}

func (row userRow) toAccount() (*domain.Account, error) {
	lockedUntil, err := db.ParseNullTime(row.LockedUntil)
	if err != nil {
		return nil, fmt.Errorf("user %d locked_until: %w", row.ID, err)
	}
	createdAt, err := db.ParseTime(row.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("user %d created_at: %w", row.ID, err)
	}
	return &domain.Account{
		User: domain.User{
			ID:             row.ID,
			Username:       row.Username,
			Role:           domain.Role(row.Role),
			Active:         row.Active,
			MustChangePin:  row.MustChangePin,
			FailedAttempts: row.FailedAttempts,
			LockedUntil:    lockedUntil,
			CreatedAt:      createdAt,
		},
		Pin: row.Pin,
	}, nil
}

func (r *repo) FindByUsername(ctx context.Context, db *gorm.DB, username string) (*domain.Account, error) {
	var row userRow
	err := db.WithContext(ctx).Raw(
		`SELECT `+userColumns+` FROM users WHERE username = ?`,
		username,
	).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == 0 {
		return nil, nil
	}
	return row.toAccount()
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id int64) (*domain.Account, error) {
	var row userRow
	err := db.WithContext(ctx).Raw(
		`SELECT `+userColumns+` FROM users WHERE id = ?`,
		id,
	).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == 0 {
		return nil, nil
	}
	return row.toAccount()
}

func (r *repo) List(ctx context.Context, db *gorm.DB) ([]domain.User, error) {
	var rows []userRow
	err := db.WithContext(ctx).Raw(
		`SELECT ` + userColumns + ` FROM users ORDER BY username ASC`,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	users := make([]domain.User, 0, len(rows))
	for _, row := range rows {
		account, err := row.toAccount()
		if err != nil {
			return nil, err
		}
		users = append(users, account.User)
	}
	return users, nil
}

func (r *repo) Create(ctx context.Context, conn *gorm.DB, account *domain.Account) (int64, error) {
	var id int64
	err := conn.WithContext(ctx).Raw(
		`INSERT INTO users (username, pin, role, active, must_change_pin, failed_attempts, locked_until, created_at)
		 VALUES (?, ?, ?, ?, ?, 0, NULL, ?)
		 RETURNING id`,
		account.Username,
		account.Pin,
		string(account.Role),
		account.Active,
		account.MustChangePin,
		db.FormatTime(account.CreatedAt),
	).Scan(&id).Error
	return id, err
}

func (r *repo) IncrementFailures(ctx context.Context, db *gorm.DB, id int64) (int, error) {
	var attempts int
	err := db.WithContext(ctx).Raw(
		`UPDATE users SET failed_attempts = failed_attempts + 1 WHERE id = ? RETURNING failed_attempts`,
		id,
	).Scan(&attempts).Error
	return attempts, err
}

func (r *repo) Lock(ctx context.Context, conn *gorm.DB, id int64, until time.Time) error {
	return conn.WithContext(ctx).Exec(
		`UPDATE users SET failed_attempts = 0, locked_until = ? WHERE id = ?`,
		db.FormatTime(until),
		id,
	).Error
}

func (r *repo) ClearFailures(ctx context.Context, db *gorm.DB, id int64) error {
	return db.WithContext(ctx).Exec(
		`UPDATE users SET failed_attempts = 0, locked_until = NULL WHERE id = ?`,
		id,
	).Error
}

func (r *repo) UpdatePin(ctx context.Context, db *gorm.DB, id int64, pin string, mustChange bool) error {
	tx := db.WithContext(ctx).Exec(
		`UPDATE users SET pin = ?, must_change_pin = ? WHERE id = ?`,
		pin,
		mustChange,
		id,
	)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}
