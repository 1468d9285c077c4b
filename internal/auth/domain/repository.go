package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	FindByUsername(ctx context.Context, db *gorm.DB, username string) (*Account, error)
	FindByID(ctx context.Context, db *gorm.DB, id int64) (*Account, error)
	List(ctx context.Context, db *gorm.DB) ([]User, error)
	Create(ctx context.Context, db *gorm.DB, account *Account) (int64, error)
	IncrementFailures(ctx context.Context, db *gorm.DB, id int64) (int, error)
	Lock(ctx context.Context, db *gorm.DB, id int64, until time.Time) error
	ClearFailures(ctx context.Context, db *gorm.DB, id int64) error
	UpdatePin(ctx context.Context, db *gorm.DB, id int64, pin string, mustChange bool) error
}
