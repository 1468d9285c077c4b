package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *Entry) (int64, error)
	Recent(ctx context.Context, db *gorm.DB, limit int) ([]Entry, error)
	ForProduct(ctx context.Context, db *gorm.DB, productID int64, limit int) ([]Entry, error)
	Drift(ctx context.Context, db *gorm.DB) ([]Drift, error)
}
