package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	CreateHeader(ctx context.Context, db *gorm.DB, purchase *Purchase) (int64, error)
	InsertLine(ctx context.Context, db *gorm.DB, line *Line) (int64, error)
	FindByID(ctx context.Context, db *gorm.DB, id int64) (*Purchase, error)
	ListBetween(ctx context.Context, db *gorm.DB, from, to string) ([]Purchase, error)
	Lines(ctx context.Context, db *gorm.DB, purchaseID int64) ([]Line, error)
}
