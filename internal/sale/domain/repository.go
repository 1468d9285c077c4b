package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	CreateHeader(ctx context.Context, db *gorm.DB, sale *Sale) (int64, error)
	InsertLine(ctx context.Context, db *gorm.DB, line *Line) (int64, error)
	FindByID(ctx context.Context, db *gorm.DB, id int64) (*Sale, error)
	ListBetween(ctx context.Context, db *gorm.DB, from, to string) ([]Sale, error)
	Lines(ctx context.Context, db *gorm.DB, saleID int64) ([]Line, error)
}
