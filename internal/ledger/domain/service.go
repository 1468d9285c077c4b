package domain

import (
	"context"

	"gorm.io/gorm"
)

// Writer appends ledger rows inside a caller-owned transaction. tx must be
// the same handle used for the paired stock update.
type Writer interface {
	Append(ctx context.Context, tx *gorm.DB, entry *Entry) (int64, error)
}

type Service interface {
	Writer
	Recent(ctx context.Context, limit int) ([]Entry, error)
	ForProduct(ctx context.Context, productID int64, limit int) ([]Entry, error)
	Verify(ctx context.Context) ([]Drift, error)
}
