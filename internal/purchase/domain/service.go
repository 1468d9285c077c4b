package domain

import (
	"context"
	"time"
)

type Service interface {
	// Create records a restock. Lines are applied in submitted order, so
	// repeated lines for one product fold into the running average one at
	// a time.
	Create(ctx context.Context, req CreateRequest) (int64, error)
	Get(ctx context.Context, id int64) (*Purchase, error)
	ListBetween(ctx context.Context, from, to time.Time) ([]Purchase, error)
	Lines(ctx context.Context, purchaseID int64) ([]Line, error)
}
