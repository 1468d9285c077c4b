package domain

import (
	"context"
	"time"
)

type Service interface {
	// Create validates the cart outside any transaction, then commits the
	// header, lines, stock decrements and ledger rows atomically.
	Create(ctx context.Context, req CreateRequest) (int64, error)
	Get(ctx context.Context, id int64) (*Sale, error)
	// ListBetween returns sales with from <= datetime < to, newest first.
	ListBetween(ctx context.Context, from, to time.Time) ([]Sale, error)
	Lines(ctx context.Context, saleID int64) ([]Line, error)
}
