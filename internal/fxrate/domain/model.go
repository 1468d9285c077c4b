package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/stockbook/internal/apperror"
	"gorm.io/gorm"
)

const SourceManual = "manual"

// Rate is the ARS price of one USD for a calendar day (UTC).
type Rate struct {
	Date      string          `json:"date"`
	USDARS    decimal.Decimal `json:"usd_ars"`
	Source    string          `json:"source"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// RateProvider resolves the rate used to price a sale.
type RateProvider interface {
	RateForDate(ctx context.Context, day time.Time) (decimal.Decimal, error)
}

// Source is a remote or configured origin of daily rates.
type Source interface {
	Name() string
	Fetch(ctx context.Context, day time.Time) (decimal.Decimal, error)
}

type Repository interface {
	Get(ctx context.Context, db *gorm.DB, date string) (*Rate, error)
	Latest(ctx context.Context, db *gorm.DB) (*Rate, error)
	Upsert(ctx context.Context, db *gorm.DB, rate *Rate) error
}

type Service interface {
	RateProvider
	SetManual(ctx context.Context, day time.Time, rate decimal.Decimal) (*Rate, error)
	Latest(ctx context.Context) (*Rate, error)
}

var (
	ErrUnavailable = apperror.New(apperror.KindFxUnavailable, "exchange rate unavailable; set one manually")
	ErrInvalidRate = apperror.Validation("exchange rate must be greater than zero")
)
