package repository

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/stockbook/internal/fxrate/domain"
	"github.com/smallbiznis/stockbook/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

type rateRow struct {
	Date      string
	UsdArs    decimal.Decimal
	Source    string
	FetchedAt string
}

func (row rateRow) toRate() (*domain.Rate, error) {
	fetchedAt, err := db.ParseTime(row.FetchedAt)
	if err != nil {
		return nil, fmt.Errorf("fx rate %s fetched_at: %w", row.Date, err)
	}
	return &domain.Rate{Date: row.Date, USDARS: row.UsdArs, Source: row.Source, FetchedAt: fetchedAt}, nil
}

func (r *repo) Get(ctx context.Context, db *gorm.DB, date string) (*domain.Rate, error) {
	var row rateRow
	err := db.WithContext(ctx).Raw(
		`SELECT date, usd_ars, source, fetched_at FROM fx_rates WHERE date = ?`,
		date,
	).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.Date == "" {
		return nil, nil
	}
	return row.toRate()
}

func (r *repo) Latest(ctx context.Context, db *gorm.DB) (*domain.Rate, error) {
	var row rateRow
	err := db.WithContext(ctx).Raw(
		`SELECT date, usd_ars, source, fetched_at FROM fx_rates ORDER BY date DESC LIMIT 1`,
	).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.Date == "" {
		return nil, nil
	}
	return row.toRate()
}

func (r *repo) Upsert(ctx context.Context, conn *gorm.DB, rate *domain.Rate) error {
	return conn.WithContext(ctx).Exec(
		`INSERT INTO fx_rates (date, usd_ars, source, fetched_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(date) DO UPDATE SET
			usd_ars = excluded.usd_ars,
			source = excluded.source,
			fetched_at = excluded.fetched_at`,
		rate.Date,
		rate.USDARS,
		rate.Source,
		db.FormatTime(rate.FetchedAt),
	).Error
}
