package domain

import (
	"context"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Repository is the only way stock and cost change. Every stock write must be
// paired with a ledger append on the same db handle.
type Repository interface {
	Create(ctx context.Context, db *gorm.DB, product *Product) (int64, error)
	FindByID(ctx context.Context, db *gorm.DB, id int64) (*Product, error)
	FindBySKU(ctx context.Context, db *gorm.DB, sku string) (*Product, error)
	ListActive(ctx context.Context, db *gorm.DB) ([]Product, error)
	// DecrementStock subtracts qty only when the product is active and has
	// enough stock. It reports false when the guard did not match.
	DecrementStock(ctx context.Context, db *gorm.DB, id int64, qty int64) (bool, error)
	// ApplyDelta adds a signed delta unless the result would be negative.
	ApplyDelta(ctx context.Context, db *gorm.DB, id int64, delta int64) (bool, error)
	SetStockAndCost(ctx context.Context, db *gorm.DB, id int64, stock int64, cost decimal.Decimal) error
	UpdatePricing(ctx context.Context, db *gorm.DB, id int64, price decimal.Decimal, minStock int64) (bool, error)
	// Deactivate soft-deletes an active product whose stock is zero.
	Deactivate(ctx context.Context, db *gorm.DB, id int64) (bool, error)
}
