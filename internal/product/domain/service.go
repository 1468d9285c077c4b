package domain

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/stockbook/internal/apperror"
)

type Service interface {
	Add(ctx context.Context, req CreateRequest) (*Product, error)
	GetByID(ctx context.Context, id int64) (*Product, error)
	GetBySKU(ctx context.Context, sku string) (*Product, error)
	ListActive(ctx context.Context) ([]Product, error)
	UpdatePricing(ctx context.Context, req UpdatePricingRequest) (*Product, error)
	Deactivate(ctx context.Context, id int64) error
	Adjust(ctx context.Context, req AdjustRequest) (*Product, error)
}

type CreateRequest struct {
	SKU         string          `json:"sku"`
	Name        string          `json:"name"`
	CostUSD     decimal.Decimal `json:"cost_usd"`
	PriceUSD    decimal.Decimal `json:"price_usd"`
	Stock       int64           `json:"stock"`
	MinStock    int64           `json:"min_stock"`
	ActorUserID *int64          `json:"-"`
}

type UpdatePricingRequest struct {
	ID       int64           `json:"id"`
	PriceUSD decimal.Decimal `json:"price_usd"`
	MinStock int64           `json:"min_stock"`
}

// AdjustRequest is a manual, signed stock correction.
type AdjustRequest struct {
	ProductID   int64  `json:"product_id"`
	Delta       int64  `json:"delta"`
	Notes       string `json:"notes"`
	ActorUserID *int64 `json:"-"`
}

var (
	ErrNotFound        = apperror.NotFound("product not found")
	ErrInvalidSKU      = apperror.Validation("sku is required")
	ErrInvalidName     = apperror.Validation("name is required")
	ErrInvalidCost     = apperror.Validation("cost must be zero or greater")
	ErrInvalidPrice    = apperror.Validation("price must be greater than zero")
	ErrInvalidStock    = apperror.Validation("stock must be zero or greater")
	ErrInvalidMinStock = apperror.Validation("minimum stock must be zero or greater")
	ErrDuplicateSKU    = apperror.Validation("a product with this sku already exists")
	ErrHasStock        = apperror.Validation("product still has stock; adjust it to zero before deactivating")
	ErrZeroAdjustment  = apperror.Validation("adjustment must not be zero")
	ErrNegativeStock   = apperror.New(apperror.KindInsufficientStock, "adjustment would make stock negative")
)
