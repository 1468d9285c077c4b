package domain

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/stockbook/internal/apperror"
)

type Purchase struct {
	ID          int64           `json:"id"`
	Datetime    time.Time       `json:"datetime"`
	Vendor      *string         `json:"vendor,omitempty"`
	TotalUSD    decimal.Decimal `json:"total_usd"`
	Notes       *string         `json:"notes,omitempty"`
	ActorUserID *int64          `json:"actor_user_id,omitempty"`
}

type Line struct {
	ID          int64           `json:"id"`
	PurchaseID  int64           `json:"purchase_id"`
	ProductID   int64           `json:"product_id"`
	SKU         string          `json:"sku"`
	Name        string          `json:"name"`
	Qty         int64           `json:"qty"`
	UnitCostUSD decimal.Decimal `json:"unit_cost_usd"`
}

func (l Line) TotalUSD() decimal.Decimal {
	return l.UnitCostUSD.Mul(decimal.NewFromInt(l.Qty))
}

type RestockLine struct {
	ProductID   int64           `json:"product_id"`
	Qty         int64           `json:"qty"`
	UnitCostUSD decimal.Decimal `json:"unit_cost_usd"`
}

type CreateRequest struct {
	Vendor      string        `json:"vendor"`
	Notes       string        `json:"notes"`
	Lines       []RestockLine `json:"lines"`
	ActorUserID *int64        `json:"-"`
}

var (
	ErrEmptyCart       = apperror.Validation("purchase must have at least one line")
	ErrInvalidQty      = apperror.Validation("quantity must be greater than zero")
	ErrInvalidUnitCost = apperror.Validation("unit cost must be zero or greater")
	ErrProductNotFound = apperror.NotFound("product not found or inactive")
	ErrNotFound        = apperror.NotFound("purchase not found")
	ErrInvalidRange    = apperror.Validation("range start must not be after its end")
)
