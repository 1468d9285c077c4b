package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Sale is an immutable sale header. Totals are fixed at commit time with the
// exchange rate of that day.
type Sale struct {
	ID          int64           `json:"id"`
	Datetime    time.Time       `json:"datetime"`
	TotalUSD    decimal.Decimal `json:"total_usd"`
	FxRateUsed  decimal.Decimal `json:"fx_rate_used"`
	TotalARS    decimal.Decimal `json:"total_ars"`
	Notes       *string         `json:"notes,omitempty"`
	ActorUserID *int64          `json:"actor_user_id,omitempty"`
}

// Line is a committed sale line joined with its product.
type Line struct {
	ID           int64           `json:"id"`
	SaleID       int64           `json:"sale_id"`
	ProductID    int64           `json:"product_id"`
	SKU          string          `json:"sku"`
	Name         string          `json:"name"`
	Qty          int64           `json:"qty"`
	UnitPriceUSD decimal.Decimal `json:"unit_price_usd"`
	UnitCostUSD  decimal.Decimal `json:"unit_cost_usd"`
}

func (l Line) TotalUSD() decimal.Decimal {
	return l.UnitPriceUSD.Mul(decimal.NewFromInt(l.Qty))
}

// MarginUSD uses the cost captured when the sale was committed.
func (l Line) MarginUSD() decimal.Decimal {
	return l.UnitPriceUSD.Sub(l.UnitCostUSD).Mul(decimal.NewFromInt(l.Qty))
}

type CartLine struct {
	ProductID    int64           `json:"product_id"`
	Qty          int64           `json:"qty"`
	UnitPriceUSD decimal.Decimal `json:"unit_price_usd"`
}

type CreateRequest struct {
	Lines       []CartLine `json:"lines"`
	Notes       string     `json:"notes"`
	ActorUserID *int64     `json:"-"`
}
