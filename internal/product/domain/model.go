package domain

import "github.com/shopspring/decimal"

type Product struct {
	ID       int64           `json:"id"`
	SKU      string          `json:"sku"`
	Name     string          `json:"name"`
	CostUSD  decimal.Decimal `json:"cost_usd"`
	PriceUSD decimal.Decimal `json:"price_usd"`
	Stock    int64           `json:"stock"`
	MinStock int64           `json:"min_stock"`
	Active   bool            `json:"active"`
}

// Critical reports whether stock has fallen to or below the reorder point.
func (p Product) Critical() bool {
	return p.Stock <= p.MinStock
}
