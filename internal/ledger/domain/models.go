package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MovementType classifies a stock_ledger row.
type MovementType string

const (
	MovementSale       MovementType = "sale"
	MovementPurchase   MovementType = "purchase"
	MovementAdjustment MovementType = "adjustment"
)

func (m MovementType) Valid() bool {
	switch m {
	case MovementSale, MovementPurchase, MovementAdjustment:
		return true
	}
	return false
}

const (
	ReferenceSale           = "sale"
	ReferencePurchase       = "purchase"
	ReferenceProductCreate  = "product_create"
	ReferenceManual         = "manual"
	ReferenceOpeningBalance = "opening_balance"
)

// Entry is one immutable stock movement. StockAfter is the product stock
// once the movement has been applied.
type Entry struct {
	ID            int64               `json:"id"`
	Datetime      time.Time           `json:"datetime"`
	ProductID     int64               `json:"product_id"`
	SKU           string              `json:"sku,omitempty"`
	MovementType  MovementType        `json:"movement_type"`
	QtyDelta      int64               `json:"qty_delta"`
	StockAfter    int64               `json:"stock_after"`
	UnitValueUSD  decimal.NullDecimal `json:"unit_value_usd"`
	ReferenceType string              `json:"reference_type,omitempty"`
	ReferenceID   *int64              `json:"reference_id,omitempty"`
	ActorUserID   *int64              `json:"actor_user_id,omitempty"`
	Notes         *string             `json:"notes,omitempty"`
}

// Drift is a product whose stock disagrees with the sum of its ledger rows.
type Drift struct {
	ProductID int64  `json:"product_id"`
	SKU       string `json:"sku"`
	Stock     int64  `json:"stock"`
	LedgerSum int64  `json:"ledger_sum"`
}
