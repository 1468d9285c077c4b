package domain

import (
	"context"
	"io"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/stockbook/internal/apperror"
	"gorm.io/gorm"
)

// TopProductsLimit caps the best sellers listed in a summary.
const TopProductsLimit = 20

type Summary struct {
	From         time.Time       `json:"from"`
	To           time.Time       `json:"to"`
	SalesCount   int64           `json:"sales_count"`
	RevenueUSD   decimal.Decimal `json:"revenue_usd"`
	RevenueARS   decimal.Decimal `json:"revenue_ars"`
	MarginUSD    decimal.Decimal `json:"margin_usd"`
	PurchasesUSD decimal.Decimal `json:"purchases_usd"`
	TopProducts  []TopProduct    `json:"top_products"`
}

// NetUSD is gross margin minus restock spending for the window.
func (s Summary) NetUSD() decimal.Decimal {
	return s.MarginUSD.Sub(s.PurchasesUSD)
}

type TopProduct struct {
	ProductID  int64           `json:"product_id"`
	SKU        string          `json:"sku"`
	Name       string          `json:"name"`
	UnitsSold  int64           `json:"units_sold"`
	RevenueUSD decimal.Decimal `json:"revenue_usd"`
	MarginUSD  decimal.Decimal `json:"margin_usd"`
}

type MonthlyTotal struct {
	Month    string          `json:"month"`
	TotalUSD decimal.Decimal `json:"total_usd"`
}

type ProfitPoint struct {
	Day           string          `json:"day"`
	MarginUSD     decimal.Decimal `json:"margin_usd"`
	CumulativeUSD decimal.Decimal `json:"cumulative_usd"`
}

type CriticalItem struct {
	ProductID int64  `json:"product_id"`
	SKU       string `json:"sku"`
	Name      string `json:"name"`
	Stock     int64  `json:"stock"`
	MinStock  int64  `json:"min_stock"`
}

func (c CriticalItem) Shortfall() int64 {
	return c.MinStock - c.Stock
}

// Document is everything an exported report renders.
type Document struct {
	Title       string
	GeneratedAt time.Time
	Summary     Summary
	Monthly     []MonthlyTotal
	Critical    []CriticalItem
}

// Totals is the header aggregate of sales in a window.
type Totals struct {
	Count      int64
	RevenueUSD decimal.Decimal
	RevenueARS decimal.Decimal
}

type Repository interface {
	SalesTotals(ctx context.Context, db *gorm.DB, from, to string) (Totals, error)
	Margin(ctx context.Context, db *gorm.DB, from, to string) (decimal.Decimal, error)
	TopProducts(ctx context.Context, db *gorm.DB, from, to string, limit int) ([]TopProduct, error)
	PurchasesTotal(ctx context.Context, db *gorm.DB, from, to string) (decimal.Decimal, error)
	MonthlySales(ctx context.Context, db *gorm.DB, since string) ([]MonthlyTotal, error)
	DailyMargin(ctx context.Context, db *gorm.DB) ([]ProfitPoint, error)
	CriticalStock(ctx context.Context, db *gorm.DB, limit int) ([]CriticalItem, error)
}

// Renderer turns a report document into a printable file.
type Renderer interface {
	Render(ctx context.Context, doc *Document) (io.Reader, error)
}

type Service interface {
	Summary(ctx context.Context, from, to time.Time) (*Summary, error)
	PurchasesTotal(ctx context.Context, from, to time.Time) (decimal.Decimal, error)
	// MonthlySales returns the last months calendar months, oldest first,
	// including the current one. Months without sales report zero.
	MonthlySales(ctx context.Context, months int) ([]MonthlyTotal, error)
	CumulativeProfit(ctx context.Context) ([]ProfitPoint, error)
	CriticalStock(ctx context.Context, limit int) ([]CriticalItem, error)
	Export(ctx context.Context, from, to time.Time, w io.Writer) error
}

var (
	ErrInvalidRange  = apperror.Validation("range start must not be after its end")
	ErrInvalidMonths = apperror.Validation("months must be between 1 and 120")
	ErrNoRenderer    = apperror.New(apperror.KindInternal, "report export is not configured")
)
