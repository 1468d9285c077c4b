package repository

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/stockbook/internal/report/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

type amountRow struct {
	Amount decimal.Decimal
}

func (r *repo) SalesTotals(ctx context.Context, db *gorm.DB, from, to string) (domain.Totals, error) {
	var row struct {
		Count      int64
		RevenueUSD decimal.Decimal
		RevenueARS decimal.Decimal
	}
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) AS count,
			COALESCE(SUM(total_usd), 0) AS revenue_usd,
			COALESCE(SUM(total_ars), 0) AS revenue_ars
		 FROM sales
		 WHERE datetime >= ? AND datetime < ?`,
		from,
		to,
	).Scan(&row).Error
	if err != nil {
		return domain.Totals{}, err
	}
	return domain.Totals{Count: row.Count, RevenueUSD: row.RevenueUSD, RevenueARS: row.RevenueARS}, nil
}

// Margin uses the cost captured on each line, so later purchases do not
// rewrite the profit of past sales.
func (r *repo) Margin(ctx context.Context, db *gorm.DB, from, to string) (decimal.Decimal, error) {
	var row amountRow
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(si.qty * (si.unit_price_usd - COALESCE(si.unit_cost_usd, 0))), 0) AS amount
		 FROM sale_items si
		 JOIN sales s ON s.id = si.sale_id
		 WHERE s.datetime >= ? AND s.datetime < ?`,
		from,
		to,
	).Scan(&row).Error
	return row.Amount, err
}

func (r *repo) TopProducts(ctx context.Context, db *gorm.DB, from, to string, limit int) ([]domain.TopProduct, error) {
	var rows []domain.TopProduct
	err := db.WithContext(ctx).Raw(
		`SELECT p.id AS product_id, p.sku, p.name,
			SUM(si.qty) AS units_sold,
			SUM(si.qty * si.unit_price_usd) AS revenue_usd,
			SUM(si.qty * (si.unit_price_usd - COALESCE(si.unit_cost_usd, 0))) AS margin_usd
		 FROM sale_items si
		 JOIN sales s ON s.id = si.sale_id
		 JOIN products p ON p.id = si.product_id
		 WHERE s.datetime >= ? AND s.datetime < ?
		 GROUP BY p.id
		 ORDER BY units_sold DESC, p.sku
		 LIMIT ?`,
		from,
		to,
		limit,
	).Scan(&rows).Error
	return rows, err
}

func (r *repo) PurchasesTotal(ctx context.Context, db *gorm.DB, from, to string) (decimal.Decimal, error) {
	var row amountRow
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(total_usd), 0) AS amount
		 FROM purchases
		 WHERE datetime >= ? AND datetime < ?`,
		from,
		to,
	).Scan(&row).Error
	return row.Amount, err
}

func (r *repo) MonthlySales(ctx context.Context, db *gorm.DB, since string) ([]domain.MonthlyTotal, error) {
	var rows []domain.MonthlyTotal
	err := db.WithContext(ctx).Raw(
		`SELECT substr(datetime, 1, 7) AS month, SUM(total_usd) AS total_usd
		 FROM sales
		 WHERE datetime >= ?
		 GROUP BY month
		 ORDER BY month`,
		since,
	).Scan(&rows).Error
	return rows, err
}

// DailyMargin returns per-day margin only; the running sum is computed by
// the service.
func (r *repo) DailyMargin(ctx context.Context, db *gorm.DB) ([]domain.ProfitPoint, error) {
	var rows []domain.ProfitPoint
	err := db.WithContext(ctx).Raw(
		`SELECT substr(s.datetime, 1, 10) AS day,
			SUM(si.qty * (si.unit_price_usd - COALESCE(si.unit_cost_usd, 0))) AS margin_usd
		 FROM sale_items si
		 JOIN sales s ON s.id = si.sale_id
		 GROUP BY day
		 ORDER BY day`,
	).Scan(&rows).Error
	return rows, err
}

func (r *repo) CriticalStock(ctx context.Context, db *gorm.DB, limit int) ([]domain.CriticalItem, error) {
	var rows []domain.CriticalItem
	err := db.WithContext(ctx).Raw(
		`SELECT id AS product_id, sku, name, stock, min_stock
		 FROM products
		 WHERE active = 1 AND stock <= min_stock
		 ORDER BY (min_stock - stock) DESC, sku
		 LIMIT ?`,
		limit,
	).Scan(&rows).Error
	return rows, err
}
