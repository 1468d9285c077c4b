package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/stockbook/internal/sale/domain"
	"github.com/smallbiznis/stockbook/pkg/db"
	"gorm.io/gorm"
)

const saleColumns = `id, datetime, total_usd, fx_rate_used, total_ars, notes, actor_user_id`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

type saleRow struct {
	ID          int64
	Datetime    string
	TotalUSD    decimal.Decimal
	FxRateUsed  decimal.Decimal
	TotalARS    decimal.Decimal
	Notes       sql.NullString
	ActorUserID sql.NullInt64
}

func (row saleRow) toSale() (domain.Sale, error) {
	at, err := db.ParseTime(row.Datetime)
	if err != nil {
		return domain.Sale{}, fmt.Errorf("sale %d datetime: %w", row.ID, err)
	}
	s := domain.Sale{
		ID:         row.ID,
		Datetime:   at,
		TotalUSD:   row.TotalUSD,
		FxRateUsed: row.FxRateUsed,
		TotalARS:   row.TotalARS,
	}
	if row.Notes.Valid {
		s.Notes = &row.Notes.String
	}
	if row.ActorUserID.Valid {
		s.ActorUserID = &row.ActorUserID.Int64
	}
	return s, nil
}

func (r *repo) CreateHeader(ctx context.Context, conn *gorm.DB, sale *domain.Sale) (int64, error) {
	var id int64
	err := conn.WithContext(ctx).Raw(
		`INSERT INTO sales (datetime, total_usd, fx_rate_used, total_ars, notes, actor_user_id)
		 VALUES (?, ?, ?, ?, ?, ?)
		 RETURNING id`,
		db.FormatTime(sale.Datetime),
		sale.TotalUSD,
		sale.FxRateUsed,
		sale.TotalARS,
		sale.Notes,
		sale.ActorUserID,
	).Scan(&id).Error
	return id, err
}

func (r *repo) InsertLine(ctx context.Context, db *gorm.DB, line *domain.Line) (int64, error) {
	var id int64
	err := db.WithContext(ctx).Raw(
		`INSERT INTO sale_items (sale_id, product_id, qty, unit_price_usd, unit_cost_usd)
		 VALUES (?, ?, ?, ?, ?)
		 RETURNING id`,
		line.SaleID,
		line.ProductID,
		line.Qty,
		line.UnitPriceUSD,
		line.UnitCostUSD,
	).Scan(&id).Error
	return id, err
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id int64) (*domain.Sale, error) {
	var row saleRow
	err := db.WithContext(ctx).Raw(
		`SELECT `+saleColumns+` FROM sales WHERE id = ?`,
		id,
	).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == 0 {
		return nil, nil
	}
	s, err := row.toSale()
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *repo) ListBetween(ctx context.Context, db *gorm.DB, from, to string) ([]domain.Sale, error) {
	var rows []saleRow
	err := db.WithContext(ctx).Raw(
		`SELECT `+saleColumns+` FROM sales
		 WHERE datetime >= ? AND datetime < ?
		 ORDER BY datetime DESC, id DESC`,
		from,
		to,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.Sale, 0, len(rows))
	for _, row := range rows {
		s, err := row.toSale()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (r *repo) Lines(ctx context.Context, db *gorm.DB, saleID int64) ([]domain.Line, error) {
	var lines []domain.Line
	err := db.WithContext(ctx).Raw(
		`SELECT si.id, si.sale_id, si.product_id, p.sku, p.name, si.qty, si.unit_price_usd,
			COALESCE(si.unit_cost_usd, 0) AS unit_cost_usd
		 FROM sale_items si
		 JOIN products p ON p.id = si.product_id
		 WHERE si.sale_id = ?
		 ORDER BY si.id`,
		saleID,
	).Scan(&lines).Error
	return lines, err
}
