package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/stockbook/internal/ledger/domain"
	"github.com/smallbiznis/stockbook/pkg/db"
	"gorm.io/gorm"
)

const entryColumns = `l.id, l.datetime, l.product_id, p.sku, l.movement_type, l.qty_delta, l.stock_after,
	l.unit_value_usd, l.reference_type, l.reference_id, l.actor_user_id, l.notes`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

type entryRow struct {
	ID            int64
	Datetime      string
	ProductID     int64
	SKU           string
	MovementType  string
	QtyDelta      int64
	StockAfter    int64
	UnitValueUSD  decimal.NullDecimal
	ReferenceType sql.NullString
	ReferenceID   sql.NullInt64
	ActorUserID   sql.NullInt64
	Notes         sql.NullString
}

func (row entryRow) toEntry() (domain.Entry, error) {
	at, err := db.ParseTime(row.Datetime)
	if err != nil {
		return domain.Entry{}, fmt.Errorf("ledger entry %d datetime: %w", row.ID, err)
	}
	e := domain.Entry{
		ID:            row.ID,
		Datetime:      at,
		ProductID:     row.ProductID,
		SKU:           row.SKU,
		MovementType:  domain.MovementType(row.MovementType),
		QtyDelta:      row.QtyDelta,
		StockAfter:    row.StockAfter,
		UnitValueUSD:  row.UnitValueUSD,
		ReferenceType: row.ReferenceType.String,
	}
	if row.ReferenceID.Valid {
		e.ReferenceID = &row.ReferenceID.Int64
	}
	if row.ActorUserID.Valid {
		e.ActorUserID = &row.ActorUserID.Int64
	}
	if row.Notes.Valid {
		e.Notes = &row.Notes.String
	}
	return e, nil
}

func toEntries(rows []entryRow) ([]domain.Entry, error) {
	out := make([]domain.Entry, 0, len(rows))
	for _, row := range rows {
		e, err := row.toEntry()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (r *repo) Insert(ctx context.Context, conn *gorm.DB, entry *domain.Entry) (int64, error) {
	var id int64
	err := conn.WithContext(ctx).Raw(
		`INSERT INTO stock_ledger (datetime, product_id, movement_type, qty_delta, stock_after,
			unit_value_usd, reference_type, reference_id, actor_user_id, notes)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 RETURNING id`,
		db.FormatTime(entry.Datetime),
		entry.ProductID,
		string(entry.MovementType),
		entry.QtyDelta,
		entry.StockAfter,
		entry.UnitValueUSD,
		nullString(entry.ReferenceType),
		entry.ReferenceID,
		entry.ActorUserID,
		entry.Notes,
	).Scan(&id).Error
	return id, err
}

func (r *repo) Recent(ctx context.Context, db *gorm.DB, limit int) ([]domain.Entry, error) {
	var rows []entryRow
	err := db.WithContext(ctx).Raw(
		`SELECT `+entryColumns+`
		 FROM stock_ledger l JOIN products p ON p.id = l.product_id
		 ORDER BY l.id DESC
		 LIMIT ?`,
		limit,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return toEntries(rows)
}

func (r *repo) ForProduct(ctx context.Context, db *gorm.DB, productID int64, limit int) ([]domain.Entry, error) {
	var rows []entryRow
	err := db.WithContext(ctx).Raw(
		`SELECT `+entryColumns+`
		 FROM stock_ledger l JOIN products p ON p.id = l.product_id
		 WHERE l.product_id = ?
		 ORDER BY l.id DESC
		 LIMIT ?`,
		productID,
		limit,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return toEntries(rows)
}

func (r *repo) Drift(ctx context.Context, db *gorm.DB) ([]domain.Drift, error) {
	var items []domain.Drift
	err := db.WithContext(ctx).Raw(
		`SELECT p.id AS product_id, p.sku, p.stock, COALESCE(l.total, 0) AS ledger_sum
		 FROM products p
		 LEFT JOIN (SELECT product_id, SUM(qty_delta) AS total FROM stock_ledger GROUP BY product_id) l
			ON l.product_id = p.id
		 WHERE p.stock <> COALESCE(l.total, 0)
		 ORDER BY p.id`,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
