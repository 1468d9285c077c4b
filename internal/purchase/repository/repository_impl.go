package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/stockbook/internal/purchase/domain"
	"github.com/smallbiznis/stockbook/pkg/db"
	"gorm.io/gorm"
)

const purchaseColumns = `id, datetime, vendor, total_usd, notes, actor_user_id`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

type purchaseRow struct {
	ID          int64
	Datetime    string
	Vendor      sql.NullString
	TotalUSD    decimal.Decimal
	Notes       sql.NullString
	ActorUserID sql.NullInt64
}

func (row purchaseRow) toPurchase() (domain.Purchase, error) {
	at, err := db.ParseTime(row.Datetime)
	if err != nil {
		return domain.Purchase{}, fmt.Errorf("purchase %d datetime: %w", row.ID, err)
	}
	p := domain.Purchase{ID: row.ID, Datetime: at, TotalUSD: row.TotalUSD}
	if row.Vendor.Valid {
		p.Vendor = &row.Vendor.String
	}
	if row.Notes.Valid {
		p.Notes = &row.Notes.String
	}
	if row.ActorUserID.Valid {
		p.ActorUserID = &row.ActorUserID.Int64
	}
	return p, nil
}

func (r *repo) CreateHeader(ctx context.Context, conn *gorm.DB, purchase *domain.Purchase) (int64, error) {
	var id int64
	err := conn.WithContext(ctx).Raw(
		`INSERT INTO purchases (datetime, vendor, total_usd, notes, actor_user_id)
		 VALUES (?, ?, ?, ?, ?)
		 RETURNING id`,
		db.FormatTime(purchase.Datetime),
		purchase.Vendor,
		purchase.TotalUSD,
		purchase.Notes,
		purchase.ActorUserID,
	).Scan(&id).Error
	return id, err
}

func (r *repo) InsertLine(ctx context.Context, db *gorm.DB, line *domain.Line) (int64, error) {
	var id int64
	err := db.WithContext(ctx).Raw(
		`INSERT INTO purchase_items (purchase_id, product_id, qty, unit_cost_usd)
		 VALUES (?, ?, ?, ?)
		 RETURNING id`,
		line.PurchaseID,
		line.ProductID,
		line.Qty,
		line.UnitCostUSD,
	).Scan(&id).Error
	return id, err
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id int64) (*domain.Purchase, error) {
	var row purchaseRow
	err := db.WithContext(ctx).Raw(
		`SELECT `+purchaseColumns+` FROM purchases WHERE id = ?`,
		id,
	).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == 0 {
		return nil, nil
	}
	p, err := row.toPurchase()
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repo) ListBetween(ctx context.Context, db *gorm.DB, from, to string) ([]domain.Purchase, error) {
	var rows []purchaseRow
	err := db.WithContext(ctx).Raw(
		`SELECT `+purchaseColumns+` FROM purchases
		 WHERE datetime >= ? AND datetime < ?
		 ORDER BY datetime DESC, id DESC`,
		from,
		to,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.Purchase, 0, len(rows))
	for _, row := range rows {
		p, err := row.toPurchase()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (r *repo) Lines(ctx context.Context, db *gorm.DB, purchaseID int64) ([]domain.Line, error) {
	var lines []domain.Line
	err := db.WithContext(ctx).Raw(
		`SELECT pi.id, pi.purchase_id, pi.product_id, p.sku, p.name, pi.qty, pi.unit_cost_usd
		 FROM purchase_items pi
		 JOIN products p ON p.id = pi.product_id
		 WHERE pi.purchase_id = ?
		 ORDER BY pi.id`,
		purchaseID,
	).Scan(&lines).Error
	return lines, err
}
