package repository

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/stockbook/internal/product/domain"
	"gorm.io/gorm"
)

const productColumns = `id, sku, name, cost_usd, price_usd, stock, min_stock, active`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Create(ctx context.Context, db *gorm.DB, product *domain.Product) (int64, error) {
	var id int64
	err := db.WithContext(ctx).Raw(
		`INSERT INTO products (sku, name, cost_usd, price_usd, stock, min_stock, active)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 RETURNING id`,
		product.SKU,
		product.Name,
		product.CostUSD,
		product.PriceUSD,
		product.Stock,
		product.MinStock,
		product.Active,
	).Scan(&id).Error
	return id, err
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id int64) (*domain.Product, error) {
	var p domain.Product
	err := db.WithContext(ctx).Raw(
		`SELECT `+productColumns+` FROM products WHERE id = ?`,
		id,
	).Scan(&p).Error
	if err != nil {
		return nil, err
	}
	if p.ID == 0 {
		return nil, nil
	}
	return &p, nil
}

func (r *repo) FindBySKU(ctx context.Context, db *gorm.DB, sku string) (*domain.Product, error) {
	var p domain.Product
	err := db.WithContext(ctx).Raw(
		`SELECT `+productColumns+` FROM products WHERE sku = ?`,
		sku,
	).Scan(&p).Error
	if err != nil {
		return nil, err
	}
	if p.ID == 0 {
		return nil, nil
	}
	return &p, nil
}

func (r *repo) ListActive(ctx context.Context, db *gorm.DB) ([]domain.Product, error) {
	var items []domain.Product
	err := db.WithContext(ctx).Raw(
		`SELECT ` + productColumns + ` FROM products WHERE active = 1 ORDER BY name ASC, id ASC`,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) DecrementStock(ctx context.Context, db *gorm.DB, id int64, qty int64) (bool, error) {
	tx := db.WithContext(ctx).Exec(
		`UPDATE products SET stock = stock - ? WHERE id = ? AND active = 1 AND stock >= ?`,
		qty,
		id,
		qty,
	)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected == 1, nil
}

func (r *repo) ApplyDelta(ctx context.Context, db *gorm.DB, id int64, delta int64) (bool, error) {
	tx := db.WithContext(ctx).Exec(
		`UPDATE products SET stock = stock + ? WHERE id = ? AND active = 1 AND stock + ? >= 0`,
		delta,
		id,
		delta,
	)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected == 1, nil
}

func (r *repo) SetStockAndCost(ctx context.Context, db *gorm.DB, id int64, stock int64, cost decimal.Decimal) error {
	return db.WithContext(ctx).Exec(
		`UPDATE products SET stock = ?, cost_usd = ? WHERE id = ?`,
		stock,
		cost,
		id,
	).Error
}

func (r *repo) UpdatePricing(ctx context.Context, db *gorm.DB, id int64, price decimal.Decimal, minStock int64) (bool, error) {
	tx := db.WithContext(ctx).Exec(
		`UPDATE products SET price_usd = ?, min_stock = ? WHERE id = ? AND active = 1`,
		price,
		minStock,
		id,
	)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected == 1, nil
}

func (r *repo) Deactivate(ctx context.Context, db *gorm.DB, id int64) (bool, error) {
	tx := db.WithContext(ctx).Exec(
		`UPDATE products SET active = 0 WHERE id = ? AND active = 1 AND stock = 0`,
		id,
	)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected == 1, nil
}
