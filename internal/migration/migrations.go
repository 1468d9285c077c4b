package migration

import (
	"context"
	"fmt"
	"time"

	"github.com/smallbiznis/stockbook/pkg/db"
	"gorm.io/gorm"
)

var builtin = []Migration{
	{Version: 1, Name: "base_schema", Up: baseSchema},
	{Version: 2, Name: "users_ledger_and_checks", Up: usersLedgerAndChecks},
	{Version: 3, Name: "login_security", Up: loginSecurity},
	{Version: 4, Name: "sale_cost_snapshot", Up: saleCostSnapshot},
	{Version: 5, Name: "audit_log", Up: auditLog},
}

func baseSchema(ctx context.Context, tx *gorm.DB, _ time.Time) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS products (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			sku TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			cost_usd REAL NOT NULL DEFAULT 0,
			price_usd REAL NOT NULL DEFAULT 0,
			stock INTEGER NOT NULL DEFAULT 0,
			min_stock INTEGER NOT NULL DEFAULT 0,
			active INTEGER NOT NULL DEFAULT 1
		)`,
		`CREATE TABLE IF NOT EXISTS sales (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			datetime TEXT NOT NULL,
			total_usd REAL NOT NULL,
			fx_rate_used REAL NOT NULL,
			total_ars REAL NOT NULL,
			notes TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS sale_items (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			sale_id INTEGER NOT NULL REFERENCES sales(id) ON DELETE CASCADE,
			product_id INTEGER NOT NULL REFERENCES products(id),
			qty INTEGER NOT NULL,
			unit_price_usd REAL NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS purchases (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			datetime TEXT NOT NULL,
			vendor TEXT,
			total_usd REAL NOT NULL,
			notes TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS purchase_items (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			purchase_id INTEGER NOT NULL REFERENCES purchases(id) ON DELETE CASCADE,
			product_id INTEGER NOT NULL REFERENCES products(id),
			qty INTEGER NOT NULL,
			unit_cost_usd REAL NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS fx_rates (
			date TEXT PRIMARY KEY,
			usd_ars REAL NOT NULL,
			source TEXT NOT NULL DEFAULT 'manual',
			fetched_at TEXT NOT NULL DEFAULT ''
		)`,
	}
	if err := execAll(ctx, tx, stmts); err != nil {
		return err
	}

	// Stores created before min_stock and soft delete existed.
	if _, err := addColumnIfMissing(ctx, tx, "products", "min_stock", "INTEGER NOT NULL DEFAULT 0"); err != nil {
		return err
	}
	_, err := addColumnIfMissing(ctx, tx, "products", "active", "INTEGER NOT NULL DEFAULT 1")
	return err
}

func usersLedgerAndChecks(ctx context.Context, tx *gorm.DB, now time.Time) error {
	if err := execAll(ctx, tx, []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT NOT NULL UNIQUE,
			pin TEXT NOT NULL,
			role TEXT NOT NULL CHECK (role IN ('admin', 'seller', 'viewer')),
			active INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL
		)`,
	}); err != nil {
		return err
	}
	for _, table := range []string{"sales", "purchases"} {
		if _, err := addColumnIfMissing(ctx, tx, table, "actor_user_id", "INTEGER REFERENCES users(id)"); err != nil {
			return err
		}
	}

	rebuilds := []shadowTable{
		{
			Name: "products",
			Create: `CREATE TABLE products_new (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				sku TEXT NOT NULL UNIQUE,
				name TEXT NOT NULL,
				cost_usd REAL NOT NULL CHECK (cost_usd >= 0),
				price_usd REAL NOT NULL CHECK (price_usd > 0),
				stock INTEGER NOT NULL CHECK (stock >= 0),
				min_stock INTEGER NOT NULL DEFAULT 0 CHECK (min_stock >= 0),
				active INTEGER NOT NULL DEFAULT 1
			)`,
			Copy: `INSERT INTO products_new (id, sku, name, cost_usd, price_usd, stock, min_stock, active)
				SELECT id, sku, name,
					MAX(COALESCE(cost_usd, 0), 0),
					CASE WHEN COALESCE(price_usd, 0) > 0 THEN price_usd ELSE 0.01 END,
					MAX(COALESCE(stock, 0), 0),
					MAX(COALESCE(min_stock, 0), 0),
					CASE WHEN COALESCE(active, 1) <> 0 THEN 1 ELSE 0 END
				FROM products`,
		},
		{
			Name: "sale_items",
			Create: `CREATE TABLE sale_items_new (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				sale_id INTEGER NOT NULL REFERENCES sales(id) ON DELETE CASCADE,
				product_id INTEGER NOT NULL REFERENCES products(id),
				qty INTEGER NOT NULL CHECK (qty > 0),
				unit_price_usd REAL NOT NULL CHECK (unit_price_usd >= 0)
			)`,
			Copy: `INSERT INTO sale_items_new (id, sale_id, product_id, qty, unit_price_usd)
				SELECT id, sale_id, product_id,
					MAX(COALESCE(qty, 1), 1),
					MAX(COALESCE(unit_price_usd, 0), 0)
				FROM sale_items
				WHERE sale_id IN (SELECT id FROM sales) AND product_id IN (SELECT id FROM products)`,
			Indexes: []string{`CREATE INDEX IF NOT EXISTS idx_sale_items_sale_id ON sale_items(sale_id)`},
		},
		{
			Name: "purchase_items",
			Create: `CREATE TABLE purchase_items_new (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				purchase_id INTEGER NOT NULL REFERENCES purchases(id) ON DELETE CASCADE,
				product_id INTEGER NOT NULL REFERENCES products(id),
				qty INTEGER NOT NULL CHECK (qty > 0),
				unit_cost_usd REAL NOT NULL CHECK (unit_cost_usd >= 0)
			)`,
			Copy: `INSERT INTO purchase_items_new (id, purchase_id, product_id, qty, unit_cost_usd)
				SELECT id, purchase_id, product_id,
					MAX(COALESCE(qty, 1), 1),
					MAX(COALESCE(unit_cost_usd, 0), 0)
				FROM purchase_items
				WHERE purchase_id IN (SELECT id FROM purchases) AND product_id IN (SELECT id FROM products)`,
			Indexes: []string{`CREATE INDEX IF NOT EXISTS idx_purchase_items_purchase_id ON purchase_items(purchase_id)`},
		},
		{
			Name: "fx_rates",
			Create: `CREATE TABLE fx_rates_new (
				date TEXT PRIMARY KEY,
				usd_ars REAL NOT NULL CHECK (usd_ars > 0),
				source TEXT NOT NULL,
				fetched_at TEXT NOT NULL
			)`,
			Copy: `INSERT INTO fx_rates_new (date, usd_ars, source, fetched_at)
				SELECT date, usd_ars, COALESCE(NULLIF(source, ''), 'legacy'), COALESCE(NULLIF(fetched_at, ''), date)
				FROM fx_rates
				WHERE usd_ars > 0`,
		},
	}
	for _, t := range rebuilds {
		if err := t.rebuild(ctx, tx); err != nil {
			return err
		}
	}

	if err := execAll(ctx, tx, []string{
		`CREATE TABLE IF NOT EXISTS stock_ledger (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			datetime TEXT NOT NULL,
			product_id INTEGER NOT NULL REFERENCES products(id),
			movement_type TEXT NOT NULL CHECK (movement_type IN ('sale', 'purchase', 'adjustment')),
			qty_delta INTEGER NOT NULL CHECK (qty_delta <> 0),
			stock_after INTEGER NOT NULL CHECK (stock_after >= 0),
			unit_value_usd REAL,
			reference_type TEXT,
			reference_id INTEGER,
			actor_user_id INTEGER REFERENCES users(id),
			notes TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_stock_ledger_product_id ON stock_ledger(product_id)`,
		`CREATE TRIGGER IF NOT EXISTS stock_ledger_no_update
			BEFORE UPDATE ON stock_ledger
			BEGIN
				SELECT RAISE(ABORT, 'stock_ledger is append-only');
			END`,
		`CREATE TRIGGER IF NOT EXISTS stock_ledger_no_delete
			BEFORE DELETE ON stock_ledger
			BEGIN
				SELECT RAISE(ABORT, 'stock_ledger is append-only');
			END`,
	}); err != nil {
		return err
	}

	// Existing stock becomes an opening balance so the ledger sum matches.
	return tx.WithContext(ctx).Exec(`
		INSERT INTO stock_ledger (datetime, product_id, movement_type, qty_delta, stock_after, unit_value_usd, reference_type, notes)
		SELECT ?, p.id, 'adjustment', p.stock - COALESCE(l.total, 0), p.stock, p.cost_usd, 'opening_balance', 'opening balance'
		FROM products p
		LEFT JOIN (SELECT product_id, SUM(qty_delta) AS total FROM stock_ledger GROUP BY product_id) l ON l.product_id = p.id
		WHERE p.stock - COALESCE(l.total, 0) <> 0`,
		db.FormatTime(now),
	).Error
}

func loginSecurity(ctx context.Context, tx *gorm.DB, _ time.Time) error {
	columns := []struct{ name, def string }{
		{"failed_attempts", "INTEGER NOT NULL DEFAULT 0"},
		{"locked_until", "TEXT"},
		{"must_change_pin", "INTEGER NOT NULL DEFAULT 0"},
	}
	for _, c := range columns {
		if _, err := addColumnIfMissing(ctx, tx, "users", c.name, c.def); err != nil {
			return err
		}
	}
	return tx.WithContext(ctx).Exec(`
		UPDATE users SET must_change_pin = 1
		WHERE username = 'admin'
			AND substr(pin, 1, 14) <> 'pbkdf2_sha256$'
			AND substr(pin, 1, 10) <> '$argon2id$'`,
	).Error
}

func saleCostSnapshot(ctx context.Context, tx *gorm.DB, _ time.Time) error {
	added, err := addColumnIfMissing(ctx, tx, "sale_items", "unit_cost_usd", "REAL NOT NULL DEFAULT 0")
	if err != nil {
		return err
	}
	if added {
		// Best available approximation for historic lines.
		if err := tx.WithContext(ctx).Exec(`
			UPDATE sale_items
			SET unit_cost_usd = COALESCE((SELECT p.cost_usd FROM products p WHERE p.id = sale_items.product_id), 0)`,
		).Error; err != nil {
			return err
		}
	}
	return execAll(ctx, tx, []string{
		`CREATE INDEX IF NOT EXISTS idx_sales_datetime ON sales(datetime)`,
		`CREATE INDEX IF NOT EXISTS idx_purchases_datetime ON purchases(datetime)`,
		`CREATE INDEX IF NOT EXISTS idx_stock_ledger_datetime ON stock_ledger(datetime)`,
		`CREATE INDEX IF NOT EXISTS idx_products_active ON products(active)`,
	})
}

func auditLog(ctx context.Context, tx *gorm.DB, _ time.Time) error {
	return execAll(ctx, tx, []string{
		`CREATE TABLE IF NOT EXISTS audit_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			created_at TEXT NOT NULL,
			actor_user_id INTEGER,
			actor TEXT NOT NULL DEFAULT '',
			action TEXT NOT NULL CHECK (length(action) > 0),
			target_type TEXT NOT NULL DEFAULT '',
			target_id TEXT NOT NULL DEFAULT '',
			metadata TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_log_created_at ON audit_log(created_at)`,
		`CREATE TRIGGER IF NOT EXISTS audit_log_no_update
			BEFORE UPDATE ON audit_log
			BEGIN
				SELECT RAISE(ABORT, 'audit_log is append-only');
			END`,
		`CREATE TRIGGER IF NOT EXISTS audit_log_no_delete
			BEFORE DELETE ON audit_log
			BEGIN
				SELECT RAISE(ABORT, 'audit_log is append-only');
			END`,
	})
}

// shadowTable rebuilds Name as Name_new, copying rows through a sanitizing
// SELECT. Requires foreign_keys=OFF on the connection.
type shadowTable struct {
	Name    string
	Create  string
	Copy    string
	Indexes []string
}

func (s shadowTable) rebuild(ctx context.Context, tx *gorm.DB) error {
	stmts := []string{
		`DROP TABLE IF EXISTS ` + s.Name + `_new`,
		s.Create,
		s.Copy,
		`DROP TABLE ` + s.Name,
		`ALTER TABLE ` + s.Name + `_new RENAME TO ` + s.Name,
	}
	stmts = append(stmts, s.Indexes...)
	if err := execAll(ctx, tx, stmts); err != nil {
		return fmt.Errorf("rebuild %s: %w", s.Name, err)
	}
	return nil
}

func execAll(ctx context.Context, tx *gorm.DB, stmts []string) error {
	for _, stmt := range stmts {
		if err := tx.WithContext(ctx).Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}

func hasColumn(ctx context.Context, tx *gorm.DB, table, column string) (bool, error) {
	var n int64
	err := tx.WithContext(ctx).
		Raw(`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, table, column).
		Scan(&n).Error
	return n > 0, err
}

func addColumnIfMissing(ctx context.Context, tx *gorm.DB, table, column, definition string) (bool, error) {
	ok, err := hasColumn(ctx, tx, table, column)
	if err != nil {
		return false, err
	}
	if ok {
		return false, nil
	}
	if err := tx.WithContext(ctx).Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, definition)).Error; err != nil {
		return false, fmt.Errorf("add %s.%s: %w", table, column, err)
	}
	return true, nil
}
