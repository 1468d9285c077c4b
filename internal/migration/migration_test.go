package migration

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/smallbiznis/stockbook/internal/apperror"
	"github.com/smallbiznis/stockbook/internal/backup"
	"github.com/smallbiznis/stockbook/internal/clock"
	"github.com/smallbiznis/stockbook/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type fixture struct {
	db     *gorm.DB
	backup *backup.Service
	clock  *clock.FakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	log := zaptest.NewLogger(t)
	conn, err := db.Open(db.Config{Path: filepath.Join(dir, "test.db"), BusyTimeoutMS: 1000}, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(conn) })

	clk := clock.NewFakeClock(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))
	return &fixture{
		db:    conn,
		clock: clk,
		backup: backup.New(backup.Params{
			DB:     conn,
			Log:    log,
			Clock:  clk,
			Config: backup.Config{Dir: filepath.Join(dir, "backups"), KeyPath: filepath.Join(dir, "key")},
		}),
	}
}

func (f *fixture) migrator(t *testing.T, opts ...Option) *Migrator {
	t.Helper()
	m, err := New(f.db, f.backup, f.clock, zaptest.NewLogger(t), opts...)
	require.NoError(t, err)
	return m
}

type productRow struct {
	ID       int64
	SKU      string
	CostUSD  float64
	PriceUSD float64
	Stock    int64
	MinStock int64
	Active   int
}

func (f *fixture) products(t *testing.T) []productRow {
	t.Helper()
	var rows []productRow
	require.NoError(t, f.db.Raw(`SELECT id, sku, cost_usd, price_usd, stock, min_stock, active FROM products ORDER BY id`).Scan(&rows).Error)
	return rows
}

func TestRunFreshStore(t *testing.T) {
	f := newFixture(t)
	m := f.migrator(t)
	ctx := context.Background()

	require.NoError(t, m.Run(ctx))

	version, err := m.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, m.Latest(), version)
	assert.Equal(t, 5, version)

	applied, err := m.Applied(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, applied)

	for _, table := range []string{"products", "sales", "sale_items", "purchases", "purchase_items", "fx_rates", "users", "stock_ledger", "audit_log"} {
		assert.True(t, f.db.Migrator().HasTable(table), table)
	}
	ok, err := hasColumn(ctx, f.db, "sale_items", "unit_cost_usd")
	require.NoError(t, err)
	assert.True(t, ok)

	var appliedAt string
	require.NoError(t, f.db.Raw(`SELECT applied_at FROM schema_migrations WHERE version = 5`).Scan(&appliedAt).Error)
	assert.Equal(t, "2024-01-02 03:04:05", appliedAt)

	// Second run is a no-op.
	require.NoError(t, m.Run(ctx))
	applied, err = m.Applied(ctx)
	require.NoError(t, err)
	assert.Len(t, applied, 5)
}

func TestForeignKeysEnabledAfterRun(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.migrator(t).Run(context.Background()))

	var enabled int
	require.NoError(t, f.db.Raw("PRAGMA foreign_keys").Scan(&enabled).Error)
	assert.Equal(t, 1, enabled)
}

func TestStockLedgerIsAppendOnly(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.migrator(t).Run(context.Background()))

	require.NoError(t, f.db.Exec(`INSERT INTO products (sku, name, cost_usd, price_usd, stock) VALUES ('A', 'A', 1, 2, 3)`).Error)
	require.NoError(t, f.db.Exec(`INSERT INTO stock_ledger (datetime, product_id, movement_type, qty_delta, stock_after) VALUES ('2024-01-01 00:00:00', 1, 'adjustment', 3, 3)`).Error)

	err := f.db.Exec(`UPDATE stock_ledger SET qty_delta = 4`).Error
	require.Error(t, err)
	assert.Contains(t, err.Error(), "append-only")

	err = f.db.Exec(`DELETE FROM stock_ledger`).Error
	require.Error(t, err)
	assert.Contains(t, err.Error(), "append-only")

	err = f.db.Exec(`INSERT INTO stock_ledger (datetime, product_id, movement_type, qty_delta, stock_after) VALUES ('2024-01-01 00:00:00', 1, 'adjustment', 0, 3)`).Error
	assert.True(t, db.IsCheckConstraintErr(err), "zero delta must violate a CHECK: %v", err)
}

func TestChecksRejectInvalidRows(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.migrator(t).Run(context.Background()))

	err := f.db.Exec(`INSERT INTO products (sku, name, cost_usd, price_usd, stock) VALUES ('A', 'A', 1, 0, 3)`).Error
	assert.True(t, db.IsCheckConstraintErr(err))

	err = f.db.Exec(`INSERT INTO products (sku, name, cost_usd, price_usd, stock) VALUES ('B', 'B', 1, 1, -1)`).Error
	assert.True(t, db.IsCheckConstraintErr(err))

	err = f.db.Exec(`INSERT INTO fx_rates (date, usd_ars, source, fetched_at) VALUES ('2024-01-01', 0, 'manual', 'x')`).Error
	assert.True(t, db.IsCheckConstraintErr(err))

	err = f.db.Exec(`INSERT INTO users (username, pin, role, created_at) VALUES ('x', 'y', 'owner', 'z')`).Error
	assert.True(t, db.IsCheckConstraintErr(err))
}

// seedLegacy builds a version 1 store holding rows that predate the CHECK
// constraints.
func seedLegacy(t *testing.T, f *fixture) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, baseSchema(ctx, f.db, f.clock.Now()))
	require.NoError(t, ensureVersionTable(f.db))
	require.NoError(t, f.db.Exec(`INSERT INTO schema_migrations (version, applied_at) VALUES (1, '2023-01-01 00:00:00')`).Error)

	stmts := []string{
		`CREATE TABLE users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT NOT NULL UNIQUE,
			pin TEXT NOT NULL,
			role TEXT NOT NULL,
			active INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL
		)`,
		`INSERT INTO users (username, pin, role, created_at) VALUES ('admin', '1234', 'admin', '2023-01-01 00:00:00')`,
		`INSERT INTO users (username, pin, role, created_at) VALUES ('bob', '5678', 'seller', '2023-01-01 00:00:00')`,
		`INSERT INTO products (id, sku, name, cost_usd, price_usd, stock, min_stock) VALUES (1, 'NEG', 'Negative', -5, 0, -3, -1)`,
		`INSERT INTO products (id, sku, name, cost_usd, price_usd, stock, min_stock) VALUES (2, 'OK', 'Fine', 4, 9, 7, 2)`,
		`INSERT INTO sales (id, datetime, total_usd, fx_rate_used, total_ars) VALUES (1, '2023-02-01 10:00:00', 9, 1000, 9000)`,
		`INSERT INTO sale_items (sale_id, product_id, qty, unit_price_usd) VALUES (1, 2, 0, -9)`,
		`INSERT INTO fx_rates (date, usd_ars, source, fetched_at) VALUES ('2023-02-01', 1000, 'manual', '2023-02-01 09:00:00')`,
		`INSERT INTO fx_rates (date, usd_ars, source, fetched_at) VALUES ('2023-02-02', 0, 'manual', '2023-02-02 09:00:00')`,
	}
	for _, s := range stmts {
		require.NoError(t, f.db.Exec(s).Error)
	}
}

func TestUpgradeSanitizesLegacyRows(t *testing.T) {
	f := newFixture(t)
	seedLegacy(t, f)
	m := f.migrator(t)
	ctx := context.Background()

	require.NoError(t, m.Run(ctx))

	products := f.products(t)
	require.Len(t, products, 2)
	assert.Equal(t, productRow{ID: 1, SKU: "NEG", CostUSD: 0, PriceUSD: 0.01, Stock: 0, MinStock: 0, Active: 1}, products[0])
	assert.Equal(t, productRow{ID: 2, SKU: "OK", CostUSD: 4, PriceUSD: 9, Stock: 7, MinStock: 2, Active: 1}, products[1])

	var line struct {
		Qty          int64
		UnitPriceUSD float64
		UnitCostUSD  float64
	}
	require.NoError(t, f.db.Raw(`SELECT qty, unit_price_usd, unit_cost_usd FROM sale_items`).Scan(&line).Error)
	assert.Equal(t, int64(1), line.Qty)
	assert.Equal(t, 0.0, line.UnitPriceUSD)
	assert.Equal(t, 4.0, line.UnitCostUSD)

	var rates []string
	require.NoError(t, f.db.Raw(`SELECT date FROM fx_rates ORDER BY date`).Scan(&rates).Error)
	assert.Equal(t, []string{"2023-02-01"}, rates)

	// Opening balances make the ledger agree with stock.
	var balance []struct {
		ProductID     int64
		QtyDelta      int64
		ReferenceType string
	}
	require.NoError(t, f.db.Raw(`SELECT product_id, qty_delta, reference_type FROM stock_ledger ORDER BY product_id`).Scan(&balance).Error)
	require.Len(t, balance, 1)
	assert.Equal(t, int64(2), balance[0].ProductID)
	assert.Equal(t, int64(7), balance[0].QtyDelta)
	assert.Equal(t, "opening_balance", balance[0].ReferenceType)

	var flags []struct {
		Username      string
		MustChangePin int
	}
	require.NoError(t, f.db.Raw(`SELECT username, must_change_pin FROM users ORDER BY username`).Scan(&flags).Error)
	require.Len(t, flags, 2)
	assert.Equal(t, 1, flags[0].MustChangePin, "legacy admin pin must be flagged")
	assert.Equal(t, 0, flags[1].MustChangePin)
}

func TestFailingMigrationRestoresSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.migrator(t).Run(ctx))
	require.NoError(t, f.db.Exec(`INSERT INTO products (sku, name, cost_usd, price_usd, stock) VALUES ('A', 'Alpha', 1, 2, 3)`).Error)
	before := f.products(t)

	boom := errors.New("boom")
	m := f.migrator(t, WithMigrations(Migration{
		Version: 6,
		Name:    "explodes",
		Up: func(ctx context.Context, tx *gorm.DB, _ time.Time) error {
			if err := tx.Exec(`CREATE TABLE scratch (id INTEGER)`).Error; err != nil {
				return err
			}
			if err := tx.Exec(`UPDATE products SET stock = 99`).Error; err != nil {
				return err
			}
			return boom
		},
	}))

	err := m.Run(ctx)
	require.Error(t, err)

	var failure *FailureError
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, 6, failure.Version)
	assert.Equal(t, "explodes", failure.Name)
	assert.True(t, failure.Restored)
	assert.NoError(t, failure.RestoreErr)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, apperror.ErrMigration)
	assert.Equal(t, apperror.KindMigration, apperror.KindOf(err))
	assert.Contains(t, err.Error(), "database restored from backup")

	version, err := m.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, version)
	assert.Equal(t, before, f.products(t))
	assert.False(t, f.db.Migrator().HasTable("scratch"))
}

func TestForeignKeyViolationAbortsRun(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.migrator(t).Run(ctx))

	m := f.migrator(t, WithMigrations(Migration{
		Version: 6,
		Name:    "orphan_line",
		Up: func(ctx context.Context, tx *gorm.DB, _ time.Time) error {
			return tx.Exec(`INSERT INTO sale_items (sale_id, product_id, qty, unit_price_usd) VALUES (42, 42, 1, 1)`).Error
		},
	}))

	err := m.Run(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "foreign key check failed")
	assert.Equal(t, int64(0), count(t, f.db, "sale_items"))

	version, err := m.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, version)
}

func TestFreshStoreFailureRollsBackWithoutSnapshot(t *testing.T) {
	f := newFixture(t)
	m := f.migrator(t, WithMigrations(Migration{
		Version: 6,
		Name:    "explodes",
		Up:      func(context.Context, *gorm.DB, time.Time) error { return errors.New("boom") },
	}))

	err := m.Run(context.Background())
	var failure *FailureError
	require.ErrorAs(t, err, &failure)
	assert.False(t, failure.Restored)
	assert.Contains(t, err.Error(), "rolled back")
	assert.False(t, f.db.Migrator().HasTable("products"))
}

func TestNewRejectsBadRegistrations(t *testing.T) {
	f := newFixture(t)
	noop := func(context.Context, *gorm.DB, time.Time) error { return nil }

	_, err := New(f.db, nil, nil, nil, WithMigrations(Migration{Version: 4, Name: "dup", Up: noop}))
	assert.Error(t, err)

	_, err = New(f.db, nil, nil, nil, WithMigrations(Migration{Version: 9, Name: "nil"}))
	assert.Error(t, err)

	_, err = New(nil, nil, nil, nil)
	assert.Error(t, err)
}

func TestFailureErrorMessages(t *testing.T) {
	cause := errors.New("disk I/O error")
	restoreErr := errors.New("no space left")

	err := &FailureError{Version: 3, Name: "x", Err: cause, RestoreErr: restoreErr}
	assert.Equal(t, "migration 3 (x) failed: disk I/O error; restore from backup failed: no space left", err.Error())
	assert.ErrorIs(t, err, cause)
}

func count(t *testing.T, conn *gorm.DB, table string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, conn.Raw(`SELECT COUNT(*) FROM ` + table).Scan(&n).Error)
	return n
}
