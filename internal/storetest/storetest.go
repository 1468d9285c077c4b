// Package storetest opens throwaway, fully migrated stores for package tests.
package storetest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/smallbiznis/stockbook/internal/backup"
	"github.com/smallbiznis/stockbook/internal/clock"
	"github.com/smallbiznis/stockbook/internal/migration"
	"github.com/smallbiznis/stockbook/pkg/db"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

// Epoch is the FakeClock start used by every store.
var Epoch = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

type Store struct {
	DB     *gorm.DB
	Path   string
	Clock  *clock.FakeClock
	Backup *backup.Service
	Log    *zap.Logger
	UoW    db.UnitOfWork
}

func Open(t testing.TB) *Store {
	t.Helper()

	dir := t.TempDir()
	log := zaptest.NewLogger(t)
	path := filepath.Join(dir, "stockbook.db")

	conn, err := db.Open(db.Config{Path: path, BusyTimeoutMS: 5000}, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(conn) })

	clk := clock.NewFakeClock(Epoch)
	bk := backup.New(backup.Params{
		DB:    conn,
		Log:   log,
		Clock: clk,
		Config: backup.Config{
			Dir:       filepath.Join(dir, "backups"),
			KeyPath:   filepath.Join(dir, "backup.key"),
			Retention: 3,
		},
	})

	m, err := migration.New(conn, bk, clk, log)
	require.NoError(t, err)
	require.NoError(t, m.Run(context.Background()))

	return &Store{
		DB:     conn,
		Path:   path,
		Clock:  clk,
		Backup: bk,
		Log:    log,
		UoW:    db.NewUnitOfWork(conn),
	}
}

// MustExec runs a raw statement, failing the test on error.
func (s *Store) MustExec(t testing.TB, sql string, args ...any) {
	t.Helper()
	require.NoError(t, s.DB.Exec(sql, args...).Error)
}

// InsertUser adds a user row directly and returns its id.
func (s *Store) InsertUser(t testing.TB, username, pin, role string) int64 {
	t.Helper()
	s.MustExec(t, `INSERT INTO users (username, pin, role, active, created_at) VALUES (?, ?, ?, 1, ?)`,
		username, pin, role, db.FormatTime(s.Clock.Now()))
	var id int64
	require.NoError(t, s.DB.Raw(`SELECT id FROM users WHERE username = ?`, username).Scan(&id).Error)
	return id
}

// InsertProduct adds a product with a matching opening ledger row.
func (s *Store) InsertProduct(t testing.TB, sku string, cost, price float64, stock int64) int64 {
	t.Helper()
	s.MustExec(t, `INSERT INTO products (sku, name, cost_usd, price_usd, stock, min_stock, active) VALUES (?, ?, ?, ?, ?, 0, 1)`,
		sku, "Product "+sku, cost, price, stock)
	var id int64
	require.NoError(t, s.DB.Raw(`SELECT id FROM products WHERE sku = ?`, sku).Scan(&id).Error)
	if stock > 0 {
		s.MustExec(t, `INSERT INTO stock_ledger (datetime, product_id, movement_type, qty_delta, stock_after, unit_value_usd, reference_type)
			VALUES (?, ?, 'adjustment', ?, ?, ?, 'product_create')`,
			db.FormatTime(s.Clock.Now()), id, stock, stock, cost)
	}
	return id
}

// Stock reads the current stock of a product.
func (s *Store) Stock(t testing.TB, productID int64) int64 {
	t.Helper()
	var stock int64
	require.NoError(t, s.DB.Raw(`SELECT stock FROM products WHERE id = ?`, productID).Scan(&stock).Error)
	return stock
}

// Count returns SELECT COUNT(*) for a table.
func (s *Store) Count(t testing.TB, table string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, s.DB.Raw(`SELECT COUNT(*) FROM `+table).Scan(&n).Error)
	return n
}
