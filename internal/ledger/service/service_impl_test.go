package service_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	ledgerdomain "github.com/smallbiznis/stockbook/internal/ledger/domain"
	"github.com/smallbiznis/stockbook/internal/ledger/repository"
	"github.com/smallbiznis/stockbook/internal/ledger/service"
	obsmetrics "github.com/smallbiznis/stockbook/internal/observability/metrics"
	"github.com/smallbiznis/stockbook/internal/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newService(t *testing.T, m *obsmetrics.Metrics) (ledgerdomain.Service, *storetest.Store) {
	t.Helper()
	s := storetest.Open(t)
	return service.NewService(service.Params{DB: s.DB, Log: s.Log, Repo: repository.Provide(), ObsMetrics: m}), s
}

func entry(productID, delta, after int64) *ledgerdomain.Entry {
	return &ledgerdomain.Entry{
		Datetime:     storetest.Epoch,
		ProductID:    productID,
		MovementType: ledgerdomain.MovementAdjustment,
		QtyDelta:     delta,
		StockAfter:   after,
		UnitValueUSD: decimal.NewNullDecimal(decimal.RequireFromString("1.25")),
	}
}

func TestAppendValidates(t *testing.T) {
	svc, s := newService(t, nil)
	ctx := context.Background()
	id := s.InsertProduct(t, "L-1", 1, 2, 0)

	cases := []struct {
		name string
		e    *ledgerdomain.Entry
		want error
	}{
		{"nil", nil, ledgerdomain.ErrInvalidProduct},
		{"no product", entry(0, 1, 1), ledgerdomain.ErrInvalidProduct},
		{"zero delta", entry(id, 0, 1), ledgerdomain.ErrZeroDelta},
		{"negative after", entry(id, -1, -1), ledgerdomain.ErrNegativeStock},
		{"bad movement", func() *ledgerdomain.Entry { e := entry(id, 1, 1); e.MovementType = "gift"; return e }(), ledgerdomain.ErrInvalidMovement},
		{"no time", func() *ledgerdomain.Entry { e := entry(id, 1, 1); e.Datetime = time.Time{}; return e }(), ledgerdomain.ErrMissingTimestamp},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Append(ctx, s.DB, tc.e)
			assert.ErrorIs(t, err, tc.want)
		})
	}
	assert.Equal(t, int64(0), s.Count(t, "stock_ledger"))
}

func TestAppendRollsBackWithCaller(t *testing.T) {
	metrics, err := obsmetrics.New()
	require.NoError(t, err)
	svc, s := newService(t, metrics)
	ctx := context.Background()
	id := s.InsertProduct(t, "L-1", 1, 2, 0)

	err = s.UoW.Do(ctx, func(tx *gorm.DB) error {
		if err := tx.Exec(`UPDATE products SET stock = 3 WHERE id = ?`, id).Error; err != nil {
			return err
		}
		if _, err := svc.Append(ctx, tx, entry(id, 3, 3)); err != nil {
			return err
		}
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, int64(0), s.Count(t, "stock_ledger"))
	assert.Equal(t, int64(0), s.Stock(t, id))

	err = s.UoW.Do(ctx, func(tx *gorm.DB) error {
		if err := tx.Exec(`UPDATE products SET stock = 3 WHERE id = ?`, id).Error; err != nil {
			return err
		}
		_, err := svc.Append(ctx, tx, entry(id, 3, 3))
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), s.Count(t, "stock_ledger"))

	// Appends are counted when written, including the rolled-back one.
	expected := `
# HELP stockbook_ledger_entries_total Stock ledger rows appended, by movement type.
# TYPE stockbook_ledger_entries_total counter
stockbook_ledger_entries_total{movement_type="adjustment"} 2
`
	require.NoError(t, testutil.GatherAndCompare(metrics.Registry(), strings.NewReader(expected), "stockbook_ledger_entries_total"))
}

func TestRecentAndForProduct(t *testing.T) {
	svc, s := newService(t, nil)
	ctx := context.Background()
	a := s.InsertProduct(t, "A", 1, 2, 5)
	b := s.InsertProduct(t, "B", 1, 2, 7)

	_, err := svc.Append(ctx, s.DB, entry(a, -2, 3))
	require.NoError(t, err)

	recent, err := svc.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "A", recent[0].SKU)
	assert.Equal(t, int64(-2), recent[0].QtyDelta)
	assert.True(t, recent[0].UnitValueUSD.Valid)
	assert.Equal(t, "1.25", recent[0].UnitValueUSD.Decimal.String())
	assert.Equal(t, "B", recent[1].SKU)

	forB, err := svc.ForProduct(ctx, b, 0)
	require.NoError(t, err)
	require.Len(t, forB, 1)
	assert.Equal(t, int64(7), forB[0].StockAfter)
}

func TestVerifyReportsDrift(t *testing.T) {
	svc, s := newService(t, nil)
	ctx := context.Background()
	a := s.InsertProduct(t, "A", 1, 2, 5)
	s.InsertProduct(t, "B", 1, 2, 0)

	drift, err := svc.Verify(ctx)
	require.NoError(t, err)
	assert.Empty(t, drift)

	// Stock changed behind the ledger's back.
	s.MustExec(t, `UPDATE products SET stock = 9 WHERE id = ?`, a)

	drift, err = svc.Verify(ctx)
	require.NoError(t, err)
	require.Len(t, drift, 1)
	assert.Equal(t, ledgerdomain.Drift{ProductID: a, SKU: "A", Stock: 9, LedgerSum: 5}, drift[0])
}
