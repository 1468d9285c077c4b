package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/stockbook/internal/apperror"
	fxdomain "github.com/smallbiznis/stockbook/internal/fxrate/domain"
	ledgerdomain "github.com/smallbiznis/stockbook/internal/ledger/domain"
	ledgerrepo "github.com/smallbiznis/stockbook/internal/ledger/repository"
	ledgerservice "github.com/smallbiznis/stockbook/internal/ledger/service"
	productrepo "github.com/smallbiznis/stockbook/internal/product/repository"
	"github.com/smallbiznis/stockbook/internal/sale/domain"
	"github.com/smallbiznis/stockbook/internal/sale/repository"
	"github.com/smallbiznis/stockbook/internal/sale/service"
	"github.com/smallbiznis/stockbook/internal/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type rateMock struct {
	mock.Mock
}

func (m *rateMock) RateForDate(ctx context.Context, day time.Time) (decimal.Decimal, error) {
	args := m.Called(ctx, day)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

// failingWriter fails the nth append.
type failingWriter struct {
	next  ledgerdomain.Writer
	failN int
	calls int
}

func (w *failingWriter) Append(ctx context.Context, tx *gorm.DB, e *ledgerdomain.Entry) (int64, error) {
	w.calls++
	if w.calls == w.failN {
		return 0, errors.New("ledger unavailable")
	}
	return w.next.Append(ctx, tx, e)
}

type harness struct {
	store  *storetest.Store
	svc    domain.Service
	ledger ledgerdomain.Service
	rates  *rateMock
}

func newHarness(t *testing.T, wrap func(ledgerdomain.Writer) ledgerdomain.Writer) *harness {
	t.Helper()
	s := storetest.Open(t)
	ledger := ledgerservice.NewService(ledgerservice.Params{DB: s.DB, Log: s.Log, Repo: ledgerrepo.Provide()})
	var writer ledgerdomain.Writer = ledger
	if wrap != nil {
		writer = wrap(writer)
	}
	rates := &rateMock{}
	svc := service.New(service.Params{
		DB:       s.DB,
		Log:      s.Log,
		Clock:    s.Clock,
		Repo:     repository.Provide(),
		Products: productrepo.Provide(),
		Ledger:   writer,
		Rates:    rates,
		UoW:      s.UoW,
	})
	return &harness{store: s, svc: svc, ledger: ledger, rates: rates}
}

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func line(productID, qty int64, price string) domain.CartLine {
	return domain.CartLine{ProductID: productID, Qty: qty, UnitPriceUSD: dec(price)}
}

// assertNothingWritten checks that a rejected sale left no trace.
func (h *harness) assertNothingWritten(t *testing.T, productID, stock int64) {
	t.Helper()
	assert.EqualValues(t, 0, h.store.Count(t, "sales"))
	assert.EqualValues(t, 0, h.store.Count(t, "sale_items"))
	assert.EqualValues(t, stock, h.store.Stock(t, productID))
	var n int64
	require.NoError(t, h.store.DB.Raw(`SELECT COUNT(*) FROM stock_ledger WHERE movement_type = 'sale'`).Scan(&n).Error)
	assert.EqualValues(t, 0, n)
}

func TestCreateCommitsSale(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	actor := h.store.InsertUser(t, "clerk", "x", "seller")
	a := h.store.InsertProduct(t, "A", 4, 10, 10)
	b := h.store.InsertProduct(t, "B", 1, 3, 5)
	h.rates.On("RateForDate", mock.Anything, mock.Anything).Return(dec("1000"), nil).Once()

	id, err := h.svc.Create(ctx, domain.CreateRequest{
		Lines:       []domain.CartLine{line(a, 2, "10"), line(b, 1, "3.5"), line(a, 1, "9")},
		Notes:       "  walk-in  ",
		ActorUserID: &actor,
	})
	require.NoError(t, err)
	h.rates.AssertExpectations(t)

	sale, err := h.svc.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, sale.TotalUSD.Equal(dec("32.5")), sale.TotalUSD.String())
	assert.True(t, sale.FxRateUsed.Equal(dec("1000")))
	assert.True(t, sale.TotalARS.Equal(dec("32500")))
	require.NotNil(t, sale.Notes)
	assert.Equal(t, "walk-in", *sale.Notes)
	require.NotNil(t, sale.ActorUserID)
	assert.Equal(t, actor, *sale.ActorUserID)
	assert.True(t, sale.Datetime.Equal(storetest.Epoch))

	assert.EqualValues(t, 7, h.store.Stock(t, a))
	assert.EqualValues(t, 4, h.store.Stock(t, b))

	lines, err := h.svc.Lines(ctx, id)
	require.NoError(t, err)
	require.Len(t, lines, 3)
	assert.Equal(t, "A", lines[0].SKU)
	assert.True(t, lines[0].UnitCostUSD.Equal(dec("4")))
	assert.True(t, lines[0].TotalUSD().Equal(dec("20")))
	assert.True(t, lines[0].MarginUSD().Equal(dec("12")))
	assert.True(t, lines[1].MarginUSD().Equal(dec("2.5")))

	entries, err := h.ledger.ForProduct(ctx, a, 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, ledgerdomain.MovementSale, entries[0].MovementType)
	assert.EqualValues(t, -1, entries[0].QtyDelta)
	assert.EqualValues(t, 7, entries[0].StockAfter)
	assert.EqualValues(t, -2, entries[1].QtyDelta)
	assert.EqualValues(t, 8, entries[1].StockAfter)
	require.NotNil(t, entries[0].ReferenceID)
	assert.Equal(t, id, *entries[0].ReferenceID)

	drift, err := h.ledger.Verify(ctx)
	require.NoError(t, err)
	assert.Empty(t, drift)
}

func TestCreateRejectsAggregateOversell(t *testing.T) {
	h := newHarness(t, nil)
	a := h.store.InsertProduct(t, "A", 4, 10, 5)

	_, err := h.svc.Create(context.Background(), domain.CreateRequest{
		Lines: []domain.CartLine{line(a, 3, "10"), line(a, 3, "10")},
	})
	require.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.Equal(t, apperror.KindInsufficientStock, apperror.KindOf(err))
	assert.Contains(t, err.Error(), "available 5, requested 6")
	h.rates.AssertNotCalled(t, "RateForDate", mock.Anything, mock.Anything)
	h.assertNothingWritten(t, a, 5)
}

func TestCreateValidation(t *testing.T) {
	h := newHarness(t, nil)
	a := h.store.InsertProduct(t, "A", 4, 10, 5)
	gone := h.store.InsertProduct(t, "GONE", 4, 10, 0)
	h.store.MustExec(t, `UPDATE products SET active = 0 WHERE id = ?`, gone)

	cases := []struct {
		name  string
		lines []domain.CartLine
		want  error
	}{
		{"empty", nil, domain.ErrEmptyCart},
		{"zero qty", []domain.CartLine{line(a, 0, "10")}, domain.ErrInvalidQty},
		{"negative qty", []domain.CartLine{line(a, -1, "10")}, domain.ErrInvalidQty},
		{"zero price", []domain.CartLine{line(a, 1, "0")}, domain.ErrInvalidUnitPrice},
		{"negative price", []domain.CartLine{line(a, 1, "-2")}, domain.ErrInvalidUnitPrice},
		{"unknown product", []domain.CartLine{line(9999, 1, "10")}, domain.ErrProductNotFound},
		{"inactive product", []domain.CartLine{line(gone, 1, "10")}, domain.ErrProductNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.svc.Create(context.Background(), domain.CreateRequest{Lines: tc.lines})
			assert.ErrorIs(t, err, tc.want)
		})
	}
	h.assertNothingWritten(t, a, 5)
}

func TestCreateFxUnavailable(t *testing.T) {
	cases := []struct {
		name string
		rate decimal.Decimal
		err  error
	}{
		{"provider unavailable", decimal.Zero, fxdomain.ErrUnavailable},
		{"provider failure", decimal.Zero, errors.New("disk I/O error")},
		{"zero rate", decimal.Zero, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, nil)
			a := h.store.InsertProduct(t, "A", 4, 10, 5)
			h.rates.On("RateForDate", mock.Anything, mock.Anything).Return(tc.rate, tc.err)

			_, err := h.svc.Create(context.Background(), domain.CreateRequest{Lines: []domain.CartLine{line(a, 1, "10")}})
			require.Error(t, err)
			assert.ErrorIs(t, err, apperror.ErrFxUnavailable)
			assert.Equal(t, apperror.KindFxUnavailable, apperror.KindOf(err))
			h.assertNothingWritten(t, a, 5)
		})
	}
}

func TestCreateRollsBackWhenLedgerFails(t *testing.T) {
	h := newHarness(t, func(w ledgerdomain.Writer) ledgerdomain.Writer {
		return &failingWriter{next: w, failN: 2}
	})
	a := h.store.InsertProduct(t, "A", 4, 10, 5)
	b := h.store.InsertProduct(t, "B", 4, 10, 5)
	h.rates.On("RateForDate", mock.Anything, mock.Anything).Return(dec("900"), nil)

	_, err := h.svc.Create(context.Background(), domain.CreateRequest{
		Lines: []domain.CartLine{line(a, 1, "10"), line(b, 2, "10")},
	})
	require.EqualError(t, err, "ledger unavailable")
	h.assertNothingWritten(t, a, 5)
	assert.EqualValues(t, 5, h.store.Stock(t, b))
}

func TestCreateGuardsStockChangedAfterValidation(t *testing.T) {
	h := newHarness(t, nil)
	a := h.store.InsertProduct(t, "A", 4, 10, 5)
	// Another writer takes stock between validation and commit.
	h.rates.On("RateForDate", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { h.store.MustExec(t, `UPDATE products SET stock = 1 WHERE id = ?`, a) }).
		Return(dec("900"), nil)

	_, err := h.svc.Create(context.Background(), domain.CreateRequest{Lines: []domain.CartLine{line(a, 3, "10")}})
	require.ErrorIs(t, err, domain.ErrInsufficientStock)
	h.assertNothingWritten(t, a, 1)
}

func TestLineKeepsCostAtSaleTime(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	a := h.store.InsertProduct(t, "A", 10, 40, 5)
	h.rates.On("RateForDate", mock.Anything, mock.Anything).Return(dec("900"), nil)

	id, err := h.svc.Create(ctx, domain.CreateRequest{Lines: []domain.CartLine{line(a, 1, "40")}})
	require.NoError(t, err)
	h.store.MustExec(t, `UPDATE products SET cost_usd = 25 WHERE id = ?`, a)

	lines, err := h.svc.Lines(ctx, id)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.True(t, lines[0].UnitCostUSD.Equal(dec("10")))
	assert.True(t, lines[0].MarginUSD().Equal(dec("30")))
}

func TestReads(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	a := h.store.InsertProduct(t, "A", 4, 10, 10)
	h.rates.On("RateForDate", mock.Anything, mock.Anything).Return(dec("900"), nil)

	first, err := h.svc.Create(ctx, domain.CreateRequest{Lines: []domain.CartLine{line(a, 1, "10")}})
	require.NoError(t, err)
	h.store.Clock.Advance(48 * time.Hour)
	second, err := h.svc.Create(ctx, domain.CreateRequest{Lines: []domain.CartLine{line(a, 1, "10")}})
	require.NoError(t, err)

	all, err := h.svc.ListBetween(ctx, storetest.Epoch, storetest.Epoch.Add(72*time.Hour))
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second, all[0].ID)
	assert.Equal(t, first, all[1].ID)

	day, err := h.svc.ListBetween(ctx, storetest.Epoch, storetest.Epoch.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, day, 1)
	assert.Equal(t, first, day[0].ID)

	_, err = h.svc.ListBetween(ctx, storetest.Epoch.Add(time.Hour), storetest.Epoch)
	assert.ErrorIs(t, err, domain.ErrInvalidRange)

	_, err = h.svc.Get(ctx, 4242)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = h.svc.Lines(ctx, 4242)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}
