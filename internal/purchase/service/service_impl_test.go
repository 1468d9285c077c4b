package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	ledgerdomain "github.com/smallbiznis/stockbook/internal/ledger/domain"
	ledgerrepo "github.com/smallbiznis/stockbook/internal/ledger/repository"
	ledgerservice "github.com/smallbiznis/stockbook/internal/ledger/service"
	productrepo "github.com/smallbiznis/stockbook/internal/product/repository"
	"github.com/smallbiznis/stockbook/internal/purchase/domain"
	"github.com/smallbiznis/stockbook/internal/purchase/repository"
	"github.com/smallbiznis/stockbook/internal/purchase/service"
	saledomain "github.com/smallbiznis/stockbook/internal/sale/domain"
	salerepo "github.com/smallbiznis/stockbook/internal/sale/repository"
	saleservice "github.com/smallbiznis/stockbook/internal/sale/service"
	"github.com/smallbiznis/stockbook/internal/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixedRate struct{ rate decimal.Decimal }

func (f fixedRate) RateForDate(context.Context, time.Time) (decimal.Decimal, error) {
	return f.rate, nil
}

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
	sales  saledomain.Service
	ledger ledgerdomain.Service
}

func newHarness(t *testing.T, writer func(ledgerdomain.Writer) ledgerdomain.Writer) *harness {
	t.Helper()
	s := storetest.Open(t)
	ledger := ledgerservice.NewService(ledgerservice.Params{DB: s.DB, Log: s.Log, Repo: ledgerrepo.Provide()})
	var w ledgerdomain.Writer = ledger
	if writer != nil {
		w = writer(w)
	}
	products := productrepo.Provide()
	svc := service.New(service.Params{
		DB:       s.DB,
		Log:      s.Log,
		Clock:    s.Clock,
		Repo:     repository.Provide(),
		Products: products,
		Ledger:   w,
		UoW:      s.UoW,
	})
	sales := saleservice.New(saleservice.Params{
		DB:       s.DB,
		Log:      s.Log,
		Clock:    s.Clock,
		Repo:     salerepo.Provide(),
		Products: products,
		Ledger:   ledger,
		Rates:    fixedRate{rate: dec("1000")},
		UoW:      s.UoW,
	})
	return &harness{store: s, svc: svc, sales: sales, ledger: ledger}
}

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func restock(productID, qty int64, cost string) domain.RestockLine {
	return domain.RestockLine{ProductID: productID, Qty: qty, UnitCostUSD: dec(cost)}
}

func (h *harness) cost(t *testing.T, productID int64) decimal.Decimal {
	t.Helper()
	item, err := productrepo.Provide().FindByID(context.Background(), h.store.DB, productID)
	require.NoError(t, err)
	require.NotNil(t, item)
	return item.CostUSD
}

func TestCreateWeightedAverage(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	a := h.store.InsertProduct(t, "A", 10, 30, 10)

	id, err := h.svc.Create(ctx, domain.CreateRequest{
		Vendor: "  Acme  ",
		Lines:  []domain.RestockLine{restock(a, 10, "20")},
	})
	require.NoError(t, err)

	assert.EqualValues(t, 20, h.store.Stock(t, a))
	assert.True(t, h.cost(t, a).Equal(dec("15")), h.cost(t, a).String())

	p, err := h.svc.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, p.Vendor)
	assert.Equal(t, "Acme", *p.Vendor)
	assert.Nil(t, p.Notes)
	assert.True(t, p.TotalUSD.Equal(dec("200")))

	entries, err := h.ledger.ForProduct(ctx, a, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ledgerdomain.MovementPurchase, entries[0].MovementType)
	assert.EqualValues(t, 10, entries[0].QtyDelta)
	assert.EqualValues(t, 20, entries[0].StockAfter)
	assert.True(t, entries[0].UnitValueUSD.Decimal.Equal(dec("20")))
}

func TestCreateAppliesLinesInOrder(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	a := h.store.InsertProduct(t, "A", 0, 30, 0)

	id, err := h.svc.Create(ctx, domain.CreateRequest{
		Lines: []domain.RestockLine{restock(a, 10, "10"), restock(a, 10, "20"), restock(a, 5, "0")},
	})
	require.NoError(t, err)

	assert.EqualValues(t, 25, h.store.Stock(t, a))
	assert.True(t, h.cost(t, a).Equal(dec("12")), h.cost(t, a).String())

	entries, err := h.ledger.ForProduct(ctx, a, 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.EqualValues(t, 25, entries[0].StockAfter)
	assert.EqualValues(t, 20, entries[1].StockAfter)
	assert.EqualValues(t, 10, entries[2].StockAfter)

	lines, err := h.svc.Lines(ctx, id)
	require.NoError(t, err)
	require.Len(t, lines, 3)
	assert.True(t, lines[1].TotalUSD().Equal(dec("200")))
	assert.True(t, lines[2].UnitCostUSD.IsZero())
}

func TestWeightedAverage(t *testing.T) {
	cases := []struct {
		name     string
		oldStock int64
		oldCost  string
		qty      int64
		unitCost string
		want     string
	}{
		{"empty product takes unit cost", 0, "99", 4, "2.5", "2.5"},
		{"even split", 10, "10", 10, "20", "15"},
		{"rounded to six places", 2, "1", 1, "2", "1.333333"},
		{"free units dilute cost", 3, "9", 3, "0", "4.5"},
		{"zero resulting stock", 0, "5", 0, "7", "7"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := service.WeightedAverage(tc.oldStock, dec(tc.oldCost), tc.qty, dec(tc.unitCost))
			assert.True(t, got.Equal(dec(tc.want)), got.String())
		})
	}
}

func TestSaleMarginUsesCostAfterPurchase(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	a := h.store.InsertProduct(t, "A", 10, 30, 10)

	_, err := h.svc.Create(ctx, domain.CreateRequest{Lines: []domain.RestockLine{restock(a, 10, "20")}})
	require.NoError(t, err)

	saleID, err := h.sales.Create(ctx, saledomain.CreateRequest{
		Lines: []saledomain.CartLine{{ProductID: a, Qty: 2, UnitPriceUSD: dec("30")}},
	})
	require.NoError(t, err)

	lines, err := h.sales.Lines(ctx, saleID)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.True(t, lines[0].UnitCostUSD.Equal(dec("15")))
	assert.True(t, lines[0].MarginUSD().Equal(dec("30")))
}

func TestCreateValidation(t *testing.T) {
	h := newHarness(t, nil)
	a := h.store.InsertProduct(t, "A", 10, 30, 10)
	gone := h.store.InsertProduct(t, "GONE", 10, 30, 0)
	h.store.MustExec(t, `UPDATE products SET active = 0 WHERE id = ?`, gone)

	cases := []struct {
		name  string
		lines []domain.RestockLine
		want  error
	}{
		{"empty", nil, domain.ErrEmptyCart},
		{"zero qty", []domain.RestockLine{restock(a, 0, "1")}, domain.ErrInvalidQty},
		{"negative cost", []domain.RestockLine{restock(a, 1, "-0.01")}, domain.ErrInvalidUnitCost},
		{"unknown product", []domain.RestockLine{restock(a, 1, "1"), restock(777, 1, "1")}, domain.ErrProductNotFound},
		{"inactive product", []domain.RestockLine{restock(gone, 1, "1")}, domain.ErrProductNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.svc.Create(context.Background(), domain.CreateRequest{Lines: tc.lines})
			assert.ErrorIs(t, err, tc.want)
		})
	}
	assert.EqualValues(t, 0, h.store.Count(t, "purchases"))
	assert.EqualValues(t, 10, h.store.Stock(t, a))
}

func TestCreateRollsBackWhenLedgerFails(t *testing.T) {
	h := newHarness(t, func(w ledgerdomain.Writer) ledgerdomain.Writer {
		return &failingWriter{next: w, failN: 2}
	})
	a := h.store.InsertProduct(t, "A", 10, 30, 10)
	b := h.store.InsertProduct(t, "B", 5, 30, 4)

	_, err := h.svc.Create(context.Background(), domain.CreateRequest{
		Lines: []domain.RestockLine{restock(a, 10, "20"), restock(b, 4, "7")},
	})
	require.EqualError(t, err, "ledger unavailable")

	assert.EqualValues(t, 0, h.store.Count(t, "purchases"))
	assert.EqualValues(t, 0, h.store.Count(t, "purchase_items"))
	assert.EqualValues(t, 10, h.store.Stock(t, a))
	assert.EqualValues(t, 4, h.store.Stock(t, b))
	assert.True(t, h.cost(t, a).Equal(dec("10")))
	assert.EqualValues(t, 2, h.store.Count(t, "stock_ledger"))
}

func TestConcurrentSalesAndPurchases(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	a := h.store.InsertProduct(t, "A", 10, 30, 50)

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers*2)
	for i := 0; i < workers; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := h.sales.Create(ctx, saledomain.CreateRequest{
				Lines: []saledomain.CartLine{{ProductID: a, Qty: 3, UnitPriceUSD: dec("30")}},
			})
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := h.svc.Create(ctx, domain.CreateRequest{Lines: []domain.RestockLine{restock(a, 2, "12")}})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.EqualValues(t, 50-workers*3+workers*2, h.store.Stock(t, a))
	drift, err := h.ledger.Verify(ctx)
	require.NoError(t, err)
	assert.Empty(t, drift)
}

func TestReads(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	a := h.store.InsertProduct(t, "A", 10, 30, 0)

	first, err := h.svc.Create(ctx, domain.CreateRequest{Notes: "first", Lines: []domain.RestockLine{restock(a, 1, "1")}})
	require.NoError(t, err)
	h.store.Clock.Advance(24 * time.Hour)
	_, err = h.svc.Create(ctx, domain.CreateRequest{Lines: []domain.RestockLine{restock(a, 1, "1")}})
	require.NoError(t, err)

	list, err := h.svc.ListBetween(ctx, storetest.Epoch, storetest.Epoch.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, first, list[0].ID)
	require.NotNil(t, list[0].Notes)
	assert.Equal(t, "first", *list[0].Notes)

	_, err = h.svc.Get(ctx, 999)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = h.svc.ListBetween(ctx, storetest.Epoch.Add(time.Hour), storetest.Epoch)
	assert.ErrorIs(t, err, domain.ErrInvalidRange)
}
