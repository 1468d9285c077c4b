package pdf

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/stockbook/internal/report/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderProducesPDF(t *testing.T) {
	at := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
	doc := &domain.Document{
		Title:       "Sales report",
		GeneratedAt: at,
		Summary: domain.Summary{
			From:       at.AddDate(0, -1, 0),
			To:         at,
			SalesCount: 3,
			RevenueUSD: decimal.RequireFromString("120.50"),
			RevenueARS: decimal.RequireFromString("108450"),
			MarginUSD:  decimal.RequireFromString("40"),
			TopProducts: []domain.TopProduct{
				{ProductID: 1, SKU: "A", Name: "Alpha", UnitsSold: 4, RevenueUSD: decimal.NewFromInt(80), MarginUSD: decimal.NewFromInt(30)},
			},
		},
		Monthly:  []domain.MonthlyTotal{{Month: "2024-03", TotalUSD: decimal.RequireFromString("120.5")}},
		Critical: []domain.CriticalItem{{ProductID: 2, SKU: "B", Name: "Beta", Stock: 1, MinStock: 5}},
	}

	r, err := New().Render(context.Background(), doc)
	require.NoError(t, err)
	out, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestRenderRejectsNil(t *testing.T) {
	_, err := New().Render(context.Background(), nil)
	assert.Error(t, err)
}
