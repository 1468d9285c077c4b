package pdf

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/stockbook/internal/report/domain"
)

const dateLayout = "2006-01-02 15:04"

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func (p *PDFProvider) Render(ctx context.Context, doc *domain.Document) (io.Reader, error) {
	if doc == nil {
		return nil, fmt.Errorf("nil report document")
	}

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)
	s := doc.Summary

	m.AddRow(14,
		text.NewCol(8, doc.Title, props.Text{
			Size:  18,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
		text.NewCol(4, "Generated "+doc.GeneratedAt.UTC().Format(dateLayout)+" UTC", props.Text{
			Size:  8,
			Align: align.Right,
		}),
	)
	m.AddRow(8,
		text.NewCol(12, "Window: "+s.From.UTC().Format(dateLayout)+" to "+s.To.UTC().Format(dateLayout), props.Text{Size: 9}),
	)

	// Totals
	totals := []struct {
		label string
		value string
	}{
		{"Sales count", fmt.Sprintf("%d", s.SalesCount)},
		{"Revenue USD", money(s.RevenueUSD)},
		{"Revenue ARS", money(s.RevenueARS)},
		{"Gross margin USD", money(s.MarginUSD)},
		{"Purchases USD", money(s.PurchasesUSD)},
		{"Net USD (margin - purchases)", money(s.NetUSD())},
	}
	for _, row := range totals {
		m.AddRow(7,
			text.NewCol(6, row.label, props.Text{Size: 9}),
			text.NewCol(3, row.value, props.Text{Size: 9, Align: align.Right}),
			col.New(3),
		)
	}

	m.AddRow(12,
		text.NewCol(12, "Top products", props.Text{Size: 12, Style: fontstyle.Bold, Top: 4}),
	)
	m.AddRow(8,
		text.NewCol(2, "SKU", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(4, "Name", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, "Units", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Revenue", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Margin", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	for _, item := range s.TopProducts {
		m.AddRow(6,
			text.NewCol(2, item.SKU, props.Text{Size: 9}),
			text.NewCol(4, item.Name, props.Text{Size: 9}),
			text.NewCol(2, fmt.Sprintf("%d", item.UnitsSold), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, money(item.RevenueUSD), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, money(item.MarginUSD), props.Text{Size: 9, Align: align.Right}),
		)
	}

	if len(doc.Monthly) > 0 {
		m.AddRow(12,
			text.NewCol(12, "Monthly sales (USD)", props.Text{Size: 12, Style: fontstyle.Bold, Top: 4}),
		)
		for _, month := range doc.Monthly {
			m.AddRow(6,
				text.NewCol(3, month.Month, props.Text{Size: 9}),
				text.NewCol(3, money(month.TotalUSD), props.Text{Size: 9, Align: align.Right}),
				col.New(6),
			)
		}
	}

	if len(doc.Critical) > 0 {
		m.AddRow(12,
			text.NewCol(12, "Critical stock", props.Text{Size: 12, Style: fontstyle.Bold, Top: 4}),
		)
		m.AddRow(8,
			text.NewCol(2, "SKU", props.Text{Style: fontstyle.Bold, Size: 9}),
			text.NewCol(6, "Name", props.Text{Style: fontstyle.Bold, Size: 9}),
			text.NewCol(2, "Stock", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
			text.NewCol(2, "Minimum", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		)
		for _, item := range doc.Critical {
			m.AddRow(6,
				text.NewCol(2, item.SKU, props.Text{Size: 9}),
				text.NewCol(6, item.Name, props.Text{Size: 9}),
				text.NewCol(2, fmt.Sprintf("%d", item.Stock), props.Text{Size: 9, Align: align.Right}),
				text.NewCol(2, fmt.Sprintf("%d", item.MinStock), props.Text{Size: 9, Align: align.Right}),
			)
		}
	}

	out, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(out.GetBytes()), nil
}
