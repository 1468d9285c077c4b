package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/stockbook/internal/apperror"
)

// itemSpec is one --item flag: <id|sku>:<qty>[:<unit_usd>]. A missing unit
// value falls back to the product's list price (sales) or current cost
// (purchases).
type itemSpec struct {
	Ref     string
	Qty     int64
	UnitUSD *decimal.Decimal
}

func parseItem(raw string) (itemSpec, error) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) < 2 || len(parts) > 3 || strings.TrimSpace(parts[0]) == "" {
		return itemSpec{}, apperror.Validation(fmt.Sprintf("invalid item %q: expected <id|sku>:<qty>[:<unit_usd>]", raw))
	}
	qty, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
	if err != nil {
		return itemSpec{}, apperror.Validation(fmt.Sprintf("invalid quantity in item %q", raw))
	}
	item := itemSpec{Ref: strings.TrimSpace(parts[0]), Qty: qty}
	if len(parts) == 3 {
		unit, err := parseMoney("unit value", parts[2])
		if err != nil {
			return itemSpec{}, err
		}
		item.UnitUSD = &unit
	}
	return item, nil
}

func parseItems(raw []string) ([]itemSpec, error) {
	items := make([]itemSpec, 0, len(raw))
	for _, r := range raw {
		item, err := parseItem(r)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// dateRange turns inclusive --from/--to days into a half-open UTC range.
// from defaults to the first day of the current month and to to today.
func dateRange(from, to string, now time.Time) (time.Time, time.Time, error) {
	now = now.UTC()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	var err error
	if from != "" {
		if start, err = parseDay(from); err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	if to != "" {
		if end, err = parseDay(to); err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	return start, end.AddDate(0, 0, 1), nil
}
