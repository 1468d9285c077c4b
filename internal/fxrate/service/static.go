package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/stockbook/internal/config"
	"github.com/smallbiznis/stockbook/internal/fxrate/domain"
	"go.uber.org/zap"
)

// StaticSource serves one operator-configured rate for every day.
type StaticSource struct {
	rate decimal.Decimal
}

func (s StaticSource) Name() string { return "static" }

func (s StaticSource) Fetch(context.Context, time.Time) (decimal.Decimal, error) {
	return s.rate, nil
}

// NewStaticSource builds a source from FX_STATIC_USD_ARS. It returns nil when
// the variable is unset or unparsable.
func NewStaticSource(cfg config.Config, log *zap.Logger) domain.Source {
	if cfg.FXStaticRate == "" {
		return nil
	}
	rate, err := decimal.NewFromString(cfg.FXStaticRate)
	if err != nil || !rate.IsPositive() {
		log.Warn("ignoring invalid FX_STATIC_USD_ARS", zap.String("value", cfg.FXStaticRate))
		return nil
	}
	return StaticSource{rate: rate}
}
