package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/stockbook/internal/clock"
	"github.com/smallbiznis/stockbook/internal/fxrate/domain"
	obsmetrics "github.com/smallbiznis/stockbook/internal/observability/metrics"
	"github.com/smallbiznis/stockbook/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	Repo       domain.Repository
	Sources    []domain.Source     `group:"fx_sources"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	clock      clock.Clock
	repo       domain.Repository
	sources    []domain.Source
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	sources := make([]domain.Source, 0, len(p.Sources))
	for _, src := range p.Sources {
		if src != nil {
			sources = append(sources, src)
		}
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("fxrate.service"),
		clock:      p.Clock,
		repo:       p.Repo,
		sources:    sources,
		obsMetrics: p.ObsMetrics,
	}
}

// NewProvider exposes the service as the narrow rate lookup capability.
func NewProvider(svc domain.Service) domain.RateProvider {
	return svc
}

// RateForDate returns the cached rate for day, else the first positive rate
// from the configured sources (cached on success), else the most recent
// cached rate of any day.
func (s *Service) RateForDate(ctx context.Context, day time.Time) (decimal.Decimal, error) {
	date := db.FormatDate(day)
	log := s.log.With(zap.String("date", date))

	cached, err := s.repo.Get(ctx, s.db, date)
	if err != nil {
		return decimal.Zero, err
	}
	if cached != nil && cached.USDARS.IsPositive() {
		return cached.USDARS, nil
	}

	for _, src := range s.sources {
		rate, err := src.Fetch(ctx, day)
		if err != nil {
			log.Warn("fx source failed", zap.String("source", src.Name()), zap.Error(err))
			continue
		}
		if !rate.IsPositive() {
			log.Warn("fx source returned non-positive rate", zap.String("source", src.Name()), zap.String("rate", rate.String()))
			continue
		}
		if err := s.repo.Upsert(ctx, s.db, &domain.Rate{
			Date:      date,
			USDARS:    rate,
			Source:    src.Name(),
			FetchedAt: s.clock.Now(),
		}); err != nil {
			log.Error("fx rate cache write failed", zap.Error(err))
		}
		return rate, nil
	}

	latest, err := s.repo.Latest(ctx, s.db)
	if err != nil {
		return decimal.Zero, err
	}
	if latest != nil && latest.USDARS.IsPositive() {
		log.Warn("using latest cached fx rate", zap.String("rate_date", latest.Date), zap.String("rate", latest.USDARS.String()))
		s.obsMetrics.RecordFxFallback()
		return latest.USDARS, nil
	}
	return decimal.Zero, domain.ErrUnavailable
}

func (s *Service) SetManual(ctx context.Context, day time.Time, rate decimal.Decimal) (*domain.Rate, error) {
	if !rate.IsPositive() {
		return nil, domain.ErrInvalidRate
	}
	r := &domain.Rate{
		Date:      db.FormatDate(day),
		USDARS:    rate,
		Source:    domain.SourceManual,
		FetchedAt: s.clock.Now(),
	}
	if err := s.repo.Upsert(ctx, s.db, r); err != nil {
		return nil, err
	}
	s.log.Info("manual fx rate set", zap.String("date", r.Date), zap.String("rate", rate.String()))
	return r, nil
}

func (s *Service) Latest(ctx context.Context) (*domain.Rate, error) {
	r, err := s.repo.Latest(ctx, s.db)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, domain.ErrUnavailable
	}
	return r, nil
}
