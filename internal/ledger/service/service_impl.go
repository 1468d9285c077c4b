package service

import (
	"context"

	ledgerdomain "github.com/smallbiznis/stockbook/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/stockbook/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultLimit = 50
	maxLimit     = 1000
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Repo       ledgerdomain.Repository
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	repo       ledgerdomain.Repository
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) ledgerdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("ledger.service"),
		repo:       p.Repo,
		obsMetrics: p.ObsMetrics,
	}
}

// NewWriter exposes the service as the narrow append-only capability.
func NewWriter(svc ledgerdomain.Service) ledgerdomain.Writer {
	return svc
}

func (s *Service) Append(ctx context.Context, tx *gorm.DB, entry *ledgerdomain.Entry) (int64, error) {
	if err := validateEntry(entry); err != nil {
		return 0, err
	}
	id, err := s.repo.Insert(ctx, tx, entry)
	if err != nil {
		return 0, err
	}
	entry.ID = id
	s.obsMetrics.RecordLedgerEntries(string(entry.MovementType), 1)
	return id, nil
}

func validateEntry(entry *ledgerdomain.Entry) error {
	switch {
	case entry == nil || entry.ProductID <= 0:
		return ledgerdomain.ErrInvalidProduct
	case !entry.MovementType.Valid():
		return ledgerdomain.ErrInvalidMovement
	case entry.QtyDelta == 0:
		return ledgerdomain.ErrZeroDelta
	case entry.StockAfter < 0:
		return ledgerdomain.ErrNegativeStock
	case entry.Datetime.IsZero():
		return ledgerdomain.ErrMissingTimestamp
	}
	return nil
}

func (s *Service) Recent(ctx context.Context, limit int) ([]ledgerdomain.Entry, error) {
	return s.repo.Recent(ctx, s.db, clampLimit(limit))
}

func (s *Service) ForProduct(ctx context.Context, productID int64, limit int) ([]ledgerdomain.Entry, error) {
	return s.repo.ForProduct(ctx, s.db, productID, clampLimit(limit))
}

// Verify lists every product whose stock differs from its ledger sum. An
// empty result means the ledger and the aggregate agree.
func (s *Service) Verify(ctx context.Context) ([]ledgerdomain.Drift, error) {
	drift, err := s.repo.Drift(ctx, s.db)
	if err != nil {
		return nil, err
	}
	if len(drift) > 0 {
		s.log.Warn("ledger drift detected", zap.Int("products", len(drift)))
	}
	return drift, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}
