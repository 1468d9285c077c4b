package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/stockbook/internal/clock"
	ledgerdomain "github.com/smallbiznis/stockbook/internal/ledger/domain"
	"github.com/smallbiznis/stockbook/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/stockbook/internal/observability/metrics"
	productdomain "github.com/smallbiznis/stockbook/internal/product/domain"
	"github.com/smallbiznis/stockbook/internal/purchase/domain"
	"github.com/smallbiznis/stockbook/pkg/db"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// costPlaces is the precision kept for weighted average unit costs.
const costPlaces = 6

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	Repo       domain.Repository
	Products   productdomain.Repository
	Ledger     ledgerdomain.Writer
	UoW        db.UnitOfWork
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	clock      clock.Clock
	repo       domain.Repository
	products   productdomain.Repository
	ledger     ledgerdomain.Writer
	uow        db.UnitOfWork
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("purchase.service"),
		clock:      p.Clock,
		repo:       p.Repo,
		products:   p.Products,
		ledger:     p.Ledger,
		uow:        p.UoW,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (int64, error) {
	ctx, span := otel.Tracer("stockbook/purchase").Start(ctx, "purchase.Create")
	defer span.End()
	span.SetAttributes(attribute.Int("purchase.lines", len(req.Lines)))

	ctx, log := logger.WithOperation(ctx, s.log)
	log = logger.WithActor(log, req.ActorUserID)

	if err := s.validate(ctx, req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid purchase")
		return 0, err
	}

	total := decimal.Zero
	for _, line := range req.Lines {
		total = total.Add(line.UnitCostUSD.Mul(decimal.NewFromInt(line.Qty)))
	}
	header := &domain.Purchase{
		Datetime:    s.clock.Now(),
		Vendor:      trimmedOrNil(req.Vendor),
		TotalUSD:    total,
		Notes:       trimmedOrNil(req.Notes),
		ActorUserID: req.ActorUserID,
	}

	err := s.uow.Do(ctx, func(tx *gorm.DB) error {
		id, err := s.repo.CreateHeader(ctx, tx, header)
		if err != nil {
			return fmt.Errorf("insert purchase header: %w", err)
		}
		header.ID = id

		for _, line := range req.Lines {
			if err := s.applyLine(ctx, tx, header, line); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "purchase rolled back")
		log.Warn("purchase rolled back", zap.Error(err))
		return 0, err
	}

	span.SetAttributes(attribute.Int64("purchase.id", header.ID))
	s.obsMetrics.RecordPurchaseCommitted()
	log.Info("purchase created",
		zap.Int64("purchase_id", header.ID),
		zap.Int("lines", len(req.Lines)),
		zap.String("total_usd", total.String()),
	)
	return header.ID, nil
}

func (s *Service) validate(ctx context.Context, req domain.CreateRequest) error {
	if len(req.Lines) == 0 {
		return domain.ErrEmptyCart
	}
	for _, line := range req.Lines {
		if line.Qty <= 0 {
			return domain.ErrInvalidQty
		}
		if line.UnitCostUSD.IsNegative() {
			return domain.ErrInvalidUnitCost
		}
		item, err := s.products.FindByID(ctx, s.db, line.ProductID)
		if err != nil {
			return err
		}
		if item == nil || !item.Active {
			return fmt.Errorf("%w (id %d)", domain.ErrProductNotFound, line.ProductID)
		}
	}
	return nil
}

// applyLine folds one line into the product's stock and weighted average
// cost. The product is re-read on tx so earlier lines are visible.
func (s *Service) applyLine(ctx context.Context, tx *gorm.DB, header *domain.Purchase, line domain.RestockLine) error {
	item, err := s.products.FindByID(ctx, tx, line.ProductID)
	if err != nil {
		return err
	}
	if item == nil || !item.Active {
		return fmt.Errorf("%w (id %d)", domain.ErrProductNotFound, line.ProductID)
	}

	newStock := item.Stock + line.Qty
	newCost := WeightedAverage(item.Stock, item.CostUSD, line.Qty, line.UnitCostUSD)

	if err := s.products.SetStockAndCost(ctx, tx, item.ID, newStock, newCost); err != nil {
		return fmt.Errorf("update product stock: %w", err)
	}
	if _, err := s.repo.InsertLine(ctx, tx, &domain.Line{
		PurchaseID:  header.ID,
		ProductID:   item.ID,
		Qty:         line.Qty,
		UnitCostUSD: line.UnitCostUSD,
	}); err != nil {
		return fmt.Errorf("insert purchase line: %w", err)
	}

	purchaseID := header.ID
	_, err = s.ledger.Append(ctx, tx, &ledgerdomain.Entry{
		Datetime:      header.Datetime,
		ProductID:     item.ID,
		MovementType:  ledgerdomain.MovementPurchase,
		QtyDelta:      line.Qty,
		StockAfter:    newStock,
		UnitValueUSD:  decimal.NewNullDecimal(line.UnitCostUSD),
		ReferenceType: ledgerdomain.ReferencePurchase,
		ReferenceID:   &purchaseID,
		ActorUserID:   header.ActorUserID,
	})
	return err
}

// WeightedAverage returns (oldStock*oldCost + qty*unitCost) / (oldStock+qty),
// or unitCost when the resulting stock is zero.
func WeightedAverage(oldStock int64, oldCost decimal.Decimal, qty int64, unitCost decimal.Decimal) decimal.Decimal {
	newStock := oldStock + qty
	if newStock == 0 {
		return unitCost
	}
	value := oldCost.Mul(decimal.NewFromInt(oldStock)).Add(unitCost.Mul(decimal.NewFromInt(qty)))
	return value.Div(decimal.NewFromInt(newStock)).Round(costPlaces)
}

func (s *Service) Get(ctx context.Context, id int64) (*domain.Purchase, error) {
	p, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, domain.ErrNotFound
	}
	return p, nil
}

func (s *Service) ListBetween(ctx context.Context, from, to time.Time) ([]domain.Purchase, error) {
	if from.After(to) {
		return nil, domain.ErrInvalidRange
	}
	return s.repo.ListBetween(ctx, s.db, db.FormatTime(from), db.FormatTime(to))
}

func (s *Service) Lines(ctx context.Context, purchaseID int64) ([]domain.Line, error) {
	if _, err := s.Get(ctx, purchaseID); err != nil {
		return nil, err
	}
	return s.repo.Lines(ctx, s.db, purchaseID)
}

func trimmedOrNil(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
