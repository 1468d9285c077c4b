package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/stockbook/internal/apperror"
	"github.com/smallbiznis/stockbook/internal/clock"
	fxdomain "github.com/smallbiznis/stockbook/internal/fxrate/domain"
	ledgerdomain "github.com/smallbiznis/stockbook/internal/ledger/domain"
	"github.com/smallbiznis/stockbook/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/stockbook/internal/observability/metrics"
	productdomain "github.com/smallbiznis/stockbook/internal/product/domain"
	"github.com/smallbiznis/stockbook/internal/sale/domain"
	"github.com/smallbiznis/stockbook/pkg/db"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
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
	Products   productdomain.Repository
	Ledger     ledgerdomain.Writer
	Rates      fxdomain.RateProvider
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
	rates      fxdomain.RateProvider
	uow        db.UnitOfWork
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("sale.service"),
		clock:      p.Clock,
		repo:       p.Repo,
		products:   p.Products,
		ledger:     p.Ledger,
		rates:      p.Rates,
		uow:        p.UoW,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (int64, error) {
	ctx, span := otel.Tracer("stockbook/sale").Start(ctx, "sale.Create")
	defer span.End()
	span.SetAttributes(attribute.Int("sale.lines", len(req.Lines)))

	ctx, log := logger.WithOperation(ctx, s.log)
	log = logger.WithActor(log, req.ActorUserID)

	id, err := s.create(ctx, req)
	if err != nil {
		kind := apperror.KindOf(err)
		s.obsMetrics.RecordSaleRejected(string(kind))
		span.RecordError(err)
		span.SetStatus(codes.Error, string(kind))
		log.Warn("sale rejected", zap.String("kind", string(kind)), zap.Error(err))
		return 0, err
	}

	span.SetAttributes(attribute.Int64("sale.id", id))
	s.obsMetrics.RecordSaleCommitted()
	log.Info("sale created", zap.Int64("sale_id", id), zap.Int("lines", len(req.Lines)))
	return id, nil
}

func (s *Service) create(ctx context.Context, req domain.CreateRequest) (int64, error) {
	if len(req.Lines) == 0 {
		return 0, domain.ErrEmptyCart
	}

	// Aggregate per product so two lines of the same item cannot each pass
	// the stock check on their own.
	wanted := make(map[int64]int64, len(req.Lines))
	order := make([]int64, 0, len(req.Lines))
	for _, line := range req.Lines {
		if line.Qty <= 0 {
			return 0, domain.ErrInvalidQty
		}
		if !line.UnitPriceUSD.IsPositive() {
			return 0, domain.ErrInvalidUnitPrice
		}
		if _, seen := wanted[line.ProductID]; !seen {
			order = append(order, line.ProductID)
		}
		wanted[line.ProductID] += line.Qty
	}
	for _, productID := range order {
		item, err := s.products.FindByID(ctx, s.db, productID)
		if err != nil {
			return 0, err
		}
		if item == nil || !item.Active {
			return 0, fmt.Errorf("%w (id %d)", domain.ErrProductNotFound, productID)
		}
		if wanted[productID] > item.Stock {
			return 0, fmt.Errorf("%w for %s: available %d, requested %d",
				domain.ErrInsufficientStock, item.SKU, item.Stock, wanted[productID])
		}
	}

	now := s.clock.Now()
	rate, err := s.rates.RateForDate(ctx, now)
	if err != nil {
		if errors.Is(err, apperror.ErrFxUnavailable) {
			return 0, err
		}
		return 0, fmt.Errorf("%w: %v", domain.ErrFxUnavailable, err)
	}
	if !rate.IsPositive() {
		return 0, domain.ErrFxUnavailable
	}

	total := decimal.Zero
	for _, line := range req.Lines {
		total = total.Add(line.UnitPriceUSD.Mul(decimal.NewFromInt(line.Qty)))
	}
	header := &domain.Sale{
		Datetime:    now,
		TotalUSD:    total,
		FxRateUsed:  rate,
		TotalARS:    total.Mul(rate),
		Notes:       trimmedOrNil(req.Notes),
		ActorUserID: req.ActorUserID,
	}

	err = s.uow.Do(ctx, func(tx *gorm.DB) error {
		id, err := s.repo.CreateHeader(ctx, tx, header)
		if err != nil {
			return fmt.Errorf("insert sale header: %w", err)
		}
		header.ID = id

		for _, line := range req.Lines {
			if err := s.commitLine(ctx, tx, header, line); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return header.ID, nil
}

func (s *Service) commitLine(ctx context.Context, tx *gorm.DB, header *domain.Sale, line domain.CartLine) error {
	ok, err := s.products.DecrementStock(ctx, tx, line.ProductID, line.Qty)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w for product %d: requested %d", domain.ErrInsufficientStock, line.ProductID, line.Qty)
	}

	item, err := s.products.FindByID(ctx, tx, line.ProductID)
	if err != nil {
		return err
	}
	if item == nil {
		return domain.ErrProductNotFound
	}

	if _, err := s.repo.InsertLine(ctx, tx, &domain.Line{
		SaleID:       header.ID,
		ProductID:    line.ProductID,
		Qty:          line.Qty,
		UnitPriceUSD: line.UnitPriceUSD,
		UnitCostUSD:  item.CostUSD,
	}); err != nil {
		return fmt.Errorf("insert sale line: %w", err)
	}

	saleID := header.ID
	_, err = s.ledger.Append(ctx, tx, &ledgerdomain.Entry{
		Datetime:      header.Datetime,
		ProductID:     line.ProductID,
		MovementType:  ledgerdomain.MovementSale,
		QtyDelta:      -line.Qty,
		StockAfter:    item.Stock,
		UnitValueUSD:  decimal.NewNullDecimal(line.UnitPriceUSD),
		ReferenceType: ledgerdomain.ReferenceSale,
		ReferenceID:   &saleID,
		ActorUserID:   header.ActorUserID,
	})
	return err
}

func (s *Service) Get(ctx context.Context, id int64) (*domain.Sale, error) {
	sale, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if sale == nil {
		return nil, domain.ErrNotFound
	}
	return sale, nil
}

func (s *Service) ListBetween(ctx context.Context, from, to time.Time) ([]domain.Sale, error) {
	if from.After(to) {
		return nil, domain.ErrInvalidRange
	}
	return s.repo.ListBetween(ctx, s.db, db.FormatTime(from), db.FormatTime(to))
}

func (s *Service) Lines(ctx context.Context, saleID int64) ([]domain.Line, error) {
	if _, err := s.Get(ctx, saleID); err != nil {
		return nil, err
	}
	return s.repo.Lines(ctx, s.db, saleID)
}

func trimmedOrNil(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
