package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/smallbiznis/stockbook/internal/clock"
	ledgerdomain "github.com/smallbiznis/stockbook/internal/ledger/domain"
	"github.com/smallbiznis/stockbook/internal/observability/logger"
	"github.com/smallbiznis/stockbook/internal/product/domain"
	"github.com/smallbiznis/stockbook/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	Clock  clock.Clock
	Repo   domain.Repository
	Ledger ledgerdomain.Writer
	UoW    db.UnitOfWork
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	clock  clock.Clock
	repo   domain.Repository
	ledger ledgerdomain.Writer
	uow    db.UnitOfWork
}

func New(p Params) domain.Service {
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("product.service"),
		clock:  p.Clock,
		repo:   p.Repo,
		ledger: p.Ledger,
		uow:    p.UoW,
	}
}

// Add creates a product. Initial stock is recorded as a product_create
// adjustment so the ledger starts in balance.
func (s *Service) Add(ctx context.Context, req domain.CreateRequest) (*domain.Product, error) {
	p := &domain.Product{
		SKU:      strings.TrimSpace(req.SKU),
		Name:     strings.TrimSpace(req.Name),
		CostUSD:  req.CostUSD,
		PriceUSD: req.PriceUSD,
		Stock:    req.Stock,
		MinStock: req.MinStock,
		Active:   true,
	}
	switch {
	case p.SKU == "":
		return nil, domain.ErrInvalidSKU
	case p.Name == "":
		return nil, domain.ErrInvalidName
	case p.CostUSD.IsNegative():
		return nil, domain.ErrInvalidCost
	case !p.PriceUSD.IsPositive():
		return nil, domain.ErrInvalidPrice
	case p.Stock < 0:
		return nil, domain.ErrInvalidStock
	case p.MinStock < 0:
		return nil, domain.ErrInvalidMinStock
	}

	ctx, log := logger.WithOperation(ctx, s.log)
	log = logger.WithActor(log, req.ActorUserID)

	err := s.uow.Do(ctx, func(tx *gorm.DB) error {
		existing, err := s.repo.FindBySKU(ctx, tx, p.SKU)
		if err != nil {
			return err
		}
		if existing != nil {
			return domain.ErrDuplicateSKU
		}
		id, err := s.repo.Create(ctx, tx, p)
		if err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrDuplicateSKU
			}
			return err
		}
		p.ID = id
		if p.Stock == 0 {
			return nil
		}
		_, err = s.ledger.Append(ctx, tx, &ledgerdomain.Entry{
			Datetime:      s.clock.Now(),
			ProductID:     id,
			MovementType:  ledgerdomain.MovementAdjustment,
			QtyDelta:      p.Stock,
			StockAfter:    p.Stock,
			UnitValueUSD:  nullDecimal(p.CostUSD),
			ReferenceType: ledgerdomain.ReferenceProductCreate,
			ReferenceID:   &id,
			ActorUserID:   req.ActorUserID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Info("product created", zap.Int64("product_id", p.ID), zap.String("sku", p.SKU), zap.Int64("stock", p.Stock))
	return p, nil
}

func (s *Service) GetByID(ctx context.Context, id int64) (*domain.Product, error) {
	item, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if item == nil || !item.Active {
		return nil, domain.ErrNotFound
	}
	return item, nil
}

func (s *Service) GetBySKU(ctx context.Context, sku string) (*domain.Product, error) {
	item, err := s.repo.FindBySKU(ctx, s.db, strings.TrimSpace(sku))
	if err != nil {
		return nil, err
	}
	if item == nil || !item.Active {
		return nil, domain.ErrNotFound
	}
	return item, nil
}

func (s *Service) ListActive(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListActive(ctx, s.db)
}

func (s *Service) UpdatePricing(ctx context.Context, req domain.UpdatePricingRequest) (*domain.Product, error) {
	if !req.PriceUSD.IsPositive() {
		return nil, domain.ErrInvalidPrice
	}
	if req.MinStock < 0 {
		return nil, domain.ErrInvalidMinStock
	}
	ok, err := s.repo.UpdatePricing(ctx, s.db, req.ID, req.PriceUSD, req.MinStock)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrNotFound
	}
	s.log.Info("product pricing updated", zap.Int64("product_id", req.ID), zap.String("price_usd", req.PriceUSD.String()))
	return s.GetByID(ctx, req.ID)
}

// Deactivate soft-deletes a product. Products with stock must be adjusted to
// zero first so the ledger keeps explaining every unit.
func (s *Service) Deactivate(ctx context.Context, id int64) error {
	return s.uow.Do(ctx, func(tx *gorm.DB) error {
		item, err := s.repo.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if item == nil || !item.Active {
			return domain.ErrNotFound
		}
		if item.Stock > 0 {
			return fmt.Errorf("%w (%s has %d units)", domain.ErrHasStock, item.SKU, item.Stock)
		}
		ok, err := s.repo.Deactivate(ctx, tx, id)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrHasStock
		}
		s.log.Info("product deactivated", zap.Int64("product_id", id), zap.String("sku", item.SKU))
		return nil
	})
}

func (s *Service) Adjust(ctx context.Context, req domain.AdjustRequest) (*domain.Product, error) {
	if req.Delta == 0 {
		return nil, domain.ErrZeroAdjustment
	}
	ctx, log := logger.WithOperation(ctx, s.log)
	log = logger.WithActor(log, req.ActorUserID)

	var result *domain.Product
	err := s.uow.Do(ctx, func(tx *gorm.DB) error {
		item, err := s.repo.FindByID(ctx, tx, req.ProductID)
		if err != nil {
			return err
		}
		if item == nil || !item.Active {
			return domain.ErrNotFound
		}
		ok, err := s.repo.ApplyDelta(ctx, tx, item.ID, req.Delta)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s has %d, delta %d", domain.ErrNegativeStock, item.SKU, item.Stock, req.Delta)
		}
		item.Stock += req.Delta

		var notes *string
		if n := strings.TrimSpace(req.Notes); n != "" {
			notes = &n
		}
		if _, err := s.ledger.Append(ctx, tx, &ledgerdomain.Entry{
			Datetime:      s.clock.Now(),
			ProductID:     item.ID,
			MovementType:  ledgerdomain.MovementAdjustment,
			QtyDelta:      req.Delta,
			StockAfter:    item.Stock,
			UnitValueUSD:  nullDecimal(item.CostUSD),
			ReferenceType: ledgerdomain.ReferenceManual,
			ActorUserID:   req.ActorUserID,
			Notes:         notes,
		}); err != nil {
			return err
		}
		result = item
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info("stock adjusted", zap.Int64("product_id", result.ID), zap.Int64("delta", req.Delta), zap.Int64("stock_after", result.Stock))
	return result, nil
}
