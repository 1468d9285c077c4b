package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/stockbook/internal/clock"
	"github.com/smallbiznis/stockbook/internal/report/domain"
	"github.com/smallbiznis/stockbook/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultCriticalLimit = 50
	maxMonths            = 120
	exportMonths         = 6
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Clock    clock.Clock
	Repo     domain.Repository
	Renderer domain.Renderer `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	repo     domain.Repository
	renderer domain.Renderer
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("report.service"),
		clock:    p.Clock,
		repo:     p.Repo,
		renderer: p.Renderer,
	}
}

func (s *Service) Summary(ctx context.Context, from, to time.Time) (*domain.Summary, error) {
	if from.After(to) {
		return nil, domain.ErrInvalidRange
	}
	lo, hi := db.FormatTime(from), db.FormatTime(to)

	totals, err := s.repo.SalesTotals(ctx, s.db, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("sales totals: %w", err)
	}
	margin, err := s.repo.Margin(ctx, s.db, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("sales margin: %w", err)
	}
	top, err := s.repo.TopProducts(ctx, s.db, lo, hi, domain.TopProductsLimit)
	if err != nil {
		return nil, fmt.Errorf("top products: %w", err)
	}
	spent, err := s.repo.PurchasesTotal(ctx, s.db, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("purchases total: %w", err)
	}

	return &domain.Summary{
		From:         from,
		To:           to,
		SalesCount:   totals.Count,
		RevenueUSD:   totals.RevenueUSD,
		RevenueARS:   totals.RevenueARS,
		MarginUSD:    margin,
		PurchasesUSD: spent,
		TopProducts:  top,
	}, nil
}

func (s *Service) PurchasesTotal(ctx context.Context, from, to time.Time) (decimal.Decimal, error) {
	if from.After(to) {
		return decimal.Zero, domain.ErrInvalidRange
	}
	return s.repo.PurchasesTotal(ctx, s.db, db.FormatTime(from), db.FormatTime(to))
}

func (s *Service) MonthlySales(ctx context.Context, months int) ([]domain.MonthlyTotal, error) {
	if months < 1 || months > maxMonths {
		return nil, domain.ErrInvalidMonths
	}
	now := s.clock.Now().UTC()
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -(months - 1), 0)

	rows, err := s.repo.MonthlySales(ctx, s.db, db.FormatTime(first))
	if err != nil {
		return nil, err
	}
	byMonth := make(map[string]decimal.Decimal, len(rows))
	for _, row := range rows {
		byMonth[row.Month] = row.TotalUSD
	}

	out := make([]domain.MonthlyTotal, 0, months)
	for i := 0; i < months; i++ {
		key := first.AddDate(0, i, 0).Format("2006-01")
		out = append(out, domain.MonthlyTotal{Month: key, TotalUSD: byMonth[key]})
	}
	return out, nil
}

func (s *Service) CumulativeProfit(ctx context.Context) ([]domain.ProfitPoint, error) {
	points, err := s.repo.DailyMargin(ctx, s.db)
	if err != nil {
		return nil, err
	}
	running := decimal.Zero
	for i := range points {
		running = running.Add(points[i].MarginUSD)
		points[i].CumulativeUSD = running
	}
	return points, nil
}

func (s *Service) CriticalStock(ctx context.Context, limit int) ([]domain.CriticalItem, error) {
	if limit <= 0 {
		limit = defaultCriticalLimit
	}
	return s.repo.CriticalStock(ctx, s.db, limit)
}

// Export renders the window summary with monthly totals and critical stock
// and copies the result to w.
func (s *Service) Export(ctx context.Context, from, to time.Time, w io.Writer) error {
	if s.renderer == nil {
		return domain.ErrNoRenderer
	}
	summary, err := s.Summary(ctx, from, to)
	if err != nil {
		return err
	}
	monthly, err := s.MonthlySales(ctx, exportMonths)
	if err != nil {
		return err
	}
	critical, err := s.CriticalStock(ctx, 0)
	if err != nil {
		return err
	}

	doc, err := s.renderer.Render(ctx, &domain.Document{
		Title:       "Sales report",
		GeneratedAt: s.clock.Now(),
		Summary:     *summary,
		Monthly:     monthly,
		Critical:    critical,
	})
	if err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	n, err := io.Copy(w, doc)
	if err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	s.log.Info("report exported",
		zap.String("from", db.FormatTime(from)),
		zap.String("to", db.FormatTime(to)),
		zap.Int64("bytes", n),
	)
	return nil
}
