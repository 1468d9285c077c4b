// Package scheduler runs periodic store maintenance: prefetching the day's
// exchange rate, checking stock against the ledger, and writing backups.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smallbiznis/stockbook/internal/apperror"
	"github.com/smallbiznis/stockbook/internal/backup"
	"github.com/smallbiznis/stockbook/internal/clock"
	fxdomain "github.com/smallbiznis/stockbook/internal/fxrate/domain"
	ledgerdomain "github.com/smallbiznis/stockbook/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/stockbook/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	JobFxPrefetch   = "fx_prefetch"
	JobLedgerVerify = "ledger_verify"
	JobBackup       = "backup"
)

var (
	ErrInvalidConfig = errors.New("scheduler: missing dependency")
	ErrLedgerDrift   = apperror.New(apperror.KindInternal, "stock disagrees with ledger")

	errJobSkipped = errors.New("job not due")
)

type Params struct {
	fx.In

	Log        *zap.Logger
	Clock      clock.Clock
	Backup     *backup.Service
	Ledger     ledgerdomain.Service
	Rates      fxdomain.RateProvider
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
	Config     Config              `optional:"true"`
}

type Scheduler struct {
	log     *zap.Logger
	cfg     Config
	clock   clock.Clock
	backup  *backup.Service
	ledger  ledgerdomain.Service
	rates   fxdomain.RateProvider
	metrics *obsmetrics.Metrics
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Clock == nil || p.Backup == nil || p.Ledger == nil || p.Rates == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:     p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:     p.Config.withDefaults(),
		clock:   p.Clock,
		backup:  p.Backup,
		ledger:  p.Ledger,
		rates:   p.Rates,
		metrics: p.ObsMetrics,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run := s.beginRun(ctx, name)
	s.logger(ctx).Debug("scheduler.job.start")

	err := fn(ctx)
	outcome := jobOutcome(err)
	if outcome == outcomeError && run.faults == 0 {
		run.fault()
	}
	s.metrics.RecordJobRun(name, outcome, s.clock.Now().Sub(run.started))
	s.finishRun(ctx, run, outcome, err)

	// A timeout is soft; the next tick retries.
	if outcome == outcomeError {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

func jobOutcome(err error) string {
	switch {
	case err == nil:
		return outcomeOK
	case errors.Is(err, errJobSkipped):
		return outcomeSkipped
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return outcomeTimeout
	default:
		return outcomeError
	}
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name string
		Run  func(context.Context) error
	}{
		{JobFxPrefetch, s.FxPrefetchJob},
		{JobLedgerVerify, s.LedgerVerifyJob},
		{JobBackup, s.BackupJob},
	}

	for _, job := range jobs {
		if !s.isJobEnabled(job.Name) {
			continue
		}
		err = errors.Join(err, s.runJob(parent, job.Name, s.cfg.JobTimeout, job.Run))
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if enabled == jobName {
			return true
		}
	}
	return false
}

// FxPrefetchJob resolves today's rate so the first sale of the day does not
// wait on a remote source.
func (s *Scheduler) FxPrefetchJob(ctx context.Context) error {
	rate, err := s.rates.RateForDate(ctx, s.clock.Now())
	if err != nil {
		return err
	}
	currentRun(ctx).handledOne()
	s.logger(ctx).Debug("fx rate ready", zap.String("usd_ars", rate.String()))
	return nil
}

func (s *Scheduler) LedgerVerifyJob(ctx context.Context) error {
	drifts, err := s.ledger.Verify(ctx)
	if err != nil {
		return err
	}
	if len(drifts) == 0 {
		return nil
	}
	run := currentRun(ctx)
	for _, d := range drifts {
		run.fault()
		s.logger(ctx).Error("ledger drift",
			zap.Int64("product_id", d.ProductID),
			zap.String("sku", d.SKU),
			zap.Int64("stock", d.Stock),
			zap.Int64("ledger_sum", d.LedgerSum),
		)
	}
	return fmt.Errorf("%w: %d products", ErrLedgerDrift, len(drifts))
}

// BackupJob writes a backup once BackupInterval has passed since the newest
// one on disk.
func (s *Scheduler) BackupJob(ctx context.Context) error {
	last, ok, err := s.backup.LastBackupAt()
	if err != nil {
		return err
	}
	if ok && s.clock.Now().Sub(last) < s.cfg.BackupInterval {
		return errJobSkipped
	}
	if _, err := s.backup.WriteBackup(ctx); err != nil {
		return err
	}
	currentRun(ctx).handledOne()
	return nil
}
