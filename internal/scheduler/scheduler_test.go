package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/shopspring/decimal"
	ledgerrepo "github.com/smallbiznis/stockbook/internal/ledger/repository"
	ledgerservice "github.com/smallbiznis/stockbook/internal/ledger/service"
	obsmetrics "github.com/smallbiznis/stockbook/internal/observability/metrics"
	"github.com/smallbiznis/stockbook/internal/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rateFunc func(ctx context.Context, day time.Time) (decimal.Decimal, error)

func (f rateFunc) RateForDate(ctx context.Context, day time.Time) (decimal.Decimal, error) {
	return f(ctx, day)
}

func fixedRate(v int64) rateFunc {
	return func(context.Context, time.Time) (decimal.Decimal, error) {
		return decimal.NewFromInt(v), nil
	}
}

func newScheduler(t *testing.T, store *storetest.Store, rates rateFunc, cfg Config) (*Scheduler, *obsmetrics.Metrics) {
	t.Helper()
	metrics, err := obsmetrics.New()
	require.NoError(t, err)
	s, err := New(Params{
		Log:    store.Log,
		Clock:  store.Clock,
		Backup: store.Backup,
		Ledger: ledgerservice.NewService(ledgerservice.Params{
			DB:   store.DB,
			Log:  store.Log,
			Repo: ledgerrepo.Provide(),
		}),
		Rates:      rates,
		ObsMetrics: metrics,
		Config:     cfg,
	})
	require.NoError(t, err)
	return s, metrics
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Params{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestBackupJobRespectsInterval(t *testing.T) {
	store := storetest.Open(t)
	s, metrics := newScheduler(t, store, fixedRate(1000), Config{EnabledJobs: []string{JobBackup}})
	ctx := context.Background()

	require.NoError(t, s.RunOnce(ctx))
	files, err := store.Backup.List()
	require.NoError(t, err)
	require.Len(t, files, 1)

	last, ok, err := store.Backup.LastBackupAt()
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, last.Equal(storetest.Epoch), last.String())

	store.Clock.Advance(time.Hour)
	require.NoError(t, s.RunOnce(ctx))
	files, err = store.Backup.List()
	require.NoError(t, err)
	assert.Len(t, files, 1)

	store.Clock.Advance(24 * time.Hour)
	require.NoError(t, s.RunOnce(ctx))
	files, err = store.Backup.List()
	require.NoError(t, err)
	assert.Len(t, files, 2)

	registry := metrics.Registry()
	assert.Equal(t, 2.0, getCounterValue(t, registry, "stockbook_scheduler_job_runs_total", map[string]string{"job": JobBackup, "outcome": "ok"}))
	assert.Equal(t, 1.0, getCounterValue(t, registry, "stockbook_scheduler_job_runs_total", map[string]string{"job": JobBackup, "outcome": "skipped"}))
}

func TestLedgerVerifyJobReportsDrift(t *testing.T) {
	store := storetest.Open(t)
	id := store.InsertProduct(t, "SKU-1", 4, 10, 5)
	s, metrics := newScheduler(t, store, fixedRate(1000), Config{EnabledJobs: []string{JobLedgerVerify}})

	require.NoError(t, s.RunOnce(context.Background()))

	store.MustExec(t, `UPDATE products SET stock = 7 WHERE id = ?`, id)
	err := s.RunOnce(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLedgerDrift)
	assert.Contains(t, err.Error(), "1 products")

	registry := metrics.Registry()
	assert.Equal(t, 1.0, getCounterValue(t, registry, "stockbook_scheduler_job_runs_total", map[string]string{"job": JobLedgerVerify, "outcome": "ok"}))
	assert.Equal(t, 1.0, getCounterValue(t, registry, "stockbook_scheduler_job_runs_total", map[string]string{"job": JobLedgerVerify, "outcome": "error"}))
}

func TestRunJobTimeoutDoesNotReturnError(t *testing.T) {
	store := storetest.Open(t)
	blocking := rateFunc(func(ctx context.Context, _ time.Time) (decimal.Decimal, error) {
		<-ctx.Done()
		return decimal.Zero, ctx.Err()
	})
	s, metrics := newScheduler(t, store, blocking, Config{
		EnabledJobs: []string{JobFxPrefetch},
		JobTimeout:  5 * time.Millisecond,
	})

	require.NoError(t, s.RunOnce(context.Background()))
	assert.Equal(t, 1.0, getCounterValue(t, metrics.Registry(), "stockbook_scheduler_job_runs_total", map[string]string{"job": JobFxPrefetch, "outcome": "timeout"}))
}

func TestFxPrefetchErrorIsReturned(t *testing.T) {
	store := storetest.Open(t)
	failing := rateFunc(func(context.Context, time.Time) (decimal.Decimal, error) {
		return decimal.Zero, errors.New("source down")
	})
	s, _ := newScheduler(t, store, failing, Config{EnabledJobs: []string{JobFxPrefetch}})

	err := s.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fx_prefetch: source down")
}

func TestDisabledJobsDoNotRun(t *testing.T) {
	store := storetest.Open(t)
	called := false
	rates := rateFunc(func(context.Context, time.Time) (decimal.Decimal, error) {
		called = true
		return decimal.NewFromInt(1000), nil
	})
	s, _ := newScheduler(t, store, rates, Config{EnabledJobs: []string{JobLedgerVerify}})

	require.NoError(t, s.RunOnce(context.Background()))
	assert.False(t, called)
	files, err := store.Backup.List()
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestRunForeverStopsOnCancel(t *testing.T) {
	store := storetest.Open(t)
	s, _ := newScheduler(t, store, fixedRate(1000), Config{EnabledJobs: []string{JobFxPrefetch}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.RunForever(ctx)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("RunForever did not return after cancel")
	}
}

func getCounterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	metricFamilies, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metricFamilies {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.Metric {
			if !labelsMatch(metric, labels) {
				continue
			}
			if metric.Counter == nil {
				t.Fatalf("metric %s is not a counter", name)
			}
			return metric.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func labelsMatch(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.Label) != len(labels) {
		return false
	}
	for _, label := range metric.Label {
		if labels[label.GetName()] != label.GetValue() {
			return false
		}
	}
	return true
}
