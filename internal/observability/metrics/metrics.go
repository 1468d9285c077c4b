package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes application-level instruments on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	salesCommitted     prometheus.Counter
	saleRejections     *prometheus.CounterVec
	purchasesCommitted prometheus.Counter
	ledgerEntries      *prometheus.CounterVec
	loginAttempts      *prometheus.CounterVec
	lockouts           prometheus.Counter
	migrationsApplied  prometheus.Counter
	migrationFailures  prometheus.Counter
	fxFallbacks        prometheus.Counter
	jobRuns            *prometheus.CounterVec
	jobDuration        *prometheus.HistogramVec
}

// New registers the domain instruments. Go runtime and process metrics stay
// on the default registry, which the ops server gathers alongside this one.
func New() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		salesCommitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stockbook_sales_committed_total",
			Help: "Sales committed.",
		}),
		saleRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockbook_sale_rejections_total",
			Help: "Sales rejected before or during commit, by error kind.",
		}, []string{"reason"}),
		purchasesCommitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stockbook_purchases_committed_total",
			Help: "Purchases committed.",
		}),
		ledgerEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockbook_ledger_entries_total",
			Help: "Stock ledger rows appended, by movement type.",
		}, []string{"movement_type"}),
		loginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockbook_login_attempts_total",
			Help: "Login attempts, by outcome.",
		}, []string{"outcome"}),
		lockouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stockbook_login_lockouts_total",
			Help: "Accounts locked after too many failed attempts.",
		}),
		migrationsApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stockbook_migrations_applied_total",
			Help: "Schema migrations applied.",
		}),
		migrationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stockbook_migration_failures_total",
			Help: "Migration runs aborted and restored.",
		}),
		fxFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stockbook_fx_fallbacks_total",
			Help: "FX lookups answered from the latest cached rate.",
		}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockbook_scheduler_job_runs_total",
			Help: "Maintenance job runs, by job and outcome.",
		}, []string{"job", "outcome"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stockbook_scheduler_job_duration_seconds",
			Help:    "Maintenance job duration.",
			Buckets: prometheus.DefBuckets,
		}, []string{"job"}),
	}

	for _, c := range []prometheus.Collector{
		m.salesCommitted,
		m.saleRejections,
		m.purchasesCommitted,
		m.ledgerEntries,
		m.loginAttempts,
		m.lockouts,
		m.migrationsApplied,
		m.migrationFailures,
		m.fxFallbacks,
		m.jobRuns,
		m.jobDuration,
	} {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Registry exposes the registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) RecordSaleCommitted() {
	if m == nil {
		return
	}
	m.salesCommitted.Inc()
}

func (m *Metrics) RecordSaleRejected(reason string) {
	if m == nil {
		return
	}
	m.saleRejections.WithLabelValues(normalize(reason)).Inc()
}

func (m *Metrics) RecordPurchaseCommitted() {
	if m == nil {
		return
	}
	m.purchasesCommitted.Inc()
}

func (m *Metrics) RecordLedgerEntries(movementType string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ledgerEntries.WithLabelValues(normalize(movementType)).Add(float64(n))
}

// RecordLogin increments login counts. Outcome is success, invalid or locked.
func (m *Metrics) RecordLogin(outcome string) {
	if m == nil {
		return
	}
	m.loginAttempts.WithLabelValues(normalize(outcome)).Inc()
}

func (m *Metrics) RecordLockout() {
	if m == nil {
		return
	}
	m.lockouts.Inc()
}

func (m *Metrics) RecordMigrationsApplied(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.migrationsApplied.Add(float64(n))
}

func (m *Metrics) RecordMigrationFailure() {
	if m == nil {
		return
	}
	m.migrationFailures.Inc()
}

func (m *Metrics) RecordFxFallback() {
	if m == nil {
		return
	}
	m.fxFallbacks.Inc()
}

// RecordJobRun counts a scheduler job. Outcome is ok, skipped, timeout or error.
func (m *Metrics) RecordJobRun(job, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	job = normalize(job)
	m.jobRuns.WithLabelValues(job, normalize(outcome)).Inc()
	if outcome != "skipped" {
		m.jobDuration.WithLabelValues(job).Observe(d.Seconds())
	}
}

func normalize(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" {
		return "unknown"
	}
	return v
}
