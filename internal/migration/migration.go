package migration

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/smallbiznis/stockbook/internal/clock"
	obsmetrics "github.com/smallbiznis/stockbook/internal/observability/metrics"
	"github.com/smallbiznis/stockbook/pkg/db"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const versionTable = "schema_migrations"

// Migration is one schema step. Up runs inside the shared migration
// transaction and must tolerate objects that already exist.
type Migration struct {
	Version int
	Name    string
	Up      func(ctx context.Context, tx *gorm.DB, now time.Time) error
}

// Snapshotter captures and restores the whole store.
type Snapshotter interface {
	CreateSnapshot(ctx context.Context) ([]byte, error)
	RestoreSnapshot(ctx context.Context, blob []byte) error
}

type Migrator struct {
	db         *gorm.DB
	log        *zap.Logger
	clock      clock.Clock
	snapshots  Snapshotter
	metrics    *obsmetrics.Metrics
	migrations []Migration
}

type Option func(*Migrator)

// WithMigrations appends steps after the built-in ones.
func WithMigrations(ms ...Migration) Option {
	return func(m *Migrator) {
		m.migrations = append(m.migrations, ms...)
	}
}

func WithMetrics(metrics *obsmetrics.Metrics) Option {
	return func(m *Migrator) {
		m.metrics = metrics
	}
}

func New(conn *gorm.DB, snapshots Snapshotter, clk clock.Clock, log *zap.Logger, opts ...Option) (*Migrator, error) {
	if conn == nil {
		return nil, errors.New("migration database handle is required")
	}
	if clk == nil {
		clk = clock.SystemClock{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	m := &Migrator{
		db:         conn,
		log:        log.Named("migration"),
		clock:      clk,
		snapshots:  snapshots,
		migrations: append([]Migration(nil), builtin...),
	}
	for _, opt := range opts {
		opt(m)
	}
	if err := validate(m.migrations); err != nil {
		return nil, err
	}
	return m, nil
}

func validate(ms []Migration) error {
	for i, mig := range ms {
		if mig.Up == nil {
			return fmt.Errorf("migration %d has no Up step", mig.Version)
		}
		if i > 0 && mig.Version <= ms[i-1].Version {
			return fmt.Errorf("migration versions must strictly increase: %d after %d", mig.Version, ms[i-1].Version)
		}
	}
	return nil
}

// Latest is the highest defined version.
func (m *Migrator) Latest() int {
	if len(m.migrations) == 0 {
		return 0
	}
	return m.migrations[len(m.migrations)-1].Version
}

// Version is the highest applied version, 0 for a fresh store.
func (m *Migrator) Version(ctx context.Context) (int, error) {
	return currentVersion(ctx, m.db)
}

func currentVersion(ctx context.Context, conn *gorm.DB) (int, error) {
	if !conn.WithContext(ctx).Migrator().HasTable(versionTable) {
		return 0, nil
	}
	var version int
	if err := conn.WithContext(ctx).Raw("SELECT COALESCE(MAX(version), 0) FROM " + versionTable).Scan(&version).Error; err != nil {
		return 0, err
	}
	return version, nil
}

// Applied lists applied versions in ascending order.
func (m *Migrator) Applied(ctx context.Context) ([]int, error) {
	if !m.db.WithContext(ctx).Migrator().HasTable(versionTable) {
		return nil, nil
	}
	var versions []int
	err := m.db.WithContext(ctx).Raw("SELECT version FROM " + versionTable + " ORDER BY version").Scan(&versions).Error
	return versions, err
}

// Run applies every pending migration in one transaction. On failure the
// transaction is rolled back and the pre-migration snapshot is restored; the
// returned *FailureError must be treated as fatal.
func (m *Migrator) Run(ctx context.Context) error {
	ctx, span := otel.Tracer("stockbook/migration").Start(ctx, "migration.Run")
	defer span.End()

	current, err := m.Version(ctx)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	pending := m.pendingAfter(current)
	span.SetAttributes(attribute.Int("migration.from", current), attribute.Int("migration.pending", len(pending)))
	if len(pending) == 0 {
		m.log.Debug("schema up to date", zap.Int("version", current))
		return nil
	}

	snapshot, err := m.snapshotIfNeeded(ctx)
	if err != nil {
		m.metrics.RecordMigrationFailure()
		span.SetStatus(codes.Error, "snapshot failed")
		return &FailureError{Version: pending[0].Version, Name: pending[0].Name, Err: fmt.Errorf("snapshot before migration: %w", err)}
	}

	m.log.Info("applying migrations",
		zap.Int("from", current),
		zap.Int("to", pending[len(pending)-1].Version),
		zap.Bool("snapshot", snapshot != nil),
	)

	// foreign_keys cannot change inside a transaction; table rebuilds need it off.
	if err := m.db.WithContext(ctx).Exec("PRAGMA foreign_keys = OFF").Error; err != nil {
		return fmt.Errorf("disable foreign keys: %w", err)
	}
	defer func() {
		if err := m.db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
			m.log.Error("re-enable foreign keys failed", zap.Error(err))
		}
	}()

	var failed *Migration
	runErr := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureVersionTable(tx); err != nil {
			return err
		}
		for i := range pending {
			mig := pending[i]
			now := m.clock.Now()
			if err := mig.Up(ctx, tx, now); err != nil {
				failed = &mig
				return err
			}
			if err := tx.Exec("INSERT INTO "+versionTable+" (version, applied_at) VALUES (?, ?)", mig.Version, db.FormatTime(now)).Error; err != nil {
				failed = &mig
				return err
			}
			m.log.Info("migration applied", zap.Int("version", mig.Version), zap.String("name", mig.Name))
		}
		return checkForeignKeys(tx)
	})
	if runErr == nil {
		m.metrics.RecordMigrationsApplied(len(pending))
		return nil
	}

	failure := &FailureError{Err: runErr}
	if failed != nil {
		failure.Version, failure.Name = failed.Version, failed.Name
	} else {
		failure.Version, failure.Name = pending[len(pending)-1].Version, pending[len(pending)-1].Name
	}
	if snapshot != nil {
		// Best-effort: the restore runs even though the rollback already undid
		// the DDL, and its own failure is reported next to the cause.
		if err := m.snapshots.RestoreSnapshot(context.WithoutCancel(ctx), snapshot); err != nil {
			failure.RestoreErr = err
		} else {
			failure.Restored = true
		}
	}

	m.metrics.RecordMigrationFailure()
	span.RecordError(failure)
	span.SetStatus(codes.Error, "migration failed")
	m.log.Error("migration failed",
		zap.Int("version", failure.Version),
		zap.String("name", failure.Name),
		zap.Bool("restored", failure.Restored),
		zap.Error(runErr),
		zap.NamedError("restore_error", failure.RestoreErr),
	)
	return failure
}

func (m *Migrator) pendingAfter(version int) []Migration {
	pending := make([]Migration, 0, len(m.migrations))
	for _, mig := range m.migrations {
		if mig.Version > version {
			pending = append(pending, mig)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].Version < pending[j].Version })
	return pending
}

func (m *Migrator) snapshotIfNeeded(ctx context.Context) ([]byte, error) {
	if m.snapshots == nil {
		return nil, nil
	}
	var tables int64
	if err := m.db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'`,
	).Scan(&tables).Error; err != nil {
		return nil, err
	}
	if tables == 0 {
		return nil, nil
	}
	return m.snapshots.CreateSnapshot(ctx)
}

func ensureVersionTable(tx *gorm.DB) error {
	return tx.Exec(`CREATE TABLE IF NOT EXISTS ` + versionTable + ` (
		version INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL
	)`).Error
}

func checkForeignKeys(tx *gorm.DB) error {
	var violations []struct {
		Table  string `gorm:"column:table"`
		RowID  int64  `gorm:"column:rowid"`
		Parent string `gorm:"column:parent"`
	}
	if err := tx.Raw("PRAGMA foreign_key_check").Scan(&violations).Error; err != nil {
		return err
	}
	if len(violations) > 0 {
		v := violations[0]
		return fmt.Errorf("foreign key check failed: %d violations, first in %s row %d referencing %s",
			len(violations), v.Table, v.RowID, v.Parent)
	}
	return nil
}
