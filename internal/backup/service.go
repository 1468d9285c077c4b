// Package backup produces and restores whole-database snapshots.
//
// A snapshot is an opaque blob: a magic header followed by the snappy-encoded
// bytes of a VACUUM INTO copy. Backups on disk are snapshots sealed with
// XChaCha20-Poly1305 under a local key file.
package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/stockbook/internal/clock"
	"github.com/smallbiznis/stockbook/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	filePrefix       = "stockbook-"
	fileSuffix       = ".sbk"
	defaultRetention = 30
)

var Module = fx.Module("backup",
	fx.Provide(NewConfig),
	fx.Provide(New),
)

type Config struct {
	Dir       string
	KeyPath   string
	Retention int
}

func NewConfig(cfg config.Config) Config {
	return Config{
		Dir:       cfg.BackupDir,
		KeyPath:   cfg.BackupKeyPath,
		Retention: cfg.BackupRetention,
	}
}

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	Clock  clock.Clock
	Config Config
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	cfg   Config
}

func New(p Params) *Service {
	cfg := p.Config
	if cfg.Retention <= 0 {
		cfg.Retention = defaultRetention
	}
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("backup.service"),
		clock: p.Clock,
		cfg:   cfg,
	}
}

// WriteBackup snapshots the live database and writes it encrypted to the
// backup directory, then prunes old files beyond the retention count.
func (s *Service) WriteBackup(ctx context.Context) (string, error) {
	if strings.TrimSpace(s.cfg.Dir) == "" {
		return "", fmt.Errorf("backup directory is not configured")
	}
	if err := os.MkdirAll(s.cfg.Dir, 0o700); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}

	blob, err := s.CreateSnapshot(ctx)
	if err != nil {
		return "", err
	}
	key, err := loadOrCreateKey(s.cfg.KeyPath)
	if err != nil {
		return "", err
	}
	sealed, err := seal(key, blob)
	if err != nil {
		return "", err
	}

	id := ulid.MustNew(ulid.Timestamp(s.clock.Now()), ulid.DefaultEntropy())
	path := filepath.Join(s.cfg.Dir, filePrefix+id.String()+fileSuffix)
	if err := os.WriteFile(path, sealed, 0o600); err != nil {
		return "", fmt.Errorf("write backup: %w", err)
	}
	s.log.Info("backup written", zap.String("path", path), zap.Int("bytes", len(sealed)))

	if err := s.prune(); err != nil {
		s.log.Warn("backup prune failed", zap.Error(err))
	}
	return path, nil
}

// RestoreLatest restores the newest backup file over the live database.
func (s *Service) RestoreLatest(ctx context.Context) (string, error) {
	files, err := s.List()
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", ErrNoBackups
	}
	path := files[len(files)-1]
	return path, s.RestoreFile(ctx, path)
}

func (s *Service) RestoreFile(ctx context.Context, path string) error {
	sealed, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read backup: %w", err)
	}
	key, err := loadKey(s.cfg.KeyPath)
	if err != nil {
		return err
	}
	blob, err := open(key, sealed)
	if err != nil {
		return err
	}
	if err := s.RestoreSnapshot(ctx, blob); err != nil {
		return err
	}
	s.log.Info("backup restored", zap.String("path", path))
	return nil
}

// List returns backup file paths, oldest first.
func (s *Service) List() ([]string, error) {
	entries, err := os.ReadDir(s.cfg.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), filePrefix) || !strings.HasSuffix(e.Name(), fileSuffix) {
			continue
		}
		names = append(names, e.Name())
	}
	// ULIDs sort chronologically.
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, n := range names {
		out = append(out, filepath.Join(s.cfg.Dir, n))
	}
	return out, nil
}

// LastBackupAt reports when the newest backup was written, from the ULID in
// its file name.
func (s *Service) LastBackupAt() (time.Time, bool, error) {
	files, err := s.List()
	if err != nil || len(files) == 0 {
		return time.Time{}, false, err
	}
	name := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(files[len(files)-1]), filePrefix), fileSuffix)
	id, err := ulid.ParseStrict(name)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse backup name %q: %w", name, err)
	}
	return ulid.Time(id.Time()).UTC(), true, nil
}

func (s *Service) prune() error {
	files, err := s.List()
	if err != nil {
		return err
	}
	excess := len(files) - s.cfg.Retention
	for i := 0; i < excess; i++ {
		if err := os.Remove(files[i]); err != nil {
			return err
		}
		s.log.Debug("backup pruned", zap.String("path", files[i]))
	}
	return nil
}

// IntegrityCheck runs PRAGMA integrity_check. A healthy store reports "ok".
func (s *Service) IntegrityCheck(ctx context.Context) (string, error) {
	var rows []string
	if err := s.db.WithContext(ctx).Raw("PRAGMA integrity_check").Scan(&rows).Error; err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", fmt.Errorf("integrity_check returned no rows")
	}
	return strings.Join(rows, "; "), nil
}
