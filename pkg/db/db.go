package db

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	obslogger "github.com/smallbiznis/stockbook/internal/observability/logger"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("db",
	fx.Provide(NewConfig),
	fx.Provide(New),
	fx.Provide(NewUnitOfWork),
)

// Open opens the store with a single pooled connection. Every caller shares
// that connection, which serializes transactions; code running inside a
// transaction callback must only use the tx handle it was given.
func Open(cfg Config, log *zap.Logger) (*gorm.DB, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if dir := filepath.Dir(cfg.Path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dialector, err := Dialect(cfg)
	if err != nil {
		return nil, err
	}

	gdb, err := gorm.Open(dialector, &gorm.Config{
		Logger:  obslogger.NewStoreLogger(log, obslogger.DefaultStoreLoggerConfig()),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := gdb.Use(otelgorm.NewPlugin()); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return gdb, nil
}

func New(lc fx.Lifecycle, cfg Config, log *zap.Logger) (*gorm.DB, error) {
	gdb, err := Open(cfg, log)
	if err != nil {
		return nil, err
	}
	log.Info("database opened", zap.String("path", cfg.Path))

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return Close(gdb)
		},
	})
	return gdb, nil
}

func Close(gdb *gorm.DB) error {
	if gdb == nil {
		return nil
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
