package migration

import (
	"context"

	"github.com/smallbiznis/stockbook/internal/auth/password"
	"github.com/smallbiznis/stockbook/internal/backup"
	"github.com/smallbiznis/stockbook/internal/clock"
	"github.com/smallbiznis/stockbook/internal/config"
	obsmetrics "github.com/smallbiznis/stockbook/internal/observability/metrics"
	"github.com/smallbiznis/stockbook/internal/seed"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Backup   *backup.Service
	Clock    clock.Clock
	Log      *zap.Logger
	Metrics  *obsmetrics.Metrics `optional:"true"`
	Config   config.Config
	Security *config.SecurityConfigHolder
}

func NewMigrator(p Params) (*Migrator, error) {
	return New(p.DB, p.Backup, p.Clock, p.Log, WithMetrics(p.Metrics))
}

var Module = fx.Module("migrations",
	fx.Provide(NewMigrator),
	fx.Invoke(func(m *Migrator, p Params) error {
		ctx := context.Background()
		if err := m.Run(ctx); err != nil {
			return err
		}
		_, err := seed.EnsureAdmin(ctx, p.DB, seed.Params{
			Vault:      password.FromHolder(p.Security),
			SecretPath: p.Config.BootstrapSecretPath,
			Clock:      p.Clock,
			Log:        p.Log,
		})
		return err
	}),
)
