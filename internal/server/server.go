package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/stockbook/internal/backup"
	"github.com/smallbiznis/stockbook/internal/config"
	ledgerdomain "github.com/smallbiznis/stockbook/internal/ledger/domain"
	"github.com/smallbiznis/stockbook/internal/migration"
	obslogger "github.com/smallbiznis/stockbook/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/stockbook/internal/observability/metrics"
	obstracing "github.com/smallbiznis/stockbook/internal/observability/tracing"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormprometheus "gorm.io/plugin/prometheus"
)

var Module = fx.Module("http.server",
	fx.Provide(NewServer),
	fx.Invoke(registerDBStats),
	fx.Invoke(run),
)

type ServerParams struct {
	fx.In

	Log        *zap.Logger
	Cfg        config.Config
	Backup     *backup.Service
	Migrator   *migration.Migrator
	Ledger     ledgerdomain.Service
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Server struct {
	engine     *gin.Engine
	log        *zap.Logger
	backup     *backup.Service
	migrator   *migration.Migrator
	ledger     ledgerdomain.Service
	obsMetrics *obsmetrics.Metrics
}

func NewServer(p ServerParams) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		engine:     gin.New(),
		log:        p.Log.Named("http.server"),
		backup:     p.Backup,
		migrator:   p.Migrator,
		ledger:     p.Ledger,
		obsMetrics: p.ObsMetrics,
	}

	s.engine.Use(gin.Recovery())
	s.engine.Use(obslogger.GinMiddleware(s.log))
	s.engine.Use(obstracing.GinMiddleware())
	s.engine.Use(ErrorHandlingMiddleware())

	s.engine.GET("/health", s.Health)
	s.engine.GET("/ready", s.Ready)
	s.engine.GET("/metrics", gin.WrapH(s.metricsHandler()))

	return s
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// metricsHandler serves the application registry together with the default
// one, where the gorm pool collectors register.
func (s *Server) metricsHandler() http.Handler {
	gatherers := prometheus.Gatherers{prometheus.DefaultGatherer}
	if reg := s.obsMetrics.Registry(); reg != nil {
		gatherers = append(prometheus.Gatherers{reg}, gatherers...)
	}
	return promhttp.HandlerFor(gatherers, promhttp.HandlerOpts{})
}

func (s *Server) Health(c *gin.Context) {
	result, err := s.backup.IntegrityCheck(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if result != "ok" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "corrupt", "integrity": result})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "integrity": result})
}

func (s *Server) Ready(c *gin.Context) {
	ctx := c.Request.Context()

	version, err := s.migrator.Version(ctx)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	drift, err := s.ledger.Verify(ctx)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	body := gin.H{
		"schema_version": version,
		"schema_latest":  s.migrator.Latest(),
		"ledger_drift":   len(drift),
	}
	if version != s.migrator.Latest() || len(drift) > 0 {
		body["status"] = "not_ready"
		if len(drift) > 0 {
			body["drift"] = drift
		}
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}
	body["status"] = "ready"
	c.JSON(http.StatusOK, body)
}

// registerDBStats exports connection pool stats for the serving process only.
func registerDBStats(db *gorm.DB, cfg config.Config, log *zap.Logger) {
	if err := db.Use(gormprometheus.New(gormprometheus.Config{
		DBName:          cfg.AppName,
		RefreshInterval: 15,
		StartServer:     false,
	})); err != nil {
		log.Warn("db stats collector disabled", zap.Error(err))
	}
}

func run(lc fx.Lifecycle, s *Server, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.OpsAddr,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("ops server stopped", zap.Error(err))
				}
			}()
			log.Info("ops server listening", zap.String("addr", cfg.OpsAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}
