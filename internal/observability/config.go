package observability

import (
	"strings"

	"github.com/smallbiznis/stockbook/internal/config"
	"github.com/smallbiznis/stockbook/internal/observability/logger"
	"github.com/smallbiznis/stockbook/internal/observability/tracing"
)

// Settings is the observability slice of the application config.
type Settings struct {
	Service     string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	TracingEnabled bool
	OTLPEndpoint   string
	SamplingRatio  float64
}

func NewSettings(cfg config.Config) Settings {
	service := strings.TrimSpace(cfg.AppName)
	if service == "" {
		service = "stockbook"
	}
	return Settings{
		Service:        service,
		Environment:    strings.TrimSpace(cfg.Environment),
		Version:        strings.TrimSpace(cfg.AppVersion),
		LogLevel:       strings.ToLower(strings.TrimSpace(cfg.LogLevel)),
		LogFormat:      strings.ToLower(strings.TrimSpace(cfg.LogFormat)),
		TracingEnabled: cfg.OtelEnabled,
		OTLPEndpoint:   strings.TrimSpace(cfg.OTLPEndpoint),
		SamplingRatio:  cfg.OtelSamplingRatio,
	}
}

// Verbose is true at debug level and in development environments.
func (s Settings) Verbose() bool {
	if s.LogLevel == "debug" {
		return true
	}
	switch strings.ToLower(s.Environment) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}

func (s Settings) Logger() logger.Config {
	return logger.Config{
		ServiceName: s.Service,
		Environment: s.Environment,
		Version:     s.Version,
		Level:       s.LogLevel,
		Format:      s.LogFormat,
		Verbose:     s.Verbose(),
	}
}

func (s Settings) Tracing() tracing.Config {
	return tracing.Config{
		Enabled:          s.TracingEnabled,
		ServiceName:      s.Service,
		ServiceVersion:   s.Version,
		Environment:      s.Environment,
		ExporterEndpoint: s.OTLPEndpoint,
		SamplingRatio:    s.SamplingRatio,
	}
}
