package observability

import (
	"github.com/smallbiznis/stockbook/internal/observability/logger"
	"github.com/smallbiznis/stockbook/internal/observability/metrics"
	"github.com/smallbiznis/stockbook/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

var Module = fx.Module("observability",
	fx.Provide(
		NewSettings,
		Settings.Logger,
		Settings.Tracing,
		logger.New,
		tracing.NewProvider,
		metrics.New,
	),
	// The provider registers the global tracer; nothing else asks for it.
	fx.Invoke(func(*sdktrace.TracerProvider) {}),
)
