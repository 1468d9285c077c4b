package logger

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/stockbook/pkg/telemetry/correlation"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// quietRoutes are polled by probes and scrapers and log at debug.
var quietRoutes = map[string]bool{
	"/metrics": true,
	"/health":  true,
	"/ready":   true,
}

// GinMiddleware tags each ops request with an operation id, echoes it in
// the response header and logs the outcome.
func GinMiddleware(base *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		ctx := correlation.WithID(c.Request.Context(), c.GetHeader(correlation.Header))
		ctx, id := correlation.Ensure(ctx)
		c.Header(correlation.Header, id)
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()

		level := zapcore.InfoLevel
		switch {
		case status >= http.StatusInternalServerError:
			level = zapcore.ErrorLevel
		case quietRoutes[route] && status < http.StatusBadRequest:
			level = zapcore.DebugLevel
		}

		log := WithContext(ctx, base)
		if ce := log.Check(level, "ops.request"); ce != nil {
			fields := []zap.Field{
				zap.String("method", c.Request.Method),
				zap.String("route", route),
				zap.Int("status", status),
				zap.Duration("elapsed", time.Since(start)),
			}
			if last := c.Errors.Last(); last != nil {
				fields = append(fields, zap.Error(last.Err))
			}
			ce.Write(fields...)
		}
	}
}
