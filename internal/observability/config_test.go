package observability

import (
	"testing"

	"github.com/smallbiznis/stockbook/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestNewSettings(t *testing.T) {
	s := NewSettings(config.Config{
		AppVersion:        " 1.2.0 ",
		Environment:       "production",
		LogLevel:          " WARN ",
		LogFormat:         "Console",
		OtelEnabled:       true,
		OTLPEndpoint:      "collector:4318",
		OtelSamplingRatio: 0.5,
	})

	assert.Equal(t, "stockbook", s.Service)
	assert.Equal(t, "1.2.0", s.Version)
	assert.False(t, s.Verbose())

	lc := s.Logger()
	assert.Equal(t, "warn", lc.Level)
	assert.Equal(t, "console", lc.Format)

	tc := s.Tracing()
	assert.True(t, tc.Enabled)
	assert.Equal(t, "collector:4318", tc.ExporterEndpoint)
	assert.Equal(t, 0.5, tc.SamplingRatio)
}

func TestVerbose(t *testing.T) {
	assert.True(t, Settings{LogLevel: "debug", Environment: "production"}.Verbose())
	assert.True(t, Settings{LogLevel: "info", Environment: "Local"}.Verbose())
	assert.False(t, Settings{LogLevel: "info", Environment: "staging"}.Verbose())
}
