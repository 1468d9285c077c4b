package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewSecurityConfigHolder),
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string

	DataDir             string
	DBPath              string
	DBBusyTimeoutMS     int
	BackupDir           string
	BackupKeyPath       string
	BackupRetention     int
	BootstrapSecretPath string
	SecurityConfigDir   string

	LogLevel  string
	LogFormat string

	OpsAddr           string
	OTLPEndpoint      string
	OtelEnabled       bool
	OtelSamplingRatio float64
	FXStaticRate      string

	BackupInterval time.Duration
	SchedulerJobs  []string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	dataDir := getenv("DATA_DIR", defaultDataDir())

	cfg := Config{
		AppName:             getenv("APP_SERVICE", "stockbook"),
		AppVersion:          getenv("APP_VERSION", "0.1.0"),
		Environment:         getenv("ENVIRONMENT", "production"),
		DataDir:             dataDir,
		DBPath:              getenv("DATABASE_PATH", filepath.Join(dataDir, "stockbook.db")),
		DBBusyTimeoutMS:     int(getenvInt64("DATABASE_BUSY_TIMEOUT_MS", 5000)),
		BackupDir:           getenv("BACKUP_DIR", filepath.Join(dataDir, "backups")),
		BackupKeyPath:       getenv("BACKUP_KEY_PATH", filepath.Join(dataDir, "backup.key")),
		BackupRetention:     int(getenvInt64("BACKUP_RETENTION", 30)),
		BootstrapSecretPath: getenv("BOOTSTRAP_SECRET_PATH", filepath.Join(dataDir, "bootstrap_admin.txt")),
		SecurityConfigDir:   getenv("SECURITY_CONFIG_DIR", dataDir),
		LogLevel:            getenv("LOG_LEVEL", "info"),
		LogFormat:           getenv("LOG_FORMAT", "json"),
		OpsAddr:             getenv("OPS_ADDR", "127.0.0.1:8089"),
		OTLPEndpoint:        strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_ENDPOINT", getenv("OTLP_ENDPOINT", ""))),
		OtelEnabled:         getenvBool("OTEL_ENABLED", false),
		OtelSamplingRatio:   getenvFloat("OTEL_SAMPLING_RATIO", 1.0),
		FXStaticRate:        strings.TrimSpace(getenv("FX_STATIC_USD_ARS", "")),
		BackupInterval:      getenvDuration("BACKUP_INTERVAL", 24*time.Hour),
		SchedulerJobs:       splitList(getenv("SCHEDULER_JOBS", "")),
	}

	return cfg
}

func defaultDataDir() string {
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return filepath.Join(home, ".stockbook")
	}
	return "data"
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvBool(key string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
