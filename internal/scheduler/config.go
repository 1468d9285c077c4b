package scheduler

import (
	"time"

	"github.com/smallbiznis/stockbook/internal/config"
)

// Config controls scheduler intervals and which jobs run.
type Config struct {
	RunInterval    time.Duration
	BackupInterval time.Duration
	JobTimeout     time.Duration
	// EnabledJobs limits the jobs that run. Empty enables all of them.
	EnabledJobs []string
}

func DefaultConfig() Config {
	return Config{
		RunInterval:    15 * time.Minute,
		BackupInterval: 24 * time.Hour,
		JobTimeout:     5 * time.Minute,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		BackupInterval: cfg.BackupInterval,
		EnabledJobs:    cfg.SchedulerJobs,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.BackupInterval <= 0 {
		c.BackupInterval = defaults.BackupInterval
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	return c
}
