package scheduler

import (
	"time"

	"github.com/smallbiznis/payoutd/internal/config"
)

// Config controls scheduler intervals and batch sizes.
type Config struct {
	Enabled          bool
	RunInterval      time.Duration
	BatchSize        int
	PayoutStaleAfter time.Duration
	JobTimeout       time.Duration
	EnabledJobs      []string
}

func DefaultConfig() Config {
	return Config{
		Enabled:          true,
		RunInterval:      time.Minute,
		BatchSize:        50,
		PayoutStaleAfter: 24 * time.Hour,
		JobTimeout:       30 * time.Second,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		Enabled:          cfg.Scheduler.Enabled,
		RunInterval:      cfg.Scheduler.RunInterval,
		BatchSize:        cfg.Scheduler.BatchSize,
		PayoutStaleAfter: cfg.Scheduler.PayoutStaleAfter,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.PayoutStaleAfter <= 0 {
		c.PayoutStaleAfter = defaults.PayoutStaleAfter
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	return c
}
