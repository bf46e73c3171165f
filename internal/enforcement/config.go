package enforcement

import (
	"time"

	appconfig "github.com/duekeeper/duekeeper/internal/config"
)

// Config controls the enforcement tick cadence and batching.
type Config struct {
	TickInterval time.Duration
	BatchSize    int
	GroupTimeout time.Duration
	// BatchMode queues a group's overdue work and flushes it after the scan
	// instead of acting per subscriber.
	BatchMode   bool
	EnabledJobs []string
	// Notify gates outbound notices; markers are still claimed so turning
	// notices back on does not replay missed reminders.
	Notify bool
}

func DefaultConfig() Config {
	return Config{
		TickInterval: time.Minute,
		BatchSize:    50,
		GroupTimeout: 30 * time.Second,
		Notify:       true,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.TickInterval <= 0 {
		c.TickInterval = defaults.TickInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.GroupTimeout <= 0 {
		c.GroupTimeout = defaults.GroupTimeout
	}
	return c
}

// ProvideConfig maps application configuration onto the scheduler config.
func ProvideConfig(cfg appconfig.Config) Config {
	return Config{
		TickInterval: cfg.Enforcement.TickInterval,
		BatchSize:    cfg.Enforcement.BatchSize,
		GroupTimeout: cfg.Enforcement.GroupTimeout,
		BatchMode:    cfg.Enforcement.BatchMode,
		EnabledJobs:  cfg.Enforcement.EnabledJobs,
		Notify:       cfg.Enforcement.Notify,
	}
}
