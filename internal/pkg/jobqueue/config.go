package jobqueue

import (
	"time"

	"github.com/ManuelReschke/NumeroFox/internal/pkg/env"
)

// Config controls worker count, retry pacing and the background sweeps.
type Config struct {
	Workers           int
	MaxRetries        int
	RetryBase         time.Duration
	RetryMax          time.Duration
	PromoteInterval   time.Duration
	StuckAfter        time.Duration
	SweepInterval     time.Duration
	ReconcileInterval time.Duration
}

// LoadConfig reads the JOBQUEUE_* variables
func LoadConfig() Config {
	return Config{
		Workers:           env.GetEnvInt("JOBQUEUE_WORKERS", 5),
		MaxRetries:        env.GetEnvInt("JOBQUEUE_MAX_RETRIES", DefaultMaxRetries),
		RetryBase:         env.GetEnvDuration("JOBQUEUE_RETRY_BASE", 30*time.Second),
		RetryMax:          env.GetEnvDuration("JOBQUEUE_RETRY_MAX", 10*time.Minute),
		PromoteInterval:   env.GetEnvDuration("JOBQUEUE_PROMOTE_INTERVAL", time.Second),
		StuckAfter:        env.GetEnvDuration("JOBQUEUE_STUCK_AFTER", 10*time.Minute),
		SweepInterval:     env.GetEnvDuration("JOBQUEUE_SWEEP_INTERVAL", time.Minute),
		ReconcileInterval: env.GetEnvDuration("JOBQUEUE_RECONCILE_INTERVAL", 2*time.Minute),
	}
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 3
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 30 * time.Second
	}
	if c.RetryMax < c.RetryBase {
		c.RetryMax = c.RetryBase
	}
	if c.PromoteInterval <= 0 {
		c.PromoteInterval = time.Second
	}
	if c.StuckAfter <= 0 {
		c.StuckAfter = 10 * time.Minute
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = time.Minute
	}
	if c.ReconcileInterval <= 0 {
		c.ReconcileInterval = 2 * time.Minute
	}
	return c
}
