package fulfillment

import (
	"time"

	"github.com/ManuelReschke/NumeroFox/internal/pkg/env"
)

const (
	DefaultMaxInterpretAttempts = 3
	DefaultLeaseTTL             = 5 * time.Minute

	// maxStepsPerAdvance bounds one advance run; a full order needs five.
	maxStepsPerAdvance = 8
	reconcileBatchSize = 100
)

type Config struct {
	MaxInterpretAttempts int
	RetryBackoff         time.Duration
	MaxRetryBackoff      time.Duration
	StageTimeout         time.Duration
	LeaseTTL             time.Duration
	// StallAfter is how long a pipeline order may sit untouched before the reconciler re-enqueues it.
	StallAfter   time.Duration
	SupportEmail string
	// PaymentURL is shown in payment instructions; "{code}" is replaced by the order code.
	PaymentURL string
	// TestMode settles new orders immediately through a simulated payment.
	TestMode bool
}

func LoadConfig() Config {
	return Config{
		MaxInterpretAttempts: env.GetEnvInt("FULFILLMENT_MAX_INTERPRET_ATTEMPTS", DefaultMaxInterpretAttempts),
		RetryBackoff:         env.GetEnvDuration("FULFILLMENT_RETRY_BACKOFF", 30*time.Second),
		MaxRetryBackoff:      env.GetEnvDuration("FULFILLMENT_MAX_RETRY_BACKOFF", 10*time.Minute),
		StageTimeout:         env.GetEnvDuration("FULFILLMENT_STAGE_TIMEOUT", 3*time.Minute),
		LeaseTTL:             env.GetEnvDuration("FULFILLMENT_LEASE_TTL", DefaultLeaseTTL),
		StallAfter:           env.GetEnvDuration("FULFILLMENT_STALL_AFTER", 10*time.Minute),
		SupportEmail:         env.GetEnv("SUPPORT_EMAIL", ""),
		PaymentURL:           env.GetEnv("PAYMENT_URL", ""),
		TestMode:             env.GetEnvBool("TEST_MODE", false),
	}
}

func (c Config) withDefaults() Config {
	if c.MaxInterpretAttempts <= 0 {
		c.MaxInterpretAttempts = DefaultMaxInterpretAttempts
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 30 * time.Second
	}
	if c.MaxRetryBackoff < c.RetryBackoff {
		c.MaxRetryBackoff = c.RetryBackoff
	}
	if c.StageTimeout <= 0 {
		c.StageTimeout = 3 * time.Minute
	}
	if c.LeaseTTL <= 0 {
		c.LeaseTTL = DefaultLeaseTTL
	}
	if c.StallAfter <= 0 {
		c.StallAfter = 10 * time.Minute
	}
	return c
}

// retryDelay is RetryBackoff * 2^(attempt-1), capped at MaxRetryBackoff.
func (c Config) retryDelay(attempt int) time.Duration {
	delay := c.RetryBackoff
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= c.MaxRetryBackoff {
			return c.MaxRetryBackoff
		}
	}
	if delay > c.MaxRetryBackoff {
		return c.MaxRetryBackoff
	}
	return delay
}
