package interpretation

import (
	"time"

	"github.com/ManuelReschke/NumeroFox/app/models"
	"github.com/ManuelReschke/NumeroFox/internal/pkg/env"
)

const (
	DefaultTimeout        = 45 * time.Second
	MinTimeout            = 30 * time.Second
	MaxTimeout            = 60 * time.Second
	DefaultMaxAttempts    = 3
	DefaultInitialBackoff = time.Second
	DefaultMaxBackoff     = 10 * time.Second
)

// Config controls the interpretation client. Zero values fall back to the defaults.
type Config struct {
	BaseURL        string
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// Paths maps each report type to its workflow endpoint.
	Paths map[models.ReportType]string
}

func DefaultPaths() map[models.ReportType]string {
	return map[models.ReportType]string{
		models.ReportTypePreview:       "/webhook/numerology-mini-report",
		models.ReportTypeFull:          "/webhook/numerology-full-report",
		models.ReportTypeCompatibility: "/webhook/numerology-compatibility",
	}
}

// LoadConfig reads INTERPRETATION_* variables. The per-call timeout is kept
// within 30..60 seconds.
func LoadConfig() Config {
	timeout := env.GetEnvDuration("INTERPRETATION_TIMEOUT", DefaultTimeout)
	if timeout < MinTimeout {
		timeout = MinTimeout
	}
	if timeout > MaxTimeout {
		timeout = MaxTimeout
	}
	return Config{
		BaseURL:        env.GetEnv("INTERPRETATION_BASE_URL", "http://localhost:5678"),
		Timeout:        timeout,
		MaxAttempts:    env.GetEnvInt("INTERPRETATION_MAX_ATTEMPTS", DefaultMaxAttempts),
		InitialBackoff: env.GetEnvDuration("INTERPRETATION_BACKOFF", DefaultInitialBackoff),
		MaxBackoff:     env.GetEnvDuration("INTERPRETATION_MAX_BACKOFF", DefaultMaxBackoff),
		Paths:          DefaultPaths(),
	}
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.InitialBackoff < 0 {
		c.InitialBackoff = 0
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = DefaultMaxBackoff
	}
	paths := DefaultPaths()
	for k, v := range c.Paths {
		paths[k] = v
	}
	c.Paths = paths
	return c
}
