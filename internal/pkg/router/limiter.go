package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	redisstorage "github.com/gofiber/storage/redis"

	"github.com/ManuelReschke/NumeroFox/internal/pkg/cache"
	"github.com/ManuelReschke/NumeroFox/internal/pkg/env"
)

// limiterDatabase keeps limiter counters apart from the job queue (DB 0).
const limiterDatabase = 1

type LimitConfig struct {
	APIMax     int
	WebhookMax int
	Window     time.Duration
}

func LoadLimitConfig() LimitConfig {
	return LimitConfig{
		APIMax:     env.GetEnvInt("RATE_LIMIT_API", 60),
		WebhookMax: env.GetEnvInt("RATE_LIMIT_WEBHOOK", 600),
		Window:     env.GetEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
	}
}

func (l LimitConfig) withDefaults() LimitConfig {
	if l.APIMax <= 0 {
		l.APIMax = 60
	}
	if l.WebhookMax <= 0 {
		l.WebhookMax = 600
	}
	if l.Window <= 0 {
		l.Window = time.Minute
	}
	return l
}

// NewLimiterStorage returns the Redis storage shared by all rate limiters.
func NewLimiterStorage() fiber.Storage {
	host, port, password, _ := cache.Options()
	return redisstorage.New(redisstorage.Config{
		Host:     host,
		Port:     port,
		Password: password,
		Database: limiterDatabase,
		Reset:    false,
	})
}

func newLimiter(storage fiber.Storage, max int, window time.Duration) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: window,
		Storage:    storage,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "rate_limited"})
		},
	})
}
