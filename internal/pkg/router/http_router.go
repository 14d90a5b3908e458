package router

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/monitor"

	"github.com/ManuelReschke/NumeroFox/internal/pkg/metrics"
	"github.com/ManuelReschke/NumeroFox/internal/pkg/middleware"
)

const (
	telegramSecretHeader = "X-Telegram-Bot-Api-Secret-Token"
	healthTimeout        = 3 * time.Second
)

type HttpRouter struct {
	deps Dependencies
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	app.Get("/healthz", h.handleHealth)
	app.Get("/metrics", metrics.Handler())

	if len(h.deps.MonitorUsers) > 0 {
		app.Get("/monitor", basicauth.New(basicauth.Config{Users: h.deps.MonitorUsers}), monitor.New())
	}

	limits := h.deps.Limits.withDefaults()
	hooks := newLimiter(h.deps.LimiterStorage, limits.WebhookMax, limits.Window)
	if h.deps.Payment != nil {
		app.Post("/webhooks/payment", hooks, h.deps.Payment.HandlePaymentWebhook)
	}
	if h.deps.Telegram != nil {
		app.Post("/telegram/webhook", hooks,
			middleware.RequireSecretHeader(telegramSecretHeader, h.deps.TelegramSecret),
			h.deps.Telegram.HandleTelegramWebhook)
	}
}

func (h HttpRouter) handleHealth(c *fiber.Ctx) error {
	if h.deps.Health != nil {
		ctx, cancel := context.WithTimeout(c.UserContext(), healthTimeout)
		defer cancel()
		if err := h.deps.Health(ctx); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable", "error": err.Error()})
		}
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

func NewHttpRouter(deps Dependencies) *HttpRouter {
	return &HttpRouter{deps: deps}
}
