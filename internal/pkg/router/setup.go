package router

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/NumeroFox/app/controllers"
	apiv1 "github.com/ManuelReschke/NumeroFox/internal/api/v1"
)

type Router interface {
	InstallRouter(app *fiber.App)
}

// Dependencies are the handlers and settings the routers mount.
type Dependencies struct {
	API            *apiv1.APIServer
	Payment        *controllers.PaymentController
	Telegram       *controllers.TelegramController
	TelegramSecret string
	// LimiterStorage backs the rate limiters; nil keeps the counters in memory.
	LimiterStorage fiber.Storage
	Limits         LimitConfig
	// MonitorUsers guards /monitor with basic auth; empty disables the monitor.
	MonitorUsers map[string]string
	// Health reports the readiness of the backing services.
	Health func(ctx context.Context) error
}

func InstallRouter(app *fiber.App, deps Dependencies) {
	setup(app, NewHttpRouter(deps), NewApiRouter(deps))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
