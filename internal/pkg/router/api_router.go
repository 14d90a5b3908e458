package router

import (
	"github.com/gofiber/fiber/v2"

	apiv1 "github.com/ManuelReschke/NumeroFox/internal/api/v1"
)

type ApiRouter struct {
	deps Dependencies
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	limits := h.deps.Limits.withDefaults()
	api := app.Group("/api", newLimiter(h.deps.LimiterStorage, limits.APIMax, limits.Window))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "NumeroFox API, see /docs/api",
		})
	})

	// API v1 routes
	if h.deps.API != nil {
		apiv1.RegisterHandlers(api.Group("/v1"), h.deps.API)
	}
}

func NewApiRouter(deps Dependencies) *ApiRouter {
	return &ApiRouter{deps: deps}
}
