package router

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/NumeroFox/app/controllers"
	"github.com/ManuelReschke/NumeroFox/internal/pkg/messaging"
)

func newApp(deps Dependencies) *fiber.App {
	app := fiber.New()
	InstallRouter(app, deps)
	return app
}

func TestHealthz(t *testing.T) {
	app := newApp(Dependencies{})
	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/healthz", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	app = newApp(Dependencies{Health: func(ctx context.Context) error { return errors.New("db down") }})
	resp, err = app.Test(httptest.NewRequest(fiber.MethodGet, "/healthz", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	app := newApp(Dependencies{})
	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestMonitorRequiresUsers(t *testing.T) {
	app := newApp(Dependencies{})
	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/monitor", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	app = newApp(Dependencies{MonitorUsers: map[string]string{"ops": "pw"}})
	resp, err = app.Test(httptest.NewRequest(fiber.MethodGet, "/monitor", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestTelegramWebhookNeedsSecret(t *testing.T) {
	tc := controllers.NewTelegramController(nil, messaging.LogTransport{}, "")
	app := newApp(Dependencies{Telegram: tc, TelegramSecret: "tg-secret"})

	req := httptest.NewRequest(fiber.MethodPost, "/telegram/webhook", strings.NewReader(`{"update_id":1}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req = httptest.NewRequest(fiber.MethodPost, "/telegram/webhook", strings.NewReader(`{"update_id":1}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(telegramSecretHeader, "tg-secret")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestAPILimiter(t *testing.T) {
	app := newApp(Dependencies{Limits: LimitConfig{APIMax: 2, Window: time.Minute}})

	var codes []int
	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/api/", nil))
		require.NoError(t, err)
		codes = append(codes, resp.StatusCode)
	}
	assert.Equal(t, []int{fiber.StatusOK, fiber.StatusOK, fiber.StatusTooManyRequests}, codes)
}
