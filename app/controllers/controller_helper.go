package controllers

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/NumeroFox/app/models"
	"github.com/ManuelReschke/NumeroFox/internal/pkg/fulfillment"
	"github.com/ManuelReschke/NumeroFox/internal/pkg/jobqueue"
	"github.com/ManuelReschke/NumeroFox/internal/pkg/payment"
)

const requestTimeout = 20 * time.Second

// OrderService is the part of the orchestrator the HTTP layer talks to.
type OrderService interface {
	RequestReport(ctx context.Context, req fulfillment.ReportRequest) (*models.Order, error)
	OrderStatus(ctx context.Context, code, userID string) (*models.Order, error)
	BuildPreview(ctx context.Context, person models.Person) (*fulfillment.PreviewResult, error)
	Preview(ctx context.Context, userID string, person models.Person) error
	Kick(ctx context.Context, orderID string) error
}

// PaymentApplier hands verified payments to the orchestrator.
type PaymentApplier interface {
	Apply(ctx context.Context, ev fulfillment.Event) error
}

type PaymentVerifier interface {
	Provider() string
	Verify(ctx context.Context, raw payment.RawEvent) (*payment.Event, error)
}

type QueueStats interface {
	Snapshot(ctx context.Context) (*jobqueue.Stats, error)
}

func jsonError(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{"error": code, "message": message})
}

func requestContext(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.UserContext(), requestTimeout)
}

// GetClientIP returns the caller address, honouring Cloudflare and proxy headers.
func GetClientIP(c *fiber.Ctx) string {
	if ip := strings.TrimSpace(c.Get("CF-Connecting-IP")); ip != "" {
		return ip
	}
	if xff := c.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(c.Get("X-Real-IP")); ip != "" {
		return ip
	}
	return c.IP()
}

func formatTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
