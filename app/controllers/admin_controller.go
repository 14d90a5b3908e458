package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/NumeroFox/app/repository"
)

// AdminController exposes operator actions. Routes are guarded by the admin key middleware.
type AdminController struct {
	orders OrderService
	reader repository.OrderReader
	queue  QueueStats
}

func NewAdminController(orders OrderService, reader repository.OrderReader, queue QueueStats) *AdminController {
	return &AdminController{orders: orders, reader: reader, queue: queue}
}

// HandleAdminKick schedules an immediate advance of a stuck order.
func (ac *AdminController) HandleAdminKick(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()
	id := c.Params("id")
	if err := ac.orders.Kick(ctx, id); err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return jsonError(c, fiber.StatusNotFound, "not_found", "order not found")
		}
		log.Errorf("[Admin] Kick of %s failed: %v", id, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", err.Error())
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"ok": true, "order_id": id})
}

// HandleAdminTransitions returns the audit trail of an order.
func (ac *AdminController) HandleAdminTransitions(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()
	id := c.Params("id")
	order, err := ac.reader.GetByID(ctx, id)
	if errors.Is(err, repository.ErrOrderNotFound) {
		return jsonError(c, fiber.StatusNotFound, "not_found", "order not found")
	}
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", err.Error())
	}
	transitions, err := ac.reader.ListTransitions(ctx, id)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", err.Error())
	}
	return c.JSON(fiber.Map{"order": order, "transitions": transitions})
}

// HandleAdminQueue reports queue sizes and job totals.
func (ac *AdminController) HandleAdminQueue(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()
	stats, err := ac.queue.Snapshot(ctx)
	if err != nil {
		log.Errorf("[Admin] Queue snapshot failed: %v", err)
		return jsonError(c, fiber.StatusServiceUnavailable, "queue_unavailable", err.Error())
	}
	return c.JSON(stats)
}
