package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/NumeroFox/app/models"
	"github.com/ManuelReschke/NumeroFox/app/repository"
	"github.com/ManuelReschke/NumeroFox/internal/pkg/fulfillment"
	"github.com/ManuelReschke/NumeroFox/internal/pkg/metrics"
	"github.com/ManuelReschke/NumeroFox/internal/pkg/payment"
)

// PaymentController receives payment provider notifications.
type PaymentController struct {
	verifier PaymentVerifier
	events   repository.PaymentEventRepository
	applier  PaymentApplier
}

func NewPaymentController(verifier PaymentVerifier, events repository.PaymentEventRepository, applier PaymentApplier) *PaymentController {
	return &PaymentController{verifier: verifier, events: events, applier: applier}
}

// HandlePaymentWebhook verifies the notification, deduplicates it by event id
// and applies it. Once verified the provider gets 200 whether or not the
// payment matched an order.
func (pc *PaymentController) HandlePaymentWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	ctx, cancel := requestContext(c)
	defer cancel()

	ev, err := pc.verifier.Verify(ctx, payment.RawEvent{Body: rawBody, Signature: c.Get(payment.SignatureHeader)})
	switch {
	case errors.Is(err, payment.ErrInvalidSignature):
		metrics.ObservePaymentWebhook("invalid_signature")
		log.Warnf("[PaymentWebhook] Invalid signature from %s", GetClientIP(c))
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_signature"})
	case errors.Is(err, payment.ErrMalformedEvent):
		metrics.ObservePaymentWebhook("invalid_payload")
		log.Warnf("[PaymentWebhook] Malformed event: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
	case errors.Is(err, payment.ErrDuplicatePayment):
		metrics.ObservePaymentWebhook("duplicate_payment")
		log.Warnf("[PaymentWebhook] %v", err)
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "duplicate_payment"})
	case errors.Is(err, payment.ErrIgnoredEvent):
		metrics.ObservePaymentWebhook("ignored")
		log.Infof("[PaymentWebhook] Event %s with status %q ignored", ev.EventID, ev.Status)
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "ignored": true})
	case err != nil:
		metrics.ObservePaymentWebhook("error")
		log.Errorf("[PaymentWebhook] Verification failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "verification_failed"})
	}

	if headerID := c.Get(payment.EventIDHeader); headerID != "" && headerID != ev.EventID {
		log.Warnf("[PaymentWebhook] Event id header %q differs from body %q, using body", headerID, ev.EventID)
	}

	created, stored, err := pc.events.CreateIfNotExists(ctx, &models.PaymentWebhookEvent{
		Provider:        pc.verifier.Provider(),
		ProviderEventID: ev.EventID,
		OrderID:         ev.OrderID,
		PaymentRef:      ev.PaymentRef,
		PayloadJSON:     string(rawBody),
		SignatureValid:  true,
	})
	if err != nil {
		metrics.ObservePaymentWebhook("error")
		log.Errorf("[PaymentWebhook] Could not record event %s: %v", ev.EventID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_persist_failed"})
	}
	if !created && stored.Handled() {
		metrics.ObservePaymentWebhook("duplicate")
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "duplicate": true})
	}

	applyErr := pc.applier.Apply(ctx, fulfillment.PaymentConfirmed{Payment: *ev})
	processingError := ""
	if applyErr != nil {
		processingError = applyErr.Error()
	}
	if err := pc.events.MarkProcessed(ctx, stored.ID, processingError); err != nil {
		log.Warnf("[PaymentWebhook] Could not mark event %s processed: %v", ev.EventID, err)
	}
	if applyErr != nil {
		metrics.ObservePaymentWebhook("error")
		log.Errorf("[PaymentWebhook] Applying event %s failed: %v", ev.EventID, applyErr)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "apply_failed"})
	}

	metrics.ObservePaymentWebhook("applied")
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
}
