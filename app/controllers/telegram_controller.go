package controllers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/NumeroFox/app/models"
	"github.com/ManuelReschke/NumeroFox/app/repository"
	"github.com/ManuelReschke/NumeroFox/internal/pkg/fulfillment"
	"github.com/ManuelReschke/NumeroFox/internal/pkg/messaging"
	"github.com/ManuelReschke/NumeroFox/internal/pkg/numerology"
)

const (
	commandTimeout = 5 * time.Minute
	welcomeText    = "Welcome to NumeroFox!"
)

// TelegramController dispatches bot commands received on the webhook.
type TelegramController struct {
	orders       OrderService
	transport    messaging.Transport
	supportEmail string
	// async runs a command outside the webhook request; Telegram redelivers slow updates.
	async func(fn func())
}

func NewTelegramController(orders OrderService, transport messaging.Transport, supportEmail string) *TelegramController {
	return &TelegramController{
		orders:       orders,
		transport:    transport,
		supportEmail: supportEmail,
		async:        func(fn func()) { go fn() },
	}
}

// HandleTelegramWebhook always answers 200 so Telegram does not redeliver the update.
func (tc *TelegramController) HandleTelegramWebhook(c *fiber.Ctx) error {
	var update messaging.Update
	if err := c.BodyParser(&update); err != nil {
		log.Warnf("[Telegram] Undecodable update: %v", err)
		return c.SendStatus(fiber.StatusOK)
	}
	if update.Message == nil || strings.TrimSpace(update.Message.Text) == "" {
		return c.SendStatus(fiber.StatusOK)
	}

	userID := update.Message.UserID()
	cmd, err := messaging.ParseCommand(update.Message.Text)
	tc.async(func() {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		tc.dispatch(ctx, userID, cmd, err)
	})
	return c.SendStatus(fiber.StatusOK)
}

func (tc *TelegramController) dispatch(ctx context.Context, userID string, cmd *messaging.Command, parseErr error) {
	reply := tc.execute(ctx, userID, cmd, parseErr)
	if reply == "" {
		return
	}
	if err := tc.transport.SendMessage(ctx, userID, reply); err != nil {
		log.Errorf("[Telegram] Reply to %s failed: %v", userID, err)
	}
}

// execute runs the command and returns the text to reply with, if any.
func (tc *TelegramController) execute(ctx context.Context, userID string, cmd *messaging.Command, parseErr error) string {
	switch {
	case errors.Is(parseErr, messaging.ErrNotACommand):
		return messaging.HelpText()
	case errors.Is(parseErr, messaging.ErrUnknownCommand):
		return "Unknown command.\n\n" + messaging.HelpText()
	case errors.Is(parseErr, messaging.ErrCommandSyntax):
		return "Usage: " + strings.TrimPrefix(parseErr.Error(), messaging.ErrCommandSyntax.Error()+": ")
	case parseErr != nil:
		return messaging.HelpText()
	}

	switch cmd.Name {
	case messaging.CommandStart:
		return welcomeText + "\n\n" + messaging.HelpText()
	case messaging.CommandHelp:
		return messaging.HelpText()
	case messaging.CommandPreview:
		err := tc.orders.Preview(ctx, userID, *cmd.Person)
		if err != nil {
			return replyForError(err)
		}
		return ""
	case messaging.CommandBuy:
		return tc.buy(ctx, userID, models.ReportTypeFull, *cmd.Person, nil)
	case messaging.CommandCompatibility:
		return tc.buy(ctx, userID, models.ReportTypeCompatibility, *cmd.Person, cmd.Partner)
	case messaging.CommandStatus:
		order, err := tc.orders.OrderStatus(ctx, cmd.Code, userID)
		if errors.Is(err, repository.ErrOrderNotFound) {
			return fmt.Sprintf("No order %s found.", cmd.Code)
		}
		if err != nil {
			log.Errorf("[Telegram] Status lookup for %s failed: %v", cmd.Code, err)
			return "Something went wrong, please try again later."
		}
		return fulfillment.StatusText(order, tc.supportEmail)
	}
	return messaging.HelpText()
}

// buy creates the order; the payment instructions are sent by the orchestrator.
func (tc *TelegramController) buy(ctx context.Context, userID string, reportType models.ReportType, person models.Person, partner *models.Person) string {
	_, err := tc.orders.RequestReport(ctx, fulfillment.ReportRequest{
		UserID:     userID,
		ReportType: reportType,
		Person:     person,
		Partner:    partner,
	})
	if err != nil {
		return replyForError(err)
	}
	return ""
}

func replyForError(err error) string {
	var invalid *numerology.InvalidInputError
	if errors.As(err, &invalid) {
		return fmt.Sprintf("Please check your input: %s %s.", strings.ReplaceAll(invalid.Field, "_", " "), invalid.Reason)
	}
	log.Errorf("[Telegram] Command failed: %v", err)
	return "Something went wrong, please try again later."
}
