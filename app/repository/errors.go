package repository

import (
	"errors"
	"fmt"

	"github.com/ManuelReschke/NumeroFox/app/models"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	// ErrTransitionConflict means the order was no longer in the expected state.
	ErrTransitionConflict = errors.New("order transition conflict")
	ErrInvalidTransition  = errors.New("invalid order transition")
	// ErrPaymentRefTaken means another order already carries the payment reference.
	ErrPaymentRefTaken   = errors.New("payment reference already bound to an order")
	ErrDuplicateOrder    = errors.New("order already exists")
	ErrWebhookEventEmpty = errors.New("webhook event requires provider and event id")
)

// checkNewOrder fills the initial state of a new order and rejects any other.
func checkNewOrder(order *models.Order) error {
	if order.State == "" {
		order.State = models.OrderStatePendingPayment
	}
	if order.State != models.OrderStatePendingPayment {
		return fmt.Errorf("%w: new order %s in %s", ErrInvalidTransition, order.ID, order.State)
	}
	return nil
}
