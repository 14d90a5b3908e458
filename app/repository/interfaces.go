package repository

import (
	"context"
	"time"

	"github.com/ManuelReschke/NumeroFox/app/models"
	"gorm.io/gorm"
)

// OrderReader is the read side of the order store. Everything outside the
// fulfillment orchestrator only gets this view.
type OrderReader interface {
	GetByID(ctx context.Context, id string) (*models.Order, error)
	GetByCode(ctx context.Context, code string) (*models.Order, error)
	GetByPaymentRef(ctx context.Context, paymentRef string) (*models.Order, error)
	ListTransitions(ctx context.Context, orderID string) ([]models.OrderTransition, error)
	// ListStalled returns pipeline orders whose retry is due before dueBefore, or
	// that have no retry scheduled and were last touched before idleBefore.
	ListStalled(ctx context.Context, dueBefore, idleBefore time.Time, limit int) ([]models.Order, error)
}

// OrderRepository defines the persistence operations for orders.
type OrderRepository interface {
	OrderReader
	Create(ctx context.Context, order *models.Order) error
	// Transition moves the order from expected to next and applies patch, atomically
	// and only if the stored state still equals expected. The audit row is written
	// in the same unit.
	Transition(ctx context.Context, id string, expected, next models.OrderState, patch models.OrderPatch) (*models.Order, error)
}

// PaymentEventRepository records inbound payment webhooks for deduplication.
type PaymentEventRepository interface {
	CreateIfNotExists(ctx context.Context, event *models.PaymentWebhookEvent) (bool, *models.PaymentWebhookEvent, error)
	MarkProcessed(ctx context.Context, id uint, processingError string) error
}

// Repositories struct holds all repository instances
type Repositories struct {
	Order        OrderRepository
	PaymentEvent PaymentEventRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Order:        NewOrderRepository(db),
		PaymentEvent: NewPaymentEventRepository(db),
	}
}
