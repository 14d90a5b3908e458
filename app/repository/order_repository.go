package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ManuelReschke/NumeroFox/app/models"
	"gorm.io/gorm"
)

// orderRepository implements OrderRepository on GORM
type orderRepository struct {
	db *gorm.DB
}

// NewOrderRepository creates a new order repository instance
func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{db: db}
}

func (r *orderRepository) Create(ctx context.Context, order *models.Order) error {
	if err := checkNewOrder(order); err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: %s", ErrDuplicateOrder, order.ID)
		}
		return err
	}
	return nil
}

func (r *orderRepository) GetByID(ctx context.Context, id string) (*models.Order, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *orderRepository) GetByCode(ctx context.Context, code string) (*models.Order, error) {
	return r.first(ctx, "code = ?", code)
}

func (r *orderRepository) GetByPaymentRef(ctx context.Context, paymentRef string) (*models.Order, error) {
	return r.first(ctx, "payment_ref = ?", paymentRef)
}

func (r *orderRepository) first(ctx context.Context, query string, arg interface{}) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).Where(query, arg).First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (r *orderRepository) Transition(ctx context.Context, id string, expected, next models.OrderState, patch models.OrderPatch) (*models.Order, error) {
	if !models.CanTransition(expected, next) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, expected, next)
	}

	var updated models.Order
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := patch.Columns()
		for _, col := range patch.IncrementedCounters() {
			updates[col] = gorm.Expr(col + " + 1")
		}
		updates["state"] = next
		updates["updated_at"] = time.Now().UTC()

		q := tx.Model(&models.Order{}).Where("id = ? AND state = ?", id, expected)
		if patch.PaymentRef != nil {
			q = q.Where("payment_ref IS NULL")
		}
		res := q.Updates(updates)
		if res.Error != nil {
			if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
				return ErrPaymentRefTaken
			}
			return res.Error
		}
		if res.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&models.Order{}).Where("id = ?", id).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return ErrOrderNotFound
			}
			return ErrTransitionConflict
		}

		if err := tx.First(&updated, "id = ?", id).Error; err != nil {
			return err
		}
		return tx.Create(&models.OrderTransition{
			OrderID:   id,
			FromState: expected,
			ToState:   next,
			Reason:    truncate(patch.Reason, 255),
			Attempt:   attemptFor(&updated, next),
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (r *orderRepository) ListStalled(ctx context.Context, dueBefore, idleBefore time.Time, limit int) ([]models.Order, error) {
	if limit <= 0 {
		limit = 100
	}
	var orders []models.Order
	err := r.db.WithContext(ctx).
		Where("state IN ?", models.PipelineStates()).
		Where("(next_attempt_at IS NOT NULL AND next_attempt_at <= ?) OR (next_attempt_at IS NULL AND updated_at <= ?)", dueBefore, idleBefore).
		Order("updated_at ASC").
		Limit(limit).
		Find(&orders).Error
	return orders, err
}

func (r *orderRepository) ListTransitions(ctx context.Context, orderID string) ([]models.OrderTransition, error) {
	var rows []models.OrderTransition
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Order("id ASC").Find(&rows).Error
	return rows, err
}

// attemptFor reports the attempt counter relevant to the state just entered.
func attemptFor(o *models.Order, state models.OrderState) int {
	switch state {
	case models.OrderStateInterpreting, models.OrderStateRendering:
		return o.InterpretAttempts
	case models.OrderStateDelivered:
		return o.RenderAttempts
	case models.OrderStateComputing:
		return o.ComputeAttempts
	}
	return 0
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
