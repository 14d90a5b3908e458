package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ManuelReschke/NumeroFox/app/models"
)

// MemoryOrderRepository is a process-local OrderRepository used by tests and
// the no-database development mode. Transition is serialised by a mutex,
// which gives the same compare-and-set semantics as the SQL store.
type MemoryOrderRepository struct {
	mu          sync.Mutex
	orders      map[string]*models.Order
	byCode      map[string]string
	byRef       map[string]string
	transitions []models.OrderTransition
	now         func() time.Time
}

func NewMemoryOrderRepository() *MemoryOrderRepository {
	return &MemoryOrderRepository{
		orders: map[string]*models.Order{},
		byCode: map[string]string{},
		byRef:  map[string]string{},
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source for UpdatedAt stamps.
func (r *MemoryOrderRepository) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

func (r *MemoryOrderRepository) Create(ctx context.Context, order *models.Order) error {
	if err := checkNewOrder(order); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.orders[order.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateOrder, order.ID)
	}
	if _, ok := r.byCode[order.Code]; ok {
		return fmt.Errorf("%w: code %s", ErrDuplicateOrder, order.Code)
	}
	now := r.now()
	order.CreatedAt = now
	order.UpdatedAt = now

	stored := order.Clone()
	r.orders[order.ID] = stored
	r.byCode[order.Code] = order.ID
	if order.PaymentRef != nil {
		r.byRef[*order.PaymentRef] = order.ID
	}
	return nil
}

func (r *MemoryOrderRepository) GetByID(ctx context.Context, id string) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return o.Clone(), nil
}

func (r *MemoryOrderRepository) GetByCode(ctx context.Context, code string) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byCode[code]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return r.orders[id].Clone(), nil
}

func (r *MemoryOrderRepository) GetByPaymentRef(ctx context.Context, paymentRef string) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byRef[paymentRef]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return r.orders[id].Clone(), nil
}

func (r *MemoryOrderRepository) Transition(ctx context.Context, id string, expected, next models.OrderState, patch models.OrderPatch) (*models.Order, error) {
	if !models.CanTransition(expected, next) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, expected, next)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	if o.State != expected {
		return nil, ErrTransitionConflict
	}
	if patch.PaymentRef != nil {
		if o.PaymentRef != nil {
			return nil, ErrTransitionConflict
		}
		if owner, taken := r.byRef[*patch.PaymentRef]; taken && owner != id {
			return nil, ErrPaymentRefTaken
		}
	}

	patch.ApplyTo(o)
	o.State = next
	o.UpdatedAt = r.now()
	if patch.PaymentRef != nil {
		r.byRef[*patch.PaymentRef] = id
	}

	r.transitions = append(r.transitions, models.OrderTransition{
		ID:        uint(len(r.transitions) + 1),
		OrderID:   id,
		FromState: expected,
		ToState:   next,
		Reason:    truncate(patch.Reason, 255),
		Attempt:   attemptFor(o, next),
		CreatedAt: o.UpdatedAt,
	})
	return o.Clone(), nil
}

func (r *MemoryOrderRepository) ListStalled(ctx context.Context, dueBefore, idleBefore time.Time, limit int) ([]models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []models.Order
	for _, o := range r.orders {
		if !o.State.InPipeline() {
			continue
		}
		due := o.NextAttemptAt != nil && !o.NextAttemptAt.After(dueBefore)
		idle := o.NextAttemptAt == nil && !o.UpdatedAt.After(idleBefore)
		if due || idle {
			out = append(out, *o.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryOrderRepository) ListTransitions(ctx context.Context, orderID string) ([]models.OrderTransition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []models.OrderTransition
	for _, t := range r.transitions {
		if t.OrderID == orderID {
			out = append(out, t)
		}
	}
	return out, nil
}
