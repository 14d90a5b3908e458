package repository

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ManuelReschke/NumeroFox/app/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOrder(id, code string) *models.Order {
	return &models.Order{
		ID:          id,
		Code:        code,
		UserID:      "1001",
		ReportType:  models.ReportTypeFull,
		Payload:     models.OrderPayload{Person: models.Person{Name: "Иван Иванов", Birthdate: "1990-05-14"}},
		State:       models.OrderStatePendingPayment,
		PriceAmount: 14900,
		Currency:    "RUB",
	}
}

func strPtr(s string) *string { return &s }

func TestMemoryOrderRepositoryTransition(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryOrderRepository()
	require.NoError(t, repo.Create(ctx, newTestOrder("o1", "CODE0001")))

	paid, err := repo.Transition(ctx, "o1", models.OrderStatePendingPayment, models.OrderStatePaid,
		models.OrderPatch{PaymentRef: strPtr("pay-1"), Reason: "payment confirmed"})
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatePaid, paid.State)

	_, err = repo.Transition(ctx, "o1", models.OrderStatePendingPayment, models.OrderStatePaid, models.OrderPatch{})
	assert.ErrorIs(t, err, ErrTransitionConflict)

	_, err = repo.Transition(ctx, "o1", models.OrderStatePaid, models.OrderStateDelivered, models.OrderPatch{})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = repo.Transition(ctx, "missing", models.OrderStatePaid, models.OrderStateComputing, models.OrderPatch{})
	assert.ErrorIs(t, err, ErrOrderNotFound)

	byRef, err := repo.GetByPaymentRef(ctx, "pay-1")
	require.NoError(t, err)
	assert.Equal(t, "o1", byRef.ID)

	history, err := repo.ListTransitions(ctx, "o1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.OrderStatePendingPayment, history[0].FromState)
	assert.Equal(t, models.OrderStatePaid, history[0].ToState)
	assert.Equal(t, "payment confirmed", history[0].Reason)
}

func TestMemoryOrderRepositoryPaymentRefUnique(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryOrderRepository()
	require.NoError(t, repo.Create(ctx, newTestOrder("o1", "CODE0001")))
	require.NoError(t, repo.Create(ctx, newTestOrder("o2", "CODE0002")))

	_, err := repo.Transition(ctx, "o1", models.OrderStatePendingPayment, models.OrderStatePaid, models.OrderPatch{PaymentRef: strPtr("pay-x")})
	require.NoError(t, err)

	_, err = repo.Transition(ctx, "o2", models.OrderStatePendingPayment, models.OrderStatePaid, models.OrderPatch{PaymentRef: strPtr("pay-x")})
	assert.ErrorIs(t, err, ErrPaymentRefTaken)

	o2, err := repo.GetByID(ctx, "o2")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatePendingPayment, o2.State)
}

func TestMemoryOrderRepositoryConcurrentTransitionHasOneWinner(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryOrderRepository()
	require.NoError(t, repo.Create(ctx, newTestOrder("o1", "CODE0001")))

	var wins, conflicts int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Transition(ctx, "o1", models.OrderStatePendingPayment, models.OrderStatePaid, models.OrderPatch{})
			switch {
			case err == nil:
				atomic.AddInt32(&wins, 1)
			case errors.Is(err, ErrTransitionConflict):
				atomic.AddInt32(&conflicts, 1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins)
	assert.Equal(t, int32(31), conflicts)
	history, _ := repo.ListTransitions(ctx, "o1")
	assert.Len(t, history, 1)
}

func TestMemoryOrderRepositoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryOrderRepository()
	require.NoError(t, repo.Create(ctx, newTestOrder("o1", "CODE0001")))

	o, err := repo.GetByID(ctx, "o1")
	require.NoError(t, err)
	o.State = models.OrderStateDelivered

	again, err := repo.GetByCode(ctx, "CODE0001")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatePendingPayment, again.State)
}

func TestMemoryOrderRepositoryListStalled(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryOrderRepository()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo.SetClock(func() time.Time { return base })

	for _, id := range []string{"idle", "due", "later", "pending"} {
		require.NoError(t, repo.Create(ctx, newTestOrder(id, "C-"+id)))
	}
	for _, id := range []string{"idle", "due", "later"} {
		_, err := repo.Transition(ctx, id, models.OrderStatePendingPayment, models.OrderStatePaid, models.OrderPatch{})
		require.NoError(t, err)
	}
	dueAt := base.Add(time.Minute)
	laterAt := base.Add(time.Hour)
	_, err := repo.Transition(ctx, "due", models.OrderStatePaid, models.OrderStateComputing, models.OrderPatch{NextAttemptAt: &dueAt})
	require.NoError(t, err)
	_, err = repo.Transition(ctx, "later", models.OrderStatePaid, models.OrderStateComputing, models.OrderPatch{NextAttemptAt: &laterAt})
	require.NoError(t, err)

	now := base.Add(10 * time.Minute)
	stalled, err := repo.ListStalled(ctx, now, now.Add(-5*time.Minute), 10)
	require.NoError(t, err)

	var ids []string
	for _, o := range stalled {
		ids = append(ids, o.ID)
	}
	assert.ElementsMatch(t, []string{"idle", "due"}, ids)
}

func TestCreateRejectsNonInitialState(t *testing.T) {
	ctx := context.Background()
	stores := map[string]OrderRepository{"memory": NewMemoryOrderRepository()}
	if db := openTestDBOrNil(t); db != nil {
		stores["sql"] = NewOrderRepository(db)
	}

	for name, repo := range stores {
		t.Run(name, func(t *testing.T) {
			for _, state := range []models.OrderState{models.OrderStatePaid, models.OrderStateDelivered, models.OrderStateFailedTerminal} {
				order := newTestOrder("o-"+string(state), "C"+string(state)[:4])
				order.State = state
				err := repo.Create(ctx, order)
				assert.ErrorIs(t, err, ErrInvalidTransition, state)

				_, err = repo.GetByID(ctx, order.ID)
				assert.ErrorIs(t, err, ErrOrderNotFound, state)
			}

			blank := newTestOrder("o-blank", "CBLANK01")
			blank.State = ""
			require.NoError(t, repo.Create(ctx, blank))
			got, err := repo.GetByID(ctx, "o-blank")
			require.NoError(t, err)
			assert.Equal(t, models.OrderStatePendingPayment, got.State)
		})
	}
}
