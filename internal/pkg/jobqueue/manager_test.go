package jobqueue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingReconciler struct {
	calls int32
	err   error
}

func (r *countingReconciler) ReconcileStalled(ctx context.Context) (int, error) {
	atomic.AddInt32(&r.calls, 1)
	return 2, r.err
}

type recordingAdvancer struct {
	mu    sync.Mutex
	calls []AdvanceOrderPayload
	err   error
}

func (a *recordingAdvancer) Advance(ctx context.Context, orderID, reason string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, AdvanceOrderPayload{OrderID: orderID, Reason: reason})
	return a.err
}

func TestGetManager(t *testing.T) {
	// Reset the singleton for testing
	globalManager = nil
	managerOnce = sync.Once{}

	manager1 := GetManager()
	manager2 := GetManager()

	assert.NotNil(t, manager1)
	assert.Same(t, manager1, manager2, "GetManager should return the same instance")
	assert.NotNil(t, manager1.GetQueue())
	assert.False(t, manager1.IsRunning())
}

func TestManager_StopWithoutStart(t *testing.T) {
	manager := NewManager(NewQueueWithClient(nil, Config{}), 0)

	assert.False(t, manager.IsRunning())
	manager.Stop()
	assert.False(t, manager.IsRunning())
	assert.Equal(t, 2*time.Minute, manager.reconcileInterval)
}

func TestManager_RunReconcileOnce(t *testing.T) {
	manager := NewManager(NewQueueWithClient(nil, Config{}), time.Minute)

	n, err := manager.RunReconcileOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n, "no reconciler installed")

	r := &countingReconciler{}
	manager.SetReconciler(r)
	n, err = manager.RunReconcileOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	r.err = errors.New("db down")
	_, err = manager.RunReconcileOnce(context.Background())
	assert.Error(t, err)
}

func TestManager_StartRunsReconcilerImmediately(t *testing.T) {
	client := newIsolatedRedisClient(t, isolatedJobQueueTestRedisDB)
	manager := NewManager(NewQueueWithClient(client, Config{Workers: 1}), time.Hour)
	r := &countingReconciler{}
	manager.SetReconciler(r)

	manager.Start()
	assert.True(t, manager.IsRunning())
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&r.calls) == 1 }, 2*time.Second, 10*time.Millisecond)

	manager.Stop()
	assert.False(t, manager.IsRunning())

	// Restart after stop is allowed.
	manager.Start()
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&r.calls) == 2 }, 2*time.Second, 10*time.Millisecond)
	manager.Stop()
}

func TestAdvanceOrderHandler(t *testing.T) {
	a := &recordingAdvancer{}
	h := AdvanceOrderHandler(a)

	err := h(context.Background(), &Job{ID: "j1", Payload: AdvanceOrderPayload{OrderID: "ord-9", Reason: "retry"}.ToMap()})
	require.NoError(t, err)
	require.Len(t, a.calls, 1)
	assert.Equal(t, "ord-9", a.calls[0].OrderID)
	assert.Equal(t, "retry", a.calls[0].Reason)

	err = h(context.Background(), &Job{ID: "j2", Payload: map[string]interface{}{}})
	assert.Error(t, err)
	assert.Len(t, a.calls, 1)

	a.err = errors.New("transport down")
	err = h(context.Background(), &Job{ID: "j3", Payload: AdvanceOrderPayload{OrderID: "ord-9"}.ToMap()})
	assert.EqualError(t, err, "transport down")
}

func TestOrderScheduler(t *testing.T) {
	client := newIsolatedRedisClient(t, isolatedJobQueueTestRedisDB)
	q := NewQueueWithClient(client, Config{Workers: 1})
	s := NewOrderScheduler(q)
	ctx := context.Background()

	require.NoError(t, s.ScheduleAdvance(ctx, "ord-1", 0, "payment"))
	require.NoError(t, s.ScheduleAdvance(ctx, "ord-2", time.Minute, "interpretation retry"))

	size, err := q.GetQueueSize(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, size)

	delayed, err := q.GetDelayedSize(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, delayed)

	job, err := q.dequeueJob(ctx)
	require.NoError(t, err)
	p, err := AdvanceOrderPayloadFromMap(job.Payload)
	require.NoError(t, err)
	assert.Equal(t, "ord-1", p.OrderID)
	assert.Equal(t, "payment", p.Reason)
}
