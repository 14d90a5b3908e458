package jobqueue

import (
	"context"
	"fmt"
	"time"
)

// OrderAdvancer runs the pending pipeline stages of an order.
type OrderAdvancer interface {
	Advance(ctx context.Context, orderID, reason string) error
}

// AdvanceOrderHandler adapts an OrderAdvancer to the queue's handler signature.
func AdvanceOrderHandler(a OrderAdvancer) Handler {
	return func(ctx context.Context, job *Job) error {
		payload, err := AdvanceOrderPayloadFromMap(job.Payload)
		if err != nil {
			return fmt.Errorf("decode advance payload: %w", err)
		}
		if payload.OrderID == "" {
			return fmt.Errorf("advance job %s has no order id", job.ID)
		}
		return a.Advance(ctx, payload.OrderID, payload.Reason)
	}
}

// OrderScheduler enqueues advance jobs for the order pipeline.
type OrderScheduler struct {
	queue *Queue
}

func NewOrderScheduler(q *Queue) *OrderScheduler {
	return &OrderScheduler{queue: q}
}

// ScheduleAdvance enqueues an advance job that becomes due after delay.
func (s *OrderScheduler) ScheduleAdvance(ctx context.Context, orderID string, delay time.Duration, reason string) error {
	payload := AdvanceOrderPayload{OrderID: orderID, Reason: reason}.ToMap()
	_, err := s.queue.EnqueueDelayed(ctx, JobTypeAdvanceOrder, payload, delay)
	return err
}
