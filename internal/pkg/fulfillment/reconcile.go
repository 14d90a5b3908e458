package fulfillment

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2/log"
)

// ReconcileStalled re-enqueues paid orders whose retry is due or that have not
// moved for StallAfter. Duplicate enqueues are harmless: advances are leased
// and re-read the order state.
func (o *Orchestrator) ReconcileStalled(ctx context.Context) (int, error) {
	now := o.Now()
	stalled, err := o.Orders.ListStalled(ctx, now, now.Add(-o.cfg.StallAfter), reconcileBatchSize)
	if err != nil {
		return 0, fmt.Errorf("list stalled orders: %w", err)
	}

	scheduled := 0
	for _, order := range stalled {
		if err := o.Scheduler.ScheduleAdvance(ctx, order.ID, 0, "reconcile"); err != nil {
			log.Errorf("[Orchestrator] Reconcile could not schedule order %s: %v", order.Code, err)
			continue
		}
		scheduled++
	}
	return scheduled, nil
}

// Kick schedules an immediate advance on operator request.
func (o *Orchestrator) Kick(ctx context.Context, orderID string) error {
	order, err := o.Orders.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	log.Infof("[Orchestrator] Operator kick for order %s (%s)", order.Code, order.State)
	return o.Scheduler.ScheduleAdvance(ctx, order.ID, 0, "operator kick")
}
