// Package fulfillment owns the order lifecycle: it is the only writer of order
// state and drives paid orders through compute, interpret, render and delivery.
package fulfillment

import (
	"context"
	"time"

	"github.com/ManuelReschke/NumeroFox/internal/pkg/interpretation"
	"github.com/ManuelReschke/NumeroFox/internal/pkg/payment"
	"github.com/ManuelReschke/NumeroFox/internal/pkg/render"
)

type Interpreter interface {
	Interpret(ctx context.Context, req interpretation.Request) (*interpretation.NarrativeSet, error)
}

type Renderer interface {
	Render(in render.Input) (*render.Document, error)
}

// Scheduler queues a later advance of an order.
type Scheduler interface {
	ScheduleAdvance(ctx context.Context, orderID string, delay time.Duration, reason string) error
}

// Alerter reaches a human operator.
type Alerter interface {
	AlertOperator(ctx context.Context, subject, body string) error
}

// Event is applied to an order through Orchestrator.Apply.
type Event interface {
	orderEvent()
}

// PaymentConfirmed carries a verified payment.
type PaymentConfirmed struct {
	Payment payment.Event
}

// AdvanceRequested asks for the pending stages of an order to run.
type AdvanceRequested struct {
	OrderID string
	Reason  string
}

func (PaymentConfirmed) orderEvent() {}
func (AdvanceRequested) orderEvent() {}
