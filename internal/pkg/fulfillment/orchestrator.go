package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuelReschke/NumeroFox/app/models"
	"github.com/ManuelReschke/NumeroFox/app/repository"
	"github.com/ManuelReschke/NumeroFox/internal/pkg/catalog"
	"github.com/ManuelReschke/NumeroFox/internal/pkg/documents"
	"github.com/ManuelReschke/NumeroFox/internal/pkg/events"
	"github.com/ManuelReschke/NumeroFox/internal/pkg/locker"
	"github.com/ManuelReschke/NumeroFox/internal/pkg/messaging"
	"github.com/ManuelReschke/NumeroFox/internal/pkg/metrics"
	"github.com/ManuelReschke/NumeroFox/internal/pkg/numerology"
	"github.com/ManuelReschke/NumeroFox/internal/pkg/payment"
	"github.com/ManuelReschke/NumeroFox/internal/pkg/shortener"
)

const createCodeAttempts = 3

// Deps are the collaborators of the orchestrator. Events and Now are optional.
type Deps struct {
	Orders      repository.OrderRepository
	// Interpreter serves paid orders and should make one call per Interpret;
	// InterpretAttempts on the order is the retry budget.
	Interpreter Interpreter
	// Previewer serves free previews and may retry on its own. Defaults to Interpreter.
	Previewer   Interpreter
	Renderer    Renderer
	Documents   documents.Store
	Transport   messaging.Transport
	Scheduler   Scheduler
	Locker      locker.Locker
	Alerter     Alerter
	Catalog     *catalog.Catalog
	Events      events.Publisher
	Now         func() time.Time
}

// Orchestrator applies payment and advance events to orders.
type Orchestrator struct {
	Deps
	cfg    Config
	tracer trace.Tracer
}

func New(deps Deps, cfg Config) (*Orchestrator, error) {
	switch {
	case deps.Orders == nil:
		return nil, errors.New("fulfillment: order repository is required")
	case deps.Interpreter == nil:
		return nil, errors.New("fulfillment: interpreter is required")
	case deps.Renderer == nil:
		return nil, errors.New("fulfillment: renderer is required")
	case deps.Documents == nil:
		return nil, errors.New("fulfillment: document store is required")
	case deps.Transport == nil:
		return nil, errors.New("fulfillment: messaging transport is required")
	case deps.Scheduler == nil:
		return nil, errors.New("fulfillment: scheduler is required")
	case deps.Locker == nil:
		return nil, errors.New("fulfillment: locker is required")
	case deps.Alerter == nil:
		return nil, errors.New("fulfillment: alerter is required")
	case deps.Catalog == nil:
		return nil, errors.New("fulfillment: catalog is required")
	}
	if deps.Previewer == nil {
		deps.Previewer = deps.Interpreter
	}
	if deps.Events == nil {
		deps.Events = events.NoopPublisher{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Orchestrator{
		Deps:   deps,
		cfg:    cfg.withDefaults(),
		tracer: otel.Tracer("numerofox/fulfillment"),
	}, nil
}

// ReportRequest is a purchase request coming from a user.
type ReportRequest struct {
	UserID     string
	ReportType models.ReportType
	Person     models.Person
	Partner    *models.Person
}

// RequestReport validates the subjects, creates the order awaiting payment and
// sends the payment instructions. Invalid subjects yield a *numerology.InvalidInputError.
func (o *Orchestrator) RequestReport(ctx context.Context, req ReportRequest) (*models.Order, error) {
	if !req.ReportType.Purchasable() {
		return nil, &numerology.InvalidInputError{Field: "report_type", Reason: "not for sale"}
	}
	if strings.TrimSpace(req.UserID) == "" {
		return nil, &numerology.InvalidInputError{Field: "user_id", Reason: "missing"}
	}
	person, _, err := normalizePerson(req.Person)
	if err != nil {
		return nil, err
	}
	payload := models.OrderPayload{Person: person}
	switch {
	case req.ReportType == models.ReportTypeCompatibility && req.Partner == nil:
		return nil, &numerology.InvalidInputError{Field: "partner", Reason: "required for compatibility"}
	case req.ReportType != models.ReportTypeCompatibility && req.Partner != nil:
		return nil, &numerology.InvalidInputError{Field: "partner", Reason: "only allowed for compatibility"}
	case req.Partner != nil:
		partner, _, err := normalizePerson(*req.Partner)
		if err != nil {
			return nil, err
		}
		payload.Partner = &partner
	}

	product, err := o.Catalog.Lookup(req.ReportType)
	if err != nil {
		return nil, err
	}

	order, err := o.createOrder(ctx, req, payload, product)
	if err != nil {
		return nil, err
	}
	o.publish(ctx, "", order, "order created")

	if err := o.Transport.SendMessage(ctx, order.UserID, paymentInstructions(order, product, o.Catalog, o.cfg.PaymentURL, o.cfg.TestMode)); err != nil {
		log.Warnf("[Orchestrator] Could not send payment instructions for %s: %v", order.Code, err)
	}

	if o.cfg.TestMode {
		ref := "test:" + order.Code
		err := o.Apply(ctx, PaymentConfirmed{Payment: payment.Event{
			EventID:    ref,
			OrderID:    order.ID,
			PaymentRef: ref,
			Amount:     order.PriceAmount,
			Currency:   order.Currency,
			Status:     payment.StatusSucceeded,
		}})
		if err != nil {
			return nil, err
		}
		if fresh, err := o.Orders.GetByID(ctx, order.ID); err == nil {
			order = fresh
		}
	}
	return order, nil
}

func (o *Orchestrator) createOrder(ctx context.Context, req ReportRequest, payload models.OrderPayload, product catalog.Product) (*models.Order, error) {
	var lastErr error
	for i := 0; i < createCodeAttempts; i++ {
		code, err := shortener.GenerateOrderCode()
		if err != nil {
			return nil, err
		}
		order := &models.Order{
			ID:          uuid.New().String(),
			Code:        code,
			UserID:      req.UserID,
			ReportType:  req.ReportType,
			Payload:     payload,
			State:       models.OrderStatePendingPayment,
			PriceAmount: product.Price,
			Currency:    o.Catalog.Currency,
		}
		if err := order.Validate(); err != nil {
			return nil, &numerology.InvalidInputError{Field: "order", Reason: err.Error()}
		}
		err = o.Orders.Create(ctx, order)
		if err == nil {
			log.Infof("[Orchestrator] Created order %s (%s) for user %s", order.Code, order.ReportType, order.UserID)
			return order, nil
		}
		if !errors.Is(err, repository.ErrDuplicateOrder) {
			return nil, fmt.Errorf("create order: %w", err)
		}
		lastErr = err
	}
	return nil, fmt.Errorf("create order: %w", lastErr)
}

// Apply is the single entry point that changes an order.
func (o *Orchestrator) Apply(ctx context.Context, ev Event) error {
	switch e := ev.(type) {
	case PaymentConfirmed:
		return o.applyPayment(ctx, e.Payment)
	case AdvanceRequested:
		return o.advance(ctx, e.OrderID, e.Reason)
	default:
		return fmt.Errorf("fulfillment: unsupported event %T", ev)
	}
}

// Advance runs the pending stages of an order. It satisfies the job queue's OrderAdvancer.
func (o *Orchestrator) Advance(ctx context.Context, orderID, reason string) error {
	return o.Apply(ctx, AdvanceRequested{OrderID: orderID, Reason: reason})
}

func (o *Orchestrator) applyPayment(ctx context.Context, ev payment.Event) error {
	order, err := o.resolveOrder(ctx, ev.OrderID)
	if errors.Is(err, repository.ErrOrderNotFound) {
		log.Warnf("[Orchestrator] Payment %s for unknown order %q discarded", ev.PaymentRef, ev.OrderID)
		return nil
	}
	if err != nil {
		return err
	}

	if order.State != models.OrderStatePendingPayment {
		log.Infof("[Orchestrator] Payment %s for order %s ignored, order is %s", ev.PaymentRef, order.Code, order.State)
		return nil
	}
	if ev.Amount < order.PriceAmount {
		log.Warnf("[Orchestrator] Payment %s for order %s underpaid (%d < %d), discarded", ev.PaymentRef, order.Code, ev.Amount, order.PriceAmount)
		return nil
	}
	if ev.Currency != "" && order.Currency != "" && !strings.EqualFold(ev.Currency, order.Currency) {
		log.Warnf("[Orchestrator] Payment %s for order %s in %s, expected %s, discarded", ev.PaymentRef, order.Code, ev.Currency, order.Currency)
		return nil
	}

	now := o.Now()
	ref, amount := ev.PaymentRef, ev.Amount
	paid, err := o.transition(ctx, order, models.OrderStatePaid, models.OrderPatch{
		PaymentRef: &ref,
		PaidAmount: &amount,
		PaidAt:     &now,
		Reason:     "payment " + ref,
	})
	if errors.Is(err, repository.ErrPaymentRefTaken) || errors.Is(err, repository.ErrTransitionConflict) {
		log.Infof("[Orchestrator] Payment %s for order %s already applied: %v", ref, order.Code, err)
		return nil
	}
	if err != nil {
		return err
	}

	if err := o.Transport.SendMessage(ctx, paid.UserID, paymentReceivedText(paid)); err != nil {
		log.Warnf("[Orchestrator] Could not notify user about payment of %s: %v", paid.Code, err)
	}
	if err := o.Scheduler.ScheduleAdvance(ctx, paid.ID, 0, "payment"); err != nil {
		// The reconciler picks the order up later.
		log.Errorf("[Orchestrator] Could not schedule order %s: %v", paid.Code, err)
	}
	return nil
}

// resolveOrder accepts an order id or an order code.
func (o *Orchestrator) resolveOrder(ctx context.Context, ref string) (*models.Order, error) {
	if ref == "" {
		return nil, repository.ErrOrderNotFound
	}
	order, err := o.Orders.GetByID(ctx, ref)
	if errors.Is(err, repository.ErrOrderNotFound) && shortener.IsOrderCode(ref) {
		return o.Orders.GetByCode(ctx, ref)
	}
	return order, err
}

func (o *Orchestrator) advance(ctx context.Context, orderID, reason string) error {
	lease, err := o.Locker.Acquire(ctx, "order:"+orderID, o.cfg.LeaseTTL)
	if errors.Is(err, locker.ErrNotAcquired) {
		log.Debugf("[Orchestrator] Order %s is being advanced elsewhere", orderID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("acquire order lease: %w", err)
	}
	defer func() {
		if err := lease.Release(context.Background()); err != nil {
			log.Warnf("[Orchestrator] Releasing lease of order %s: %v", orderID, err)
		}
	}()

	log.Debugf("[Orchestrator] Advancing order %s (%s)", orderID, reason)
	for i := 0; i < maxStepsPerAdvance; i++ {
		order, err := o.Orders.GetByID(ctx, orderID)
		if errors.Is(err, repository.ErrOrderNotFound) {
			log.Warnf("[Orchestrator] Advance for unknown order %s dropped", orderID)
			return nil
		}
		if err != nil {
			return err
		}

		done, err := o.step(ctx, order)
		if errors.Is(err, repository.ErrTransitionConflict) {
			log.Infof("[Orchestrator] Order %s changed concurrently, stopping this run", order.Code)
			return nil
		}
		if err != nil || done {
			return err
		}
	}
	return nil
}

// step runs the stage for the order's current state. done means no further
// progress is possible in this run.
func (o *Orchestrator) step(ctx context.Context, order *models.Order) (bool, error) {
	switch order.State {
	case models.OrderStatePendingPayment:
		log.Infof("[Orchestrator] Order %s is not paid yet", order.Code)
		return true, nil
	case models.OrderStatePaid:
		_, err := o.transition(ctx, order, models.OrderStateComputing, models.OrderPatch{IncComputeAttempts: true, Reason: "start"})
		return false, err
	case models.OrderStateComputing:
		return o.traced(ctx, "compute", order, o.compute)
	case models.OrderStateInterpreting:
		return o.traced(ctx, "interpret", order, o.interpret)
	case models.OrderStateRendering:
		return o.traced(ctx, "render", order, o.render)
	default:
		return true, nil
	}
}

func (o *Orchestrator) traced(ctx context.Context, stage string, order *models.Order, fn func(context.Context, *models.Order) (bool, error)) (bool, error) {
	ctx, span := o.tracer.Start(ctx, "fulfillment."+stage, trace.WithAttributes(
		attribute.String("order.id", order.ID),
		attribute.String("order.code", order.Code),
		attribute.String("report.type", string(order.ReportType)),
	))
	defer span.End()

	done, err := fn(ctx, order)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, stage)
	}
	return done, err
}

// transition writes the state change and emits its metric and event.
func (o *Orchestrator) transition(ctx context.Context, order *models.Order, next models.OrderState, patch models.OrderPatch) (*models.Order, error) {
	updated, err := o.Orders.Transition(ctx, order.ID, order.State, next, patch)
	if err != nil {
		return nil, err
	}
	metrics.ObserveTransition(string(order.State), string(next))
	log.Infof("[Orchestrator] Order %s %s -> %s", order.Code, order.State, next)
	o.publish(ctx, order.State, updated, patch.Reason)
	return updated, nil
}

func (o *Orchestrator) publish(ctx context.Context, from models.OrderState, order *models.Order, reason string) {
	evt := events.TransitionEvent{
		OrderID:    order.ID,
		Code:       order.Code,
		UserID:     order.UserID,
		ReportType: string(order.ReportType),
		From:       string(from),
		To:         string(order.State),
		Reason:     reason,
		Attempt:    attemptFor(order),
		At:         o.Now(),
	}
	if err := o.Events.PublishTransition(ctx, evt); err != nil {
		log.Warnf("[Orchestrator] Publishing transition of %s failed: %v", order.Code, err)
	}
}

func attemptFor(order *models.Order) int {
	switch order.State {
	case models.OrderStateComputing:
		return order.ComputeAttempts
	case models.OrderStateInterpreting:
		return order.InterpretAttempts
	case models.OrderStateRendering:
		return order.RenderAttempts
	}
	return 0
}

// OrderStatus returns the order with the given code if it belongs to userID.
func (o *Orchestrator) OrderStatus(ctx context.Context, code, userID string) (*models.Order, error) {
	order, err := o.Orders.GetByCode(ctx, strings.TrimSpace(code))
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, repository.ErrOrderNotFound
	}
	return order, nil
}
