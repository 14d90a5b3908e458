package fulfillment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/NumeroFox/app/models"
	"github.com/ManuelReschke/NumeroFox/internal/pkg/documents"
	"github.com/ManuelReschke/NumeroFox/internal/pkg/interpretation"
	"github.com/ManuelReschke/NumeroFox/internal/pkg/metrics"
	"github.com/ManuelReschke/NumeroFox/internal/pkg/numerology"
	"github.com/ManuelReschke/NumeroFox/internal/pkg/render"
)

const (
	stageCompute   = "compute"
	stageInterpret = "interpret"
	stageRender    = "render"

	maxLastErrorLen = 1000
)

// profileBundle is the computed stage output stored on the order.
type profileBundle struct {
	Profile        numerology.Profile             `json:"profile"`
	PartnerProfile *numerology.Profile            `json:"partner_profile,omitempty"`
	Compatibility  *numerology.CompatibilityScore `json:"compatibility,omitempty"`
}

// normalizePerson trims the name and rewrites the birthdate as YYYY-MM-DD.
func normalizePerson(p models.Person) (models.Person, numerology.Profile, error) {
	name := strings.Join(strings.Fields(p.Name), " ")
	bd, err := numerology.ParseBirthdate(p.Birthdate)
	if err != nil {
		return models.Person{}, numerology.Profile{}, err
	}
	profile, err := numerology.Compute(name, bd)
	if err != nil {
		return models.Person{}, numerology.Profile{}, err
	}
	return models.Person{Name: name, Birthdate: bd.Format("2006-01-02")}, profile, nil
}

func computeBundle(payload models.OrderPayload) (*profileBundle, error) {
	_, profile, err := normalizePerson(payload.Person)
	if err != nil {
		return nil, err
	}
	b := &profileBundle{Profile: profile}
	if payload.Partner != nil {
		_, partner, err := normalizePerson(*payload.Partner)
		if err != nil {
			return nil, err
		}
		score := numerology.Compatibility(profile, partner)
		b.PartnerProfile = &partner
		b.Compatibility = &score
	}
	return b, nil
}

func (o *Orchestrator) compute(ctx context.Context, order *models.Order) (bool, error) {
	bundle, err := computeBundle(order.Payload)
	if err != nil {
		return o.fail(ctx, order, stageCompute, err, models.OrderPatch{})
	}
	raw, err := json.Marshal(bundle)
	if err != nil {
		return o.fail(ctx, order, stageCompute, err, models.OrderPatch{})
	}
	profileJSON := string(raw)
	_, err = o.transition(ctx, order, models.OrderStateInterpreting, models.OrderPatch{
		ProfileJSON:      &profileJSON,
		ClearNextAttempt: true,
		Reason:           "profile computed",
	})
	return false, err
}

func (o *Orchestrator) interpret(ctx context.Context, order *models.Order) (bool, error) {
	now := o.Now()
	if order.NextAttemptAt != nil && now.Before(*order.NextAttemptAt) {
		wait := order.NextAttemptAt.Sub(now)
		if err := o.Scheduler.ScheduleAdvance(ctx, order.ID, wait, "interpretation retry"); err != nil {
			log.Errorf("[Orchestrator] Could not reschedule order %s: %v", order.Code, err)
		}
		return true, nil
	}

	bundle, err := decodeBundle(order)
	if err != nil {
		return o.fail(ctx, order, stageInterpret, err, models.OrderPatch{})
	}

	stageCtx, cancel := context.WithTimeout(ctx, o.cfg.StageTimeout)
	narrative, err := o.Interpreter.Interpret(stageCtx, interpretation.Request{
		OrderID:        order.ID,
		ReportType:     order.ReportType,
		Person:         order.Payload.Person,
		Profile:        bundle.Profile,
		Partner:        order.Payload.Partner,
		PartnerProfile: bundle.PartnerProfile,
		Compatibility:  bundle.Compatibility,
	})
	cancel()

	if err == nil {
		raw, merr := json.Marshal(narrative)
		if merr != nil {
			return o.fail(ctx, order, stageInterpret, merr, models.OrderPatch{})
		}
		narrativeJSON, cleared := string(raw), ""
		_, err = o.transition(ctx, order, models.OrderStateRendering, models.OrderPatch{
			NarrativeJSON:    &narrativeJSON,
			LastError:        &cleared,
			ClearNextAttempt: true,
			Reason:           "narrative received",
		})
		return false, err
	}

	// Shutdown or a cancelled job is not a failed attempt.
	if ctx.Err() != nil {
		return true, ctx.Err()
	}

	attempts := order.InterpretAttempts + 1
	if errors.Is(err, interpretation.ErrInterpretationRejected) || attempts >= o.cfg.MaxInterpretAttempts {
		return o.fail(ctx, order, stageInterpret, err, models.OrderPatch{IncInterpretAttempts: true})
	}

	delay := o.cfg.retryDelay(attempts)
	next := now.Add(delay)
	lastErr := truncate(err.Error())
	if _, terr := o.transition(ctx, order, models.OrderStateInterpreting, models.OrderPatch{
		IncInterpretAttempts: true,
		NextAttemptAt:        &next,
		LastError:            &lastErr,
		Reason:               fmt.Sprintf("interpretation attempt %d failed", attempts),
	}); terr != nil {
		return true, terr
	}
	log.Warnf("[Orchestrator] Order %s interpretation attempt %d/%d failed, retry in %s: %v",
		order.Code, attempts, o.cfg.MaxInterpretAttempts, delay, err)
	if serr := o.Scheduler.ScheduleAdvance(ctx, order.ID, delay, "interpretation retry"); serr != nil {
		log.Errorf("[Orchestrator] Could not schedule retry of order %s: %v", order.Code, serr)
	}
	return true, nil
}

func (o *Orchestrator) render(ctx context.Context, order *models.Order) (bool, error) {
	bundle, err := decodeBundle(order)
	if err != nil {
		return o.fail(ctx, order, stageRender, err, models.OrderPatch{})
	}
	var narrative interpretation.NarrativeSet
	if err := json.Unmarshal([]byte(order.NarrativeJSON), &narrative); err != nil {
		return o.fail(ctx, order, stageRender, fmt.Errorf("stored narrative: %w", err), models.OrderPatch{})
	}

	now := o.Now()
	doc, err := o.Renderer.Render(render.Input{
		Profile:        &bundle.Profile,
		PartnerProfile: bundle.PartnerProfile,
		Compatibility:  bundle.Compatibility,
		Narrative:      &narrative,
		Metadata: render.Metadata{
			OrderCode:   order.Code,
			ReportType:  order.ReportType,
			GeneratedAt: now,
			Person:      order.Payload.Person,
			Partner:     order.Payload.Partner,
		},
	})
	if err != nil {
		return o.fail(ctx, order, stageRender, err, models.OrderPatch{})
	}

	// Storage and transport failures are returned so the job is retried.
	ref, err := o.Documents.Put(ctx, documents.ObjectKey(order.ID, ".html", now), doc.Content, doc.ContentType)
	if err != nil {
		return true, fmt.Errorf("store document of %s: %w", order.Code, err)
	}
	if err := o.Transport.SendDocument(ctx, order.UserID, doc.Content, doc.Filename); err != nil {
		return true, fmt.Errorf("deliver document of %s: %w", order.Code, err)
	}

	deliveredAt := o.Now()
	_, err = o.transition(ctx, order, models.OrderStateDelivered, models.OrderPatch{
		DocumentRef:       &ref,
		DeliveredAt:       &deliveredAt,
		IncRenderAttempts: true,
		Reason:            "delivered",
	})
	return true, err
}

// fail moves the order to FAILED_TERMINAL, tells the user and alerts the operator.
func (o *Orchestrator) fail(ctx context.Context, order *models.Order, stage string, cause error, patch models.OrderPatch) (bool, error) {
	lastErr := truncate(cause.Error())
	patch.LastError = &lastErr
	patch.ClearNextAttempt = true
	patch.Reason = stage + " failed"

	failed, err := o.transition(ctx, order, models.OrderStateFailedTerminal, patch)
	if err != nil {
		return true, err
	}
	metrics.ObservePipelineFailure(stage)
	log.Errorf("[Orchestrator] Order %s failed terminally in %s: %v", order.Code, stage, cause)

	if err := o.Transport.SendMessage(ctx, failed.UserID, FailureMessage); err != nil {
		log.Warnf("[Orchestrator] Could not notify user about failed order %s: %v", failed.Code, err)
	}
	if err := o.Alerter.AlertOperator(ctx, "Order "+failed.Code+" failed", operatorAlertBody(failed, stage)); err != nil {
		log.Errorf("[Orchestrator] Operator alert for order %s failed: %v", failed.Code, err)
	}
	return true, nil
}

func decodeBundle(order *models.Order) (*profileBundle, error) {
	if order.ProfileJSON == "" {
		return nil, errors.New("stored profile is missing")
	}
	var b profileBundle
	if err := json.Unmarshal([]byte(order.ProfileJSON), &b); err != nil {
		return nil, fmt.Errorf("stored profile: %w", err)
	}
	return &b, nil
}

func truncate(s string) string {
	if len(s) <= maxLastErrorLen {
		return s
	}
	return s[:maxLastErrorLen]
}
