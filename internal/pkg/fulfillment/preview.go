package fulfillment

import (
	"context"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/NumeroFox/app/models"
	"github.com/ManuelReschke/NumeroFox/internal/pkg/interpretation"
	"github.com/ManuelReschke/NumeroFox/internal/pkg/numerology"
)

// PreviewResult is a free mini report. No order is stored for it.
type PreviewResult struct {
	Person    models.Person                `json:"person"`
	Profile   numerology.Profile           `json:"profile"`
	Narrative *interpretation.NarrativeSet `json:"narrative,omitempty"`
	Text      string                       `json:"text"`
}

// BuildPreview computes the profile and asks for the short narrative. A failed
// interpretation degrades to a numbers-only preview.
func (o *Orchestrator) BuildPreview(ctx context.Context, person models.Person) (*PreviewResult, error) {
	normalized, profile, err := normalizePerson(person)
	if err != nil {
		return nil, err
	}

	stageCtx, cancel := context.WithTimeout(ctx, o.cfg.StageTimeout)
	defer cancel()
	narrative, err := o.Previewer.Interpret(stageCtx, interpretation.Request{
		ReportType: models.ReportTypePreview,
		Person:     normalized,
		Profile:    profile,
	})
	if err != nil {
		log.Warnf("[Orchestrator] Preview interpretation failed, sending numbers only: %v", err)
		narrative = nil
	}

	return &PreviewResult{
		Person:    normalized,
		Profile:   profile,
		Narrative: narrative,
		Text:      previewText(normalized, profile, narrative),
	}, nil
}

// Preview builds the free preview and sends it to userID.
func (o *Orchestrator) Preview(ctx context.Context, userID string, person models.Person) error {
	result, err := o.BuildPreview(ctx, person)
	if err != nil {
		return err
	}
	return o.Transport.SendMessage(ctx, userID, result.Text)
}
