package interpretation

import (
	"encoding/json"
	"strings"

	"github.com/ManuelReschke/NumeroFox/app/models"
	"github.com/ManuelReschke/NumeroFox/internal/pkg/numerology"
)

// Request is everything the interpretation service needs to narrate a profile.
type Request struct {
	OrderID        string                          `json:"order_id,omitempty"`
	ReportType     models.ReportType               `json:"report_type"`
	Person         models.Person                   `json:"person"`
	Profile        numerology.Profile              `json:"profile"`
	Partner        *models.Person                  `json:"partner,omitempty"`
	PartnerProfile *numerology.Profile             `json:"partner_profile,omitempty"`
	Compatibility  *numerology.CompatibilityScore  `json:"compatibility,omitempty"`
}

// NarrativeSet is the prose returned for a profile.
type NarrativeSet struct {
	Summary  string            `json:"summary"`
	Sections map[string]string `json:"sections,omitempty"`
}

func (n *NarrativeSet) Empty() bool {
	if n == nil {
		return true
	}
	if strings.TrimSpace(n.Summary) != "" {
		return false
	}
	for _, v := range n.Sections {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// response accepts the current envelope and the older per-report keys.
type response struct {
	Narratives         map[string]string `json:"narratives"`
	Summary            string            `json:"summary"`
	Interpretation     json.RawMessage   `json:"interpretation"`
	FullInterpretation json.RawMessage   `json:"full_interpretation"`
	Compatibility      json.RawMessage   `json:"compatibility"`
}

func decodeNarrative(body []byte) (*NarrativeSet, error) {
	var r response
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, err
	}
	out := &NarrativeSet{Summary: strings.TrimSpace(r.Summary), Sections: map[string]string{}}
	for k, v := range r.Narratives {
		if strings.TrimSpace(v) != "" {
			out.Sections[k] = v
		}
	}
	for _, raw := range []json.RawMessage{r.FullInterpretation, r.Compatibility, r.Interpretation} {
		mergeLegacy(out, raw)
	}
	if len(out.Sections) == 0 {
		out.Sections = nil
	}
	return out, nil
}

// mergeLegacy folds a legacy field, either a plain string or an object of strings.
func mergeLegacy(out *NarrativeSet, raw json.RawMessage) {
	if len(raw) == 0 {
		return
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		if out.Summary == "" {
			out.Summary = strings.TrimSpace(text)
		}
		return
	}
	var obj map[string]interface{}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return
	}
	for k, v := range obj {
		s, ok := v.(string)
		if !ok || strings.TrimSpace(s) == "" {
			continue
		}
		if _, exists := out.Sections[k]; !exists {
			out.Sections[k] = s
		}
	}
}
