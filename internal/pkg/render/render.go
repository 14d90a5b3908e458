// Package render turns a computed profile and its narrative into the
// deliverable report document.
package render

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"sort"
	"time"

	"github.com/ManuelReschke/NumeroFox/app/models"
	"github.com/ManuelReschke/NumeroFox/internal/pkg/interpretation"
	"github.com/ManuelReschke/NumeroFox/internal/pkg/numerology"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/template/html/v2"
)

//go:embed templates/*.html
var templateFS embed.FS

const ContentTypeHTML = "text/html; charset=utf-8"

// ErrRender is matched by every *RenderError.
var ErrRender = errors.New("render failed")

// RenderError reports why a document could not be produced. It is never transient.
type RenderError struct {
	Reason string
	Err    error
}

func (e *RenderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("render: %s: %v", e.Reason, e.Err)
	}
	return "render: " + e.Reason
}

func (e *RenderError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrRender, e.Err}
	}
	return []error{ErrRender}
}

// Metadata describes the order a document belongs to.
type Metadata struct {
	OrderCode   string            `validate:"required"`
	ReportType  models.ReportType `validate:"required,oneof=full compatibility"`
	GeneratedAt time.Time         `validate:"required"`
	Person      models.Person     `validate:"required"`
	Partner     *models.Person
}

type Input struct {
	Profile        *numerology.Profile          `validate:"required"`
	PartnerProfile *numerology.Profile
	Compatibility  *numerology.CompatibilityScore
	Narrative      *interpretation.NarrativeSet `validate:"required"`
	Metadata       Metadata
}

// Document is a rendered report.
type Document struct {
	Content     []byte
	ContentType string
	Filename    string
}

type Renderer struct {
	engine   *html.Engine
	validate *validator.Validate
}

// NewRenderer parses the embedded templates once.
func NewRenderer() (*Renderer, error) {
	sub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		return nil, err
	}
	engine := html.NewFileSystem(http.FS(sub), ".html")
	engine.AddFunc("percent", numerology.Percent)
	engine.AddFunc("energy", func(arcane int) string { return string(numerology.EnergyOf(arcane)) })
	engine.AddFunc("drive", func(arcane int) string { return string(numerology.DriveOf(arcane)) })
	engine.AddFunc("date", func(t time.Time) string { return t.Format("02.01.2006") })
	if err := engine.Load(); err != nil {
		return nil, fmt.Errorf("load report templates: %w", err)
	}
	return &Renderer{engine: engine, validate: validator.New()}, nil
}

type section struct {
	Key  string
	Text string
}

type view struct {
	Meta           Metadata
	Profile        numerology.Profile
	Numbers        []numerology.NamedNumber
	Arcana         []numerology.NamedNumber
	PersonalYear   int
	PartnerProfile *numerology.Profile
	PartnerNumbers []numerology.NamedNumber
	Compatibility  *numerology.CompatibilityScore
	Summary        string
	Sections       []section
}

// Render produces the document for in. It fails with *RenderError when the
// input is incomplete or a template cannot be executed.
func (r *Renderer) Render(in Input) (*Document, error) {
	if err := r.check(in); err != nil {
		return nil, err
	}

	v := view{
		Meta:     in.Metadata,
		Profile:  *in.Profile,
		Numbers:  in.Profile.Numbers(),
		Arcana:   in.Profile.Arcana(),
		Summary:  in.Narrative.Summary,
		Sections: sortedSections(in.Narrative.Sections),
	}
	if bd, err := numerology.ParseBirthdate(in.Metadata.Person.Birthdate); err == nil {
		v.PersonalYear = numerology.PersonalYear(bd, in.Metadata.GeneratedAt.Year())
	}

	name := "report"
	if in.Metadata.ReportType == models.ReportTypeCompatibility {
		name = "compatibility"
		v.PartnerProfile = in.PartnerProfile
		v.PartnerNumbers = in.PartnerProfile.Numbers()
		v.Compatibility = in.Compatibility
	}

	var buf bytes.Buffer
	if err := r.engine.Render(&buf, name, v); err != nil {
		return nil, &RenderError{Reason: "execute template " + name, Err: err}
	}
	return &Document{
		Content:     buf.Bytes(),
		ContentType: ContentTypeHTML,
		Filename:    Filename(in.Metadata.ReportType, in.Metadata.OrderCode),
	}, nil
}

func (r *Renderer) check(in Input) error {
	if err := r.validate.Struct(in); err != nil {
		return &RenderError{Reason: "incomplete input", Err: err}
	}
	if in.Narrative.Empty() {
		return &RenderError{Reason: "narrative is empty"}
	}
	if in.Metadata.ReportType == models.ReportTypeCompatibility {
		if in.PartnerProfile == nil || in.Compatibility == nil || in.Metadata.Partner == nil {
			return &RenderError{Reason: "compatibility report needs partner data"}
		}
	}
	return nil
}

// Filename is the name the document is delivered under.
func Filename(reportType models.ReportType, code string) string {
	if reportType == models.ReportTypeCompatibility {
		return fmt.Sprintf("compatibility_report_%s.html", code)
	}
	return fmt.Sprintf("numerology_report_%s.html", code)
}

func sortedSections(m map[string]string) []section {
	out := make([]section, 0, len(m))
	for k, v := range m {
		out = append(out, section{Key: k, Text: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
