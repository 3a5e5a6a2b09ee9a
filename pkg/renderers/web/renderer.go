// Package web renders the prediction pages of the local web front-end with
// pongo2 templates, styled by a go-theme manifest.
package web

import (
	"embed"
	"fmt"
	"io"
	"io/fs"
	"math"
	"net/http"

	theme "github.com/goliatone/go-theme"

	"github.com/inferx-ml/go-predictform/pkg/fields"
	"github.com/inferx-ml/go-predictform/pkg/model"
	"github.com/inferx-ml/go-predictform/pkg/predict"
	"github.com/inferx-ml/go-predictform/pkg/sanitize"
)

//go:embed templates
var embeddedTemplates embed.FS

//go:embed static
var embeddedStatic embed.FS

// Templates returns the built-in template tree.
func Templates() fs.FS {
	sub, _ := fs.Sub(embeddedTemplates, "templates")
	return sub
}

// StaticFiles returns the built-in static assets, served under the theme's
// asset prefix.
func StaticFiles() http.FileSystem {
	sub, _ := fs.Sub(embeddedStatic, "static")
	return http.FS(sub)
}

// Option configures the renderer.
type Option func(*config)

type config struct {
	templates fs.FS
	manifest  *theme.Manifest
	variant   string
	basePath  string
}

// WithTemplates replaces the built-in templates.
func WithTemplates(files fs.FS) Option {
	return func(c *config) {
		if files != nil {
			c.templates = files
		}
	}
}

// WithTheme selects a manifest and variant.
func WithTheme(manifest *theme.Manifest, variant string) Option {
	return func(c *config) {
		c.manifest = manifest
		c.variant = variant
	}
}

// WithBasePath prefixes every generated link.
func WithBasePath(path string) Option {
	return func(c *config) {
		c.basePath = path
	}
}

// Renderer writes the HTML pages.
type Renderer struct {
	engine   *Engine
	theme    Theme
	basePath string
}

// New builds a renderer. The default theme is DefaultManifest.
func New(options ...Option) (*Renderer, error) {
	cfg := &config{templates: Templates()}
	for _, opt := range options {
		if opt != nil {
			opt(cfg)
		}
	}
	th, err := ResolveTheme(cfg.manifest, cfg.variant)
	if err != nil {
		return nil, err
	}
	engine, err := NewEngine(cfg.templates, map[string]any{
		"base_path": cfg.basePath,
		"theme": themeData{
			Name:       th.Name,
			Variant:    th.Variant,
			CSSVars:    th.CSSVarsStyle(),
			Stylesheet: th.AssetURL(Stylesheet),
		},
	})
	if err != nil {
		return nil, err
	}
	return &Renderer{engine: engine, theme: th, basePath: cfg.basePath}, nil
}

// Name reports the renderer identifier.
func (r *Renderer) Name() string {
	return "web"
}

// ContentType reports the media type of rendered pages.
func (r *Renderer) ContentType() string {
	return "text/html; charset=utf-8"
}

// Theme reports the resolved theme.
func (r *Renderer) Theme() Theme {
	return r.theme
}

type themeData struct {
	Name       string `json:"name"`
	Variant    string `json:"variant,omitempty"`
	CSSVars    string `json:"css_vars"`
	Stylesheet string `json:"stylesheet,omitempty"`
}

// Page carries the data shared by every page.
type Page struct {
	Authenticated bool
}

// ModelsPage lists the models.
type ModelsPage struct {
	Page
	Models []model.ModelSummary
	Error  string
}

// LoginPage asks for a token.
type LoginPage struct {
	Page
	Error  string
	Notice string
	Next   string
}

type modelItem struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	ProblemType   string `json:"problem_type,omitempty"`
	BestModelName string `json:"best_model_name,omitempty"`
	BestScore     string `json:"best_score,omitempty"`
}

type optionData struct {
	Label    string `json:"label"`
	Value    string `json:"value"`
	Selected bool   `json:"selected"`
}

type controlData struct {
	Name     string       `json:"name"`
	Label    string       `json:"label"`
	Kind     string       `json:"kind"`
	HelpHTML string       `json:"help_html,omitempty"`
	Options  []optionData `json:"options,omitempty"`
	Min      string       `json:"min,omitempty"`
	Max      string       `json:"max,omitempty"`
	Value    string       `json:"value"`
	Checked  bool         `json:"checked"`
}

type importanceData struct {
	Feature  string `json:"feature"`
	Value    string `json:"value"`
	Width    string `json:"width"`
	Positive bool   `json:"positive"`
}

type explanationData struct {
	Features []importanceData `json:"features"`
	Summary  string           `json:"summary,omitempty"`
}

type predictData struct {
	Authenticated   bool             `json:"authenticated"`
	ModelID         string           `json:"model_id"`
	ModelName       string           `json:"model_name"`
	TargetColumn    string           `json:"target_column,omitempty"`
	Controls        []controlData    `json:"controls"`
	NoSchema        bool             `json:"no_schema"`
	NoSchemaMessage string           `json:"no_schema_message"`
	CanSubmit       bool             `json:"can_submit"`
	CanExplain      bool             `json:"can_explain"`
	HasPrediction   bool             `json:"has_prediction"`
	PredictionText  string           `json:"prediction_text,omitempty"`
	ConfidenceText  string           `json:"confidence_text,omitempty"`
	ErrorText       string           `json:"error_text,omitempty"`
	Explanation     *explanationData `json:"explanation,omitempty"`
}

// RenderModels writes the model list page.
func (r *Renderer) RenderModels(w io.Writer, page ModelsPage) error {
	items := make([]modelItem, 0, len(page.Models))
	for _, m := range page.Models {
		item := modelItem{
			ID:            m.ID.String(),
			Name:          m.Name,
			ProblemType:   m.ProblemType,
			BestModelName: m.BestModelName,
		}
		if item.Name == "" {
			item.Name = "Model " + item.ID
		}
		if m.BestScore != nil {
			item.BestScore = fmt.Sprintf("%.3f", *m.BestScore)
		}
		items = append(items, item)
	}
	return r.engine.Render(w, "models", map[string]any{
		"authenticated": page.Authenticated,
		"models":        items,
		"error":         page.Error,
	})
}

// RenderLogin writes the login page.
func (r *Renderer) RenderLogin(w io.Writer, page LoginPage) error {
	return r.engine.Render(w, "login", map[string]any{
		"authenticated": page.Authenticated,
		"error":         page.Error,
		"notice":        page.Notice,
		"next":          page.Next,
	})
}

// RenderPredict writes the prediction page for a session snapshot.
func (r *Renderer) RenderPredict(w io.Writer, page Page, view predict.View) error {
	data := predictData{
		Authenticated:   page.Authenticated,
		ModelID:         view.ModelID.String(),
		ModelName:       view.ModelName,
		TargetColumn:    view.TargetColumn,
		Controls:        make([]controlData, 0, len(view.Controls)),
		NoSchema:        view.NoSchema,
		NoSchemaMessage: predict.NoSchemaMessage,
		CanSubmit:       view.CanSubmit,
		CanExplain:      view.CanExplain,
		HasPrediction:   view.Prediction.Present,
		PredictionText:  view.PredictionText(),
		ConfidenceText:  view.ConfidenceText(),
		ErrorText:       view.ErrorText(),
	}
	if data.ModelName == "" {
		data.ModelName = "Model " + data.ModelID
	}
	for _, c := range view.Controls {
		data.Controls = append(data.Controls, controlFor(c))
	}
	if view.Explanation != nil {
		data.Explanation = explanationFor(*view.Explanation)
	}
	return r.engine.Render(w, "predict", data)
}

func controlFor(c fields.Control) controlData {
	out := controlData{
		Name:     c.Name,
		Label:    c.Label,
		Kind:     c.Kind.String(),
		HelpHTML: sanitize.HelpHTML(c.Help),
		Value:    c.Value,
		Checked:  c.Checked,
	}
	if c.Min != nil {
		out.Min = fields.FormatValue(*c.Min)
	}
	if c.Max != nil {
		out.Max = fields.FormatValue(*c.Max)
	}
	for _, o := range c.Options {
		out.Options = append(out.Options, optionData{Label: o.Label, Value: o.Value, Selected: o.Selected})
	}
	return out
}

// explanationFor scales bars against the largest magnitude shown.
func explanationFor(e model.Explanation) *explanationData {
	out := &explanationData{Summary: e.Summary, Features: make([]importanceData, 0, len(e.FeatureImportance))}
	peak := 0.0
	for _, imp := range e.FeatureImportance {
		peak = math.Max(peak, math.Abs(imp.Value))
	}
	for _, imp := range e.FeatureImportance {
		width := 0.0
		if peak > 0 {
			width = math.Abs(imp.Value) / peak * 100
		}
		out.Features = append(out.Features, importanceData{
			Feature:  imp.Feature,
			Value:    predict.FormatImportance(imp.Value),
			Width:    fmt.Sprintf("%.0f", width),
			Positive: imp.Value >= 0,
		})
	}
	return out
}
