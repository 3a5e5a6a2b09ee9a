// Package tui renders model schemas as terminal prompts and prints prediction
// results.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/inferx-ml/go-predictform/pkg/fields"
	"github.com/inferx-ml/go-predictform/pkg/model"
	"github.com/inferx-ml/go-predictform/pkg/predict"
	"github.com/inferx-ml/go-predictform/pkg/sanitize"
)

// FieldSetter receives the raw control state of each answered prompt.
// predict.Session satisfies it.
type FieldSetter interface {
	SetField(name, raw string) (model.Values, error)
}

// Renderer drives one prompt per field through a PromptDriver.
type Renderer struct {
	driver PromptDriver
	theme  Theme
}

// New constructs a renderer with the survey driver unless one is supplied.
func New(options ...Option) *Renderer {
	r := &Renderer{}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(r)
	}
	if r.driver == nil {
		r.driver = NewSurveyDriver(nil)
	}
	return r
}

// Name reports the renderer identifier.
func (r *Renderer) Name() string {
	return "tui"
}

// ChooseModel asks which model to use.
func (r *Renderer) ChooseModel(ctx context.Context, models []model.ModelSummary) (model.ModelID, error) {
	if len(models) == 0 {
		return "", ErrNoModels
	}
	options := make([]string, len(models))
	for i, m := range models {
		options[i] = modelLabel(m)
	}
	idx, err := r.driver.Select(ctx, SelectConfig{
		Message:      r.prompt("Select a model"),
		Options:      options,
		DefaultIndex: -1,
		PageSize:     10,
	})
	if err != nil {
		return "", err
	}
	if idx < 0 || idx >= len(models) {
		return "", fmt.Errorf("tui: invalid model selection %d", idx)
	}
	return models[idx].ID, nil
}

// PromptForm asks for every field in schema order, starting from values, and
// hands each raw answer to setter.
func (r *Renderer) PromptForm(ctx context.Context, schemaFields []model.Field, values model.Values, setter FieldSetter) error {
	if ctx == nil {
		return errors.New("tui: context is required")
	}
	if setter == nil {
		return errors.New("tui: field setter is nil")
	}
	for _, field := range schemaFields {
		if err := ctx.Err(); err != nil {
			return err
		}
		control := fields.Describe(field, values[field.Name])
		raw, err := r.promptControl(ctx, control)
		if err != nil {
			return err
		}
		if _, err := setter.SetField(field.Name, raw); err != nil {
			return fmt.Errorf("tui: set %s: %w", field.Name, err)
		}
	}
	return nil
}

func (r *Renderer) promptControl(ctx context.Context, c fields.Control) (string, error) {
	label := r.prompt(c.Label)
	help := sanitize.HelpText(c.Help)

	switch c.Kind {
	case model.KindCheckbox:
		ok, err := r.driver.Confirm(ctx, ConfirmConfig{Message: label, Default: c.Checked, Help: help})
		if err != nil {
			return "", err
		}
		return strconv.FormatBool(ok), nil

	case model.KindDropdown, model.KindRadio:
		options := make([]string, len(c.Options))
		selected := -1
		for i, opt := range c.Options {
			options[i] = opt.Label
			if opt.Selected {
				selected = i
			}
		}
		if len(options) == 0 {
			return "", nil
		}
		idx, err := r.driver.Select(ctx, SelectConfig{Message: label, Options: options, DefaultIndex: selected, Help: help})
		if err != nil {
			return "", err
		}
		if idx < 0 || idx >= len(c.Options) {
			return "", nil
		}
		return c.Options[idx].Value, nil

	case model.KindSlider:
		lo, hi := *c.Min, *c.Max
		return r.driver.Input(ctx, InputConfig{
			Message: fmt.Sprintf("%s [%s-%s]", label, fields.FormatValue(lo), fields.FormatValue(hi)),
			Default: c.Value,
			Help:    help,
		})

	case model.KindNumber:
		message := label
		if c.Min != nil || c.Max != nil {
			message = fmt.Sprintf("%s [%s-%s]", label, boundText(c.Min), boundText(c.Max))
		}
		return r.driver.Input(ctx, InputConfig{Message: message, Default: c.Value, Help: help})

	default:
		return r.driver.Input(ctx, InputConfig{Message: label, Default: c.Value, Help: help})
	}
}

// RenderResult prints the result panel of view.
func (r *Renderer) RenderResult(ctx context.Context, view predict.View) error {
	var lines []string
	switch {
	case view.NoSchema:
		lines = append(lines, r.info(predict.NoSchemaMessage))
	case view.HasError():
		lines = append(lines, r.errorLine(view.ErrorText()))
	}
	if view.Prediction.Present {
		heading := "Prediction"
		if view.TargetColumn != "" {
			heading += " (" + view.TargetColumn + ")"
		}
		lines = append(lines, r.info(heading+": "+view.PredictionText()))
		if conf := view.ConfidenceText(); conf != "" {
			lines = append(lines, r.info(conf))
		}
	}
	if view.Explanation != nil {
		lines = append(lines, r.explanationLines(*view.Explanation)...)
	}
	for _, line := range lines {
		if err := r.driver.Info(ctx, line); err != nil {
			return err
		}
	}
	return nil
}

func (r *Renderer) explanationLines(e model.Explanation) []string {
	lines := []string{r.info("Feature importance:")}
	if len(e.FeatureImportance) == 0 {
		lines = append(lines, "  (none)")
	}
	width := 0
	for _, imp := range e.FeatureImportance {
		if len(imp.Feature) > width {
			width = len(imp.Feature)
		}
	}
	for _, imp := range e.FeatureImportance {
		lines = append(lines, fmt.Sprintf("  %-*s  %s", width, imp.Feature, predict.FormatImportance(imp.Value)))
	}
	if s := strings.TrimSpace(e.Summary); s != "" {
		lines = append(lines, r.info(s))
	}
	return lines
}

// AskExplain offers an explanation after a prediction.
func (r *Renderer) AskExplain(ctx context.Context) (bool, error) {
	return r.driver.Confirm(ctx, ConfirmConfig{Message: r.prompt("Explain this prediction?")})
}

// AskToken prompts for a bearer token without echoing it.
func (r *Renderer) AskToken(ctx context.Context) (string, error) {
	return r.driver.Password(ctx, InputConfig{
		Message: r.prompt("Access token"),
		Validator: func(s string) error {
			if strings.TrimSpace(s) == "" {
				return errors.New("token is required")
			}
			return nil
		},
	})
}

// Info prints a single line with the info prefix.
func (r *Renderer) Info(ctx context.Context, msg string) error {
	return r.driver.Info(ctx, r.info(msg))
}

func (r *Renderer) prompt(s string) string    { return r.theme.PromptPrefix + s }
func (r *Renderer) info(s string) string      { return r.theme.InfoPrefix + s }
func (r *Renderer) errorLine(s string) string { return r.theme.ErrorPrefix + s }

func boundText(v *float64) string {
	if v == nil {
		return ""
	}
	return fields.FormatValue(*v)
}

func modelLabel(m model.ModelSummary) string {
	label := m.Name
	if label == "" {
		label = "model " + m.ID.String()
	}
	if m.ProblemType != "" {
		label += " (" + m.ProblemType + ")"
	}
	return fmt.Sprintf("#%s %s", m.ID, label)
}
