package fields

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/inferx-ml/go-predictform/pkg/model"
)

const (
	// UnselectedLabel is shown for the empty sentinel option of a dropdown.
	UnselectedLabel = "Select..."

	sliderDefaultMin   = 0.0
	sliderDefaultMax   = 100.0
	sliderDefaultValue = 50.0
)

// Option is one choice of a dropdown or radio group.
type Option struct {
	Label    string
	Value    string
	Selected bool
}

// Control is the display description of a field for its current value.
type Control struct {
	Name    string
	Label   string
	Help    string
	Kind    model.InputKind
	Options []Option
	Min     *float64
	Max     *float64
	// Value is the string form shown in the control.
	Value   string
	Checked bool
}

// Behavior implements one input kind.
type Behavior interface {
	Kind() model.InputKind
	Describe(field model.Field, current any) Control
	Coerce(field model.Field, raw string) any
}

var behaviors = [model.KindCount]Behavior{
	model.KindText:     textBehavior{},
	model.KindNumber:   numberBehavior{},
	model.KindDropdown: dropdownBehavior{},
	model.KindSlider:   sliderBehavior{},
	model.KindCheckbox: checkboxBehavior{},
	model.KindRadio:    radioBehavior{},
}

// For returns the behaviour for kind. Invalid kinds get the text behaviour.
func For(kind model.InputKind) Behavior {
	if !kind.Valid() {
		return behaviors[model.KindText]
	}
	return behaviors[kind]
}

// Describe resolves the control for field given its current value.
func Describe(field model.Field, current any) Control {
	return For(field.Kind).Describe(field, current)
}

// Coerce converts raw control state into the value stored for field.
func Coerce(field model.Field, raw string) any {
	return For(field.Kind).Coerce(field, raw)
}

// SliderBounds returns the effective slider range, [min ?? 0, max ?? 100].
func SliderBounds(field model.Field) (float64, float64) {
	lo, hi := sliderDefaultMin, sliderDefaultMax
	if field.Min != nil {
		lo = *field.Min
	}
	if field.Max != nil {
		hi = *field.Max
	}
	return lo, hi
}

func baseControl(field model.Field) Control {
	return Control{
		Name:  field.Name,
		Label: field.DisplayLabel(),
		Help:  field.Help,
		Kind:  field.Kind,
	}
}

type textBehavior struct{}

func (textBehavior) Kind() model.InputKind { return model.KindText }

func (textBehavior) Describe(field model.Field, current any) Control {
	c := baseControl(field)
	c.Kind = model.KindText
	c.Value = FormatValue(current)
	return c
}

func (textBehavior) Coerce(_ model.Field, raw string) any {
	return raw
}

type numberBehavior struct{}

func (numberBehavior) Kind() model.InputKind { return model.KindNumber }

func (numberBehavior) Describe(field model.Field, current any) Control {
	c := baseControl(field)
	c.Kind = model.KindNumber
	c.Min = field.Min
	c.Max = field.Max
	c.Value = FormatValue(current)
	return c
}

// Coerce parses a float and falls back to 0 when parsing fails.
func (numberBehavior) Coerce(_ model.Field, raw string) any {
	v, ok := parseFinite(raw)
	if !ok {
		return 0.0
	}
	return v
}

type sliderBehavior struct{}

func (sliderBehavior) Kind() model.InputKind { return model.KindSlider }

// Describe shows default ?? 50 while the current value is falsy.
func (sliderBehavior) Describe(field model.Field, current any) Control {
	c := baseControl(field)
	c.Kind = model.KindSlider
	lo, hi := SliderBounds(field)
	c.Min, c.Max = &lo, &hi

	display := current
	if isFalsy(display) {
		if field.HasDefault() {
			display = field.Default
		} else {
			display = sliderDefaultValue
		}
	}
	c.Value = FormatValue(display)
	return c
}

// Coerce parses a float. Unparseable input lands on the lower bound since a
// range control can never produce it.
func (sliderBehavior) Coerce(field model.Field, raw string) any {
	v, ok := parseFinite(raw)
	if !ok {
		lo, _ := SliderBounds(field)
		return lo
	}
	return v
}

type checkboxBehavior struct{}

func (checkboxBehavior) Kind() model.InputKind { return model.KindCheckbox }

func (checkboxBehavior) Describe(field model.Field, current any) Control {
	c := baseControl(field)
	c.Kind = model.KindCheckbox
	c.Checked = truthy(current)
	c.Value = strconv.FormatBool(c.Checked)
	return c
}

func (checkboxBehavior) Coerce(_ model.Field, raw string) any {
	return ParseBool(raw)
}

type dropdownBehavior struct{}

func (dropdownBehavior) Kind() model.InputKind { return model.KindDropdown }

func (dropdownBehavior) Describe(field model.Field, current any) Control {
	c := baseControl(field)
	c.Kind = model.KindDropdown
	c.Value = FormatValue(current)
	c.Options = make([]Option, 0, len(field.Options)+1)
	c.Options = append(c.Options, Option{Label: UnselectedLabel, Value: "", Selected: c.Value == ""})
	c.Options = append(c.Options, choiceOptions(field.Options, c.Value)...)
	return c
}

func (dropdownBehavior) Coerce(_ model.Field, raw string) any {
	return raw
}

type radioBehavior struct{}

func (radioBehavior) Kind() model.InputKind { return model.KindRadio }

func (radioBehavior) Describe(field model.Field, current any) Control {
	c := baseControl(field)
	c.Kind = model.KindRadio
	c.Value = FormatValue(current)
	c.Options = choiceOptions(field.Options, c.Value)
	return c
}

func (radioBehavior) Coerce(_ model.Field, raw string) any {
	return raw
}

// parseFinite rejects NaN and infinities, which ParseFloat accepts but JSON
// cannot encode.
func parseFinite(raw string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func choiceOptions(options []string, current string) []Option {
	out := make([]Option, 0, len(options))
	for _, opt := range options {
		out = append(out, Option{Label: opt, Value: opt, Selected: opt == current})
	}
	return out
}

// FormatValue renders a stored value as control text. nil becomes "".
func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

// ParseBool reads checkbox state as submitted by HTML forms and terminals.
func ParseBool(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "t", "true", "on", "yes", "y", "checked":
		return true
	default:
		return false
	}
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return ParseBool(t)
	default:
		return !isFalsy(v)
	}
}

func isFalsy(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case bool:
		return !t
	case float64:
		return t == 0
	case float32:
		return t == 0
	case int:
		return t == 0
	case int64:
		return t == 0
	default:
		return false
	}
}
