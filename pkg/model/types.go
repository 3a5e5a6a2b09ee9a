package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Field describes a single input inside a model's schema.
type Field struct {
	Name    string    `json:"name"`
	Label   string    `json:"label,omitempty"`
	Kind    InputKind `json:"input_kind"`
	Type    string    `json:"type,omitempty"`
	Options []string  `json:"options,omitempty"`
	Min     *float64  `json:"min,omitempty"`
	Max     *float64  `json:"max,omitempty"`
	Default any       `json:"default,omitempty"`
	Help    string    `json:"help,omitempty"`
}

// DisplayLabel returns the label, falling back to the field name.
func (f Field) DisplayLabel() string {
	if strings.TrimSpace(f.Label) != "" {
		return f.Label
	}
	return f.Name
}

// HasDefault reports whether the descriptor declared a default value.
func (f Field) HasDefault() bool {
	return f.Default != nil
}

// UnmarshalJSON accepts both "input_kind" and the backend's "input_type" key,
// resolves unknown kinds through the "type" attribute, and stringifies
// non-string options.
func (f *Field) UnmarshalJSON(data []byte) error {
	var raw struct {
		Name      string   `json:"name"`
		Label     string   `json:"label"`
		InputKind string   `json:"input_kind"`
		InputType string   `json:"input_type"`
		Type      string   `json:"type"`
		Options   []any    `json:"options"`
		Min       *float64 `json:"min"`
		Max       *float64 `json:"max"`
		Default   any      `json:"default"`
		Help      string   `json:"help"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	kind := raw.InputKind
	if strings.TrimSpace(kind) == "" {
		kind = raw.InputType
	}

	*f = Field{
		Name:    raw.Name,
		Label:   raw.Label,
		Kind:    ResolveInputKind(kind, raw.Type),
		Type:    raw.Type,
		Min:     raw.Min,
		Max:     raw.Max,
		Default: raw.Default,
		Help:    raw.Help,
	}
	if len(raw.Options) > 0 {
		f.Options = make([]string, 0, len(raw.Options))
		for _, opt := range raw.Options {
			f.Options = append(f.Options, fmt.Sprint(opt))
		}
	}
	return nil
}

// Schema is the ordered list of fields a model expects. An empty Fields slice
// is valid and means the model takes no input.
type Schema struct {
	ModelID      ModelID `json:"model_id,omitempty"`
	ModelName    string  `json:"model_name,omitempty"`
	TargetColumn string  `json:"target_column,omitempty"`
	Fields       []Field `json:"fields"`
}

// Empty reports whether the schema declares no fields.
func (s Schema) Empty() bool {
	return len(s.Fields) == 0
}

// Field looks up a descriptor by name.
func (s Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Names returns the field names in schema order.
func (s Schema) Names() []string {
	out := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		out[i] = f.Name
	}
	return out
}

// Values maps field names to their current value. Values are string, float64
// or bool.
type Values map[string]any

// Clone returns a shallow copy; values are scalars so this is a full copy.
func (v Values) Clone() Values {
	if v == nil {
		return nil
	}
	out := make(Values, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}
