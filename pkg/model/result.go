package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Prediction is the outcome of a predict call. Present distinguishes "not yet
// computed" from a legitimate falsy prediction such as 0, false or "".
type Prediction struct {
	Value       any
	Present     bool
	Probability *float64
	ModelName   string
}

// UnmarshalJSON decodes {prediction, probability, model_name}. A null or absent
// prediction leaves Present false.
func (p *Prediction) UnmarshalJSON(data []byte) error {
	var raw struct {
		Prediction  json.RawMessage `json:"prediction"`
		Probability *float64        `json:"probability"`
		ModelName   string          `json:"model_name"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = Prediction{Probability: raw.Probability, ModelName: raw.ModelName}
	trimmed := bytes.TrimSpace(raw.Prediction)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(trimmed, &p.Value); err != nil {
		return fmt.Errorf("model: decode prediction: %w", err)
	}
	p.Present = true
	return nil
}

// MarshalJSON mirrors UnmarshalJSON, emitting null for an absent prediction.
func (p Prediction) MarshalJSON() ([]byte, error) {
	out := struct {
		Prediction  any      `json:"prediction"`
		Probability *float64 `json:"probability"`
		ModelName   string   `json:"model_name,omitempty"`
	}{Probability: p.Probability, ModelName: p.ModelName}
	if p.Present {
		out.Prediction = p.Value
	}
	return json.Marshal(out)
}

// Importance is the signed contribution of one feature. The sign gives the
// direction of the effect and the magnitude its strength.
type Importance struct {
	Feature string  `json:"feature"`
	Value   float64 `json:"importance"`
}

// FeatureImportance keeps the entries in the order the backend sent them.
type FeatureImportance []Importance

var errImportanceObject = errors.New("model: feature_importance must be an object")

// UnmarshalJSON streams the JSON object so key order survives decoding.
func (fi *FeatureImportance) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*fi = nil
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return errImportanceObject
	}

	out := FeatureImportance{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return errImportanceObject
		}
		var num json.Number
		if err := dec.Decode(&num); err != nil {
			return fmt.Errorf("model: feature %q: %w", key, err)
		}
		value, err := num.Float64()
		if err != nil {
			return fmt.Errorf("model: feature %q: %w", key, err)
		}
		out = append(out, Importance{Feature: key, Value: value})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*fi = out
	return nil
}

// MarshalJSON writes the entries back as an object in their stored order.
func (fi FeatureImportance) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, entry := range fi {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(entry.Feature)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(entry.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Top returns at most n entries in received order. No re-sorting happens.
func (fi FeatureImportance) Top(n int) FeatureImportance {
	if n < 0 {
		n = 0
	}
	if len(fi) <= n {
		return append(FeatureImportance(nil), fi...)
	}
	return append(FeatureImportance(nil), fi[:n]...)
}

// Explanation carries per-feature importances for a single prediction.
type Explanation struct {
	FeatureImportance FeatureImportance `json:"feature_importance"`
	Summary           string            `json:"summary,omitempty"`
}
