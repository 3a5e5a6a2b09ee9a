package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ModelID identifies a trained model. The backend emits numeric ids; the
// client treats them as opaque strings.
type ModelID string

// UnmarshalJSON accepts either a JSON string or a JSON number.
func (id *ModelID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ModelID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("model: invalid model id %s", data)
	}
	*id = ModelID(n.String())
	return nil
}

func (id ModelID) String() string {
	return string(id)
}

// ModelSummary is one entry of the trained model listing.
type ModelSummary struct {
	ID            ModelID  `json:"id"`
	Name          string   `json:"name"`
	ProblemType   string   `json:"problem_type,omitempty"`
	TargetColumn  string   `json:"target_column,omitempty"`
	BestModelName string   `json:"best_model_name,omitempty"`
	BestScore     *float64 `json:"best_score,omitempty"`
	Status        string   `json:"status,omitempty"`
}
