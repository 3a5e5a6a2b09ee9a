package predict

import (
	"fmt"

	"github.com/inferx-ml/go-predictform/pkg/fields"
	"github.com/inferx-ml/go-predictform/pkg/model"
)

// TopFeatures is how many feature importances a view carries.
const TopFeatures = 5

// NoSchemaMessage is shown in place of the form for models without inputs.
const NoSchemaMessage = "No input schema available for this model."

// View is a point-in-time copy of a session.
type View struct {
	ModelID      model.ModelID
	ModelName    string
	TargetColumn string
	Selected     bool
	Loading      bool
	State        State

	Fields   []model.Field
	Values   model.Values
	Controls []fields.Control

	Prediction  model.Prediction
	Explanation *model.Explanation

	ErrorTitle string
	Error      string

	NoSchema   bool
	CanSubmit  bool
	CanExplain bool
}

// HasError reports whether the result panel shows an error.
func (v View) HasError() bool {
	return v.Error != ""
}

// ErrorText is the full error line, e.g. "Prediction failed: timeout".
func (v View) ErrorText() string {
	if v.Error == "" {
		return ""
	}
	return v.ErrorTitle + ": " + v.Error
}

// PredictionText renders the prediction value, or "" when none exists.
func (v View) PredictionText() string {
	return FormatPrediction(v.Prediction)
}

// ConfidenceText renders the probability, or "" when the backend sent none.
func (v View) ConfidenceText() string {
	return FormatConfidence(v.Prediction.Probability)
}

// FormatPrediction renders a prediction value with default formatting.
func FormatPrediction(p model.Prediction) string {
	if !p.Present {
		return ""
	}
	return fmt.Sprintf("%v", p.Value)
}

// FormatConfidence renders a probability in [0, 1] as "87.0% confidence".
func FormatConfidence(probability *float64) string {
	if probability == nil {
		return ""
	}
	return fmt.Sprintf("%.1f%% confidence", *probability*100)
}

// FormatImportance renders a signed importance with four decimals.
func FormatImportance(v float64) string {
	return fmt.Sprintf("%+.4f", v)
}
