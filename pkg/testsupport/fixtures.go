package testsupport

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/inferx-ml/go-predictform/pkg/model"
)

//go:embed testdata/*.json
var fixtures embed.FS

// Fixture names shipped with the package.
const (
	LoanSchemaFixture = "loan_schema.json"
	ModelsFixture     = "models.json"
	ExplainFixture    = "explain.json"
)

// Fixture returns the raw bytes of a bundled fixture.
func Fixture(t *testing.T, name string) []byte {
	t.Helper()

	data, err := fixtures.ReadFile("testdata/" + name)
	if err != nil {
		t.Fatalf("read fixture %s: %v", name, err)
	}
	return data
}

// LoanSchema decodes the bundled schema endpoint fixture into a Schema.
func LoanSchema(t *testing.T) model.Schema {
	t.Helper()

	schema, err := DecodeSchemaResponse(Fixture(t, LoanSchemaFixture))
	if err != nil {
		t.Fatalf("decode loan schema: %v", err)
	}
	return schema
}

// DecodeSchemaResponse decodes a {model_id, model_name, target_column,
// ui_schema} payload without requiring testing.T.
func DecodeSchemaResponse(data []byte) (model.Schema, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return model.Schema{}, errors.New("testsupport: schema payload is empty")
	}
	var raw struct {
		ModelID      model.ModelID `json:"model_id"`
		ModelName    string        `json:"model_name"`
		TargetColumn string        `json:"target_column"`
		UISchema     struct {
			Fields []model.Field `json:"fields"`
		} `json:"ui_schema"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return model.Schema{}, fmt.Errorf("testsupport: unmarshal schema: %w", err)
	}
	return model.Schema{
		ModelID:      raw.ModelID,
		ModelName:    raw.ModelName,
		TargetColumn: raw.TargetColumn,
		Fields:       raw.UISchema.Fields,
	}, nil
}

// Context returns a background context for tests.
func Context() context.Context {
	return context.Background()
}

// CaptureOutput runs render against a buffer and returns what it wrote.
func CaptureOutput(t *testing.T, render func(io.Writer) error) string {
	t.Helper()

	var buf bytes.Buffer
	if err := render(&buf); err != nil {
		t.Fatalf("render: %v", err)
	}
	return buf.String()
}
