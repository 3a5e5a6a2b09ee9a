package schema

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/inferx-ml/go-predictform/pkg/model"
)

// OpenAPI extensions read from request body properties and operations.
const (
	ExtInputKind    = "x-input-kind"
	ExtOrder        = "x-order"
	ExtModelName    = "x-model-name"
	ExtTargetColumn = "x-target-column"
)

const predictPrefix = "/predict/"

// OpenAPIProvider derives schemas from the request body of the predict
// operation in an OpenAPI 3 document. A literal /predict/<id> path wins over
// the templated /predict/{modelId} one.
type OpenAPIProvider struct {
	doc *openapi3.T
}

// NewOpenAPIProvider parses and validates document.
func NewOpenAPIProvider(ctx context.Context, document []byte) (*OpenAPIProvider, error) {
	if len(document) == 0 {
		return nil, errors.New("schema: openapi document is empty")
	}
	loader := &openapi3.Loader{Context: ctx}
	doc, err := loader.LoadFromData(document)
	if err != nil {
		return nil, fmt.Errorf("schema: load openapi document: %w", err)
	}
	if doc.Paths == nil || doc.Paths.Len() == 0 {
		return nil, errors.New("schema: openapi document does not contain any paths")
	}
	if err := doc.Validate(ctx, openapi3.DisableExamplesValidation()); err != nil {
		return nil, fmt.Errorf("schema: validate openapi document: %w", err)
	}
	return &OpenAPIProvider{doc: doc}, nil
}

// LoadOpenAPIProvider reads the document behind src first.
func LoadOpenAPIProvider(ctx context.Context, reader Reader, src Source) (*OpenAPIProvider, error) {
	data, err := reader.Read(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("schema: read openapi document %s: %w", src.Location(), err)
	}
	return NewOpenAPIProvider(ctx, data)
}

func (p *OpenAPIProvider) Schema(ctx context.Context, id model.ModelID) (model.Schema, error) {
	if err := ctx.Err(); err != nil {
		return model.Schema{}, err
	}
	op := p.predictOperation(id)
	if op == nil {
		return model.Schema{}, fmt.Errorf("%w: no predict operation for model %s", ErrNotFound, id)
	}

	s := model.Schema{ModelID: id, Fields: []model.Field{}}
	s.ModelName = extString(op.Extensions, ExtModelName)
	if s.ModelName == "" {
		s.ModelName = op.Summary
	}
	s.TargetColumn = extString(op.Extensions, ExtTargetColumn)

	body := requestSchema(op.RequestBody)
	if body == nil {
		return s, nil
	}
	if input, ok := body.Properties["input"]; ok && input != nil && input.Value != nil {
		body = input.Value
	}
	s.Fields = fieldsFromProperties(body.Properties)
	return s, nil
}

func (p *OpenAPIProvider) predictOperation(id model.ModelID) *openapi3.Operation {
	var templated *openapi3.Operation
	for path, item := range p.doc.Paths.Map() {
		if item == nil || item.Post == nil || !strings.HasPrefix(path, predictPrefix) {
			continue
		}
		rest := strings.TrimPrefix(path, predictPrefix)
		if strings.Contains(rest, "/") {
			continue
		}
		if rest == id.String() {
			return item.Post
		}
		if strings.HasPrefix(rest, "{") && strings.HasSuffix(rest, "}") {
			templated = item.Post
		}
	}
	return templated
}

func requestSchema(ref *openapi3.RequestBodyRef) *openapi3.Schema {
	if ref == nil || ref.Value == nil {
		return nil
	}
	mt := ref.Value.Content.Get("application/json")
	if mt == nil {
		for _, candidate := range ref.Value.Content {
			mt = candidate
			break
		}
	}
	if mt == nil || mt.Schema == nil {
		return nil
	}
	return mt.Schema.Value
}

type orderedField struct {
	order int
	field model.Field
}

// fieldsFromProperties converts properties to fields ordered by x-order, then
// by name. Properties without x-order sort after ordered ones.
func fieldsFromProperties(props openapi3.Schemas) []model.Field {
	ordered := make([]orderedField, 0, len(props))
	for name, ref := range props {
		if ref == nil || ref.Value == nil {
			continue
		}
		order := math.MaxInt
		if v, ok := ref.Value.Extensions[ExtOrder]; ok {
			if n, ok := toFloat(v); ok {
				order = int(n)
			}
		}
		ordered = append(ordered, orderedField{order: order, field: convertProperty(name, ref.Value)})
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].order != ordered[j].order {
			return ordered[i].order < ordered[j].order
		}
		return ordered[i].field.Name < ordered[j].field.Name
	})
	fields := make([]model.Field, 0, len(ordered))
	for _, o := range ordered {
		fields = append(fields, o.field)
	}
	return fields
}

func convertProperty(name string, src *openapi3.Schema) model.Field {
	typ := firstSchemaType(src.Type)
	f := model.Field{
		Name:    name,
		Label:   src.Title,
		Help:    src.Description,
		Default: src.Default,
	}
	if typ == "number" || typ == "integer" {
		f.Type = "number"
	}
	if src.Min != nil {
		v := *src.Min
		f.Min = &v
	}
	if src.Max != nil {
		v := *src.Max
		f.Max = &v
	}
	for _, option := range src.Enum {
		f.Options = append(f.Options, fmt.Sprint(option))
	}

	switch {
	case extString(src.Extensions, ExtInputKind) != "":
		f.Kind = model.ResolveInputKind(extString(src.Extensions, ExtInputKind), f.Type)
	case len(f.Options) > 0:
		f.Kind = model.KindDropdown
	case typ == "boolean":
		f.Kind = model.KindCheckbox
	default:
		f.Kind = model.ResolveInputKind("", f.Type)
	}
	return f
}

func firstSchemaType(types *openapi3.Types) string {
	if types == nil {
		return ""
	}
	values := types.Slice()
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

func extString(ext map[string]any, key string) string {
	if v, ok := ext[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
