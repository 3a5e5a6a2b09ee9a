package schema

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/inferx-ml/go-predictform/pkg/model"
)

var schemaExtensions = []string{".json", ".yaml", ".yml"}

// FileProvider reads ui_schema documents from a filesystem. By default each
// model has its own file named <id>.json, <id>.yaml or <id>.yml at the root.
// WithSingleFile serves one document for every model.
type FileProvider struct {
	fsys   fs.FS
	single string
}

// FileOption configures a FileProvider.
type FileOption func(*FileProvider)

// WithSingleFile serves name for every model id.
func WithSingleFile(name string) FileOption {
	return func(p *FileProvider) {
		p.single = strings.TrimPrefix(path.Clean(name), "/")
	}
}

// NewFileProvider reads schemas from fsys.
func NewFileProvider(fsys fs.FS, options ...FileOption) *FileProvider {
	p := &FileProvider{fsys: fsys}
	for _, opt := range options {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// NewDirProvider reads schemas from a directory on disk.
func NewDirProvider(dir string, options ...FileOption) *FileProvider {
	return NewFileProvider(os.DirFS(dir), options...)
}

func (p *FileProvider) Schema(ctx context.Context, id model.ModelID) (model.Schema, error) {
	if err := ctx.Err(); err != nil {
		return model.Schema{}, err
	}
	if p == nil || p.fsys == nil {
		return model.Schema{}, errors.New("schema: file provider has no filesystem")
	}

	if p.single != "" {
		data, err := fs.ReadFile(p.fsys, p.single)
		if err != nil {
			return model.Schema{}, fmt.Errorf("schema: read %s: %w", p.single, err)
		}
		s, err := DecodeDocument(data, p.single)
		if err != nil {
			return model.Schema{}, err
		}
		return normalize(s, id), nil
	}

	name := id.String()
	if name == "" || strings.ContainsAny(name, `/\`) || !fs.ValidPath(name) {
		return model.Schema{}, fmt.Errorf("schema: invalid model id %q", name)
	}
	for _, ext := range schemaExtensions {
		file := name + ext
		data, err := fs.ReadFile(p.fsys, file)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return model.Schema{}, fmt.Errorf("schema: read %s: %w", file, err)
		}
		s, err := DecodeDocument(data, file)
		if err != nil {
			return model.Schema{}, err
		}
		return normalize(s, id), nil
	}
	return model.Schema{}, fmt.Errorf("%w: no schema file for model %s", ErrNotFound, id)
}

type document struct {
	ModelID      model.ModelID `json:"model_id"`
	ModelName    string        `json:"model_name"`
	TargetColumn string        `json:"target_column"`
	Fields       []model.Field `json:"fields"`
	UISchema     *struct {
		Fields []model.Field `json:"fields"`
	} `json:"ui_schema"`
}

// DecodeDocument parses a ui_schema document. Both the bare {"fields": [...]}
// layout stored next to a trained model and the schema endpoint envelope with
// a nested ui_schema are accepted, as JSON or YAML. YAML is chosen by the
// .yaml/.yml extension of name, or when the payload is not JSON.
func DecodeDocument(data []byte, name string) (model.Schema, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return model.Schema{}, fmt.Errorf("schema: file %s is empty", name)
	}

	payload := data
	ext := strings.ToLower(path.Ext(name))
	if ext == ".yaml" || ext == ".yml" || !json.Valid(data) {
		converted, err := yamlToJSON(data)
		if err != nil {
			return model.Schema{}, fmt.Errorf("schema: parse %s: invalid JSON or YAML: %w", name, err)
		}
		payload = converted
	}

	var doc document
	if err := json.Unmarshal(payload, &doc); err != nil {
		return model.Schema{}, fmt.Errorf("schema: decode %s: %w", name, err)
	}
	fields := doc.Fields
	if doc.UISchema != nil && len(doc.UISchema.Fields) > 0 {
		fields = doc.UISchema.Fields
	}
	if err := checkNames(fields, name); err != nil {
		return model.Schema{}, err
	}
	return model.Schema{
		ModelID:      doc.ModelID,
		ModelName:    doc.ModelName,
		TargetColumn: doc.TargetColumn,
		Fields:       fields,
	}, nil
}

func yamlToJSON(data []byte) ([]byte, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	if _, ok := raw.(map[string]any); !ok {
		return nil, errors.New("document root must be a mapping")
	}
	return json.Marshal(raw)
}

func checkNames(fields []model.Field, source string) error {
	seen := make(map[string]struct{}, len(fields))
	for i, f := range fields {
		if strings.TrimSpace(f.Name) == "" {
			return fmt.Errorf("schema: %s: field %d has no name", source, i)
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("schema: %s: duplicate field %q", source, f.Name)
		}
		seen[f.Name] = struct{}{}
	}
	return nil
}
