package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"
	"sync"

	"github.com/flosch/pongo2/v6"
)

const templateExt = ".tpl"

// Engine renders pongo2 templates from an fs.FS, caching parsed templates.
type Engine struct {
	mu sync.RWMutex

	templateSet *pongo2.TemplateSet
	templates   map[string]*pongo2.Template
}

// NewEngine builds an engine over files. Globals are visible to every
// template.
func NewEngine(files fs.FS, globals map[string]any) (*Engine, error) {
	if files == nil {
		return nil, errors.New("web: template filesystem is required")
	}
	engine := &Engine{
		templateSet: pongo2.NewSet("predictform", pongo2.NewFSLoader(files)),
		templates:   make(map[string]*pongo2.Template),
	}
	registerDefaultFilters()

	if len(globals) > 0 {
		ctx, err := convertToContext(globals)
		if err != nil {
			return nil, fmt.Errorf("web: apply global data: %w", err)
		}
		if engine.templateSet.Globals == nil {
			engine.templateSet.Globals = make(pongo2.Context)
		}
		engine.templateSet.Globals.Update(ctx)
	}
	return engine, nil
}

// Render executes template name (extension optional) with data into w.
func (e *Engine) Render(w io.Writer, name string, data any) error {
	if e == nil || e.templateSet == nil {
		return errors.New("web: engine is nil")
	}
	path := name
	if !strings.HasSuffix(path, templateExt) {
		path += templateExt
	}
	tmpl, err := e.getTemplate(path)
	if err != nil {
		return err
	}
	viewContext, err := convertToContext(data)
	if err != nil {
		return fmt.Errorf("web: convert data: %w", err)
	}

	// Render into a buffer so a failing template never leaves a half page.
	var buf bytes.Buffer
	if err := tmpl.ExecuteWriter(viewContext, &buf); err != nil {
		return fmt.Errorf("web: execute template %q: %w", path, err)
	}
	_, err = buf.WriteTo(w)
	return err
}

func (e *Engine) getTemplate(path string) (*pongo2.Template, error) {
	e.mu.RLock()
	if tmpl, ok := e.templates[path]; ok {
		e.mu.RUnlock()
		return tmpl, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	if tmpl, ok := e.templates[path]; ok {
		return tmpl, nil
	}
	tmpl, err := e.templateSet.FromFile(path)
	if err != nil {
		return nil, fmt.Errorf("web: load template %q: %w", path, err)
	}
	e.templates[path] = tmpl
	return tmpl, nil
}

// convertToContext round-trips data through JSON so templates see the json
// field names of page structs.
func convertToContext(data any) (pongo2.Context, error) {
	switch v := data.(type) {
	case nil:
		return pongo2.Context{}, nil
	case pongo2.Context:
		return v, nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return pongo2.Context(out), nil
}

func registerDefaultFilters() {
	if !pongo2.FilterExists("trim") {
		_ = pongo2.RegisterFilter("trim", filterTrim)
	}
}

func filterTrim(in *pongo2.Value, _ *pongo2.Value) (*pongo2.Value, *pongo2.Error) {
	if in.Len() <= 0 {
		return pongo2.AsValue(""), nil
	}
	return pongo2.AsValue(strings.TrimSpace(in.String())), nil
}
