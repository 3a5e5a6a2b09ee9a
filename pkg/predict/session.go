// Package predict runs the prediction request cycle: model selection, schema
// load, form edits, predict and explain, and the result state a front-end
// renders.
package predict

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/inferx-ml/go-predictform/pkg/client"
	"github.com/inferx-ml/go-predictform/pkg/fields"
	"github.com/inferx-ml/go-predictform/pkg/formstate"
	"github.com/inferx-ml/go-predictform/pkg/model"
	"github.com/inferx-ml/go-predictform/pkg/schema"
)

var (
	ErrNoModel      = errors.New("predict: no model selected")
	ErrNoSchema     = errors.New("predict: model has no input schema")
	ErrNoPrediction = errors.New("predict: explanation requires a prediction")
	ErrBusy         = errors.New("predict: a request is already in flight")
	// ErrStale is returned when a response arrives after the selection or
	// submission it belonged to was superseded. The response is discarded.
	ErrStale = errors.New("predict: response superseded")
)

// Backend issues predict and explain calls. client.Client satisfies it.
type Backend interface {
	Predict(ctx context.Context, id model.ModelID, values model.Values) (model.Prediction, error)
	Explain(ctx context.Context, id model.ModelID, values model.Values) (client.ExplainResult, error)
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Session is one user's prediction cycle. It is safe for concurrent use; the
// lock is never held across a backend call.
type Session struct {
	schemas schema.Provider
	backend Backend
	logger  *slog.Logger

	mu          sync.Mutex
	store       *formstate.Store
	selected    bool
	loading     bool
	modelID     model.ModelID
	schema      model.Schema
	loadErr     error
	state       State
	prediction  model.Prediction
	explanation *model.Explanation
	err         error

	// generation changes on every model selection, sequence on every
	// request issued. A response applies only if both still match.
	generation uint64
	sequence   uint64
}

// NewSession wires a session to its schema source and backend.
func NewSession(schemas schema.Provider, backend Backend, options ...Option) *Session {
	s := &Session{
		schemas: schemas,
		backend: backend,
		store:   formstate.New(),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range options {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// SelectModel switches to model id. Everything derived from the previous
// model is cleared before the schema fetch starts. If another selection
// happens while the fetch is in flight, this call returns ErrStale and leaves
// the newer selection untouched.
func (s *Session) SelectModel(ctx context.Context, id model.ModelID) (model.Schema, error) {
	if id == "" {
		return model.Schema{}, ErrNoModel
	}
	if s.schemas == nil {
		return model.Schema{}, errors.New("predict: no schema provider configured")
	}

	s.mu.Lock()
	s.generation++
	s.sequence++
	gen := s.generation
	s.selected = true
	s.loading = true
	s.modelID = id
	s.schema = model.Schema{ModelID: id, Fields: []model.Field{}}
	s.loadErr = nil
	s.resetResultLocked()
	s.store.Initialize(s.schema)
	s.mu.Unlock()

	s.logger.Debug("loading schema", "model_id", id)
	loaded, err := s.schemas.Schema(ctx, id)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		s.logger.Debug("discarding superseded schema", "model_id", id)
		return model.Schema{}, ErrStale
	}
	s.loading = false
	if err != nil {
		s.loadErr = err
		s.logger.Warn("schema load failed", "model_id", id, "error", err)
		return model.Schema{}, fmt.Errorf("predict: load schema for model %s: %w", id, err)
	}
	if loaded.Fields == nil {
		loaded.Fields = []model.Field{}
	}
	if loaded.ModelID == "" {
		loaded.ModelID = id
	}
	s.schema = loaded
	s.store.Initialize(loaded)
	return loaded, nil
}

// SetField coerces raw through the field's input behaviour and stores it.
// Changing a value drops the displayed result, and any request in flight,
// since they no longer describe the form.
func (s *Session) SetField(name, raw string) (model.Values, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	field, ok := s.schema.Field(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", formstate.ErrUnknownField, name)
	}
	value := fields.Coerce(field, raw)
	if current, _ := s.store.Get(name); current != value && (s.prediction.Present || s.state.InFlight()) {
		s.sequence++
		s.resetResultLocked()
	}
	return s.store.SetField(name, value)
}

// Values returns a copy of the current form values.
func (s *Session) Values() model.Values {
	return s.store.Values()
}

// Predict submits the current values. Prediction and explanation are
// cleared before the request goes out.
func (s *Session) Predict(ctx context.Context) (model.Prediction, error) {
	s.mu.Lock()
	switch {
	case !s.selected:
		s.mu.Unlock()
		return model.Prediction{}, ErrNoModel
	case s.loading || s.schema.Empty():
		s.mu.Unlock()
		return model.Prediction{}, ErrNoSchema
	case s.state == Submitting:
		s.mu.Unlock()
		return model.Prediction{}, ErrBusy
	}
	s.sequence++
	seq, gen, id := s.sequence, s.generation, s.modelID
	s.resetResultLocked()
	s.state = Submitting
	values := s.store.Values()
	s.mu.Unlock()

	s.logger.Debug("submitting prediction", "model_id", id, "fields", len(values))
	p, err := s.backend.Predict(ctx, id, values)

	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.sequence || gen != s.generation {
		s.logger.Debug("discarding superseded prediction", "model_id", id)
		return model.Prediction{}, ErrStale
	}
	if err != nil {
		s.state = Failed
		s.err = err
		s.logger.Warn("prediction failed", "model_id", id, "error", err)
		return model.Prediction{}, err
	}
	s.state = Succeeded
	s.prediction = p
	return p, nil
}

// Explain requests an explanation for the current values. It requires a
// prediction and never modifies it or the form values.
func (s *Session) Explain(ctx context.Context) (model.Explanation, error) {
	s.mu.Lock()
	switch {
	case s.state.InFlight():
		s.mu.Unlock()
		return model.Explanation{}, ErrBusy
	case !s.prediction.Present:
		s.mu.Unlock()
		return model.Explanation{}, ErrNoPrediction
	}
	s.sequence++
	seq, gen, id := s.sequence, s.generation, s.modelID
	s.state = ExplainSubmitting
	s.explanation = nil
	s.err = nil
	values := s.store.Values()
	s.mu.Unlock()

	s.logger.Debug("requesting explanation", "model_id", id)
	res, err := s.backend.Explain(ctx, id, values)

	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.sequence || gen != s.generation {
		s.logger.Debug("discarding superseded explanation", "model_id", id)
		return model.Explanation{}, ErrStale
	}
	if err != nil {
		s.state = ExplainFailed
		s.err = err
		s.logger.Warn("explanation failed", "model_id", id, "error", err)
		return model.Explanation{}, err
	}
	s.state = ExplainSucceeded
	explanation := res.Explanation
	s.explanation = &explanation
	return explanation, nil
}

// Snapshot returns an immutable view of the session for rendering.
func (s *Session) Snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{
		ModelID:      s.modelID,
		ModelName:    s.schema.ModelName,
		TargetColumn: s.schema.TargetColumn,
		Selected:     s.selected,
		Loading:      s.loading,
		State:        s.state,
		Fields:       append([]model.Field(nil), s.schema.Fields...),
		Values:       s.store.Values(),
		Prediction:   s.prediction,
	}
	v.Controls = make([]fields.Control, 0, len(v.Fields))
	for _, f := range v.Fields {
		v.Controls = append(v.Controls, fields.Describe(f, v.Values[f.Name]))
	}
	if s.explanation != nil {
		v.Explanation = &model.Explanation{
			FeatureImportance: s.explanation.FeatureImportance.Top(TopFeatures),
			Summary:           s.explanation.Summary,
		}
	}
	switch {
	case s.loadErr != nil:
		v.ErrorTitle, v.Error = "Schema unavailable", ErrorMessage(s.loadErr)
	case s.err != nil && s.state == Failed:
		v.ErrorTitle, v.Error = "Prediction failed", ErrorMessage(s.err)
	case s.err != nil && s.state == ExplainFailed:
		v.ErrorTitle, v.Error = "Explanation failed", ErrorMessage(s.err)
	}
	v.NoSchema = s.selected && !s.loading && s.loadErr == nil && s.schema.Empty()
	v.CanSubmit = s.selected && !s.loading && !s.schema.Empty() && s.state != Submitting
	v.CanExplain = s.prediction.Present && !s.state.InFlight()
	return v
}

func (s *Session) resetResultLocked() {
	s.state = Idle
	s.prediction = model.Prediction{}
	s.explanation = nil
	s.err = nil
}

// ErrorMessage is the text shown for err: the backend's message for API
// errors, the error string otherwise.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Error()
	}
	if errors.Is(err, client.ErrUnauthorized) {
		return "Session expired, please log in again"
	}
	return err.Error()
}
