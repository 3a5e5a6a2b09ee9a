// Package formstate holds the values of the active prediction form. It copies
// what it is given; bounds and option checks are not its concern.
package formstate

import (
	"errors"
	"fmt"
	"sync"

	"github.com/inferx-ml/go-predictform/pkg/model"
)

// ErrUnknownField is returned when SetField targets a name outside the active
// schema.
var ErrUnknownField = errors.New("formstate: unknown field")

// Store tracks one value per field of the active schema.
type Store struct {
	mu     sync.RWMutex
	values model.Values
}

// New returns an empty store. Call Initialize before SetField.
func New() *Store {
	return &Store{values: model.Values{}}
}

// Initialize replaces every value with the schema defaults. Fields without a
// default start as the empty string. Values from a previous schema are dropped.
func (s *Store) Initialize(schema model.Schema) model.Values {
	values := make(model.Values, len(schema.Fields))
	for _, field := range schema.Fields {
		if field.HasDefault() {
			values[field.Name] = field.Default
			continue
		}
		values[field.Name] = ""
	}

	s.mu.Lock()
	s.values = values
	s.mu.Unlock()

	return values.Clone()
}

// SetField updates exactly one entry and returns the resulting values.
func (s *Store) SetField(name string, value any) (model.Values, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.values[name]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	s.values[name] = value
	return s.values.Clone(), nil
}

// Get returns the current value of a field.
func (s *Store) Get(name string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.values[name]
	return v, ok
}

// Values returns a copy of the current values.
func (s *Store) Values() model.Values {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.values.Clone()
}

// Len reports the number of tracked fields.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.values)
}
