// Package schema supplies the ordered input schema of a model, either from the
// backend, from ui_schema files, or derived from an OpenAPI document.
package schema

import (
	"context"
	"errors"
	"fmt"

	"github.com/inferx-ml/go-predictform/pkg/model"
)

// ErrNotFound is returned when a provider has no schema for a model.
var ErrNotFound = errors.New("schema: not found")

// Provider returns the input schema of a model. Fields come back in display
// order; an empty field list is a valid answer.
type Provider interface {
	Schema(ctx context.Context, id model.ModelID) (model.Schema, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, id model.ModelID) (model.Schema, error)

func (f ProviderFunc) Schema(ctx context.Context, id model.ModelID) (model.Schema, error) {
	return f(ctx, id)
}

// Fetcher is the backend call behind APIProvider. client.Client satisfies it.
type Fetcher interface {
	Schema(ctx context.Context, id model.ModelID) (model.Schema, error)
}

// APIProvider reads schemas from the backend schema endpoint.
type APIProvider struct {
	fetcher Fetcher
}

// NewAPIProvider wraps a backend fetcher.
func NewAPIProvider(fetcher Fetcher) *APIProvider {
	return &APIProvider{fetcher: fetcher}
}

func (p *APIProvider) Schema(ctx context.Context, id model.ModelID) (model.Schema, error) {
	if p == nil || p.fetcher == nil {
		return model.Schema{}, errors.New("schema: api provider has no fetcher")
	}
	s, err := p.fetcher.Schema(ctx, id)
	if err != nil {
		return model.Schema{}, fmt.Errorf("schema: fetch model %s: %w", id, err)
	}
	return normalize(s, id), nil
}

// Chain tries providers in order and returns the first schema that is not
// ErrNotFound.
func Chain(providers ...Provider) Provider {
	return ProviderFunc(func(ctx context.Context, id model.ModelID) (model.Schema, error) {
		for _, p := range providers {
			if p == nil {
				continue
			}
			s, err := p.Schema(ctx, id)
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return s, err
		}
		return model.Schema{}, fmt.Errorf("%w: model %s", ErrNotFound, id)
	})
}

func normalize(s model.Schema, id model.ModelID) model.Schema {
	if s.ModelID == "" {
		s.ModelID = id
	}
	if s.Fields == nil {
		s.Fields = []model.Field{}
	}
	return s
}
