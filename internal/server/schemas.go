package server

import (
	"context"

	"golang.org/x/sync/singleflight"

	"github.com/inferx-ml/go-predictform/pkg/model"
	"github.com/inferx-ml/go-predictform/pkg/schema"
)

// sharedSchemas collapses concurrent fetches of the same model's schema into
// one backend call. Each caller gets its own copy of the field list.
type sharedSchemas struct {
	group    singleflight.Group
	provider schema.Provider
}

func (p *sharedSchemas) Schema(ctx context.Context, id model.ModelID) (model.Schema, error) {
	// The shared fetch outlives any single caller's cancellation.
	fetchCtx := context.WithoutCancel(ctx)
	v, err, _ := p.group.Do(id.String(), func() (any, error) {
		return p.provider.Schema(fetchCtx, id)
	})
	if err != nil {
		return model.Schema{}, err
	}
	s := v.(model.Schema)
	s.Fields = append([]model.Field{}, s.Fields...)
	return s, nil
}
