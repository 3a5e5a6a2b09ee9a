// Package predictform wires the InferX-ML prediction client together: the
// persisted auth context, the backend client, the schema provider chain and
// the front-ends built on top of them.
//
// Most callers only need Open and then either NewSession (library use),
// NewTerminal (prompts) or NewServer (web front-end).
package predictform

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/inferx-ml/go-predictform/internal/config"
	"github.com/inferx-ml/go-predictform/internal/server"
	"github.com/inferx-ml/go-predictform/pkg/auth"
	"github.com/inferx-ml/go-predictform/pkg/client"
	"github.com/inferx-ml/go-predictform/pkg/predict"
	"github.com/inferx-ml/go-predictform/pkg/renderers/tui"
	"github.com/inferx-ml/go-predictform/pkg/renderers/web"
	"github.com/inferx-ml/go-predictform/pkg/schema"
)

// Option adjusts how Open wires the application.
type Option func(*options)

type options struct {
	logger     *slog.Logger
	store      auth.Store
	httpClient *http.Client
	registry   *prometheus.Registry
}

// WithLogger sets the logger handed to every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithAuthStore replaces the on-disk token store, e.g. with auth.NewMemoryStore.
func WithAuthStore(store auth.Store) Option {
	return func(o *options) {
		o.store = store
	}
}

// WithHTTPClient sets the base HTTP client used for backend calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) {
		o.httpClient = hc
	}
}

// WithRegistry collects client metrics into registry instead of a fresh one.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(o *options) {
		o.registry = registry
	}
}

// App holds the wired components for one configuration.
type App struct {
	Config   *config.Config
	Auth     *auth.Context
	Client   client.Client
	Schemas  schema.Provider
	Registry *prometheus.Registry
	Logger   *slog.Logger
}

// Open builds the auth context, client and schema providers described by cfg.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("predictform: config is required")
	}
	o := &options{}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	if o.logger == nil {
		o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if o.registry == nil {
		o.registry = prometheus.NewRegistry()
	}
	if o.store == nil {
		store, err := auth.NewFileStore(cfg.AuthDir)
		if err != nil {
			return nil, fmt.Errorf("predictform: auth store: %w", err)
		}
		o.store = store
	}

	authCtx, err := auth.NewContext(o.store, auth.WithKey(cfg.AuthKey), auth.WithLogger(o.logger))
	if err != nil {
		return nil, fmt.Errorf("predictform: auth: %w", err)
	}
	metrics, err := client.NewMetrics(o.registry)
	if err != nil {
		return nil, fmt.Errorf("predictform: metrics: %w", err)
	}

	clientOpts := []client.Option{
		client.WithAuth(authCtx),
		client.WithMetrics(metrics),
		client.WithLogger(o.logger),
	}
	if o.httpClient != nil {
		clientOpts = append(clientOpts, client.WithHTTPClient(o.httpClient))
	}
	clientOpts = append(clientOpts, client.WithTimeout(cfg.TimeoutDuration()))
	cl, err := client.New(cfg.APIURL, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("predictform: client: %w", err)
	}

	schemas, err := NewSchemaProvider(ctx, cfg.Schema, cl)
	if err != nil {
		return nil, err
	}

	return &App{
		Config:   cfg,
		Auth:     authCtx,
		Client:   cl,
		Schemas:  schemas,
		Registry: o.registry,
		Logger:   o.logger,
	}, nil
}

// NewSchemaProvider chains the local sources named in cfg in front of the
// backend schema endpoint. A local source without an entry for a model falls
// through to the next one.
func NewSchemaProvider(ctx context.Context, cfg config.SchemaConfig, fetcher schema.Fetcher) (schema.Provider, error) {
	var chain []schema.Provider

	if cfg.Dir != "" {
		info, err := os.Stat(cfg.Dir)
		if err != nil {
			return nil, fmt.Errorf("predictform: schema dir: %w", err)
		}
		if info.IsDir() {
			chain = append(chain, schema.NewDirProvider(cfg.Dir))
		} else {
			chain = append(chain, schema.NewDirProvider(filepath.Dir(cfg.Dir), schema.WithSingleFile(filepath.Base(cfg.Dir))))
		}
	}
	if cfg.OpenAPI != "" {
		src, err := schema.SourceFor(cfg.OpenAPI)
		if err != nil {
			return nil, fmt.Errorf("predictform: openapi source: %w", err)
		}
		provider, err := schema.LoadOpenAPIProvider(ctx, schema.Reader{}, src)
		if err != nil {
			return nil, fmt.Errorf("predictform: %w", err)
		}
		chain = append(chain, provider)
	}
	if fetcher != nil {
		chain = append(chain, schema.NewAPIProvider(fetcher))
	}
	if len(chain) == 1 {
		return chain[0], nil
	}
	return schema.Chain(chain...), nil
}

// NewSession starts a prediction session against the app's backend.
func (a *App) NewSession() *predict.Session {
	return predict.NewSession(a.Schemas, a.Client, predict.WithLogger(a.Logger))
}

// NewTerminal returns the prompt renderer. A nil driver selects survey.
func (a *App) NewTerminal(driver tui.PromptDriver) *tui.Renderer {
	return tui.New(tui.WithPromptDriver(driver))
}

// NewServer builds the web front-end with the configured theme variant.
func (a *App) NewServer() (*server.Server, error) {
	renderer, err := web.New(web.WithTheme(web.DefaultManifest(), a.Config.Server.ThemeVariant))
	if err != nil {
		return nil, fmt.Errorf("predictform: web renderer: %w", err)
	}
	return server.New(server.Config{
		Client:   a.Client,
		Auth:     a.Auth,
		Schemas:  a.Schemas,
		Renderer: renderer,
		Logger:   a.Logger,
		Gatherer: a.Registry,
	})
}
