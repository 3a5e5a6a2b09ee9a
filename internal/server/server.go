// Package server is the local web front-end: an echo application that keeps
// one prediction session per browser and renders it with the web renderer.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/inferx-ml/go-predictform/pkg/auth"
	"github.com/inferx-ml/go-predictform/pkg/client"
	"github.com/inferx-ml/go-predictform/pkg/predict"
	"github.com/inferx-ml/go-predictform/pkg/renderers/web"
	"github.com/inferx-ml/go-predictform/pkg/schema"
)

const shutdownTimeout = 10 * time.Second

// Config wires the server to its collaborators. Client and Auth are required.
type Config struct {
	Client client.Client
	Auth   *auth.Context
	// Schemas defaults to the backend schema endpoint.
	Schemas  schema.Provider
	Renderer *web.Renderer
	Logger   *slog.Logger
	// Gatherer, when set, is served on /metrics.
	Gatherer prometheus.Gatherer
}

// Server is the web front-end.
type Server struct {
	echo     *echo.Echo
	client   client.Client
	auth     *auth.Context
	renderer *web.Renderer
	logger   *slog.Logger
	sessions *sessions
}

// New builds the echo application and registers its routes.
func New(cfg Config) (*Server, error) {
	if cfg.Client == nil {
		return nil, errors.New("server: client is required")
	}
	if cfg.Auth == nil {
		return nil, errors.New("server: auth context is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	renderer := cfg.Renderer
	if renderer == nil {
		r, err := web.New()
		if err != nil {
			return nil, fmt.Errorf("server: renderer: %w", err)
		}
		renderer = r
	}
	provider := cfg.Schemas
	if provider == nil {
		provider = schema.NewAPIProvider(cfg.Client)
	}
	shared := &sharedSchemas{provider: provider}

	s := &Server{
		echo:     echo.New(),
		client:   cfg.Client,
		auth:     cfg.Auth,
		renderer: renderer,
		logger:   logger,
	}
	s.sessions = newSessions(func() *predict.Session {
		return predict.NewSession(shared, cfg.Client, predict.WithLogger(logger))
	})

	e := s.echo
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(s.logRequests())

	e.GET("/", s.listModels())
	e.GET("/models/:id", s.showModel())
	e.POST("/models/:id/predict", s.submitPredict())
	e.POST("/models/:id/explain", s.submitExplain())
	e.GET("/login", s.showLogin())
	e.POST("/login", s.submitLogin())
	e.POST("/logout", s.submitLogout())
	e.GET("/health", s.health())
	e.GET("/static/*", echo.WrapHandler(http.StripPrefix("/static/", http.FileServer(web.StaticFiles()))))
	if cfg.Gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}
	return s, nil
}

// Handler exposes the application for http.Server or httptest.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("web front-end listening", "addr", addr)
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down web front-end")
	shutdown, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(shutdown); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

func (s *Server) logRequests() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
				"request_id", v.RequestID,
			}
			if v.Error != nil {
				s.logger.Error("request failed", append(attrs, "error", v.Error)...)
				return nil
			}
			s.logger.Debug("request", attrs...)
			return nil
		},
	})
}
