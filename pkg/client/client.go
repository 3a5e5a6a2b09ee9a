// Package client talks to the InferX-ML backend REST API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/inferx-ml/go-predictform/pkg/auth"
	"github.com/inferx-ml/go-predictform/pkg/model"
)

const (
	// DefaultBaseURL is where a locally started backend listens.
	DefaultBaseURL = "http://localhost:5000/api"
	// DefaultTimeout bounds every request issued by the client.
	DefaultTimeout = 30 * time.Second
)

// Client is the backend surface used by the front-ends.
type Client interface {
	// ListModels returns the trained models known to the backend.
	ListModels(ctx context.Context) ([]model.ModelSummary, error)

	// Schema returns the input schema of a model. A model without a
	// ui_schema yields an empty, non-nil field list.
	Schema(ctx context.Context, id model.ModelID) (model.Schema, error)

	// Predict submits values and returns the prediction.
	Predict(ctx context.Context, id model.ModelID, values model.Values) (model.Prediction, error)

	// Explain submits the same values and returns per-feature importances.
	Explain(ctx context.Context, id model.ModelID, values model.Values) (ExplainResult, error)

	// Health reports backend liveness.
	Health(ctx context.Context) (Health, error)
}

// ExplainResult is the explain endpoint response.
type ExplainResult struct {
	Prediction  model.Prediction
	Explanation model.Explanation
}

// Health is the health endpoint response.
type Health struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// Option configures the client.
type Option func(*client)

// WithHTTPClient replaces the underlying HTTP client. Its transport is wrapped
// with the auth transport when WithAuth is also given.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) {
		if hc != nil {
			c.httpclient = hc
		}
	}
}

// WithTimeout overrides DefaultTimeout. Non-positive values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(c *client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithAuth injects the bearer token of ctx and routes 401 responses to its
// forced logout.
func WithAuth(ctx *auth.Context) Option {
	return func(c *client) {
		c.auth = ctx
	}
}

// WithMetrics records request counts and latencies.
func WithMetrics(m *Metrics) Option {
	return func(c *client) {
		c.metrics = m
	}
}

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

type client struct {
	httpclient *http.Client
	api        string
	timeout    time.Duration
	auth       *auth.Context
	metrics    *Metrics
	logger     *slog.Logger
}

// New returns a client for the API rooted at baseURL (DefaultBaseURL when
// empty).
func New(baseURL string, options ...Option) (Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("client: parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("client: base url %q must be http or https", baseURL)
	}

	c := &client{
		httpclient: new(http.Client),
		api:        strings.TrimSuffix(baseURL, "/"),
		timeout:    DefaultTimeout,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range options {
		if opt != nil {
			opt(c)
		}
	}

	hc := *c.httpclient
	hc.Timeout = c.timeout
	if c.auth != nil {
		hc.Transport = auth.NewTransport(hc.Transport, c.auth)
	}
	c.httpclient = &hc
	return c, nil
}

// build URL with path
func (c *client) apipath(path ...string) string {
	parts := make([]string, 0, len(path)+1)
	parts = append(parts, c.api)
	for _, p := range path {
		parts = append(parts, url.PathEscape(strings.Trim(p, "/")))
	}
	return strings.Join(parts, "/")
}

type inputRequest struct {
	Input model.Values `json:"input"`
}

type modelsResponse struct {
	Models []model.ModelSummary `json:"models"`
	Total  int                  `json:"total"`
}

type schemaResponse struct {
	ModelID      model.ModelID `json:"model_id"`
	ModelName    string        `json:"model_name"`
	TargetColumn string        `json:"target_column"`
	UISchema     struct {
		Fields []model.Field `json:"fields"`
	} `json:"ui_schema"`
}

type explainResponse struct {
	Prediction  model.Prediction
	Explanation model.Explanation
}

func (r *explainResponse) UnmarshalJSON(data []byte) error {
	if err := json.Unmarshal(data, &r.Prediction); err != nil {
		return err
	}
	var rest struct {
		Explanation model.Explanation `json:"explanation"`
	}
	if err := json.Unmarshal(data, &rest); err != nil {
		return err
	}
	r.Explanation = rest.Explanation
	return nil
}

func (c *client) ListModels(ctx context.Context) ([]model.ModelSummary, error) {
	var resp modelsResponse
	if err := c.do(ctx, "models", http.MethodGet, c.apipath("models"), nil, &resp); err != nil {
		return nil, err
	}
	if resp.Models == nil {
		resp.Models = []model.ModelSummary{}
	}
	return resp.Models, nil
}

func (c *client) Schema(ctx context.Context, id model.ModelID) (model.Schema, error) {
	if id == "" {
		return model.Schema{}, ErrMissingModelID
	}
	var resp schemaResponse
	if err := c.do(ctx, "schema", http.MethodGet, c.apipath("models", id.String(), "schema"), nil, &resp); err != nil {
		return model.Schema{}, err
	}
	schema := model.Schema{
		ModelID:      resp.ModelID,
		ModelName:    resp.ModelName,
		TargetColumn: resp.TargetColumn,
		Fields:       resp.UISchema.Fields,
	}
	if schema.ModelID == "" {
		schema.ModelID = id
	}
	if schema.Fields == nil {
		schema.Fields = []model.Field{}
	}
	return schema, nil
}

func (c *client) Predict(ctx context.Context, id model.ModelID, values model.Values) (model.Prediction, error) {
	if id == "" {
		return model.Prediction{}, ErrMissingModelID
	}
	var resp model.Prediction
	body := inputRequest{Input: values}
	if err := c.do(ctx, "predict", http.MethodPost, c.apipath("predict", id.String()), body, &resp); err != nil {
		return model.Prediction{}, err
	}
	return resp, nil
}

func (c *client) Explain(ctx context.Context, id model.ModelID, values model.Values) (ExplainResult, error) {
	if id == "" {
		return ExplainResult{}, ErrMissingModelID
	}
	var resp explainResponse
	body := inputRequest{Input: values}
	if err := c.do(ctx, "explain", http.MethodPost, c.apipath("predict", id.String(), "explain"), body, &resp); err != nil {
		return ExplainResult{}, err
	}
	return ExplainResult{Prediction: resp.Prediction, Explanation: resp.Explanation}, nil
}

func (c *client) Health(ctx context.Context) (Health, error) {
	var resp Health
	if err := c.do(ctx, "health", http.MethodGet, c.apipath("health"), nil, &resp); err != nil {
		return Health{}, err
	}
	return resp, nil
}

func (c *client) do(ctx context.Context, op, method, target string, body any, out any) (err error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("client: encode %s request: %w", op, err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("client: build %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	status := 0
	defer func() {
		c.metrics.observe(op, status, time.Since(start))
		c.logger.Debug("backend request", "op", op, "method", method, "url", target,
			"status", status, "duration", time.Since(start), "error", err)
	}()

	resp, err := c.httpclient.Do(req)
	if err != nil {
		return fmt.Errorf("client: %s: %w", op, err)
	}
	defer resp.Body.Close()
	status = resp.StatusCode

	if err := unmarshalJSONResponse(resp, out); err != nil {
		if errors.Is(err, ErrUnauthorized) {
			return err
		}
		return fmt.Errorf("client: %s: %w", op, err)
	}
	return nil
}
