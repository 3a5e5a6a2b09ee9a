package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/inferx-ml/go-predictform/pkg/auth"
	"github.com/inferx-ml/go-predictform/pkg/client"
	"github.com/inferx-ml/go-predictform/pkg/model"
	"github.com/inferx-ml/go-predictform/pkg/predict"
	"github.com/inferx-ml/go-predictform/pkg/schema"
	"github.com/inferx-ml/go-predictform/pkg/testsupport"
)

type harness struct {
	backend *testsupport.Backend
	auth    *auth.Context
	server  *Server
	http    *httptest.Server
}

func newHarness(t *testing.T, opts ...func(*Config)) *harness {
	t.Helper()

	backend := testsupport.NewBackend(t)
	authCtx, err := auth.NewContext(auth.NewMemoryStore())
	if err != nil {
		t.Fatalf("auth context: %v", err)
	}
	registry := prometheus.NewRegistry()
	metrics, err := client.NewMetrics(registry)
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	cl, err := client.New(backend.URL(), client.WithAuth(authCtx), client.WithMetrics(metrics))
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	cfg := Config{Client: cl, Auth: authCtx, Gatherer: registry}
	for _, opt := range opts {
		opt(&cfg)
	}
	srv, err := New(cfg)
	if err != nil {
		t.Fatalf("server: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &harness{backend: backend, auth: authCtx, server: srv, http: ts}
}

// browser returns a client with its own cookie jar that does not follow
// redirects.
func (h *harness) browser(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func (h *harness) get(t *testing.T, c *http.Client, path string) (*http.Response, string) {
	t.Helper()
	resp, err := c.Get(h.http.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp, readBody(t, resp)
}

func (h *harness) post(t *testing.T, c *http.Client, path string, form url.Values) (*http.Response, string) {
	t.Helper()
	resp, err := c.PostForm(h.http.URL+path, form)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp, readBody(t, resp)
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(data)
}

func (h *harness) serveLoanSchema(t *testing.T) {
	t.Helper()
	h.backend.Handle("GET /api/models/7/schema", http.StatusOK, string(testsupport.Fixture(t, testsupport.LoanSchemaFixture)))
}

func loanForm() url.Values {
	return url.Values{
		"age":        {"42"},
		"income":     {"55000"},
		"employment": {"salaried"},
		"owns_home":  {"false", "true"},
		"marital":    {"married"},
		"notes":      {"first loan"},
	}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected error without client")
	}
}

func TestModelsPage(t *testing.T) {
	h := newHarness(t)
	h.backend.Handle("GET /api/models", http.StatusOK, string(testsupport.Fixture(t, testsupport.ModelsFixture)))

	resp, body := h.get(t, h.browser(t), "/")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(body, `href="/models/7"`) || !strings.Contains(body, "loan-approval") {
		t.Fatalf("model link missing:\n%s", body)
	}
}

func TestModelsPage_BackendError(t *testing.T) {
	h := newHarness(t)
	h.backend.Handle("GET /api/models", http.StatusInternalServerError, `{"error": "database offline"}`)

	resp, body := h.get(t, h.browser(t), "/")
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(body, "database offline") {
		t.Fatalf("backend message missing:\n%s", body)
	}
}

func TestPredictFlow(t *testing.T) {
	h := newHarness(t)
	h.serveLoanSchema(t)
	h.backend.Handle("POST /api/predict/7", http.StatusOK, `{"prediction": "approved", "probability": 0.87, "model_name": "loan-approval"}`)
	b := h.browser(t)

	resp, body := h.get(t, b, "/models/7")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	for _, want := range []string{`name="age"`, `type="range"`, `name="employment"`, `type="radio"`, `action="/models/7/predict"`} {
		if !strings.Contains(body, want) {
			t.Fatalf("form is missing %s:\n%s", want, body)
		}
	}

	resp, body = h.post(t, b, "/models/7/predict", loanForm())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(body, `<strong class="value">approved</strong>`) {
		t.Fatalf("prediction missing:\n%s", body)
	}
	if !strings.Contains(body, "87.0% confidence") {
		t.Fatalf("confidence missing:\n%s", body)
	}

	if got := h.backend.Count("GET /api/models/7/schema"); got != 1 {
		t.Fatalf("schema fetched %d times, want 1", got)
	}
	var input map[string]any
	for _, r := range h.backend.Requests() {
		if r.Path == "/api/predict/7" {
			input, _ = r.Body["input"].(map[string]any)
		}
	}
	if input == nil {
		t.Fatalf("predict request not recorded")
	}
	if input["age"] != 42.0 || input["income"] != 55000.0 || input["owns_home"] != true {
		t.Fatalf("unexpected coerced input %v", input)
	}
	if input["employment"] != "salaried" || input["marital"] != "married" || input["notes"] != "first loan" {
		t.Fatalf("unexpected text input %v", input)
	}
}

func TestPredictWithoutPriorVisitLoadsSchema(t *testing.T) {
	h := newHarness(t)
	h.serveLoanSchema(t)
	h.backend.Handle("POST /api/predict/7", http.StatusOK, `{"prediction": "approved", "probability": 0.87}`)

	_, body := h.post(t, h.browser(t), "/models/7/predict", loanForm())
	if !strings.Contains(body, "87.0% confidence") {
		t.Fatalf("prediction missing:\n%s", body)
	}
}

func TestPredictFailureShowsError(t *testing.T) {
	h := newHarness(t)
	h.serveLoanSchema(t)
	h.backend.Handle("POST /api/predict/7", http.StatusBadRequest, `{"error": "Model not trained"}`)

	resp, body := h.post(t, h.browser(t), "/models/7/predict", loanForm())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(body, "Prediction failed: Model not trained") {
		t.Fatalf("error panel missing:\n%s", body)
	}
}

func TestExplainKeepsPrediction(t *testing.T) {
	h := newHarness(t)
	h.serveLoanSchema(t)
	h.backend.Handle("POST /api/predict/7", http.StatusOK, `{"prediction": "approved", "probability": 0.87}`)
	h.backend.Handle("POST /api/predict/7/explain", http.StatusOK, string(testsupport.Fixture(t, testsupport.ExplainFixture)))
	b := h.browser(t)

	h.post(t, b, "/models/7/predict", loanForm())
	resp, body := h.post(t, b, "/models/7/explain", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(body, "87.0% confidence") {
		t.Fatalf("prediction lost after explain:\n%s", body)
	}
	if !strings.Contains(body, "Income contributed most") {
		t.Fatalf("summary missing:\n%s", body)
	}
	if strings.Index(body, `<span class="feature">income</span>`) > strings.Index(body, `<span class="feature">age</span>`) {
		t.Fatalf("feature order not preserved:\n%s", body)
	}
	if strings.Contains(body, `<span class="feature">notes</span>`) {
		t.Fatalf("only the top features should be shown:\n%s", body)
	}
}

func TestExplainWithoutPredictionRedirects(t *testing.T) {
	h := newHarness(t)
	h.serveLoanSchema(t)
	b := h.browser(t)

	h.get(t, b, "/models/7")
	resp, _ := h.post(t, b, "/models/7/explain", nil)
	if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/models/7" {
		t.Fatalf("expected redirect to the model page, got %d %q", resp.StatusCode, resp.Header.Get("Location"))
	}
	if h.backend.Count("POST /api/predict/7/explain") != 0 {
		t.Fatalf("explain must not reach the backend without a prediction")
	}
}

func TestEmptySchemaHidesForm(t *testing.T) {
	h := newHarness(t)
	h.backend.Handle("GET /api/models/3/schema", http.StatusOK, `{"model_id": 3, "model_name": "churn", "target_column": "left", "ui_schema": {"fields": []}}`)

	_, body := h.get(t, h.browser(t), "/models/3")
	if !strings.Contains(body, predict.NoSchemaMessage) {
		t.Fatalf("no-schema message missing:\n%s", body)
	}
	if strings.Contains(body, `action="/models/3/predict"`) {
		t.Fatalf("submission should be hidden:\n%s", body)
	}
}

func TestUnauthorizedRedirectsToLogin(t *testing.T) {
	h := newHarness(t)
	h.serveLoanSchema(t)
	h.backend.Handle("POST /api/predict/7", http.StatusUnauthorized, `{"error": "Token expired"}`)
	if err := h.auth.Login("stale-token"); err != nil {
		t.Fatalf("login: %v", err)
	}

	resp, _ := h.post(t, h.browser(t), "/models/7/predict", loanForm())
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	loc, err := url.Parse(resp.Header.Get("Location"))
	if err != nil {
		t.Fatalf("location: %v", err)
	}
	if loc.Path != "/login" || loc.Query().Get("expired") != "1" || loc.Query().Get("next") != "/models/7" {
		t.Fatalf("unexpected redirect %q", loc)
	}
	if _, ok := h.auth.CurrentToken(); ok {
		t.Fatalf("token should be cleared after 401")
	}

	_, body := h.get(t, h.browser(t), loc.String())
	if !strings.Contains(body, expiredNotice) {
		t.Fatalf("login page should explain the expiry:\n%s", body)
	}
}

func TestLoginAndLogout(t *testing.T) {
	h := newHarness(t)
	b := h.browser(t)

	resp, body := h.post(t, b, "/login", url.Values{"token": {"  "}})
	if resp.StatusCode != http.StatusBadRequest || !strings.Contains(body, "access token is required") {
		t.Fatalf("blank token: %d\n%s", resp.StatusCode, body)
	}

	resp, _ = h.post(t, b, "/login", url.Values{"token": {"abc"}, "next": {"/models/7"}})
	if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/models/7" {
		t.Fatalf("login redirect: %d %q", resp.StatusCode, resp.Header.Get("Location"))
	}
	if token, ok := h.auth.CurrentToken(); !ok || token != "abc" {
		t.Fatalf("token = %q, %v", token, ok)
	}

	resp, _ = h.post(t, b, "/logout", nil)
	if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/login" {
		t.Fatalf("logout redirect: %d %q", resp.StatusCode, resp.Header.Get("Location"))
	}
	if _, ok := h.auth.CurrentToken(); ok {
		t.Fatalf("token should be gone after logout")
	}
}

func TestLoginRejectsOffsiteNext(t *testing.T) {
	h := newHarness(t)
	resp, _ := h.post(t, h.browser(t), "/login", url.Values{"token": {"abc"}, "next": {"//evil.example"}})
	if resp.Header.Get("Location") != "/" {
		t.Fatalf("expected redirect home, got %q", resp.Header.Get("Location"))
	}
}

func TestSafeNext(t *testing.T) {
	cases := map[string]string{
		"/models/7":          "/models/7",
		"":                   "",
		"https://x.example/": "",
		"//x.example":        "",
		"/\\x.example":       "",
	}
	for in, want := range cases {
		if got := safeNext(in); got != want {
			t.Fatalf("safeNext(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSessionPerBrowser(t *testing.T) {
	h := newHarness(t)
	h.serveLoanSchema(t)

	h.get(t, h.browser(t), "/models/7")
	b := h.browser(t)
	h.get(t, b, "/models/7")
	h.get(t, b, "/models/7")

	if got := h.server.sessions.len(); got != 2 {
		t.Fatalf("sessions = %d, want 2", got)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t)
	h.backend.Handle("GET /api/health", http.StatusOK, `{"status": "healthy", "service": "inferx-ml"}`)
	b := h.browser(t)

	resp, body := h.get(t, b, "/health")
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, `"service":"inferx-ml"`) {
		t.Fatalf("health: %d %s", resp.StatusCode, body)
	}

	resp, body = h.get(t, b, "/metrics")
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, "inferx_client_requests_total") {
		t.Fatalf("metrics: %d\n%s", resp.StatusCode, body)
	}
}

func TestStaticStylesheet(t *testing.T) {
	h := newHarness(t)
	resp, body := h.get(t, h.browser(t), "/static/app.css")
	if resp.StatusCode != http.StatusOK || body == "" {
		t.Fatalf("stylesheet: %d", resp.StatusCode)
	}
}

func TestLocalSchemaProvider(t *testing.T) {
	local := schema.ProviderFunc(func(_ context.Context, id model.ModelID) (model.Schema, error) {
		return model.Schema{ModelID: id, ModelName: "local", Fields: []model.Field{
			{Name: "x", Kind: model.KindNumber},
		}}, nil
	})
	h := newHarness(t, func(c *Config) { c.Schemas = local })

	_, body := h.get(t, h.browser(t), "/models/11")
	if !strings.Contains(body, `name="x"`) {
		t.Fatalf("local schema not rendered:\n%s", body)
	}
	if h.backend.Count("GET /api/models/11/schema") != 0 {
		t.Fatalf("backend schema endpoint should not be called")
	}
}

func TestSharedSchemasCollapseConcurrentFetches(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	shared := &sharedSchemas{provider: schema.ProviderFunc(func(_ context.Context, id model.ModelID) (model.Schema, error) {
		calls.Add(1)
		started <- struct{}{}
		<-release
		return model.Schema{ModelID: id, Fields: []model.Field{{Name: "a"}}}, nil
	})}

	var wg sync.WaitGroup
	results := make([]model.Schema, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := shared.Schema(context.Background(), "7")
			if err != nil {
				t.Errorf("schema: %v", err)
			}
			results[i] = s
		}(i)
		if i == 0 {
			<-started
		}
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Fatalf("provider called %d times, want 1", got)
	}
	results[0].Fields[0].Name = "changed"
	if results[1].Fields[0].Name != "a" {
		t.Fatalf("callers must not share the field slice")
	}
}

func TestSharedSchemasPropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	shared := &sharedSchemas{provider: schema.ProviderFunc(func(context.Context, model.ModelID) (model.Schema, error) {
		return model.Schema{}, boom
	})}
	if _, err := shared.Schema(context.Background(), "1"); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestSharedSchemasSurviveCallerCancellation(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	shared := &sharedSchemas{provider: schema.ProviderFunc(func(ctx context.Context, id model.ModelID) (model.Schema, error) {
		started <- struct{}{}
		<-release
		if err := ctx.Err(); err != nil {
			return model.Schema{}, err
		}
		return model.Schema{ModelID: id, Fields: []model.Field{{Name: "a"}}}, nil
	})}

	first, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 2)
	go func() {
		_, err := shared.Schema(first, "7")
		errs <- err
	}()
	<-started
	go func() {
		_, err := shared.Schema(context.Background(), "7")
		errs <- err
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()
	close(release)

	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("collapsed fetch failed after first caller cancelled: %v", err)
		}
	}
}
