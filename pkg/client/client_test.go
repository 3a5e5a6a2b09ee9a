package client

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/inferx-ml/go-predictform/pkg/auth"
	"github.com/inferx-ml/go-predictform/pkg/model"
	"github.com/inferx-ml/go-predictform/pkg/testsupport"
)

func newTestClient(t *testing.T, backend *testsupport.Backend, opts ...Option) Client {
	t.Helper()
	c, err := New(backend.URL(), opts...)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestNew_RejectsNonHTTPBaseURL(t *testing.T) {
	if _, err := New("ftp://example.com/api"); err == nil {
		t.Fatalf("expected error for ftp scheme")
	}
}

func TestListModels(t *testing.T) {
	backend := testsupport.NewBackend(t)
	backend.Handle("GET /api/models", http.StatusOK, string(testsupport.Fixture(t, testsupport.ModelsFixture)))

	models, err := newTestClient(t, backend).ListModels(context.Background())
	if err != nil {
		t.Fatalf("list models: %v", err)
	}
	if len(models) != 2 {
		t.Fatalf("expected 2 models, got %d", len(models))
	}
	if models[0].ID != "7" || models[0].Name != "loan-approval" || models[1].ProblemType != "regression" {
		t.Fatalf("unexpected models %+v", models)
	}
	if models[0].BestScore == nil || *models[0].BestScore != 0.91 {
		t.Fatalf("expected best score 0.91, got %v", models[0].BestScore)
	}
}

func TestSchema_DecodesUISchema(t *testing.T) {
	backend := testsupport.NewBackend(t)
	backend.Handle("GET /api/models/7/schema", http.StatusOK, string(testsupport.Fixture(t, testsupport.LoanSchemaFixture)))

	schema, err := newTestClient(t, backend).Schema(context.Background(), "7")
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	if schema.ModelName != "loan-approval" || schema.TargetColumn != "approved" {
		t.Fatalf("unexpected metadata %+v", schema)
	}
	want := []string{"age", "income", "employment", "owns_home", "marital", "notes"}
	if diff := cmp.Diff(want, schema.Names()); diff != "" {
		t.Fatalf("field order mismatch (-want +got):\n%s", diff)
	}
	kinds := []model.InputKind{model.KindNumber, model.KindSlider, model.KindDropdown, model.KindCheckbox, model.KindRadio, model.KindText}
	for i, f := range schema.Fields {
		if f.Kind != kinds[i] {
			t.Fatalf("field %s: expected kind %s, got %s", f.Name, kinds[i], f.Kind)
		}
	}
}

func TestSchema_MissingUISchemaIsEmpty(t *testing.T) {
	backend := testsupport.NewBackend(t)
	backend.Handle("GET /api/models/3/schema", http.StatusOK, `{"model_id": 3, "model_name": "m", "target_column": "y", "ui_schema": {"fields": []}}`)

	schema, err := newTestClient(t, backend).Schema(context.Background(), "3")
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	if !schema.Empty() || schema.Fields == nil {
		t.Fatalf("expected empty non-nil fields, got %#v", schema.Fields)
	}
	if schema.ModelID != "3" {
		t.Fatalf("expected model id 3, got %q", schema.ModelID)
	}
}

func TestPredict_SendsInputAndDecodesResult(t *testing.T) {
	backend := testsupport.NewBackend(t)
	backend.Handle("POST /api/predict/7", http.StatusOK, `{"prediction": "approved", "probability": 0.87, "model_name": "RandomForest", "input": {"age": 42}}`)

	got, err := newTestClient(t, backend).Predict(context.Background(), "7", model.Values{"age": 42.0})
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if !got.Present || got.Value != "approved" || got.Probability == nil || *got.Probability != 0.87 {
		t.Fatalf("unexpected prediction %+v", got)
	}

	reqs := backend.Requests()
	if len(reqs) != 1 {
		t.Fatalf("expected one request, got %d", len(reqs))
	}
	want := map[string]any{"input": map[string]any{"age": 42.0}}
	if diff := cmp.Diff(want, reqs[0].Body); diff != "" {
		t.Fatalf("request body mismatch (-want +got):\n%s", diff)
	}
}

func TestExplain_PreservesImportanceOrder(t *testing.T) {
	backend := testsupport.NewBackend(t)
	backend.Handle("POST /api/predict/7/explain", http.StatusOK, string(testsupport.Fixture(t, testsupport.ExplainFixture)))

	got, err := newTestClient(t, backend).Explain(context.Background(), "7", model.Values{"age": 42.0})
	if err != nil {
		t.Fatalf("explain: %v", err)
	}
	if got.Prediction.Value != "approved" {
		t.Fatalf("unexpected prediction %+v", got.Prediction)
	}
	var order []string
	for _, imp := range got.Explanation.FeatureImportance {
		order = append(order, imp.Feature)
	}
	want := []string{"income", "age", "employment", "owns_home", "marital", "notes"}
	if diff := cmp.Diff(want, order); diff != "" {
		t.Fatalf("importance order mismatch (-want +got):\n%s", diff)
	}
	if got.Explanation.Summary == "" {
		t.Fatalf("expected summary")
	}
}

func TestAPIError_CarriesBackendMessage(t *testing.T) {
	backend := testsupport.NewBackend(t)
	backend.Handle("POST /api/predict/7", http.StatusBadRequest, `{"error": "Model training not completed"}`)

	_, err := newTestClient(t, backend).Predict(context.Background(), "7", model.Values{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusBadRequest || apiErr.Message != "Model training not completed" {
		t.Fatalf("unexpected api error %+v", apiErr)
	}
}

func TestAPIError_PlainBody(t *testing.T) {
	backend := testsupport.NewBackend(t)
	backend.Handle("GET /api/health", http.StatusBadGateway, "upstream down\n")

	_, err := newTestClient(t, backend).Health(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "upstream down" {
		t.Fatalf("expected plain-body api error, got %v", err)
	}
}

func TestUnauthorized_ForcesLogout(t *testing.T) {
	backend := testsupport.NewBackend(t)
	backend.Handle("GET /api/models", http.StatusUnauthorized, `{"error": "token expired"}`)

	store := auth.NewMemoryStore()
	authCtx, err := auth.NewContext(store)
	if err != nil {
		t.Fatalf("auth context: %v", err)
	}
	if err := authCtx.Login("tok"); err != nil {
		t.Fatalf("login: %v", err)
	}
	hooked := false
	authCtx.OnLogout(func() { hooked = true })

	_, err = newTestClient(t, backend, WithAuth(authCtx)).ListModels(context.Background())
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if reqs := backend.Requests(); reqs[0].Authorization != "Bearer tok" {
		t.Fatalf("expected bearer header, got %q", reqs[0].Authorization)
	}
	if _, ok, _ := store.Get(auth.DefaultKey); ok {
		t.Fatalf("expected persisted token cleared")
	}
	if !hooked {
		t.Fatalf("expected logout hook to run")
	}
}

func TestMissingToken_SendsNoHeader(t *testing.T) {
	backend := testsupport.NewBackend(t)
	backend.Handle("GET /api/health", http.StatusOK, `{"status": "healthy", "service": "inferx-ml-backend"}`)

	store := auth.NewMemoryStore()
	_ = store.Set(auth.DefaultKey, []byte("{broken"))
	authCtx, _ := auth.NewContext(store)

	health, err := newTestClient(t, backend, WithAuth(authCtx)).Health(context.Background())
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if health.Status != "healthy" {
		t.Fatalf("unexpected health %+v", health)
	}
	if got := backend.Requests()[0].Authorization; got != "" {
		t.Fatalf("expected no authorization header, got %q", got)
	}
}

func TestTimeout(t *testing.T) {
	backend := testsupport.NewBackend(t)
	backend.Handle("GET /api/models", http.StatusOK, `{"models": [], "total": 0}`)
	release := backend.Block("GET /api/models")
	defer release()

	_, err := newTestClient(t, backend, WithTimeout(50*time.Millisecond)).ListModels(context.Background())
	if err == nil {
		t.Fatalf("expected timeout error")
	}
}

func TestMissingModelID(t *testing.T) {
	backend := testsupport.NewBackend(t)
	c := newTestClient(t, backend)
	if _, err := c.Predict(context.Background(), "", nil); !errors.Is(err, ErrMissingModelID) {
		t.Fatalf("expected ErrMissingModelID, got %v", err)
	}
	if len(backend.Requests()) != 0 {
		t.Fatalf("expected no request to be issued")
	}
}

func TestMetrics_CountsRequests(t *testing.T) {
	backend := testsupport.NewBackend(t)
	backend.Handle("GET /api/health", http.StatusOK, `{"status": "healthy"}`)

	reg := prometheus.NewRegistry()
	metrics, err := NewMetrics(reg)
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	c := newTestClient(t, backend, WithMetrics(metrics))
	for i := 0; i < 2; i++ {
		if _, err := c.Health(context.Background()); err != nil {
			t.Fatalf("health: %v", err)
		}
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var total float64
	for _, fam := range families {
		if fam.GetName() != "inferx_client_requests_total" {
			continue
		}
		for _, m := range fam.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	if total != 2 {
		t.Fatalf("expected 2 counted requests, got %v", total)
	}
}
