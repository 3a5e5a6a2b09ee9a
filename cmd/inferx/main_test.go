package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"net/http"
	"strings"
	"testing"

	"github.com/google/subcommands"

	"github.com/inferx-ml/go-predictform/internal/config"
	"github.com/inferx-ml/go-predictform/pkg/auth"
	"github.com/inferx-ml/go-predictform/pkg/renderers/tui"
	"github.com/inferx-ml/go-predictform/pkg/testsupport"
)

type scriptedDriver struct {
	inputs    []string
	selects   []int
	confirms  []bool
	passwords []string
	info      []string
}

func (d *scriptedDriver) Input(_ context.Context, cfg tui.InputConfig) (string, error) {
	if len(d.inputs) == 0 {
		return "", errors.New("no input scripted for " + cfg.Message)
	}
	v := d.inputs[0]
	d.inputs = d.inputs[1:]
	return v, nil
}

func (d *scriptedDriver) Password(_ context.Context, cfg tui.InputConfig) (string, error) {
	if len(d.passwords) == 0 {
		return "", errors.New("no password scripted")
	}
	v := d.passwords[0]
	d.passwords = d.passwords[1:]
	if cfg.Validator != nil {
		if err := cfg.Validator(v); err != nil {
			return "", err
		}
	}
	return v, nil
}

func (d *scriptedDriver) Confirm(_ context.Context, cfg tui.ConfirmConfig) (bool, error) {
	if len(d.confirms) == 0 {
		return false, errors.New("no confirm scripted for " + cfg.Message)
	}
	v := d.confirms[0]
	d.confirms = d.confirms[1:]
	return v, nil
}

func (d *scriptedDriver) Select(_ context.Context, cfg tui.SelectConfig) (int, error) {
	if len(d.selects) == 0 {
		return -1, errors.New("no select scripted for " + cfg.Message)
	}
	v := d.selects[0]
	d.selects = d.selects[1:]
	return v, nil
}

func (d *scriptedDriver) Info(_ context.Context, msg string) error {
	d.info = append(d.info, msg)
	return nil
}

func (d *scriptedDriver) output() string {
	return strings.Join(d.info, "\n")
}

type result struct {
	status subcommands.ExitStatus
	stdout string
	stderr string
}

type harness struct {
	backend *testsupport.Backend
	store   *auth.MemoryStore
	driver  *scriptedDriver
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	for _, key := range []string{
		config.EnvConfig, config.EnvAPIURL, config.EnvTimeout, config.EnvAuthDir, config.EnvAuthKey,
		config.EnvLogLevel, config.EnvLogFormat, config.EnvServerAddr, config.EnvServerThemeVariant,
		config.EnvSchemaDir, config.EnvSchemaOpenAPI, EnvToken,
	} {
		t.Setenv(key, "")
	}
	return &harness{
		backend: testsupport.NewBackend(t),
		store:   auth.NewMemoryStore(),
		driver:  &scriptedDriver{},
	}
}

func (h *harness) run(t *testing.T, args ...string) result {
	t.Helper()
	var stdout, stderr bytes.Buffer
	env := newCLI(&stdout, &stderr)
	env.store = h.store
	env.driver = h.driver

	top := flag.NewFlagSet("inferx", flag.ContinueOnError)
	env.register(top)
	cdr := newCommander(top)
	global := []string{"-api-url", h.backend.URL(), "-auth-dir", t.TempDir()}
	if err := top.Parse(append(global, args...)); err != nil {
		t.Fatalf("parse %v: %v", args, err)
	}
	status := cdr.Execute(context.Background(), env)
	return result{status: status, stdout: stdout.String(), stderr: stderr.String()}
}

func (h *harness) token(t *testing.T) (string, bool) {
	t.Helper()
	ctx, err := auth.NewContext(h.store)
	if err != nil {
		t.Fatalf("auth context: %v", err)
	}
	return ctx.CurrentToken()
}

func (h *harness) predictInput(t *testing.T) map[string]any {
	t.Helper()
	for _, r := range h.backend.Requests() {
		if r.Method == http.MethodPost && r.Path == "/api/predict/7" {
			input, _ := r.Body["input"].(map[string]any)
			return input
		}
	}
	t.Fatalf("no predict request recorded")
	return nil
}

func (h *harness) serveLoan(t *testing.T) {
	h.backend.Handle("GET /api/models/7/schema", http.StatusOK, string(testsupport.Fixture(t, testsupport.LoanSchemaFixture)))
	h.backend.Handle("POST /api/predict/7", http.StatusOK, `{"prediction": "approved", "probability": 0.87, "model_name": "loan-approval"}`)
	h.backend.Handle("POST /api/predict/7/explain", http.StatusOK, string(testsupport.Fixture(t, testsupport.ExplainFixture)))
}

func TestModelsTable(t *testing.T) {
	h := newHarness(t)
	h.backend.Handle("GET /api/models", http.StatusOK, string(testsupport.Fixture(t, testsupport.ModelsFixture)))

	res := h.run(t, "models")
	if res.status != subcommands.ExitSuccess {
		t.Fatalf("status = %v, stderr %q", res.status, res.stderr)
	}
	if !strings.Contains(res.stdout, "ID") || !strings.Contains(res.stdout, "loan-approval") {
		t.Fatalf("unexpected table:\n%s", res.stdout)
	}
}

func TestModelsBackendError(t *testing.T) {
	h := newHarness(t)
	h.backend.Handle("GET /api/models", http.StatusInternalServerError, `{"error": "database offline"}`)

	res := h.run(t, "models")
	if res.status != subcommands.ExitFailure || !strings.Contains(res.stderr, "database offline") {
		t.Fatalf("status = %v, stderr %q", res.status, res.stderr)
	}
}

func TestSchemaCommand(t *testing.T) {
	h := newHarness(t)
	h.serveLoan(t)

	res := h.run(t, "schema", "7")
	if res.status != subcommands.ExitSuccess {
		t.Fatalf("status = %v, stderr %q", res.status, res.stderr)
	}
	for _, want := range []string{"loan-approval -> approved", "salaried | self-employed | unemployed", "0..200000", "18..100"} {
		if !strings.Contains(res.stdout, want) {
			t.Fatalf("schema output missing %q:\n%s", want, res.stdout)
		}
	}

	res = h.run(t, "schema", "-json", "7")
	if !strings.Contains(res.stdout, `"input_kind": "slider"`) {
		t.Fatalf("json output missing kinds:\n%s", res.stdout)
	}
}

func TestSchemaRequiresID(t *testing.T) {
	h := newHarness(t)
	if res := h.run(t, "schema"); res.status != subcommands.ExitUsageError {
		t.Fatalf("status = %v", res.status)
	}
}

func TestPredictInteractive(t *testing.T) {
	h := newHarness(t)
	h.serveLoan(t)
	h.driver.inputs = []string{"42", "55000", "first loan"}
	h.driver.selects = []int{1, 1}
	h.driver.confirms = []bool{true, true}

	res := h.run(t, "predict", "7")
	if res.status != subcommands.ExitSuccess {
		t.Fatalf("status = %v, stderr %q", res.status, res.stderr)
	}

	input := h.predictInput(t)
	if input["age"] != 42.0 || input["income"] != 55000.0 || input["owns_home"] != true {
		t.Fatalf("unexpected input %v", input)
	}
	if input["employment"] != "salaried" || input["marital"] != "married" || input["notes"] != "first loan" {
		t.Fatalf("unexpected input %v", input)
	}

	out := h.driver.output()
	for _, want := range []string{"Prediction (approved): approved", "87.0% confidence", "Feature importance:", "Income contributed most"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPredictNonInteractive(t *testing.T) {
	h := newHarness(t)
	h.serveLoan(t)

	res := h.run(t, "predict", "-no-prompt", "-set", "age=50", "-set", "owns_home=yes", "7")
	if res.status != subcommands.ExitSuccess {
		t.Fatalf("status = %v, stderr %q", res.status, res.stderr)
	}
	input := h.predictInput(t)
	if input["age"] != 50.0 || input["owns_home"] != true {
		t.Fatalf("unexpected input %v", input)
	}
	if h.backend.Count("POST /api/predict/7/explain") != 0 {
		t.Fatalf("explain should not be requested without -explain")
	}
}

func TestPredictUnknownField(t *testing.T) {
	h := newHarness(t)
	h.serveLoan(t)

	res := h.run(t, "predict", "-set", "colour=red", "7")
	if res.status != subcommands.ExitUsageError {
		t.Fatalf("status = %v, stderr %q", res.status, res.stderr)
	}
	if h.backend.Count("POST /api/predict/7") != 0 {
		t.Fatalf("nothing should be submitted")
	}
}

func TestPredictEmptySchema(t *testing.T) {
	h := newHarness(t)
	h.backend.Handle("GET /api/models/3/schema", http.StatusOK, `{"model_id": 3, "ui_schema": {"fields": []}}`)

	res := h.run(t, "predict", "3")
	if res.status != subcommands.ExitSuccess {
		t.Fatalf("status = %v, stderr %q", res.status, res.stderr)
	}
	if !strings.Contains(h.driver.output(), "No input schema available for this model.") {
		t.Fatalf("output:\n%s", h.driver.output())
	}
}

func TestPredictUnauthorizedLogsOut(t *testing.T) {
	h := newHarness(t)
	h.serveLoan(t)
	h.backend.Handle("POST /api/predict/7", http.StatusUnauthorized, `{"error": "Token expired"}`)
	if res := h.run(t, "login", "-token", "stale"); res.status != subcommands.ExitSuccess {
		t.Fatalf("login: %v %q", res.status, res.stderr)
	}

	res := h.run(t, "predict", "-no-prompt", "7")
	if res.status != subcommands.ExitFailure {
		t.Fatalf("status = %v", res.status)
	}
	if !strings.Contains(res.stderr, expiredMessage) {
		t.Fatalf("stderr should tell the user to log in again: %q", res.stderr)
	}
	if _, ok := h.token(t); ok {
		t.Fatalf("token should be cleared")
	}
}

func TestLoginLogoutStatus(t *testing.T) {
	h := newHarness(t)
	h.backend.Handle("GET /api/health", http.StatusOK, `{"status": "healthy", "service": "inferx-ml"}`)

	res := h.run(t, "status")
	if !strings.Contains(res.stdout, "auth: logged out") || !strings.Contains(res.stdout, "health: healthy (inferx-ml)") {
		t.Fatalf("status output:\n%s", res.stdout)
	}

	h.driver.passwords = []string{"from-prompt"}
	if res := h.run(t, "login"); res.status != subcommands.ExitSuccess || !strings.Contains(res.stdout, "logged in") {
		t.Fatalf("login: %v %q %q", res.status, res.stdout, res.stderr)
	}
	if token, ok := h.token(t); !ok || token != "from-prompt" {
		t.Fatalf("token = %q %v", token, ok)
	}

	res = h.run(t, "status")
	if !strings.Contains(res.stdout, "auth: logged in") {
		t.Fatalf("status output:\n%s", res.stdout)
	}

	if res := h.run(t, "logout"); res.status != subcommands.ExitSuccess {
		t.Fatalf("logout: %v", res.status)
	}
	if _, ok := h.token(t); ok {
		t.Fatalf("token should be gone")
	}
}

func TestLoginFromEnv(t *testing.T) {
	h := newHarness(t)
	t.Setenv(EnvToken, "from-env")
	if res := h.run(t, "login"); res.status != subcommands.ExitSuccess {
		t.Fatalf("login: %v %q", res.status, res.stderr)
	}
	if token, _ := h.token(t); token != "from-env" {
		t.Fatalf("token = %q", token)
	}
}

func TestStatusBackendDown(t *testing.T) {
	h := newHarness(t)
	res := h.run(t, "status")
	if res.status != subcommands.ExitFailure || !strings.Contains(res.stdout, "health: unavailable") {
		t.Fatalf("status = %v, stdout %q", res.status, res.stdout)
	}
}

func TestInvalidConfigFails(t *testing.T) {
	h := newHarness(t)
	res := h.run(t, "-log-level", "loud", "models")
	if res.status != subcommands.ExitFailure || !strings.Contains(res.stderr, "log.level") {
		t.Fatalf("status = %v, stderr %q", res.status, res.stderr)
	}
}
