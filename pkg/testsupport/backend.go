package testsupport

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// Request is one call recorded by Backend.
type Request struct {
	Method        string
	Path          string
	Authorization string
	Body          map[string]any
}

// Response is a canned backend answer.
type Response struct {
	Status int
	Body   string
}

// Backend is a stub of the InferX-ML REST API mounted under /api. Routes
// answer with the Response registered for "METHOD /api/path", falling back to
// 404 {"error": "Not found"}.
type Backend struct {
	Server *httptest.Server

	mu        sync.Mutex
	responses map[string]Response
	requests  []Request
	gate      map[string]chan struct{}
}

// NewBackend starts a stub backend that is closed when t finishes.
func NewBackend(t *testing.T) *Backend {
	t.Helper()

	b := &Backend{
		responses: make(map[string]Response),
		gate:      make(map[string]chan struct{}),
	}
	b.Server = httptest.NewServer(http.HandlerFunc(b.serve))
	t.Cleanup(b.Server.Close)
	return b
}

// URL is the API root, suitable for client.New.
func (b *Backend) URL() string {
	return b.Server.URL + "/api"
}

// Handle registers the answer for route, e.g. "POST /api/predict/7".
func (b *Backend) Handle(route string, status int, body string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.responses[route] = Response{Status: status, Body: body}
}

// Block makes route wait until the returned release function is called. It
// lets tests hold a request in flight.
func (b *Backend) Block(route string) (release func()) {
	ch := make(chan struct{})
	b.mu.Lock()
	b.gate[route] = ch
	b.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() { close(ch) })
	}
}

// Requests returns a copy of the calls received so far.
func (b *Backend) Requests() []Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Request(nil), b.requests...)
}

// Count reports how many calls hit route.
func (b *Backend) Count(route string) int {
	n := 0
	for _, r := range b.Requests() {
		if r.Method+" "+r.Path == route {
			n++
		}
	}
	return n
}

func (b *Backend) serve(w http.ResponseWriter, r *http.Request) {
	route := r.Method + " " + r.URL.Path
	rec := Request{
		Method:        r.Method,
		Path:          r.URL.Path,
		Authorization: r.Header.Get("Authorization"),
	}
	if data, err := io.ReadAll(r.Body); err == nil && len(strings.TrimSpace(string(data))) > 0 {
		_ = json.Unmarshal(data, &rec.Body)
	}

	b.mu.Lock()
	b.requests = append(b.requests, rec)
	resp, ok := b.responses[route]
	gate := b.gate[route]
	b.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error": "Not found"}`)
		return
	}
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = io.WriteString(w, resp.Body)
}
