package auth

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
)

// RequestIDHeader carries a per-request id for backend log correlation.
const RequestIDHeader = "X-Request-ID"

// Transport injects the bearer token into outgoing requests and runs the
// context's forced logout when a response comes back 401.
type Transport struct {
	Base http.RoundTripper
	Auth *Context
}

// NewTransport wraps base (http.DefaultTransport when nil).
func NewTransport(base http.RoundTripper, auth *Context) *Transport {
	return &Transport{Base: base, Auth: auth}
}

// RoundTrip implements http.RoundTripper. The caller's request is cloned,
// never mutated.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("auth: nil request")
	}
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	out := req.Clone(req.Context())
	if t.Auth != nil {
		if token, ok := t.Auth.CurrentToken(); ok {
			out.Header.Set("Authorization", "Bearer "+token)
		}
	}
	if out.Header.Get(RequestIDHeader) == "" {
		out.Header.Set(RequestIDHeader, uuid.NewString())
	}

	resp, err := base.RoundTrip(out)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized && t.Auth != nil {
		t.Auth.OnUnauthorized()
	}
	return resp, nil
}
