// Package auth owns the process-wide authentication state: the bearer token
// persisted under a well-known key, the hooks that run when the backend
// rejects it, and the HTTP transport that injects it into every request.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultKey is the persisted entry holding the auth state.
const DefaultKey = "inferx-auth"

// ErrEmptyToken is returned by Login for blank tokens.
var ErrEmptyToken = errors.New("auth: token is empty")

type persistedState struct {
	State struct {
		Token string `json:"token"`
	} `json:"state"`
}

// Option configures a Context.
type Option func(*Context)

// WithKey overrides the persisted entry key.
func WithKey(key string) Option {
	return func(c *Context) {
		if strings.TrimSpace(key) != "" {
			c.key = key
		}
	}
}

// WithLogger sets the logger used for load failures and forced logouts.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Context) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Context is the single authentication context of the process.
type Context struct {
	mu      sync.RWMutex
	store   Store
	key     string
	token   string
	logger  *slog.Logger
	hooks   []func()
	hooksMu sync.Mutex
	clock   func() time.Time
}

// NewContext loads the persisted token from store. Malformed entries are
// logged and treated as no token; only store I/O failures are returned.
func NewContext(store Store, options ...Option) (*Context, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	c := &Context{
		store:  store,
		key:    DefaultKey,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		clock:  time.Now,
	}
	for _, opt := range options {
		if opt != nil {
			opt(c)
		}
	}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Key reports the persisted entry key.
func (c *Context) Key() string {
	return c.key
}

// Reload re-reads the persisted entry.
func (c *Context) Reload() error {
	data, ok, err := c.store.Get(c.key)
	if err != nil {
		return fmt.Errorf("auth: load %s: %w", c.key, err)
	}
	token := ""
	if ok {
		token = c.parse(data)
	}
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
	return nil
}

func (c *Context) parse(data []byte) string {
	var state persistedState
	if err := json.Unmarshal(data, &state); err != nil {
		c.logger.Warn("auth: ignoring malformed persisted state", "key", c.key, "error", err)
		return ""
	}
	return strings.TrimSpace(state.State.Token)
}

// CurrentToken returns the bearer token, if any.
func (c *Context) CurrentToken() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token, c.token != ""
}

// Login persists token and makes it current.
func (c *Context) Login(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrEmptyToken
	}
	var state persistedState
	state.State.Token = token
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("auth: encode state: %w", err)
	}
	if err := c.store.Set(c.key, data); err != nil {
		return fmt.Errorf("auth: persist token: %w", err)
	}
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
	return nil
}

// Logout clears the persisted entry and the in-memory token.
func (c *Context) Logout() error {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
	if err := c.store.Delete(c.key); err != nil {
		return fmt.Errorf("auth: clear token: %w", err)
	}
	return nil
}

// OnLogout registers fn to run after a forced logout.
func (c *Context) OnLogout(fn func()) {
	if fn == nil {
		return
	}
	c.hooksMu.Lock()
	c.hooks = append(c.hooks, fn)
	c.hooksMu.Unlock()
}

// OnUnauthorized is called when the backend answers 401. It clears the
// persisted entry and runs the logout hooks.
func (c *Context) OnUnauthorized() {
	if err := c.Logout(); err != nil {
		c.logger.Error("auth: forced logout failed", "error", err)
	} else {
		c.logger.Info("auth: token rejected by backend, logged out")
	}
	c.hooksMu.Lock()
	hooks := append([]func(){}, c.hooks...)
	c.hooksMu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}

// Expiry reads the exp claim of the current token without verifying its
// signature. ok is false when there is no token, it is not a JWT, or it has no
// expiry.
func (c *Context) Expiry() (time.Time, bool) {
	token, ok := c.CurrentToken()
	if !ok {
		return time.Time{}, false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// Expired reports whether the current token carries an exp claim in the past.
func (c *Context) Expired() bool {
	exp, ok := c.Expiry()
	return ok && !c.clock().Before(exp)
}
