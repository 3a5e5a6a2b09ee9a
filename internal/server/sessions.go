package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/inferx-ml/go-predictform/pkg/predict"
)

const (
	// SessionCookie carries the id of the browser's prediction session.
	SessionCookie = "inferx_session"

	sessionIdle = time.Hour
)

type sessionEntry struct {
	session  *predict.Session
	lastSeen time.Time
}

// sessions keeps one predict.Session per browser.
type sessions struct {
	mu      sync.Mutex
	entries map[string]*sessionEntry
	create  func() *predict.Session
	now     func() time.Time
}

func newSessions(create func() *predict.Session) *sessions {
	return &sessions{
		entries: make(map[string]*sessionEntry),
		create:  create,
		now:     time.Now,
	}
}

// get returns the session bound to the request's cookie, creating one and
// setting the cookie when none exists.
func (s *sessions) get(c echo.Context) *predict.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if cookie, err := c.Cookie(SessionCookie); err == nil {
		if e, ok := s.entries[cookie.Value]; ok {
			e.lastSeen = now
			return e.session
		}
	}

	s.pruneLocked(now)
	id := uuid.NewString()
	e := &sessionEntry{session: s.create(), lastSeen: now}
	s.entries[id] = e
	c.SetCookie(&http.Cookie{
		Name:     SessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return e.session
}

// drop forgets the request's session.
func (s *sessions) drop(c echo.Context) {
	cookie, err := c.Cookie(SessionCookie)
	if err != nil {
		return
	}
	s.mu.Lock()
	delete(s.entries, cookie.Value)
	s.mu.Unlock()
	c.SetCookie(&http.Cookie{Name: SessionCookie, Value: "", Path: "/", MaxAge: -1})
}

func (s *sessions) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *sessions) pruneLocked(now time.Time) {
	for id, e := range s.entries {
		if now.Sub(e.lastSeen) > sessionIdle {
			delete(s.entries, id)
		}
	}
}
