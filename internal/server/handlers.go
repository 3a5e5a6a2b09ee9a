package server

import (
	"bytes"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/inferx-ml/go-predictform/pkg/auth"
	"github.com/inferx-ml/go-predictform/pkg/client"
	"github.com/inferx-ml/go-predictform/pkg/model"
	"github.com/inferx-ml/go-predictform/pkg/predict"
	"github.com/inferx-ml/go-predictform/pkg/renderers/web"
)

const expiredNotice = "Your session expired. Log in again to continue."

func (s *Server) page() web.Page {
	_, ok := s.auth.CurrentToken()
	return web.Page{Authenticated: ok}
}

func (s *Server) html(c echo.Context, status int, render func(*bytes.Buffer) error) error {
	var buf bytes.Buffer
	if err := render(&buf); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "render failed").SetInternal(err)
	}
	return c.HTMLBlob(status, buf.Bytes())
}

// toLogin sends the browser to the login page after a 401 from the backend.
// The auth transport has already cleared the token by then.
func (s *Server) toLogin(c echo.Context, next string) error {
	q := url.Values{"expired": {"1"}}
	if next != "" {
		q.Set("next", next)
	}
	return c.Redirect(http.StatusSeeOther, "/login?"+q.Encode())
}

func (s *Server) listModels() echo.HandlerFunc {
	return func(c echo.Context) error {
		models, err := s.client.ListModels(c.Request().Context())
		if errors.Is(err, client.ErrUnauthorized) {
			return s.toLogin(c, "/")
		}
		page := web.ModelsPage{Page: s.page(), Models: models}
		status := http.StatusOK
		if err != nil {
			s.logger.Warn("list models failed", "error", err)
			page.Error = "Could not load models: " + predict.ErrorMessage(err)
			status = http.StatusBadGateway
		}
		return s.html(c, status, func(buf *bytes.Buffer) error {
			return s.renderer.RenderModels(buf, page)
		})
	}
}

func (s *Server) renderSession(c echo.Context, session *predict.Session) error {
	view := session.Snapshot()
	return s.html(c, http.StatusOK, func(buf *bytes.Buffer) error {
		return s.renderer.RenderPredict(buf, s.page(), view)
	})
}

// showModel selects the model, which resets the form and any result.
func (s *Server) showModel() echo.HandlerFunc {
	return func(c echo.Context) error {
		id := model.ModelID(c.Param("id"))
		session := s.sessions.get(c)
		if _, err := session.SelectModel(c.Request().Context(), id); err != nil {
			if errors.Is(err, client.ErrUnauthorized) {
				return s.toLogin(c, "/models/"+id.String())
			}
			if errors.Is(err, predict.ErrStale) {
				return c.Redirect(http.StatusSeeOther, "/models/"+url.PathEscape(session.Snapshot().ModelID.String()))
			}
		}
		return s.renderSession(c, session)
	}
}

// ensureModel makes sure the session is on id before a submission; a fresh
// browser posting directly gets the schema loaded first.
func (s *Server) ensureModel(c echo.Context, session *predict.Session, id model.ModelID) error {
	view := session.Snapshot()
	if view.Selected && view.ModelID == id && !view.Loading {
		return nil
	}
	_, err := session.SelectModel(c.Request().Context(), id)
	return err
}

func (s *Server) applyForm(c echo.Context, session *predict.Session) error {
	form, err := c.FormParams()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed form").SetInternal(err)
	}
	for _, f := range session.Snapshot().Fields {
		raw, ok := form[f.Name]
		if !ok || len(raw) == 0 {
			continue
		}
		if _, err := session.SetField(f.Name, raw[len(raw)-1]); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error()).SetInternal(err)
		}
	}
	return nil
}

func (s *Server) submitPredict() echo.HandlerFunc {
	return func(c echo.Context) error {
		id := model.ModelID(c.Param("id"))
		session := s.sessions.get(c)
		next := "/models/" + id.String()

		if err := s.ensureModel(c, session, id); err != nil {
			if errors.Is(err, client.ErrUnauthorized) {
				return s.toLogin(c, next)
			}
			return s.renderSession(c, session)
		}
		if err := s.applyForm(c, session); err != nil {
			return err
		}
		_, err := session.Predict(c.Request().Context())
		switch {
		case errors.Is(err, client.ErrUnauthorized):
			return s.toLogin(c, next)
		case errors.Is(err, predict.ErrBusy):
			return echo.NewHTTPError(http.StatusConflict, "a prediction is already running")
		}
		return s.renderSession(c, session)
	}
}

func (s *Server) submitExplain() echo.HandlerFunc {
	return func(c echo.Context) error {
		id := model.ModelID(c.Param("id"))
		session := s.sessions.get(c)
		next := "/models/" + id.String()

		view := session.Snapshot()
		if !view.Selected || view.ModelID != id {
			return c.Redirect(http.StatusSeeOther, next)
		}
		_, err := session.Explain(c.Request().Context())
		switch {
		case errors.Is(err, client.ErrUnauthorized):
			return s.toLogin(c, next)
		case errors.Is(err, predict.ErrBusy):
			return echo.NewHTTPError(http.StatusConflict, "an explanation is already running")
		case errors.Is(err, predict.ErrNoPrediction):
			return c.Redirect(http.StatusSeeOther, next)
		}
		return s.renderSession(c, session)
	}
}

func (s *Server) showLogin() echo.HandlerFunc {
	return func(c echo.Context) error {
		page := web.LoginPage{Page: s.page(), Next: safeNext(c.QueryParam("next"))}
		if c.QueryParam("expired") != "" {
			page.Notice = expiredNotice
		}
		return s.html(c, http.StatusOK, func(buf *bytes.Buffer) error {
			return s.renderer.RenderLogin(buf, page)
		})
	}
}

func (s *Server) submitLogin() echo.HandlerFunc {
	return func(c echo.Context) error {
		next := safeNext(c.FormValue("next"))
		err := s.auth.Login(c.FormValue("token"))
		if err != nil && !errors.Is(err, auth.ErrEmptyToken) {
			return echo.NewHTTPError(http.StatusInternalServerError, "login failed").SetInternal(err)
		}
		if err != nil {
			page := web.LoginPage{Page: s.page(), Next: next, Error: "An access token is required."}
			return s.html(c, http.StatusBadRequest, func(buf *bytes.Buffer) error {
				return s.renderer.RenderLogin(buf, page)
			})
		}
		s.logger.Info("logged in")
		if next == "" {
			next = "/"
		}
		return c.Redirect(http.StatusSeeOther, next)
	}
}

func (s *Server) submitLogout() echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := s.auth.Logout(); err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "logout failed").SetInternal(err)
		}
		s.sessions.drop(c)
		return c.Redirect(http.StatusSeeOther, "/login")
	}
}

func (s *Server) health() echo.HandlerFunc {
	return func(c echo.Context) error {
		h, err := s.client.Health(c.Request().Context())
		if err != nil {
			return c.JSON(http.StatusBadGateway, map[string]string{
				"status": "unavailable",
				"error":  predict.ErrorMessage(err),
			})
		}
		return c.JSON(http.StatusOK, h)
	}
}

// safeNext keeps redirects on this host.
func safeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.Contains(next, "\\") {
		return ""
	}
	return next
}
