package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/p-n-ai/learnpath/internal/export"
	"github.com/p-n-ai/learnpath/internal/session"
	"github.com/p-n-ai/learnpath/internal/wizard"
)

// Error codes returned in apiError.Code.
const (
	CodeValidation        = "validation"
	CodeGeneration        = "generation_failed"
	CodeBusy              = "busy"
	CodeResetRequired     = "reset_required"
	CodeInvalidTransition = "invalid_transition"
	CodeNoSuchModule      = "no_such_module"
	CodeNoSession         = "no_session"
	CodeBadRequest        = "bad_request"
	CodeNothingToExport   = "nothing_to_export"
	CodeInternal          = "internal"
)

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// response is the body of every session endpoint. View is always the
// session's current view so the client can render it, error or not.
type response struct {
	SessionID string       `json:"session_id,omitempty"`
	View      *wizard.View `json:"view,omitempty"`
	Error     *apiError    `json:"error,omitempty"`
}

type topicRequest struct {
	Topic      *string `json:"topic"`
	GradeLevel *string `json:"grade_level"`
}

type sessionHandler func(w http.ResponseWriter, r *http.Request, c *wizard.Controller)

// withSession resolves the session cookie to a controller.
func (s *Server) withSession(next sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := s.controller(r)
		if err != nil {
			s.writeError(w, nil, err)
			return
		}
		next(w, r, c)
	}
}

func (s *Server) controller(r *http.Request) (*wizard.Controller, error) {
	cookie, err := r.Cookie(SessionCookie)
	if err != nil {
		return nil, session.ErrNotFound
	}
	return s.sessions.Get(r.Context(), cookie.Value)
}

func (s *Server) handleGradeLevels(w http.ResponseWriter, _ *http.Request) {
	catalog := s.sessions.Catalog()
	writeJSON(w, http.StatusOK, map[string]any{
		"levels":  catalog.Levels(),
		"default": catalog.Default(),
	})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	// Starting over ends the previous session.
	if cookie, err := r.Cookie(SessionCookie); err == nil {
		if err := s.sessions.End(r.Context(), cookie.Value); err != nil {
			slog.Warn("failed to end previous session", "session_id", cookie.Value, "error", err)
		}
	}

	c, err := s.sessions.Create(r.Context())
	if err != nil {
		s.writeError(w, nil, err)
		return
	}

	http.SetCookie(w, s.sessionCookie(c.SessionID()))
	v := c.View()
	writeJSON(w, http.StatusCreated, response{SessionID: c.SessionID(), View: &v})
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(SessionCookie); err == nil {
		if err := s.sessions.End(r.Context(), cookie.Value); err != nil {
			s.writeError(w, nil, err)
			return
		}
	}
	expired := s.sessionCookie("")
	expired.MaxAge = -1
	http.SetCookie(w, expired)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request, c *wizard.Controller) {
	s.writeView(w, c)
}

func (s *Server) handleSetTopic(w http.ResponseWriter, r *http.Request, c *wizard.Controller) {
	var req topicRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		s.writeErrorCode(w, c, http.StatusBadRequest, CodeBadRequest, "invalid JSON body")
		return
	}

	if req.Topic != nil {
		if err := c.SetTopic(*req.Topic); err != nil {
			s.writeError(w, c, err)
			return
		}
	}
	if req.GradeLevel != nil {
		if err := c.SetGradeLevel(*req.GradeLevel); err != nil {
			s.writeError(w, c, err)
			return
		}
	}
	s.writeView(w, c)
}

// handleRequestModules blocks until generation finishes. Clients that want
// the loading view follow the websocket stream.
func (s *Server) handleRequestModules(w http.ResponseWriter, r *http.Request, c *wizard.Controller) {
	s.run(w, c, c.RequestModules(r.Context()))
}

func (s *Server) handleSelectModule(w http.ResponseWriter, r *http.Request, c *wizard.Controller) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		s.writeError(w, c, wizard.ErrNoSuchModule)
		return
	}
	s.run(w, c, c.SelectModuleAt(r.Context(), index))
}

func (s *Server) handleBackToModules(w http.ResponseWriter, _ *http.Request, c *wizard.Controller) {
	s.run(w, c, c.GoBackToModules())
}

func (s *Server) handleBackToTopic(w http.ResponseWriter, _ *http.Request, c *wizard.Controller) {
	s.run(w, c, c.GoBackToTopic())
}

func (s *Server) handleReset(w http.ResponseWriter, _ *http.Request, c *wizard.Controller) {
	s.run(w, c, c.ResetOnError())
}

func (s *Server) handleExport(w http.ResponseWriter, _ *http.Request, c *wizard.Controller) {
	var buf bytes.Buffer
	if err := export.Outline(&buf, c.State()); err != nil {
		s.writeError(w, c, err)
		return
	}
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="learning-path.xlsx"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (s *Server) run(w http.ResponseWriter, c *wizard.Controller, err error) {
	if err != nil {
		s.writeError(w, c, err)
		return
	}
	s.writeView(w, c)
}

func (s *Server) writeView(w http.ResponseWriter, c *wizard.Controller) {
	v := c.View()
	writeJSON(w, http.StatusOK, response{SessionID: c.SessionID(), View: &v})
}

func (s *Server) writeError(w http.ResponseWriter, c *wizard.Controller, err error) {
	status, code, msg := classify(err)
	if status >= http.StatusInternalServerError && status != http.StatusBadGateway {
		slog.Error("request failed", "error", err)
	}
	s.writeErrorCode(w, c, status, code, msg)
}

func (s *Server) writeErrorCode(w http.ResponseWriter, c *wizard.Controller, status int, code, msg string) {
	resp := response{Error: &apiError{Code: code, Message: msg}}
	if c != nil {
		v := c.View()
		resp.SessionID = c.SessionID()
		resp.View = &v
	}
	writeJSON(w, status, resp)
}

// classify maps domain errors to a status, a code and a message safe to show.
func classify(err error) (int, string, string) {
	var validation *wizard.ValidationError
	var generation *wizard.GenerationError

	switch {
	case errors.As(err, &validation):
		return http.StatusUnprocessableEntity, CodeValidation, validation.Message
	case errors.As(err, &generation):
		return http.StatusBadGateway, CodeGeneration, generation.Message
	case errors.Is(err, wizard.ErrBusy):
		return http.StatusConflict, CodeBusy, err.Error()
	case errors.Is(err, wizard.ErrResetRequired):
		return http.StatusConflict, CodeResetRequired, err.Error()
	case errors.Is(err, wizard.ErrInvalidTransition):
		return http.StatusConflict, CodeInvalidTransition, err.Error()
	case errors.Is(err, wizard.ErrNoSuchModule):
		return http.StatusNotFound, CodeNoSuchModule, err.Error()
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound, CodeNoSession, "session not found; start a new one"
	case errors.Is(err, export.ErrNothingToExport):
		return http.StatusConflict, CodeNothingToExport, err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, CodeInternal, "request timed out"
	default:
		return http.StatusInternalServerError, CodeInternal, "internal error"
	}
}

func (s *Server) sessionCookie(id string) *http.Cookie {
	c := &http.Cookie{
		Name:     SessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
	}
	if s.sessionTTL > 0 {
		c.MaxAge = int(s.sessionTTL.Seconds())
	}
	return c
}
