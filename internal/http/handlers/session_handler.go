// Session HTTP handlers.
//
// This file exposes the session lifecycle endpoints:
//   - POST /sessions                 (create)
//   - POST /sessions/import          (restore a local storage snapshot)
//   - GET  /sessions/{id}            (presentation state)
//   - POST /sessions/{id}/theme      (toggle dark mode)
//   - GET  /sessions/{id}/events     (websocket event stream)
package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-faq-chatbot/internal/http/middleware"
	"github.com/tbourn/go-faq-chatbot/internal/services"
)

//
// DTOs
//

// CreateSessionRequest is the optional JSON payload for creating a session.
type CreateSessionRequest struct {
	// Mode is "single" or "multi"; empty selects the server default.
	Mode string `json:"mode" example:"multi"`
}

// ThemeResponse reports the theme flag after a toggle.
type ThemeResponse struct {
	DarkMode bool `json:"dark_mode" example:"true"`
}

//
// Handlers
//

// CreateSession godoc
// @ID          createSession
// @Summary     Create a device session
// @Description Starts a new session. Multi-user sessions start awaiting a name with the greeting as their only record.
// @Tags        Sessions
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.CreateSessionRequest  false  "Session options"
//
// @Success     201  {object}  domain.Session
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request / invalid mode"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /sessions [post]
func (h *Handlers) CreateSession(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		Fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	sess, err := h.svc.CreateSession(c.Request.Context(), req.Mode)
	if err != nil {
		failFor(c, err, ErrCodeCreateFailed)
		return
	}
	ok(c, http.StatusCreated, sess)
}

// ImportSession godoc
// @ID          importSession
// @Summary     Import a local storage snapshot
// @Description Creates a session from the widget's persisted slots (chatMessages, chatHistory, username, darkMode).
// @Description Slots that fail to decode are discarded, replaced by defaults and listed in corrupt_slots.
// @Tags        Sessions
// @Accept      json
// @Produce     json
//
// @Param       body  body  services.Snapshot  true  "Snapshot"
//
// @Success     201  {object}  services.ImportResult
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request / invalid mode"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /sessions/import [post]
func (h *Handlers) ImportSession(c *gin.Context) {
	var snap services.Snapshot
	if err := c.ShouldBindJSON(&snap); err != nil {
		Fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	res, err := h.svc.ImportSnapshot(c.Request.Context(), snap)
	if err != nil {
		failFor(c, err, ErrCodeImportFailed)
		return
	}
	if len(res.Corrupt) > 0 {
		middleware.LoggerFrom(c).Warn().
			Str("session_id", res.Session.ID).
			Strs("corrupt_slots", res.Corrupt).
			Msg("snapshot imported with corrupt slots")
	}
	ok(c, http.StatusCreated, res)
}

// GetSession godoc
// @ID          getSession
// @Summary     Get session state
// @Description Returns mode, username, theme, name-claim state, typing indicator, derived users and the current view.
// @Tags        Sessions
// @Produce     json
//
// @Param       id  path  string  true  "Session ID (UUID)"  format(uuid)
//
// @Success     200  {object}  services.State
// @Failure     404  {object}  handlers.ErrorResponse  "Session not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /sessions/{id} [get]
func (h *Handlers) GetSession(c *gin.Context) {
	st, err := h.svc.State(c.Request.Context(), c.Param("id"))
	if err != nil {
		failFor(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, st)
}

// ToggleTheme godoc
// @ID          toggleTheme
// @Summary     Toggle dark mode
// @Tags        Sessions
// @Produce     json
//
// @Param       id  path  string  true  "Session ID (UUID)"  format(uuid)
//
// @Success     200  {object}  handlers.ThemeResponse
// @Failure     404  {object}  handlers.ErrorResponse  "Session not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /sessions/{id}/theme [post]
func (h *Handlers) ToggleTheme(c *gin.Context) {
	dark, err := h.svc.ToggleTheme(c.Request.Context(), c.Param("id"))
	if err != nil {
		failFor(c, err, ErrCodeUpdateFailed)
		return
	}
	ok(c, http.StatusOK, ThemeResponse{DarkMode: dark})
}

// Events godoc
// @ID          sessionEvents
// @Summary     Subscribe to session events
// @Description Upgrades to a websocket that streams JSON events (ready, message, reaction, typing, theme, reset, user) for the session.
// @Tags        Sessions
//
// @Param       id  path  string  true  "Session ID (UUID)"  format(uuid)
//
// @Success     101  {string}  string  "Switching Protocols"
// @Failure     404  {object}  handlers.ErrorResponse  "Session not found"
// @Router      /sessions/{id}/events [get]
func (h *Handlers) Events(c *gin.Context) {
	if h.events == nil || h.upgrader == nil {
		Fail(c, http.StatusNotFound, ErrCodeNotFound, "event stream disabled")
		return
	}
	sid := c.Param("id")
	if _, err := h.svc.Session(c.Request.Context(), sid); err != nil {
		failFor(c, err, ErrCodeInternal)
		return
	}
	// On failure the upgrader has already answered the client.
	if err := h.events.Serve(h.upgrader, c.Writer, c.Request, sid); err != nil {
		middleware.LoggerFrom(c).Warn().Err(err).Str("session_id", sid).Msg("event stream upgrade failed")
	}
}
