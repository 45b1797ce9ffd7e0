// User HTTP handlers for multi-user sessions.
//
//   - GET  /sessions/{id}/users                  (derived user list)
//   - GET  /sessions/{id}/users/{name}/messages  (sidebar lookup)
//   - POST /sessions/{id}/users/new              (hand the device to a new user)
//
// Single-user sessions answer 409 wrong_mode.
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-faq-chatbot/internal/domain"
)

// UsersResponse lists the names that have sent records, in order of first
// appearance.
type UsersResponse struct {
	Users []string `json:"users" example:"Alice,Bob"`
}

// UserMessagesResponse holds every record sent by or addressed to Name.
type UserMessagesResponse struct {
	Name     string           `json:"name" example:"Alice"`
	Messages []domain.Message `json:"messages"`
}

// NewUserResponse carries the greeting that starts the new user's view.
type NewUserResponse struct {
	Message *domain.Message `json:"message"`
}

// ListUsers godoc
// @ID          listUsers
// @Summary     List users of a session
// @Tags        Users
// @Produce     json
//
// @Param       id  path  string  true  "Session ID (UUID)"  format(uuid)
//
// @Success     200  {object}  handlers.UsersResponse
// @Failure     404  {object}  handlers.ErrorResponse  "Session not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Single-user session"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /sessions/{id}/users [get]
func (h *Handlers) ListUsers(c *gin.Context) {
	users, err := h.svc.Users(c.Request.Context(), c.Param("id"))
	if err != nil {
		failFor(c, err, ErrCodeListFailed)
		return
	}
	ok(c, http.StatusOK, UsersResponse{Users: users})
}

// UserMessages godoc
// @ID          userMessages
// @Summary     Look up a user's records
// @Description Returns every history record sent by or addressed to the user. The session's view and active user are unchanged.
// @Tags        Users
// @Produce     json
//
// @Param       id    path  string  true  "Session ID (UUID)"  format(uuid)
// @Param       name  path  string  true  "Username"
//
// @Success     200  {object}  handlers.UserMessagesResponse
// @Failure     404  {object}  handlers.ErrorResponse  "Session or user not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Single-user session"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /sessions/{id}/users/{name}/messages [get]
func (h *Handlers) UserMessages(c *gin.Context) {
	name := strings.TrimSpace(c.Param("name"))
	msgs, err := h.svc.LookupUser(c.Request.Context(), c.Param("id"), name)
	if err != nil {
		failFor(c, err, ErrCodeListFailed)
		return
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	ok(c, http.StatusOK, UserMessagesResponse{Name: name, Messages: msgs})
}

// NewUser godoc
// @ID          newUser
// @Summary     Start a new user
// @Description Clears the active user, appends the greeting and makes it the whole view. Pending bot replies are canceled.
// @Tags        Users
// @Produce     json
//
// @Param       id  path  string  true  "Session ID (UUID)"  format(uuid)
//
// @Success     201  {object}  handlers.NewUserResponse
// @Failure     404  {object}  handlers.ErrorResponse  "Session not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Single-user session"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /sessions/{id}/users/new [post]
func (h *Handlers) NewUser(c *gin.Context) {
	g, err := h.svc.NewUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		failFor(c, err, ErrCodeUpdateFailed)
		return
	}
	ok(c, http.StatusCreated, NewUserResponse{Message: g})
}
