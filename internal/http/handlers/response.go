// Package handlers implements the JSON endpoints of the chat API.
//
// Every failure is answered with the same envelope:
//
//	HTTP/1.1 404 Not Found
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "session_not_found",
//	  "message": "session not found"
//	}
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-faq-chatbot/internal/http/middleware"
	"github.com/tbourn/go-faq-chatbot/internal/services"
)

// ErrorResponse is the error envelope.
type ErrorResponse struct {
	// Echo of X-Request-ID, for matching client reports to server logs.
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable machine-readable code, one of the ErrCode constants.
	Code string `json:"code" example:"session_not_found"`
	// Message is safe to show to the user.
	Message string `json:"message" example:"session not found"`
}

// Fail aborts with the error envelope. Router fallbacks use it directly.
func Fail(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID: middleware.RequestIDFrom(c),
		Code:      code,
		Message:   msg,
	})
}

// serviceErrors maps service sentinels to their HTTP status and code.
var serviceErrors = []struct {
	err    error
	status int
	code   string
}{
	{services.ErrSessionNotFound, http.StatusNotFound, ErrCodeSessionNotFound},
	{services.ErrMessageNotFound, http.StatusNotFound, ErrCodeMessageNotFound},
	{services.ErrUnknownUser, http.StatusNotFound, ErrCodeUnknownUser},
	{services.ErrWrongMode, http.StatusConflict, ErrCodeWrongMode},
	{services.ErrInvalidMode, http.StatusBadRequest, ErrCodeInvalidMode},
	{services.ErrInvalidReaction, http.StatusBadRequest, ErrCodeInvalidReaction},
	{services.ErrTooLong, http.StatusBadRequest, ErrCodeTooLong},
	{services.ErrReservedName, http.StatusBadRequest, ErrCodeReservedName},
}

// failFor answers with the mapping for err. Anything unmapped is a 500 under
// fallbackCode; its text goes to c.Errors for the access log, never to the
// client.
func failFor(c *gin.Context, err error, fallbackCode string) {
	for _, m := range serviceErrors {
		if errors.Is(err, m.err) {
			Fail(c, m.status, m.code, m.err.Error())
			return
		}
	}
	_ = c.Error(err)
	Fail(c, http.StatusInternalServerError, fallbackCode, "internal error")
}

func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// notModified sets ETag and answers 304 when If-None-Match matches it. The
// header may list several tags or "*"; comparison is weak, so W/"x" and "x"
// match.
func notModified(c *gin.Context, etag string) bool {
	c.Header("ETag", etag)
	inm := c.GetHeader("If-None-Match")
	if inm == "" {
		return false
	}
	want := strings.TrimPrefix(etag, "W/")
	for _, tag := range strings.Split(inm, ",") {
		tag = strings.TrimSpace(tag)
		if tag == "*" || strings.TrimPrefix(tag, "W/") == want {
			c.Status(http.StatusNotModified)
			return true
		}
	}
	return false
}
