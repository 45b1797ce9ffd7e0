// Package middleware holds the Gin middleware shared by every route.
//
// logging.go carries correlation ids, the request-scoped logger and panic
// recovery. Install RequestID first, then RedactingLogger, then Recovery, so
// that access lines and panic reports name the same request.
package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	requestIDKey      = "requestID"
	requestIDHeader   = "X-Request-ID"
	loggerKey         = "logger"
	maxQueryLogLength = 2048
)

// RequestID reuses the caller's X-Request-ID or mints a UUID, stores it in
// the context and echoes it on the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set(requestIDHeader, rid)
		c.Next()
	}
}

// RequestIDFrom returns the correlation id of the request. Without RequestID
// installed it falls back to the response header, then the request header.
func RequestIDFrom(c *gin.Context) string {
	if v, ok := c.Get(requestIDKey); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if rid := c.Writer.Header().Get(requestIDHeader); rid != "" {
		return rid
	}
	return c.GetHeader(requestIDHeader)
}

// scopeLogger derives the request logger (request id and the device session
// from the :id path parameter) and stores it for LoggerFrom. It is bound to
// the request context, so entries pick up the active span's ids.
func scopeLogger(c *gin.Context) *zerolog.Logger {
	lc := log.With().Ctx(c.Request.Context()).Str("request_id", RequestIDFrom(c))
	if sid := c.Param("id"); sid != "" {
		lc = lc.Str("session_id", sid)
	}
	l := lc.Logger()
	c.Set(loggerKey, &l)
	return &l
}

// LoggerFrom returns the request-scoped logger. When no access logger ran
// for this request it returns the global logger tagged with the request id,
// if any.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if lg, ok := v.(*zerolog.Logger); ok {
			return lg
		}
	}
	lc := log.With().Ctx(c.Request.Context())
	if rid := RequestIDFrom(c); rid != "" {
		lc = lc.Str("request_id", rid)
	}
	l := lc.Logger()
	return &l
}

// Recovery turns a panic into a JSON 500 in the shared error envelope, unless
// the handler already started writing. The panic is logged with its stack and
// counted.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			httpPanics.Inc()
			rid := RequestIDFrom(c)
			LoggerFrom(c).Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Msg("panic recovered")

			if c.Writer.Written() {
				c.AbortWithStatus(http.StatusInternalServerError)
				return
			}
			c.Header(requestIDHeader, rid)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"request_id": rid,
				"code":       "internal_error",
				"message":    "internal server error",
			})
		}()
		c.Next()
	}
}

// truncate cuts s to max bytes plus an ellipsis; max <= 0 disables it.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
