package middleware

import (
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// RedactOptions configures RedactingLogger.
type RedactOptions struct {
	// MaskHeaders are replaced entirely, in addition to Authorization, Cookie
	// and Set-Cookie. Matching is case-insensitive.
	MaskHeaders []string
	// MaskParams are path parameters replaced entirely. Usernames travel as
	// /sessions/:id/users/:name/..., so the router masks "name".
	MaskParams []string
	// SkipPaths are routes (e.g. /health) whose successful requests are not
	// logged. Failures on them still are.
	SkipPaths []string
}

const masked = "[REDACTED]"

// Ids go first: the phone pattern would otherwise match digit runs inside a
// UUID.
var redactions = []struct {
	re   *regexp.Regexp
	with string
}{
	{regexp.MustCompile(`(?i)\b[0-9a-f]{8}\-[0-9a-f]{4}\-[1-5][0-9a-f]{3}\-[89ab][0-9a-f]{3}\-[0-9a-f]{12}\b`), "[REDACTED:id]"},
	{regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`), "[REDACTED:email]"},
	{regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`), "[REDACTED:phone]"},
}

// scrub replaces ids, emails and phone numbers in s.
func scrub(s string) string {
	for _, r := range redactions {
		if s == "" {
			break
		}
		s = r.re.ReplaceAllString(s, r.with)
	}
	return s
}

func nameSet(names ...[]string) map[string]bool {
	set := map[string]bool{}
	for _, list := range names {
		for _, n := range list {
			if n = strings.ToLower(strings.TrimSpace(n)); n != "" {
				set[n] = true
			}
		}
	}
	return set
}

// RedactingLogger is the access logger. It installs the request-scoped
// logger for LoggerFrom and writes one "http_request" entry per request.
// Message bodies are never logged; query, headers and path parameters are
// masked or scrubbed. 4xx log at warn, 5xx and gin errors at error.
// Websocket upgrades log when the stream ends, so latency is the connection
// lifetime.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	maskHeaders := nameSet([]string{"authorization", "cookie", "set-cookie"}, opts.MaskHeaders)
	maskParams := nameSet(opts.MaskParams)
	skip := map[string]bool{}
	for _, p := range opts.SkipPaths {
		skip[p] = true
	}

	return func(c *gin.Context) {
		start := time.Now()
		l := scopeLogger(c)
		ws := c.IsWebsocket()

		headers := make(map[string]string, len(c.Request.Header))
		for k, vv := range c.Request.Header {
			v := masked
			if !maskHeaders[strings.ToLower(k)] {
				v = scrub(strings.Join(vv, ", "))
			}
			headers[k] = v
		}
		params := make(map[string]string, len(c.Params))
		for _, p := range c.Params {
			v := p.Value
			if maskParams[strings.ToLower(p.Key)] {
				v = masked
			}
			params[p.Key] = v
		}

		c.Next()

		status := c.Writer.Status()
		route := routeLabel(c)
		ev := l.Info()
		switch {
		case len(c.Errors) > 0:
			ev = l.Error().Str("errors", c.Errors.String())
		case status >= 500:
			ev = l.Error()
		case status >= 400:
			ev = l.Warn()
		case skip[route]:
			return
		}
		if ws {
			ev = ev.Bool("websocket", true)
		}
		ev.Str("method", c.Request.Method).
			Str("path", route).
			Str("query", truncate(scrub(c.Request.URL.RawQuery), maxQueryLogLength)).
			Interface("params", params).
			Str("remote_ip", c.ClientIP()).
			Int("status", status).
			Int64("bytes_in", c.Request.ContentLength).
			Int("bytes_out", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Interface("headers", headers).
			Msg("http_request")
	}
}
