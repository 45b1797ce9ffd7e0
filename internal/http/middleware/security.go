package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const defaultHSTSMaxAge = 180 * 24 * time.Hour

// SecurityOptions configures SecurityHeaders.
type SecurityOptions struct {
	// EnableHSTS sends Strict-Transport-Security on HTTPS requests. Enable it
	// only when TLS reaches the process or a trusted proxy.
	EnableHSTS bool
	HSTSMaxAge time.Duration // default 180 days

	// CacheControl is sent verbatim when set. "no-cache" makes browsers
	// revalidate chat views with If-None-Match instead of reusing them.
	CacheControl string

	// EnablePolicy adds Permissions-Policy and X-Permitted-Cross-Domain-Policies.
	EnablePolicy bool

	// ExposeHeaders are response headers the widget reads cross-origin.
	// X-Request-ID is added whenever the response carries one.
	ExposeHeaders []string
}

// SecurityHeaders hardens every response. The API only serves JSON and a
// websocket, so the content security policy forbids every resource type and
// framing.
func SecurityHeaders(opt SecurityOptions) gin.HandlerFunc {
	static := http.Header{}
	static.Set("X-Content-Type-Options", "nosniff")
	static.Set("X-Frame-Options", "DENY")
	static.Set("Referrer-Policy", "no-referrer")
	static.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
	if opt.EnablePolicy {
		static.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=()")
		static.Set("X-Permitted-Cross-Domain-Policies", "none")
	}
	if opt.CacheControl != "" {
		static.Set("Cache-Control", opt.CacheControl)
	}

	maxAge := opt.HSTSMaxAge
	if maxAge <= 0 {
		maxAge = defaultHSTSMaxAge
	}
	hsts := "max-age=" + strconv.FormatInt(int64(maxAge/time.Second), 10) + "; includeSubDomains"

	return func(c *gin.Context) {
		h := c.Writer.Header()
		for k, v := range static {
			h[k] = append([]string(nil), v...)
		}
		if opt.EnableHSTS && isHTTPS(c.Request) {
			h.Set("Strict-Transport-Security", hsts)
		}

		expose := opt.ExposeHeaders
		if h.Get(requestIDHeader) != "" {
			expose = append([]string{requestIDHeader}, expose...)
		}
		if len(expose) > 0 {
			h.Set("Access-Control-Expose-Headers", mergeHeaderList(h.Get("Access-Control-Expose-Headers"), expose))
		}
		c.Next()
	}
}

// mergeHeaderList adds names to a comma-separated list, keeping the existing
// order and skipping case-insensitive duplicates.
func mergeHeaderList(cur string, names []string) string {
	var out []string
	seen := map[string]bool{}
	add := func(n string) {
		n = strings.TrimSpace(n)
		if k := http.CanonicalHeaderKey(n); n != "" && !seen[k] {
			seen[k] = true
			out = append(out, n)
		}
	}
	for _, n := range strings.Split(cur, ",") {
		add(n)
	}
	for _, n := range names {
		add(n)
	}
	return strings.Join(out, ", ")
}

// isHTTPS reports TLS on the connection or X-Forwarded-Proto: https from a
// proxy.
func isHTTPS(r *http.Request) bool {
	return r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
