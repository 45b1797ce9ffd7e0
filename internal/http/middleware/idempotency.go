package middleware

import (
	"context"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// HeaderIdempotencyKey carries the client's retry key on message sends.
const HeaderIdempotencyKey = "Idempotency-Key"

const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyRateBypass = "rate.bypass"

	defaultMaxKeyLen = 200
)

var (
	defaultKeyPattern = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)

	idemReplays = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "http_idempotent_replays_total",
		Help: "Requests whose Idempotency-Key matched a live record.",
	})
)

func init() {
	prometheus.MustRegister(idemReplays)
}

// IdempotencyOptions configures IdempotencyValidator.
type IdempotencyOptions struct {
	MaxLen  int            // default 200
	Pattern *regexp.Regexp // default ^[A-Za-z0-9._~\-:]+$
	// Methods that honor the header; default POST. Other methods ignore it.
	Methods []string
}

// IdempotencyLookup reports whether a live record exists for (sessionID, key).
type IdempotencyLookup func(ctx context.Context, sessionID, key string, now time.Time) (bool, error)

// IdempotencyValidator checks the Idempotency-Key header and stores a valid
// key for handlers (see GetIdempotencyKey). A malformed key is rejected with
// 400 bad_idempotency_key. When lookup finds the key already used for the
// :id session, the request is counted as a replay and exempt from rate
// limiting, since it will not append anything. Lookup failures are logged
// and treated as a miss.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = defaultMaxKeyLen
	}
	pat := opts.Pattern
	if pat == nil {
		pat = defaultKeyPattern
	}
	methods := map[string]bool{http.MethodPost: true}
	if len(opts.Methods) > 0 {
		methods = make(map[string]bool, len(opts.Methods))
		for _, m := range opts.Methods {
			methods[m] = true
		}
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" || !methods[c.Request.Method] {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": RequestIDFrom(c),
				"code":       "bad_idempotency_key",
				"message":    "Idempotency-Key must be at most " + strconv.Itoa(maxLen) + " URL-safe characters",
			})
			return
		}
		c.Set(ctxKeyIdemKey, key)

		sid := c.Param("id")
		if lookup == nil || sid == "" {
			c.Next()
			return
		}
		hit, err := lookup(c.Request.Context(), sid, key, time.Now().UTC())
		switch {
		case err != nil:
			LoggerFrom(c).Warn().Err(err).Msg("idempotency lookup failed")
		case hit:
			idemReplays.Inc()
			c.Set(ctxKeyRateBypass, true)
		}
		c.Next()
	}
}

// GetIdempotencyKey returns the validated key, if any.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	s := c.GetString(ctxKeyIdemKey)
	return s, s != ""
}
