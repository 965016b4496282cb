// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file validates the Idempotency-Key header of unsafe requests. A valid
// key is stashed for the handler, which stores and replays the outcome
// itself. The middleware only pre-checks whether an outcome already exists,
// so a retry of a completed allocation is counted as a replay and is not
// charged against the rate limit.
//
// Keys are scoped by account and matched route: the same key may be reused on
// another endpoint, and anonymous requests never replay.
package middleware

import (
	"context"
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey carries the client's retry key.
const HeaderIdempotencyKey = "Idempotency-Key"

const (
	ctxKeyIdempotency = "idempotency"

	defaultIdemKeyMaxLen = 200
)

var defaultIdemKeyPattern = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)

type idempotencyState struct {
	key    string
	replay bool
}

func idempotencyFrom(c *gin.Context) idempotencyState {
	v, _ := c.Get(ctxKeyIdempotency)
	st, _ := v.(idempotencyState)
	return st
}

// GetIdempotencyKey returns the validated key, if the request carried one.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	k := idempotencyFrom(c).key
	return k, k != ""
}

// IsReplay reports whether an outcome is already stored for this request's
// account, route and key.
func IsReplay(c *gin.Context) bool {
	return idempotencyFrom(c).replay
}

// IdempotencyScope is the matched route template, or the raw path when no
// route matched.
func IdempotencyScope(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return c.Request.URL.Path
}

// IdempotencyOptions tunes key validation. Expiry is the lookup's concern.
type IdempotencyOptions struct {
	// MaxLen defaults to 200 when <= 0.
	MaxLen int
	// Pattern defaults to ^[A-Za-z0-9._~\-:]+$.
	Pattern *regexp.Regexp
}

// IdempotencyLookup reports whether a live outcome exists for
// (userID, scope, key).
type IdempotencyLookup func(ctx context.Context, userID, scope, key string) (bool, error)

// IdempotencyValidator checks Idempotency-Key on POST, PUT, PATCH and DELETE
// requests; safe methods ignore it. A malformed key is rejected with 400. A
// failing lookup is logged and the request proceeds as a first attempt.
// Register it after Authenticate.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = defaultIdemKeyMaxLen
	}
	pattern := opts.Pattern
	if pattern == nil {
		pattern = defaultIdemKeyPattern
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" || isSafeMethod(c.Request.Method) {
			c.Next()
			return
		}
		if len(key) > maxLen || !pattern.MatchString(key) {
			countGuard(c, reasonBadIdemKey)
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": RequestIDFrom(c),
				"code":       reasonBadIdemKey,
				"message":    "invalid Idempotency-Key",
			})
			return
		}

		st := idempotencyState{key: key}
		if uid := UserID(c); lookup != nil && uid != "" {
			found, err := lookup(c.Request.Context(), uid, IdempotencyScope(c), key)
			switch {
			case err != nil:
				LoggerFrom(c).Warn().Err(err).Msg("idempotency pre-check failed")
			case found:
				countGuard(c, reasonIdemReplay)
				st.replay = true
			}
		}
		c.Set(ctxKeyIdempotency, st)
		c.Next()
	}
}

func isSafeMethod(m string) bool {
	switch m {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}
