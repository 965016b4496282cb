// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements RedactingLogger, the access logger used when
// LOG_REDACT is on. It emits the same line as Logger but scrubs request
// metadata first: invitation codes, tokens and passwords in the query are
// masked outright, credentials in headers are masked, and emails, phone
// numbers and UUIDs anywhere else are replaced by typed placeholders.
// Bodies are never logged.
//
//	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
//	    MaskQueryParams: []string{"email"},
//	}))
package middleware

import (
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const redactedValue = "[REDACTED]"

// RedactOptions extends the default masks. Names are case-insensitive.
type RedactOptions struct {
	// MaskHeaders adds to Authorization, Cookie, Set-Cookie and Idempotency-Key.
	MaskHeaders []string
	// MaskQueryParams adds to code, token and password.
	MaskQueryParams []string
}

// scrubPattern replaces every match of re with label. Patterns are applied in
// declaration order; UUIDs go first so their digit groups are not taken for
// phone numbers.
type scrubPattern struct {
	re    *regexp.Regexp
	label string
}

var scrubPatterns = []scrubPattern{
	{regexp.MustCompile(`(?i)\b[0-9a-f]{8}-[0-9a-f]{4}-[1-5][0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}\b`), "[REDACTED:id]"},
	{regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`), "[REDACTED:email]"},
	{regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`), "[REDACTED:phone]"},
}

type redactor struct {
	headers map[string]struct{}
	params  map[string]struct{}
}

func newRedactor(opts RedactOptions) redactor {
	return redactor{
		headers: lowerSet([]string{"authorization", "cookie", "set-cookie", "idempotency-key"}, opts.MaskHeaders),
		params:  lowerSet([]string{"code", "token", "password"}, opts.MaskQueryParams),
	}
}

func (redactor) scrub(s string) string {
	for _, p := range scrubPatterns {
		if s == "" {
			break
		}
		s = p.re.ReplaceAllString(s, p.label)
	}
	return s
}

func (rd redactor) query(raw string) string {
	return rd.scrub(maskQuery(raw, rd.params))
}

func (rd redactor) headerMap(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, vv := range h {
		if _, ok := rd.headers[strings.ToLower(k)]; ok {
			out[k] = redactedValue
			continue
		}
		out[k] = rd.scrub(strings.Join(vv, ", "))
	}
	return out
}

// RedactingLogger is Logger with scrubbed fields and the request headers
// added. It attaches the same request-scoped logger, so service logs and the
// caller fields added by Authenticate behave identically.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	rd := newRedactor(opts)

	return func(c *gin.Context) {
		start := time.Now()

		rid := RequestIDFrom(c)
		if rid == "" {
			rid = c.Writer.Header().Get(requestIDHeader)
		}
		attachLogger(c, log.With().
			Str("request_id", rid).
			Str("method", c.Request.Method).
			Str("route", routeLabel(c)).
			Logger())

		c.Next()

		levelFor(LoggerFrom(c), c).
			Str("path", rd.scrub(c.Request.URL.Path)).
			Str("query", truncate(rd.query(c.Request.URL.RawQuery), maxQueryLogLength)).
			Int("status", c.Writer.Status()).
			Int("bytes_out", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Interface("headers", rd.headerMap(c.Request.Header)).
			Msg("request")
	}
}

// maskQuery replaces the values of the named parameters with [REDACTED].
// Unparseable queries are returned unchanged for pattern scrubbing.
func maskQuery(raw string, names map[string]struct{}) string {
	if raw == "" {
		return raw
	}
	q, err := url.ParseQuery(raw)
	if err != nil {
		return raw
	}
	hit := false
	for k, vv := range q {
		if _, ok := names[strings.ToLower(k)]; !ok {
			continue
		}
		for i := range vv {
			vv[i] = redactedValue
		}
		hit = true
	}
	if !hit {
		return raw
	}
	out, _ := url.QueryUnescape(q.Encode())
	return out
}

func lowerSet(base, extra []string) map[string]struct{} {
	out := make(map[string]struct{}, len(base)+len(extra))
	for _, s := range append(base, extra...) {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out[s] = struct{}{}
		}
	}
	return out
}
