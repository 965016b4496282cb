// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file provides correlation IDs, the plain access logger, panic
// recovery, and the request-scoped logger plumbing:
//
//   - RequestID() reuses a well-formed inbound X-Request-ID or mints one.
//   - Logger() emits one structured line per request and attaches a
//     request-scoped zerolog.Logger to the Gin context and the request
//     context, so services reach it through zerolog.Ctx.
//   - Authenticate adds the account and role to that logger once the token
//     is decoded (see identifyLogger), so store failures logged by services
//     name the caller.
//   - Recovery() turns panics into the JSON 500 envelope and logs the stack
//     through the request-scoped logger.
//
// Order: RequestID, Logger (or RedactingLogger), Recovery.
package middleware

import (
	"net/http"
	"regexp"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/legis-office-backend/internal/auth"
)

const (
	requestIDKey    = "requestID"
	requestIDHeader = "X-Request-ID"
	loggerKey       = "logger"

	// maxQueryLogLength caps the number of bytes of the raw query string logged.
	maxQueryLogLength = 2048
)

// inboundRequestID bounds what a client may inject into our logs.
var inboundRequestID = regexp.MustCompile(`^[A-Za-z0-9._\-]{1,128}$`)

// RequestID attaches a correlation identifier to every request. An inbound
// X-Request-ID is reused only when it is a short token; anything else is
// replaced by a fresh UUID. The ID is echoed in the response header and
// stored in the Gin context.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if !inboundRequestID.MatchString(rid) {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set(requestIDHeader, rid)
		c.Next()
	}
}

// RequestIDFrom returns the correlation ID set by RequestID, or "".
func RequestIDFrom(c *gin.Context) string {
	rid, _ := c.Get(requestIDKey)
	return asString(rid)
}

// Logger writes a structured access log for each request. Level follows the
// outcome: error for 5xx or when handlers recorded gin errors, warn for 4xx,
// info otherwise. "route" is the registered template and "path" the raw URL
// path.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		l := log.With().
			Str("request_id", RequestIDFrom(c)).
			Str("method", c.Request.Method).
			Str("route", routeLabel(c)).
			Logger()
		attachLogger(c, l)

		c.Next()

		ev := levelFor(LoggerFrom(c), c)
		if len(c.Errors) > 0 {
			ev = ev.Str("errors", c.Errors.String())
		}
		ev.
			Str("path", c.Request.URL.Path).
			Str("query", truncate(c.Request.URL.RawQuery, maxQueryLogLength)).
			Str("remote_ip", c.ClientIP()).
			Str("user_agent", c.Request.UserAgent()).
			Int64("bytes_in", c.Request.ContentLength).
			Int("status", c.Writer.Status()).
			Int("bytes_out", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}

func levelFor(l *zerolog.Logger, c *gin.Context) *zerolog.Event {
	status := c.Writer.Status()
	switch {
	case len(c.Errors) > 0, status >= http.StatusInternalServerError:
		return l.Error()
	case status >= http.StatusBadRequest:
		return l.Warn()
	default:
		return l.Info()
	}
}

// Recovery converts a panic into the standard JSON 500 envelope and logs the
// panic value with its stack. Place it after the logger so the entry carries
// the request fields.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
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

// LoggerFrom returns the request-scoped logger, or the global logger when
// none was attached. Never nil.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if lg, ok := v.(*zerolog.Logger); ok {
			return lg
		}
	}
	l := log.With().Logger()
	return &l
}

// attachLogger stores l in the Gin context and the request context.
func attachLogger(c *gin.Context, l zerolog.Logger) {
	c.Set(loggerKey, &l)
	c.Request = c.Request.WithContext(l.WithContext(c.Request.Context()))
}

// identifyLogger adds the caller to the request-scoped logger, if any.
func identifyLogger(c *gin.Context, id auth.Identity) {
	if _, ok := c.Get(loggerKey); !ok {
		return
	}
	attachLogger(c, LoggerFrom(c).With().
		Str("user_id", id.UserID).
		Str("role", id.Role).
		Logger())
}

func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// truncate caps s at max bytes plus an ellipsis; max <= 0 disables it.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
