// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file sets the response hardening headers for the JSON API. Responses
// under the session, invitation and profile routes carry tokens, invitation
// codes or personal data, so they are also marked uncacheable.
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
	// EnableHSTS emits Strict-Transport-Security on HTTPS requests only.
	// Enable it only when the proxy-to-app hop is HTTPS as well.
	EnableHSTS bool
	// HSTSMaxAge defaults to 180 days when <= 0.
	HSTSMaxAge time.Duration
	// NoStorePrefixes lists path prefixes, matched on segment boundaries,
	// whose responses get Cache-Control: no-store.
	NoStorePrefixes []string
	// EnablePolicy adds the browser feature restrictions.
	EnablePolicy bool
}

type headerPair struct{ name, value string }

var (
	baselineHeaders = []headerPair{
		{"X-Content-Type-Options", "nosniff"},
		{"X-Frame-Options", "DENY"},
		{"Referrer-Policy", "no-referrer"},
	}
	policyHeaders = []headerPair{
		{"Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=()"},
		{"X-Permitted-Cross-Domain-Policies", "none"},
	}
	noStoreHeaders = []headerPair{
		{"Cache-Control", "no-store"},
		{"Pragma", "no-cache"},
		{"Expires", "0"},
	}
)

// SecurityHeaders sets the hardening headers before the handler runs, so
// they are present on error envelopes and aborts too.
func SecurityHeaders(opt SecurityOptions) gin.HandlerFunc {
	always := append([]headerPair(nil), baselineHeaders...)
	if opt.EnablePolicy {
		always = append(always, policyHeaders...)
	}

	maxAge := opt.HSTSMaxAge
	if maxAge <= 0 {
		maxAge = defaultHSTSMaxAge
	}
	hsts := "max-age=" + strconv.FormatInt(int64(maxAge/time.Second), 10) + "; includeSubDomains; preload"

	prefixes := make([]string, 0, len(opt.NoStorePrefixes))
	for _, p := range opt.NoStorePrefixes {
		if p = strings.TrimRight(p, "/"); p != "" {
			prefixes = append(prefixes, p)
		}
	}

	return func(c *gin.Context) {
		h := c.Writer.Header()
		setAll(h, always)
		if underAny(c.Request.URL.Path, prefixes) {
			setAll(h, noStoreHeaders)
		}
		if opt.EnableHSTS && isHTTPS(c.Request) {
			h.Set("Strict-Transport-Security", hsts)
		}
		c.Next()
	}
}

func setAll(h http.Header, pairs []headerPair) {
	for _, p := range pairs {
		h.Set(p.name, p.value)
	}
}

// isHTTPS reports whether the request arrived over TLS directly or through
// a proxy that set X-Forwarded-Proto: https.
func isHTTPS(r *http.Request) bool {
	return r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

// underAny reports whether path equals a prefix or lies below it; "/me"
// covers "/me/x" but not "/members".
func underAny(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}
