// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file authenticates bearer tokens. Authenticate decodes a token when
// one is present and stores the identity in the Gin context; requests without
// a token continue anonymously. RequireAuth and RequireRole then guard the
// routes that need an identity.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/legis-office-backend/internal/auth"
)

const (
	ctxKeyUserID   = "userID"
	ctxKeyIdentity = "identity"
)

// TokenValidator turns a bearer token into an identity.
type TokenValidator interface {
	ValidateAccessToken(token string) (auth.Identity, error)
}

// Authenticate validates the Authorization bearer token when present. An
// invalid token is rejected with 401; a missing one is not.
func Authenticate(v TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			c.Next()
			return
		}
		id, err := v.ValidateAccessToken(token)
		if err != nil {
			abortAuth(c, http.StatusUnauthorized, reasonUnauthorized, "invalid or expired token")
			return
		}
		c.Set(ctxKeyIdentity, id)
		c.Set(ctxKeyUserID, id.UserID)
		identifyLogger(c, id)
		c.Next()
	}
}

// RequireAuth rejects anonymous requests with 401.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := IdentityFrom(c); !ok {
			abortAuth(c, http.StatusUnauthorized, reasonUnauthorized, "authentication required")
			return
		}
		c.Next()
	}
}

// RequireRole rejects requests whose identity holds none of roles with 403.
// It implies RequireAuth.
func RequireRole(roles ...string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		id, ok := IdentityFrom(c)
		if !ok {
			abortAuth(c, http.StatusUnauthorized, reasonUnauthorized, "authentication required")
			return
		}
		if _, ok := allowed[id.Role]; !ok {
			abortAuth(c, http.StatusForbidden, reasonForbidden, "insufficient role")
			return
		}
		c.Next()
	}
}

// IdentityFrom returns the identity stored by Authenticate.
func IdentityFrom(c *gin.Context) (auth.Identity, bool) {
	v, ok := c.Get(ctxKeyIdentity)
	if !ok {
		return auth.Identity{}, false
	}
	id, ok := v.(auth.Identity)
	return id, ok && id.UserID != ""
}

// UserID returns the authenticated account ID, or "".
func UserID(c *gin.Context) string {
	if v, ok := c.Get(ctxKeyUserID); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func bearerToken(h string) string {
	const prefix = "bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(h[len(prefix):])
}

// abortAuth rejects the request; code doubles as the guard metric reason.
func abortAuth(c *gin.Context, status int, code, msg string) {
	countGuard(c, code)
	c.AbortWithStatusJSON(status, gin.H{
		"request_id": c.Writer.Header().Get(requestIDHeader),
		"code":       code,
		"message":    msg,
	})
}
