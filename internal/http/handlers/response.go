package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/legis-office-backend/internal/http/middleware"
)

// ErrorResponse is the error envelope of every endpoint:
//
//	HTTP/1.1 410 Gone
//	{"request_id": "…", "code": "invitation_expired", "message": "invitation expired"}
type ErrorResponse struct {
	// Echo of X-Request-ID, for matching server logs
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code
	Code string `json:"code" example:"not_found"`
	// Human-readable message
	Message string `json:"message" example:"resource not found"`
}

// fail aborts with an ErrorResponse. 5xx outcomes are logged on the
// request-scoped logger.
func fail(c *gin.Context, status int, code, msg string) {
	rid := middleware.RequestIDFrom(c)
	if rid == "" {
		rid = c.Writer.Header().Get("X-Request-ID")
	}
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("request failed")
	}
	c.AbortWithStatusJSON(status, ErrorResponse{RequestID: rid, Code: code, Message: msg})
}

// Fail lets the router write NoRoute and NoMethod responses in the same
// envelope.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// failErr writes the response matching a service error. Internal causes are
// attached to the gin context for the access log and never echoed.
func failErr(c *gin.Context, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
		msg = "internal error"
	}
	fail(c, status, code, msg)
}

func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
