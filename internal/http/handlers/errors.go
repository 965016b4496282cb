package handlers

import (
	"errors"
	"net/http"

	"github.com/tbourn/legis-office-backend/internal/services"
)

// Error codes returned in ErrorResponse.Code. Clients branch on these, not
// on messages. The auth and rate-limit middleware emit their own
// "unauthorized", "forbidden" and "rate_limited" codes.
const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	ErrCodeInvitationExpired = "invitation_expired"
	ErrCodeInvalidCredential = "invalid_credentials"
)

// serviceErrors maps the service taxonomy onto HTTP, most specific first.
var serviceErrors = []struct {
	target error
	status int
	code   string
}{
	{services.ErrValidation, http.StatusBadRequest, ErrCodeBadRequest},
	{services.ErrUnauthorized, http.StatusUnauthorized, ErrCodeInvalidCredential},
	{services.ErrNotFound, http.StatusNotFound, ErrCodeNotFound},
	{services.ErrExpired, http.StatusGone, ErrCodeInvitationExpired},
	{services.ErrConflict, http.StatusConflict, ErrCodeConflict},
}

// statusFor returns the status and code for err; unknown errors are 500.
func statusFor(err error) (int, string) {
	for _, m := range serviceErrors {
		if errors.Is(err, m.target) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, ErrCodeInternal
}
