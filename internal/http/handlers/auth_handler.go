// Account HTTP handlers: password login, invitation-gated registration, and
// the current profile.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/legis-office-backend/internal/http/middleware"
	"github.com/tbourn/legis-office-backend/internal/services"
)

// LoginRequest is the JSON payload of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required" example:"ana@example.com"`
	Password string `json:"password" binding:"required" example:"correct-horse-battery"`
}

// RegisterRequest is the JSON payload of POST /auth/register.
type RegisterRequest struct {
	Email          string `json:"email" binding:"required" example:"ana@example.com"`
	Password       string `json:"password" binding:"required" example:"correct-horse-battery"`
	InvitationCode string `json:"invitationCode" binding:"required" example:"4821"`
}

// SessionResponse carries an access token and the signed-in profile.
// Warning is set when registration left the profile incomplete.
type SessionResponse struct {
	*services.Session
	Warning string `json:"warning,omitempty"`
}

// Login godoc
// @ID          login
// @Summary     Sign in
// @Description Exchanges email and password for a bearer token.
// @Tags        Auth
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.LoginRequest  true  "Credentials"
//
// @Success     200  {object}  handlers.SessionResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401  {object}  handlers.ErrorResponse  "Invalid credentials"
// @Failure     429  {object}  handlers.ErrorResponse  "Too many requests"
// @Router      /auth/login [post]
func (h *Handlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "email and password are required")
		return
	}
	sess, err := h.accSvc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrUnauthorized) {
			fail(c, http.StatusUnauthorized, ErrCodeInvalidCredential, "invalid email or password")
			return
		}
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, SessionResponse{Session: sess})
}

// Register godoc
// @ID          register
// @Summary     Create an account from an invitation
// @Description Verifies the invitation, creates the account and redeems the invitation onto it. If redemption fails after the account exists the account is kept and a warning is returned.
// @Tags        Auth
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.RegisterRequest  true  "Registration payload"
//
// @Success     201  {object}  handlers.SessionResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Invitation not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Invitation used or account exists"
// @Failure     410  {object}  handlers.ErrorResponse  "Invitation expired"
// @Router      /auth/register [post]
func (h *Handlers) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "email, password and invitationCode are required")
		return
	}
	sess, err := h.accSvc.Register(c.Request.Context(), services.RegisterInput{
		Email:          req.Email,
		Password:       req.Password,
		InvitationCode: req.InvitationCode,
	})
	var pf *services.PartialFailureError
	switch {
	case errors.As(err, &pf) && sess != nil:
		ok(c, http.StatusCreated, SessionResponse{
			Session: sess,
			Warning: "your account was created but the invitation could not be applied; contact the office",
		})
	case err != nil:
		failErr(c, err)
	default:
		ok(c, http.StatusCreated, SessionResponse{Session: sess})
	}
}

// Me godoc
// @ID          me
// @Summary     Current profile
// @Tags        Auth
// @Produce     json
// @Security    BearerAuth
//
// @Success     200  {object}  domain.Profile
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthenticated"
// @Failure     404  {object}  handlers.ErrorResponse  "Account no longer exists"
// @Router      /me [get]
func (h *Handlers) Me(c *gin.Context) {
	p, err := h.accSvc.Me(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, p)
}
