// Invitation HTTP handlers.
//
// This file exposes REST endpoints for the invitation lifecycle:
//   - POST   /invitations          (issue or reissue)
//   - GET    /invitations          (list, ETag support)
//   - GET    /invitations/lookup   (public code lookup)
//   - PATCH  /invitations          (consume by code)
//   - DELETE /invitations          (delete an unused invitation)
//   - POST   /invitations/verify   (public)
//   - POST   /invitations/use      (public redemption)
//
// Verify and use keep their own {valid|success, error, debug} bodies; the
// other endpoints use the ErrorResponse envelope.
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/legis-office-backend/internal/domain"
	"github.com/tbourn/legis-office-backend/internal/services"
)

//
// DTOs
//

// IssueInvitationRequest is the JSON payload for issuing an invitation.
type IssueInvitationRequest struct {
	Email          string `json:"email" example:"ana@example.com"`
	GivenName      string `json:"nombre" example:"Ana"`
	FamilyName     string `json:"apellido" example:"García"`
	Role           string `json:"role" example:"user"`
	ExpirationDays int    `json:"expirationDays" example:"7"`
}

// IssueInvitationResponse is returned by a successful issue.
type IssueInvitationResponse struct {
	Success    bool               `json:"success"`
	Message    string             `json:"message"`
	Invitation *domain.Invitation `json:"invitation"`
}

// InvitationResponse wraps a single invitation.
type InvitationResponse struct {
	Invitation *domain.Invitation `json:"invitation"`
}

// ListInvitationsResponse wraps every invitation, newest first.
type ListInvitationsResponse struct {
	Invitations []domain.Invitation `json:"invitations"`
}

// ConsumeInvitationRequest is the JSON payload of PATCH /invitations.
type ConsumeInvitationRequest struct {
	Token  string `json:"token" example:"4821"`
	UserID string `json:"userId" example:"141add05-4415-4938-b5a1-17e0d3171aff"`
	Email  string `json:"email" example:"ana@example.com"`
}

// DeleteInvitationRequest is the JSON payload of DELETE /invitations.
type DeleteInvitationRequest struct {
	ID string `json:"id" example:"141add05-4415-4938-b5a1-17e0d3171aff"`
}

// VerifyInvitationRequest is the JSON payload of POST /invitations/verify.
type VerifyInvitationRequest struct {
	Email          string `json:"email" example:"ana@example.com"`
	InvitationCode string `json:"invitationCode" example:"4821"`
}

// VerifyInvitationResponse reports whether a code may be used. Debug is
// present only when the server runs with invitation debugging enabled.
type VerifyInvitationResponse struct {
	Valid      bool                        `json:"valid"`
	Invitation *services.InvitationSummary `json:"invitation,omitempty"`
	Reason     string                      `json:"reason,omitempty"`
	Error      string                      `json:"error,omitempty"`
	Debug      *services.VerifyDebug       `json:"debug,omitempty"`
}

// UseInvitationRequest is the JSON payload of POST /invitations/use.
type UseInvitationRequest struct {
	Email          string `json:"email" example:"ana@example.com"`
	InvitationCode string `json:"invitationCode" example:"4821"`
	UserID         string `json:"userId" example:"141add05-4415-4938-b5a1-17e0d3171aff"`
}

// UseInvitationResponse is the outcome of a redemption.
type UseInvitationResponse struct {
	Success        bool                  `json:"success"`
	Message        string                `json:"message,omitempty"`
	WasAlreadyUsed bool                  `json:"wasAlreadyUsed,omitempty"`
	Warning        string                `json:"warning,omitempty"`
	Error          string                `json:"error,omitempty"`
	Debug          *services.VerifyDebug `json:"debug,omitempty"`
}

// reasonMessages are the user-facing texts for verification failures.
var reasonMessages = map[string]string{
	services.ReasonNotFound: "invitation not found",
	services.ReasonUsed:     "this invitation has already been used; request a new one",
	services.ReasonExpired:  "this invitation has expired; request a new one",
}

//
// Handlers
//

// IssueInvitation godoc
// @ID          issueInvitation
// @Summary     Issue an invitation
// @Description Creates an invitation for an email, or reissues the existing one with a fresh code. No email is sent.
// @Tags        Invitations
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       body  body  handlers.IssueInvitationRequest  true  "Invitation payload"
//
// @Success     201  {object}  handlers.IssueInvitationResponse  "Created"
// @Success     200  {object}  handlers.IssueInvitationResponse  "Reissued"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthenticated"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /invitations [post]
func (h *Handlers) IssueInvitation(c *gin.Context) {
	var req IssueInvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Email) == "" || strings.TrimSpace(req.GivenName) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "email and nombre are required")
		return
	}

	inv, updated, err := h.invSvc.Issue(c.Request.Context(), services.IssueInput{
		Email:          req.Email,
		GivenName:      req.GivenName,
		FamilyName:     req.FamilyName,
		Role:           req.Role,
		ExpirationDays: req.ExpirationDays,
		CreatedBy:      actor(c),
	})
	if err != nil {
		failErr(c, err)
		return
	}
	if updated {
		ok(c, http.StatusOK, IssueInvitationResponse{Success: true, Message: "invitation updated", Invitation: inv})
		return
	}
	ok(c, http.StatusCreated, IssueInvitationResponse{Success: true, Message: "invitation created", Invitation: inv})
}

// ListInvitations godoc
// @ID          listInvitations
// @Summary     List invitations
// @Description Returns every invitation, newest first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Invitations
// @Produce     json
// @Security    BearerAuth
//
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"
//
// @Success     200  {object}  handlers.ListInvitationsResponse
// @Header      200  {string}  ETag  "Weak ETag for current result"
// @Success     304  {string}  string  "Not Modified"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthenticated"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /invitations [get]
func (h *Handlers) ListInvitations(c *gin.Context) {
	ctx := c.Request.Context()

	// ETag pre-check (best effort).
	if count, maxTS, err := h.invSvc.Stats(ctx); err == nil {
		if notModified(c, count, maxTS, "invitations") {
			c.Status(http.StatusNotModified)
			return
		}
	}

	items, err := h.invSvc.List(ctx)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ListInvitationsResponse{Invitations: items})
}

// LookupInvitation godoc
// @ID          lookupInvitation
// @Summary     Look up an invitation by code
// @Description Public lookup used by the registration page. An overdue invitation is marked expired and reported as 410.
// @Tags        Invitations
// @Produce     json
//
// @Param       token  query  string  true   "Invitation code"  example(4821)
// @Param       email  query  string  false  "Invitee email"
//
// @Success     200  {object}  handlers.InvitationResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Not found or already used"
// @Failure     410  {object}  handlers.ErrorResponse  "Expired"
// @Router      /invitations/lookup [get]
func (h *Handlers) LookupInvitation(c *gin.Context) {
	inv, err := h.invSvc.Lookup(c.Request.Context(), c.Query("token"), c.Query("email"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, InvitationResponse{Invitation: inv})
}

// ConsumeInvitation godoc
// @ID          consumeInvitation
// @Summary     Mark an invitation used
// @Description Consumes the pending invitation carrying token on behalf of userId without touching any profile.
// @Tags        Invitations
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       body  body  handlers.ConsumeInvitationRequest  true  "Token and user"
//
// @Success     200  {object}  handlers.InvitationResponse
// @Failure     400  {object}  handlers.ErrorResponse  "No pending invitation matched"
// @Failure     409  {object}  handlers.ErrorResponse  "Token is ambiguous"
// @Failure     410  {object}  handlers.ErrorResponse  "Expired"
// @Router      /invitations [patch]
func (h *Handlers) ConsumeInvitation(c *gin.Context) {
	var req ConsumeInvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		req.UserID = actor(c)
	}

	inv, err := h.invSvc.ConsumeByCode(c.Request.Context(), req.Token, req.Email, req.UserID)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, InvitationResponse{Invitation: inv})
}

// DeleteInvitation godoc
// @ID          deleteInvitation
// @Summary     Delete an invitation
// @Description Deletes an invitation that has not been used.
// @Tags        Invitations
// @Accept      json
// @Security    BearerAuth
//
// @Param       body  body  handlers.DeleteInvitationRequest  true  "Invitation id"
//
// @Success     204  {string}  string  "No Content"
// @Failure     400  {object}  handlers.ErrorResponse  "Missing id or already used"
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Router      /invitations [delete]
func (h *Handlers) DeleteInvitation(c *gin.Context) {
	var req DeleteInvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	if err := h.invSvc.Delete(c.Request.Context(), req.ID, actor(c)); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// VerifyInvitation godoc
// @ID          verifyInvitation
// @Summary     Verify an invitation code
// @Description Reports whether (email, invitationCode) names a pending, unexpired invitation and returns the registration prefill.
// @Tags        Invitations
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.VerifyInvitationRequest  true  "Email and code"
//
// @Success     200  {object}  handlers.VerifyInvitationResponse
// @Failure     400  {object}  handlers.VerifyInvitationResponse  "Missing input"
// @Failure     500  {object}  handlers.VerifyInvitationResponse  "Internal error"
// @Router      /invitations/verify [post]
func (h *Handlers) VerifyInvitation(c *gin.Context) {
	var req VerifyInvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, VerifyInvitationResponse{Error: "invalid JSON body"})
		return
	}

	res, err := h.invSvc.Verify(c.Request.Context(), req.Email, req.InvitationCode)
	if err != nil {
		status, _ := statusFor(err)
		msg := err.Error()
		if status >= http.StatusInternalServerError {
			_ = c.Error(err)
			msg = "internal error"
		}
		c.AbortWithStatusJSON(status, VerifyInvitationResponse{Error: msg})
		return
	}

	resp := VerifyInvitationResponse{
		Valid:      res.Valid,
		Invitation: res.Invitation,
		Reason:     res.Reason,
		Debug:      res.Debug,
	}
	if !res.Valid {
		resp.Error = reasonMessages[res.Reason]
	}
	ok(c, http.StatusOK, resp)
}

// UseInvitation godoc
// @ID          useInvitation
// @Summary     Redeem an invitation
// @Description Consumes the invitation and writes its role and names onto the account, which must be registered under the invitation's email. Retries by the same account report wasAlreadyUsed. A profile write failure after consumption is reported as success with a warning.
// @Tags        Invitations
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.UseInvitationRequest  true  "Email, code and account"
//
// @Success     200  {object}  handlers.UseInvitationResponse
// @Failure     400  {object}  handlers.UseInvitationResponse  "Missing input"
// @Failure     404  {object}  handlers.UseInvitationResponse  "Invitation or account not found"
// @Failure     409  {object}  handlers.UseInvitationResponse  "Used by or issued for another account"
// @Failure     410  {object}  handlers.UseInvitationResponse  "Expired"
// @Router      /invitations/use [post]
func (h *Handlers) UseInvitation(c *gin.Context) {
	ctx := c.Request.Context()

	var req UseInvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, UseInvitationResponse{Error: "invalid JSON body"})
		return
	}

	res, err := h.invSvc.Redeem(ctx, req.Email, req.InvitationCode, req.UserID)
	var pf *services.PartialFailureError
	switch {
	case errors.As(err, &pf):
		ok(c, http.StatusOK, UseInvitationResponse{
			Success:        true,
			Message:        "invitation redeemed",
			WasAlreadyUsed: res != nil && res.AlreadyUsed,
			Warning:        "your account was created but its profile could not be completed; contact the office",
		})
		return
	case err != nil:
		status, _ := statusFor(err)
		resp := UseInvitationResponse{Error: err.Error()}
		switch {
		case status >= http.StatusInternalServerError:
			_ = c.Error(err)
			resp.Error = "internal error"
		case errors.Is(err, services.ErrExpired):
			resp.Error = reasonMessages[services.ReasonExpired]
		}
		if h.invSvc.DebugEnabled() && strings.TrimSpace(req.Email) != "" {
			if codes, derr := h.invSvc.CodesOnFile(ctx, req.Email); derr == nil {
				resp.Debug = &services.VerifyDebug{AvailableCodes: codes}
			}
		}
		c.AbortWithStatusJSON(status, resp)
		return
	}

	msg := "invitation redeemed"
	if res.AlreadyUsed {
		msg = "invitation was already redeemed by this account"
	}
	ok(c, http.StatusOK, UseInvitationResponse{Success: true, Message: msg, WasAlreadyUsed: res.AlreadyUsed})
}
