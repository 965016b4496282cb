// Package services – InvitationService
//
// This file implements InvitationService, which owns the lifecycle of the
// single-use numeric codes that gate self-registration:
//
//	pending --verify/redeem past expiry--> expired   (terminal)
//	pending --redeem / consume-----------> used      (terminal; redeem re-applies the profile)
//
// Expiry is applied lazily by whichever read first notices it. No operation
// takes an application lock: every conditional write checks the number of
// affected rows and treats zero as "another caller got there first".
//
// Observability: public methods are OpenTelemetry-instrumented and store
// failures are logged through the request-scoped zerolog logger.
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/legis-office-backend/internal/config"
	"github.com/tbourn/legis-office-backend/internal/domain"
	"github.com/tbourn/legis-office-backend/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"golang.org/x/text/language"
)

// Verification failure reasons.
const (
	ReasonNotFound = "not_found"
	ReasonUsed     = "used"
	ReasonExpired  = "expired"
)

const maxExpirationDays = 365

// InvitationSummary is the registration prefill returned by Verify. It never
// carries the code or the expiry.
type InvitationSummary struct {
	ID         string `json:"id"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name,omitempty"`
	Role       string `json:"role"`
}

// VerifyDebug lists the codes on file for an email. Populated only when the
// service runs in debug mode.
type VerifyDebug struct {
	AvailableCodes []string `json:"availableCodes"`
}

// VerifyResult is the outcome of Verify. Reason is set when Valid is false.
type VerifyResult struct {
	Valid      bool               `json:"valid"`
	Invitation *InvitationSummary `json:"invitation,omitempty"`
	Reason     string             `json:"reason,omitempty"`
	Debug      *VerifyDebug       `json:"debug,omitempty"`
}

// RedeemResult is the outcome of a successful Redeem.
type RedeemResult struct {
	InvitationID string
	AlreadyUsed  bool
}

// IssueInput carries the fields of a new or reissued invitation.
// ExpirationDays <= 0 selects the service default.
type IssueInput struct {
	Email          string
	GivenName      string
	FamilyName     string
	Role           string
	ExpirationDays int
	CreatedBy      string
}

// InvitationService implements the invitation use-cases over a GORM handle.
type InvitationService struct {
	DB *gorm.DB

	ExpirationDays int
	CodeDigits     int
	Debug          bool

	// NameLocale drives the casing applied to invitee names.
	NameLocale language.Tag

	// Now is the clock; tests replace it.
	Now func() time.Time
}

// NewInvitationService constructs an InvitationService from configuration.
func NewInvitationService(db *gorm.DB, cfg config.InviteConfig) *InvitationService {
	s := &InvitationService{
		DB:             db,
		ExpirationDays: cfg.ExpirationDays,
		CodeDigits:     cfg.CodeDigits,
		Debug:          cfg.Debug,
		NameLocale:     language.Und,
		Now:            func() time.Time { return time.Now().UTC() },
	}
	if s.ExpirationDays <= 0 {
		s.ExpirationDays = 7
	}
	if s.CodeDigits <= 0 {
		s.CodeDigits = 4
	}
	return s
}

func (s *InvitationService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func invTracer() trace.Tracer { return otel.Tracer("services/InvitationService") }

// Issue creates an invitation for in.Email, or reissues the existing one with
// a fresh code, names, role and expiry. updated reports the reissue case.
// No email is sent.
func (s *InvitationService) Issue(ctx context.Context, in IssueInput) (inv *domain.Invitation, updated bool, err error) {
	ctx, span := invTracer().Start(ctx, "Issue",
		trace.WithAttributes(attribute.String("user.id", in.CreatedBy)),
	)
	defer span.End()
	defer func() { invitationOps.WithLabelValues("issue", resultLabel(err)).Inc() }()

	inv, err = domain.NewInvitation(in.Email, in.GivenName, in.FamilyName, in.Role, in.CreatedBy)
	if err != nil {
		return nil, false, validationf("%v", err)
	}
	days := in.ExpirationDays
	if days == 0 {
		days = s.ExpirationDays
	}
	if days < 0 || days > maxExpirationDays {
		return nil, false, validationf("expirationDays must be between 1 and %d", maxExpirationDays)
	}

	code, err := generateCode(s.CodeDigits)
	if err != nil {
		return nil, false, err
	}
	now := s.now()
	inv.ID = uuid.NewString()
	inv.GivenName = normalizeName(inv.GivenName, s.NameLocale)
	inv.FamilyName = normalizeName(inv.FamilyName, s.NameLocale)
	inv.InvitationCode = code
	inv.ExpiresAt = now.Add(time.Duration(days) * 24 * time.Hour)
	inv.CreatedAt = now
	inv.UpdatedAt = now

	// Insert first; a duplicate email falls back to overwriting the row.
	// The two statements are not wrapped in a transaction because Postgres
	// aborts the whole transaction after the failed insert.
	err = repo.CreateInvitation(ctx, s.DB, inv)
	switch {
	case err == nil:
		audit(ctx, s.DB, in.CreatedBy, domain.AuditInvitationIssued, "invitation", inv.ID, inv.Email)
		return inv, false, nil
	case !errors.Is(err, repo.ErrDuplicate):
		return nil, false, storeErr(ctx, "invitation.issue", err, map[string]string{"email": inv.Email})
	}

	out, err := repo.ReissueInvitation(ctx, s.DB, inv)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			// Deleted between the two statements; the caller may retry.
			return nil, false, conflictf("invitation for %s changed concurrently", inv.Email)
		}
		return nil, false, storeErr(ctx, "invitation.reissue", err, map[string]string{"email": inv.Email})
	}
	audit(ctx, s.DB, in.CreatedBy, domain.AuditInvitationReissued, "invitation", out.ID, out.Email)
	return out, true, nil
}

// Verify reports whether (email, code) names a pending, unexpired invitation.
// It is safe to call repeatedly; its only side effect is the idempotent lazy
// transition of an overdue row to expired.
func (s *InvitationService) Verify(ctx context.Context, email, code string) (*VerifyResult, error) {
	ctx, span := invTracer().Start(ctx, "Verify")
	defer span.End()

	email = domain.NormalizeEmail(email)
	code = strings.TrimSpace(code)
	if email == "" || code == "" {
		return nil, validationf("email and invitation code are required")
	}

	res, err := s.verify(ctx, email, code)
	if err != nil {
		invitationOps.WithLabelValues("verify", "error").Inc()
		return nil, err
	}
	label := "valid"
	if !res.Valid {
		label = res.Reason
	}
	invitationOps.WithLabelValues("verify", label).Inc()

	if s.Debug {
		codes, err := s.CodesOnFile(ctx, email)
		if err != nil {
			return nil, err
		}
		res.Debug = &VerifyDebug{AvailableCodes: codes}
	}
	return res, nil
}

func (s *InvitationService) verify(ctx context.Context, email, code string) (*VerifyResult, error) {
	inv, err := repo.FindPendingInvitation(ctx, s.DB, email, code)
	if errors.Is(err, repo.ErrNotFound) {
		reason, err := s.missReason(ctx, email, code)
		if err != nil {
			return nil, err
		}
		return &VerifyResult{Reason: reason}, nil
	}
	if err != nil {
		return nil, storeErr(ctx, "invitation.verify", err, map[string]string{"email": email})
	}

	if inv.IsExpired(s.now()) {
		if err := s.expire(ctx, inv); err != nil {
			return nil, err
		}
		return &VerifyResult{Reason: ReasonExpired}, nil
	}

	return &VerifyResult{
		Valid: true,
		Invitation: &InvitationSummary{
			ID:         inv.ID,
			GivenName:  inv.GivenName,
			FamilyName: inv.FamilyName,
			Role:       inv.Role,
		},
	}, nil
}

// missReason distinguishes "used" and "expired" from "not found" for an
// (email, code) pair that has no pending row.
func (s *InvitationService) missReason(ctx context.Context, email, code string) (string, error) {
	inv, err := repo.FindInvitation(ctx, s.DB, email, code)
	if errors.Is(err, repo.ErrNotFound) {
		return ReasonNotFound, nil
	}
	if err != nil {
		return "", storeErr(ctx, "invitation.verify", err, map[string]string{"email": email})
	}
	switch inv.Status {
	case domain.InvitationUsed:
		return ReasonUsed, nil
	case domain.InvitationExpired:
		return ReasonExpired, nil
	}
	// Became pending again (reissued) between the two reads.
	return ReasonNotFound, nil
}

// expire applies the lazy pending->expired transition. Zero affected rows
// means someone else already moved the row on, which is fine.
func (s *InvitationService) expire(ctx context.Context, inv *domain.Invitation) error {
	n, err := repo.MarkInvitationExpired(ctx, s.DB, inv.ID)
	if err != nil {
		return storeErr(ctx, "invitation.expire", err, map[string]string{"invitation_id": inv.ID})
	}
	if n > 0 {
		zerolog.Ctx(ctx).Info().Str("invitation_id", inv.ID).Msg("invitation expired")
	}
	inv.Status = domain.InvitationExpired
	return nil
}

// CodesOnFile returns every code stored for email. It backs the debug payload
// of Verify and must not be exposed in hardened deployments.
func (s *InvitationService) CodesOnFile(ctx context.Context, email string) ([]string, error) {
	email = domain.NormalizeEmail(email)
	rows, err := repo.ListInvitationsByEmail(ctx, s.DB, email)
	if err != nil {
		return nil, storeErr(ctx, "invitation.codes", err, map[string]string{"email": email})
	}
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.InvitationCode)
	}
	return out, nil
}

// Lookup resolves a code (optionally scoped to an email) for the public
// registration page. Missing and used invitations are ErrNotFound; an overdue
// one is transitioned first and reported as ErrExpired.
func (s *InvitationService) Lookup(ctx context.Context, code, email string) (*domain.Invitation, error) {
	ctx, span := invTracer().Start(ctx, "Lookup")
	defer span.End()

	code = strings.TrimSpace(code)
	email = domain.NormalizeEmail(email)
	if code == "" {
		return nil, validationf("token is required")
	}

	var inv *domain.Invitation
	if email != "" {
		found, err := repo.FindInvitation(ctx, s.DB, email, code)
		if errors.Is(err, repo.ErrNotFound) {
			return nil, notFoundf("invitation not found")
		}
		if err != nil {
			return nil, storeErr(ctx, "invitation.lookup", err, map[string]string{"email": email})
		}
		inv = found
	} else {
		rows, err := repo.FindPendingByCode(ctx, s.DB, code, "")
		if err != nil {
			return nil, storeErr(ctx, "invitation.lookup", err, nil)
		}
		switch len(rows) {
		case 0:
			return nil, notFoundf("invitation not found")
		case 1:
			inv = &rows[0]
		default:
			return nil, conflictf("code matches several invitations; supply the email")
		}
	}

	switch {
	case inv.Status == domain.InvitationUsed:
		return nil, notFoundf("invitation not found")
	case inv.Status == domain.InvitationExpired:
		return nil, ErrExpired
	case inv.IsExpired(s.now()):
		if err := s.expire(ctx, inv); err != nil {
			return nil, err
		}
		return nil, ErrExpired
	}
	return inv, nil
}

// Redeem consumes the invitation for (email, code) on behalf of accountID and
// writes its role and names onto that account's profile. accountID must be an
// existing account registered under the invitation's email: an unknown account
// is ErrNotFound, another email's account is ErrConflict, and in both cases
// the invitation stays pending.
//
// A row already used by the same account (a client retry) re-applies the
// profile and reports AlreadyUsed. A row used by a different account is
// ErrConflict. Of two concurrent redeemers only the one whose conditional
// update matched writes the profile.
//
// If the profile write fails after the invitation was consumed, Redeem
// returns the result together with a *PartialFailureError; the consumption is
// not rolled back.
func (s *InvitationService) Redeem(ctx context.Context, email, code, accountID string) (res *RedeemResult, err error) {
	ctx, span := invTracer().Start(ctx, "Redeem",
		trace.WithAttributes(attribute.String("user.id", accountID)),
	)
	defer span.End()
	defer func() {
		label := resultLabel(err)
		if err == nil && res.AlreadyUsed {
			label = "already_used"
		}
		invitationOps.WithLabelValues("redeem", label).Inc()
	}()

	email = domain.NormalizeEmail(email)
	code = strings.TrimSpace(code)
	accountID = strings.TrimSpace(accountID)
	if email == "" || code == "" || accountID == "" {
		return nil, validationf("email, invitation code and user id are required")
	}

	inv, err := repo.FindInvitation(ctx, s.DB, email, code)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, notFoundf("invitation not found")
	}
	if err != nil {
		return nil, storeErr(ctx, "invitation.redeem", err, map[string]string{"email": email, "account_id": accountID})
	}

	if inv.Status == domain.InvitationUsed {
		return s.reapply(ctx, inv, accountID)
	}
	if inv.Status == domain.InvitationExpired {
		return nil, ErrExpired
	}
	now := s.now()
	if inv.IsExpired(now) {
		if err := s.expire(ctx, inv); err != nil {
			return nil, err
		}
		return nil, ErrExpired
	}

	if err := s.checkRedeemer(ctx, inv, accountID); err != nil {
		return nil, err
	}
	n, err := repo.MarkInvitationUsed(ctx, s.DB, inv.ID, accountID, now)
	if err != nil {
		return nil, storeErr(ctx, "invitation.redeem", err, map[string]string{"invitation_id": inv.ID, "account_id": accountID})
	}
	if n == 0 {
		// Lost the race: see what the winner left behind.
		cur, err := repo.GetInvitation(ctx, s.DB, inv.ID)
		if errors.Is(err, repo.ErrNotFound) {
			return nil, notFoundf("invitation not found")
		}
		if err != nil {
			return nil, storeErr(ctx, "invitation.redeem", err, map[string]string{"invitation_id": inv.ID})
		}
		switch cur.Status {
		case domain.InvitationUsed:
			return s.reapply(ctx, cur, accountID)
		case domain.InvitationExpired:
			return nil, ErrExpired
		default:
			return nil, conflictf("invitation changed concurrently")
		}
	}

	audit(ctx, s.DB, accountID, domain.AuditInvitationRedeemed, "invitation", inv.ID, "")
	return &RedeemResult{InvitationID: inv.ID}, s.applyProfile(ctx, inv, accountID)
}

// reapply handles a row that is already used: only the account that used it
// may re-apply the profile.
func (s *InvitationService) reapply(ctx context.Context, inv *domain.Invitation, accountID string) (*RedeemResult, error) {
	if inv.UsedBy != nil && *inv.UsedBy != "" && *inv.UsedBy != accountID {
		return nil, conflictf("invitation already used by another account")
	}
	if err := s.checkRedeemer(ctx, inv, accountID); err != nil {
		return nil, err
	}
	return &RedeemResult{InvitationID: inv.ID, AlreadyUsed: true}, s.applyProfile(ctx, inv, accountID)
}

// checkRedeemer requires accountID to be an existing account registered under
// the invitation's email. It runs before the invitation is consumed.
func (s *InvitationService) checkRedeemer(ctx context.Context, inv *domain.Invitation, accountID string) error {
	p, err := repo.GetProfile(ctx, s.DB, accountID)
	if errors.Is(err, repo.ErrNotFound) {
		return notFoundf("account %s not found", accountID)
	}
	if err != nil {
		return storeErr(ctx, "invitation.redeem", err, map[string]string{"invitation_id": inv.ID, "account_id": accountID})
	}
	if domain.NormalizeEmail(p.Email) != domain.NormalizeEmail(inv.Email) {
		return conflictf("invitation was issued to a different email than the account's")
	}
	return nil
}

func (s *InvitationService) applyProfile(ctx context.Context, inv *domain.Invitation, accountID string) error {
	err := repo.ApplyInvitationToProfile(ctx, s.DB, accountID, inv.Role, inv.GivenName, inv.FamilyName)
	if err == nil {
		return nil
	}
	partialFailures.WithLabelValues("profile").Inc()
	zerolog.Ctx(ctx).Error().Err(err).
		Str("op", "invitation.redeem").
		Str("invitation_id", inv.ID).
		Str("account_id", accountID).
		Msg("profile update failed after invitation was consumed")
	return &PartialFailureError{Step: "profile", AccountID: accountID, Err: err}
}

// ConsumeByCode marks the pending invitation carrying code as used by userID
// without touching any profile. email narrows the match when the code is
// shared by several invitations. Zero matched rows is ErrValidation.
func (s *InvitationService) ConsumeByCode(ctx context.Context, code, email, userID string) (inv *domain.Invitation, err error) {
	ctx, span := invTracer().Start(ctx, "ConsumeByCode",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()
	defer func() { invitationOps.WithLabelValues("consume", resultLabel(err)).Inc() }()

	code = strings.TrimSpace(code)
	email = domain.NormalizeEmail(email)
	userID = strings.TrimSpace(userID)
	if code == "" || userID == "" {
		return nil, validationf("token and userId are required")
	}

	rows, err := repo.FindPendingByCode(ctx, s.DB, code, email)
	if err != nil {
		return nil, storeErr(ctx, "invitation.consume", err, map[string]string{"user_id": userID})
	}
	switch {
	case len(rows) == 0:
		return nil, validationf("no pending invitation matches this token")
	case len(rows) > 1:
		return nil, conflictf("token matches several invitations; supply the email")
	}
	inv = &rows[0]

	now := s.now()
	if inv.IsExpired(now) {
		if err := s.expire(ctx, inv); err != nil {
			return nil, err
		}
		return nil, ErrExpired
	}

	n, err := repo.MarkInvitationUsed(ctx, s.DB, inv.ID, userID, now)
	if err != nil {
		return nil, storeErr(ctx, "invitation.consume", err, map[string]string{"invitation_id": inv.ID})
	}
	if n == 0 {
		return nil, validationf("no pending invitation matches this token")
	}
	inv.Status = domain.InvitationUsed
	inv.UsedAt = &now
	inv.UsedBy = &userID
	audit(ctx, s.DB, userID, domain.AuditInvitationConsumed, "invitation", inv.ID, "")
	return inv, nil
}

// Delete removes an invitation that has not been used. Used invitations are
// immutable (ErrValidation); unknown IDs are ErrNotFound.
func (s *InvitationService) Delete(ctx context.Context, id, actor string) error {
	ctx, span := invTracer().Start(ctx, "Delete",
		trace.WithAttributes(attribute.String("invitation.id", id)),
	)
	defer span.End()

	id = strings.TrimSpace(id)
	if id == "" {
		return validationf("id is required")
	}
	n, err := repo.DeleteInvitation(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return notFoundf("invitation not found")
	}
	if err != nil {
		return storeErr(ctx, "invitation.delete", err, map[string]string{"invitation_id": id})
	}
	if n == 0 {
		return validationf("used invitations cannot be deleted")
	}
	audit(ctx, s.DB, actor, domain.AuditInvitationDeleted, "invitation", id, "")
	invitationOps.WithLabelValues("delete", "ok").Inc()
	return nil
}

// List returns every invitation, newest first.
func (s *InvitationService) List(ctx context.Context) ([]domain.Invitation, error) {
	ctx, span := invTracer().Start(ctx, "List")
	defer span.End()

	out, err := repo.ListInvitations(ctx, s.DB)
	if err != nil {
		return nil, storeErr(ctx, "invitation.list", err, nil)
	}
	return out, nil
}

// Stats returns the row count and latest update time used for ETags.
func (s *InvitationService) Stats(ctx context.Context) (int64, *time.Time, error) {
	return repo.InvitationsStats(ctx, s.DB)
}

// DebugEnabled reports whether verify and use responses may list the codes
// on file.
func (s *InvitationService) DebugEnabled() bool { return s.Debug }

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrValidation):
		return "invalid"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrPartialFailure):
		return "partial"
	default:
		return "error"
	}
}
