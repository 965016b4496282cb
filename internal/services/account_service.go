// Package services – AccountService
//
// This file implements AccountService: password login, invitation-gated
// self-registration, the current-profile lookup, and the one-time bootstrap
// of the first admin account.
//
// Registration is two halves that are not atomic: the account is created
// first, then the invitation is redeemed onto it. When the second half fails
// the account is kept and the caller receives a *PartialFailureError along
// with the result.
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/tbourn/legis-office-backend/internal/auth"
	"github.com/tbourn/legis-office-backend/internal/domain"
	"github.com/tbourn/legis-office-backend/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const minPasswordLen = 8

// TokenIssuer signs access tokens for authenticated accounts.
type TokenIssuer interface {
	GenerateAccessToken(id auth.Identity) (string, time.Time, error)
}

// Session is a signed access token and the account it belongs to.
type Session struct {
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expires_at"`
	Profile   *domain.Profile `json:"profile"`
}

// RegisterInput carries a self-registration request.
type RegisterInput struct {
	Email          string
	Password       string
	InvitationCode string
}

// AccountService implements account use-cases.
type AccountService struct {
	DB          *gorm.DB
	Invitations *InvitationService
	Tokens      TokenIssuer
	BcryptCost  int
}

// NewAccountService constructs an AccountService.
func NewAccountService(db *gorm.DB, inv *InvitationService, tokens TokenIssuer, bcryptCost int) *AccountService {
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	return &AccountService{DB: db, Invitations: inv, Tokens: tokens, BcryptCost: bcryptCost}
}

func accTracer() trace.Tracer { return otel.Tracer("services/AccountService") }

// Login checks email and password and returns a session. Unknown emails and
// wrong passwords both yield ErrUnauthorized.
func (s *AccountService) Login(ctx context.Context, email, password string) (*Session, error) {
	ctx, span := accTracer().Start(ctx, "Login")
	defer span.End()

	email = domain.NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, validationf("email and password are required")
	}
	p, err := repo.GetProfileByEmail(ctx, s.DB, email)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrUnauthorized
	}
	if err != nil {
		return nil, storeErr(ctx, "account.login", err, map[string]string{"email": email})
	}
	if err := bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte(password)); err != nil {
		return nil, ErrUnauthorized
	}
	return s.session(p)
}

// Register creates an account for the holder of a valid invitation and then
// redeems it. The returned session is valid even when err is a
// *PartialFailureError.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	ctx, span := accTracer().Start(ctx, "Register")
	defer span.End()

	email := domain.NormalizeEmail(in.Email)
	code := strings.TrimSpace(in.InvitationCode)
	if email == "" || code == "" {
		return nil, validationf("email and invitation code are required")
	}
	if len(in.Password) < minPasswordLen {
		return nil, validationf("password must be at least %d characters", minPasswordLen)
	}

	v, err := s.Invitations.Verify(ctx, email, code)
	if err != nil {
		return nil, err
	}
	if !v.Valid {
		switch v.Reason {
		case ReasonExpired:
			return nil, ErrExpired
		case ReasonUsed:
			return nil, conflictf("invitation already used")
		default:
			return nil, notFoundf("invitation not found")
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.BcryptCost)
	if err != nil {
		return nil, err
	}
	p := &domain.Profile{
		Email:        email,
		PasswordHash: string(hash),
		GivenName:    v.Invitation.GivenName,
		FamilyName:   v.Invitation.FamilyName,
		Role:         v.Invitation.Role,
	}
	err = repo.CreateProfile(ctx, s.DB, p)
	if errors.Is(err, repo.ErrDuplicate) {
		return nil, conflictf("an account already exists for %s", email)
	}
	if err != nil {
		return nil, storeErr(ctx, "account.create", err, map[string]string{"email": email})
	}
	span.SetAttributes(attribute.String("user.id", p.ID))

	sess, serr := s.session(p)
	if serr != nil {
		return nil, serr
	}

	if _, err := s.Invitations.Redeem(ctx, email, code, p.ID); err != nil {
		var pf *PartialFailureError
		if !errors.As(err, &pf) {
			partialFailures.WithLabelValues("redeem").Inc()
			zerolog.Ctx(ctx).Error().Err(err).
				Str("op", "account.register").
				Str("account_id", p.ID).
				Msg("account created but invitation was not redeemed")
			pf = &PartialFailureError{Step: "redeem", AccountID: p.ID, Err: err}
		}
		return sess, pf
	}

	// The redeem may have refreshed names and role; hand back what is stored.
	if cur, err := repo.GetProfile(ctx, s.DB, p.ID); err == nil {
		sess.Profile = cur
	}
	return sess, nil
}

// Me returns the profile of the authenticated account.
func (s *AccountService) Me(ctx context.Context, id string) (*domain.Profile, error) {
	p, err := repo.GetProfile(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, notFoundf("account not found")
	}
	if err != nil {
		return nil, storeErr(ctx, "account.me", err, map[string]string{"account_id": id})
	}
	return p, nil
}

// Bootstrap creates an admin account when no account exists yet. It reports
// whether one was created.
func (s *AccountService) Bootstrap(ctx context.Context, email, password string) (bool, error) {
	email = domain.NormalizeEmail(email)
	if email == "" || password == "" {
		return false, nil
	}
	if len(password) < minPasswordLen {
		return false, validationf("bootstrap password must be at least %d characters", minPasswordLen)
	}
	n, err := repo.CountProfiles(ctx, s.DB)
	if err != nil {
		return false, storeErr(ctx, "account.bootstrap", err, nil)
	}
	if n > 0 {
		return false, nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.BcryptCost)
	if err != nil {
		return false, err
	}
	p := &domain.Profile{Email: email, PasswordHash: string(hash), GivenName: "Admin", Role: domain.RoleAdmin}
	if err := repo.CreateProfile(ctx, s.DB, p); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return false, nil
		}
		return false, storeErr(ctx, "account.bootstrap", err, map[string]string{"email": email})
	}
	zerolog.Ctx(ctx).Info().Str("account_id", p.ID).Msg("bootstrap admin created")
	return true, nil
}

func (s *AccountService) session(p *domain.Profile) (*Session, error) {
	tok, exp, err := s.Tokens.GenerateAccessToken(auth.Identity{UserID: p.ID, Email: p.Email, Role: p.Role})
	if err != nil {
		return nil, err
	}
	return &Session{Token: tok, ExpiresAt: exp, Profile: p}, nil
}
