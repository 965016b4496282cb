package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/tbourn/legis-office-backend/internal/auth"
	"github.com/tbourn/legis-office-backend/internal/domain"
	"github.com/tbourn/legis-office-backend/internal/repo"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newAccountSvc(t *testing.T, db *gorm.DB) (*AccountService, *InvitationService, *auth.JWTManager) {
	t.Helper()
	inv := newInviteSvc(t, db, time.Now().UTC())
	jm := auth.NewJWTManager(testSecret, "legis-office", time.Hour)
	return NewAccountService(db, inv, jm, bcrypt.MinCost), inv, jm
}

func issueFor(t *testing.T, inv *InvitationService, email, role string) *domain.Invitation {
	t.Helper()
	out, _, err := inv.Issue(context.Background(), IssueInput{
		Email: email, GivenName: "ana", FamilyName: "ruiz", Role: role, CreatedBy: "admin",
	})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return out
}

func TestRegister_Success(t *testing.T) {
	db := newSvcDB(t)
	s, inv, jm := newAccountSvc(t, db)
	ctx := context.Background()
	i := issueFor(t, inv, "ana@example.com", domain.RoleStaff)

	sess, err := s.Register(ctx, RegisterInput{Email: " Ana@Example.com ", Password: "hunter2hunter2", InvitationCode: i.InvitationCode})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if sess.Profile.Role != domain.RoleStaff || sess.Profile.GivenName != "Ana" {
		t.Fatalf("profile should carry invitation data, got %+v", sess.Profile)
	}
	id, err := jm.ValidateAccessToken(sess.Token)
	if err != nil || id.UserID != sess.Profile.ID || id.Role != domain.RoleStaff {
		t.Fatalf("token identity %+v err=%v", id, err)
	}
	if got := mustGetInvitation(t, db, "ana@example.com"); got.Status != domain.InvitationUsed {
		t.Fatalf("invitation should be used, got %s", got.Status)
	}

	if _, err := s.Register(ctx, RegisterInput{Email: "ana@example.com", Password: "hunter2hunter2", InvitationCode: i.InvitationCode}); !errors.Is(err, ErrConflict) {
		t.Fatalf("second registration must be ErrConflict, got %v", err)
	}
}

func TestRegister_Rejections(t *testing.T) {
	db := newSvcDB(t)
	s, inv, _ := newAccountSvc(t, db)
	ctx := context.Background()
	i := issueFor(t, inv, "bo@example.com", domain.RoleUser)

	wrong := "0000"
	if i.InvitationCode == wrong {
		wrong = "1111"
	}
	cases := []struct {
		name string
		in   RegisterInput
		want error
	}{
		{"short password", RegisterInput{Email: "bo@example.com", Password: "short", InvitationCode: i.InvitationCode}, ErrValidation},
		{"missing code", RegisterInput{Email: "bo@example.com", Password: "longenough"}, ErrValidation},
		{"wrong code", RegisterInput{Email: "bo@example.com", Password: "longenough", InvitationCode: wrong}, ErrNotFound},
		{"other email", RegisterInput{Email: "x@example.com", Password: "longenough", InvitationCode: i.InvitationCode}, ErrNotFound},
	}
	for _, c := range cases {
		if _, err := s.Register(ctx, c.in); !errors.Is(err, c.want) {
			t.Errorf("%s: expected %v, got %v", c.name, c.want, err)
		}
	}
	if n, _ := repo.CountProfiles(ctx, db); n != 0 {
		t.Fatalf("rejected registrations must not create accounts, got %d", n)
	}
}

func TestRegister_ExistingAccountIsConflict(t *testing.T) {
	db := newSvcDB(t)
	s, inv, _ := newAccountSvc(t, db)
	i := issueFor(t, inv, "cy@example.com", domain.RoleUser)
	seedProfile(t, db, "cy@example.com")

	if _, err := s.Register(context.Background(), RegisterInput{Email: "cy@example.com", Password: "longenough", InvitationCode: i.InvitationCode}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if got := mustGetInvitation(t, db, "cy@example.com"); got.Status != domain.InvitationPending {
		t.Fatalf("invitation must stay pending, got %s", got.Status)
	}
}

func TestRegister_RedeemFailureIsPartial(t *testing.T) {
	db := newSvcDB(t)
	s, inv, _ := newAccountSvc(t, db)
	ctx := context.Background()
	i := issueFor(t, inv, "di@example.com", domain.RoleUser)

	boom := errors.New("invitations unavailable")
	err := db.Callback().Update().Before("gorm:update").Register("test:fail_invitations", func(tx *gorm.DB) {
		if tx.Statement.Table == "invitations" {
			_ = tx.AddError(boom)
		}
	})
	if err != nil {
		t.Fatalf("register callback: %v", err)
	}

	sess, err := s.Register(ctx, RegisterInput{Email: "di@example.com", Password: "longenough", InvitationCode: i.InvitationCode})
	var pf *PartialFailureError
	if !errors.As(err, &pf) || pf.Step != "redeem" || !errors.Is(err, ErrPartialFailure) {
		t.Fatalf("expected redeem partial failure, got %v", err)
	}
	if sess == nil || sess.Token == "" || pf.AccountID != sess.Profile.ID {
		t.Fatalf("session must be returned with the partial failure, got %+v", sess)
	}
	if _, err := repo.GetProfile(ctx, db, pf.AccountID); err != nil {
		t.Fatalf("account must be kept: %v", err)
	}
}

func TestLogin(t *testing.T) {
	db := newSvcDB(t)
	s, inv, _ := newAccountSvc(t, db)
	ctx := context.Background()
	i := issueFor(t, inv, "el@example.com", domain.RoleUser)
	if _, err := s.Register(ctx, RegisterInput{Email: "el@example.com", Password: "correct-horse", InvitationCode: i.InvitationCode}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	sess, err := s.Login(ctx, "EL@example.com", "correct-horse")
	if err != nil || sess.Token == "" || sess.Profile.Email != "el@example.com" {
		t.Fatalf("Login: %+v err=%v", sess, err)
	}
	if _, err := s.Login(ctx, "el@example.com", "wrong-horse"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("bad password must be ErrUnauthorized, got %v", err)
	}
	if _, err := s.Login(ctx, "nobody@example.com", "correct-horse"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("unknown email must be ErrUnauthorized, got %v", err)
	}
	if _, err := s.Login(ctx, "", ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("empty credentials must be ErrValidation, got %v", err)
	}
}

func TestBootstrapAndMe(t *testing.T) {
	db := newSvcDB(t)
	s, _, _ := newAccountSvc(t, db)
	ctx := context.Background()

	if ok, err := s.Bootstrap(ctx, "", ""); ok || err != nil {
		t.Fatalf("unset bootstrap must be a no-op, got %v %v", ok, err)
	}
	if _, err := s.Bootstrap(ctx, "root@example.com", "short"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	ok, err := s.Bootstrap(ctx, "root@example.com", "rootpassword")
	if err != nil || !ok {
		t.Fatalf("first bootstrap: %v %v", ok, err)
	}
	if ok, _ := s.Bootstrap(ctx, "other@example.com", "rootpassword"); ok {
		t.Fatalf("bootstrap must only run on an empty store")
	}

	sess, err := s.Login(ctx, "root@example.com", "rootpassword")
	if err != nil || sess.Profile.Role != domain.RoleAdmin {
		t.Fatalf("admin login: %+v err=%v", sess, err)
	}
	me, err := s.Me(ctx, sess.Profile.ID)
	if err != nil || me.Email != "root@example.com" {
		t.Fatalf("Me: %+v err=%v", me, err)
	}
	if _, err := s.Me(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
