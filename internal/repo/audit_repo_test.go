package repo

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/tbourn/legis-office-backend/internal/domain"
)

func TestAppendAudit_AndList(t *testing.T) {
	db := newTestDB(t, &domain.AuditRecord{})
	ctx := context.Background()
	t0 := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	for i, a := range []domain.AuditAction{domain.AuditInvitationIssued, domain.AuditInvitationRedeemed} {
		rec := &domain.AuditRecord{ActorID: "u1", Action: a, EntityType: "invitation", EntityID: "i1", CreatedAt: t0.Add(time.Duration(i) * time.Minute)}
		if err := AppendAudit(ctx, db, rec); err != nil {
			t.Fatalf("AppendAudit: %v", err)
		}
		if rec.ID == "" {
			t.Fatalf("expected ID assigned")
		}
	}
	if err := AppendAudit(ctx, db, &domain.AuditRecord{ActorID: "u1", Action: domain.AuditInvitationIssued, EntityType: "invitation", EntityID: "other"}); err != nil {
		t.Fatalf("AppendAudit other: %v", err)
	}

	out, err := ListAuditForEntity(ctx, db, "invitation", "i1")
	if err != nil {
		t.Fatalf("ListAuditForEntity: %v", err)
	}
	if len(out) != 2 || out[0].Action != domain.AuditInvitationIssued || out[1].Action != domain.AuditInvitationRedeemed {
		t.Fatalf("unexpected trail: %+v", out)
	}
}

func TestIsDuplicate(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{ErrDuplicate, true},
		{fmt.Errorf("wrap: %w", ErrDuplicate), true},
		{errors.New("constraint failed: UNIQUE constraint failed: invitations.email (2067)"), true},
		{errors.New(`ERROR: duplicate key value violates unique constraint "ux_invitations_email" (SQLSTATE 23505)`), true},
		{errors.New("no such table: invitations"), false},
	}
	for _, c := range cases {
		if got := IsDuplicate(c.err); got != c.want {
			t.Fatalf("IsDuplicate(%v) = %v, want %v", c.err, got, c.want)
		}
	}
	if mapCreateErr(errors.New("boom")) == ErrDuplicate {
		t.Fatalf("non-unique error must pass through")
	}
}
