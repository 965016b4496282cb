package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tbourn/legis-office-backend/internal/domain"
)

func TestCreateInvitation_DuplicateEmail(t *testing.T) {
	db := newTestDB(t, &domain.Invitation{})
	now := time.Now().UTC()
	seedInvitation(t, db, "i1", "a@x.io", "1234", domain.InvitationPending, now)

	dup := &domain.Invitation{
		ID: "i2", Email: "a@x.io", InvitationCode: "5678", GivenName: "G",
		Role: domain.RoleUser, CreatedBy: "admin", ExpiresAt: now.Add(time.Hour),
		Status: domain.InvitationPending,
	}
	if err := CreateInvitation(context.Background(), db, dup); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestReissueInvitation_ResetsRow(t *testing.T) {
	db := newTestDB(t, &domain.Invitation{})
	ctx := context.Background()
	now := time.Now().UTC()
	seedInvitation(t, db, "i1", "a@x.io", "1234", domain.InvitationPending, now)
	if n, err := MarkInvitationUsed(ctx, db, "i1", "acct-1", now); err != nil || n != 1 {
		t.Fatalf("MarkInvitationUsed: n=%d err=%v", n, err)
	}

	next := &domain.Invitation{
		Email: "a@x.io", InvitationCode: "4321", GivenName: "Ana", FamilyName: "Lima",
		Role: domain.RoleStaff, CreatedBy: "admin2", ExpiresAt: now.Add(48 * time.Hour),
	}
	got, err := ReissueInvitation(ctx, db, next)
	if err != nil {
		t.Fatalf("ReissueInvitation: %v", err)
	}
	if got.ID != "i1" || got.InvitationCode != "4321" || got.Status != domain.InvitationPending {
		t.Fatalf("unexpected row after reissue: %+v", got)
	}
	if got.UsedAt != nil || got.UsedBy != nil {
		t.Fatalf("expected used fields cleared, got %+v", got)
	}
	if got.Role != domain.RoleStaff || got.GivenName != "Ana" || got.CreatedBy != "admin2" {
		t.Fatalf("fields not overwritten: %+v", got)
	}

	if _, err := ReissueInvitation(ctx, db, &domain.Invitation{Email: "none@x.io"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown email, got %v", err)
	}
}

func TestFindInvitation_AndPending(t *testing.T) {
	db := newTestDB(t, &domain.Invitation{})
	ctx := context.Background()
	now := time.Now().UTC()
	seedInvitation(t, db, "i1", "a@x.io", "1234", domain.InvitationUsed, now)

	if got, err := FindInvitation(ctx, db, "a@x.io", "1234"); err != nil || got.ID != "i1" {
		t.Fatalf("FindInvitation: got=%v err=%v", got, err)
	}
	if _, err := FindPendingInvitation(ctx, db, "a@x.io", "1234"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for used row, got %v", err)
	}
	if _, err := FindInvitation(ctx, db, "a@x.io", "0000"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for wrong code, got %v", err)
	}
}

func TestFindPendingByCode_SharedAcrossEmails(t *testing.T) {
	db := newTestDB(t, &domain.Invitation{})
	ctx := context.Background()
	now := time.Now().UTC()
	seedInvitation(t, db, "i1", "a@x.io", "4242", domain.InvitationPending, now)
	seedInvitation(t, db, "i2", "b@x.io", "4242", domain.InvitationPending, now.Add(time.Second))
	seedInvitation(t, db, "i3", "c@x.io", "4242", domain.InvitationUsed, now)

	all, err := FindPendingByCode(ctx, db, "4242", "")
	if err != nil {
		t.Fatalf("FindPendingByCode: %v", err)
	}
	if len(all) != 2 || all[0].ID != "i2" {
		t.Fatalf("expected 2 pending rows newest first, got %+v", all)
	}

	one, err := FindPendingByCode(ctx, db, "4242", "a@x.io")
	if err != nil || len(one) != 1 || one[0].ID != "i1" {
		t.Fatalf("expected narrowed match, got %+v err=%v", one, err)
	}
}

func TestListInvitations_NewestFirst(t *testing.T) {
	db := newTestDB(t, &domain.Invitation{})
	ctx := context.Background()
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	seedInvitation(t, db, "old", "a@x.io", "1111", domain.InvitationPending, t0)
	seedInvitation(t, db, "new", "b@x.io", "2222", domain.InvitationPending, t0.Add(time.Hour))

	out, err := ListInvitations(ctx, db)
	if err != nil || len(out) != 2 || out[0].ID != "new" {
		t.Fatalf("unexpected list: %+v err=%v", out, err)
	}
	byEmail, err := ListInvitationsByEmail(ctx, db, "a@x.io")
	if err != nil || len(byEmail) != 1 || byEmail[0].ID != "old" {
		t.Fatalf("unexpected list by email: %+v err=%v", byEmail, err)
	}
}

func TestMarkInvitationExpired_OnlyPending(t *testing.T) {
	db := newTestDB(t, &domain.Invitation{})
	ctx := context.Background()
	now := time.Now().UTC()
	seedInvitation(t, db, "i1", "a@x.io", "1234", domain.InvitationPending, now)

	n, err := MarkInvitationExpired(ctx, db, "i1")
	if err != nil || n != 1 {
		t.Fatalf("first expire: n=%d err=%v", n, err)
	}
	n, err = MarkInvitationExpired(ctx, db, "i1")
	if err != nil || n != 0 {
		t.Fatalf("second expire should be a no-op: n=%d err=%v", n, err)
	}
	got, _ := GetInvitation(ctx, db, "i1")
	if got.Status != domain.InvitationExpired {
		t.Fatalf("expected expired, got %s", got.Status)
	}
}

func TestMarkInvitationUsed_ExactlyOnce(t *testing.T) {
	db := newTestDB(t, &domain.Invitation{})
	ctx := context.Background()
	now := time.Now().UTC()
	seedInvitation(t, db, "i1", "a@x.io", "1234", domain.InvitationPending, now)

	n1, err := MarkInvitationUsed(ctx, db, "i1", "acct-1", now)
	if err != nil || n1 != 1 {
		t.Fatalf("first use: n=%d err=%v", n1, err)
	}
	n2, err := MarkInvitationUsed(ctx, db, "i1", "acct-2", now)
	if err != nil || n2 != 0 {
		t.Fatalf("second use must not match: n=%d err=%v", n2, err)
	}
	got, _ := GetInvitation(ctx, db, "i1")
	if got.UsedBy == nil || *got.UsedBy != "acct-1" || got.UsedAt == nil {
		t.Fatalf("expected first redeemer recorded, got %+v", got)
	}
}

func TestDeleteInvitation(t *testing.T) {
	db := newTestDB(t, &domain.Invitation{})
	ctx := context.Background()
	now := time.Now().UTC()
	seedInvitation(t, db, "p", "a@x.io", "1234", domain.InvitationPending, now)
	seedInvitation(t, db, "u", "b@x.io", "5678", domain.InvitationUsed, now)

	if n, err := DeleteInvitation(ctx, db, "p"); err != nil || n != 1 {
		t.Fatalf("delete pending: n=%d err=%v", n, err)
	}
	if n, err := DeleteInvitation(ctx, db, "u"); err != nil || n != 0 {
		t.Fatalf("used row must survive: n=%d err=%v", n, err)
	}
	if _, err := DeleteInvitation(ctx, db, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
