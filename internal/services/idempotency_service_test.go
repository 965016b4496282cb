package services

import (
	"context"
	"net/http"
	"testing"
	"time"
)

func TestIdempotencyService_RememberAndLookup(t *testing.T) {
	db := newSvcDB(t)
	s := NewIdempotencyService(db, time.Hour)
	ctx := context.Background()
	scope := "/api/v1/expressions/allocate"

	if rec, err := s.Lookup(ctx, "u1", scope, "k1"); err != nil || rec != nil {
		t.Fatalf("expected miss, got %+v err=%v", rec, err)
	}
	if err := s.Remember(ctx, "u1", scope, "k1", "item-1", http.StatusCreated); err != nil {
		t.Fatalf("Remember: %v", err)
	}
	// A twin request racing on the same key is tolerated.
	if err := s.Remember(ctx, "u1", scope, "k1", "item-2", http.StatusCreated); err != nil {
		t.Fatalf("duplicate Remember: %v", err)
	}

	rec, err := s.Lookup(ctx, "u1", scope, "k1")
	if err != nil || rec == nil || rec.ResourceID != "item-1" || rec.Status != http.StatusCreated {
		t.Fatalf("unexpected record %+v err=%v", rec, err)
	}
	if rec, _ := s.Lookup(ctx, "u2", scope, "k1"); rec != nil {
		t.Fatalf("keys are scoped per user")
	}
	if rec, _ := s.Lookup(ctx, "u1", "/api/v1/petitions/allocate", "k1"); rec != nil {
		t.Fatalf("keys are scoped per route")
	}
	if rec, _ := s.Lookup(ctx, "", scope, "k1"); rec != nil {
		t.Fatalf("anonymous lookups never match")
	}
}

func TestIdempotencyService_ExpiryAndPurge(t *testing.T) {
	db := newSvcDB(t)
	s := NewIdempotencyService(db, time.Minute)
	ctx := context.Background()

	if err := s.Remember(ctx, "u1", "/x", "k", "r", http.StatusCreated); err != nil {
		t.Fatalf("Remember: %v", err)
	}
	s.Now = func() time.Time { return time.Now().UTC().Add(2 * time.Minute) }

	if rec, _ := s.Lookup(ctx, "u1", "/x", "k"); rec != nil {
		t.Fatalf("expired record must not replay")
	}
	n, err := s.Purge(ctx)
	if err != nil || n != 1 {
		t.Fatalf("Purge: n=%d err=%v", n, err)
	}
}
