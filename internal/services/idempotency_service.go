// Package services – IdempotencyService
//
// This file implements IdempotencyService, which remembers the entity created
// by an unsafe request under (user, route, Idempotency-Key) so a retry can be
// answered with the original entity instead of numbering a second one.
package services

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/legis-office-backend/internal/domain"
	"github.com/tbourn/legis-office-backend/internal/repo"
)

// IdempotencyService stores and replays idempotent request outcomes.
type IdempotencyService struct {
	DB  *gorm.DB
	TTL time.Duration
	Now func() time.Time
}

// NewIdempotencyService constructs an IdempotencyService; ttl <= 0 selects 24h.
func NewIdempotencyService(db *gorm.DB, ttl time.Duration) *IdempotencyService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &IdempotencyService{DB: db, TTL: ttl, Now: func() time.Time { return time.Now().UTC() }}
}

// Lookup returns the live record for (userID, scope, key), or nil when there
// is none.
func (s *IdempotencyService) Lookup(ctx context.Context, userID, scope, key string) (*domain.Idempotency, error) {
	if userID == "" || key == "" {
		return nil, nil
	}
	rec, err := repo.GetIdempotency(ctx, s.DB, userID, scope, key, s.Now())
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr(ctx, "idempotency.lookup", err, map[string]string{"scope": scope})
	}
	return rec, nil
}

// Remember records resourceID as the outcome of (userID, scope, key). A
// record written concurrently by a twin request is not an error.
func (s *IdempotencyService) Remember(ctx context.Context, userID, scope, key, resourceID string, status int) error {
	if userID == "" || key == "" {
		return nil
	}
	_, err := repo.CreateIdempotency(ctx, s.DB, userID, scope, key, resourceID, status, s.TTL)
	if err == nil || errors.Is(err, repo.ErrDuplicate) {
		return nil
	}
	return storeErr(ctx, "idempotency.remember", err, map[string]string{"scope": scope, "resource_id": resourceID})
}

// Purge deletes expired records.
func (s *IdempotencyService) Purge(ctx context.Context) (int64, error) {
	n, err := repo.PurgeIdempotency(ctx, s.DB, s.Now())
	if err != nil {
		return 0, storeErr(ctx, "idempotency.purge", err, nil)
	}
	return n, nil
}
