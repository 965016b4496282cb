package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/legis-office-backend/internal/domain"
)

// InvitationsStats returns the row count and newest updated_at of the
// invitations table, the inputs of the list ETag. An empty table yields
// (0, nil, nil).
func InvitationsStats(ctx context.Context, db *gorm.DB) (int64, *time.Time, error) {
	return collectionStats(db.WithContext(ctx).Model(&domain.Invitation{}))
}

// WorkItemsStats is InvitationsStats for one kind and year of the register.
func WorkItemsStats(ctx context.Context, db *gorm.DB, kind domain.Kind, year int) (int64, *time.Time, error) {
	return collectionStats(db.WithContext(ctx).Model(kind.Model()).Scopes(inYear(year)))
}

func inYear(year int) func(*gorm.DB) *gorm.DB {
	return func(q *gorm.DB) *gorm.DB { return q.Where("year = ?", year) }
}

// collectionStats reads the newest row first and counts only when one
// exists. updated_at is read as a column rather than through MAX(), which
// SQLite returns as TEXT.
func collectionStats(q *gorm.DB) (int64, *time.Time, error) {
	var newest struct{ UpdatedAt time.Time }
	err := q.Session(&gorm.Session{}).
		Select("updated_at").
		Order("updated_at DESC").
		Take(&newest).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return 0, nil, nil
	case err != nil:
		return 0, nil, err
	}

	var n int64
	if err := q.Session(&gorm.Session{}).Count(&n).Error; err != nil {
		return 0, nil, err
	}
	return n, &newest.UpdatedAt, nil
}
