// Sequenced work items, expressions and petitions. Both kinds share one shape,
// so every function takes a domain.Kind and resolves the backing table from
// it. (year, sequence) is unique per table; inserting a taken pair yields
// ErrDuplicate, which is how concurrent allocations of the same gap are
// detected.

package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/legis-office-backend/internal/domain"
)

// ListSequences returns every sequence issued for kind in year, ascending.
func ListSequences(ctx context.Context, db *gorm.DB, kind domain.Kind, year int) ([]int, error) {
	var out []int
	err := db.WithContext(ctx).
		Model(kind.Model()).
		Where("year = ?", year).
		Order("sequence asc").
		Pluck("sequence", &out).Error
	return out, err
}

// MaxSequence returns the highest sequence for kind in year; ok is false when
// the year has no rows.
func MaxSequence(ctx context.Context, db *gorm.DB, kind domain.Kind, year int) (max int, ok bool, err error) {
	var out []int
	err = db.WithContext(ctx).
		Model(kind.Model()).
		Where("year = ?", year).
		Order("sequence desc").
		Limit(1).
		Pluck("sequence", &out).Error
	if err != nil || len(out) == 0 {
		return 0, false, err
	}
	return out[0], true, nil
}

// InsertWorkItem persists item into its kind's table.
func InsertWorkItem(ctx context.Context, db *gorm.DB, item domain.WorkItem) error {
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	return mapCreateErr(db.WithContext(ctx).Create(item.Row()).Error)
}

// GetWorkItem fetches one item of kind by ID.
func GetWorkItem(ctx context.Context, db *gorm.DB, kind domain.Kind, id string) (*domain.WorkItem, error) {
	q := db.WithContext(ctx).Where("id = ?", id)
	switch kind {
	case domain.KindPetition:
		var p domain.Petition
		if err := q.First(&p).Error; err != nil {
			return nil, err
		}
		w := petitionItem(p)
		return &w, nil
	default:
		var e domain.Expression
		if err := q.First(&e).Error; err != nil {
			return nil, err
		}
		w := expressionItem(e)
		return &w, nil
	}
}

// CountWorkItems returns how many items of kind exist in year.
func CountWorkItems(ctx context.Context, db *gorm.DB, kind domain.Kind, year int) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(kind.Model()).Where("year = ?", year).Count(&n).Error
	return n, err
}

// ListWorkItemsPage returns a page of items of kind in year, ordered by
// sequence ascending.
func ListWorkItemsPage(ctx context.Context, db *gorm.DB, kind domain.Kind, year, offset, limit int) ([]domain.WorkItem, error) {
	q := db.WithContext(ctx).Where("year = ?", year).Order("sequence asc").Offset(offset).Limit(limit)
	switch kind {
	case domain.KindPetition:
		var rows []domain.Petition
		if err := q.Find(&rows).Error; err != nil {
			return nil, err
		}
		out := make([]domain.WorkItem, 0, len(rows))
		for _, r := range rows {
			out = append(out, petitionItem(r))
		}
		return out, nil
	default:
		var rows []domain.Expression
		if err := q.Find(&rows).Error; err != nil {
			return nil, err
		}
		out := make([]domain.WorkItem, 0, len(rows))
		for _, r := range rows {
			out = append(out, expressionItem(r))
		}
		return out, nil
	}
}

// AdvanceWorkStatus moves item id from status `from` to `to`, optionally
// recording an assignee. Zero rows means the item is missing or was moved by
// someone else in the meantime.
func AdvanceWorkStatus(ctx context.Context, db *gorm.DB, kind domain.Kind, id string, from, to domain.WorkStatus, assignedTo *string) (int64, error) {
	upd := map[string]any{
		"status":     to,
		"updated_at": time.Now().UTC(),
	}
	if assignedTo != nil {
		upd["assigned_to"] = *assignedTo
	}
	res := db.WithContext(ctx).
		Model(kind.Model()).
		Where("id = ? AND status = ?", id, from).
		Updates(upd)
	return res.RowsAffected, res.Error
}

func expressionItem(e domain.Expression) domain.WorkItem {
	return domain.WorkItem{
		ID: e.ID, Kind: domain.KindExpression, Year: e.Year, Sequence: e.Sequence,
		Numero: e.Numero, TopicID: e.TopicID, Subject: e.Subject, Status: e.Status,
		AssignedTo: e.AssignedTo, CreatedBy: e.CreatedBy, CreatedAt: e.CreatedAt,
	}
}

func petitionItem(p domain.Petition) domain.WorkItem {
	return domain.WorkItem{
		ID: p.ID, Kind: domain.KindPetition, Year: p.Year, Sequence: p.Sequence,
		Numero: p.Numero, TopicID: p.TopicID, Subject: p.Subject, Status: p.Status,
		AssignedTo: p.AssignedTo, CreatedBy: p.CreatedBy, CreatedAt: p.CreatedAt,
	}
}
