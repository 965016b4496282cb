// Invitation rows. The repository is "thin": it composes queries and reports
// affected-row counts, leaving lifecycle rules (expiry, redemption) to the
// services package.
//
// Error semantics:
//   - Lookups return ErrNotFound when no row matches.
//   - CreateInvitation returns ErrDuplicate when the email already has a row.
//   - Conditional updates (MarkInvitationExpired, MarkInvitationUsed) return
//     the number of rows they changed; zero means another writer got there
//     first, which callers must treat as "already transitioned".

package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/legis-office-backend/internal/domain"
)

// CreateInvitation inserts inv as-is. The email column is unique; a second
// row for the same address yields ErrDuplicate.
func CreateInvitation(ctx context.Context, db *gorm.DB, inv *domain.Invitation) error {
	return mapCreateErr(db.WithContext(ctx).Create(inv).Error)
}

// ReissueInvitation overwrites the row for inv.Email with inv's code, names,
// role, issuer and expiry, and resets it to pending. It returns the stored
// row, or ErrNotFound if the email has no row.
func ReissueInvitation(ctx context.Context, db *gorm.DB, inv *domain.Invitation) (*domain.Invitation, error) {
	res := db.WithContext(ctx).
		Model(&domain.Invitation{}).
		Where("email = ?", inv.Email).
		Updates(map[string]any{
			"invitation_code": inv.InvitationCode,
			"given_name":      inv.GivenName,
			"family_name":     inv.FamilyName,
			"role":            inv.Role,
			"created_by":      inv.CreatedBy,
			"expires_at":      inv.ExpiresAt,
			"status":          domain.InvitationPending,
			"used_at":         nil,
			"used_by":         nil,
			"updated_at":      time.Now().UTC(),
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	var out domain.Invitation
	if err := db.WithContext(ctx).Where("email = ?", inv.Email).First(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

// GetInvitation fetches an invitation by primary key.
func GetInvitation(ctx context.Context, db *gorm.DB, id string) (*domain.Invitation, error) {
	var inv domain.Invitation
	if err := db.WithContext(ctx).Where("id = ?", id).First(&inv).Error; err != nil {
		return nil, err
	}
	return &inv, nil
}

// FindInvitation returns the row matching (email, code) whatever its status.
func FindInvitation(ctx context.Context, db *gorm.DB, email, code string) (*domain.Invitation, error) {
	var inv domain.Invitation
	err := db.WithContext(ctx).
		Where("email = ? AND invitation_code = ?", email, code).
		First(&inv).Error
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// FindPendingInvitation returns the pending row matching (email, code).
func FindPendingInvitation(ctx context.Context, db *gorm.DB, email, code string) (*domain.Invitation, error) {
	var inv domain.Invitation
	err := db.WithContext(ctx).
		Where("email = ? AND invitation_code = ? AND status = ?", email, code, domain.InvitationPending).
		First(&inv).Error
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// FindPendingByCode returns every pending row carrying code, optionally
// narrowed to one email. Codes are not unique across emails, so callers must
// handle more than one match.
func FindPendingByCode(ctx context.Context, db *gorm.DB, code, email string) ([]domain.Invitation, error) {
	q := db.WithContext(ctx).
		Where("invitation_code = ? AND status = ?", code, domain.InvitationPending)
	if email != "" {
		q = q.Where("email = ?", email)
	}
	var out []domain.Invitation
	err := q.Order("created_at desc").Find(&out).Error
	return out, err
}

// ListInvitations returns all invitations, newest first.
func ListInvitations(ctx context.Context, db *gorm.DB) ([]domain.Invitation, error) {
	var out []domain.Invitation
	err := db.WithContext(ctx).Order("created_at desc").Find(&out).Error
	return out, err
}

// ListInvitationsByEmail returns every row on file for email, newest first.
func ListInvitationsByEmail(ctx context.Context, db *gorm.DB, email string) ([]domain.Invitation, error) {
	var out []domain.Invitation
	err := db.WithContext(ctx).
		Where("email = ?", email).
		Order("created_at desc").
		Find(&out).Error
	return out, err
}

// MarkInvitationExpired flips a pending row to expired. Re-applying it to an
// already expired row changes nothing and reports zero rows.
func MarkInvitationExpired(ctx context.Context, db *gorm.DB, id string) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.Invitation{}).
		Where("id = ? AND status = ?", id, domain.InvitationPending).
		Updates(map[string]any{
			"status":     domain.InvitationExpired,
			"updated_at": time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

// MarkInvitationUsed consumes a pending row on behalf of userID. Only one
// concurrent caller can observe RowsAffected == 1.
func MarkInvitationUsed(ctx context.Context, db *gorm.DB, id, userID string, at time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.Invitation{}).
		Where("id = ? AND status = ?", id, domain.InvitationPending).
		Updates(map[string]any{
			"status":     domain.InvitationUsed,
			"used_at":    at,
			"used_by":    userID,
			"updated_at": at,
		})
	return res.RowsAffected, res.Error
}

// DeleteInvitation physically removes a row unless it has been used.
// It returns ErrNotFound when id is unknown.
func DeleteInvitation(ctx context.Context, db *gorm.DB, id string) (int64, error) {
	res := db.WithContext(ctx).
		Where("id = ? AND status <> ?", id, domain.InvitationUsed).
		Delete(&domain.Invitation{})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := GetInvitation(ctx, db, id); errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrNotFound
		}
	}
	return res.RowsAffected, nil
}
