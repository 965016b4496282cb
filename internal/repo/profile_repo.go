package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/legis-office-backend/internal/domain"
)

// CreateProfile inserts p, assigning an ID when empty. A second account for
// the same email yields ErrDuplicate.
func CreateProfile(ctx context.Context, db *gorm.DB, p *domain.Profile) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	return mapCreateErr(db.WithContext(ctx).Create(p).Error)
}

// GetProfile fetches a profile by ID.
func GetProfile(ctx context.Context, db *gorm.DB, id string) (*domain.Profile, error) {
	var p domain.Profile
	if err := db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// GetProfileByEmail fetches a profile by normalized email.
func GetProfileByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.Profile, error) {
	var p domain.Profile
	if err := db.WithContext(ctx).Where("email = ?", email).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// CountProfiles returns the number of accounts.
func CountProfiles(ctx context.Context, db *gorm.DB) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.Profile{}).Count(&n).Error
	return n, err
}

// ApplyInvitationToProfile writes the role and names carried by an invitation
// onto account id. It returns ErrNotFound when the account does not exist.
func ApplyInvitationToProfile(ctx context.Context, db *gorm.DB, id, role, givenName, familyName string) error {
	res := db.WithContext(ctx).
		Model(&domain.Profile{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"role":        role,
			"given_name":  givenName,
			"family_name": familyName,
			"updated_at":  time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
