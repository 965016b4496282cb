package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/legis-office-backend/internal/domain"
)

// CreateTopic inserts a topic; names are unique (ErrDuplicate).
func CreateTopic(ctx context.Context, db *gorm.DB, name, abbreviation string) (*domain.Topic, error) {
	t := &domain.Topic{
		ID:           uuid.NewString(),
		Name:         name,
		Abbreviation: abbreviation,
		CreatedAt:    time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(t).Error; err != nil {
		return nil, mapCreateErr(err)
	}
	return t, nil
}

// GetTopic fetches a topic by ID.
func GetTopic(ctx context.Context, db *gorm.DB, id string) (*domain.Topic, error) {
	var t domain.Topic
	if err := db.WithContext(ctx).Where("id = ?", id).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// ListTopics returns all topics ordered by name.
func ListTopics(ctx context.Context, db *gorm.DB) ([]domain.Topic, error) {
	var out []domain.Topic
	err := db.WithContext(ctx).Order("name asc").Find(&out).Error
	return out, err
}

// UpdateTopic renames a topic and/or changes its abbreviation. It returns
// ErrNotFound when no row matches.
func UpdateTopic(ctx context.Context, db *gorm.DB, id, name, abbreviation string) error {
	res := db.WithContext(ctx).
		Model(&domain.Topic{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"name":         name,
			"abbreviation": abbreviation,
			"updated_at":   time.Now().UTC(),
		})
	if res.Error != nil {
		return mapCreateErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
