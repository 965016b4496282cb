// Append-only audit trail of state changes.

package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/legis-office-backend/internal/domain"
)

// AppendAudit inserts one audit record. ID and CreatedAt are filled in when
// empty.
func AppendAudit(ctx context.Context, db *gorm.DB, rec *domain.AuditRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	return db.WithContext(ctx).Create(rec).Error
}

// ListAuditForEntity returns the trail for one entity, oldest first.
func ListAuditForEntity(ctx context.Context, db *gorm.DB, entityType, entityID string) ([]domain.AuditRecord, error) {
	var out []domain.AuditRecord
	err := db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("created_at asc").
		Find(&out).Error
	return out, err
}
