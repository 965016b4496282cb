package services

import (
	"context"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/legis-office-backend/internal/domain"
	"github.com/tbourn/legis-office-backend/internal/repo"
)

// audit appends a trail entry. A failed append is logged but does not undo
// the state change it describes.
func audit(ctx context.Context, db *gorm.DB, actor string, action domain.AuditAction, entityType, entityID, detail string) {
	rec := &domain.AuditRecord{
		ActorID:    actor,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Detail:     detail,
	}
	if err := repo.AppendAudit(ctx, db, rec); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).
			Str("action", string(action)).
			Str("entity_id", entityID).
			Msg("audit append failed")
	}
}
