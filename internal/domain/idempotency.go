package domain

import "time"

// Idempotency records the outcome of a previously processed unsafe request,
// keyed by (user_id, scope, key). Scope is the route that produced it, so the
// same key can be reused on unrelated endpoints. A replay returns ResourceID
// instead of creating a second row.
type Idempotency struct {
	ID         string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	UserID     string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_user_scope_key,priority:1"`
	Scope      string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_user_scope_key,priority:2"`
	Key        string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_user_scope_key,priority:3"`
	ResourceID string    `gorm:"type:TEXT NOT NULL"`
	Status     int       `gorm:"type:INTEGER NOT NULL"`
	CreatedAt  time.Time `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
	ExpiresAt  time.Time `gorm:"type:DATETIME NOT NULL;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }

// AuditAction names an audited state change.
type AuditAction string

const (
	AuditInvitationIssued   AuditAction = "invitation.issued"
	AuditInvitationReissued AuditAction = "invitation.reissued"
	AuditInvitationRedeemed AuditAction = "invitation.redeemed"
	AuditInvitationConsumed AuditAction = "invitation.consumed"
	AuditInvitationDeleted  AuditAction = "invitation.deleted"
	AuditSequenceAllocated  AuditAction = "sequence.allocated"
	AuditSequenceCreated    AuditAction = "sequence.created"
	AuditStatusChanged      AuditAction = "status.changed"
)

// AuditRecord is an append-only trail entry. Detail is a short free-form
// description (never secrets such as invitation codes).
type AuditRecord struct {
	ID         string      `json:"id"          gorm:"type:char(36);primaryKey"`
	ActorID    string      `json:"actor_id"    gorm:"type:varchar(64);not null;index"`
	Action     AuditAction `json:"action"      gorm:"type:varchar(40);not null"`
	EntityType string      `json:"entity_type" gorm:"type:varchar(40);not null;index:idx_audit_entity,priority:1"`
	EntityID   string      `json:"entity_id"   gorm:"type:varchar(64);not null;index:idx_audit_entity,priority:2"`
	Detail     string      `json:"detail"      gorm:"type:text"`
	CreatedAt  time.Time   `json:"created_at"  gorm:"index"`
}

// TableName returns the database table name for AuditRecord.
func (AuditRecord) TableName() string { return "audit_records" }
