package domain

import (
	"fmt"
	"time"
)

// Kind names a family of sequenced work items. Each kind keeps its own
// yearly sequence space.
type Kind string

const (
	KindExpression Kind = "expressions"
	KindPetition   Kind = "petitions"
)

// ParseKind maps a path segment to a Kind.
func ParseKind(s string) (Kind, bool) {
	switch Kind(s) {
	case KindExpression, KindPetition:
		return Kind(s), true
	}
	return "", false
}

// WorkStatus is the processing stage of an expression or petition.
type WorkStatus string

const (
	StatusReceived   WorkStatus = "received"
	StatusAssigned   WorkStatus = "assigned"
	StatusDispatched WorkStatus = "dispatched"
)

// CanAdvanceTo reports whether a work item may move from s to next.
// Items only move forward, one stage at a time.
func (s WorkStatus) CanAdvanceTo(next WorkStatus) bool {
	switch s {
	case StatusReceived:
		return next == StatusAssigned
	case StatusAssigned:
		return next == StatusDispatched
	}
	return false
}

// FormatNumero renders the display identifier of a sequenced item:
// "{year}-{sequence zero-padded to 4}-{abbreviation}".
func FormatNumero(year, sequence int, abbreviation string) string {
	return fmt.Sprintf("%d-%04d-%s", year, sequence, abbreviation)
}

// Expression is a citizen-submitted input tracked from reception to dispatch.
// (year, sequence) is unique; Numero is derived from it and the topic.
type Expression struct {
	ID         string     `json:"id"          gorm:"type:char(36);primaryKey"`
	Year       int        `json:"year"        gorm:"not null;uniqueIndex:ux_expressions_year_seq,priority:1"`
	Sequence   int        `json:"sequence"    gorm:"not null;uniqueIndex:ux_expressions_year_seq,priority:2;check:sequence > 0"`
	Numero     string     `json:"numero"      gorm:"type:varchar(40);not null"`
	TopicID    string     `json:"topic_id"    gorm:"type:char(36);not null;index"`
	Subject    string     `json:"subject"     gorm:"type:varchar(500)"`
	Status     WorkStatus `json:"status"      gorm:"type:varchar(16);not null;default:'received'"`
	AssignedTo *string    `json:"assigned_to,omitempty" gorm:"type:varchar(64)"`
	CreatedBy  string     `json:"created_by"  gorm:"type:varchar(64);not null"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// TableName returns the database table name for Expression.
func (Expression) TableName() string { return string(KindExpression) }

// Petition is an internal work item numbered the same way as Expression.
type Petition struct {
	ID         string     `json:"id"          gorm:"type:char(36);primaryKey"`
	Year       int        `json:"year"        gorm:"not null;uniqueIndex:ux_petitions_year_seq,priority:1"`
	Sequence   int        `json:"sequence"    gorm:"not null;uniqueIndex:ux_petitions_year_seq,priority:2;check:sequence > 0"`
	Numero     string     `json:"numero"      gorm:"type:varchar(40);not null"`
	TopicID    string     `json:"topic_id"    gorm:"type:char(36);not null;index"`
	Subject    string     `json:"subject"     gorm:"type:varchar(500)"`
	Status     WorkStatus `json:"status"      gorm:"type:varchar(16);not null;default:'received'"`
	AssignedTo *string    `json:"assigned_to,omitempty" gorm:"type:varchar(64)"`
	CreatedBy  string     `json:"created_by"  gorm:"type:varchar(64);not null"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// TableName returns the database table name for Petition.
func (Petition) TableName() string { return string(KindPetition) }

// WorkItem is the kind-independent view of an expression or petition.
type WorkItem struct {
	ID         string     `json:"id"`
	Kind       Kind       `json:"kind"`
	Year       int        `json:"year"`
	Sequence   int        `json:"sequence"`
	Numero     string     `json:"numero"`
	TopicID    string     `json:"topic_id"`
	Subject    string     `json:"subject"`
	Status     WorkStatus `json:"status"`
	AssignedTo *string    `json:"assigned_to,omitempty"`
	CreatedBy  string     `json:"created_by"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Row returns the GORM model backing item for its kind.
func (w WorkItem) Row() any {
	switch w.Kind {
	case KindPetition:
		return &Petition{
			ID: w.ID, Year: w.Year, Sequence: w.Sequence, Numero: w.Numero,
			TopicID: w.TopicID, Subject: w.Subject, Status: w.Status,
			AssignedTo: w.AssignedTo, CreatedBy: w.CreatedBy, CreatedAt: w.CreatedAt,
		}
	default:
		return &Expression{
			ID: w.ID, Year: w.Year, Sequence: w.Sequence, Numero: w.Numero,
			TopicID: w.TopicID, Subject: w.Subject, Status: w.Status,
			AssignedTo: w.AssignedTo, CreatedBy: w.CreatedBy, CreatedAt: w.CreatedAt,
		}
	}
}

// Model returns an empty GORM model for kind, suitable for db.Model(...).
func (k Kind) Model() any {
	if k == KindPetition {
		return &Petition{}
	}
	return &Expression{}
}
