// Package domain defines the persistence models for invitations, accounts,
// topics, sequenced work items (expressions and petitions), and the audit
// trail. These types are mapped with GORM and shared across the repository,
// service, and HTTP layers.
package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// InvitationStatus is the lifecycle state of an invitation row.
type InvitationStatus string

const (
	InvitationPending InvitationStatus = "pending"
	InvitationUsed    InvitationStatus = "used"
	InvitationExpired InvitationStatus = "expired"
)

// Valid reports whether s is one of the known statuses.
func (s InvitationStatus) Valid() bool {
	switch s {
	case InvitationPending, InvitationUsed, InvitationExpired:
		return true
	}
	return false
}

// Account roles.
const (
	RoleAdmin = "admin"
	RoleStaff = "staff"
	RoleUser  = "user"
)

// ValidRole reports whether r is an assignable account role.
func ValidRole(r string) bool {
	switch r {
	case RoleAdmin, RoleStaff, RoleUser:
		return true
	}
	return false
}

// Invitation is a single-use, time-limited numeric code that lets the holder
// of Email create an account. Only one row exists per email; reissuing
// overwrites it.
//
// Fields:
//   - Email: normalized (trimmed, lower-cased); unique.
//   - InvitationCode: fixed-width numeric string, first digit non-zero.
//     Codes are not unique across emails; lookups always pair them with Email.
//   - Role: role granted to the redeeming account (defaults to "user").
//   - Status: pending | used | expired. Expiry is applied lazily on read.
//   - UsedAt / UsedBy: set when the invitation is redeemed.
type Invitation struct {
	ID             string           `json:"id"              gorm:"type:char(36);primaryKey"`
	Email          string           `json:"email"           gorm:"type:varchar(254);not null;uniqueIndex:ux_invitations_email"`
	InvitationCode string           `json:"invitation_code" gorm:"type:varchar(12);not null;index:idx_invitations_code"`
	GivenName      string           `json:"given_name"      gorm:"type:varchar(120);not null"`
	FamilyName     string           `json:"family_name"     gorm:"type:varchar(120)"`
	Role           string           `json:"role"            gorm:"type:varchar(16);not null;default:'user'"`
	CreatedBy      string           `json:"created_by"      gorm:"type:varchar(64);not null"`
	ExpiresAt      time.Time        `json:"expires_at"      gorm:"not null"`
	Status         InvitationStatus `json:"status"          gorm:"type:varchar(16);not null;default:'pending';index;check:status IN ('pending','used','expired')"`
	UsedAt         *time.Time       `json:"used_at,omitempty"`
	UsedBy         *string          `json:"used_by,omitempty" gorm:"type:varchar(64)"`
	CreatedAt      time.Time        `json:"created_at"      gorm:"index"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// TableName returns the database table name for Invitation.
func (Invitation) TableName() string { return "invitations" }

// IsExpired reports whether the invitation's validity window has passed at now.
func (i *Invitation) IsExpired(now time.Time) bool {
	return i.ExpiresAt.Before(now)
}

// ErrInvalidInvitation is returned by NewInvitation when required fields are missing.
var ErrInvalidInvitation = errors.New("invalid invitation")

// NewInvitation validates and normalizes the caller-supplied fields of an
// invitation. Identity, code, and timestamps are filled in by the service.
func NewInvitation(email, givenName, familyName, role, createdBy string) (*Invitation, error) {
	email = NormalizeEmail(email)
	givenName = strings.TrimSpace(givenName)
	role = strings.ToLower(strings.TrimSpace(role))
	if role == "" {
		role = RoleUser
	}
	switch {
	case email == "":
		return nil, fmt.Errorf("%w: email is required", ErrInvalidInvitation)
	case !strings.Contains(email, "@"):
		return nil, fmt.Errorf("%w: email is malformed", ErrInvalidInvitation)
	case givenName == "":
		return nil, fmt.Errorf("%w: given name is required", ErrInvalidInvitation)
	case !ValidRole(role):
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInvitation, role)
	}
	return &Invitation{
		Email:      email,
		GivenName:  givenName,
		FamilyName: strings.TrimSpace(familyName),
		Role:       role,
		CreatedBy:  createdBy,
		Status:     InvitationPending,
	}, nil
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Profile is an account able to sign in. Staff accounts issue invitations;
// self-registered accounts receive their role and names from the invitation
// they redeemed.
type Profile struct {
	ID           string    `json:"id"          gorm:"type:char(36);primaryKey"`
	Email        string    `json:"email"       gorm:"type:varchar(254);not null;uniqueIndex:ux_profiles_email"`
	PasswordHash string    `json:"-"           gorm:"type:varchar(100);not null"`
	GivenName    string    `json:"given_name"  gorm:"type:varchar(120)"`
	FamilyName   string    `json:"family_name" gorm:"type:varchar(120)"`
	Role         string    `json:"role"        gorm:"type:varchar(16);not null;default:'user'"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName returns the database table name for Profile.
func (Profile) TableName() string { return "profiles" }

// Topic classifies expressions and petitions. Abbreviation is the suffix of
// the human-readable numero (e.g. "RNAR" in 2024-0003-RNAR).
type Topic struct {
	ID           string    `json:"id"           gorm:"type:char(36);primaryKey"`
	Name         string    `json:"name"         gorm:"type:varchar(200);not null;uniqueIndex:ux_topics_name"`
	Abbreviation string    `json:"abbreviation" gorm:"type:varchar(12)"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName returns the database table name for Topic.
func (Topic) TableName() string { return "topics" }
