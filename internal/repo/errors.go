package repo

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound so callers can check either.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrDuplicate indicates that an insert tripped a unique constraint.
var ErrDuplicate = errors.New("duplicate")

// IsDuplicate detects unique-constraint violations across drivers that may
// not map to gorm.ErrDuplicatedKey.
//
// SQLite (glebarez) reports "UNIQUE constraint failed"; Postgres reports
// "duplicate key value violates unique constraint" (SQLSTATE 23505).
func IsDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDuplicate) || errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint") ||
		strings.Contains(low, "constraint failed: unique") ||
		strings.Contains(low, "duplicate key") ||
		strings.Contains(low, "sqlstate 23505")
}

// mapCreateErr turns a unique violation into ErrDuplicate and leaves other
// errors untouched.
func mapCreateErr(err error) error {
	if err != nil && IsDuplicate(err) {
		return ErrDuplicate
	}
	return err
}
