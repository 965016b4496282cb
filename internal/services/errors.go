// Package services defines the business logic for invitations, accounts,
// topics, and sequenced work items. This file centralizes the service-level
// error taxonomy so that it is returned consistently by service methods and
// checked by callers with errors.Is / errors.As.
//
// Translation into user-facing messages or HTTP status codes is performed at
// the handler layer.
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

var (
	// ErrValidation marks missing or malformed input. Never retried.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound indicates that no matching invitation, account, topic, or
	// sequence data exists.
	ErrNotFound = errors.New("not found")

	// ErrExpired indicates a matched invitation whose validity window has
	// passed. The lazy transition to "expired" has already been applied.
	ErrExpired = errors.New("invitation expired")

	// ErrConflict indicates a concurrent claim (sequence, invitation, or
	// account) that the caller may resolve by re-fetching and retrying.
	ErrConflict = errors.New("conflict")

	// ErrPartialFailure marks an operation whose first half succeeded.
	// Callers receive it as a *PartialFailureError.
	ErrPartialFailure = errors.New("partial failure")

	// ErrUnauthorized is returned for bad login credentials.
	ErrUnauthorized = errors.New("invalid credentials")

	// ErrStore wraps unexpected persistence failures.
	ErrStore = errors.New("store failure")
)

// PartialFailureError reports that an account exists but a follow-up step
// (invitation consumption or profile update) did not complete. It is logged
// for manual reconciliation and must not be treated as a total failure.
type PartialFailureError struct {
	Step      string
	AccountID string
	Err       error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("partial failure at %s for account %s: %v", e.Step, e.AccountID, e.Err)
}

// Unwrap exposes both the taxonomy kind and the underlying cause.
func (e *PartialFailureError) Unwrap() []error {
	return []error{ErrPartialFailure, e.Err}
}

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func notFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

func conflictf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

// storeErr logs a persistence failure with the operation name and the
// identifiers involved, then wraps it as ErrStore.
func storeErr(ctx context.Context, op string, err error, ids map[string]string) error {
	ev := zerolog.Ctx(ctx).Error().Err(err).Str("op", op)
	for k, v := range ids {
		ev = ev.Str(k, v)
	}
	ev.Msg("store operation failed")
	return fmt.Errorf("%s: %w: %w", op, ErrStore, err)
}
