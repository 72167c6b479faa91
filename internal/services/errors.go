// Package services defines the business logic for lead ownership transfer,
// notification dispatch, and due-item scheduling. This file centralizes the
// service-level error taxonomy so methods return consistent sentinels and
// callers branch with errors.Is.
//
// Translation into user-facing messages or HTTP status codes is performed at
// the handler layer.
package services

import (
	"errors"
	"fmt"
)

// Error taxonomy. Conflict and NotFound carry a specific reason when wrapped
// via the helpers below; errors.Is still matches the sentinel.
var (
	// ErrConflict indicates the operation lost to existing state: a duplicate
	// pending transfer, a stale transition attempt, a self-transfer, or an
	// inactive target.
	ErrConflict = errors.New("conflict")

	// ErrNotFound indicates an unknown request, lead, due item, or recipient,
	// or a settle attempt by a principal the request is not addressed to.
	ErrNotFound = errors.New("not found")

	// ErrValidation indicates malformed input: a missing field, a bad due
	// date, an unknown kind.
	ErrValidation = errors.New("validation failed")

	// ErrTransientStore indicates the persistent store was unreachable; the
	// caller may retry the same call safely (all transitions are CAS-based).
	ErrTransientStore = errors.New("store unavailable")
)

// conflictf wraps ErrConflict with a specific reason.
func conflictf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrConflict}, args...)...)
}

// validationf wraps ErrValidation with a specific reason.
func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrValidation}, args...)...)
}
