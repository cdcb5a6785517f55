// Package apperrors defines the error taxonomy shared by the stores and
// the HTTP layer, so handlers can map failures to 400/404/500/503 without
// string matching.
package apperrors

import (
	"fmt"
	"strings"
)

// ValidationError reports every violated rule for an entity, not just the
// first one. A validation failure never leaves a partial write behind.
type ValidationError struct {
	EntityID   string
	Violations []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %q: %s", e.EntityID, strings.Join(e.Violations, "; "))
}

// NotFoundError distinguishes a missing entity from an infrastructure
// failure so the HTTP layer can answer 404 instead of 500.
type NotFoundError struct {
	EntityType string
	EntityID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.EntityType, e.EntityID)
}

// IOError wraps a filesystem read or write failure on a primary data path.
type IOError struct {
	Path string
	Op   string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// StoreUnavailableError means the key-value backend failed its health
// check or refused the operation. Read paths fall back to JSON; write
// paths surface it.
type StoreUnavailableError struct {
	Reason string
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("key-value store unavailable: %s", e.Reason)
}
