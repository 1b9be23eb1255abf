/*
errors.go - Centralized error types for the reporting engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Store, ingest and API layers wrap these with context.

ERROR CATEGORIES:
  1. Request errors - Invalid month, unknown report
  2. Import errors  - Upstream fetch failures, empty batches, write failures
  3. Lookup errors  - Missing orders or officers

WHAT IS NOT AN ERROR:
  Unresolvable classification input (unknown suffix, unmapped officer,
  unknown order type) resolves to a sentinel value. Missing revenue is zero.
  Ratios and projections over zero denominators are zero. Anomalies are
  surfaced by the discrepancy battery instead.

SEE ALSO:
  - ingest/service.go: Wraps import failures in ImportError
  - api/handlers.go: Maps errors to HTTP status codes
*/
package engine

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidMonth is returned for a month/year outside the calendar or a
	// malformed YYYY-MM key.
	ErrInvalidMonth = errors.New("invalid month")

	// ErrUnknownReport is returned when a report name is not registered.
	ErrUnknownReport = errors.New("unknown report")

	// ErrFetchFailed is returned when the production system cannot be read
	// or returns a non-success envelope.
	ErrFetchFailed = errors.New("fetch from production system failed")

	// ErrEmptyImport is returned when an import batch has no usable rows.
	ErrEmptyImport = errors.New("import contains no rows")

	// ErrNotFound is returned when a referenced row doesn't exist.
	ErrNotFound = errors.New("not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ImportKind identifies the batch type being imported.
type ImportKind string

const (
	ImportRevenue    ImportKind = "revenue"
	ImportOpenOrders ImportKind = "open_orders"
)

// ImportError reports a failed month import. The month's previous data is
// left untouched.
type ImportError struct {
	Kind  ImportKind
	Month string
	Err   error
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("%s import for %s failed: %v", e.Kind, e.Month, e.Err)
}

func (e *ImportError) Unwrap() error { return e.Err }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidMonth) || errors.Is(err, ErrEmptyImport)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrUnknownReport)
}

// IsUpstream returns true if the error came from the production system.
func IsUpstream(err error) bool {
	return errors.Is(err, ErrFetchFailed)
}
