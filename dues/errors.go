/*
errors.go - Centralized error types for the dues engine

ERROR CATEGORIES:
  1. Lookup errors - Missing clubs or configuration
  2. Validation errors - Malformed periods, due days, grants
  3. Write errors - Charge persistence failures

PROPAGATION RULES:
  Per-member and per-club errors are counted and logged by the sweeps;
  they never abort the surrounding loop. Enumeration errors (listing
  clubs or charges) are returned to the caller so the scheduler can
  retry the whole run. A full retry is safe because every write is
  keyed by ChargeKey.

SEE ALSO:
  - generator.go: Uses ChargeWriteError
  - store/sqlite/sqlite.go: Maps constraint violations to these errors
*/
package dues

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrClubNotFound is returned when a referenced club doesn't exist.
	ErrClubNotFound = errors.New("club not found")

	// ErrChargeNotFound is returned when a referenced charge doesn't exist.
	ErrChargeNotFound = errors.New("charge not found")

	// ErrInvalidDueDay is returned for due days outside 1..31.
	ErrInvalidDueDay = errors.New("invalid due day: must be between 1 and 31")

	// ErrInvalidPeriod is returned for malformed year/month values or ranges.
	ErrInvalidPeriod = errors.New("invalid period")

	// ErrInvalidGrant is returned when an exemption grant cannot be decoded.
	ErrInvalidGrant = errors.New("invalid exemption grant")

	// ErrDuplicateCharge is returned when a charge with the same key exists.
	ErrDuplicateCharge = errors.New("charge already exists for key")

	// ErrNoDueDate is returned for dues types with no due date rule (late fees).
	ErrNoDueDate = errors.New("dues type has no due date")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// ChargeWriteError wraps a failed charge write with its key.
type ChargeWriteError struct {
	Key ChargeKey
	Err error
}

func (e *ChargeWriteError) Error() string {
	return fmt.Sprintf("write charge %s: %v", e.Key, e.Err)
}

func (e *ChargeWriteError) Unwrap() error { return e.Err }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrClubNotFound) || errors.Is(err, ErrChargeNotFound)
}

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidDueDay) ||
		errors.Is(err, ErrInvalidPeriod) ||
		errors.Is(err, ErrInvalidGrant)
}
