package allocation

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ValidationError reports a missing or malformed input field. Detected before
// any mutation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// NotFoundError reports an unknown request, batch or dispatch identity.
type NotFoundError struct {
	Kind string // "request", "batch" or "dispatch"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// InvalidStateError reports an operation that is not permitted in the
// record's current lifecycle state. No mutation is performed.
type InvalidStateError struct {
	Kind  string
	ID    string
	State string
	Op    string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s %s %s in state %s", e.Op, e.Kind, e.ID, e.State)
}

// InsufficientInventoryError reports a requested quantity that exceeds the
// batch remaining quantity.
type InsufficientInventoryError struct {
	BatchID   string
	Requested decimal.Decimal
	Remaining decimal.Decimal
}

func (e *InsufficientInventoryError) Error() string {
	return fmt.Sprintf("batch %s holds %s, requested %s",
		e.BatchID, e.Remaining, e.Requested)
}

// DependencyError reports a best-effort side channel failure, e.g. a
// notification that could not be delivered. It is logged and never fails the
// parent transaction.
type DependencyError struct {
	Op  string
	Err error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("dependency %s failed: %v", e.Op, e.Err)
}

func (e *DependencyError) Unwrap() error { return e.Err }
