package order

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Sentinel errors surfaced by the Store and Service.
var (
	// ErrNotFound is returned when the referenced order does not exist.
	ErrNotFound = errors.New("order not found")

	// ErrAlreadyExists is returned by Create on a duplicate order ID.
	ErrAlreadyExists = errors.New("order already exists")

	// ErrItemNotFound is returned when the referenced line item does not
	// belong to the order.
	ErrItemNotFound = errors.New("line item not found")

	// ErrAlreadyClaimed is returned when a driver tries to claim an order
	// another driver has already taken. Callers should drop the order from
	// their available list and refresh, not retry the claim.
	ErrAlreadyClaimed = errors.New("order already claimed by another driver")

	// ErrItemsUnresolved rejects a shopping -> delivering transition while
	// any line item is still pending. The driver resolves the remaining
	// items and retries; this is workflow continuation, not a failure.
	ErrItemsUnresolved = errors.New("all items must be resolved before starting delivery")

	// ErrNotAssignedDriver is returned when a driver operates on an order
	// that is assigned to somebody else.
	ErrNotAssignedDriver = errors.New("order is assigned to a different driver")

	// ErrEmptyItems rejects order placement without line items.
	ErrEmptyItems = errors.New("items required")

	// ErrSubstituteRequired rejects a substituted resolution that does not
	// name the substitute item.
	ErrSubstituteRequired = errors.New("substitute description required")
)

// StatusConflictError is returned by Store.ApplyTransition when the order's
// status no longer matches the caller's expectation: the order changed
// between the caller's last read and this write. Callers must re-fetch and
// decide; a blind retry could apply a stale decision.
type StatusConflictError struct {
	Expected Status
	Current  Status
}

func (e *StatusConflictError) Error() string {
	return fmt.Sprintf("order status is %q, expected %q", e.Current, e.Expected)
}

// InvalidTransitionError indicates an attempted move that the state machine
// does not allow from the order's current status.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot transition order from %q to %q", e.From, e.To)
}

// InvalidQuantityError indicates a line item with a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

// ValidationError indicates malformed input rejected before touching the
// store.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
