// Package order holds the order lifecycle domain model: the status state
// machine, the per-line-item shopping resolution, and the Store contract
// every persistence backend must satisfy.
package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of an order. Orders only move forward through
// the fixed sequence new -> shopping -> delivering -> delivered.
type Status string

const (
	StatusNew        Status = "new"
	StatusShopping   Status = "shopping"
	StatusDelivering Status = "delivering"
	StatusDelivered  Status = "delivered"
)

// statusOrder maps each status to its position in the lifecycle sequence.
var statusOrder = map[Status]int{
	StatusNew:        0,
	StatusShopping:   1,
	StatusDelivering: 2,
	StatusDelivered:  3,
}

// Valid reports whether s is a known order status.
func (s Status) Valid() bool {
	_, ok := statusOrder[s]
	return ok
}

// Next returns the status that follows s in the lifecycle, and false when s
// is terminal or unknown.
func (s Status) Next() (Status, bool) {
	switch s {
	case StatusNew:
		return StatusShopping, true
	case StatusShopping:
		return StatusDelivering, true
	case StatusDelivering:
		return StatusDelivered, true
	default:
		return "", false
	}
}

// CanAdvanceTo reports whether a single transition from s to target is legal.
// Backward moves and skips are never legal.
func (s Status) CanAdvanceTo(target Status) bool {
	next, ok := s.Next()
	return ok && next == target
}

// SubstitutionPreference is the customer's fallback policy for a line item
// that turns out to be unavailable in store.
type SubstitutionPreference string

const (
	SubstitutionNone    SubstitutionPreference = "none"
	SubstitutionSimilar SubstitutionPreference = "similar"
	SubstitutionRefund  SubstitutionPreference = "refund"
)

// Valid reports whether p is a known substitution preference.
func (p SubstitutionPreference) Valid() bool {
	switch p {
	case SubstitutionNone, SubstitutionSimilar, SubstitutionRefund:
		return true
	}
	return false
}

// ResolutionStatus is the per-line-item outcome recorded by the driver while
// shopping an order.
type ResolutionStatus string

const (
	ResolutionPending     ResolutionStatus = "pending"
	ResolutionFound       ResolutionStatus = "found"
	ResolutionSubstituted ResolutionStatus = "substituted"
	ResolutionUnavailable ResolutionStatus = "unavailable"
)

// Valid reports whether r is a known resolution status.
func (r ResolutionStatus) Valid() bool {
	switch r {
	case ResolutionPending, ResolutionFound, ResolutionSubstituted, ResolutionUnavailable:
		return true
	}
	return false
}

// Resolution is the in-store outcome for one line item. SubstituteItem is
// operator-entered free text and is only present for substituted items; it is
// never validated against the catalog.
type Resolution struct {
	Status         ResolutionStatus
	SubstituteItem string
	Notes          string
}

// LineItem is one product line within an order. Price and name are copied
// from the catalog at checkout so later catalog edits do not rewrite history.
type LineItem struct {
	ID           string
	ProductID    string
	Name         string
	UnitPrice    decimal.Decimal
	Quantity     int
	Substitution SubstitutionPreference
	Resolution   Resolution
}

// Order is one customer purchase request in flight.
//
// Total is computed at creation and never recomputed, even when items are
// later substituted or unavailable; reconciliation is a downstream billing
// concern. ETA is a duration relative to the moment the order entered
// delivering, not an absolute timestamp.
type Order struct {
	ID             string
	CustomerID     string
	DriverID       string // empty until claimed, then immutable
	Items          []LineItem
	Status         Status
	Address        string
	DeliveryWindow string
	Total          decimal.Decimal
	CreatedAt      time.Time
	ETA            time.Duration // zero until the order enters delivering
}

// Item returns the line item with the given ID, or nil.
func (o *Order) Item(itemID string) *LineItem {
	for i := range o.Items {
		if o.Items[i].ID == itemID {
			return &o.Items[i]
		}
	}
	return nil
}

// AllResolved reports whether every line item has left the pending state.
// This is the gating predicate for the shopping -> delivering transition.
func (o *Order) AllResolved() bool {
	for i := range o.Items {
		if o.Items[i].Resolution.Status == ResolutionPending {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the order. Stores hand out clones so callers
// can never mutate shared state behind the store's back.
func (o *Order) Clone() *Order {
	c := *o
	c.Items = make([]LineItem, len(o.Items))
	copy(c.Items, o.Items)
	return &c
}

// Filter narrows a Store.List call. Zero-valued fields are ignored.
type Filter struct {
	Status     Status
	DriverID   string
	CustomerID string
}

// Matches reports whether o satisfies every set field of the filter.
func (f Filter) Matches(o *Order) bool {
	if f.Status != "" && o.Status != f.Status {
		return false
	}
	if f.DriverID != "" && o.DriverID != f.DriverID {
		return false
	}
	if f.CustomerID != "" && o.CustomerID != f.CustomerID {
		return false
	}
	return true
}

// StatusCounts is the number of orders per status, as served by the admin
// dashboard snapshot.
type StatusCounts map[Status]int

// Store is the authoritative order collection. It is the only shared mutable
// resource in the core: every write funnels through ApplyTransition, which
// gives at-most-one-winner semantics per expected-status check.
type Store interface {
	// Create persists a new order. The order ID must be unique.
	Create(ctx context.Context, o *Order) error

	// Get returns the order with the given ID, or ErrNotFound.
	Get(ctx context.Context, id string) (*Order, error)

	// List returns orders matching the filter, most recent first. The result
	// is a consistent snapshot within one call.
	List(ctx context.Context, f Filter) ([]Order, error)

	// ApplyTransition atomically checks that the order's status equals
	// expected, applies mutate to a copy, and persists the result. The
	// precondition check and the write happen as one unit: no second caller
	// can interleave between them. On a status mismatch it returns
	// *StatusConflictError and the order is untouched; if mutate returns an
	// error nothing is persisted and that error is returned as-is.
	ApplyTransition(ctx context.Context, id string, expected Status, mutate func(*Order) error) (*Order, error)
}
