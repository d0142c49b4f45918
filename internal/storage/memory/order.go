// Package memory provides in-process store implementations with the same
// atomicity contract as the PostgreSQL backends. Used by unit tests and the
// local development mode.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/islandgrocer/islandgrocer/internal/domain/order"
)

var _ order.Store = (*OrderStore)(nil)

// OrderStore keeps orders in a mutex-guarded map. Reads hand out deep copies
// and writes go through ApplyTransition's check-then-mutate under the lock,
// so the expected-status precondition and the write are a single atomic unit
// exactly like the SELECT FOR UPDATE transaction in the PostgreSQL store.
type OrderStore struct {
	mu     sync.RWMutex
	orders map[string]*order.Order
}

// NewOrderStore returns an empty in-memory order store.
func NewOrderStore() *OrderStore {
	return &OrderStore{orders: make(map[string]*order.Order)}
}

// Create persists a new order.
func (s *OrderStore) Create(_ context.Context, o *order.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[o.ID]; ok {
		return order.ErrAlreadyExists
	}
	s.orders[o.ID] = o.Clone()
	return nil
}

// Get returns a copy of the order with the given ID.
func (s *OrderStore) Get(_ context.Context, id string) (*order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return o.Clone(), nil
}

// List returns copies of all orders matching the filter, most recent first.
// The snapshot is taken under one lock acquisition, so two back-to-back
// calls with no intervening writes return identical results.
func (s *OrderStore) List(_ context.Context, f order.Filter) ([]order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]order.Order, 0, len(s.orders))
	for _, o := range s.orders {
		if f.Matches(o) {
			out = append(out, *o.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID // stable order for equal timestamps
	})
	return out, nil
}

// ApplyTransition implements the optimistic-concurrency write primitive.
// mutate runs against a private copy; nothing is visible to other callers
// unless it returns nil.
func (s *OrderStore) ApplyTransition(_ context.Context, id string, expected order.Status, mutate func(*order.Order) error) (*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	if cur.Status != expected {
		return nil, &order.StatusConflictError{Expected: expected, Current: cur.Status}
	}

	next := cur.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	s.orders[id] = next
	return next.Clone(), nil
}
