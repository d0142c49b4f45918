package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/islandgrocer/islandgrocer/internal/domain/product"
)

// DefaultETA is assigned when an order enters delivering and no other
// estimate is configured. Matches the fixed 15-minute estimate the driver
// app has always shown.
const DefaultETA = 15 * time.Minute

// PlaceOrderItem is one requested line in a checkout.
type PlaceOrderItem struct {
	ProductID    string
	Quantity     int
	Substitution SubstitutionPreference
}

// PlaceOrderRequest holds the checkout input handed over by the cart
// collaborator. The core does not validate address format or cart pricing.
type PlaceOrderRequest struct {
	CustomerID     string
	Address        string
	DeliveryWindow string
	Items          []PlaceOrderItem
}

// ResolutionUpdate is the driver's in-store outcome for one line item.
type ResolutionUpdate struct {
	Status         ResolutionStatus
	SubstituteItem string
	Notes          string
}

// Service drives the order lifecycle. Every status change goes through
// Store.ApplyTransition with an explicit expected status, so concurrent
// callers serialize per order and at most one of them wins each transition.
type Service struct {
	store    Store
	products product.Repository
	eta      time.Duration

	// overridable in tests
	now   func() time.Time
	newID func() string
}

// NewService creates an order Service. eta is the estimate assigned on the
// shopping -> delivering transition; zero selects DefaultETA.
func NewService(store Store, products product.Repository, eta time.Duration) *Service {
	if eta <= 0 {
		eta = DefaultETA
	}
	return &Service{
		store:    store,
		products: products,
		eta:      eta,
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
	}
}

// PlaceOrder validates the checkout request, snapshots catalog prices into
// line items, computes the locked total, and persists the order in status
// new with no driver.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*Order, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}
	if req.CustomerID == "" {
		return nil, &ValidationError{Field: "customerId", Reason: "required"}
	}
	if req.Address == "" {
		return nil, &ValidationError{Field: "address", Reason: "required"}
	}

	ids := make([]string, len(req.Items))
	for i, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: item.ProductID}
		}
		if item.Substitution != "" && !item.Substitution.Valid() {
			return nil, &ValidationError{Field: "substitution", Reason: "unknown preference"}
		}
		ids[i] = item.ProductID
	}

	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	byID := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	items := make([]LineItem, len(req.Items))
	total := decimal.Zero
	for i, item := range req.Items {
		p, ok := byID[item.ProductID]
		if !ok {
			return nil, &product.NotFoundError{ProductID: item.ProductID}
		}

		pref := item.Substitution
		if pref == "" {
			pref = SubstitutionNone
		}

		items[i] = LineItem{
			ID:           s.newID(),
			ProductID:    p.ID,
			Name:         p.Name,
			UnitPrice:    p.Price,
			Quantity:     item.Quantity,
			Substitution: pref,
			Resolution:   Resolution{Status: ResolutionPending},
		}
		total = total.Add(p.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}

	window := req.DeliveryWindow
	if window == "" {
		window = "ASAP"
	}

	o := &Order{
		ID:             s.newID(),
		CustomerID:     req.CustomerID,
		Items:          items,
		Status:         StatusNew,
		Address:        req.Address,
		DeliveryWindow: window,
		Total:          total.Round(2),
		CreatedAt:      s.now().UTC(),
	}
	if err := s.store.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}
	return o, nil
}

// Claim lets a driver take ownership of an unclaimed order and start
// shopping it in one atomic step. Only the first concurrent caller that
// still observes status new succeeds; everyone else gets ErrAlreadyClaimed
// and should refresh their list of available orders.
func (s *Service) Claim(ctx context.Context, orderID, driverID string) (*Order, error) {
	if driverID == "" {
		return nil, &ValidationError{Field: "driverId", Reason: "required"}
	}

	o, err := s.store.ApplyTransition(ctx, orderID, StatusNew, func(o *Order) error {
		if o.DriverID != "" && o.DriverID != driverID {
			return ErrAlreadyClaimed
		}
		o.DriverID = driverID
		o.Status = StatusShopping
		return nil
	})
	if err != nil {
		var conflict *StatusConflictError
		if errors.As(err, &conflict) {
			return nil, ErrAlreadyClaimed
		}
		return nil, err
	}
	return o, nil
}

// ResolveItem records the in-store outcome for one line item of an order the
// driver is currently shopping. Input is validated before the store is
// touched; the write itself runs under the shopping-status precondition so
// the resolution set is always read atomically with the delivery gate.
func (s *Service) ResolveItem(ctx context.Context, orderID, itemID, driverID string, upd ResolutionUpdate) (*Order, error) {
	switch upd.Status {
	case ResolutionFound, ResolutionSubstituted, ResolutionUnavailable:
	case ResolutionPending:
		return nil, &ValidationError{Field: "status", Reason: "cannot resolve an item back to pending"}
	default:
		return nil, &ValidationError{Field: "status", Reason: "unknown resolution status"}
	}
	if upd.Status == ResolutionSubstituted && upd.SubstituteItem == "" {
		return nil, ErrSubstituteRequired
	}

	return s.store.ApplyTransition(ctx, orderID, StatusShopping, func(o *Order) error {
		if driverID != "" && o.DriverID != driverID {
			return ErrNotAssignedDriver
		}
		item := o.Item(itemID)
		if item == nil {
			return ErrItemNotFound
		}
		item.Resolution = Resolution{
			Status:         upd.Status,
			SubstituteItem: upd.SubstituteItem,
			Notes:          upd.Notes,
		}
		// The substitution preference is deliberately not applied here:
		// refund/drop reconciliation belongs to the billing collaborator.
		return nil
	})
}

// StartDelivery moves an order from shopping to delivering. It fails with
// ErrItemsUnresolved while any line item is still pending; the driver
// resolves the rest and calls again. The ETA is set exactly here and nowhere
// else.
func (s *Service) StartDelivery(ctx context.Context, orderID, driverID string) (*Order, error) {
	o, err := s.store.ApplyTransition(ctx, orderID, StatusShopping, func(o *Order) error {
		if driverID != "" && o.DriverID != driverID {
			return ErrNotAssignedDriver
		}
		if !o.AllResolved() {
			return ErrItemsUnresolved
		}
		o.Status = StatusDelivering
		o.ETA = s.eta
		return nil
	})
	if err != nil {
		var conflict *StatusConflictError
		if errors.As(err, &conflict) {
			return nil, &InvalidTransitionError{From: conflict.Current, To: StatusDelivering}
		}
		return nil, err
	}
	return o, nil
}

// CompleteDelivery moves an order from delivering to its terminal delivered
// state. The ETA set on delivery start is left untouched.
func (s *Service) CompleteDelivery(ctx context.Context, orderID, driverID string) (*Order, error) {
	o, err := s.store.ApplyTransition(ctx, orderID, StatusDelivering, func(o *Order) error {
		if driverID != "" && o.DriverID != driverID {
			return ErrNotAssignedDriver
		}
		o.Status = StatusDelivered
		return nil
	})
	if err != nil {
		var conflict *StatusConflictError
		if errors.As(err, &conflict) {
			return nil, &InvalidTransitionError{From: conflict.Current, To: StatusDelivered}
		}
		return nil, err
	}
	return o, nil
}

// Get returns one order by ID.
func (s *Service) Get(ctx context.Context, orderID string) (*Order, error) {
	return s.store.Get(ctx, orderID)
}

// List returns orders matching the filter, most recent first.
func (s *Service) List(ctx context.Context, f Filter) ([]Order, error) {
	return s.store.List(ctx, f)
}

// CountByStatus aggregates the current number of orders in each lifecycle
// state. The admin dashboard polls this through a snapshot subscription.
func (s *Service) CountByStatus(ctx context.Context) (StatusCounts, error) {
	all, err := s.store.List(ctx, Filter{})
	if err != nil {
		return nil, err
	}
	counts := StatusCounts{
		StatusNew:        0,
		StatusShopping:   0,
		StatusDelivering: 0,
		StatusDelivered:  0,
	}
	for i := range all {
		counts[all[i].Status]++
	}
	return counts, nil
}
