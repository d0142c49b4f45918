package order_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/islandgrocer/islandgrocer/internal/domain/order"
	"github.com/islandgrocer/islandgrocer/internal/domain/product"
	"github.com/islandgrocer/islandgrocer/internal/storage/memory"
)

// --- Mock implementations ---

type mockProductRepo struct {
	byID   map[string]*product.Product
	getErr error
}

func (m *mockProductRepo) List(_ context.Context, _ product.ListFilter) ([]product.Product, error) {
	return nil, nil
}

func (m *mockProductRepo) GetByID(_ context.Context, id string) (*product.Product, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	p, ok := m.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return p, nil
}

func (m *mockProductRepo) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	var out []product.Product
	for _, id := range ids {
		if p, ok := m.byID[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

// --- Helpers ---

func newTestProduct(id, name string, price decimal.Decimal) product.Product {
	return product.Product{
		ID:       id,
		Name:     name,
		Price:    price,
		Category: "test",
		InStock:  true,
	}
}

func newProductRepo(products ...product.Product) *mockProductRepo {
	byID := make(map[string]*product.Product, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}
	return &mockProductRepo{byID: byID}
}

func newTestService(products ...product.Product) (*order.Service, *memory.OrderStore) {
	store := memory.NewOrderStore()
	return order.NewService(store, newProductRepo(products...), 0), store
}

// placeTestOrder creates an order with two lines for customer c1.
func placeTestOrder(t *testing.T, svc *order.Service) *order.Order {
	t.Helper()

	o, err := svc.PlaceOrder(context.Background(), order.PlaceOrderRequest{
		CustomerID: "c1",
		Address:    "12 Shore Rd",
		Items: []order.PlaceOrderItem{
			{ProductID: "p1", Quantity: 2},
			{ProductID: "p2", Quantity: 1, Substitution: order.SubstitutionSimilar},
		},
	})
	require.NoError(t, err)
	return o
}

func defaultProducts() []product.Product {
	return []product.Product{
		newTestProduct("p1", "Fresh Bananas", decimal.RequireFromString("2.99")),
		newTestProduct("p2", "Whole Milk", decimal.RequireFromString("4.50")),
	}
}

// --- PlaceOrder ---

func TestPlaceOrder_EmptyItems(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.PlaceOrder(context.Background(), order.PlaceOrderRequest{
		CustomerID: "c1",
		Address:    "12 Shore Rd",
	})
	require.ErrorIs(t, err, order.ErrEmptyItems)
}

func TestPlaceOrder_MissingAddress(t *testing.T) {
	svc, _ := newTestService(defaultProducts()...)

	_, err := svc.PlaceOrder(context.Background(), order.PlaceOrderRequest{
		CustomerID: "c1",
		Items:      []order.PlaceOrderItem{{ProductID: "p1", Quantity: 1}},
	})

	var vErr *order.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "address", vErr.Field)
}

func TestPlaceOrder_InvalidQuantity(t *testing.T) {
	svc, _ := newTestService(defaultProducts()...)

	_, err := svc.PlaceOrder(context.Background(), order.PlaceOrderRequest{
		CustomerID: "c1",
		Address:    "12 Shore Rd",
		Items:      []order.PlaceOrderItem{{ProductID: "p1", Quantity: 0}},
	})

	var iqErr *order.InvalidQuantityError
	require.ErrorAs(t, err, &iqErr)
	assert.Equal(t, "p1", iqErr.ProductID)
}

func TestPlaceOrder_ProductNotFound(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.PlaceOrder(context.Background(), order.PlaceOrderRequest{
		CustomerID: "c1",
		Address:    "12 Shore Rd",
		Items:      []order.PlaceOrderItem{{ProductID: "missing", Quantity: 1}},
	})

	var pnfErr *product.NotFoundError
	require.ErrorAs(t, err, &pnfErr)
	assert.Equal(t, "missing", pnfErr.ProductID)
}

func TestPlaceOrder_Success(t *testing.T) {
	svc, _ := newTestService(defaultProducts()...)

	o := placeTestOrder(t, svc)

	assert.Equal(t, order.StatusNew, o.Status)
	assert.Empty(t, o.DriverID)
	assert.Equal(t, "ASAP", o.DeliveryWindow)
	assert.Zero(t, o.ETA)

	// 2 * 2.99 + 4.50 = 10.48, locked at checkout.
	assert.True(t, decimal.RequireFromString("10.48").Equal(o.Total))

	require.Len(t, o.Items, 2)
	for _, item := range o.Items {
		assert.Equal(t, order.ResolutionPending, item.Resolution.Status)
	}
	// Price and name are snapshots of the catalog.
	assert.Equal(t, "Fresh Bananas", o.Items[0].Name)
	assert.True(t, decimal.RequireFromString("2.99").Equal(o.Items[0].UnitPrice))
	assert.Equal(t, order.SubstitutionNone, o.Items[0].Substitution)
	assert.Equal(t, order.SubstitutionSimilar, o.Items[1].Substitution)
}

// --- Claim ---

func TestClaim_Success(t *testing.T) {
	svc, _ := newTestService(defaultProducts()...)
	o := placeTestOrder(t, svc)

	claimed, err := svc.Claim(context.Background(), o.ID, "d1")
	require.NoError(t, err)

	// Assignment and shopping start are one atomic step.
	assert.Equal(t, "d1", claimed.DriverID)
	assert.Equal(t, order.StatusShopping, claimed.Status)
}

func TestClaim_AlreadyClaimed(t *testing.T) {
	svc, _ := newTestService(defaultProducts()...)
	o := placeTestOrder(t, svc)

	_, err := svc.Claim(context.Background(), o.ID, "d1")
	require.NoError(t, err)

	_, err = svc.Claim(context.Background(), o.ID, "d2")
	require.ErrorIs(t, err, order.ErrAlreadyClaimed)

	// The loser's attempt must not have changed anything.
	got, err := svc.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, "d1", got.DriverID)
	assert.Equal(t, order.StatusShopping, got.Status)
}

func TestClaim_NotFound(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.Claim(context.Background(), "missing", "d1")
	require.ErrorIs(t, err, order.ErrNotFound)
}

func TestClaim_ConcurrentSingleWinner(t *testing.T) {
	svc, _ := newTestService(defaultProducts()...)
	o := placeTestOrder(t, svc)

	const drivers = 16
	var wins, losses atomic.Int32

	var g errgroup.Group
	for i := 0; i < drivers; i++ {
		driverID := "driver-" + string(rune('a'+i))
		g.Go(func() error {
			_, err := svc.Claim(context.Background(), o.ID, driverID)
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, order.ErrAlreadyClaimed):
				losses.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(drivers-1), losses.Load())

	got, err := svc.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusShopping, got.Status)
	assert.NotEmpty(t, got.DriverID)
}

// --- ResolveItem ---

func TestResolveItem_Found(t *testing.T) {
	svc, _ := newTestService(defaultProducts()...)
	o := placeTestOrder(t, svc)
	_, err := svc.Claim(context.Background(), o.ID, "d1")
	require.NoError(t, err)

	got, err := svc.ResolveItem(context.Background(), o.ID, o.Items[0].ID, "d1",
		order.ResolutionUpdate{Status: order.ResolutionFound})
	require.NoError(t, err)

	assert.Equal(t, order.ResolutionFound, got.Items[0].Resolution.Status)
	assert.Equal(t, order.ResolutionPending, got.Items[1].Resolution.Status)
}

func TestResolveItem_SubstitutedRequiresDescription(t *testing.T) {
	svc, store := newTestService(defaultProducts()...)
	o := placeTestOrder(t, svc)
	_, err := svc.Claim(context.Background(), o.ID, "d1")
	require.NoError(t, err)

	_, err = svc.ResolveItem(context.Background(), o.ID, o.Items[0].ID, "d1",
		order.ResolutionUpdate{Status: order.ResolutionSubstituted})
	require.ErrorIs(t, err, order.ErrSubstituteRequired)

	// Rejected before the store was touched.
	got, err := store.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ResolutionPending, got.Items[0].Resolution.Status)
}

func TestResolveItem_Substituted(t *testing.T) {
	svc, _ := newTestService(defaultProducts()...)
	o := placeTestOrder(t, svc)
	_, err := svc.Claim(context.Background(), o.ID, "d1")
	require.NoError(t, err)

	got, err := svc.ResolveItem(context.Background(), o.ID, o.Items[1].ID, "d1",
		order.ResolutionUpdate{
			Status:         order.ResolutionSubstituted,
			SubstituteItem: "Oat Milk 1L",
			Notes:          "brand out of stock",
		})
	require.NoError(t, err)

	res := got.Items[1].Resolution
	assert.Equal(t, order.ResolutionSubstituted, res.Status)
	assert.Equal(t, "Oat Milk 1L", res.SubstituteItem)
	assert.Equal(t, "brand out of stock", res.Notes)
}

func TestResolveItem_UnavailableLeavesOrderIntact(t *testing.T) {
	svc, _ := newTestService(defaultProducts()...)
	o := placeTestOrder(t, svc)
	_, err := svc.Claim(context.Background(), o.ID, "d1")
	require.NoError(t, err)

	got, err := svc.ResolveItem(context.Background(), o.ID, o.Items[0].ID, "d1",
		order.ResolutionUpdate{Status: order.ResolutionUnavailable})
	require.NoError(t, err)

	// Marking unavailable records the outcome only: the line stays on the
	// order and the locked total is not recomputed.
	assert.Equal(t, order.ResolutionUnavailable, got.Items[0].Resolution.Status)
	assert.Len(t, got.Items, 2)
	assert.True(t, o.Total.Equal(got.Total))
}

func TestResolveItem_BackToPendingRejected(t *testing.T) {
	svc, _ := newTestService(defaultProducts()...)
	o := placeTestOrder(t, svc)
	_, err := svc.Claim(context.Background(), o.ID, "d1")
	require.NoError(t, err)

	_, err = svc.ResolveItem(context.Background(), o.ID, o.Items[0].ID, "d1",
		order.ResolutionUpdate{Status: order.ResolutionPending})

	var vErr *order.ValidationError
	require.ErrorAs(t, err, &vErr)
}

func TestResolveItem_WrongDriver(t *testing.T) {
	svc, _ := newTestService(defaultProducts()...)
	o := placeTestOrder(t, svc)
	_, err := svc.Claim(context.Background(), o.ID, "d1")
	require.NoError(t, err)

	_, err = svc.ResolveItem(context.Background(), o.ID, o.Items[0].ID, "d2",
		order.ResolutionUpdate{Status: order.ResolutionFound})
	require.ErrorIs(t, err, order.ErrNotAssignedDriver)
}

func TestResolveItem_UnknownItem(t *testing.T) {
	svc, _ := newTestService(defaultProducts()...)
	o := placeTestOrder(t, svc)
	_, err := svc.Claim(context.Background(), o.ID, "d1")
	require.NoError(t, err)

	_, err = svc.ResolveItem(context.Background(), o.ID, "missing", "d1",
		order.ResolutionUpdate{Status: order.ResolutionFound})
	require.ErrorIs(t, err, order.ErrItemNotFound)
}

func TestResolveItem_OutsideShopping(t *testing.T) {
	svc, _ := newTestService(defaultProducts()...)
	o := placeTestOrder(t, svc)

	// Still new: no driver is shopping it yet.
	_, err := svc.ResolveItem(context.Background(), o.ID, o.Items[0].ID, "d1",
		order.ResolutionUpdate{Status: order.ResolutionFound})

	var conflict *order.StatusConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, order.StatusNew, conflict.Current)
}

// --- StartDelivery / CompleteDelivery ---

func resolveAll(t *testing.T, svc *order.Service, o *order.Order, driverID string) {
	t.Helper()
	for _, item := range o.Items {
		_, err := svc.ResolveItem(context.Background(), o.ID, item.ID, driverID,
			order.ResolutionUpdate{Status: order.ResolutionFound})
		require.NoError(t, err)
	}
}

func TestStartDelivery_BlockedUntilResolved(t *testing.T) {
	svc, _ := newTestService(defaultProducts()...)
	o := placeTestOrder(t, svc)
	_, err := svc.Claim(context.Background(), o.ID, "d1")
	require.NoError(t, err)

	// One of two items resolved: still blocked.
	_, err = svc.ResolveItem(context.Background(), o.ID, o.Items[0].ID, "d1",
		order.ResolutionUpdate{Status: order.ResolutionFound})
	require.NoError(t, err)

	_, err = svc.StartDelivery(context.Background(), o.ID, "d1")
	require.ErrorIs(t, err, order.ErrItemsUnresolved)

	// The rejected attempt must not have advanced the order.
	got, err := svc.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusShopping, got.Status)
	assert.Zero(t, got.ETA)

	// Resolve the rest and retry: same call now succeeds.
	_, err = svc.ResolveItem(context.Background(), o.ID, o.Items[1].ID, "d1",
		order.ResolutionUpdate{Status: order.ResolutionUnavailable})
	require.NoError(t, err)

	delivering, err := svc.StartDelivery(context.Background(), o.ID, "d1")
	require.NoError(t, err)
	assert.Equal(t, order.StatusDelivering, delivering.Status)
	assert.Equal(t, order.DefaultETA, delivering.ETA)
}

func TestStartDelivery_WrongStatus(t *testing.T) {
	svc, _ := newTestService(defaultProducts()...)
	o := placeTestOrder(t, svc)

	_, err := svc.StartDelivery(context.Background(), o.ID, "d1")

	var itErr *order.InvalidTransitionError
	require.ErrorAs(t, err, &itErr)
	assert.Equal(t, order.StatusNew, itErr.From)
	assert.Equal(t, order.StatusDelivering, itErr.To)
}

func TestCompleteDelivery_Success(t *testing.T) {
	svc, _ := newTestService(defaultProducts()...)
	o := placeTestOrder(t, svc)
	_, err := svc.Claim(context.Background(), o.ID, "d1")
	require.NoError(t, err)
	resolveAll(t, svc, o, "d1")
	_, err = svc.StartDelivery(context.Background(), o.ID, "d1")
	require.NoError(t, err)

	done, err := svc.CompleteDelivery(context.Background(), o.ID, "d1")
	require.NoError(t, err)

	assert.Equal(t, order.StatusDelivered, done.Status)
	// The estimate from delivery start stays on the record.
	assert.Equal(t, order.DefaultETA, done.ETA)
}

func TestCompleteDelivery_TerminalStateUnchanged(t *testing.T) {
	svc, _ := newTestService(defaultProducts()...)
	o := placeTestOrder(t, svc)
	_, err := svc.Claim(context.Background(), o.ID, "d1")
	require.NoError(t, err)
	resolveAll(t, svc, o, "d1")
	_, err = svc.StartDelivery(context.Background(), o.ID, "d1")
	require.NoError(t, err)
	_, err = svc.CompleteDelivery(context.Background(), o.ID, "d1")
	require.NoError(t, err)

	before, err := svc.Get(context.Background(), o.ID)
	require.NoError(t, err)

	// Every further transition attempt fails and leaves the order as is.
	_, err = svc.Claim(context.Background(), o.ID, "d2")
	require.ErrorIs(t, err, order.ErrAlreadyClaimed)

	_, err = svc.StartDelivery(context.Background(), o.ID, "d1")
	var itErr *order.InvalidTransitionError
	require.ErrorAs(t, err, &itErr)

	_, err = svc.CompleteDelivery(context.Background(), o.ID, "d1")
	require.ErrorAs(t, err, &itErr)
	assert.Equal(t, order.StatusDelivered, itErr.From)

	after, err := svc.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestCustomETA(t *testing.T) {
	store := memory.NewOrderStore()
	svc := order.NewService(store, newProductRepo(defaultProducts()...), 25*time.Minute)

	o := placeTestOrder(t, svc)
	_, err := svc.Claim(context.Background(), o.ID, "d1")
	require.NoError(t, err)
	resolveAll(t, svc, o, "d1")

	delivering, err := svc.StartDelivery(context.Background(), o.ID, "d1")
	require.NoError(t, err)
	assert.Equal(t, 25*time.Minute, delivering.ETA)
}

// --- List / CountByStatus ---

func TestList_FilterByStatusAndDriver(t *testing.T) {
	svc, _ := newTestService(defaultProducts()...)

	o1 := placeTestOrder(t, svc)
	o2 := placeTestOrder(t, svc)
	_ = placeTestOrder(t, svc)

	_, err := svc.Claim(context.Background(), o1.ID, "d1")
	require.NoError(t, err)
	_, err = svc.Claim(context.Background(), o2.ID, "d2")
	require.NoError(t, err)

	open, err := svc.List(context.Background(), order.Filter{Status: order.StatusNew})
	require.NoError(t, err)
	assert.Len(t, open, 1)

	mine, err := svc.List(context.Background(), order.Filter{DriverID: "d1"})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, o1.ID, mine[0].ID)
}

func TestCountByStatus(t *testing.T) {
	svc, _ := newTestService(defaultProducts()...)

	o1 := placeTestOrder(t, svc)
	_ = placeTestOrder(t, svc)
	_, err := svc.Claim(context.Background(), o1.ID, "d1")
	require.NoError(t, err)

	counts, err := svc.CountByStatus(context.Background())
	require.NoError(t, err)

	assert.Equal(t, order.StatusCounts{
		order.StatusNew:        1,
		order.StatusShopping:   1,
		order.StatusDelivering: 0,
		order.StatusDelivered:  0,
	}, counts)
}
