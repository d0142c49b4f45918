package handler

import (
	"net/http"

	"github.com/islandgrocer/islandgrocer/internal/domain/auth"
	"github.com/islandgrocer/islandgrocer/internal/domain/order"
)

type placeOrderItemRequest struct {
	ProductID    string `json:"productId"`
	Quantity     int    `json:"quantity"`
	Substitution string `json:"substitution,omitempty"`
}

type placeOrderRequest struct {
	Items          []placeOrderItemRequest `json:"items"`
	Address        string                  `json:"address"`
	DeliveryWindow string                  `json:"deliveryWindow,omitempty"`
}

// placeOrder handles checkout for the authenticated customer.
func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := requireRole(w, r, auth.RoleCustomer)
	if !ok {
		return
	}

	var req placeOrderRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	items := make([]order.PlaceOrderItem, len(req.Items))
	for i, item := range req.Items {
		items[i] = order.PlaceOrderItem{
			ProductID:    item.ProductID,
			Quantity:     item.Quantity,
			Substitution: order.SubstitutionPreference(item.Substitution),
		}
	}

	o, err := h.orders.PlaceOrder(r.Context(), order.PlaceOrderRequest{
		CustomerID:     id.UserID,
		Address:        req.Address,
		DeliveryWindow: req.DeliveryWindow,
		Items:          items,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	h.notify(r, func() error { return h.notifier.OrderPlaced(r.Context(), o) })
	writeJSON(w, http.StatusCreated, toOrderResponse(o))
}

// listOrders returns orders scoped to the caller's role: customers see their
// own, drivers see unclaimed orders plus their own, admins see everything.
func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	f := order.Filter{
		Status:   order.Status(q.Get("status")),
		DriverID: q.Get("driverId"),
	}
	if f.Status != "" && !f.Status.Valid() {
		writeError(w, http.StatusBadRequest, "unknown status filter")
		return
	}

	switch id.Role {
	case auth.RoleCustomer:
		f.CustomerID = id.UserID
		f.DriverID = ""
	case auth.RoleDriver:
		if f.DriverID != "" && f.DriverID != id.UserID {
			writeError(w, http.StatusForbidden, "drivers may only list their own orders")
			return
		}
		// Without an explicit filter a driver gets their own workload,
		// not the whole table.
		if f.DriverID == "" && f.Status != order.StatusNew {
			f.DriverID = id.UserID
		}
	case auth.RoleAdmin:
		// unrestricted
	}

	list, err := h.orders.List(r.Context(), f)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	out := make([]orderResponse, len(list))
	for i := range list {
		out[i] = toOrderResponse(&list[i])
	}
	writeJSON(w, http.StatusOK, out)
}

// getOrder returns one order when the caller is allowed to see it.
func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	o, err := h.orders.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	switch id.Role {
	case auth.RoleCustomer:
		if o.CustomerID != id.UserID {
			writeError(w, http.StatusForbidden, "not your order")
			return
		}
	case auth.RoleDriver:
		// Drivers may inspect unclaimed orders before deciding to claim.
		if o.Status != order.StatusNew && o.DriverID != id.UserID {
			writeError(w, http.StatusForbidden, "order is assigned to a different driver")
			return
		}
	case auth.RoleAdmin:
	}

	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

// claimOrder lets a driver take an unclaimed order. Exactly one concurrent
// claimant wins; everyone else is told to refresh their list.
func (h *Handler) claimOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := requireRole(w, r, auth.RoleDriver)
	if !ok {
		return
	}

	o, err := h.orders.Claim(r.Context(), r.PathValue("id"), id.UserID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	h.notify(r, func() error { return h.notifier.OrderClaimed(r.Context(), o) })
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

type transitionRequest struct {
	Status string `json:"status"`
}

// transitionOrder advances the order along the lifecycle. Claiming has its
// own endpoint; this one only accepts delivering and delivered.
func (h *Handler) transitionOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := requireRole(w, r, auth.RoleDriver)
	if !ok {
		return
	}

	var req transitionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	var (
		o   *order.Order
		err error
	)
	switch order.Status(req.Status) {
	case order.StatusDelivering:
		o, err = h.orders.StartDelivery(r.Context(), r.PathValue("id"), id.UserID)
	case order.StatusDelivered:
		o, err = h.orders.CompleteDelivery(r.Context(), r.PathValue("id"), id.UserID)
	case order.StatusShopping:
		writeError(w, http.StatusBadRequest, "claim the order to start shopping")
		return
	default:
		writeError(w, http.StatusBadRequest, "unknown target status")
		return
	}
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	switch o.Status {
	case order.StatusDelivering:
		h.notify(r, func() error { return h.notifier.OutForDelivery(r.Context(), o) })
	case order.StatusDelivered:
		h.notify(r, func() error { return h.notifier.Delivered(r.Context(), o) })
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

type resolveItemRequest struct {
	Status         string `json:"status"`
	SubstituteItem string `json:"substituteItem,omitempty"`
	Notes          string `json:"notes,omitempty"`
}

// resolveItem records the in-store outcome for one line item.
func (h *Handler) resolveItem(w http.ResponseWriter, r *http.Request) {
	id, ok := requireRole(w, r, auth.RoleDriver)
	if !ok {
		return
	}

	var req resolveItemRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	o, err := h.orders.ResolveItem(r.Context(),
		r.PathValue("id"), r.PathValue("itemID"), id.UserID,
		order.ResolutionUpdate{
			Status:         order.ResolutionStatus(req.Status),
			SubstituteItem: req.SubstituteItem,
			Notes:          req.Notes,
		})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(o))
}
