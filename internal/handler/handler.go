// Package handler exposes the order, catalog, and admin APIs over HTTP and
// maps domain errors onto status codes. Handlers own the wire DTOs; domain
// types never leak JSON tags.
package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/islandgrocer/islandgrocer/internal/domain/auth"
	"github.com/islandgrocer/islandgrocer/internal/domain/order"
	"github.com/islandgrocer/islandgrocer/internal/domain/product"
	"github.com/islandgrocer/islandgrocer/internal/domain/sms"
	"github.com/islandgrocer/islandgrocer/internal/poll"
)

// Handler serves the HTTP API, delegating business logic to the order
// service and repositories.
type Handler struct {
	orders   *order.Service
	products product.Repository
	notifier *sms.Notifier
	smsLog   sms.Repository
	stats    *poll.Subscription[order.StatusCounts]
}

// NewHandler constructs a Handler with the required dependencies.
func NewHandler(
	orders *order.Service,
	products product.Repository,
	notifier *sms.Notifier,
	smsLog sms.Repository,
	stats *poll.Subscription[order.StatusCounts],
) *Handler {
	return &Handler{
		orders:   orders,
		products: products,
		notifier: notifier,
		smsLog:   smsLog,
		stats:    stats,
	}
}

// Routes registers every API route on the mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/products", h.listProducts)
	mux.HandleFunc("GET /api/products/{id}", h.getProduct)

	mux.HandleFunc("POST /api/orders", h.placeOrder)
	mux.HandleFunc("GET /api/orders", h.listOrders)
	mux.HandleFunc("GET /api/orders/{id}", h.getOrder)
	mux.HandleFunc("POST /api/orders/{id}/claim", h.claimOrder)
	mux.HandleFunc("POST /api/orders/{id}/transition", h.transitionOrder)
	mux.HandleFunc("POST /api/orders/{id}/items/{itemID}/resolve", h.resolveItem)

	mux.HandleFunc("GET /api/sms", h.listSMS)
	mux.HandleFunc("GET /api/admin/stats", h.adminStats)
}

// --- Wire types ---

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type resolutionResponse struct {
	Status         string `json:"status"`
	SubstituteItem string `json:"substituteItem,omitempty"`
	Notes          string `json:"notes,omitempty"`
}

type orderItemResponse struct {
	ID           string             `json:"id"`
	ProductID    string             `json:"productId"`
	Name         string             `json:"name"`
	UnitPrice    float64            `json:"unitPrice"`
	Quantity     int                `json:"quantity"`
	Substitution string             `json:"substitution"`
	Resolution   resolutionResponse `json:"resolution"`
}

type orderResponse struct {
	ID             string              `json:"id"`
	CustomerID     string              `json:"customerId"`
	DriverID       string              `json:"driverId,omitempty"`
	Status         string              `json:"status"`
	Address        string              `json:"address"`
	DeliveryWindow string              `json:"deliveryWindow"`
	Total          float64             `json:"total"`
	CreatedAt      time.Time           `json:"createdAt"`
	// ETA is the remaining-delivery estimate in seconds, relative to the
	// moment the order entered delivering.
	ETA   int64               `json:"eta,omitempty"`
	Items []orderItemResponse `json:"items"`
}

func toOrderResponse(o *order.Order) orderResponse {
	items := make([]orderItemResponse, len(o.Items))
	for i, item := range o.Items {
		items[i] = orderItemResponse{
			ID:           item.ID,
			ProductID:    item.ProductID,
			Name:         item.Name,
			UnitPrice:    item.UnitPrice.InexactFloat64(),
			Quantity:     item.Quantity,
			Substitution: string(item.Substitution),
			Resolution: resolutionResponse{
				Status:         string(item.Resolution.Status),
				SubstituteItem: item.Resolution.SubstituteItem,
				Notes:          item.Resolution.Notes,
			},
		}
	}
	return orderResponse{
		ID:             o.ID,
		CustomerID:     o.CustomerID,
		DriverID:       o.DriverID,
		Status:         string(o.Status),
		Address:        o.Address,
		DeliveryWindow: o.DeliveryWindow,
		Total:          o.Total.InexactFloat64(),
		CreatedAt:      o.CreatedAt,
		ETA:            int64(o.ETA / time.Second),
		Items:          items,
	}
}

type productResponse struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Price       float64 `json:"price"`
	Category    string  `json:"category"`
	ImageURL    string  `json:"imageUrl,omitempty"`
	Description string  `json:"description,omitempty"`
	InStock     bool    `json:"inStock"`
}

func toProductResponse(p *product.Product) productResponse {
	return productResponse{
		ID:          p.ID,
		Name:        p.Name,
		Price:       p.Price.InexactFloat64(),
		Category:    p.Category,
		ImageURL:    p.ImageURL,
		Description: p.Description,
		InStock:     p.InStock,
	}
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, errorResponse{Code: code, Message: message})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// identity pulls the authenticated caller from the context; the security
// middleware guarantees it is present on every /api route.
func identity(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	id, ok := auth.IdentityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
	}
	return id, ok
}

func requireRole(w http.ResponseWriter, r *http.Request, role auth.Role) (auth.Identity, bool) {
	id, ok := identity(w, r)
	if !ok {
		return id, false
	}
	if id.Role != role {
		writeError(w, http.StatusForbidden, "forbidden for role "+string(id.Role))
		return id, false
	}
	return id, true
}

// writeDomainError maps the order error taxonomy onto HTTP status codes.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		conflict   *order.StatusConflictError
		transition *order.InvalidTransitionError
		quantity   *order.InvalidQuantityError
		validation *order.ValidationError
		notFound   *product.NotFoundError
	)
	switch {
	case errors.Is(err, order.ErrNotFound), errors.Is(err, order.ErrItemNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, order.ErrAlreadyClaimed):
		writeError(w, http.StatusConflict, "this order was just taken by another driver, refresh the list")
	case errors.Is(err, order.ErrItemsUnresolved):
		writeError(w, http.StatusUnprocessableEntity, "resolve all items before starting delivery")
	case errors.Is(err, order.ErrNotAssignedDriver):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.As(err, &transition):
		writeError(w, http.StatusConflict, transition.Error())
	case errors.As(err, &conflict):
		writeError(w, http.StatusConflict, conflict.Error())
	case errors.Is(err, order.ErrEmptyItems),
		errors.Is(err, order.ErrSubstituteRequired),
		errors.As(err, &quantity),
		errors.As(err, &validation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &notFound):
		writeError(w, http.StatusUnprocessableEntity, notFound.Error())
	case errors.Is(err, product.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		zctx.From(r.Context()).Error("internal error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// notify invokes the SMS collaborator after a successful transition. Its
// failure is logged and swallowed: the transition already committed.
func (h *Handler) notify(r *http.Request, fn func() error) {
	if err := fn(); err != nil {
		zctx.From(r.Context()).Warn("notification failed", zap.Error(err))
	}
}
