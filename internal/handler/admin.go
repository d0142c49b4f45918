package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/islandgrocer/islandgrocer/internal/domain/auth"
	"github.com/islandgrocer/islandgrocer/internal/domain/order"
)

type smsResponse struct {
	ID        string    `json:"id"`
	OrderID   string    `json:"orderId"`
	Body      string    `json:"message"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"timestamp"`
}

// listSMS pages through the SMS log, newest first.
func (h *Handler) listSMS(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireRole(w, r, auth.RoleAdmin); !ok {
		return
	}

	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	offset, _ := strconv.Atoi(q.Get("offset"))
	if offset < 0 {
		offset = 0
	}

	msgs, err := h.smsLog.List(r.Context(), limit, offset)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	out := make([]smsResponse, len(msgs))
	for i, m := range msgs {
		out[i] = smsResponse{
			ID:        m.ID,
			OrderID:   m.OrderID,
			Body:      m.Body,
			Status:    string(m.Status),
			CreatedAt: m.CreatedAt,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

type statsResponse struct {
	Counts    order.StatusCounts `json:"counts"`
	FetchedAt time.Time          `json:"fetchedAt"`
}

// adminStats serves the poll-backed snapshot of order counts per status.
// The snapshot refreshes on a fixed interval; ?refresh=true forces an
// immediate re-fetch, the on-demand path the dashboard uses when it regains
// focus.
func (h *Handler) adminStats(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireRole(w, r, auth.RoleAdmin); !ok {
		return
	}

	if r.URL.Query().Get("refresh") == "true" {
		if _, err := h.stats.Refresh(r.Context()); err != nil {
			// Serve the stale snapshot; staleness is bounded and visible
			// through fetchedAt.
			zctx.From(r.Context()).Warn("stats refresh failed", zap.Error(err))
		}
	}

	counts, fetchedAt := h.stats.Snapshot()
	writeJSON(w, http.StatusOK, statsResponse{Counts: counts, FetchedAt: fetchedAt})
}
