package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/sroepkeee/orderhub-notify/internal/alerts"
	"github.com/sroepkeee/orderhub-notify/internal/queue"
	"github.com/sroepkeee/orderhub-notify/internal/routing"
	"github.com/sroepkeee/orderhub-notify/pkg/jsonutil"
)

// NotifierHandler exposes the routing and alert entrypoints plus the
// operator queue actions over HTTP.
type NotifierHandler struct {
	engine    *routing.Engine
	generator *alerts.Generator
	store     queue.Store
	log       *slog.Logger
}

// RouteEvent is the routing entrypoint: one order status transition in,
// zero or more queued notifications out.
func (h *NotifierHandler) RouteEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonutil.WriteErrorJSON(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var ev routing.OrderEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		jsonutil.WriteErrorJSON(w, http.StatusBadRequest, "invalid event payload")
		return
	}

	result, err := h.engine.Route(r.Context(), ev)
	if err != nil {
		if errors.Is(err, routing.ErrOrderNotFound) {
			jsonutil.WriteErrorJSON(w, http.StatusNotFound, err.Error())
			return
		}
		h.log.Error("failed to route order event", "order_id", ev.OrderID, "error", err)
		jsonutil.WriteErrorJSON(w, http.StatusInternalServerError, "failed to route event")
		return
	}
	jsonutil.WriteJSON(w, http.StatusOK, result)
}

// RunAlerts is the alert entrypoint, normally hit by the internal scheduler
// but also exposed for manual runs.
func (h *NotifierHandler) RunAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonutil.WriteErrorJSON(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	summary, err := h.generator.Run(r.Context())
	if err != nil {
		h.log.Error("alert run failed", "error", err)
		jsonutil.WriteErrorJSON(w, http.StatusInternalServerError, "alert run failed")
		return
	}
	jsonutil.WriteJSON(w, http.StatusOK, summary)
}

func (h *NotifierHandler) RunDailySummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonutil.WriteErrorJSON(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	queued, err := h.generator.RunDailySummary(r.Context())
	if err != nil {
		h.log.Error("daily summary failed", "error", err)
		jsonutil.WriteErrorJSON(w, http.StatusInternalServerError, "daily summary failed")
		return
	}
	jsonutil.WriteJSON(w, http.StatusOK, map[string]int{"messages_queued": queued})
}

// ListQueue returns queued messages filtered by status, newest first.
func (h *NotifierHandler) ListQueue(w http.ResponseWriter, r *http.Request) {
	status := queue.Status(r.URL.Query().Get("status"))
	if status == "" {
		status = queue.StatusPending
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			jsonutil.WriteErrorJSON(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	msgs, err := h.store.ListByStatus(r.Context(), status, limit)
	if err != nil {
		h.log.Error("failed to list queue", "status", string(status), "error", err)
		jsonutil.WriteErrorJSON(w, http.StatusInternalServerError, "failed to list queue")
		return
	}
	if msgs == nil {
		msgs = []*queue.Message{}
	}
	jsonutil.WriteJSON(w, http.StatusOK, msgs)
}

// QueueAction handles POST /queue/{id}/cancel and /queue/{id}/retry.
func (h *NotifierHandler) QueueAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonutil.WriteErrorJSON(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/queue/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" {
		jsonutil.WriteErrorJSON(w, http.StatusNotFound, "not found")
		return
	}
	id, action := parts[0], parts[1]

	var (
		applied bool
		err     error
	)
	switch action {
	case "cancel":
		applied, err = queue.Cancel(r.Context(), h.store, id)
	case "retry":
		applied, err = queue.ResetForRetry(r.Context(), h.store, id)
	default:
		jsonutil.WriteErrorJSON(w, http.StatusNotFound, "unknown action")
		return
	}
	if err != nil {
		h.log.Error("queue action failed", "id", id, "action", action, "error", err)
		jsonutil.WriteErrorJSON(w, http.StatusInternalServerError, "queue action failed")
		return
	}
	if !applied {
		jsonutil.WriteErrorJSON(w, http.StatusConflict, "message is not in an eligible state")
		return
	}
	jsonutil.WriteJSON(w, http.StatusOK, map[string]string{"id": id, "action": action})
}
