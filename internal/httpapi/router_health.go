package httpapi

import (
	"net/http"
	"strconv"
	"strings"
)

func (r *router) handleHealth(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (r *router) handleReady(w http.ResponseWriter, req *http.Request) {
	if r.deps.Bot != nil && !r.deps.Bot.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not-ready", "error": "bot not ready"})
		return
	}
	if r.deps.Deliveries != nil {
		if err := r.deps.Deliveries.Ping(req.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not-ready", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (r *router) handleHeartbeat(w http.ResponseWriter, req *http.Request) {
	if r.deps.Heartbeat == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"error":  "heartbeat is disabled",
		})
		return
	}
	snapshot := r.deps.Heartbeat.Snapshot(r.deps.HeartbeatStaleAfter)
	writeJSON(w, http.StatusOK, snapshot)
}

func (r *router) handleDeliveries(w http.ResponseWriter, req *http.Request) {
	if r.deps.Deliveries == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"error":  "delivery store is disabled",
		})
		return
	}
	limit := 50
	if raw := strings.TrimSpace(req.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}
	deliveries, err := r.deps.Deliveries.ListRecentDeliveries(req.Context(), limit)
	if err != nil {
		r.deps.Logger.Error("list deliveries failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "list deliveries failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":      len(deliveries),
		"deliveries": deliveries,
	})
}
