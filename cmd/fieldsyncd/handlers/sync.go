// Package handlers provides the REST API for the local sync daemon.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	apperrors "github.com/agrihub/fieldsync/internal/errors"
	"github.com/agrihub/fieldsync/internal/logging"
	"github.com/agrihub/fieldsync/internal/models"
	"github.com/agrihub/fieldsync/internal/scheduler"
	"github.com/agrihub/fieldsync/internal/store"
)

// SyncHandler exposes sync operations and queue introspection.
type SyncHandler struct {
	scheduler *scheduler.Scheduler
	repo      *store.Repository
	logger    *logging.Logger
}

// NewSyncHandler creates a SyncHandler.
func NewSyncHandler(sched *scheduler.Scheduler, repo *store.Repository) *SyncHandler {
	return &SyncHandler{
		scheduler: sched,
		repo:      repo,
		logger:    logging.Get().WithComponent("api"),
	}
}

// TriggerSync handles POST /api/sync.
// Runs a pass and returns its result. A pass already in progress is a
// conflict, not an error.
func (h *SyncHandler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	result, err := h.scheduler.SyncNow(r.Context())
	if err != nil {
		if apperrors.Is(err, apperrors.ErrSyncInProgress) {
			writeError(w, http.StatusConflict, "sync already in progress")
			return
		}
		if apperrors.Is(err, apperrors.ErrOffline) {
			writeError(w, http.StatusServiceUnavailable, "offline")
			return
		}
		h.logger.Error("Manual sync failed", err, nil)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// GetStatus handles GET /api/sync/status.
func (h *SyncHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.scheduler.GetStatus())
}

// ListQueue handles GET /api/queue.
// Returns pending actions in the order they will be drained.
func (h *SyncHandler) ListQueue(w http.ResponseWriter, r *http.Request) {
	actions, err := h.repo.ListActions()
	if err != nil {
		h.logger.Error("Failed to list queue", err, nil)
		writeError(w, http.StatusInternalServerError, "failed to list queue")
		return
	}

	pending := make([]*models.QueuedAction, 0, len(actions))
	for _, a := range actions {
		if !a.Synced {
			pending = append(pending, a)
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(pending),
		"actions": pending,
	})
}

// ListConflicts handles GET /api/conflicts.
func (h *SyncHandler) ListConflicts(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	logs, err := h.repo.ListConflictLogs(limit)
	if err != nil {
		h.logger.Error("Failed to list conflicts", err, nil)
		writeError(w, http.StatusInternalServerError, "failed to list conflicts")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":     len(logs),
		"conflicts": logs,
	})
}

// Health handles GET /api/health.
func (h *SyncHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "fieldsyncd",
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
