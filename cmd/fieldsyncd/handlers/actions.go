package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/agrihub/fieldsync/internal/engine"
	apperrors "github.com/agrihub/fieldsync/internal/errors"
	"github.com/agrihub/fieldsync/internal/logging"
	"github.com/agrihub/fieldsync/internal/models"
	"github.com/gorilla/mux"
)

// ActionHandler records local mutations into the durable queue.
type ActionHandler struct {
	engine *engine.Engine
	logger *logging.Logger
}

// NewActionHandler creates an ActionHandler.
func NewActionHandler(eng *engine.Engine) *ActionHandler {
	return &ActionHandler{
		engine: eng,
		logger: logging.Get().WithComponent("api"),
	}
}

type enqueueRequest struct {
	Kind       string          `json:"kind"`
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Payload    json.RawMessage `json:"payload"`
}

// Enqueue handles POST /api/actions.
// The action is durable once this returns 201; it survives restarts
// until synced and pruned.
func (h *ActionHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	actionID, err := h.engine.Enqueue(models.ActionKind(req.Kind), req.EntityType, req.EntityID, req.Payload)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrValidation) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("Failed to enqueue action", err, nil)
		writeError(w, http.StatusInternalServerError, "failed to enqueue action")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"action_id": actionID})
}

// SnapshotHandler serves locally stored entity snapshots.
type SnapshotHandler struct {
	repo   snapshotReader
	logger *logging.Logger
}

type snapshotReader interface {
	ListSnapshots(entityType string) ([]*models.EntitySnapshot, error)
	GetSnapshot(entityType, entityID string) (*models.EntitySnapshot, error)
}

// NewSnapshotHandler creates a SnapshotHandler.
func NewSnapshotHandler(repo snapshotReader) *SnapshotHandler {
	return &SnapshotHandler{
		repo:   repo,
		logger: logging.Get().WithComponent("api"),
	}
}

// List handles GET /api/entities/{type}.
func (h *SnapshotHandler) List(w http.ResponseWriter, r *http.Request) {
	entityType := mux.Vars(r)["type"]

	snapshots, err := h.repo.ListSnapshots(entityType)
	if err != nil {
		h.logger.Error("Failed to list snapshots", err, nil)
		writeError(w, http.StatusInternalServerError, "failed to list entities")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":    len(snapshots),
		"entities": snapshots,
	})
}

// Get handles GET /api/entities/{type}/{id}.
func (h *SnapshotHandler) Get(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	snapshot, err := h.repo.GetSnapshot(vars["type"], vars["id"])
	if err != nil {
		writeError(w, http.StatusNotFound, "entity not found")
		return
	}

	writeJSON(w, http.StatusOK, snapshot)
}
