// Package queue provides the durable action queue for offline mutations.
// Every mutation is persisted before it is acknowledged: an action that
// was never written to the store was never queued.
package queue

import (
	"encoding/json"
	"fmt"
	"time"

	apperrors "github.com/agrihub/fieldsync/internal/errors"
	"github.com/agrihub/fieldsync/internal/logging"
	"github.com/agrihub/fieldsync/internal/models"
	"github.com/agrihub/fieldsync/internal/store"
	"github.com/agrihub/fieldsync/internal/uuid"
)

// MaxRetries is the retry ceiling: an action whose remote call has
// failed this many times is dropped, not retried again.
const MaxRetries = 3

// Queue is the durable, ordered log of pending local mutations.
type Queue struct {
	repo   *store.Repository
	logger *logging.Logger
}

// New creates a Queue over the given repository.
func New(repo *store.Repository) *Queue {
	return &Queue{
		repo:   repo,
		logger: logging.Get().WithComponent("queue"),
	}
}

// Enqueue appends a new action and persists it immediately. The
// generated action id is returned. Delete actions carry no payload.
func (q *Queue) Enqueue(kind models.ActionKind, entityType, entityID string, payload json.RawMessage) (string, error) {
	if !kind.Valid() {
		return "", apperrors.New(apperrors.ErrValidation, fmt.Sprintf("unknown action kind %q", kind))
	}
	if entityType == "" || entityID == "" {
		return "", apperrors.New(apperrors.ErrValidation, "entity type and id are required")
	}
	if kind == models.ActionDelete {
		payload = nil
	} else if len(payload) == 0 {
		return "", apperrors.New(apperrors.ErrValidation, "payload is required for create and update")
	}

	action := &models.QueuedAction{
		ID:         uuid.New(),
		Kind:       kind,
		EntityType: entityType,
		EntityID:   entityID,
		Payload:    payload,
		EnqueuedAt: time.Now().UnixNano(),
	}

	if err := q.repo.InsertAction(action); err != nil {
		return "", apperrors.Wrap(apperrors.ErrPersistence, "failed to persist queued action", err)
	}

	q.logger.Debug("Action enqueued", map[string]interface{}{
		"action_id":   action.ID,
		"kind":        string(kind),
		"entity_type": entityType,
		"entity_id":   entityID,
	})

	return action.ID, nil
}

// List returns all actions in enqueue order. Pure read, no side effect.
func (q *Queue) List() ([]*models.QueuedAction, error) {
	actions, err := q.repo.ListActions()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrPersistence, "failed to list actions", err)
	}
	return actions, nil
}

// Pending returns the unsynced actions in enqueue order.
func (q *Queue) Pending() ([]*models.QueuedAction, error) {
	actions, err := q.List()
	if err != nil {
		return nil, err
	}
	pending := actions[:0]
	for _, a := range actions {
		if !a.Synced {
			pending = append(pending, a)
		}
	}
	return pending, nil
}

// PendingCount returns the number of unsynced actions, for "N pending
// changes" indicators.
func (q *Queue) PendingCount() (int, error) {
	n, err := q.repo.CountPendingActions()
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrPersistence, "failed to count pending actions", err)
	}
	return n, nil
}

// MarkSynced flags an action as applied remotely and persists the flag
// before returning, so a crash cannot double-apply a completed write.
func (q *Queue) MarkSynced(actionID string) error {
	if err := q.repo.MarkActionSynced(actionID); err != nil {
		return apperrors.Wrap(apperrors.ErrPersistence, "failed to mark action synced", err)
	}
	return nil
}

// IncrementRetry records one failed remote attempt for the action.
// When the new count reaches the ceiling the action is removed from the
// queue and dropped=true is returned; dropping is terminal. The cause
// is kept as the action's last error for reporting.
func (q *Queue) IncrementRetry(actionID string, cause error) (dropped bool, err error) {
	action, err := q.repo.GetAction(actionID)
	if err != nil {
		return false, apperrors.Wrap(apperrors.ErrActionNotFound, "failed to load action for retry", err)
	}

	action.RetryCount++
	lastError := ""
	if cause != nil {
		lastError = cause.Error()
	}

	if action.RetryCount >= MaxRetries {
		if err := q.repo.DeleteAction(actionID); err != nil {
			return false, apperrors.Wrap(apperrors.ErrPersistence, "failed to drop action", err)
		}
		q.logger.Warn("Action dropped after retry ceiling", map[string]interface{}{
			"action_id":   actionID,
			"entity_type": action.EntityType,
			"entity_id":   action.EntityID,
			"retry_count": action.RetryCount,
			"last_error":  lastError,
		})
		return true, nil
	}

	if err := q.repo.SetActionRetry(actionID, action.RetryCount, lastError); err != nil {
		return false, apperrors.Wrap(apperrors.ErrPersistence, "failed to persist retry count", err)
	}

	q.logger.Debug("Action retry recorded", map[string]interface{}{
		"action_id":   actionID,
		"retry_count": action.RetryCount,
		"max_retries": MaxRetries,
	})

	return false, nil
}

// Remove deletes one action regardless of its state.
func (q *Queue) Remove(actionID string) error {
	if err := q.repo.DeleteAction(actionID); err != nil {
		return apperrors.Wrap(apperrors.ErrPersistence, "failed to remove action", err)
	}
	return nil
}

// Prune deletes all synced actions; called after every drain pass to
// bound queue growth. Synced actions must never be replayed.
func (q *Queue) Prune() (int64, error) {
	n, err := q.repo.PruneSyncedActions()
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrPersistence, "failed to prune queue", err)
	}
	if n > 0 {
		q.logger.Debug("Queue pruned", map[string]interface{}{"removed": n})
	}
	return n, nil
}

// ReassignEntity rewrites the entity id on all queued actions for
// (entityType, oldID). Called when the server assigns the real id for a
// created entity so later queued updates target the right record.
func (q *Queue) ReassignEntity(entityType, oldID, newID string) error {
	n, err := q.repo.ReassignActionEntity(entityType, oldID, newID)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrPersistence, "failed to reassign entity id", err)
	}
	if n > 0 {
		q.logger.Debug("Queued actions reassigned to server id", map[string]interface{}{
			"entity_type": entityType,
			"old_id":      oldID,
			"new_id":      newID,
			"actions":     n,
		})
	}
	return nil
}
