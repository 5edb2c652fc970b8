// Package engine orchestrates full synchronization passes: draining the
// action queue against the remote service, fetching server changes, and
// reconciling them into local snapshots.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/agrihub/fieldsync/internal/conflict"
	apperrors "github.com/agrihub/fieldsync/internal/errors"
	"github.com/agrihub/fieldsync/internal/logging"
	"github.com/agrihub/fieldsync/internal/models"
	"github.com/agrihub/fieldsync/internal/queue"
	"github.com/agrihub/fieldsync/internal/remote"
	"github.com/agrihub/fieldsync/internal/store"
	"github.com/agrihub/fieldsync/internal/uuid"
)

// State is the engine's position in a sync pass.
type State string

const (
	StateIdle        State = "idle"
	StateDraining    State = "draining"
	StateFetching    State = "fetching"
	StateReconciling State = "reconciling"
	StateFailed      State = "failed"
)

// ActionError reports one action dropped during a pass.
type ActionError struct {
	ActionID string `json:"action_id"`
	Message  string `json:"message"`
}

// SyncResult summarizes one completed sync pass.
type SyncResult struct {
	Success     bool          `json:"success"`
	SyncedCount int           `json:"synced_count"`
	Fetched     int           `json:"fetched"`
	Conflicts   int           `json:"conflicts"`
	Errors      []ActionError `json:"errors,omitempty"`
	StartTime   time.Time     `json:"start_time"`
	EndTime     time.Time     `json:"end_time"`
	Duration    time.Duration `json:"duration"`
}

// Engine runs sync passes. All collaborators are injected at
// construction; the engine holds no global state.
type Engine struct {
	queue  *queue.Queue
	repo   *store.Repository
	remote remote.Remote
	logger *logging.Logger

	entityTypes []string
	online      func() bool
	handler     SyncEventHandler

	mu       sync.RWMutex
	running  bool
	state    State
	lastSync *time.Time
	lastErr  error
}

// Option configures an Engine.
type Option func(*Engine)

// WithEntityTypes declares the entity types fetched on every pass, in
// addition to any type with a stored snapshot.
func WithEntityTypes(types ...string) Option {
	return func(e *Engine) { e.entityTypes = types }
}

// WithOnlineCheck installs a connectivity check consulted at pass start.
// Without one the engine always attempts the pass.
func WithOnlineCheck(online func() bool) Option {
	return func(e *Engine) { e.online = online }
}

// New creates an Engine.
func New(q *queue.Queue, repo *store.Repository, rem remote.Remote, opts ...Option) *Engine {
	e := &Engine{
		queue:  q,
		repo:   repo,
		remote: rem,
		logger: logging.Get().WithComponent("engine"),
		state:  StateIdle,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetEventHandler installs the handler notified of pass lifecycle
// events. Must be called before the first Sync.
func (e *Engine) SetEventHandler(h SyncEventHandler) {
	e.handler = h
}

// Status returns the engine's current state.
func (e *Engine) Status() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// LastSync returns the end time of the last successful pass, or nil.
func (e *Engine) LastSync() *time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastSync
}

// LastError returns the error that ended the last failed pass, or nil.
func (e *Engine) LastError() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastErr
}

// Enqueue records a local mutation for later remote application. For a
// Create with an empty entity id a provisional id is generated; it is
// reconciled with the server-assigned id when the create syncs.
func (e *Engine) Enqueue(kind models.ActionKind, entityType, entityID string, payload []byte) (string, error) {
	if kind == models.ActionCreate && entityID == "" {
		entityID = uuid.NewProvisional()
	}
	return e.queue.Enqueue(kind, entityType, entityID, payload)
}

// QueuedActions returns the pending queue for read-only introspection.
func (e *Engine) QueuedActions() ([]*models.QueuedAction, error) {
	return e.queue.Pending()
}

// PendingCount returns the number of unsynced actions.
func (e *Engine) PendingCount() (int, error) {
	return e.queue.PendingCount()
}

// Sync runs one full pass: Draining -> Fetching -> Reconciling. If a
// pass is already running it returns ErrSyncInProgress immediately
// without touching the queue. The engine never retries a failed pass on
// its own; scheduling the next attempt is the caller's responsibility.
func (e *Engine) Sync(ctx context.Context) (*SyncResult, error) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil, apperrors.New(apperrors.ErrSyncInProgress, "sync already in progress")
	}
	e.running = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	if e.online != nil && !e.online() {
		err := apperrors.New(apperrors.ErrOffline, "cannot start sync while offline")
		e.finish(nil, err)
		return nil, err
	}

	result := &SyncResult{StartTime: time.Now()}
	e.emit(EventPassStarted, result)

	passErr := e.run(ctx, result)

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)

	if passErr != nil {
		result.Success = false
		e.finish(result, passErr)
		e.logger.Error("Sync pass failed", passErr, map[string]interface{}{
			"synced": result.SyncedCount,
		})
		e.emit(EventPassFailed, result)
		return result, passErr
	}

	result.Success = len(result.Errors) == 0
	e.finish(result, nil)
	e.logger.Info("Sync pass completed", map[string]interface{}{
		"success":   result.Success,
		"synced":    result.SyncedCount,
		"fetched":   result.Fetched,
		"conflicts": result.Conflicts,
		"dropped":   len(result.Errors),
	})
	e.emit(EventPassCompleted, result)
	return result, nil
}

// run executes the pass phases. A returned error is fatal to the pass;
// per-action remote failures are absorbed into retry bookkeeping.
func (e *Engine) run(ctx context.Context, result *SyncResult) error {
	e.setState(StateDraining)
	e.emit(EventPhaseChanged, result)
	if err := e.drain(ctx, result); err != nil {
		return err
	}

	e.setState(StateFetching)
	e.emit(EventPhaseChanged, result)
	since, err := e.repo.LastSyncAt()
	if err != nil {
		return apperrors.Wrap(apperrors.ErrPersistence, "failed to read last sync time", err)
	}
	types, err := e.fetchTypes()
	if err != nil {
		return err
	}
	fetched := make(map[string][]remote.Change, len(types))
	for _, entityType := range types {
		changes, err := e.remote.FetchChangesSince(ctx, entityType, since)
		if err != nil {
			return apperrors.Wrap(apperrors.ErrSyncFailed, "fetch failed for "+entityType, err)
		}
		fetched[entityType] = changes
	}

	e.setState(StateReconciling)
	e.emit(EventPhaseChanged, result)
	for _, entityType := range types {
		for _, change := range fetched[entityType] {
			if err := e.reconcile(entityType, change, result); err != nil {
				return err
			}
		}
	}

	if _, err := e.queue.Prune(); err != nil {
		return err
	}
	// The watermark is the pass start, not the pass end: a remote change
	// committed while this pass was running must still fall after the
	// watermark so the next fetch picks it up. Re-fetching a window the
	// pass partially saw is harmless, resolution is deterministic.
	if err := e.repo.SetLastSyncAt(result.StartTime); err != nil {
		return apperrors.Wrap(apperrors.ErrPersistence, "failed to persist last sync time", err)
	}
	return nil
}

// drain applies pending actions in enqueue order, one remote attempt
// per action per pass. A failing action never aborts the pass; it is
// retried next pass or dropped at the ceiling.
func (e *Engine) drain(ctx context.Context, result *SyncResult) error {
	actions, err := e.queue.List()
	if err != nil {
		return err
	}

	for _, action := range actions {
		if action.Synced {
			// Already applied remotely; a crash before pruning must not
			// replay it.
			continue
		}
		if err := ctx.Err(); err != nil {
			return apperrors.Wrap(apperrors.ErrSyncFailed, "pass interrupted", err)
		}

		remoteID, callErr := e.apply(ctx, action)
		if callErr != nil {
			dropped, qErr := e.queue.IncrementRetry(action.ID, callErr)
			if qErr != nil {
				return qErr
			}
			if dropped {
				result.Errors = append(result.Errors, ActionError{
					ActionID: action.ID,
					Message:  callErr.Error(),
				})
			}
			continue
		}

		// Persisted before the next action so a crash mid-drain cannot
		// double-apply this write.
		if err := e.queue.MarkSynced(action.ID); err != nil {
			return err
		}

		if err := e.afterApply(action, remoteID, actions); err != nil {
			return err
		}
		result.SyncedCount++
	}

	return nil
}

// apply performs the remote call for one action. For creates it returns
// the server-assigned id.
func (e *Engine) apply(ctx context.Context, action *models.QueuedAction) (string, error) {
	switch action.Kind {
	case models.ActionCreate:
		return e.remote.Create(ctx, action.EntityType, action.Payload)
	case models.ActionUpdate:
		return action.EntityID, e.remote.Update(ctx, action.EntityType, action.EntityID, action.Payload)
	case models.ActionDelete:
		return action.EntityID, e.remote.Delete(ctx, action.EntityType, action.EntityID)
	default:
		return "", apperrors.New(apperrors.ErrInternal, "unknown action kind "+string(action.Kind))
	}
}

// afterApply updates snapshots and reconciles provisional ids after a
// successful remote write.
func (e *Engine) afterApply(action *models.QueuedAction, remoteID string, pending []*models.QueuedAction) error {
	entityID := action.EntityID

	if action.Kind == models.ActionCreate && remoteID != "" && remoteID != action.EntityID {
		// The server assigned the real id: later queued actions still
		// referencing the provisional id must follow it.
		if err := e.queue.ReassignEntity(action.EntityType, action.EntityID, remoteID); err != nil {
			return err
		}
		// Any snapshot already stored under the provisional id follows
		// it too; nothing may linger under a dead id.
		if err := e.repo.ReassignSnapshotEntity(action.EntityType, action.EntityID, remoteID); err != nil {
			return apperrors.Wrap(apperrors.ErrPersistence, "failed to reassign snapshot", err)
		}
		for _, p := range pending {
			if p.EntityType == action.EntityType && p.EntityID == action.EntityID {
				p.EntityID = remoteID
			}
		}
		entityID = remoteID
	}

	switch action.Kind {
	case models.ActionDelete:
		if err := e.repo.DeleteSnapshot(action.EntityType, entityID); err != nil {
			return apperrors.Wrap(apperrors.ErrPersistence, "failed to delete snapshot", err)
		}
	default:
		snapshot := &models.EntitySnapshot{
			EntityType: action.EntityType,
			EntityID:   entityID,
			Payload:    action.Payload,
			UpdatedAt:  time.Now().UnixNano(),
		}
		if err := e.repo.UpsertSnapshot(snapshot); err != nil {
			return apperrors.Wrap(apperrors.ErrPersistence, "failed to store snapshot", err)
		}
	}
	return nil
}

// reconcile merges one fetched change into the local snapshot store.
func (e *Engine) reconcile(entityType string, change remote.Change, result *SyncResult) error {
	local, err := e.repo.GetSnapshot(entityType, change.ID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return apperrors.Wrap(apperrors.ErrPersistence, "failed to read snapshot", err)
	}

	res := conflict.Resolve(conflict.FromSnapshot(local), &conflict.Version{
		EntityType: entityType,
		EntityID:   change.ID,
		Payload:    change.Payload,
		UpdatedAt:  change.UpdatedAt,
	})

	if err := e.repo.UpsertSnapshot(res.Winner.ToSnapshot()); err != nil {
		return apperrors.Wrap(apperrors.ErrPersistence, "failed to store resolved snapshot", err)
	}

	if local != nil {
		result.Conflicts++
		// Audit only; losing the log entry does not fail the pass.
		if res.Log != nil {
			if err := e.repo.InsertConflictLog(res.Log); err != nil {
				e.logger.Warn("Failed to record conflict log", map[string]interface{}{
					"entity_type": entityType,
					"entity_id":   change.ID,
					"error":       err.Error(),
				})
			}
		}
	}
	result.Fetched++
	return nil
}

// fetchTypes returns the configured entity types plus every type with a
// stored snapshot, deduplicated and ordered.
func (e *Engine) fetchTypes() ([]string, error) {
	seen := make(map[string]bool)
	for _, t := range e.entityTypes {
		seen[t] = true
	}
	stored, err := e.repo.SnapshotEntityTypes()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrPersistence, "failed to list snapshot types", err)
	}
	for _, t := range stored {
		seen[t] = true
	}

	types := make([]string, 0, len(seen))
	for t := range seen {
		types = append(types, t)
	}
	sort.Strings(types)
	return types, nil
}

// setState records a state transition.
func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// finish records pass bookkeeping. A failed pass leaves the engine in
// StateFailed until the next pass begins; a clean pass returns to Idle.
func (e *Engine) finish(result *SyncResult, passErr error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastErr = passErr
	if passErr != nil {
		e.state = StateFailed
		return
	}
	e.state = StateIdle
	if result != nil {
		end := result.EndTime
		e.lastSync = &end
	}
}
