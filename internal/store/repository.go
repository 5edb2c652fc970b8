// Package store provides the durable local store backing the sync core.
package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/agrihub/fieldsync/internal/models"
)

// Repository provides typed operations over the durable store tables.
// Every mutation is a single statement or transaction, so a crash
// between two repository calls leaves the store consistent.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new Repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// ============================================
// Action queue operations
// ============================================

// InsertAction persists a new queued action. The row's seq is assigned
// by SQLite and written back to the model.
func (r *Repository) InsertAction(a *models.QueuedAction) error {
	query := `
	INSERT INTO action_queue (id, kind, entity_type, entity_id, payload, enqueued_at, synced, retry_count, last_error)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	res, err := r.db.Exec(query,
		a.ID, string(a.Kind), a.EntityType, a.EntityID, []byte(a.Payload),
		a.EnqueuedAt, boolToInt(a.Synced), a.RetryCount, a.LastError)
	if err != nil {
		return fmt.Errorf("failed to insert action: %w", err)
	}

	seq, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read action seq: %w", err)
	}
	a.Seq = seq
	return nil
}

// GetAction returns a single action by id. Returns sql.ErrNoRows when
// the action does not exist.
func (r *Repository) GetAction(id string) (*models.QueuedAction, error) {
	query := `
	SELECT seq, id, kind, entity_type, entity_id, payload, enqueued_at, synced, retry_count, last_error
	FROM action_queue WHERE id = ?`

	return scanAction(r.db.QueryRow(query, id))
}

// ListActions returns all actions in enqueue order.
func (r *Repository) ListActions() ([]*models.QueuedAction, error) {
	query := `
	SELECT seq, id, kind, entity_type, entity_id, payload, enqueued_at, synced, retry_count, last_error
	FROM action_queue ORDER BY seq`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list actions: %w", err)
	}
	defer rows.Close()

	var actions []*models.QueuedAction
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

// MarkActionSynced flips the synced flag for one action.
func (r *Repository) MarkActionSynced(id string) error {
	res, err := r.db.Exec("UPDATE action_queue SET synced = 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to mark action synced: %w", err)
	}
	return requireRow(res, id)
}

// SetActionRetry persists a new retry count and last error for an action.
func (r *Repository) SetActionRetry(id string, retryCount int, lastError string) error {
	res, err := r.db.Exec("UPDATE action_queue SET retry_count = ?, last_error = ? WHERE id = ?",
		retryCount, lastError, id)
	if err != nil {
		return fmt.Errorf("failed to set action retry: %w", err)
	}
	return requireRow(res, id)
}

// DeleteAction removes one action from the queue.
func (r *Repository) DeleteAction(id string) error {
	res, err := r.db.Exec("DELETE FROM action_queue WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete action: %w", err)
	}
	return requireRow(res, id)
}

// PruneSyncedActions deletes all synced actions and returns how many
// were removed.
func (r *Repository) PruneSyncedActions() (int64, error) {
	res, err := r.db.Exec("DELETE FROM action_queue WHERE synced = 1")
	if err != nil {
		return 0, fmt.Errorf("failed to prune actions: %w", err)
	}
	return res.RowsAffected()
}

// CountPendingActions returns the number of unsynced actions.
func (r *Repository) CountPendingActions() (int, error) {
	var n int
	err := r.db.QueryRow("SELECT COUNT(*) FROM action_queue WHERE synced = 0").Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending actions: %w", err)
	}
	return n, nil
}

// ReassignActionEntity rewrites the entity id on every queued action
// targeting (entityType, oldID). Used when the server assigns the real
// id for a created entity and later queued actions still reference the
// client-side provisional id.
func (r *Repository) ReassignActionEntity(entityType, oldID, newID string) (int64, error) {
	res, err := r.db.Exec(
		"UPDATE action_queue SET entity_id = ? WHERE entity_type = ? AND entity_id = ?",
		newID, entityType, oldID)
	if err != nil {
		return 0, fmt.Errorf("failed to reassign action entity: %w", err)
	}
	return res.RowsAffected()
}

// ============================================
// Entity snapshot operations
// ============================================

// UpsertSnapshot stores or replaces the snapshot for one entity.
func (r *Repository) UpsertSnapshot(s *models.EntitySnapshot) error {
	query := `
	INSERT INTO entity_snapshots (entity_type, entity_id, payload, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(entity_type, entity_id) DO UPDATE SET
		payload = excluded.payload,
		updated_at = excluded.updated_at`

	if _, err := r.db.Exec(query, s.EntityType, s.EntityID, []byte(s.Payload), s.UpdatedAt); err != nil {
		return fmt.Errorf("failed to upsert snapshot: %w", err)
	}
	return nil
}

// GetSnapshot returns the snapshot for one entity. Returns sql.ErrNoRows
// when no snapshot exists.
func (r *Repository) GetSnapshot(entityType, entityID string) (*models.EntitySnapshot, error) {
	query := `
	SELECT entity_type, entity_id, payload, updated_at
	FROM entity_snapshots WHERE entity_type = ? AND entity_id = ?`

	s := &models.EntitySnapshot{}
	var payload []byte
	err := r.db.QueryRow(query, entityType, entityID).
		Scan(&s.EntityType, &s.EntityID, &payload, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	s.Payload = payload
	return s, nil
}

// DeleteSnapshot removes the snapshot for one entity. Deleting a missing
// snapshot is not an error.
func (r *Repository) DeleteSnapshot(entityType, entityID string) error {
	_, err := r.db.Exec("DELETE FROM entity_snapshots WHERE entity_type = ? AND entity_id = ?",
		entityType, entityID)
	if err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}

// ReassignSnapshotEntity moves a snapshot from a provisional id to the
// server-assigned id, replacing any row already under the new id.
func (r *Repository) ReassignSnapshotEntity(entityType, oldID, newID string) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM entity_snapshots WHERE entity_type = ? AND entity_id = ?",
		entityType, newID); err != nil {
		return fmt.Errorf("failed to clear snapshot: %w", err)
	}
	if _, err := tx.Exec("UPDATE entity_snapshots SET entity_id = ? WHERE entity_type = ? AND entity_id = ?",
		newID, entityType, oldID); err != nil {
		return fmt.Errorf("failed to reassign snapshot: %w", err)
	}
	return tx.Commit()
}

// ListSnapshots returns all snapshots for one entity type.
func (r *Repository) ListSnapshots(entityType string) ([]*models.EntitySnapshot, error) {
	query := `
	SELECT entity_type, entity_id, payload, updated_at
	FROM entity_snapshots WHERE entity_type = ? ORDER BY entity_id`

	rows, err := r.db.Query(query, entityType)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []*models.EntitySnapshot
	for rows.Next() {
		s := &models.EntitySnapshot{}
		var payload []byte
		if err := rows.Scan(&s.EntityType, &s.EntityID, &payload, &s.UpdatedAt); err != nil {
			return nil, err
		}
		s.Payload = payload
		snapshots = append(snapshots, s)
	}
	return snapshots, rows.Err()
}

// SnapshotEntityTypes returns the distinct entity types with at least
// one stored snapshot.
func (r *Repository) SnapshotEntityTypes() ([]string, error) {
	rows, err := r.db.Query("SELECT DISTINCT entity_type FROM entity_snapshots ORDER BY entity_type")
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshot types: %w", err)
	}
	defer rows.Close()

	var types []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	return types, rows.Err()
}

// ============================================
// Conflict log operations
// ============================================

// InsertConflictLog creates a new conflict log entry.
func (r *Repository) InsertConflictLog(c *models.ConflictLog) error {
	query := `
	INSERT INTO conflict_log (id, entity_type, entity_id, local_timestamp, remote_timestamp, resolution, detected_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.Exec(query, c.ID, c.EntityType, c.EntityID,
		c.LocalTimestamp, c.RemoteTimestamp, c.Resolution, c.DetectedAt)
	if err != nil {
		return fmt.Errorf("failed to insert conflict log: %w", err)
	}
	return nil
}

// ListConflictLogs returns the most recent conflict log entries.
func (r *Repository) ListConflictLogs(limit int) ([]*models.ConflictLog, error) {
	query := `
	SELECT id, entity_type, entity_id, local_timestamp, remote_timestamp, resolution, detected_at
	FROM conflict_log ORDER BY detected_at DESC LIMIT ?`

	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list conflict logs: %w", err)
	}
	defer rows.Close()

	var logs []*models.ConflictLog
	for rows.Next() {
		c := &models.ConflictLog{}
		if err := rows.Scan(&c.ID, &c.EntityType, &c.EntityID,
			&c.LocalTimestamp, &c.RemoteTimestamp, &c.Resolution, &c.DetectedAt); err != nil {
			return nil, err
		}
		logs = append(logs, c)
	}
	return logs, rows.Err()
}

// ============================================
// Sync state operations
// ============================================

// LastSyncAt returns the time of the last completed sync pass, or the
// zero time if none has completed yet.
func (r *Repository) LastSyncAt() (time.Time, error) {
	var ns int64
	err := r.db.QueryRow("SELECT last_sync_at FROM sync_state WHERE id = 1").Scan(&ns)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read sync state: %w", err)
	}
	if ns == 0 {
		return time.Time{}, nil
	}
	return time.Unix(0, ns), nil
}

// SetLastSyncAt persists the time of the last completed sync pass.
func (r *Repository) SetLastSyncAt(t time.Time) error {
	_, err := r.db.Exec("UPDATE sync_state SET last_sync_at = ? WHERE id = 1", t.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to persist sync state: %w", err)
	}
	return nil
}

// ============================================
// helpers
// ============================================

// rowScanner matches both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAction(row rowScanner) (*models.QueuedAction, error) {
	a := &models.QueuedAction{}
	var kind string
	var payload []byte
	var synced int
	err := row.Scan(&a.Seq, &a.ID, &kind, &a.EntityType, &a.EntityID,
		&payload, &a.EnqueuedAt, &synced, &a.RetryCount, &a.LastError)
	if err != nil {
		return nil, err
	}
	a.Kind = models.ActionKind(kind)
	a.Payload = payload
	a.Synced = synced != 0
	return a, nil
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("action %s: %w", id, sql.ErrNoRows)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
