// Package models provides data model definitions for the FieldSync core.
package models

import "time"

// SyncState holds the single-row bookkeeping the engine persists
// between passes.
type SyncState struct {
	LastSyncAt int64 `db:"last_sync_at" json:"last_sync_at"`
}

// TableName returns the table name for SyncState.
func (SyncState) TableName() string {
	return "sync_state"
}

// LastSyncTime returns LastSyncAt as time.Time. The zero time means no
// pass has ever completed.
func (s *SyncState) LastSyncTime() time.Time {
	if s.LastSyncAt == 0 {
		return time.Time{}
	}
	return time.Unix(0, s.LastSyncAt)
}
