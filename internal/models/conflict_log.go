// Package models provides data model definitions for the FieldSync core.
package models

import "time"

// ConflictLog records a resolved concurrent edit for user awareness.
type ConflictLog struct {
	ID              string `db:"id" json:"id"`
	EntityType      string `db:"entity_type" json:"entity_type"`
	EntityID        string `db:"entity_id" json:"entity_id"`
	LocalTimestamp  int64  `db:"local_timestamp" json:"local_timestamp"`
	RemoteTimestamp int64  `db:"remote_timestamp" json:"remote_timestamp"`
	Resolution      string `db:"resolution" json:"resolution"` // local_wins, remote_wins
	DetectedAt      int64  `db:"detected_at" json:"detected_at"`
}

// TableName returns the table name for ConflictLog.
func (ConflictLog) TableName() string {
	return "conflict_log"
}

// DetectedAtTime returns DetectedAt as time.Time.
func (c *ConflictLog) DetectedAtTime() time.Time {
	return time.Unix(0, c.DetectedAt)
}
