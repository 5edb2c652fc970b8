// Package models provides data model definitions for the FieldSync core.
package models

import (
	"encoding/json"
	"time"
)

// ActionKind identifies the mutation a queued action carries.
type ActionKind string

const (
	ActionCreate ActionKind = "create"
	ActionUpdate ActionKind = "update"
	ActionDelete ActionKind = "delete"
)

// Valid reports whether the kind is one of the known mutations.
func (k ActionKind) Valid() bool {
	switch k {
	case ActionCreate, ActionUpdate, ActionDelete:
		return true
	}
	return false
}

// QueuedAction is one pending local mutation awaiting remote application.
// Actions are durable: a row exists in the action_queue table for the
// whole lifetime of the action, from enqueue until pruned or dropped.
type QueuedAction struct {
	Seq        int64           `db:"seq" json:"-"`
	ID         string          `db:"id" json:"id"`
	Kind       ActionKind      `db:"kind" json:"kind"`
	EntityType string          `db:"entity_type" json:"entity_type"`
	EntityID   string          `db:"entity_id" json:"entity_id"`
	Payload    json.RawMessage `db:"payload" json:"payload,omitempty"`
	EnqueuedAt int64           `db:"enqueued_at" json:"enqueued_at"`
	Synced     bool            `db:"synced" json:"synced"`
	RetryCount int             `db:"retry_count" json:"retry_count"`
	LastError  string          `db:"last_error" json:"last_error,omitempty"`
}

// TableName returns the table name for QueuedAction.
func (QueuedAction) TableName() string {
	return "action_queue"
}

// EnqueuedAtTime returns EnqueuedAt as time.Time.
func (a *QueuedAction) EnqueuedAtTime() time.Time {
	return time.Unix(0, a.EnqueuedAt)
}

// EntityKey returns the composite key identifying the affected entity.
func (a *QueuedAction) EntityKey() string {
	return a.EntityType + ":" + a.EntityID
}
