// Package models provides data model definitions for the FieldSync core.
package models

import (
	"encoding/json"
	"time"
)

// EntitySnapshot is the last known authoritative copy of an entity,
// keyed by (entity_type, entity_id). Snapshots feed conflict resolution
// and are only ever written by the sync engine.
type EntitySnapshot struct {
	EntityType string          `db:"entity_type" json:"entity_type"`
	EntityID   string          `db:"entity_id" json:"entity_id"`
	Payload    json.RawMessage `db:"payload" json:"payload"`
	UpdatedAt  int64           `db:"updated_at" json:"updated_at"`
}

// TableName returns the table name for EntitySnapshot.
func (EntitySnapshot) TableName() string {
	return "entity_snapshots"
}

// UpdatedAtTime returns UpdatedAt as time.Time.
func (s *EntitySnapshot) UpdatedAtTime() time.Time {
	return time.Unix(0, s.UpdatedAt)
}

// EntityKey returns the composite snapshot key.
func (s *EntitySnapshot) EntityKey() string {
	return s.EntityType + ":" + s.EntityID
}
