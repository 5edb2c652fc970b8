// Package remote defines the contract the sync engine consumes from the
// authoritative remote data service, plus a JSON-over-HTTP client.
package remote

import (
	"context"
	"encoding/json"
	"time"
)

// Change is one server-side record change returned by a fetch.
type Change struct {
	ID        string          `json:"id"`
	Payload   json.RawMessage `json:"payload"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Remote is the authoritative data service, polymorphic over entity
// types. The engine treats every error as retryable up to the queue's
// retry ceiling; it never interprets error subtypes.
type Remote interface {
	// Create writes a new record and returns the server-assigned id.
	Create(ctx context.Context, entityType string, payload json.RawMessage) (string, error)

	// Update overwrites an existing record.
	Update(ctx context.Context, entityType, id string, payload json.RawMessage) error

	// Delete removes a record.
	Delete(ctx context.Context, entityType, id string) error

	// FetchChangesSince returns records of the given type changed since
	// the given time. The zero time means "everything".
	FetchChangesSince(ctx context.Context, entityType string, since time.Time) ([]Change, error)
}
