// Package conflict provides deterministic conflict resolution between a
// local and a remote version of the same entity. Resolution is pure and
// performs no I/O so it can be tested in isolation.
package conflict

import (
	"encoding/json"
	"time"

	"github.com/agrihub/fieldsync/internal/models"
	"github.com/agrihub/fieldsync/internal/uuid"
)

// Side names the winning side of a resolution.
type Side string

const (
	SideLocal  Side = "local"
	SideRemote Side = "remote"
)

// Version is one candidate version of an entity. A zero UpdatedAt means
// the side carries no comparable modification timestamp.
type Version struct {
	EntityType string
	EntityID   string
	Payload    json.RawMessage
	UpdatedAt  time.Time
}

// Resolution is the outcome of resolving two candidate versions.
// Winner is never nil when at least one input is non-nil.
type Resolution struct {
	Winner *Version
	Side   Side
	Log    *models.ConflictLog // set only when both sides were present
}

// Resolve selects one authoritative version from the local and remote
// candidates. The rules, in order:
//
//  1. If either side is absent, the present side wins.
//  2. The side with the later modification timestamp wins in full;
//     resolution is whole-record, never a field-level merge.
//  3. On equal or missing timestamps, the remote side wins: it is the
//     value other clients can already observe.
//  4. The identifier of the result is always taken from the remote side
//     when the remote exists, reconciling client-provisional ids.
func Resolve(local, remote *Version) Resolution {
	if local == nil && remote == nil {
		return Resolution{}
	}
	if remote == nil {
		return Resolution{Winner: cloneVersion(local), Side: SideLocal}
	}
	if local == nil {
		return Resolution{Winner: cloneVersion(remote), Side: SideRemote}
	}

	// Local wins only on a strictly later timestamp, and only when both
	// sides carry one. Everything else defaults to remote.
	side := SideRemote
	if !local.UpdatedAt.IsZero() && !remote.UpdatedAt.IsZero() &&
		local.UpdatedAt.After(remote.UpdatedAt) {
		side = SideLocal
	}

	winner := remote
	if side == SideLocal {
		winner = local
	}

	result := cloneVersion(winner)
	// Remote exists, so its identifier is authoritative.
	result.EntityID = remote.EntityID

	return Resolution{
		Winner: result,
		Side:   side,
		Log: &models.ConflictLog{
			ID:              uuid.New(),
			EntityType:      result.EntityType,
			EntityID:        result.EntityID,
			LocalTimestamp:  local.UpdatedAt.UnixNano(),
			RemoteTimestamp: remote.UpdatedAt.UnixNano(),
			Resolution:      string(side) + "_wins",
			DetectedAt:      time.Now().UnixNano(),
		},
	}
}

// FromSnapshot adapts a stored snapshot into a resolver input.
func FromSnapshot(s *models.EntitySnapshot) *Version {
	if s == nil {
		return nil
	}
	return &Version{
		EntityType: s.EntityType,
		EntityID:   s.EntityID,
		Payload:    s.Payload,
		UpdatedAt:  s.UpdatedAtTime(),
	}
}

// ToSnapshot converts a resolved version back into a storable snapshot.
func (v *Version) ToSnapshot() *models.EntitySnapshot {
	return &models.EntitySnapshot{
		EntityType: v.EntityType,
		EntityID:   v.EntityID,
		Payload:    v.Payload,
		UpdatedAt:  v.UpdatedAt.UnixNano(),
	}
}

func cloneVersion(v *Version) *Version {
	c := *v
	if v.Payload != nil {
		c.Payload = append(json.RawMessage(nil), v.Payload...)
	}
	return &c
}
