package engine

import "time"

// SyncEventType identifies a pass lifecycle event.
type SyncEventType string

const (
	EventPassStarted   SyncEventType = "pass_started"
	EventPhaseChanged  SyncEventType = "phase_changed"
	EventPassCompleted SyncEventType = "pass_completed"
	EventPassFailed    SyncEventType = "pass_failed"
)

// SyncEvent carries one lifecycle notification. Result is a snapshot of
// the pass counters at emission time and must not be mutated.
type SyncEvent struct {
	Type      SyncEventType `json:"type"`
	State     State         `json:"state"`
	Result    *SyncResult   `json:"result,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// SyncEventHandler receives pass lifecycle events. Handlers are invoked
// synchronously from the syncing goroutine and must not call back into
// the engine's Sync method.
type SyncEventHandler interface {
	OnSyncEvent(event SyncEvent)
}

// SyncEventHandlerFunc adapts a function to SyncEventHandler.
type SyncEventHandlerFunc func(event SyncEvent)

// OnSyncEvent implements SyncEventHandler.
func (f SyncEventHandlerFunc) OnSyncEvent(event SyncEvent) {
	f(event)
}

// emit delivers an event to the installed handler, if any.
func (e *Engine) emit(t SyncEventType, result *SyncResult) {
	if e.handler == nil {
		return
	}
	e.handler.OnSyncEvent(SyncEvent{
		Type:      t,
		State:     e.Status(),
		Result:    result,
		Timestamp: time.Now(),
	})
}
