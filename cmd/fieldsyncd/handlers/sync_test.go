package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/agrihub/fieldsync/internal/engine"
	"github.com/agrihub/fieldsync/internal/models"
	"github.com/agrihub/fieldsync/internal/network"
	"github.com/agrihub/fieldsync/internal/queue"
	"github.com/agrihub/fieldsync/internal/remote"
	"github.com/agrihub/fieldsync/internal/scheduler"
	"github.com/agrihub/fieldsync/internal/store"
	"github.com/gorilla/mux"
)

// stubRemote accepts every write and returns no changes.
type stubRemote struct{}

func (stubRemote) Create(ctx context.Context, entityType string, payload json.RawMessage) (string, error) {
	return "srv-1", nil
}

func (stubRemote) Update(ctx context.Context, entityType, id string, payload json.RawMessage) error {
	return nil
}

func (stubRemote) Delete(ctx context.Context, entityType, id string) error {
	return nil
}

func (stubRemote) FetchChangesSince(ctx context.Context, entityType string, since time.Time) ([]remote.Change, error) {
	return nil, nil
}

type alwaysOnline struct{}

func (alwaysOnline) Probe(ctx context.Context) bool { return true }

type testEnv struct {
	engine *engine.Engine
	repo   *store.Repository
	queue  *queue.Queue
	router *mux.Router
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := store.OpenInMemory()
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := store.Migrate(db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	repo := store.NewRepository(db.DB)
	q := queue.New(repo)
	eng := engine.New(q, repo, stubRemote{})
	monitor := network.NewMonitor(alwaysOnline{}, time.Minute)
	sched := scheduler.New(eng, monitor, nil)

	syncHandler := NewSyncHandler(sched, repo)
	actionHandler := NewActionHandler(eng)
	snapshotHandler := NewSnapshotHandler(repo)

	router := mux.NewRouter()
	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", syncHandler.Health).Methods(http.MethodGet)
	api.HandleFunc("/sync", syncHandler.TriggerSync).Methods(http.MethodPost)
	api.HandleFunc("/sync/status", syncHandler.GetStatus).Methods(http.MethodGet)
	api.HandleFunc("/queue", syncHandler.ListQueue).Methods(http.MethodGet)
	api.HandleFunc("/conflicts", syncHandler.ListConflicts).Methods(http.MethodGet)
	api.HandleFunc("/actions", actionHandler.Enqueue).Methods(http.MethodPost)
	api.HandleFunc("/entities/{type}", snapshotHandler.List).Methods(http.MethodGet)
	api.HandleFunc("/entities/{type}/{id}", snapshotHandler.Get).Methods(http.MethodGet)

	return &testEnv{engine: eng, repo: repo, queue: q, router: router}
}

func (env *testEnv) do(t *testing.T, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
}

func TestEnqueueAction(t *testing.T) {
	env := newTestEnv(t)

	body := []byte(`{"kind":"update","entity_type":"fields","entity_id":"f1","payload":{"n":1}}`)
	rec := env.do(t, http.MethodPost, "/api/actions", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response: %v", err)
	}
	if resp["action_id"] == "" {
		t.Error("Expected action_id in response")
	}

	count, err := env.queue.PendingCount()
	if err != nil {
		t.Fatalf("pending count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 pending action, got %d", count)
	}
}

func TestEnqueueAction_validation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body string
	}{
		{"unknown kind", `{"kind":"upsert","entity_type":"fields","entity_id":"f1","payload":{}}`},
		{"missing entity type", `{"kind":"update","entity_id":"f1","payload":{}}`},
		{"missing payload", `{"kind":"update","entity_type":"fields","entity_id":"f1"}`},
		{"malformed json", `{"kind":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/actions", []byte(tt.body))
			if rec.Code != http.StatusBadRequest {
				t.Errorf("Expected 400, got %d", rec.Code)
			}
		})
	}
}

func TestListQueue(t *testing.T) {
	env := newTestEnv(t)

	if _, err := env.engine.Enqueue(models.ActionUpdate, "fields", "f1", []byte(`{}`)); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if _, err := env.engine.Enqueue(models.ActionUpdate, "fields", "f2", []byte(`{}`)); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	rec := env.do(t, http.MethodGet, "/api/queue", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var resp struct {
		Count   int                    `json:"count"`
		Actions []*models.QueuedAction `json:"actions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response: %v", err)
	}
	if resp.Count != 2 {
		t.Errorf("Expected 2 actions, got %d", resp.Count)
	}
	if len(resp.Actions) == 2 && resp.Actions[0].EntityID != "f1" {
		t.Errorf("Expected enqueue order preserved, got %s first", resp.Actions[0].EntityID)
	}
}

func TestTriggerSync(t *testing.T) {
	env := newTestEnv(t)

	if _, err := env.engine.Enqueue(models.ActionUpdate, "fields", "f1", []byte(`{}`)); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	rec := env.do(t, http.MethodPost, "/api/sync", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var result engine.SyncResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("invalid response: %v", err)
	}
	if !result.Success {
		t.Error("Expected successful pass")
	}
	if result.SyncedCount != 1 {
		t.Errorf("Expected 1 synced, got %d", result.SyncedCount)
	}

	// Queue is empty after the pass.
	rec = env.do(t, http.MethodGet, "/api/queue", nil)
	var queueResp struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &queueResp); err != nil {
		t.Fatalf("invalid response: %v", err)
	}
	if queueResp.Count != 0 {
		t.Errorf("Expected empty queue after sync, got %d", queueResp.Count)
	}
}

func TestGetStatus(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/sync/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var status scheduler.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("invalid response: %v", err)
	}
	if status.EngineState != engine.StateIdle {
		t.Errorf("Expected idle engine, got %s", status.EngineState)
	}
}

func TestListConflicts_invalidLimit(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/conflicts?limit=zero", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rec.Code)
	}
}

func TestSnapshotEndpoints(t *testing.T) {
	env := newTestEnv(t)

	err := env.repo.UpsertSnapshot(&models.EntitySnapshot{
		EntityType: "fields",
		EntityID:   "f1",
		Payload:    []byte(`{"n":1}`),
		UpdatedAt:  time.Now().UnixNano(),
	})
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	rec := env.do(t, http.MethodGet, "/api/entities/fields", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var listResp struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listResp); err != nil {
		t.Fatalf("invalid response: %v", err)
	}
	if listResp.Count != 1 {
		t.Errorf("Expected 1 entity, got %d", listResp.Count)
	}

	rec = env.do(t, http.MethodGet, "/api/entities/fields/f1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/api/entities/fields/missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rec.Code)
	}
}
