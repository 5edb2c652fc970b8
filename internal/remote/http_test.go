// Package remote tests for the HTTP remote client.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	apperrors "github.com/agrihub/fieldsync/internal/errors"
)

func TestHTTPRemoteCreate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/plot" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"id":"srv-9"}`)
	}))
	defer srv.Close()

	r := NewHTTPRemote(srv.URL)
	id, err := r.Create(context.Background(), "plot", json.RawMessage(`{"name":"North Field"}`))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if id != "srv-9" {
		t.Errorf("id = %s, want srv-9", id)
	}
}

func TestHTTPRemoteCreateWithoutID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	r := NewHTTPRemote(srv.URL)
	_, err := r.Create(context.Background(), "plot", json.RawMessage(`{}`))
	if !apperrors.Is(err, apperrors.ErrRemoteCall) {
		t.Errorf("err = %v, want remote call error", err)
	}
}

func TestHTTPRemoteUpdateAndDelete(t *testing.T) {
	var gotMethod, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	r := NewHTTPRemote(srv.URL)

	if err := r.Update(context.Background(), "plot", "p-1", json.RawMessage(`{"x":1}`)); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if gotMethod != http.MethodPut || gotPath != "/api/plot/p-1" {
		t.Errorf("update sent %s %s", gotMethod, gotPath)
	}

	if err := r.Delete(context.Background(), "plot", "p-1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if gotMethod != http.MethodDelete {
		t.Errorf("delete sent %s", gotMethod)
	}
}

func TestHTTPRemoteErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such record", http.StatusNotFound)
	}))
	defer srv.Close()

	r := NewHTTPRemote(srv.URL)
	err := r.Update(context.Background(), "plot", "ghost", json.RawMessage(`{}`))
	if !apperrors.Is(err, apperrors.ErrRemoteCall) {
		t.Errorf("err = %v, want remote call error", err)
	}
}

func TestHTTPRemoteFetchChangesSince(t *testing.T) {
	now := time.Now()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("since"); got == "" {
			t.Error("since parameter missing")
		}
		fmt.Fprintf(w, `[{"id":"p-1","payload":{"name":"North Field"},"updated_at":%d}]`, now.UnixNano())
	}))
	defer srv.Close()

	r := NewHTTPRemote(srv.URL)
	changes, err := r.FetchChangesSince(context.Background(), "plot", now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("FetchChangesSince failed: %v", err)
	}
	if len(changes) != 1 {
		t.Fatalf("got %d changes, want 1", len(changes))
	}
	if changes[0].ID != "p-1" {
		t.Errorf("id = %s", changes[0].ID)
	}
	if !changes[0].UpdatedAt.Equal(time.Unix(0, now.UnixNano())) {
		t.Errorf("updated_at = %v", changes[0].UpdatedAt)
	}
}

func TestHTTPRemoteFetchZeroTimeOmitsSince(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.RawQuery != "" {
			t.Errorf("query = %q, want none for zero time", r.URL.RawQuery)
		}
		fmt.Fprint(w, `[]`)
	}))
	defer srv.Close()

	r := NewHTTPRemote(srv.URL)
	changes, err := r.FetchChangesSince(context.Background(), "plot", time.Time{})
	if err != nil {
		t.Fatalf("FetchChangesSince failed: %v", err)
	}
	if len(changes) != 0 {
		t.Errorf("changes = %v", changes)
	}
}

func TestHTTPRemoteToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer s3cret" {
			t.Errorf("Authorization = %q", got)
		}
		fmt.Fprint(w, `[]`)
	}))
	defer srv.Close()

	r := NewHTTPRemote(srv.URL, WithToken("s3cret"))
	if _, err := r.FetchChangesSince(context.Background(), "plot", time.Time{}); err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
}
