// Package errors tests for error code wrapping and matching.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
)

func TestAppErrorFormat(t *testing.T) {
	err := New(ErrSyncInProgress, "sync already in progress")

	if !strings.Contains(err.Error(), "SYNC_IN_PROGRESS") {
		t.Errorf("Error() = %q, want code in message", err.Error())
	}

	wrapped := Wrap(ErrPersistence, "write action", stderrors.New("disk full"))
	if !strings.Contains(wrapped.Error(), "disk full") {
		t.Errorf("Error() = %q, want underlying cause", wrapped.Error())
	}
}

func TestUnwrap(t *testing.T) {
	cause := stderrors.New("boom")
	err := Wrap(ErrRemoteCall, "create plot", cause)

	if !stderrors.Is(err, cause) {
		t.Error("errors.Is should find the wrapped cause")
	}
}

func TestIsByCode(t *testing.T) {
	err := Wrap(ErrActionDropped, "retry ceiling reached",
		New(ErrRemoteCall, "create failed"))

	if !Is(err, ErrActionDropped) {
		t.Error("Is should match the outer code")
	}
	if !Is(err, ErrRemoteCall) {
		t.Error("Is should match a code deeper in the chain")
	}
	if Is(err, ErrMigration) {
		t.Error("Is should not match an absent code")
	}

	// fmt-wrapped errors still match through Unwrap.
	outer := fmt.Errorf("pass failed: %w", err)
	if !Is(outer, ErrActionDropped) {
		t.Error("Is should traverse fmt.Errorf wrapping")
	}
}

func TestCodeOf(t *testing.T) {
	if got := CodeOf(New(ErrOffline, "no network")); got != ErrOffline {
		t.Errorf("CodeOf = %s, want ErrOffline", got)
	}
	if got := CodeOf(stderrors.New("plain")); got != ErrInternal {
		t.Errorf("CodeOf(plain) = %s, want ErrInternal", got)
	}
}
