package core

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

func TestNewError_AssignsKindAndStatus(t *testing.T) {
	err := NewError(ErrorFlowAlreadyConsumed, "core: flow used")
	if err.TextCode != string(ErrorFlowAlreadyConsumed) {
		t.Fatalf("unexpected text code %q", err.TextCode)
	}
	if err.Category != goerrors.CategoryConflict || err.Code != 409 {
		t.Fatalf("unexpected category/status %q/%d", err.Category, err.Code)
	}
	if KindOf(err) != ErrorFlowAlreadyConsumed {
		t.Fatalf("unexpected kind %q", KindOf(err))
	}
}

func TestKindOf_WrappedAndPlainErrors(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", NewError(ErrorNetwork, "down"))
	if KindOf(wrapped) != ErrorNetwork || !IsTransient(wrapped) {
		t.Fatalf("expected network kind through wrapping, got %q", KindOf(wrapped))
	}
	if KindOf(context.DeadlineExceeded) != ErrorNetwork {
		t.Fatalf("expected deadline to map to network")
	}
	if KindOf(stderrors.New("core: oauth state unknown")) != ErrorOAuthStateMismatch {
		t.Fatalf("expected oauth state message mapped")
	}
	if KindOf(stderrors.New("record not found")) != ErrorNotFound {
		t.Fatalf("expected not found message mapped")
	}
	if KindOf(nil) != "" {
		t.Fatalf("expected empty kind for nil")
	}
}

func TestIsTerminal(t *testing.T) {
	if !IsTerminal(NewError(ErrorUnauthorized, "revoked")) {
		t.Fatalf("expected unauthorized to be terminal")
	}
	if !IsTerminal(stderrors.New("invalid_grant")) {
		t.Fatalf("expected invalid_grant to be terminal")
	}
	if !IsTerminal(MarkReauthRequired(NewError(ErrorServer, "gone"))) {
		t.Fatalf("expected marked error to be terminal")
	}
	if IsTerminal(NewError(ErrorNetwork, "reset")) {
		t.Fatalf("expected network error not to be terminal")
	}
}

func TestWrapError_KeepsSource(t *testing.T) {
	source := stderrors.New("disk full")
	err := WrapError(source, ErrorInternal, "core: write")
	if !stderrors.Is(err, source) {
		t.Fatalf("expected source reachable through unwrap")
	}
}

func TestNewFieldError(t *testing.T) {
	err := NewFieldError("command", "store_id", "logins store id is required")
	if !IsKind(err, ErrorBadInput) {
		t.Fatalf("expected bad input, got %v", err)
	}
	if err.Category != goerrors.CategoryValidation || err.Code != http.StatusBadRequest {
		t.Fatalf("unexpected envelope %q %d", err.Category, err.Code)
	}
	fields := err.AllValidationErrors()
	if len(fields) != 1 || fields[0].Field != "store_id" {
		t.Fatalf("unexpected validation fields %+v", fields)
	}
}
