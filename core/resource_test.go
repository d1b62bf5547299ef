package core

import (
	"errors"
	"testing"
)

func TestHandle_ReleaseRunsOnce(t *testing.T) {
	released := 0
	handle := NewHandle("widget", 7, func(int) error {
		released++
		return nil
	})

	value, err := handle.Get()
	if err != nil || value != 7 {
		t.Fatalf("expected live value, got %d err=%v", value, err)
	}
	if err := handle.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := handle.Release(); !IsKind(err, ErrorInvalidHandle) {
		t.Fatalf("expected second release to fail with invalid handle, got %v", err)
	}
	if released != 1 {
		t.Fatalf("expected release hook to run once, ran %d", released)
	}
	if _, err := handle.Get(); !IsKind(err, ErrorInvalidHandle) {
		t.Fatalf("expected use after release to fail, got %v", err)
	}
}

func TestHandle_TakeMovesOwnership(t *testing.T) {
	released := 0
	handle := NewHandle("widget", "payload", func(string) error {
		released++
		return nil
	})

	value, err := handle.Take()
	if err != nil || value != "payload" {
		t.Fatalf("take: %q %v", value, err)
	}
	if handle.State() != ResourceMoved {
		t.Fatalf("expected moved state, got %s", handle.State())
	}
	if _, err := handle.Take(); !IsKind(err, ErrorInvalidHandle) {
		t.Fatalf("expected second take to fail, got %v", err)
	}
	if err := handle.Release(); err != nil {
		t.Fatalf("expected release of moved handle to be a no-op, got %v", err)
	}
	if released != 0 {
		t.Fatalf("moved handle must not run the release hook")
	}
}

func TestResource_UnassignedIsInvalid(t *testing.T) {
	var res Resource
	if err := res.Check(); !IsKind(err, ErrorInvalidHandle) {
		t.Fatalf("expected unassigned resource to be invalid, got %v", err)
	}
	if err := res.Release(); !IsKind(err, ErrorInvalidHandle) {
		t.Fatalf("expected release of unassigned resource to fail, got %v", err)
	}

	var nilHandle *Handle[int]
	if _, err := nilHandle.Get(); !IsKind(err, ErrorInvalidHandle) {
		t.Fatalf("expected nil handle to be invalid, got %v", err)
	}
}

func TestResource_ReleaseHookErrorIsInternal(t *testing.T) {
	var res Resource
	if err := res.Assign("engine", func() error { return errors.New("close failed") }); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if err := res.Assign("engine", nil); !IsKind(err, ErrorInvalidHandle) {
		t.Fatalf("expected double assign to fail, got %v", err)
	}
	if err := res.Release(); !IsKind(err, ErrorInternal) {
		t.Fatalf("expected internal error from hook, got %v", err)
	}
	if res.State() != ResourceReleased {
		t.Fatalf("expected released even when hook fails")
	}
}

func TestResult_ThreeWayOutcome(t *testing.T) {
	if Found(1).Outcome() != OutcomeValue {
		t.Fatalf("expected value outcome")
	}
	if None[int]().Outcome() != OutcomeNone {
		t.Fatalf("expected none outcome")
	}
	failed := Failed[int](NewError(ErrorNetwork, "down"))
	if failed.Outcome() != OutcomeError || failed.Found() {
		t.Fatalf("expected error outcome")
	}
	if _, err := None[int]().OrNotFound("missing"); !IsKind(err, ErrorNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if Failed[int](nil).Err() == nil {
		t.Fatalf("expected failed result to always carry an error")
	}
}
