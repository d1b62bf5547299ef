package ratelimit

import (
	"testing"
	"time"

	"github.com/goliatone/go-accounts/core"
)

func TestThrottledError_ToServiceError(t *testing.T) {
	err := ThrottledError{
		Key:        "storage.example.com",
		RetryAfter: 3 * time.Second,
	}

	mapped := err.ToServiceError()
	if mapped == nil {
		t.Fatalf("expected mapped error")
	}
	if mapped.TextCode != string(core.ErrorServer) {
		t.Fatalf("expected %q text code, got %q", core.ErrorServer, mapped.TextCode)
	}
	if mapped.Code != 503 {
		t.Fatalf("expected status code 503, got %d", mapped.Code)
	}
	if mapped.Metadata["retry_after_ms"] != int64(3000) {
		t.Fatalf("expected retry hint metadata, got %+v", mapped.Metadata)
	}
	if !core.IsKind(mapped, core.ErrorServer) || core.IsTransient(mapped) {
		t.Fatalf("expected a non transient server error")
	}
}
