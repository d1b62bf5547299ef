package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-accounts/core"
)

type failingDoer struct{}

func (failingDoer) Do(*http.Request) (*http.Response, error) {
	return nil, errors.New("dial tcp: connection refused")
}

func TestRESTAdapter_DoMergesHeadersAndQuery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "application/json" {
			t.Errorf("expected default accept header, got %q", r.Header.Get("Accept"))
		}
		if r.Header.Get("X-Trace") != "trace-1" {
			t.Errorf("expected request header, got %q", r.Header.Get("X-Trace"))
		}
		if r.URL.Query().Get("full") != "1" {
			t.Errorf("expected query parameter, got %q", r.URL.RawQuery)
		}
		w.Header().Set("x-weave-timestamp", "1700000000.00")
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	adapter := NewRESTAdapter(nil)
	res, err := adapter.Do(context.Background(), core.TransportRequest{
		URL:     server.URL + "/collection",
		Query:   map[string]string{"full": "1"},
		Headers: map[string]string{"X-Trace": "trace-1"},
	})
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	if res.StatusCode != http.StatusTeapot {
		t.Fatalf("expected status to pass through, got %d", res.StatusCode)
	}
	if res.Headers["X-Weave-Timestamp"] != "1700000000.00" {
		t.Fatalf("expected canonical header key, got %+v", res.Headers)
	}
	if string(res.Body) != `{"ok":true}` {
		t.Fatalf("unexpected body %q", string(res.Body))
	}
}

func TestRESTAdapter_NetworkFailureIsTransient(t *testing.T) {
	adapter := NewRESTAdapter(failingDoer{})
	_, err := adapter.Do(context.Background(), core.TransportRequest{URL: "https://example.com/path?access_token=secret"})
	if !core.IsTransient(err) {
		t.Fatalf("expected transient network error, got %v", err)
	}
	if strings.Contains(err.Error(), "secret") {
		t.Fatalf("expected query to be redacted from error, got %v", err)
	}
}

func TestRESTAdapter_BodyLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 64)))
	}))
	defer server.Close()

	adapter := NewRESTAdapterFromConfig(nil, core.TransportConfig{MaxResponseBodyBytes: 16})
	_, err := adapter.Do(context.Background(), core.TransportRequest{URL: server.URL})
	if !core.IsKind(err, core.ErrorServer) {
		t.Fatalf("expected server error for oversized body, got %v", err)
	}

	res, err := adapter.Do(context.Background(), core.TransportRequest{URL: server.URL, MaxResponseBodyBytes: 128})
	if err != nil || len(res.Body) != 64 {
		t.Fatalf("expected request limit to override adapter limit, got %d %v", len(res.Body), err)
	}
}

func TestRESTAdapter_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	adapter := NewRESTAdapter(nil)
	_, err := adapter.Do(context.Background(), core.TransportRequest{URL: server.URL, Timeout: 20 * time.Millisecond})
	if !core.IsTransient(err) {
		t.Fatalf("expected timeout to be a network error, got %v", err)
	}
}

func TestRESTAdapter_RejectsMissingURL(t *testing.T) {
	_, err := NewRESTAdapter(nil).Do(context.Background(), core.TransportRequest{})
	if !core.IsKind(err, core.ErrorBadInput) {
		t.Fatalf("expected bad input, got %v", err)
	}
}
