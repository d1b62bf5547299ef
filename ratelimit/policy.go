package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-accounts/core"
	goerrors "github.com/goliatone/go-errors"
)

const (
	headerRetryAfter   = "retry-after"
	headerWeaveBackoff = "x-weave-backoff"
	headerBackoff      = "x-backoff"
)

var ErrStateNotFound = errors.New("ratelimit: state not found")

// State is what the policy remembers about one remote service.
type State struct {
	Key          string
	BackoffUntil *time.Time
	RetryAfter   *time.Duration
	LastStatus   int
	Attempts     int
	UpdatedAt    time.Time
}

type StateStore interface {
	Get(ctx context.Context, key string) (State, error)
	Upsert(ctx context.Context, state State) error
}

// ThrottledError reports a call refused because the server asked clients to
// back off.
type ThrottledError struct {
	Key        string
	RetryAfter time.Duration
}

func (e ThrottledError) Error() string {
	return fmt.Sprintf("ratelimit: %q asked clients to back off for %s", strings.TrimSpace(e.Key), e.RetryAfter)
}

// ToServiceError classifies the refusal as a server error so sync surfaces
// it without retrying.
func (e ThrottledError) ToServiceError() *goerrors.Error {
	metadata := map[string]any{"service": strings.TrimSpace(e.Key)}
	if e.RetryAfter > 0 {
		metadata["retry_after_ms"] = e.RetryAfter.Milliseconds()
	}
	return goerrors.New(e.Error(), goerrors.CategoryRateLimit).
		WithCode(http.StatusServiceUnavailable).
		WithTextCode(string(core.ErrorServer)).
		WithMetadata(metadata)
}

// BackoffPolicy honors Retry-After, X-Weave-Backoff and X-Backoff hints.
// Without a hint, 429 and 503 responses back off exponentially.
type BackoffPolicy struct {
	Store          StateStore
	Now            func() time.Time
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func NewBackoffPolicy(store StateStore) *BackoffPolicy {
	if store == nil {
		store = NewMemoryStateStore()
	}
	return &BackoffPolicy{
		Store:          store,
		Now:            func() time.Time { return time.Now().UTC() },
		InitialBackoff: time.Second,
		MaxBackoff:     10 * time.Minute,
	}
}

func (p *BackoffPolicy) BeforeCall(ctx context.Context, key string) error {
	if p == nil || p.Store == nil {
		return nil
	}
	state, err := p.Store.Get(ctx, normalizeKey(key))
	if err != nil {
		if errors.Is(err, ErrStateNotFound) {
			return nil
		}
		return err
	}
	now := p.now()
	if until := state.BackoffUntil; until != nil && now.Before(*until) {
		return ThrottledError{Key: state.Key, RetryAfter: until.Sub(now)}.ToServiceError()
	}
	return nil
}

func (p *BackoffPolicy) AfterCall(ctx context.Context, key string, res core.TransportResponse) error {
	if p == nil || p.Store == nil {
		return nil
	}
	key = normalizeKey(key)
	now := p.now()
	state, err := p.Store.Get(ctx, key)
	if err != nil && !errors.Is(err, ErrStateNotFound) {
		return err
	}
	if errors.Is(err, ErrStateNotFound) {
		state = State{Key: key}
	}
	state.LastStatus = res.StatusCode
	state.UpdatedAt = now

	hint, hasHint := backoffHint(res.Headers, now)
	if hasHint {
		state.RetryAfter = &hint
	} else {
		state.RetryAfter = nil
	}

	switch {
	case hasHint:
		state.Attempts++
		until := now.Add(hint)
		state.BackoffUntil = &until
	case isThrottled(res.StatusCode):
		state.Attempts++
		until := now.Add(p.nextBackoff(state.Attempts))
		state.BackoffUntil = &until
	default:
		state.Attempts = 0
		state.BackoffUntil = nil
	}
	return p.Store.Upsert(ctx, state)
}

func (p *BackoffPolicy) now() time.Time {
	if p != nil && p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}

func (p *BackoffPolicy) nextBackoff(attempt int) time.Duration {
	initial := p.InitialBackoff
	if initial <= 0 {
		initial = time.Second
	}
	maximum := p.MaxBackoff
	if maximum <= 0 {
		maximum = 10 * time.Minute
	}
	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maximum {
			return maximum
		}
	}
	return delay
}

func isThrottled(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || statusCode == http.StatusServiceUnavailable
}

// backoffHint returns the longest delay the server asked for.
func backoffHint(headers map[string]string, now time.Time) (time.Duration, bool) {
	var longest time.Duration
	for _, name := range []string{headerWeaveBackoff, headerBackoff} {
		if seconds, ok := parseSeconds(headerValue(headers, name)); ok && seconds > longest {
			longest = seconds
		}
	}
	if retry, ok := parseRetryAfter(headerValue(headers, headerRetryAfter), now); ok && retry > longest {
		longest = retry
	}
	return longest, longest > 0
}

func parseRetryAfter(raw string, now time.Time) (time.Duration, bool) {
	if raw == "" {
		return 0, false
	}
	if seconds, ok := parseSeconds(raw); ok {
		return seconds, true
	}
	if retryAt, err := httpDate(raw); err == nil && retryAt.After(now) {
		return retryAt.Sub(now), true
	}
	return 0, false
}

func parseSeconds(raw string) (time.Duration, bool) {
	if raw == "" {
		return 0, false
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds <= 0 {
		return 0, false
	}
	return time.Duration(seconds) * time.Second, true
}

func httpDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("ratelimit: empty date")
	}
	if parsed, err := http.ParseTime(value); err == nil {
		return parsed.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("ratelimit: invalid http date")
}

func headerValue(headers map[string]string, key string) string {
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), key) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

func normalizeKey(key string) string {
	return strings.TrimSpace(strings.ToLower(key))
}

type MemoryStateStore struct {
	mu    sync.RWMutex
	items map[string]State
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{items: map[string]State{}}
}

func (s *MemoryStateStore) Get(_ context.Context, key string) (State, error) {
	if s == nil {
		return State{}, fmt.Errorf("ratelimit: state store is nil")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.items[normalizeKey(key)]
	if !ok {
		return State{}, ErrStateNotFound
	}
	return state, nil
}

func (s *MemoryStateStore) Upsert(_ context.Context, state State) error {
	if s == nil {
		return fmt.Errorf("ratelimit: state store is nil")
	}
	state.Key = normalizeKey(state.Key)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[state.Key] = state
	return nil
}

var _ core.BackoffPolicy = (*BackoffPolicy)(nil)
