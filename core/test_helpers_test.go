package core

import (
	"context"
	"sync"
	"time"
)

type stubLogger struct{}

func (stubLogger) Trace(string, ...any) {}
func (stubLogger) Debug(string, ...any) {}
func (stubLogger) Info(string, ...any)  {}
func (stubLogger) Warn(string, ...any)  {}
func (stubLogger) Error(string, ...any) {}
func (stubLogger) Fatal(string, ...any) {}
func (s stubLogger) WithContext(context.Context) Logger {
	return s
}

type stubLoggerProvider struct {
	logger Logger
}

func (s stubLoggerProvider) GetLogger(string) Logger {
	return s.logger
}

type mapRawLoader struct {
	values map[string]any
}

func (l mapRawLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.values))
	for key, value := range l.values {
		out[key] = value
	}
	return out, nil
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeIdentityClient answers token exchanges from a script and counts calls.
type fakeIdentityClient struct {
	mu        sync.Mutex
	requests  []TokenRequest
	profiles  int
	tokenErrs []error
	grant     func(req TokenRequest) TokenGrant
	profile   Profile
	profErr   error
}

func newFakeIdentityClient() *fakeIdentityClient {
	return &fakeIdentityClient{
		profile: Profile{UID: "uid-1", Email: "user@example.com", Avatar: "https://example.com/a.png"},
	}
}

func (c *fakeIdentityClient) Token(_ context.Context, req TokenRequest) (TokenGrant, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)
	if len(c.tokenErrs) > 0 {
		err := c.tokenErrs[0]
		c.tokenErrs = c.tokenErrs[1:]
		if err != nil {
			return TokenGrant{}, err
		}
	}
	if c.grant != nil {
		return c.grant(req), nil
	}
	grant := TokenGrant{
		AccessToken: "access-" + string(req.GrantType) + "-" + ScopeKey(req.Scopes),
		Scopes:      req.Scopes,
		ExpiresIn:   time.Hour,
	}
	if req.GrantType == GrantAuthorizationCode {
		grant.RefreshToken = "refresh-1"
		grant.Keys = []ScopedKey{{
			Scope: ScopeOldSync,
			KeyID: "1600000000000-Y2xpZW50c3RhdGU",
			Key:   "AAECAwQFBgcICQoLDA0ODxAREhMUFRYXGBkaGxwdHh8gISIjJCUmJygpKissLS4vMDEyMzQ1Njc4OTo7PD0-Pw",
			Kty:   "oct",
		}}
	}
	return grant, nil
}

func (c *fakeIdentityClient) Profile(_ context.Context, _ Endpoints, accessToken string) (Profile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.profiles++
	if c.profErr != nil {
		return Profile{}, c.profErr
	}
	if accessToken == "" {
		return Profile{}, NewError(ErrorUnauthorized, "missing token")
	}
	return c.profile, nil
}

func (c *fakeIdentityClient) tokenCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

func (c *fakeIdentityClient) lastRequest() TokenRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.requests) == 0 {
		return TokenRequest{}
	}
	return c.requests[len(c.requests)-1]
}

type testSecretProvider struct{}

func (testSecretProvider) Encrypt(_ context.Context, plaintext []byte) ([]byte, error) {
	out := make([]byte, len(plaintext))
	for i, b := range plaintext {
		out[i] = b ^ 0x5a
	}
	return out, nil
}

func (p testSecretProvider) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	return p.Encrypt(ctx, ciphertext)
}

func newTestService(t interface {
	Fatalf(string, ...any)
}, client IdentityClient, clock *testClock) *Service {
	svc, err := NewService(Config{},
		WithLogger(stubLogger{}),
		WithIdentityClient(client),
		WithClock(clock.Now),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}
