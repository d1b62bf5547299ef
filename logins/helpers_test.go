package logins

import (
	"context"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-accounts/core"
	"github.com/stretchr/testify/require"
)

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

// fakeCollection is an in-memory remote collection with scripted failures.
type fakeCollection struct {
	mu          sync.Mutex
	clock       *testClock
	records     map[string]core.RemoteLogin
	fetchErrs   []error
	uploadErrs  []error
	wipeErr     error
	fetchCalls  int
	uploadCalls int
	wipeCalls   int
	lastSince   time.Time
	// beforeUpload runs ahead of every upload, outside the lock.
	beforeUpload func()
}

func newFakeCollection(clock *testClock) *fakeCollection {
	return &fakeCollection{clock: clock, records: map[string]core.RemoteLogin{}}
}

func (f *fakeCollection) Fetch(_ context.Context, since time.Time) ([]core.RemoteLogin, time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCalls++
	f.lastSince = since
	if len(f.fetchErrs) > 0 {
		err := f.fetchErrs[0]
		f.fetchErrs = f.fetchErrs[1:]
		if err != nil {
			return nil, time.Time{}, err
		}
	}
	out := make([]core.RemoteLogin, 0, len(f.records))
	for _, record := range f.records {
		if since.IsZero() || record.Modified.After(since) {
			out = append(out, record)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, f.clock.Now(), nil
}

func (f *fakeCollection) Upload(_ context.Context, records []core.RemoteLogin) (time.Time, error) {
	if f.beforeUpload != nil {
		f.beforeUpload()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploadCalls++
	if len(f.uploadErrs) > 0 {
		err := f.uploadErrs[0]
		f.uploadErrs = f.uploadErrs[1:]
		if err != nil {
			return time.Time{}, err
		}
	}
	at := f.clock.Now()
	for _, record := range records {
		record.Modified = at
		f.records[record.ID] = record
	}
	return at, nil
}

func (f *fakeCollection) Wipe(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.wipeCalls++
	if f.wipeErr != nil {
		return f.wipeErr
	}
	f.records = map[string]core.RemoteLogin{}
	return nil
}

func (f *fakeCollection) put(login core.Login, modified time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[login.ID] = core.RemoteLogin{Login: login, Modified: modified}
}

func (f *fakeCollection) tombstone(id string, modified time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[id] = core.RemoteLogin{Login: core.Login{ID: id}, Deleted: true, Modified: modified}
}

func (f *fakeCollection) live() map[string]core.Login {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]core.Login{}
	for id, record := range f.records {
		if !record.Deleted {
			out[id] = record.Login
		}
	}
	return out
}

func testCredentials() core.SyncCredentials {
	syncKey := make([]byte, 64)
	for i := range syncKey {
		syncKey[i] = byte(i)
	}
	return core.SyncCredentials{
		DatabasePath:   "memory",
		EncryptionKey:  strings.Repeat("0f", 32),
		KeyID:          "1600000000000-Y2xpZW50c3RhdGU",
		AccessToken:    "access-token",
		SyncKey:        hex.EncodeToString(syncKey),
		TokenServerURL: "https://token.example.test",
	}
}

func noWaitRetry(attempts int) core.RetryPolicy {
	policy := core.DefaultRetryPolicy()
	policy.MaxAttempts = attempts
	policy.Wait = func(context.Context, time.Duration) error { return nil }
	return policy
}

func formLogin(id, hostname, username, password string) core.Login {
	form := hostname
	return core.Login{
		ID:            id,
		Hostname:      hostname,
		Username:      username,
		Password:      password,
		FormSubmitURL: &form,
	}
}

func openTestSession(t *testing.T, clock *testClock, remote *fakeCollection, opts ...Option) (*Session, *MemoryLoginStore) {
	t.Helper()
	store := NewMemoryLoginStore()
	base := []Option{
		WithStore(store),
		WithCollection(remote),
		WithClock(clock.Now),
		WithRetryPolicy(noWaitRetry(3)),
	}
	session, err := Open(context.Background(), testCredentials(), append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() {
		if session.State() == core.ResourceLive {
			_ = session.Close()
		}
	})
	return session, store
}

func loginIDs(logins []core.Login) []string {
	ids := make([]string, 0, len(logins))
	for _, login := range logins {
		ids = append(ids, login.ID)
	}
	return ids
}
