package logins

import (
	"context"
	"sort"
	"sync"

	"github.com/goliatone/go-accounts/core"
)

// MemoryLoginStore keeps local, mirror and meta rows in process memory.
// WithTx runs against a copy and swaps it in on success.
type MemoryLoginStore struct {
	mu     sync.Mutex
	local  map[string]core.LocalLogin
	mirror map[string]core.MirrorLogin
	meta   map[string]string
	closed bool
}

func NewMemoryLoginStore() *MemoryLoginStore {
	return &MemoryLoginStore{
		local:  map[string]core.LocalLogin{},
		mirror: map[string]core.MirrorLogin{},
		meta:   map[string]string{},
	}
}

func (s *MemoryLoginStore) GetLocal(_ context.Context, id string) (core.LocalLogin, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(); err != nil {
		return core.LocalLogin{}, false, err
	}
	row, ok := s.local[id]
	if !ok {
		return core.LocalLogin{}, false, nil
	}
	row.Login = core.CloneLogin(row.Login)
	return row, true, nil
}

func (s *MemoryLoginStore) GetMirror(_ context.Context, id string) (core.MirrorLogin, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(); err != nil {
		return core.MirrorLogin{}, false, err
	}
	row, ok := s.mirror[id]
	if !ok {
		return core.MirrorLogin{}, false, nil
	}
	row.Login = core.CloneLogin(row.Login)
	return row, true, nil
}

func (s *MemoryLoginStore) ListLocal(context.Context) ([]core.LocalLogin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(); err != nil {
		return nil, err
	}
	out := make([]core.LocalLogin, 0, len(s.local))
	for _, row := range s.local {
		row.Login = core.CloneLogin(row.Login)
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryLoginStore) ListMirror(context.Context) ([]core.MirrorLogin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(); err != nil {
		return nil, err
	}
	out := make([]core.MirrorLogin, 0, len(s.mirror))
	for _, row := range s.mirror {
		row.Login = core.CloneLogin(row.Login)
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryLoginStore) PutLocal(_ context.Context, login core.LocalLogin) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(); err != nil {
		return err
	}
	if login.ID == "" {
		return core.NewError(core.ErrorBadInput, "logins: local row id is required")
	}
	login.Login = core.CloneLogin(login.Login)
	s.local[login.ID] = login
	return nil
}

func (s *MemoryLoginStore) PutMirror(_ context.Context, login core.MirrorLogin) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(); err != nil {
		return err
	}
	if login.ID == "" {
		return core.NewError(core.ErrorBadInput, "logins: mirror row id is required")
	}
	login.Login = core.CloneLogin(login.Login)
	s.mirror[login.ID] = login
	return nil
}

func (s *MemoryLoginStore) DeleteLocal(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(); err != nil {
		return err
	}
	delete(s.local, id)
	return nil
}

func (s *MemoryLoginStore) DeleteMirror(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(); err != nil {
		return err
	}
	delete(s.mirror, id)
	return nil
}

func (s *MemoryLoginStore) GetMeta(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(); err != nil {
		return "", false, err
	}
	value, ok := s.meta[key]
	return value, ok, nil
}

func (s *MemoryLoginStore) PutMeta(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(); err != nil {
		return err
	}
	s.meta[key] = value
	return nil
}

func (s *MemoryLoginStore) DeleteMeta(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(); err != nil {
		return err
	}
	delete(s.meta, key)
	return nil
}

func (s *MemoryLoginStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx core.LoginStore) error) error {
	if fn == nil {
		return nil
	}
	s.mu.Lock()
	if err := s.checkLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	staged := s.snapshotLocked()
	s.mu.Unlock()

	if err := fn(ctx, staged); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(); err != nil {
		return err
	}
	s.local = staged.local
	s.mirror = staged.mirror
	s.meta = staged.meta
	return nil
}

func (s *MemoryLoginStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(); err != nil {
		return err
	}
	s.local = map[string]core.LocalLogin{}
	s.mirror = map[string]core.MirrorLogin{}
	s.meta = map[string]string{}
	return nil
}

func (s *MemoryLoginStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *MemoryLoginStore) snapshotLocked() *MemoryLoginStore {
	staged := NewMemoryLoginStore()
	for id, row := range s.local {
		row.Login = core.CloneLogin(row.Login)
		staged.local[id] = row
	}
	for id, row := range s.mirror {
		row.Login = core.CloneLogin(row.Login)
		staged.mirror[id] = row
	}
	for key, value := range s.meta {
		staged.meta[key] = value
	}
	return staged
}

func (s *MemoryLoginStore) checkLocked() error {
	if s.closed {
		return core.NewError(core.ErrorInvalidHandle, "logins: store is closed")
	}
	return nil
}

var _ core.LoginStore = (*MemoryLoginStore)(nil)
