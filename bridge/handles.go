package bridge

import (
	"sync"
	"sync/atomic"

	"github.com/goliatone/go-accounts/core"
)

// handleMap hands out non zero integer handles. Handles come from a counter
// shared by every table, so a handle of one kind is never valid as another.
type handleMap[T any] struct {
	mu     sync.Mutex
	next   *atomic.Uint64
	values map[uint64]T
}

func newHandleMap[T any](next *atomic.Uint64) *handleMap[T] {
	return &handleMap[T]{next: next, values: map[uint64]T{}}
}

func (m *handleMap[T]) insert(value T) uint64 {
	handle := m.next.Add(1)
	m.mu.Lock()
	m.values[handle] = value
	m.mu.Unlock()
	return handle
}

func (m *handleMap[T]) get(handle uint64) (T, error) {
	m.mu.Lock()
	value, ok := m.values[handle]
	m.mu.Unlock()
	if !ok {
		var zero T
		return zero, core.NewError(core.ErrorInvalidHandle, "bridge: unknown handle")
	}
	return value, nil
}

func (m *handleMap[T]) remove(handle uint64) (T, error) {
	m.mu.Lock()
	value, ok := m.values[handle]
	delete(m.values, handle)
	m.mu.Unlock()
	if !ok {
		var zero T
		return zero, core.NewError(core.ErrorInvalidHandle, "bridge: unknown handle")
	}
	return value, nil
}

func (m *handleMap[T]) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.values)
}
