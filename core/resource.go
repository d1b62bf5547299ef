package core

import (
	"fmt"
	"sync"
)

// ResourceState tracks the ownership lifecycle of a native resource.
type ResourceState int

const (
	ResourceUnassigned ResourceState = iota
	ResourceLive
	ResourceMoved
	ResourceReleased
)

func (s ResourceState) String() string {
	switch s {
	case ResourceLive:
		return "live"
	case ResourceMoved:
		return "moved"
	case ResourceReleased:
		return "released"
	default:
		return "unassigned"
	}
}

// Resource is the single-owner lifecycle shared by every handle type.
//
// A zero Resource is unassigned. Assign makes it live; from there it either
// moves to another owner (Move) or is released exactly once (Release). Any
// operation guarded by Check fails with ErrorInvalidHandle unless the
// resource is live. A second Release is reported, not absorbed.
type Resource struct {
	mu      sync.Mutex
	name    string
	state   ResourceState
	release func() error
}

// Assign binds the release hook and marks the resource live.
func (r *Resource) Assign(name string, release func() error) error {
	if r == nil {
		return NewError(ErrorInvalidHandle, "core: resource is nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != ResourceUnassigned {
		return NewError(ErrorInvalidHandle, fmt.Sprintf("core: %s handle already assigned", r.label()))
	}
	r.name = name
	r.release = release
	r.state = ResourceLive
	return nil
}

func (r *Resource) State() ResourceState {
	if r == nil {
		return ResourceUnassigned
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Resource) Live() bool {
	return r.State() == ResourceLive
}

// Check returns ErrorInvalidHandle unless the resource is live.
func (r *Resource) Check() error {
	if r == nil {
		return NewError(ErrorInvalidHandle, "core: handle is nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.checkLocked()
}

// Move transfers ownership away. The release hook will not run for this
// resource; the new owner is responsible for the underlying value.
func (r *Resource) Move() error {
	if r == nil {
		return NewError(ErrorInvalidHandle, "core: handle is nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkLocked(); err != nil {
		return err
	}
	r.state = ResourceMoved
	r.release = nil
	return nil
}

// Release runs the release hook once. Releasing a moved-from resource is a
// no-op; releasing twice or releasing an unassigned resource fails.
func (r *Resource) Release() error {
	if r == nil {
		return NewError(ErrorInvalidHandle, "core: handle is nil")
	}
	r.mu.Lock()
	switch r.state {
	case ResourceMoved:
		r.mu.Unlock()
		return nil
	case ResourceReleased:
		r.mu.Unlock()
		return NewError(ErrorInvalidHandle, fmt.Sprintf("core: %s handle already released", r.label()))
	case ResourceUnassigned:
		r.mu.Unlock()
		return NewError(ErrorInvalidHandle, fmt.Sprintf("core: %s handle was never assigned", r.label()))
	}
	release := r.release
	r.release = nil
	r.state = ResourceReleased
	r.mu.Unlock()

	if release == nil {
		return nil
	}
	if err := release(); err != nil {
		return WrapError(err, ErrorInternal, fmt.Sprintf("core: release %s handle", r.label()))
	}
	return nil
}

func (r *Resource) checkLocked() error {
	switch r.state {
	case ResourceLive:
		return nil
	case ResourceMoved:
		return NewError(ErrorInvalidHandle, fmt.Sprintf("core: %s handle was moved to another owner", r.label()))
	case ResourceReleased:
		return NewError(ErrorInvalidHandle, fmt.Sprintf("core: %s handle already released", r.label()))
	default:
		return NewError(ErrorInvalidHandle, fmt.Sprintf("core: %s handle was never assigned", r.label()))
	}
}

func (r *Resource) label() string {
	if r.name == "" {
		return "resource"
	}
	return r.name
}

// Handle owns a value of T under the Resource contract.
type Handle[T any] struct {
	res   Resource
	value T
}

// NewHandle returns a live handle; release runs at most once with the value.
func NewHandle[T any](name string, value T, release func(T) error) *Handle[T] {
	h := &Handle[T]{value: value}
	var hook func() error
	if release != nil {
		hook = func() error {
			return release(h.value)
		}
	}
	_ = h.res.Assign(name, hook)
	return h
}

// Get borrows the value while the handle is live.
func (h *Handle[T]) Get() (T, error) {
	var zero T
	if h == nil {
		return zero, NewError(ErrorInvalidHandle, "core: handle is nil")
	}
	if err := h.res.Check(); err != nil {
		return zero, err
	}
	return h.value, nil
}

// Take moves the value out and leaves the handle in the moved-from state.
func (h *Handle[T]) Take() (T, error) {
	var zero T
	if h == nil {
		return zero, NewError(ErrorInvalidHandle, "core: handle is nil")
	}
	if err := h.res.Move(); err != nil {
		return zero, err
	}
	value := h.value
	h.value = zero
	return value, nil
}

func (h *Handle[T]) Release() error {
	if h == nil {
		return NewError(ErrorInvalidHandle, "core: handle is nil")
	}
	return h.res.Release()
}

func (h *Handle[T]) State() ResourceState {
	if h == nil {
		return ResourceUnassigned
	}
	return h.res.State()
}
