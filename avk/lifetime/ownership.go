// Package lifetime tracks who is responsible for destroying a Vulkan object.
//
// An Owned value is unique until EnableSharedOwnership is called; after that
// Share hands out further owners and the destroy function runs once the last
// owner releases. A Reference never destroys anything. Ownership is the
// parameter type for APIs that accept either.
package lifetime

import (
	"sync"

	"github.com/cockroachdb/errors"
)

var (
	ErrNotShared = errors.New("resource has unique ownership; call EnableSharedOwnership before sharing it")
	ErrReleased  = errors.New("resource has already been released")
)

type ownedState[T any] struct {
	mu        sync.Mutex
	value     T
	destroy   func(T)
	shared    bool
	owners    int
	destroyed bool
}

type Owned[T any] struct {
	state    *ownedState[T]
	released bool
}

// Own takes unique ownership of value. destroy may be nil.
func Own[T any](value T, destroy func(T)) *Owned[T] {
	return &Owned[T]{
		state: &ownedState[T]{
			value:   value,
			destroy: destroy,
			owners:  1,
		},
	}
}

// Get panics when called on a released owner.
func (o *Owned[T]) Get() T {
	if o.released {
		panic(ErrReleased)
	}
	return o.state.value
}

func (o *Owned[T]) IsShared() bool {
	o.state.mu.Lock()
	defer o.state.mu.Unlock()
	return o.state.shared
}

func (o *Owned[T]) IsReleased() bool {
	return o.released
}

// Owners reports how many live owners share the value.
func (o *Owned[T]) Owners() int {
	o.state.mu.Lock()
	defer o.state.mu.Unlock()
	return o.state.owners
}

// EnableSharedOwnership is irreversible; it returns o for chaining.
func (o *Owned[T]) EnableSharedOwnership() *Owned[T] {
	o.state.mu.Lock()
	o.state.shared = true
	o.state.mu.Unlock()
	return o
}

// Share returns a new owner of the same value.
func (o *Owned[T]) Share() (*Owned[T], error) {
	if o.released {
		return nil, ErrReleased
	}
	o.state.mu.Lock()
	defer o.state.mu.Unlock()
	if !o.state.shared {
		return nil, ErrNotShared
	}
	o.state.owners++
	return &Owned[T]{state: o.state}, nil
}

// Move transfers ownership to a new owner and releases o without destroying
// the value.
func (o *Owned[T]) Move() (*Owned[T], error) {
	if o.released {
		return nil, ErrReleased
	}
	o.released = true
	return &Owned[T]{state: o.state}, nil
}

// Release drops this owner. The value is destroyed when no owner is left.
// Releasing twice is a no-op.
func (o *Owned[T]) Release() {
	if o.released {
		return
	}
	o.released = true

	s := o.state
	s.mu.Lock()
	s.owners--
	last := s.owners == 0 && !s.destroyed
	if last {
		s.destroyed = true
	}
	s.mu.Unlock()

	if last && s.destroy != nil {
		s.destroy(s.value)
	}
}

func (o *Owned[T]) Reference() Reference[T] {
	return Reference[T]{state: o.state}
}

// Reference is a non-owning handle to a value.
type Reference[T any] struct {
	state *ownedState[T]
}

// Ref wraps a value owned by somebody outside this package's bookkeeping.
func Ref[T any](value T) Reference[T] {
	return Reference[T]{state: &ownedState[T]{value: value, owners: 1}}
}

func (r Reference[T]) Get() T {
	return r.state.value
}

// IsValid is false once every owner of the referenced value has released it.
func (r Reference[T]) IsValid() bool {
	if r.state == nil {
		return false
	}
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	return !r.state.destroyed
}

// Ownership is either an owner or a reference.
type Ownership[T any] struct {
	owned *Owned[T]
	ref   Reference[T]
}

func Owning[T any](o *Owned[T]) Ownership[T] {
	return Ownership[T]{owned: o, ref: o.Reference()}
}

func Referencing[T any](r Reference[T]) Ownership[T] {
	return Ownership[T]{ref: r}
}

func (w Ownership[T]) IsOwned() bool {
	return w.owned != nil
}

func (w Ownership[T]) Get() T {
	if w.owned != nil {
		return w.owned.Get()
	}
	return w.ref.Get()
}

// Release releases the owner, if this is one.
func (w Ownership[T]) Release() {
	if w.owned != nil {
		w.owned.Release()
	}
}
