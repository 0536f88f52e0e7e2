package gridindex

import (
	"iter"
	"math"

	"github.com/aukilabs/go-tooling/pkg/errors"
)

// Handle is a non-owning reference to an element stored in an Arena.
type Handle uint32

// Arena is a dense backing store of element references addressed by handles.
// Interning the same element twice returns the same handle, which is what
// makes region queries deduplicate by element identity.
//
// The arena never dereferences the elements it holds: their lifetime belongs
// to whoever created them.
type Arena[T comparable] struct {
	elements []T
	handles  map[T]Handle
}

func NewArena[T comparable](capacity int) *Arena[T] {
	return &Arena[T]{
		elements: make([]T, 0, capacity),
		handles:  make(map[T]Handle, capacity),
	}
}

// Intern returns the handle of the given element, allocating one when the
// element is not in the arena yet.
func (a *Arena[T]) Intern(v T) Handle {
	if h, ok := a.handles[v]; ok {
		return h
	}

	if uint64(len(a.elements)) > math.MaxUint32 {
		panic(errors.New("arena is full").WithTag("len", len(a.elements)))
	}

	h := Handle(len(a.elements))
	a.elements = append(a.elements, v)
	a.handles[v] = h
	return h
}

// Lookup returns the handle of an already interned element.
func (a *Arena[T]) Lookup(v T) (Handle, bool) {
	h, ok := a.handles[v]
	return h, ok
}

// Get returns the element referenced by the given handle. It panics when the
// handle was not allocated by this arena since its last reset.
func (a *Arena[T]) Get(h Handle) T {
	if int(h) >= len(a.elements) {
		panic(errors.New("handle out of range").
			WithTag("handle", h).
			WithTag("len", len(a.elements)))
	}
	return a.elements[h]
}

func (a *Arena[T]) Len() int {
	return len(a.elements)
}

// All iterates over the interned elements in handle order.
func (a *Arena[T]) All() iter.Seq2[Handle, T] {
	return func(yield func(Handle, T) bool) {
		for i, v := range a.elements {
			if !yield(Handle(i), v) {
				return
			}
		}
	}
}

// Reset drops every element reference. Previously returned handles become
// invalid.
func (a *Arena[T]) Reset() {
	clear(a.elements)
	a.elements = a.elements[:0]
	clear(a.handles)
}
