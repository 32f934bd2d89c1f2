// Package arena provides append-only stores of plan and expression nodes
// addressed by stable integer ids.
package arena

import "fmt"

// Node is a handle into an [Arena]. A Node is valid for the lifetime of the
// arena that returned it.
type Node uint32

func (n Node) String() string { return fmt.Sprintf("#%d", uint32(n)) }

type slot[T any] struct {
	value   T
	present bool
}

// Arena stores values of type T. Values are never relocated: replacing a
// value keeps its Node, so every holder of that Node observes the new value.
//
// Arena is not safe for concurrent use.
type Arena[T any] struct {
	slots []slot[T]
}

// New returns an empty arena.
func New[T any]() *Arena[T] {
	return &Arena[T]{slots: make([]slot[T], 0, 16)}
}

// Add stores v and returns its id.
func (a *Arena[T]) Add(v T) Node {
	a.slots = append(a.slots, slot[T]{value: v, present: true})
	return Node(len(a.slots) - 1)
}

// Get returns the value stored at id. Get panics if id is out of range or has
// been taken and not yet replaced.
func (a *Arena[T]) Get(id Node) T {
	s := a.slot(id)
	if !s.present {
		panic(fmt.Sprintf("arena: node %s dereferenced while taken", id))
	}
	return s.value
}

// Take removes the value stored at id and returns it, leaving a hole. The
// caller becomes the sole owner of the value until it calls [Arena.Replace].
func (a *Arena[T]) Take(id Node) T {
	s := a.slot(id)
	if !s.present {
		panic(fmt.Sprintf("arena: node %s taken twice", id))
	}
	v := s.value
	var zero T
	s.value, s.present = zero, false
	return v
}

// Replace stores v at id. The id may or may not currently hold a value.
func (a *Arena[T]) Replace(id Node, v T) {
	s := a.slot(id)
	s.value, s.present = v, true
}

// Contains returns true if id holds a value.
func (a *Arena[T]) Contains(id Node) bool {
	return int(id) < len(a.slots) && a.slots[id].present
}

// Len returns the number of ids handed out by the arena, including holes.
func (a *Arena[T]) Len() int { return len(a.slots) }

func (a *Arena[T]) slot(id Node) *slot[T] {
	if int(id) >= len(a.slots) {
		panic(fmt.Sprintf("arena: node %s out of range [0, %d)", id, len(a.slots)))
	}
	return &a.slots[id]
}
