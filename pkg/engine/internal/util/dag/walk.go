// Package dag walks directed acyclic graphs given by a children function.
package dag

import "errors"

// WalkOrder defines the order in which a vertex and its children are
// visited.
type WalkOrder uint8

const (
	// PreOrderWalk processes the current vertex before visiting any of its
	// children.
	PreOrderWalk WalkOrder = iota

	// PostOrderWalk processes the current vertex after visiting all of its
	// children.
	PostOrderWalk
)

// ErrSkipChildren can be returned by a pre-order WalkFunc to skip the
// children of the current vertex.
var ErrSkipChildren = errors.New("skip children")

// WalkFunc is invoked for every vertex of a walk. Walking stops if it
// returns a non-nil error other than ErrSkipChildren.
type WalkFunc[N comparable] func(n N) error

// Walk performs a depth-first walk from start, following children, and
// invokes fn once per reachable vertex. Vertices shared by several parents
// are visited once.
func Walk[N comparable](start N, children func(N) []N, fn WalkFunc[N], order WalkOrder) error {
	w := walker[N]{children: children, fn: fn, visited: make(map[N]struct{})}
	switch order {
	case PreOrderWalk:
		return w.preOrder(start)
	case PostOrderWalk:
		return w.postOrder(start)
	default:
		return errors.New("unsupported walk order. must be one of PreOrderWalk and PostOrderWalk")
	}
}

type walker[N comparable] struct {
	children func(N) []N
	fn       WalkFunc[N]
	visited  map[N]struct{}
}

func (w *walker[N]) seen(n N) bool {
	if _, ok := w.visited[n]; ok {
		return true
	}
	w.visited[n] = struct{}{}
	return false
}

func (w *walker[N]) preOrder(n N) error {
	if w.seen(n) {
		return nil
	}
	if err := w.fn(n); err != nil {
		if errors.Is(err, ErrSkipChildren) {
			return nil
		}
		return err
	}
	for _, child := range w.children(n) {
		if err := w.preOrder(child); err != nil {
			return err
		}
	}
	return nil
}

func (w *walker[N]) postOrder(n N) error {
	if w.seen(n) {
		return nil
	}
	for _, child := range w.children(n) {
		if err := w.postOrder(child); err != nil {
			return err
		}
	}
	return w.fn(n)
}
