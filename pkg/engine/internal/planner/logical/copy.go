package logical

import (
	"slices"

	"github.com/grafana/lazyframe/pkg/engine/internal/arena"
)

// CloneNode returns a shallow copy of n. Slices owned by n are copied so
// that the clone can be modified independently.
func CloneNode(n IR) IR {
	switch n := n.(type) {
	case *Scan:
		c := *n
		c.Projection = cloneStrings(n.Projection)
		c.Predicates = slices.Clone(n.Predicates)
		c.Slice = cloneSlice(n.Slice)
		if n.FileCache != nil {
			fc := *n.FileCache
			c.FileCache = &fc
		}
		return &c
	case *DataFrameScan:
		c := *n
		c.Projection = cloneStrings(n.Projection)
		c.Predicates = slices.Clone(n.Predicates)
		return &c
	case *Filter:
		c := *n
		return &c
	case *Select:
		c := *n
		c.Exprs = slices.Clone(n.Exprs)
		return &c
	case *HStack:
		c := *n
		c.Exprs = slices.Clone(n.Exprs)
		return &c
	case *SimpleProjection:
		c := *n
		c.Columns = slices.Clone(n.Columns)
		return &c
	case *Aggregate:
		c := *n
		c.Keys = slices.Clone(n.Keys)
		c.Aggs = slices.Clone(n.Aggs)
		c.Slice = cloneSlice(n.Slice)
		return &c
	case *Join:
		c := *n
		c.LeftOn = slices.Clone(n.LeftOn)
		c.RightOn = slices.Clone(n.RightOn)
		c.Slice = cloneSlice(n.Slice)
		return &c
	case *Sort:
		c := *n
		c.By = slices.Clone(n.By)
		c.Descending = slices.Clone(n.Descending)
		c.Slice = cloneSlice(n.Slice)
		return &c
	case *Slice:
		c := *n
		return &c
	case *Distinct:
		c := *n
		c.Subset = cloneStrings(n.Subset)
		c.Slice = cloneSlice(n.Slice)
		return &c
	case *Union:
		c := *n
		c.Inputs = slices.Clone(n.Inputs)
		c.Slice = cloneSlice(n.Slice)
		return &c
	case *HConcat:
		c := *n
		c.Inputs = slices.Clone(n.Inputs)
		c.Slice = cloneSlice(n.Slice)
		return &c
	case *MapFunction:
		c := *n
		return &c
	case *Cache:
		c := *n
		return &c
	default:
		panic(unknownNode(n))
	}
}

// cloneStrings keeps the distinction between nil and empty.
func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string{}, s...)
}

func cloneSlice(s *SliceOptions) *SliceOptions {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// WithChildren returns a shallow copy of n whose inputs are children.
func WithChildren(n IR, children []arena.Node) IR {
	c := CloneNode(n)
	switch c := c.(type) {
	case *Scan, *DataFrameScan:
	case *Filter:
		c.Input = children[0]
	case *Select:
		c.Input = children[0]
	case *HStack:
		c.Input = children[0]
	case *SimpleProjection:
		c.Input = children[0]
	case *Aggregate:
		c.Input = children[0]
	case *Join:
		c.Left, c.Right = children[0], children[1]
	case *Sort:
		c.Input = children[0]
	case *Slice:
		c.Input = children[0]
	case *Distinct:
		c.Input = children[0]
	case *Union:
		c.Inputs = slices.Clone(children)
	case *HConcat:
		c.Inputs = slices.Clone(children)
	case *MapFunction:
		c.Input = children[0]
	case *Cache:
		c.Input = children[0]
	}
	return c
}

// mapExprs replaces every root expression of n by fn(expr). n is modified
// in place.
func mapExprs(n IR, fn func(arena.Node) arena.Node) {
	each := func(es []arena.Node) {
		for i, e := range es {
			es[i] = fn(e)
		}
	}
	switch n := n.(type) {
	case *Scan:
		each(n.Predicates)
	case *DataFrameScan:
		each(n.Predicates)
	case *Filter:
		n.Predicate = fn(n.Predicate)
	case *Select:
		each(n.Exprs)
	case *HStack:
		each(n.Exprs)
	case *Aggregate:
		each(n.Keys)
		each(n.Aggs)
	case *Join:
		each(n.LeftOn)
		each(n.RightOn)
	case *Sort:
		each(n.By)
	}
}

// DeepCopy copies the subtree rooted at id, expressions included, and
// returns the id of the copy. Cache nodes are copied but their input is
// shared with the original.
func (p *Plan) DeepCopy(id arena.Node) arena.Node {
	n := p.Node(id)
	if _, ok := n.(*Cache); ok {
		return p.AddNode(CloneNode(n))
	}
	children := Children(n)
	copied := make([]arena.Node, len(children))
	for i, child := range children {
		copied[i] = p.DeepCopy(child)
	}
	c := WithChildren(n, copied)
	mapExprs(c, p.CopyExpr)
	return p.AddNode(c)
}
