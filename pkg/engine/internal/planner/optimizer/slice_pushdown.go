package optimizer

import (
	"github.com/grafana/lazyframe/pkg/engine/internal/arena"
	"github.com/grafana/lazyframe/pkg/engine/internal/planner/logical"
)

// slicePushdown moves row limits towards the scans, or anchors them in the
// options of operators that can stop early.
type slicePushdown struct {
	plan      *logical.Plan
	streaming bool
	caches    map[arena.Node]arena.Node
}

func newSlicePushdown(plan *logical.Plan, streaming bool) *slicePushdown {
	return &slicePushdown{plan: plan, streaming: streaming, caches: map[arena.Node]arena.Node{}}
}

func (sp *slicePushdown) optimize(root arena.Node) (arena.Node, error) {
	return sp.push(root, nil)
}

// push moves the pending slice into the subtree rooted at id and returns the
// id of the new subtree root. A nil slice means no rows are dropped.
func (sp *slicePushdown) push(id arena.Node, slice *logical.SliceOptions) (arena.Node, error) {
	p := sp.plan
	var err error

	switch n := p.Node(id).(type) {
	case *logical.Slice:
		own := &logical.SliceOptions{Offset: n.Offset, Len: n.Len}
		switch {
		case slice == nil:
			return sp.push(n.Input, own)
		case slice.Offset >= 0 && own.Offset >= 0:
			return sp.push(n.Input, composeSlices(own, slice))
		default:
			inner, err := sp.push(n.Input, own)
			return sp.anchor(inner, slice), err
		}

	case *logical.Scan:
		if slice == nil {
			return id, nil
		}
		if len(n.Predicates) > 0 || slice.Offset < 0 {
			return sp.anchor(id, slice), nil
		}
		if n.Slice == nil {
			n.Slice = cloneSlice(slice)
			return id, nil
		}
		if n.Slice.Offset < 0 {
			return sp.anchor(id, slice), nil
		}
		n.Slice = composeSlices(n.Slice, slice)
		return id, nil

	case *logical.Select:
		if !sp.commutes(n.Exprs, false, n.Input) {
			n.Input, err = sp.push(n.Input, nil)
			return sp.anchor(id, slice), err
		}
		n.Input, err = sp.push(n.Input, slice)
		return id, err

	case *logical.HStack:
		if !sp.commutes(n.Exprs, true, n.Input) {
			n.Input, err = sp.push(n.Input, nil)
			return sp.anchor(id, slice), err
		}
		n.Input, err = sp.push(n.Input, slice)
		return id, err

	case *logical.SimpleProjection:
		n.Input, err = sp.push(n.Input, slice)
		return id, err

	case *logical.Aggregate:
		n.Input, err = sp.push(n.Input, nil)
		return sp.anchorIn(id, &n.Slice, slice), err

	case *logical.Sort:
		n.Input, err = sp.push(n.Input, nil)
		return sp.anchorIn(id, &n.Slice, slice), err

	case *logical.Distinct:
		n.Input, err = sp.push(n.Input, nil)
		return sp.anchorIn(id, &n.Slice, slice), err

	case *logical.Join:
		if n.Left, err = sp.push(n.Left, nil); err != nil {
			return id, err
		}
		if n.Right, err = sp.push(n.Right, nil); err != nil {
			return id, err
		}
		if sp.streaming {
			return sp.anchor(id, slice), nil
		}
		return sp.anchorIn(id, &n.Slice, slice), nil

	case *logical.Union:
		var branch *logical.SliceOptions
		if slice != nil && slice.Offset == 0 && n.Slice == nil {
			branch = slice
		}
		for i, in := range n.Inputs {
			if n.Inputs[i], err = sp.push(in, branch); err != nil {
				return id, err
			}
		}
		return sp.anchorIn(id, &n.Slice, slice), nil

	case *logical.HConcat:
		branch := slice
		if slice != nil && slice.Offset < 0 {
			// Inputs of different lengths disagree on where the end is.
			branch = nil
		}
		for i, in := range n.Inputs {
			if n.Inputs[i], err = sp.push(in, branch); err != nil {
				return id, err
			}
		}
		if branch == nil {
			return sp.anchor(id, slice), nil
		}
		return id, nil

	case *logical.MapFunction:
		pass := false
		switch fn := n.Function.(type) {
		case *logical.Rename:
			pass = true
		case *logical.Udf:
			pass = fn.SlicePushdown
		}
		if pass {
			n.Input, err = sp.push(n.Input, slice)
			return id, err
		}
		n.Input, err = sp.push(n.Input, nil)
		return sp.anchor(id, slice), err

	case *logical.Cache:
		input, ok := sp.caches[n.Input]
		if !ok {
			if input, err = sp.push(n.Input, nil); err != nil {
				return id, err
			}
			sp.caches[n.Input] = input
		}
		n.Input = input
		return sp.anchor(id, slice), nil

	case *logical.Filter:
		n.Input, err = sp.push(n.Input, nil)
		return sp.anchor(id, slice), err

	default:
		// Data frame scans and any other leaf keep the slice above them.
		for _, child := range p.Children(id) {
			if _, err := sp.push(child, nil); err != nil {
				return id, err
			}
		}
		return sp.anchor(id, slice), nil
	}
}

// commutes returns true if slicing the input of a projection of exprs is
// equivalent to slicing its output. Projections made only of literals are
// broadcast to the length of their input and must be sliced afterwards.
func (sp *slicePushdown) commutes(exprs []arena.Node, stack bool, input arena.Node) bool {
	p := sp.plan
	hasColumn := false
	for _, e := range exprs {
		if !p.IsElementwise(e) {
			return false
		}
		hasColumn = hasColumn || p.HasColumn(e)
	}
	if hasColumn {
		return true
	}
	if !stack {
		return false
	}
	schema, err := p.Schema(input)
	return err == nil && schema.Len() > 0
}

// anchorIn stores slice in the slice options of node id, or wraps id in a
// Slice node if the options are already set.
func (sp *slicePushdown) anchorIn(id arena.Node, options **logical.SliceOptions, slice *logical.SliceOptions) arena.Node {
	if slice == nil {
		return id
	}
	if *options == nil {
		*options = cloneSlice(slice)
		return id
	}
	return sp.anchor(id, slice)
}

// anchor wraps id in a Slice node applying slice.
func (sp *slicePushdown) anchor(id arena.Node, slice *logical.SliceOptions) arena.Node {
	if slice == nil {
		return id
	}
	return sp.plan.AddNode(&logical.Slice{Input: id, Offset: slice.Offset, Len: slice.Len})
}

// composeSlices returns the slice equivalent to applying outer to the
// result of inner. Both offsets must be non-negative.
func composeSlices(inner, outer *logical.SliceOptions) *logical.SliceOptions {
	offset := uint64(outer.Offset)
	if offset >= inner.Len {
		return &logical.SliceOptions{Offset: inner.Offset + int64(inner.Len), Len: 0}
	}
	return &logical.SliceOptions{
		Offset: inner.Offset + outer.Offset,
		Len:    min(outer.Len, inner.Len-offset),
	}
}

func cloneSlice(s *logical.SliceOptions) *logical.SliceOptions {
	c := *s
	return &c
}
