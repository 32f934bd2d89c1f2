package optimizer

import (
	"slices"

	"github.com/grafana/lazyframe/pkg/engine/internal/arena"
	"github.com/grafana/lazyframe/pkg/engine/internal/planner/logical"
	"github.com/grafana/lazyframe/pkg/engine/internal/types"
)

// replaceDropNulls turns filters that only test columns for nulls into a
// drop_nulls map function.
type replaceDropNulls struct {
	plan *logical.Plan
}

var _ planRule = (*replaceDropNulls)(nil)

func (r *replaceDropNulls) name() string { return "replace drop nulls" }

func (r *replaceDropNulls) applyPlan(id arena.Node) (bool, error) {
	p := r.plan
	f, ok := p.Node(id).(*logical.Filter)
	if !ok {
		return false, nil
	}
	var subset []string
	for _, c := range p.SplitConjunction(f.Predicate) {
		fn, ok := p.Expr(c).(*logical.FunctionExpr)
		if !ok || fn.Kind != types.FunctionIsNotNull {
			return false, nil
		}
		name, ok := p.IsColumn(fn.Input[0])
		if !ok {
			return false, nil
		}
		if !slices.Contains(subset, name) {
			subset = append(subset, name)
		}
	}
	p.Nodes.Replace(id, &logical.MapFunction{Input: f.Input, Function: &logical.DropNulls{Subset: subset}})
	return true, nil
}

// flattenUnion merges nested unions into their parent.
type flattenUnion struct {
	plan *logical.Plan
}

var _ planRule = (*flattenUnion)(nil)

func (r *flattenUnion) name() string { return "flatten union" }

func (r *flattenUnion) applyPlan(id arena.Node) (bool, error) {
	p := r.plan
	u, ok := p.Node(id).(*logical.Union)
	if !ok {
		return false, nil
	}
	changed := false
	inputs := make([]arena.Node, 0, len(u.Inputs))
	for _, in := range u.Inputs {
		if nested, ok := p.Node(in).(*logical.Union); ok && nested.Slice == nil {
			inputs = append(inputs, nested.Inputs...)
			changed = true
			continue
		}
		inputs = append(inputs, in)
	}
	u.Inputs = inputs
	return changed, nil
}

// fastProjection replaces projections of plain columns by simple
// projections, and removes projections that keep every column.
type fastProjection struct {
	plan *logical.Plan
}

var _ planRule = (*fastProjection)(nil)

func (r *fastProjection) name() string { return "fast projection" }

func (r *fastProjection) applyPlan(id arena.Node) (bool, error) {
	p := r.plan
	switch n := p.Node(id).(type) {
	case *logical.Select:
		cols := make([]string, 0, len(n.Exprs))
		for _, e := range n.Exprs {
			name, ok := p.IsColumn(e)
			if !ok || slices.Contains(cols, name) {
				return false, nil
			}
			cols = append(cols, name)
		}
		p.Nodes.Replace(id, &logical.SimpleProjection{Input: n.Input, Columns: cols})
		return true, nil

	case *logical.SimpleProjection:
		if inner, ok := p.Node(n.Input).(*logical.SimpleProjection); ok {
			n.Input = inner.Input
			return true, nil
		}
		input, err := p.Schema(n.Input)
		if err != nil {
			return false, err
		}
		if slices.Equal(input.Names(), n.Columns) {
			eliminate(p, id, n.Input)
			return true, nil
		}
	}
	return false, nil
}

// sliceExprPushdown moves expression slices towards their inputs: nested
// slices are merged and literals are sliced directly.
type sliceExprPushdown struct {
	plan *logical.Plan
}

var _ exprRule = (*sliceExprPushdown)(nil)

func (r *sliceExprPushdown) name() string { return "slice expression pushdown" }

func (r *sliceExprPushdown) applyExpr(_ exprContext, e arena.Node) (bool, error) {
	p := r.plan
	s, ok := p.Expr(e).(*logical.SliceExpr)
	if !ok {
		return false, nil
	}
	switch input := p.Expr(s.Input).(type) {
	case *logical.SliceExpr:
		if input.Offset < 0 || s.Offset < 0 {
			return false, nil
		}
		merged := composeSlices(
			&logical.SliceOptions{Offset: input.Offset, Len: input.Length},
			&logical.SliceOptions{Offset: s.Offset, Len: s.Length},
		)
		p.Exprs.Replace(e, &logical.SliceExpr{Input: input.Input, Offset: merged.Offset, Length: merged.Len})
		return true, nil

	case *logical.LiteralExpr:
		if input.Value.IsScalar() {
			return false, nil
		}
		p.Exprs.Replace(e, &logical.LiteralExpr{Value: input.Value.Slice(s.Offset, s.Length)})
		return true, nil

	case *logical.CastExpr:
		inner := p.AddExpr(&logical.SliceExpr{Input: input.Input, Offset: s.Offset, Length: s.Length})
		p.Exprs.Replace(e, &logical.CastExpr{Input: inner, To: input.To, Strict: input.Strict})
		return true, nil
	}
	return false, nil
}
