package optimizer

import (
	"github.com/grafana/lazyframe/pkg/engine/internal/arena"
	"github.com/grafana/lazyframe/pkg/engine/internal/planner/logical"
)

// projectionPushdown prunes columns that no operator above reads. Scans
// only read the required columns; expressions that compute unused columns
// are dropped.
type projectionPushdown struct {
	plan *logical.Plan
	// caches maps the input of a Cache to its pruned replacement so that
	// shared inputs are processed once.
	caches map[arena.Node]arena.Node
}

func newProjectionPushdown(plan *logical.Plan) *projectionPushdown {
	return &projectionPushdown{plan: plan, caches: map[arena.Node]arena.Node{}}
}

func (pp *projectionPushdown) optimize(root arena.Node) (arena.Node, error) {
	return pp.push(root, nil)
}

// push prunes the subtree rooted at id to the columns in needed and returns
// the id of the new subtree root.
func (pp *projectionPushdown) push(id arena.Node, needed columns) (arena.Node, error) {
	p := pp.plan
	var err error

	switch n := p.Node(id).(type) {
	case *logical.Scan:
		if !needed.all() {
			names := n.FileSchema.Names()
			if n.Projection != nil {
				names = newColumns(n.Projection...).filter(names)
			}
			n.Projection = needed.with(p.ColumnRefs(n.Predicates...)...).filter(names)
		}

	case *logical.DataFrameScan:
		if !needed.all() {
			names := n.Schema.Names()
			if n.Projection != nil {
				names = newColumns(n.Projection...).filter(names)
			}
			n.Projection = needed.with(p.ColumnRefs(n.Predicates...)...).filter(names)
		}

	case *logical.Filter:
		n.Input, err = pp.push(n.Input, needed.with(p.ColumnRefs(n.Predicate)...))

	case *logical.Select:
		if !needed.all() {
			n.Exprs = pp.keepNeeded(n.Exprs, needed, true)
		}
		n.Input, err = pp.push(n.Input, newColumns(p.ColumnRefs(n.Exprs...)...).orAll())

	case *logical.HStack:
		if needed.all() {
			n.Input, err = pp.push(n.Input, nil)
			break
		}
		n.Exprs = pp.keepNeeded(n.Exprs, needed, false)
		if len(n.Exprs) == 0 {
			return pp.push(n.Input, needed)
		}
		inputNeeded := newColumns(p.ColumnRefs(n.Exprs...)...)
		produced := newColumns()
		for _, e := range n.Exprs {
			produced[p.OutputName(e)] = struct{}{}
		}
		for name := range needed {
			if _, ok := produced[name]; !ok {
				inputNeeded[name] = struct{}{}
			}
		}
		n.Input, err = pp.push(n.Input, inputNeeded.orAll())

	case *logical.SimpleProjection:
		if kept := needed.filter(n.Columns); len(kept) > 0 {
			n.Columns = kept
		}
		n.Input, err = pp.push(n.Input, newColumns(n.Columns...))

	case *logical.Aggregate:
		if !needed.all() {
			n.Aggs = pp.keepNeeded(n.Aggs, needed, false)
		}
		refs := p.ColumnRefs(append(append([]arena.Node{}, n.Keys...), n.Aggs...)...)
		n.Input, err = pp.push(n.Input, newColumns(refs...).orAll())

	case *logical.Join:
		err = pp.pushJoin(n, needed)

	case *logical.Sort:
		n.Input, err = pp.push(n.Input, needed.with(p.ColumnRefs(n.By...)...))

	case *logical.Slice:
		n.Input, err = pp.push(n.Input, needed)

	case *logical.Distinct:
		var inputNeeded columns
		if n.Subset != nil {
			inputNeeded = needed.with(n.Subset...)
		}
		n.Input, err = pp.push(n.Input, inputNeeded)

	case *logical.Union:
		for i, in := range n.Inputs {
			if n.Inputs[i], err = pp.push(in, needed); err != nil {
				return id, err
			}
		}

	case *logical.HConcat:
		for i, in := range n.Inputs {
			var inputNeeded columns
			if !needed.all() {
				schema, err := p.Schema(in)
				if err != nil {
					return id, err
				}
				inputNeeded = newColumns(needed.filter(schema.Names())...).orAll()
			}
			if n.Inputs[i], err = pp.push(in, inputNeeded); err != nil {
				return id, err
			}
		}

	case *logical.MapFunction:
		var inputNeeded columns
		inputNeeded, err = pp.mapNeeded(n, needed)
		if err != nil {
			return id, err
		}
		n.Input, err = pp.push(n.Input, inputNeeded)

	case *logical.Cache:
		input, ok := pp.caches[n.Input]
		if !ok {
			// Consumers of a cache may need different columns.
			if input, err = pp.push(n.Input, nil); err != nil {
				return id, err
			}
			pp.caches[n.Input] = input
		}
		n.Input = input
	}
	if err != nil {
		return id, err
	}
	return pp.project(id, needed)
}

// keepNeeded returns the expressions of exprs whose output is in needed.
// If keepOne is set and no expression is needed, the first expression is
// kept so that the row count survives.
func (pp *projectionPushdown) keepNeeded(exprs []arena.Node, needed columns, keepOne bool) []arena.Node {
	kept := make([]arena.Node, 0, len(exprs))
	for _, e := range exprs {
		if needed.has(pp.plan.OutputName(e)) {
			kept = append(kept, e)
		}
	}
	if len(kept) == 0 && keepOne && len(exprs) > 0 {
		kept = append(kept, exprs[0])
	}
	return kept
}

func (pp *projectionPushdown) pushJoin(n *logical.Join, needed columns) error {
	p := pp.plan
	var err error
	if needed.all() {
		if n.Left, err = pp.push(n.Left, nil); err != nil {
			return err
		}
		n.Right, err = pp.push(n.Right, nil)
		return err
	}

	left, err := p.Schema(n.Left)
	if err != nil {
		return err
	}
	right, err := p.Schema(n.Right)
	if err != nil {
		return err
	}

	leftNeeded := newColumns(p.ColumnRefs(n.LeftOn...)...)
	rightNeeded := newColumns(p.ColumnRefs(n.RightOn...)...)
	for _, name := range left.Names() {
		if needed.has(name) {
			leftNeeded[name] = struct{}{}
		}
	}
	if n.Type.OutputsRight() {
		dropped := p.DroppedRightKeys(n)
		for _, name := range right.Names() {
			if dropped[name] {
				continue
			}
			out := p.JoinOutputName(n, left, name)
			if !needed.has(out) {
				continue
			}
			rightNeeded[name] = struct{}{}
			if out != name {
				// The suffix is only applied while the left column exists.
				leftNeeded[name] = struct{}{}
			}
		}
	}

	if n.Left, err = pp.push(n.Left, leftNeeded.orAll()); err != nil {
		return err
	}
	n.Right, err = pp.push(n.Right, rightNeeded.orAll())
	return err
}

// mapNeeded returns the columns the input of n must provide.
func (pp *projectionPushdown) mapNeeded(n *logical.MapFunction, needed columns) (columns, error) {
	if needed.all() {
		return nil, nil
	}
	switch fn := n.Function.(type) {
	case *logical.Explode:
		return needed.with(fn.Columns...), nil
	case *logical.DropNulls:
		if fn.Subset == nil {
			return nil, nil
		}
		return needed.with(fn.Subset...), nil
	case *logical.Rename:
		input, err := pp.plan.Schema(n.Input)
		if err != nil {
			return nil, err
		}
		renamed := make(map[string]string, len(fn.Existing))
		for i, old := range fn.Existing {
			if input.Contains(old) {
				renamed[fn.New[i]] = old
			}
		}
		out := newColumns()
		for name := range needed {
			if old, ok := renamed[name]; ok {
				name = old
			}
			out[name] = struct{}{}
		}
		// A renamed column that is not needed is still renamed away; keep it
		// so that it cannot collide with the new names.
		for _, old := range renamed {
			out[old] = struct{}{}
		}
		return out, nil
	case *logical.Udf:
		if !fn.ProjectionPushdown {
			return nil, nil
		}
		input, err := pp.plan.Schema(n.Input)
		if err != nil {
			return nil, err
		}
		return newColumns(needed.filter(input.Names())...).orAll(), nil
	default:
		return nil, nil
	}
}

// project wraps id in a SimpleProjection if it produces columns that are
// not needed.
func (pp *projectionPushdown) project(id arena.Node, needed columns) (arena.Node, error) {
	if needed.all() {
		return id, nil
	}
	schema, err := pp.plan.Schema(id)
	if err != nil {
		return id, err
	}
	names := schema.Names()
	kept := needed.filter(names)
	if len(kept) == len(names) || len(kept) == 0 {
		return id, nil
	}
	return pp.plan.AddNode(&logical.SimpleProjection{Input: id, Columns: kept}), nil
}
