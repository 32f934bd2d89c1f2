package optimizer

import (
	"github.com/grafana/lazyframe/pkg/engine/internal/arena"
	"github.com/grafana/lazyframe/pkg/engine/internal/planner/logical"
	"github.com/grafana/lazyframe/pkg/engine/internal/types"
)

// predicatePushdown moves filter predicates as close to the scans as
// possible. Predicates are carried down as lists of conjuncts; those that
// cannot move further are applied by a Filter above the node that stopped
// them.
type predicatePushdown struct {
	plan   *logical.Plan
	caches map[arena.Node]arena.Node
}

func newPredicatePushdown(plan *logical.Plan) *predicatePushdown {
	return &predicatePushdown{plan: plan, caches: map[arena.Node]arena.Node{}}
}

func (pd *predicatePushdown) optimize(root arena.Node) (arena.Node, error) {
	return pd.push(root, nil)
}

// push moves predicates into the subtree rooted at id and returns the id of
// the new subtree root.
func (pd *predicatePushdown) push(id arena.Node, predicates []arena.Node) (arena.Node, error) {
	p := pd.plan
	var err error

	switch n := p.Node(id).(type) {
	case *logical.Scan:
		if n.Slice != nil {
			// The slice is applied before predicates.
			return pd.local(id, predicates), nil
		}
		n.Predicates = append(n.Predicates, predicates...)
		return id, nil

	case *logical.DataFrameScan:
		n.Predicates = append(n.Predicates, predicates...)
		return id, nil

	case *logical.Filter:
		conjuncts := p.SplitConjunction(n.Predicate)
		for _, c := range conjuncts {
			if !p.IsElementwise(c) {
				// Row-dependent predicates see every input row.
				n.Input, err = pd.push(n.Input, nil)
				return pd.local(id, predicates), err
			}
		}
		return pd.push(n.Input, append(append([]arena.Node{}, conjuncts...), predicates...))

	case *logical.Select:
		return pd.pushProjection(id, &n.Input, n.Exprs, false, predicates)

	case *logical.HStack:
		return pd.pushProjection(id, &n.Input, n.Exprs, true, predicates)

	case *logical.SimpleProjection:
		n.Input, err = pd.push(n.Input, predicates)
		return id, err

	case *logical.Aggregate:
		if n.Slice != nil {
			n.Input, err = pd.push(n.Input, nil)
			return pd.local(id, predicates), err
		}
		keys := newColumns()
		for _, k := range n.Keys {
			if name, ok := p.IsColumn(k); ok {
				keys[name] = struct{}{}
			}
		}
		pushed, kept := pd.partition(predicates, func(e arena.Node) bool {
			return allIn(p.ColumnRefs(e), keys)
		})
		n.Input, err = pd.push(n.Input, pushed)
		return pd.local(id, kept), err

	case *logical.Join:
		return pd.pushJoin(id, n, predicates)

	case *logical.Sort:
		if n.Slice != nil {
			n.Input, err = pd.push(n.Input, nil)
			return pd.local(id, predicates), err
		}
		n.Input, err = pd.push(n.Input, predicates)
		return id, err

	case *logical.Slice:
		n.Input, err = pd.push(n.Input, nil)
		return pd.local(id, predicates), err

	case *logical.Distinct:
		if n.Slice != nil {
			n.Input, err = pd.push(n.Input, nil)
			return pd.local(id, predicates), err
		}
		var subset columns
		if n.Subset != nil {
			subset = newColumns(n.Subset...)
		}
		pushed, kept := pd.partition(predicates, func(e arena.Node) bool {
			return allIn(p.ColumnRefs(e), subset)
		})
		n.Input, err = pd.push(n.Input, pushed)
		return pd.local(id, kept), err

	case *logical.Union:
		if n.Slice != nil {
			for i, in := range n.Inputs {
				if n.Inputs[i], err = pd.push(in, nil); err != nil {
					return id, err
				}
			}
			return pd.local(id, predicates), nil
		}
		for i, in := range n.Inputs {
			branch := predicates
			if i > 0 {
				branch = make([]arena.Node, len(predicates))
				for j, e := range predicates {
					branch[j] = p.CopyExpr(e)
				}
			}
			if n.Inputs[i], err = pd.push(in, branch); err != nil {
				return id, err
			}
		}
		return id, nil

	case *logical.HConcat:
		for i, in := range n.Inputs {
			if n.Inputs[i], err = pd.push(in, nil); err != nil {
				return id, err
			}
		}
		return pd.local(id, predicates), nil

	case *logical.MapFunction:
		return pd.pushMap(id, n, predicates)

	case *logical.Cache:
		input, ok := pd.caches[n.Input]
		if !ok {
			if input, err = pd.push(n.Input, nil); err != nil {
				return id, err
			}
			pd.caches[n.Input] = input
		}
		n.Input = input
		return pd.local(id, predicates), nil

	default:
		return pd.local(id, predicates), nil
	}
}

// pushProjection pushes predicates through a Select or HStack. Predicates
// on columns that are passed through, possibly renamed, move below the
// projection.
func (pd *predicatePushdown) pushProjection(id arena.Node, input *arena.Node, exprs []arena.Node, stack bool, predicates []arena.Node) (arena.Node, error) {
	p := pd.plan
	var err error
	for _, e := range exprs {
		if !p.IsElementwise(e) {
			*input, err = pd.push(*input, nil)
			return pd.local(id, predicates), err
		}
	}

	mapping := map[string]string{}
	if stack {
		schema, err := p.Schema(*input)
		if err != nil {
			return id, err
		}
		for _, name := range schema.Names() {
			mapping[name] = name
		}
	}
	for _, e := range exprs {
		name := p.OutputName(e)
		if col, ok := p.AliasedColumn(e); ok {
			mapping[name] = col
		} else {
			delete(mapping, name)
		}
	}

	var pushed, kept []arena.Node
	for _, pred := range predicates {
		if allMapped(p.ColumnRefs(pred), mapping) {
			pushed = append(pushed, p.RenameColumns(pred, mapping))
		} else {
			kept = append(kept, pred)
		}
	}
	*input, err = pd.push(*input, pushed)
	return pd.local(id, kept), err
}

func (pd *predicatePushdown) pushJoin(id arena.Node, n *logical.Join, predicates []arena.Node) (arena.Node, error) {
	p := pd.plan
	var err error
	if n.Type == types.JoinTypeFull || n.Slice != nil {
		if n.Left, err = pd.push(n.Left, nil); err != nil {
			return id, err
		}
		n.Right, err = pd.push(n.Right, nil)
		return pd.local(id, predicates), err
	}

	left, err := p.Schema(n.Left)
	if err != nil {
		return id, err
	}
	right, err := p.Schema(n.Right)
	if err != nil {
		return id, err
	}

	// Left key columns equal to right key columns in every output row.
	leftToRight := map[string]string{}
	for i, l := range n.LeftOn {
		ln, lok := p.IsColumn(l)
		rn, rok := p.IsColumn(n.RightOn[i])
		if lok && rok {
			leftToRight[ln] = rn
		}
	}
	// Output names of the right columns.
	rightNames := map[string]string{}
	if n.Type.OutputsRight() {
		dropped := p.DroppedRightKeys(n)
		for _, name := range right.Names() {
			if !dropped[name] {
				rightNames[p.JoinOutputName(n, left, name)] = name
			}
		}
	}
	copyToRight := n.Type == types.JoinTypeInner || n.Type == types.JoinTypeLeft || n.Type == types.JoinTypeSemi

	var pushLeft, pushRight, kept []arena.Node
	for _, pred := range predicates {
		refs := p.ColumnRefs(pred)
		blockLeft, blockRight := pd.blocksJoin(pred, n, left, right)

		if left.ContainsAll(refs) && !blockLeft {
			pushLeft = append(pushLeft, pred)
			if copyToRight && !blockRight && len(refs) > 0 && allMapped(refs, leftToRight) {
				pushRight = append(pushRight, p.RenameColumns(pred, leftToRight))
			}
			continue
		}
		if !n.Type.PreservesLeft() && n.Type.OutputsRight() && !blockRight && allMapped(refs, rightNames) {
			pushRight = append(pushRight, p.RenameColumns(pred, rightNames))
			continue
		}
		kept = append(kept, pred)
	}

	if n.Left, err = pd.push(n.Left, pushLeft); err != nil {
		return id, err
	}
	if n.Right, err = pd.push(n.Right, pushRight); err != nil {
		return id, err
	}
	return pd.local(id, kept), nil
}

// blocksJoin reports whether pred must not be pushed to the left or right
// input of n because the join changes its result: the join introduces
// nulls on that side, or changes the multiplicity of rows.
func (pd *predicatePushdown) blocksJoin(pred arena.Node, n *logical.Join, left, right *logical.Schema) (blockLeft, blockRight bool) {
	p := pd.plan
	nullsLeft, nullsRight := n.Type.ProducesNulls()

	keys := newColumns(p.ColumnRefs(n.LeftOn...)...).with(p.ColumnRefs(n.RightOn...)...)

	p.WalkExpr(pred, func(_ arena.Node, expr logical.AExpr) bool {
		switch expr := expr.(type) {
		case *logical.FunctionExpr:
			switch {
			case expr.Kind.IsNullTest():
				blockLeft = blockLeft || nullsLeft
				blockRight = blockRight || nullsRight
			case expr.Kind.DetectsDuplicates():
				blockLeft, blockRight = true, true
			}
		case *logical.BinaryExpr:
			if expr.Op != types.BinaryOpEq {
				break
			}
			lname, lcol := p.IsColumn(expr.Left)
			rname, rcol := p.IsColumn(expr.Right)
			isKey := (lcol && keys.has(lname)) || (rcol && keys.has(rname))
			if !isKey {
				blockLeft = blockLeft || nullsLeft
				blockRight = blockRight || nullsRight
				break
			}
			refs := p.ColumnRefs(expr.Left, expr.Right)
			if nullsLeft && !left.ContainsAll(refs) {
				blockLeft = true
			}
			if nullsRight && !right.ContainsAll(refs) {
				blockRight = true
			}
		}
		return true
	})
	return blockLeft, blockRight
}

func (pd *predicatePushdown) pushMap(id arena.Node, n *logical.MapFunction, predicates []arena.Node) (arena.Node, error) {
	p := pd.plan
	var (
		pushed, kept []arena.Node
		err          error
	)
	switch fn := n.Function.(type) {
	case *logical.Explode:
		exploded := newColumns(fn.Columns...)
		pushed, kept = pd.partition(predicates, func(e arena.Node) bool {
			for _, c := range p.ColumnRefs(e) {
				if exploded.has(c) {
					return false
				}
			}
			return true
		})
	case *logical.DropNulls:
		pushed = predicates
	case *logical.Rename:
		input, err := p.Schema(n.Input)
		if err != nil {
			return id, err
		}
		back := map[string]string{}
		for i, old := range fn.Existing {
			if input.Contains(old) {
				back[fn.New[i]] = old
			}
		}
		for _, e := range predicates {
			pushed = append(pushed, p.RenameColumns(e, back))
		}
	case *logical.Udf:
		if fn.PredicatePushdown {
			pushed = predicates
		} else {
			kept = predicates
		}
	default:
		kept = predicates
	}
	n.Input, err = pd.push(n.Input, pushed)
	return pd.local(id, kept), err
}

func (pd *predicatePushdown) partition(predicates []arena.Node, push func(arena.Node) bool) (pushed, kept []arena.Node) {
	for _, e := range predicates {
		if push(e) {
			pushed = append(pushed, e)
		} else {
			kept = append(kept, e)
		}
	}
	return pushed, kept
}

// local applies predicates on top of id with a new Filter node.
func (pd *predicatePushdown) local(id arena.Node, predicates []arena.Node) arena.Node {
	pred, ok := pd.plan.CombineConjunction(predicates)
	if !ok {
		return id
	}
	return pd.plan.AddNode(&logical.Filter{Input: id, Predicate: pred})
}

// allIn returns true if every name is in set. A nil set holds every name.
func allIn(names []string, set columns) bool {
	for _, n := range names {
		if !set.has(n) {
			return false
		}
	}
	return true
}

func allMapped(names []string, mapping map[string]string) bool {
	for _, n := range names {
		if _, ok := mapping[n]; !ok {
			return false
		}
	}
	return true
}
