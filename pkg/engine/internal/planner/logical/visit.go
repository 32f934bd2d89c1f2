package logical

import (
	"github.com/grafana/lazyframe/pkg/engine/internal/arena"
	"github.com/grafana/lazyframe/pkg/engine/internal/types"
	"github.com/grafana/lazyframe/pkg/engine/internal/util/dag"
)

// Walk visits every plan node reachable from root once. Nodes shared
// through caches are visited once.
func (p *Plan) Walk(root arena.Node, fn dag.WalkFunc[arena.Node], order dag.WalkOrder) error {
	return dag.Walk(root, p.Children, fn, order)
}

// WalkExpr visits e and its descendants in pre-order. Returning false from
// fn skips the descendants of the current expression.
func (p *Plan) WalkExpr(e arena.Node, fn func(id arena.Node, expr AExpr) bool) {
	stack := []arena.Node{e}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		expr := p.Expr(id)
		if !fn(id, expr) {
			continue
		}
		inputs := Inputs(expr)
		for i := len(inputs) - 1; i >= 0; i-- {
			stack = append(stack, inputs[i])
		}
	}
}

// AnyExpr returns true if pred holds for e or any of its descendants.
func (p *Plan) AnyExpr(e arena.Node, pred func(AExpr) bool) bool {
	found := false
	p.WalkExpr(e, func(_ arena.Node, expr AExpr) bool {
		if pred(expr) {
			found = true
		}
		return !found
	})
	return found
}

// ColumnRefs returns the names of the columns referenced by exprs, in order
// of first reference.
func (p *Plan) ColumnRefs(exprs ...arena.Node) []string {
	var out []string
	seen := map[string]bool{}
	for _, e := range exprs {
		p.WalkExpr(e, func(_ arena.Node, expr AExpr) bool {
			if c, ok := expr.(*ColumnExpr); ok && !seen[c.Name] {
				seen[c.Name] = true
				out = append(out, c.Name)
			}
			return true
		})
	}
	return out
}

// HasColumn returns true if e references at least one column.
func (p *Plan) HasColumn(e arena.Node) bool {
	return p.AnyExpr(e, func(expr AExpr) bool {
		_, ok := expr.(*ColumnExpr)
		return ok
	})
}

// IsElementwise returns true if every node of e maps each input row to
// exactly one output row, independently of the other rows.
func (p *Plan) IsElementwise(e arena.Node) bool {
	return !p.AnyExpr(e, func(expr AExpr) bool { return !isElementwiseNode(expr) })
}

func isElementwiseNode(expr AExpr) bool {
	switch expr := expr.(type) {
	case *ColumnExpr, *BinaryExpr, *CastExpr, *AliasExpr, *TernaryExpr:
		return true
	case *LiteralExpr:
		return expr.Value.IsScalar()
	case *FunctionExpr:
		return expr.Kind.IsElementwise()
	default:
		return false
	}
}

// IsColumn returns the column name if e is a bare column reference.
func (p *Plan) IsColumn(e arena.Node) (string, bool) {
	if c, ok := p.Expr(e).(*ColumnExpr); ok {
		return c.Name, true
	}
	return "", false
}

// AliasedColumn returns the input column of e if e is a bare column or an
// alias of a bare column.
func (p *Plan) AliasedColumn(e arena.Node) (string, bool) {
	switch expr := p.Expr(e).(type) {
	case *ColumnExpr:
		return expr.Name, true
	case *AliasExpr:
		return p.IsColumn(expr.Input)
	}
	return "", false
}

// CopyExpr deep copies e and returns the id of the copy.
func (p *Plan) CopyExpr(e arena.Node) arena.Node {
	return p.RenameColumns(e, nil)
}

// RenameColumns deep copies e, replacing column references according to
// mapping. Names missing from mapping are kept.
func (p *Plan) RenameColumns(e arena.Node, mapping map[string]string) arena.Node {
	expr := p.Expr(e)
	if c, ok := expr.(*ColumnExpr); ok {
		if n, ok := mapping[c.Name]; ok {
			return p.AddExpr(&ColumnExpr{Name: n})
		}
		return p.AddExpr(&ColumnExpr{Name: c.Name})
	}
	inputs := Inputs(expr)
	copied := make([]arena.Node, len(inputs))
	for i, in := range inputs {
		copied[i] = p.RenameColumns(in, mapping)
	}
	return p.AddExpr(withInputs(expr, copied))
}

// SplitConjunction returns the operands of a tree of AND operations.
func (p *Plan) SplitConjunction(e arena.Node) []arena.Node {
	if b, ok := p.Expr(e).(*BinaryExpr); ok && b.Op == types.BinaryOpAnd {
		return append(p.SplitConjunction(b.Left), p.SplitConjunction(b.Right)...)
	}
	return []arena.Node{e}
}

// CombineConjunction folds exprs into a left-deep tree of AND operations.
// It returns false if exprs is empty.
func (p *Plan) CombineConjunction(exprs []arena.Node) (arena.Node, bool) {
	if len(exprs) == 0 {
		return 0, false
	}
	acc := exprs[0]
	for _, e := range exprs[1:] {
		acc = p.AddExpr(&BinaryExpr{Left: acc, Op: types.BinaryOpAnd, Right: e})
	}
	return acc, true
}
