package optimizer

import (
	"github.com/apache/arrow-go/v18/arrow"

	"github.com/grafana/lazyframe/pkg/engine/internal/arena"
	"github.com/grafana/lazyframe/pkg/engine/internal/planner/logical"
	"github.com/grafana/lazyframe/pkg/engine/internal/types"
)

// fusedArithmetic rewrites a+b*c into fma(a, b, c) and a-b*c into
// fsm(a, b, c) in projections over float64 operands.
type fusedArithmetic struct {
	plan *logical.Plan
}

var _ exprRule = (*fusedArithmetic)(nil)

func (r *fusedArithmetic) name() string { return "fused arithmetic" }

func (r *fusedArithmetic) applyExpr(ctx exprContext, e arena.Node) (bool, error) {
	if !ctx.projection {
		return false, nil
	}
	p := r.plan
	expr, ok := p.Expr(e).(*logical.BinaryExpr)
	if !ok {
		return false, nil
	}

	var (
		kind        types.FunctionKind
		addend, mul arena.Node
	)
	switch expr.Op {
	case types.BinaryOpPlus:
		kind = types.FunctionFusedMultiplyAdd
		switch {
		case r.isMultiply(expr.Right):
			addend, mul = expr.Left, expr.Right
		case r.isMultiply(expr.Left):
			addend, mul = expr.Right, expr.Left
		default:
			return false, nil
		}
	case types.BinaryOpMinus:
		if !r.isMultiply(expr.Right) {
			return false, nil
		}
		kind = types.FunctionFusedSubMultiply
		addend, mul = expr.Left, expr.Right
	default:
		return false, nil
	}

	m := p.Expr(mul).(*logical.BinaryExpr)
	operands := []arena.Node{addend, m.Left, m.Right}
	for _, op := range operands {
		f, err := p.ExprField(op, ctx.input)
		if err != nil || f.Type.ID() != arrow.FLOAT64 {
			return false, nil
		}
	}
	p.Exprs.Replace(e, &logical.FunctionExpr{Kind: kind, Input: operands})
	return true, nil
}

func (r *fusedArithmetic) isMultiply(e arena.Node) bool {
	b, ok := r.plan.Expr(e).(*logical.BinaryExpr)
	return ok && b.Op == types.BinaryOpMultiply
}
