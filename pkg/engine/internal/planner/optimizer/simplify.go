package optimizer

import (
	"github.com/grafana/lazyframe/pkg/engine/internal/arena"
	"github.com/grafana/lazyframe/pkg/engine/internal/datatype"
	"github.com/grafana/lazyframe/pkg/engine/internal/planner/logical"
	"github.com/grafana/lazyframe/pkg/engine/internal/types"
)

// simplifyExpr folds operations on constants.
type simplifyExpr struct {
	plan *logical.Plan
}

var _ exprRule = (*simplifyExpr)(nil)

func (r *simplifyExpr) name() string { return "simplify expressions" }

func (r *simplifyExpr) applyExpr(_ exprContext, e arena.Node) (bool, error) {
	p := r.plan
	switch expr := p.Expr(e).(type) {
	case *logical.BinaryExpr:
		left, lok := scalarLiteral(p, expr.Left)
		right, rok := scalarLiteral(p, expr.Right)
		if !lok || !rok || left.IsNull() || right.IsNull() || expr.Op.IsLogical() {
			return false, nil
		}
		if expr.Op == types.BinaryOpDivide || expr.Op == types.BinaryOpModulus {
			if f, ok := types.ToFloat(right.Value); !ok || f == 0 {
				return false, nil
			}
		}
		dt := datatype.Arrow.Bool
		if expr.Op.IsArithmetic() {
			st, ok := datatype.Supertype(left.Type, right.Type)
			if !ok || !datatype.IsNumeric(st) {
				return false, nil
			}
			dt = st
			if expr.Op == types.BinaryOpDivide {
				dt = datatype.Arrow.Float64
			}
		}
		v, err := types.EvalBinary(expr.Op, left.Value, right.Value, dt)
		if err != nil {
			// Leave the failure to execution.
			return false, nil
		}
		p.Exprs.Replace(e, &logical.LiteralExpr{Value: types.Literal{Type: dt, Value: v}})
		return true, nil

	case *logical.CastExpr:
		lit, ok := scalarLiteral(p, expr.Input)
		if !ok {
			return false, nil
		}
		cast, err := lit.Cast(expr.To)
		if err != nil {
			if expr.Strict {
				return false, nil
			}
			cast = types.NewNull(expr.To)
		}
		p.Exprs.Replace(e, &logical.LiteralExpr{Value: cast})
		return true, nil

	case *logical.FunctionExpr:
		if expr.Kind != types.FunctionAbs {
			return false, nil
		}
		lit, ok := scalarLiteral(p, expr.Input[0])
		if !ok || lit.IsNull() || !datatype.IsNumeric(lit.Type) {
			return false, nil
		}
		zero, err := types.CastValue(int64(0), lit.Type)
		if err != nil {
			return false, nil
		}
		if c, ok := types.Compare(lit.Value, zero); !ok || c >= 0 {
			replaceExpr(p, e, expr.Input[0])
			return true, nil
		}
		v, err := types.EvalBinary(types.BinaryOpMinus, zero, lit.Value, lit.Type)
		if err != nil {
			return false, nil
		}
		p.Exprs.Replace(e, &logical.LiteralExpr{Value: types.Literal{Type: lit.Type, Value: v}})
		return true, nil
	}
	return false, nil
}

// simplifyBoolean removes boolean operations with a constant operand and
// double negations. Filters on a true constant are removed.
type simplifyBoolean struct {
	plan *logical.Plan
}

var (
	_ exprRule = (*simplifyBoolean)(nil)
	_ planRule = (*simplifyBoolean)(nil)
)

func (r *simplifyBoolean) name() string { return "simplify boolean" }

func (r *simplifyBoolean) applyPlan(id arena.Node) (bool, error) {
	p := r.plan
	f, ok := p.Node(id).(*logical.Filter)
	if !ok {
		return false, nil
	}
	if b, ok := boolLiteral(p, f.Predicate); ok && b {
		eliminate(p, id, f.Input)
		return true, nil
	}
	return false, nil
}

func (r *simplifyBoolean) applyExpr(_ exprContext, e arena.Node) (bool, error) {
	p := r.plan
	switch expr := p.Expr(e).(type) {
	case *logical.BinaryExpr:
		switch expr.Op {
		case types.BinaryOpAnd:
			return r.identity(e, expr, true), nil
		case types.BinaryOpOr:
			return r.identity(e, expr, false), nil
		}

	case *logical.FunctionExpr:
		if expr.Kind != types.FunctionNot {
			return false, nil
		}
		switch inner := p.Expr(expr.Input[0]).(type) {
		case *logical.FunctionExpr:
			if inner.Kind == types.FunctionNot {
				replaceExpr(p, e, inner.Input[0])
				return true, nil
			}
		case *logical.LiteralExpr:
			if b, ok := inner.Value.Bool(); ok {
				p.Exprs.Replace(e, &logical.LiteralExpr{Value: types.NewLiteral(!b)})
				return true, nil
			}
		case *logical.BinaryExpr:
			switch inner.Op {
			case types.BinaryOpEq:
				p.Exprs.Replace(e, &logical.BinaryExpr{Left: inner.Left, Op: types.BinaryOpNotEq, Right: inner.Right})
				return true, nil
			case types.BinaryOpNotEq:
				p.Exprs.Replace(e, &logical.BinaryExpr{Left: inner.Left, Op: types.BinaryOpEq, Right: inner.Right})
				return true, nil
			}
		}
	}
	return false, nil
}

// identity simplifies an AND (neutral true) or OR (neutral false) with a
// constant operand.
func (r *simplifyBoolean) identity(e arena.Node, expr *logical.BinaryExpr, neutral bool) bool {
	p := r.plan
	for _, side := range [][2]arena.Node{{expr.Left, expr.Right}, {expr.Right, expr.Left}} {
		b, ok := boolLiteral(p, side[0])
		if !ok {
			continue
		}
		if b == neutral {
			replaceExpr(p, e, side[1])
		} else {
			// The absorbing value wins over nulls too.
			p.Exprs.Replace(e, &logical.LiteralExpr{Value: types.NewLiteral(b)})
		}
		return true
	}
	return false
}

func scalarLiteral(p *logical.Plan, e arena.Node) (types.Literal, bool) {
	lit, ok := p.Expr(e).(*logical.LiteralExpr)
	if !ok || !lit.Value.IsScalar() {
		return types.Literal{}, false
	}
	return lit.Value, true
}

func boolLiteral(p *logical.Plan, e arena.Node) (bool, bool) {
	lit, ok := scalarLiteral(p, e)
	if !ok {
		return false, false
	}
	return lit.Bool()
}
