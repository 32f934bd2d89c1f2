package optimizer

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/grafana/lazyframe/pkg/engine/internal/arena"
	"github.com/grafana/lazyframe/pkg/engine/internal/datatype"
	"github.com/grafana/lazyframe/pkg/engine/internal/errors"
	"github.com/grafana/lazyframe/pkg/engine/internal/planner/logical"
	"github.com/grafana/lazyframe/pkg/engine/internal/types"
)

// typeCoercion casts the operands of operations that need a common type.
// Constants are converted directly when no precision is lost, so that a
// column is not cast to compare it with a literal.
type typeCoercion struct {
	plan *logical.Plan
}

var _ exprRule = (*typeCoercion)(nil)

func (r *typeCoercion) name() string { return "type coercion" }

func (r *typeCoercion) applyExpr(ctx exprContext, e arena.Node) (bool, error) {
	p := r.plan
	switch expr := p.Expr(e).(type) {
	case *logical.BinaryExpr:
		if expr.Op.IsLogical() {
			return false, nil
		}
		return r.unify(ctx, expr.Op.String(), &expr.Left, &expr.Right)

	case *logical.TernaryExpr:
		return r.unify(ctx, "when/then/otherwise", &expr.Truthy, &expr.Falsy)

	case *logical.FunctionExpr:
		switch expr.Kind {
		case types.FunctionFillNull:
			return r.unify(ctx, expr.Kind.String(), &expr.Input[0], &expr.Input[1])
		case types.FunctionIsIn:
			return r.castList(ctx, expr)
		}
	}
	return false, nil
}

// unify casts a and b to a common type.
func (r *typeCoercion) unify(ctx exprContext, op string, a, b *arena.Node) (bool, error) {
	p := r.plan
	at, err := r.typeOf(ctx, *a)
	if err != nil {
		return false, err
	}
	bt, err := r.typeOf(ctx, *b)
	if err != nil {
		return false, err
	}
	if datatype.Equal(at, bt) {
		return false, nil
	}

	if r.castLiteral(*b, bt, at) || r.castLiteral(*a, at, bt) {
		return true, nil
	}

	st, ok := datatype.Supertype(at, bt)
	if !ok {
		return false, fmt.Errorf("%w: cannot apply %s to %s and %s", errors.ErrType, op, datatype.Name(at), datatype.Name(bt))
	}
	if !datatype.Equal(at, st) {
		*a = p.AddExpr(&logical.CastExpr{Input: *a, To: st})
	}
	if !datatype.Equal(bt, st) {
		*b = p.AddExpr(&logical.CastExpr{Input: *b, To: st})
	}
	return true, nil
}

// castLiteral converts the scalar literal at e from type from to type to if
// the conversion is lossless.
func (r *typeCoercion) castLiteral(e arena.Node, from, to arrow.DataType) bool {
	p := r.plan
	lit, ok := scalarLiteral(p, e)
	if !ok || to.ID() == arrow.NULL {
		return false
	}
	if st, ok := datatype.Supertype(from, to); !ok || (from.ID() != arrow.NULL && !datatype.IsNumeric(st)) {
		return false
	}
	cast, err := lit.Cast(to)
	if err != nil {
		return false
	}
	if back, err := cast.Cast(from); err != nil || !back.Equal(lit) {
		return false
	}
	p.Exprs.Replace(e, &logical.LiteralExpr{Value: cast})
	return true
}

// castList converts the list operand of is_in to the type of the tested
// values.
func (r *typeCoercion) castList(ctx exprContext, expr *logical.FunctionExpr) (bool, error) {
	p := r.plan
	lit, ok := p.Expr(expr.Input[1]).(*logical.LiteralExpr)
	if !ok {
		return false, nil
	}
	want, err := r.typeOf(ctx, expr.Input[0])
	if err != nil {
		return false, err
	}
	if datatype.Equal(lit.Value.Type, want) || want.ID() == arrow.NULL {
		return false, nil
	}
	cast, err := lit.Value.Cast(want)
	if err != nil {
		return false, nil
	}
	expr.Input[1] = p.AddExpr(&logical.LiteralExpr{Value: cast})
	return true, nil
}

func (r *typeCoercion) typeOf(ctx exprContext, e arena.Node) (arrow.DataType, error) {
	f, err := r.plan.ExprField(e, ctx.input)
	if err != nil {
		return nil, err
	}
	return f.Type, nil
}
