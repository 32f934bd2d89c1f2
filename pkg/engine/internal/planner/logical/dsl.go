package logical

import (
	"github.com/apache/arrow-go/v18/arrow"

	"github.com/grafana/lazyframe/pkg/engine/internal/arena"
	"github.com/grafana/lazyframe/pkg/engine/internal/types"
)

// Expr is an expression that has not been added to a plan yet. It is
// converted into arena nodes when the plan node using it is built.
type Expr struct {
	build func(p *Plan) arena.Node
}

// Node adds e to the expression arena of p and returns its root id.
func (e Expr) Node(p *Plan) arena.Node { return e.build(p) }

func newExpr(fn func(p *Plan) arena.Node) Expr { return Expr{build: fn} }

// Col references a column.
func Col(name string) Expr {
	return newExpr(func(p *Plan) arena.Node { return p.AddExpr(&ColumnExpr{Name: name}) })
}

// Lit returns a scalar literal.
func Lit(v any) Expr {
	return LitValue(types.NewLiteral(v))
}

// LitSeries returns a series literal of type dt.
func LitSeries(dt arrow.DataType, values ...any) Expr {
	return LitValue(types.NewSeries(dt, values...))
}

// LitValue wraps an existing literal.
func LitValue(l types.Literal) Expr {
	return newExpr(func(p *Plan) arena.Node { return p.AddExpr(&LiteralExpr{Value: l}) })
}

// Len counts the rows of the column name.
func Len(name string) Expr { return Col(name).agg(types.AggLen) }

func (e Expr) binary(op types.BinaryOp, o Expr) Expr {
	return newExpr(func(p *Plan) arena.Node {
		l := e.build(p)
		r := o.build(p)
		return p.AddExpr(&BinaryExpr{Left: l, Op: op, Right: r})
	})
}

// Binary applies op to e and o.
func (e Expr) Binary(op types.BinaryOp, o Expr) Expr { return e.binary(op, o) }

func (e Expr) Eq(o Expr) Expr { return e.binary(types.BinaryOpEq, o) }
func (e Expr) NotEq(o Expr) Expr { return e.binary(types.BinaryOpNotEq, o) }
func (e Expr) Lt(o Expr) Expr { return e.binary(types.BinaryOpLt, o) }
func (e Expr) LtEq(o Expr) Expr { return e.binary(types.BinaryOpLtEq, o) }
func (e Expr) Gt(o Expr) Expr { return e.binary(types.BinaryOpGt, o) }
func (e Expr) GtEq(o Expr) Expr { return e.binary(types.BinaryOpGtEq, o) }
func (e Expr) And(o Expr) Expr { return e.binary(types.BinaryOpAnd, o) }
func (e Expr) Or(o Expr) Expr { return e.binary(types.BinaryOpOr, o) }
func (e Expr) Add(o Expr) Expr { return e.binary(types.BinaryOpPlus, o) }
func (e Expr) Sub(o Expr) Expr { return e.binary(types.BinaryOpMinus, o) }
func (e Expr) Mul(o Expr) Expr { return e.binary(types.BinaryOpMultiply, o) }
func (e Expr) Div(o Expr) Expr { return e.binary(types.BinaryOpDivide, o) }
func (e Expr) Mod(o Expr) Expr { return e.binary(types.BinaryOpModulus, o) }

// Function applies kind to e followed by args.
func (e Expr) Function(kind types.FunctionKind, args ...Expr) Expr {
	return newExpr(func(p *Plan) arena.Node {
		inputs := []arena.Node{e.build(p)}
		for _, a := range args {
			inputs = append(inputs, a.build(p))
		}
		return p.AddExpr(&FunctionExpr{Kind: kind, Input: inputs})
	})
}

func (e Expr) IsNull() Expr { return e.Function(types.FunctionIsNull) }
func (e Expr) IsNotNull() Expr { return e.Function(types.FunctionIsNotNull) }
func (e Expr) FillNull(v Expr) Expr { return e.Function(types.FunctionFillNull, v) }
func (e Expr) IsIn(list Expr) Expr { return e.Function(types.FunctionIsIn, list) }
func (e Expr) Not() Expr { return e.Function(types.FunctionNot) }
func (e Expr) Abs() Expr { return e.Function(types.FunctionAbs) }
func (e Expr) IsUnique() Expr { return e.Function(types.FunctionIsUnique) }
func (e Expr) IsDuplicated() Expr { return e.Function(types.FunctionIsDuplicated) }
func (e Expr) IsFirstDistinct() Expr { return e.Function(types.FunctionIsFirstDistinct) }
func (e Expr) Explode() Expr { return e.Function(types.FunctionExplode) }

// Alias renames the output of e.
func (e Expr) Alias(name string) Expr {
	return newExpr(func(p *Plan) arena.Node {
		return p.AddExpr(&AliasExpr{Input: e.build(p), Name: name})
	})
}

// Cast converts e to dt, producing nulls for values that do not fit.
func (e Expr) Cast(dt arrow.DataType) Expr { return e.cast(dt, false) }

// StrictCast converts e to dt and fails on values that do not fit.
func (e Expr) StrictCast(dt arrow.DataType) Expr { return e.cast(dt, true) }

func (e Expr) cast(dt arrow.DataType, strict bool) Expr {
	return newExpr(func(p *Plan) arena.Node {
		return p.AddExpr(&CastExpr{Input: e.build(p), To: dt, Strict: strict})
	})
}

func (e Expr) agg(kind types.AggKind) Expr {
	return newExpr(func(p *Plan) arena.Node {
		return p.AddExpr(&AggExpr{Kind: kind, Input: e.build(p)})
	})
}

// Agg reduces e with kind.
func (e Expr) Agg(kind types.AggKind) Expr { return e.agg(kind) }

func (e Expr) Sum() Expr { return e.agg(types.AggSum) }
func (e Expr) Min() Expr { return e.agg(types.AggMin) }
func (e Expr) Max() Expr { return e.agg(types.AggMax) }
func (e Expr) Mean() Expr { return e.agg(types.AggMean) }
func (e Expr) Count() Expr { return e.agg(types.AggCount) }
func (e Expr) First() Expr { return e.agg(types.AggFirst) }
func (e Expr) Last() Expr { return e.agg(types.AggLast) }

// Over evaluates the aggregation e per group of partitionBy.
func (e Expr) Over(partitionBy ...Expr) Expr {
	return newExpr(func(p *Plan) arena.Node {
		fn := e.build(p)
		by := make([]arena.Node, len(partitionBy))
		for i, b := range partitionBy {
			by[i] = b.build(p)
		}
		return p.AddExpr(&WindowExpr{Function: fn, PartitionBy: by})
	})
}

// Sort sorts the values of e.
func (e Expr) Sort(descending, nullsLast bool) Expr {
	return newExpr(func(p *Plan) arena.Node {
		return p.AddExpr(&SortExpr{Input: e.build(p), Descending: descending, NullsLast: nullsLast})
	})
}

// Slice takes length values of e starting at offset.
func (e Expr) Slice(offset int64, length uint64) Expr {
	return newExpr(func(p *Plan) arena.Node {
		return p.AddExpr(&SliceExpr{Input: e.build(p), Offset: offset, Length: length})
	})
}

// When starts a when/then/otherwise expression.
func When(predicate Expr) WhenThen { return WhenThen{predicate: predicate} }

// WhenThen is an incomplete when/then/otherwise expression.
type WhenThen struct {
	predicate, truthy Expr
}

func (w WhenThen) Then(truthy Expr) WhenThen {
	w.truthy = truthy
	return w
}

func (w WhenThen) Otherwise(falsy Expr) Expr {
	return newExpr(func(p *Plan) arena.Node {
		pred := w.predicate.build(p)
		t := w.truthy.build(p)
		f := falsy.build(p)
		return p.AddExpr(&TernaryExpr{Predicate: pred, Truthy: t, Falsy: f})
	})
}
