package logical

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/grafana/lazyframe/pkg/engine/internal/arena"
	"github.com/grafana/lazyframe/pkg/engine/internal/datatype"
	"github.com/grafana/lazyframe/pkg/engine/internal/errors"
	"github.com/grafana/lazyframe/pkg/engine/internal/types"
)

// LiteralName is the output name of a literal expression.
const LiteralName = "literal"

// OutputName returns the name of the column produced by expression e.
func (p *Plan) OutputName(e arena.Node) string {
	switch expr := p.Expr(e).(type) {
	case *ColumnExpr:
		return expr.Name
	case *LiteralExpr:
		return LiteralName
	case *AliasExpr:
		return expr.Name
	case *BinaryExpr:
		return p.OutputName(expr.Left)
	case *FunctionExpr:
		return p.OutputName(expr.Input[0])
	case *WindowExpr:
		return p.OutputName(expr.Function)
	case *TernaryExpr:
		return p.OutputName(expr.Truthy)
	default:
		return p.OutputName(Inputs(expr)[0])
	}
}

// ExprField returns the name and type of the column produced by evaluating e
// against input.
func (p *Plan) ExprField(e arena.Node, input *Schema) (Field, error) {
	dt, err := p.exprType(e, input)
	if err != nil {
		return Field{}, err
	}
	return Field{Name: p.OutputName(e), Type: dt}, nil
}

func (p *Plan) exprType(e arena.Node, input *Schema) (arrow.DataType, error) {
	switch expr := p.Expr(e).(type) {
	case *ColumnExpr:
		f, ok := input.Get(expr.Name)
		if !ok {
			return nil, fmt.Errorf("%w: %q not in %s", errors.ErrColumnNotFound, expr.Name, input)
		}
		return f.Type, nil

	case *LiteralExpr:
		return expr.Value.Type, nil

	case *BinaryExpr:
		lt, err := p.exprType(expr.Left, input)
		if err != nil {
			return nil, err
		}
		rt, err := p.exprType(expr.Right, input)
		if err != nil {
			return nil, err
		}
		return binaryType(expr.Op, lt, rt)

	case *FunctionExpr:
		argTypes := make([]arrow.DataType, len(expr.Input))
		for i, in := range expr.Input {
			t, err := p.exprType(in, input)
			if err != nil {
				return nil, err
			}
			argTypes[i] = t
		}
		return functionType(expr.Kind, argTypes)

	case *CastExpr:
		if _, err := p.exprType(expr.Input, input); err != nil {
			return nil, err
		}
		return expr.To, nil

	case *AggExpr:
		t, err := p.exprType(expr.Input, input)
		if err != nil {
			return nil, err
		}
		return AggType(expr.Kind, t), nil

	case *WindowExpr:
		for _, by := range expr.PartitionBy {
			if _, err := p.exprType(by, input); err != nil {
				return nil, err
			}
		}
		return p.exprType(expr.Function, input)

	case *TernaryExpr:
		if _, err := p.exprType(expr.Predicate, input); err != nil {
			return nil, err
		}
		tt, err := p.exprType(expr.Truthy, input)
		if err != nil {
			return nil, err
		}
		ft, err := p.exprType(expr.Falsy, input)
		if err != nil {
			return nil, err
		}
		st, ok := datatype.Supertype(tt, ft)
		if !ok {
			return nil, fmt.Errorf("%w: branches of when/then/otherwise have types %s and %s", errors.ErrType, datatype.Name(tt), datatype.Name(ft))
		}
		return st, nil

	case *AliasExpr:
		return p.exprType(expr.Input, input)
	case *SortExpr:
		return p.exprType(expr.Input, input)
	case *SliceExpr:
		return p.exprType(expr.Input, input)
	default:
		panic(unknownExpr(expr))
	}
}

func binaryType(op types.BinaryOp, lt, rt arrow.DataType) (arrow.DataType, error) {
	switch {
	case op.IsComparison(), op.IsLogical():
		return datatype.Arrow.Bool, nil
	case op == types.BinaryOpDivide:
		return datatype.Arrow.Float64, nil
	}
	st, ok := datatype.Supertype(lt, rt)
	if !ok || !(datatype.IsNumeric(st) || st.ID() == arrow.NULL) {
		return nil, fmt.Errorf("%w: cannot apply %s to %s and %s", errors.ErrType, op, datatype.Name(lt), datatype.Name(rt))
	}
	return st, nil
}

func functionType(kind types.FunctionKind, args []arrow.DataType) (arrow.DataType, error) {
	switch kind {
	case types.FunctionIsNull, types.FunctionIsNotNull, types.FunctionIsIn, types.FunctionNot,
		types.FunctionIsUnique, types.FunctionIsDuplicated, types.FunctionIsFirstDistinct:
		return datatype.Arrow.Bool, nil
	case types.FunctionAbs:
		return args[0], nil
	case types.FunctionExplode:
		if l, ok := args[0].(*arrow.ListType); ok {
			return l.Elem(), nil
		}
		return args[0], nil
	case types.FunctionFillNull, types.FunctionFusedMultiplyAdd, types.FunctionFusedSubMultiply:
		st := args[0]
		for _, t := range args[1:] {
			var ok bool
			if st, ok = datatype.Supertype(st, t); !ok {
				return nil, fmt.Errorf("%w: no common type for arguments of %s", errors.ErrType, kind)
			}
		}
		return st, nil
	default:
		return nil, fmt.Errorf("%w: function %s", errors.ErrNotImplemented, kind)
	}
}

// AggType returns the result type of aggregation kind over values of type t.
func AggType(kind types.AggKind, t arrow.DataType) arrow.DataType {
	switch kind {
	case types.AggSum:
		switch {
		case datatype.IsFloat(t):
			return datatype.Arrow.Float64
		case t.ID() == arrow.UINT32 || t.ID() == arrow.UINT64:
			return datatype.Arrow.Uint64
		default:
			return datatype.Arrow.Int64
		}
	case types.AggMean:
		return datatype.Arrow.Float64
	case types.AggCount, types.AggLen:
		return datatype.Index
	default:
		return t
	}
}

// MapSchema returns the output schema of applying fn to input.
func MapSchema(fn MapFunc, input *Schema) (*Schema, error) {
	switch fn := fn.(type) {
	case *Explode:
		out := NewSchema(input.Fields()...)
		for _, c := range fn.Columns {
			f, ok := input.Get(c)
			if !ok {
				return nil, fmt.Errorf("%w: %q", errors.ErrColumnNotFound, c)
			}
			if l, ok := f.Type.(*arrow.ListType); ok {
				out.Upsert(Field{Name: c, Type: l.Elem()})
			}
		}
		return out, nil

	case *Melt:
		out := NewSchema()
		for _, id := range fn.IDVars {
			f, ok := input.Get(id)
			if !ok {
				return nil, fmt.Errorf("%w: %q", errors.ErrColumnNotFound, id)
			}
			out.Upsert(f)
		}
		var valueType arrow.DataType = datatype.Arrow.Null
		for _, v := range MeltValueVars(fn, input) {
			f, ok := input.Get(v)
			if !ok {
				return nil, fmt.Errorf("%w: %q", errors.ErrColumnNotFound, v)
			}
			st, ok := datatype.Supertype(valueType, f.Type)
			if !ok {
				return nil, fmt.Errorf("%w: melted columns have no common type", errors.ErrType)
			}
			valueType = st
		}
		out.Upsert(Field{Name: meltName(fn.VariableName, "variable"), Type: datatype.Arrow.String})
		out.Upsert(Field{Name: meltName(fn.ValueName, "value"), Type: valueType})
		return out, nil

	case *DropNulls:
		return input, nil

	case *Rename:
		mapping := make(map[string]string, len(fn.Existing))
		for i, old := range fn.Existing {
			mapping[old] = fn.New[i]
		}
		out := NewSchema()
		for _, f := range input.Fields() {
			if n, ok := mapping[f.Name]; ok {
				f.Name = n
			}
			if out.Contains(f.Name) {
				return nil, fmt.Errorf("%w: rename produces duplicate column %q", errors.ErrSchemaMismatch, f.Name)
			}
			out.Upsert(f)
		}
		return out, nil

	case *Udf:
		if fn.Schema != nil {
			return fn.Schema, nil
		}
		return input, nil

	default:
		return nil, fmt.Errorf("%w: map function %T", errors.ErrNotImplemented, fn)
	}
}

// MeltValueVars returns the melted columns of fn: its value variables, or
// every non-id column if none are given.
func MeltValueVars(fn *Melt, input *Schema) []string {
	if len(fn.ValueVars) > 0 {
		return fn.ValueVars
	}
	ids := make(map[string]bool, len(fn.IDVars))
	for _, id := range fn.IDVars {
		ids[id] = true
	}
	var out []string
	for _, name := range input.Names() {
		if !ids[name] {
			out = append(out, name)
		}
	}
	return out
}

// MeltNames returns the names of the variable and value columns of fn.
func MeltNames(fn *Melt) (variable, value string) {
	return meltName(fn.VariableName, "variable"), meltName(fn.ValueName, "value")
}

func meltName(name, fallback string) string {
	if name == "" {
		return fallback
	}
	return name
}
