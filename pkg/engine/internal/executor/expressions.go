package executor

import (
	"fmt"
	"math"
	"sort"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/grafana/lazyframe/pkg/engine/internal/arena"
	"github.com/grafana/lazyframe/pkg/engine/internal/datatype"
	"github.com/grafana/lazyframe/pkg/engine/internal/errors"
	"github.com/grafana/lazyframe/pkg/engine/internal/planner/logical"
	"github.com/grafana/lazyframe/pkg/engine/internal/types"
)

// frame is the input of expression evaluation: a record and, inside an
// aggregation, the groups of its rows. Columns are converted on first use
// and may be read from several goroutines.
type frame struct {
	rec    arrow.Record
	cols   *xsync.MapOf[string, series]
	groups [][]int
}

func newFrame(rec arrow.Record) *frame {
	return &frame{rec: rec, cols: xsync.NewMapOf[string, series]()}
}

func (f *frame) rows() int { return int(f.rec.NumRows()) }

// ungrouped returns f without groups.
func (f *frame) ungrouped() *frame {
	if f.groups == nil {
		return f
	}
	return &frame{rec: f.rec, cols: f.cols}
}

// grouped returns f with the given groups.
func (f *frame) grouped(groups [][]int) *frame {
	return &frame{rec: f.rec, cols: f.cols, groups: groups}
}

func (f *frame) column(name string) (series, error) {
	if s, ok := f.cols.Load(name); ok {
		return s, nil
	}
	idx, err := columnIndex(f.rec, name)
	if err != nil {
		return series{}, err
	}
	s, _ := f.cols.LoadOrCompute(name, func() series {
		col := f.rec.Column(idx)
		return series{dt: col.DataType(), values: valuesOf(col)}
	})
	return s, nil
}

// evaluator evaluates the expressions of a plan.
type evaluator struct {
	plan *logical.Plan
}

func (ev evaluator) eval(e arena.Node, f *frame) (series, error) {
	switch expr := ev.plan.Expr(e).(type) {
	case *logical.ColumnExpr:
		col, err := f.column(expr.Name)
		if err != nil {
			return series{}, err
		}
		if f.groups == nil {
			return col, nil
		}
		// Outside of an aggregation a column evaluates to its first value
		// per group, which is the value of the group for key columns.
		out := make([]any, len(f.groups))
		for g, rows := range f.groups {
			if len(rows) > 0 {
				out[g] = col.values[rows[0]]
			}
		}
		return series{dt: col.dt, values: out}, nil

	case *logical.LiteralExpr:
		return series{dt: expr.Value.Type, values: expr.Value.Values(), scalar: expr.Value.IsScalar()}, nil

	case *logical.BinaryExpr:
		return ev.evalBinary(expr, f)
	case *logical.FunctionExpr:
		return ev.evalFunction(expr, f)

	case *logical.CastExpr:
		in, err := ev.eval(expr.Input, f)
		if err != nil {
			return series{}, err
		}
		return mapSeries(expr.To, func(i int) (any, error) {
			v, err := types.CastValue(in.at(i), expr.To)
			if err != nil {
				if expr.Strict {
					return nil, fmt.Errorf("%w: strict cast: %w", errors.ErrCompute, err)
				}
				return nil, nil
			}
			return v, nil
		}, in)

	case *logical.AliasExpr:
		return ev.eval(expr.Input, f)

	case *logical.AggExpr:
		in, err := ev.eval(expr.Input, f.ungrouped())
		if err != nil {
			return series{}, err
		}
		dt := logical.AggType(expr.Kind, in.dt)
		if f.groups == nil {
			v, err := aggregate(expr.Kind, in, allRows(f.rows()))
			if err != nil {
				return series{}, err
			}
			return scalarSeries(dt, v), nil
		}
		out := make([]any, len(f.groups))
		for g, rows := range f.groups {
			if out[g], err = aggregate(expr.Kind, in, rows); err != nil {
				return series{}, err
			}
		}
		return series{dt: dt, values: out}, nil

	case *logical.WindowExpr:
		return ev.evalWindow(expr, f)

	case *logical.TernaryExpr:
		pred, err := ev.eval(expr.Predicate, f)
		if err != nil {
			return series{}, err
		}
		truthy, err := ev.eval(expr.Truthy, f)
		if err != nil {
			return series{}, err
		}
		falsy, err := ev.eval(expr.Falsy, f)
		if err != nil {
			return series{}, err
		}
		dt, ok := datatype.Supertype(truthy.dt, falsy.dt)
		if !ok {
			return series{}, fmt.Errorf("%w: branches of when/then/otherwise have types %s and %s", errors.ErrType, datatype.Name(truthy.dt), datatype.Name(falsy.dt))
		}
		return mapSeries(dt, func(i int) (any, error) {
			if b, _ := pred.at(i).(bool); b {
				return types.CastValue(truthy.at(i), dt)
			}
			return types.CastValue(falsy.at(i), dt)
		}, pred, truthy, falsy)

	case *logical.SortExpr:
		in, err := ev.eval(expr.Input, f)
		if err != nil {
			return series{}, err
		}
		values := append([]any(nil), in.values...)
		sort.SliceStable(values, func(i, j int) bool {
			return compareValues(values[i], values[j], expr.Descending, expr.NullsLast) < 0
		})
		return series{dt: in.dt, values: values, scalar: in.scalar}, nil

	case *logical.SliceExpr:
		in, err := ev.eval(expr.Input, f)
		if err != nil {
			return series{}, err
		}
		start, end := types.SliceBounds(expr.Offset, expr.Length, in.Len())
		return series{dt: in.dt, values: append([]any(nil), in.values[start:end]...)}, nil

	default:
		return series{}, fmt.Errorf("%w: expression %T", errors.ErrNotImplemented, expr)
	}
}

func binaryResultType(op types.BinaryOp, lt, rt arrow.DataType) (arrow.DataType, error) {
	switch {
	case op.IsComparison(), op.IsLogical():
		return datatype.Arrow.Bool, nil
	case op == types.BinaryOpDivide:
		return datatype.Arrow.Float64, nil
	}
	st, ok := datatype.Supertype(lt, rt)
	if !ok {
		return nil, fmt.Errorf("%w: cannot apply %s to %s and %s", errors.ErrType, op, datatype.Name(lt), datatype.Name(rt))
	}
	return st, nil
}

func (ev evaluator) evalBinary(expr *logical.BinaryExpr, f *frame) (series, error) {
	left, err := ev.eval(expr.Left, f)
	if err != nil {
		return series{}, err
	}
	right, err := ev.eval(expr.Right, f)
	if err != nil {
		return series{}, err
	}
	dt, err := binaryResultType(expr.Op, left.dt, right.dt)
	if err != nil {
		return series{}, err
	}
	return mapSeries(dt, func(i int) (any, error) {
		return types.EvalBinary(expr.Op, left.at(i), right.at(i), dt)
	}, left, right)
}

func (ev evaluator) evalFunction(expr *logical.FunctionExpr, f *frame) (series, error) {
	args := make([]series, len(expr.Input))
	for i, in := range expr.Input {
		s, err := ev.eval(in, f)
		if err != nil {
			return series{}, err
		}
		args[i] = s
	}
	x := args[0]
	boolean := datatype.Arrow.Bool

	switch expr.Kind {
	case types.FunctionIsNull:
		return mapSeries(boolean, func(i int) (any, error) { return x.at(i) == nil, nil }, x)
	case types.FunctionIsNotNull:
		return mapSeries(boolean, func(i int) (any, error) { return x.at(i) != nil, nil }, x)

	case types.FunctionNot:
		return mapSeries(boolean, func(i int) (any, error) {
			switch v := x.at(i).(type) {
			case nil:
				return nil, nil
			case bool:
				return !v, nil
			default:
				return nil, fmt.Errorf("%w: not applied to %T", errors.ErrType, v)
			}
		}, x)

	case types.FunctionAbs:
		return mapSeries(x.dt, func(i int) (any, error) { return abs(x.at(i)) }, x)

	case types.FunctionFillNull:
		fill := args[1]
		dt, ok := datatype.Supertype(x.dt, fill.dt)
		if !ok {
			return series{}, fmt.Errorf("%w: cannot fill %s with %s", errors.ErrType, datatype.Name(x.dt), datatype.Name(fill.dt))
		}
		return mapSeries(dt, func(i int) (any, error) {
			if v := x.at(i); v != nil {
				return types.CastValue(v, dt)
			}
			return types.CastValue(fill.at(i), dt)
		}, x, fill)

	case types.FunctionIsIn:
		set := make(map[string]struct{}, args[1].Len())
		for _, v := range args[1].values {
			set[string(appendKey(nil, v))] = struct{}{}
		}
		return mapSeries(boolean, func(i int) (any, error) {
			v := x.at(i)
			if v == nil {
				return nil, nil
			}
			_, ok := set[string(appendKey(nil, v))]
			return ok, nil
		}, x)

	case types.FunctionIsUnique, types.FunctionIsDuplicated, types.FunctionIsFirstDistinct:
		return duplicates(expr.Kind, x), nil

	case types.FunctionExplode:
		dt := x.dt
		if l, ok := dt.(*arrow.ListType); ok {
			dt = l.Elem()
		}
		var out []any
		for _, v := range x.values {
			elems, ok := v.([]any)
			switch {
			case !ok:
				out = append(out, v)
			case len(elems) == 0:
				out = append(out, nil)
			default:
				out = append(out, elems...)
			}
		}
		return series{dt: dt, values: out}, nil

	case types.FunctionFusedMultiplyAdd, types.FunctionFusedSubMultiply:
		a, b, c := args[0], args[1], args[2]
		dt, ok := datatype.Supertype(a.dt, b.dt)
		if ok {
			dt, ok = datatype.Supertype(dt, c.dt)
		}
		if !ok {
			return series{}, fmt.Errorf("%w: no common type for arguments of %s", errors.ErrType, expr.Kind)
		}
		op := types.BinaryOpPlus
		if expr.Kind == types.FunctionFusedSubMultiply {
			op = types.BinaryOpMinus
		}
		return mapSeries(dt, func(i int) (any, error) {
			prod, err := types.EvalBinary(types.BinaryOpMultiply, b.at(i), c.at(i), dt)
			if err != nil {
				return nil, err
			}
			return types.EvalBinary(op, a.at(i), prod, dt)
		}, a, b, c)

	default:
		return series{}, fmt.Errorf("%w: function %s", errors.ErrNotImplemented, expr.Kind)
	}
}

func abs(v any) (any, error) {
	switch v := v.(type) {
	case nil:
		return nil, nil
	case int32:
		if v < 0 {
			return -v, nil
		}
		return v, nil
	case int64:
		if v < 0 {
			return -v, nil
		}
		return v, nil
	case uint32, uint64:
		return v, nil
	case float64:
		return math.Abs(v), nil
	default:
		return nil, fmt.Errorf("%w: abs applied to %T", errors.ErrType, v)
	}
}

// duplicates evaluates the duplicate detecting functions over the values
// of x.
func duplicates(kind types.FunctionKind, x series) series {
	t := newGroupTable(x.Len())
	groupOf := make([]int, x.Len())
	for i, v := range x.values {
		groupOf[i] = t.add(appendKey(nil, v), i)
	}
	out := make([]any, x.Len())
	for i, g := range groupOf {
		switch kind {
		case types.FunctionIsUnique:
			out[i] = len(t.rows[g]) == 1
		case types.FunctionIsDuplicated:
			out[i] = len(t.rows[g]) > 1
		default:
			out[i] = t.rows[g][0] == i
		}
	}
	return series{dt: datatype.Arrow.Bool, values: out}
}

func (ev evaluator) evalWindow(expr *logical.WindowExpr, f *frame) (series, error) {
	if f.groups != nil {
		return series{}, fmt.Errorf("%w: window expression inside an aggregation", errors.ErrNotImplemented)
	}
	keys := make([]series, len(expr.PartitionBy))
	for i, by := range expr.PartitionBy {
		s, err := ev.eval(by, f)
		if err != nil {
			return series{}, err
		}
		keys[i] = s
	}
	groups, groupOf := groupRows(keys, f.rows())
	res, err := ev.eval(expr.Function, f.grouped(groups))
	if err != nil {
		return series{}, err
	}
	out := make([]any, f.rows())
	for row, g := range groupOf {
		out[row] = res.at(g)
	}
	return series{dt: res.dt, values: out}, nil
}

// aggregate reduces the rows of in.
func aggregate(kind types.AggKind, in series, rows []int) (any, error) {
	switch kind {
	case types.AggLen:
		return uint32(len(rows)), nil
	case types.AggCount:
		var n uint32
		for _, r := range rows {
			if in.at(r) != nil {
				n++
			}
		}
		return n, nil
	case types.AggFirst:
		if len(rows) == 0 {
			return nil, nil
		}
		return in.at(rows[0]), nil
	case types.AggLast:
		if len(rows) == 0 {
			return nil, nil
		}
		return in.at(rows[len(rows)-1]), nil
	case types.AggMin, types.AggMax:
		var best any
		for _, r := range rows {
			v := in.at(r)
			if v == nil {
				continue
			}
			if best == nil {
				best = v
				continue
			}
			c, ok := types.Compare(v, best)
			if !ok {
				return nil, fmt.Errorf("%w: cannot compare %T and %T", errors.ErrCompute, v, best)
			}
			if (kind == types.AggMin && c < 0) || (kind == types.AggMax && c > 0) {
				best = v
			}
		}
		return best, nil
	case types.AggSum:
		dt := logical.AggType(kind, in.dt)
		var sum any
		switch dt.ID() {
		case arrow.FLOAT64:
			sum = float64(0)
		case arrow.UINT64:
			sum = uint64(0)
		default:
			sum = int64(0)
		}
		for _, r := range rows {
			v := in.at(r)
			if v == nil {
				continue
			}
			var err error
			if sum, err = types.EvalBinary(types.BinaryOpPlus, sum, v, dt); err != nil {
				return nil, err
			}
		}
		return sum, nil
	case types.AggMean:
		var (
			sum float64
			n   int
		)
		for _, r := range rows {
			v, ok := types.ToFloat(in.at(r))
			if !ok {
				continue
			}
			sum += v
			n++
		}
		if n == 0 {
			return nil, nil
		}
		return sum / float64(n), nil
	default:
		return nil, fmt.Errorf("%w: aggregation %s", errors.ErrNotImplemented, kind)
	}
}

// compareValues orders a and b. Nulls sort after every value if nullsLast
// is set and before every value otherwise, regardless of the direction.
func compareValues(a, b any, descending, nullsLast bool) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		if nullsLast {
			return 1
		}
		return -1
	case b == nil:
		if nullsLast {
			return -1
		}
		return 1
	}
	c, _ := types.Compare(a, b)
	if descending {
		return -c
	}
	return c
}
