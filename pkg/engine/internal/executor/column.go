package executor

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/grafana/lazyframe/pkg/engine/internal/errors"
	"github.com/grafana/lazyframe/pkg/engine/internal/types"
)

// series is a column of values produced by evaluating an expression. Nulls
// are nil and list values are []any. A scalar series holds a single value
// that broadcasts to the height of the frame it is combined with.
type series struct {
	dt     arrow.DataType
	values []any
	scalar bool
}

func scalarSeries(dt arrow.DataType, v any) series {
	return series{dt: dt, values: []any{v}, scalar: true}
}

func (s series) Len() int { return len(s.values) }

func (s series) at(i int) any {
	if s.scalar {
		return s.values[0]
	}
	return s.values[i]
}

// broadcast returns the values of s repeated to n rows if s is a scalar.
func (s series) broadcast(n int) ([]any, error) {
	if !s.scalar {
		if len(s.values) != n {
			return nil, fmt.Errorf("%w: column of length %d does not match height %d", errors.ErrCompute, len(s.values), n)
		}
		return s.values, nil
	}
	out := make([]any, n)
	for i := range out {
		out[i] = s.values[0]
	}
	return out, nil
}

// broadcastLen returns the common length of inputs. Scalars match any
// length; the result is scalar if every input is.
func broadcastLen(inputs ...series) (n int, scalar bool, err error) {
	n = -1
	for _, in := range inputs {
		if in.scalar {
			continue
		}
		switch {
		case n == -1:
			n = in.Len()
		case n != in.Len():
			return 0, false, fmt.Errorf("%w: cannot combine columns of lengths %d and %d", errors.ErrCompute, n, in.Len())
		}
	}
	if n == -1 {
		return 1, true, nil
	}
	return n, false, nil
}

// mapSeries computes fn for every row of the broadcast inputs.
func mapSeries(dt arrow.DataType, fn func(i int) (any, error), inputs ...series) (series, error) {
	n, scalar, err := broadcastLen(inputs...)
	if err != nil {
		return series{}, err
	}
	out := make([]any, n)
	for i := range out {
		v, err := fn(i)
		if err != nil {
			return series{}, err
		}
		out[i] = v
	}
	return series{dt: dt, values: out, scalar: scalar}, nil
}

// valueAt returns row i of arr as a Go value.
func valueAt(arr arrow.Array, i int) any {
	if arr.IsNull(i) {
		return nil
	}
	switch arr := arr.(type) {
	case *array.Null:
		return nil
	case *array.Boolean:
		return arr.Value(i)
	case *array.Int32:
		return arr.Value(i)
	case *array.Int64:
		return arr.Value(i)
	case *array.Uint32:
		return arr.Value(i)
	case *array.Uint64:
		return arr.Value(i)
	case *array.Float64:
		return arr.Value(i)
	case *array.String:
		return arr.Value(i)
	case *array.List:
		start, end := arr.ValueOffsets(i)
		elems := arr.ListValues()
		out := make([]any, 0, end-start)
		for j := start; j < end; j++ {
			out = append(out, valueAt(elems, int(j)))
		}
		return out
	default:
		return arr.GetOneForMarshal(i)
	}
}

// valuesOf returns every row of arr.
func valuesOf(arr arrow.Array) []any {
	out := make([]any, arr.Len())
	for i := range out {
		out[i] = valueAt(arr, i)
	}
	return out
}

// buildArray builds an array of type dt. Values whose Go type does not
// match dt are cast.
func buildArray(mem memory.Allocator, dt arrow.DataType, values []any) (arrow.Array, error) {
	b := array.NewBuilder(mem, dt)
	defer b.Release()

	b.Reserve(len(values))
	for _, v := range values {
		if err := appendValue(b, v); err != nil {
			return nil, err
		}
	}
	return b.NewArray(), nil
}

func appendValue(b array.Builder, v any) error {
	if v == nil {
		b.AppendNull()
		return nil
	}
	if lb, ok := b.(*array.ListBuilder); ok {
		elems, ok := v.([]any)
		if !ok {
			return fmt.Errorf("%w: cannot append %v (%T) to a list column", errors.ErrType, v, v)
		}
		lb.Append(true)
		for _, e := range elems {
			if err := appendValue(lb.ValueBuilder(), e); err != nil {
				return err
			}
		}
		return nil
	}

	c, err := types.CastValue(v, b.Type())
	if err != nil {
		return err
	}
	if c == nil {
		b.AppendNull()
		return nil
	}
	switch b := b.(type) {
	case *array.BooleanBuilder:
		b.Append(c.(bool))
	case *array.Int32Builder:
		b.Append(c.(int32))
	case *array.Int64Builder:
		b.Append(c.(int64))
	case *array.Uint32Builder:
		b.Append(c.(uint32))
	case *array.Uint64Builder:
		b.Append(c.(uint64))
	case *array.Float64Builder:
		b.Append(c.(float64))
	case *array.StringBuilder:
		b.Append(c.(string))
	case *array.NullBuilder:
		b.AppendNull()
	default:
		return fmt.Errorf("%w: cannot build column of type %s", errors.ErrNotImplemented, b.Type())
	}
	return nil
}

// newRecord assembles a record and releases the references to cols held by
// the caller.
func newRecord(schema *arrow.Schema, cols []arrow.Array, rows int) arrow.Record {
	rec := array.NewRecord(schema, cols, int64(rows))
	for _, c := range cols {
		c.Release()
	}
	return rec
}

// emptyRecord returns a record of schema without rows.
func emptyRecord(mem memory.Allocator, schema *arrow.Schema) arrow.Record {
	cols := make([]arrow.Array, schema.NumFields())
	for i, f := range schema.Fields() {
		cols[i] = array.MakeArrayOfNull(mem, f.Type, 0)
	}
	return newRecord(schema, cols, 0)
}

// columnIndex returns the position of the column called name in rec.
func columnIndex(rec arrow.Record, name string) (int, error) {
	idx := rec.Schema().FieldIndices(name)
	if len(idx) == 0 {
		return -1, fmt.Errorf("%w: %q", errors.ErrColumnNotFound, name)
	}
	return idx[0], nil
}

// takeRows builds a record with the rows idx of rec, in order, and the
// fields of schema, which must match the columns of rec by position. An
// index of -1 produces a row of nulls.
func takeRows(mem memory.Allocator, schema *arrow.Schema, rec arrow.Record, idx []int) (arrow.Record, error) {
	cols := make([]arrow.Array, 0, rec.NumCols())
	release := func() {
		for _, c := range cols {
			c.Release()
		}
	}
	for i, col := range rec.Columns() {
		arr, err := takeArray(mem, schema.Field(i).Type, col, idx)
		if err != nil {
			release()
			return nil, err
		}
		cols = append(cols, arr)
	}
	return newRecord(schema, cols, len(idx)), nil
}

func takeArray(mem memory.Allocator, dt arrow.DataType, arr arrow.Array, idx []int) (arrow.Array, error) {
	values := make([]any, len(idx))
	for i, row := range idx {
		if row >= 0 {
			values[i] = valueAt(arr, row)
		}
	}
	return buildArray(mem, dt, values)
}

// sliceRecord returns the rows of rec selected by offset and length.
func sliceRecord(rec arrow.Record, offset int64, length uint64) arrow.Record {
	start, end := types.SliceBounds(offset, length, int(rec.NumRows()))
	return rec.NewSlice(int64(start), int64(end))
}

// concatRecords appends the rows of recs, which must have the columns of
// schema in order.
func concatRecords(mem memory.Allocator, schema *arrow.Schema, recs []arrow.Record) (arrow.Record, error) {
	if len(recs) == 1 {
		recs[0].Retain()
		return recs[0], nil
	}
	if len(recs) == 0 {
		return emptyRecord(mem, schema), nil
	}

	var rows int64
	for _, rec := range recs {
		rows += rec.NumRows()
	}
	cols := make([]arrow.Array, 0, schema.NumFields())
	for i := range schema.Fields() {
		parts := make([]arrow.Array, len(recs))
		for j, rec := range recs {
			parts[j] = rec.Column(i)
		}
		arr, err := array.Concatenate(parts, mem)
		if err != nil {
			for _, c := range cols {
				c.Release()
			}
			return nil, fmt.Errorf("concatenating column %q: %w", schema.Field(i).Name, err)
		}
		cols = append(cols, arr)
	}
	return newRecord(schema, cols, int(rows)), nil
}
