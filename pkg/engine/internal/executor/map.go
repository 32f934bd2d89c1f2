package executor

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/grafana/lazyframe/pkg/engine/internal/errors"
	"github.com/grafana/lazyframe/pkg/engine/internal/planner/logical"
)

func newMapFunction(fn logical.MapFunc, input Executor, out *arrow.Schema) (operator, error) {
	switch fn := fn.(type) {
	case *logical.Explode:
		return &explode{input: input, columns: fn.Columns, schema: out}, nil
	case *logical.Melt:
		return &melt{input: input, fn: fn, schema: out}, nil
	case *logical.DropNulls:
		return &dropNulls{input: input, subset: fn.Subset}, nil
	case *logical.Rename:
		return &rename{input: input, schema: out}, nil
	case *logical.Udf:
		return &udf{input: input, fn: fn, schema: out}, nil
	default:
		return nil, fmt.Errorf("%w: map function %T", errors.ErrNotImplemented, fn)
	}
}

// explode emits one row per element of the list columns. Null and empty
// lists produce a single row with a null. The exploded columns of a row
// must have the same number of elements.
type explode struct {
	input   Executor
	columns []string
	schema  *arrow.Schema
}

func (e *explode) name() string { return "explode" }

func (e *explode) Execute(state *State) (arrow.Record, error) {
	in, err := e.input.Execute(state)
	if err != nil {
		return nil, err
	}
	defer in.Release()

	exploded := make(map[int][]any, len(e.columns))
	for _, name := range e.columns {
		idx, err := columnIndex(in, name)
		if err != nil {
			return nil, err
		}
		exploded[idx] = nil
	}

	var rows []int
	for r := 0; r < int(in.NumRows()); r++ {
		n := -1
		for idx := range exploded {
			v := valueAt(in.Column(idx), r)
			elems, ok := v.([]any)
			switch {
			case v == nil, ok && len(elems) == 0:
				elems = []any{nil}
			case !ok:
				elems = []any{v}
			}
			if n != -1 && n != len(elems) {
				return nil, fmt.Errorf("%w: exploded columns of row %d have different lengths", errors.ErrCompute, r)
			}
			n = len(elems)
			exploded[idx] = append(exploded[idx], elems...)
		}
		for i := 0; i < n; i++ {
			rows = append(rows, r)
		}
	}

	cols := make([]arrow.Array, 0, in.NumCols())
	for idx, col := range in.Columns() {
		var (
			arr arrow.Array
			err error
		)
		if values, ok := exploded[idx]; ok {
			arr, err = buildArray(state.mem, e.schema.Field(idx).Type, values)
		} else {
			arr, err = takeArray(state.mem, e.schema.Field(idx).Type, col, rows)
		}
		if err != nil {
			releaseAll(cols)
			return nil, err
		}
		cols = append(cols, arr)
	}
	return newRecord(e.schema, cols, len(rows)), nil
}

// melt turns value columns into (variable, value) rows. The rows of the
// first value column come first.
type melt struct {
	input  Executor
	fn     *logical.Melt
	schema *arrow.Schema
}

func (m *melt) name() string { return "melt" }

func (m *melt) Execute(state *State) (arrow.Record, error) {
	in, err := m.input.Execute(state)
	if err != nil {
		return nil, err
	}
	defer in.Release()

	valueVars := logical.MeltValueVars(m.fn, logical.SchemaFromArrow(in.Schema()))
	n := int(in.NumRows())
	rows := make([]int, 0, n*len(valueVars))
	variables := make([]any, 0, cap(rows))
	values := make([]any, 0, cap(rows))
	for _, name := range valueVars {
		idx, err := columnIndex(in, name)
		if err != nil {
			return nil, err
		}
		col := in.Column(idx)
		for r := 0; r < n; r++ {
			rows = append(rows, r)
			variables = append(variables, name)
			values = append(values, valueAt(col, r))
		}
	}

	cols := make([]arrow.Array, 0, m.schema.NumFields())
	for i, id := range m.fn.IDVars {
		idx, err := columnIndex(in, id)
		if err != nil {
			releaseAll(cols)
			return nil, err
		}
		arr, err := takeArray(state.mem, m.schema.Field(i).Type, in.Column(idx), rows)
		if err != nil {
			releaseAll(cols)
			return nil, err
		}
		cols = append(cols, arr)
	}
	k := len(m.fn.IDVars)
	for i, vals := range [][]any{variables, values} {
		arr, err := buildArray(state.mem, m.schema.Field(k+i).Type, vals)
		if err != nil {
			releaseAll(cols)
			return nil, err
		}
		cols = append(cols, arr)
	}
	return newRecord(m.schema, cols, len(rows)), nil
}

// dropNulls removes the rows with a null in any column of the subset, or
// in any column if the subset is nil.
type dropNulls struct {
	input  Executor
	subset []string
}

func (d *dropNulls) name() string { return "drop_nulls" }

func (d *dropNulls) Execute(state *State) (arrow.Record, error) {
	in, err := d.input.Execute(state)
	if err != nil {
		return nil, err
	}
	defer in.Release()

	var checked []arrow.Array
	if d.subset == nil {
		checked = in.Columns()
	} else {
		for _, name := range d.subset {
			idx, err := columnIndex(in, name)
			if err != nil {
				return nil, err
			}
			checked = append(checked, in.Column(idx))
		}
	}

	rows := make([]int, 0, in.NumRows())
next:
	for r := 0; r < int(in.NumRows()); r++ {
		for _, col := range checked {
			if col.IsNull(r) {
				continue next
			}
		}
		rows = append(rows, r)
	}
	if len(rows) == int(in.NumRows()) {
		in.Retain()
		return in, nil
	}
	return takeRows(state.mem, in.Schema(), in, rows)
}

// rename relabels the columns of its input.
type rename struct {
	input  Executor
	schema *arrow.Schema
}

func (r *rename) name() string { return "rename" }

func (r *rename) Execute(state *State) (arrow.Record, error) {
	in, err := r.input.Execute(state)
	if err != nil {
		return nil, err
	}
	defer in.Release()

	cols := in.Columns()
	for _, c := range cols {
		c.Retain()
	}
	return newRecord(r.schema, cols, int(in.NumRows())), nil
}

// udf applies a user function.
type udf struct {
	input  Executor
	fn     *logical.Udf
	schema *arrow.Schema
}

func (u *udf) name() string { return "udf(" + u.fn.Label + ")" }

func (u *udf) Execute(state *State) (arrow.Record, error) {
	in, err := u.input.Execute(state)
	if err != nil {
		return nil, err
	}
	defer in.Release()

	out, err := u.fn.Fn(in, state.mem)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", errors.ErrCompute, u.fn.Label, err)
	}
	defer out.Release()
	return selectColumns(out, u.schema)
}
