package executor

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"

	"github.com/grafana/lazyframe/pkg/engine/internal/planner/logical"
)

// executeAll runs inputs in order, each on its own branch of state.
func executeAll(state *State, inputs []Executor) ([]arrow.Record, error) {
	recs := make([]arrow.Record, 0, len(inputs))
	for i, in := range inputs {
		rec, err := in.Execute(state.Split(i))
		if err != nil {
			releaseRecords(recs)
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func releaseRecords(recs []arrow.Record) {
	for _, rec := range recs {
		if rec != nil {
			rec.Release()
		}
	}
}

// union appends the rows of its inputs.
type union struct {
	inputs []Executor
	slice  *logical.SliceOptions
	schema *arrow.Schema
}

func (u *union) name() string { return "union" }

func (u *union) Execute(state *State) (arrow.Record, error) {
	recs, err := executeAll(state, u.inputs)
	if err != nil {
		return nil, err
	}
	defer releaseRecords(recs)

	out, err := concatRecords(state.mem, u.schema, recs)
	if err != nil {
		return nil, err
	}
	if u.slice == nil {
		return out, nil
	}
	defer out.Release()
	return sliceRecord(out, u.slice.Offset, u.slice.Len), nil
}

// hconcat places the columns of its inputs next to each other. Inputs
// with fewer rows are padded with nulls.
type hconcat struct {
	inputs []Executor
	slice  *logical.SliceOptions
	schema *arrow.Schema
}

func (h *hconcat) name() string { return "hconcat" }

func (h *hconcat) Execute(state *State) (arrow.Record, error) {
	recs, err := executeAll(state, h.inputs)
	if err != nil {
		return nil, err
	}
	defer releaseRecords(recs)

	var height int64
	for _, rec := range recs {
		height = max(height, rec.NumRows())
	}

	cols := make([]arrow.Array, 0, h.schema.NumFields())
	for _, rec := range recs {
		for _, col := range rec.Columns() {
			if int64(col.Len()) == height {
				col.Retain()
				cols = append(cols, col)
				continue
			}
			pad := array.MakeArrayOfNull(state.mem, col.DataType(), int(height)-col.Len())
			padded, err := array.Concatenate([]arrow.Array{col, pad}, state.mem)
			pad.Release()
			if err != nil {
				releaseAll(cols)
				return nil, err
			}
			cols = append(cols, padded)
		}
	}

	out := newRecord(h.schema, cols, int(height))
	if h.slice == nil {
		return out, nil
	}
	defer out.Release()
	return sliceRecord(out, h.slice.Offset, h.slice.Len), nil
}

// cache computes its input once for every cache node with the same id.
type cache struct {
	input Executor
	id    uint64
	count int
}

func (c *cache) name() string { return "cache" }

func (c *cache) Execute(state *State) (arrow.Record, error) {
	entry, _ := state.caches.LoadOrCompute(c.id, func() *sharedResult {
		return &sharedResult{remaining: c.count}
	})
	return entry.get(func() (arrow.Record, error) {
		return c.input.Execute(state)
	})
}
