package executor

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/grafana/lazyframe/pkg/engine/internal/arena"
	"github.com/grafana/lazyframe/pkg/engine/internal/planner/logical"
)

// groupBy evaluates aggregations per group of rows with equal keys.
// Groups are emitted in order of first appearance. Without keys the whole
// input is a single group.
type groupBy struct {
	ev     evaluator
	input  Executor
	keys   []arena.Node
	aggs   []arena.Node
	slice  *logical.SliceOptions
	schema *arrow.Schema
}

func (g *groupBy) name() string { return "group_by" }

func (g *groupBy) Execute(state *State) (arrow.Record, error) {
	in, err := g.input.Execute(state)
	if err != nil {
		return nil, err
	}
	defer in.Release()

	fr := newFrame(in)
	n := int(in.NumRows())

	var groups [][]int
	if len(g.keys) == 0 {
		groups = [][]int{allRows(n)}
	} else {
		keys := make([]series, len(g.keys))
		for i, k := range g.keys {
			if keys[i], err = g.ev.eval(k, fr); err != nil {
				return nil, err
			}
			if keys[i].scalar {
				if keys[i].values, err = keys[i].broadcast(n); err != nil {
					return nil, err
				}
				keys[i].scalar = false
			}
		}
		groups, _ = groupRows(keys, n)
	}
	if g.slice != nil {
		groups = applySlice(groups, g.slice.Offset, g.slice.Len)
	}

	exprs := append(append([]arena.Node{}, g.keys...), g.aggs...)
	results, err := evalColumns(state, g.ev, fr.grouped(groups), exprs)
	if err != nil {
		return nil, err
	}

	cols := make([]arrow.Array, 0, len(results))
	for i, f := range g.schema.Fields() {
		values, err := results[i].broadcast(len(groups))
		if err != nil {
			releaseAll(cols)
			return nil, fmt.Errorf("evaluating %q: %w", f.Name, err)
		}
		arr, err := buildArray(state.mem, f.Type, values)
		if err != nil {
			releaseAll(cols)
			return nil, fmt.Errorf("evaluating %q: %w", f.Name, err)
		}
		cols = append(cols, arr)
	}
	return newRecord(g.schema, cols, len(groups)), nil
}
