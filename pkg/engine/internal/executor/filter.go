package executor

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/grafana/lazyframe/pkg/engine/internal/arena"
	"github.com/grafana/lazyframe/pkg/engine/internal/errors"
)

// filter keeps the rows of its input for which the predicate is true.
type filter struct {
	ev        evaluator
	input     Executor
	predicate arena.Node
}

func (f *filter) name() string { return "filter" }

func (f *filter) Execute(state *State) (arrow.Record, error) {
	in, err := f.input.Execute(state)
	if err != nil {
		return nil, err
	}
	defer in.Release()
	return filterRecord(state.mem, f.ev, in, []arena.Node{f.predicate})
}

// filterRecord returns the rows of rec for which every predicate is true.
// Null counts as false.
func filterRecord(mem memory.Allocator, ev evaluator, rec arrow.Record, predicates []arena.Node) (arrow.Record, error) {
	if len(predicates) == 0 {
		rec.Retain()
		return rec, nil
	}

	n := int(rec.NumRows())
	keep := make([]bool, n)
	for i := range keep {
		keep[i] = true
	}
	fr := newFrame(rec)
	for _, p := range predicates {
		mask, err := ev.eval(p, fr)
		if err != nil {
			return nil, err
		}
		if !mask.scalar && mask.Len() != n {
			return nil, fmt.Errorf("%w: predicate of length %d for %d rows", errors.ErrCompute, mask.Len(), n)
		}
		for i := range keep {
			switch v := mask.at(i).(type) {
			case nil:
				keep[i] = false
			case bool:
				keep[i] = keep[i] && v
			default:
				return nil, fmt.Errorf("%w: predicate evaluated to %T", errors.ErrType, v)
			}
		}
	}

	idx := make([]int, 0, n)
	for i, k := range keep {
		if k {
			idx = append(idx, i)
		}
	}
	if len(idx) == n {
		rec.Retain()
		return rec, nil
	}
	return takeRows(mem, rec.Schema(), rec, idx)
}
