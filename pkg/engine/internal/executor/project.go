package executor

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"golang.org/x/sync/errgroup"

	"github.com/grafana/lazyframe/pkg/engine/internal/arena"
	"github.com/grafana/lazyframe/pkg/engine/internal/errors"
	"github.com/grafana/lazyframe/pkg/engine/internal/types"
)

// projection evaluates expressions against its input. With stack set the
// results are added to the input columns, replacing columns of the same
// name; otherwise they are the only output columns.
type projection struct {
	ev     evaluator
	input  Executor
	exprs  []arena.Node
	schema *arrow.Schema
	stack  bool
}

func (p *projection) name() string {
	if p.stack {
		return "with_columns"
	}
	return "select"
}

func (p *projection) Execute(state *State) (arrow.Record, error) {
	in, err := p.input.Execute(state)
	if err != nil {
		return nil, err
	}
	defer in.Release()

	results, err := evalColumns(state, p.ev, newFrame(in), p.exprs)
	if err != nil {
		return nil, err
	}

	height := int(in.NumRows())
	if !p.stack && len(results) > 0 {
		// A selection of literals and aggregations produces a single row.
		if height, _, err = broadcastLen(results...); err != nil {
			return nil, err
		}
	}

	byName := make(map[string]int, len(p.exprs))
	for i, e := range p.exprs {
		byName[p.ev.plan.OutputName(e)] = i
	}

	cols := make([]arrow.Array, 0, p.schema.NumFields())
	for _, f := range p.schema.Fields() {
		var arr arrow.Array
		if i, ok := byName[f.Name]; ok {
			values, err := results[i].broadcast(height)
			if err == nil {
				arr, err = buildArray(state.mem, f.Type, values)
			}
			if err != nil {
				releaseAll(cols)
				return nil, fmt.Errorf("evaluating %q: %w", f.Name, err)
			}
		} else {
			idx, err := columnIndex(in, f.Name)
			if err != nil {
				releaseAll(cols)
				return nil, err
			}
			arr = in.Column(idx)
			arr.Retain()
		}
		cols = append(cols, arr)
	}
	return newRecord(p.schema, cols, height), nil
}

// evalColumns evaluates exprs concurrently, bounded by the concurrency of
// the state.
func evalColumns(state *State, ev evaluator, fr *frame, exprs []arena.Node) ([]series, error) {
	results := make([]series, len(exprs))
	g, ctx := errgroup.WithContext(state.ctx)
	if state.concurrency > 0 {
		g.SetLimit(state.concurrency)
	}
	for i, e := range exprs {
		g.Go(func() error {
			if ctx.Err() != nil || state.stop.Load() {
				return errors.ErrCancelled
			}
			s, err := ev.eval(e, fr)
			if err != nil {
				return err
			}
			results[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func releaseAll(arrs []arrow.Array) {
	for _, a := range arrs {
		a.Release()
	}
}

// simpleProjection selects columns by name.
type simpleProjection struct {
	input   Executor
	columns []string
	schema  *arrow.Schema
}

func (p *simpleProjection) name() string { return "simple_projection" }

func (p *simpleProjection) Execute(state *State) (arrow.Record, error) {
	in, err := p.input.Execute(state)
	if err != nil {
		return nil, err
	}
	defer in.Release()
	return selectColumns(in, p.schema)
}

// slice emits a range of the rows of its input.
type slice struct {
	input  Executor
	offset int64
	length uint64
}

func (s *slice) name() string { return fmt.Sprintf("slice(%d, %d)", s.offset, s.length) }

func (s *slice) Execute(state *State) (arrow.Record, error) {
	in, err := s.input.Execute(state)
	if err != nil {
		return nil, err
	}
	defer in.Release()
	return sliceRecord(in, s.offset, s.length), nil
}

// applySlice returns the range of rows selected by offset and length.
func applySlice[T any](rows []T, offset int64, length uint64) []T {
	start, end := types.SliceBounds(offset, length, len(rows))
	return rows[start:end]
}
