package executor

import (
	"sort"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/grafana/lazyframe/pkg/engine/internal/arena"
	"github.com/grafana/lazyframe/pkg/engine/internal/planner/logical"
)

// SortedKey is the field metadata key set on the leading sort column of a
// sorted record. Its value is "ascending" or "descending".
const SortedKey = "lazyframe.sorted"

// sortKey is an evaluated sort key. Keys that are not bare columns are
// evaluated under an internal name and never flagged as sorted.
type sortKey struct {
	expr       arena.Node
	column     string
	descending bool
}

type sortExec struct {
	ev        evaluator
	input     Executor
	keys      []sortKey
	nullsLast bool
	slice     *logical.SliceOptions
	schema    *arrow.Schema
	label     string
}

func (b *builder) lowerSort(n *logical.Sort, input Executor, out *arrow.Schema) *sortExec {
	keys := make([]sortKey, len(n.By))
	for i, by := range n.By {
		keys[i] = sortKey{expr: by, descending: i < len(n.Descending) && n.Descending[i]}
		if name, ok := b.plan.IsColumn(by); ok {
			keys[i].column = name
		}
	}
	return &sortExec{
		ev:        b.ev,
		input:     input,
		keys:      keys,
		nullsLast: n.NullsLast,
		slice:     n.Slice,
		schema:    out,
		label:     "sort(" + b.exprNames(n.By) + ")",
	}
}

func (s *sortExec) name() string { return s.label }

func (s *sortExec) Execute(state *State) (arrow.Record, error) {
	in, err := s.input.Execute(state)
	if err != nil {
		return nil, err
	}
	defer in.Release()

	fr := newFrame(in)
	keys := make([]series, len(s.keys))
	for i, k := range s.keys {
		if keys[i], err = s.ev.eval(k.expr, fr); err != nil {
			return nil, err
		}
	}

	rows := allRows(int(in.NumRows()))
	less := func(i, j int) bool {
		a, b := rows[i], rows[j]
		for k, key := range keys {
			if c := compareValues(key.at(a), key.at(b), s.keys[k].descending, s.nullsLast); c != 0 {
				return c < 0
			}
		}
		return false
	}
	// Stable, so rows with equal keys keep their input order.
	sort.SliceStable(rows, less)

	if s.slice != nil {
		rows = applySlice(rows, s.slice.Offset, s.slice.Len)
	}
	return takeRows(state.mem, s.sortedSchema(), in, rows)
}

// sortedSchema flags the leading key column as sorted if it is a bare
// column.
func (s *sortExec) sortedSchema() *arrow.Schema {
	if len(s.keys) == 0 || s.keys[0].column == "" {
		return s.schema
	}
	order := "ascending"
	if s.keys[0].descending {
		order = "descending"
	}
	fields := append([]arrow.Field(nil), s.schema.Fields()...)
	for i, f := range fields {
		if f.Name == s.keys[0].column {
			fields[i].Metadata = arrow.NewMetadata([]string{SortedKey}, []string{order})
		}
	}
	return arrow.NewSchema(fields, nil)
}
