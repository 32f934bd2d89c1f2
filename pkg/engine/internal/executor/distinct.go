package executor

import (
	"sort"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/grafana/lazyframe/pkg/engine/internal/planner/logical"
)

// distinct removes duplicate rows. The kept rows are emitted in input
// order.
type distinct struct {
	input  Executor
	node   *logical.Distinct
	schema *arrow.Schema
}

func (d *distinct) name() string { return "distinct" }

func (d *distinct) Execute(state *State) (arrow.Record, error) {
	in, err := d.input.Execute(state)
	if err != nil {
		return nil, err
	}
	defer in.Release()

	subset := d.node.Subset
	if subset == nil {
		subset = make([]string, 0, d.schema.NumFields())
		for _, f := range d.schema.Fields() {
			subset = append(subset, f.Name)
		}
	}
	fr := newFrame(in)
	keys := make([]series, len(subset))
	for i, name := range subset {
		if keys[i], err = fr.column(name); err != nil {
			return nil, err
		}
	}
	groups, _ := groupRows(keys, int(in.NumRows()))

	rows := make([]int, 0, len(groups))
	for _, g := range groups {
		switch d.node.Keep {
		case logical.DistinctKeepLast:
			rows = append(rows, g[len(g)-1])
		case logical.DistinctKeepNone:
			if len(g) == 1 {
				rows = append(rows, g[0])
			}
		default:
			rows = append(rows, g[0])
		}
	}
	sort.Ints(rows)

	if sl := d.node.Slice; sl != nil {
		rows = applySlice(rows, sl.Offset, sl.Len)
	}
	return takeRows(state.mem, d.schema, in, rows)
}
