package executor

import (
	"fmt"
	"sort"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/grafana/lazyframe/pkg/engine/internal/arena"
	"github.com/grafana/lazyframe/pkg/engine/internal/errors"
	"github.com/grafana/lazyframe/pkg/engine/internal/planner/logical"
	"github.com/grafana/lazyframe/pkg/engine/internal/types"
)

// join is a hash join of two inputs. Null keys never match.
type join struct {
	ev          evaluator
	left, right Executor
	node        *logical.Join
	// rightCols are the right columns in the output, in right order.
	rightCols []string
	schema    *arrow.Schema
}

func (b *builder) lowerJoin(n *logical.Join, out *arrow.Schema) (*join, error) {
	if n.Type == types.JoinTypeAsOf && len(n.LeftOn) != 1 {
		return nil, fmt.Errorf("%w: asof join on %d keys", errors.ErrNotImplemented, len(n.LeftOn))
	}
	if len(n.LeftOn) != len(n.RightOn) {
		return nil, fmt.Errorf("%w: join with %d left keys and %d right keys", errors.ErrInvariant, len(n.LeftOn), len(n.RightOn))
	}
	left, err := b.build(n.Left)
	if err != nil {
		return nil, err
	}
	right, err := b.build(n.Right)
	if err != nil {
		return nil, err
	}

	var rightCols []string
	if n.Type.OutputsRight() {
		rs, err := b.plan.Schema(n.Right)
		if err != nil {
			return nil, err
		}
		dropped := b.plan.DroppedRightKeys(n)
		for _, name := range rs.Names() {
			if !dropped[name] {
				rightCols = append(rightCols, name)
			}
		}
	}
	return &join{ev: b.ev, left: left, right: right, node: n, rightCols: rightCols, schema: out}, nil
}

func (j *join) name() string { return j.node.Type.String() + "_join" }

func (j *join) Execute(state *State) (arrow.Record, error) {
	recs, err := executeAll(state, []Executor{j.left, j.right})
	if err != nil {
		return nil, err
	}
	defer releaseRecords(recs)
	left, right := recs[0], recs[1]

	lkeys, err := j.evalKeys(j.node.LeftOn, left)
	if err != nil {
		return nil, err
	}
	rkeys, err := j.evalKeys(j.node.RightOn, right)
	if err != nil {
		return nil, err
	}

	nl, nr := int(left.NumRows()), int(right.NumRows())
	var li, ri []int
	switch j.node.Type {
	case types.JoinTypeCross:
		for l := 0; l < nl; l++ {
			for r := 0; r < nr; r++ {
				li, ri = append(li, l), append(ri, r)
			}
		}
	case types.JoinTypeAsOf:
		li, ri = asofBackward(lkeys[0], rkeys[0], nl, nr)
	default:
		li, ri = hashJoin(j.node.Type, lkeys, rkeys, nl, nr)
	}
	if sl := j.node.Slice; sl != nil {
		li = applySlice(li, sl.Offset, sl.Len)
		if ri != nil {
			ri = applySlice(ri, sl.Offset, sl.Len)
		}
	}

	cols := make([]arrow.Array, 0, j.schema.NumFields())
	fields := j.schema.Fields()
	for i, col := range left.Columns() {
		arr, err := takeArray(state.mem, fields[i].Type, col, li)
		if err != nil {
			releaseAll(cols)
			return nil, err
		}
		cols = append(cols, arr)
	}
	for k, name := range j.rightCols {
		idx, err := columnIndex(right, name)
		if err != nil {
			releaseAll(cols)
			return nil, err
		}
		arr, err := takeArray(state.mem, fields[int(left.NumCols())+k].Type, right.Column(idx), ri)
		if err != nil {
			releaseAll(cols)
			return nil, err
		}
		cols = append(cols, arr)
	}
	return newRecord(j.schema, cols, len(li)), nil
}

func (j *join) evalKeys(exprs []arena.Node, rec arrow.Record) ([]series, error) {
	fr := newFrame(rec)
	n := int(rec.NumRows())
	keys := make([]series, len(exprs))
	for i, e := range exprs {
		s, err := j.ev.eval(e, fr)
		if err != nil {
			return nil, err
		}
		if s.scalar {
			if s.values, err = s.broadcast(n); err != nil {
				return nil, err
			}
			s.scalar = false
		}
		keys[i] = s
	}
	return keys, nil
}

// hashJoin matches the rows of both sides on equal keys. It returns pairs
// of left and right row indices; -1 stands for a missing row. Semi and
// anti joins return no right indices.
func hashJoin(typ types.JoinType, lkeys, rkeys []series, nl, nr int) (li, ri []int) {
	table := newGroupTable(nr)
	var buf []byte
	for r := 0; r < nr; r++ {
		if hasNull(rkeys, r) {
			continue
		}
		buf = rowKey(buf, rkeys, r)
		table.add(buf, r)
	}

	matchedRight := make([]bool, nr)
	for l := 0; l < nl; l++ {
		var matches []int
		if !hasNull(lkeys, l) {
			buf = rowKey(buf, lkeys, l)
			if id, ok := table.find(buf); ok {
				matches = table.rows[id]
			}
		}

		switch typ {
		case types.JoinTypeSemi:
			if len(matches) > 0 {
				li = append(li, l)
			}
			continue
		case types.JoinTypeAnti:
			if len(matches) == 0 {
				li = append(li, l)
			}
			continue
		}

		for _, r := range matches {
			li, ri = append(li, l), append(ri, r)
			matchedRight[r] = true
		}
		if len(matches) == 0 && typ != types.JoinTypeInner {
			li, ri = append(li, l), append(ri, -1)
		}
	}

	if typ == types.JoinTypeFull {
		for r, matched := range matchedRight {
			if !matched {
				li, ri = append(li, -1), append(ri, r)
			}
		}
	}
	return li, ri
}

// asofBackward matches every left row with the last right row whose key
// is less than or equal to the left key.
func asofBackward(lkey, rkey series, nl, nr int) (li, ri []int) {
	sorted := make([]int, 0, nr)
	for r := 0; r < nr; r++ {
		if rkey.at(r) != nil {
			sorted = append(sorted, r)
		}
	}
	sort.SliceStable(sorted, func(a, b int) bool {
		return compareValues(rkey.at(sorted[a]), rkey.at(sorted[b]), false, true) < 0
	})

	li, ri = make([]int, nl), make([]int, nl)
	for l := 0; l < nl; l++ {
		li[l], ri[l] = l, -1
		v := lkey.at(l)
		if v == nil {
			continue
		}
		k := sort.Search(len(sorted), func(i int) bool {
			return compareValues(rkey.at(sorted[i]), v, false, true) > 0
		})
		if k > 0 {
			ri[l] = sorted[k-1]
		}
	}
	return li, ri
}
