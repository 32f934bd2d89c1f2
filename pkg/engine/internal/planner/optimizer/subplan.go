package optimizer

import (
	"slices"

	"github.com/grafana/lazyframe/pkg/engine/internal/arena"
	"github.com/grafana/lazyframe/pkg/engine/internal/planner/logical"
	"github.com/grafana/lazyframe/pkg/engine/internal/util/dag"
)

// subplanElimination replaces repeated subplans by Cache nodes sharing a
// single copy of the subplan.
type subplanElimination struct {
	plan *logical.Plan
}

func newSubplanElimination(plan *logical.Plan) *subplanElimination {
	return &subplanElimination{plan: plan}
}

// optimize returns true if any subplan was replaced.
func (s *subplanElimination) optimize(root arena.Node) bool {
	p := s.plan

	var (
		order  []uint64
		groups = map[uint64][]arena.Node{}
		hashOf = map[arena.Node]uint64{}
		cached = map[arena.Node]bool{}
	)
	_ = p.Walk(root, func(id arena.Node) error {
		n := p.Node(id)
		for _, child := range logical.Children(n) {
			cached[id] = cached[id] || cached[child]
		}
		switch n.(type) {
		case *logical.Cache:
			cached[id] = true
			return nil
		case *logical.Scan, *logical.DataFrameScan:
			// Scans are deduplicated by file caching instead.
			return nil
		}
		if cached[id] {
			// Subplans reading a cache were shared by an earlier run.
			return nil
		}
		h := p.NodeHash(id)
		if _, ok := groups[h]; !ok {
			order = append(order, h)
		}
		groups[h] = append(groups[h], id)
		hashOf[id] = h
		return nil
	}, dag.PostOrderWalk)

	shared := map[uint64][]arena.Node{}
	for _, h := range order {
		ids := groups[h]
		if len(ids) < 2 {
			continue
		}
		equal := slices.DeleteFunc(slices.Clone(ids), func(id arena.Node) bool {
			return !p.NodeEqual(ids[0], id)
		})
		if len(equal) >= 2 {
			shared[h] = equal
		}
	}
	if len(shared) == 0 {
		return false
	}

	changed := false
	_ = p.Walk(root, func(id arena.Node) error {
		h, ok := hashOf[id]
		if !ok {
			return nil
		}
		ids, ok := shared[h]
		if !ok || !slices.Contains(ids, id) {
			return nil
		}
		delete(shared, h)

		input := p.AddNode(p.Nodes.Take(ids[0]))
		for _, dup := range ids {
			p.Nodes.Replace(dup, &logical.Cache{Input: input, ID: h})
		}
		changed = true
		return dag.ErrSkipChildren
	}, dag.PreOrderWalk)
	return changed
}
