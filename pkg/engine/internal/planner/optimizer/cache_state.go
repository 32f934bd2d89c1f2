package optimizer

import (
	"github.com/grafana/lazyframe/pkg/engine/internal/arena"
	"github.com/grafana/lazyframe/pkg/engine/internal/planner/logical"
	"github.com/grafana/lazyframe/pkg/engine/internal/util/dag"
)

// cacheStates counts the consumers of every cache. Caches left with a
// single consumer are removed.
type cacheStates struct {
	plan *logical.Plan
}

func newCacheStates(plan *logical.Plan) *cacheStates {
	return &cacheStates{plan: plan}
}

func (c *cacheStates) optimize(root arena.Node) (bool, error) {
	p := c.plan
	var (
		caches []arena.Node
		counts = map[uint64]int{}
	)
	err := p.Walk(root, func(id arena.Node) error {
		if cache, ok := p.Node(id).(*logical.Cache); ok {
			caches = append(caches, id)
			counts[cache.ID]++
		}
		return nil
	}, dag.PreOrderWalk)
	if err != nil {
		return false, err
	}

	changed := false
	for _, id := range caches {
		cache := p.Node(id).(*logical.Cache)
		count := counts[cache.ID]
		if count == 1 {
			eliminate(p, id, cache.Input)
			changed = true
			continue
		}
		if cache.Count != count {
			cache.Count = count
			changed = true
		}
	}
	return changed, nil
}
