package optimizer

import (
	"github.com/grafana/lazyframe/pkg/engine/internal/arena"
	"github.com/grafana/lazyframe/pkg/engine/internal/planner/logical"
)

// unshare turns the plan rooted at root into a tree: every node other
// than the input of a Cache is referenced by exactly one parent. Nodes
// reached more than once are deep copied. Cache nodes reached more than
// once are copied but keep sharing their input.
func unshare(p *logical.Plan, root arena.Node) arena.Node {
	seen := map[arena.Node]bool{}

	var visit func(id arena.Node) arena.Node
	visit = func(id arena.Node) arena.Node {
		if seen[id] {
			return p.DeepCopy(id)
		}
		seen[id] = true

		n := p.Node(id)
		if c, ok := n.(*logical.Cache); ok {
			if !seen[c.Input] {
				c.Input = visit(c.Input)
			}
			return id
		}

		children := logical.Children(n)
		copied := make([]arena.Node, len(children))
		changed := false
		for i, child := range children {
			copied[i] = visit(child)
			changed = changed || copied[i] != child
		}
		if changed {
			p.Nodes.Replace(id, logical.WithChildren(n, copied))
		}
		return id
	}
	return visit(root)
}
