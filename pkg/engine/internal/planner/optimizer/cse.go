package optimizer

import (
	"fmt"

	"github.com/grafana/lazyframe/pkg/engine/internal/arena"
	"github.com/grafana/lazyframe/pkg/engine/internal/planner/logical"
	"github.com/grafana/lazyframe/pkg/engine/internal/util/dag"
)

// cseColumnPrefix prefixes the names of columns holding shared
// subexpressions.
const cseColumnPrefix = "__cse_"

// subexprElimination computes subexpressions repeated within a projection
// once, in a column added below the projection.
type subexprElimination struct {
	plan *logical.Plan
}

func newSubexprElimination(plan *logical.Plan) *subexprElimination {
	return &subexprElimination{plan: plan}
}

func (s *subexprElimination) optimize(root arena.Node) (bool, error) {
	p := s.plan
	var targets []arena.Node
	err := p.Walk(root, func(id arena.Node) error {
		switch p.Node(id).(type) {
		case *logical.Select, *logical.HStack:
			targets = append(targets, id)
		}
		return nil
	}, dag.PostOrderWalk)
	if err != nil {
		return false, err
	}

	changed := false
	for _, id := range targets {
		c, err := s.rewrite(id)
		if err != nil {
			return changed, err
		}
		changed = changed || c
	}
	return changed, nil
}

type subexpr struct {
	hash uint64
	repr arena.Node
	ids  []arena.Node
}

func (s *subexprElimination) rewrite(id arena.Node) (bool, error) {
	p := s.plan

	var (
		input arena.Node
		exprs []arena.Node
		stack bool
	)
	switch n := p.Node(id).(type) {
	case *logical.Select:
		input, exprs = n.Input, n.Exprs
	case *logical.HStack:
		input, exprs, stack = n.Input, n.Exprs, true
	}

	inputSchema, err := p.Schema(input)
	if err != nil {
		return false, err
	}
	outputSchema, err := p.Schema(id)
	if err != nil {
		return false, err
	}

	names := make([]string, len(exprs))
	for i, e := range exprs {
		names[i] = p.OutputName(e)
	}

	// Count every candidate subexpression.
	counts := map[uint64]int{}
	for _, e := range exprs {
		p.WalkExpr(e, func(sub arena.Node, _ logical.AExpr) bool {
			if s.candidate(sub) {
				counts[p.ExprHash(sub)]++
			}
			return true
		})
	}

	// Replace the outermost repeated subexpressions.
	var (
		found []*subexpr
		byKey = map[uint64]*subexpr{}
	)
	for _, e := range exprs {
		p.WalkExpr(e, func(sub arena.Node, _ logical.AExpr) bool {
			if !s.candidate(sub) {
				return true
			}
			h := p.ExprHash(sub)
			if counts[h] < 2 {
				return true
			}
			se, ok := byKey[h]
			if !ok {
				se = &subexpr{hash: h, repr: p.CopyExpr(sub)}
				byKey[h] = se
				found = append(found, se)
			} else if !p.ExprEqual(se.repr, sub) {
				return true
			}
			se.ids = append(se.ids, sub)
			return false
		})
	}

	var shared []arena.Node
	for _, se := range found {
		if len(se.ids) < 2 {
			continue
		}
		name := fmt.Sprintf("%s%x", cseColumnPrefix, se.hash)
		if inputSchema.Contains(name) {
			continue
		}
		shared = append(shared, p.AddExpr(&logical.AliasExpr{Input: se.repr, Name: name}))
		for _, occurrence := range se.ids {
			p.Exprs.Replace(occurrence, &logical.ColumnExpr{Name: name})
		}
	}
	if len(shared) == 0 {
		return false, nil
	}

	// Root expressions that were replaced by a shared column get their name
	// back.
	for i, e := range exprs {
		if p.OutputName(e) != names[i] {
			restoreName(p, e, names[i])
		}
	}

	cse := p.AddNode(&logical.HStack{Input: input, Exprs: shared})
	if !stack {
		p.Nodes.Replace(id, &logical.Select{Input: cse, Exprs: exprs})
		return true, nil
	}
	rewritten := p.AddNode(&logical.HStack{Input: cse, Exprs: exprs})
	p.Nodes.Replace(id, &logical.SimpleProjection{Input: rewritten, Columns: outputSchema.Names()})
	return true, nil
}

// candidate returns true for subexpressions worth sharing: computations
// over columns that map rows one to one.
func (s *subexprElimination) candidate(e arena.Node) bool {
	p := s.plan
	switch p.Expr(e).(type) {
	case *logical.ColumnExpr, *logical.LiteralExpr, *logical.AliasExpr:
		return false
	}
	return p.IsElementwise(e) && p.HasColumn(e)
}
