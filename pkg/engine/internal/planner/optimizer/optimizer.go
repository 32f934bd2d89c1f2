// Package optimizer rewrites logical plans into cheaper, equivalent plans.
package optimizer

import (
	"fmt"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/grafana/lazyframe/pkg/engine/internal/arena"
	"github.com/grafana/lazyframe/pkg/engine/internal/errors"
	"github.com/grafana/lazyframe/pkg/engine/internal/planner/logical"
	"github.com/grafana/lazyframe/pkg/engine/internal/util/dag"
)

// A rule is a transformation applied to every node of a plan by an
// [optimization].
type rule interface {
	name() string
}

// planRule rewrites plan nodes.
type planRule interface {
	rule
	// applyPlan tries to rewrite node in place. It returns a boolean
	// indicating whether the transformation has been applied.
	applyPlan(node arena.Node) (bool, error)
}

// exprRule rewrites expression nodes.
type exprRule interface {
	rule
	// applyExpr tries to rewrite expr in place. It returns a boolean
	// indicating whether the transformation has been applied.
	applyExpr(ctx exprContext, expr arena.Node) (bool, error)
}

// exprContext describes where an expression being rewritten lives.
type exprContext struct {
	// node owns the expression.
	node arena.Node
	// input is the schema the expression is evaluated against.
	input *logical.Schema
	// projection is true for expressions of Select and HStack nodes.
	projection bool
}

// optimization applies a list of rules to every node until none of them
// changes anything, or until maxIterations passes were made.
type optimization struct {
	plan          *logical.Plan
	name          string
	rules         []rule
	maxIterations int
}

func newOptimization(name string, plan *logical.Plan, maxIterations int) *optimization {
	if maxIterations <= 0 {
		maxIterations = 1
	}
	return &optimization{name: name, plan: plan, maxIterations: maxIterations}
}

func (o *optimization) withRules(rules ...rule) *optimization {
	o.rules = append(o.rules, rules...)
	return o
}

func (o *optimization) optimize(root arena.Node) (bool, error) {
	anyChanged := false
	for iterations := 0; iterations < o.maxIterations; iterations++ {
		changed, err := o.applyRules(root)
		if err != nil {
			return anyChanged, err
		}
		if !changed {
			// Stop immediately if an optimization pass produced no changes.
			break
		}
		anyChanged = true
	}
	return anyChanged, nil
}

func (o *optimization) applyRules(root arena.Node) (bool, error) {
	anyChanged := false
	err := o.plan.Walk(root, func(id arena.Node) error {
		if !o.plan.Nodes.Contains(id) {
			return nil
		}
		for _, r := range o.rules {
			pr, ok := r.(planRule)
			if !ok {
				continue
			}
			changed, err := pr.applyPlan(id)
			if err != nil {
				return fmt.Errorf("%s: %w", r.name(), err)
			}
			anyChanged = anyChanged || changed
		}
		changed, err := o.applyExprRules(id)
		anyChanged = anyChanged || changed
		return err
	}, dag.PostOrderWalk)
	return anyChanged, err
}

func (o *optimization) applyExprRules(id arena.Node) (bool, error) {
	var rules []exprRule
	for _, r := range o.rules {
		if er, ok := r.(exprRule); ok {
			rules = append(rules, er)
		}
	}
	if len(rules) == 0 {
		return false, nil
	}

	inputs, err := o.plan.ExprInputs(id)
	if err != nil {
		return false, err
	}
	node := o.plan.Node(id)
	_, isSelect := node.(*logical.Select)
	_, isHStack := node.(*logical.HStack)
	_, isAgg := node.(*logical.Aggregate)
	namesMatter := isSelect || isHStack || isAgg

	anyChanged := false
	for _, in := range inputs {
		ctx := exprContext{node: id, input: in.Schema, projection: isSelect || isHStack}
		name := o.plan.OutputName(in.Expr)

		err := dag.Walk(in.Expr, o.exprChildren, func(e arena.Node) error {
			// Rewriting an expression can enable another rule on the same
			// expression; bound the local loop so rules cannot ping-pong.
			for range 8 {
				changed := false
				for _, r := range rules {
					c, err := r.applyExpr(ctx, e)
					if err != nil {
						return fmt.Errorf("%s: %w", r.name(), err)
					}
					changed = changed || c
				}
				if !changed {
					return nil
				}
				anyChanged = true
			}
			return nil
		}, dag.PostOrderWalk)
		if err != nil {
			return anyChanged, err
		}

		if namesMatter && o.plan.OutputName(in.Expr) != name {
			restoreName(o.plan, in.Expr, name)
		}
	}
	return anyChanged, nil
}

func (o *optimization) exprChildren(e arena.Node) []arena.Node {
	return logical.Inputs(o.plan.Expr(e))
}

// restoreName aliases the expression stored at id so that it keeps the
// output name it had before being rewritten.
func restoreName(p *logical.Plan, id arena.Node, name string) {
	inner := p.AddExpr(p.Exprs.Take(id))
	p.Exprs.Replace(id, &logical.AliasExpr{Input: inner, Name: name})
}

// replaceExpr stores the content of src at dst. src is left orphaned.
func replaceExpr(p *logical.Plan, dst, src arena.Node) {
	p.Exprs.Replace(dst, p.Expr(src))
}

// eliminate replaces the content of node id by the content of its input,
// removing id from the plan while keeping references to it valid.
func eliminate(p *logical.Plan, id, input arena.Node) {
	if c, ok := p.Node(input).(*logical.Cache); ok {
		// Caches are shared between consumers; copy rather than move.
		cp := *c
		p.Nodes.Replace(id, &cp)
		return
	}
	p.Nodes.Replace(id, p.Nodes.Take(input))
}

// optimizer runs the full pipeline of optimizations over a plan.
type optimizer struct {
	plan   *logical.Plan
	cfg    Config
	logger log.Logger
}

// Optimize rewrites the plan rooted at plan.Root according to cfg. It
// returns the new root, which is also stored in plan.Root.
//
// Passes rewrite nodes in place. On error plan.Root is not updated, but the
// nodes below it may already be rewritten and the plan must not be used
// again.
func Optimize(plan *logical.Plan, cfg Config, logger log.Logger) (arena.Node, error) {
	if logger == nil {
		logger = log.NewNopLogger()
	}

	var before *logical.Schema
	if cfg.VerifySchema {
		var err error
		if before, err = plan.Schema(plan.Root); err != nil {
			return plan.Root, err
		}
	}

	o := &optimizer{plan: plan, cfg: cfg, logger: logger}
	root, err := o.optimize(plan.Root)
	if err != nil {
		return plan.Root, err
	}

	if cfg.VerifySchema {
		after, err := plan.Schema(root)
		if err != nil {
			return plan.Root, fmt.Errorf("%w: optimized plan is invalid: %w", errors.ErrInvariant, err)
		}
		if !before.Equal(after) {
			return plan.Root, fmt.Errorf("%w: %w: optimization changed schema %s to %s", errors.ErrInvariant, errors.ErrSchemaMismatch, before, after)
		}
	}

	plan.Root = root
	return root, nil
}

func (o *optimizer) optimize(root arena.Node) (arena.Node, error) {
	var (
		cfg    = o.cfg
		plan   = o.plan
		err    error
		reused bool
	)

	root = unshare(plan, root)

	if cfg.CommSubplanElim && !cfg.Eager {
		err = o.pass("common subplan elimination", func() (bool, error) {
			reused = newSubplanElimination(plan).optimize(root)
			return reused, nil
		})
		if err != nil {
			return root, err
		}
	}

	if cfg.ProjectionPushdown {
		if err := o.structural("projection pushdown", &root, newProjectionPushdown(plan).optimize); err != nil {
			return root, err
		}
	}
	if cfg.PredicatePushdown {
		if err := o.structural("predicate pushdown", &root, newPredicatePushdown(plan).optimize); err != nil {
			return root, err
		}
	}
	if cfg.SlicePushdown {
		if err := o.structural("slice pushdown", &root, newSlicePushdown(plan, cfg.Streaming).optimize); err != nil {
			return root, err
		}
	}

	if rules := o.fixpointRules(); len(rules) > 0 {
		opt := newOptimization("expression rules", plan, cfg.MaxIterations).withRules(rules...)
		if err := o.pass(opt.name, func() (bool, error) { return opt.optimize(root) }); err != nil {
			return root, err
		}
	}

	err = o.pass("cache states", func() (bool, error) {
		return newCacheStates(plan).optimize(root)
	})
	if err != nil {
		return root, err
	}

	fileCaching := cfg.FileCaching && !cfg.Eager
	if reused || fileCaching {
		opt := newOptimization("simplify boolean", plan, cfg.MaxIterations).withRules(&simplifyBoolean{plan: plan})
		if err := o.pass(opt.name, func() (bool, error) { return opt.optimize(root) }); err != nil {
			return root, err
		}
	}
	if fileCaching {
		err = o.pass("file caching", func() (bool, error) {
			return newFileCaching(plan).optimize(root)
		})
		if err != nil {
			return root, err
		}
	}

	if cfg.CommSubexprElim && !cfg.Eager {
		err = o.pass("common subexpression elimination", func() (bool, error) {
			return newSubexprElimination(plan).optimize(root)
		})
		if err != nil {
			return root, err
		}
	}
	return root, nil
}

// fixpointRules returns the expression-level rules enabled by the config,
// in application order.
func (o *optimizer) fixpointRules() []rule {
	var (
		cfg   = o.cfg
		plan  = o.plan
		rules []rule
	)
	if cfg.SimplifyExpr {
		rules = append(rules, &simplifyExpr{plan: plan}, &fusedArithmetic{plan: plan})
	}
	if cfg.TypeCoercion {
		rules = append(rules, &typeCoercion{plan: plan})
	}
	if cfg.SimplifyExpr {
		rules = append(rules, &simplifyBoolean{plan: plan})
	}
	rules = append(rules, &replaceDropNulls{plan: plan}, &flattenUnion{plan: plan})
	if cfg.FastProjection {
		rules = append(rules, &fastProjection{plan: plan})
	}
	if cfg.SlicePushdown {
		rules = append(rules, &sliceExprPushdown{plan: plan})
	}
	return rules
}

func (o *optimizer) structural(name string, root *arena.Node, fn func(arena.Node) (arena.Node, error)) error {
	return o.pass(name, func() (bool, error) {
		newRoot, err := fn(*root)
		if err != nil {
			return false, err
		}
		*root = newRoot
		return true, nil
	})
}

func (o *optimizer) pass(name string, fn func() (bool, error)) error {
	start := time.Now()
	changed, err := fn()
	if err != nil {
		level.Debug(o.logger).Log("msg", "optimization failed", "optimization", name, "err", err)
		return fmt.Errorf("%s: %w", name, err)
	}
	level.Debug(o.logger).Log("msg", "optimization finished", "optimization", name, "changed", changed, "duration", time.Since(start))
	return nil
}
