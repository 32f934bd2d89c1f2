// Package logical holds logical query plans: arenas of relational plan nodes
// and column expressions, their schemas and a builder to construct them.
package logical

import (
	"fmt"

	"github.com/grafana/lazyframe/pkg/engine/internal/arena"
	"github.com/grafana/lazyframe/pkg/engine/internal/errors"
	"github.com/grafana/lazyframe/pkg/engine/internal/types"
)

// DefaultJoinSuffix is appended to colliding right column names of a join
// without an explicit suffix.
const DefaultJoinSuffix = "_right"

// Plan is a logical plan: a plan arena and an expression arena, and the id
// of the root node.
type Plan struct {
	Nodes *arena.Arena[IR]
	Exprs *arena.Arena[AExpr]
	Root  arena.Node
}

// NewPlan returns an empty plan.
func NewPlan() *Plan {
	return &Plan{
		Nodes: arena.New[IR](),
		Exprs: arena.New[AExpr](),
	}
}

func (p *Plan) AddNode(n IR) arena.Node { return p.Nodes.Add(n) }
func (p *Plan) AddExpr(e AExpr) arena.Node { return p.Exprs.Add(e) }
func (p *Plan) Node(id arena.Node) IR { return p.Nodes.Get(id) }
func (p *Plan) Expr(id arena.Node) AExpr { return p.Exprs.Get(id) }
func (p *Plan) Children(id arena.Node) []arena.Node { return Children(p.Nodes.Get(id)) }

// Schema returns the output schema of node id.
func (p *Plan) Schema(id arena.Node) (*Schema, error) {
	switch n := p.Node(id).(type) {
	case *Scan:
		if n.Projection == nil {
			return n.FileSchema, nil
		}
		return n.FileSchema.Select(n.Projection)
	case *DataFrameScan:
		if n.Projection == nil {
			return n.Schema, nil
		}
		return n.Schema.Select(n.Projection)
	case *Filter:
		return p.Schema(n.Input)
	case *Select:
		input, err := p.Schema(n.Input)
		if err != nil {
			return nil, err
		}
		out := NewSchema()
		for _, e := range n.Exprs {
			f, err := p.ExprField(e, input)
			if err != nil {
				return nil, err
			}
			if out.Contains(f.Name) {
				return nil, fmt.Errorf("%w: duplicate output column %q", errors.ErrSchemaMismatch, f.Name)
			}
			out.Upsert(f)
		}
		return out, nil
	case *HStack:
		input, err := p.Schema(n.Input)
		if err != nil {
			return nil, err
		}
		out := NewSchema(input.Fields()...)
		for _, e := range n.Exprs {
			f, err := p.ExprField(e, input)
			if err != nil {
				return nil, err
			}
			out.Upsert(f)
		}
		return out, nil
	case *SimpleProjection:
		input, err := p.Schema(n.Input)
		if err != nil {
			return nil, err
		}
		return input.Select(n.Columns)
	case *Aggregate:
		input, err := p.Schema(n.Input)
		if err != nil {
			return nil, err
		}
		out := NewSchema()
		for _, e := range append(append([]arena.Node{}, n.Keys...), n.Aggs...) {
			f, err := p.ExprField(e, input)
			if err != nil {
				return nil, err
			}
			if out.Contains(f.Name) {
				return nil, fmt.Errorf("%w: duplicate output column %q", errors.ErrSchemaMismatch, f.Name)
			}
			out.Upsert(f)
		}
		return out, nil
	case *Join:
		return p.joinSchema(n)
	case *Sort:
		return p.Schema(n.Input)
	case *Slice:
		return p.Schema(n.Input)
	case *Distinct:
		return p.Schema(n.Input)
	case *Cache:
		return p.Schema(n.Input)
	case *Union:
		var first *Schema
		for _, in := range n.Inputs {
			s, err := p.Schema(in)
			if err != nil {
				return nil, err
			}
			if first == nil {
				first = s
				continue
			}
			if !first.Equal(s) {
				return nil, fmt.Errorf("%w: union inputs %s and %s differ", errors.ErrSchemaMismatch, first, s)
			}
		}
		if first == nil {
			return NewSchema(), nil
		}
		return first, nil
	case *HConcat:
		out := NewSchema()
		for _, in := range n.Inputs {
			s, err := p.Schema(in)
			if err != nil {
				return nil, err
			}
			for _, f := range s.Fields() {
				if out.Contains(f.Name) {
					return nil, fmt.Errorf("%w: duplicate output column %q", errors.ErrSchemaMismatch, f.Name)
				}
				out.Upsert(f)
			}
		}
		return out, nil
	case *MapFunction:
		input, err := p.Schema(n.Input)
		if err != nil {
			return nil, err
		}
		return MapSchema(n.Function, input)
	default:
		panic(unknownNode(n))
	}
}

// InputSchema returns the schema expressions of node id are evaluated
// against: the schema of its first input, or the file schema for scans.
func (p *Plan) InputSchema(id arena.Node) (*Schema, error) {
	switch n := p.Node(id).(type) {
	case *Scan:
		return n.FileSchema, nil
	case *DataFrameScan:
		return n.Schema, nil
	}
	children := p.Children(id)
	if len(children) == 0 {
		return NewSchema(), nil
	}
	return p.Schema(children[0])
}

// ExprInput pairs an expression with the schema it is evaluated against.
type ExprInput struct {
	Expr   arena.Node
	Schema *Schema
}

// ExprInputs returns the root expressions of node id with their input
// schemas. The right join keys are evaluated against the right input.
func (p *Plan) ExprInputs(id arena.Node) ([]ExprInput, error) {
	n := p.Node(id)
	exprs := Expressions(n)
	if len(exprs) == 0 {
		return nil, nil
	}
	input, err := p.InputSchema(id)
	if err != nil {
		return nil, err
	}
	out := make([]ExprInput, 0, len(exprs))
	if j, ok := n.(*Join); ok {
		right, err := p.Schema(j.Right)
		if err != nil {
			return nil, err
		}
		for _, e := range j.LeftOn {
			out = append(out, ExprInput{Expr: e, Schema: input})
		}
		for _, e := range j.RightOn {
			out = append(out, ExprInput{Expr: e, Schema: right})
		}
		return out, nil
	}
	for _, e := range exprs {
		out = append(out, ExprInput{Expr: e, Schema: input})
	}
	return out, nil
}

func (p *Plan) joinSchema(n *Join) (*Schema, error) {
	left, err := p.Schema(n.Left)
	if err != nil {
		return nil, err
	}
	right, err := p.Schema(n.Right)
	if err != nil {
		return nil, err
	}
	out := NewSchema(left.Fields()...)
	if !n.Type.OutputsRight() {
		return out, nil
	}
	dropped := p.DroppedRightKeys(n)
	for _, f := range right.Fields() {
		if dropped[f.Name] {
			continue
		}
		out.Upsert(Field{Name: p.JoinOutputName(n, left, f.Name), Type: f.Type})
	}
	return out, nil
}

// JoinOutputName returns the output name of the right column name of
// join n.
func (p *Plan) JoinOutputName(n *Join, left *Schema, name string) string {
	if left.Contains(name) {
		return name + joinSuffix(n)
	}
	return name
}

// DroppedRightKeys returns the names of the right key columns that are
// coalesced into the left keys and not part of the output.
func (p *Plan) DroppedRightKeys(n *Join) map[string]bool {
	dropped := map[string]bool{}
	if n.Type == types.JoinTypeFull || n.Type == types.JoinTypeCross {
		return dropped
	}
	for _, e := range n.RightOn {
		if c, ok := p.Expr(e).(*ColumnExpr); ok {
			dropped[c.Name] = true
		}
	}
	return dropped
}

func joinSuffix(n *Join) string {
	if n.Suffix == "" {
		return DefaultJoinSuffix
	}
	return n.Suffix
}

func unknownNode(n IR) string { return fmt.Sprintf("logical: unknown plan node %T", n) }
func unknownExpr(e AExpr) string { return fmt.Sprintf("logical: unknown expression %T", e) }
