// Package executor lowers optimized logical plans into trees of physical
// operators and runs them.
package executor

import (
	"fmt"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/go-kit/log/level"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/grafana/lazyframe/pkg/engine/internal/arena"
	"github.com/grafana/lazyframe/pkg/engine/internal/errors"
	"github.com/grafana/lazyframe/pkg/engine/internal/planner/logical"
)

var tracer = otel.Tracer("pkg/engine/internal/executor")

// Executor is a physical operator. Execute computes the full result of the
// operator; the caller owns the returned record and must release it.
type Executor interface {
	Execute(state *State) (arrow.Record, error)
}

// operator is implemented by every physical operator.
type operator interface {
	Executor
	// name is the label of the operator in traces and profiles.
	name() string
}

// instrumented wraps an operator with the checks and bookkeeping every
// operator performs: it stops early if the query was stopped, traces and
// profiles the operator and logs it in verbose mode.
type instrumented struct {
	op operator
}

func (e instrumented) Execute(state *State) (arrow.Record, error) {
	if err := state.checkStop(); err != nil {
		return nil, err
	}

	name := e.op.name()
	ctx, span := tracer.Start(state.ctx, "executor."+name, trace.WithAttributes(
		attribute.String("branch", state.branch),
	))
	defer span.End()

	start := time.Now()
	rec, err := e.op.Execute(state.withContext(ctx))
	end := time.Now()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int64("rows", rec.NumRows()))

	if state.HasNodeTimer() {
		state.timer.Store(state.branch+name, start, end)
	}
	if state.verbose {
		level.Debug(state.logger).Log("msg", "operator finished", "operator", name, "rows", rec.NumRows(), "duration", end.Sub(start))
	}
	return rec, nil
}

// Build lowers the subtree of plan rooted at root into an executor tree.
func Build(plan *logical.Plan, root arena.Node) (Executor, error) {
	b := &builder{plan: plan, ev: evaluator{plan: plan}}
	return b.build(root)
}

type builder struct {
	plan *logical.Plan
	ev   evaluator
}

func (b *builder) build(id arena.Node) (Executor, error) {
	op, err := b.lower(id)
	if err != nil {
		return nil, err
	}
	return instrumented{op: op}, nil
}

func (b *builder) buildAll(ids []arena.Node) ([]Executor, error) {
	out := make([]Executor, len(ids))
	for i, id := range ids {
		e, err := b.build(id)
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	return out, nil
}

func (b *builder) lower(id arena.Node) (operator, error) {
	schema, err := b.plan.Schema(id)
	if err != nil {
		return nil, err
	}
	out := schema.Arrow()

	switch n := b.plan.Node(id).(type) {
	case *logical.Scan:
		return newScan(b.ev, n, out)

	case *logical.DataFrameScan:
		return &dataFrameScan{ev: b.ev, node: n, schema: out}, nil

	case *logical.Filter:
		input, err := b.build(n.Input)
		if err != nil {
			return nil, err
		}
		return &filter{ev: b.ev, input: input, predicate: n.Predicate}, nil

	case *logical.Select:
		input, err := b.build(n.Input)
		if err != nil {
			return nil, err
		}
		return &projection{ev: b.ev, input: input, exprs: n.Exprs, schema: out}, nil

	case *logical.HStack:
		input, err := b.build(n.Input)
		if err != nil {
			return nil, err
		}
		return &projection{ev: b.ev, input: input, exprs: n.Exprs, schema: out, stack: true}, nil

	case *logical.SimpleProjection:
		input, err := b.build(n.Input)
		if err != nil {
			return nil, err
		}
		return &simpleProjection{input: input, columns: n.Columns, schema: out}, nil

	case *logical.Aggregate:
		input, err := b.build(n.Input)
		if err != nil {
			return nil, err
		}
		return &groupBy{ev: b.ev, input: input, keys: n.Keys, aggs: n.Aggs, slice: n.Slice, schema: out}, nil

	case *logical.Join:
		return b.lowerJoin(n, out)

	case *logical.Sort:
		input, err := b.build(n.Input)
		if err != nil {
			return nil, err
		}
		return b.lowerSort(n, input, out), nil

	case *logical.Slice:
		input, err := b.build(n.Input)
		if err != nil {
			return nil, err
		}
		return &slice{input: input, offset: n.Offset, length: n.Len}, nil

	case *logical.Distinct:
		input, err := b.build(n.Input)
		if err != nil {
			return nil, err
		}
		return &distinct{input: input, node: n, schema: out}, nil

	case *logical.Union:
		inputs, err := b.buildAll(n.Inputs)
		if err != nil {
			return nil, err
		}
		return &union{inputs: inputs, slice: n.Slice, schema: out}, nil

	case *logical.HConcat:
		inputs, err := b.buildAll(n.Inputs)
		if err != nil {
			return nil, err
		}
		return &hconcat{inputs: inputs, slice: n.Slice, schema: out}, nil

	case *logical.MapFunction:
		input, err := b.build(n.Input)
		if err != nil {
			return nil, err
		}
		return newMapFunction(n.Function, input, out)

	case *logical.Cache:
		input, err := b.build(n.Input)
		if err != nil {
			return nil, err
		}
		return &cache{input: input, id: n.ID, count: n.Count}, nil

	default:
		return nil, fmt.Errorf("%w: plan node %T", errors.ErrNotImplemented, n)
	}
}

// exprNames renders expressions for operator labels.
func (b *builder) exprNames(exprs []arena.Node) string {
	names := make([]string, len(exprs))
	for i, e := range exprs {
		names[i] = b.plan.OutputName(e)
	}
	return strings.Join(names, ", ")
}
