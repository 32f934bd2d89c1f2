package logical

import (
	"github.com/apache/arrow-go/v18/arrow"

	"github.com/grafana/lazyframe/pkg/engine/internal/arena"
	"github.com/grafana/lazyframe/pkg/engine/internal/types"
)

// Builder constructs a plan one node at a time. Each method adds a node on
// top of the current one and returns a builder for it. Builders created from
// the same [Plan] can be combined.
type Builder struct {
	plan *Plan
	node arena.Node
}

// NewBuilder returns a builder whose current node is n, added to plan.
func NewBuilder(plan *Plan, n IR) Builder {
	return Builder{plan: plan, node: plan.AddNode(n)}
}

// ScanCSV starts a plan reading CSV files with the given schema.
func ScanCSV(plan *Plan, schema *Schema, hasHeader bool, paths ...string) Builder {
	return NewBuilder(plan, &Scan{
		Sources:    paths,
		Format:     ScanFormatCSV,
		FileSchema: schema,
		HasHeader:  hasHeader,
		Delimiter:  ',',
	})
}

// ScanIPC starts a plan reading Arrow IPC files.
func ScanIPC(plan *Plan, schema *Schema, paths ...string) Builder {
	return NewBuilder(plan, &Scan{
		Sources:    paths,
		Format:     ScanFormatIPC,
		FileSchema: schema,
	})
}

// ScanParquet starts a plan reading Parquet files.
func ScanParquet(plan *Plan, schema *Schema, paths ...string) Builder {
	return NewBuilder(plan, &Scan{
		Sources:    paths,
		Format:     ScanFormatParquet,
		FileSchema: schema,
	})
}

// FromRecord starts a plan reading rec. The plan retains rec.
func FromRecord(plan *Plan, rec arrow.Record) Builder {
	rec.Retain()
	return NewBuilder(plan, &DataFrameScan{Data: rec, Schema: SchemaFromArrow(rec.Schema())})
}

// Node returns the id of the current node.
func (b Builder) Node() arena.Node { return b.node }

// Build sets the current node as the root of the plan and returns it.
func (b Builder) Build() *Plan {
	b.plan.Root = b.node
	return b.plan
}

func (b Builder) with(n IR) Builder {
	return Builder{plan: b.plan, node: b.plan.AddNode(n)}
}

func (b Builder) exprs(es []Expr) []arena.Node {
	out := make([]arena.Node, len(es))
	for i, e := range es {
		out[i] = e.Node(b.plan)
	}
	return out
}

// Filter keeps rows for which predicate holds.
func (b Builder) Filter(predicate Expr) Builder {
	return b.with(&Filter{Input: b.node, Predicate: predicate.Node(b.plan)})
}

// Select evaluates exprs.
func (b Builder) Select(exprs ...Expr) Builder {
	return b.with(&Select{Input: b.node, Exprs: b.exprs(exprs)})
}

// WithColumns adds or replaces columns.
func (b Builder) WithColumns(exprs ...Expr) Builder {
	return b.with(&HStack{Input: b.node, Exprs: b.exprs(exprs)})
}

// GroupBy starts an aggregation.
func (b Builder) GroupBy(keys ...Expr) GroupBy {
	return GroupBy{b: b, keys: keys}
}

// GroupBy is a pending aggregation.
type GroupBy struct {
	b             Builder
	keys          []Expr
	maintainOrder bool
}

// MaintainOrder emits groups in order of first appearance.
func (g GroupBy) MaintainOrder() GroupBy {
	g.maintainOrder = true
	return g
}

// Agg evaluates aggs per group.
func (g GroupBy) Agg(aggs ...Expr) Builder {
	return g.b.with(&Aggregate{
		Input:         g.b.node,
		Keys:          g.b.exprs(g.keys),
		Aggs:          g.b.exprs(aggs),
		MaintainOrder: g.maintainOrder,
	})
}

// Join joins b with other.
func (b Builder) Join(other Builder, leftOn, rightOn []Expr, how types.JoinType) Builder {
	return b.JoinWithSuffix(other, leftOn, rightOn, how, "")
}

// JoinWithSuffix joins b with other, suffixing colliding right columns.
func (b Builder) JoinWithSuffix(other Builder, leftOn, rightOn []Expr, how types.JoinType, suffix string) Builder {
	return b.with(&Join{
		Left:    b.node,
		Right:   other.node,
		LeftOn:  b.exprs(leftOn),
		RightOn: b.exprs(rightOn),
		Type:    how,
		Suffix:  suffix,
	})
}

// SortOptions configures [Builder.Sort].
type SortOptions struct {
	Descending    []bool
	NullsLast     bool
	MaintainOrder bool
}

// Sort orders rows by the given expressions.
func (b Builder) Sort(by []Expr, opts SortOptions) Builder {
	desc := make([]bool, len(by))
	copy(desc, opts.Descending)
	return b.with(&Sort{
		Input:         b.node,
		By:            b.exprs(by),
		Descending:    desc,
		NullsLast:     opts.NullsLast,
		MaintainOrder: opts.MaintainOrder,
	})
}

// Slice emits length rows starting at offset.
func (b Builder) Slice(offset int64, length uint64) Builder {
	return b.with(&Slice{Input: b.node, Offset: offset, Len: length})
}

// Head emits the first n rows.
func (b Builder) Head(n uint64) Builder { return b.Slice(0, n) }

// Unique removes duplicate rows.
func (b Builder) Unique(subset []string, keep DistinctKeep, maintainOrder bool) Builder {
	return b.with(&Distinct{Input: b.node, Subset: subset, Keep: keep, MaintainOrder: maintainOrder})
}

// Concat appends the rows of frames.
func Concat(frames ...Builder) Builder {
	inputs := make([]arena.Node, len(frames))
	for i, f := range frames {
		inputs[i] = f.node
	}
	return frames[0].with(&Union{Inputs: inputs})
}

// HorizontalConcat places the columns of frames next to each other.
func HorizontalConcat(frames ...Builder) Builder {
	inputs := make([]arena.Node, len(frames))
	for i, f := range frames {
		inputs[i] = f.node
	}
	return frames[0].with(&HConcat{Inputs: inputs})
}

// Map applies fn.
func (b Builder) Map(fn MapFunc) Builder {
	return b.with(&MapFunction{Input: b.node, Function: fn})
}

func (b Builder) Explode(columns ...string) Builder { return b.Map(&Explode{Columns: columns}) }

func (b Builder) DropNulls(subset ...string) Builder { return b.Map(&DropNulls{Subset: subset}) }

func (b Builder) Rename(existing, renamed []string) Builder {
	return b.Map(&Rename{Existing: existing, New: renamed})
}

func (b Builder) Melt(idVars, valueVars []string) Builder {
	return b.Map(&Melt{IDVars: idVars, ValueVars: valueVars})
}

// Cache shares the result of b between every consumer of the returned
// builder.
func (b Builder) Cache() Builder {
	return b.with(&Cache{Input: b.node, ID: uint64(b.node)})
}
