package logical

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/grafana/lazyframe/pkg/engine/internal/arena"
	"github.com/grafana/lazyframe/pkg/engine/internal/datatype"
	"github.com/grafana/lazyframe/pkg/engine/internal/planner/internal/tree"
)

// ExprString renders expression e.
func (p *Plan) ExprString(e arena.Node) string {
	switch expr := p.Expr(e).(type) {
	case *ColumnExpr:
		return "col(" + strconv.Quote(expr.Name) + ")"
	case *LiteralExpr:
		return expr.Value.String()
	case *BinaryExpr:
		return "(" + p.ExprString(expr.Left) + " " + expr.Op.String() + " " + p.ExprString(expr.Right) + ")"
	case *FunctionExpr:
		args := make([]string, 0, len(expr.Input)-1)
		for _, in := range expr.Input[1:] {
			args = append(args, p.ExprString(in))
		}
		return p.ExprString(expr.Input[0]) + "." + expr.Kind.String() + "(" + strings.Join(args, ", ") + ")"
	case *CastExpr:
		fn := "cast"
		if expr.Strict {
			fn = "strict_cast"
		}
		return p.ExprString(expr.Input) + "." + fn + "(" + datatype.Name(expr.To) + ")"
	case *AliasExpr:
		return p.ExprString(expr.Input) + ".alias(" + strconv.Quote(expr.Name) + ")"
	case *AggExpr:
		return p.ExprString(expr.Input) + "." + expr.Kind.String() + "()"
	case *WindowExpr:
		return p.ExprString(expr.Function) + ".over(" + p.exprList(expr.PartitionBy) + ")"
	case *TernaryExpr:
		return "when(" + p.ExprString(expr.Predicate) + ").then(" + p.ExprString(expr.Truthy) + ").otherwise(" + p.ExprString(expr.Falsy) + ")"
	case *SortExpr:
		return fmt.Sprintf("%s.sort(descending=%t, nulls_last=%t)", p.ExprString(expr.Input), expr.Descending, expr.NullsLast)
	case *SliceExpr:
		return fmt.Sprintf("%s.slice(%d, %d)", p.ExprString(expr.Input), expr.Offset, expr.Length)
	default:
		panic(unknownExpr(expr))
	}
}

func (p *Plan) exprList(es []arena.Node) string {
	parts := make([]string, len(es))
	for i, e := range es {
		parts[i] = p.ExprString(e)
	}
	return strings.Join(parts, ", ")
}

func (p *Plan) exprValues(es []arena.Node) []any {
	out := make([]any, len(es))
	for i, e := range es {
		out[i] = p.ExprString(e)
	}
	return out
}

// BuildTree converts the subtree rooted at id into a printable tree.
func BuildTree(p *Plan, id arena.Node) *tree.Node {
	root := toTreeNode(p, id)
	for _, child := range p.Children(id) {
		root.Children = append(root.Children, BuildTree(p, child))
	}
	return root
}

func toTreeNode(p *Plan, id arena.Node) *tree.Node {
	n := p.Node(id)
	var props []tree.Property
	switch n := n.(type) {
	case *Scan:
		props = append(props,
			tree.NewProperty("format", false, n.Format),
			tree.NewProperty("sources", true, toAnySlice(n.Sources)...),
		)
		if n.Projection != nil {
			props = append(props, tree.NewProperty("projection", true, toAnySlice(n.Projection)...))
		}
		props = appendSlice(props, n.Slice)
		props = appendPredicates(p, props, n.Predicates)
		if n.FileCache != nil {
			props = append(props, tree.NewProperty("file_cache", false, fmt.Sprintf("%x/%d", n.FileCache.Key, n.FileCache.Count)))
		}
	case *DataFrameScan:
		props = append(props, tree.NewProperty("columns", true, toAnySlice(n.Schema.Names())...))
		if n.Projection != nil {
			props = append(props, tree.NewProperty("projection", true, toAnySlice(n.Projection)...))
		}
		props = appendPredicates(p, props, n.Predicates)
	case *Filter:
		props = append(props, tree.NewProperty("predicate", false, p.ExprString(n.Predicate)))
	case *Select:
		props = append(props, tree.NewProperty("exprs", true, p.exprValues(n.Exprs)...))
	case *HStack:
		props = append(props, tree.NewProperty("exprs", true, p.exprValues(n.Exprs)...))
	case *SimpleProjection:
		props = append(props, tree.NewProperty("columns", true, toAnySlice(n.Columns)...))
	case *Aggregate:
		props = append(props,
			tree.NewProperty("keys", true, p.exprValues(n.Keys)...),
			tree.NewProperty("aggs", true, p.exprValues(n.Aggs)...),
		)
		if n.MaintainOrder {
			props = append(props, tree.NewProperty("maintain_order", false, true))
		}
		props = appendSlice(props, n.Slice)
	case *Join:
		props = append(props,
			tree.NewProperty("type", false, n.Type),
			tree.NewProperty("left_on", true, p.exprValues(n.LeftOn)...),
			tree.NewProperty("right_on", true, p.exprValues(n.RightOn)...),
		)
		if n.Suffix != "" {
			props = append(props, tree.NewProperty("suffix", false, n.Suffix))
		}
		props = appendSlice(props, n.Slice)
	case *Sort:
		props = append(props,
			tree.NewProperty("by", true, p.exprValues(n.By)...),
			tree.NewProperty("descending", true, toAnySlice(n.Descending)...),
			tree.NewProperty("nulls_last", false, n.NullsLast),
		)
		if n.MaintainOrder {
			props = append(props, tree.NewProperty("maintain_order", false, true))
		}
		props = appendSlice(props, n.Slice)
	case *Slice:
		props = append(props,
			tree.NewProperty("offset", false, n.Offset),
			tree.NewProperty("len", false, n.Len),
		)
	case *Distinct:
		if n.Subset != nil {
			props = append(props, tree.NewProperty("subset", true, toAnySlice(n.Subset)...))
		}
		props = append(props, tree.NewProperty("keep", false, n.Keep))
		if n.MaintainOrder {
			props = append(props, tree.NewProperty("maintain_order", false, true))
		}
		props = appendSlice(props, n.Slice)
	case *Union:
		props = appendSlice(props, n.Slice)
	case *HConcat:
		props = appendSlice(props, n.Slice)
	case *MapFunction:
		props = append(props, tree.NewProperty("function", false, n.Function.Name()))
		switch fn := n.Function.(type) {
		case *Explode:
			props = append(props, tree.NewProperty("columns", true, toAnySlice(fn.Columns)...))
		case *DropNulls:
			if fn.Subset != nil {
				props = append(props, tree.NewProperty("subset", true, toAnySlice(fn.Subset)...))
			}
		case *Rename:
			props = append(props,
				tree.NewProperty("existing", true, toAnySlice(fn.Existing)...),
				tree.NewProperty("new", true, toAnySlice(fn.New)...),
			)
		case *Melt:
			props = append(props, tree.NewProperty("id_vars", true, toAnySlice(fn.IDVars)...))
			if fn.ValueVars != nil {
				props = append(props, tree.NewProperty("value_vars", true, toAnySlice(fn.ValueVars)...))
			}
		}
	case *Cache:
		props = append(props,
			tree.NewProperty("id", false, fmt.Sprintf("%x", n.ID)),
			tree.NewProperty("count", false, n.Count),
		)
	}
	return tree.NewNode(nodeName(n), id.String(), props...)
}

func nodeName(n IR) string {
	name := fmt.Sprintf("%T", n)
	return name[strings.LastIndexByte(name, '.')+1:]
}

func appendSlice(props []tree.Property, s *SliceOptions) []tree.Property {
	if s == nil {
		return props
	}
	return append(props, tree.NewProperty("slice", true, s.Offset, s.Len))
}

func appendPredicates(p *Plan, props []tree.Property, predicates []arena.Node) []tree.Property {
	for i, e := range predicates {
		props = append(props, tree.NewProperty(fmt.Sprintf("predicate[%d]", i), false, p.ExprString(e)))
	}
	return props
}

func toAnySlice[T any](s []T) []any {
	ret := make([]any, len(s))
	for i := range s {
		ret[i] = s[i]
	}
	return ret
}

// PrintAsTree renders the plan rooted at p.Root.
func PrintAsTree(p *Plan) string {
	return PrintNode(p, p.Root)
}

// PrintNode renders the subtree rooted at id.
func PrintNode(p *Plan, id arena.Node) string {
	sb := &strings.Builder{}
	tree.NewPrinter(sb).Print(BuildTree(p, id))
	return sb.String()
}
