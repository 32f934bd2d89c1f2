package logical

import (
	"github.com/apache/arrow-go/v18/arrow"

	"github.com/grafana/lazyframe/pkg/engine/internal/arena"
	"github.com/grafana/lazyframe/pkg/engine/internal/types"
)

// AExpr is an expression node stored in an expression arena. Children are
// referenced by id. The set of implementations is closed.
type AExpr interface {
	isAExpr()
}

// ColumnExpr references an input column by name.
type ColumnExpr struct {
	Name string
}

// LiteralExpr is a constant.
type LiteralExpr struct {
	Value types.Literal
}

// BinaryExpr applies Op to the results of Left and Right.
type BinaryExpr struct {
	Left  arena.Node
	Op    types.BinaryOp
	Right arena.Node
}

// FunctionExpr applies a function to its inputs.
type FunctionExpr struct {
	Kind  types.FunctionKind
	Input []arena.Node
}

// CastExpr converts its input to another type. A strict cast fails on
// values that cannot be represented; a non-strict cast produces nulls.
type CastExpr struct {
	Input  arena.Node
	To     arrow.DataType
	Strict bool
}

// AliasExpr renames the output of its input.
type AliasExpr struct {
	Input arena.Node
	Name  string
}

// AggExpr reduces its input to a single value, or one value per group.
type AggExpr struct {
	Kind  types.AggKind
	Input arena.Node
}

// WindowExpr evaluates an aggregation over the groups defined by
// PartitionBy and broadcasts the result back to every row of the group.
type WindowExpr struct {
	Function    arena.Node
	PartitionBy []arena.Node
}

// TernaryExpr evaluates to Truthy where Predicate holds and to Falsy
// elsewhere.
type TernaryExpr struct {
	Predicate arena.Node
	Truthy    arena.Node
	Falsy     arena.Node
}

// SortExpr sorts the values of its input.
type SortExpr struct {
	Input      arena.Node
	Descending bool
	NullsLast  bool
}

// SliceExpr takes a contiguous range of the values of its input.
type SliceExpr struct {
	Input  arena.Node
	Offset int64
	Length uint64
}

func (*ColumnExpr) isAExpr()   {}
func (*LiteralExpr) isAExpr()  {}
func (*BinaryExpr) isAExpr()   {}
func (*FunctionExpr) isAExpr() {}
func (*CastExpr) isAExpr()     {}
func (*AliasExpr) isAExpr()    {}
func (*AggExpr) isAExpr()      {}
func (*WindowExpr) isAExpr()   {}
func (*TernaryExpr) isAExpr()  {}
func (*SortExpr) isAExpr()     {}
func (*SliceExpr) isAExpr()    {}

// Inputs returns the ids of the direct children of e, in evaluation order.
func Inputs(e AExpr) []arena.Node {
	switch e := e.(type) {
	case *ColumnExpr, *LiteralExpr:
		return nil
	case *BinaryExpr:
		return []arena.Node{e.Left, e.Right}
	case *FunctionExpr:
		return e.Input
	case *CastExpr:
		return []arena.Node{e.Input}
	case *AliasExpr:
		return []arena.Node{e.Input}
	case *AggExpr:
		return []arena.Node{e.Input}
	case *WindowExpr:
		return append([]arena.Node{e.Function}, e.PartitionBy...)
	case *TernaryExpr:
		return []arena.Node{e.Predicate, e.Truthy, e.Falsy}
	case *SortExpr:
		return []arena.Node{e.Input}
	case *SliceExpr:
		return []arena.Node{e.Input}
	default:
		panic(unknownExpr(e))
	}
}

// withInputs returns a shallow copy of e whose direct children are inputs.
func withInputs(e AExpr, inputs []arena.Node) AExpr {
	switch e := e.(type) {
	case *ColumnExpr:
		c := *e
		return &c
	case *LiteralExpr:
		c := *e
		return &c
	case *BinaryExpr:
		return &BinaryExpr{Left: inputs[0], Op: e.Op, Right: inputs[1]}
	case *FunctionExpr:
		return &FunctionExpr{Kind: e.Kind, Input: inputs}
	case *CastExpr:
		return &CastExpr{Input: inputs[0], To: e.To, Strict: e.Strict}
	case *AliasExpr:
		return &AliasExpr{Input: inputs[0], Name: e.Name}
	case *AggExpr:
		return &AggExpr{Kind: e.Kind, Input: inputs[0]}
	case *WindowExpr:
		return &WindowExpr{Function: inputs[0], PartitionBy: inputs[1:]}
	case *TernaryExpr:
		return &TernaryExpr{Predicate: inputs[0], Truthy: inputs[1], Falsy: inputs[2]}
	case *SortExpr:
		return &SortExpr{Input: inputs[0], Descending: e.Descending, NullsLast: e.NullsLast}
	case *SliceExpr:
		return &SliceExpr{Input: inputs[0], Offset: e.Offset, Length: e.Length}
	default:
		panic(unknownExpr(e))
	}
}
