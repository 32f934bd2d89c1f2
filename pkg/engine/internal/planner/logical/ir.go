package logical

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/grafana/lazyframe/pkg/engine/internal/arena"
	"github.com/grafana/lazyframe/pkg/engine/internal/types"
)

// IR is a logical plan node stored in a plan arena. Inputs and expressions
// are referenced by id. The set of implementations is closed.
type IR interface {
	isIR()
}

// SliceOptions is a row range anchored on a node: the node emits at most
// Len rows starting at Offset. Negative offsets count from the end.
type SliceOptions struct {
	Offset int64
	Len    uint64
}

// ScanFormat is the file format read by a [Scan].
type ScanFormat int

const (
	ScanFormatCSV ScanFormat = iota
	ScanFormatIPC
	ScanFormatParquet
)

func (f ScanFormat) String() string {
	switch f {
	case ScanFormatCSV:
		return "csv"
	case ScanFormatIPC:
		return "ipc"
	case ScanFormatParquet:
		return "parquet"
	default:
		return "unknown"
	}
}

// FileCache marks a scan whose file is read by several scans of the same
// plan. Readers share one read of Columns, keyed by Key.
type FileCache struct {
	Key     uint64
	Columns []string
	Count   int
}

// Scan reads rows from files.
type Scan struct {
	Sources    []string
	Format     ScanFormat
	FileSchema *Schema
	HasHeader  bool
	Delimiter  rune

	// Projection lists the columns read, in file order. A nil projection
	// reads every column.
	Projection []string
	// Slice limits the rows read, before predicates are applied.
	Slice *SliceOptions
	// Predicates are conjunctive and applied while reading.
	Predicates []arena.Node

	FileCache *FileCache
}

// DataFrameScan reads an in-memory record.
type DataFrameScan struct {
	Data       arrow.Record
	Schema     *Schema
	Projection []string
	Predicates []arena.Node
}

// Filter keeps the rows of Input for which Predicate is true.
type Filter struct {
	Input     arena.Node
	Predicate arena.Node
}

// Select evaluates Exprs against Input. The output has one column per
// expression, in order.
type Select struct {
	Input arena.Node
	Exprs []arena.Node
}

// HStack evaluates Exprs against Input and adds the results to the input
// columns, replacing columns with the same name.
type HStack struct {
	Input arena.Node
	Exprs []arena.Node
}

// SimpleProjection selects columns of Input by name.
type SimpleProjection struct {
	Input   arena.Node
	Columns []string
}

// Aggregate groups Input by Keys and evaluates Aggs per group.
type Aggregate struct {
	Input         arena.Node
	Keys          []arena.Node
	Aggs          []arena.Node
	MaintainOrder bool
	Slice         *SliceOptions
}

// Join combines Left and Right on equality of LeftOn and RightOn.
type Join struct {
	Left    arena.Node
	Right   arena.Node
	LeftOn  []arena.Node
	RightOn []arena.Node
	Type    types.JoinType
	// Suffix is appended to right columns whose name collides with a left
	// column.
	Suffix string
	Slice  *SliceOptions
}

// Sort orders Input by By.
type Sort struct {
	Input         arena.Node
	By            []arena.Node
	Descending    []bool
	NullsLast     bool
	MaintainOrder bool
	Slice         *SliceOptions
}

// Slice emits Len rows of Input starting at Offset.
type Slice struct {
	Input  arena.Node
	Offset int64
	Len    uint64
}

// DistinctKeep selects which row of a group of duplicates is kept.
type DistinctKeep int

const (
	DistinctKeepAny DistinctKeep = iota
	DistinctKeepFirst
	DistinctKeepLast
	DistinctKeepNone
)

func (k DistinctKeep) String() string {
	switch k {
	case DistinctKeepFirst:
		return "first"
	case DistinctKeepLast:
		return "last"
	case DistinctKeepNone:
		return "none"
	default:
		return "any"
	}
}

// Distinct removes duplicate rows. Rows are compared on Subset, or on
// every column if Subset is nil.
type Distinct struct {
	Input         arena.Node
	Subset        []string
	Keep          DistinctKeep
	MaintainOrder bool
	Slice         *SliceOptions
}

// Union concatenates the rows of Inputs, which must share a schema.
type Union struct {
	Inputs []arena.Node
	Slice  *SliceOptions
}

// HConcat concatenates the columns of Inputs. Shorter inputs are padded
// with nulls.
type HConcat struct {
	Inputs []arena.Node
	Slice  *SliceOptions
}

// MapFunction applies a named transformation to Input.
type MapFunction struct {
	Input    arena.Node
	Function MapFunc
}

// Cache shares the result of Input between every Cache node with the same
// ID. Count is the number of such consumers.
type Cache struct {
	Input arena.Node
	ID    uint64
	Count int
}

func (*Scan) isIR()             {}
func (*DataFrameScan) isIR()    {}
func (*Filter) isIR()           {}
func (*Select) isIR()           {}
func (*HStack) isIR()           {}
func (*SimpleProjection) isIR() {}
func (*Aggregate) isIR()        {}
func (*Join) isIR()             {}
func (*Sort) isIR()             {}
func (*Slice) isIR()            {}
func (*Distinct) isIR()         {}
func (*Union) isIR()            {}
func (*HConcat) isIR()          {}
func (*MapFunction) isIR()      {}
func (*Cache) isIR()            {}

// MapFunc is a transformation applied by [MapFunction].
type MapFunc interface {
	isMapFunc()
	Name() string
}

// Explode unnests list columns, emitting one row per list element.
type Explode struct {
	Columns []string
}

// Melt turns ValueVars columns into rows of (variable, value) pairs,
// repeating IDVars.
type Melt struct {
	IDVars       []string
	ValueVars    []string
	VariableName string
	ValueName    string
}

// DropNulls removes rows with a null in any column of Subset, or any
// column if Subset is nil.
type DropNulls struct {
	Subset []string
}

// Rename renames Existing[i] to New[i]. Missing columns are ignored.
type Rename struct {
	Existing []string
	New      []string
}

// UdfFunc computes the output of a [Udf].
type UdfFunc func(input arrow.Record, mem memory.Allocator) (arrow.Record, error)

// Udf applies a user function. Its capabilities tell the optimizer which
// operations commute with it.
type Udf struct {
	Label string
	Fn    UdfFunc
	// Schema is the output schema, or nil if it equals the input schema.
	Schema *Schema

	PredicatePushdown  bool
	ProjectionPushdown bool
	SlicePushdown      bool
}

func (*Explode) isMapFunc()   {}
func (*Melt) isMapFunc()      {}
func (*DropNulls) isMapFunc() {}
func (*Rename) isMapFunc()    {}
func (*Udf) isMapFunc()       {}

func (*Explode) Name() string   { return "explode" }
func (*Melt) Name() string      { return "melt" }
func (*DropNulls) Name() string { return "drop_nulls" }
func (*Rename) Name() string    { return "rename" }
func (u *Udf) Name() string     { return u.Label }

// Children returns the ids of the inputs of n.
func Children(n IR) []arena.Node {
	switch n := n.(type) {
	case *Scan, *DataFrameScan:
		return nil
	case *Filter:
		return []arena.Node{n.Input}
	case *Select:
		return []arena.Node{n.Input}
	case *HStack:
		return []arena.Node{n.Input}
	case *SimpleProjection:
		return []arena.Node{n.Input}
	case *Aggregate:
		return []arena.Node{n.Input}
	case *Join:
		return []arena.Node{n.Left, n.Right}
	case *Sort:
		return []arena.Node{n.Input}
	case *Slice:
		return []arena.Node{n.Input}
	case *Distinct:
		return []arena.Node{n.Input}
	case *Union:
		return n.Inputs
	case *HConcat:
		return n.Inputs
	case *MapFunction:
		return []arena.Node{n.Input}
	case *Cache:
		return []arena.Node{n.Input}
	default:
		panic(unknownNode(n))
	}
}

// Expressions returns the ids of the root expressions owned by n.
func Expressions(n IR) []arena.Node {
	switch n := n.(type) {
	case *Scan:
		return n.Predicates
	case *DataFrameScan:
		return n.Predicates
	case *Filter:
		return []arena.Node{n.Predicate}
	case *Select:
		return n.Exprs
	case *HStack:
		return n.Exprs
	case *Aggregate:
		return append(append([]arena.Node{}, n.Keys...), n.Aggs...)
	case *Join:
		return append(append([]arena.Node{}, n.LeftOn...), n.RightOn...)
	case *Sort:
		return n.By
	default:
		return nil
	}
}
