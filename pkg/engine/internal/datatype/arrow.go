package datatype

import (
	"fmt"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
)

// Arrow holds the arrow types understood by the engine.
var Arrow = struct {
	Null    arrow.DataType
	Bool    arrow.DataType
	Int32   arrow.DataType
	Int64   arrow.DataType
	Uint32  arrow.DataType
	Uint64  arrow.DataType
	Float64 arrow.DataType
	String  arrow.DataType
}{
	Null:    arrow.Null,
	Bool:    arrow.FixedWidthTypes.Boolean,
	Int32:   arrow.PrimitiveTypes.Int32,
	Int64:   arrow.PrimitiveTypes.Int64,
	Uint32:  arrow.PrimitiveTypes.Uint32,
	Uint64:  arrow.PrimitiveTypes.Uint64,
	Float64: arrow.PrimitiveTypes.Float64,
	String:  arrow.BinaryTypes.String,
}

// Index is the type of row counts and positions produced by the engine.
var Index = Arrow.Uint32

var byName = map[string]arrow.DataType{
	"null":    Arrow.Null,
	"bool":    Arrow.Bool,
	"int32":   Arrow.Int32,
	"int64":   Arrow.Int64,
	"uint32":  Arrow.Uint32,
	"uint64":  Arrow.Uint64,
	"float64": Arrow.Float64,
	"str":     Arrow.String,
	"utf8":    Arrow.String,
}

// Parse returns the type named s. Lists are written as "list[<inner>]".
func Parse(s string) (arrow.DataType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if inner, ok := strings.CutPrefix(s, "list["); ok && strings.HasSuffix(inner, "]") {
		elem, err := Parse(strings.TrimSuffix(inner, "]"))
		if err != nil {
			return nil, err
		}
		return arrow.ListOf(elem), nil
	}
	if dt, ok := byName[s]; ok {
		return dt, nil
	}
	return nil, fmt.Errorf("unsupported data type %q", s)
}

// Name returns the short name of dt as accepted by [Parse].
func Name(dt arrow.DataType) string {
	switch dt.ID() {
	case arrow.NULL:
		return "null"
	case arrow.BOOL:
		return "bool"
	case arrow.INT32:
		return "int32"
	case arrow.INT64:
		return "int64"
	case arrow.UINT32:
		return "uint32"
	case arrow.UINT64:
		return "uint64"
	case arrow.FLOAT64:
		return "float64"
	case arrow.STRING:
		return "str"
	case arrow.LIST:
		return "list[" + Name(dt.(*arrow.ListType).Elem()) + "]"
	default:
		return dt.String()
	}
}

// Supported returns true if the engine can compute on values of type dt.
func Supported(dt arrow.DataType) bool {
	switch dt.ID() {
	case arrow.NULL, arrow.BOOL, arrow.INT32, arrow.INT64, arrow.UINT32, arrow.UINT64, arrow.FLOAT64, arrow.STRING:
		return true
	case arrow.LIST:
		return Supported(dt.(*arrow.ListType).Elem())
	default:
		return false
	}
}

func IsInteger(dt arrow.DataType) bool {
	switch dt.ID() {
	case arrow.INT32, arrow.INT64, arrow.UINT32, arrow.UINT64:
		return true
	}
	return false
}

func IsSigned(dt arrow.DataType) bool {
	return dt.ID() == arrow.INT32 || dt.ID() == arrow.INT64
}

func IsFloat(dt arrow.DataType) bool { return dt.ID() == arrow.FLOAT64 }

// IsNumeric returns true for integer and floating point types.
func IsNumeric(dt arrow.DataType) bool { return IsInteger(dt) || IsFloat(dt) }

// Equal compares two types.
func Equal(a, b arrow.DataType) bool { return arrow.TypeEqual(a, b) }
