package datatype

import "github.com/apache/arrow-go/v18/arrow"

// Supertype returns the smallest type both a and b can be losslessly cast
// to. It returns false if no such type exists, for example between strings
// and numbers.
func Supertype(a, b arrow.DataType) (arrow.DataType, bool) {
	if Equal(a, b) {
		return a, true
	}
	switch {
	case a.ID() == arrow.NULL:
		return b, true
	case b.ID() == arrow.NULL:
		return a, true
	case a.ID() == arrow.LIST && b.ID() == arrow.LIST:
		elem, ok := Supertype(a.(*arrow.ListType).Elem(), b.(*arrow.ListType).Elem())
		if !ok {
			return nil, false
		}
		return arrow.ListOf(elem), true
	case a.ID() == arrow.BOOL && IsNumeric(b):
		return b, true
	case b.ID() == arrow.BOOL && IsNumeric(a):
		return a, true
	case IsNumeric(a) && IsNumeric(b):
		return numericSupertype(a, b), true
	}
	return nil, false
}

// numericSupertype handles two distinct numeric types.
func numericSupertype(a, b arrow.DataType) arrow.DataType {
	if IsFloat(a) || IsFloat(b) {
		return Arrow.Float64
	}
	if rank(a) > rank(b) {
		a, b = b, a
	}
	// a now has the smaller rank.
	switch {
	case IsSigned(a) == IsSigned(b):
		return b
	case b.ID() == arrow.UINT64 || a.ID() == arrow.UINT64:
		// No integer type holds both uint64 and signed values.
		return Arrow.Float64
	default:
		return Arrow.Int64
	}
}

func rank(dt arrow.DataType) int {
	switch dt.ID() {
	case arrow.INT32, arrow.UINT32:
		return 1
	case arrow.INT64, arrow.UINT64:
		return 2
	}
	return 0
}
