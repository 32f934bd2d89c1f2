package types

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/grafana/lazyframe/pkg/engine/internal/datatype"
	"github.com/grafana/lazyframe/pkg/engine/internal/errors"
)

// Literal is a constant value referenced by an expression. A scalar literal
// broadcasts to the height of its input; a series literal has its own
// height.
//
// Values are stored with their natural Go representation: nil, bool, int32,
// int64, uint32, uint64, float64 or string.
type Literal struct {
	Type   arrow.DataType
	Value  any
	Series []any
	series bool
}

// NewLiteral returns a scalar literal holding v. The type is inferred from
// the Go type of v; untyped ints become int64.
func NewLiteral(v any) Literal {
	switch val := v.(type) {
	case int:
		return Literal{Type: datatype.Arrow.Int64, Value: int64(val)}
	case nil:
		return Literal{Type: datatype.Arrow.Null}
	}
	return Literal{Type: typeOf(v), Value: v}
}

// NewNull returns a null scalar of type dt.
func NewNull(dt arrow.DataType) Literal { return Literal{Type: dt} }

// NewSeries returns a series literal of type dt.
func NewSeries(dt arrow.DataType, values ...any) Literal {
	out := make([]any, len(values))
	for i, v := range values {
		if n, ok := v.(int); ok {
			v = int64(n)
		}
		out[i] = v
	}
	return Literal{Type: dt, Series: out, series: true}
}

// IsScalar returns true if the literal broadcasts to its input height.
func (l Literal) IsScalar() bool { return !l.series }

// IsNull returns true for a null scalar.
func (l Literal) IsNull() bool { return !l.series && l.Value == nil }

// Len returns 1 for scalars and the number of values of a series.
func (l Literal) Len() int {
	if l.series {
		return len(l.Series)
	}
	return 1
}

// Values returns the values of the literal, a single one for scalars.
func (l Literal) Values() []any {
	if l.series {
		return l.Series
	}
	return []any{l.Value}
}

// Bool returns the boolean value of a scalar.
func (l Literal) Bool() (bool, bool) {
	b, ok := l.Value.(bool)
	return b, ok && !l.series
}

// Slice returns a series literal holding the rows [offset, offset+length)
// of l. Negative offsets count from the end.
func (l Literal) Slice(offset int64, length uint64) Literal {
	values := l.Values()
	start, end := SliceBounds(offset, length, len(values))
	return NewSeries(l.Type, values[start:end]...)
}

// Cast converts the literal to dt. Nulls cast to any type.
func (l Literal) Cast(dt arrow.DataType) (Literal, error) {
	values := l.Values()
	out := make([]any, len(values))
	for i, v := range values {
		c, err := CastValue(v, dt)
		if err != nil {
			return Literal{}, err
		}
		out[i] = c
	}
	if l.series {
		return NewSeries(dt, out...), nil
	}
	return Literal{Type: dt, Value: out[0]}, nil
}

// Equal compares two literals by type and value.
func (l Literal) Equal(o Literal) bool {
	if l.series != o.series || !datatype.Equal(l.Type, o.Type) {
		return false
	}
	a, b := l.Values(), o.Values()
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (l Literal) String() string {
	if !l.series {
		return FormatValue(l.Value)
	}
	parts := make([]string, 0, len(l.Series))
	for _, v := range l.Series {
		parts = append(parts, FormatValue(v))
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// FormatValue renders a single value.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(val)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	default:
		return fmt.Sprint(val)
	}
}

func typeOf(v any) arrow.DataType {
	switch v.(type) {
	case bool:
		return datatype.Arrow.Bool
	case int32:
		return datatype.Arrow.Int32
	case int64:
		return datatype.Arrow.Int64
	case uint32:
		return datatype.Arrow.Uint32
	case uint64:
		return datatype.Arrow.Uint64
	case float64:
		return datatype.Arrow.Float64
	case string:
		return datatype.Arrow.String
	default:
		return datatype.Arrow.Null
	}
}

// CastValue converts a single value to dt.
func CastValue(v any, dt arrow.DataType) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch dt.ID() {
	case arrow.BOOL:
		switch val := v.(type) {
		case bool:
			return val, nil
		case string:
			return strconv.ParseBool(val)
		}
		f, ok := ToFloat(v)
		if !ok {
			break
		}
		return f != 0, nil
	case arrow.INT32, arrow.INT64, arrow.UINT32, arrow.UINT64:
		return castInteger(v, dt)
	case arrow.FLOAT64:
		if s, ok := v.(string); ok {
			return strconv.ParseFloat(s, 64)
		}
		if f, ok := ToFloat(v); ok {
			return f, nil
		}
	case arrow.STRING:
		if s, ok := v.(string); ok {
			return s, nil
		}
		if f, ok := v.(float64); ok {
			return strconv.FormatFloat(f, 'g', -1, 64), nil
		}
		return fmt.Sprint(v), nil
	case arrow.NULL:
		return nil, nil
	}
	return nil, fmt.Errorf("cannot cast %v (%T) to %s: %w", v, v, datatype.Name(dt), errors.ErrType)
}

func castInteger(v any, dt arrow.DataType) (any, error) {
	var (
		i        int64
		u        uint64
		unsigned bool
	)
	switch val := v.(type) {
	case bool:
		if val {
			i = 1
		}
	case int32:
		i = int64(val)
	case int64:
		i = val
	case uint32:
		i = int64(val)
	case uint64:
		u, unsigned = val, true
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return nil, fmt.Errorf("cannot cast %v to %s: %w", val, datatype.Name(dt), errors.ErrType)
		}
		if val >= 0 && val > math.MaxInt64 {
			u, unsigned = uint64(val), true
		} else {
			i = int64(val)
		}
	case string:
		parsed, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("cannot cast %q to %s: %w", val, datatype.Name(dt), errors.ErrType)
		}
		i = parsed
	default:
		return nil, fmt.Errorf("cannot cast %v (%T) to %s: %w", v, v, datatype.Name(dt), errors.ErrType)
	}

	outOfRange := fmt.Errorf("value %v out of range for %s: %w", v, datatype.Name(dt), errors.ErrType)
	switch dt.ID() {
	case arrow.INT32:
		if unsigned || i < math.MinInt32 || i > math.MaxInt32 {
			return nil, outOfRange
		}
		return int32(i), nil
	case arrow.INT64:
		if unsigned {
			if u > math.MaxInt64 {
				return nil, outOfRange
			}
			return int64(u), nil
		}
		return i, nil
	case arrow.UINT32:
		if unsigned {
			if u > math.MaxUint32 {
				return nil, outOfRange
			}
			return uint32(u), nil
		}
		if i < 0 || i > math.MaxUint32 {
			return nil, outOfRange
		}
		return uint32(i), nil
	default:
		if unsigned {
			return u, nil
		}
		if i < 0 {
			return nil, outOfRange
		}
		return uint64(i), nil
	}
}

// ToFloat converts a numeric or boolean value to float64.
func ToFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case bool:
		if val {
			return 1, true
		}
		return 0, true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint32:
		return float64(val), true
	case uint64:
		return float64(val), true
	case float64:
		return val, true
	}
	return 0, false
}

// SliceBounds resolves a slice of length rows starting at offset against a
// sequence of n rows. Negative offsets count from the end.
func SliceBounds(offset int64, length uint64, n int) (start, end int) {
	if offset < 0 {
		offset += int64(n)
		if offset < 0 {
			offset = 0
		}
	}
	if offset > int64(n) {
		return n, n
	}
	start = int(offset)
	remaining := uint64(n - start)
	if length > remaining {
		length = remaining
	}
	return start, start + int(length)
}
