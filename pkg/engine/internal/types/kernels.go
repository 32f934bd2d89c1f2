package types

import (
	"cmp"
	"fmt"
	"math"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/grafana/lazyframe/pkg/engine/internal/datatype"
	"github.com/grafana/lazyframe/pkg/engine/internal/errors"
)

// Compare orders two non-null values. It returns false if the values are
// not comparable. Numbers of different types compare by value.
func Compare(a, b any) (int, bool) {
	switch a := a.(type) {
	case bool:
		b, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case a == b:
			return 0, true
		case !a:
			return -1, true
		default:
			return 1, true
		}
	case string:
		b, ok := b.(string)
		return cmp.Compare(a, b), ok
	}

	ai, aInt := asInt64(a)
	bi, bInt := asInt64(b)
	if aInt && bInt {
		return cmp.Compare(ai, bi), true
	}
	au, aUint := a.(uint64)
	bu, bUint := b.(uint64)
	switch {
	case aUint && bUint:
		return cmp.Compare(au, bu), true
	case aUint && bInt:
		if bi < 0 {
			return 1, true
		}
		return cmp.Compare(au, uint64(bi)), true
	case aInt && bUint:
		if ai < 0 {
			return -1, true
		}
		return cmp.Compare(uint64(ai), bu), true
	}

	af, aok := ToFloat(a)
	bf, bok := ToFloat(b)
	if !aok || !bok {
		return 0, false
	}
	return cmp.Compare(af, bf), true
}

// asInt64 widens signed and 32-bit unsigned integers.
func asInt64(v any) (int64, bool) {
	switch v := v.(type) {
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint32:
		return int64(v), true
	}
	return 0, false
}

// EvalBinary applies op to a and b, either of which may be nil for null.
// Comparisons and arithmetic with a null operand are null; logical
// operations follow three-valued logic. Arithmetic results have type dt.
func EvalBinary(op BinaryOp, a, b any, dt arrow.DataType) (any, error) {
	if op.IsLogical() {
		return evalLogical(op, a, b)
	}
	if a == nil || b == nil {
		return nil, nil
	}
	if op.IsComparison() {
		c, ok := Compare(a, b)
		if !ok {
			return nil, fmt.Errorf("%w: cannot compare %T and %T", errors.ErrType, a, b)
		}
		switch op {
		case BinaryOpEq:
			return c == 0, nil
		case BinaryOpNotEq:
			return c != 0, nil
		case BinaryOpLt:
			return c < 0, nil
		case BinaryOpLtEq:
			return c <= 0, nil
		case BinaryOpGt:
			return c > 0, nil
		default:
			return c >= 0, nil
		}
	}
	if op == BinaryOpDivide {
		dt = datatype.Arrow.Float64
	}
	return evalArithmetic(op, a, b, dt)
}

func evalLogical(op BinaryOp, a, b any) (any, error) {
	av, aok := a.(bool)
	bv, bok := b.(bool)
	if (a != nil && !aok) || (b != nil && !bok) {
		return nil, fmt.Errorf("%w: logical %s on %T and %T", errors.ErrType, op, a, b)
	}
	switch op {
	case BinaryOpAnd:
		switch {
		case (aok && !av) || (bok && !bv):
			return false, nil
		case aok && bok:
			return true, nil
		}
		return nil, nil
	case BinaryOpOr:
		switch {
		case (aok && av) || (bok && bv):
			return true, nil
		case aok && bok:
			return false, nil
		}
		return nil, nil
	default:
		if !aok || !bok {
			return nil, nil
		}
		return av != bv, nil
	}
}

func evalArithmetic(op BinaryOp, a, b any, dt arrow.DataType) (any, error) {
	a, err := CastValue(a, dt)
	if err != nil {
		return nil, err
	}
	b, err = CastValue(b, dt)
	if err != nil {
		return nil, err
	}

	switch a := a.(type) {
	case float64:
		b := b.(float64)
		switch op {
		case BinaryOpPlus:
			return a + b, nil
		case BinaryOpMinus:
			return a - b, nil
		case BinaryOpMultiply:
			return a * b, nil
		case BinaryOpDivide:
			return a / b, nil
		default:
			return math.Mod(a, b), nil
		}
	case int64:
		return intArithmetic(op, a, b.(int64))
	case int32:
		v, err := intArithmetic(op, int64(a), int64(b.(int32)))
		if err != nil {
			return nil, err
		}
		return CastValue(v, dt)
	case uint64:
		return uintArithmetic(op, a, b.(uint64))
	case uint32:
		v, err := uintArithmetic(op, uint64(a), uint64(b.(uint32)))
		if err != nil {
			return nil, err
		}
		return CastValue(v, dt)
	}
	return nil, fmt.Errorf("%w: arithmetic on %s", errors.ErrType, datatype.Name(dt))
}

func intArithmetic(op BinaryOp, a, b int64) (any, error) {
	switch op {
	case BinaryOpPlus:
		return a + b, nil
	case BinaryOpMinus:
		return a - b, nil
	case BinaryOpMultiply:
		return a * b, nil
	default:
		if b == 0 {
			return nil, fmt.Errorf("%w: integer modulo by zero", errors.ErrCompute)
		}
		return a % b, nil
	}
}

func uintArithmetic(op BinaryOp, a, b uint64) (any, error) {
	switch op {
	case BinaryOpPlus:
		return a + b, nil
	case BinaryOpMinus:
		return a - b, nil
	case BinaryOpMultiply:
		return a * b, nil
	default:
		if b == 0 {
			return nil, fmt.Errorf("%w: integer modulo by zero", errors.ErrCompute)
		}
		return a % b, nil
	}
}
