package types

import "fmt"

// BinaryOp denotes the kind of binary operation applied by a binary
// expression.
type BinaryOp int

// Recognized values of [BinaryOp].
const (
	// BinaryOpInvalid indicates an invalid binary operation.
	BinaryOpInvalid BinaryOp = iota

	BinaryOpEq    // Equality comparison (==).
	BinaryOpNotEq // Inequality comparison (!=).
	BinaryOpLt    // Less than comparison (<).
	BinaryOpLtEq  // Less than or equal comparison (<=).
	BinaryOpGt    // Greater than comparison (>).
	BinaryOpGtEq  // Greater than or equal comparison (>=).

	BinaryOpAnd // Logical AND operation (&).
	BinaryOpOr  // Logical OR operation (|).
	BinaryOpXor // Logical XOR operation (^).

	BinaryOpPlus     // Addition operation (+).
	BinaryOpMinus    // Subtraction operation (-).
	BinaryOpMultiply // Multiplication operation (*).
	BinaryOpDivide   // True division operation (/).
	BinaryOpModulus  // Modulo operation (%).
)

var binaryOpStrings = map[BinaryOp]string{
	BinaryOpInvalid: "invalid",

	BinaryOpEq:    "==",
	BinaryOpNotEq: "!=",
	BinaryOpLt:    "<",
	BinaryOpLtEq:  "<=",
	BinaryOpGt:    ">",
	BinaryOpGtEq:  ">=",

	BinaryOpAnd: "&",
	BinaryOpOr:  "|",
	BinaryOpXor: "^",

	BinaryOpPlus:     "+",
	BinaryOpMinus:    "-",
	BinaryOpMultiply: "*",
	BinaryOpDivide:   "/",
	BinaryOpModulus:  "%",
}

// String returns the symbol of the binary operation.
func (op BinaryOp) String() string {
	if s, ok := binaryOpStrings[op]; ok {
		return s
	}
	return fmt.Sprintf("BinaryOp(%d)", op)
}

// ParseBinaryOp returns the operation represented by symbol s.
func ParseBinaryOp(s string) (BinaryOp, error) {
	for op, sym := range binaryOpStrings {
		if op != BinaryOpInvalid && sym == s {
			return op, nil
		}
	}
	return BinaryOpInvalid, fmt.Errorf("unknown binary operator %q", s)
}

// IsComparison returns true for operations producing a boolean from two
// comparable operands.
func (op BinaryOp) IsComparison() bool {
	return op >= BinaryOpEq && op <= BinaryOpGtEq
}

// IsLogical returns true for boolean connectives.
func (op BinaryOp) IsLogical() bool {
	return op >= BinaryOpAnd && op <= BinaryOpXor
}

// IsArithmetic returns true for numeric operations.
func (op BinaryOp) IsArithmetic() bool {
	return op >= BinaryOpPlus && op <= BinaryOpModulus
}

// Swap returns the operation obtained when exchanging the operands of a
// comparison, so that "a < b" is equivalent to "b > a".
func (op BinaryOp) Swap() BinaryOp {
	switch op {
	case BinaryOpLt:
		return BinaryOpGt
	case BinaryOpLtEq:
		return BinaryOpGtEq
	case BinaryOpGt:
		return BinaryOpLt
	case BinaryOpGtEq:
		return BinaryOpLtEq
	default:
		return op
	}
}
