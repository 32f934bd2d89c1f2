package types

import "fmt"

// FunctionKind identifies a scalar or column function.
type FunctionKind int

// Recognized values of [FunctionKind].
const (
	FunctionInvalid FunctionKind = iota

	FunctionIsNull
	FunctionIsNotNull
	FunctionFillNull
	FunctionIsIn
	FunctionNot
	FunctionAbs

	FunctionIsUnique
	FunctionIsDuplicated
	FunctionIsFirstDistinct
	FunctionExplode

	// FunctionFusedMultiplyAdd computes a + b*c.
	FunctionFusedMultiplyAdd
	// FunctionFusedSubMultiply computes a - b*c.
	FunctionFusedSubMultiply
)

var functionKindStrings = map[FunctionKind]string{
	FunctionInvalid:          "invalid",
	FunctionIsNull:           "is_null",
	FunctionIsNotNull:        "is_not_null",
	FunctionFillNull:         "fill_null",
	FunctionIsIn:             "is_in",
	FunctionNot:              "not",
	FunctionAbs:              "abs",
	FunctionIsUnique:         "is_unique",
	FunctionIsDuplicated:     "is_duplicated",
	FunctionIsFirstDistinct:  "is_first_distinct",
	FunctionExplode:          "explode",
	FunctionFusedMultiplyAdd: "fma",
	FunctionFusedSubMultiply: "fsm",
}

func (k FunctionKind) String() string {
	if s, ok := functionKindStrings[k]; ok {
		return s
	}
	return fmt.Sprintf("FunctionKind(%d)", k)
}

// ParseFunctionKind returns the function named s.
func ParseFunctionKind(s string) (FunctionKind, error) {
	for k, name := range functionKindStrings {
		if k != FunctionInvalid && name == s {
			return k, nil
		}
	}
	return FunctionInvalid, fmt.Errorf("unknown function %q", s)
}

// IsElementwise returns true if the function produces one output row per
// input row, each depending only on that row.
func (k FunctionKind) IsElementwise() bool {
	switch k {
	case FunctionIsUnique, FunctionIsDuplicated, FunctionIsFirstDistinct, FunctionExplode:
		return false
	default:
		return true
	}
}

// IsNullTest returns true for functions whose result depends on whether
// their input is null.
func (k FunctionKind) IsNullTest() bool {
	switch k {
	case FunctionIsNull, FunctionIsNotNull, FunctionFillNull, FunctionIsIn:
		return true
	default:
		return false
	}
}

// DetectsDuplicates returns true for functions whose result depends on the
// multiplicity of values in their input.
func (k FunctionKind) DetectsDuplicates() bool {
	switch k {
	case FunctionIsUnique, FunctionIsDuplicated, FunctionIsFirstDistinct:
		return true
	default:
		return false
	}
}

// AggKind identifies an aggregation.
type AggKind int

// Recognized values of [AggKind].
const (
	AggInvalid AggKind = iota
	AggSum
	AggMin
	AggMax
	AggMean
	AggCount // non-null values
	AggLen   // all values
	AggFirst
	AggLast
)

var aggKindStrings = map[AggKind]string{
	AggInvalid: "invalid",
	AggSum:     "sum",
	AggMin:     "min",
	AggMax:     "max",
	AggMean:    "mean",
	AggCount:   "count",
	AggLen:     "len",
	AggFirst:   "first",
	AggLast:    "last",
}

func (k AggKind) String() string {
	if s, ok := aggKindStrings[k]; ok {
		return s
	}
	return fmt.Sprintf("AggKind(%d)", k)
}

// ParseAggKind returns the aggregation named s.
func ParseAggKind(s string) (AggKind, error) {
	for k, name := range aggKindStrings {
		if k != AggInvalid && name == s {
			return k, nil
		}
	}
	return AggInvalid, fmt.Errorf("unknown aggregation %q", s)
}
