package types

import "fmt"

// JoinType is the kind of relational join.
type JoinType int

// Recognized values of [JoinType].
const (
	JoinTypeInner JoinType = iota
	JoinTypeLeft
	JoinTypeFull
	JoinTypeCross
	JoinTypeSemi
	JoinTypeAnti
	JoinTypeAsOf
)

var joinTypeStrings = map[JoinType]string{
	JoinTypeInner: "inner",
	JoinTypeLeft:  "left",
	JoinTypeFull:  "full",
	JoinTypeCross: "cross",
	JoinTypeSemi:  "semi",
	JoinTypeAnti:  "anti",
	JoinTypeAsOf:  "asof",
}

func (t JoinType) String() string {
	if s, ok := joinTypeStrings[t]; ok {
		return s
	}
	return fmt.Sprintf("JoinType(%d)", t)
}

// ParseJoinType returns the join type named s. "outer" is accepted as an
// alias of "full".
func ParseJoinType(s string) (JoinType, error) {
	if s == "outer" {
		return JoinTypeFull, nil
	}
	for t, name := range joinTypeStrings {
		if name == s {
			return t, nil
		}
	}
	return JoinTypeInner, fmt.Errorf("unknown join type %q", s)
}

// ProducesNulls reports which sides of the join output can contain nulls
// introduced by the join itself, as opposed to nulls already present in
// the inputs.
func (t JoinType) ProducesNulls() (left, right bool) {
	switch t {
	case JoinTypeLeft:
		return false, true
	case JoinTypeFull, JoinTypeCross, JoinTypeAsOf:
		return true, true
	default:
		return false, false
	}
}

// PreservesLeft returns true if every left row appears in the output at
// least once regardless of the right input.
func (t JoinType) PreservesLeft() bool {
	return t == JoinTypeLeft || t == JoinTypeFull || t == JoinTypeAsOf
}

// OutputsRight returns true if right columns are part of the join output.
func (t JoinType) OutputsRight() bool {
	return t != JoinTypeSemi && t != JoinTypeAnti
}
