package datatype

import (
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/stretchr/testify/require"
)

func TestSupertype(t *testing.T) {
	tests := []struct {
		a, b   arrow.DataType
		expect arrow.DataType
	}{
		{a: Arrow.Int64, b: Arrow.Int64, expect: Arrow.Int64},
		{a: Arrow.Null, b: Arrow.String, expect: Arrow.String},
		{a: Arrow.Int32, b: Arrow.Int64, expect: Arrow.Int64},
		{a: Arrow.Uint32, b: Arrow.Uint64, expect: Arrow.Uint64},
		{a: Arrow.Int32, b: Arrow.Uint32, expect: Arrow.Int64},
		{a: Arrow.Uint32, b: Arrow.Int64, expect: Arrow.Int64},
		{a: Arrow.Int64, b: Arrow.Uint64, expect: Arrow.Float64},
		{a: Arrow.Int64, b: Arrow.Float64, expect: Arrow.Float64},
		{a: Arrow.Bool, b: Arrow.Int32, expect: Arrow.Int32},
		{a: arrow.ListOf(Arrow.Int32), b: arrow.ListOf(Arrow.Int64), expect: arrow.ListOf(Arrow.Int64)},
	}
	for _, tt := range tests {
		t.Run(Name(tt.a)+"+"+Name(tt.b), func(t *testing.T) {
			actual, ok := Supertype(tt.a, tt.b)
			require.True(t, ok)
			require.True(t, Equal(tt.expect, actual), "expected %s, got %s", tt.expect, actual)

			swapped, ok := Supertype(tt.b, tt.a)
			require.True(t, ok)
			require.True(t, Equal(actual, swapped))
		})
	}

	_, ok := Supertype(Arrow.String, Arrow.Int64)
	require.False(t, ok)
}

func TestParse(t *testing.T) {
	for _, name := range []string{"bool", "int32", "int64", "uint32", "uint64", "float64", "str", "list[int64]", "list[list[str]]"} {
		dt, err := Parse(name)
		require.NoError(t, err)
		require.Equal(t, name, Name(dt))
	}
	_, err := Parse("decimal")
	require.Error(t, err)
}
