package types

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/grafana/lazyframe/pkg/engine/internal/datatype"
)

func TestJoinType_ProducesNulls(t *testing.T) {
	tests := []struct {
		join        JoinType
		left, right bool
	}{
		{join: JoinTypeInner, left: false, right: false},
		{join: JoinTypeLeft, left: false, right: true},
		{join: JoinTypeFull, left: true, right: true},
		{join: JoinTypeCross, left: true, right: true},
		{join: JoinTypeSemi, left: false, right: false},
		{join: JoinTypeAnti, left: false, right: false},
		{join: JoinTypeAsOf, left: true, right: true},
	}
	for _, tt := range tests {
		t.Run(tt.join.String(), func(t *testing.T) {
			left, right := tt.join.ProducesNulls()
			require.Equal(t, tt.left, left)
			require.Equal(t, tt.right, right)
		})
	}
}

func TestLiteral_Cast(t *testing.T) {
	lit, err := NewLiteral(3).Cast(datatype.Arrow.Float64)
	require.NoError(t, err)
	require.Equal(t, float64(3), lit.Value)
	require.True(t, lit.IsScalar())

	lit, err = NewSeries(datatype.Arrow.Int64, 1, nil, 3).Cast(datatype.Arrow.Int32)
	require.NoError(t, err)
	require.False(t, lit.IsScalar())
	require.Equal(t, []any{int32(1), nil, int32(3)}, lit.Series)

	_, err = NewLiteral(int64(-1)).Cast(datatype.Arrow.Uint32)
	require.Error(t, err)
}

func TestSliceBounds(t *testing.T) {
	tests := []struct {
		offset     int64
		length     uint64
		n          int
		start, end int
	}{
		{offset: 0, length: 5, n: 10, start: 0, end: 5},
		{offset: 8, length: 5, n: 10, start: 8, end: 10},
		{offset: 12, length: 5, n: 10, start: 10, end: 10},
		{offset: -3, length: 2, n: 10, start: 7, end: 9},
		{offset: -30, length: 2, n: 10, start: 0, end: 2},
	}
	for _, tt := range tests {
		start, end := SliceBounds(tt.offset, tt.length, tt.n)
		require.Equal(t, tt.start, start)
		require.Equal(t, tt.end, end)
	}
}
