package executor

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/grafana/lazyframe/pkg/engine/internal/errors"
	"github.com/grafana/lazyframe/pkg/engine/internal/planner/logical"
	"github.com/grafana/lazyframe/pkg/engine/internal/types"
)

func TestExpressions(t *testing.T) {
	age, dept, name := logical.Col("age"), logical.Col("dept"), logical.Col("name")

	tt := []struct {
		name string
		expr logical.Expr
		want []any
	}{
		{
			name: "when then otherwise",
			expr: logical.When(age.Gt(logical.Lit(30))).Then(logical.Lit("senior")).Otherwise(logical.Lit("junior")),
			want: []any{"junior", "junior", "junior", "senior", "senior"},
		},
		{
			name: "fill null",
			expr: age.FillNull(logical.Lit(0)),
			want: []any{int64(30), int64(25), int64(0), int64(41), int64(35)},
		},
		{
			name: "is in",
			expr: dept.IsIn(logical.LitSeries(str, "eng", "hr")),
			want: []any{true, false, true, false, true},
		},
		{
			name: "is null",
			expr: age.IsNull(),
			want: []any{false, false, true, false, false},
		},
		{
			name: "is unique",
			expr: dept.IsUnique(),
			want: []any{false, false, false, false, true},
		},
		{
			name: "is duplicated",
			expr: dept.IsDuplicated(),
			want: []any{true, true, true, true, false},
		},
		{
			name: "is first distinct",
			expr: dept.IsFirstDistinct(),
			want: []any{true, true, false, false, true},
		},
		{
			name: "window",
			expr: age.Sum().Over(dept),
			want: []any{int64(30), int64(66), int64(30), int64(66), int64(35)},
		},
		{
			name: "not",
			expr: age.Gt(logical.Lit(30)).Not(),
			want: []any{true, true, nil, false, false},
		},
		{
			name: "kleene and",
			expr: age.Gt(logical.Lit(20)).And(dept.Eq(logical.Lit("eng"))),
			want: []any{true, false, nil, false, false},
		},
		{
			name: "kleene or",
			expr: age.Gt(logical.Lit(40)).Or(dept.Eq(logical.Lit("eng"))),
			want: []any{true, false, true, true, false},
		},
		{
			name: "abs",
			expr: age.Sub(logical.Lit(30)).Abs(),
			want: []any{int64(0), int64(5), nil, int64(11), int64(5)},
		},
		{
			name: "divide",
			expr: age.Div(logical.Lit(2)),
			want: []any{15.0, 12.5, nil, 20.5, 17.5},
		},
		{
			name: "cast",
			expr: age.Cast(f64),
			want: []any{30.0, 25.0, nil, 41.0, 35.0},
		},
		{
			name: "lenient cast",
			expr: name.Cast(i64),
			want: []any{nil, nil, nil, nil, nil},
		},
		{
			name: "fused multiply add",
			expr: age.Function(types.FunctionFusedMultiplyAdd, logical.Lit(2), logical.Lit(3)),
			want: []any{int64(36), int64(31), nil, int64(47), int64(41)},
		},
		{
			name: "sort",
			expr: age.Sort(false, true),
			want: []any{int64(25), int64(30), int64(35), int64(41), nil},
		},
		{
			name: "slice",
			expr: name.Slice(1, 2),
			want: []any{"bob", "carol"},
		},
	}
	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			plan := logical.NewPlan()
			people(t, plan).Select(tc.expr.Alias("out")).Build()
			require.Equal(t, tc.want, execute(t, plan).column("out"))
		})
	}

	t.Run("strict cast", func(t *testing.T) {
		plan := logical.NewPlan()
		people(t, plan).Select(name.StrictCast(i64)).Build()
		_, err := tryExecute(t, plan, Config{})
		require.ErrorIs(t, err, errors.ErrCompute)
	})

	t.Run("mismatched heights", func(t *testing.T) {
		plan := logical.NewPlan()
		people(t, plan).Select(name, name.Slice(0, 2).Alias("short")).Build()
		_, err := tryExecute(t, plan, Config{})
		require.ErrorIs(t, err, errors.ErrCompute)
	})
}

func TestCompareValues(t *testing.T) {
	tt := []struct {
		a, b       any
		descending bool
		nullsLast  bool
		want       int
	}{
		{a: int64(1), b: int64(2), want: -1},
		{a: int64(1), b: int64(2), descending: true, want: 1},
		{a: nil, b: int64(2), want: -1},
		{a: nil, b: int64(2), descending: true, want: -1},
		{a: nil, b: int64(2), nullsLast: true, want: 1},
		{a: nil, b: int64(2), descending: true, nullsLast: true, want: 1},
		{a: nil, b: nil, want: 0},
		{a: "b", b: "a", want: 1},
	}
	for _, tc := range tt {
		require.Equal(t, tc.want, compareValues(tc.a, tc.b, tc.descending, tc.nullsLast), "%v vs %v", tc.a, tc.b)
	}
}
