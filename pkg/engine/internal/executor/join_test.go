package executor

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/grafana/lazyframe/pkg/engine/internal/errors"
	"github.com/grafana/lazyframe/pkg/engine/internal/planner/logical"
	"github.com/grafana/lazyframe/pkg/engine/internal/types"
)

var (
	usersSchema = logical.NewSchema(
		logical.Field{Name: "id", Type: i64},
		logical.Field{Name: "name", Type: str},
	)
	usersRows = [][]any{
		{int64(1), "a"},
		{int64(2), "b"},
		{int64(3), "c"},
		{nil, "d"},
	}

	ordersSchema = logical.NewSchema(
		logical.Field{Name: "id", Type: i64},
		logical.Field{Name: "amount", Type: f64},
	)
	ordersRows = [][]any{
		{int64(1), 10.0},
		{int64(1), 15.0},
		{int64(3), 7.5},
		{int64(5), 1.0},
		{nil, 2.0},
	}
)

func TestJoin(t *testing.T) {
	onID := []logical.Expr{logical.Col("id")}

	tt := []struct {
		how   types.JoinType
		on    []logical.Expr
		names []string
		want  [][]any
	}{
		{
			how:   types.JoinTypeInner,
			on:    onID,
			names: []string{"id", "name", "amount"},
			want: [][]any{
				{int64(1), "a", 10.0},
				{int64(1), "a", 15.0},
				{int64(3), "c", 7.5},
			},
		},
		{
			how:   types.JoinTypeLeft,
			on:    onID,
			names: []string{"id", "name", "amount"},
			want: [][]any{
				{int64(1), "a", 10.0},
				{int64(1), "a", 15.0},
				{int64(2), "b", nil},
				{int64(3), "c", 7.5},
				{nil, "d", nil},
			},
		},
		{
			how:   types.JoinTypeFull,
			on:    onID,
			names: []string{"id", "name", "id_right", "amount"},
			want: [][]any{
				{int64(1), "a", int64(1), 10.0},
				{int64(1), "a", int64(1), 15.0},
				{int64(2), "b", nil, nil},
				{int64(3), "c", int64(3), 7.5},
				{nil, "d", nil, nil},
				{nil, nil, int64(5), 1.0},
				{nil, nil, nil, 2.0},
			},
		},
		{
			how:   types.JoinTypeSemi,
			on:    onID,
			names: []string{"id", "name"},
			want:  [][]any{{int64(1), "a"}, {int64(3), "c"}},
		},
		{
			how:   types.JoinTypeAnti,
			on:    onID,
			names: []string{"id", "name"},
			want:  [][]any{{int64(2), "b"}, {nil, "d"}},
		},
	}
	for _, tc := range tt {
		t.Run(tc.how.String(), func(t *testing.T) {
			plan := logical.NewPlan()
			users := logical.FromRecord(plan, makeRecord(t, usersSchema, usersRows...))
			orders := logical.FromRecord(plan, makeRecord(t, ordersSchema, ordersRows...))
			users.Join(orders, tc.on, tc.on, tc.how).Build()

			res := execute(t, plan)
			require.Equal(t, tc.names, res.names())
			require.Equal(t, tc.want, res.rows)
		})
	}

	t.Run("cross", func(t *testing.T) {
		plan := logical.NewPlan()
		users := logical.FromRecord(plan, makeRecord(t, usersSchema, usersRows[:2]...))
		orders := logical.FromRecord(plan, makeRecord(t, ordersSchema, ordersRows[:2]...))
		users.Join(orders, nil, nil, types.JoinTypeCross).Build()

		res := execute(t, plan)
		require.Equal(t, []string{"id", "name", "id_right", "amount"}, res.names())
		require.Equal(t, [][]any{
			{int64(1), "a", int64(1), 10.0},
			{int64(1), "a", int64(1), 15.0},
			{int64(2), "b", int64(1), 10.0},
			{int64(2), "b", int64(1), 15.0},
		}, res.rows)
	})

	t.Run("asof", func(t *testing.T) {
		plan := logical.NewPlan()
		left := logical.FromRecord(plan, makeRecord(t,
			logical.NewSchema(logical.Field{Name: "t", Type: i64}),
			[]any{int64(1)}, []any{int64(5)}, []any{int64(10)},
		))
		right := logical.FromRecord(plan, makeRecord(t,
			logical.NewSchema(logical.Field{Name: "t", Type: i64}, logical.Field{Name: "v", Type: str}),
			[]any{int64(9), "z"}, []any{int64(2), "x"}, []any{int64(4), "y"},
		))
		on := []logical.Expr{logical.Col("t")}
		left.Join(right, on, on, types.JoinTypeAsOf).Build()

		res := execute(t, plan)
		require.Equal(t, []string{"t", "v"}, res.names())
		require.Equal(t, [][]any{{int64(1), nil}, {int64(5), "y"}, {int64(10), "z"}}, res.rows)
	})

	t.Run("asof on several keys", func(t *testing.T) {
		plan := logical.NewPlan()
		users := logical.FromRecord(plan, makeRecord(t, usersSchema, usersRows...))
		orders := logical.FromRecord(plan, makeRecord(t, ordersSchema, ordersRows...))
		on := []logical.Expr{logical.Col("id"), logical.Col("id")}
		users.Join(orders, on, on, types.JoinTypeAsOf).Build()

		_, err := Build(plan, plan.Root)
		require.ErrorIs(t, err, errors.ErrNotImplemented)
	})
}
