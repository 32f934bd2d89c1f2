package optimizer

import (
	"testing"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/require"

	"github.com/grafana/lazyframe/pkg/engine/internal/datatype"
	"github.com/grafana/lazyframe/pkg/engine/internal/errors"
	"github.com/grafana/lazyframe/pkg/engine/internal/planner/logical"
	"github.com/grafana/lazyframe/pkg/engine/internal/types"
)

func usersSchema() *logical.Schema {
	return logical.NewSchema(
		logical.Field{Name: "id", Type: datatype.Arrow.Int64},
		logical.Field{Name: "name", Type: datatype.Arrow.String},
		logical.Field{Name: "age", Type: datatype.Arrow.Int32},
	)
}

func ordersSchema() *logical.Schema {
	return logical.NewSchema(
		logical.Field{Name: "id", Type: datatype.Arrow.Int64},
		logical.Field{Name: "user_id", Type: datatype.Arrow.Int64},
		logical.Field{Name: "amount", Type: datatype.Arrow.Float64},
	)
}

func floatsSchema() *logical.Schema {
	return logical.NewSchema(
		logical.Field{Name: "a", Type: datatype.Arrow.Float64},
		logical.Field{Name: "b", Type: datatype.Arrow.Float64},
		logical.Field{Name: "c", Type: datatype.Arrow.Float64},
	)
}

func config(flags Flags) Config {
	return Config{Flags: flags, MaxIterations: 10, VerifySchema: true}
}

// optimize runs the optimizer over plan and returns the printed result.
func optimize(t *testing.T, plan *logical.Plan, flags Flags) string {
	t.Helper()
	_, err := Optimize(plan, config(flags), log.NewNopLogger())
	require.NoError(t, err)
	return "\n" + logical.PrintAsTree(plan)
}

func TestOptimize(t *testing.T) {
	t.Run("default flags", func(t *testing.T) {
		plan := logical.NewPlan()
		logical.ScanCSV(plan, usersSchema(), true, "users.csv").
			Filter(logical.Col("age").Gt(logical.Lit(18))).
			Select(logical.Col("name")).
			Build()

		expected := `
SimpleProjection columns=(name)
└── Scan format=csv sources=(users.csv) projection=(name, age) predicate[0]=(col("age") > 18)
`
		require.Equal(t, expected, optimize(t, plan, DefaultFlags()))
	})

	t.Run("idempotent", func(t *testing.T) {
		tt := []struct {
			name  string
			build func(plan *logical.Plan)
		}{
			{
				name: "join",
				build: func(plan *logical.Plan) {
					users := logical.ScanCSV(plan, usersSchema(), true, "users.csv")
					orders := logical.ScanCSV(plan, ordersSchema(), true, "orders.csv")
					users.
						Join(orders, []logical.Expr{logical.Col("id")}, []logical.Expr{logical.Col("user_id")}, types.JoinTypeInner).
						Filter(logical.Col("amount").Gt(logical.Lit(10.5)).And(logical.Col("age").Lt(logical.Lit(65)))).
						Select(logical.Col("name"), logical.Col("amount")).
						Slice(0, 10).
						Build()
				},
			},
			{
				name: "nested slices",
				build: func(plan *logical.Plan) {
					logical.ScanCSV(plan, usersSchema(), true, "users.csv").Slice(1, 10).Slice(2, 3).Build()
				},
			},
			{
				name: "head of shared subplans",
				build: func(plan *logical.Plan) {
					users := logical.ScanCSV(plan, usersSchema(), true, "users.csv")
					logical.Concat(
						users.Select(logical.Col("id")),
						users.Select(logical.Col("id")),
						logical.ScanCSV(plan, usersSchema(), true, "users.csv").Select(logical.Col("id")),
					).Head(2).Build()
				},
			},
		}
		for _, tc := range tt {
			t.Run(tc.name, func(t *testing.T) {
				plan := logical.NewPlan()
				tc.build(plan)

				first := optimize(t, plan, DefaultFlags())
				second := optimize(t, plan, DefaultFlags())
				require.Equal(t, first, second)
			})
		}
	})

	t.Run("nested slices are composed in one run", func(t *testing.T) {
		plan := logical.NewPlan()
		logical.ScanCSV(plan, usersSchema(), true, "users.csv").Slice(1, 10).Slice(2, 3).Build()

		expected := `
Scan format=csv sources=(users.csv) slice=(3, 3)
`
		require.Equal(t, expected, optimize(t, plan, DefaultFlags()))
	})

	t.Run("preserves schema", func(t *testing.T) {
		plan := logical.NewPlan()
		users := logical.ScanCSV(plan, usersSchema(), true, "users.csv")
		orders := logical.ScanCSV(plan, ordersSchema(), true, "orders.csv")
		users.
			Join(orders, []logical.Expr{logical.Col("id")}, []logical.Expr{logical.Col("user_id")}, types.JoinTypeLeft).
			WithColumns(logical.Col("amount").Mul(logical.Lit(2)).Alias("double"), logical.Lit(true).And(logical.Col("age").Gt(logical.Lit(1))).Alias("adult")).
			GroupBy(logical.Col("name")).
			Agg(logical.Col("double").Sum(), logical.Col("id_right").Count()).
			Sort([]logical.Expr{logical.Col("name")}, logical.SortOptions{}).
			Build()

		before, err := plan.Schema(plan.Root)
		require.NoError(t, err)

		root, err := Optimize(plan, DefaultConfig(), log.NewNopLogger())
		require.NoError(t, err)
		after, err := plan.Schema(root)
		require.NoError(t, err)
		require.True(t, before.Equal(after), "before %s, after %s", before, after)
	})

	t.Run("invalid plan", func(t *testing.T) {
		plan := logical.NewPlan()
		logical.ScanCSV(plan, usersSchema(), true, "users.csv").Select(logical.Col("missing")).Build()

		_, err := Optimize(plan, DefaultConfig(), nil)
		require.ErrorIs(t, err, errors.ErrColumnNotFound)
	})

	t.Run("type error", func(t *testing.T) {
		plan := logical.NewPlan()
		logical.ScanCSV(plan, usersSchema(), true, "users.csv").Filter(logical.Col("name").Gt(logical.Lit(1))).Build()
		root := plan.Root

		_, err := Optimize(plan, DefaultConfig(), nil)
		require.ErrorIs(t, err, errors.ErrType)
		require.Equal(t, root, plan.Root)
	})
}

func TestUnshare(t *testing.T) {
	plan := logical.NewPlan()
	shared := logical.ScanCSV(plan, usersSchema(), true, "users.csv").Filter(logical.Col("age").Gt(logical.Lit(18)))
	logical.Concat(shared, shared).Build()

	root := unshare(plan, plan.Root)
	union := plan.Node(root).(*logical.Union)
	require.Len(t, union.Inputs, 2)
	require.NotEqual(t, union.Inputs[0], union.Inputs[1])
	require.True(t, plan.NodeEqual(union.Inputs[0], union.Inputs[1]))

	first := plan.Node(union.Inputs[0]).(*logical.Filter)
	second := plan.Node(union.Inputs[1]).(*logical.Filter)
	require.NotEqual(t, first.Input, second.Input)
	require.NotEqual(t, first.Predicate, second.Predicate)
}

func TestUnshare_KeepsCacheInputShared(t *testing.T) {
	plan := logical.NewPlan()
	cached := logical.ScanCSV(plan, usersSchema(), true, "users.csv").Cache()
	logical.Concat(cached, cached).Build()

	root := unshare(plan, plan.Root)
	union := plan.Node(root).(*logical.Union)
	first := plan.Node(union.Inputs[0]).(*logical.Cache)
	second := plan.Node(union.Inputs[1]).(*logical.Cache)
	require.NotEqual(t, union.Inputs[0], union.Inputs[1])
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, first.Input, second.Input)
}
