package optimizer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/grafana/lazyframe/pkg/engine/internal/datatype"
	"github.com/grafana/lazyframe/pkg/engine/internal/planner/logical"
	"github.com/grafana/lazyframe/pkg/engine/internal/types"
)

func TestProjectionPushdown(t *testing.T) {
	flags := Flags{ProjectionPushdown: true}

	t.Run("filter columns are read", func(t *testing.T) {
		plan := logical.NewPlan()
		logical.ScanCSV(plan, usersSchema(), true, "users.csv").
			Filter(logical.Col("age").Gt(logical.Lit(18))).
			Select(logical.Col("name")).
			Build()

		expected := `
Select exprs=(col("name"))
└── SimpleProjection columns=(name)
    └── Filter predicate=(col("age") > 18)
        └── Scan format=csv sources=(users.csv) projection=(name, age)
`
		require.Equal(t, expected, optimize(t, plan, flags))
	})

	t.Run("suffixed join column keeps its left twin", func(t *testing.T) {
		plan := logical.NewPlan()
		users := logical.ScanCSV(plan, usersSchema(), true, "users.csv")
		orders := logical.ScanCSV(plan, ordersSchema(), true, "orders.csv")
		users.
			Join(orders, []logical.Expr{logical.Col("id")}, []logical.Expr{logical.Col("user_id")}, types.JoinTypeInner).
			Select(logical.Col("id_right")).
			Build()

		expected := `
Select exprs=(col("id_right"))
└── SimpleProjection columns=(id_right)
    └── Join type=inner left_on=(col("id")) right_on=(col("user_id"))
        ├── Scan format=csv sources=(users.csv) projection=(id)
        └── Scan format=csv sources=(orders.csv) projection=(id, user_id)
`
		require.Equal(t, expected, optimize(t, plan, flags))
	})

	t.Run("unused expressions are dropped", func(t *testing.T) {
		plan := logical.NewPlan()
		logical.ScanCSV(plan, usersSchema(), true, "users.csv").
			WithColumns(logical.Col("age").Add(logical.Lit(1)).Alias("next"), logical.Col("id").IsNull().Alias("missing")).
			Select(logical.Col("next")).
			Build()

		expected := `
Select exprs=(col("next"))
└── SimpleProjection columns=(next)
    └── HStack exprs=((col("age") + 1).alias("next"))
        └── Scan format=csv sources=(users.csv) projection=(age)
`
		require.Equal(t, expected, optimize(t, plan, flags))
	})

	t.Run("aggregate reads its inputs", func(t *testing.T) {
		plan := logical.NewPlan()
		logical.ScanCSV(plan, ordersSchema(), true, "orders.csv").
			GroupBy(logical.Col("user_id")).
			Agg(logical.Col("amount").Sum()).
			Build()

		expected := `
Aggregate keys=(col("user_id")) aggs=(col("amount").sum())
└── Scan format=csv sources=(orders.csv) projection=(user_id, amount)
`
		require.Equal(t, expected, optimize(t, plan, flags))
	})

	t.Run("distinct without subset needs every column", func(t *testing.T) {
		plan := logical.NewPlan()
		logical.ScanCSV(plan, usersSchema(), true, "users.csv").
			Unique(nil, logical.DistinctKeepAny, false).
			Select(logical.Col("name")).
			Build()

		expected := `
Select exprs=(col("name"))
└── SimpleProjection columns=(name)
    └── Distinct keep=any
        └── Scan format=csv sources=(users.csv)
`
		require.Equal(t, expected, optimize(t, plan, flags))
	})
}

func TestPredicatePushdown(t *testing.T) {
	flags := Flags{PredicatePushdown: true}

	join := func(plan *logical.Plan, how types.JoinType) logical.Builder {
		users := logical.ScanCSV(plan, usersSchema(), true, "users.csv")
		orders := logical.ScanCSV(plan, ordersSchema(), true, "orders.csv")
		return users.Join(orders, []logical.Expr{logical.Col("id")}, []logical.Expr{logical.Col("user_id")}, how)
	}

	t.Run("left join keeps right predicates above the join", func(t *testing.T) {
		plan := logical.NewPlan()
		join(plan, types.JoinTypeLeft).
			Filter(logical.Col("amount").Gt(logical.Lit(10.5)).And(logical.Col("age").Gt(logical.Lit(30)))).
			Build()

		expected := `
Filter predicate=(col("amount") > 10.5)
└── Join type=left left_on=(col("id")) right_on=(col("user_id"))
    ├── Scan format=csv sources=(users.csv) predicate[0]=(col("age") > 30)
    └── Scan format=csv sources=(orders.csv)
`
		require.Equal(t, expected, optimize(t, plan, flags))
	})

	t.Run("inner join pushes both sides and copies key predicates", func(t *testing.T) {
		plan := logical.NewPlan()
		join(plan, types.JoinTypeInner).
			Filter(logical.Col("amount").Gt(logical.Lit(10.5)).And(logical.Col("id").Gt(logical.Lit(5)))).
			Build()

		expected := `
Join type=inner left_on=(col("id")) right_on=(col("user_id"))
├── Scan format=csv sources=(users.csv) predicate[0]=(col("id") > 5)
└── Scan format=csv sources=(orders.csv) predicate[0]=(col("amount") > 10.5) predicate[1]=(col("user_id") > 5)
`
		require.Equal(t, expected, optimize(t, plan, flags))
	})

	t.Run("full join keeps every predicate", func(t *testing.T) {
		plan := logical.NewPlan()
		join(plan, types.JoinTypeFull).
			Filter(logical.Col("age").Gt(logical.Lit(30))).
			Build()

		expected := `
Filter predicate=(col("age") > 30)
└── Join type=full left_on=(col("id")) right_on=(col("user_id"))
    ├── Scan format=csv sources=(users.csv)
    └── Scan format=csv sources=(orders.csv)
`
		require.Equal(t, expected, optimize(t, plan, flags))
	})

	t.Run("row dependent filters are barriers", func(t *testing.T) {
		plan := logical.NewPlan()
		logical.ScanCSV(plan, usersSchema(), true, "users.csv").
			Filter(logical.Col("name").IsUnique()).
			Filter(logical.Col("age").Gt(logical.Lit(30))).
			Build()

		expected := `
Filter predicate=(col("age") > 30)
└── Filter predicate=col("name").is_unique()
    └── Scan format=csv sources=(users.csv)
`
		require.Equal(t, expected, optimize(t, plan, flags))
	})

	t.Run("aliases are resolved", func(t *testing.T) {
		plan := logical.NewPlan()
		logical.ScanCSV(plan, usersSchema(), true, "users.csv").
			Select(logical.Col("age").Alias("years"), logical.Col("age").Add(logical.Lit(1)).Alias("next")).
			Filter(logical.Col("years").Gt(logical.Lit(30)).And(logical.Col("next").Lt(logical.Lit(60)))).
			Build()

		expected := `
Filter predicate=(col("next") < 60)
└── Select exprs=(col("age").alias("years"), (col("age") + 1).alias("next"))
    └── Scan format=csv sources=(users.csv) predicate[0]=(col("age") > 30)
`
		require.Equal(t, expected, optimize(t, plan, flags))
	})

	t.Run("sliced scans keep predicates above", func(t *testing.T) {
		plan := logical.NewPlan()
		logical.NewBuilder(plan, &logical.Scan{
			Sources:    []string{"users.csv"},
			FileSchema: usersSchema(),
			Slice:      &logical.SliceOptions{Len: 5},
		}).Filter(logical.Col("age").Gt(logical.Lit(30))).Build()

		expected := `
Filter predicate=(col("age") > 30)
└── Scan format=csv sources=(users.csv) slice=(0, 5)
`
		require.Equal(t, expected, optimize(t, plan, flags))
	})

	t.Run("union branches", func(t *testing.T) {
		plan := logical.NewPlan()
		logical.Concat(
			logical.ScanCSV(plan, usersSchema(), true, "a.csv"),
			logical.ScanCSV(plan, usersSchema(), true, "b.csv"),
		).Filter(logical.Col("age").Gt(logical.Lit(30))).Build()

		expected := `
Union
├── Scan format=csv sources=(a.csv) predicate[0]=(col("age") > 30)
└── Scan format=csv sources=(b.csv) predicate[0]=(col("age") > 30)
`
		require.Equal(t, expected, optimize(t, plan, flags))
	})
}

func TestBlocksJoin(t *testing.T) {
	tests := []struct {
		name       string
		how        types.JoinType
		predicate  logical.Expr
		blockLeft  bool
		blockRight bool
	}{
		{"inequality", types.JoinTypeLeft, logical.Col("amount").Gt(logical.Lit(1)), false, false},
		{"null test on left join", types.JoinTypeLeft, logical.Col("amount").IsNull(), false, true},
		{"null test on inner join", types.JoinTypeInner, logical.Col("amount").IsNull(), false, false},
		{"duplicates", types.JoinTypeInner, logical.Col("name").IsDuplicated(), true, true},
		{"equality on key", types.JoinTypeLeft, logical.Col("id").Eq(logical.Lit(1)), false, false},
		{"equality off key", types.JoinTypeLeft, logical.Col("name").Eq(logical.Lit("a")), false, true},
		{"equality on full join", types.JoinTypeFull, logical.Col("name").Eq(logical.Lit("a")), true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := logical.NewPlan()
			users := logical.ScanCSV(plan, usersSchema(), true, "users.csv")
			orders := logical.ScanCSV(plan, ordersSchema(), true, "orders.csv")
			users.Join(orders, []logical.Expr{logical.Col("id")}, []logical.Expr{logical.Col("user_id")}, tt.how).Build()
			n := plan.Node(plan.Root).(*logical.Join)

			left, err := plan.Schema(n.Left)
			require.NoError(t, err)
			right, err := plan.Schema(n.Right)
			require.NoError(t, err)

			pd := newPredicatePushdown(plan)
			blockLeft, blockRight := pd.blocksJoin(tt.predicate.Node(plan), n, left, right)
			require.Equal(t, tt.blockLeft, blockLeft, "left")
			require.Equal(t, tt.blockRight, blockRight, "right")
		})
	}
}

func TestSlicePushdown(t *testing.T) {
	flags := Flags{SlicePushdown: true}

	t.Run("merges slices at offset zero", func(t *testing.T) {
		plan := logical.NewPlan()
		logical.ScanCSV(plan, usersSchema(), true, "users.csv").Slice(0, 10).Slice(0, 5).Build()

		expected := `
Scan format=csv sources=(users.csv) slice=(0, 5)
`
		require.Equal(t, expected, optimize(t, plan, flags))
	})

	t.Run("composes slices with offsets", func(t *testing.T) {
		plan := logical.NewPlan()
		logical.ScanCSV(plan, usersSchema(), true, "users.csv").Slice(2, 10).Slice(1, 3).Build()

		expected := `
Scan format=csv sources=(users.csv) slice=(3, 3)
`
		require.Equal(t, expected, optimize(t, plan, flags))
	})

	t.Run("composes past the end of the inner slice", func(t *testing.T) {
		plan := logical.NewPlan()
		logical.ScanCSV(plan, usersSchema(), true, "users.csv").Slice(2, 3).Slice(5, 4).Build()

		expected := `
Scan format=csv sources=(users.csv) slice=(5, 0)
`
		require.Equal(t, expected, optimize(t, plan, flags))
	})

	t.Run("keeps outer slice above negative offsets", func(t *testing.T) {
		plan := logical.NewPlan()
		logical.ScanCSV(plan, usersSchema(), true, "users.csv").Slice(-5, 5).Slice(1, 2).Build()

		expected := `
Slice offset=1 len=2
└── Slice offset=-5 len=5
    └── Scan format=csv sources=(users.csv)
`
		require.Equal(t, expected, optimize(t, plan, flags))
	})

	t.Run("elementwise projection", func(t *testing.T) {
		plan := logical.NewPlan()
		logical.ScanCSV(plan, usersSchema(), true, "users.csv").
			Select(logical.Col("age").Add(logical.Lit(1)).Alias("next")).
			Slice(0, 5).
			Build()

		expected := `
Select exprs=((col("age") + 1).alias("next"))
└── Scan format=csv sources=(users.csv) slice=(0, 5)
`
		require.Equal(t, expected, optimize(t, plan, flags))
	})

	t.Run("series literals are not sliced early", func(t *testing.T) {
		plan := logical.NewPlan()
		logical.ScanCSV(plan, usersSchema(), true, "users.csv").
			Select(logical.LitSeries(datatype.Arrow.Int64, 1, 2, 3).Alias("c")).
			Slice(0, 0).
			Build()

		expected := `
Slice offset=0 len=0
└── Select exprs=([1, 2, 3].alias("c"))
    └── Scan format=csv sources=(users.csv)
`
		require.Equal(t, expected, optimize(t, plan, flags))
	})

	t.Run("anchored in aggregate", func(t *testing.T) {
		plan := logical.NewPlan()
		logical.ScanCSV(plan, ordersSchema(), true, "orders.csv").
			GroupBy(logical.Col("user_id")).
			Agg(logical.Col("amount").Sum()).
			Slice(0, 3).
			Build()

		expected := `
Aggregate keys=(col("user_id")) aggs=(col("amount").sum()) slice=(0, 3)
└── Scan format=csv sources=(orders.csv)
`
		require.Equal(t, expected, optimize(t, plan, flags))
	})

	t.Run("anchored above filters", func(t *testing.T) {
		plan := logical.NewPlan()
		logical.ScanCSV(plan, usersSchema(), true, "users.csv").
			Filter(logical.Col("age").Gt(logical.Lit(1))).
			Slice(0, 5).
			Build()

		expected := `
Slice offset=0 len=5
└── Filter predicate=(col("age") > 1)
    └── Scan format=csv sources=(users.csv)
`
		require.Equal(t, expected, optimize(t, plan, flags))
	})

	t.Run("union branches at offset zero", func(t *testing.T) {
		plan := logical.NewPlan()
		logical.Concat(
			logical.ScanCSV(plan, usersSchema(), true, "a.csv"),
			logical.ScanCSV(plan, usersSchema(), true, "b.csv"),
		).Head(4).Build()

		expected := `
Union slice=(0, 4)
├── Scan format=csv sources=(a.csv) slice=(0, 4)
└── Scan format=csv sources=(b.csv) slice=(0, 4)
`
		require.Equal(t, expected, optimize(t, plan, flags))
	})

	t.Run("streaming joins keep a slice node", func(t *testing.T) {
		plan := logical.NewPlan()
		users := logical.ScanCSV(plan, usersSchema(), true, "users.csv")
		orders := logical.ScanCSV(plan, ordersSchema(), true, "orders.csv")
		users.Join(orders, []logical.Expr{logical.Col("id")}, []logical.Expr{logical.Col("user_id")}, types.JoinTypeInner).
			Head(2).
			Build()

		expected := `
Slice offset=0 len=2
└── Join type=inner left_on=(col("id")) right_on=(col("user_id"))
    ├── Scan format=csv sources=(users.csv)
    └── Scan format=csv sources=(orders.csv)
`
		require.Equal(t, expected, optimize(t, plan, Flags{SlicePushdown: true, Streaming: true}))
	})
}

func TestComposeSlices(t *testing.T) {
	tests := []struct {
		inner, outer, want logical.SliceOptions
	}{
		{inner: logical.SliceOptions{Offset: 0, Len: 10}, outer: logical.SliceOptions{Offset: 0, Len: 5}, want: logical.SliceOptions{Offset: 0, Len: 5}},
		{inner: logical.SliceOptions{Offset: 2, Len: 10}, outer: logical.SliceOptions{Offset: 3, Len: 20}, want: logical.SliceOptions{Offset: 5, Len: 7}},
		{inner: logical.SliceOptions{Offset: 2, Len: 3}, outer: logical.SliceOptions{Offset: 5, Len: 1}, want: logical.SliceOptions{Offset: 5, Len: 0}},
	}
	for _, tt := range tests {
		got := composeSlices(&tt.inner, &tt.outer)
		require.Equal(t, tt.want, *got)
	}
}
