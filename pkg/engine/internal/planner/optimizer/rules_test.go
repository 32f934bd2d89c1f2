package optimizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/grafana/lazyframe/pkg/engine/internal/arena"
	"github.com/grafana/lazyframe/pkg/engine/internal/datatype"
	"github.com/grafana/lazyframe/pkg/engine/internal/planner/logical"
	"github.com/grafana/lazyframe/pkg/engine/internal/util/dag"
)

func TestTypeCoercion(t *testing.T) {
	plan := logical.NewPlan()
	schema := logical.NewSchema(
		logical.Field{Name: "age", Type: datatype.Arrow.Int32},
		logical.Field{Name: "amount", Type: datatype.Arrow.Float64},
	)
	logical.ScanCSV(plan, schema, true, "data.csv").
		Select(
			logical.Col("age").Lt(logical.Col("amount")).Alias("lt"),
			logical.Col("age").Gt(logical.Lit(18)).Alias("adult"),
			logical.Col("age").Gt(logical.Lit(2.5)).Alias("gt"),
		).
		Build()

	expected := `
Select exprs=((col("age").cast(float64) < col("amount")).alias("lt"), (col("age") > 18).alias("adult"), (col("age").cast(float64) > 2.5).alias("gt"))
└── Scan format=csv sources=(data.csv)
`
	require.Equal(t, expected, optimize(t, plan, Flags{TypeCoercion: true}))

	// The literal compared with an int32 column becomes an int32.
	adult := plan.Expr(plan.Node(plan.Root).(*logical.Select).Exprs[1]).(*logical.AliasExpr)
	cmp := plan.Expr(adult.Input).(*logical.BinaryExpr)
	lit := plan.Expr(cmp.Right).(*logical.LiteralExpr)
	require.Equal(t, datatype.Arrow.Int32, lit.Value.Type)
	require.Equal(t, int32(18), lit.Value.Value)
}

func TestSimplify(t *testing.T) {
	flags := Flags{SimplifyExpr: true}

	tests := []struct {
		name     string
		build    func(b logical.Builder) logical.Builder
		expected string
	}{
		{
			name: "constant folding and neutral operands",
			build: func(b logical.Builder) logical.Builder {
				return b.Filter(logical.Col("age").Gt(logical.Lit(1).Add(logical.Lit(2))).And(logical.Lit(true)))
			},
			expected: `
Filter predicate=(col("age") > 3)
└── Scan format=csv sources=(users.csv)
`,
		},
		{
			name: "negations",
			build: func(b logical.Builder) logical.Builder {
				return b.Select(
					logical.Col("age").Eq(logical.Lit(1)).Not().Alias("ne"),
					logical.Col("id").IsNull().Not().Not().Alias("missing"),
				)
			},
			expected: `
Select exprs=((col("age") != 1).alias("ne"), col("id").is_null().alias("missing"))
└── Scan format=csv sources=(users.csv)
`,
		},
		{
			name: "absorbing operands",
			build: func(b logical.Builder) logical.Builder {
				return b.Select(logical.Col("id").IsNull().And(logical.Lit(false)).Alias("f"))
			},
			expected: `
Select exprs=(false.alias("f"))
└── Scan format=csv sources=(users.csv)
`,
		},
		{
			name: "true filters are removed",
			build: func(b logical.Builder) logical.Builder {
				return b.Filter(logical.Lit(true)).Select(logical.Col("name"))
			},
			expected: `
Select exprs=(col("name"))
└── Scan format=csv sources=(users.csv)
`,
		},
		{
			name: "literal arithmetic",
			build: func(b logical.Builder) logical.Builder {
				return b.Select(logical.Lit(2).Mul(logical.Lit(3)))
			},
			expected: `
Select exprs=(6)
└── Scan format=csv sources=(users.csv)
`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := logical.NewPlan()
			tt.build(logical.ScanCSV(plan, usersSchema(), true, "users.csv")).Build()
			require.Equal(t, tt.expected, optimize(t, plan, flags))
		})
	}
}

func TestFusedArithmetic(t *testing.T) {
	t.Run("float operands", func(t *testing.T) {
		plan := logical.NewPlan()
		logical.ScanCSV(plan, floatsSchema(), true, "floats.csv").
			Select(
				logical.Col("a").Add(logical.Col("b").Mul(logical.Col("c"))),
				logical.Col("b").Mul(logical.Col("c")).Add(logical.Col("a")),
				logical.Col("a").Sub(logical.Col("b").Mul(logical.Col("c"))).Alias("d"),
			).
			Build()

		expected := `
Select exprs=(col("a").fma(col("b"), col("c")), col("a").fma(col("b"), col("c")).alias("b"), col("a").fsm(col("b"), col("c")).alias("d"))
└── Scan format=csv sources=(floats.csv)
`
		require.Equal(t, expected, optimize(t, plan, Flags{SimplifyExpr: true}))
	})

	t.Run("integer operands", func(t *testing.T) {
		plan := logical.NewPlan()
		logical.ScanCSV(plan, usersSchema(), true, "users.csv").
			Select(logical.Col("id").Add(logical.Col("id").Mul(logical.Col("id")))).
			Build()

		expected := `
Select exprs=((col("id") + (col("id") * col("id"))))
└── Scan format=csv sources=(users.csv)
`
		require.Equal(t, expected, optimize(t, plan, Flags{SimplifyExpr: true}))
	})

	t.Run("filters are not fused", func(t *testing.T) {
		plan := logical.NewPlan()
		logical.ScanCSV(plan, floatsSchema(), true, "floats.csv").
			Filter(logical.Col("a").Add(logical.Col("b").Mul(logical.Col("c"))).Gt(logical.Lit(1.5))).
			Build()

		expected := `
Filter predicate=((col("a") + (col("b") * col("c"))) > 1.5)
└── Scan format=csv sources=(floats.csv)
`
		require.Equal(t, expected, optimize(t, plan, Flags{SimplifyExpr: true}))
	})
}

func TestPlanRules(t *testing.T) {
	t.Run("drop nulls", func(t *testing.T) {
		plan := logical.NewPlan()
		logical.ScanCSV(plan, usersSchema(), true, "users.csv").
			Filter(logical.Col("id").IsNotNull().And(logical.Col("name").IsNotNull())).
			Build()

		expected := `
MapFunction function=drop_nulls subset=(id, name)
└── Scan format=csv sources=(users.csv)
`
		require.Equal(t, expected, optimize(t, plan, Flags{}))
	})

	t.Run("flatten union", func(t *testing.T) {
		plan := logical.NewPlan()
		logical.Concat(
			logical.Concat(
				logical.ScanCSV(plan, usersSchema(), true, "a.csv"),
				logical.ScanCSV(plan, usersSchema(), true, "b.csv"),
			),
			logical.ScanCSV(plan, usersSchema(), true, "c.csv"),
		).Build()

		expected := `
Union
├── Scan format=csv sources=(a.csv)
├── Scan format=csv sources=(b.csv)
└── Scan format=csv sources=(c.csv)
`
		require.Equal(t, expected, optimize(t, plan, Flags{}))
	})

	t.Run("fast projection", func(t *testing.T) {
		plan := logical.NewPlan()
		logical.ScanCSV(plan, usersSchema(), true, "users.csv").
			Select(logical.Col("name")).
			Build()

		expected := `
SimpleProjection columns=(name)
└── Scan format=csv sources=(users.csv)
`
		require.Equal(t, expected, optimize(t, plan, Flags{FastProjection: true}))
	})

	t.Run("identity projection", func(t *testing.T) {
		plan := logical.NewPlan()
		logical.ScanCSV(plan, usersSchema(), true, "users.csv").
			Select(logical.Col("id"), logical.Col("name"), logical.Col("age")).
			Build()

		expected := `
Scan format=csv sources=(users.csv)
`
		require.Equal(t, expected, optimize(t, plan, Flags{FastProjection: true}))
	})

	t.Run("expression slices", func(t *testing.T) {
		plan := logical.NewPlan()
		logical.ScanCSV(plan, usersSchema(), true, "users.csv").
			Select(
				logical.Col("age").Slice(1, 10).Slice(2, 3).Alias("s"),
				logical.LitSeries(datatype.Arrow.Int64, 1, 2, 3, 4).Slice(1, 2).Alias("l"),
				logical.Col("age").Cast(datatype.Arrow.Float64).Slice(0, 2).Alias("c"),
			).
			Build()

		expected := `
Select exprs=(col("age").slice(3, 3).alias("s"), [2, 3].alias("l"), col("age").slice(0, 2).cast(float64).alias("c"))
└── Scan format=csv sources=(users.csv)
`
		require.Equal(t, expected, optimize(t, plan, Flags{SlicePushdown: true}))
	})
}

func TestSubexprElimination(t *testing.T) {
	shared := func() logical.Expr { return logical.Col("id").Add(logical.Col("age")) }

	t.Run("select", func(t *testing.T) {
		plan := logical.NewPlan()
		logical.ScanCSV(plan, usersSchema(), true, "users.csv").
			Select(shared().Alias("x"), shared().Mul(logical.Lit(2)).Alias("y")).
			Build()
		optimize(t, plan, Flags{CommSubexprElim: true})

		sel := plan.Node(plan.Root).(*logical.Select)
		stack := plan.Node(sel.Input).(*logical.HStack)
		require.Len(t, stack.Exprs, 1)

		name := plan.OutputName(stack.Exprs[0])
		require.True(t, strings.HasPrefix(name, cseColumnPrefix), name)
		require.Equal(t, `(col("id") + col("age")).alias("`+name+`")`, plan.ExprString(stack.Exprs[0]))
		require.Equal(t, `col("`+name+`").alias("x")`, plan.ExprString(sel.Exprs[0]))
		require.Equal(t, `(col("`+name+`") * 2).alias("y")`, plan.ExprString(sel.Exprs[1]))
	})

	t.Run("hstack", func(t *testing.T) {
		plan := logical.NewPlan()
		logical.ScanCSV(plan, usersSchema(), true, "users.csv").
			WithColumns(shared().Alias("x"), shared().Mul(logical.Lit(2)).Alias("y")).
			Build()
		optimize(t, plan, Flags{CommSubexprElim: true})

		projection := plan.Node(plan.Root).(*logical.SimpleProjection)
		require.Equal(t, []string{"id", "name", "age", "x", "y"}, projection.Columns)
		rewritten := plan.Node(projection.Input).(*logical.HStack)
		require.Len(t, rewritten.Exprs, 2)
		cse := plan.Node(rewritten.Input).(*logical.HStack)
		require.Len(t, cse.Exprs, 1)
		_, ok := plan.Node(cse.Input).(*logical.Scan)
		require.True(t, ok)
	})

	t.Run("nothing shared", func(t *testing.T) {
		plan := logical.NewPlan()
		logical.ScanCSV(plan, usersSchema(), true, "users.csv").
			Select(shared().Alias("x"), logical.Col("age").Alias("y")).
			Build()

		expected := `
Select exprs=((col("id") + col("age")).alias("x"), col("age").alias("y"))
└── Scan format=csv sources=(users.csv)
`
		require.Equal(t, expected, optimize(t, plan, Flags{CommSubexprElim: true}))
	})
}

func TestSubplanElimination(t *testing.T) {
	plan := logical.NewPlan()
	adults := func() logical.Builder {
		return logical.ScanCSV(plan, usersSchema(), true, "users.csv").Filter(logical.Col("age").Gt(logical.Lit(18)))
	}
	logical.Concat(adults(), adults()).Build()
	optimize(t, plan, Flags{CommSubplanElim: true})

	union := plan.Node(plan.Root).(*logical.Union)
	require.Len(t, union.Inputs, 2)
	first := plan.Node(union.Inputs[0]).(*logical.Cache)
	second := plan.Node(union.Inputs[1]).(*logical.Cache)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, first.Input, second.Input)
	require.Equal(t, 2, first.Count)
	require.Equal(t, 2, second.Count)

	_, ok := plan.Node(first.Input).(*logical.Filter)
	require.True(t, ok)
}

func TestCacheStates(t *testing.T) {
	plan := logical.NewPlan()
	logical.ScanCSV(plan, usersSchema(), true, "users.csv").
		Cache().
		Select(logical.Col("name")).
		Build()

	expected := `
Select exprs=(col("name"))
└── Scan format=csv sources=(users.csv)
`
	require.Equal(t, expected, optimize(t, plan, Flags{}))
}

func TestFileCaching(t *testing.T) {
	plan := logical.NewPlan()
	logical.HorizontalConcat(
		logical.ScanCSV(plan, usersSchema(), true, "users.csv").Select(logical.Col("id")),
		logical.ScanCSV(plan, usersSchema(), true, "users.csv").Select(logical.Col("name")),
		logical.ScanCSV(plan, ordersSchema(), true, "orders.csv").Select(logical.Col("amount")),
	).Build()
	optimize(t, plan, Flags{ProjectionPushdown: true, FileCaching: true})

	var scans []*logical.Scan
	err := plan.Walk(plan.Root, func(id arena.Node) error {
		if scan, ok := plan.Node(id).(*logical.Scan); ok {
			scans = append(scans, scan)
		}
		return nil
	}, dag.PreOrderWalk)
	require.NoError(t, err)
	require.Len(t, scans, 3)

	require.NotNil(t, scans[0].FileCache)
	require.Equal(t, []string{"id", "name"}, scans[0].FileCache.Columns)
	require.Equal(t, 2, scans[0].FileCache.Count)
	require.Equal(t, scans[0].FileCache.Key, scans[1].FileCache.Key)
	require.Nil(t, scans[2].FileCache)
}
