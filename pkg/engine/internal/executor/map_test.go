package executor

import (
	"fmt"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/require"

	"github.com/grafana/lazyframe/pkg/engine/internal/errors"
	"github.com/grafana/lazyframe/pkg/engine/internal/planner/logical"
)

func TestExplode(t *testing.T) {
	schema := logical.NewSchema(
		logical.Field{Name: "id", Type: i64},
		logical.Field{Name: "tags", Type: arrow.ListOf(str)},
	)
	plan := logical.NewPlan()
	logical.FromRecord(plan, makeRecord(t, schema,
		[]any{int64(1), []any{"a", "b"}},
		[]any{int64(2), []any{}},
		[]any{int64(3), nil},
	)).Explode("tags").Build()

	res := execute(t, plan)
	require.Equal(t, [][]any{
		{int64(1), "a"},
		{int64(1), "b"},
		{int64(2), nil},
		{int64(3), nil},
	}, res.rows)
}

func TestMelt(t *testing.T) {
	schema := logical.NewSchema(
		logical.Field{Name: "id", Type: i64},
		logical.Field{Name: "a", Type: i64},
		logical.Field{Name: "b", Type: i64},
	)
	want := [][]any{
		{int64(1), "a", int64(10)},
		{int64(2), "a", int64(20)},
		{int64(1), "b", int64(11)},
		{int64(2), "b", int64(21)},
	}

	for name, valueVars := range map[string][]string{
		"explicit": {"a", "b"},
		"implicit": nil,
	} {
		t.Run(name, func(t *testing.T) {
			plan := logical.NewPlan()
			logical.FromRecord(plan, makeRecord(t, schema,
				[]any{int64(1), int64(10), int64(11)},
				[]any{int64(2), int64(20), int64(21)},
			)).Melt([]string{"id"}, valueVars).Build()

			res := execute(t, plan)
			require.Equal(t, []string{"id", "variable", "value"}, res.names())
			require.Equal(t, want, res.rows)
		})
	}
}

func TestDropNulls(t *testing.T) {
	plan := logical.NewPlan()
	people(t, plan).DropNulls().Build()
	require.Equal(t, []any{"alice", "bob", "dave", "erin"}, execute(t, plan).column("name"))

	plan = logical.NewPlan()
	people(t, plan).DropNulls("dept").Build()
	require.Len(t, execute(t, plan).rows, 5)
}

func TestRename(t *testing.T) {
	plan := logical.NewPlan()
	people(t, plan).Rename([]string{"age", "missing"}, []string{"years", "x"}).Build()

	res := execute(t, plan)
	require.Equal(t, []string{"name", "dept", "years"}, res.names())
	require.Equal(t, peopleRows, res.rows)
}

func TestUdf(t *testing.T) {
	t.Run("output schema", func(t *testing.T) {
		plan := logical.NewPlan()
		people(t, plan).Map(&logical.Udf{
			Label:  "names",
			Schema: logical.NewSchema(logical.Field{Name: "name", Type: str}),
			Fn: func(input arrow.Record, _ memory.Allocator) (arrow.Record, error) {
				input.Retain()
				return input, nil
			},
		}).Build()

		res := execute(t, plan)
		require.Equal(t, []string{"name"}, res.names())
		require.Len(t, res.rows, 5)
	})

	t.Run("error", func(t *testing.T) {
		plan := logical.NewPlan()
		people(t, plan).Map(&logical.Udf{
			Label: "broken",
			Fn: func(arrow.Record, memory.Allocator) (arrow.Record, error) {
				return nil, fmt.Errorf("boom")
			},
		}).Build()

		_, err := tryExecute(t, plan, Config{})
		require.ErrorIs(t, err, errors.ErrCompute)
		require.ErrorContains(t, err, "broken: boom")
	})
}
