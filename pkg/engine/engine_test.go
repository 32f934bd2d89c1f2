package engine

import (
	"context"
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	internalerrors "github.com/grafana/lazyframe/pkg/engine/internal/errors"
)

const usersCSV = "id,name,age\n1,alice,30\n2,bob,25\n3,carol,\n4,dave,41\n"

func writeFile(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	return path
}

func newTestEngine(t *testing.T, cfg Config) (*Engine, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	e, err := New(Params{
		Logger:     log.NewNopLogger(),
		Registerer: reg,
		Config:     cfg,
		Allocator:  memory.NewGoAllocator(),
	})
	require.NoError(t, err)
	return e, reg
}

func TestNew(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		e, err := New(Params{Config: DefaultConfig()})
		require.NoError(t, err)
		require.NotNil(t, e.logger)
		require.NotNil(t, e.mem)
	})

	t.Run("invalid config", func(t *testing.T) {
		_, err := New(Params{})
		require.Error(t, err)

		cfg := DefaultConfig()
		cfg.Executor.Concurrency = -1
		_, err = New(Params{Config: cfg})
		require.Error(t, err)
	})
}

func TestConfig(t *testing.T) {
	t.Run("flags", func(t *testing.T) {
		var cfg Config
		fs := flag.NewFlagSet("test", flag.PanicOnError)
		cfg.RegisterFlagsWithPrefix("engine.", fs)
		require.NoError(t, fs.Parse([]string{"-engine.optimizer.predicate-pushdown=false", "-engine.executor.profile"}))
		require.False(t, cfg.Optimizer.PredicatePushdown)
		require.True(t, cfg.Optimizer.ProjectionPushdown)
		require.True(t, cfg.Executor.Profile)
		require.Equal(t, 8, cfg.Executor.Concurrency)
	})

	t.Run("file", func(t *testing.T) {
		path := writeFile(t, "config.yaml", "optimizer:\n  slice_pushdown: false\nexecutor:\n  concurrency: 2\n")
		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		require.False(t, cfg.Optimizer.SlicePushdown)
		require.True(t, cfg.Optimizer.VerifySchema)
		require.Equal(t, 10, cfg.Optimizer.MaxIterations)
		require.Equal(t, 2, cfg.Executor.Concurrency)
	})

	t.Run("invalid file", func(t *testing.T) {
		path := writeFile(t, "config.yaml", "executor:\n  concurrency: -3\n")
		_, err := LoadConfig(path)
		require.Error(t, err)
	})
}

func TestEngine_Collect(t *testing.T) {
	path := writeFile(t, "users.csv", usersCSV)
	query := `
sources:
  users:
    format: csv
    paths: [` + path + `]
    schema:
      - {name: id, type: int64}
      - {name: name, type: str}
      - {name: age, type: int64}
query:
  from: users
  steps:
    - filter: {op: ">", args: [{col: age}, {lit: 26}]}
    - sort: {by: [{col: age}], descending: [true]}
    - select: [{col: name}]
`

	t.Run("success", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Executor.Profile = true
		e, reg := newTestEngine(t, cfg)

		q, err := ParseQuery([]byte(query), "")
		require.NoError(t, err)
		plan, err := q.Plan()
		require.NoError(t, err)

		res, err := e.Collect(context.Background(), plan)
		require.NoError(t, err)
		defer res.Release()

		names := res.Record.Column(0).(*array.String)
		require.Equal(t, 2, names.Len())
		require.Equal(t, "dave", names.Value(0))
		require.Equal(t, "alice", names.Value(1))
		require.Equal(t, int64(2), res.Stats.Rows)
		require.NotEmpty(t, res.Plan)
		require.NotEmpty(t, res.Profile)

		require.Equal(t, 1.0, testutil.ToFloat64(e.metrics.queries.WithLabelValues(statusSuccess)))
		require.Equal(t, 2.0, testutil.ToFloat64(e.metrics.rows))
		n, err := testutil.GatherAndCount(reg, "lazyframe_engine_queries_total")
		require.NoError(t, err)
		require.Equal(t, 1, n)
	})

	t.Run("cancelled", func(t *testing.T) {
		e, _ := newTestEngine(t, DefaultConfig())
		q, err := ParseQuery([]byte(query), "")
		require.NoError(t, err)
		plan, err := q.Plan()
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err = e.Collect(ctx, plan)
		require.ErrorIs(t, err, ErrExecutionFailed)
		require.ErrorIs(t, err, ErrCancelled)
		require.Equal(t, 1.0, testutil.ToFloat64(e.metrics.queries.WithLabelValues(statusCancelled)))
	})

	t.Run("missing file", func(t *testing.T) {
		e, _ := newTestEngine(t, DefaultConfig())
		q, err := ParseQuery([]byte(query), "")
		require.NoError(t, err)
		q.Sources["users"] = Source{
			Format: "csv",
			Paths:  []string{filepath.Join(t.TempDir(), "missing.csv")},
			Schema: q.Sources["users"].Schema,
		}
		plan, err := q.Plan()
		require.NoError(t, err)

		_, err = e.Collect(context.Background(), plan)
		require.ErrorIs(t, err, ErrExecutionFailed)
		require.ErrorIs(t, err, os.ErrNotExist)
		require.Equal(t, 1.0, testutil.ToFloat64(e.metrics.queries.WithLabelValues(statusFailure)))
	})

	t.Run("invalid plan", func(t *testing.T) {
		e, _ := newTestEngine(t, DefaultConfig())
		q, err := ParseQuery([]byte(query), "")
		require.NoError(t, err)
		q.Output.Steps = append(q.Output.Steps, Step{Select: []Expr{{Col: "missing"}}})
		plan, err := q.Plan()
		require.NoError(t, err)

		_, err = e.Collect(context.Background(), plan)
		require.ErrorIs(t, err, ErrPlanningFailed)
		require.ErrorIs(t, err, internalerrors.ErrColumnNotFound)
	})
}

func TestEngine_Explain(t *testing.T) {
	e, _ := newTestEngine(t, DefaultConfig())
	q, err := ParseQuery([]byte(`
sources:
  t:
    paths: [t.csv]
    schema: [{name: a, type: int64}, {name: b, type: str}]
query:
  from: t
  steps:
    - filter: {op: "==", args: [{col: b}, {lit: x}]}
    - select: [{col: a}]
`), "/data")
	require.NoError(t, err)
	plan, err := q.Plan()
	require.NoError(t, err)

	out, err := e.Explain(plan)
	require.NoError(t, err)
	require.Contains(t, out, "Scan")
	require.Contains(t, out, "/data/t.csv")
	require.NotContains(t, out, "Filter")
}
