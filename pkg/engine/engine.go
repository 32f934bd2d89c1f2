// Package engine optimizes and executes lazyframe query plans.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	internalerrors "github.com/grafana/lazyframe/pkg/engine/internal/errors"
	"github.com/grafana/lazyframe/pkg/engine/internal/executor"
	"github.com/grafana/lazyframe/pkg/engine/internal/planner/logical"
	"github.com/grafana/lazyframe/pkg/engine/internal/planner/optimizer"
)

var (
	// ErrPlanningFailed is returned when a plan cannot be optimized or
	// lowered into executors.
	ErrPlanningFailed = errors.New("query planning failed")

	// ErrExecutionFailed is returned when an optimized plan fails to run.
	ErrExecutionFailed = errors.New("query execution failed")

	// ErrCancelled is returned, wrapped in [ErrExecutionFailed], when a
	// query was stopped before it finished.
	ErrCancelled = internalerrors.ErrCancelled
)

var tracer = otel.Tracer("pkg/engine")

// Params holds parameters for constructing a new [Engine].
type Params struct {
	Logger     log.Logger            // Logger for optional log messages.
	Registerer prometheus.Registerer // Registerer for optional metrics.

	Config    Config           // Config for the Engine.
	Allocator memory.Allocator // Allocator for query results.
}

// validate validates p and applies defaults.
func (p *Params) validate() error {
	if p.Logger == nil {
		p.Logger = log.NewNopLogger()
	}
	if p.Registerer == nil {
		p.Registerer = prometheus.NewRegistry()
	}
	if p.Allocator == nil {
		p.Allocator = memory.DefaultAllocator
	}
	return p.Config.Validate()
}

// Engine optimizes and runs plans.
type Engine struct {
	logger  log.Logger
	metrics *metrics
	cfg     Config
	mem     memory.Allocator
}

// New creates a new Engine.
func New(params Params) (*Engine, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	return &Engine{
		logger:  params.Logger,
		metrics: newMetrics(params.Registerer),
		cfg:     params.Config,
		mem:     params.Allocator,
	}, nil
}

// Result is the outcome of a query. The caller must call Release once done
// with the record.
type Result struct {
	Record arrow.Record
	// Plan is the optimized plan that produced Record.
	Plan string
	// Profile holds the operator timings if profiling is enabled.
	Profile []ProfileEntry
	Stats   Stats
}

// Release releases the record of the result.
func (r Result) Release() {
	if r.Record != nil {
		r.Record.Release()
	}
}

// ProfileEntry is the wall time spent in one operator of a query.
type ProfileEntry = executor.ProfileEntry

// Stats summarizes the execution of a query.
type Stats struct {
	Optimization time.Duration
	Execution    time.Duration
	Total        time.Duration
	Rows         int64
}

// FormatPlan renders plan as a tree without optimizing it.
func FormatPlan(plan *logical.Plan) string {
	return logical.PrintAsTree(plan)
}

// Explain optimizes plan and returns the optimized plan as a tree.
func (e *Engine) Explain(plan *logical.Plan) (string, error) {
	if _, err := e.optimize(plan, e.logger); err != nil {
		return "", err
	}
	return logical.PrintAsTree(plan), nil
}

// Collect optimizes plan and executes it to completion. The plan is
// rewritten in place.
func (e *Engine) Collect(ctx context.Context, plan *logical.Plan) (Result, error) {
	ctx, span := tracer.Start(ctx, "Engine.Collect")
	defer span.End()

	start := time.Now()
	logger := log.With(e.logger, "engine", "lazyframe")
	level.Info(logger).Log("msg", "starting query")

	durOptimization, err := e.optimize(plan, logger)
	if err != nil {
		e.metrics.queries.WithLabelValues(statusFailure).Inc()
		span.SetStatus(codes.Error, "failed to optimize plan")
		return Result{}, err
	}
	optimized := logical.PrintAsTree(plan)
	span.AddEvent("finished optimization", attribute.Stringer("duration", durOptimization))

	exec, err := executor.Build(plan, plan.Root)
	if err != nil {
		level.Warn(logger).Log("msg", "failed to build executors", "err", err)
		e.metrics.queries.WithLabelValues(statusFailure).Inc()
		span.SetStatus(codes.Error, "failed to build executors")
		return Result{}, fmt.Errorf("%w: %w", ErrPlanningFailed, err)
	}

	state := executor.NewState(ctx, e.cfg.Executor, e.mem, logger)
	defer state.Close()

	timer := prometheus.NewTimer(e.metrics.execution)
	rec, err := exec.Execute(state)
	if err != nil {
		status := statusFailure
		if errors.Is(err, internalerrors.ErrCancelled) {
			status = statusCancelled
		}
		level.Warn(logger).Log("msg", "error during execution", "err", err)
		e.metrics.queries.WithLabelValues(status).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "error during query execution")
		return Result{}, fmt.Errorf("%w: %w", ErrExecutionFailed, err)
	}
	durExecution := timer.ObserveDuration()

	stats := Stats{
		Optimization: durOptimization,
		Execution:    durExecution,
		Total:        time.Since(start),
		Rows:         rec.NumRows(),
	}
	e.metrics.queries.WithLabelValues(statusSuccess).Inc()
	e.metrics.rows.Add(float64(stats.Rows))

	level.Info(logger).Log(
		"msg", "finished executing",
		"rows", stats.Rows,
		"duration_optimization", stats.Optimization,
		"duration_execution", stats.Execution,
		"duration_full", stats.Total,
	)
	span.SetStatus(codes.Ok, "")
	return Result{Record: rec, Plan: optimized, Profile: state.Profile(), Stats: stats}, nil
}

func (e *Engine) optimize(plan *logical.Plan, logger log.Logger) (time.Duration, error) {
	timer := prometheus.NewTimer(e.metrics.optimization)
	if _, err := optimizer.Optimize(plan, e.cfg.Optimizer, logger); err != nil {
		level.Warn(logger).Log("msg", "failed to optimize plan", "err", err)
		return 0, fmt.Errorf("%w: %w", ErrPlanningFailed, err)
	}
	duration := timer.ObserveDuration()
	level.Debug(logger).Log(
		"msg", "finished optimization",
		"plan", logical.PrintAsTree(plan),
		"duration", duration.String(),
	)
	return duration, nil
}
