package executor

import (
	"context"
	"flag"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/go-kit/log"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/atomic"

	"github.com/grafana/lazyframe/pkg/engine/internal/errors"
)

// Config configures query execution.
type Config struct {
	// Concurrency limits the number of expressions of a projection that are
	// evaluated concurrently. Zero or less means no limit.
	Concurrency int `yaml:"concurrency"`
	// Verbose logs every operator as it finishes.
	Verbose bool `yaml:"verbose"`
	// Profile records the wall time of every operator.
	Profile bool `yaml:"profile"`
}

// RegisterFlagsWithPrefix registers flags with the given prefix.
func (cfg *Config) RegisterFlagsWithPrefix(prefix string, f *flag.FlagSet) {
	f.IntVar(&cfg.Concurrency, prefix+"concurrency", 8, "Maximum number of expressions of a projection evaluated in parallel.")
	f.BoolVar(&cfg.Verbose, prefix+"verbose", false, "Log every operator of a query as it finishes.")
	f.BoolVar(&cfg.Profile, prefix+"profile", false, "Record the wall time spent in every operator.")
}

// State is the state shared by the operators executing a query.
type State struct {
	ctx    context.Context
	mem    memory.Allocator
	logger log.Logger

	concurrency int
	verbose     bool

	stop   *atomic.Bool
	timer  *NodeTimer
	branch string

	caches *xsync.MapOf[uint64, *sharedResult]
	files  *xsync.MapOf[uint64, *sharedResult]
}

// NewState returns the state of a new query. A nil allocator uses the Go
// allocator and a nil logger discards logs.
func NewState(ctx context.Context, cfg Config, mem memory.Allocator, logger log.Logger) *State {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	s := &State{
		ctx:         ctx,
		mem:         mem,
		logger:      logger,
		concurrency: cfg.Concurrency,
		verbose:     cfg.Verbose,
		stop:        atomic.NewBool(false),
		caches:      xsync.NewMapOf[uint64, *sharedResult](),
		files:       xsync.NewMapOf[uint64, *sharedResult](),
	}
	if cfg.Profile {
		s.timer = newNodeTimer()
	}
	return s
}

// Context returns the context of the query.
func (s *State) Context() context.Context { return s.ctx }

// Allocator returns the allocator of all records built by the query.
func (s *State) Allocator() memory.Allocator { return s.mem }

// Verbose returns true if every finished operator is logged.
func (s *State) Verbose() bool { return s.verbose }

// Stop requests every operator of the query to stop.
func (s *State) Stop() { s.stop.Store(true) }

// ShouldStop returns true once the query was stopped or its context is
// done.
func (s *State) ShouldStop() bool {
	return s.stop.Load() || s.ctx.Err() != nil
}

func (s *State) checkStop() error {
	if !s.ShouldStop() {
		return nil
	}
	if err := s.ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", errors.ErrCancelled, err)
	}
	return errors.ErrCancelled
}

// Split returns the state of branch i of a node with several inputs. The
// branch shares cancellation and caches with s and records its profile
// under its own scope.
func (s *State) Split(i int) *State {
	c := *s
	c.branch = fmt.Sprintf("%s%d.", s.branch, i)
	return &c
}

func (s *State) withContext(ctx context.Context) *State {
	c := *s
	c.ctx = ctx
	return &c
}

// HasNodeTimer returns true if operators are profiled.
func (s *State) HasNodeTimer() bool { return s.timer != nil }

// Profile returns the recorded operator timings ordered by start time, or
// nil if profiling is disabled.
func (s *State) Profile() []ProfileEntry {
	if s.timer == nil {
		return nil
	}
	return s.timer.entries()
}

// Close releases the results still held by caches.
func (s *State) Close() {
	release := func(m *xsync.MapOf[uint64, *sharedResult]) {
		m.Range(func(key uint64, r *sharedResult) bool {
			r.release()
			m.Delete(key)
			return true
		})
	}
	release(s.caches)
	release(s.files)
}

// ProfileEntry is the wall time spent in one operator, relative to the
// start of the query.
type ProfileEntry struct {
	Node  string
	Start time.Duration
	End   time.Duration
}

// NodeTimer records operator timings. It is safe for concurrent use.
type NodeTimer struct {
	start time.Time

	mu   sync.Mutex
	data []ProfileEntry
}

func newNodeTimer() *NodeTimer {
	return &NodeTimer{start: time.Now()}
}

// Store records that node ran from start to end.
func (t *NodeTimer) Store(node string, start, end time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data = append(t.data, ProfileEntry{Node: node, Start: start.Sub(t.start), End: end.Sub(t.start)})
}

func (t *NodeTimer) entries() []ProfileEntry {
	t.mu.Lock()
	out := append([]ProfileEntry(nil), t.data...)
	t.mu.Unlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// sharedResult is a record computed once and handed to a known number of
// consumers. Every consumer receives its own reference.
type sharedResult struct {
	once sync.Once
	rec  arrow.Record
	err  error

	mu        sync.Mutex
	remaining int
}

// get computes the result on first use and returns a reference to it.
// The result is released once the last consumer received it; consumers
// <= 0 keeps it until the state is closed.
func (r *sharedResult) get(compute func() (arrow.Record, error)) (arrow.Record, error) {
	r.once.Do(func() { r.rec, r.err = compute() })
	if r.err != nil {
		return nil, r.err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rec == nil {
		return nil, fmt.Errorf("%w: shared result read by more consumers than expected", errors.ErrInvariant)
	}
	rec := r.rec
	rec.Retain()
	if r.remaining > 0 {
		r.remaining--
		if r.remaining == 0 {
			r.rec.Release()
			r.rec = nil
		}
	}
	return rec, nil
}

func (r *sharedResult) release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rec != nil {
		r.rec.Release()
		r.rec = nil
	}
}
