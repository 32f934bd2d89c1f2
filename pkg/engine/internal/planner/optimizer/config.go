package optimizer

import "flag"

// Flags toggles individual optimizations.
type Flags struct {
	PredicatePushdown  bool `yaml:"predicate_pushdown"`
	ProjectionPushdown bool `yaml:"projection_pushdown"`
	TypeCoercion       bool `yaml:"type_coercion"`
	SimplifyExpr       bool `yaml:"simplify_expr"`
	SlicePushdown      bool `yaml:"slice_pushdown"`
	// Streaming keeps slices out of join options; streaming joins do not
	// honour them.
	Streaming      bool `yaml:"streaming"`
	FastProjection bool `yaml:"fast_projection"`
	// Eager plans run once, so optimizations that pay off when results are
	// reused are skipped.
	Eager           bool `yaml:"eager"`
	CommSubplanElim bool `yaml:"comm_subplan_elim"`
	CommSubexprElim bool `yaml:"comm_subexpr_elim"`
	FileCaching     bool `yaml:"file_caching"`
}

// DefaultFlags enables every optimization for lazy, non-streaming plans.
func DefaultFlags() Flags {
	return Flags{
		PredicatePushdown:  true,
		ProjectionPushdown: true,
		TypeCoercion:       true,
		SimplifyExpr:       true,
		SlicePushdown:      true,
		FastProjection:     true,
		CommSubplanElim:    true,
		CommSubexprElim:    true,
		FileCaching:        true,
	}
}

// RegisterFlagsWithPrefix registers flags with the given prefix.
func (f *Flags) RegisterFlagsWithPrefix(prefix string, fs *flag.FlagSet) {
	d := DefaultFlags()
	fs.BoolVar(&f.PredicatePushdown, prefix+"predicate-pushdown", d.PredicatePushdown, "Push filters towards the scans.")
	fs.BoolVar(&f.ProjectionPushdown, prefix+"projection-pushdown", d.ProjectionPushdown, "Only read and compute the columns a query uses.")
	fs.BoolVar(&f.TypeCoercion, prefix+"type-coercion", d.TypeCoercion, "Insert casts so that operands of expressions share a type.")
	fs.BoolVar(&f.SimplifyExpr, prefix+"simplify-expr", d.SimplifyExpr, "Fold constants and simplify boolean expressions.")
	fs.BoolVar(&f.SlicePushdown, prefix+"slice-pushdown", d.SlicePushdown, "Push row limits towards the scans.")
	fs.BoolVar(&f.Streaming, prefix+"streaming", d.Streaming, "Optimize for the streaming engine.")
	fs.BoolVar(&f.FastProjection, prefix+"fast-projection", d.FastProjection, "Replace projections of plain columns with column selections.")
	fs.BoolVar(&f.Eager, prefix+"eager", d.Eager, "Optimize for a single execution of the plan.")
	fs.BoolVar(&f.CommSubplanElim, prefix+"comm-subplan-elim", d.CommSubplanElim, "Cache subplans that occur more than once.")
	fs.BoolVar(&f.CommSubexprElim, prefix+"comm-subexpr-elim", d.CommSubexprElim, "Compute repeated expressions of a projection once.")
	fs.BoolVar(&f.FileCaching, prefix+"file-caching", d.FileCaching, "Read files scanned several times once.")
}

// Config configures [Optimize].
type Config struct {
	Flags `yaml:",inline"`

	// MaxIterations bounds the fixpoint loop over expression rules.
	MaxIterations int `yaml:"max_iterations"`
	// VerifySchema fails optimization if the output schema of the plan
	// changed.
	VerifySchema bool `yaml:"verify_schema"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{Flags: DefaultFlags(), MaxIterations: 10, VerifySchema: true}
}

// RegisterFlagsWithPrefix registers flags with the given prefix.
func (cfg *Config) RegisterFlagsWithPrefix(prefix string, fs *flag.FlagSet) {
	cfg.Flags.RegisterFlagsWithPrefix(prefix, fs)
	fs.IntVar(&cfg.MaxIterations, prefix+"max-iterations", 10, "Maximum number of passes of the expression rules.")
	fs.BoolVar(&cfg.VerifySchema, prefix+"verify-schema", true, "Fail if optimization changed the output schema of a plan.")
}
