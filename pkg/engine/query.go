package engine

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/grafana/lazyframe/pkg/engine/internal/datatype"
	"github.com/grafana/lazyframe/pkg/engine/internal/planner/logical"
	"github.com/grafana/lazyframe/pkg/engine/internal/types"
)

// Query is a query file: named sources and frames and the frame to
// compute.
//
//	sources:
//	  users:
//	    format: csv
//	    paths: [users.csv]
//	    schema:
//	      - {name: id, type: int64}
//	      - {name: name, type: str}
//	query:
//	  from: users
//	  steps:
//	    - filter: {op: ">", args: [{col: id}, {lit: 10}]}
//	    - select: [{col: name}]
type Query struct {
	Sources map[string]Source `yaml:"sources"`
	// Frames are reusable frames. Every reference to a frame shares its
	// plan nodes.
	Frames map[string]Frame `yaml:"frames"`
	Output Frame            `yaml:"query"`

	// dir resolves relative source paths.
	dir string
}

// Source is a set of files of the same format and schema.
type Source struct {
	Format    string   `yaml:"format"`
	Paths     []string `yaml:"paths"`
	Header    *bool    `yaml:"header"`
	Delimiter string   `yaml:"delimiter"`
	Schema    []Column `yaml:"schema"`
}

type Column struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// Frame computes a frame from a source or frame, or from the
// concatenation of several frames, followed by steps.
type Frame struct {
	From    string  `yaml:"from"`
	Concat  []Frame `yaml:"concat"`
	HConcat []Frame `yaml:"hconcat"`
	Steps   []Step  `yaml:"steps"`
}

// Step is a single operation on a frame. Exactly one field is set.
type Step struct {
	Filter      *Expr      `yaml:"filter"`
	Select      []Expr     `yaml:"select"`
	WithColumns []Expr     `yaml:"with_columns"`
	GroupBy     *GroupBy   `yaml:"group_by"`
	Join        *Join      `yaml:"join"`
	Sort        *Sort      `yaml:"sort"`
	Slice       *Slice     `yaml:"slice"`
	Head        *uint64    `yaml:"head"`
	Unique      *Unique    `yaml:"unique"`
	Explode     []string   `yaml:"explode"`
	DropNulls   *[]string  `yaml:"drop_nulls"`
	Rename      []Renaming `yaml:"rename"`
	Melt        *Melt      `yaml:"melt"`
	Cache       bool       `yaml:"cache"`
}

type GroupBy struct {
	Keys          []Expr `yaml:"keys"`
	Aggs          []Expr `yaml:"aggs"`
	MaintainOrder bool   `yaml:"maintain_order"`
}

type Join struct {
	With Frame `yaml:"with"`
	// On sets both LeftOn and RightOn.
	On      []Expr `yaml:"on"`
	LeftOn  []Expr `yaml:"left_on"`
	RightOn []Expr `yaml:"right_on"`
	How     string `yaml:"how"`
	Suffix  string `yaml:"suffix"`
}

type Sort struct {
	By            []Expr `yaml:"by"`
	Descending    []bool `yaml:"descending"`
	NullsLast     bool   `yaml:"nulls_last"`
	MaintainOrder bool   `yaml:"maintain_order"`
}

type Slice struct {
	Offset int64  `yaml:"offset"`
	Len    uint64 `yaml:"len"`
}

type Unique struct {
	Subset        []string `yaml:"subset"`
	Keep          string   `yaml:"keep"`
	MaintainOrder bool     `yaml:"maintain_order"`
}

type Renaming struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

type Melt struct {
	IDVars       []string `yaml:"id_vars"`
	ValueVars    []string `yaml:"value_vars"`
	VariableName string   `yaml:"variable_name"`
	ValueName    string   `yaml:"value_name"`
}

// Expr is an expression. Exactly one of Col, Lit, Series, Op, Fn, Agg,
// Cast, When, SortBy and Slice is set; a Type without any of them is a
// null literal of that type. Over and Alias apply to the result.
type Expr struct {
	Col    string `yaml:"col"`
	Lit    any    `yaml:"lit"`
	Series []any  `yaml:"series"`
	// Type is the type of a literal or series.
	Type string `yaml:"type"`

	Op     string `yaml:"op"`
	Fn     string `yaml:"fn"`
	Agg    string `yaml:"agg"`
	Cast   string `yaml:"cast"`
	Strict bool   `yaml:"strict"`
	Args   []Expr `yaml:"args"`

	When      *Expr `yaml:"when"`
	Then      *Expr `yaml:"then"`
	Otherwise *Expr `yaml:"otherwise"`

	SortBy *ExprSort `yaml:"sort"`
	Slice  *Slice    `yaml:"slice"`

	Over  []Expr `yaml:"over"`
	Alias string `yaml:"alias"`
}

type ExprSort struct {
	Descending bool `yaml:"descending"`
	NullsLast  bool `yaml:"nulls_last"`
}

// ParseQuery parses a query file. Relative source paths are resolved
// against dir.
func ParseQuery(data []byte, dir string) (*Query, error) {
	var q Query
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&q); err != nil {
		return nil, fmt.Errorf("parsing query: %w", err)
	}
	q.dir = dir
	return &q, nil
}

// LoadQuery reads and parses the query file at path.
func LoadQuery(path string) (*Query, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseQuery(data, filepath.Dir(path))
}

// Plan builds the logical plan of the query.
func (q *Query) Plan() (*logical.Plan, error) {
	b := &queryBuilder{
		query:    q,
		plan:     logical.NewPlan(),
		frames:   map[string]logical.Builder{},
		building: map[string]bool{},
	}
	out, err := b.frame(q.Output)
	if err != nil {
		return nil, err
	}
	return out.Build(), nil
}

// SourceNames returns the names of the sources of the query in sorted
// order.
func (q *Query) SourceNames() []string {
	names := make([]string, 0, len(q.Sources))
	for name := range q.Sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type queryBuilder struct {
	query    *Query
	plan     *logical.Plan
	frames   map[string]logical.Builder
	building map[string]bool
}

func (b *queryBuilder) frame(f Frame) (logical.Builder, error) {
	var (
		out logical.Builder
		err error
	)
	switch {
	case f.From != "" && f.Concat == nil && f.HConcat == nil:
		out, err = b.from(f.From)
	case f.From == "" && f.Concat != nil && f.HConcat == nil:
		out, err = b.concat(f.Concat, logical.Concat)
	case f.From == "" && f.Concat == nil && f.HConcat != nil:
		out, err = b.concat(f.HConcat, logical.HorizontalConcat)
	default:
		return out, fmt.Errorf("frame must set exactly one of from, concat and hconcat")
	}
	if err != nil {
		return out, err
	}

	for i, s := range f.Steps {
		if out, err = b.step(out, s); err != nil {
			return out, fmt.Errorf("step %d: %w", i, err)
		}
	}
	return out, nil
}

func (b *queryBuilder) from(name string) (logical.Builder, error) {
	if src, ok := b.query.Sources[name]; ok {
		return b.scan(name, src)
	}
	f, ok := b.query.Frames[name]
	if !ok {
		return logical.Builder{}, fmt.Errorf("unknown source or frame %q", name)
	}
	if out, ok := b.frames[name]; ok {
		return out, nil
	}
	if b.building[name] {
		return logical.Builder{}, fmt.Errorf("frame %q references itself", name)
	}
	b.building[name] = true
	out, err := b.frame(f)
	if err != nil {
		return out, fmt.Errorf("frame %q: %w", name, err)
	}
	b.frames[name] = out
	return out, nil
}

func (b *queryBuilder) concat(frames []Frame, combine func(...logical.Builder) logical.Builder) (logical.Builder, error) {
	if len(frames) == 0 {
		return logical.Builder{}, fmt.Errorf("concatenation of no frames")
	}
	inputs := make([]logical.Builder, len(frames))
	for i, f := range frames {
		in, err := b.frame(f)
		if err != nil {
			return in, err
		}
		inputs[i] = in
	}
	return combine(inputs...), nil
}

func (b *queryBuilder) scan(name string, src Source) (logical.Builder, error) {
	if len(src.Paths) == 0 {
		return logical.Builder{}, fmt.Errorf("source %q has no paths", name)
	}
	fields := make([]logical.Field, len(src.Schema))
	for i, c := range src.Schema {
		dt, err := datatype.Parse(c.Type)
		if err != nil {
			return logical.Builder{}, fmt.Errorf("source %q: column %q: %w", name, c.Name, err)
		}
		fields[i] = logical.Field{Name: c.Name, Type: dt}
	}
	schema := logical.NewSchema(fields...)

	paths := make([]string, len(src.Paths))
	for i, p := range src.Paths {
		if !filepath.IsAbs(p) && b.query.dir != "" {
			p = filepath.Join(b.query.dir, p)
		}
		paths[i] = p
	}

	switch src.Format {
	case "", "csv":
		header := src.Header == nil || *src.Header
		out := logical.ScanCSV(b.plan, schema, header, paths...)
		if src.Delimiter != "" {
			d := []rune(src.Delimiter)
			if len(d) != 1 {
				return out, fmt.Errorf("source %q: delimiter must be a single character", name)
			}
			b.plan.Node(out.Node()).(*logical.Scan).Delimiter = d[0]
		}
		return out, nil
	case "ipc", "arrow":
		return logical.ScanIPC(b.plan, schema, paths...), nil
	case "parquet":
		return logical.ScanParquet(b.plan, schema, paths...), nil
	default:
		return logical.Builder{}, fmt.Errorf("source %q: unsupported format %q", name, src.Format)
	}
}

func (b *queryBuilder) step(in logical.Builder, s Step) (logical.Builder, error) {
	switch {
	case s.Filter != nil:
		pred, err := s.Filter.compile()
		if err != nil {
			return in, err
		}
		return in.Filter(pred), nil

	case s.Select != nil:
		exprs, err := compileAll(s.Select)
		if err != nil {
			return in, err
		}
		return in.Select(exprs...), nil

	case s.WithColumns != nil:
		exprs, err := compileAll(s.WithColumns)
		if err != nil {
			return in, err
		}
		return in.WithColumns(exprs...), nil

	case s.GroupBy != nil:
		keys, err := compileAll(s.GroupBy.Keys)
		if err != nil {
			return in, err
		}
		aggs, err := compileAll(s.GroupBy.Aggs)
		if err != nil {
			return in, err
		}
		g := in.GroupBy(keys...)
		if s.GroupBy.MaintainOrder {
			g = g.MaintainOrder()
		}
		return g.Agg(aggs...), nil

	case s.Join != nil:
		return b.join(in, s.Join)

	case s.Sort != nil:
		by, err := compileAll(s.Sort.By)
		if err != nil {
			return in, err
		}
		return in.Sort(by, logical.SortOptions{
			Descending:    s.Sort.Descending,
			NullsLast:     s.Sort.NullsLast,
			MaintainOrder: s.Sort.MaintainOrder,
		}), nil

	case s.Slice != nil:
		return in.Slice(s.Slice.Offset, s.Slice.Len), nil
	case s.Head != nil:
		return in.Head(*s.Head), nil

	case s.Unique != nil:
		keep, err := parseKeep(s.Unique.Keep)
		if err != nil {
			return in, err
		}
		return in.Unique(s.Unique.Subset, keep, s.Unique.MaintainOrder), nil

	case s.Explode != nil:
		return in.Explode(s.Explode...), nil
	case s.DropNulls != nil:
		subset := *s.DropNulls
		if len(subset) == 0 {
			subset = nil
		}
		return in.DropNulls(subset...), nil
	case s.Rename != nil:
		existing := make([]string, len(s.Rename))
		renamed := make([]string, len(s.Rename))
		for i, r := range s.Rename {
			existing[i], renamed[i] = r.From, r.To
		}
		return in.Rename(existing, renamed), nil
	case s.Melt != nil:
		return in.Map(&logical.Melt{
			IDVars:       s.Melt.IDVars,
			ValueVars:    s.Melt.ValueVars,
			VariableName: s.Melt.VariableName,
			ValueName:    s.Melt.ValueName,
		}), nil
	case s.Cache:
		return in.Cache(), nil

	default:
		return in, fmt.Errorf("empty step")
	}
}

func (b *queryBuilder) join(in logical.Builder, j *Join) (logical.Builder, error) {
	other, err := b.frame(j.With)
	if err != nil {
		return in, fmt.Errorf("join: %w", err)
	}
	how := types.JoinTypeInner
	if j.How != "" {
		if how, err = types.ParseJoinType(j.How); err != nil {
			return in, err
		}
	}
	leftOn, rightOn := j.LeftOn, j.RightOn
	if j.On != nil {
		leftOn, rightOn = j.On, j.On
	}
	left, err := compileAll(leftOn)
	if err != nil {
		return in, err
	}
	right, err := compileAll(rightOn)
	if err != nil {
		return in, err
	}
	return in.JoinWithSuffix(other, left, right, how, j.Suffix), nil
}

func parseKeep(s string) (logical.DistinctKeep, error) {
	switch s {
	case "", "any":
		return logical.DistinctKeepAny, nil
	case "first":
		return logical.DistinctKeepFirst, nil
	case "last":
		return logical.DistinctKeepLast, nil
	case "none":
		return logical.DistinctKeepNone, nil
	default:
		return logical.DistinctKeepAny, fmt.Errorf("unknown keep strategy %q", s)
	}
}

func compileAll(exprs []Expr) ([]logical.Expr, error) {
	out := make([]logical.Expr, len(exprs))
	for i, e := range exprs {
		c, err := e.compile()
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	return out, nil
}

func (e Expr) compile() (logical.Expr, error) {
	out, err := e.compileBase()
	if err != nil {
		return out, err
	}
	if e.Over != nil {
		by, err := compileAll(e.Over)
		if err != nil {
			return out, err
		}
		out = out.Over(by...)
	}
	if e.Alias != "" {
		out = out.Alias(e.Alias)
	}
	return out, nil
}

func (e Expr) compileBase() (logical.Expr, error) {
	args, err := compileAll(e.Args)
	if err != nil {
		return logical.Expr{}, err
	}
	arity := func(name string, n int) error {
		if len(args) != n {
			return fmt.Errorf("%s takes %d arguments, got %d", name, n, len(args))
		}
		return nil
	}

	switch {
	case e.Col != "":
		return logical.Col(e.Col), nil

	case e.Series != nil:
		dt, err := datatype.Parse(e.Type)
		if err != nil {
			return logical.Expr{}, fmt.Errorf("series: %w", err)
		}
		return logical.LitSeries(dt, e.Series...), nil

	case e.Lit != nil:
		if e.Type == "" {
			return logical.Lit(e.Lit), nil
		}
		dt, err := datatype.Parse(e.Type)
		if err != nil {
			return logical.Expr{}, err
		}
		lit, err := types.NewLiteral(e.Lit).Cast(dt)
		if err != nil {
			return logical.Expr{}, err
		}
		return logical.LitValue(lit), nil

	case e.Op != "":
		op, err := types.ParseBinaryOp(e.Op)
		if err != nil {
			return logical.Expr{}, err
		}
		if err := arity(e.Op, 2); err != nil {
			return logical.Expr{}, err
		}
		return args[0].Binary(op, args[1]), nil

	case e.Fn != "":
		kind, err := types.ParseFunctionKind(e.Fn)
		if err != nil {
			return logical.Expr{}, err
		}
		if len(args) == 0 {
			return logical.Expr{}, fmt.Errorf("%s takes at least one argument", e.Fn)
		}
		return args[0].Function(kind, args[1:]...), nil

	case e.Agg != "":
		kind, err := types.ParseAggKind(e.Agg)
		if err != nil {
			return logical.Expr{}, err
		}
		if err := arity(e.Agg, 1); err != nil {
			return logical.Expr{}, err
		}
		return args[0].Agg(kind), nil

	case e.Cast != "":
		dt, err := datatype.Parse(e.Cast)
		if err != nil {
			return logical.Expr{}, err
		}
		if err := arity("cast", 1); err != nil {
			return logical.Expr{}, err
		}
		if e.Strict {
			return args[0].StrictCast(dt), nil
		}
		return args[0].Cast(dt), nil

	case e.When != nil:
		if e.Then == nil || e.Otherwise == nil {
			return logical.Expr{}, fmt.Errorf("when requires then and otherwise")
		}
		pred, err := e.When.compile()
		if err != nil {
			return logical.Expr{}, err
		}
		truthy, err := e.Then.compile()
		if err != nil {
			return logical.Expr{}, err
		}
		falsy, err := e.Otherwise.compile()
		if err != nil {
			return logical.Expr{}, err
		}
		return logical.When(pred).Then(truthy).Otherwise(falsy), nil

	case e.SortBy != nil:
		if err := arity("sort", 1); err != nil {
			return logical.Expr{}, err
		}
		return args[0].Sort(e.SortBy.Descending, e.SortBy.NullsLast), nil

	case e.Slice != nil:
		if err := arity("slice", 1); err != nil {
			return logical.Expr{}, err
		}
		return args[0].Slice(e.Slice.Offset, e.Slice.Len), nil

	case e.Type != "":
		dt, err := datatype.Parse(e.Type)
		if err != nil {
			return logical.Expr{}, err
		}
		return logical.LitValue(types.NewNull(dt)), nil

	default:
		return logical.Expr{}, fmt.Errorf("empty expression")
	}
}
