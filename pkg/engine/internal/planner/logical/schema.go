package logical

import (
	"fmt"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/grafana/lazyframe/pkg/engine/internal/datatype"
	"github.com/grafana/lazyframe/pkg/engine/internal/errors"
)

// Field is a named, typed column.
type Field struct {
	Name string
	Type arrow.DataType
}

func (f Field) String() string { return f.Name + ":" + datatype.Name(f.Type) }

// Schema is an ordered list of uniquely named fields.
type Schema struct {
	fields []Field
	index  map[string]int
}

// NewSchema returns a schema of the given fields. Later fields replace
// earlier fields with the same name in place.
func NewSchema(fields ...Field) *Schema {
	s := &Schema{index: make(map[string]int, len(fields))}
	for _, f := range fields {
		s.Upsert(f)
	}
	return s
}

// SchemaFromArrow converts an arrow schema.
func SchemaFromArrow(as *arrow.Schema) *Schema {
	fields := make([]Field, 0, as.NumFields())
	for _, f := range as.Fields() {
		fields = append(fields, Field{Name: f.Name, Type: f.Type})
	}
	return NewSchema(fields...)
}

// Upsert appends f, or replaces the field with the same name keeping its
// position.
func (s *Schema) Upsert(f Field) {
	if i, ok := s.index[f.Name]; ok {
		s.fields[i] = f
		return
	}
	s.index[f.Name] = len(s.fields)
	s.fields = append(s.fields, f)
}

func (s *Schema) Len() int { return len(s.fields) }

// Fields returns the fields of the schema. The returned slice must not be
// modified.
func (s *Schema) Fields() []Field { return s.fields }

func (s *Schema) Field(i int) Field { return s.fields[i] }

// Get returns the field called name.
func (s *Schema) Get(name string) (Field, bool) {
	i, ok := s.index[name]
	if !ok {
		return Field{}, false
	}
	return s.fields[i], true
}

// Index returns the position of the field called name, or -1.
func (s *Schema) Index(name string) int {
	if i, ok := s.index[name]; ok {
		return i
	}
	return -1
}

func (s *Schema) Contains(name string) bool {
	_, ok := s.index[name]
	return ok
}

// ContainsAll returns true if every name is part of the schema.
func (s *Schema) ContainsAll(names []string) bool {
	for _, n := range names {
		if !s.Contains(n) {
			return false
		}
	}
	return true
}

// Names returns the field names in order.
func (s *Schema) Names() []string {
	names := make([]string, len(s.fields))
	for i, f := range s.fields {
		names[i] = f.Name
	}
	return names
}

// Select returns a schema with the named fields, in the given order.
func (s *Schema) Select(names []string) (*Schema, error) {
	out := NewSchema()
	for _, n := range names {
		f, ok := s.Get(n)
		if !ok {
			return nil, fmt.Errorf("%w: %q", errors.ErrColumnNotFound, n)
		}
		out.Upsert(f)
	}
	return out, nil
}

// Filter returns a schema with the fields of s whose names are in keep,
// in the order of s.
func (s *Schema) Filter(keep func(name string) bool) *Schema {
	out := NewSchema()
	for _, f := range s.fields {
		if keep(f.Name) {
			out.Upsert(f)
		}
	}
	return out
}

// Equal compares names, types and order.
func (s *Schema) Equal(o *Schema) bool {
	if s.Len() != o.Len() {
		return false
	}
	for i, f := range s.fields {
		g := o.fields[i]
		if f.Name != g.Name || !datatype.Equal(f.Type, g.Type) {
			return false
		}
	}
	return true
}

// Arrow converts the schema.
func (s *Schema) Arrow() *arrow.Schema {
	fields := make([]arrow.Field, len(s.fields))
	for i, f := range s.fields {
		fields[i] = arrow.Field{Name: f.Name, Type: f.Type, Nullable: true}
	}
	return arrow.NewSchema(fields, nil)
}

func (s *Schema) String() string {
	parts := make([]string, len(s.fields))
	for i, f := range s.fields {
		parts[i] = f.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
