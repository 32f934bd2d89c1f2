package optimizer

// columns is a set of column names required by the parent of a node. A nil
// set requires every column.
type columns map[string]struct{}

func newColumns(names ...string) columns {
	c := make(columns, len(names))
	for _, n := range names {
		c[n] = struct{}{}
	}
	return c
}

// all returns true if every column is required.
func (c columns) all() bool { return c == nil }

func (c columns) has(name string) bool {
	if c == nil {
		return true
	}
	_, ok := c[name]
	return ok
}

// with returns a copy of c extended with names. The set of all columns is
// returned unchanged.
func (c columns) with(names ...string) columns {
	if c == nil {
		return nil
	}
	out := make(columns, len(c)+len(names))
	for n := range c {
		out[n] = struct{}{}
	}
	for _, n := range names {
		out[n] = struct{}{}
	}
	return out
}

// filter returns the names of ordered required by c, in order.
func (c columns) filter(ordered []string) []string {
	out := make([]string, 0, len(ordered))
	for _, n := range ordered {
		if c.has(n) {
			out = append(out, n)
		}
	}
	return out
}

// orAll returns c, or the set of all columns if c is empty. Operators
// always read at least one column so that row counts are known.
func (c columns) orAll() columns {
	if len(c) == 0 {
		return nil
	}
	return c
}
