package logical

import (
	"encoding/binary"
	"fmt"
	"math"
	"slices"

	"github.com/cespare/xxhash/v2"

	"github.com/grafana/lazyframe/pkg/engine/internal/arena"
	"github.com/grafana/lazyframe/pkg/engine/internal/datatype"
)

// hasher writes structural encodings of plan nodes and expressions into an
// xxhash digest. Fields are separated by a zero byte.
type hasher struct {
	plan   *Plan
	digest *xxhash.Digest
	buf    [8]byte
}

func newHasher(p *Plan) *hasher {
	return &hasher{plan: p, digest: xxhash.New()}
}

func (h *hasher) str(s string) {
	_, _ = h.digest.WriteString(s)
	_, _ = h.digest.Write([]byte{0})
}

func (h *hasher) u64(v uint64) {
	binary.LittleEndian.PutUint64(h.buf[:], v)
	_, _ = h.digest.Write(h.buf[:])
}

func (h *hasher) value(v any) {
	switch val := v.(type) {
	case float64:
		h.u64(math.Float64bits(val))
	default:
		h.str(fmt.Sprintf("%T:%v", v, v))
	}
}

func (h *hasher) expr(e arena.Node) {
	expr := h.plan.Expr(e)
	h.str(fmt.Sprintf("%T", expr))
	switch expr := expr.(type) {
	case *ColumnExpr:
		h.str(expr.Name)
	case *LiteralExpr:
		h.str(datatype.Name(expr.Value.Type))
		if !expr.Value.IsScalar() {
			h.str("series")
		}
		for _, v := range expr.Value.Values() {
			h.value(v)
		}
	case *BinaryExpr:
		h.u64(uint64(expr.Op))
	case *FunctionExpr:
		h.u64(uint64(expr.Kind))
	case *CastExpr:
		h.str(datatype.Name(expr.To))
		h.value(expr.Strict)
	case *AliasExpr:
		h.str(expr.Name)
	case *AggExpr:
		h.u64(uint64(expr.Kind))
	case *SortExpr:
		h.value(expr.Descending)
		h.value(expr.NullsLast)
	case *SliceExpr:
		h.u64(uint64(expr.Offset))
		h.u64(expr.Length)
	}
	inputs := Inputs(expr)
	h.u64(uint64(len(inputs)))
	for _, in := range inputs {
		h.expr(in)
	}
}

func (h *hasher) slice(s *SliceOptions) {
	if s == nil {
		h.str("-")
		return
	}
	h.u64(uint64(s.Offset))
	h.u64(s.Len)
}

func (h *hasher) strs(ss []string) {
	h.u64(uint64(len(ss)))
	for _, s := range ss {
		h.str(s)
	}
}

func (h *hasher) exprs(es []arena.Node) {
	h.u64(uint64(len(es)))
	for _, e := range es {
		h.expr(e)
	}
}

// node hashes a plan node without its inputs.
func (h *hasher) node(n IR) {
	h.str(fmt.Sprintf("%T", n))
	switch n := n.(type) {
	case *Scan:
		h.strs(n.Sources)
		h.u64(uint64(n.Format))
		h.strs(n.FileSchema.Names())
		h.strs(n.Projection)
		if n.Projection == nil {
			h.str("*")
		}
		h.slice(n.Slice)
		h.exprs(n.Predicates)
	case *DataFrameScan:
		// In-memory frames only compare equal to themselves.
		h.str(fmt.Sprintf("%p", n.Data))
		h.strs(n.Projection)
		h.exprs(n.Predicates)
	case *Filter:
		h.expr(n.Predicate)
	case *Select:
		h.exprs(n.Exprs)
	case *HStack:
		h.exprs(n.Exprs)
	case *SimpleProjection:
		h.strs(n.Columns)
	case *Aggregate:
		h.exprs(n.Keys)
		h.exprs(n.Aggs)
		h.value(n.MaintainOrder)
		h.slice(n.Slice)
	case *Join:
		h.exprs(n.LeftOn)
		h.exprs(n.RightOn)
		h.u64(uint64(n.Type))
		h.str(n.Suffix)
		h.slice(n.Slice)
	case *Sort:
		h.exprs(n.By)
		for _, d := range n.Descending {
			h.value(d)
		}
		h.value(n.NullsLast)
		h.value(n.MaintainOrder)
		h.slice(n.Slice)
	case *Slice:
		h.u64(uint64(n.Offset))
		h.u64(n.Len)
	case *Distinct:
		h.strs(n.Subset)
		h.u64(uint64(n.Keep))
		h.value(n.MaintainOrder)
		h.slice(n.Slice)
	case *Union:
		h.slice(n.Slice)
	case *HConcat:
		h.slice(n.Slice)
	case *MapFunction:
		h.str(fmt.Sprintf("%T:%+v", n.Function, mapFuncKey(n.Function)))
	case *Cache:
		h.u64(n.ID)
	}
}

func mapFuncKey(fn MapFunc) any {
	if u, ok := fn.(*Udf); ok {
		// Functions are not comparable; identify user functions by address.
		return fmt.Sprintf("%s@%p", u.Label, u)
	}
	return fn
}

// ExprHash returns a structural fingerprint of expression e.
func (p *Plan) ExprHash(e arena.Node) uint64 {
	h := newHasher(p)
	h.expr(e)
	return h.digest.Sum64()
}

// ExprEqual returns true if a and b are structurally identical.
func (p *Plan) ExprEqual(a, b arena.Node) bool {
	if a == b {
		return true
	}
	ea, eb := p.Expr(a), p.Expr(b)
	if !shallowExprEqual(ea, eb) {
		return false
	}
	ia, ib := Inputs(ea), Inputs(eb)
	if len(ia) != len(ib) {
		return false
	}
	for i := range ia {
		if !p.ExprEqual(ia[i], ib[i]) {
			return false
		}
	}
	return true
}

func shallowExprEqual(a, b AExpr) bool {
	switch a := a.(type) {
	case *ColumnExpr:
		b, ok := b.(*ColumnExpr)
		return ok && a.Name == b.Name
	case *LiteralExpr:
		b, ok := b.(*LiteralExpr)
		return ok && a.Value.Equal(b.Value)
	case *BinaryExpr:
		b, ok := b.(*BinaryExpr)
		return ok && a.Op == b.Op
	case *FunctionExpr:
		b, ok := b.(*FunctionExpr)
		return ok && a.Kind == b.Kind
	case *CastExpr:
		b, ok := b.(*CastExpr)
		return ok && datatype.Equal(a.To, b.To) && a.Strict == b.Strict
	case *AliasExpr:
		b, ok := b.(*AliasExpr)
		return ok && a.Name == b.Name
	case *AggExpr:
		b, ok := b.(*AggExpr)
		return ok && a.Kind == b.Kind
	case *WindowExpr:
		_, ok := b.(*WindowExpr)
		return ok
	case *TernaryExpr:
		_, ok := b.(*TernaryExpr)
		return ok
	case *SortExpr:
		b, ok := b.(*SortExpr)
		return ok && a.Descending == b.Descending && a.NullsLast == b.NullsLast
	case *SliceExpr:
		b, ok := b.(*SliceExpr)
		return ok && a.Offset == b.Offset && a.Length == b.Length
	default:
		return false
	}
}

// NodeHash returns a structural fingerprint of the subtree rooted at id.
func (p *Plan) NodeHash(id arena.Node) uint64 {
	h := newHasher(p)
	p.hashSubtree(h, id)
	return h.digest.Sum64()
}

func (p *Plan) hashSubtree(h *hasher, id arena.Node) {
	n := p.Node(id)
	h.node(n)
	children := Children(n)
	h.u64(uint64(len(children)))
	for _, c := range children {
		p.hashSubtree(h, c)
	}
}

// NodeEqual returns true if the subtrees rooted at a and b are structurally
// identical.
func (p *Plan) NodeEqual(a, b arena.Node) bool {
	if a == b {
		return true
	}
	na, nb := p.Node(a), p.Node(b)
	ha, hb := newHasher(p), newHasher(p)
	ha.node(na)
	hb.node(nb)
	if ha.digest.Sum64() != hb.digest.Sum64() || !p.nodeExprsEqual(na, nb) {
		return false
	}
	ca, cb := Children(na), Children(nb)
	if len(ca) != len(cb) {
		return false
	}
	for i := range ca {
		if !p.NodeEqual(ca[i], cb[i]) {
			return false
		}
	}
	return true
}

func (p *Plan) nodeExprsEqual(a, b IR) bool {
	ea, eb := Expressions(a), Expressions(b)
	return slices.EqualFunc(ea, eb, p.ExprEqual)
}
