package executor

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"
	"github.com/dolthub/swiss"
)

// Value tags of encoded keys. Integers of every width share a tag so that
// keys of different integer types compare equal.
const (
	tagNull byte = iota
	tagBool
	tagInt
	tagUint
	tagFloat
	tagString
	tagList
	tagOther
)

// appendKey appends an encoding of v to buf. Equal values have equal
// encodings.
func appendKey(buf []byte, v any) []byte {
	switch v := v.(type) {
	case nil:
		return append(buf, tagNull)
	case bool:
		if v {
			return append(buf, tagBool, 1)
		}
		return append(buf, tagBool, 0)
	case int32:
		return binary.LittleEndian.AppendUint64(append(buf, tagInt), uint64(v))
	case int64:
		return binary.LittleEndian.AppendUint64(append(buf, tagInt), uint64(v))
	case uint32:
		return binary.LittleEndian.AppendUint64(append(buf, tagInt), uint64(v))
	case uint64:
		if v > math.MaxInt64 {
			return binary.LittleEndian.AppendUint64(append(buf, tagUint), v)
		}
		return binary.LittleEndian.AppendUint64(append(buf, tagInt), v)
	case float64:
		return binary.LittleEndian.AppendUint64(append(buf, tagFloat), math.Float64bits(v))
	case string:
		buf = binary.AppendUvarint(append(buf, tagString), uint64(len(v)))
		return append(buf, v...)
	case []any:
		buf = binary.AppendUvarint(append(buf, tagList), uint64(len(v)))
		for _, e := range v {
			buf = appendKey(buf, e)
		}
		return buf
	default:
		s := fmt.Sprint(v)
		buf = binary.AppendUvarint(append(buf, tagOther), uint64(len(s)))
		return append(buf, s...)
	}
}

// rowKey encodes row i of cols.
func rowKey(buf []byte, cols []series, i int) []byte {
	buf = buf[:0]
	for _, c := range cols {
		buf = appendKey(buf, c.at(i))
	}
	return buf
}

// hasNull returns true if row i of any of cols is null.
func hasNull(cols []series, i int) bool {
	for _, c := range cols {
		if c.at(i) == nil {
			return true
		}
	}
	return false
}

// groupTable assigns group ids to encoded keys in order of first
// appearance and collects the rows of each group.
type groupTable struct {
	index *swiss.Map[uint64, []int]
	keys  []string
	rows  [][]int
}

func newGroupTable(size int) *groupTable {
	return &groupTable{index: swiss.NewMap[uint64, []int](uint32(max(size, 1)))}
}

// find returns the group of key.
func (t *groupTable) find(key []byte) (int, bool) {
	ids, _ := t.index.Get(xxhash.Sum64(key))
	for _, id := range ids {
		if t.keys[id] == string(key) {
			return id, true
		}
	}
	return -1, false
}

// add appends row to the group of key, creating the group if needed.
func (t *groupTable) add(key []byte, row int) int {
	h := xxhash.Sum64(key)
	ids, _ := t.index.Get(h)
	for _, id := range ids {
		if t.keys[id] == string(key) {
			t.rows[id] = append(t.rows[id], row)
			return id
		}
	}
	id := len(t.keys)
	t.keys = append(t.keys, string(key))
	t.rows = append(t.rows, []int{row})
	t.index.Put(h, append(ids, id))
	return id
}

func (t *groupTable) len() int { return len(t.keys) }

// groupRows groups the n rows of keys. It returns the rows of every group
// and the group of every row.
func groupRows(keys []series, n int) (groups [][]int, groupOf []int) {
	t := newGroupTable(n)
	groupOf = make([]int, n)
	var buf []byte
	for i := 0; i < n; i++ {
		buf = rowKey(buf, keys, i)
		groupOf[i] = t.add(buf, i)
	}
	return t.rows, groupOf
}

// allRows returns the indices [0, n).
func allRows(n int) []int {
	rows := make([]int, n)
	for i := range rows {
		rows[i] = i
	}
	return rows
}
