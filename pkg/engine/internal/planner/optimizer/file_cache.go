package optimizer

import (
	"slices"
	"strconv"

	"github.com/cespare/xxhash/v2"

	"github.com/grafana/lazyframe/pkg/engine/internal/arena"
	"github.com/grafana/lazyframe/pkg/engine/internal/planner/logical"
	"github.com/grafana/lazyframe/pkg/engine/internal/util/dag"
)

// fileCaching marks scans of the same files so that the files are read
// once. Each scan then selects its own columns from the shared read.
type fileCaching struct {
	plan *logical.Plan
}

func newFileCaching(plan *logical.Plan) *fileCaching {
	return &fileCaching{plan: plan}
}

func (f *fileCaching) optimize(root arena.Node) (bool, error) {
	p := f.plan
	var (
		order  []uint64
		groups = map[uint64][]*logical.Scan{}
	)
	err := p.Walk(root, func(id arena.Node) error {
		scan, ok := p.Node(id).(*logical.Scan)
		if !ok || len(scan.Predicates) > 0 {
			return nil
		}
		key := scanKey(scan)
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], scan)
		return nil
	}, dag.PreOrderWalk)
	if err != nil {
		return false, err
	}

	changed := false
	for _, key := range order {
		scans := groups[key]
		if len(scans) < 2 {
			continue
		}
		columns := readColumns(scans)
		for _, scan := range scans {
			scan.FileCache = &logical.FileCache{Key: key, Columns: columns, Count: len(scans)}
		}
		changed = true
	}
	return changed, nil
}

// scanKey identifies the rows read by a scan, regardless of its
// projection.
func scanKey(scan *logical.Scan) uint64 {
	d := xxhash.New()
	for _, src := range scan.Sources {
		_, _ = d.WriteString(src)
		_, _ = d.Write([]byte{0})
	}
	_, _ = d.WriteString(scan.Format.String())
	_, _ = d.WriteString(strconv.FormatBool(scan.HasHeader))
	_, _ = d.WriteString(string(scan.Delimiter))
	if scan.Slice != nil {
		_, _ = d.WriteString(strconv.FormatInt(scan.Slice.Offset, 10))
		_, _ = d.WriteString(strconv.FormatUint(scan.Slice.Len, 10))
	}
	return d.Sum64()
}

// readColumns returns the union of the projections of scans in file order,
// or nil if any scan reads every column.
func readColumns(scans []*logical.Scan) []string {
	needed := newColumns()
	for _, scan := range scans {
		if scan.Projection == nil {
			return nil
		}
		for _, c := range scan.Projection {
			needed[c] = struct{}{}
		}
	}
	names := scans[0].FileSchema.Names()
	return slices.Clip(needed.filter(names))
}
