package executor

import (
	"fmt"
	"os"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/csv"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/grafana/lazyframe/pkg/engine/internal/datatype"
	"github.com/grafana/lazyframe/pkg/engine/internal/errors"
	"github.com/grafana/lazyframe/pkg/engine/internal/planner/logical"
)

// csvChunkSize is the number of rows per record read from CSV files.
const csvChunkSize = 4096

// scan reads files. The rows read are limited by the slice of the node
// before its predicates are applied.
type scan struct {
	ev     evaluator
	node   *logical.Scan
	schema *arrow.Schema
}

func newScan(ev evaluator, n *logical.Scan, out *arrow.Schema) (*scan, error) {
	switch n.Format {
	case logical.ScanFormatCSV, logical.ScanFormatIPC, logical.ScanFormatParquet:
	default:
		return nil, fmt.Errorf("%w: scan format %s", errors.ErrNotImplemented, n.Format)
	}
	if len(n.Sources) == 0 {
		return nil, fmt.Errorf("scan without sources")
	}
	return &scan{ev: ev, node: n, schema: out}, nil
}

func (s *scan) name() string {
	return "scan(" + strings.Join(s.node.Sources, ", ") + ")"
}

func (s *scan) Execute(state *State) (arrow.Record, error) {
	rec, err := s.read(state)
	if err != nil {
		return nil, err
	}
	defer rec.Release()

	if sl := s.node.Slice; sl != nil {
		sliced := sliceRecord(rec, sl.Offset, sl.Len)
		defer sliced.Release()
		rec = sliced
	}

	filtered, err := filterRecord(state.mem, s.ev, rec, s.node.Predicates)
	if err != nil {
		return nil, err
	}
	defer filtered.Release()
	return selectColumns(filtered, s.schema)
}

// read returns every row of the sources. Scans sharing a file cache entry
// read the files once.
func (s *scan) read(state *State) (arrow.Record, error) {
	fc := s.node.FileCache
	if fc == nil {
		return readSources(state.mem, s.node, nil)
	}
	entry, _ := state.files.LoadOrCompute(fc.Key, func() *sharedResult {
		return &sharedResult{remaining: fc.Count}
	})
	return entry.get(func() (arrow.Record, error) {
		return readSources(state.mem, s.node, fc.Columns)
	})
}

// readSources reads every source of n and keeps the given columns, or
// every column if columns is nil.
func readSources(mem memory.Allocator, n *logical.Scan, columns []string) (arrow.Record, error) {
	fileSchema := n.FileSchema.Arrow()

	var recs []arrow.Record
	defer func() {
		for _, rec := range recs {
			rec.Release()
		}
	}()
	for _, path := range n.Sources {
		var (
			read []arrow.Record
			err  error
		)
		switch n.Format {
		case logical.ScanFormatCSV:
			read, err = readCSV(mem, path, fileSchema, n.HasHeader, n.Delimiter)
		case logical.ScanFormatParquet:
			read, err = readParquet(mem, path, fileSchema)
		default:
			read, err = readIPC(mem, path, fileSchema)
		}
		recs = append(recs, read...)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
	}

	all, err := concatRecords(mem, fileSchema, recs)
	if err != nil {
		return nil, err
	}
	if columns == nil {
		return all, nil
	}
	defer all.Release()

	keep, err := n.FileSchema.Select(columns)
	if err != nil {
		return nil, err
	}
	return selectColumns(all, keep.Arrow())
}

func readCSV(mem memory.Allocator, path string, schema *arrow.Schema, header bool, delimiter rune) ([]arrow.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	opts := []csv.Option{
		csv.WithAllocator(mem),
		csv.WithHeader(header),
		csv.WithChunk(csvChunkSize),
		csv.WithNullReader(true, ""),
	}
	if delimiter != 0 {
		opts = append(opts, csv.WithComma(delimiter))
	}
	r := csv.NewReader(f, schema, opts...)
	defer r.Release()

	var recs []arrow.Record
	for r.Next() {
		rec := r.Record()
		rec.Retain()
		recs = append(recs, rec)
	}
	return recs, r.Err()
}

func readIPC(mem memory.Allocator, path string, schema *arrow.Schema) ([]arrow.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r, err := ipc.NewReader(f, ipc.WithAllocator(mem))
	if err != nil {
		return nil, err
	}
	defer r.Release()

	var recs []arrow.Record
	for r.Next() {
		rec, err := selectColumns(r.Record(), schema)
		if err != nil {
			return recs, err
		}
		recs = append(recs, rec)
	}
	return recs, r.Err()
}

// selectColumns returns the columns of rec named by the fields of schema,
// in the order of schema.
func selectColumns(rec arrow.Record, schema *arrow.Schema) (arrow.Record, error) {
	cols := make([]arrow.Array, 0, schema.NumFields())
	for _, f := range schema.Fields() {
		idx, err := columnIndex(rec, f.Name)
		if err != nil {
			for _, c := range cols {
				c.Release()
			}
			return nil, err
		}
		col := rec.Column(idx)
		if !datatype.Equal(col.DataType(), f.Type) {
			for _, c := range cols {
				c.Release()
			}
			return nil, fmt.Errorf("%w: column %q has type %s, expected %s", errors.ErrSchemaMismatch, f.Name, datatype.Name(col.DataType()), datatype.Name(f.Type))
		}
		col.Retain()
		cols = append(cols, col)
	}
	return newRecord(schema, cols, int(rec.NumRows())), nil
}

// dataFrameScan reads an in-memory record.
type dataFrameScan struct {
	ev     evaluator
	node   *logical.DataFrameScan
	schema *arrow.Schema
}

func (s *dataFrameScan) name() string { return "df_scan" }

func (s *dataFrameScan) Execute(state *State) (arrow.Record, error) {
	filtered, err := filterRecord(state.mem, s.ev, s.node.Data, s.node.Predicates)
	if err != nil {
		return nil, err
	}
	defer filtered.Release()
	return selectColumns(filtered, s.schema)
}
