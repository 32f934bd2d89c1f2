package executor

import (
	"fmt"
	"io"
	"os"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/parquet-go/parquet-go"

	"github.com/grafana/lazyframe/pkg/engine/internal/datatype"
	"github.com/grafana/lazyframe/pkg/engine/internal/errors"
)

// parquetBatchSize is the number of rows read from a row group at once.
const parquetBatchSize = 1024

// readParquet reads the columns of schema from a Parquet file, one record
// per row group. Columns of the file missing from schema are skipped.
func readParquet(mem memory.Allocator, path string, schema *arrow.Schema) ([]arrow.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	pf, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		return nil, err
	}

	fields, err := parquetFields(pf.Schema(), schema)
	if err != nil {
		return nil, err
	}

	var recs []arrow.Record
	for _, rg := range pf.RowGroups() {
		rec, err := readRowGroup(mem, rg, schema, fields)
		if err != nil {
			return recs, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// parquetFields maps the leaf column index of every field of schema in ps to
// the position of the field.
func parquetFields(ps *parquet.Schema, schema *arrow.Schema) (map[int]int, error) {
	fields := make(map[int]int, schema.NumFields())
	for i, f := range schema.Fields() {
		leaf, ok := ps.Lookup(f.Name)
		if !ok {
			return nil, fmt.Errorf("%w: column %q not found in parquet schema", errors.ErrSchemaMismatch, f.Name)
		}
		if leaf.MaxRepetitionLevel > 0 {
			return nil, fmt.Errorf("%w: repeated parquet column %q", errors.ErrNotImplemented, f.Name)
		}
		if kind := leaf.Node.Type().Kind(); !parquetKindMatches(kind, f.Type) {
			return nil, fmt.Errorf("%w: parquet column %q of kind %s, expected %s", errors.ErrSchemaMismatch, f.Name, kind, datatype.Name(f.Type))
		}
		fields[leaf.ColumnIndex] = i
	}
	return fields, nil
}

func parquetKindMatches(kind parquet.Kind, dt arrow.DataType) bool {
	switch dt.ID() {
	case arrow.BOOL:
		return kind == parquet.Boolean
	case arrow.INT32, arrow.UINT32:
		return kind == parquet.Int32
	case arrow.INT64, arrow.UINT64:
		return kind == parquet.Int64
	case arrow.FLOAT64:
		return kind == parquet.Float || kind == parquet.Double
	case arrow.STRING:
		return kind == parquet.ByteArray
	default:
		return false
	}
}

func readRowGroup(mem memory.Allocator, rg parquet.RowGroup, schema *arrow.Schema, fields map[int]int) (arrow.Record, error) {
	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()
	b.Reserve(int(rg.NumRows()))

	rows := rg.Rows()
	defer rows.Close()

	buf := make([]parquet.Row, parquetBatchSize)
	for {
		n, err := rows.ReadRows(buf)
		for _, row := range buf[:n] {
			for _, v := range row {
				i, ok := fields[v.Column()]
				if !ok {
					continue
				}
				if err := appendValue(b.Field(i), parquetValue(v, schema.Field(i).Type)); err != nil {
					return nil, err
				}
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	return b.NewRecord(), nil
}

// parquetValue converts v to the value representation of dt.
func parquetValue(v parquet.Value, dt arrow.DataType) any {
	if v.IsNull() {
		return nil
	}
	switch dt.ID() {
	case arrow.BOOL:
		return v.Boolean()
	case arrow.INT32:
		return v.Int32()
	case arrow.UINT32:
		return uint32(v.Int32())
	case arrow.INT64:
		return v.Int64()
	case arrow.UINT64:
		return uint64(v.Int64())
	case arrow.FLOAT64:
		if v.Kind() == parquet.Float {
			return float64(v.Float())
		}
		return v.Double()
	default:
		return string(v.ByteArray())
	}
}
