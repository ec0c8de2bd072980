// Package rowbatch is the columnar batch currency shared by every tier of
// the engine: insert builds one, scan streams them out, dump re-reads and
// rewrites them. It is a thin wrapper over arrow.Record (the same major
// version the teacher depends on directly), adding the one thing the base
// spec's "record batch" needs that arrow.Record alone doesn't give for
// free: O(1) column lookup by name and a convenience path for prepending
// the internal row_id column.
package rowbatch

import (
	"fmt"

	"github.com/apache/arrow/go/v11/arrow"
	"github.com/apache/arrow/go/v11/arrow/array"
	"github.com/apache/arrow/go/v11/arrow/memory"

	"github.com/indexlake/indexlake/pkg/lakeerrors"
)

// RowIDColumn is the name of the internal column carrying each row's
// monotone identity. It is never exposed to callers unless explicitly
// projected by this exact name.
const RowIDColumn = "_indexlake_row_id"

// Allocator is the shared memory pool used to build every batch. Arrow's
// default allocator (a thin wrapper over Go's allocator) is sufficient;
// a pooled allocator can be substituted by callers that embed this
// package in a larger process.
var Allocator = memory.NewGoAllocator()

// Batch wraps an arrow.Record with a name→index map so callers can look
// columns up by user-schema name without rescanning the schema on every
// access.
type Batch struct {
	rec     arrow.Record
	byName  map[string]int
}

// Wrap adopts an existing arrow.Record. Retain is not called; callers
// that need to keep rec alive past this Batch's lifetime must Retain it
// themselves.
func Wrap(rec arrow.Record) *Batch {
	b := &Batch{rec: rec, byName: make(map[string]int, len(rec.Schema().Fields()))}
	for i, f := range rec.Schema().Fields() {
		b.byName[f.Name] = i
	}
	return b
}

// NumRows returns the number of rows in the batch.
func (b *Batch) NumRows() int64 { return b.rec.NumRows() }

// Schema returns the batch's Arrow schema, including the row_id column
// if present.
func (b *Batch) Schema() *arrow.Schema { return b.rec.Schema() }

// Record returns the underlying arrow.Record.
func (b *Batch) Record() arrow.Record { return b.rec }

// Release drops one reference to the underlying Arrow record; each call
// must be matched by the initial reference or a Retain.
func (b *Batch) Release() {
	if b.rec != nil {
		b.rec.Release()
	}
}

// Retain increments the underlying Arrow record's reference count.
func (b *Batch) Retain() {
	if b.rec != nil {
		b.rec.Retain()
	}
}

// ColumnIndex returns the 0-based index of a column by name, or an
// invalid-argument error if it does not exist.
func (b *Batch) ColumnIndex(name string) (int, error) {
	idx, ok := b.byName[name]
	if !ok {
		return -1, lakeerrors.InvalidArgument("unknown column %q", name)
	}
	return idx, nil
}

// Column returns a column by name.
func (b *Batch) Column(name string) (arrow.Array, error) {
	idx, err := b.ColumnIndex(name)
	if err != nil {
		return nil, err
	}
	return b.rec.Column(idx), nil
}

// RowIDs returns the row_id column as a plain int64 slice. It is an
// integrity violation for the column to be absent or of the wrong type,
// since every internal batch is expected to carry it.
func (b *Batch) RowIDs() ([]int64, error) {
	col, err := b.Column(RowIDColumn)
	if err != nil {
		return nil, lakeerrors.IntegrityViolation("batch is missing %s column: %v", RowIDColumn, err)
	}
	arr, ok := col.(*array.Int64)
	if !ok {
		return nil, lakeerrors.IntegrityViolation("%s column has type %T, want int64", RowIDColumn, col)
	}
	out := make([]int64, arr.Len())
	for i := 0; i < arr.Len(); i++ {
		out[i] = arr.Value(i)
	}
	return out, nil
}

// PrependRowIDColumn returns a new Batch with an int64 row_id column
// inserted at position 0, populated from ids (len(ids) must equal
// rec.NumRows()). This is how insert (§4.4 step 3) attaches freshly
// allocated identities to a user-supplied batch before it ever touches
// the catalog.
func PrependRowIDColumn(rec arrow.Record, ids []int64) (*Batch, error) {
	if int64(len(ids)) != rec.NumRows() {
		return nil, lakeerrors.InvalidArgument("row id count %d does not match batch row count %d", len(ids), rec.NumRows())
	}
	bldr := array.NewInt64Builder(Allocator)
	defer bldr.Release()
	bldr.AppendValues(ids, nil)
	idCol := bldr.NewInt64Array()
	defer idCol.Release()

	fields := make([]arrow.Field, 0, len(rec.Schema().Fields())+1)
	cols := make([]arrow.Array, 0, len(rec.Schema().Fields())+1)
	fields = append(fields, arrow.Field{Name: RowIDColumn, Type: arrow.PrimitiveTypes.Int64})
	cols = append(cols, idCol)
	for i, f := range rec.Schema().Fields() {
		fields = append(fields, f)
		cols = append(cols, rec.Column(i))
	}
	schema := arrow.NewSchema(fields, nil)
	newRec := array.NewRecord(schema, cols, rec.NumRows())
	return Wrap(newRec), nil
}

// DropColumn returns a new Batch without the named column, e.g. to strip
// row_id before handing a scan result back to the caller.
func (b *Batch) DropColumn(name string) (*Batch, error) {
	idx, err := b.ColumnIndex(name)
	if err != nil {
		return nil, err
	}
	fields := make([]arrow.Field, 0, len(b.rec.Schema().Fields())-1)
	cols := make([]arrow.Array, 0, len(b.rec.Schema().Fields())-1)
	for i, f := range b.rec.Schema().Fields() {
		if i == idx {
			continue
		}
		fields = append(fields, f)
		cols = append(cols, b.rec.Column(i))
	}
	schema := arrow.NewSchema(fields, nil)
	newRec := array.NewRecord(schema, cols, b.rec.NumRows())
	return Wrap(newRec), nil
}

// Project returns a new Batch containing only the named columns, in the
// order requested, e.g. for §4.5's optional projection argument.
func (b *Batch) Project(names []string) (*Batch, error) {
	fields := make([]arrow.Field, 0, len(names))
	cols := make([]arrow.Array, 0, len(names))
	for _, name := range names {
		idx, err := b.ColumnIndex(name)
		if err != nil {
			return nil, err
		}
		fields = append(fields, b.rec.Schema().Field(idx))
		cols = append(cols, b.rec.Column(idx))
	}
	schema := arrow.NewSchema(fields, nil)
	newRec := array.NewRecord(schema, cols, b.rec.NumRows())
	return Wrap(newRec), nil
}

// Slice returns the [i, j) row range as a new Batch, sharing buffers
// with the parent (Arrow slices are views).
func (b *Batch) Slice(i, j int64) *Batch {
	return Wrap(b.rec.NewSlice(i, j))
}

// ScalarAt extracts row i of arr as a driver-compatible scalar value
// (bool, int64, float64, string, []byte, or time.Time for timestamps),
// the conversion both insert's
// inline-row SQL binding and update's re-read-to-batch path need. Callers
// must check arr.IsNull(i) themselves; ScalarAt assumes the value is
// present.
func ScalarAt(arr arrow.Array, i int) (interface{}, error) {
	switch a := arr.(type) {
	case *array.Boolean:
		return a.Value(i), nil
	case *array.Int8:
		return int64(a.Value(i)), nil
	case *array.Int16:
		return int64(a.Value(i)), nil
	case *array.Int32:
		return int64(a.Value(i)), nil
	case *array.Int64:
		return a.Value(i), nil
	case *array.Float32:
		return float64(a.Value(i)), nil
	case *array.Float64:
		return a.Value(i), nil
	case *array.String:
		return a.Value(i), nil
	case *array.Binary:
		return a.Value(i), nil
	case *array.Timestamp:
		return a.Value(i).ToTime(arrow.Microsecond), nil
	default:
		return nil, lakeerrors.InvalidArgument("unsupported column type %T for scalar extraction", arr)
	}
}

// Concat concatenates same-schema batches into one, e.g. to flatten a
// merged scan stream's per-tier batches when a caller wants a single
// result. Caller owns the returned Batch.
func Concat(batches []*Batch) (*Batch, error) {
	if len(batches) == 0 {
		return nil, lakeerrors.InvalidArgument("cannot concat zero batches")
	}
	schema := batches[0].Schema()
	var totalRows int64
	recs := make([]arrow.Record, len(batches))
	for i, b := range batches {
		if !b.Schema().Equal(schema) {
			return nil, lakeerrors.InvalidArgument("schema mismatch concatenating batch %d: %v vs %v", i, b.Schema(), schema)
		}
		recs[i] = b.rec
		totalRows += b.NumRows()
	}
	table := array.NewTableFromRecords(schema, recs)
	defer table.Release()
	tr := array.NewTableReader(table, totalRows)
	defer tr.Release()
	if !tr.Next() {
		return nil, fmt.Errorf("rowbatch: concat produced no record")
	}
	rec := tr.Record()
	rec.Retain()
	return Wrap(rec), nil
}
