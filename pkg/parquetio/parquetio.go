// Package parquetio wraps github.com/apache/arrow/go/v11/parquet/pqarrow
// to give the dump task (§4.7) and scan's external-tier read path (§4.5
// step 2c) a columnar file writer/reader keyed by
// (row_group_index, row_offset_in_group) — the addressing unit invariant
// 4 requires every "parquet:P:g:o" location string to resolve against.
// Grounded on the teacher's own direct go.mod dependency on
// github.com/apache/arrow/go/v11 and on pkg/util/parquet/decoders.go's
// arrow-typed physical-type table, which confirms the same major version
// of the library this module imports directly.
package parquetio

import (
	"context"
	"io"

	"github.com/apache/arrow/go/v11/arrow"
	"github.com/apache/arrow/go/v11/parquet"
	"github.com/apache/arrow/go/v11/parquet/compress"
	"github.com/apache/arrow/go/v11/parquet/file"
	"github.com/apache/arrow/go/v11/parquet/pqarrow"

	"github.com/indexlake/indexlake/pkg/lakeerrors"
	"github.com/indexlake/indexlake/pkg/rowbatch"
)

// WriterOptions configures the underlying parquet writer. The zero value
// writes uncompressed column chunks; DefaultWriterOptions selects snappy.
type WriterOptions struct {
	Compression compress.Compression
}

// DefaultWriterOptions selects snappy compression. The parquet library's
// own default, like the zero WriterOptions, is uncompressed.
func DefaultWriterOptions() WriterOptions {
	return WriterOptions{Compression: compress.Codecs.Snappy}
}

// RowLocation is the (row_group_index, row_offset_in_group) pair the
// dump task records for each row it writes (§4.7 step 4), and that scan
// uses to re-read a specific row out of a specific row group (§4.5 step
// 2c).
type RowLocation struct {
	RowGroup int
	Offset   int
}

// Writer streams rowbatch.Batch values into one parquet file, one row
// group per batch, and reports each input row's resulting RowLocation in
// the order it was written.
type Writer struct {
	schema *arrow.Schema
	fw     *pqarrow.FileWriter
	nextRG int
}

// NewWriter opens a streaming parquet writer over w for schema.
func NewWriter(schema *arrow.Schema, w io.Writer, opts WriterOptions) (*Writer, error) {
	props := parquet.NewWriterProperties(parquet.WithCompression(opts.Compression))
	arrProps := pqarrow.DefaultWriterProps()
	fw, err := pqarrow.NewFileWriter(schema, w, props, arrProps)
	if err != nil {
		return nil, lakeerrors.Storage(err, "open parquet writer")
	}
	return &Writer{schema: schema, fw: fw}, nil
}

// WriteBatch writes one batch as a new row group and returns the
// RowLocation of every row in the batch, in row order, for the caller to
// zip against the batch's row_ids (§4.7 step 4 — "record for each row
// the emitted (row_group_index, row_offset_within_group)").
func (w *Writer) WriteBatch(batch *rowbatch.Batch) ([]RowLocation, error) {
	w.fw.NewRowGroup()
	if err := w.fw.Write(batch.Record()); err != nil {
		return nil, lakeerrors.Storage(err, "write row group")
	}
	rg := w.nextRG
	w.nextRG++
	n := int(batch.NumRows())
	locs := make([]RowLocation, n)
	for i := 0; i < n; i++ {
		locs[i] = RowLocation{RowGroup: rg, Offset: i}
	}
	return locs, nil
}

// Close finalizes the file. Must be called exactly once, after the last
// WriteBatch.
func (w *Writer) Close() error {
	if err := w.fw.Close(); err != nil {
		return lakeerrors.Storage(err, "close parquet writer")
	}
	return nil
}

// randomAccessReaderAt adapts storage.Reader's context-taking ReadAt to
// the context-free io.ReaderAt the arrow/parquet file reader expects.
type randomAccessReaderAt struct {
	ctx context.Context
	r   RandomAccessReader
}

// RandomAccessReader is the subset of storage.Reader parquetio depends
// on, kept narrow so this package never imports pkg/storage directly
// (avoiding an import cycle with storage backends that might want to
// depend on parquetio for introspection tooling).
type RandomAccessReader interface {
	ReadAt(ctx context.Context, p []byte, offset int64) (int, error)
	Size(ctx context.Context) (int64, error)
}

func (a *randomAccessReaderAt) ReadAt(p []byte, off int64) (int, error) {
	return a.r.ReadAt(a.ctx, p, off)
}

// Reader opens a parquet file for random-access, row-group-addressable
// reads.
type Reader struct {
	pf  *file.Reader
	afr *pqarrow.FileReader
}

// OpenReader opens src (which must support io.ReaderAt semantics via
// RandomAccessReader) as a parquet file.
func OpenReader(ctx context.Context, src RandomAccessReader) (*Reader, error) {
	size, err := src.Size(ctx)
	if err != nil {
		return nil, lakeerrors.Storage(err, "stat parquet file")
	}
	ra := &randomAccessReaderAt{ctx: ctx, r: src}
	pf, err := file.NewParquetReader(&sizedReaderAt{ra: ra, size: size})
	if err != nil {
		return nil, lakeerrors.Storage(err, "open parquet file")
	}
	afr, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{}, nil)
	if err != nil {
		return nil, lakeerrors.Storage(err, "open arrow reader")
	}
	return &Reader{pf: pf, afr: afr}, nil
}

// sizedReaderAt adapts the blob store's ReadAt-only random access to the
// io.Reader+io.ReaderAt+io.Seeker surface the parquet file reader's
// constructor requires. Only ReadAt is ever exercised in this package's
// own call paths (row-group reads go through the arrow reader, which
// uses ReadAt internally); Read/Seek are implemented in terms of a
// local position purely to satisfy the interface.
type sizedReaderAt struct {
	ra   *randomAccessReaderAt
	size int64
	pos  int64
}

func (s *sizedReaderAt) ReadAt(p []byte, off int64) (int, error) { return s.ra.ReadAt(p, off) }

func (s *sizedReaderAt) Read(p []byte) (int, error) {
	n, err := s.ReadAt(p, s.pos)
	s.pos += int64(n)
	return n, err
}

func (s *sizedReaderAt) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		s.pos = offset
	case io.SeekCurrent:
		s.pos += offset
	case io.SeekEnd:
		s.pos = s.size + offset
	}
	return s.pos, nil
}

// NumRowGroups reports the file's row group count.
func (r *Reader) NumRowGroups() int {
	return r.pf.NumRowGroups()
}

// ReadRowGroup reads an entire row group as one batch, the unit this
// package addresses rows within (§4.5 step 2c reads full row groups and
// relies on in-memory slicing to pick out individual offsets, since
// parquet has no sub-row-group random access narrower than a row
// group).
func (r *Reader) ReadRowGroup(ctx context.Context, idx int) (*rowbatch.Batch, error) {
	rgr, err := r.afr.GetRecordReader(ctx, nil, []int{idx})
	if err != nil {
		return nil, lakeerrors.Storage(err, "read row group %d", idx)
	}
	defer rgr.Release()
	if !rgr.Next() {
		return nil, lakeerrors.Storage(nil, "row group %d produced no record", idx)
	}
	rec := rgr.Record()
	rec.Retain()
	return rowbatch.Wrap(rec), nil
}

// Close releases the underlying file handle.
func (r *Reader) Close() error {
	if err := r.pf.Close(); err != nil {
		return lakeerrors.Storage(err, "close parquet file")
	}
	return nil
}
