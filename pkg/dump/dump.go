// Package dump implements the background migration of aged inline rows
// into immutable columnar files (spec §4.7), plus the per-table
// single-flight scheduler that owns when a dump runs (§4.4 step 7,
// §5's "dumps are serialized per table; inserts never block on dumps").
package dump

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/indexlake/indexlake/pkg/catalog"
	"github.com/indexlake/indexlake/pkg/ilog"
	"github.com/indexlake/indexlake/pkg/index"
	"github.com/indexlake/indexlake/pkg/lakeerrors"
	"github.com/indexlake/indexlake/pkg/metastore"
	"github.com/indexlake/indexlake/pkg/parquetio"
	"github.com/indexlake/indexlake/pkg/rowbatch"
	"github.com/indexlake/indexlake/pkg/storage"
	"github.com/indexlake/indexlake/pkg/table"
)

// Scheduler implements table.DumpEnqueuer: at most one dump runs per
// table at a time, and Enqueue is a no-op while one is already running
// or queued, per §4.4 step 7's "at most one dump runs per table".
type Scheduler struct {
	openTable func(ctx context.Context, tableID int64) (*table.Table, error)

	mu       sync.Map // tableID -> *sync.Mutex, held for the duration of one dump
	inFlight sync.Map // tableID -> bool, set while a dump is running or queued
}

// NewScheduler builds a Scheduler. openTable resolves a table_id to a
// live *table.Table handle (the client's table cache/lookup), since
// Enqueue only ever receives a bare table_id (§4.4 step 7's trigger
// fires after commit, with no Table reference in scope).
func NewScheduler(openTable func(ctx context.Context, tableID int64) (*table.Table, error)) *Scheduler {
	return &Scheduler{openTable: openTable}
}

// Enqueue schedules a dump of tableID to run in the background.
// Concurrent Enqueue calls for the same table while one is in flight
// are no-ops, not queued retries: the next post-insert check will
// enqueue again if the inline row count is still over the limit.
func (s *Scheduler) Enqueue(tableID int64) {
	if _, loaded := s.inFlight.LoadOrStore(tableID, true); loaded {
		return
	}
	go s.run(tableID)
}

func (s *Scheduler) run(tableID int64) {
	defer s.inFlight.Delete(tableID)
	lockv, _ := s.mu.LoadOrStore(tableID, &sync.Mutex{})
	lock := lockv.(*sync.Mutex)
	lock.Lock()
	defer lock.Unlock()

	ctx := context.Background()
	t, err := s.openTable(ctx, tableID)
	if err != nil {
		ilog.Errorf(ctx, "dump: could not open table %d: %v", tableID, err)
		return
	}
	if err := Run(ctx, t); err != nil {
		ilog.Errorf(ctx, "dump: table %d failed: %v", tableID, err)
	}
}

// Run executes §4.7's algorithm once against t: select up to
// dump_batch_row_count inline rows, write them to a new parquet file,
// flip their rowmeta addresses, drop their inline copies, record the
// data_file, and build+record every registered index's artifact for
// that file. Metadata mutation is confined to one Tx; the commit is the
// linearization point (§4.7: "blob writes happen outside the Tx but
// before commit").
func Run(ctx context.Context, t *table.Table) error {
	rows, err := selectInlineRows(ctx, t)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	ids := make([]int64, len(rows))
	for i, r := range rows {
		ids[i] = r.rowID
	}
	// Index definitions are read through the catalog, not the metadata
	// transaction below, so they are loaded before that transaction opens.
	defs, err := t.IndexDefs(ctx)
	if err != nil {
		return err
	}

	relativePath := table.DataFilePath(t.Namespace.Name, t.Meta.Name, uuid.New().String()+".parquet")
	locations, totalBytes, err := writeDataFile(ctx, t, relativePath, rows)
	if err != nil {
		return err
	}

	createdFiles := []string{relativePath}
	err = catalog.WithTransaction(ctx, t.Catalog, func(ctx context.Context, tx catalog.Tx) error {
		if err := updateRowMetaLocations(ctx, tx, t, ids, locations); err != nil {
			return err
		}
		if err := deleteInlineRowsRange(ctx, tx, t, ids); err != nil {
			return err
		}
		dataFileID, err := t.Metastore.CreateDataFile(ctx, tx, metastore.DataFile{
			TableID: t.TableID(), RelativePath: relativePath,
			FileSizeBytes: totalBytes, RecordCount: int64(len(ids)), PackedRowIDs: ids,
		})
		if err != nil {
			return err
		}
		built, err := buildIndexFiles(ctx, t, defs, dataFileID, rows)
		if err != nil {
			return err
		}
		createdFiles = append(createdFiles, built.paths...)
		for _, bf := range built.files {
			if _, err := t.Metastore.CreateIndexFile(ctx, tx, bf); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		for _, p := range createdFiles {
			_ = t.Storage.Delete(ctx, p)
		}
		return err
	}
	ilog.Infof(ctx, "dumped %d rows from table %d into %s", len(ids), t.TableID(), relativePath)
	return nil
}

type inlineRow struct {
	rowID  int64
	values []interface{}
}

// selectInlineRows implements §4.7 step 2: SELECT up to
// dump_batch_row_count rows ordered by row_id ascending, as one
// in-memory batch (this reference implementation re-derives the Arrow
// batch from the catalog result rather than issuing a native columnar
// read, since inline storage is row-oriented SQL).
func selectInlineRows(ctx context.Context, t *table.Table) ([]inlineRow, error) {
	dialect := t.Dialect()
	inline := dialect.QuoteIdentifier(catalog.InlineTableName(t.TableID()))
	limit := t.Config.DumpBatchRowCount
	sql := fmt.Sprintf("SELECT row_id FROM %s ORDER BY row_id ASC", inline)
	it, err := t.Catalog.Query(ctx, sql)
	if err != nil {
		return nil, lakeerrors.Catalog(err, "select inline rows for dump of table %d", t.TableID())
	}
	defer it.Close()
	var ids []int64
	for {
		ok, err := it.Next(ctx)
		if err != nil {
			return nil, lakeerrors.Catalog(err, "select inline rows for dump of table %d", t.TableID())
		}
		if !ok {
			break
		}
		var id int64
		if err := it.Scan(&id); err != nil {
			return nil, lakeerrors.Catalog(err, "scan inline row id for dump of table %d", t.TableID())
		}
		ids = append(ids, id)
		if int64(len(ids)) >= limit {
			break
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return readInlineRowValues(ctx, t, ids)
}

func readInlineRowValues(ctx context.Context, t *table.Table, ids []int64) ([]inlineRow, error) {
	batch, err := table.ReadInlineByRowID(ctx, t, ids)
	if err != nil {
		return nil, err
	}
	if batch == nil {
		return nil, nil
	}
	defer batch.Release()
	n := int(batch.NumRows())
	rows := make([]inlineRow, n)
	fields := t.Config.Schema.Fields()
	rid, err := batch.RowIDs()
	if err != nil {
		return nil, err
	}
	for r := 0; r < n; r++ {
		values := make([]interface{}, len(fields))
		for c, f := range fields {
			arr, err := batch.Column(f.Name)
			if err != nil {
				return nil, err
			}
			if arr.IsNull(r) {
				values[c] = nil
				continue
			}
			v, err := rowbatch.ScalarAt(arr, r)
			if err != nil {
				return nil, err
			}
			values[c] = v
		}
		rows[r] = inlineRow{rowID: rid[r], values: values}
	}
	return rows, nil
}

// writeDataFile streams rows into a single new parquet file via
// parquetio.Writer (§4.7 steps 3–5), returning each row's resulting
// location string keyed by row_id and the file's final size.
func writeDataFile(ctx context.Context, t *table.Table, relativePath string, rows []inlineRow) (map[int64]string, int64, error) {
	writer, err := t.Storage.Create(ctx, relativePath)
	if err != nil {
		return nil, 0, lakeerrors.Storage(err, "create data file %s", relativePath)
	}
	aborted := false
	defer func() {
		if aborted {
			_ = writer.Abort(ctx)
		}
	}()

	pw, err := parquetio.NewWriter(t.Config.Schema, writer, t.Config.ParquetWriterOpts)
	if err != nil {
		aborted = true
		return nil, 0, err
	}
	full, err := rowsToArrowBatch(t, rows)
	if err != nil {
		aborted = true
		return nil, 0, err
	}
	defer full.Release()
	// The data file stores only user-schema columns; row_id lives in
	// rowmeta's location string, not in the parquet content itself.
	batch, err := full.DropColumn(rowbatch.RowIDColumn)
	if err != nil {
		aborted = true
		return nil, 0, err
	}
	defer batch.Release()
	locs, err := pw.WriteBatch(batch)
	if err != nil {
		aborted = true
		return nil, 0, err
	}
	if err := pw.Close(); err != nil {
		aborted = true
		return nil, 0, err
	}
	if err := writer.Finalize(ctx); err != nil {
		aborted = true
		return nil, 0, lakeerrors.Storage(err, "finalize data file %s", relativePath)
	}

	byRowID := make(map[int64]string, len(rows))
	for i, row := range rows {
		byRowID[row.rowID] = table.FormatExternalLocation(relativePath, locs[i].RowGroup, locs[i].Offset)
	}
	size, err := storageSize(ctx, t.Storage, relativePath)
	if err != nil {
		return byRowID, 0, err
	}
	return byRowID, size, nil
}

func storageSize(ctx context.Context, store storage.Store, path string) (int64, error) {
	r, err := store.Open(ctx, path)
	if err != nil {
		return 0, lakeerrors.Storage(err, "stat data file %s", path)
	}
	defer r.Close()
	return r.Size(ctx)
}

func rowsToArrowBatch(t *table.Table, rows []inlineRow) (*rowbatch.Batch, error) {
	ids := make([]int64, len(rows))
	values := make([][]interface{}, len(rows))
	for i, r := range rows {
		ids[i] = r.rowID
		values[i] = r.values
	}
	return table.BuildBatch(t.Config.Schema, ids, values)
}

func updateRowMetaLocations(ctx context.Context, tx catalog.Tx, t *table.Table, ids []int64, locations map[int64]string) error {
	dialect := t.Dialect()
	rowMeta := dialect.QuoteIdentifier(catalog.RowMetaTableName(t.TableID()))
	for _, id := range ids {
		loc, ok := locations[id]
		if !ok {
			return lakeerrors.IntegrityViolation("dump produced no location for row_id %d", id)
		}
		sql := fmt.Sprintf("UPDATE %s SET location = %s WHERE row_id = %s", rowMeta, dialect.Placeholder(1), dialect.Placeholder(2))
		if _, err := tx.Execute(ctx, sql, loc, id); err != nil {
			return lakeerrors.Catalog(err, "update rowmeta location for row %d", id)
		}
	}
	return nil
}

func deleteInlineRowsRange(ctx context.Context, tx catalog.Tx, t *table.Table, ids []int64) error {
	dialect := t.Dialect()
	inline := dialect.QuoteIdentifier(catalog.InlineTableName(t.TableID()))
	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = dialect.Placeholder(i + 1)
		args[i] = id
	}
	sql := fmt.Sprintf("DELETE FROM %s WHERE row_id IN (%s)", inline, strings.Join(placeholders, ", "))
	_, err := tx.Execute(ctx, sql, args...)
	if err != nil {
		return lakeerrors.Catalog(err, "delete dumped inline rows for table %d", t.TableID())
	}
	return nil
}

type builtIndexFiles struct {
	files []metastore.IndexFile
	paths []string
}

// buildIndexFiles implements §4.7 step 9: for every index in defs,
// feed the dumped rows into a fresh Builder and write its artifact.
// Index builds run concurrently, one goroutine per index with no limit
// on how many run at once, but each index's own update/write sequence is
// strictly ordered.
func buildIndexFiles(ctx context.Context, t *table.Table, defs []index.Def, dataFileID int64, rows []inlineRow) (builtIndexFiles, error) {
	if len(defs) == 0 {
		return builtIndexFiles{}, nil
	}
	batch, err := rowsToArrowBatch(t, rows)
	if err != nil {
		return builtIndexFiles{}, err
	}
	defer batch.Release()

	results := make([]*metastore.IndexFile, len(defs))
	paths := make([]string, len(defs))
	g, gctx := errgroup.WithContext(ctx)
	for i, def := range defs {
		i, def := i, def
		g.Go(func() error {
			impl, ok := t.Indices.Lookup(def.Kind)
			if !ok {
				return lakeerrors.Index(nil, "index %q references unregistered kind %q", def.Name, def.Kind)
			}
			builder, err := impl.Builder(def)
			if err != nil {
				return lakeerrors.Index(err, "build index %q", def.Name)
			}
			if err := builder.Update(gctx, batch); err != nil {
				return lakeerrors.Index(err, "update index %q", def.Name)
			}
			relPath := table.IndexFilePath(t.Namespace.Name, t.Meta.Name, def.IndexID, dataFileID)
			w, err := t.Storage.Create(gctx, relPath)
			if err != nil {
				return lakeerrors.Storage(err, "create index file %s", relPath)
			}
			if err := builder.Write(gctx, w); err != nil {
				_ = w.Abort(gctx)
				return lakeerrors.Index(err, "write index %q", def.Name)
			}
			if err := w.Finalize(gctx); err != nil {
				return lakeerrors.Storage(err, "finalize index file %s", relPath)
			}
			paths[i] = relPath
			results[i] = &metastore.IndexFile{IndexID: def.IndexID, DataFileID: dataFileID, RelativePath: relPath}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return builtIndexFiles{}, err
	}
	out := builtIndexFiles{}
	for i, r := range results {
		if r != nil {
			out.files = append(out.files, *r)
			out.paths = append(out.paths, paths[i])
		}
	}
	return out, nil
}

// Backfill implements §4.8's "backfill" follow-up pass for a newly
// created index: enumerate every existing data file of the table and
// run steps 9a-e against each one. It never touches rowmeta or inline.
func Backfill(ctx context.Context, t *table.Table, def index.Def) error {
	files, err := t.Metastore.ListDataFiles(ctx, t.TableID())
	if err != nil {
		return err
	}
	impl, ok := t.Indices.Lookup(def.Kind)
	if !ok {
		return lakeerrors.Index(nil, "index %q references unregistered kind %q", def.Name, def.Kind)
	}
	for _, f := range files {
		if err := backfillOne(ctx, t, impl, def, f); err != nil {
			return err
		}
	}
	return nil
}

func backfillOne(ctx context.Context, t *table.Table, impl index.Index, def index.Def, f metastore.DataFile) error {
	reader, err := t.Storage.Open(ctx, f.RelativePath)
	if err != nil {
		return lakeerrors.Storage(err, "open data file %s for backfill", f.RelativePath)
	}
	defer reader.Close()
	pr, err := parquetio.OpenReader(ctx, reader)
	if err != nil {
		return err
	}
	defer pr.Close()

	builder, err := impl.Builder(def)
	if err != nil {
		return lakeerrors.Index(err, "build index %q for backfill", def.Name)
	}
	// The data file's own content has no _indexlake_row_id column (writeDataFile
	// drops it before writing); packed_row_ids carries the same ascending,
	// row-group-ordered sequence the rows were written in, so a running offset
	// into it recovers each row's id.
	offset := 0
	for g := 0; g < pr.NumRowGroups(); g++ {
		batch, err := pr.ReadRowGroup(ctx, g)
		if err != nil {
			return err
		}
		n := int(batch.NumRows())
		if offset+n > len(f.PackedRowIDs) {
			batch.Release()
			return lakeerrors.IntegrityViolation("data file %s: packed_row_ids shorter than row groups read so far", f.RelativePath)
		}
		ids := f.PackedRowIDs[offset : offset+n]
		offset += n
		withIDs, err := rowbatch.PrependRowIDColumn(batch.Record(), ids)
		batch.Release()
		if err != nil {
			return err
		}
		err = builder.Update(ctx, withIDs)
		withIDs.Release()
		if err != nil {
			return lakeerrors.Index(err, "update index %q during backfill", def.Name)
		}
	}
	relPath := table.IndexFilePath(t.Namespace.Name, t.Meta.Name, def.IndexID, f.DataFileID)
	w, err := t.Storage.Create(ctx, relPath)
	if err != nil {
		return lakeerrors.Storage(err, "create backfill index file %s", relPath)
	}
	if err := builder.Write(ctx, w); err != nil {
		_ = w.Abort(ctx)
		return lakeerrors.Index(err, "write backfill index %q", def.Name)
	}
	if err := w.Finalize(ctx); err != nil {
		return lakeerrors.Storage(err, "finalize backfill index file %s", relPath)
	}
	return catalog.WithTransaction(ctx, t.Catalog, func(ctx context.Context, tx catalog.Tx) error {
		_, err := t.Metastore.CreateIndexFile(ctx, tx, metastore.IndexFile{
			IndexID: def.IndexID, DataFileID: f.DataFileID, RelativePath: relPath,
		})
		return err
	})
}
