package table

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/apache/arrow/go/v11/arrow"
	"github.com/apache/arrow/go/v11/arrow/array"

	"github.com/indexlake/indexlake/pkg/catalog"
	"github.com/indexlake/indexlake/pkg/expr"
	"github.com/indexlake/indexlake/pkg/index"
	"github.com/indexlake/indexlake/pkg/lakeerrors"
	"github.com/indexlake/indexlake/pkg/parquetio"
	"github.com/indexlake/indexlake/pkg/rowbatch"
	"github.com/indexlake/indexlake/pkg/storage"
)

// ScanOptions is scan's contract (§4.5): optional projection, optional
// filter, optional limit.
type ScanOptions struct {
	Projection []string
	Filter     expr.Expr
	Limit      int64
}

// BatchSink receives each batch scan produces, in unspecified
// interleaving order (§4.5 step 3: "merged with unspecified
// interleaving"). Returning an error stops the scan and propagates as
// the scan's result (§7: "Scans surface the first non-recoverable error
// and terminate the stream").
type BatchSink func(batch *rowbatch.Batch) error

// Scan executes §4.5: filter analysis selects an index scan or table
// scan path; results are merged, projected, and limited.
func (t *Table) Scan(ctx context.Context, opts ScanOptions, sink BatchSink) error {
	defs, err := t.IndexDefs(ctx)
	if err != nil {
		return err
	}
	eligible, residual := t.partitionFilters(defs, opts.Filter)

	var delivered int64
	wrap := func(b *rowbatch.Batch) error {
		if opts.Limit > 0 && delivered >= opts.Limit {
			return nil
		}
		out, err := t.finishBatch(b, opts)
		if err != nil {
			return err
		}
		if out.NumRows() == 0 {
			return nil
		}
		delivered += out.NumRows()
		return sink(out)
	}

	if len(eligible) > 0 {
		return t.indexScan(ctx, eligible, residual, wrap)
	}
	return t.tableScan(ctx, opts.Filter, wrap)
}

// partitionFilters implements §4.5 step 1: for each filter expression,
// consult each registered index via SupportsFilter and partition into
// index-eligible vs residual. A top-level And is split into its
// conjuncts; any other shape is treated as one indivisible expression.
func (t *Table) partitionFilters(defs []index.Def, filter expr.Expr) (eligible []eligibleFilter, residual []expr.Expr) {
	if filter == nil {
		return nil, nil
	}
	var conjuncts []expr.Expr
	if and, ok := filter.(expr.And); ok {
		conjuncts = and.Exprs
	} else {
		conjuncts = []expr.Expr{filter}
	}
	for _, c := range conjuncts {
		matched := false
		for _, def := range defs {
			impl, ok := t.Indices.Lookup(def.Kind)
			if !ok {
				continue
			}
			if impl.SupportsFilter(def, c) {
				eligible = append(eligible, eligibleFilter{def: def, impl: impl, expr: c})
				matched = true
				break
			}
		}
		if !matched {
			residual = append(residual, c)
		}
	}
	return eligible, residual
}

type eligibleFilter struct {
	def  index.Def
	impl index.Index
	expr expr.Expr
}

// indexScan implements §4.5 step 2's index-scan path: for each
// index-eligible filter, invoke Index.Filter; intersect row_id sets
// across expressions; fetch those rows from inline+external tiers; apply
// residual filters in-memory. Index files only exist for data files that
// have been dumped and (back)filled, so a row that is still inline and
// was never dumped never reaches any index file's row_id set; that gap is
// closed by also re-evaluating the full predicate directly against the
// inline tier, excluding whatever index-derived ids were already
// delivered, the same way tableScan's scanInline covers the inline tier
// for the non-indexed path.
func (t *Table) indexScan(ctx context.Context, eligible []eligibleFilter, residual []expr.Expr, sink BatchSink) error {
	var rowIDs index.RowIDSet
	for i, ef := range eligible {
		files, err := t.Metastore.ListIndexFiles(ctx, ef.def.IndexID, 0)
		if err != nil {
			return err
		}
		idxFiles := make([]index.File, len(files))
		for j, f := range files {
			idxFiles[j] = index.File{IndexFileID: f.IndexFileID, IndexID: f.IndexID, DataFileID: f.DataFileID, RelativePath: f.RelativePath}
		}
		set, err := ef.impl.Filter(ctx, ef.def, idxFiles, t.openIndexFile, ef.expr)
		if err != nil {
			return lakeerrors.Index(err, "index %q filter", ef.def.Name)
		}
		if i == 0 {
			rowIDs = set
		} else {
			rowIDs = rowIDs.Intersect(set)
		}
	}
	ids := rowIDs.Slice()
	if len(ids) > 0 {
		batch, err := t.fetchRowsByID(ctx, ids)
		if err != nil {
			return err
		}
		if batch != nil {
			filtered, err := applyResidual(batch, residual)
			batch.Release()
			if err != nil {
				return err
			}
			if filtered.NumRows() > 0 {
				if err := sink(filtered); err != nil {
					filtered.Release()
					return err
				}
			}
			filtered.Release()
		}
	}
	return t.scanInlineForEligible(ctx, eligible, residual, ids, sink)
}

// scanInlineForEligible re-evaluates an index-eligible predicate (plus its
// residual) directly against the inline tier, so rows that have not been
// dumped yet still surface on an index-accelerated scan. excludeIDs are the
// row_ids the index-derived path already delivered to sink.
func (t *Table) scanInlineForEligible(ctx context.Context, eligible []eligibleFilter, residual []expr.Expr, excludeIDs []int64, sink BatchSink) error {
	exprs := make([]expr.Expr, 0, len(eligible)+len(residual))
	for _, ef := range eligible {
		exprs = append(exprs, ef.expr)
	}
	exprs = append(exprs, residual...)
	var filter expr.Expr
	switch len(exprs) {
	case 0:
		return nil
	case 1:
		filter = exprs[0]
	default:
		filter = expr.And{Exprs: exprs}
	}
	whereSQL, whereArgs, inlineResidual := translateFilter(t.Dialect(), filter)
	return t.scanInline(ctx, t.Catalog, whereSQL, whereArgs, excludeIDs, inlineResidual, sink)
}

func (t *Table) openIndexFile(ctx context.Context, f index.File) (storage.Reader, error) {
	return t.Storage.Open(ctx, f.RelativePath)
}

// fetchRowsByID resolves a set of row_ids against rowmeta, then reads
// the inline and external copies, concatenating them into one batch
// (row_id column included for downstream use; callers that care about
// ordering must sort separately since fetchRowsByID does not guarantee
// any particular row order).
func (t *Table) fetchRowsByID(ctx context.Context, ids []int64) (*rowbatch.Batch, error) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	dialect := t.Dialect()
	rowMeta := dialect.QuoteIdentifier(catalog.RowMetaTableName(t.TableID()))
	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = dialect.Placeholder(i + 1)
		args[i] = id
	}
	sql := fmt.Sprintf("SELECT row_id, location FROM %s WHERE deleted = FALSE AND row_id IN (%s)", rowMeta, strings.Join(placeholders, ", "))
	it, err := t.Catalog.Query(ctx, sql, args...)
	if err != nil {
		return nil, lakeerrors.Catalog(err, "resolve row locations")
	}
	var inlineIDs []int64
	external := map[string][]ExternalLocation{}
	externalIDs := map[string][]int64{}
	for {
		ok, err := it.Next(ctx)
		if err != nil {
			it.Close()
			return nil, lakeerrors.Catalog(err, "resolve row locations")
		}
		if !ok {
			break
		}
		var id int64
		var loc string
		if err := it.Scan(&id, &loc); err != nil {
			it.Close()
			return nil, lakeerrors.Catalog(err, "scan row location")
		}
		inline, ext, err := ParseLocation(loc)
		if err != nil {
			it.Close()
			return nil, err
		}
		if inline {
			inlineIDs = append(inlineIDs, id)
		} else {
			external[ext.RelativePath] = append(external[ext.RelativePath], ext)
			externalIDs[ext.RelativePath] = append(externalIDs[ext.RelativePath], id)
		}
	}
	it.Close()

	var batches []*rowbatch.Batch
	if len(inlineIDs) > 0 {
		b, err := t.readInlineByID(ctx, inlineIDs)
		if err != nil {
			return nil, err
		}
		if b != nil {
			batches = append(batches, b)
		}
	}
	for path, locs := range external {
		b, err := t.readExternalRows(ctx, path, locs, externalIDs[path])
		if err != nil {
			return nil, err
		}
		if b != nil {
			batches = append(batches, b)
		}
	}
	if len(batches) == 0 {
		return nil, nil
	}
	merged, err := rowbatch.Concat(batches)
	for _, b := range batches {
		b.Release()
	}
	if err != nil {
		return nil, err
	}
	return merged, nil
}

func (t *Table) readInlineByID(ctx context.Context, ids []int64) (*rowbatch.Batch, error) {
	dialect := t.Dialect()
	inline := dialect.QuoteIdentifier(catalog.InlineTableName(t.TableID()))
	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = dialect.Placeholder(i + 1)
		args[i] = id
	}
	cols := selectColumns(t.Config.Schema)
	sql := fmt.Sprintf("SELECT row_id, %s FROM %s WHERE row_id IN (%s)", strings.Join(cols, ", "), inline, strings.Join(placeholders, ", "))
	return t.queryToBatch(ctx, sql, args)
}

// readExternalRows reads every row group referenced by locs out of the
// data file at relativePath and slices out the requested offsets (§4.5
// step 2c "issue a single read using a row-selection derived from the
// (row_group_index, row_offset) pairs"). ids is parallel to locs (same
// index means same row); the returned batch gets those ids prepended as
// its row_id column so it shares a schema with the inline tier's reads
// and can be rowbatch.Concat'd against them.
func (t *Table) readExternalRows(ctx context.Context, relativePath string, locs []ExternalLocation, ids []int64) (*rowbatch.Batch, error) {
	reader, err := t.Storage.Open(ctx, relativePath)
	if err != nil {
		return nil, lakeerrors.Storage(err, "open data file %s", relativePath)
	}
	defer reader.Close()
	pr, err := parquetio.OpenReader(ctx, reader)
	if err != nil {
		return nil, err
	}
	defer pr.Close()

	type rowKey struct{ group, offset int }
	idByLoc := make(map[rowKey]int64, len(locs))
	for i, l := range locs {
		idByLoc[rowKey{l.RowGroup, l.RowOffset}] = ids[i]
	}

	byGroup := map[int][]int{}
	for _, l := range locs {
		byGroup[l.RowGroup] = append(byGroup[l.RowGroup], l.RowOffset)
	}
	var batches []*rowbatch.Batch
	var rowIDs []int64
	for rg, offsets := range byGroup {
		full, err := pr.ReadRowGroup(ctx, rg)
		if err != nil {
			return nil, err
		}
		sort.Ints(offsets)
		for _, off := range offsets {
			row := full.Slice(int64(off), int64(off)+1)
			batches = append(batches, row)
			rowIDs = append(rowIDs, idByLoc[rowKey{rg, off}])
		}
		full.Release()
	}
	if len(batches) == 0 {
		return nil, nil
	}
	merged, err := rowbatch.Concat(batches)
	for _, b := range batches {
		b.Release()
	}
	if err != nil {
		return nil, err
	}
	withIDs, err := rowbatch.PrependRowIDColumn(merged.Record(), rowIDs)
	merged.Release()
	if err != nil {
		return nil, err
	}
	return withIDs, nil
}

// tableScan implements §4.5 step 2's default path: SELECT inline rows
// with the translatable part of the filter pushed down, SELECT external
// addresses from rowmeta in the same Tx, group by file, read each file
// and evaluate the whole filter in memory against its rows.
func (t *Table) tableScan(ctx context.Context, filter expr.Expr, sink BatchSink) error {
	dialect := t.Dialect()
	whereSQL, whereArgs, residual := translateFilter(dialect, filter)

	return catalog.WithTransaction(ctx, t.Catalog, func(ctx context.Context, tx catalog.Tx) error {
		if err := t.scanInline(ctx, tx, whereSQL, whereArgs, nil, residual, sink); err != nil {
			return err
		}
		return t.scanExternal(ctx, tx, filter, sink)
	})
}

// rowQuerier is satisfied by both catalog.Catalog and catalog.Tx, letting
// scanInline run inside an existing transaction (tableScan) or standalone
// (indexScan's inline-tier fallback).
type rowQuerier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (catalog.RowIter, error)
}

func (t *Table) scanInline(ctx context.Context, q rowQuerier, whereSQL string, whereArgs []interface{}, excludeIDs []int64, residual expr.Expr, sink BatchSink) error {
	dialect := t.Dialect()
	inline := dialect.QuoteIdentifier(catalog.InlineTableName(t.TableID()))
	cols := selectColumns(t.Config.Schema)
	sql := fmt.Sprintf("SELECT row_id, %s FROM %s", strings.Join(cols, ", "), inline)
	var clauses []string
	if whereSQL != "" {
		clauses = append(clauses, whereSQL)
	}
	if len(excludeIDs) > 0 {
		placeholders := make([]string, len(excludeIDs))
		base := len(whereArgs)
		for i, id := range excludeIDs {
			placeholders[i] = dialect.Placeholder(base + i + 1)
			whereArgs = append(whereArgs, id)
		}
		clauses = append(clauses, fmt.Sprintf("row_id NOT IN (%s)", strings.Join(placeholders, ", ")))
	}
	if len(clauses) > 0 {
		sql += " WHERE " + strings.Join(clauses, " AND ")
	}
	it, err := q.Query(ctx, sql, whereArgs...)
	if err != nil {
		return lakeerrors.Catalog(err, "scan inline rows for table %d", t.TableID())
	}
	defer it.Close()
	batch, err := rowsToBatch(ctx, it, rowIDAndSchema(t.Config.Schema))
	if err != nil {
		return err
	}
	if batch == nil {
		return nil
	}
	defer batch.Release()
	filtered, err := applyResidual(batch, exprList(residual))
	if err != nil {
		return err
	}
	defer filtered.Release()
	if filtered.NumRows() == 0 {
		return nil
	}
	return sink(filtered)
}

func (t *Table) scanExternal(ctx context.Context, tx catalog.Tx, residual expr.Expr, sink BatchSink) error {
	dialect := t.Dialect()
	rowMeta := dialect.QuoteIdentifier(catalog.RowMetaTableName(t.TableID()))
	sql := fmt.Sprintf("SELECT row_id, location FROM %s WHERE deleted = FALSE AND location != %s", rowMeta, dialect.Placeholder(1))
	it, err := tx.Query(ctx, sql, InlineLocation)
	if err != nil {
		return lakeerrors.Catalog(err, "scan rowmeta external rows for table %d", t.TableID())
	}
	byFile := map[string][]ExternalLocation{}
	idsByFile := map[string][]int64{}
	for {
		ok, err := it.Next(ctx)
		if err != nil {
			it.Close()
			return lakeerrors.Catalog(err, "scan rowmeta external rows for table %d", t.TableID())
		}
		if !ok {
			break
		}
		var id int64
		var loc string
		if err := it.Scan(&id, &loc); err != nil {
			it.Close()
			return lakeerrors.Catalog(err, "scan rowmeta row")
		}
		_, ext, err := ParseLocation(loc)
		if err != nil {
			it.Close()
			return err
		}
		byFile[ext.RelativePath] = append(byFile[ext.RelativePath], ext)
		idsByFile[ext.RelativePath] = append(idsByFile[ext.RelativePath], id)
	}
	it.Close()

	for path, locs := range byFile {
		batch, err := t.readExternalRows(ctx, path, locs, idsByFile[path])
		if err != nil {
			return err
		}
		if batch == nil {
			continue
		}
		filtered, err := applyResidual(batch, exprList(residual))
		batch.Release()
		if err != nil {
			return err
		}
		if filtered.NumRows() > 0 {
			if err := sink(filtered); err != nil {
				filtered.Release()
				return err
			}
		}
		filtered.Release()
	}
	return nil
}

func exprList(e expr.Expr) []expr.Expr {
	if e == nil {
		return nil
	}
	return []expr.Expr{e}
}

// finishBatch drops the internal row_id column (unless explicitly
// projected) and applies the user's requested projection (§6.4).
func (t *Table) finishBatch(b *rowbatch.Batch, opts ScanOptions) (*rowbatch.Batch, error) {
	out := b
	if len(opts.Projection) > 0 {
		proj, err := out.Project(opts.Projection)
		if err != nil {
			return nil, err
		}
		return proj, nil
	}
	if _, err := out.ColumnIndex(rowbatch.RowIDColumn); err == nil {
		dropped, err := out.DropColumn(rowbatch.RowIDColumn)
		if err != nil {
			return nil, err
		}
		return dropped, nil
	}
	out.Retain()
	return out, nil
}

func selectColumns(schema *arrow.Schema) []string {
	cols := make([]string, len(schema.Fields()))
	for i, f := range schema.Fields() {
		cols[i] = f.Name
	}
	return cols
}

func rowIDAndSchema(schema *arrow.Schema) *arrow.Schema {
	fields := make([]arrow.Field, 0, len(schema.Fields())+1)
	fields = append(fields, arrow.Field{Name: rowbatch.RowIDColumn, Type: arrow.PrimitiveTypes.Int64})
	fields = append(fields, schema.Fields()...)
	return arrow.NewSchema(fields, nil)
}

// rowsToBatch materializes a RowIter into a rowbatch.Batch matching
// schema column-for-column (schema's first field is always the row_id
// column per rowIDAndSchema).
func rowsToBatch(ctx context.Context, it catalog.RowIter, schema *arrow.Schema) (*rowbatch.Batch, error) {
	builders := make([]array.Builder, len(schema.Fields()))
	for i, f := range schema.Fields() {
		builders[i] = array.NewBuilder(rowbatch.Allocator, f.Type)
	}
	defer func() {
		for _, b := range builders {
			b.Release()
		}
	}()
	n := 0
	dest := make([]interface{}, len(schema.Fields()))
	for i := range dest {
		dest[i] = new(interface{})
	}
	for {
		ok, err := it.Next(ctx)
		if err != nil {
			return nil, lakeerrors.Catalog(err, "iterate rows")
		}
		if !ok {
			break
		}
		if err := it.Scan(dest...); err != nil {
			return nil, lakeerrors.Catalog(err, "scan row")
		}
		for i, b := range builders {
			if err := appendScalar(b, *(dest[i].(*interface{}))); err != nil {
				return nil, err
			}
		}
		n++
	}
	if n == 0 {
		return nil, nil
	}
	cols := make([]arrow.Array, len(builders))
	for i, b := range builders {
		cols[i] = b.NewArray()
	}
	rec := array.NewRecord(schema, cols, int64(n))
	for _, c := range cols {
		c.Release()
	}
	return rowbatch.Wrap(rec), nil
}

func appendScalar(b array.Builder, v interface{}) error {
	if v == nil {
		b.AppendNull()
		return nil
	}
	switch bld := b.(type) {
	case *array.Int64Builder:
		iv, err := toInt64(v)
		if err != nil {
			return err
		}
		bld.Append(iv)
	case *array.Int32Builder:
		iv, err := toInt64(v)
		if err != nil {
			return err
		}
		bld.Append(int32(iv))
	case *array.Float64Builder:
		fv, err := toFloat64(v)
		if err != nil {
			return err
		}
		bld.Append(fv)
	case *array.Float32Builder:
		fv, err := toFloat64(v)
		if err != nil {
			return err
		}
		bld.Append(float32(fv))
	case *array.StringBuilder:
		switch s := v.(type) {
		case string:
			bld.Append(s)
		case []byte:
			bld.Append(string(s))
		default:
			return lakeerrors.IntegrityViolation("expected string, got %T", v)
		}
	case *array.BooleanBuilder:
		bv, ok := v.(bool)
		if !ok {
			return lakeerrors.IntegrityViolation("expected bool, got %T", v)
		}
		bld.Append(bv)
	case *array.BinaryBuilder:
		switch bv := v.(type) {
		case []byte:
			bld.Append(bv)
		case string:
			bld.Append([]byte(bv))
		default:
			return lakeerrors.IntegrityViolation("expected []byte, got %T", v)
		}
	default:
		return lakeerrors.InvalidArgument("unsupported builder type %T", b)
	}
	return nil
}

func toInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case int:
		return int64(n), nil
	default:
		return 0, lakeerrors.IntegrityViolation("expected integer, got %T", v)
	}
}

func toFloat64(v interface{}) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	default:
		return 0, lakeerrors.IntegrityViolation("expected float, got %T", v)
	}
}

func (t *Table) queryToBatch(ctx context.Context, sql string, args []interface{}) (*rowbatch.Batch, error) {
	it, err := t.Catalog.Query(ctx, sql, args...)
	if err != nil {
		return nil, lakeerrors.Catalog(err, "query: %s", sql)
	}
	defer it.Close()
	return rowsToBatch(ctx, it, rowIDAndSchema(t.Config.Schema))
}
