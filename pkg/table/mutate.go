package table

import (
	"context"
	"fmt"
	"strings"

	"github.com/indexlake/indexlake/pkg/catalog"
	"github.com/indexlake/indexlake/pkg/expr"
	"github.com/indexlake/indexlake/pkg/ilog"
	"github.com/indexlake/indexlake/pkg/lakeerrors"
	"github.com/indexlake/indexlake/pkg/rowbatch"
)

// Delete executes §4.6's delete algorithm: resolve matching row_ids
// (directly, if the condition only references row_id; via a scan
// otherwise), then soft-delete their rowmeta rows and drop their inline
// copies in one Tx. The row_ids are resolved before that Tx opens.
func (t *Table) Delete(ctx context.Context, condition expr.Expr) (int64, error) {
	ids, err := t.resolveDeleteRowIDs(ctx, condition)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	var deleted int64
	err = catalog.WithTransaction(ctx, t.Catalog, func(ctx context.Context, tx catalog.Tx) error {
		n, err := t.markDeleted(ctx, tx, ids)
		if err != nil {
			return err
		}
		deleted = n
		return t.deleteInlineRows(ctx, tx, ids)
	})
	if err != nil {
		return 0, err
	}
	ilog.Infof(ctx, "deleted %d rows from table %d", deleted, t.TableID())
	return deleted, nil
}

// resolveDeleteRowIDs implements §4.6's fast path ("if condition
// references only row_id, enumerate directly without a scan") and its
// fallback (a full index-or-table scan collecting matching row_ids).
func (t *Table) resolveDeleteRowIDs(ctx context.Context, condition expr.Expr) ([]int64, error) {
	if condition == nil {
		return t.allRowIDs(ctx)
	}
	if ids, ok := rowIDsFromCondition(condition); ok {
		return ids, nil
	}
	var ids []int64
	err := t.Scan(ctx, ScanOptions{Filter: condition, Projection: []string{rowbatch.RowIDColumn}}, func(b *rowbatch.Batch) error {
		vals, err := b.RowIDs()
		if err != nil {
			return lakeerrors.IntegrityViolation("scan for delete did not return row_id column: %v", err)
		}
		ids = append(ids, vals...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// rowIDsFromCondition recognizes `row_id = <lit>` and `row_id IN
// (<lits>)` shapes, the only forms §4.6's fast path is specified to
// short-circuit a scan for.
func rowIDsFromCondition(e expr.Expr) ([]int64, bool) {
	switch n := e.(type) {
	case expr.Comparison:
		col, ok := n.Left.(expr.ColumnRef)
		lit, ok2 := n.Right.(expr.Literal)
		if !ok || !ok2 || col.Name != rowbatch.RowIDColumn || n.Op != expr.Eq {
			return nil, false
		}
		id, ok := litToInt64(lit.Value)
		if !ok {
			return nil, false
		}
		return []int64{id}, true
	case expr.In:
		col, ok := n.Column.(expr.ColumnRef)
		if !ok || col.Name != rowbatch.RowIDColumn {
			return nil, false
		}
		ids := make([]int64, 0, len(n.Values))
		for _, v := range n.Values {
			id, ok := litToInt64(v.Value)
			if !ok {
				return nil, false
			}
			ids = append(ids, id)
		}
		return ids, true
	default:
		return nil, false
	}
}

func litToInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case int:
		return int64(n), true
	default:
		return 0, false
	}
}

func (t *Table) allRowIDs(ctx context.Context) ([]int64, error) {
	dialect := t.Dialect()
	rowMeta := dialect.QuoteIdentifier(catalog.RowMetaTableName(t.TableID()))
	it, err := t.Catalog.Query(ctx, fmt.Sprintf("SELECT row_id FROM %s WHERE deleted = FALSE", rowMeta))
	if err != nil {
		return nil, lakeerrors.Catalog(err, "enumerate row ids for table %d", t.TableID())
	}
	defer it.Close()
	var ids []int64
	for {
		ok, err := it.Next(ctx)
		if err != nil {
			return nil, lakeerrors.Catalog(err, "enumerate row ids for table %d", t.TableID())
		}
		if !ok {
			break
		}
		var id int64
		if err := it.Scan(&id); err != nil {
			return nil, lakeerrors.Catalog(err, "scan row id for table %d", t.TableID())
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (t *Table) markDeleted(ctx context.Context, tx catalog.Tx, ids []int64) (int64, error) {
	dialect := t.Dialect()
	rowMeta := dialect.QuoteIdentifier(catalog.RowMetaTableName(t.TableID()))
	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = dialect.Placeholder(i + 1)
		args[i] = id
	}
	sql := fmt.Sprintf("UPDATE %s SET deleted = TRUE WHERE deleted = FALSE AND row_id IN (%s)", rowMeta, strings.Join(placeholders, ", "))
	n, err := tx.Execute(ctx, sql, args...)
	if err != nil {
		return 0, lakeerrors.Catalog(err, "mark rowmeta deleted for table %d", t.TableID())
	}
	return n, nil
}

func (t *Table) deleteInlineRows(ctx context.Context, tx catalog.Tx, ids []int64) error {
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
		return lakeerrors.Catalog(err, "delete inline rows for table %d", t.TableID())
	}
	return nil
}

// Update executes §4.6's update algorithm: resolve matching rows as
// full batches, apply the column replacement function in-memory, then
// write each row back: an in-place UPDATE for rows already inline, or
// an insert-into-inline plus a location flip back to "inline" for rows
// that were still living in a data file. apply receives and must return
// a batch with the row_id column in its original first position and
// value unchanged; it may only replace the remaining columns.
func (t *Table) Update(ctx context.Context, condition expr.Expr, apply func(*rowbatch.Batch) (*rowbatch.Batch, error)) (int64, error) {
	proj := append([]string{rowbatch.RowIDColumn}, selectColumns(t.Config.Schema)...)
	// Matching batches are collected first and written back after the scan
	// returns, so the write transactions never open while the scan's own
	// transaction still holds its catalog connection.
	var matched []*rowbatch.Batch
	err := t.Scan(ctx, ScanOptions{Filter: condition, Projection: proj}, func(withIDs *rowbatch.Batch) error {
		matched = append(matched, withIDs)
		return nil
	})
	if err != nil {
		return 0, err
	}
	var updated int64
	for _, withIDs := range matched {
		replaced, err := apply(withIDs)
		if err != nil {
			return 0, err
		}
		if !replaced.Schema().Equal(withIDs.Schema()) {
			replaced.Release()
			return 0, lakeerrors.InvalidArgument("update function changed batch schema")
		}
		n, err := t.writeUpdatedRows(ctx, replaced)
		replaced.Release()
		if err != nil {
			return 0, err
		}
		updated += n
	}
	ilog.Infof(ctx, "updated %d rows in table %d", updated, t.TableID())
	return updated, nil
}

// writeUpdatedRows implements §4.6 step 3: rows whose rowmeta location
// is still "inline" are rewritten with an UPDATE; rows whose rowmeta
// location points at a data file are inserted into inline_{id} and
// their rowmeta location flipped back to "inline" (the row's external
// copy in the data file is left in place, orphaned, and is never read
// again since rowmeta no longer points at it).
func (t *Table) writeUpdatedRows(ctx context.Context, batch *rowbatch.Batch) (int64, error) {
	n := int(batch.NumRows())
	if n == 0 {
		return 0, nil
	}
	ids, err := batch.RowIDs()
	if err != nil {
		return 0, err
	}
	return int64(n), catalog.WithTransaction(ctx, t.Catalog, func(ctx context.Context, tx catalog.Tx) error {
		dialect := t.Dialect()
		locs, err := t.currentLocations(ctx, tx, ids)
		if err != nil {
			return err
		}
		var inlineRows, externalRows []int
		for i, id := range ids {
			if locs[id] == InlineLocation {
				inlineRows = append(inlineRows, i)
			} else {
				externalRows = append(externalRows, i)
			}
		}
		if err := t.updateInlineRowsInPlace(ctx, tx, dialect, batch, inlineRows); err != nil {
			return err
		}
		if err := t.reinsertExternalRows(ctx, tx, dialect, batch, externalRows); err != nil {
			return err
		}
		return nil
	})
}

func (t *Table) currentLocations(ctx context.Context, tx catalog.Tx, ids []int64) (map[int64]string, error) {
	dialect := t.Dialect()
	rowMeta := dialect.QuoteIdentifier(catalog.RowMetaTableName(t.TableID()))
	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = dialect.Placeholder(i + 1)
		args[i] = id
	}
	sql := fmt.Sprintf("SELECT row_id, location FROM %s WHERE row_id IN (%s)", rowMeta, strings.Join(placeholders, ", "))
	it, err := tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, lakeerrors.Catalog(err, "read row locations for table %d", t.TableID())
	}
	defer it.Close()
	out := map[int64]string{}
	for {
		ok, err := it.Next(ctx)
		if err != nil {
			return nil, lakeerrors.Catalog(err, "read row locations for table %d", t.TableID())
		}
		if !ok {
			break
		}
		var id int64
		var loc string
		if err := it.Scan(&id, &loc); err != nil {
			return nil, lakeerrors.Catalog(err, "scan row location for table %d", t.TableID())
		}
		if loc == InlineLocation {
			out[id] = InlineLocation
		} else {
			out[id] = loc
		}
	}
	return out, nil
}

func (t *Table) updateInlineRowsInPlace(ctx context.Context, tx catalog.Tx, dialect catalog.Dialect, batch *rowbatch.Batch, rows []int) error {
	if len(rows) == 0 {
		return nil
	}
	inline := dialect.QuoteIdentifier(catalog.InlineTableName(t.TableID()))
	fields := t.Config.Schema.Fields()
	for _, r := range rows {
		rowID, err := scalarAt(batch.Record().Column(mustColumnIndex(batch, rowbatch.RowIDColumn)), r)
		if err != nil {
			return err
		}
		var sb strings.Builder
		fmt.Fprintf(&sb, "UPDATE %s SET ", inline)
		args := make([]interface{}, 0, len(fields)+1)
		for i, f := range fields {
			if i > 0 {
				sb.WriteString(", ")
			}
			v, err := scalarAt(batch.Record().Column(mustColumnIndex(batch, f.Name)), r)
			if err != nil {
				return err
			}
			fmt.Fprintf(&sb, "%s = %s", dialect.QuoteIdentifier(f.Name), dialect.Placeholder(len(args)+1))
			args = append(args, v)
		}
		fmt.Fprintf(&sb, " WHERE row_id = %s", dialect.Placeholder(len(args)+1))
		args = append(args, rowID)
		if _, err := tx.Execute(ctx, sb.String(), args...); err != nil {
			return lakeerrors.Catalog(err, "update inline row in table %d", t.TableID())
		}
	}
	return nil
}

func (t *Table) reinsertExternalRows(ctx context.Context, tx catalog.Tx, dialect catalog.Dialect, batch *rowbatch.Batch, rows []int) error {
	if len(rows) == 0 {
		return nil
	}
	fields := t.Config.Schema.Fields()
	colNames := make([]string, len(fields))
	for i, f := range fields {
		colNames[i] = dialect.QuoteIdentifier(f.Name)
	}
	colNames = append([]string{"row_id"}, colNames...)
	inline := dialect.QuoteIdentifier(catalog.InlineTableName(t.TableID()))

	insertRows := make([][]interface{}, len(rows))
	ids := make([]int64, len(rows))
	for i, r := range rows {
		rowID, err := scalarAt(batch.Record().Column(mustColumnIndex(batch, rowbatch.RowIDColumn)), r)
		if err != nil {
			return err
		}
		id, _ := litToInt64(rowID)
		ids[i] = id
		row := make([]interface{}, len(fields)+1)
		row[0] = rowID
		for c, f := range fields {
			v, err := scalarAt(batch.Record().Column(mustColumnIndex(batch, f.Name)), r)
			if err != nil {
				return err
			}
			row[c+1] = v
		}
		insertRows[i] = row
	}
	if err := batchInsert(ctx, tx, dialect, inline, colNames, insertRows); err != nil {
		return err
	}

	rowMeta := dialect.QuoteIdentifier(catalog.RowMetaTableName(t.TableID()))
	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids)+1)
	args[0] = InlineLocation
	for i, id := range ids {
		placeholders[i] = dialect.Placeholder(i + 2)
		args[i+1] = id
	}
	sql := fmt.Sprintf("UPDATE %s SET location = %s WHERE row_id IN (%s)", rowMeta, dialect.Placeholder(1), strings.Join(placeholders, ", "))
	if _, err := tx.Execute(ctx, sql, args...); err != nil {
		return lakeerrors.Catalog(err, "flip rowmeta location to inline for table %d", t.TableID())
	}
	return nil
}

func mustColumnIndex(b *rowbatch.Batch, name string) int {
	idx, err := b.ColumnIndex(name)
	if err != nil {
		panic(err)
	}
	return idx
}
