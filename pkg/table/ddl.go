package table

import (
	"fmt"
	"strings"

	"github.com/apache/arrow/go/v11/arrow"

	"github.com/indexlake/indexlake/pkg/catalog"
)

// RowMetaCreateDDL emits the CREATE TABLE for rowmeta_{table_id} (§3.2,
// §6.1). Identifier escaping is a non-issue: table IDs are formatted
// integers, never string-interpolated user input (§9).
func RowMetaCreateDDL(d catalog.Dialect, tableID int64) string {
	name := d.QuoteIdentifier(catalog.RowMetaTableName(tableID))
	return fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (row_id %s PRIMARY KEY, location %s NOT NULL, deleted %s NOT NULL DEFAULT FALSE)",
		name, d.BigIntType(), d.VarcharType(2048), d.BooleanType(),
	)
}

// RowMetaLocationIndexDDL emits a plain secondary index on the whole
// location column. Scan selects external rows with location != 'inline'
// and groups them by the parsed file path in memory; dump updates
// locations by row_id. No query prefix-matches location with LIKE.
func RowMetaLocationIndexDDL(d catalog.Dialect, tableID int64) string {
	idxName := fmt.Sprintf("idx_rowmeta_%d_location", tableID)
	tblName := d.QuoteIdentifier(catalog.RowMetaTableName(tableID))
	return fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (location)", d.QuoteIdentifier(idxName), tblName)
}

// InlineCreateDDL emits the CREATE TABLE for inline_{table_id} (§3.2):
// row_id primary key plus one column per user schema field, in
// field_id-ascending order (the schema's declared field order).
func InlineCreateDDL(d catalog.Dialect, tableID int64, schema *arrow.Schema) (string, error) {
	name := d.QuoteIdentifier(catalog.InlineTableName(tableID))
	var cols []string
	cols = append(cols, fmt.Sprintf("row_id %s PRIMARY KEY", d.BigIntType()))
	for _, f := range schema.Fields() {
		colType, err := sqlColumnType(d, f.Type)
		if err != nil {
			return "", err
		}
		nullability := "NOT NULL"
		if f.Nullable {
			nullability = ""
		}
		col := strings.TrimSpace(fmt.Sprintf("%s %s %s", d.QuoteIdentifier(f.Name), colType, nullability))
		cols = append(cols, col)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", name, strings.Join(cols, ", ")), nil
}

// DropDDL emits the two DROP TABLE statements for a table's dynamic
// entities. No code in this module calls it.
func DropDDL(d catalog.Dialect, tableID int64) []string {
	return []string{
		fmt.Sprintf("DROP TABLE IF EXISTS %s", d.QuoteIdentifier(catalog.InlineTableName(tableID))),
		fmt.Sprintf("DROP TABLE IF EXISTS %s", d.QuoteIdentifier(catalog.RowMetaTableName(tableID))),
	}
}
