package catalog

import "fmt"

// QuoteIdentifier quotes a SQL identifier per dialect. Callers pass
// table names built from numeric IDs, the fixed indexlake_* names, and
// user schema column names. It only wraps the name in [] or "" and does
// not escape quote characters inside it, so it is a formatting helper,
// not a sanitizer.
func (d Dialect) QuoteIdentifier(name string) string {
	switch d {
	case DialectSQLite:
		return "[" + name + "]"
	case DialectPostgres:
		return `"` + name + `"`
	default:
		return name
	}
}

// BigIntType returns the dialect's spelling for a 64-bit signed integer
// column.
func (d Dialect) BigIntType() string {
	return "BIGINT"
}

// BlobType returns the dialect's spelling for an arbitrary-length byte
// column.
func (d Dialect) BlobType() string {
	switch d {
	case DialectPostgres:
		return "BYTEA"
	default:
		return "BLOB"
	}
}

// VarcharType returns the dialect's spelling for a bounded text column
// of the given length.
func (d Dialect) VarcharType(length int) string {
	return fmt.Sprintf("VARCHAR(%d)", length)
}

// BooleanType returns the dialect's spelling for a boolean column.
func (d Dialect) BooleanType() string {
	return "BOOLEAN"
}

// Placeholder returns the dialect's bind-parameter marker for the i'th
// (1-based) argument in a statement.
func (d Dialect) Placeholder(i int) string {
	switch d {
	case DialectPostgres:
		return fmt.Sprintf("$%d", i)
	default:
		return "?"
	}
}

// RowMetaTableName returns the per-table address-book table name
// (rowmeta_{table_id}), unquoted.
func RowMetaTableName(tableID int64) string {
	return fmt.Sprintf("rowmeta_%d", tableID)
}

// InlineTableName returns the per-table inline-row table name
// (inline_{table_id}), unquoted.
func InlineTableName(tableID int64) string {
	return fmt.Sprintf("inline_%d", tableID)
}
