package table

import (
	"github.com/apache/arrow/go/v11/arrow"

	"github.com/indexlake/indexlake/pkg/catalog"
	"github.com/indexlake/indexlake/pkg/lakeerrors"
)

// sqlColumnType maps an Arrow field type to its dialect-specific SQL
// column type for DDL generation (§6.1: "BIGINT/BLOB spellings are
// dialect-specific").
func sqlColumnType(d catalog.Dialect, t arrow.DataType) (string, error) {
	switch t.ID() {
	case arrow.INT64:
		return d.BigIntType(), nil
	case arrow.INT32:
		return "INTEGER", nil
	case arrow.FLOAT64:
		return "DOUBLE PRECISION", nil
	case arrow.FLOAT32:
		return "REAL", nil
	case arrow.STRING, arrow.LARGE_STRING:
		return textType(d), nil
	case arrow.BOOL:
		return d.BooleanType(), nil
	case arrow.BINARY, arrow.LARGE_BINARY, arrow.FIXED_SIZE_BINARY:
		return d.BlobType(), nil
	case arrow.TIMESTAMP:
		return timestampType(d), nil
	case arrow.DATE32, arrow.DATE64:
		return "DATE", nil
	default:
		return "", lakeerrors.InvalidArgument("unsupported column type %s for dialect %s", t, d)
	}
}

// textType is the unbounded-text spelling; unlike BlobType it does not
// vary by dialect — both Postgres and SQLite spell it TEXT.
func textType(d catalog.Dialect) string {
	return "TEXT"
}

func timestampType(d catalog.Dialect) string {
	if d == catalog.DialectPostgres {
		return "TIMESTAMPTZ"
	}
	return "TIMESTAMP"
}
