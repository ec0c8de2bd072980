// Package table implements the per-table row-metadata table (C3), inline
// row table (C4), and the DML executor (C6: insert/scan/update/delete)
// exactly per spec.md §4.4-§4.6. The global metadata entities
// (namespace, table, field, index definition, data file, index file)
// described in §3.1 that these operations read and write live in
// pkg/metastore.
package table

import (
	"github.com/apache/arrow/go/v11/arrow"

	"github.com/indexlake/indexlake/pkg/parquetio"
)

// DefaultInlineRowCountLimit is used when a table's config_json omits
// inline_row_count_limit.
const DefaultInlineRowCountLimit = 1 << 20

// DefaultDumpBatchRowCount bounds how many inline rows a single dump
// pass drains at once (§4.7 step 2).
const DefaultDumpBatchRowCount = 1 << 16

// Config is the decoded form of a table's config_json (§3.1): the
// inline-row-count dump trigger, the dump batch size, the table's Arrow
// schema (the canonical in-memory form of the base spec's informal
// "Arrow-equivalent schema reference"), and parquet writer options.
type Config struct {
	InlineRowCountLimit int64
	DumpBatchRowCount   int64
	Schema              *arrow.Schema
	ParquetWriterOpts   parquetio.WriterOptions
}

// WithDefaults fills zero-valued fields with package defaults.
func (c Config) WithDefaults() Config {
	if c.InlineRowCountLimit == 0 {
		c.InlineRowCountLimit = DefaultInlineRowCountLimit
	}
	if c.DumpBatchRowCount == 0 {
		c.DumpBatchRowCount = DefaultDumpBatchRowCount
	}
	return c
}
