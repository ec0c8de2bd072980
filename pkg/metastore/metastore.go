// Package metastore owns the global metadata entities of spec.md §3.1:
// namespace, table, field, index definition, data file, and index file.
// These live in fixed, non-per-table catalog tables (the
// "indexlake_*" prefix distinguishes them from the per-table dynamic
// rowmeta_{id}/inline_{id} tables pkg/table creates). Every C3-C9
// component reads or writes through this package rather than emitting
// its own ad hoc SQL against these tables.
package metastore

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/indexlake/indexlake/pkg/catalog"
	"github.com/indexlake/indexlake/pkg/lakeerrors"
)

// Namespace is a unique-named grouping of tables (§3.1).
type Namespace struct {
	NamespaceID int64
	Name        string
}

// Table is the table-level metadata row (§3.1). ConfigJSON is opaque to
// this package; pkg/table decodes it into table.Config.
type Table struct {
	TableID     int64
	Name        string
	NamespaceID int64
	ConfigJSON  []byte
}

// Field is one user-schema column, ordered by FieldID ascending to
// define column order (§3.1).
type Field struct {
	FieldID      int64
	TableID      int64
	Name         string
	DataType     string
	Nullable     bool
	MetadataJSON []byte
}

// IndexDef is a persisted index definition (§3.1).
type IndexDef struct {
	IndexID         int64
	TableID         int64
	Name            string
	Kind            string
	KeyFieldIDs     []int64
	IncludeFieldIDs []int64
	ParamsJSON      []byte
}

// DataFile is one columnar file record (§3.1). PackedRowIDs is the
// sorted-ascending row_id list, little-endian packed 64-bit (§9).
type DataFile struct {
	DataFileID    int64
	TableID       int64
	RelativePath  string
	FileSizeBytes int64
	RecordCount   int64
	PackedRowIDs  []int64
}

// IndexFile is one (index, data file) artifact record (§3.1).
type IndexFile struct {
	IndexFileID  int64
	IndexID      int64
	DataFileID   int64
	RelativePath string
}

// PackRowIDs encodes a sorted ascending row_id list as fixed-width
// little-endian 64-bit integers (§9).
func PackRowIDs(ids []int64) []byte {
	buf := make([]byte, len(ids)*8)
	for i, id := range ids {
		binary.LittleEndian.PutUint64(buf[i*8:], uint64(id))
	}
	return buf
}

// UnpackRowIDs decodes PackRowIDs' output; validates the length is a
// multiple of 8 (§9).
func UnpackRowIDs(buf []byte) ([]int64, error) {
	if len(buf)%8 != 0 {
		return nil, lakeerrors.IntegrityViolation("packed_row_ids length %d is not a multiple of 8", len(buf))
	}
	out := make([]int64, len(buf)/8)
	for i := range out {
		out[i] = int64(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return out, nil
}

// BootstrapDDL returns the CREATE TABLE statements for every global
// metadata entity, idempotent (IF NOT EXISTS) so a client can call this
// on every startup.
func BootstrapDDL(d catalog.Dialect) []string {
	bigint := d.BigIntType()
	blob := d.BlobType()
	text := "TEXT"
	boolean := d.BooleanType()
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS indexlake_namespace (
			namespace_id %s PRIMARY KEY, name %s NOT NULL UNIQUE)`, bigint, text),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS indexlake_table (
			table_id %s PRIMARY KEY, name %s NOT NULL, namespace_id %s NOT NULL,
			config_json %s NOT NULL)`, bigint, text, bigint, blob),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS indexlake_field (
			field_id %s PRIMARY KEY, table_id %s NOT NULL, name %s NOT NULL,
			data_type %s NOT NULL, nullable %s NOT NULL, metadata_json %s)`,
			bigint, bigint, text, text, boolean, blob),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS indexlake_index (
			index_id %s PRIMARY KEY, table_id %s NOT NULL, name %s NOT NULL,
			index_kind %s NOT NULL, key_field_ids %s NOT NULL,
			include_field_ids %s, params_json %s NOT NULL)`,
			bigint, bigint, text, text, blob, blob, blob),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS indexlake_data_file (
			data_file_id %s PRIMARY KEY, table_id %s NOT NULL,
			relative_path %s NOT NULL, file_size_bytes %s NOT NULL,
			record_count %s NOT NULL, packed_row_ids %s NOT NULL)`,
			bigint, bigint, text, bigint, bigint, blob),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS indexlake_index_file (
			index_file_id %s PRIMARY KEY, index_id %s NOT NULL,
			data_file_id %s NOT NULL, relative_path %s NOT NULL)`,
			bigint, bigint, bigint, text),
	}
}

// Store is the CRUD façade over the global metadata tables, backed by a
// catalog.Catalog. Reads run autocommitted. Writes either take an
// explicit Tx supplied by the caller's surrounding DML/dump transaction
// or (Bootstrap, CreateNamespace, CreateTable) open their own
// transaction through catalog.WithTransaction.
type Store struct {
	cat     catalog.Catalog
	dialect catalog.Dialect
}

// New wraps cat. Bootstrap must be called once before use.
func New(cat catalog.Catalog) *Store {
	return &Store{cat: cat, dialect: cat.Dialect()}
}

// Bootstrap creates every global metadata table if absent.
func (s *Store) Bootstrap(ctx context.Context) error {
	return catalog.WithTransaction(ctx, s.cat, func(ctx context.Context, tx catalog.Tx) error {
		return tx.ExecuteBatch(ctx, BootstrapDDL(s.dialect))
	})
}

func (s *Store) nextID(ctx context.Context, tx catalog.Tx, table, idCol string) (int64, error) {
	sql := fmt.Sprintf("SELECT COALESCE(MAX(%s), 0) FROM %s", idCol, s.dialect.QuoteIdentifier(table))
	it, err := tx.Query(ctx, sql)
	if err != nil {
		return 0, lakeerrors.Catalog(err, "read max %s from %s", idCol, table)
	}
	defer it.Close()
	var max int64
	ok, err := it.Next(ctx)
	if err != nil {
		return 0, lakeerrors.Catalog(err, "read max %s from %s", idCol, table)
	}
	if ok {
		if err := it.Scan(&max); err != nil {
			return 0, lakeerrors.Catalog(err, "scan max %s from %s", idCol, table)
		}
	}
	return max + 1, nil
}

// CreateNamespace inserts a namespace row and returns its ID.
func (s *Store) CreateNamespace(ctx context.Context, name string) (int64, error) {
	var id int64
	err := catalog.WithTransaction(ctx, s.cat, func(ctx context.Context, tx catalog.Tx) error {
		var err error
		id, err = s.nextID(ctx, tx, "indexlake_namespace", "namespace_id")
		if err != nil {
			return err
		}
		_, err = tx.Execute(ctx, fmt.Sprintf(
			"INSERT INTO %s (namespace_id, name) VALUES (%s, %s)",
			s.dialect.QuoteIdentifier("indexlake_namespace"), s.dialect.Placeholder(1), s.dialect.Placeholder(2)),
			id, name)
		return err
	})
	return id, err
}

// GetNamespace looks up a namespace by name.
func (s *Store) GetNamespace(ctx context.Context, name string) (*Namespace, error) {
	it, err := s.cat.Query(ctx, fmt.Sprintf(
		"SELECT namespace_id, name FROM %s WHERE name = %s",
		s.dialect.QuoteIdentifier("indexlake_namespace"), s.dialect.Placeholder(1)), name)
	if err != nil {
		return nil, lakeerrors.Catalog(err, "get namespace %s", name)
	}
	defer it.Close()
	ok, err := it.Next(ctx)
	if err != nil {
		return nil, lakeerrors.Catalog(err, "get namespace %s", name)
	}
	if !ok {
		return nil, lakeerrors.NotFound("namespace %q", name)
	}
	var n Namespace
	if err := it.Scan(&n.NamespaceID, &n.Name); err != nil {
		return nil, lakeerrors.Catalog(err, "scan namespace %s", name)
	}
	return &n, nil
}

// GetNamespaceByID looks up a namespace by id.
func (s *Store) GetNamespaceByID(ctx context.Context, namespaceID int64) (*Namespace, error) {
	it, err := s.cat.Query(ctx, fmt.Sprintf(
		"SELECT namespace_id, name FROM %s WHERE namespace_id = %s",
		s.dialect.QuoteIdentifier("indexlake_namespace"), s.dialect.Placeholder(1)), namespaceID)
	if err != nil {
		return nil, lakeerrors.Catalog(err, "get namespace %d", namespaceID)
	}
	defer it.Close()
	ok, err := it.Next(ctx)
	if err != nil {
		return nil, lakeerrors.Catalog(err, "get namespace %d", namespaceID)
	}
	if !ok {
		return nil, lakeerrors.NotFound("namespace id %d", namespaceID)
	}
	var n Namespace
	if err := it.Scan(&n.NamespaceID, &n.Name); err != nil {
		return nil, lakeerrors.Catalog(err, "scan namespace %d", namespaceID)
	}
	return &n, nil
}

// GetTableByID looks up a table by its id alone, e.g. for the dump
// scheduler's Enqueue(table_id) callback which has no namespace/name
// context in scope.
func (s *Store) GetTableByID(ctx context.Context, tableID int64) (*Table, error) {
	it, err := s.cat.Query(ctx, fmt.Sprintf(
		"SELECT table_id, name, namespace_id, config_json FROM %s WHERE table_id = %s",
		s.dialect.QuoteIdentifier("indexlake_table"), s.dialect.Placeholder(1)), tableID)
	if err != nil {
		return nil, lakeerrors.Catalog(err, "get table id %d", tableID)
	}
	defer it.Close()
	ok, err := it.Next(ctx)
	if err != nil {
		return nil, lakeerrors.Catalog(err, "get table id %d", tableID)
	}
	if !ok {
		return nil, lakeerrors.NotFound("table id %d", tableID)
	}
	var t Table
	if err := it.Scan(&t.TableID, &t.Name, &t.NamespaceID, &t.ConfigJSON); err != nil {
		return nil, lakeerrors.Catalog(err, "scan table id %d", tableID)
	}
	return &t, nil
}

// CreateTable inserts a table row (with its fields) and returns its ID.
func (s *Store) CreateTable(ctx context.Context, namespaceID int64, name string, configJSON []byte, fields []Field) (int64, error) {
	var tableID int64
	err := catalog.WithTransaction(ctx, s.cat, func(ctx context.Context, tx catalog.Tx) error {
		var err error
		tableID, err = s.nextID(ctx, tx, "indexlake_table", "table_id")
		if err != nil {
			return err
		}
		if _, err = tx.Execute(ctx, fmt.Sprintf(
			"INSERT INTO %s (table_id, name, namespace_id, config_json) VALUES (%s, %s, %s, %s)",
			s.dialect.QuoteIdentifier("indexlake_table"),
			s.dialect.Placeholder(1), s.dialect.Placeholder(2), s.dialect.Placeholder(3), s.dialect.Placeholder(4)),
			tableID, name, namespaceID, configJSON); err != nil {
			return err
		}
		nextFieldID, err := s.nextID(ctx, tx, "indexlake_field", "field_id")
		if err != nil {
			return err
		}
		for i, f := range fields {
			if _, err = tx.Execute(ctx, fmt.Sprintf(
				"INSERT INTO %s (field_id, table_id, name, data_type, nullable, metadata_json) VALUES (%s, %s, %s, %s, %s, %s)",
				s.dialect.QuoteIdentifier("indexlake_field"),
				s.dialect.Placeholder(1), s.dialect.Placeholder(2), s.dialect.Placeholder(3),
				s.dialect.Placeholder(4), s.dialect.Placeholder(5), s.dialect.Placeholder(6)),
				nextFieldID+int64(i), tableID, f.Name, f.DataType, f.Nullable, f.MetadataJSON); err != nil {
				return err
			}
		}
		return nil
	})
	return tableID, err
}

// GetTable looks up a table by namespace and name.
func (s *Store) GetTable(ctx context.Context, namespaceID int64, name string) (*Table, error) {
	it, err := s.cat.Query(ctx, fmt.Sprintf(
		"SELECT table_id, name, namespace_id, config_json FROM %s WHERE namespace_id = %s AND name = %s",
		s.dialect.QuoteIdentifier("indexlake_table"), s.dialect.Placeholder(1), s.dialect.Placeholder(2)),
		namespaceID, name)
	if err != nil {
		return nil, lakeerrors.Catalog(err, "get table %s", name)
	}
	defer it.Close()
	ok, err := it.Next(ctx)
	if err != nil {
		return nil, lakeerrors.Catalog(err, "get table %s", name)
	}
	if !ok {
		return nil, lakeerrors.NotFound("table %q in namespace %d", name, namespaceID)
	}
	var t Table
	if err := it.Scan(&t.TableID, &t.Name, &t.NamespaceID, &t.ConfigJSON); err != nil {
		return nil, lakeerrors.Catalog(err, "scan table %s", name)
	}
	return &t, nil
}

// ListFields returns every field of a table, ordered by field_id
// ascending (§3.1: "ordered by field_id ascending to define column
// order").
func (s *Store) ListFields(ctx context.Context, tableID int64) ([]Field, error) {
	it, err := s.cat.Query(ctx, fmt.Sprintf(
		"SELECT field_id, table_id, name, data_type, nullable, metadata_json FROM %s WHERE table_id = %s ORDER BY field_id ASC",
		s.dialect.QuoteIdentifier("indexlake_field"), s.dialect.Placeholder(1)), tableID)
	if err != nil {
		return nil, lakeerrors.Catalog(err, "list fields for table %d", tableID)
	}
	defer it.Close()
	var out []Field
	for {
		ok, err := it.Next(ctx)
		if err != nil {
			return nil, lakeerrors.Catalog(err, "list fields for table %d", tableID)
		}
		if !ok {
			break
		}
		var f Field
		if err := it.Scan(&f.FieldID, &f.TableID, &f.Name, &f.DataType, &f.Nullable, &f.MetadataJSON); err != nil {
			return nil, lakeerrors.Catalog(err, "scan field for table %d", tableID)
		}
		out = append(out, f)
	}
	return out, nil
}

// CreateIndexDef inserts an index definition row inside tx (creation
// flow, §4.8: "in one Tx insert the index definition row").
func (s *Store) CreateIndexDef(ctx context.Context, tx catalog.Tx, def IndexDef) (int64, error) {
	id, err := s.nextID(ctx, tx, "indexlake_index", "index_id")
	if err != nil {
		return 0, err
	}
	keyIDs := packInt64s(def.KeyFieldIDs)
	includeIDs := packInt64s(def.IncludeFieldIDs)
	_, err = tx.Execute(ctx, fmt.Sprintf(
		"INSERT INTO %s (index_id, table_id, name, index_kind, key_field_ids, include_field_ids, params_json) VALUES (%s, %s, %s, %s, %s, %s, %s)",
		s.dialect.QuoteIdentifier("indexlake_index"),
		s.dialect.Placeholder(1), s.dialect.Placeholder(2), s.dialect.Placeholder(3),
		s.dialect.Placeholder(4), s.dialect.Placeholder(5), s.dialect.Placeholder(6), s.dialect.Placeholder(7)),
		id, def.TableID, def.Name, def.Kind, keyIDs, includeIDs, def.ParamsJSON)
	if err != nil {
		return 0, lakeerrors.Catalog(err, "insert index definition %s", def.Name)
	}
	return id, nil
}

// ListIndexDefs returns every index definition registered on tableID.
func (s *Store) ListIndexDefs(ctx context.Context, tableID int64) ([]IndexDef, error) {
	it, err := s.cat.Query(ctx, fmt.Sprintf(
		"SELECT index_id, table_id, name, index_kind, key_field_ids, include_field_ids, params_json FROM %s WHERE table_id = %s",
		s.dialect.QuoteIdentifier("indexlake_index"), s.dialect.Placeholder(1)), tableID)
	if err != nil {
		return nil, lakeerrors.Catalog(err, "list index defs for table %d", tableID)
	}
	defer it.Close()
	var out []IndexDef
	for {
		ok, err := it.Next(ctx)
		if err != nil {
			return nil, lakeerrors.Catalog(err, "list index defs for table %d", tableID)
		}
		if !ok {
			break
		}
		var def IndexDef
		var keyIDs, includeIDs []byte
		if err := it.Scan(&def.IndexID, &def.TableID, &def.Name, &def.Kind, &keyIDs, &includeIDs, &def.ParamsJSON); err != nil {
			return nil, lakeerrors.Catalog(err, "scan index def for table %d", tableID)
		}
		def.KeyFieldIDs, err = UnpackRowIDs(keyIDs)
		if err != nil {
			return nil, err
		}
		def.IncludeFieldIDs, err = UnpackRowIDs(includeIDs)
		if err != nil {
			return nil, err
		}
		out = append(out, def)
	}
	return out, nil
}

// CreateDataFile inserts a data_file row inside tx (§4.7 step 8).
func (s *Store) CreateDataFile(ctx context.Context, tx catalog.Tx, f DataFile) (int64, error) {
	id, err := s.nextID(ctx, tx, "indexlake_data_file", "data_file_id")
	if err != nil {
		return 0, err
	}
	_, err = tx.Execute(ctx, fmt.Sprintf(
		"INSERT INTO %s (data_file_id, table_id, relative_path, file_size_bytes, record_count, packed_row_ids) VALUES (%s, %s, %s, %s, %s, %s)",
		s.dialect.QuoteIdentifier("indexlake_data_file"),
		s.dialect.Placeholder(1), s.dialect.Placeholder(2), s.dialect.Placeholder(3),
		s.dialect.Placeholder(4), s.dialect.Placeholder(5), s.dialect.Placeholder(6)),
		id, f.TableID, f.RelativePath, f.FileSizeBytes, f.RecordCount, PackRowIDs(f.PackedRowIDs))
	if err != nil {
		return 0, lakeerrors.Catalog(err, "insert data file %s", f.RelativePath)
	}
	return id, nil
}

// ListDataFiles returns every data file registered for tableID.
func (s *Store) ListDataFiles(ctx context.Context, tableID int64) ([]DataFile, error) {
	it, err := s.cat.Query(ctx, fmt.Sprintf(
		"SELECT data_file_id, table_id, relative_path, file_size_bytes, record_count, packed_row_ids FROM %s WHERE table_id = %s",
		s.dialect.QuoteIdentifier("indexlake_data_file"), s.dialect.Placeholder(1)), tableID)
	if err != nil {
		return nil, lakeerrors.Catalog(err, "list data files for table %d", tableID)
	}
	defer it.Close()
	var out []DataFile
	for {
		ok, err := it.Next(ctx)
		if err != nil {
			return nil, lakeerrors.Catalog(err, "list data files for table %d", tableID)
		}
		if !ok {
			break
		}
		var f DataFile
		var packed []byte
		if err := it.Scan(&f.DataFileID, &f.TableID, &f.RelativePath, &f.FileSizeBytes, &f.RecordCount, &packed); err != nil {
			return nil, lakeerrors.Catalog(err, "scan data file for table %d", tableID)
		}
		f.PackedRowIDs, err = UnpackRowIDs(packed)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

// CreateIndexFile inserts an index_file row inside tx (§4.7 step 9e).
func (s *Store) CreateIndexFile(ctx context.Context, tx catalog.Tx, f IndexFile) (int64, error) {
	id, err := s.nextID(ctx, tx, "indexlake_index_file", "index_file_id")
	if err != nil {
		return 0, err
	}
	_, err = tx.Execute(ctx, fmt.Sprintf(
		"INSERT INTO %s (index_file_id, index_id, data_file_id, relative_path) VALUES (%s, %s, %s, %s)",
		s.dialect.QuoteIdentifier("indexlake_index_file"),
		s.dialect.Placeholder(1), s.dialect.Placeholder(2), s.dialect.Placeholder(3), s.dialect.Placeholder(4)),
		id, f.IndexID, f.DataFileID, f.RelativePath)
	if err != nil {
		return 0, lakeerrors.Catalog(err, "insert index file %s", f.RelativePath)
	}
	return id, nil
}

// ListIndexFiles returns every index file artifact for a given index,
// optionally restricted to a single data file (dataFileID <= 0 means
// "every data file").
func (s *Store) ListIndexFiles(ctx context.Context, indexID, dataFileID int64) ([]IndexFile, error) {
	sql := fmt.Sprintf(
		"SELECT index_file_id, index_id, data_file_id, relative_path FROM %s WHERE index_id = %s",
		s.dialect.QuoteIdentifier("indexlake_index_file"), s.dialect.Placeholder(1))
	args := []interface{}{indexID}
	if dataFileID > 0 {
		sql += fmt.Sprintf(" AND data_file_id = %s", s.dialect.Placeholder(2))
		args = append(args, dataFileID)
	}
	it, err := s.cat.Query(ctx, sql, args...)
	if err != nil {
		return nil, lakeerrors.Catalog(err, "list index files for index %d", indexID)
	}
	defer it.Close()
	var out []IndexFile
	for {
		ok, err := it.Next(ctx)
		if err != nil {
			return nil, lakeerrors.Catalog(err, "list index files for index %d", indexID)
		}
		if !ok {
			break
		}
		var f IndexFile
		if err := it.Scan(&f.IndexFileID, &f.IndexID, &f.DataFileID, &f.RelativePath); err != nil {
			return nil, lakeerrors.Catalog(err, "scan index file for index %d", indexID)
		}
		out = append(out, f)
	}
	return out, nil
}

func packInt64s(ids []int64) []byte {
	return PackRowIDs(ids)
}
