package table

import (
	"context"

	"github.com/indexlake/indexlake/pkg/catalog"
	"github.com/indexlake/indexlake/pkg/index"
	"github.com/indexlake/indexlake/pkg/ilog"
	"github.com/indexlake/indexlake/pkg/lakeerrors"
	"github.com/indexlake/indexlake/pkg/metastore"
	"github.com/indexlake/indexlake/pkg/storage"
)

// Table is the per-table handle the DML executor (insert/scan/update/
// delete) operates through. It owns no state of its own beyond
// identifying the table; the Catalog/Storage/Registry it wraps are
// shared across every table opened by one client (C9).
type Table struct {
	Meta      metastore.Table
	Namespace metastore.Namespace
	Config    Config
	Fields    []metastore.Field

	Catalog   catalog.Catalog
	Storage   storage.Store
	Metastore *metastore.Store
	Indices   *index.Registry
}

// Open constructs a Table handle from already-loaded metadata.
func Open(cat catalog.Catalog, store storage.Store, meta *metastore.Store, indices *index.Registry,
	ns metastore.Namespace, tbl metastore.Table, fields []metastore.Field) (*Table, error) {
	cfg, err := DecodeConfigJSON(tbl.ConfigJSON, fields)
	if err != nil {
		return nil, err
	}
	return &Table{
		Meta: tbl, Namespace: ns, Config: cfg, Fields: fields,
		Catalog: cat, Storage: store, Metastore: meta, Indices: indices,
	}, nil
}

// Create materializes a new table: inserts the global metadata rows and
// emits the per-table dynamic DDL for rowmeta_{id}/inline_{id} (§3.2,
// §6.1).
func Create(ctx context.Context, cat catalog.Catalog, store storage.Store, meta *metastore.Store, indices *index.Registry,
	ns metastore.Namespace, name string, cfg Config) (*Table, error) {
	cfg = cfg.WithDefaults()
	if cfg.Schema == nil {
		return nil, lakeerrors.InvalidArgument("table %q requires a schema", name)
	}
	fields, err := FieldsFromSchema(cfg.Schema)
	if err != nil {
		return nil, err
	}
	configJSON, err := EncodeConfigJSON(cfg)
	if err != nil {
		return nil, err
	}
	tableID, err := meta.CreateTable(ctx, ns.NamespaceID, name, configJSON, fields)
	if err != nil {
		return nil, err
	}
	dialect := cat.Dialect()
	inlineDDL, err := InlineCreateDDL(dialect, tableID, cfg.Schema)
	if err != nil {
		return nil, err
	}
	err = catalog.WithTransaction(ctx, cat, func(ctx context.Context, tx catalog.Tx) error {
		return tx.ExecuteBatch(ctx, []string{
			RowMetaCreateDDL(dialect, tableID),
			RowMetaLocationIndexDDL(dialect, tableID),
			inlineDDL,
		})
	})
	if err != nil {
		return nil, err
	}
	ilog.Infof(ctx, "created table %q (id=%d) in namespace %q", name, tableID, ns.Name)
	tbl := metastore.Table{TableID: tableID, Name: name, NamespaceID: ns.NamespaceID, ConfigJSON: configJSON}
	storedFields, err := meta.ListFields(ctx, tableID)
	if err != nil {
		return nil, err
	}
	return Open(cat, store, meta, indices, ns, tbl, storedFields)
}

// TableID is a convenience accessor.
func (t *Table) TableID() int64 { return t.Meta.TableID }

// Dialect is a convenience accessor.
func (t *Table) Dialect() catalog.Dialect { return t.Catalog.Dialect() }

// FieldByName implements index.SchemaView so Index.Supports can validate
// a definition against this table's schema without importing pkg/table
// (which would create an import cycle with pkg/index).
func (t *Table) FieldByName(name string) (index.FieldView, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return index.FieldView{Name: f.Name, TypeName: f.DataType, Nullable: f.Nullable}, true
		}
	}
	return index.FieldView{}, false
}

// IndexDefs returns every index definition registered on this table.
func (t *Table) IndexDefs(ctx context.Context) ([]index.Def, error) {
	metaDefs, err := t.Metastore.ListIndexDefs(ctx, t.TableID())
	if err != nil {
		return nil, err
	}
	out := make([]index.Def, len(metaDefs))
	for i, d := range metaDefs {
		out[i] = index.Def{
			IndexID: d.IndexID, TableID: d.TableID, Name: d.Name, Kind: d.Kind,
			KeyFieldIDs: d.KeyFieldIDs, IncludeFieldIDs: d.IncludeFieldIDs, ParamsJSON: d.ParamsJSON,
		}
	}
	return out, nil
}

// CreateIndex runs the index-creation flow (§4.8 "create_index"):
// resolve kind -> encode params -> call Supports(def) -> insert the
// definition row inside one Tx (only the insert runs in the Tx).
func (t *Table) CreateIndex(ctx context.Context, name, kind string, keyFieldIDs, includeFieldIDs []int64, params index.Params) (index.Def, error) {
	impl, ok := t.Indices.Lookup(kind)
	if !ok {
		return index.Def{}, lakeerrors.NotFound("index kind %q is not registered", kind)
	}
	encoded, err := impl.EncodeParams(params)
	if err != nil {
		return index.Def{}, lakeerrors.Index(err, "encode params for index %q", name)
	}
	def := index.Def{TableID: t.TableID(), Name: name, Kind: kind, KeyFieldIDs: keyFieldIDs, IncludeFieldIDs: includeFieldIDs, ParamsJSON: encoded}
	if err := impl.Supports(def, t); err != nil {
		return index.Def{}, err
	}
	var indexID int64
	err = catalog.WithTransaction(ctx, t.Catalog, func(ctx context.Context, tx catalog.Tx) error {
		var err error
		indexID, err = t.Metastore.CreateIndexDef(ctx, tx, metastore.IndexDef{
			TableID: def.TableID, Name: def.Name, Kind: def.Kind,
			KeyFieldIDs: def.KeyFieldIDs, IncludeFieldIDs: def.IncludeFieldIDs, ParamsJSON: def.ParamsJSON,
		})
		return err
	})
	if err != nil {
		return index.Def{}, err
	}
	def.IndexID = indexID
	ilog.Infof(ctx, "created index %q (kind=%s) on table %d", name, kind, t.TableID())
	return def, nil
}
