// Package client is the top-level entry point (C9): it owns the one
// Catalog and one Storage a deployment is configured against, the
// read-only-after-init index.Registry, and the dump scheduler, and
// hands out *Table handles by namespace/name or by bare table_id.
// Everything in cmd/ilctl drives the engine through this package alone.
package client

import (
	"context"

	"github.com/indexlake/indexlake/pkg/catalog"
	"github.com/indexlake/indexlake/pkg/dump"
	"github.com/indexlake/indexlake/pkg/expr"
	"github.com/indexlake/indexlake/pkg/ilog"
	"github.com/indexlake/indexlake/pkg/index"
	"github.com/indexlake/indexlake/pkg/metastore"
	"github.com/indexlake/indexlake/pkg/rowbatch"
	"github.com/indexlake/indexlake/pkg/storage"
	"github.com/indexlake/indexlake/pkg/table"
)

// Client is the engine's single entry point. One Client is shared by
// every caller in a process; it holds no per-table state beyond what
// Table itself caches, so OpenTable/CreateTable are cheap and can be
// called repeatedly.
type Client struct {
	catalog catalog.Catalog
	storage storage.Store
	meta    *metastore.Store
	indices *index.Registry
	dumps   *dump.Scheduler
}

// Open bootstraps the global metastore DDL (idempotent) and returns a
// ready Client. kinds is the fixed set of index implementations this
// deployment supports; it is never mutated after Open returns (§5).
func Open(ctx context.Context, cat catalog.Catalog, store storage.Store, kinds ...index.Index) (*Client, error) {
	meta := metastore.New(cat)
	if err := meta.Bootstrap(ctx); err != nil {
		return nil, err
	}
	c := &Client{
		catalog: cat,
		storage: store,
		meta:    meta,
		indices: index.NewRegistry(kinds...),
	}
	c.dumps = dump.NewScheduler(c.openTableByID)
	return c, nil
}

func (c *Client) openTableByID(ctx context.Context, tableID int64) (*table.Table, error) {
	tbl, err := c.meta.GetTableByID(ctx, tableID)
	if err != nil {
		return nil, err
	}
	ns, err := c.meta.GetNamespaceByID(ctx, tbl.NamespaceID)
	if err != nil {
		return nil, err
	}
	fields, err := c.meta.ListFields(ctx, tbl.TableID)
	if err != nil {
		return nil, err
	}
	return table.Open(c.catalog, c.storage, c.meta, c.indices, *ns, *tbl, fields)
}

// CreateNamespace registers a new namespace.
func (c *Client) CreateNamespace(ctx context.Context, name string) (metastore.Namespace, error) {
	id, err := c.meta.CreateNamespace(ctx, name)
	if err != nil {
		return metastore.Namespace{}, err
	}
	return metastore.Namespace{NamespaceID: id, Name: name}, nil
}

// CreateTable creates a new table in namespace and returns its handle.
func (c *Client) CreateTable(ctx context.Context, namespace, name string, cfg table.Config) (*table.Table, error) {
	ns, err := c.meta.GetNamespace(ctx, namespace)
	if err != nil {
		return nil, err
	}
	return table.Create(ctx, c.catalog, c.storage, c.meta, c.indices, *ns, name, cfg)
}

// OpenTable resolves an existing table by namespace and name.
func (c *Client) OpenTable(ctx context.Context, namespace, name string) (*table.Table, error) {
	ns, err := c.meta.GetNamespace(ctx, namespace)
	if err != nil {
		return nil, err
	}
	tbl, err := c.meta.GetTable(ctx, ns.NamespaceID, name)
	if err != nil {
		return nil, err
	}
	fields, err := c.meta.ListFields(ctx, tbl.TableID)
	if err != nil {
		return nil, err
	}
	return table.Open(c.catalog, c.storage, c.meta, c.indices, *ns, *tbl, fields)
}

// Insert appends batch to t, enqueuing a dump if the inline tier has
// grown past its configured limit (§4.4 step 7). batch is not retained;
// callers keep ownership.
func (c *Client) Insert(ctx context.Context, t *table.Table, batch *rowbatch.Batch) error {
	return t.Insert(ctx, batch, c.dumps)
}

// Scan streams t's rows matching opts to sink (§4.5).
func (c *Client) Scan(ctx context.Context, t *table.Table, opts table.ScanOptions, sink table.BatchSink) error {
	return t.Scan(ctx, opts, sink)
}

// Update rewrites every row of t matching condition via apply (§4.6).
// A nil condition matches every row.
func (c *Client) Update(ctx context.Context, t *table.Table, condition expr.Expr, apply func(*rowbatch.Batch) (*rowbatch.Batch, error)) (int64, error) {
	return t.Update(ctx, condition, apply)
}

// Delete removes every row of t matching condition (§4.6). A nil
// condition deletes every row.
func (c *Client) Delete(ctx context.Context, t *table.Table, condition expr.Expr) (int64, error) {
	return t.Delete(ctx, condition)
}

// CreateIndex registers a new index on t and then backfills it against
// every existing data file (§4.8: "create_index ... immediately followed
// by a backfill pass over the table's existing data files").
func (c *Client) CreateIndex(ctx context.Context, t *table.Table, name, kind string, keyFieldIDs, includeFieldIDs []int64, params index.Params) (index.Def, error) {
	def, err := t.CreateIndex(ctx, name, kind, keyFieldIDs, includeFieldIDs, params)
	if err != nil {
		return index.Def{}, err
	}
	if err := dump.Backfill(ctx, t, def); err != nil {
		return def, err
	}
	ilog.Infof(ctx, "backfilled index %q on table %d", name, t.TableID())
	return def, nil
}

// Dump runs one synchronous dump pass against t, bypassing the
// background scheduler. Exposed for cmd/ilctl's dump-now subcommand and
// for tests that need a deterministic dump point.
func (c *Client) Dump(ctx context.Context, t *table.Table) error {
	return dump.Run(ctx, t)
}

// Close releases the underlying Catalog.
func (c *Client) Close() error {
	return c.catalog.Close()
}
