// Package index defines the pluggable Index/IndexBuilder contracts
// (C8, spec §4.8): capability sets implemented as values registered in a
// keyed map at client initialization, dispatched dynamically by kind
// string — no language-level inheritance required, per the base spec's
// design note.
package index

import (
	"context"

	"github.com/indexlake/indexlake/pkg/expr"
	"github.com/indexlake/indexlake/pkg/rowbatch"
	"github.com/indexlake/indexlake/pkg/storage"
)

// Def is a persisted index definition row (§3.1 "Index definition").
type Def struct {
	IndexID         int64
	TableID         int64
	Name            string
	Kind            string
	KeyFieldIDs     []int64
	IncludeFieldIDs []int64
	ParamsJSON      []byte
}

// File is a persisted index artifact row (§3.1 "Index file"), one per
// (index, data file) pair.
type File struct {
	IndexFileID int64
	IndexID     int64
	DataFileID  int64
	RelativePath string
}

// Params is the opaque decoded form of an index definition's params_json.
// The engine never inspects it; it only stores/retrieves the encoded
// form via Index.EncodeParams/DecodeParams.
type Params interface{}

// Index is the capability set a registered index kind implements.
// Implementations are stateless singletons registered under Kind() in
// the client's read-only-after-init registry (§5).
type Index interface {
	// Kind is the stable registration key persisted in
	// indexlake_index.index_kind.
	Kind() string

	// DecodeParams validates and parses index-specific configuration
	// from its stored JSON form.
	DecodeParams(paramsJSON []byte) (Params, error)

	// EncodeParams is the inverse of DecodeParams, used by create_index
	// to persist user-supplied params.
	EncodeParams(p Params) ([]byte, error)

	// Supports validates def against the target table's schema at
	// index-creation time (e.g. a spatial index requires a geometry
	// column).
	Supports(def Def, schema SchemaView) error

	// Builder returns a fresh IndexBuilder for a dump pass building this
	// index against one data file.
	Builder(def Def) (Builder, error)

	// SupportsFilter is a cheap syntactic check with no I/O: can this
	// index answer (or help narrow) the given expression?
	SupportsFilter(def Def, e expr.Expr) bool

	// Filter performs the actual index read — may be async/I/O bound —
	// and returns the set of row_ids satisfying e across the given index
	// files.
	Filter(ctx context.Context, def Def, files []File, open OpenIndexFile, e expr.Expr) (RowIDSet, error)

	// Searcher optionally exposes a similarity-search capability
	// (§4.8's optional search(def, index_files, query, k)). Index kinds
	// that don't support ranked search return (nil, false).
	Searcher() (Searcher, bool)
}

// Searcher is the optional ranked-search capability some index kinds
// (e.g. vector indices) expose.
type Searcher interface {
	Search(ctx context.Context, def Def, files []File, open OpenIndexFile, query interface{}, k int) ([]int64, error)
}

// Builder accumulates per-batch state during a dump (or backfill) pass
// and finalizes it into one index artifact.
type Builder interface {
	// Update accumulates state for the rows in batch. Called exactly
	// once per dumped batch, in row_id-ascending order.
	Update(ctx context.Context, batch *rowbatch.Batch) error

	// Write consumes all accumulated state and finalizes the artifact.
	// Called exactly once.
	Write(ctx context.Context, w storage.Writer) error
}

// OpenIndexFile opens one index artifact for reading. Passed to
// Index.Filter/Searcher.Search instead of a storage.Store directly so
// index implementations never need to know the blob layout (§6.3).
type OpenIndexFile func(ctx context.Context, f File) (storage.Reader, error)

// RowIDSet is a set of row_ids, the currency Index.Filter returns and
// scan's index path intersects across expressions (§4.5 step 2).
type RowIDSet map[int64]struct{}

// NewRowIDSet builds a RowIDSet from a slice.
func NewRowIDSet(ids []int64) RowIDSet {
	s := make(RowIDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Intersect returns the intersection of a and b, left unmodified.
func (a RowIDSet) Intersect(b RowIDSet) RowIDSet {
	out := make(RowIDSet)
	for id := range a {
		if _, ok := b[id]; ok {
			out[id] = struct{}{}
		}
	}
	return out
}

// Slice returns the set's members as a slice, order unspecified.
func (a RowIDSet) Slice() []int64 {
	out := make([]int64, 0, len(a))
	for id := range a {
		out = append(out, id)
	}
	return out
}

// SchemaView is the narrow view of a table's field list Supports needs
// to validate a definition, avoiding an import of the table package
// (which itself depends on index) from here.
type SchemaView interface {
	FieldByName(name string) (FieldView, bool)
}

// FieldView describes one user-schema column.
type FieldView struct {
	Name     string
	TypeName string
	Nullable bool
}

// Registry is the read-only-after-init map of Index kind() -> Index
// (§5's "registered-indices map is read-only after client
// initialization").
type Registry struct {
	byKind map[string]Index
}

// NewRegistry builds a Registry from a fixed set of index kinds.
func NewRegistry(kinds ...Index) *Registry {
	r := &Registry{byKind: make(map[string]Index, len(kinds))}
	for _, k := range kinds {
		r.byKind[k.Kind()] = k
	}
	return r
}

// Lookup returns the Index registered under kind, or ok=false.
func (r *Registry) Lookup(kind string) (Index, bool) {
	idx, ok := r.byKind[kind]
	return idx, ok
}

// Kinds returns every registered kind string, order unspecified.
func (r *Registry) Kinds() []string {
	out := make([]string, 0, len(r.byKind))
	for k := range r.byKind {
		out = append(out, k)
	}
	return out
}
