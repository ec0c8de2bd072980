// Package hashindex is a reference equality index: builds an in-memory
// map of key-column value -> row_ids during dump, serialized as a small
// fixed-record binary file. Needs no third-party library — an in-memory
// map plus a fixed-record binary encode/decode, mirroring the
// packed_row_ids little-endian encoding spec.md §3.1/§9 already
// specifies for data files.
package hashindex

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/apache/arrow/go/v11/arrow"
	"github.com/apache/arrow/go/v11/arrow/array"

	"github.com/indexlake/indexlake/pkg/expr"
	"github.com/indexlake/indexlake/pkg/index"
	"github.com/indexlake/indexlake/pkg/lakeerrors"
	"github.com/indexlake/indexlake/pkg/rowbatch"
	"github.com/indexlake/indexlake/pkg/storage"
)

// Kind is this index's registration key.
const Kind = "hash"

// IndexParams is the decoded params_json for a hash index: just the key
// column name (the framework's key_field_ids already pin which field,
// but the column name is carried too for readable filter matching).
type IndexParams struct {
	KeyColumn string `json:"key_column"`
}

// Index implements index.Index for kind "hash".
type Index struct{}

func (Index) Kind() string { return Kind }

func (Index) DecodeParams(raw []byte) (index.Params, error) {
	var p IndexParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, lakeerrors.InvalidArgument("decode hash index params: %v", err)
	}
	if p.KeyColumn == "" {
		return nil, lakeerrors.InvalidArgument("hash index requires key_column")
	}
	return p, nil
}

func (Index) EncodeParams(p index.Params) ([]byte, error) {
	ip, ok := p.(IndexParams)
	if !ok {
		return nil, lakeerrors.InvalidArgument("hash index expects IndexParams, got %T", p)
	}
	return json.Marshal(ip)
}

func (Index) Supports(def index.Def, schema index.SchemaView) error {
	var p IndexParams
	if err := json.Unmarshal(def.ParamsJSON, &p); err != nil {
		return lakeerrors.InvalidArgument("decode hash index params: %v", err)
	}
	if _, ok := schema.FieldByName(p.KeyColumn); !ok {
		return lakeerrors.InvalidArgument("hash index key column %q not found in schema", p.KeyColumn)
	}
	return nil
}

func (Index) Builder(def index.Def) (index.Builder, error) {
	var p IndexParams
	if err := json.Unmarshal(def.ParamsJSON, &p); err != nil {
		return nil, lakeerrors.InvalidArgument("decode hash index params: %v", err)
	}
	return &builder{keyColumn: p.KeyColumn, entries: map[string][]int64{}}, nil
}

func (Index) SupportsFilter(def index.Def, e expr.Expr) bool {
	var p IndexParams
	if json.Unmarshal(def.ParamsJSON, &p) != nil {
		return false
	}
	switch n := e.(type) {
	case expr.Comparison:
		if n.Op != expr.Eq {
			return false
		}
		col, ok := n.Left.(expr.ColumnRef)
		return ok && col.Name == p.KeyColumn
	case expr.In:
		col, ok := n.Column.(expr.ColumnRef)
		return ok && col.Name == p.KeyColumn
	default:
		return false
	}
}

func (Index) Filter(ctx context.Context, def index.Def, files []index.File, open index.OpenIndexFile, e expr.Expr) (index.RowIDSet, error) {
	var keys []string
	switch n := e.(type) {
	case expr.Comparison:
		lit, ok := n.Right.(expr.Literal)
		if !ok {
			return nil, lakeerrors.InvalidArgument("hash index filter: right side is not a literal")
		}
		keys = []string{literalKey(lit.Value)}
	case expr.In:
		for _, lit := range n.Values {
			keys = append(keys, literalKey(lit.Value))
		}
	default:
		return nil, lakeerrors.InvalidArgument("hash index cannot filter %T", e)
	}
	result := index.RowIDSet{}
	for _, f := range files {
		r, err := open(ctx, f)
		if err != nil {
			return nil, lakeerrors.Index(err, "open hash index file %s", f.RelativePath)
		}
		entries, err := decodeFile(ctx, r)
		_ = r.Close()
		if err != nil {
			return nil, lakeerrors.Index(err, "decode hash index file %s", f.RelativePath)
		}
		for _, k := range keys {
			for _, id := range entries[k] {
				result[id] = struct{}{}
			}
		}
	}
	return result, nil
}

func (Index) Searcher() (index.Searcher, bool) { return nil, false }

func literalKey(v interface{}) string {
	return fmt.Sprintf("%v", v)
}

type builder struct {
	keyColumn string
	entries   map[string][]int64
}

func (b *builder) Update(ctx context.Context, batch *rowbatch.Batch) error {
	rowIDs, err := batch.RowIDs()
	if err != nil {
		return err
	}
	colIdx, err := batch.ColumnIndex(b.keyColumn)
	if err != nil {
		return lakeerrors.Index(err, "hash index missing key column %q", b.keyColumn)
	}
	col := batch.Record().Column(colIdx)
	for i := 0; i < col.Len(); i++ {
		key := arrayValueKey(col, i)
		b.entries[key] = append(b.entries[key], rowIDs[i])
	}
	return nil
}

func (b *builder) Write(ctx context.Context, w storage.Writer) error {
	bw := bufio.NewWriter(w)
	if err := binary.Write(bw, binary.LittleEndian, uint32(len(b.entries))); err != nil {
		return lakeerrors.Index(err, "write hash index header")
	}
	for key, ids := range b.entries {
		keyBytes := []byte(key)
		if err := binary.Write(bw, binary.LittleEndian, uint32(len(keyBytes))); err != nil {
			return lakeerrors.Index(err, "write key length")
		}
		if _, err := bw.Write(keyBytes); err != nil {
			return lakeerrors.Index(err, "write key")
		}
		if err := binary.Write(bw, binary.LittleEndian, uint32(len(ids))); err != nil {
			return lakeerrors.Index(err, "write row count")
		}
		for _, id := range ids {
			if err := binary.Write(bw, binary.LittleEndian, id); err != nil {
				return lakeerrors.Index(err, "write row id")
			}
		}
	}
	if err := bw.Flush(); err != nil {
		return lakeerrors.Index(err, "flush hash index file")
	}
	return nil
}

func decodeFile(ctx context.Context, r storage.Reader) (map[string][]int64, error) {
	size, err := r.Size(ctx)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, size)
	if _, err := r.ReadAt(ctx, buf, 0); err != nil && err != io.EOF {
		return nil, err
	}
	br := bufioReader{buf: buf}
	var n uint32
	if err := br.readUint32(&n); err != nil {
		return nil, err
	}
	out := make(map[string][]int64, n)
	for i := uint32(0); i < n; i++ {
		var klen uint32
		if err := br.readUint32(&klen); err != nil {
			return nil, err
		}
		key, err := br.readBytes(int(klen))
		if err != nil {
			return nil, err
		}
		var cnt uint32
		if err := br.readUint32(&cnt); err != nil {
			return nil, err
		}
		ids := make([]int64, cnt)
		for j := uint32(0); j < cnt; j++ {
			if err := br.readInt64(&ids[j]); err != nil {
				return nil, err
			}
		}
		out[string(key)] = ids
	}
	return out, nil
}

// bufioReader is a minimal positional byte reader over an in-memory
// buffer, avoiding a dependency on bytes.Reader just for fixed-width
// scalar decodes.
type bufioReader struct {
	buf []byte
	pos int
}

func (r *bufioReader) readUint32(out *uint32) error {
	if r.pos+4 > len(r.buf) {
		return lakeerrors.IntegrityViolation("hash index file truncated")
	}
	*out = binary.LittleEndian.Uint32(r.buf[r.pos : r.pos+4])
	r.pos += 4
	return nil
}

func (r *bufioReader) readInt64(out *int64) error {
	if r.pos+8 > len(r.buf) {
		return lakeerrors.IntegrityViolation("hash index file truncated")
	}
	*out = int64(binary.LittleEndian.Uint64(r.buf[r.pos : r.pos+8]))
	r.pos += 8
	return nil
}

func (r *bufioReader) readBytes(n int) ([]byte, error) {
	if r.pos+n > len(r.buf) {
		return nil, lakeerrors.IntegrityViolation("hash index file truncated")
	}
	out := r.buf[r.pos : r.pos+n]
	r.pos += n
	return out, nil
}

// arrayValueKey renders an arrow array element as a comparable string
// key, matching literalKey's %v formatting for int/float/string/bool
// literals so filter lookups land on the same keys Update wrote. Types
// outside the listed cases are rendered through rowbatch.ScalarAt; a
// type ScalarAt cannot extract falls back to the row position i.
func arrayValueKey(col interface{ Len() int }, i int) string {
	switch arr := col.(type) {
	case *array.Int64:
		return fmt.Sprintf("%v", arr.Value(i))
	case *array.Int32:
		return fmt.Sprintf("%v", arr.Value(i))
	case *array.String:
		return arr.Value(i)
	case *array.Float64:
		return fmt.Sprintf("%v", arr.Value(i))
	case *array.Boolean:
		return fmt.Sprintf("%v", arr.Value(i))
	default:
		if a, ok := col.(arrow.Array); ok {
			if v, err := rowbatch.ScalarAt(a, i); err == nil {
				return fmt.Sprintf("%v", v)
			}
		}
		return fmt.Sprintf("%v", i)
	}
}
