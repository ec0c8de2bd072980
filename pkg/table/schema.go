package table

import (
	"encoding/json"

	"github.com/apache/arrow/go/v11/arrow"
	"github.com/apache/arrow/go/v11/parquet/compress"

	"github.com/indexlake/indexlake/pkg/lakeerrors"
	"github.com/indexlake/indexlake/pkg/metastore"
	"github.com/indexlake/indexlake/pkg/parquetio"
)

// configDoc is the JSON shape of a table's config_json (§3.1). The Arrow
// schema itself is not duplicated here — it is always reconstructed from
// the table's indexlake_field rows, which are the source of truth for
// column order (field_id ascending).
type configDoc struct {
	InlineRowCountLimit int64 `json:"inline_row_count_limit"`
	DumpBatchRowCount   int64 `json:"dump_batch_row_count"`
	ParquetCompression  int64 `json:"parquet_compression"`
}

// EncodeConfigJSON serializes the non-schema portion of Config.
func EncodeConfigJSON(c Config) ([]byte, error) {
	doc := configDoc{InlineRowCountLimit: c.InlineRowCountLimit, DumpBatchRowCount: c.DumpBatchRowCount,
		ParquetCompression: int64(c.ParquetWriterOpts.Compression)}
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, lakeerrors.InvalidArgument("encode config_json: %v", err)
	}
	return b, nil
}

// DecodeConfigJSON parses config_json and attaches the schema built from
// fields.
func DecodeConfigJSON(raw []byte, fields []metastore.Field) (Config, error) {
	var doc configDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Config{}, lakeerrors.InvalidArgument("decode config_json: %v", err)
	}
	schema, err := SchemaFromFields(fields)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{InlineRowCountLimit: doc.InlineRowCountLimit, DumpBatchRowCount: doc.DumpBatchRowCount, Schema: schema,
		ParquetWriterOpts: parquetio.WriterOptions{Compression: compress.Compression(doc.ParquetCompression)}}
	return cfg.WithDefaults(), nil
}

// SchemaFromFields builds an Arrow schema from metastore field rows, in
// field_id order (the caller is expected to have queried them ordered
// ascending, per ListFields).
func SchemaFromFields(fields []metastore.Field) (*arrow.Schema, error) {
	afs := make([]arrow.Field, len(fields))
	for i, f := range fields {
		dt, err := ArrowTypeFromName(f.DataType)
		if err != nil {
			return nil, err
		}
		afs[i] = arrow.Field{Name: f.Name, Type: dt, Nullable: f.Nullable}
	}
	return arrow.NewSchema(afs, nil), nil
}

// FieldsFromSchema is the inverse of SchemaFromFields, used when
// creating a table from a caller-supplied Arrow schema.
func FieldsFromSchema(schema *arrow.Schema) ([]metastore.Field, error) {
	out := make([]metastore.Field, len(schema.Fields()))
	for i, f := range schema.Fields() {
		name, err := ArrowTypeName(f.Type)
		if err != nil {
			return nil, err
		}
		out[i] = metastore.Field{Name: f.Name, DataType: name, Nullable: f.Nullable}
	}
	return out, nil
}

// ArrowTypeName renders an Arrow type as the stable string persisted in
// indexlake_field.data_type.
func ArrowTypeName(t arrow.DataType) (string, error) {
	switch t.ID() {
	case arrow.INT64:
		return "int64", nil
	case arrow.INT32:
		return "int32", nil
	case arrow.FLOAT64:
		return "float64", nil
	case arrow.FLOAT32:
		return "float32", nil
	case arrow.STRING:
		return "string", nil
	case arrow.BOOL:
		return "bool", nil
	case arrow.BINARY:
		return "binary", nil
	case arrow.TIMESTAMP:
		return "timestamp", nil
	default:
		return "", lakeerrors.InvalidArgument("unsupported arrow type %s", t)
	}
}

// ArrowTypeFromName is the inverse of ArrowTypeName.
func ArrowTypeFromName(name string) (arrow.DataType, error) {
	switch name {
	case "int64":
		return arrow.PrimitiveTypes.Int64, nil
	case "int32":
		return arrow.PrimitiveTypes.Int32, nil
	case "float64":
		return arrow.PrimitiveTypes.Float64, nil
	case "float32":
		return arrow.PrimitiveTypes.Float32, nil
	case "string":
		return arrow.BinaryTypes.String, nil
	case "bool":
		return arrow.FixedWidthTypes.Boolean, nil
	case "binary":
		return arrow.BinaryTypes.Binary, nil
	case "timestamp":
		return arrow.FixedWidthTypes.Timestamp_us, nil
	default:
		return nil, lakeerrors.InvalidArgument("unknown field data_type %q", name)
	}
}
