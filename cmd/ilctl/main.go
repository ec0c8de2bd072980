// Command ilctl is a thin administrative CLI over pkg/client: create
// and describe tables, and trigger an out-of-band dump. It never
// exposes a query language (no ilctl select/scan) — reading and
// writing rows is a library operation, not a CLI one.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/apache/arrow/go/v11/arrow"
	"github.com/spf13/cobra"

	"github.com/indexlake/indexlake/pkg/catalog"
	"github.com/indexlake/indexlake/pkg/catalog/pgcat"
	"github.com/indexlake/indexlake/pkg/catalog/sqlitecat"
	"github.com/indexlake/indexlake/pkg/client"
	"github.com/indexlake/indexlake/pkg/index/hashindex"
	"github.com/indexlake/indexlake/pkg/index/rtreeindex"
	"github.com/indexlake/indexlake/pkg/storage/fscat"
	"github.com/indexlake/indexlake/pkg/table"
)

var (
	catalogDSN  string
	dialectFlag string
	storageRoot string
)

var ilctlCmd = &cobra.Command{
	Use:   "ilctl [command] (flags)",
	Short: "IndexLake administrative command-line interface",
	Long:  `ilctl administers IndexLake tables: creation, schema inspection, and manual dump triggers.`,
}

func init() {
	cobra.EnableCommandSorting = false
	ilctlCmd.PersistentFlags().StringVar(&catalogDSN, "catalog-dsn", "file:ilctl.db", "catalog connection string")
	ilctlCmd.PersistentFlags().StringVar(&dialectFlag, "dialect", "sqlite", "catalog dialect: sqlite or postgres")
	ilctlCmd.PersistentFlags().StringVar(&storageRoot, "storage-root", "./ilctl-data", "local directory for blob storage")

	ilctlCmd.AddCommand(createNamespaceCmd, createTableCmd, describeTableCmd, dumpNowCmd)
}

func openClient(ctx context.Context) (*client.Client, error) {
	var cat catalog.Catalog
	switch dialectFlag {
	case "sqlite":
		c, err := sqlitecat.Open(catalogDSN)
		if err != nil {
			return nil, err
		}
		cat = c
	case "postgres":
		c, err := pgcat.Open(catalogDSN)
		if err != nil {
			return nil, err
		}
		cat = c
	default:
		return nil, fmt.Errorf("unknown dialect %q, want sqlite or postgres", dialectFlag)
	}
	store, err := fscat.New(storageRoot)
	if err != nil {
		return nil, err
	}
	return client.Open(ctx, cat, store, hashindex.Index{}, rtreeindex.Index{})
}

var createNamespaceCmd = &cobra.Command{
	Use:   "create-namespace <name>",
	Short: "create a namespace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		c, err := openClient(ctx)
		if err != nil {
			return err
		}
		defer c.Close()
		ns, err := c.CreateNamespace(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("created namespace %q (id=%d)\n", ns.Name, ns.NamespaceID)
		return nil
	},
}

var (
	ctNamespace string
	ctColumns   []string
)

var createTableCmd = &cobra.Command{
	Use:   "create-table <name>",
	Short: "create a table from a --column list",
	Long: `create-table builds a schema from repeated --column flags of the
form name:type[:nullable], e.g.:

  ilctl create-table events --namespace default \
    --column id:int64 --column payload:string:nullable
`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		schema, err := parseSchema(ctColumns)
		if err != nil {
			return err
		}
		c, err := openClient(ctx)
		if err != nil {
			return err
		}
		defer c.Close()
		tbl, err := c.CreateTable(ctx, ctNamespace, args[0], table.Config{Schema: schema})
		if err != nil {
			return err
		}
		fmt.Printf("created table %q (id=%d) with %d columns\n", args[0], tbl.TableID(), len(schema.Fields()))
		return nil
	},
}

var (
	dtNamespace string
)

var describeTableCmd = &cobra.Command{
	Use:   "describe-table <name>",
	Short: "print a table's schema and configuration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		c, err := openClient(ctx)
		if err != nil {
			return err
		}
		defer c.Close()
		tbl, err := c.OpenTable(ctx, dtNamespace, args[0])
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(os.Stdout, 2, 1, 2, ' ', 0)
		fmt.Fprintf(tw, "table:\t%s (id=%d)\n", tbl.Meta.Name, tbl.TableID())
		fmt.Fprintf(tw, "namespace:\t%s\n", tbl.Namespace.Name)
		fmt.Fprintf(tw, "inline_row_count_limit:\t%d\n", tbl.Config.InlineRowCountLimit)
		fmt.Fprintf(tw, "dump_batch_row_count:\t%d\n", tbl.Config.DumpBatchRowCount)
		fmt.Fprintln(tw, "column\ttype\tnullable")
		for _, f := range tbl.Fields {
			fmt.Fprintf(tw, "%s\t%s\t%t\n", f.Name, f.DataType, f.Nullable)
		}
		defs, err := tbl.IndexDefs(ctx)
		if err != nil {
			return err
		}
		for _, d := range defs {
			fmt.Fprintf(tw, "index:\t%s (%s)\n", d.Name, d.Kind)
		}
		return tw.Flush()
	},
}

var dnNamespace string

var dumpNowCmd = &cobra.Command{
	Use:   "dump-now <name>",
	Short: "synchronously run one dump pass against a table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		c, err := openClient(ctx)
		if err != nil {
			return err
		}
		defer c.Close()
		tbl, err := c.OpenTable(ctx, dnNamespace, args[0])
		if err != nil {
			return err
		}
		if err := c.Dump(ctx, tbl); err != nil {
			return err
		}
		fmt.Printf("dumped table %q\n", args[0])
		return nil
	},
}

func init() {
	createTableCmd.Flags().StringVar(&ctNamespace, "namespace", "default", "namespace the table is created in")
	createTableCmd.Flags().StringArrayVar(&ctColumns, "column", nil, "name:type[:nullable], repeatable")
	describeTableCmd.Flags().StringVar(&dtNamespace, "namespace", "default", "namespace the table lives in")
	dumpNowCmd.Flags().StringVar(&dnNamespace, "namespace", "default", "namespace the table lives in")
}

// parseSchema turns repeated name:type[:nullable] column specs into an
// Arrow schema, in the order given.
func parseSchema(cols []string) (*arrow.Schema, error) {
	if len(cols) == 0 {
		return nil, fmt.Errorf("at least one --column is required")
	}
	fields := make([]arrow.Field, len(cols))
	for i, spec := range cols {
		parts := strings.Split(spec, ":")
		if len(parts) < 2 {
			return nil, fmt.Errorf("invalid --column %q, want name:type[:nullable]", spec)
		}
		dt, err := parseColumnType(parts[1])
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", parts[0], err)
		}
		nullable := len(parts) > 2 && parts[2] == "nullable"
		fields[i] = arrow.Field{Name: parts[0], Type: dt, Nullable: nullable}
	}
	return arrow.NewSchema(fields, nil), nil
}

func parseColumnType(name string) (arrow.DataType, error) {
	switch name {
	case "int64":
		return arrow.PrimitiveTypes.Int64, nil
	case "int32":
		return arrow.PrimitiveTypes.Int32, nil
	case "float64":
		return arrow.PrimitiveTypes.Float64, nil
	case "float32":
		return arrow.PrimitiveTypes.Float32, nil
	case "bool":
		return arrow.FixedWidthTypes.Boolean, nil
	case "string":
		return arrow.BinaryTypes.String, nil
	case "bytes":
		return arrow.BinaryTypes.Binary, nil
	case "timestamp":
		return arrow.FixedWidthTypes.Timestamp_us, nil
	default:
		return nil, fmt.Errorf("unknown column type %q", name)
	}
}

func main() {
	if err := ilctlCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
