package expr_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/indexlake/indexlake/pkg/expr"
)

func TestColumnNamesDedupesAcrossNesting(t *testing.T) {
	e := expr.And{Exprs: []expr.Expr{
		expr.Comparison{Op: expr.Eq, Left: expr.ColumnRef{Name: "a"}, Right: expr.Literal{Value: int64(1)}},
		expr.Or{Exprs: []expr.Expr{
			expr.Comparison{Op: expr.Gt, Left: expr.ColumnRef{Name: "b"}, Right: expr.Literal{Value: int64(2)}},
			expr.Comparison{Op: expr.Lt, Left: expr.ColumnRef{Name: "a"}, Right: expr.Literal{Value: int64(3)}},
		}},
		expr.Not{Expr: expr.IsNull{Column: expr.ColumnRef{Name: "c"}}},
	}}
	require.ElementsMatch(t, []string{"a", "b", "c"}, expr.ColumnNames(e))
}

func TestReferencesOnly(t *testing.T) {
	e := expr.Comparison{Op: expr.Eq, Left: expr.ColumnRef{Name: "row_id"}, Right: expr.Literal{Value: int64(7)}}
	require.True(t, expr.ReferencesOnly(e, "row_id"))
	require.False(t, expr.ReferencesOnly(e, "other"))

	mixed := expr.And{Exprs: []expr.Expr{
		e,
		expr.Comparison{Op: expr.Eq, Left: expr.ColumnRef{Name: "status"}, Right: expr.Literal{Value: "done"}},
	}}
	require.False(t, expr.ReferencesOnly(mixed, "row_id"))
}

func TestReferencesOnlyExtensionArgs(t *testing.T) {
	ext := expr.Extension{Name: "intersects", Args: []expr.Expr{expr.ColumnRef{Name: "geom"}, expr.Literal{Value: "bbox"}}}
	require.True(t, expr.ReferencesOnly(ext, "geom"))
	require.False(t, expr.ReferencesOnly(ext, "other"))
}

func TestWalkVisitsExtensionArgs(t *testing.T) {
	var visited []expr.Expr
	ext := expr.Extension{Name: "intersects", Args: []expr.Expr{expr.ColumnRef{Name: "geom"}}}
	expr.Walk(ext, func(n expr.Expr) { visited = append(visited, n) })
	require.Len(t, visited, 2)
}

func TestCompareOpString(t *testing.T) {
	require.Equal(t, "=", expr.Eq.String())
	require.Equal(t, "!=", expr.Ne.String())
	require.Equal(t, ">=", expr.Ge.String())
}
