package table

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/indexlake/indexlake/pkg/expr"
	"github.com/indexlake/indexlake/pkg/index"
	"github.com/indexlake/indexlake/pkg/index/hashindex"
	"github.com/indexlake/indexlake/pkg/rowbatch"
)

func TestRowIDsFromConditionRecognizesEquality(t *testing.T) {
	cond := expr.Comparison{Op: expr.Eq, Left: expr.ColumnRef{Name: rowbatch.RowIDColumn}, Right: expr.Literal{Value: int64(7)}}
	ids, ok := rowIDsFromCondition(cond)
	require.True(t, ok)
	require.Equal(t, []int64{7}, ids)
}

func TestRowIDsFromConditionRecognizesIn(t *testing.T) {
	cond := expr.In{Column: expr.ColumnRef{Name: rowbatch.RowIDColumn}, Values: []expr.Literal{{Value: int64(1)}, {Value: int64(2)}}}
	ids, ok := rowIDsFromCondition(cond)
	require.True(t, ok)
	require.Equal(t, []int64{1, 2}, ids)
}

func TestRowIDsFromConditionRejectsNonRowIDColumn(t *testing.T) {
	cond := expr.Comparison{Op: expr.Eq, Left: expr.ColumnRef{Name: "name"}, Right: expr.Literal{Value: int64(7)}}
	_, ok := rowIDsFromCondition(cond)
	require.False(t, ok)
}

func TestRowIDsFromConditionRejectsNonEqualityComparison(t *testing.T) {
	cond := expr.Comparison{Op: expr.Gt, Left: expr.ColumnRef{Name: rowbatch.RowIDColumn}, Right: expr.Literal{Value: int64(7)}}
	_, ok := rowIDsFromCondition(cond)
	require.False(t, ok)
}

func TestRowIDsFromConditionRejectsNonLiteralComparisonValue(t *testing.T) {
	cond := expr.Comparison{Op: expr.Eq, Left: expr.ColumnRef{Name: rowbatch.RowIDColumn}, Right: expr.Literal{Value: "not-a-number"}}
	_, ok := rowIDsFromCondition(cond)
	require.False(t, ok)
}

func TestPartitionFiltersSplitsEligibleFromResidualAcrossConjuncts(t *testing.T) {
	tbl := &Table{Indices: index.NewRegistry(hashindex.Index{})}
	def := index.Def{IndexID: 1, Kind: hashindex.Kind, ParamsJSON: []byte(`{"key_column":"name"}`)}

	eqName := expr.Comparison{Op: expr.Eq, Left: expr.ColumnRef{Name: "name"}, Right: expr.Literal{Value: "a"}}
	gtAge := expr.Comparison{Op: expr.Gt, Left: expr.ColumnRef{Name: "age"}, Right: expr.Literal{Value: int64(5)}}
	filter := expr.And{Exprs: []expr.Expr{eqName, gtAge}}

	eligible, residual := tbl.partitionFilters([]index.Def{def}, filter)
	require.Len(t, eligible, 1)
	require.Equal(t, eqName, eligible[0].expr)
	require.Len(t, residual, 1)
	require.Equal(t, gtAge, residual[0])
}

func TestPartitionFiltersTreatsNonAndAsSingleConjunct(t *testing.T) {
	tbl := &Table{Indices: index.NewRegistry()}
	or := expr.Or{Exprs: []expr.Expr{
		expr.Comparison{Op: expr.Eq, Left: expr.ColumnRef{Name: "name"}, Right: expr.Literal{Value: "a"}},
		expr.Comparison{Op: expr.Eq, Left: expr.ColumnRef{Name: "name"}, Right: expr.Literal{Value: "b"}},
	}}
	eligible, residual := tbl.partitionFilters(nil, or)
	require.Empty(t, eligible)
	require.Len(t, residual, 1)
	require.Equal(t, or, residual[0])
}

func TestPartitionFiltersNilFilterIsEmpty(t *testing.T) {
	tbl := &Table{Indices: index.NewRegistry()}
	eligible, residual := tbl.partitionFilters(nil, nil)
	require.Nil(t, eligible)
	require.Nil(t, residual)
}
