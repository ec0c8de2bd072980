package table

import (
	"fmt"
	"strings"

	"github.com/indexlake/indexlake/pkg/catalog"
	"github.com/indexlake/indexlake/pkg/expr"
	"github.com/indexlake/indexlake/pkg/lakeerrors"
	"github.com/indexlake/indexlake/pkg/rowbatch"
)

// translateFilter splits filter into a SQL WHERE fragment (the part
// every conjunct that is a simple column comparison/IN/IS NULL can
// translate to) and a residual expression the caller must still apply
// in-memory (§4.5 step 2: "translate the portion of the filter
// expressible in the catalog's SQL dialect; apply the remainder in
// memory"). An untranslatable top-level filter (e.g. an Or or an
// Extension) becomes the entire residual with no pushdown.
func translateFilter(d catalog.Dialect, filter expr.Expr) (whereSQL string, args []interface{}, residual expr.Expr) {
	if filter == nil {
		return "", nil, nil
	}
	var conjuncts []expr.Expr
	if and, ok := filter.(expr.And); ok {
		conjuncts = and.Exprs
	} else {
		conjuncts = []expr.Expr{filter}
	}
	var clauses []string
	var leftover []expr.Expr
	argN := 1
	for _, c := range conjuncts {
		clause, clauseArgs, ok := translateConjunct(d, c, &argN)
		if ok {
			clauses = append(clauses, clause)
			args = append(args, clauseArgs...)
		} else {
			leftover = append(leftover, c)
		}
	}
	if len(leftover) == 1 {
		residual = leftover[0]
	} else if len(leftover) > 1 {
		residual = expr.And{Exprs: leftover}
	}
	return strings.Join(clauses, " AND "), args, residual
}

func translateConjunct(d catalog.Dialect, e expr.Expr, argN *int) (string, []interface{}, bool) {
	switch n := e.(type) {
	case expr.Comparison:
		col, ok := n.Left.(expr.ColumnRef)
		lit, ok2 := n.Right.(expr.Literal)
		if !ok || !ok2 {
			return "", nil, false
		}
		placeholder := d.Placeholder(*argN)
		*argN++
		return fmt.Sprintf("%s %s %s", d.QuoteIdentifier(col.Name), n.Op.String(), placeholder), []interface{}{lit.Value}, true
	case expr.IsNull:
		col, ok := n.Column.(expr.ColumnRef)
		if !ok {
			return "", nil, false
		}
		if n.Negate {
			return fmt.Sprintf("%s IS NOT NULL", d.QuoteIdentifier(col.Name)), nil, true
		}
		return fmt.Sprintf("%s IS NULL", d.QuoteIdentifier(col.Name)), nil, true
	case expr.In:
		col, ok := n.Column.(expr.ColumnRef)
		if !ok || len(n.Values) == 0 {
			return "", nil, false
		}
		placeholders := make([]string, len(n.Values))
		args := make([]interface{}, len(n.Values))
		for i, v := range n.Values {
			placeholders[i] = d.Placeholder(*argN)
			*argN++
			args[i] = v.Value
		}
		return fmt.Sprintf("%s IN (%s)", d.QuoteIdentifier(col.Name), strings.Join(placeholders, ", ")), args, true
	default:
		return "", nil, false
	}
}

// applyResidual filters batch in-memory against every expression in
// filters (conjunction), returning a new batch (possibly zero rows).
// Used for every filter the SQL layer or an index could not evaluate
// itself (§4.5 step 2c: "unsupported predicates applied in-memory").
func applyResidual(batch *rowbatch.Batch, filters []expr.Expr) (*rowbatch.Batch, error) {
	if len(filters) == 0 {
		batch.Retain()
		return batch, nil
	}
	n := int(batch.NumRows())
	keep := make([]bool, n)
	for i := range keep {
		keep[i] = true
	}
	for _, f := range filters {
		if f == nil {
			continue
		}
		for i := 0; i < n; i++ {
			if !keep[i] {
				continue
			}
			ok, err := evalRow(batch, f, i)
			if err != nil {
				return nil, err
			}
			keep[i] = ok
		}
	}
	indices := make([]int64, 0, n)
	for i, k := range keep {
		if k {
			indices = append(indices, int64(i))
		}
	}
	return selectRows(batch, indices)
}

// selectRows builds a new batch containing only the given row indices,
// via repeated single-row slicing (no dense take-kernel is assumed
// available in this major version of Arrow).
func selectRows(batch *rowbatch.Batch, indices []int64) (*rowbatch.Batch, error) {
	if len(indices) == 0 {
		empty := batch.Slice(0, 0)
		return empty, nil
	}
	if len(indices) == int(batch.NumRows()) {
		batch.Retain()
		return batch, nil
	}
	rows := make([]*rowbatch.Batch, len(indices))
	for i, idx := range indices {
		rows[i] = batch.Slice(idx, idx+1)
	}
	out, err := rowbatch.Concat(rows)
	for _, r := range rows {
		r.Release()
	}
	return out, err
}

func evalRow(batch *rowbatch.Batch, e expr.Expr, row int) (bool, error) {
	switch n := e.(type) {
	case expr.And:
		for _, c := range n.Exprs {
			ok, err := evalRow(batch, c, row)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case expr.Or:
		for _, c := range n.Exprs {
			ok, err := evalRow(batch, c, row)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case expr.Not:
		ok, err := evalRow(batch, n.Expr, row)
		return !ok, err
	case expr.IsNull:
		col, ok := n.Column.(expr.ColumnRef)
		if !ok {
			return false, lakeerrors.InvalidArgument("IS NULL requires a column reference")
		}
		arr, err := batch.Column(col.Name)
		if err != nil {
			return false, err
		}
		isNull := arr.IsNull(row)
		if n.Negate {
			return !isNull, nil
		}
		return isNull, nil
	case expr.Comparison:
		return evalComparison(batch, n, row)
	case expr.In:
		col, ok := n.Column.(expr.ColumnRef)
		if !ok {
			return false, lakeerrors.InvalidArgument("IN requires a column reference")
		}
		arr, err := batch.Column(col.Name)
		if err != nil {
			return false, err
		}
		if arr.IsNull(row) {
			return false, nil
		}
		v, err := rowbatch.ScalarAt(arr, row)
		if err != nil {
			return false, err
		}
		for _, lit := range n.Values {
			if scalarEqual(v, lit.Value) {
				return true, nil
			}
		}
		return false, nil
	case expr.Extension:
		// Extensions (e.g. "intersects") are index-only predicates; a
		// conjunct that reached the residual stage untranslated by any
		// index is treated as satisfied, since the index path that would
		// otherwise evaluate it already filtered the row set upstream.
		return true, nil
	default:
		return false, lakeerrors.InvalidArgument("unsupported residual expression %T", e)
	}
}

func evalComparison(batch *rowbatch.Batch, c expr.Comparison, row int) (bool, error) {
	col, ok := c.Left.(expr.ColumnRef)
	lit, ok2 := c.Right.(expr.Literal)
	if !ok || !ok2 {
		return false, lakeerrors.InvalidArgument("comparison requires column OP literal")
	}
	arr, err := batch.Column(col.Name)
	if err != nil {
		return false, err
	}
	if arr.IsNull(row) {
		return false, nil
	}
	v, err := rowbatch.ScalarAt(arr, row)
	if err != nil {
		return false, err
	}
	cmp, ok := compareValues(v, lit.Value)
	if !ok {
		return false, lakeerrors.InvalidArgument("incomparable values %v (%T) and %v (%T)", v, v, lit.Value, lit.Value)
	}
	switch c.Op {
	case expr.Eq:
		return cmp == 0, nil
	case expr.Ne:
		return cmp != 0, nil
	case expr.Lt:
		return cmp < 0, nil
	case expr.Le:
		return cmp <= 0, nil
	case expr.Gt:
		return cmp > 0, nil
	case expr.Ge:
		return cmp >= 0, nil
	default:
		return false, lakeerrors.InvalidArgument("unknown comparison operator %v", c.Op)
	}
}

func scalarEqual(a, b interface{}) bool {
	cmp, ok := compareValues(a, b)
	return ok && cmp == 0
}

// compareValues compares two scalars of the dynamic types ScalarAt
// produces, coercing numeric kinds to float64 for cross-width
// comparisons (e.g. a column of int64 compared against a literal
// authored as int).
func compareValues(a, b interface{}) (int, bool) {
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			switch {
			case af < bf:
				return -1, true
			case af > bf:
				return 1, true
			default:
				return 0, true
			}
		}
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(av, bv), true
	case bool:
		bv, ok := b.(bool)
		if !ok {
			return 0, false
		}
		if av == bv {
			return 0, true
		}
		return -1, true
	case []byte:
		bv, ok := b.([]byte)
		if !ok {
			return 0, false
		}
		return strings.Compare(string(av), string(bv)), true
	default:
		return 0, false
	}
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
