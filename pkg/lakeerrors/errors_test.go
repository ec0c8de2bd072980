package lakeerrors_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	"github.com/indexlake/indexlake/pkg/lakeerrors"
)

func TestSentinelsMatch(t *testing.T) {
	require.True(t, errors.Is(lakeerrors.NotFound("table %q", "t1"), lakeerrors.ErrNotFound))
	require.True(t, errors.Is(lakeerrors.Conflict("row id race"), lakeerrors.ErrConflict))
	require.True(t, errors.Is(lakeerrors.InvalidArgument("bad schema"), lakeerrors.ErrInvalidArgument))
	require.True(t, errors.Is(lakeerrors.IntegrityViolation("missing data file"), lakeerrors.ErrIntegrityViolation))
}

func TestWrappedCatalogError(t *testing.T) {
	underlying := errors.New("connection refused")
	wrapped := lakeerrors.Catalog(underlying, "opening tx")
	require.True(t, errors.Is(wrapped, lakeerrors.ErrCatalog))
	require.Contains(t, wrapped.Error(), "connection refused")
}

func TestAssertInvariantPanics(t *testing.T) {
	require.NotPanics(t, func() { lakeerrors.AssertInvariant(true, "fine") })
	require.Panics(t, func() { lakeerrors.AssertInvariant(false, "row_id %d negative", -1) })
}
