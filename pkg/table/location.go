package table

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/indexlake/indexlake/pkg/lakeerrors"
)

// InlineLocation is the literal location string for an inline row
// (§6.2).
const InlineLocation = "inline"

// ExternalLocation is a parsed "parquet:<relative_path>:<row_group>:<row_offset>"
// address (§6.2).
type ExternalLocation struct {
	RelativePath string
	RowGroup     int
	RowOffset    int
}

// FormatExternalLocation builds the location string for one row's
// post-dump address (§4.7 step 6).
func FormatExternalLocation(relativePath string, rowGroup, rowOffset int) string {
	return fmt.Sprintf("parquet:%s:%d:%d", relativePath, rowGroup, rowOffset)
}

// ParseLocation splits a location string into either "inline" or an
// ExternalLocation. After the "parquet:" prefix, the last two ':'
// separate the row group and the row offset, and everything before them
// is the path; it does not split at the first three ':', so a path that
// contains ':' is kept whole. The current contract disallows ':' in
// paths, and for such paths both splits give the same result.
func ParseLocation(loc string) (inline bool, ext ExternalLocation, err error) {
	if loc == InlineLocation {
		return true, ExternalLocation{}, nil
	}
	if !strings.HasPrefix(loc, "parquet:") {
		return false, ExternalLocation{}, lakeerrors.IntegrityViolation("unrecognized location %q", loc)
	}
	rest := loc[len("parquet:"):]
	// The relative path may theoretically contain no further ':' per the
	// current contract, so the last two segments are the row group and
	// offset and everything before them is the path.
	lastColon := strings.LastIndex(rest, ":")
	if lastColon < 0 {
		return false, ExternalLocation{}, lakeerrors.IntegrityViolation("malformed location %q", loc)
	}
	offsetStr := rest[lastColon+1:]
	rest2 := rest[:lastColon]
	secondLastColon := strings.LastIndex(rest2, ":")
	if secondLastColon < 0 {
		return false, ExternalLocation{}, lakeerrors.IntegrityViolation("malformed location %q", loc)
	}
	rgStr := rest2[secondLastColon+1:]
	path := rest2[:secondLastColon]
	rg, err1 := strconv.Atoi(rgStr)
	off, err2 := strconv.Atoi(offsetStr)
	if err1 != nil || err2 != nil || rg < 0 || off < 0 || path == "" {
		return false, ExternalLocation{}, lakeerrors.IntegrityViolation("malformed location %q", loc)
	}
	return false, ExternalLocation{RelativePath: path, RowGroup: rg, RowOffset: off}, nil
}

// DataFilePath builds the blob path for a table's data file (§6.3).
func DataFilePath(namespace, tableName, fileName string) string {
	return fmt.Sprintf("%s/%s/data/%s", namespace, tableName, fileName)
}

// IndexFilePath builds the blob path for an index artifact (§6.3).
func IndexFilePath(namespace, tableName string, indexID, dataFileID int64) string {
	return fmt.Sprintf("%s/%s/index/%d/%d.idx", namespace, tableName, indexID, dataFileID)
}

// LocationFilePrefix returns the "parquet:<path>:" prefix shared by the
// location of every row in a given data file. Scan and dump do not use
// it: scan groups external rows by the parsed path and dump updates
// locations by row_id.
func LocationFilePrefix(relativePath string) string {
	return fmt.Sprintf("parquet:%s:", relativePath)
}
