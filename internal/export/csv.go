// Package export persists grid sweep results. The CSV layout is the binding
// contract with downstream analysis tooling; the sqlite store is an optional
// richer sink for keeping multiple sweep sessions side by side.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"

	"github.com/sonarlab/echoloc/sweep"
)

// Columns is the fixed CSV schema, one row per grid point. Estimate columns
// are empty for points whose inversion failed.
var Columns = []string{
	"sourceX",
	"sourceY",
	"sourceZ",
	"sourceAzimuthDeg",
	"sourceElevationDeg",
	"estimatedX",
	"estimatedY",
	"estimatedZ",
	"positionErrorCm",
	"estimatedAzimuthDeg",
	"estimatedElevationDeg",
}

// WriteCSV writes the header and one row per record to w.
func WriteCSV(w io.Writer, records []sweep.Record) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("export: writing header: %w", err)
	}

	row := make([]string, len(Columns))
	for i := range records {
		fillRow(row, &records[i])
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("export: writing record %d: %w", i, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("export: flushing: %w", err)
	}

	return nil
}

// WriteCSVFile writes records to the named file, truncating it first.
func WriteCSVFile(path string, records []sweep.Record) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: creating %s: %w", path, err)
	}
	defer closeWithError(f, &err)

	return WriteCSV(f, records)
}

func fillRow(row []string, r *sweep.Record) {
	row[0] = formatField(r.SourceX)
	row[1] = formatField(r.SourceY)
	row[2] = formatField(r.SourceZ)
	row[3] = formatField(r.SourceAzimuthDeg)
	row[4] = formatField(r.SourceElevationDeg)
	row[5] = formatField(r.EstimatedX)
	row[6] = formatField(r.EstimatedY)
	row[7] = formatField(r.EstimatedZ)
	row[8] = formatField(r.PositionErrorCm)
	row[9] = formatField(r.EstimatedAzimuthDeg)
	row[10] = formatField(r.EstimatedElevationDeg)
}

// formatField renders a value for CSV; the NaN missing marker becomes an
// empty cell.
func formatField(v float64) string {
	if math.IsNaN(v) {
		return ""
	}

	return strconv.FormatFloat(v, 'g', -1, 64)
}

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}
