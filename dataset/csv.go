package dataset

import (
	"encoding/csv"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"business-forecasting-engine/errors"
)

// timestampLayouts are tried in order when parsing timestamp cells.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
}

// CSVOptions controls CSV loading.
type CSVOptions struct {
	Delimiter rune // default ','
	SkipRows  int  // leading rows to discard before the header
}

// LoadCSV reads a file into a Frame. The first non-skipped row is treated as
// the header. Columns whose non-empty cells all parse as floats become
// numeric columns; everything else stays string. Empty cells in numeric
// columns become NaN.
func LoadCSV(path string, opts *CSVOptions, logger *logrus.Logger) (*Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(errors.KindDataValidation, err, "open %s", path)
	}
	defer file.Close()

	frame, err := ReadCSV(file, opts, logger)
	if err != nil {
		return nil, err
	}
	return frame, nil
}

// ReadCSV reads CSV content from r into a Frame.
func ReadCSV(r io.Reader, opts *CSVOptions, logger *logrus.Logger) (*Frame, error) {
	if opts == nil {
		opts = &CSVOptions{}
	}
	if logger == nil {
		logger = discardLogger()
	}

	reader := csv.NewReader(r)
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	for i := 0; i < opts.SkipRows; i++ {
		if _, err := reader.Read(); err != nil {
			return nil, errors.Wrapf(errors.KindDataValidation, err, "skipping leading rows")
		}
	}

	header, err := reader.Read()
	if err != nil {
		return nil, errors.Wrapf(errors.KindDataValidation, err, "reading header")
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.Trim(header[i], "\""))
	}

	cells := make([][]string, len(header))
	skipped := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			skipped++
			continue
		}
		if len(record) != len(header) {
			skipped++
			continue
		}
		for i, cell := range record {
			cells[i] = append(cells[i], strings.TrimSpace(cell))
		}
	}
	if skipped > 0 {
		logger.WithFields(logrus.Fields{"skipped_rows": skipped}).Warn("Skipped malformed CSV rows")
	}

	if len(cells) == 0 || len(cells[0]) == 0 {
		return nil, errors.Newf(errors.KindDataValidation, "no data rows in CSV input")
	}

	frame := NewFrame()
	for i, name := range header {
		if floats, ok := tryNumeric(cells[i]); ok {
			if err := frame.AddNumericColumn(name, floats); err != nil {
				return nil, err
			}
			continue
		}
		if err := frame.AddStringColumn(name, cells[i]); err != nil {
			return nil, err
		}
	}
	return frame, nil
}

// tryNumeric converts a column to floats when every non-empty cell parses.
// Empty cells become NaN. A column with no non-empty cells is not numeric.
func tryNumeric(cells []string) ([]float64, bool) {
	floats := make([]float64, len(cells))
	seen := false
	for i, cell := range cells {
		if cell == "" {
			floats[i] = math.NaN()
			continue
		}
		v, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return nil, false
		}
		floats[i] = v
		seen = true
	}
	return floats, seen
}

// ParseTimestamp parses a single timestamp cell against the known layouts.
func ParseTimestamp(cell string) (time.Time, error) {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return time.Time{}, errors.Newf(errors.KindDataValidation, "empty timestamp")
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, cell); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, errors.Newf(errors.KindDataValidation, "unparseable timestamp %q", cell)
}
