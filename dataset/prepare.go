package dataset

import (
	"io"
	"math"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"business-forecasting-engine/errors"
)

// Preprocessor turns raw tabular input into a PreparedSeries. It never
// mutates the caller's frame.
type Preprocessor struct {
	logger *logrus.Logger
}

// NewPreprocessor creates a preprocessor. A nil logger silences output.
func NewPreprocessor(logger *logrus.Logger) *Preprocessor {
	if logger == nil {
		logger = discardLogger()
	}
	return &Preprocessor{logger: logger}
}

// Prepare extracts the timestamp and value columns from the frame, parses
// and sorts timestamps, imputes missing values (forward-fill then back-fill)
// and clips outliers to the IQR range. Every numeric column other than the
// two named ones rides along as a regressor column. Values are capped, never
// removed, so the row count is preserved.
func (p *Preprocessor) Prepare(frame *Frame, timestampColumn, valueColumn string) (*PreparedSeries, error) {
	if frame == nil || frame.NumRows() == 0 {
		return nil, errors.Newf(errors.KindDataValidation, "input frame is empty")
	}
	if !frame.HasColumn(timestampColumn) {
		return nil, errors.Newf(errors.KindDataValidation, "timestamp column %q not found", timestampColumn)
	}
	if !frame.HasColumn(valueColumn) {
		return nil, errors.Newf(errors.KindDataValidation, "value column %q not found", valueColumn)
	}

	timestamps, err := extractTimestamps(frame, timestampColumn)
	if err != nil {
		return nil, err
	}

	values, ok := frame.Numeric(valueColumn)
	if !ok {
		return nil, errors.Newf(errors.KindDataValidation, "value column %q is not numeric", valueColumn)
	}

	regressorNames := frame.NumericColumns(timestampColumn, valueColumn)
	regressors := make(map[string][]float64, len(regressorNames))
	for _, name := range regressorNames {
		col, _ := frame.Numeric(name)
		regressors[name] = col
	}

	// Stable sort keeps duplicate timestamps in input order. Duplicates are
	// a documented quirk of the pipeline, not silently removed.
	order := make([]int, len(timestamps))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return timestamps[order[a]].Before(timestamps[order[b]])
	})

	sortedValues := make([]float64, len(order))
	sortedRegs := make(map[string][]float64, len(regressorNames))
	for _, name := range regressorNames {
		sortedRegs[name] = make([]float64, len(order))
	}
	for pos, idx := range order {
		sortedValues[pos] = values[idx]
		for _, name := range regressorNames {
			sortedRegs[name][pos] = regressors[name][idx]
		}
	}

	fillForwardBackward(sortedValues)
	for _, name := range regressorNames {
		fillForwardBackward(sortedRegs[name])
	}

	if missingCount(sortedValues) == len(sortedValues) {
		return nil, errors.Newf(errors.KindDataValidation,
			"value column %q has no observed values after imputation", valueColumn)
	}

	// A regressor column with no observed values at all cannot be imputed.
	// Drop it rather than feed NaN into the model.
	kept := regressorNames[:0]
	for _, name := range regressorNames {
		if missingCount(sortedRegs[name]) == len(sortedRegs[name]) {
			p.logger.WithFields(logrus.Fields{"column": name}).Warn("Dropping all-missing regressor column")
			delete(sortedRegs, name)
			continue
		}
		kept = append(kept, name)
	}
	regressorNames = kept

	lower, upper := IQRBounds(sortedValues)
	capped := 0
	for i, v := range sortedValues {
		switch {
		case v < lower:
			sortedValues[i] = lower
			capped++
		case v > upper:
			sortedValues[i] = upper
			capped++
		}
	}
	if capped > 0 {
		p.logger.WithFields(logrus.Fields{
			"capped_values": capped,
			"lower_bound":   lower,
			"upper_bound":   upper,
		}).Info("Capped outlier values to IQR range")
	}

	points := make([]TimePoint, len(order))
	for pos, idx := range order {
		point := TimePoint{Timestamp: timestamps[idx], Value: sortedValues[pos]}
		if len(regressorNames) > 0 {
			point.Regressors = make(map[string]float64, len(regressorNames))
			for _, name := range regressorNames {
				point.Regressors[name] = sortedRegs[name][pos]
			}
		}
		points[pos] = point
	}

	series := &PreparedSeries{
		Points:          points,
		RegressorNames:  regressorNames,
		CappedValues:    capped,
		TimestampColumn: timestampColumn,
		TargetColumn:    valueColumn,
	}

	p.logger.WithFields(logrus.Fields{
		"rows":       series.Len(),
		"regressors": len(regressorNames),
		"start":      series.Start().Format(time.RFC3339),
		"end":        series.End().Format(time.RFC3339),
	}).Debug("Prepared series")

	return series, nil
}

// extractTimestamps accepts a pre-parsed time column or a string column
// parsed against the known layouts. Any unparseable cell fails the whole
// preparation.
func extractTimestamps(frame *Frame, name string) ([]time.Time, error) {
	if times, ok := frame.Times(name); ok {
		for i, ts := range times {
			if ts.IsZero() {
				return nil, errors.Newf(errors.KindDataValidation,
					"timestamp column %q has an empty value at row %d", name, i)
			}
		}
		return times, nil
	}

	cells, ok := frame.Strings(name)
	if !ok {
		return nil, errors.Newf(errors.KindDataValidation,
			"timestamp column %q must contain dates, not numbers", name)
	}

	times := make([]time.Time, len(cells))
	for i, cell := range cells {
		ts, err := ParseTimestamp(cell)
		if err != nil {
			return nil, errors.Wrapf(errors.KindDataValidation, err,
				"timestamp column %q row %d", name, i)
		}
		times[i] = ts
	}
	return times, nil
}

// fillForwardBackward imputes NaN cells in place: forward-fill first, then
// back-fill whatever leading gap remains.
func fillForwardBackward(values []float64) {
	last := math.NaN()
	for i, v := range values {
		if math.IsNaN(v) {
			values[i] = last
		} else {
			last = v
		}
	}

	next := math.NaN()
	for i := len(values) - 1; i >= 0; i-- {
		if math.IsNaN(values[i]) {
			values[i] = next
		} else {
			next = values[i]
		}
	}
}

func discardLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
