package dataset

import (
	"math"
	"testing"
	"time"

	"business-forecasting-engine/errors"
)

func TestPrepare_SortsByTimestamp(t *testing.T) {
	frame := NewFrame()
	frame.AddStringColumn("ds", []string{"2024-01-03", "2024-01-01", "2024-01-02"})
	frame.AddNumericColumn("y", []float64{3, 1, 2})

	series, err := NewPreprocessor(nil).Prepare(frame, "ds", "y")
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}

	if series.Len() != 3 {
		t.Fatalf("Expected 3 points, got %d", series.Len())
	}
	for i := 1; i < series.Len(); i++ {
		if series.Points[i].Timestamp.Before(series.Points[i-1].Timestamp) {
			t.Error("Timestamps should be non-decreasing")
		}
	}
	if series.Points[0].Value != 1 || series.Points[2].Value != 3 {
		t.Error("Values should follow their timestamps after sorting")
	}
}

func TestPrepare_DuplicateTimestampsKeepInputOrder(t *testing.T) {
	frame := NewFrame()
	frame.AddStringColumn("ds", []string{"2024-01-02", "2024-01-01", "2024-01-02"})
	frame.AddNumericColumn("y", []float64{10, 5, 20})

	series, err := NewPreprocessor(nil).Prepare(frame, "ds", "y")
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}

	if series.Len() != 3 {
		t.Fatalf("Duplicates must be preserved, got %d points", series.Len())
	}
	// Both Jan 2 rows remain, in their original relative order.
	if series.Points[1].Value != 10 || series.Points[2].Value != 20 {
		t.Errorf("Duplicate rows out of input order: %v, %v",
			series.Points[1].Value, series.Points[2].Value)
	}
}

func TestPrepare_BackfillsLeadingMissing(t *testing.T) {
	frame := NewFrame()
	frame.AddStringColumn("ds", []string{"2024-01-01", "2024-01-02", "2024-01-03"})
	frame.AddNumericColumn("y", []float64{math.NaN(), 42, 43})

	series, err := NewPreprocessor(nil).Prepare(frame, "ds", "y")
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}

	if series.Points[0].Value != 42 {
		t.Errorf("Leading missing value should back-fill to 42, got %v", series.Points[0].Value)
	}
}

func TestPrepare_ForwardFillsInteriorMissing(t *testing.T) {
	frame := NewFrame()
	frame.AddStringColumn("ds", []string{"2024-01-01", "2024-01-02", "2024-01-03"})
	frame.AddNumericColumn("y", []float64{7, math.NaN(), 9})

	series, err := NewPreprocessor(nil).Prepare(frame, "ds", "y")
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}

	if series.Points[1].Value != 7 {
		t.Errorf("Interior missing value should forward-fill to 7, got %v", series.Points[1].Value)
	}
}

func TestPrepare_CapsOutliersKeepsCount(t *testing.T) {
	timestamps := make([]string, 50)
	values := make([]float64, 50)
	for i := range values {
		timestamps[i] = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).
			AddDate(0, 0, i).Format("2006-01-02")
		values[i] = 100 + float64(i%5)
	}
	values[10] = 100000 // extreme spike
	values[20] = -50000 // extreme dip

	frame := NewFrame()
	frame.AddStringColumn("ds", timestamps)
	frame.AddNumericColumn("y", values)

	series, err := NewPreprocessor(nil).Prepare(frame, "ds", "y")
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}

	if series.Len() != 50 {
		t.Errorf("Capping must not remove rows: got %d, want 50", series.Len())
	}
	if series.CappedValues != 2 {
		t.Errorf("Expected 2 capped values, got %d", series.CappedValues)
	}

	lower, upper := IQRBounds(series.Values())
	for i, p := range series.Points {
		if p.Value < lower-1e-9 || p.Value > upper+1e-9 {
			t.Errorf("Point %d value %v outside capped range [%v, %v]", i, p.Value, lower, upper)
		}
	}
}

func TestPrepare_RegressorDiscoveryByType(t *testing.T) {
	frame := NewFrame()
	frame.AddStringColumn("ds", []string{"2024-01-01", "2024-01-02"})
	frame.AddNumericColumn("y", []float64{1, 2})
	frame.AddNumericColumn("ad_spend", []float64{100, 110})
	frame.AddStringColumn("region", []string{"emea", "apac"}) // ignored silently
	frame.AddNumericColumn("promo", []float64{0, 1})

	series, err := NewPreprocessor(nil).Prepare(frame, "ds", "y")
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}

	if len(series.RegressorNames) != 2 {
		t.Fatalf("Expected 2 regressors, got %v", series.RegressorNames)
	}
	if series.RegressorNames[0] != "ad_spend" || series.RegressorNames[1] != "promo" {
		t.Errorf("Regressors should keep column order, got %v", series.RegressorNames)
	}
	if series.Points[0].Regressors["ad_spend"] != 100 {
		t.Error("Regressor values should ride along with their rows")
	}
}

func TestPrepare_RegressorMissingValuesFilled(t *testing.T) {
	frame := NewFrame()
	frame.AddStringColumn("ds", []string{"2024-01-01", "2024-01-02", "2024-01-03"})
	frame.AddNumericColumn("y", []float64{1, 2, 3})
	frame.AddNumericColumn("spend", []float64{math.NaN(), 50, math.NaN()})

	series, err := NewPreprocessor(nil).Prepare(frame, "ds", "y")
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}

	if series.Points[0].Regressors["spend"] != 50 {
		t.Errorf("Leading regressor gap should back-fill, got %v", series.Points[0].Regressors["spend"])
	}
	if series.Points[2].Regressors["spend"] != 50 {
		t.Errorf("Trailing regressor gap should forward-fill, got %v", series.Points[2].Regressors["spend"])
	}
}

func TestPrepare_ErrorKinds(t *testing.T) {
	valid := func() *Frame {
		f := NewFrame()
		f.AddStringColumn("ds", []string{"2024-01-01"})
		f.AddNumericColumn("y", []float64{1})
		return f
	}

	cases := []struct {
		name  string
		frame *Frame
		ts    string
		value string
	}{
		{"missing timestamp column", valid(), "no_such", "y"},
		{"missing value column", valid(), "ds", "no_such"},
		{"empty frame", NewFrame(), "ds", "y"},
	}

	pre := NewPreprocessor(nil)
	for _, tc := range cases {
		_, err := pre.Prepare(tc.frame, tc.ts, tc.value)
		if err == nil {
			t.Errorf("%s: expected error", tc.name)
			continue
		}
		if !errors.IsKind(err, errors.KindDataValidation) {
			t.Errorf("%s: kind = %v, want data_validation", tc.name, errors.KindOf(err))
		}
	}
}

func TestPrepare_UnparseableTimestamp(t *testing.T) {
	frame := NewFrame()
	frame.AddStringColumn("ds", []string{"2024-01-01", "not-a-date"})
	frame.AddNumericColumn("y", []float64{1, 2})

	_, err := NewPreprocessor(nil).Prepare(frame, "ds", "y")
	if err == nil {
		t.Fatal("Expected error for unparseable timestamp")
	}
	if !errors.IsKind(err, errors.KindDataValidation) {
		t.Errorf("Kind = %v, want data_validation", errors.KindOf(err))
	}
}

func TestPrepare_NonNumericValueColumn(t *testing.T) {
	frame := NewFrame()
	frame.AddStringColumn("ds", []string{"2024-01-01"})
	frame.AddStringColumn("y", []string{"high"})

	_, err := NewPreprocessor(nil).Prepare(frame, "ds", "y")
	if err == nil {
		t.Fatal("Expected error for non-numeric value column")
	}
	if !errors.IsKind(err, errors.KindDataValidation) {
		t.Errorf("Kind = %v, want data_validation", errors.KindOf(err))
	}
}

func TestPrepare_AllMissingValues(t *testing.T) {
	frame := NewFrame()
	frame.AddStringColumn("ds", []string{"2024-01-01", "2024-01-02"})
	frame.AddNumericColumn("y", []float64{math.NaN(), math.NaN()})

	_, err := NewPreprocessor(nil).Prepare(frame, "ds", "y")
	if err == nil {
		t.Fatal("Expected error for all-missing value column")
	}
	if !errors.IsKind(err, errors.KindDataValidation) {
		t.Errorf("Kind = %v, want data_validation", errors.KindOf(err))
	}
}

func TestPrepare_DoesNotMutateInput(t *testing.T) {
	values := []float64{3, 1, 100000}
	frame := NewFrame()
	frame.AddStringColumn("ds", []string{"2024-01-03", "2024-01-01", "2024-01-02"})
	frame.AddNumericColumn("y", values)

	if _, err := NewPreprocessor(nil).Prepare(frame, "ds", "y"); err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}

	got, _ := frame.Numeric("y")
	if got[0] != 3 || got[1] != 1 || got[2] != 100000 {
		t.Errorf("Caller's frame was mutated: %v", got)
	}
}

func TestPrepare_TimeColumnInput(t *testing.T) {
	frame := NewFrame()
	frame.AddTimeColumn("ds", []time.Time{
		time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	frame.AddNumericColumn("y", []float64{2, 1})

	series, err := NewPreprocessor(nil).Prepare(frame, "ds", "y")
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	if series.Points[0].Value != 1 {
		t.Error("Pre-parsed time columns should sort like string columns")
	}
}

func TestSeriesWindow(t *testing.T) {
	frame := NewFrame()
	frame.AddStringColumn("ds", []string{"2024-01-01", "2024-01-02", "2024-01-03", "2024-01-04"})
	frame.AddNumericColumn("y", []float64{1, 2, 3, 4})

	series, err := NewPreprocessor(nil).Prepare(frame, "ds", "y")
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}

	window := series.Window(
		time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC),
	)
	if window.Len() != 2 {
		t.Fatalf("Window should hold 2 points, got %d", window.Len())
	}
	if window.Points[0].Value != 2 || window.Points[1].Value != 3 {
		t.Errorf("Window picked wrong points: %v", window.Points)
	}
}
