package forecast

import (
	"encoding/json"
	"math"
	"testing"
)

func TestMeanAbsolutePercentageError(t *testing.T) {
	actual := []float64{100, 200}
	predicted := []float64{110, 180}

	got := meanAbsolutePercentageError(actual, predicted)
	if math.Abs(got-0.1) > 1e-12 {
		t.Errorf("MAPE should be 0.1, got %v", got)
	}
}

func TestMeanAbsolutePercentageErrorZeroActual(t *testing.T) {
	// A zero actual floors the denominator at machine epsilon, giving a
	// huge but finite error instead of a division by zero.
	got := meanAbsolutePercentageError([]float64{0}, []float64{1})
	if math.IsInf(got, 0) || math.IsNaN(got) {
		t.Fatalf("MAPE with zero actual should be finite, got %v", got)
	}
	if got < 1e10 {
		t.Errorf("MAPE with zero actual should be very large, got %v", got)
	}
}

func TestRootMeanSquaredError(t *testing.T) {
	actual := []float64{1, 2, 3}
	predicted := []float64{2, 2, 5}

	got := rootMeanSquaredError(actual, predicted)
	want := math.Sqrt(5.0 / 3.0)
	if math.Abs(got-want) > 1e-12 {
		t.Errorf("RMSE should be %v, got %v", want, got)
	}
}

func TestMeanAbsoluteError(t *testing.T) {
	actual := []float64{1, 2, 3}
	predicted := []float64{2, 2, 5}

	got := meanAbsoluteError(actual, predicted)
	if math.Abs(got-1.0) > 1e-12 {
		t.Errorf("MAE should be 1.0, got %v", got)
	}
}

func TestRSquaredIsSquaredCorrelation(t *testing.T) {
	// r2 is the squared Pearson correlation, so any affine transform of
	// the actuals scores a perfect 1 even with a large absolute offset.
	actual := []float64{10, 20, 30, 40, 50}
	predicted := make([]float64, len(actual))
	for i, v := range actual {
		predicted[i] = 2*v + 5
	}

	got := rSquared(actual, predicted)
	if math.Abs(got-1.0) > 1e-9 {
		t.Errorf("R2 of an affine transform should be 1, got %v", got)
	}
}

func TestRSquaredConstantSeries(t *testing.T) {
	got := rSquared([]float64{5, 5, 5}, []float64{4, 5, 6})
	if !math.IsNaN(got) {
		t.Errorf("R2 against a constant series should be NaN, got %v", got)
	}
}

func TestComputeTrainingMetricsValidation(t *testing.T) {
	if _, err := computeTrainingMetrics(nil, nil); err == nil {
		t.Error("Empty input should fail")
	}
	if _, err := computeTrainingMetrics([]float64{1, 2}, []float64{1}); err == nil {
		t.Error("Mismatched lengths should fail")
	}
}

func TestTrainingMetricsOutcomeStatuses(t *testing.T) {
	logger := discardLogger()

	good := trainingMetricsOutcome([]float64{1, 2, 3}, []float64{1.1, 2.1, 2.9}, logger)
	if good.Status != MetricsSucceeded {
		t.Errorf("Clean inputs should succeed, got %s (%s)", good.Status, good.Reason)
	}

	partial := trainingMetricsOutcome([]float64{5, 5, 5}, []float64{4, 5, 6}, logger)
	if partial.Status != MetricsPartial {
		t.Errorf("Constant actuals should yield a partial outcome, got %s", partial.Status)
	}
	if partial.Reason == "" {
		t.Error("Partial outcome should carry a reason")
	}
	if math.IsNaN(partial.Metrics.RMSE) {
		t.Error("Finite metrics should still be reported in a partial outcome")
	}

	failed := trainingMetricsOutcome(nil, nil, logger)
	if failed.Status != MetricsFailed {
		t.Errorf("Empty inputs should fail, got %s", failed.Status)
	}
	if failed.Reason == "" {
		t.Error("Failed outcome should carry a reason")
	}
}

func TestTrainingMetricsJSONRoundTrip(t *testing.T) {
	metrics := TrainingMetrics{MAPE: 0.05, RMSE: 2.5, MAE: 1.75, R2: math.NaN()}

	data, err := json.Marshal(metrics)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal to map failed: %v", err)
	}
	if decoded["r2"] != nil {
		t.Errorf("NaN r2 should encode as null, got %v", decoded["r2"])
	}
	if decoded["mape"] != 0.05 {
		t.Errorf("MAPE should encode as 0.05, got %v", decoded["mape"])
	}

	var back TrainingMetrics
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if !math.IsNaN(back.R2) {
		t.Errorf("Null r2 should decode to NaN, got %v", back.R2)
	}
	if back.RMSE != 2.5 {
		t.Errorf("RMSE should round trip, got %v", back.RMSE)
	}
}
