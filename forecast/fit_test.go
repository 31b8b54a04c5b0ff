package forecast

import (
	"context"
	stderrors "errors"
	"math"
	"testing"
	"time"

	"business-forecasting-engine/dataset"
	"business-forecasting-engine/errors"
)

func TestFitSyntheticSeries(t *testing.T) {
	cfg := NewConfiguration()
	if err := cfg.SetUncertaintySamples(20); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	forecaster := New("revenue", cfg, nil)
	series := generateDailySeries(120, 100.0, 10.0, 0.5)

	model, err := forecaster.Fit(context.Background(), series)
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	if forecaster.State() != StateFitted {
		t.Errorf("State should be fitted, got %s", forecaster.State())
	}
	if model.ID() == "" {
		t.Error("Fitted model should have an ID")
	}
	if model.Name() != "revenue" {
		t.Errorf("Model name should be revenue, got %s", model.Name())
	}
	if model.TrainingSamples() != 120 {
		t.Errorf("Training samples should be 120, got %d", model.TrainingSamples())
	}
	start, end := model.TrainingWindow()
	if !start.Equal(series.Start()) || !end.Equal(series.End()) {
		t.Error("Training window should match the input series bounds")
	}

	outcome := model.Metrics()
	if outcome.Status != MetricsSucceeded {
		t.Fatalf("Metrics should succeed on a clean series, got %s (%s)", outcome.Status, outcome.Reason)
	}
	if outcome.Metrics.MAPE > 0.1 {
		t.Errorf("In-sample MAPE should be small on synthetic data, got %v", outcome.Metrics.MAPE)
	}
	if outcome.Metrics.RMSE > 10 {
		t.Errorf("In-sample RMSE should be small on synthetic data, got %v", outcome.Metrics.RMSE)
	}
	if outcome.Metrics.R2 < 0.5 {
		t.Errorf("In-sample R2 should be high on synthetic data, got %v", outcome.Metrics.R2)
	}
}

func TestFitAndForecastLongHistory(t *testing.T) {
	cfg := NewConfiguration()
	if err := cfg.SetUncertaintySamples(30); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	forecaster := New("daily-revenue", cfg, nil)

	start := time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC)
	points := make([]dataset.TimePoint, 800)
	for i := range points {
		weekly := 0.1 * math.Sin(2*math.Pi*float64(i)/7)
		yearly := 0.05 * math.Sin(2*math.Pi*float64(i)/365.25)
		spend := 50 + 20*math.Cos(2*math.Pi*float64(i)/30)
		points[i] = dataset.TimePoint{
			Timestamp:  start.Add(time.Duration(i) * 24 * time.Hour),
			Value:      (500+0.8*float64(i))*(1+weekly+yearly) + 2.0*spend,
			Regressors: map[string]float64{"spend": spend},
		}
	}
	series := &dataset.PreparedSeries{
		Points:          points,
		RegressorNames:  []string{"spend"},
		TargetColumn:    "revenue",
		TimestampColumn: "date",
	}

	model, err := forecaster.Fit(context.Background(), series)
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	outcome := model.Metrics()
	if outcome.Status != MetricsSucceeded {
		t.Fatalf("Metrics should succeed, got %s (%s)", outcome.Status, outcome.Reason)
	}
	if outcome.Metrics.MAPE >= 1.0 {
		t.Errorf("In-sample MAPE should stay below 1.0, got %v", outcome.Metrics.MAPE)
	}

	forecast, err := model.Predict(context.Background(), PredictOptions{Periods: 30})
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	if len(forecast.Rows) != 30 {
		t.Fatalf("Expected 30 forecast rows, got %d", len(forecast.Rows))
	}
	for i, row := range forecast.Rows {
		want := series.End().Add(time.Duration(i+1) * 24 * time.Hour)
		if !row.Timestamp.Equal(want) {
			t.Errorf("Row %d timestamp should be %v, got %v", i, want, row.Timestamp)
		}
		if row.Lower > row.Predicted || row.Predicted > row.Upper {
			t.Errorf("Row %d interval should straddle the estimate: [%v, %v] vs %v",
				i, row.Lower, row.Upper, row.Predicted)
		}
	}
}

func TestFitTooShortHistory(t *testing.T) {
	forecaster := New("short", nil, nil)
	series := generateDailySeries(10, 100.0, 5.0, 0)

	_, err := forecaster.Fit(context.Background(), series)
	if !errors.IsKind(err, errors.KindTraining) {
		t.Errorf("Ten days of history should fail with a training error, got %v", err)
	}
	if forecaster.State() != StateFailedFit {
		t.Errorf("State should be failed_fit, got %s", forecaster.State())
	}
	if _, ok := forecaster.Model(); ok {
		t.Error("No model should be exposed after a failed fit")
	}
}

func TestFitTooFewPoints(t *testing.T) {
	forecaster := New("tiny", nil, nil)
	series := generateDailySeries(1, 100.0, 0, 0)

	_, err := forecaster.Fit(context.Background(), series)
	if !errors.IsKind(err, errors.KindTraining) {
		t.Errorf("A single point should fail with a training error, got %v", err)
	}
}

func TestFitCanceledContext(t *testing.T) {
	forecaster := New("canceled", nil, nil)
	series := generateDailySeries(60, 100.0, 10.0, 0.5)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := forecaster.Fit(ctx, series)
	if err == nil {
		t.Fatal("Fit with a canceled context should fail")
	}
	if !stderrors.Is(err, context.Canceled) {
		t.Errorf("Error should wrap context.Canceled, got %v", err)
	}
	if forecaster.State() != StateFailedFit {
		t.Errorf("State should be failed_fit after cancellation, got %s", forecaster.State())
	}
}

func TestRefitFailureKeepsPriorModel(t *testing.T) {
	cfg := NewConfiguration()
	if err := cfg.SetUncertaintySamples(20); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	forecaster := New("refit", cfg, nil)

	good := generateDailySeries(90, 100.0, 10.0, 0.5)
	first, err := forecaster.Fit(context.Background(), good)
	if err != nil {
		t.Fatalf("First fit failed: %v", err)
	}

	bad := generateDailySeries(3, 100.0, 0, 0)
	if _, err := forecaster.Fit(context.Background(), bad); err == nil {
		t.Fatal("Refit on three days of data should fail")
	}

	if forecaster.State() != StateFailedFit {
		t.Errorf("State should reflect the failed attempt, got %s", forecaster.State())
	}
	current, ok := forecaster.Model()
	if !ok {
		t.Fatal("Prior model should survive a failed refit")
	}
	if current.ID() != first.ID() {
		t.Error("Prior model should be unchanged after a failed refit")
	}
}

func TestFitRecoversRegressorCoefficient(t *testing.T) {
	cfg := NewConfiguration()
	if err := cfg.SetSeasonalityMode(Additive); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	for _, name := range []string{"yearly", "quarterly", "monthly"} {
		if err := cfg.RemoveSeasonality(name); err != nil {
			t.Fatalf("Setup failed: %v", err)
		}
	}
	if err := cfg.SetUncertaintySamples(20); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	forecaster := New("with-spend", cfg, nil)

	series := generateRegressorSeries(180, 100.0, 0.5, 3.0)
	model, err := forecaster.Fit(context.Background(), series)
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	cols := model.FeatureColumns()
	if len(cols) != 1 || cols[0] != "spend" {
		t.Fatalf("Auto-discovered feature columns should be [spend], got %v", cols)
	}

	coefs := model.RegressorCoefficients()
	got, ok := coefs["spend"]
	if !ok {
		t.Fatal("Coefficient for spend should be reported")
	}
	if math.Abs(got-3.0) > 0.5 {
		t.Errorf("Spend coefficient should be near 3.0, got %v", got)
	}
}

func TestFitHolidayEffects(t *testing.T) {
	cfg := NewConfiguration()
	if err := cfg.SetSeasonalityMode(Additive); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	if err := cfg.SetUncertaintySamples(20); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	forecaster := New("with-holidays", cfg, nil)

	// Two years of flat data with a +25 bump on Independence Day and
	// Christmas.
	start := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	points := make([]dataset.TimePoint, 730)
	for i := range points {
		ts := start.Add(time.Duration(i) * 24 * time.Hour)
		value := 100.0
		if (ts.Month() == time.July && ts.Day() == 4) || (ts.Month() == time.December && ts.Day() == 25) {
			value += 25
		}
		points[i] = dataset.TimePoint{Timestamp: ts, Value: value}
	}
	series := &dataset.PreparedSeries{Points: points, TargetColumn: "value", TimestampColumn: "date"}

	model, err := forecaster.Fit(context.Background(), series)
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	effects := model.HolidayCoefficients()
	independence, ok := effects["Independence Day"]
	if !ok {
		t.Fatal("Independence Day should have a fitted coefficient")
	}
	if independence < 10 {
		t.Errorf("Independence Day effect should be strongly positive, got %v", independence)
	}
	christmas, ok := effects["Christmas Day"]
	if !ok {
		t.Fatal("Christmas Day should have a fitted coefficient")
	}
	if christmas < 10 {
		t.Errorf("Christmas Day effect should be strongly positive, got %v", christmas)
	}
	if thanksgiving := effects["Thanksgiving"]; math.Abs(thanksgiving) > 5 {
		t.Errorf("Thanksgiving has no bump in the data, effect should be near zero, got %v", thanksgiving)
	}
}

func TestSummaryNotTrained(t *testing.T) {
	forecaster := New("pending", nil, nil)

	summary := forecaster.Summary()
	if summary.ModelName != "pending" {
		t.Errorf("Summary should carry the model name, got %s", summary.ModelName)
	}
	if summary.Status != "not_trained" {
		t.Errorf("Untrained summary status should be not_trained, got %q", summary.Status)
	}
	if summary.TrainingMetrics != nil {
		t.Error("Untrained summary should not report metrics")
	}
}

func TestFittedSummary(t *testing.T) {
	cfg := NewConfiguration()
	if err := cfg.SetUncertaintySamples(20); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	forecaster := New("summed", cfg, nil)
	series := generateDailySeries(90, 100.0, 10.0, 0.5)

	if _, err := forecaster.Fit(context.Background(), series); err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	summary := forecaster.Summary()
	if summary.ModelType != ModelType {
		t.Errorf("Model type should be %s, got %s", ModelType, summary.ModelType)
	}
	if summary.Status != "trained" {
		t.Errorf("Fitted summary status should be trained, got %q", summary.Status)
	}
	if summary.TrainingMetrics == nil {
		t.Fatal("Fitted summary should report metrics")
	}
	if summary.ModelParams == nil || summary.ModelParams.SeasonalityMode != Multiplicative {
		t.Error("Fitted summary should report the seasonality mode")
	}
	if summary.Metadata == nil || summary.Metadata.TrainingSamples != 90 {
		t.Error("Fitted summary metadata should report the sample count")
	}
	if summary.TargetColumn != "value" {
		t.Errorf("Summary should carry the target column, got %q", summary.TargetColumn)
	}
}

func TestFitStateString(t *testing.T) {
	cases := map[FitState]string{
		StateUnfitted:  "unfitted",
		StateFitting:   "fitting",
		StateFitted:    "fitted",
		StateFailedFit: "failed_fit",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("State %d should print %s, got %s", state, want, got)
		}
	}
}

// Helper functions for testing

func generateDailySeries(n int, base, weeklyAmp, slope float64) *dataset.PreparedSeries {
	start := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	points := make([]dataset.TimePoint, n)
	for i := 0; i < n; i++ {
		value := base + slope*float64(i) + weeklyAmp*math.Sin(2*math.Pi*float64(i)/7)
		points[i] = dataset.TimePoint{
			Timestamp: start.Add(time.Duration(i) * 24 * time.Hour),
			Value:     value,
		}
	}
	return &dataset.PreparedSeries{Points: points, TargetColumn: "value", TimestampColumn: "date"}
}

func generateRegressorSeries(n int, base, slope, coef float64) *dataset.PreparedSeries {
	start := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	points := make([]dataset.TimePoint, n)
	for i := 0; i < n; i++ {
		x := 5*math.Sin(2*math.Pi*float64(i)/11) + 3*math.Cos(2*math.Pi*float64(i)/23)
		value := base + slope*float64(i) + coef*x
		points[i] = dataset.TimePoint{
			Timestamp:  start.Add(time.Duration(i) * 24 * time.Hour),
			Value:      value,
			Regressors: map[string]float64{"spend": x},
		}
	}
	return &dataset.PreparedSeries{
		Points:          points,
		RegressorNames:  []string{"spend"},
		TargetColumn:    "value",
		TimestampColumn: "date",
	}
}

// Benchmark tests

func BenchmarkFit(b *testing.B) {
	cfg := NewConfiguration()
	if err := cfg.SetUncertaintySamples(20); err != nil {
		b.Fatalf("Setup failed: %v", err)
	}
	series := generateDailySeries(365, 100.0, 10.0, 0.5)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := fitModel(context.Background(), "bench", cfg, series, discardLogger()); err != nil {
			b.Fatalf("Fit failed: %v", err)
		}
	}
}
