package dataset

import (
	"math"
	"testing"
)

func TestPercentileCalculation(t *testing.T) {
	data := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}

	q1 := Percentile(data, 25)
	q2 := Percentile(data, 50)
	q3 := Percentile(data, 75)

	if q2 != 5.5 { // Median
		t.Errorf("Expected median 5.5, got %f", q2)
	}
	if q1 != 3.25 {
		t.Errorf("Expected Q1 3.25, got %f", q1)
	}
	if q3 != 7.75 {
		t.Errorf("Expected Q3 7.75, got %f", q3)
	}
	if q1 > q2 || q2 > q3 {
		t.Error("Quartiles should be in ascending order")
	}
}

func TestPercentileEdgeCases(t *testing.T) {
	singleValue := []float64{42}
	if got := Percentile(singleValue, 50); got != 42 {
		t.Errorf("Expected 42, got %f", got)
	}

	if got := Percentile(nil, 50); !math.IsNaN(got) {
		t.Errorf("Expected NaN for empty input, got %f", got)
	}

	data := []float64{5, 1, 3}
	if got := Percentile(data, 0); got != 1 {
		t.Errorf("Percentile 0 should be the minimum, got %f", got)
	}
	if got := Percentile(data, 100); got != 5 {
		t.Errorf("Percentile 100 should be the maximum, got %f", got)
	}
}

func TestPercentileIgnoresNaN(t *testing.T) {
	data := []float64{1, math.NaN(), 3}
	if got := Percentile(data, 50); got != 2 {
		t.Errorf("NaN cells should be ignored, got %f", got)
	}
}

func TestIQRBounds(t *testing.T) {
	data := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}

	lower, upper := IQRBounds(data)
	iqr := 7.75 - 3.25
	wantLower := 3.25 - 1.5*iqr
	wantUpper := 7.75 + 1.5*iqr

	if math.Abs(lower-wantLower) > 1e-9 {
		t.Errorf("lower = %f, want %f", lower, wantLower)
	}
	if math.Abs(upper-wantUpper) > 1e-9 {
		t.Errorf("upper = %f, want %f", upper, wantUpper)
	}
}

// Benchmark tests

func BenchmarkPercentile(b *testing.B) {
	data := make([]float64, 1000)
	for i := range data {
		data[i] = math.Sin(float64(i) * 0.1)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Percentile(data, 95)
	}
}
