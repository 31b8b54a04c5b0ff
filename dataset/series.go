package dataset

import (
	"math"
	"time"
)

// TimePoint is a single observation of the target metric, optionally
// carrying exogenous regressor values keyed by column name.
type TimePoint struct {
	Timestamp  time.Time          `json:"timestamp"`
	Value      float64            `json:"value"`
	Regressors map[string]float64 `json:"regressors,omitempty"`
}

// PreparedSeries is the canonical, model-ready form of a raw input table:
// sorted ascending by timestamp, missing values imputed, and values clipped
// to a robust range. Duplicate timestamps are preserved in input order.
type PreparedSeries struct {
	Points          []TimePoint `json:"points"`
	RegressorNames  []string    `json:"regressor_names,omitempty"`
	CappedValues    int         `json:"capped_values"`
	TimestampColumn string      `json:"timestamp_column,omitempty"`
	TargetColumn    string      `json:"target_column,omitempty"`
}

// Len returns the number of points.
func (s *PreparedSeries) Len() int { return len(s.Points) }

// Start returns the first timestamp.
func (s *PreparedSeries) Start() time.Time {
	if len(s.Points) == 0 {
		return time.Time{}
	}
	return s.Points[0].Timestamp
}

// End returns the last timestamp.
func (s *PreparedSeries) End() time.Time {
	if len(s.Points) == 0 {
		return time.Time{}
	}
	return s.Points[len(s.Points)-1].Timestamp
}

// Span is the duration between the first and last timestamps.
func (s *PreparedSeries) Span() time.Duration {
	return s.End().Sub(s.Start())
}

// Timestamps returns a copy of all timestamps in order.
func (s *PreparedSeries) Timestamps() []time.Time {
	out := make([]time.Time, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Timestamp
	}
	return out
}

// Values returns a copy of all target values in order.
func (s *PreparedSeries) Values() []float64 {
	out := make([]float64, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Value
	}
	return out
}

// Regressor returns a copy of the named regressor column, NaN where a point
// has no value for it.
func (s *PreparedSeries) Regressor(name string) []float64 {
	out := make([]float64, len(s.Points))
	for i, p := range s.Points {
		v, ok := p.Regressors[name]
		if !ok {
			v = math.NaN()
		}
		out[i] = v
	}
	return out
}

// Clone returns a deep copy of the series.
func (s *PreparedSeries) Clone() *PreparedSeries {
	if s.Len() == 0 {
		return &PreparedSeries{
			RegressorNames:  append([]string(nil), s.RegressorNames...),
			CappedValues:    s.CappedValues,
			TimestampColumn: s.TimestampColumn,
			TargetColumn:    s.TargetColumn,
		}
	}
	out := s.Window(s.Start(), s.End())
	out.CappedValues = s.CappedValues
	return out
}

// Window returns the points with Timestamp in [start, end] as a new series
// sharing no state with the receiver. Regressor names carry over.
func (s *PreparedSeries) Window(start, end time.Time) *PreparedSeries {
	out := &PreparedSeries{
		RegressorNames:  append([]string(nil), s.RegressorNames...),
		TimestampColumn: s.TimestampColumn,
		TargetColumn:    s.TargetColumn,
	}
	for _, p := range s.Points {
		if p.Timestamp.Before(start) || p.Timestamp.After(end) {
			continue
		}
		cp := TimePoint{Timestamp: p.Timestamp, Value: p.Value}
		if p.Regressors != nil {
			cp.Regressors = make(map[string]float64, len(p.Regressors))
			for k, v := range p.Regressors {
				cp.Regressors[k] = v
			}
		}
		out.Points = append(out.Points, cp)
	}
	return out
}
