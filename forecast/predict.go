package forecast

import (
	"context"
	"encoding/json"
	"math"
	"math/rand"
	"sort"
	"strings"
	"time"

	"business-forecasting-engine/dataset"
	"business-forecasting-engine/errors"
	"business-forecasting-engine/forecast/holidays"
)

// Frequency is the spacing of the future time grid.
type Frequency string

const (
	Hourly Frequency = "H"
	Daily  Frequency = "D"
	Weekly Frequency = "W"
)

// ParseFrequency accepts the short code or a spelled-out name in any case.
func ParseFrequency(s string) (Frequency, error) {
	switch {
	case anyFold(s, "H", "hour", "hourly"):
		return Hourly, nil
	case anyFold(s, "D", "day", "daily"):
		return Daily, nil
	case anyFold(s, "W", "week", "weekly"):
		return Weekly, nil
	}
	return "", errors.Newf(errors.KindPrediction, "unknown frequency %q (want H, D or W)", s)
}

func anyFold(s string, options ...string) bool {
	for _, opt := range options {
		if strings.EqualFold(s, opt) {
			return true
		}
	}
	return false
}

// Step returns the grid spacing for the frequency.
func (f Frequency) Step() time.Duration {
	switch f {
	case Hourly:
		return time.Hour
	case Weekly:
		return 7 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// DefaultPredictSeed seeds the uncertainty simulation when the caller does
// not choose one, keeping repeated predict calls bit-identical.
const DefaultPredictSeed int64 = 42

// RegressorObservation supplies known future regressor values at one
// timestamp. Values missing for later grid points are carried forward.
type RegressorObservation struct {
	Timestamp time.Time          `json:"timestamp"`
	Values    map[string]float64 `json:"values"`
}

// PredictOptions control the forecast horizon and interval simulation.
// Zero values fall back to the fitted configuration.
type PredictOptions struct {
	Periods          int                    `json:"periods"`
	Frequency        Frequency              `json:"frequency,omitempty"`
	IncludeHistory   bool                   `json:"include_history,omitempty"`
	FutureRegressors []RegressorObservation `json:"future_regressors,omitempty"`
	IntervalWidth    float64                `json:"interval_width,omitempty"`
	Samples          int                    `json:"samples,omitempty"`
	Seed             int64                  `json:"seed,omitempty"`
}

// ForecastRow is one grid point of a forecast. The component columns sum to
// the point estimate, and the interval always straddles it.
type ForecastRow struct {
	Timestamp  time.Time `json:"timestamp"`
	Predicted  float64   `json:"yhat"`
	Lower      float64   `json:"yhat_lower"`
	Upper      float64   `json:"yhat_upper"`
	Trend      float64   `json:"trend"`
	Seasonal   float64   `json:"seasonal"`
	Holidays   float64   `json:"holidays"`
	Regressors float64   `json:"regressors"`
	History    bool      `json:"history,omitempty"`
}

// UncertaintyRatio is a float64 whose JSON form survives non-finite values:
// infinities encode as the strings "Infinity"/"-Infinity" and NaN as null.
type UncertaintyRatio float64

// MarshalJSON implements json.Marshaler.
func (u UncertaintyRatio) MarshalJSON() ([]byte, error) {
	v := float64(u)
	switch {
	case math.IsInf(v, 1):
		return []byte(`"Infinity"`), nil
	case math.IsInf(v, -1):
		return []byte(`"-Infinity"`), nil
	case math.IsNaN(v):
		return []byte("null"), nil
	}
	return json.Marshal(v)
}

// UnmarshalJSON implements json.Unmarshaler.
func (u *UncertaintyRatio) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case `"Infinity"`:
		*u = UncertaintyRatio(math.Inf(1))
		return nil
	case `"-Infinity"`:
		*u = UncertaintyRatio(math.Inf(-1))
		return nil
	case "null":
		*u = UncertaintyRatio(math.NaN())
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*u = UncertaintyRatio(v)
	return nil
}

// Forecast is the full output of one predict call.
type Forecast struct {
	ModelID     string        `json:"model_id"`
	ModelName   string        `json:"model_name"`
	GeneratedAt time.Time     `json:"generated_at"`
	Frequency   Frequency     `json:"frequency"`
	Periods     int           `json:"periods"`
	Rows        []ForecastRow `json:"rows"`

	// ConfidenceWidth is the mean upper-lower interval width across rows.
	// RelativeUncertainty is that width relative to the mean absolute
	// point estimate; it is infinite when the forecast is centered on zero.
	ConfidenceWidth     float64          `json:"confidence_width"`
	RelativeUncertainty UncertaintyRatio `json:"relative_uncertainty"`
}

// Horizon returns the future rows only, excluding any history rows.
func (f *Forecast) Horizon() []ForecastRow {
	out := make([]ForecastRow, 0, len(f.Rows))
	for _, row := range f.Rows {
		if !row.History {
			out = append(out, row)
		}
	}
	return out
}

// Predict evaluates the fitted decomposition over a future grid and
// simulates prediction intervals. The same options always yield the same
// forecast.
func (m *FittedModel) Predict(ctx context.Context, opts PredictOptions) (*Forecast, error) {
	if opts.Periods < 0 {
		return nil, errors.Newf(errors.KindPrediction, "periods must be >= 0, got %d", opts.Periods)
	}
	if opts.Periods == 0 && !opts.IncludeHistory {
		return nil, errors.Newf(errors.KindPrediction, "nothing to predict: zero periods without history")
	}
	freq := opts.Frequency
	if freq == "" {
		freq = Daily
	}
	if freq != Hourly && freq != Daily && freq != Weekly {
		return nil, errors.Newf(errors.KindPrediction, "unknown frequency %q", freq)
	}
	width := opts.IntervalWidth
	if width == 0 {
		width = m.snapshot.IntervalWidth
	}
	if width <= 0 || width >= 1 {
		return nil, errors.Newf(errors.KindPrediction, "interval width must be in (0, 1), got %v", width)
	}
	samples := opts.Samples
	if samples == 0 {
		samples = m.snapshot.UncertaintySamples
	}
	if samples < 1 {
		return nil, errors.Newf(errors.KindPrediction, "samples must be >= 1, got %d", samples)
	}
	seed := opts.Seed
	if seed == 0 {
		seed = DefaultPredictSeed
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrapf(errors.KindPrediction, err, "predict canceled")
	}

	grid := m.buildGrid(opts.Periods, freq, opts.IncludeHistory)
	regs := m.futureRegressorValues(grid, opts.FutureRegressors)

	rows, err := m.forecastRows(ctx, grid, regs, samples, width, seed)
	if err != nil {
		return nil, err
	}

	widthSum, absSum := 0.0, 0.0
	for _, row := range rows {
		widthSum += row.Upper - row.Lower
		absSum += math.Abs(row.Predicted)
	}
	meanWidth := widthSum / float64(len(rows))
	meanAbs := absSum / float64(len(rows))
	relative := math.Inf(1)
	if meanAbs >= 1e-12 {
		relative = meanWidth / meanAbs
	}

	return &Forecast{
		ModelID:             m.id,
		ModelName:           m.name,
		GeneratedAt:         time.Now().UTC(),
		Frequency:           freq,
		Periods:             opts.Periods,
		Rows:                rows,
		ConfidenceWidth:     meanWidth,
		RelativeUncertainty: UncertaintyRatio(relative),
	}, nil
}

type gridPoint struct {
	ts      time.Time
	history bool
}

// forecastRows evaluates the decomposition at each grid point and simulates
// the prediction intervals. regs carries the regressor values per point.
func (m *FittedModel) forecastRows(ctx context.Context, grid []gridPoint, regs []map[string]float64, samples int, width float64, seed int64) ([]ForecastRow, error) {
	holidayIndex, err := m.holidayIndexFor(grid)
	if err != nil {
		return nil, err
	}

	rows := make([]ForecastRow, len(grid))
	scratch := make([]float64, 2*m.params.maxFourierOrder())
	for i, g := range grid {
		day := dayOffset(g.ts)
		trend := m.params.Trend.at(day)

		seasonal := 0.0
		for s := range m.params.Seasonal {
			seasonal += m.params.Seasonal[s].at(day, scratch)
		}
		holidayEffect := 0.0
		for j, name := range m.params.Holidays.Names {
			if holidayIndex[name][holidays.DateKey(g.ts)] {
				holidayEffect += m.params.Holidays.Beta[j]
			}
		}
		regEffect := m.params.Regressors.at(regs[i])

		seasonalTerm := seasonal
		if m.params.Mode == Multiplicative {
			seasonalTerm = trend * seasonal
		}
		predicted := trend + seasonalTerm + holidayEffect + regEffect

		rows[i] = ForecastRow{
			Timestamp:  g.ts,
			Predicted:  predicted,
			Trend:      trend,
			Seasonal:   seasonalTerm,
			Holidays:   holidayEffect,
			Regressors: regEffect,
			History:    g.history,
		}
	}

	if err := m.simulateIntervals(ctx, rows, grid, samples, width, seed); err != nil {
		return nil, err
	}
	return rows, nil
}

// buildGrid lays out the forecast timestamps: the training timestamps when
// history is requested, then periods future points starting one step after
// the training end.
func (m *FittedModel) buildGrid(periods int, freq Frequency, includeHistory bool) []gridPoint {
	var grid []gridPoint
	if includeHistory {
		for _, p := range m.training.Points {
			grid = append(grid, gridPoint{ts: p.Timestamp, history: true})
		}
	}
	step := freq.Step()
	cursor := m.training.End()
	for i := 0; i < periods; i++ {
		cursor = cursor.Add(step)
		grid = append(grid, gridPoint{ts: cursor})
	}
	return grid
}

// futureRegressorValues resolves the regressor values at every grid point.
// History rows read the training values directly. Future rows start from the
// last training values and apply supplied observations forward-filled by
// timestamp; regressors never supplied hold their last training value.
func (m *FittedModel) futureRegressorValues(grid []gridPoint, supplied []RegressorObservation) []map[string]float64 {
	bindings := m.params.Regressors.Bindings
	out := make([]map[string]float64, len(grid))
	if len(bindings) == 0 {
		return out
	}

	current := make(map[string]float64, len(bindings))
	last := m.training.Points[len(m.training.Points)-1].Regressors
	for j, b := range bindings {
		if v, ok := last[b.Name]; ok && !math.IsNaN(v) {
			current[b.Name] = v
		} else {
			current[b.Name] = m.params.Regressors.Means[j]
		}
	}

	obs := append([]RegressorObservation(nil), supplied...)
	sort.SliceStable(obs, func(a, b int) bool { return obs[a].Timestamp.Before(obs[b].Timestamp) })

	next := 0
	histIdx := 0
	for i, g := range grid {
		if g.history {
			out[i] = m.training.Points[histIdx].Regressors
			histIdx++
			continue
		}
		for next < len(obs) && !obs[next].Timestamp.After(g.ts) {
			for name, v := range obs[next].Values {
				if !math.IsNaN(v) {
					current[name] = v
				}
			}
			next++
		}
		values := make(map[string]float64, len(bindings))
		for _, b := range bindings {
			values[b.Name] = current[b.Name]
		}
		out[i] = values
	}
	return out
}

// holidayIndexFor maps each trained holiday name to its dates within the
// grid window.
func (m *FittedModel) holidayIndexFor(grid []gridPoint) (map[string]map[string]bool, error) {
	index := make(map[string]map[string]bool, len(m.params.Holidays.Names))
	for _, name := range m.params.Holidays.Names {
		index[name] = map[string]bool{}
	}
	if len(m.params.Holidays.Names) == 0 || len(grid) == 0 {
		return index, nil
	}
	cal, ok := holidays.Lookup(m.params.Holidays.Country)
	if !ok {
		return nil, errors.Newf(errors.KindPrediction,
			"holiday calendar %q is not registered", m.params.Holidays.Country)
	}
	for _, h := range cal.HolidaysBetween(grid[0].ts, grid[len(grid)-1].ts) {
		if _, trained := index[h.Name]; trained {
			index[h.Name][holidays.DateKey(h.Date)] = true
		}
	}
	return index, nil
}

// simulateIntervals draws sample trajectories around the point estimates:
// future trend changepoints at the historical rate plus observation noise,
// then takes the interval percentiles per row. Bounds are clamped so they
// always straddle the point estimate.
func (m *FittedModel) simulateIntervals(ctx context.Context, rows []ForecastRow, grid []gridPoint, samples int, width float64, seed int64) error {
	rng := rand.New(rand.NewSource(seed))

	laplaceScale := 0.0
	for _, d := range m.params.Trend.Deltas {
		laplaceScale += math.Abs(d)
	}
	if len(m.params.Trend.Deltas) > 0 {
		laplaceScale /= float64(len(m.params.Trend.Deltas))
	}
	if laplaceScale == 0 {
		laplaceScale = m.snapshot.ChangepointPrior
	}
	// Future changepoints arrive at the historical rate: the candidates
	// occupy the first 80% of scaled time, so the rate per unit tau is
	// count/0.8.
	changeRate := float64(len(m.params.Trend.Changepoints)) / 0.8

	taus := make([]float64, len(grid))
	for i, g := range grid {
		taus[i] = m.params.Trend.tau(dayOffset(g.ts))
	}

	draws := sampleMatrix(len(rows), samples)
	for s := 0; s < samples; s++ {
		if s%64 == 0 {
			if err := ctx.Err(); err != nil {
				return errors.Wrapf(errors.KindPrediction, err, "predict canceled")
			}
		}
		trendAdj := 0.0
		slopeAdj := 0.0
		prevTau := 1.0
		for i := range rows {
			if taus[i] > 1 {
				step := taus[i] - prevTau
				trendAdj += slopeAdj * step
				prevTau = taus[i]
				if rng.Float64() < changeRate*step {
					slopeAdj += laplaceDraw(rng, laplaceScale)
				}
			}
			draws[i][s] = rows[i].Predicted + trendAdj + rng.NormFloat64()*m.params.NoiseScale
		}
	}

	lowerP := (1 - width) / 2 * 100
	upperP := (1 + width) / 2 * 100
	for i := range rows {
		sort.Float64s(draws[i])
		lower := dataset.SortedPercentile(draws[i], lowerP)
		upper := dataset.SortedPercentile(draws[i], upperP)
		if lower > rows[i].Predicted {
			lower = rows[i].Predicted
		}
		if upper < rows[i].Predicted {
			upper = rows[i].Predicted
		}
		rows[i].Lower = lower
		rows[i].Upper = upper
	}
	return nil
}

func laplaceDraw(rng *rand.Rand, scale float64) float64 {
	u := rng.Float64() - 0.5
	sign := 1.0
	if u < 0 {
		sign = -1
	}
	return -scale * sign * math.Log(1-2*math.Abs(u))
}

func sampleMatrix(rows, cols int) [][]float64 {
	backing := make([]float64, rows*cols)
	out := make([][]float64, rows)
	for i := range out {
		out[i] = backing[i*cols : (i+1)*cols]
	}
	return out
}
