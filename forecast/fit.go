package forecast

import (
	"context"
	"io"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"business-forecasting-engine/dataset"
	"business-forecasting-engine/errors"
)

// FitState tracks where a Forecaster is in its lifecycle.
type FitState int32

const (
	StateUnfitted FitState = iota
	StateFitting
	StateFitted
	StateFailedFit
)

func (s FitState) String() string {
	switch s {
	case StateUnfitted:
		return "unfitted"
	case StateFitting:
		return "fitting"
	case StateFitted:
		return "fitted"
	case StateFailedFit:
		return "failed_fit"
	default:
		return "unknown"
	}
}

// Forecaster owns a configuration and the lifecycle of models fitted from
// it. Refitting replaces the current model only when the new fit succeeds;
// State reports the outcome of the most recent attempt.
type Forecaster struct {
	name   string
	config *ModelConfiguration
	logger *logrus.Logger

	fitMu sync.Mutex
	mu    sync.RWMutex
	state FitState
	model *FittedModel
}

// New creates a Forecaster. A nil configuration takes the defaults; a nil
// logger silences output.
func New(name string, config *ModelConfiguration, logger *logrus.Logger) *Forecaster {
	if config == nil {
		config = NewConfiguration()
	}
	if logger == nil {
		logger = discardLogger()
	}
	return &Forecaster{name: name, config: config, logger: logger}
}

// Name returns the forecaster's model name.
func (f *Forecaster) Name() string { return f.name }

// Configuration returns the configuration. It freezes once fitting starts.
func (f *Forecaster) Configuration() *ModelConfiguration { return f.config }

// State returns the lifecycle state of the most recent fit attempt.
func (f *Forecaster) State() FitState {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.state
}

// Model returns the current fitted model. The second return is false until
// a fit has succeeded; a failed refit leaves the previous model in place.
func (f *Forecaster) Model() (*FittedModel, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.model, f.model != nil
}

// Summary describes the forecaster. Before a successful fit it carries only
// the name and a not_trained status.
func (f *Forecaster) Summary() ModelSummary {
	if model, ok := f.Model(); ok {
		return model.Summary()
	}
	return ModelSummary{ModelName: f.name, Status: "not_trained"}
}

// Fit trains a model on the prepared series. The previous model, if any,
// stays exposed until the new fit succeeds. Only one fit may run at a time.
func (f *Forecaster) Fit(ctx context.Context, series *dataset.PreparedSeries) (*FittedModel, error) {
	if !f.fitMu.TryLock() {
		return nil, errors.Newf(errors.KindTraining, "another fit is already in progress")
	}
	defer f.fitMu.Unlock()

	f.mu.Lock()
	f.state = StateFitting
	f.mu.Unlock()

	model, err := fitModel(ctx, f.name, f.config, series, f.logger)

	f.mu.Lock()
	defer f.mu.Unlock()
	if err != nil {
		f.state = StateFailedFit
		return nil, err
	}
	f.state = StateFitted
	f.model = model
	return model, nil
}

// Predict forecasts with the current model. It fails with a prediction
// error until a fit has succeeded.
func (f *Forecaster) Predict(ctx context.Context, opts PredictOptions) (*Forecast, error) {
	model, ok := f.Model()
	if !ok {
		return nil, errors.Newf(errors.KindPrediction, "model %q is not fitted", f.name)
	}
	return model.Predict(ctx, opts)
}

// fitModel runs the two-stage decomposition fit: trend first, then the
// seasonal, holiday and regressor components on the detrended target.
func fitModel(ctx context.Context, name string, cfg *ModelConfiguration, series *dataset.PreparedSeries, logger *logrus.Logger) (*FittedModel, error) {
	if series == nil || series.Len() < 2 {
		return nil, errors.Newf(errors.KindTraining, "training requires at least 2 points")
	}
	cfg.freeze()

	bindings, err := cfg.resolveRegressors(series)
	if err != nil {
		return nil, err
	}
	cal, err := cfg.resolveCalendar()
	if err != nil {
		return nil, err
	}

	spanDays := series.Span().Hours() / 24
	if shortest := cfg.shortestPeriod(); shortest > 0 && spanDays < 2*shortest {
		return nil, errors.Newf(errors.KindTraining,
			"history spans %.1f days; need at least %.1f days to fit the shortest seasonal period",
			spanDays, 2*shortest)
	}

	timestamps := series.Timestamps()
	y := series.Values()
	n := len(y)

	days := make([]float64, n)
	for i, ts := range timestamps {
		days[i] = dayOffset(ts)
	}
	start := days[0]
	span := days[n-1] - start
	if span <= 0 {
		return nil, errors.Newf(errors.KindTraining, "history has no time extent")
	}
	taus := make([]float64, n)
	for i, d := range days {
		taus[i] = (d - start) / span
	}

	if err := ctx.Err(); err != nil {
		return nil, errors.Wrapf(errors.KindTraining, err, "fit canceled")
	}

	changepoints := scaledChangepoints(taus, cfg.Changepoints())
	trendX, trendPenalties := trendDesign(taus, changepoints, cfg.ChangepointPriorScale())
	trendBeta, err := solveRidge(trendX, y, trendPenalties)
	if err != nil {
		return nil, errors.Wrapf(errors.KindTraining, err, "fitting trend")
	}

	trend := trendParams{
		K:            trendBeta[0],
		M:            trendBeta[1],
		Deltas:       append([]float64(nil), trendBeta[2:]...),
		Changepoints: changepoints,
		StartDay:     start,
		SpanDays:     span,
	}
	trendValues := make([]float64, n)
	for i, d := range days {
		trendValues[i] = trend.at(d)
	}

	if err := ctx.Err(); err != nil {
		return nil, errors.Wrapf(errors.KindTraining, err, "fit canceled")
	}

	regValues := make(map[string][]float64, len(bindings))
	for _, b := range bindings {
		col := series.Regressor(b.Name)
		fillRegressorGaps(col)
		regValues[b.Name] = col
	}

	seasonal := cfg.Seasonal()
	design := buildComponentDesign(componentInputs{
		timestamps: timestamps,
		days:       days,
		trend:      trendValues,
		mode:       cfg.Mode(),
		seasonal:   seasonal,
		holidayCal: cal,
		holidayPri: cfg.HolidaysPriorScale(),
		regressors: bindings,
		regValues:  regValues,
	})

	detrended := make([]float64, n)
	for i := range y {
		detrended[i] = y[i] - trendValues[i]
	}

	params := modelParams{
		Mode:       cfg.Mode(),
		Trend:      trend,
		Holidays:   holidayParams{Country: cfg.HolidayCountry()},
		Regressors: regressorParams{Bindings: bindings},
	}
	fitted := append([]float64(nil), trendValues...)

	if design.X != nil {
		beta, err := solveRidge(design.X, detrended, design.penalties)
		if err != nil {
			return nil, errors.Wrapf(errors.KindTraining, err, "fitting components")
		}
		for _, comp := range seasonal {
			b, _ := design.block(comp.Name)
			params.Seasonal = append(params.Seasonal, seasonalParams{
				Component: comp,
				Beta:      append([]float64(nil), beta[b.start:b.start+b.width]...),
			})
		}
		if b, ok := design.block("holidays"); ok {
			params.Holidays.Names = design.holidayNames
			params.Holidays.Beta = append([]float64(nil), beta[b.start:b.start+b.width]...)
		}
		if b, ok := design.block("regressors"); ok {
			params.Regressors.Beta = append([]float64(nil), beta[b.start:b.start+b.width]...)
			params.Regressors.Means = design.regMeans
			params.Regressors.Stds = design.regStds
		}
		_, cols := design.X.Dims()
		for i := 0; i < n; i++ {
			contribution := 0.0
			for j := 0; j < cols; j++ {
				contribution += design.X.At(i, j) * beta[j]
			}
			fitted[i] += contribution
		}
	}

	residuals := make([]float64, n)
	for i := range y {
		residuals[i] = y[i] - fitted[i]
	}
	params.NoiseScale = populationStd(residuals)

	if err := ctx.Err(); err != nil {
		return nil, errors.Wrapf(errors.KindTraining, err, "fit canceled")
	}

	model := &FittedModel{
		id:       uuid.NewString(),
		name:     name,
		fittedAt: time.Now().UTC(),
		config:   cfg,
		snapshot: cfg.snapshot(),
		params:   params,
		training: series.Clone(),
	}
	model.outcome = trainingMetricsOutcome(y, fitted, logger)

	logger.WithFields(logrus.Fields{
		"model_id":     model.id,
		"model_name":   name,
		"points":       n,
		"span_days":    math.Round(spanDays*10) / 10,
		"seasonal":     len(params.Seasonal),
		"regressors":   len(bindings),
		"holidays":     len(params.Holidays.Names),
		"changepoints": len(changepoints),
		"mode":         string(cfg.Mode()),
	}).Info("Model fitted")

	return model, nil
}

// fillRegressorGaps imputes any NaN left in a regressor column with the
// column mean of the observed cells.
func fillRegressorGaps(values []float64) {
	sum, count := 0.0, 0
	for _, v := range values {
		if !math.IsNaN(v) {
			sum += v
			count++
		}
	}
	if count == 0 {
		for i := range values {
			values[i] = 0
		}
		return
	}
	mean := sum / float64(count)
	for i, v := range values {
		if math.IsNaN(v) {
			values[i] = mean
		}
	}
}

func discardLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func populationStd(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	ss := 0.0
	for _, v := range values {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(values)))
}
