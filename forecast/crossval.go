package forecast

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"business-forecasting-engine/dataset"
	"business-forecasting-engine/errors"
)

// Cross-validation defaults for daily business metrics: a year of warmup,
// monthly cutoffs, a month of evaluation per fold.
const (
	DefaultCVHorizon = 30 * 24 * time.Hour
	DefaultCVInitial = 365 * 24 * time.Hour
	DefaultCVPeriod  = 30 * 24 * time.Hour
)

// CrossValidationOptions shape the rolling-origin evaluation. Zero durations
// take the defaults; zero Workers uses one worker per CPU, capped at the
// fold count.
type CrossValidationOptions struct {
	Horizon time.Duration `json:"horizon"`
	Initial time.Duration `json:"initial"`
	Period  time.Duration `json:"period"`
	Workers int           `json:"workers,omitempty"`
}

func (o CrossValidationOptions) withDefaults() CrossValidationOptions {
	if o.Horizon == 0 {
		o.Horizon = DefaultCVHorizon
	}
	if o.Initial == 0 {
		o.Initial = DefaultCVInitial
	}
	if o.Period == 0 {
		o.Period = DefaultCVPeriod
	}
	return o
}

// CVPoint is one evaluated observation of a fold.
type CVPoint struct {
	Timestamp   time.Time `json:"timestamp"`
	Actual      float64   `json:"actual"`
	Predicted   float64   `json:"predicted"`
	Lower       float64   `json:"lower"`
	Upper       float64   `json:"upper"`
	HorizonDays int       `json:"horizon_days"`
}

// CVFold is one rolling-origin split: a model fitted on everything up to
// the cutoff, scored on the window right after it.
type CVFold struct {
	Cutoff         time.Time    `json:"cutoff"`
	TrainingPoints int          `json:"training_points"`
	Points         []CVPoint    `json:"points"`
	Model          *FittedModel `json:"-"`
}

// HorizonPerformance aggregates fold errors by forecast distance in days.
type HorizonPerformance struct {
	HorizonDays int     `json:"horizon_days"`
	Points      int     `json:"points"`
	MAPE        float64 `json:"mape"`
	RMSE        float64 `json:"rmse"`
	MAE         float64 `json:"mae"`
	Coverage    float64 `json:"coverage"`
}

// CrossValidationResult is the complete rolling-origin evaluation.
type CrossValidationResult struct {
	Cutoffs     []time.Time          `json:"cutoffs"`
	Folds       []CVFold             `json:"folds"`
	Performance []HorizonPerformance `json:"performance"`
}

// CrossValidate runs rolling-origin evaluation of the forecaster's
// configuration over the prepared series. Cutoffs start one initial window
// after the series start and advance by the period for as long as a full
// horizon of data remains. Folds run concurrently; any fold error or a
// context cancellation fails the whole run.
func (f *Forecaster) CrossValidate(ctx context.Context, series *dataset.PreparedSeries, opts CrossValidationOptions) (*CrossValidationResult, error) {
	if series == nil || series.Len() == 0 {
		return nil, errors.Newf(errors.KindTraining, "cross-validation requires a prepared series")
	}
	opts = opts.withDefaults()
	if opts.Horizon <= 0 || opts.Initial <= 0 || opts.Period <= 0 {
		return nil, errors.Newf(errors.KindConfiguration,
			"cross-validation horizon, initial and period must all be positive")
	}

	start, end := series.Start(), series.End()
	var cutoffs []time.Time
	for c := start.Add(opts.Initial); !c.Add(opts.Horizon).After(end); c = c.Add(opts.Period) {
		cutoffs = append(cutoffs, c)
	}
	if len(cutoffs) == 0 {
		return nil, errors.Newf(errors.KindTraining,
			"history spanning %s is too short for one fold (initial %s + horizon %s)",
			end.Sub(start), opts.Initial, opts.Horizon)
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(cutoffs) {
		workers = len(cutoffs)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	folds := make([]CVFold, len(cutoffs))
	jobs := make(chan int)
	var wg sync.WaitGroup
	var errMu sync.Mutex
	var firstErr error

	fail := func(err error) {
		errMu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		errMu.Unlock()
		cancel()
	}

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				if runCtx.Err() != nil {
					return
				}
				fold, err := f.runFold(runCtx, series, cutoffs[idx], opts.Horizon, idx)
				if err != nil {
					fail(err)
					return
				}
				folds[idx] = fold
			}
		}()
	}

	for idx := range cutoffs {
		select {
		case jobs <- idx:
		case <-runCtx.Done():
		}
	}
	close(jobs)
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrapf(errors.KindTraining, err, "cross-validation canceled")
	}

	result := &CrossValidationResult{
		Cutoffs:     cutoffs,
		Folds:       folds,
		Performance: aggregateByHorizon(folds),
	}

	total := 0
	for _, fold := range folds {
		total += len(fold.Points)
	}
	f.logger.WithFields(logrus.Fields{
		"model_name":   f.name,
		"folds":        len(folds),
		"points":       total,
		"horizon_days": opts.Horizon.Hours() / 24,
		"initial_days": opts.Initial.Hours() / 24,
		"period_days":  opts.Period.Hours() / 24,
	}).Info("Cross-validation complete")

	return result, nil
}

// runFold fits on the training window up to the cutoff and scores the
// points inside (cutoff, cutoff+horizon].
func (f *Forecaster) runFold(ctx context.Context, series *dataset.PreparedSeries, cutoff time.Time, horizon time.Duration, idx int) (CVFold, error) {
	train := series.Window(series.Start(), cutoff)

	foldName := fmt.Sprintf("%s-cv%02d", f.name, idx)
	model, err := fitModel(ctx, foldName, f.config, train, f.logger)
	if err != nil {
		return CVFold{}, errors.Wrapf(errors.KindTraining, err, "fold %d (cutoff %s)", idx, cutoff.Format("2006-01-02"))
	}

	var evalPoints []dataset.TimePoint
	for _, p := range series.Points {
		if p.Timestamp.After(cutoff) && !p.Timestamp.After(cutoff.Add(horizon)) {
			evalPoints = append(evalPoints, p)
		}
	}

	fold := CVFold{
		Cutoff:         cutoff,
		TrainingPoints: train.Len(),
		Model:          model,
	}
	if len(evalPoints) == 0 {
		return fold, nil
	}

	grid := make([]gridPoint, len(evalPoints))
	regs := make([]map[string]float64, len(evalPoints))
	for i, p := range evalPoints {
		grid[i] = gridPoint{ts: p.Timestamp}
		regs[i] = p.Regressors
	}
	rows, err := model.forecastRows(ctx, grid, regs, model.snapshot.UncertaintySamples, model.snapshot.IntervalWidth, DefaultPredictSeed)
	if err != nil {
		return CVFold{}, errors.Wrapf(errors.KindTraining, err, "scoring fold %d", idx)
	}

	fold.Points = make([]CVPoint, len(rows))
	for i, row := range rows {
		fold.Points[i] = CVPoint{
			Timestamp:   row.Timestamp,
			Actual:      evalPoints[i].Value,
			Predicted:   row.Predicted,
			Lower:       row.Lower,
			Upper:       row.Upper,
			HorizonDays: int(math.Ceil(row.Timestamp.Sub(cutoff).Hours() / 24)),
		}
	}
	return fold, nil
}

// aggregateByHorizon groups every fold point by forecast distance and
// computes the error measures and interval coverage per group.
func aggregateByHorizon(folds []CVFold) []HorizonPerformance {
	type bucket struct {
		actual    []float64
		predicted []float64
		covered   int
	}
	buckets := make(map[int]*bucket)
	for _, fold := range folds {
		for _, p := range fold.Points {
			b := buckets[p.HorizonDays]
			if b == nil {
				b = &bucket{}
				buckets[p.HorizonDays] = b
			}
			b.actual = append(b.actual, p.Actual)
			b.predicted = append(b.predicted, p.Predicted)
			if p.Actual >= p.Lower && p.Actual <= p.Upper {
				b.covered++
			}
		}
	}

	horizons := make([]int, 0, len(buckets))
	for h := range buckets {
		horizons = append(horizons, h)
	}
	sort.Ints(horizons)

	out := make([]HorizonPerformance, 0, len(horizons))
	for _, h := range horizons {
		b := buckets[h]
		out = append(out, HorizonPerformance{
			HorizonDays: h,
			Points:      len(b.actual),
			MAPE:        meanAbsolutePercentageError(b.actual, b.predicted),
			RMSE:        rootMeanSquaredError(b.actual, b.predicted),
			MAE:         meanAbsoluteError(b.actual, b.predicted),
			Coverage:    float64(b.covered) / float64(len(b.actual)),
		})
	}
	return out
}
