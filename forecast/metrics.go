package forecast

import (
	"math"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"business-forecasting-engine/errors"
)

// mapeEpsilon floors the MAPE denominator so zero actuals produce a large
// finite error instead of a division by zero.
const mapeEpsilon = 2.220446049250313e-16

// meanAbsolutePercentageError is the mean of |y-yhat| / max(eps, |y|).
func meanAbsolutePercentageError(actual, predicted []float64) float64 {
	sum := 0.0
	for i := range actual {
		den := math.Abs(actual[i])
		if den < mapeEpsilon {
			den = mapeEpsilon
		}
		sum += math.Abs(actual[i]-predicted[i]) / den
	}
	return sum / float64(len(actual))
}

func rootMeanSquaredError(actual, predicted []float64) float64 {
	sum := 0.0
	for i := range actual {
		d := actual[i] - predicted[i]
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(actual)))
}

func meanAbsoluteError(actual, predicted []float64) float64 {
	sum := 0.0
	for i := range actual {
		sum += math.Abs(actual[i] - predicted[i])
	}
	return sum / float64(len(actual))
}

// rSquared is the squared Pearson correlation between actuals and
// predictions. It is NaN when either side is constant.
func rSquared(actual, predicted []float64) float64 {
	r := stat.Correlation(actual, predicted, nil)
	return r * r
}

// computeTrainingMetrics evaluates all four accuracy measures on aligned
// actual and predicted slices.
func computeTrainingMetrics(actual, predicted []float64) (TrainingMetrics, error) {
	if len(actual) == 0 {
		return TrainingMetrics{}, errors.Newf(errors.KindTraining, "no points to score")
	}
	if len(actual) != len(predicted) {
		return TrainingMetrics{}, errors.Newf(errors.KindTraining,
			"actual and predicted lengths differ: %d vs %d", len(actual), len(predicted))
	}
	return TrainingMetrics{
		MAPE: meanAbsolutePercentageError(actual, predicted),
		RMSE: rootMeanSquaredError(actual, predicted),
		MAE:  meanAbsoluteError(actual, predicted),
		R2:   rSquared(actual, predicted),
	}, nil
}

// trainingMetricsOutcome wraps the metrics step in an explicit outcome so a
// scoring problem degrades the report instead of failing the fit.
func trainingMetricsOutcome(actual, predicted []float64, logger *logrus.Logger) MetricsOutcome {
	metrics, err := computeTrainingMetrics(actual, predicted)
	if err != nil {
		logger.WithError(err).Warn("Training metrics computation failed")
		return MetricsOutcome{Status: MetricsFailed, Reason: err.Error()}
	}
	status := MetricsSucceeded
	for _, v := range []float64{metrics.MAPE, metrics.RMSE, metrics.MAE, metrics.R2} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			status = MetricsPartial
			break
		}
	}
	outcome := MetricsOutcome{Status: status, Metrics: metrics}
	if status == MetricsPartial {
		outcome.Reason = "one or more metrics are not finite"
	}
	return outcome
}
