package forecast

import (
	"encoding/json"
	"math"
	"time"

	"business-forecasting-engine/dataset"
)

// ModelType identifies the decomposition family in summaries and artifacts.
const ModelType = "prophet_forecasting"

// trendParams is the fitted piecewise-linear trend. Scaled time tau runs
// from 0 at the first training point to 1 at the last.
type trendParams struct {
	K            float64   `json:"k"`
	M            float64   `json:"m"`
	Deltas       []float64 `json:"deltas"`
	Changepoints []float64 `json:"changepoints"`
	StartDay     float64   `json:"start_day"`
	SpanDays     float64   `json:"span_days"`
}

func (t *trendParams) tau(day float64) float64 {
	return (day - t.StartDay) / t.SpanDays
}

func (t *trendParams) at(day float64) float64 {
	tau := t.tau(day)
	v := t.K*tau + t.M
	for j, cp := range t.Changepoints {
		if tau > cp {
			v += t.Deltas[j] * (tau - cp)
		}
	}
	return v
}

// seasonalParams holds the fitted harmonics of one component, interleaved
// sin/cos per order.
type seasonalParams struct {
	Component SeasonalComponent `json:"component"`
	Beta      []float64         `json:"beta"`
}

func (s *seasonalParams) at(day float64, scratch []float64) float64 {
	terms := scratch[:2*s.Component.FourierOrder]
	fourierTerms(day, s.Component.Period, s.Component.FourierOrder, terms)
	v := 0.0
	for i, b := range s.Beta {
		v += b * terms[i]
	}
	return v
}

// holidayParams holds one coefficient per holiday name seen in training.
type holidayParams struct {
	Country string    `json:"country,omitempty"`
	Names   []string  `json:"names,omitempty"`
	Beta    []float64 `json:"beta,omitempty"`
}

// regressorParams holds standardized-scale coefficients plus the location
// and scale used at fit time.
type regressorParams struct {
	Bindings []RegressorBinding `json:"bindings,omitempty"`
	Beta     []float64          `json:"beta,omitempty"`
	Means    []float64          `json:"means,omitempty"`
	Stds     []float64          `json:"stds,omitempty"`
}

func (r *regressorParams) at(values map[string]float64) float64 {
	v := 0.0
	for j, binding := range r.Bindings {
		x, ok := values[binding.Name]
		if !ok || math.IsNaN(x) {
			// Absent future regressor: hold the training mean, which
			// contributes zero on the standardized scale.
			continue
		}
		v += r.Beta[j] * (x - r.Means[j]) / r.Stds[j]
	}
	return v
}

// modelParams is everything needed to evaluate the fitted decomposition.
type modelParams struct {
	Mode       SeasonalityMode  `json:"mode"`
	Trend      trendParams      `json:"trend"`
	Seasonal   []seasonalParams `json:"seasonal"`
	Holidays   holidayParams    `json:"holidays"`
	Regressors regressorParams  `json:"regressors"`
	NoiseScale float64          `json:"noise_scale"`
}

func (p *modelParams) maxFourierOrder() int {
	max := 1
	for _, s := range p.Seasonal {
		if s.Component.FourierOrder > max {
			max = s.Component.FourierOrder
		}
	}
	return max
}

// TrainingMetrics are in-sample accuracy measures on the training window.
// Values may be NaN (for example r2 on a constant series); JSON encodes
// those as null.
type TrainingMetrics struct {
	MAPE float64 `json:"mape"`
	RMSE float64 `json:"rmse"`
	MAE  float64 `json:"mae"`
	R2   float64 `json:"r2"`
}

type trainingMetricsJSON struct {
	MAPE *float64 `json:"mape"`
	RMSE *float64 `json:"rmse"`
	MAE  *float64 `json:"mae"`
	R2   *float64 `json:"r2"`
}

func finiteOrNil(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func nilOrNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

// MarshalJSON encodes non-finite metric values as null.
func (m TrainingMetrics) MarshalJSON() ([]byte, error) {
	return json.Marshal(trainingMetricsJSON{
		MAPE: finiteOrNil(m.MAPE),
		RMSE: finiteOrNil(m.RMSE),
		MAE:  finiteOrNil(m.MAE),
		R2:   finiteOrNil(m.R2),
	})
}

// UnmarshalJSON restores null metric values as NaN.
func (m *TrainingMetrics) UnmarshalJSON(data []byte) error {
	var raw trainingMetricsJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.MAPE = nilOrNaN(raw.MAPE)
	m.RMSE = nilOrNaN(raw.RMSE)
	m.MAE = nilOrNaN(raw.MAE)
	m.R2 = nilOrNaN(raw.R2)
	return nil
}

// MetricsStatus reports how the post-fit metrics step ended.
type MetricsStatus string

const (
	MetricsSucceeded MetricsStatus = "succeeded"
	MetricsPartial   MetricsStatus = "partial"
	MetricsFailed    MetricsStatus = "failed"
)

// MetricsOutcome is the explicit result of the training-metrics step. A
// failed or partial outcome never invalidates the fit itself.
type MetricsOutcome struct {
	Status  MetricsStatus   `json:"status"`
	Reason  string          `json:"reason,omitempty"`
	Metrics TrainingMetrics `json:"metrics"`
}

// ModelParamsSummary is the hyperparameter block reported in summaries and
// stored in artifact metadata.
type ModelParamsSummary struct {
	SeasonalityMode       SeasonalityMode `json:"seasonality_mode"`
	ChangepointPriorScale float64         `json:"changepoint_prior_scale"`
	SeasonalityPriorScale float64         `json:"seasonality_prior_scale"`
	HolidaysPriorScale    float64         `json:"holidays_prior_scale"`
}

// Metadata describes the training run of a fitted model.
type Metadata struct {
	TrainingSamples int                `json:"training_samples"`
	FeatureColumns  []string           `json:"feature_columns"`
	TargetColumn    string             `json:"target_column"`
	TrainingDate    time.Time          `json:"training_date"`
	ModelParams     ModelParamsSummary `json:"model_params"`
}

// ModelSummary is the one-call description of a model's state. An unfitted
// model reports only its name and a not_trained status.
type ModelSummary struct {
	ModelName       string              `json:"model_name"`
	ModelType       string              `json:"model_type,omitempty"`
	Status          string              `json:"status,omitempty"`
	TrainingMetrics *TrainingMetrics    `json:"training_metrics,omitempty"`
	MetricsStatus   MetricsStatus       `json:"metrics_status,omitempty"`
	FeatureColumns  []string            `json:"feature_columns,omitempty"`
	TargetColumn    string              `json:"target_column,omitempty"`
	ModelParams     *ModelParamsSummary `json:"model_params,omitempty"`
	Metadata        *Metadata           `json:"metadata,omitempty"`
}

// FittedModel is the immutable result of a successful fit. All state is
// fixed at construction; every predict call on the same inputs returns the
// same forecast.
type FittedModel struct {
	id       string
	name     string
	fittedAt time.Time
	config   *ModelConfiguration
	snapshot configSnapshot
	params   modelParams
	training *dataset.PreparedSeries
	outcome  MetricsOutcome
}

// ID returns the model's unique identifier.
func (m *FittedModel) ID() string { return m.id }

// Name returns the model's human-readable name.
func (m *FittedModel) Name() string { return m.name }

// FittedAt returns the UTC time the fit completed.
func (m *FittedModel) FittedAt() time.Time { return m.fittedAt }

// Mode returns the seasonality mode the model was fitted with.
func (m *FittedModel) Mode() SeasonalityMode { return m.params.Mode }

// TrainingSamples returns the number of training points.
func (m *FittedModel) TrainingSamples() int { return m.training.Len() }

// TrainingWindow returns the first and last training timestamps.
func (m *FittedModel) TrainingWindow() (start, end time.Time) {
	return m.training.Start(), m.training.End()
}

// FeatureColumns returns the regressor columns the model was fitted with.
func (m *FittedModel) FeatureColumns() []string {
	out := make([]string, 0, len(m.params.Regressors.Bindings))
	for _, b := range m.params.Regressors.Bindings {
		out = append(out, b.Name)
	}
	return out
}

// TargetColumn returns the name of the modeled value column.
func (m *FittedModel) TargetColumn() string { return m.training.TargetColumn }

// Metrics returns the outcome of the in-sample metrics step.
func (m *FittedModel) Metrics() MetricsOutcome { return m.outcome }

// RegressorCoefficients returns the fitted effect of each regressor per
// original unit, keyed by column name.
func (m *FittedModel) RegressorCoefficients() map[string]float64 {
	out := make(map[string]float64, len(m.params.Regressors.Bindings))
	for j, b := range m.params.Regressors.Bindings {
		out[b.Name] = m.params.Regressors.Beta[j] / m.params.Regressors.Stds[j]
	}
	return out
}

// HolidayCoefficients returns the fitted additive effect of each holiday
// observed in the training window, keyed by holiday name.
func (m *FittedModel) HolidayCoefficients() map[string]float64 {
	out := make(map[string]float64, len(m.params.Holidays.Names))
	for j, name := range m.params.Holidays.Names {
		out[name] = m.params.Holidays.Beta[j]
	}
	return out
}

// TrainingData returns a deep copy of the prepared series the model was
// fitted on.
func (m *FittedModel) TrainingData() *dataset.PreparedSeries {
	return m.training.Clone()
}

func (m *FittedModel) paramsSummary() ModelParamsSummary {
	return ModelParamsSummary{
		SeasonalityMode:       m.params.Mode,
		ChangepointPriorScale: m.snapshot.ChangepointPrior,
		SeasonalityPriorScale: m.snapshot.SeasonalityPrior,
		HolidaysPriorScale:    m.snapshot.HolidaysPrior,
	}
}

// Metadata returns the training-run description stored with the model.
func (m *FittedModel) Metadata() Metadata {
	return Metadata{
		TrainingSamples: m.training.Len(),
		FeatureColumns:  m.FeatureColumns(),
		TargetColumn:    m.training.TargetColumn,
		TrainingDate:    m.fittedAt,
		ModelParams:     m.paramsSummary(),
	}
}

// Summary returns the full model description.
func (m *FittedModel) Summary() ModelSummary {
	metrics := m.outcome.Metrics
	params := m.paramsSummary()
	meta := m.Metadata()
	return ModelSummary{
		ModelName:       m.name,
		ModelType:       ModelType,
		Status:          "trained",
		TrainingMetrics: &metrics,
		MetricsStatus:   m.outcome.Status,
		FeatureColumns:  m.FeatureColumns(),
		TargetColumn:    m.training.TargetColumn,
		ModelParams:     &params,
		Metadata:        &meta,
	}
}
