package api

import (
	"encoding/json"
	stderrors "errors"
	"io/fs"
	"math"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"business-forecasting-engine/dataset"
	"business-forecasting-engine/errors"
	"business-forecasting-engine/forecast"
	"business-forecasting-engine/registry"
)

// ModelConfig carries optional configuration overrides for fit and
// cross-validate requests. Pointer fields distinguish "absent" from a
// meaningful zero: zero changepoints disables trend changes and an empty
// holiday country disables holiday effects.
type ModelConfig struct {
	SeasonalityMode       string                       `json:"seasonality_mode,omitempty"`
	ChangepointPriorScale float64                      `json:"changepoint_prior_scale,omitempty"`
	SeasonalityPriorScale float64                      `json:"seasonality_prior_scale,omitempty"`
	HolidaysPriorScale    float64                      `json:"holidays_prior_scale,omitempty"`
	IntervalWidth         float64                      `json:"interval_width,omitempty"`
	UncertaintySamples    int                          `json:"uncertainty_samples,omitempty"`
	Changepoints          *int                         `json:"changepoints,omitempty"`
	HolidayCountry        *string                      `json:"holiday_country,omitempty"`
	Seasonalities         []forecast.SeasonalComponent `json:"seasonalities,omitempty"`
}

// TrainingInput is the shared data payload of fit and cross-validate
// requests. Exactly one of CSV or Rows supplies the observations.
type TrainingInput struct {
	ModelName       string                   `json:"model_name"`
	CSV             string                   `json:"csv,omitempty"`
	Rows            []map[string]interface{} `json:"rows,omitempty"`
	TimestampColumn string                   `json:"timestamp_column"`
	TargetColumn    string                   `json:"target_column"`
	Regressors      []string                 `json:"regressors,omitempty"`
	Config          *ModelConfig             `json:"config,omitempty"`
}

// FitRequest fits a model from inline data.
type FitRequest struct {
	TrainingInput
}

// FitResponse reports the fitted model. Registered is false when no model
// registry is configured.
type FitResponse struct {
	ModelID    string                `json:"model_id"`
	Registered bool                  `json:"registered"`
	Summary    forecast.ModelSummary `json:"summary"`
}

// CrossValidateRequest runs rolling-origin evaluation on inline data.
// Window sizes are whole days; zeros take the engine defaults.
type CrossValidateRequest struct {
	TrainingInput
	HorizonDays int `json:"horizon_days,omitempty"`
	InitialDays int `json:"initial_days,omitempty"`
	PeriodDays  int `json:"period_days,omitempty"`
	Workers     int `json:"workers,omitempty"`
}

// CrossValidateResponse wraps the evaluation result.
type CrossValidateResponse struct {
	ModelName string `json:"model_name"`
	*forecast.CrossValidationResult
}

// ModelListResponse lists registered model summaries.
type ModelListResponse struct {
	Models []forecast.ModelSummary `json:"models"`
	Count  int                     `json:"count"`
}

type errorResponse struct {
	Error string      `json:"error"`
	Kind  errors.Kind `json:"kind"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// statusForError maps engine error kinds onto HTTP status codes. Registry
// misses surface as 404, other persistence failures as 500.
func statusForError(err error) int {
	switch errors.KindOf(err) {
	case errors.KindDataValidation, errors.KindConfiguration, errors.KindPrediction:
		return http.StatusBadRequest
	case errors.KindTraining:
		return http.StatusUnprocessableEntity
	case errors.KindPersistence:
		if stderrors.Is(err, registry.ErrNotFound) || stderrors.Is(err, fs.ErrNotExist) {
			return http.StatusNotFound
		}
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		s.logger.WithError(err).Error("Request failed")
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Kind: errors.KindOf(err)})
}

// rowsToFrame converts JSON row objects into a Frame. Columns are ordered
// by name; a column must hold numbers or strings uniformly, with nulls
// becoming missing values.
func rowsToFrame(rows []map[string]interface{}) (*dataset.Frame, error) {
	if len(rows) == 0 {
		return nil, errors.Newf(errors.KindDataValidation, "rows must not be empty")
	}

	seen := make(map[string]bool)
	var order []string
	for _, row := range rows {
		for key := range row {
			if !seen[key] {
				seen[key] = true
				order = append(order, key)
			}
		}
	}
	sort.Strings(order)

	frame := dataset.NewFrame()
	for _, name := range order {
		numeric := make([]float64, len(rows))
		strs := make([]string, len(rows))
		isNumeric, isString := true, true
		for i, row := range rows {
			v, ok := row[name]
			if !ok || v == nil {
				numeric[i] = math.NaN()
				continue
			}
			switch t := v.(type) {
			case float64:
				numeric[i] = t
				isString = false
			case string:
				strs[i] = t
				isNumeric = false
			default:
				return nil, errors.Newf(errors.KindDataValidation, "column %q has unsupported value type %T", name, v)
			}
		}
		if !isNumeric && !isString {
			return nil, errors.Newf(errors.KindDataValidation, "column %q mixes numbers and strings", name)
		}
		var err error
		if isNumeric {
			err = frame.AddNumericColumn(name, numeric)
		} else {
			err = frame.AddStringColumn(name, strs)
		}
		if err != nil {
			return nil, err
		}
	}
	return frame, nil
}

// applyModelConfig transfers request overrides onto a fresh configuration.
func applyModelConfig(cfg *forecast.ModelConfiguration, mc *ModelConfig) error {
	if mc.SeasonalityMode != "" {
		if err := cfg.SetSeasonalityMode(forecast.SeasonalityMode(mc.SeasonalityMode)); err != nil {
			return err
		}
	}
	if mc.ChangepointPriorScale != 0 {
		if err := cfg.SetChangepointPriorScale(mc.ChangepointPriorScale); err != nil {
			return err
		}
	}
	if mc.SeasonalityPriorScale != 0 {
		if err := cfg.SetSeasonalityPriorScale(mc.SeasonalityPriorScale); err != nil {
			return err
		}
	}
	if mc.HolidaysPriorScale != 0 {
		if err := cfg.SetHolidaysPriorScale(mc.HolidaysPriorScale); err != nil {
			return err
		}
	}
	if mc.IntervalWidth != 0 {
		if err := cfg.SetIntervalWidth(mc.IntervalWidth); err != nil {
			return err
		}
	}
	if mc.UncertaintySamples != 0 {
		if err := cfg.SetUncertaintySamples(mc.UncertaintySamples); err != nil {
			return err
		}
	}
	if mc.Changepoints != nil {
		if err := cfg.SetChangepoints(*mc.Changepoints); err != nil {
			return err
		}
	}
	if mc.HolidayCountry != nil {
		if err := cfg.SetHolidayCountry(*mc.HolidayCountry); err != nil {
			return err
		}
	}
	if len(mc.Seasonalities) > 0 {
		// Requested components replace the defaults outright.
		for _, comp := range cfg.Seasonal() {
			if err := cfg.RemoveSeasonality(comp.Name); err != nil {
				return err
			}
		}
		for _, comp := range mc.Seasonalities {
			if err := cfg.AddSeasonality(comp); err != nil {
				return err
			}
		}
	}
	return nil
}

// prepareInput turns a training payload into a prepared series plus a
// configuration with all overrides applied.
func (s *Server) prepareInput(in TrainingInput) (*dataset.PreparedSeries, *forecast.ModelConfiguration, error) {
	if in.TimestampColumn == "" || in.TargetColumn == "" {
		return nil, nil, errors.Newf(errors.KindDataValidation, "timestamp_column and target_column are required")
	}

	var (
		frame *dataset.Frame
		err   error
	)
	switch {
	case in.CSV != "" && len(in.Rows) > 0:
		return nil, nil, errors.Newf(errors.KindDataValidation, "csv and rows are mutually exclusive")
	case in.CSV != "":
		frame, err = dataset.ReadCSV(strings.NewReader(in.CSV), nil, s.logger)
	case len(in.Rows) > 0:
		frame, err = rowsToFrame(in.Rows)
	default:
		return nil, nil, errors.Newf(errors.KindDataValidation, "csv or rows is required")
	}
	if err != nil {
		return nil, nil, err
	}

	series, err := dataset.NewPreprocessor(s.logger).Prepare(frame, in.TimestampColumn, in.TargetColumn)
	if err != nil {
		return nil, nil, err
	}

	cfg := forecast.NewConfiguration()
	if in.Config != nil {
		if err := applyModelConfig(cfg, in.Config); err != nil {
			return nil, nil, err
		}
	}
	for _, name := range in.Regressors {
		if err := cfg.AddRegressor(name, 0); err != nil {
			return nil, nil, err
		}
	}
	return series, cfg, nil
}

// fitModel fits a forecasting model from inline data and registers it.
func (s *Server) fitModel(w http.ResponseWriter, r *http.Request) {
	var req FitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, errors.Wrapf(errors.KindDataValidation, err, "invalid JSON"))
		return
	}
	if req.ModelName == "" {
		s.writeError(w, errors.Newf(errors.KindDataValidation, "model_name is required"))
		return
	}

	series, cfg, err := s.prepareInput(req.TrainingInput)
	if err != nil {
		s.writeError(w, err)
		return
	}

	start := time.Now()
	model, err := forecast.New(req.ModelName, cfg, s.logger).Fit(r.Context(), series)
	s.metrics.RecordFit(err, time.Since(start))
	if err != nil {
		s.writeError(w, err)
		return
	}

	registered := false
	if s.store != nil {
		if err := s.store.Put(r.Context(), model); err != nil {
			s.writeError(w, err)
			return
		}
		registered = true
	}

	fields := logrus.Fields{"model_id": model.ID(), "model_name": model.Name(), "registered": registered}
	if id := ClientID(r.Context()); id != "" {
		fields["client_id"] = id
	}
	s.logger.WithFields(fields).Info("Model fitted via API")

	writeJSON(w, http.StatusCreated, FitResponse{
		ModelID:    model.ID(),
		Registered: registered,
		Summary:    model.Summary(),
	})
}

// predict generates a forecast from a registered model.
func (s *Server) predict(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "model registry unavailable"})
		return
	}

	model, err := s.store.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}

	var opts forecast.PredictOptions
	if err := json.NewDecoder(r.Body).Decode(&opts); err != nil {
		s.writeError(w, errors.Wrapf(errors.KindDataValidation, err, "invalid JSON"))
		return
	}

	fc, err := model.Predict(r.Context(), opts)
	if err != nil {
		s.metrics.RecordPrediction(err, 0)
		s.writeError(w, err)
		return
	}
	s.metrics.RecordPrediction(nil, len(fc.Rows))

	writeJSON(w, http.StatusOK, fc)
}

// crossValidate evaluates a configuration on inline data without keeping
// any of the fold models.
func (s *Server) crossValidate(w http.ResponseWriter, r *http.Request) {
	var req CrossValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, errors.Wrapf(errors.KindDataValidation, err, "invalid JSON"))
		return
	}

	series, cfg, err := s.prepareInput(req.TrainingInput)
	if err != nil {
		s.writeError(w, err)
		return
	}

	name := req.ModelName
	if name == "" {
		name = req.TargetColumn
	}

	opts := forecast.CrossValidationOptions{
		Horizon: time.Duration(req.HorizonDays) * 24 * time.Hour,
		Initial: time.Duration(req.InitialDays) * 24 * time.Hour,
		Period:  time.Duration(req.PeriodDays) * 24 * time.Hour,
		Workers: req.Workers,
	}
	result, err := forecast.New(name, cfg, s.logger).CrossValidate(r.Context(), series, opts)
	s.metrics.RecordCrossValidation(err)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, CrossValidateResponse{ModelName: name, CrossValidationResult: result})
}

// listModels returns summaries of all registered models.
func (s *Server) listModels(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "model registry unavailable"})
		return
	}

	summaries, err := s.store.List(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.metrics.SetModelsCached(len(summaries))

	if summaries == nil {
		summaries = []forecast.ModelSummary{}
	}
	writeJSON(w, http.StatusOK, ModelListResponse{Models: summaries, Count: len(summaries)})
}

// getModel returns one model summary.
func (s *Server) getModel(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "model registry unavailable"})
		return
	}

	summary, err := s.store.Summary(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// deleteModel evicts a model from the registry.
func (s *Server) deleteModel(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "model registry unavailable"})
		return
	}

	id := mux.Vars(r)["id"]
	if err := s.store.Delete(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}

	fields := logrus.Fields{"model_id": id}
	if client := ClientID(r.Context()); client != "" {
		fields["client_id"] = client
	}
	s.logger.WithFields(fields).Info("Model deleted via API")

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "model_id": id})
}

// healthCheck returns liveness status.
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.started).String(),
	})
}

// detailedHealth additionally reports dependency status and registry size.
func (s *Server) detailedHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	services := map[string]string{"engine": "healthy"}

	modelCount := -1
	switch {
	case s.store == nil:
		services["registry"] = "not_configured"
	case s.store.Ping(r.Context()) != nil:
		services["registry"] = "unavailable"
		status = "degraded"
	default:
		services["registry"] = "healthy"
		if summaries, err := s.store.List(r.Context()); err == nil {
			modelCount = len(summaries)
			s.metrics.SetModelsCached(modelCount)
		}
	}

	resp := map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.started).String(),
		"services":  services,
	}
	if modelCount >= 0 {
		resp["models_cached"] = modelCount
	}
	writeJSON(w, http.StatusOK, resp)
}

// rootHandler provides API information.
func (s *Server) rootHandler(w http.ResponseWriter, r *http.Request) {
	info := map[string]interface{}{
		"name":        "Business Forecasting Engine",
		"version":     "0.1.0",
		"description": "Decomposition-based forecasting for business metrics with uncertainty intervals",
		"endpoints": map[string]string{
			"POST /api/v1/forecast/fit":            "Fit a model from inline data",
			"POST /api/v1/forecast/{id}/predict":   "Generate a forecast from a registered model",
			"POST /api/v1/forecast/cross-validate": "Rolling-origin cross-validation",
			"GET  /api/v1/models":                  "List registered models",
			"GET  /api/v1/models/{id}":             "Model summary",
			"DELETE /api/v1/models/{id}":           "Evict a model",
			"GET  /health":                         "Health check",
			"GET  /health/detailed":                "Health with dependency status",
			"GET  /metrics":                        "Prometheus metrics",
		},
	}
	writeJSON(w, http.StatusOK, info)
}
