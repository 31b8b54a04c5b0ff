package forecast

import (
	"encoding/json"
	"time"

	"business-forecasting-engine/dataset"
	"business-forecasting-engine/errors"
)

// fittedModelJSON is the serialized form of a FittedModel. The frozen
// configuration travels with the parameters so a loaded model can keep
// serving summaries and cross-checks without refitting.
type fittedModelJSON struct {
	ID       string                  `json:"id"`
	Name     string                  `json:"name"`
	FittedAt time.Time               `json:"fitted_at"`
	Config   configSnapshot          `json:"config"`
	Params   modelParams             `json:"params"`
	Training *dataset.PreparedSeries `json:"training"`
	Outcome  MetricsOutcome          `json:"outcome"`
}

// MarshalJSON implements json.Marshaler.
func (m *FittedModel) MarshalJSON() ([]byte, error) {
	return json.Marshal(fittedModelJSON{
		ID:       m.id,
		Name:     m.name,
		FittedAt: m.fittedAt,
		Config:   m.snapshot,
		Params:   m.params,
		Training: m.training,
		Outcome:  m.outcome,
	})
}

// UnmarshalJSON implements json.Unmarshaler, validating that the payload
// describes a complete fitted model.
func (m *FittedModel) UnmarshalJSON(data []byte) error {
	var raw fittedModelJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.Wrapf(errors.KindPersistence, err, "decoding fitted model")
	}
	if raw.ID == "" || raw.Name == "" {
		return errors.Newf(errors.KindPersistence, "fitted model payload is missing its identity")
	}
	if raw.Training == nil || raw.Training.Len() == 0 {
		return errors.Newf(errors.KindPersistence, "fitted model payload has no training data")
	}
	if raw.Params.Trend.SpanDays <= 0 {
		return errors.Newf(errors.KindPersistence, "fitted model payload has no trend parameters")
	}
	m.id = raw.ID
	m.name = raw.Name
	m.fittedAt = raw.FittedAt
	m.snapshot = raw.Config
	m.config = restoreConfiguration(raw.Config)
	m.params = raw.Params
	m.training = raw.Training
	m.outcome = raw.Outcome
	return nil
}
