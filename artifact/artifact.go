package artifact

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"business-forecasting-engine/errors"
	"business-forecasting-engine/forecast"
)

// Schema identifies artifact files produced by this engine; Version guards
// the payload layout. Both are checked before the payload is decoded.
const (
	Schema  = "business-forecast-model"
	Version = 1
)

// envelope wraps every artifact so readers can reject foreign or newer
// files without touching the payload.
type envelope struct {
	Schema  string          `json:"schema"`
	Version int             `json:"version"`
	SavedAt time.Time       `json:"saved_at"`
	Payload json.RawMessage `json:"payload"`
}

// Payload is the persisted model bundle. The descriptive fields mirror the
// model so an artifact can be inspected without reconstructing it.
type Payload struct {
	Model           *forecast.FittedModel    `json:"model"`
	FeatureColumns  []string                 `json:"feature_columns"`
	TargetColumn    string                   `json:"target_column"`
	TrainingMetrics forecast.TrainingMetrics `json:"training_metrics"`
	Metadata        forecast.Metadata        `json:"metadata"`
}

// Store reads and writes compressed model artifacts. Writes are atomic: the
// file appears under its final name only once fully written.
type Store struct {
	logger           *logrus.Logger
	compressionLevel int
}

// NewStore creates a store. A nil logger silences output.
func NewStore(logger *logrus.Logger) *Store {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &Store{logger: logger, compressionLevel: gzip.DefaultCompression}
}

// Save writes the fitted model to path, creating parent directories as
// needed. A nil model fails: only fitted models can be persisted.
func (s *Store) Save(path string, model *forecast.FittedModel) error {
	if model == nil {
		return errors.Newf(errors.KindPersistence, "cannot save: model is not fitted")
	}

	payload := Payload{
		Model:           model,
		FeatureColumns:  model.FeatureColumns(),
		TargetColumn:    model.TargetColumn(),
		TrainingMetrics: model.Metrics().Metrics,
		Metadata:        model.Metadata(),
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrapf(errors.KindPersistence, err, "encoding model payload")
	}

	var buf bytes.Buffer
	gz, err := gzip.NewWriterLevel(&buf, s.compressionLevel)
	if err != nil {
		return errors.Wrapf(errors.KindPersistence, err, "creating gzip writer")
	}
	if err := json.NewEncoder(gz).Encode(envelope{
		Schema:  Schema,
		Version: Version,
		SavedAt: time.Now().UTC(),
		Payload: payloadJSON,
	}); err != nil {
		return errors.Wrapf(errors.KindPersistence, err, "encoding artifact envelope")
	}
	if err := gz.Close(); err != nil {
		return errors.Wrapf(errors.KindPersistence, err, "closing gzip writer")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(errors.KindPersistence, err, "creating artifact directory")
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return errors.Wrapf(errors.KindPersistence, err, "creating temp file")
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		cleanup()
		return errors.Wrapf(errors.KindPersistence, err, "writing artifact")
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return errors.Wrapf(errors.KindPersistence, err, "syncing artifact")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrapf(errors.KindPersistence, err, "closing temp file")
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.Wrapf(errors.KindPersistence, err, "replacing artifact")
	}

	s.logger.WithFields(logrus.Fields{
		"path":     path,
		"bytes":    buf.Len(),
		"model_id": model.ID(),
	}).Info("Model artifact saved")
	return nil
}

// Load reads a model artifact. The schema and version are verified before
// the payload is decoded.
func (s *Store) Load(path string) (*forecast.FittedModel, error) {
	payload, err := s.LoadPayload(path)
	if err != nil {
		return nil, err
	}
	return payload.Model, nil
}

// LoadPayload reads the full artifact bundle, including the descriptive
// fields stored beside the model.
func (s *Store) LoadPayload(path string) (*Payload, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(errors.KindPersistence, err, "opening artifact")
	}
	defer file.Close()

	gz, err := gzip.NewReader(file)
	if err != nil {
		return nil, errors.Wrapf(errors.KindPersistence, err, "reading artifact %s", path)
	}
	defer gz.Close()

	var env envelope
	if err := json.NewDecoder(gz).Decode(&env); err != nil {
		return nil, errors.Wrapf(errors.KindPersistence, err, "decoding artifact envelope")
	}
	if env.Schema != Schema {
		return nil, errors.Newf(errors.KindPersistence,
			"artifact schema %q is not %q", env.Schema, Schema)
	}
	if env.Version != Version {
		return nil, errors.Newf(errors.KindPersistence,
			"artifact version %d is not supported (want %d)", env.Version, Version)
	}

	var payload Payload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return nil, errors.Wrapf(errors.KindPersistence, err, "decoding artifact payload")
	}
	if payload.Model == nil {
		return nil, errors.Newf(errors.KindPersistence, "artifact carries no model")
	}

	s.logger.WithFields(logrus.Fields{
		"path":     path,
		"model_id": payload.Model.ID(),
	}).Debug("Model artifact loaded")
	return &payload, nil
}
