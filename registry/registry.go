package registry

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"sort"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"business-forecasting-engine/errors"
	"business-forecasting-engine/forecast"
)

// ErrNotFound reports a model id with no live registry entry, either never
// stored or expired.
var ErrNotFound = stderrors.New("model not found")

// DefaultTTL matches the service default of one hour per cached model.
const DefaultTTL = time.Hour

const (
	modelKeyPrefix = "forecast:model:"
	indexKey       = "forecast:models"
)

// Registry caches fitted models in Redis under a TTL so a fleet of API
// replicas can serve predictions for models fitted elsewhere.
type Registry struct {
	client *redis.Client
	logger *logrus.Logger
	ttl    time.Duration
}

// New creates a registry on an existing Redis client. Zero ttl takes the
// default; a nil logger silences output.
func New(client *redis.Client, ttl time.Duration, logger *logrus.Logger) *Registry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &Registry{client: client, logger: logger, ttl: ttl}
}

// Ping verifies the Redis connection.
func (r *Registry) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return errors.Wrapf(errors.KindPersistence, err, "pinging model registry")
	}
	return nil
}

// Put stores a fitted model under its id, refreshing the TTL.
func (r *Registry) Put(ctx context.Context, model *forecast.FittedModel) error {
	if model == nil {
		return errors.Newf(errors.KindPersistence, "cannot register a nil model")
	}
	data, err := json.Marshal(model)
	if err != nil {
		return errors.Wrapf(errors.KindPersistence, err, "encoding model %s", model.ID())
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, modelKeyPrefix+model.ID(), data, r.ttl)
	pipe.SAdd(ctx, indexKey, model.ID())
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrapf(errors.KindPersistence, err, "storing model %s", model.ID())
	}

	r.logger.WithFields(logrus.Fields{
		"model_id":   model.ID(),
		"model_name": model.Name(),
		"ttl":        r.ttl.String(),
	}).Info("Model registered")
	return nil
}

// Get fetches a model by id. Expired and unknown ids both report
// ErrNotFound.
func (r *Registry) Get(ctx context.Context, id string) (*forecast.FittedModel, error) {
	data, err := r.client.Get(ctx, modelKeyPrefix+id).Bytes()
	if err == redis.Nil {
		return nil, errors.Wrapf(errors.KindPersistence, ErrNotFound, "model %q", id)
	}
	if err != nil {
		return nil, errors.Wrapf(errors.KindPersistence, err, "fetching model %q", id)
	}

	model := &forecast.FittedModel{}
	if err := json.Unmarshal(data, model); err != nil {
		return nil, errors.Wrapf(errors.KindPersistence, err, "decoding model %q", id)
	}
	return model, nil
}

// Summary fetches just the summary of a registered model.
func (r *Registry) Summary(ctx context.Context, id string) (forecast.ModelSummary, error) {
	model, err := r.Get(ctx, id)
	if err != nil {
		return forecast.ModelSummary{}, err
	}
	return model.Summary(), nil
}

// Delete removes a model from the registry.
func (r *Registry) Delete(ctx context.Context, id string) error {
	removed, err := r.client.Del(ctx, modelKeyPrefix+id).Result()
	if err != nil {
		return errors.Wrapf(errors.KindPersistence, err, "deleting model %q", id)
	}
	if err := r.client.SRem(ctx, indexKey, id).Err(); err != nil {
		return errors.Wrapf(errors.KindPersistence, err, "unindexing model %q", id)
	}
	if removed == 0 {
		return errors.Wrapf(errors.KindPersistence, ErrNotFound, "model %q", id)
	}

	r.logger.WithFields(logrus.Fields{"model_id": id}).Info("Model deleted from registry")
	return nil
}

// List returns summaries of all live models sorted by name then training
// date. Index entries whose model key has expired are pruned as a side
// effect.
func (r *Registry) List(ctx context.Context) ([]forecast.ModelSummary, error) {
	ids, err := r.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, errors.Wrapf(errors.KindPersistence, err, "listing models")
	}

	summaries := make([]forecast.ModelSummary, 0, len(ids))
	for _, id := range ids {
		model, err := r.Get(ctx, id)
		if stderrors.Is(err, ErrNotFound) {
			// Expired entry; drop it from the index.
			if err := r.client.SRem(ctx, indexKey, id).Err(); err != nil {
				r.logger.WithError(err).WithField("model_id", id).Warn("Failed to prune expired model")
			}
			continue
		}
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, model.Summary())
	}

	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].ModelName != summaries[j].ModelName {
			return summaries[i].ModelName < summaries[j].ModelName
		}
		return summaries[i].Metadata.TrainingDate.Before(summaries[j].Metadata.TrainingDate)
	})
	return summaries, nil
}
