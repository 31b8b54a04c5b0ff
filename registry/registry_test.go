package registry

import (
	"context"
	stderrors "errors"
	"math"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"business-forecasting-engine/dataset"
	"business-forecasting-engine/errors"
	"business-forecasting-engine/forecast"
)

func testRegistry(t *testing.T, ttl time.Duration) (*Registry, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return New(client, ttl, nil), mr
}

func fitNamedModel(t *testing.T, name string) *forecast.FittedModel {
	t.Helper()
	cfg := forecast.NewConfiguration()
	require.NoError(t, cfg.SetUncertaintySamples(20))

	start := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	points := make([]dataset.TimePoint, 90)
	for i := range points {
		points[i] = dataset.TimePoint{
			Timestamp: start.Add(time.Duration(i) * 24 * time.Hour),
			Value:     200 + 0.3*float64(i) + 15*math.Sin(2*math.Pi*float64(i)/7),
		}
	}
	series := &dataset.PreparedSeries{Points: points, TargetColumn: "orders", TimestampColumn: "date"}

	model, err := forecast.New(name, cfg, nil).Fit(context.Background(), series)
	require.NoError(t, err)
	return model
}

func TestPutGetRoundTrip(t *testing.T) {
	reg, _ := testRegistry(t, time.Hour)
	ctx := context.Background()
	model := fitNamedModel(t, "orders")

	require.NoError(t, reg.Put(ctx, model))

	loaded, err := reg.Get(ctx, model.ID())
	require.NoError(t, err)
	assert.Equal(t, model.ID(), loaded.ID())
	assert.Equal(t, "orders", loaded.Name())
	assert.Equal(t, model.TrainingSamples(), loaded.TrainingSamples())

	opts := forecast.PredictOptions{Periods: 7}
	original, err := model.Predict(ctx, opts)
	require.NoError(t, err)
	restored, err := loaded.Predict(ctx, opts)
	require.NoError(t, err)
	for i := range original.Rows {
		assert.Equal(t, original.Rows[i].Predicted, restored.Rows[i].Predicted)
		assert.Equal(t, original.Rows[i].Lower, restored.Rows[i].Lower)
		assert.Equal(t, original.Rows[i].Upper, restored.Rows[i].Upper)
	}
}

func TestGetUnknownModel(t *testing.T) {
	reg, _ := testRegistry(t, time.Hour)

	_, err := reg.Get(context.Background(), "no-such-id")
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, ErrNotFound))
	assert.True(t, errors.IsKind(err, errors.KindPersistence))
}

func TestModelExpiry(t *testing.T) {
	reg, mr := testRegistry(t, time.Minute)
	ctx := context.Background()
	model := fitNamedModel(t, "ephemeral")

	require.NoError(t, reg.Put(ctx, model))
	_, err := reg.Get(ctx, model.ID())
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	_, err = reg.Get(ctx, model.ID())
	assert.True(t, stderrors.Is(err, ErrNotFound))

	// The expired entry disappears from listings and from the index.
	summaries, err := reg.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, summaries)
}

func TestDelete(t *testing.T) {
	reg, _ := testRegistry(t, time.Hour)
	ctx := context.Background()
	model := fitNamedModel(t, "short-lived")

	require.NoError(t, reg.Put(ctx, model))
	require.NoError(t, reg.Delete(ctx, model.ID()))

	_, err := reg.Get(ctx, model.ID())
	assert.True(t, stderrors.Is(err, ErrNotFound))

	err = reg.Delete(ctx, model.ID())
	assert.True(t, stderrors.Is(err, ErrNotFound))
}

func TestListSummaries(t *testing.T) {
	reg, _ := testRegistry(t, time.Hour)
	ctx := context.Background()

	beta := fitNamedModel(t, "beta-metric")
	alpha := fitNamedModel(t, "alpha-metric")
	require.NoError(t, reg.Put(ctx, beta))
	require.NoError(t, reg.Put(ctx, alpha))

	summaries, err := reg.List(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, "alpha-metric", summaries[0].ModelName)
	assert.Equal(t, "beta-metric", summaries[1].ModelName)
	for _, s := range summaries {
		assert.Equal(t, forecast.ModelType, s.ModelType)
		require.NotNil(t, s.TrainingMetrics)
		require.NotNil(t, s.Metadata)
	}
}

func TestSummaryByID(t *testing.T) {
	reg, _ := testRegistry(t, time.Hour)
	ctx := context.Background()
	model := fitNamedModel(t, "summarized")
	require.NoError(t, reg.Put(ctx, model))

	summary, err := reg.Summary(ctx, model.ID())
	require.NoError(t, err)
	assert.Equal(t, "summarized", summary.ModelName)
	assert.Equal(t, "orders", summary.TargetColumn)
}

func TestPutRefreshesTTL(t *testing.T) {
	reg, mr := testRegistry(t, time.Minute)
	ctx := context.Background()
	model := fitNamedModel(t, "refreshed")

	require.NoError(t, reg.Put(ctx, model))
	mr.FastForward(45 * time.Second)
	require.NoError(t, reg.Put(ctx, model))
	mr.FastForward(45 * time.Second)

	_, err := reg.Get(ctx, model.ID())
	assert.NoError(t, err, "TTL should restart on each put")
}
