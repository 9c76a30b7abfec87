package ingest

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minos-eval/minos/pkg/domain"
	"github.com/minos-eval/minos/pkg/erebus"
)

func TestClassifyKeys(t *testing.T) {
	keys := ClassifyKeys([]string{
		"energy/README.md",
		"energy/baselines.csv",
		"energy/feature_importance.csv",
		"energy/predictions.csv",
		"energy/predictions_old.csv",
	})
	assert.Equal(t, Keys{
		Predictions: "energy/predictions.csv",
		Baselines:   "energy/baselines.csv",
		Features:    "energy/feature_importance.csv",
	}, keys)
}

func TestLoader_Read(t *testing.T) {
	l := NewLoader(DefaultSchema(), nil, nil)
	ds, err := l.Read(context.Background(), Inputs{
		Predictions: strings.NewReader(predictionsCSV),
		Baselines:   strings.NewReader(baselinesCSV),
		Features:    strings.NewReader("Feature,Importance\nlag_1,0.9\n"),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, ds.Records.Len())
	assert.Equal(t, []string{"Naive", "Ridge"}, ds.Records.Baselines())
	require.Len(t, ds.Importance, 1)
	assert.Equal(t, "lag_1", ds.Importance[0].Feature)
}

func TestLoader_ReadWithoutOptionalInputs(t *testing.T) {
	l := NewLoader(DefaultSchema(), nil, nil)
	ds, err := l.Read(context.Background(), Inputs{Predictions: strings.NewReader(predictionsCSV)})
	require.NoError(t, err)
	assert.Nil(t, ds.Importance)
	assert.Empty(t, ds.Records.Baselines())

	_, err = l.Read(context.Background(), Inputs{})
	assert.ErrorIs(t, err, domain.ErrEmptyInput)
}

func TestLoader_ReadPropagatesParseErrors(t *testing.T) {
	l := NewLoader(DefaultSchema(), nil, nil)
	_, err := l.Read(context.Background(), Inputs{
		Predictions: strings.NewReader(predictionsCSV),
		Baselines:   strings.NewReader("Timestamp,Naive\n2024-01-01,1\n"),
	})
	assert.ErrorIs(t, err, domain.ErrSchemaMismatch)
}

func TestLoader_LoadPrefix(t *testing.T) {
	ctx := context.Background()
	store, err := erebus.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "energy/predictions.csv", strings.NewReader(predictionsCSV)))
	require.NoError(t, store.Put(ctx, "energy/baselines.csv", strings.NewReader(baselinesCSV)))
	require.NoError(t, store.Put(ctx, "solar/predictions.csv", strings.NewReader("Date,y_true,q10,q50,q90\n")))

	l := NewLoader(DefaultSchema(), store, nil)
	ds, keys, err := l.LoadPrefix(ctx, "energy/")
	require.NoError(t, err)
	assert.Equal(t, "energy/predictions.csv", keys.Predictions)
	assert.Equal(t, "energy/baselines.csv", keys.Baselines)
	assert.Empty(t, keys.Features)
	assert.Equal(t, 3, ds.Records.Len())

	_, _, err = l.LoadPrefix(ctx, "wind/")
	assert.ErrorIs(t, err, domain.ErrEmptyInput)
}

func TestObservationsToDataset(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	obs := []domain.Observation{
		{Timestamp: t0.Add(time.Hour), Actual: 2, MedianForecast: 2, LowerBound: 1, UpperBound: 3,
			Baselines: map[string]float64{"Ridge": 2.5}},
		{Timestamp: t0, Actual: 1, MedianForecast: 1, LowerBound: 0, UpperBound: 2,
			Baselines: map[string]float64{"Naive": 0.5, "Ridge": 1.5}},
	}

	ds, err := ObservationsToDataset(obs, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Naive", "Ridge"}, ds.Records.Baselines())
	assert.Equal(t, []float64{1, 2}, ds.Records.Actuals())

	naive, err := ds.Records.Column("Naive")
	require.NoError(t, err)
	assert.Equal(t, 0.5, naive[0])
	assert.True(t, domain.IsMissing(naive[1]))

	ds, err = ObservationsToDataset(obs, []string{"Ridge"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Ridge"}, ds.Records.Baselines())
}
