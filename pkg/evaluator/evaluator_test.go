package evaluator

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minos-eval/minos/pkg/domain"
)

var testStart = time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC) // a Monday

// newRecordSet builds an hourly record set; baselines maps a model name to its column.
func newRecordSet(t *testing.T, actual, pred, lo, hi []float64, baselines map[string][]float64, order ...string) *domain.RecordSet {
	t.Helper()
	records := make([]domain.Observation, len(actual))
	for i := range actual {
		records[i] = domain.Observation{
			Timestamp:      testStart.Add(time.Duration(i) * time.Hour),
			Actual:         actual[i],
			MedianForecast: pred[i],
			LowerBound:     lo[i],
			UpperBound:     hi[i],
			Baselines:      map[string]float64{},
		}
		for name, col := range baselines {
			records[i].Baselines[name] = col[i]
		}
	}
	rs, err := domain.NewRecordSet(records, order)
	require.NoError(t, err)
	return rs
}

func scenarioRecordSet(t *testing.T) *domain.RecordSet {
	return newRecordSet(t,
		[]float64{1, 2, 5},
		[]float64{1, 3, 4},
		[]float64{0, 1, 3},
		[]float64{2, 4, 6},
		nil)
}

func TestCalculatePointMetrics_Scenario(t *testing.T) {
	pm, err := CalculatePointMetrics(scenarioRecordSet(t), domain.MedianColumn)
	require.NoError(t, err)

	assert.Equal(t, 3, pm.Samples)
	assert.InDelta(t, 0.667, pm.MAE.Value, 1e-3)
	assert.InDelta(t, math.Sqrt(2.0/3.0), pm.RMSE.Value, 1e-12)
	require.True(t, pm.R2.Defined)
	// mean actual 8/3, SS_tot = 14/3, SS_res = 2
	assert.InDelta(t, 1-2/(14.0/3.0), pm.R2.Value, 1e-12)
	assert.Equal(t, 1.0, pm.DirectionalAccuracy.Value)
}

func TestCalculatePointMetrics_Properties(t *testing.T) {
	cases := []struct {
		name   string
		actual []float64
		pred   []float64
	}{
		{"Scenario", []float64{1, 2, 5}, []float64{1, 3, 4}},
		{"EqualErrors", []float64{1, 2, 3, 4}, []float64{2, 3, 4, 5}},
		{"MixedSigns", []float64{-3, 0, 2.5, 7}, []float64{1, -1, 2, 9}},
		{"Large", []float64{1e6, -1e6, 3e5}, []float64{1.1e6, -0.9e6, 2e5}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			zeros := make([]float64, len(tc.actual))
			rs := newRecordSet(t, tc.actual, tc.pred, zeros, zeros, nil)

			pm, err := CalculatePointMetrics(rs, domain.MedianColumn)
			require.NoError(t, err)

			assert.GreaterOrEqual(t, pm.MAE.Value, 0.0)
			assert.GreaterOrEqual(t, pm.RMSE.Value, 0.0)
			assert.LessOrEqual(t, pm.MAE.Value, pm.RMSE.Value*(1+1e-12))
			require.True(t, pm.R2.Defined)
			assert.LessOrEqual(t, pm.R2.Value, 1.0)
			assert.Less(t, pm.R2.Value, 1.0)
			assert.GreaterOrEqual(t, pm.DirectionalAccuracy.Value, 0.0)
			assert.LessOrEqual(t, pm.DirectionalAccuracy.Value, 1.0)
		})
	}
}

func TestCalculatePointMetrics_PerfectForecast(t *testing.T) {
	actual := []float64{1, 4, 2, 8}
	rs := newRecordSet(t, actual, actual, actual, actual, nil)

	pm, err := CalculatePointMetrics(rs, domain.MedianColumn)
	require.NoError(t, err)
	assert.Equal(t, 0.0, pm.MAE.Value)
	assert.Equal(t, 0.0, pm.RMSE.Value)
	require.True(t, pm.R2.Defined)
	assert.Equal(t, 1.0, pm.R2.Value)
}

func TestCalculatePointMetrics_ConstantActuals(t *testing.T) {
	rs := newRecordSet(t, []float64{3, 3, 3}, []float64{2, 3, 4}, []float64{0, 0, 0}, []float64{5, 5, 5}, nil)

	pm, err := CalculatePointMetrics(rs, domain.MedianColumn)
	require.NoError(t, err)
	assert.False(t, pm.R2.Defined)
	assert.NotEmpty(t, pm.R2.Reason)
	assert.ErrorIs(t, pm.R2.Err(), domain.ErrDegenerateMetric)
	assert.True(t, pm.MAE.Defined)
}

func TestCalculatePointMetrics_ZeroSignIsItsOwnClass(t *testing.T) {
	rs := newRecordSet(t,
		[]float64{0, 0, 1, -1},
		[]float64{0, 0.5, 2, 1},
		[]float64{0, 0, 0, 0}, []float64{0, 0, 0, 0}, nil)

	pm, err := CalculatePointMetrics(rs, domain.MedianColumn)
	require.NoError(t, err)
	// (0,0) and (1,2) agree; (0,0.5) and (-1,1) do not.
	assert.Equal(t, 0.5, pm.DirectionalAccuracy.Value)
}

func TestCalculatePointMetrics_MissingBaselineValues(t *testing.T) {
	rs := newRecordSet(t,
		[]float64{1, 2, 3},
		[]float64{1, 2, 3},
		[]float64{0, 0, 0}, []float64{4, 4, 4},
		map[string][]float64{"Ridge": {2, domain.Missing(), 4}}, "Ridge")

	pm, err := CalculatePointMetrics(rs, "Ridge")
	require.NoError(t, err)
	assert.Equal(t, 2, pm.Samples)
	assert.Equal(t, 2, pm.MAE.Samples)
	assert.Equal(t, 1.0, pm.MAE.Value)
}

func TestCalculatePointMetrics_Errors(t *testing.T) {
	empty, err := domain.NewRecordSet(nil, nil)
	require.NoError(t, err)
	_, err = CalculatePointMetrics(empty, domain.MedianColumn)
	assert.ErrorIs(t, err, domain.ErrEmptyInput)

	_, err = CalculatePointMetrics(scenarioRecordSet(t), "Random Forest")
	assert.ErrorIs(t, err, domain.ErrSchemaMismatch)

	allMissing := newRecordSet(t, []float64{1}, []float64{1}, []float64{0}, []float64{2},
		map[string][]float64{"Ridge": {domain.Missing()}}, "Ridge")
	_, err = CalculatePointMetrics(allMissing, "Ridge")
	assert.ErrorIs(t, err, domain.ErrEmptyInput)
}

func TestCalculateIntervalMetrics(t *testing.T) {
	im, err := CalculateIntervalMetrics(scenarioRecordSet(t))
	require.NoError(t, err)
	assert.Equal(t, 1.0, im.PICP.Value)
	assert.Equal(t, 3, im.Covered)
	assert.Equal(t, []float64{2, 3, 3}, im.Widths)
	assert.Equal(t, 2.0, im.Width.Min)
	assert.Equal(t, 3.0, im.Width.Max)
	assert.InDelta(t, 8.0/3.0, im.Width.Mean, 1e-12)
	assert.LessOrEqual(t, im.Width.Min, im.Width.Q1)
	assert.LessOrEqual(t, im.Width.Q1, im.Width.Median)
	assert.LessOrEqual(t, im.Width.Median, im.Width.Q3)
	assert.LessOrEqual(t, im.Width.Q3, im.Width.Max)
	assert.Zero(t, im.Width.Negative)
}

func TestCalculateIntervalMetrics_BoundsAreInclusive(t *testing.T) {
	rs := newRecordSet(t,
		[]float64{0, 2, 5, 10},
		[]float64{0, 0, 0, 0},
		[]float64{0, 1, 6, 4},
		[]float64{1, 2, 7, 3},
		nil)

	im, err := CalculateIntervalMetrics(rs)
	require.NoError(t, err)
	assert.Equal(t, 0.5, im.PICP.Value)
	assert.GreaterOrEqual(t, im.PICP.Value, 0.0)
	assert.LessOrEqual(t, im.PICP.Value, 1.0)
	// lower > upper on the last record shows up as a negative width
	assert.Equal(t, 1, im.Width.Negative)
	assert.Equal(t, -1.0, im.Width.Min)

	assert.Equal(t, []bool{true, true, false, false}, CoverageIndicator(rs))
}

func TestCalculateIntervalMetrics_ConstantWidths(t *testing.T) {
	rs := newRecordSet(t,
		[]float64{1, 2, 3, 4, 5},
		[]float64{1, 2, 3, 4, 5},
		[]float64{0, 1, 2, 3, 4},
		[]float64{2, 3, 4, 5, 6},
		nil)

	im, err := CalculateIntervalMetrics(rs)
	require.NoError(t, err)
	assert.Equal(t, WidthSummary{Min: 2, Q1: 2, Median: 2, Q3: 2, Max: 2, Mean: 2}, im.Width)
}

func TestCalculateIntervalMetrics_Empty(t *testing.T) {
	empty, err := domain.NewRecordSet(nil, nil)
	require.NoError(t, err)
	_, err = CalculateIntervalMetrics(empty)
	assert.ErrorIs(t, err, domain.ErrEmptyInput)
}

func TestRankImportance_Scenario(t *testing.T) {
	entries := []domain.ImportanceEntry{{Feature: "a", Importance: 0.1}, {Feature: "b", Importance: 0.9}, {Feature: "c", Importance: 0.5}}

	ranked, err := RankImportance(entries, 2)
	require.NoError(t, err)
	assert.Equal(t, []domain.ImportanceEntry{{Feature: "b", Importance: 0.9}, {Feature: "c", Importance: 0.5}}, ranked)

	// input untouched
	assert.Equal(t, "a", entries[0].Feature)
}

func TestRankImportance_Edges(t *testing.T) {
	entries := []domain.ImportanceEntry{
		{Feature: "x", Importance: math.NaN()},
		{Feature: "y", Importance: 0.3},
		{Feature: "z", Importance: 0.3},
		{Feature: "w", Importance: -0.2},
	}

	all, err := RankImportance(entries, 10)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, []string{"y", "z", "w", "x"}, features(all))

	none, err := RankImportance(entries, 0)
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = RankImportance(entries, -1)
	assert.ErrorIs(t, err, domain.ErrInvalidParameter)
}

func features(entries []domain.ImportanceEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Feature
	}
	return out
}

func TestCalculateBreakdown(t *testing.T) {
	// Hours 0..25 from a Monday midnight: hours 0 and 1 repeat on Tuesday.
	n := 26
	actual := make([]float64, n)
	pred := make([]float64, n)
	lo := make([]float64, n)
	hi := make([]float64, n)
	for i := range actual {
		actual[i] = float64(i)
		pred[i] = float64(i) + 1
		lo[i] = float64(i) - 1
		hi[i] = float64(i) + 1
	}
	hi[25] = 0 // not covered

	b, err := CalculateBreakdown(newRecordSet(t, actual, pred, lo, hi, nil))
	require.NoError(t, err)

	require.Len(t, b.Hourly, 24)
	assert.Equal(t, 0, b.Hourly[0].Bucket)
	assert.Equal(t, "00:00", b.Hourly[0].Label)
	assert.Equal(t, 2, b.Hourly[0].Samples)
	assert.Equal(t, 1.0, b.Hourly[0].MAE)
	assert.Equal(t, 0.5, b.Hourly[1].PICP)
	assert.Equal(t, 1, b.Hourly[2].Samples)

	require.Len(t, b.Daily, 2)
	assert.Equal(t, "Monday", b.Daily[0].Label)
	assert.Equal(t, 24, b.Daily[0].Samples)
	assert.Equal(t, "Tuesday", b.Daily[1].Label)
	assert.Equal(t, 0.5, b.Daily[1].PICP)
}
