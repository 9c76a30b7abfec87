package evaluator

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/minos-eval/minos/pkg/domain"
)

// WidthSummary describes the distribution of prediction interval widths.
type WidthSummary struct {
	Min      float64 `json:"min"`
	Q1       float64 `json:"q1"`
	Median   float64 `json:"median"`
	Q3       float64 `json:"q3"`
	Max      float64 `json:"max"`
	Mean     float64 `json:"mean"`
	Negative int     `json:"negative"` // widths below zero, i.e. lower > upper
}

// IntervalMetrics holds the calibration metrics of the prediction interval.
type IntervalMetrics struct {
	PICP    domain.MetricResult `json:"picp"` // Prediction Interval Coverage Probability
	Covered int                 `json:"covered"`
	Widths  []float64           `json:"widths"`
	Width   WidthSummary        `json:"width"`
}

// CoverageIndicator reports per record whether lower <= actual <= upper.
func CoverageIndicator(rs *domain.RecordSet) []bool {
	actuals := rs.Actuals()
	lower := rs.LowerBounds()
	upper := rs.UpperBounds()

	covered := make([]bool, len(actuals))
	for i, act := range actuals {
		covered[i] = act >= lower[i] && act <= upper[i]
	}
	return covered
}

// CalculateIntervalMetrics computes PICP and the width distribution of rs.
func CalculateIntervalMetrics(rs *domain.RecordSet) (*IntervalMetrics, error) {
	if rs.Len() == 0 {
		return nil, fmt.Errorf("interval metrics: %w", domain.ErrEmptyInput)
	}

	var coverageCount int
	for _, c := range CoverageIndicator(rs) {
		if c {
			coverageCount++
		}
	}

	lower := rs.LowerBounds()
	upper := rs.UpperBounds()
	widths := make([]float64, len(lower))
	floats.SubTo(widths, upper, lower)

	n := rs.Len()
	return &IntervalMetrics{
		PICP:    domain.DefinedMetric("picp", float64(coverageCount)/float64(n), n),
		Covered: coverageCount,
		Widths:  widths,
		Width:   summarizeWidths(widths),
	}, nil
}

// RollingCoverage is the trailing fraction of covered records over w points.
func RollingCoverage(rs *domain.RecordSet, w int) (domain.Series, error) {
	if rs.Len() == 0 {
		return domain.Series{}, fmt.Errorf("rolling coverage: %w", domain.ErrEmptyInput)
	}
	return RollingFraction(fmt.Sprintf("rolling_picp_%d", w), CoverageIndicator(rs), w)
}

func summarizeWidths(widths []float64) WidthSummary {
	sorted := append([]float64(nil), widths...)
	sort.Float64s(sorted)

	summary := WidthSummary{
		Min:    floats.Min(sorted),
		Q1:     stat.Quantile(0.25, stat.LinInterp, sorted, nil),
		Median: stat.Quantile(0.5, stat.LinInterp, sorted, nil),
		Q3:     stat.Quantile(0.75, stat.LinInterp, sorted, nil),
		Max:    floats.Max(sorted),
		Mean:   stat.Mean(sorted, nil),
	}
	for _, w := range sorted {
		if w < 0 {
			summary.Negative++
		}
	}
	return summary
}
