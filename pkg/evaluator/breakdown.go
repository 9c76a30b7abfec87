package evaluator

import (
	"fmt"
	"math"
	"time"

	"github.com/minos-eval/minos/pkg/domain"
)

// BucketMetrics summarizes the primary forecast over the records that fall in one calendar bucket.
type BucketMetrics struct {
	Bucket  int     `json:"bucket"`
	Label   string  `json:"label"`
	Samples int     `json:"samples"`
	MAE     float64 `json:"mae"`
	PICP    float64 `json:"picp"`
}

// Breakdown holds the hour-of-day and weekday accuracy of the primary forecast.
// Buckets without records are omitted.
type Breakdown struct {
	Hourly []BucketMetrics `json:"hourly"`
	Daily  []BucketMetrics `json:"daily"`
}

type bucketAccumulator struct {
	samples  int
	absError float64
	covered  int
}

// CalculateBreakdown groups the records of rs by hour of day and by weekday, using the
// timestamps' own location.
func CalculateBreakdown(rs *domain.RecordSet) (*Breakdown, error) {
	if rs.Len() == 0 {
		return nil, fmt.Errorf("breakdown: %w", domain.ErrEmptyInput)
	}

	var hourly [24]bucketAccumulator
	var daily [7]bucketAccumulator

	timestamps := rs.Timestamps()
	actuals := rs.Actuals()
	forecasts, err := rs.Column(domain.MedianColumn)
	if err != nil {
		return nil, err
	}
	covered := CoverageIndicator(rs)

	for i, ts := range timestamps {
		absErr := math.Abs(actuals[i] - forecasts[i])
		for _, acc := range []*bucketAccumulator{&hourly[ts.Hour()], &daily[ts.Weekday()]} {
			acc.samples++
			acc.absError += absErr
			if covered[i] {
				acc.covered++
			}
		}
	}

	b := &Breakdown{}
	for h, acc := range hourly {
		if acc.samples > 0 {
			b.Hourly = append(b.Hourly, acc.metrics(h, fmt.Sprintf("%02d:00", h)))
		}
	}
	for d, acc := range daily {
		if acc.samples > 0 {
			b.Daily = append(b.Daily, acc.metrics(d, time.Weekday(d).String()))
		}
	}
	return b, nil
}

func (a bucketAccumulator) metrics(bucket int, label string) BucketMetrics {
	n := float64(a.samples)
	return BucketMetrics{
		Bucket:  bucket,
		Label:   label,
		Samples: a.samples,
		MAE:     a.absError / n,
		PICP:    float64(a.covered) / n,
	}
}
