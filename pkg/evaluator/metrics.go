package evaluator

import (
	"fmt"
	"math"

	"github.com/minos-eval/minos/pkg/domain"
)

// PointMetrics holds the accuracy metrics of one forecast column.
type PointMetrics struct {
	Column              domain.ColumnID     `json:"column"`
	Samples             int                 `json:"samples"`
	MAE                 domain.MetricResult `json:"mae"`  // Mean Absolute Error
	RMSE                domain.MetricResult `json:"rmse"` // Root Mean Square Error
	R2                  domain.MetricResult `json:"r2"`
	DirectionalAccuracy domain.MetricResult `json:"directional_accuracy"`
}

// CalculatePointMetrics computes accuracy metrics of column against the actuals of rs.
// Records where the column holds the missing marker are skipped.
func CalculatePointMetrics(rs *domain.RecordSet, column domain.ColumnID) (*PointMetrics, error) {
	actuals, forecasts, err := pairs(rs, column)
	if err != nil {
		return nil, err
	}

	var sumAbsError float64
	var sumSquaredError float64
	var sumActual float64
	var sameSign int
	constant := true

	n := float64(len(actuals))

	for i, act := range actuals {
		pred := forecasts[i]

		err := act - pred
		sumAbsError += math.Abs(err)
		sumSquaredError += err * err
		sumActual += act

		if sign(act) == sign(pred) {
			sameSign++
		}
		if act != actuals[0] {
			constant = false
		}
	}

	result := &PointMetrics{
		Column:              column,
		Samples:             len(actuals),
		MAE:                 domain.DefinedMetric("mae", sumAbsError/n, len(actuals)),
		RMSE:                domain.DefinedMetric("rmse", math.Sqrt(sumSquaredError/n), len(actuals)),
		DirectionalAccuracy: domain.DefinedMetric("directional_accuracy", float64(sameSign)/n, len(actuals)),
	}

	mean := sumActual / n
	var sumSquaredTotal float64
	for _, act := range actuals {
		d := act - mean
		sumSquaredTotal += d * d
	}
	if constant || sumSquaredTotal == 0 {
		result.R2 = domain.UndefinedMetric("r2", len(actuals), "actual series has zero variance")
	} else {
		result.R2 = domain.DefinedMetric("r2", 1-sumSquaredError/sumSquaredTotal, len(actuals))
	}

	return result, nil
}

// pairs returns the aligned (actual, forecast) values of column with missing forecasts dropped.
func pairs(rs *domain.RecordSet, column domain.ColumnID) ([]float64, []float64, error) {
	if rs.Len() == 0 {
		return nil, nil, fmt.Errorf("column %q: %w", column, domain.ErrEmptyInput)
	}
	forecasts, err := rs.Column(column)
	if err != nil {
		return nil, nil, err
	}
	actuals := rs.Actuals()

	usedActuals := make([]float64, 0, len(actuals))
	usedForecasts := make([]float64, 0, len(actuals))
	for i, f := range forecasts {
		if domain.IsMissing(f) {
			continue
		}
		usedActuals = append(usedActuals, actuals[i])
		usedForecasts = append(usedForecasts, f)
	}
	if len(usedActuals) == 0 {
		return nil, nil, fmt.Errorf("column %q has no usable values: %w", column, domain.ErrEmptyInput)
	}
	return usedActuals, usedForecasts, nil
}

// sign returns -1, 0 or 1. Zero is a class of its own.
func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
