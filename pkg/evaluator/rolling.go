package evaluator

import (
	"fmt"
	"math"

	"github.com/minos-eval/minos/pkg/domain"
)

// RollingMean computes the strictly trailing mean of x over w points. Position i holds
// mean(x[i-w .. i-1]) and never includes x[i]; positions i < w have no value.
// Missing entries in x are left out of the mean; a window with no present entries has no value.
func RollingMean(name string, x []float64, w int) (domain.Series, error) {
	if w <= 0 {
		return domain.Series{}, fmt.Errorf("rolling window %d must be positive: %w", w, domain.ErrInvalidParameter)
	}

	out := domain.Series{
		Name:   name,
		Values: make([]float64, len(x)),
		Valid:  make([]bool, len(x)),
	}

	// Sum each window afresh so a large value leaving the window leaves no residue.
	for i := w; i < len(x); i++ {
		var sum float64
		var count int
		for _, v := range x[i-w : i] {
			if domain.IsMissing(v) {
				continue
			}
			sum += v
			count++
		}
		if count > 0 {
			out.Values[i] = sum / float64(count)
			out.Valid[i] = true
			out.Samples++
		}
	}
	return out, nil
}

// RollingFraction is RollingMean over a boolean series, true counting as 1.
func RollingFraction(name string, flags []bool, w int) (domain.Series, error) {
	x := make([]float64, len(flags))
	for i, f := range flags {
		if f {
			x[i] = 1
		}
	}
	return RollingMean(name, x, w)
}

// RollingAbsoluteError is the trailing mean absolute error of column over w points.
func RollingAbsoluteError(rs *domain.RecordSet, column domain.ColumnID, w int) (domain.Series, error) {
	if rs.Len() == 0 {
		return domain.Series{}, fmt.Errorf("rolling error: %w", domain.ErrEmptyInput)
	}
	forecasts, err := rs.Column(column)
	if err != nil {
		return domain.Series{}, err
	}
	actuals := rs.Actuals()

	absErrors := make([]float64, len(forecasts))
	for i, f := range forecasts {
		if domain.IsMissing(f) {
			absErrors[i] = domain.Missing()
			continue
		}
		absErrors[i] = math.Abs(actuals[i] - f)
	}
	return RollingMean(fmt.Sprintf("rolling_mae_%d", w), absErrors, w)
}
