package evaluator

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/minos-eval/minos/pkg/domain"
)

// winitzkiA is the constant of Winitzki's closed-form erf approximation.
const winitzkiA = 0.147

const newtonSteps = 2

// Erfinv returns the inverse of the Gauss error function.
// Erfinv(±1) = ±Inf; NaN for |x| > 1 or NaN input.
func Erfinv(x float64) float64 {
	switch {
	case math.IsNaN(x) || x < -1 || x > 1:
		return math.NaN()
	case x == 1:
		return math.Inf(1)
	case x == -1:
		return math.Inf(-1)
	case x == 0:
		return 0
	}

	// Solve on |x| and restore the sign so that Erfinv(-x) == -Erfinv(x) exactly.
	y := math.Abs(x)
	ln := math.Log1p(-y * y)
	t := 2/(math.Pi*winitzkiA) + ln/2
	z := math.Sqrt(math.Sqrt(t*t-ln/winitzkiA) - t)

	for i := 0; i < newtonSteps; i++ {
		deriv := 2 / math.SqrtPi * math.Exp(-z*z)
		if deriv == 0 {
			break
		}
		next := z - (math.Erf(z)-y)/deriv
		if math.IsNaN(next) || math.IsInf(next, 0) {
			break
		}
		z = next
	}

	if x < 0 {
		return -z
	}
	return z
}

// NormalQuantile is the inverse CDF of the standard normal distribution.
func NormalQuantile(p float64) float64 {
	return math.Sqrt2 * Erfinv(2*p-1)
}

// QQPoint pairs a theoretical standard normal quantile with a standardized sample value.
type QQPoint struct {
	Theoretical float64 `json:"theoretical"`
	Sample      float64 `json:"sample"`
}

// QQPlot is the normal quantile-quantile transform of a sample.
type QQPlot struct {
	Points  []QQPoint `json:"points"`
	Mean    float64   `json:"mean"`
	StdDev  float64   `json:"std_dev"` // sample standard deviation, n-1 denominator
	Samples int       `json:"samples"`
}

// QuantileTransform sorts a copy of sample and pairs the i-th value, standardized by the
// sample mean and standard deviation, with the normal quantile at (i + 0.5) / n.
func QuantileTransform(sample []float64) (*QQPlot, error) {
	n := len(sample)
	if n == 0 {
		return nil, fmt.Errorf("quantile transform: %w", domain.ErrEmptyInput)
	}
	if n == 1 {
		return nil, fmt.Errorf("quantile transform needs at least two values: %w", domain.ErrDegenerateMetric)
	}

	sorted := append([]float64(nil), sample...)
	sort.Float64s(sorted)

	mean, std := stat.MeanStdDev(sorted, nil)
	if std == 0 || math.IsNaN(std) {
		return nil, fmt.Errorf("quantile transform: sample has zero variance: %w", domain.ErrDegenerateMetric)
	}

	plot := &QQPlot{
		Points:  make([]QQPoint, n),
		Mean:    mean,
		StdDev:  std,
		Samples: n,
	}
	for i, v := range sorted {
		p := (float64(i) + 0.5) / float64(n)
		plot.Points[i] = QQPoint{
			Theoretical: NormalQuantile(p),
			Sample:      (v - mean) / std,
		}
	}
	return plot, nil
}

// Residuals returns actual - forecast for column, skipping missing forecasts.
func Residuals(rs *domain.RecordSet, column domain.ColumnID) ([]float64, error) {
	actuals, forecasts, err := pairs(rs, column)
	if err != nil {
		return nil, err
	}
	residuals := make([]float64, len(actuals))
	for i := range actuals {
		residuals[i] = actuals[i] - forecasts[i]
	}
	return residuals, nil
}
