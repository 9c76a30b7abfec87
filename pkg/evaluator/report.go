package evaluator

import (
	"time"

	"github.com/minos-eval/minos/pkg/domain"
)

// EvaluationReport contains the results of one engine run. Optional sections are nil when
// their input was absent or the component failed; failures are listed in Failures.
type EvaluationReport struct {
	RunID       string    `json:"run_id"`
	GeneratedAt time.Time `json:"generated_at"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
	Options     Options   `json:"options"`

	Samples        int      `json:"samples"`
	Baselines      []string `json:"baselines"`
	LastForecast   *float64 `json:"last_forecast"`
	TargetCoverage float64  `json:"target_coverage"`

	Point    *PointMetrics    `json:"point_metrics"`
	Interval *IntervalMetrics `json:"interval_metrics"`

	RollingCoverage         *domain.Series `json:"rolling_coverage"`
	RollingError            *domain.Series `json:"rolling_error"`
	CumulativeAbsoluteError *domain.Series `json:"cumulative_absolute_error"`

	QQ          *QQPlot                  `json:"qq_plot"`
	Leaderboard *Leaderboard             `json:"leaderboard"`
	Importance  []domain.ImportanceEntry `json:"importance"`
	Breakdown   *Breakdown               `json:"breakdown"`

	Failures []ComponentFailure `json:"failures"`
}

// NewEvaluationReport creates an empty report
func NewEvaluationReport(runID string, generatedAt time.Time) *EvaluationReport {
	return &EvaluationReport{
		RunID:       runID,
		GeneratedAt: generatedAt,
		Failures:    []ComponentFailure{},
	}
}

// Failed reports whether component recorded a failure.
func (r *EvaluationReport) Failed(component string) bool {
	for _, f := range r.Failures {
		if f.Component == component {
			return true
		}
	}
	return false
}
