package evaluator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/minos-eval/minos/pkg/domain"
	"github.com/minos-eval/minos/pkg/hermes"
)

// Metric names recorded by the engine.
const (
	MetricEvaluations       = "minos_evaluations_total"
	MetricComponentFailures = "minos_component_failures_total"
	MetricDuration          = "minos_evaluation_duration_seconds"
	MetricValue             = "minos_metric_value"
)

var metricHelp = map[string]string{
	MetricEvaluations:       "Number of evaluation runs.",
	MetricComponentFailures: "Engine components that did not produce output, by component and kind.",
	MetricDuration:          "Wall time of one evaluation run.",
	MetricValue:             "Last computed value of a metric, by metric and column.",
}

// Options parameterizes one engine run.
type Options struct {
	RollingWindow  int               `json:"rolling_window" yaml:"rolling_window"`
	ErrorWindow    int               `json:"error_window" yaml:"error_window"`
	TopK           int               `json:"top_k" yaml:"top_k"`
	LowerQuantile  float64           `json:"lower_quantile" yaml:"lower_quantile"`
	UpperQuantile  float64           `json:"upper_quantile" yaml:"upper_quantile"`
	TargetCoverage float64           `json:"target_coverage" yaml:"target_coverage"` // zero derives it from the quantile pair
	Reference      domain.ColumnID   `json:"reference,omitempty" yaml:"reference,omitempty"`
	Candidates     []domain.ColumnID `json:"candidates,omitempty" yaml:"candidates,omitempty"`
}

// DefaultOptions returns the settings of the hourly dashboards: a one week coverage window,
// a one day error window and the 10/90 interval.
func DefaultOptions() Options {
	return Options{
		RollingWindow: 168,
		ErrorWindow:   24,
		TopK:          20,
		LowerQuantile: 0.1,
		UpperQuantile: 0.9,
	}
}

// NominalCoverage is the coverage the interval is expected to reach.
func (o Options) NominalCoverage() float64 {
	if o.TargetCoverage > 0 {
		return o.TargetCoverage
	}
	return o.UpperQuantile - o.LowerQuantile
}

// Engine evaluates record sets. It holds no per-run state and is safe for concurrent use.
type Engine struct {
	opts    Options
	logger  hermes.Logger
	metrics hermes.Metrics
	now     func() time.Time
	newID   func() string
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator replaces the random run id.
func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

// NewEngine creates an engine. A nil logger or metrics sink discards output.
func NewEngine(opts Options, logger hermes.Logger, metrics hermes.Metrics, options ...Option) *Engine {
	if logger == nil {
		logger = hermes.NewNoopLogger()
	}
	if metrics == nil {
		metrics = hermes.NewNoopMetrics()
	}
	if d, ok := metrics.(interface{ Describe(name, help string) }); ok {
		for name, help := range metricHelp {
			d.Describe(name, help)
		}
	}

	e := &Engine{
		opts:    opts,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
		newID:   func() string { return uuid.New().String() },
	}
	for _, o := range options {
		o(e)
	}
	return e
}

func (e *Engine) Options() Options {
	return e.opts
}

// WithOptions returns an engine sharing e's logger and metrics but running with opts.
func (e *Engine) WithOptions(opts Options) *Engine {
	cp := *e
	cp.opts = opts
	return &cp
}

// Evaluate runs every component over rs. A component failure is recorded in the report and
// the remaining components still run. importance may be nil; the leaderboard runs only when
// rs declares baselines.
func (e *Engine) Evaluate(ctx context.Context, rs *domain.RecordSet, importance []domain.ImportanceEntry) *EvaluationReport {
	start := e.now()
	report := NewEvaluationReport(e.newID(), start.UTC())
	report.Options = e.opts
	report.Samples = rs.Len()
	report.Baselines = rs.Baselines()
	report.TargetCoverage = e.opts.NominalCoverage()
	report.WindowStart, report.WindowEnd = rs.Span()

	e.logger.Info(ctx, "evaluation started", map[string]any{
		"run_id":    report.RunID,
		"samples":   rs.Len(),
		"baselines": len(report.Baselines),
	})

	fail := func(component string, err error) {
		f := newFailure(component, err)
		report.Failures = append(report.Failures, f)
		e.metrics.IncCounter(MetricComponentFailures, 1,
			hermes.Label{Key: "component", Value: f.Component},
			hermes.Label{Key: "kind", Value: f.Kind})
		e.logger.Warn(ctx, "component failed", map[string]any{
			"run_id":    report.RunID,
			"component": f.Component,
			"kind":      f.Kind,
			"error":     f.Message,
		})
	}

	if rs.Len() > 0 {
		last := rs.At(rs.Len() - 1).MedianForecast
		report.LastForecast = &last
	}

	if pm, err := CalculatePointMetrics(rs, domain.MedianColumn); err != nil {
		fail(ComponentPointMetrics, err)
	} else {
		report.Point = pm
		e.recordPoint(pm)
		if !pm.R2.Defined {
			fail(ComponentR2, &ComponentError{Component: ComponentR2, Err: pm.R2.Err()})
		}
	}

	if im, err := CalculateIntervalMetrics(rs); err != nil {
		fail(ComponentIntervalMetrics, err)
	} else {
		report.Interval = im
		e.gauge("picp", domain.MedianColumn, im.PICP)
	}

	if s, err := RollingCoverage(rs, e.opts.RollingWindow); err != nil {
		fail(ComponentRollingCoverage, err)
	} else {
		report.RollingCoverage = &s
	}

	if s, err := RollingAbsoluteError(rs, domain.MedianColumn, e.opts.ErrorWindow); err != nil {
		fail(ComponentRollingError, err)
	} else {
		report.RollingError = &s
	}
	if s, err := CumulativeAbsoluteError(rs, domain.MedianColumn); err == nil {
		report.CumulativeAbsoluteError = &s
	}

	if residuals, err := Residuals(rs, domain.MedianColumn); err != nil {
		fail(ComponentQuantile, err)
	} else if qq, err := QuantileTransform(residuals); err != nil {
		fail(ComponentQuantile, err)
	} else {
		report.QQ = qq
	}

	if len(report.Baselines) > 0 || len(e.opts.Candidates) > 0 {
		board, err := BuildLeaderboard(rs, LeaderboardOptions{
			Candidates: e.opts.Candidates,
			Reference:  e.opts.Reference,
		})
		if err != nil {
			fail(ComponentLeaderboard, err)
		} else {
			report.Leaderboard = board
			for _, entry := range board.Entries {
				e.metrics.SetGauge(MetricValue, entry.MAE,
					hermes.Label{Key: "metric", Value: "mae"},
					hermes.Label{Key: "column", Value: string(entry.Model)})
			}
		}
	}

	if importance != nil {
		ranked, err := RankImportance(importance, e.opts.TopK)
		if err != nil {
			fail(ComponentImportance, err)
		} else {
			report.Importance = ranked
		}
	}

	if b, err := CalculateBreakdown(rs); err != nil {
		fail(ComponentBreakdown, err)
	} else {
		report.Breakdown = b
	}

	elapsed := e.now().Sub(start)
	e.metrics.IncCounter(MetricEvaluations, 1)
	e.metrics.ObserveHistogram(MetricDuration, elapsed.Seconds())

	e.logger.Info(ctx, "evaluation finished", map[string]any{
		"run_id":      report.RunID,
		"failures":    len(report.Failures),
		"duration_ms": elapsed.Milliseconds(),
	})
	return report
}

func (e *Engine) recordPoint(pm *PointMetrics) {
	for _, m := range []domain.MetricResult{pm.MAE, pm.RMSE, pm.R2, pm.DirectionalAccuracy} {
		e.gauge(m.Name, pm.Column, m)
	}
}

func (e *Engine) gauge(metric string, column domain.ColumnID, m domain.MetricResult) {
	if !m.Defined {
		return
	}
	e.metrics.SetGauge(MetricValue, m.Value,
		hermes.Label{Key: "metric", Value: metric},
		hermes.Label{Key: "column", Value: string(column)})
}

// String summarizes the options for logs.
func (o Options) String() string {
	return fmt.Sprintf("window=%d error_window=%d top_k=%d interval=[%.2f,%.2f] reference=%q",
		o.RollingWindow, o.ErrorWindow, o.TopK, o.LowerQuantile, o.UpperQuantile, o.Reference)
}
