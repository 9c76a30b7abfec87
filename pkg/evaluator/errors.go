package evaluator

import (
	"errors"
	"fmt"

	"github.com/minos-eval/minos/pkg/domain"
)

// Component names used in failures and metrics labels.
const (
	ComponentPointMetrics    = "point_metrics"
	ComponentR2              = "point_metrics.r2"
	ComponentIntervalMetrics = "interval_metrics"
	ComponentRollingCoverage = "rolling_coverage"
	ComponentRollingError    = "rolling_error"
	ComponentQuantile        = "quantile_transform"
	ComponentLeaderboard     = "leaderboard"
	ComponentImportance      = "importance"
	ComponentBreakdown       = "breakdown"
)

// Failure kinds.
const (
	KindEmptyInput       = "empty_input"
	KindDegenerateMetric = "degenerate_metric"
	KindSchemaMismatch   = "schema_mismatch"
	KindInvalidParameter = "invalid_parameter"
	KindInternal         = "internal"
)

// ComponentError ties an error to the engine component that produced it.
type ComponentError struct {
	Component string
	Err       error
}

func (e *ComponentError) Error() string {
	return fmt.Sprintf("%s: %v", e.Component, e.Err)
}

func (e *ComponentError) Unwrap() error {
	return e.Err
}

// Kind classifies the wrapped error against the domain sentinels.
func (e *ComponentError) Kind() string {
	return Classify(e.Err)
}

// Classify maps err to one of the failure kinds.
func Classify(err error) string {
	switch {
	case errors.Is(err, domain.ErrEmptyInput):
		return KindEmptyInput
	case errors.Is(err, domain.ErrDegenerateMetric):
		return KindDegenerateMetric
	case errors.Is(err, domain.ErrSchemaMismatch):
		return KindSchemaMismatch
	case errors.Is(err, domain.ErrInvalidParameter):
		return KindInvalidParameter
	default:
		return KindInternal
	}
}

// ComponentFailure is the report-side record of a component that did not produce output.
type ComponentFailure struct {
	Component string `json:"component" yaml:"component"`
	Kind      string `json:"kind" yaml:"kind"`
	Message   string `json:"message" yaml:"message"`
}

func newFailure(component string, err error) ComponentFailure {
	var ce *ComponentError
	if errors.As(err, &ce) {
		component = ce.Component
		err = ce.Err
	}
	return ComponentFailure{
		Component: component,
		Kind:      Classify(err),
		Message:   err.Error(),
	}
}
