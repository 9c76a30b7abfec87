package themis

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minos-eval/minos/pkg/domain"
	"github.com/minos-eval/minos/pkg/evaluator"
)

func sampleReport() *evaluator.EvaluationReport {
	r := evaluator.NewEvaluationReport("run-1", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	r.Samples = 100
	r.TargetCoverage = 0.8
	r.Point = &evaluator.PointMetrics{
		Column:              domain.MedianColumn,
		Samples:             100,
		MAE:                 domain.DefinedMetric("mae", 1.2, 100),
		RMSE:                domain.DefinedMetric("rmse", 1.5, 100),
		R2:                  domain.DefinedMetric("r2", 0.7, 100),
		DirectionalAccuracy: domain.DefinedMetric("directional_accuracy", 0.6, 99),
	}
	r.Interval = &evaluator.IntervalMetrics{PICP: domain.DefinedMetric("picp", 0.78, 100), Covered: 78}
	r.Leaderboard = &evaluator.Leaderboard{
		Reference: "Naive",
		Entries: []evaluator.LeaderboardEntry{
			{Rank: 1, Model: domain.MedianColumn, RelativeImprovement: domain.DefinedMetric("relative_improvement", 0.25, 100)},
			{Rank: 2, Model: "Naive", RelativeImprovement: domain.DefinedMetric("relative_improvement", 0, 100)},
		},
	}
	return r
}

func TestDefaultGates_Pass(t *testing.T) {
	ev, err := NewGateEvaluator(DefaultGates())
	require.NoError(t, err)
	assert.Equal(t, 3, ev.Len())

	results := ev.Evaluate(sampleReport())
	require.Len(t, results, 3)
	for _, r := range results {
		assert.True(t, r.Passed, "%s: %s", r.Gate, r.Error)
	}
	assert.True(t, Passed(results))
}

func TestDefaultGates_Fail(t *testing.T) {
	ev, err := NewGateEvaluator(DefaultGates())
	require.NoError(t, err)

	report := sampleReport()
	report.Interval.PICP = domain.DefinedMetric("picp", 0.5, 100)
	report.Leaderboard.Entries[0].RelativeImprovement = domain.DefinedMetric("relative_improvement", -0.1, 100)

	results := ev.Evaluate(report)
	byGate := map[string]bool{}
	for _, r := range results {
		byGate[r.Gate] = r.Passed
	}
	assert.False(t, byGate["coverage"])
	assert.True(t, byGate["explains_variance"])
	assert.False(t, byGate["beats_reference"])
	assert.False(t, Passed(results))
}

func TestDefaultGates_UndefinedMetricsPass(t *testing.T) {
	ev, err := NewGateEvaluator(DefaultGates())
	require.NoError(t, err)

	report := sampleReport()
	report.Point.R2 = domain.UndefinedMetric("r2", 100, "constant actuals")
	report.Interval = nil
	report.Leaderboard = nil

	assert.True(t, Passed(ev.Evaluate(report)))
}

func TestNewGateEvaluator_Invalid(t *testing.T) {
	tests := []struct {
		name string
		expr string
	}{
		{"syntax", `mae <`},
		{"unknown variable", `mape < 0.1`},
		{"not bool", `mae + 1.0`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewGateEvaluator([]Gate{{Name: "g", Expression: tt.expr}})
			assert.ErrorIs(t, err, domain.ErrInvalidParameter)
		})
	}

	ev, err := NewGateEvaluator([]Gate{{Name: "off", Expression: `mae <`, Disabled: true}})
	require.NoError(t, err, "disabled gates are not compiled")
	assert.Equal(t, 0, ev.Len())
}

func TestGateEvaluator_RuntimeError(t *testing.T) {
	ev, err := NewGateEvaluator([]Gate{{Name: "ridge", Expression: `improvement["Ridge"] > 0.0`}})
	require.NoError(t, err)

	results := ev.Evaluate(sampleReport())
	require.Len(t, results, 1)
	assert.False(t, results[0].Passed)
	assert.NotEmpty(t, results[0].Error)
}

func TestGateEvaluator_CustomVariables(t *testing.T) {
	ev, err := NewGateEvaluator([]Gate{
		{Name: "enough_data", Expression: `samples >= 100 && failures == 0`},
		{Name: "direction", Expression: `defined["directional_accuracy"] && directional_accuracy > 0.5`},
		{Name: "error_ratio", Expression: `rmse / mae < 2.0`},
	})
	require.NoError(t, err)
	assert.True(t, Passed(ev.Evaluate(sampleReport())))
}

func TestLoadGates(t *testing.T) {
	doc := `
gates:
  - name: coverage
    expr: picp >= 0.7
    description: minimum coverage
  - name: accuracy
    expr: mae < 2.0
`
	gates, err := LoadGates(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, gates, 2)
	assert.Equal(t, "coverage", gates[0].Name)
	assert.Equal(t, "picp >= 0.7", gates[0].Expression)
	assert.Equal(t, "minimum coverage", gates[0].Description)

	ev, err := NewGateEvaluator(gates)
	require.NoError(t, err)
	assert.True(t, Passed(ev.Evaluate(sampleReport())))
}

func TestLoadGates_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"empty", ""},
		{"no name", "gates:\n  - expr: mae < 1.0\n"},
		{"no expr", "gates:\n  - name: a\n"},
		{"duplicate", "gates:\n  - name: a\n    expr: 'true'\n  - name: a\n    expr: 'false'\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadGates(strings.NewReader(tt.doc))
			assert.ErrorIs(t, err, domain.ErrInvalidParameter)
		})
	}

	_, err := LoadGates(strings.NewReader("gates:\n  - name: a\n    expression: mae\n"))
	assert.Error(t, err, "unknown fields are rejected")
}

func TestLoadGatesFile_DefaultsWhenUnset(t *testing.T) {
	gates, err := LoadGatesFile("")
	require.NoError(t, err)
	assert.Equal(t, DefaultGates(), gates)
}
