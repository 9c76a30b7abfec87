package themis

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/cel-go/cel"
	"gopkg.in/yaml.v3"

	"github.com/minos-eval/minos/pkg/domain"
	"github.com/minos-eval/minos/pkg/evaluator"
)

// Gate is a named CEL condition a report must satisfy.
type Gate struct {
	Name        string `yaml:"name" json:"name"`
	Expression  string `yaml:"expr" json:"expr"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Disabled    bool   `yaml:"disabled,omitempty" json:"disabled,omitempty"`
}

// GateResult is the outcome of one gate. Error is set when the expression could not be
// evaluated against the report, which counts as a failure.
type GateResult struct {
	Gate   string `json:"gate" yaml:"gate"`
	Passed bool   `json:"passed" yaml:"passed"`
	Error  string `json:"error,omitempty" yaml:"error,omitempty"`
}

type gateFile struct {
	Gates []Gate `yaml:"gates"`
}

// DefaultGates returns the gates applied when no gates file is configured.
func DefaultGates() []Gate {
	return []Gate{
		{
			Name:        "coverage",
			Expression:  `!defined["picp"] || (picp >= target_coverage - 0.05 && picp <= target_coverage + 0.05)`,
			Description: "interval coverage within 5 points of the nominal coverage",
		},
		{
			Name:        "explains_variance",
			Expression:  `!defined["r2"] || r2 > 0.0`,
			Description: "median forecast beats predicting the mean",
		},
		{
			Name:        "beats_reference",
			Expression:  `!("median_forecast" in improvement) || improvement["median_forecast"] >= 0.0`,
			Description: "median forecast is no worse than the reference model",
		},
	}
}

// LoadGates decodes a YAML document of the form `gates: [{name, expr, description}]`.
func LoadGates(r io.Reader) ([]Gate, error) {
	var f gateFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("gates file is empty: %w", domain.ErrInvalidParameter)
		}
		return nil, fmt.Errorf("failed to parse gates: %w", err)
	}

	seen := make(map[string]bool, len(f.Gates))
	for i, g := range f.Gates {
		if g.Name == "" {
			return nil, fmt.Errorf("gate %d has no name: %w", i, domain.ErrInvalidParameter)
		}
		if g.Expression == "" {
			return nil, fmt.Errorf("gate %q has no expression: %w", g.Name, domain.ErrInvalidParameter)
		}
		if seen[g.Name] {
			return nil, fmt.Errorf("duplicate gate %q: %w", g.Name, domain.ErrInvalidParameter)
		}
		seen[g.Name] = true
	}
	return f.Gates, nil
}

// LoadGatesFile reads gates from path, or returns DefaultGates when path is empty.
func LoadGatesFile(path string) ([]Gate, error) {
	if path == "" {
		return DefaultGates(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open gates file: %w", err)
	}
	defer f.Close()
	return LoadGates(f)
}

type compiledGate struct {
	gate Gate
	prg  cel.Program
}

// GateEvaluator holds compiled gates.
type GateEvaluator struct {
	gates []compiledGate
}

func newEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("mae", cel.DoubleType),
		cel.Variable("rmse", cel.DoubleType),
		cel.Variable("r2", cel.DoubleType),
		cel.Variable("directional_accuracy", cel.DoubleType),
		cel.Variable("picp", cel.DoubleType),
		cel.Variable("target_coverage", cel.DoubleType),
		cel.Variable("samples", cel.IntType),
		cel.Variable("failures", cel.IntType),
		cel.Variable("defined", cel.MapType(cel.StringType, cel.BoolType)),
		cel.Variable("improvement", cel.MapType(cel.StringType, cel.DoubleType)),
	)
}

// NewGateEvaluator compiles every enabled gate. An expression that does not compile or does
// not yield a bool is a configuration error.
func NewGateEvaluator(gates []Gate) (*GateEvaluator, error) {
	env, err := newEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	ev := &GateEvaluator{}
	for _, g := range gates {
		if g.Disabled {
			continue
		}
		ast, issues := env.Compile(g.Expression)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("gate %q: %v: %w", g.Name, issues.Err(), domain.ErrInvalidParameter)
		}
		if !ast.OutputType().IsExactType(cel.BoolType) {
			return nil, fmt.Errorf("gate %q yields %s, not bool: %w", g.Name, ast.OutputType(), domain.ErrInvalidParameter)
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("gate %q: %w", g.Name, err)
		}
		ev.gates = append(ev.gates, compiledGate{gate: g, prg: prg})
	}
	return ev, nil
}

// Len returns the number of enabled gates.
func (e *GateEvaluator) Len() int { return len(e.gates) }

// Evaluate checks every gate against report, in declaration order.
func (e *GateEvaluator) Evaluate(report *evaluator.EvaluationReport) []GateResult {
	vars := Variables(report)
	results := make([]GateResult, 0, len(e.gates))
	for _, g := range e.gates {
		res := GateResult{Gate: g.gate.Name}
		out, _, err := g.prg.Eval(vars)
		if err != nil {
			res.Error = err.Error()
		} else if passed, ok := out.Value().(bool); ok {
			res.Passed = passed
		} else {
			res.Error = fmt.Sprintf("non-bool result %v", out.Value())
		}
		results = append(results, res)
	}
	return results
}

// Passed reports whether every result passed.
func Passed(results []GateResult) bool {
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}

// Variables flattens report into the CEL activation. Undefined metrics are zero with
// defined[name] false.
func Variables(report *evaluator.EvaluationReport) map[string]any {
	defined := map[string]bool{
		"mae":                  false,
		"rmse":                 false,
		"r2":                   false,
		"directional_accuracy": false,
		"picp":                 false,
	}
	vars := map[string]any{
		"mae":                  0.0,
		"rmse":                 0.0,
		"r2":                   0.0,
		"directional_accuracy": 0.0,
		"picp":                 0.0,
		"target_coverage":      report.TargetCoverage,
		"samples":              int64(report.Samples),
		"failures":             int64(len(report.Failures)),
	}

	set := func(name string, m domain.MetricResult) {
		if m.Defined {
			vars[name] = m.Value
			defined[name] = true
		}
	}
	if p := report.Point; p != nil {
		set("mae", p.MAE)
		set("rmse", p.RMSE)
		set("r2", p.R2)
		set("directional_accuracy", p.DirectionalAccuracy)
	}
	if report.Interval != nil {
		set("picp", report.Interval.PICP)
	}

	improvement := map[string]float64{}
	if report.Leaderboard != nil {
		for _, entry := range report.Leaderboard.Entries {
			if entry.RelativeImprovement.Defined {
				improvement[string(entry.Model)] = entry.RelativeImprovement.Value
			}
		}
	}

	vars["defined"] = defined
	vars["improvement"] = improvement
	return vars
}
