package olympus

import (
	"context"
	"fmt"
	"time"

	"github.com/minos-eval/minos/pkg/evaluator"
	"github.com/minos-eval/minos/pkg/hermes"
	"github.com/minos-eval/minos/pkg/hermes/audit"
	"github.com/minos-eval/minos/pkg/ingest"
	"github.com/minos-eval/minos/pkg/themis"
)

// Manager runs evaluations end to end: engine, quality gates, then the audit ledger.
// Gates and Ledger are optional.
type Manager struct {
	Engine *evaluator.Engine
	Gates  *themis.GateEvaluator
	Ledger audit.Store
	Logger hermes.Logger
}

// RunRequest describes one evaluation.
type RunRequest struct {
	Data *ingest.Dataset
	// Source and Dataset label the run in logs and the ledger.
	Source  string
	Dataset string
	// Options overrides the engine options for this run only.
	Options *evaluator.Options
}

// Outcome is the result of a run.
type Outcome struct {
	Report *evaluator.EvaluationReport `json:"report" yaml:"report"`
	Gates  []themis.GateResult         `json:"gates" yaml:"gates"`
	Passed bool                        `json:"passed" yaml:"passed"`
}

// Run evaluates req.Data. The outcome is returned even when the ledger write fails.
func (m *Manager) Run(ctx context.Context, req RunRequest) (*Outcome, error) {
	if req.Data == nil || req.Data.Records == nil {
		return nil, fmt.Errorf("run has no data")
	}
	logger := m.Logger
	if logger == nil {
		logger = hermes.NewNoopLogger()
	}

	engine := m.Engine
	if req.Options != nil {
		engine = engine.WithOptions(*req.Options)
	}

	start := time.Now()
	report := engine.Evaluate(ctx, req.Data.Records, req.Data.Importance)

	out := &Outcome{Report: report, Gates: []themis.GateResult{}, Passed: true}
	if m.Gates != nil {
		out.Gates = m.Gates.Evaluate(report)
		out.Passed = themis.Passed(out.Gates)
		for _, g := range out.Gates {
			if !g.Passed {
				logger.Warn(ctx, "quality gate failed", map[string]any{
					"run_id": report.RunID,
					"gate":   g.Gate,
					"error":  g.Error,
				})
			}
		}
	}

	if m.Ledger == nil {
		return out, nil
	}
	event, err := ledgerEvent(ctx, req, out, time.Since(start))
	if err != nil {
		return out, err
	}
	if err := m.Ledger.Write(ctx, event); err != nil {
		logger.Error(ctx, "failed to record run", map[string]any{
			"run_id": report.RunID,
			"error":  err.Error(),
		})
		return out, fmt.Errorf("failed to record run %s: %w", report.RunID, err)
	}
	return out, nil
}

func ledgerEvent(ctx context.Context, req RunRequest, out *Outcome, latency time.Duration) (*audit.Event, error) {
	digest, err := audit.Digest(out.Report)
	if err != nil {
		return nil, fmt.Errorf("failed to digest report: %w", err)
	}

	result := audit.ResultSuccess
	if !out.Passed {
		result = audit.ResultGatesFailed
	}

	event := &audit.Event{
		Action:       audit.ActionEvaluate,
		Result:       result,
		RunID:        out.Report.RunID,
		Source:       req.Source,
		Dataset:      req.Dataset,
		Samples:      out.Report.Samples,
		Failures:     len(out.Report.Failures),
		RequestID:    hermes.RequestID(ctx),
		Latency:      latency,
		ReportDigest: digest,
	}
	if len(out.Gates) > 0 {
		event.Metadata = make(map[string]string, len(out.Gates))
		for _, g := range out.Gates {
			event.Metadata["gate."+g.Gate] = fmt.Sprintf("%t", g.Passed)
		}
	}
	return event, nil
}
