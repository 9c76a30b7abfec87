package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/minos-eval/minos/pkg/domain"
	"github.com/minos-eval/minos/pkg/evaluator"
	"github.com/minos-eval/minos/pkg/hermes"
	"github.com/minos-eval/minos/pkg/hermes/audit"
	"github.com/minos-eval/minos/pkg/olympus"
	"github.com/minos-eval/minos/pkg/themis"
)

// engineFlags override the engine section of the config for one run.
type engineFlags struct {
	window         int
	errorWindow    int
	topK           int
	reference      string
	candidates     []string
	targetCoverage float64
}

func (f *engineFlags) register(cmd *cobra.Command) {
	d := evaluator.DefaultOptions()
	flags := cmd.Flags()
	flags.IntVar(&f.window, "window", d.RollingWindow, "rolling coverage window in records")
	flags.IntVar(&f.errorWindow, "error-window", d.ErrorWindow, "rolling absolute error window in records")
	flags.IntVar(&f.topK, "top-k", d.TopK, "number of features to keep")
	flags.StringVar(&f.reference, "reference", "", "leaderboard reference model (default: a naive baseline)")
	flags.StringSliceVar(&f.candidates, "candidates", nil, "leaderboard models in declaration order")
	flags.Float64Var(&f.targetCoverage, "target-coverage", 0, "nominal interval coverage (default: upper minus lower quantile)")
}

// apply returns base with every flag the user set.
func (f *engineFlags) apply(cmd *cobra.Command, base evaluator.Options) (evaluator.Options, error) {
	opts := base
	flags := cmd.Flags()
	if flags.Changed("window") {
		if f.window < 1 {
			return opts, fmt.Errorf("--window must be positive: %w", domain.ErrInvalidParameter)
		}
		opts.RollingWindow = f.window
	}
	if flags.Changed("error-window") {
		if f.errorWindow < 1 {
			return opts, fmt.Errorf("--error-window must be positive: %w", domain.ErrInvalidParameter)
		}
		opts.ErrorWindow = f.errorWindow
	}
	if flags.Changed("top-k") {
		if f.topK < 0 {
			return opts, fmt.Errorf("--top-k must not be negative: %w", domain.ErrInvalidParameter)
		}
		opts.TopK = f.topK
	}
	if flags.Changed("reference") {
		opts.Reference = domain.ColumnID(f.reference)
	}
	if flags.Changed("candidates") {
		opts.Candidates = opts.Candidates[:0:0]
		for _, name := range f.candidates {
			opts.Candidates = append(opts.Candidates, domain.ColumnID(name))
		}
	}
	if flags.Changed("target-coverage") {
		if f.targetCoverage < 0 || f.targetCoverage > 1 {
			return opts, fmt.Errorf("--target-coverage must be in [0, 1]: %w", domain.ErrInvalidParameter)
		}
		opts.TargetCoverage = f.targetCoverage
	}
	return opts, nil
}

// runFlags select the gates and the ledger of a run.
type runFlags struct {
	gates       string
	noGates     bool
	auditLog    string
	metricsFile string
	output      string
}

func (f *runFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.gates, "gates", "", "quality gates YAML (default: gates.file or the built-in gates)")
	flags.BoolVar(&f.noGates, "no-gates", false, "skip quality gates")
	flags.StringVar(&f.auditLog, "audit-log", "", "append the run to this ledger (default: audit.path)")
	flags.StringVar(&f.metricsFile, "metrics-file", "", "write the run's Prometheus metrics to this textfile")
	flags.StringVarP(&f.output, "output", "o", formatAuto, "output format: table, json, yaml or auto")
}

// newManager wires the engine, gates and ledger. The returned closer releases the ledger.
// metrics may be nil.
func (a *app) newManager(opts evaluator.Options, f *runFlags, metrics hermes.Metrics) (*olympus.Manager, io.Closer, error) {
	m := &olympus.Manager{
		Engine: evaluator.NewEngine(opts, a.logger, metrics),
		Logger: a.logger,
	}

	if !f.noGates {
		path := f.gates
		if path == "" {
			path = a.cfg.Gates.File
		}
		gates, err := themis.LoadGatesFile(path)
		if err != nil {
			return nil, nil, err
		}
		if m.Gates, err = themis.NewGateEvaluator(gates); err != nil {
			return nil, nil, err
		}
	}

	ledgerPath := f.auditLog
	if ledgerPath == "" {
		ledgerPath = a.cfg.Audit.Path
	}
	if ledgerPath == "" {
		return m, nopCloser{}, nil
	}
	if a.cfg.Audit.Key == "" {
		return nil, nil, fmt.Errorf("audit ledger %s needs audit.key (MINOS_AUDIT_KEY): %w", ledgerPath, domain.ErrInvalidParameter)
	}
	ledger, closer, err := audit.OpenLedger(ledgerPath, []byte(a.cfg.Audit.Key))
	if err != nil {
		return nil, nil, err
	}
	m.Ledger = ledger
	return m, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func newEvaluateCmd(a *app) *cobra.Command {
	var (
		in  inputFlags
		eng engineFlags
		run runFlags
	)

	cmd := &cobra.Command{
		Use:   "evaluate [files...]",
		Short: "Evaluate a forecast and check the quality gates",
		Long: `Evaluate scores the median forecast and its interval, ranks the baselines and
checks the quality gates. Files are routed by name: *prediction*.csv, *baseline*.csv and
*feature*.csv. The command exits with status 2 when a gate fails.`,
		Example: `  minos evaluate data/predictions.csv data/baselines.csv data/features.csv
  minos evaluate --source redis --dataset energy --start 2024-01-01 -o json
  minos evaluate --prefix sites/energy --window 48 --gates gates.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := eng.apply(cmd, a.cfg.EngineOptions())
			if err != nil {
				return err
			}
			ds, label, err := a.loadDataset(cmd, &in, args)
			if err != nil {
				return err
			}

			var metrics hermes.Metrics
			var registry *prometheus.Registry
			if run.metricsFile != "" {
				registry = prometheus.NewRegistry()
				metrics = hermes.NewPrometheusMetrics(registry)
			}

			manager, closer, err := a.newManager(opts, &run, metrics)
			if err != nil {
				return err
			}
			defer closer.Close()

			out, runErr := manager.Run(cmd.Context(), olympus.RunRequest{
				Data:    ds,
				Source:  in.resolvedSource(),
				Dataset: label,
			})
			if out == nil {
				return runErr
			}
			if err := render(cmd.OutOrStdout(), run.output, out, func(tw *tabwriter.Writer) {
				writeOutcome(tw, out)
			}); err != nil {
				return err
			}
			if registry != nil {
				// Textfile collector format, replaced atomically.
				if err := prometheus.WriteToTextfile(run.metricsFile, registry); err != nil {
					return fmt.Errorf("failed to write metrics: %w", err)
				}
			}
			if runErr != nil {
				return runErr
			}
			if !out.Passed {
				return errGatesFailed
			}
			return nil
		},
	}

	in.register(cmd)
	eng.register(cmd)
	run.register(cmd)
	return cmd
}
