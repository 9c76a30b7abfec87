package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/minos-eval/minos/pkg/domain"
	"github.com/minos-eval/minos/pkg/evaluator"
	"github.com/minos-eval/minos/pkg/olympus"
	"github.com/minos-eval/minos/pkg/themis"
)

func writeOutcome(w *tabwriter.Writer, out *olympus.Outcome) {
	r := out.Report
	fmt.Fprintf(w, "RUN\t%s\n", r.RunID)
	fmt.Fprintf(w, "SAMPLES\t%d\n", r.Samples)
	if r.Samples > 0 {
		fmt.Fprintf(w, "WINDOW\t%s .. %s\n", r.WindowStart.Format(time.RFC3339), r.WindowEnd.Format(time.RFC3339))
	}
	if len(r.Baselines) > 0 {
		fmt.Fprintf(w, "BASELINES\t%s\n", strings.Join(r.Baselines, ", "))
	}
	fmt.Fprintln(w)

	writeMetrics(w, r)
	if r.Leaderboard != nil {
		fmt.Fprintln(w)
		writeLeaderboard(w, r.Leaderboard)
	}
	if len(r.Importance) > 0 {
		fmt.Fprintln(w)
		writeImportance(w, r.Importance)
	}
	if len(out.Gates) > 0 {
		fmt.Fprintln(w)
		writeGateResults(w, out.Gates)
	}
	if len(r.Failures) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "COMPONENT\tKIND\tMESSAGE")
		for _, f := range r.Failures {
			fmt.Fprintf(w, "%s\t%s\t%s\n", f.Component, f.Kind, f.Message)
		}
	}
}

func writeMetrics(w *tabwriter.Writer, r *evaluator.EvaluationReport) {
	fmt.Fprintln(w, "METRIC\tVALUE")
	if p := r.Point; p != nil {
		fmt.Fprintf(w, "MAE\t%s\n", formatMetric(p.MAE))
		fmt.Fprintf(w, "RMSE\t%s\n", formatMetric(p.RMSE))
		fmt.Fprintf(w, "R2\t%s\n", formatMetric(p.R2))
		fmt.Fprintf(w, "DIRECTIONAL ACCURACY\t%s\n", formatMetric(p.DirectionalAccuracy))
	}
	if iv := r.Interval; iv != nil {
		fmt.Fprintf(w, "PICP\t%s (target %s)\n", formatMetric(iv.PICP), formatFloat(r.TargetCoverage))
		fmt.Fprintf(w, "MEAN WIDTH\t%s\n", formatFloat(iv.Width.Mean))
		if iv.Width.Negative > 0 {
			fmt.Fprintf(w, "INVERTED INTERVALS\t%d\n", iv.Width.Negative)
		}
	}
	if r.LastForecast != nil {
		fmt.Fprintf(w, "LAST FORECAST\t%s\n", formatFloat(*r.LastForecast))
	}
}

func writeLeaderboard(w *tabwriter.Writer, lb *evaluator.Leaderboard) {
	fmt.Fprintln(w, "RANK\tMODEL\tMAE\tRMSE\tR2\tIMPROVEMENT")
	for _, e := range lb.Entries {
		improvement := "n/a"
		if e.RelativeImprovement.Defined {
			improvement = fmt.Sprintf("%+.1f%%", 100*e.RelativeImprovement.Value)
		}
		model := string(e.Model)
		if e.Model == lb.Reference {
			model += " (reference)"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			e.Rank, model, formatFloat(e.MAE), formatFloat(e.RMSE), formatMetric(e.R2), improvement)
	}
	for _, s := range lb.Skipped {
		fmt.Fprintf(w, "-\t%s\tskipped: %s\t\t\t\n", s.Model, s.Reason)
	}
}

func writeImportance(w *tabwriter.Writer, entries []domain.ImportanceEntry) {
	fmt.Fprintln(w, "FEATURE\tIMPORTANCE")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\n", e.Feature, formatFloat(e.Importance))
	}
}

func writeGateResults(w *tabwriter.Writer, results []themis.GateResult) {
	fmt.Fprintln(w, "GATE\tRESULT\tERROR")
	for _, g := range results {
		result := "pass"
		if !g.Passed {
			result = "FAIL"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", g.Gate, result, g.Error)
	}
}

func writeGates(w *tabwriter.Writer, gates []themis.Gate) {
	fmt.Fprintln(w, "NAME\tENABLED\tEXPRESSION")
	for _, g := range gates {
		fmt.Fprintf(w, "%s\t%t\t%s\n", g.Name, !g.Disabled, g.Expression)
	}
}
