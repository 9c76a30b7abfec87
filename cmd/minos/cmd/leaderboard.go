package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/minos-eval/minos/pkg/domain"
	"github.com/minos-eval/minos/pkg/evaluator"
)

func newLeaderboardCmd(a *app) *cobra.Command {
	var (
		in     inputFlags
		eng    engineFlags
		output string
	)

	cmd := &cobra.Command{
		Use:   "leaderboard [files...]",
		Short: "Rank the forecast against its baselines",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := eng.apply(cmd, a.cfg.EngineOptions())
			if err != nil {
				return err
			}
			ds, _, err := a.loadDataset(cmd, &in, args)
			if err != nil {
				return err
			}
			if len(ds.Records.Baselines()) == 0 {
				return fmt.Errorf("dataset has no baselines to rank: %w", domain.ErrEmptyInput)
			}

			lb, err := evaluator.BuildLeaderboard(ds.Records, evaluator.LeaderboardOptions{
				Candidates: opts.Candidates,
				Reference:  opts.Reference,
			})
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), output, lb, func(tw *tabwriter.Writer) {
				writeLeaderboard(tw, lb)
			})
		},
	}

	in.register(cmd)
	eng.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", formatAuto, "output format: table, json, yaml or auto")
	return cmd
}
