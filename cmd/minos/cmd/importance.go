package cmd

import (
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/minos-eval/minos/pkg/evaluator"
)

func newImportanceCmd(a *app) *cobra.Command {
	var (
		topK   int
		output string
	)

	cmd := &cobra.Command{
		Use:   "importance FILE",
		Short: "Rank the features of an importance file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := a.readImportance(args[0])
			if err != nil {
				return err
			}
			k := a.cfg.Engine.TopK
			if cmd.Flags().Changed("top-k") {
				k = topK
			}
			ranked, err := evaluator.RankImportance(entries, k)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), output, ranked, func(tw *tabwriter.Writer) {
				writeImportance(tw, ranked)
			})
		},
	}

	cmd.Flags().IntVar(&topK, "top-k", evaluator.DefaultOptions().TopK, "number of features to keep")
	cmd.Flags().StringVarP(&output, "output", "o", formatAuto, "output format: table, json, yaml or auto")
	return cmd
}
