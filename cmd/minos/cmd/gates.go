package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/minos-eval/minos/pkg/themis"
)

func newGatesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gates",
		Short: "Inspect quality gates",
	}

	var output string
	validateCmd := &cobra.Command{
		Use:   "validate FILE",
		Short: "Parse and compile a gates file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gates, err := themis.LoadGatesFile(args[0])
			if err != nil {
				return err
			}
			ev, err := themis.NewGateEvaluator(gates)
			if err != nil {
				return err
			}
			a.logger.Debug(cmd.Context(), "gates compiled", map[string]any{"file": args[0], "enabled": ev.Len()})
			if err := render(cmd.OutOrStdout(), output, gates, func(tw *tabwriter.Writer) {
				writeGates(tw, gates)
			}); err != nil {
				return err
			}
			if output == formatTable {
				fmt.Fprintf(cmd.OutOrStdout(), "%d gates, %d enabled\n", len(gates), ev.Len())
			}
			return nil
		},
	}
	validateCmd.Flags().StringVarP(&output, "output", "o", formatTable, "output format: table, json, yaml or auto")

	defaultsCmd := &cobra.Command{
		Use:   "defaults",
		Short: "Print the built-in gates as a gates file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(map[string][]themis.Gate{"gates": themis.DefaultGates()}); err != nil {
				return err
			}
			return enc.Close()
		},
	}

	cmd.AddCommand(validateCmd, defaultsCmd)
	return cmd
}
