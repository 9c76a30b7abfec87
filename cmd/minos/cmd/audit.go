package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/minos-eval/minos/pkg/hermes/audit"
)

func newAuditCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the evaluation ledger",
	}

	readLedger := func(args []string) (string, []audit.Event, error) {
		path := a.cfg.Audit.Path
		if len(args) == 1 {
			path = args[0]
		}
		if path == "" {
			return "", nil, fmt.Errorf("no ledger: pass a path or set audit.path")
		}
		f, err := os.Open(path)
		if err != nil {
			return path, nil, err
		}
		defer f.Close()
		events, err := audit.ReadEvents(f)
		return path, events, err
	}

	verifyCmd := &cobra.Command{
		Use:   "verify [LEDGER]",
		Short: "Check the hash chain of a ledger",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.Audit.Key == "" {
				return fmt.Errorf("audit.key (MINOS_AUDIT_KEY) is required to verify a ledger")
			}
			path, events, err := readLedger(args)
			if err != nil {
				return err
			}
			if err := audit.NewChainManager([]byte(a.cfg.Audit.Key)).VerifyChain(events); err != nil {
				return fmt.Errorf("ledger %s: %w", path, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Ledger %s verified: %d events\n", path, len(events))
			return nil
		},
	}

	var output string
	listCmd := &cobra.Command{
		Use:   "list [LEDGER]",
		Short: "List the runs recorded in a ledger",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, events, err := readLedger(args)
			if err != nil {
				return err
			}
			if events == nil {
				events = []audit.Event{}
			}
			return render(cmd.OutOrStdout(), output, events, func(tw *tabwriter.Writer) {
				fmt.Fprintln(tw, "TIME\tRUN\tSOURCE\tDATASET\tSAMPLES\tFAILURES\tRESULT")
				for _, ev := range events {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
						ev.Timestamp.Format(time.RFC3339), ev.RunID, ev.Source, ev.Dataset,
						ev.Samples, ev.Failures, ev.Result)
				}
			})
		},
	}
	listCmd.Flags().StringVarP(&output, "output", "o", formatAuto, "output format: table, json, yaml or auto")

	cmd.AddCommand(verifyCmd, listCmd)
	return cmd
}
