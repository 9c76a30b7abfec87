package cmd

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/minos-eval/minos/pkg/domain"
	"github.com/minos-eval/minos/pkg/erebus"
	"github.com/minos-eval/minos/pkg/ingest"
)

type pruner interface {
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

func newPushCmd(a *app) *cobra.Command {
	var (
		in     inputFlags
		to     string
		retain time.Duration
	)

	cmd := &cobra.Command{
		Use:   "push --dataset NAME [files...]",
		Short: "Seed a structured source or the object store from CSV files",
		Long: `Push parses local CSV files and writes them to Redis or Postgres, where evaluate
--source redis|postgres can read them, or copies the files to the object store under the
dataset prefix.`,
		Example: `  minos push --dataset energy data/predictions.csv data/baselines.csv
  minos push --dataset energy --to postgres --predictions p.csv
  minos push --dataset sites/energy --to store data/*.csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if in.dataset == "" {
				return fmt.Errorf("--dataset is required: %w", domain.ErrInvalidParameter)
			}
			ctx := cmd.Context()
			keys := in.keys(args)

			if to == sourceStore {
				return a.pushFiles(cmd, in.dataset, keys)
			}

			ds, err := a.readFiles(cmd, keys)
			if err != nil {
				return err
			}
			observations := make([]domain.Observation, ds.Records.Len())
			for i := range observations {
				observations[i] = ds.Records.At(i)
			}

			backend, err := ingest.OpenBackend(ctx, a.cfg, to, in.dataset, a.logger)
			if err != nil {
				return err
			}
			defer backend.Close()

			if err := backend.Sink.Save(ctx, observations); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pushed %d observations to %s dataset %s\n", len(observations), to, in.dataset)

			if retain > 0 {
				p, ok := backend.Sink.(pruner)
				if !ok {
					return fmt.Errorf("--retain is not supported by %s", to)
				}
				removed, err := p.Prune(ctx, time.Now().Add(-retain))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d observations older than %s\n", removed, retain)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&in.predictions, "predictions", "", "predictions CSV")
	cmd.Flags().StringVar(&in.baselines, "baselines", "", "baselines CSV")
	cmd.Flags().StringVar(&in.features, "features", "", "feature importance CSV (store only)")
	cmd.Flags().StringVar(&in.dataset, "dataset", "", "dataset name, or the object prefix with --to store")
	cmd.Flags().StringVar(&to, "to", sourceRedis, "destination: redis, postgres or store")
	cmd.Flags().DurationVar(&retain, "retain", 0, "after pushing to redis, drop observations older than this")
	return cmd
}

func (a *app) pushFiles(cmd *cobra.Command, prefix string, keys ingest.Keys) error {
	if keys.Predictions == "" {
		return fmt.Errorf("no predictions file: %w", domain.ErrEmptyInput)
	}
	store, err := a.openStore(cmd)
	if err != nil {
		return err
	}

	prefix = strings.Trim(prefix, "/")
	for _, file := range []struct{ local, name string }{
		{keys.Predictions, "predictions.csv"},
		{keys.Baselines, "baselines.csv"},
		{keys.Features, "features.csv"},
	} {
		if file.local == "" {
			continue
		}
		if err := putFile(cmd.Context(), store, file.local, path.Join(prefix, file.name)); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %s to %s\n", filepath.Base(file.local), path.Join(prefix, file.name))
	}
	return nil
}

func putFile(ctx context.Context, store erebus.Store, local, key string) error {
	fh, err := os.Open(local)
	if err != nil {
		return err
	}
	defer fh.Close()
	return store.Put(ctx, key, fh)
}
