package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/minos-eval/minos/pkg/domain"
	"github.com/minos-eval/minos/pkg/ingest"
)

const (
	sourceFiles    = "files"
	sourceStore    = "store"
	sourceRedis    = "redis"
	sourcePostgres = "postgres"
)

// inputFlags locate the dataset of a command.
type inputFlags struct {
	predictions string
	baselines   string
	features    string
	source      string
	prefix      string
	dataset     string
	start       string
	end         string
}

func (f *inputFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.predictions, "predictions", "", "predictions CSV (timestamp, actual, q10, q50, q90)")
	flags.StringVar(&f.baselines, "baselines", "", "baselines CSV (timestamp plus one column per model)")
	flags.StringVar(&f.features, "features", "", "feature importance CSV")
	flags.StringVar(&f.source, "source", "", "input source: files, store, redis or postgres (default files, or store with --prefix)")
	flags.StringVar(&f.prefix, "prefix", "", "object store prefix holding the dataset files")
	flags.StringVar(&f.dataset, "dataset", "", "dataset name (Redis key suffix and ledger label)")
	flags.StringVar(&f.start, "start", "", "first timestamp to load from redis or postgres")
	flags.StringVar(&f.end, "end", "", "load from redis or postgres up to this timestamp (exclusive)")
}

// keys merges the explicit file flags over the classified positional files.
func (f *inputFlags) keys(args []string) ingest.Keys {
	keys := ingest.ClassifyKeys(args)
	if f.predictions != "" {
		keys.Predictions = f.predictions
	}
	if f.baselines != "" {
		keys.Baselines = f.baselines
	}
	if f.features != "" {
		keys.Features = f.features
	}
	if keys.Predictions == "" && len(args) == 1 {
		keys.Predictions = args[0]
	}
	return keys
}

func (f *inputFlags) resolvedSource() string {
	if f.source != "" {
		return f.source
	}
	if f.prefix != "" {
		return sourceStore
	}
	return sourceFiles
}

// label names the dataset in logs and the ledger.
func (f *inputFlags) label(keys ingest.Keys) string {
	switch {
	case f.dataset != "":
		return f.dataset
	case f.prefix != "":
		return strings.TrimSuffix(f.prefix, "/")
	case keys.Predictions != "":
		if dir := filepath.Base(filepath.Dir(keys.Predictions)); dir != "." && dir != string(filepath.Separator) {
			return dir
		}
	}
	return ""
}

func (f *inputFlags) window() (time.Time, time.Time, error) {
	var start, end time.Time
	var err error
	if f.start != "" {
		if start, err = ingest.ParseTimestamp(f.start); err != nil {
			return start, end, fmt.Errorf("--start: %w", err)
		}
	}
	if f.end != "" {
		if end, err = ingest.ParseTimestamp(f.end); err != nil {
			return start, end, fmt.Errorf("--end: %w", err)
		}
	}
	if !start.IsZero() && !end.IsZero() && !end.After(start) {
		return start, end, fmt.Errorf("--end must be after --start")
	}
	return start, end, nil
}

// loadDataset reads the dataset from the selected source.
func (a *app) loadDataset(cmd *cobra.Command, f *inputFlags, args []string) (*ingest.Dataset, string, error) {
	ctx := cmd.Context()
	keys := f.keys(args)
	source := f.resolvedSource()

	switch source {
	case sourceFiles:
		ds, err := a.readFiles(cmd, keys)
		return ds, f.label(keys), err

	case sourceStore:
		if f.prefix == "" {
			return nil, "", fmt.Errorf("--prefix is required with --source store")
		}
		store, err := a.openStore(cmd)
		if err != nil {
			return nil, "", err
		}
		prefix := strings.TrimSuffix(f.prefix, "/") + "/"
		ds, _, err := ingest.NewLoader(a.schema(), store, a.logger).LoadPrefix(ctx, prefix)
		return ds, f.label(keys), err

	case sourceRedis, sourcePostgres:
		start, end, err := f.window()
		if err != nil {
			return nil, "", err
		}
		backend, err := ingest.OpenBackend(ctx, a.cfg, source, f.dataset, a.logger)
		if err != nil {
			return nil, "", err
		}
		defer backend.Close()

		observations, err := backend.Source.Load(ctx, start, end)
		if err != nil {
			return nil, "", err
		}
		ds, err := ingest.ObservationsToDataset(observations, a.cfg.Schema.Baselines)
		if err != nil {
			return nil, "", err
		}
		if keys.Features != "" {
			importance, err := a.readImportance(keys.Features)
			if err != nil {
				return nil, "", err
			}
			ds.Importance = importance
		}
		return ds, f.label(keys), nil

	default:
		return nil, "", fmt.Errorf("unknown source %q (want files, store, redis or postgres)", source)
	}
}

func (a *app) readFiles(cmd *cobra.Command, keys ingest.Keys) (*ingest.Dataset, error) {
	if keys.Predictions == "" {
		return nil, fmt.Errorf("no predictions file: pass --predictions or a file named *prediction*.csv")
	}

	var in ingest.Inputs
	var files []*os.File
	defer func() {
		for _, f := range files {
			f.Close()
		}
	}()
	for _, file := range []struct {
		path string
		dst  *io.Reader
	}{
		{keys.Predictions, &in.Predictions},
		{keys.Baselines, &in.Baselines},
		{keys.Features, &in.Features},
	} {
		if file.path == "" {
			continue
		}
		fh, err := os.Open(file.path)
		if err != nil {
			return nil, err
		}
		files = append(files, fh)
		*file.dst = fh
	}

	return ingest.NewLoader(a.schema(), nil, a.logger).Read(cmd.Context(), in)
}

func (a *app) readImportance(path string) ([]domain.ImportanceEntry, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	return ingest.ReadImportance(fh, a.schema())
}
