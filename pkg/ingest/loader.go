package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/minos-eval/minos/pkg/domain"
	"github.com/minos-eval/minos/pkg/erebus"
	"github.com/minos-eval/minos/pkg/hermes"
)

// Dataset is a complete evaluation input. Importance is nil when no features file was given.
type Dataset struct {
	Records    *domain.RecordSet
	Importance []domain.ImportanceEntry
}

// Inputs are the readers of one dataset. Only Predictions is required.
type Inputs struct {
	Predictions io.Reader
	Baselines   io.Reader
	Features    io.Reader
}

// Keys locate the files of one dataset in a Store.
type Keys struct {
	Predictions string
	Baselines   string
	Features    string
}

// ClassifyKeys routes file names to their role by the words "prediction", "baseline" and
// "feature" (or "importance"). The first match of each role wins.
func ClassifyKeys(names []string) Keys {
	var keys Keys
	for _, name := range names {
		base := strings.ToLower(path.Base(name))
		if !strings.HasSuffix(base, ".csv") {
			continue
		}
		switch {
		case strings.Contains(base, "prediction") && keys.Predictions == "":
			keys.Predictions = name
		case strings.Contains(base, "baseline") && keys.Baselines == "":
			keys.Baselines = name
		case (strings.Contains(base, "feature") || strings.Contains(base, "importance")) && keys.Features == "":
			keys.Features = name
		}
	}
	return keys
}

// Loader parses datasets from readers or a Store.
type Loader struct {
	schema Schema
	store  erebus.Store
	logger hermes.Logger
}

// NewLoader creates a loader. store may be nil when only Read is used.
func NewLoader(schema Schema, store erebus.Store, logger hermes.Logger) *Loader {
	if logger == nil {
		logger = hermes.NewNoopLogger()
	}
	return &Loader{schema: schema, store: store, logger: logger}
}

// Read parses the inputs concurrently and joins them once every parse has finished.
func (l *Loader) Read(ctx context.Context, in Inputs) (*Dataset, error) {
	if in.Predictions == nil {
		return nil, fmt.Errorf("predictions input is required: %w", domain.ErrEmptyInput)
	}

	var (
		predictions []PredictionRow
		baselines   *BaselineTable
		importance  []domain.ImportanceEntry
	)

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		predictions, err = ReadPredictions(in.Predictions, l.schema)
		return err
	})
	if in.Baselines != nil {
		g.Go(func() error {
			var err error
			baselines, err = ReadBaselines(in.Baselines, l.schema)
			return err
		})
	}
	if in.Features != nil {
		g.Go(func() error {
			var err error
			importance, err = ReadImportance(in.Features, l.schema)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rs, err := Join(predictions, baselines)
	if err != nil {
		return nil, err
	}

	l.logger.Debug(ctx, "dataset parsed", map[string]any{
		"records":       rs.Len(),
		"baselines":     len(rs.Baselines()),
		"baseline_rows": baselines.Len(),
		"features":      len(importance),
	})
	return &Dataset{Records: rs, Importance: importance}, nil
}

// Load fetches the keyed files from the store concurrently and parses them.
func (l *Loader) Load(ctx context.Context, keys Keys) (*Dataset, error) {
	if l.store == nil {
		return nil, fmt.Errorf("loader has no store")
	}
	if keys.Predictions == "" {
		return nil, fmt.Errorf("no predictions file: %w", domain.ErrEmptyInput)
	}

	named := []string{keys.Predictions, keys.Baselines, keys.Features}
	readers := make([]io.Reader, len(named))

	g, gctx := errgroup.WithContext(ctx)
	for i, key := range named {
		if key == "" {
			continue
		}
		g.Go(func() error {
			rc, err := l.store.Get(gctx, key)
			if err != nil {
				return fmt.Errorf("failed to fetch %s: %w", key, err)
			}
			defer rc.Close()
			data, err := io.ReadAll(rc)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", key, err)
			}
			readers[i] = bytes.NewReader(data)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return l.Read(ctx, Inputs{
		Predictions: readers[0],
		Baselines:   readers[1],
		Features:    readers[2],
	})
}

// LoadPrefix lists the store under prefix, classifies the keys and loads them.
func (l *Loader) LoadPrefix(ctx context.Context, prefix string) (*Dataset, Keys, error) {
	if l.store == nil {
		return nil, Keys{}, fmt.Errorf("loader has no store")
	}
	names, err := l.store.List(ctx, prefix)
	if err != nil {
		return nil, Keys{}, fmt.Errorf("failed to list %q: %w", prefix, err)
	}
	sort.Strings(names)

	keys := ClassifyKeys(names)
	l.logger.Info(ctx, "loading dataset from store", map[string]any{
		"prefix":      prefix,
		"predictions": keys.Predictions,
		"baselines":   keys.Baselines,
		"features":    keys.Features,
	})
	ds, err := l.Load(ctx, keys)
	return ds, keys, err
}
