package ingest

import (
	"context"
	"sort"
	"time"

	"github.com/minos-eval/minos/pkg/domain"
)

// Source loads observations recorded in [start, end) from a structured backend.
type Source interface {
	Load(ctx context.Context, start, end time.Time) ([]domain.Observation, error)
}

// ObservationsToDataset orders observations chronologically and normalizes their baselines
// so every record carries every column. baselines fixes the column order; when empty, the
// union of names found is used in sorted order. Names absent from a record get the missing marker.
func ObservationsToDataset(observations []domain.Observation, baselines []string) (*Dataset, error) {
	names := baselines
	if len(names) == 0 {
		seen := map[string]bool{}
		for _, obs := range observations {
			for name := range obs.Baselines {
				if !seen[name] {
					seen[name] = true
					names = append(names, name)
				}
			}
		}
		sort.Strings(names)
	}

	records := make([]domain.Observation, len(observations))
	for i, obs := range observations {
		cp := obs
		cp.Baselines = make(map[string]float64, len(names))
		for _, name := range names {
			v, ok := obs.Baselines[name]
			if !ok {
				v = domain.Missing()
			}
			cp.Baselines[name] = v
		}
		records[i] = cp
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp.Before(records[j].Timestamp)
	})

	rs, err := domain.NewRecordSet(records, names)
	if err != nil {
		return nil, err
	}
	return &Dataset{Records: rs}, nil
}
