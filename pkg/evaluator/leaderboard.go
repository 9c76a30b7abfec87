package evaluator

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/minos-eval/minos/pkg/domain"
)

// LeaderboardOptions selects the candidates and the reference model.
type LeaderboardOptions struct {
	// Candidates in declaration order. Empty means the primary column followed by every baseline.
	Candidates []domain.ColumnID
	// Reference names the model improvements are measured against. Empty picks one.
	Reference domain.ColumnID
}

// LeaderboardEntry is one ranked model.
type LeaderboardEntry struct {
	Rank                int                 `json:"rank"`
	Model               domain.ColumnID     `json:"model"`
	Samples             int                 `json:"samples"`
	MAE                 float64             `json:"mae"`
	RMSE                float64             `json:"rmse"`
	R2                  domain.MetricResult `json:"r2"`
	RelativeImprovement domain.MetricResult `json:"relative_improvement"`
}

// SkippedModel records a requested candidate that could not be ranked.
type SkippedModel struct {
	Model  domain.ColumnID `json:"model"`
	Reason string          `json:"reason"`
}

// Leaderboard ranks forecast columns by MAE.
type Leaderboard struct {
	Entries    []LeaderboardEntry `json:"entries"`
	Reference  domain.ColumnID    `json:"reference"`
	Skipped    []SkippedModel     `json:"skipped,omitempty"`
	Cumulative []domain.Series    `json:"cumulative_squared_error"`
}

// Entry returns the ranked entry of model.
func (l *Leaderboard) Entry(model domain.ColumnID) (LeaderboardEntry, bool) {
	for _, e := range l.Entries {
		if e.Model == model {
			return e, true
		}
	}
	return LeaderboardEntry{}, false
}

func (l *Leaderboard) skipped(model domain.ColumnID) bool {
	for _, s := range l.Skipped {
		if s.Model == model {
			return true
		}
	}
	return false
}

// BuildLeaderboard ranks the candidates by MAE ascending, RMSE ascending, then declaration
// order, and reports each model's improvement over the reference.
func BuildLeaderboard(rs *domain.RecordSet, opts LeaderboardOptions) (*Leaderboard, error) {
	if rs.Len() == 0 {
		return nil, fmt.Errorf("leaderboard: %w", domain.ErrEmptyInput)
	}

	candidates := opts.Candidates
	if len(candidates) == 0 {
		candidates = rs.Columns()
	}

	board := &Leaderboard{}
	var ranked []*PointMetrics
	seen := make(map[domain.ColumnID]bool, len(candidates))
	for _, col := range candidates {
		if seen[col] {
			continue
		}
		seen[col] = true

		pm, err := CalculatePointMetrics(rs, col)
		if err != nil {
			if errors.Is(err, domain.ErrSchemaMismatch) || errors.Is(err, domain.ErrEmptyInput) {
				board.Skipped = append(board.Skipped, SkippedModel{Model: col, Reason: err.Error()})
				continue
			}
			return nil, err
		}
		ranked = append(ranked, pm)
	}
	if len(ranked) == 0 {
		return nil, fmt.Errorf("leaderboard has no rankable models: %w", domain.ErrEmptyInput)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].MAE.Value != ranked[j].MAE.Value {
			return ranked[i].MAE.Value < ranked[j].MAE.Value
		}
		return ranked[i].RMSE.Value < ranked[j].RMSE.Value
	})

	ref := chooseReference(ranked, opts.Reference)
	board.Reference = ref.Column
	if opts.Reference != "" && ref.Column != opts.Reference && !board.skipped(opts.Reference) {
		reason := fmt.Errorf("reference %q is not a ranked candidate: %w", opts.Reference, domain.ErrSchemaMismatch)
		if !rs.HasColumn(opts.Reference) {
			reason = fmt.Errorf("reference %q: no such column: %w", opts.Reference, domain.ErrSchemaMismatch)
		}
		board.Skipped = append(board.Skipped, SkippedModel{Model: opts.Reference, Reason: reason.Error()})
	}

	for i, pm := range ranked {
		entry := LeaderboardEntry{
			Rank:    i + 1,
			Model:   pm.Column,
			Samples: pm.Samples,
			MAE:     pm.MAE.Value,
			RMSE:    pm.RMSE.Value,
			R2:      pm.R2,
		}
		switch {
		case pm.Column == ref.Column:
			entry.RelativeImprovement = domain.DefinedMetric("relative_improvement", 0, pm.Samples)
		case ref.MAE.Value == 0:
			entry.RelativeImprovement = domain.UndefinedMetric("relative_improvement", pm.Samples,
				fmt.Sprintf("reference %q has zero MAE", ref.Column))
		default:
			entry.RelativeImprovement = domain.DefinedMetric("relative_improvement",
				1-pm.MAE.Value/ref.MAE.Value, pm.Samples)
		}
		board.Entries = append(board.Entries, entry)

		cumulative, err := CumulativeSquaredError(rs, pm.Column)
		if err != nil {
			return nil, err
		}
		board.Cumulative = append(board.Cumulative, cumulative)
	}

	return board, nil
}

// chooseReference picks the explicit reference when it was ranked, else a naive or
// random-walk baseline, else the worst-ranked model.
func chooseReference(ranked []*PointMetrics, explicit domain.ColumnID) *PointMetrics {
	if explicit != "" {
		for _, pm := range ranked {
			if pm.Column == explicit {
				return pm
			}
		}
	}
	for _, pm := range ranked {
		if pm.Column == domain.MedianColumn {
			continue
		}
		switch normalizeModelName(string(pm.Column)) {
		case "naive", "randomwalk":
			return pm
		}
	}
	return ranked[len(ranked)-1]
}

func normalizeModelName(name string) string {
	r := strings.NewReplacer(" ", "", "-", "", "_", "")
	return r.Replace(strings.ToLower(strings.TrimSpace(name)))
}

// CumulativeSquaredError is the running sum of squared errors of column in record order.
// Missing forecasts add nothing and are marked invalid.
func CumulativeSquaredError(rs *domain.RecordSet, column domain.ColumnID) (domain.Series, error) {
	return cumulative(rs, column, "cumulative_squared_error", func(e float64) float64 { return e * e })
}

// CumulativeAbsoluteError is the running sum of absolute errors of column in record order.
func CumulativeAbsoluteError(rs *domain.RecordSet, column domain.ColumnID) (domain.Series, error) {
	return cumulative(rs, column, "cumulative_absolute_error", math.Abs)
}

func cumulative(rs *domain.RecordSet, column domain.ColumnID, kind string, f func(float64) float64) (domain.Series, error) {
	if rs.Len() == 0 {
		return domain.Series{}, fmt.Errorf("%s: %w", kind, domain.ErrEmptyInput)
	}
	forecasts, err := rs.Column(column)
	if err != nil {
		return domain.Series{}, err
	}
	actuals := rs.Actuals()

	out := domain.Series{
		Name:   string(column),
		Values: make([]float64, len(forecasts)),
		Valid:  make([]bool, len(forecasts)),
	}
	var sum float64
	for i, pred := range forecasts {
		if !domain.IsMissing(pred) {
			sum += f(actuals[i] - pred)
			out.Valid[i] = true
			out.Samples++
		}
		out.Values[i] = sum
	}
	return out, nil
}
