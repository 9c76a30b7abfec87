package evaluator

import (
	"fmt"
	"math"
	"sort"

	"github.com/minos-eval/minos/pkg/domain"
)

// RankImportance returns the k most important features, highest first. Equal importances keep
// their input order and NaN importances sort last. k larger than the input returns every entry.
func RankImportance(entries []domain.ImportanceEntry, k int) ([]domain.ImportanceEntry, error) {
	if k < 0 {
		return nil, fmt.Errorf("top-k %d must not be negative: %w", k, domain.ErrInvalidParameter)
	}

	ranked := append([]domain.ImportanceEntry(nil), entries...)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i].Importance, ranked[j].Importance
		if math.IsNaN(b) {
			return !math.IsNaN(a)
		}
		return a > b
	})

	if k < len(ranked) {
		ranked = ranked[:k]
	}
	return ranked, nil
}
