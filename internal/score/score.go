package score

import (
	"fmt"
	"sort"

	"github.com/create-to-solve/jtis/internal/diagnostics"
	"github.com/create-to-solve/jtis/internal/model"
)

// Weights maps indicator names to their contribution to the composite. The
// weighting scheme is deliberately an explicit, externally supplied
// parameter: nothing in this package hardcodes one.
type Weights map[string]float64

// InsufficientIndicatorsError marks a row with zero scorable indicators. The
// row is excluded from ranking rather than scored as zero.
type InsufficientIndicatorsError struct {
	LADCode string
	Year    int
}

func (e *InsufficientIndicatorsError) Error() string {
	return fmt.Sprintf("no scorable indicators for %s year %d", e.LADCode, e.Year)
}

// Composite computes the JTI for one indicator set. Weights are renormalised
// over the indicators actually present, so a row missing one indicator is
// scored on the remainder: the stored weights always sum to 1.
func Composite(set *model.IndicatorSet, weights Weights) (*model.JTIScore, error) {
	var total float64
	used := make(map[string]float64)
	for name, w := range weights {
		if w == 0 {
			continue
		}
		if _, ok := set.Indicators[name]; !ok {
			continue
		}
		used[name] = w
		total += w
	}
	if len(used) == 0 || total == 0 {
		return nil, &InsufficientIndicatorsError{LADCode: set.LADCode, Year: set.Year}
	}

	score := &model.JTIScore{
		LADCode:   set.LADCode,
		Year:      set.Year,
		Weights:   make(map[string]float64, len(used)),
		Breakdown: make(map[string]float64, len(used)),
	}
	for name, w := range used {
		norm := w / total
		score.Weights[name] = norm
		score.Breakdown[name] = set.Indicators[name]
		score.Score += norm * set.Indicators[name]
	}
	return score, nil
}

// All scores every indicator set, recording unscorable rows in the
// diagnostics collector instead of failing the run.
func All(sets []*model.IndicatorSet, weights Weights, collector *diagnostics.Collector) []*model.JTIScore {
	scores := make([]*model.JTIScore, 0, len(sets))
	for _, set := range sets {
		s, err := Composite(set, weights)
		if err != nil {
			collector.Exclude(set.LADCode, set.Year, err.Error())
			continue
		}
		scores = append(scores, s)
	}
	return scores
}

// Snapshot ranks the scores for one year: JTI descending, ties broken by LAD
// code ascending, ranks 1..N with no gaps. nameOf resolves display names and
// may be nil.
func Snapshot(scores []*model.JTIScore, year int, nameOf func(string) string) *model.RankedSnapshot {
	snapshot := &model.RankedSnapshot{Year: year}
	for _, s := range scores {
		if s.Year != year {
			continue
		}
		entry := model.RankEntry{LADCode: s.LADCode, Score: s.Score}
		if nameOf != nil {
			entry.LADName = nameOf(s.LADCode)
		}
		snapshot.Entries = append(snapshot.Entries, entry)
	}

	sort.Slice(snapshot.Entries, func(i, j int) bool {
		a, b := snapshot.Entries[i], snapshot.Entries[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		return a.LADCode < b.LADCode
	})
	for i := range snapshot.Entries {
		snapshot.Entries[i].Rank = i + 1
	}
	return snapshot
}
