// Package merge joins per-dataset harmonised contributions into the single
// canonical LAD-year table. The join is a full outer join on (LAD, year): a
// row exists for every key any dataset observed, and indicators the other
// datasets did not contribute stay absent rather than defaulting to zero.
package merge

import (
	"fmt"
	"sort"

	"github.com/create-to-solve/jtis/internal/model"
)

// Build merges contributions into a frozen canonical table. The result is a
// pure function of the set of contributions: dataset iteration is by sorted
// id and conflicting writers of the same indicator are resolved by source id,
// so merging [A,B,C,D] and [D,C,B,A] yields identical tables.
func Build(perDataset map[string][]model.Contribution) *model.CanonicalTable {
	sources := make([]string, 0, len(perDataset))
	for id := range perDataset {
		sources = append(sources, id)
	}
	sort.Strings(sources)

	table := model.NewCanonicalTable()

	// Keyed contributions create rows.
	for _, source := range sources {
		for _, c := range perDataset[source] {
			if c.Year == 0 {
				continue
			}
			row := table.Upsert(model.Key{LADCode: c.LADCode, Year: c.Year})
			setValue(row, c)
		}
	}

	// Static contributions (no year dimension) broadcast onto every year the
	// LAD already has. They never create keys: a LAD observed only by a
	// static dataset has no year to attach to.
	keysByLAD := make(map[string][]model.Key)
	for _, key := range table.Keys() {
		keysByLAD[key.LADCode] = append(keysByLAD[key.LADCode], key)
	}
	for _, source := range sources {
		for _, c := range perDataset[source] {
			if c.Year != 0 {
				continue
			}
			for _, key := range keysByLAD[c.LADCode] {
				row, _ := table.Row(key)
				setValue(row, c)
			}
		}
	}

	table.Freeze()
	return table
}

// setValue writes one contribution into a row. If two datasets ever claim
// the same indicator for the same key, the lexicographically smaller source
// id wins, keeping the outcome independent of merge order.
func setValue(row *model.CanonicalRow, c model.Contribution) {
	if existing, ok := row.Provenance[c.Indicator]; ok && existing.Source <= c.Source {
		return
	}
	row.Values[c.Indicator] = c.Value
	row.Provenance[c.Indicator] = model.Provenance{Source: c.Source, Method: c.Method}
}

// Gap summarises the canonical keys one dataset did not cover.
type Gap struct {
	Dataset      string      `json:"dataset"`
	MissingCount int         `json:"missing_count"`
	Examples     []model.Key `json:"examples,omitempty"`
}

const maxGapExamples = 20

// Gaps reports, per dataset, how many canonical (LAD, year) keys lack any
// value from that dataset. Static datasets are measured after broadcast.
func Gaps(table *model.CanonicalTable, perDataset map[string][]model.Contribution) []Gap {
	sources := make([]string, 0, len(perDataset))
	for id := range perDataset {
		sources = append(sources, id)
	}
	sort.Strings(sources)

	gaps := make([]Gap, 0, len(sources))
	for _, source := range sources {
		gap := Gap{Dataset: source}
		for _, row := range table.Rows() {
			covered := false
			for _, prov := range row.Provenance {
				if prov.Source == source {
					covered = true
					break
				}
			}
			if !covered {
				gap.MissingCount++
				if len(gap.Examples) < maxGapExamples {
					gap.Examples = append(gap.Examples, row.Key())
				}
			}
		}
		gaps = append(gaps, gap)
	}
	return gaps
}

// DescribeGaps renders gaps as one-line notes for the diagnostics report.
func DescribeGaps(gaps []Gap) []string {
	notes := make([]string, 0, len(gaps))
	for _, g := range gaps {
		notes = append(notes, fmt.Sprintf("dataset %s missing from %d canonical keys", g.Dataset, g.MissingCount))
	}
	return notes
}
