// Package harmonise reshapes validated raw tables into canonical
// contributions keyed by (LAD code, year). It renames source columns to
// canonical indicator names, applies unit conversions, aggregates LSOA rows
// up to LAD level with the per-indicator strategy the schema declares, and
// aligns fiscal reporting years onto calendar years.
package harmonise

import (
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/create-to-solve/jtis/internal/diagnostics"
	"github.com/create-to-solve/jtis/internal/model"
	"github.com/create-to-solve/jtis/internal/registry"
)

// SchemaValidationError marks a dataset whose raw table failed validation.
// The harmoniser refuses to run on it at all; there is no partial
// harmonisation of a non-conforming table.
type SchemaValidationError struct {
	DatasetID  string
	Violations int
}

func (e *SchemaValidationError) Error() string {
	return fmt.Sprintf("dataset %s failed validation with %d violations", e.DatasetID, e.Violations)
}

// UnmappableAreaError marks a row whose spatial code resolves to no
// recognised LAD. The row is dropped and the error recorded, never
// zero-filled.
type UnmappableAreaError struct {
	DatasetID string
	AreaCode  string
	Row       int
}

func (e *UnmappableAreaError) Error() string {
	return fmt.Sprintf("dataset %s row %d: area %q is not mappable to a recognised LAD", e.DatasetID, e.Row, e.AreaCode)
}

type cellKey struct {
	lad       string
	year      int
	indicator string
}

// Dataset harmonises one validated raw table into contributions. Dropped
// rows and per-year coverage are recorded in the given diagnostics bucket.
func Dataset(raw *model.RawTable, schema *registry.DatasetSchema, report *model.ValidationReport, areas *registry.AreaLookup, bucket *diagnostics.Bucket) ([]model.Contribution, error) {
	if report == nil || !report.Passed() {
		violations := 0
		if report != nil {
			violations = len(report.Violations)
		}
		return nil, &SchemaValidationError{DatasetID: raw.DatasetID, Violations: violations}
	}

	areaIdx := raw.ColumnIndex(schema.AreaColumn)
	if areaIdx < 0 {
		return nil, fmt.Errorf("dataset %s: area column %q missing after validation", raw.DatasetID, schema.AreaColumn)
	}
	yearIdx := -1
	if !schema.Static() {
		yearIdx = raw.ColumnIndex(schema.YearColumn)
		if yearIdx < 0 {
			return nil, fmt.Errorf("dataset %s: year column %q missing after validation", raw.DatasetID, schema.YearColumn)
		}
	}

	type boundColumn struct {
		registry.Column
		idx int
	}
	var cols []boundColumn
	for _, col := range schema.IndicatorColumns() {
		idx := raw.ColumnIndex(col.Name)
		if idx < 0 {
			continue // nullable column absent from this release of the source
		}
		cols = append(cols, boundColumn{Column: col, idx: idx})
	}

	cells := make(map[cellKey]accumulator)
	methods := make(map[cellKey]model.AggregationMethod)

	for rowNum, row := range raw.Rows {
		if areaIdx >= len(row) {
			continue
		}

		lad, weight, err := resolveArea(raw.DatasetID, schema, areas, row[areaIdx], rowNum)
		if err != nil {
			bucket.RecordUnmapped(row[areaIdx], rowNum)
			continue
		}
		if schema.Granularity == registry.GranularityLSOA && weight <= 0 {
			// The accumulator falls back to unit weight for this row, mixing
			// unit weights with real populations in the same mean.
			bucket.RecordUnweighted(row[areaIdx])
		}

		year := 0
		if yearIdx >= 0 {
			if yearIdx >= len(row) {
				continue
			}
			year, err = schema.ParseYear(row[yearIdx])
			if err != nil {
				continue // already reported by the validator
			}
		}

		for _, col := range cols {
			if col.idx >= len(row) || row[col.idx] == "" {
				continue // missingness is resolved at merge time, not invented here
			}
			value, err := strconv.ParseFloat(row[col.idx], 64)
			if err != nil {
				continue
			}
			if col.Scale != 0 {
				value *= col.Scale
			}

			key := cellKey{lad: lad, year: year, indicator: col.Indicator}
			acc, ok := cells[key]
			if !ok {
				acc, err = newAccumulator(col.Aggregate)
				if err != nil {
					return nil, fmt.Errorf("dataset %s: %w", raw.DatasetID, err)
				}
				cells[key] = acc
				methods[key] = col.Aggregate
			}
			acc.add(value, weight)
		}
	}

	keys := make([]cellKey, 0, len(cells))
	for key := range cells {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].lad != keys[j].lad {
			return keys[i].lad < keys[j].lad
		}
		if keys[i].year != keys[j].year {
			return keys[i].year < keys[j].year
		}
		return keys[i].indicator < keys[j].indicator
	})

	contributions := make([]model.Contribution, 0, len(keys))
	for _, key := range keys {
		value, ok := cells[key].result()
		if !ok {
			continue
		}
		contributions = append(contributions, model.Contribution{
			LADCode:   key.lad,
			Year:      key.year,
			Indicator: key.indicator,
			Value:     value,
			Source:    raw.DatasetID,
			Method:    methods[key],
		})
		bucket.RecordCoverage(key.year)
	}
	return contributions, nil
}

// resolveArea maps a raw spatial code to a LAD and an aggregation weight.
// LAD-level rows carry no weight; LSOA rows are weighted by LSOA population.
func resolveArea(datasetID string, schema *registry.DatasetSchema, areas *registry.AreaLookup, code string, row int) (string, float64, error) {
	switch schema.Granularity {
	case registry.GranularityLSOA:
		lad, pop, ok := areas.LSOA(code)
		if !ok {
			return "", 0, &UnmappableAreaError{DatasetID: datasetID, AreaCode: code, Row: row}
		}
		return lad, pop, nil
	default:
		if !areas.LADExists(code) {
			return "", 0, &UnmappableAreaError{DatasetID: datasetID, AreaCode: code, Row: row}
		}
		return code, 0, nil
	}
}

// Input pairs a raw table with its schema and validation report.
type Input struct {
	Raw    *model.RawTable
	Schema *registry.DatasetSchema
	Report *model.ValidationReport
}

// All harmonises every input in parallel. The datasets are independent and
// each task writes only to its own diagnostics bucket. A dataset that fails
// validation is skipped and recorded; the others still run so the run's
// diagnostics are complete.
func All(inputs []Input, areas *registry.AreaLookup, collector *diagnostics.Collector) map[string][]model.Contribution {
	results := make([]struct {
		id            string
		contributions []model.Contribution
	}, len(inputs))

	var wg sync.WaitGroup
	for i, in := range inputs {
		bucket := collector.Bucket(in.Raw.DatasetID)
		wg.Add(1)
		go func(i int, in Input, bucket *diagnostics.Bucket) {
			defer wg.Done()
			results[i].id = in.Raw.DatasetID
			contributions, err := Dataset(in.Raw, in.Schema, in.Report, areas, bucket)
			if err != nil {
				bucket.MarkSkipped(err.Error())
				return
			}
			results[i].contributions = contributions
		}(i, in, bucket)
	}
	wg.Wait()

	out := make(map[string][]model.Contribution, len(results))
	for _, r := range results {
		if r.contributions != nil {
			out[r.id] = r.contributions
		}
	}
	return out
}
