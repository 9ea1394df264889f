// Package validate checks a raw table against its declared schema before any
// transformation. Every violation is collected in a single pass so one run
// surfaces every problem, instead of stopping at the first.
package validate

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"time"

	"github.com/create-to-solve/jtis/internal/model"
	"github.com/create-to-solve/jtis/internal/registry"
)

// ONS geography codes: one letter (country), two-digit entity type, six-digit
// identifier, e.g. E06000001 or E01012345.
var areaCodePattern = regexp.MustCompile(`^[EWSN]\d{8}$`)

// Run validates a raw table against its schema and returns an exhaustive
// report. Check order: required columns, kind conformance, numeric bounds,
// year range, duplicate (area, year) keys.
func Run(raw *model.RawTable, schema *registry.DatasetSchema) *model.ValidationReport {
	report := &model.ValidationReport{
		DatasetID: raw.DatasetID,
		Rows:      len(raw.Rows),
		CheckedAt: time.Now().UTC().Format(time.RFC3339),
	}

	// (a) Required columns. Missing columns are excluded from value checks
	// rather than failing fast, so the rest of the report stays complete.
	colIndex := make(map[string]int)
	for _, col := range schema.Columns {
		idx := raw.ColumnIndex(col.Name)
		if idx < 0 {
			if !col.Nullable {
				report.Violations = append(report.Violations, model.Violation{
					Kind:   model.ViolationColumnMissing,
					Column: col.Name,
					Row:    -1,
					Detail: fmt.Sprintf("required column %q not present", col.Name),
				})
			}
			continue
		}
		colIndex[col.Name] = idx
	}

	for _, col := range schema.Columns {
		idx, ok := colIndex[col.Name]
		if !ok {
			continue
		}
		checkColumn(raw, schema, col, idx, report)
	}

	if schema.Keyed {
		checkDuplicateKeys(raw, schema, colIndex, report)
	}

	return report
}

func checkColumn(raw *model.RawTable, schema *registry.DatasetSchema, col registry.Column, idx int, report *model.ValidationReport) {
	for rowNum, row := range raw.Rows {
		if idx >= len(row) {
			continue // short row; the cells that exist are still checked
		}
		cell := row[idx]
		if cell == "" {
			if !col.Nullable {
				report.Violations = append(report.Violations, model.Violation{
					Kind:   model.ViolationTypeMismatch,
					Column: col.Name,
					Row:    rowNum,
					Detail: "empty value in non-nullable column",
				})
			}
			continue
		}

		switch col.Kind {
		case registry.KindNumeric:
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				report.Violations = append(report.Violations, model.Violation{
					Kind:   model.ViolationTypeMismatch,
					Column: col.Name,
					Row:    rowNum,
					Value:  cell,
					Detail: "not numeric",
				})
				continue
			}
			// ParseFloat accepts "NaN" and "Inf" literals, and NaN slips past
			// every bounds comparison. Non-finite values are rejected outright.
			if math.IsNaN(v) || math.IsInf(v, 0) {
				report.Violations = append(report.Violations, model.Violation{
					Kind:   model.ViolationTypeMismatch,
					Column: col.Name,
					Row:    rowNum,
					Value:  cell,
					Detail: "not finite",
				})
				continue
			}
			if col.Min != nil && v < *col.Min {
				report.Violations = append(report.Violations, model.Violation{
					Kind:   model.ViolationOutOfBounds,
					Column: col.Name,
					Row:    rowNum,
					Value:  cell,
					Detail: fmt.Sprintf("below declared minimum %g", *col.Min),
				})
			}
			if col.Max != nil && v > *col.Max {
				report.Violations = append(report.Violations, model.Violation{
					Kind:   model.ViolationOutOfBounds,
					Column: col.Name,
					Row:    rowNum,
					Value:  cell,
					Detail: fmt.Sprintf("above declared maximum %g", *col.Max),
				})
			}

		case registry.KindYear:
			year, err := schema.ParseYear(cell)
			if err != nil {
				report.Violations = append(report.Violations, model.Violation{
					Kind:   model.ViolationTypeMismatch,
					Column: col.Name,
					Row:    rowNum,
					Value:  cell,
					Detail: "not a year",
				})
				continue
			}
			if year < schema.YearRange.Min || year > schema.YearRange.Max {
				report.Violations = append(report.Violations, model.Violation{
					Kind:   model.ViolationYearOutOfRange,
					Column: col.Name,
					Row:    rowNum,
					Value:  cell,
					Detail: fmt.Sprintf("outside [%d, %d]", schema.YearRange.Min, schema.YearRange.Max),
				})
			}

		case registry.KindAreaCode:
			if !areaCodePattern.MatchString(cell) {
				report.Violations = append(report.Violations, model.Violation{
					Kind:   model.ViolationTypeMismatch,
					Column: col.Name,
					Row:    rowNum,
					Value:  cell,
					Detail: "not an ONS geography code",
				})
			}

		case registry.KindCategorical:
			// Any non-empty string conforms.
		}
	}
}

// checkDuplicateKeys flags repeated (area, year) pairs for datasets declared
// as keyed that way. Static datasets are keyed on area alone.
func checkDuplicateKeys(raw *model.RawTable, schema *registry.DatasetSchema, colIndex map[string]int, report *model.ValidationReport) {
	areaIdx, haveArea := colIndex[schema.AreaColumn]
	if !haveArea {
		return
	}
	yearIdx := -1
	if !schema.Static() {
		idx, haveYear := colIndex[schema.YearColumn]
		if !haveYear {
			return
		}
		yearIdx = idx
	}

	seen := make(map[string]int)
	for rowNum, row := range raw.Rows {
		if areaIdx >= len(row) {
			continue
		}
		key := row[areaIdx]
		if yearIdx >= 0 {
			if yearIdx >= len(row) {
				continue
			}
			key += "|" + row[yearIdx]
		}
		if first, dup := seen[key]; dup {
			report.Violations = append(report.Violations, model.Violation{
				Kind:   model.ViolationDuplicateKey,
				Column: schema.AreaColumn,
				Row:    rowNum,
				Value:  key,
				Detail: fmt.Sprintf("duplicate of row %d", first),
			})
			continue
		}
		seen[key] = rowNum
	}
}
