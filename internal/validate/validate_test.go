package validate

import (
	"testing"

	"github.com/create-to-solve/jtis/internal/model"
	"github.com/create-to-solve/jtis/internal/registry"
)

func ptr(v float64) *float64 { return &v }

func emissionsSchema() *registry.DatasetSchema {
	s := &registry.DatasetSchema{
		ID:             "desnz_emissions",
		Granularity:    registry.GranularityLAD,
		YearConvention: registry.YearCalendar,
		AreaColumn:     "lad_code",
		YearColumn:     "year",
		Columns: []registry.Column{
			{Name: "lad_code", Kind: registry.KindAreaCode},
			{Name: "year", Kind: registry.KindYear},
			{Name: "emissions_ktco2e", Kind: registry.KindNumeric, Min: ptr(0), Indicator: "emissions_ktco2e", Aggregate: model.AggSum},
		},
	}
	s.YearRange.Min = 2011
	s.YearRange.Max = 2023
	return s
}

func table(header []string, rows ...[]string) *model.RawTable {
	return &model.RawTable{DatasetID: "desnz_emissions", Header: header, Rows: rows}
}

func TestConformingTable(t *testing.T) {
	raw := table(
		[]string{"lad_code", "year", "emissions_ktco2e"},
		[]string{"E06000001", "2023", "412.5"},
		[]string{"E06000002", "2023", "388.1"},
	)

	report := Run(raw, emissionsSchema())
	if !report.Passed() {
		t.Fatalf("expected pass, got violations %+v", report.Violations)
	}
	if report.Rows != 2 {
		t.Errorf("expected 2 rows recorded, got %d", report.Rows)
	}
	if report.CheckedAt == "" {
		t.Error("expected CheckedAt to be stamped")
	}
}

func TestNegativeEmissionsOutOfBounds(t *testing.T) {
	raw := table(
		[]string{"lad_code", "year", "emissions_ktco2e"},
		[]string{"E06000001", "2023", "-3.2"},
	)

	report := Run(raw, emissionsSchema())
	if report.Passed() {
		t.Fatal("expected out-of-bounds violation")
	}
	if len(report.Violations) != 1 {
		t.Fatalf("expected 1 violation, got %+v", report.Violations)
	}
	v := report.Violations[0]
	if v.Kind != model.ViolationOutOfBounds {
		t.Errorf("expected out_of_bounds, got %q", v.Kind)
	}
	if v.Column != "emissions_ktco2e" || v.Row != 0 || v.Value != "-3.2" {
		t.Errorf("violation should name column, row and value: %+v", v)
	}
}

func TestMissingColumn(t *testing.T) {
	raw := table(
		[]string{"lad_code", "year"},
		[]string{"E06000001", "2023"},
	)

	report := Run(raw, emissionsSchema())
	if report.Passed() {
		t.Fatal("expected missing column violation")
	}
	v := report.Violations[0]
	if v.Kind != model.ViolationColumnMissing || v.Column != "emissions_ktco2e" {
		t.Errorf("expected column_missing for emissions_ktco2e, got %+v", v)
	}
	if v.Row != -1 {
		t.Errorf("table-level violation should carry row -1, got %d", v.Row)
	}
}

func TestAllViolationsCollected(t *testing.T) {
	// One pass must surface every problem, not stop at the first.
	raw := table(
		[]string{"lad_code", "year", "emissions_ktco2e"},
		[]string{"not-a-code", "2023", "10"},
		[]string{"E06000001", "1999", "abc"},
	)

	report := Run(raw, emissionsSchema())
	if len(report.Violations) != 3 {
		t.Fatalf("expected 3 violations, got %+v", report.Violations)
	}

	kinds := make(map[model.ViolationKind]int)
	for _, v := range report.Violations {
		kinds[v.Kind]++
	}
	if kinds[model.ViolationTypeMismatch] != 2 {
		t.Errorf("expected 2 type mismatches (area code, non-numeric), got %d", kinds[model.ViolationTypeMismatch])
	}
	if kinds[model.ViolationYearOutOfRange] != 1 {
		t.Errorf("expected 1 year out of range, got %d", kinds[model.ViolationYearOutOfRange])
	}
}

func TestNonFiniteNumericCells(t *testing.T) {
	// strconv.ParseFloat parses these without error, and NaN passes every
	// bounds check; a single such cell reaching the scorer would turn a whole
	// year's normalisation parameters into NaN.
	raw := table(
		[]string{"lad_code", "year", "emissions_ktco2e"},
		[]string{"E06000001", "2023", "NaN"},
		[]string{"E06000002", "2023", "+Inf"},
		[]string{"E06000003", "2023", "-Infinity"},
		[]string{"E06000004", "2023", "412.5"},
	)

	report := Run(raw, emissionsSchema())
	if len(report.Violations) != 3 {
		t.Fatalf("expected 3 violations, got %+v", report.Violations)
	}
	for i, v := range report.Violations {
		if v.Kind != model.ViolationTypeMismatch || v.Row != i {
			t.Errorf("expected type_mismatch on row %d, got %+v", i, v)
		}
	}
}

func TestEmptyNonNullableCell(t *testing.T) {
	raw := table(
		[]string{"lad_code", "year", "emissions_ktco2e"},
		[]string{"E06000001", "2023", ""},
	)

	report := Run(raw, emissionsSchema())
	if report.Passed() {
		t.Fatal("expected violation for empty non-nullable cell")
	}
	if report.Violations[0].Kind != model.ViolationTypeMismatch {
		t.Errorf("expected type_mismatch, got %q", report.Violations[0].Kind)
	}
}

func TestNullableColumnMayBeAbsent(t *testing.T) {
	schema := emissionsSchema()
	schema.Columns = append(schema.Columns, registry.Column{
		Name: "territorial_emissions_ktco2e", Kind: registry.KindNumeric, Nullable: true,
	})

	raw := table(
		[]string{"lad_code", "year", "emissions_ktco2e"},
		[]string{"E06000001", "2023", "5"},
	)

	if report := Run(raw, schema); !report.Passed() {
		t.Errorf("absent nullable column should not fail: %+v", report.Violations)
	}
}

func TestFiscalYearConvention(t *testing.T) {
	schema := emissionsSchema()
	schema.YearConvention = registry.YearFiscalApril

	raw := table(
		[]string{"lad_code", "year", "emissions_ktco2e"},
		[]string{"E06000001", "2022-23", "5"},
		[]string{"E06000001", "2010-11", "5"},
	)

	report := Run(raw, schema)
	if len(report.Violations) != 1 {
		t.Fatalf("expected only the 2010-11 row flagged, got %+v", report.Violations)
	}
	if v := report.Violations[0]; v.Kind != model.ViolationYearOutOfRange || v.Row != 1 {
		t.Errorf("expected year_out_of_range on row 1, got %+v", v)
	}
}

func TestDuplicateKeys(t *testing.T) {
	schema := emissionsSchema()
	schema.Keyed = true

	raw := table(
		[]string{"lad_code", "year", "emissions_ktco2e"},
		[]string{"E06000001", "2023", "5"},
		[]string{"E06000001", "2022", "5"},
		[]string{"E06000001", "2023", "6"},
	)

	report := Run(raw, schema)
	if len(report.Violations) != 1 {
		t.Fatalf("expected 1 duplicate key violation, got %+v", report.Violations)
	}
	v := report.Violations[0]
	if v.Kind != model.ViolationDuplicateKey || v.Row != 2 {
		t.Errorf("expected duplicate_key on row 2, got %+v", v)
	}
}

func TestStaticDatasetKeyedOnAreaAlone(t *testing.T) {
	schema := &registry.DatasetSchema{
		ID:          "imd",
		Granularity: registry.GranularityLSOA,
		Keyed:       true,
		AreaColumn:  "lsoa_code",
		Columns: []registry.Column{
			{Name: "lsoa_code", Kind: registry.KindAreaCode},
			{Name: "imd_score", Kind: registry.KindNumeric, Min: ptr(0), Indicator: "imd_score", Aggregate: model.AggWeightedMean},
		},
	}

	raw := &model.RawTable{
		DatasetID: "imd",
		Header:    []string{"lsoa_code", "imd_score"},
		Rows: [][]string{
			{"E01011949", "23.4"},
			{"E01011949", "23.4"},
		},
	}

	report := Run(raw, schema)
	if len(report.Violations) != 1 || report.Violations[0].Kind != model.ViolationDuplicateKey {
		t.Errorf("expected duplicate_key for repeated LSOA, got %+v", report.Violations)
	}
}
