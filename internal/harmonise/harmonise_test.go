package harmonise

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/create-to-solve/jtis/internal/diagnostics"
	"github.com/create-to-solve/jtis/internal/model"
	"github.com/create-to-solve/jtis/internal/registry"
)

const testAreaLookup = `lsoa_code,lsoa_population,lad_code,lad_name
E01011949,1598,E06000001,Hartlepool
E01012021,1000,E06000002,Middlesbrough
E01012022,3000,E06000002,Middlesbrough
E01012023,,E06000002,Middlesbrough
,,E06000005,Darlington
`

func testAreas(t *testing.T) *registry.AreaLookup {
	t.Helper()
	path := filepath.Join(t.TempDir(), "area_lookup.csv")
	if err := os.WriteFile(path, []byte(testAreaLookup), 0o644); err != nil {
		t.Fatalf("writing area lookup: %v", err)
	}
	areas, err := registry.LoadAreas(path)
	if err != nil {
		t.Fatalf("loading area lookup: %v", err)
	}
	return areas
}

func ptr(v float64) *float64 { return &v }

func passedReport(id string, rows int) *model.ValidationReport {
	return &model.ValidationReport{DatasetID: id, Rows: rows, CheckedAt: "2026-01-01T00:00:00Z"}
}

func ladSchema() *registry.DatasetSchema {
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
			{Name: "area_km2", Kind: registry.KindNumeric, Indicator: "area_km2", Aggregate: model.AggFirst},
		},
	}
	s.YearRange.Min = 2011
	s.YearRange.Max = 2023
	return s
}

func findContribution(t *testing.T, contributions []model.Contribution, lad string, year int, indicator string) model.Contribution {
	t.Helper()
	for _, c := range contributions {
		if c.LADCode == lad && c.Year == year && c.Indicator == indicator {
			return c
		}
	}
	t.Fatalf("no contribution for %s/%d/%s in %+v", lad, year, indicator, contributions)
	return model.Contribution{}
}

func TestSumAcrossSectorRows(t *testing.T) {
	raw := &model.RawTable{
		DatasetID: "desnz_emissions",
		Header:    []string{"lad_code", "year", "emissions_ktco2e", "area_km2"},
		Rows: [][]string{
			{"E06000001", "2023", "100.5", "93.6"},
			{"E06000001", "2023", "49.5", "93.6"},
			{"E06000001", "2022", "160", "93.6"},
		},
	}

	bucket := &diagnostics.Bucket{Dataset: "desnz_emissions"}
	contributions, err := Dataset(raw, ladSchema(), passedReport("desnz_emissions", 3), testAreas(t), bucket)
	if err != nil {
		t.Fatalf("harmonising: %v", err)
	}

	c := findContribution(t, contributions, "E06000001", 2023, "emissions_ktco2e")
	if c.Value != 150 {
		t.Errorf("expected sector rows summed to 150, got %g", c.Value)
	}
	if c.Source != "desnz_emissions" || c.Method != model.AggSum {
		t.Errorf("provenance not stamped: %+v", c)
	}

	area := findContribution(t, contributions, "E06000001", 2023, "area_km2")
	if area.Value != 93.6 || area.Method != model.AggFirst {
		t.Errorf("expected first-value area 93.6, got %+v", area)
	}

	if bucket.Coverage[2023] != 2 || bucket.Coverage[2022] != 2 {
		t.Errorf("unexpected coverage %v", bucket.Coverage)
	}
}

func TestLSOAPopulationWeightedMean(t *testing.T) {
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
			{"E01012021", "20"}, // pop 1000
			{"E01012022", "40"}, // pop 3000
		},
	}

	bucket := &diagnostics.Bucket{Dataset: "imd"}
	contributions, err := Dataset(raw, schema, passedReport("imd", 2), testAreas(t), bucket)
	if err != nil {
		t.Fatalf("harmonising: %v", err)
	}

	c := findContribution(t, contributions, "E06000002", 0, "imd_score")
	if c.Value != 35 {
		t.Errorf("expected population-weighted mean 35, got %g", c.Value)
	}
	if c.Year != 0 {
		t.Errorf("static dataset should carry year 0, got %d", c.Year)
	}
}

func TestUnweightedLSOARecorded(t *testing.T) {
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
			{"E01012021", "20"}, // pop 1000
			{"E01012023", "10"}, // no population in the lookup
		},
	}

	bucket := &diagnostics.Bucket{Dataset: "imd"}
	contributions, err := Dataset(raw, schema, passedReport("imd", 2), testAreas(t), bucket)
	if err != nil {
		t.Fatalf("harmonising: %v", err)
	}

	if len(bucket.UnweightedAreas) != 1 || bucket.UnweightedAreas[0] != "E01012023" {
		t.Fatalf("expected E01012023 recorded as unweighted, got %+v", bucket.UnweightedAreas)
	}

	// The unweighted row still participates, folded in with unit weight.
	c := findContribution(t, contributions, "E06000002", 0, "imd_score")
	want := (20.0*1000 + 10.0*1) / 1001
	if c.Value != want {
		t.Errorf("expected mean %g with unit-weight fallback, got %g", want, c.Value)
	}
}

func TestFiscalYearAlignment(t *testing.T) {
	schema := ladSchema()
	schema.YearConvention = registry.YearFiscalApril

	raw := &model.RawTable{
		DatasetID: "desnz_emissions",
		Header:    []string{"lad_code", "year", "emissions_ktco2e"},
		Rows: [][]string{
			{"E06000001", "2022-23", "10"},
		},
	}

	contributions, err := Dataset(raw, schema, passedReport("desnz_emissions", 1), testAreas(t), &diagnostics.Bucket{Dataset: "desnz_emissions"})
	if err != nil {
		t.Fatalf("harmonising: %v", err)
	}
	findContribution(t, contributions, "E06000001", 2022, "emissions_ktco2e")
}

func TestScaleApplied(t *testing.T) {
	schema := &registry.DatasetSchema{
		ID:             "ons_population",
		Granularity:    registry.GranularityLAD,
		YearConvention: registry.YearCalendar,
		AreaColumn:     "lad_code",
		YearColumn:     "year",
		Columns: []registry.Column{
			{Name: "lad_code", Kind: registry.KindAreaCode},
			{Name: "year", Kind: registry.KindYear},
			{Name: "population_thousands", Kind: registry.KindNumeric, Indicator: "population", Aggregate: model.AggSum, Scale: 1000},
		},
	}
	schema.YearRange.Min = 2011
	schema.YearRange.Max = 2023

	raw := &model.RawTable{
		DatasetID: "ons_population",
		Header:    []string{"lad_code", "year", "population_thousands"},
		Rows:      [][]string{{"E06000001", "2023", "92.3"}},
	}

	contributions, err := Dataset(raw, schema, passedReport("ons_population", 1), testAreas(t), &diagnostics.Bucket{Dataset: "ons_population"})
	if err != nil {
		t.Fatalf("harmonising: %v", err)
	}
	c := findContribution(t, contributions, "E06000001", 2023, "population")
	if c.Value != 92300 {
		t.Errorf("expected scale 1000 applied, got %g", c.Value)
	}
}

func TestUnmappableAreaDropped(t *testing.T) {
	raw := &model.RawTable{
		DatasetID: "desnz_emissions",
		Header:    []string{"lad_code", "year", "emissions_ktco2e"},
		Rows: [][]string{
			{"E06000001", "2023", "10"},
			{"E99999999", "2023", "10"},
		},
	}

	bucket := &diagnostics.Bucket{Dataset: "desnz_emissions"}
	contributions, err := Dataset(raw, ladSchema(), passedReport("desnz_emissions", 2), testAreas(t), bucket)
	if err != nil {
		t.Fatalf("harmonising: %v", err)
	}

	for _, c := range contributions {
		if c.LADCode == "E99999999" {
			t.Error("unmappable area must not be zero-filled into contributions")
		}
	}
	if len(bucket.UnmappedAreas) != 1 {
		t.Fatalf("expected 1 unmapped area recorded, got %+v", bucket.UnmappedAreas)
	}
	if u := bucket.UnmappedAreas[0]; u.AreaCode != "E99999999" || u.Row != 1 {
		t.Errorf("unexpected unmapped record %+v", u)
	}
}

func TestRefusesFailedValidation(t *testing.T) {
	raw := &model.RawTable{DatasetID: "desnz_emissions", Header: []string{"lad_code"}}
	report := &model.ValidationReport{
		DatasetID:  "desnz_emissions",
		Violations: []model.Violation{{Kind: model.ViolationColumnMissing, Row: -1}},
	}

	_, err := Dataset(raw, ladSchema(), report, testAreas(t), &diagnostics.Bucket{Dataset: "desnz_emissions"})
	var verr *SchemaValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected SchemaValidationError, got %v", err)
	}
	if verr.DatasetID != "desnz_emissions" || verr.Violations != 1 {
		t.Errorf("unexpected error detail %+v", verr)
	}

	// A missing report is just as fatal as a failing one.
	if _, err := Dataset(raw, ladSchema(), nil, testAreas(t), &diagnostics.Bucket{}); !errors.As(err, &verr) {
		t.Errorf("expected SchemaValidationError for nil report, got %v", err)
	}
}

func TestAllSkipsFailedDataset(t *testing.T) {
	areas := testAreas(t)
	collector := diagnostics.New()

	good := Input{
		Raw: &model.RawTable{
			DatasetID: "desnz_emissions",
			Header:    []string{"lad_code", "year", "emissions_ktco2e"},
			Rows:      [][]string{{"E06000001", "2023", "10"}},
		},
		Schema: ladSchema(),
		Report: passedReport("desnz_emissions", 1),
	}
	bad := Input{
		Raw:    &model.RawTable{DatasetID: "broken", Header: []string{"lad_code"}},
		Schema: ladSchema(),
		Report: &model.ValidationReport{
			DatasetID:  "broken",
			Violations: []model.Violation{{Kind: model.ViolationColumnMissing, Row: -1}},
		},
	}

	out := All([]Input{good, bad}, areas, collector)
	if _, ok := out["desnz_emissions"]; !ok {
		t.Error("expected passing dataset to be harmonised")
	}
	if _, ok := out["broken"]; ok {
		t.Error("failed dataset must not contribute")
	}

	report := collector.Report()
	var skipped bool
	for _, b := range report.Datasets {
		if b.Dataset == "broken" && b.Skipped {
			skipped = true
		}
	}
	if !skipped {
		t.Error("expected broken dataset marked skipped in diagnostics")
	}
}

func TestContributionsSorted(t *testing.T) {
	raw := &model.RawTable{
		DatasetID: "desnz_emissions",
		Header:    []string{"lad_code", "year", "emissions_ktco2e"},
		Rows: [][]string{
			{"E06000002", "2023", "1"},
			{"E06000001", "2023", "1"},
			{"E06000001", "2022", "1"},
		},
	}

	contributions, err := Dataset(raw, ladSchema(), passedReport("desnz_emissions", 3), testAreas(t), &diagnostics.Bucket{})
	if err != nil {
		t.Fatalf("harmonising: %v", err)
	}
	if len(contributions) != 3 {
		t.Fatalf("expected 3 contributions, got %d", len(contributions))
	}
	for i := 1; i < len(contributions); i++ {
		a, b := contributions[i-1], contributions[i]
		if a.LADCode > b.LADCode || (a.LADCode == b.LADCode && a.Year > b.Year) {
			t.Errorf("contributions out of order at %d: %+v then %+v", i, a, b)
		}
	}
}
