package merge

import (
	"reflect"
	"testing"

	"github.com/create-to-solve/jtis/internal/model"
)

func contribution(lad string, year int, indicator string, value float64, source string) model.Contribution {
	return model.Contribution{
		LADCode:   lad,
		Year:      year,
		Indicator: indicator,
		Value:     value,
		Source:    source,
		Method:    model.AggSum,
	}
}

func TestFullOuterJoin(t *testing.T) {
	table := Build(map[string][]model.Contribution{
		"desnz_emissions": {
			contribution("E06000001", 2023, "emissions_ktco2e", 150, "desnz_emissions"),
			contribution("E06000002", 2023, "emissions_ktco2e", 210, "desnz_emissions"),
		},
		"dft_fuel": {
			contribution("E06000001", 2023, "fuel_ktoe", 48, "dft_fuel"),
			contribution("E06000003", 2022, "fuel_ktoe", 31, "dft_fuel"),
		},
	})

	if table.Len() != 3 {
		t.Fatalf("expected 3 canonical rows, got %d", table.Len())
	}

	row, ok := table.Row(model.Key{LADCode: "E06000001", Year: 2023})
	if !ok {
		t.Fatal("expected row for E06000001/2023")
	}
	if v, _ := row.Value("emissions_ktco2e"); v != 150 {
		t.Errorf("expected emissions 150, got %g", v)
	}
	if v, _ := row.Value("fuel_ktoe"); v != 48 {
		t.Errorf("expected fuel 48, got %g", v)
	}

	// A key seen by only one dataset still exists, with the other indicators
	// absent rather than zero.
	row, ok = table.Row(model.Key{LADCode: "E06000003", Year: 2022})
	if !ok {
		t.Fatal("expected row for E06000003/2022")
	}
	if _, present := row.Value("emissions_ktco2e"); present {
		t.Error("missing indicator must stay absent, not default to zero")
	}
}

func TestMergeOrderIndependent(t *testing.T) {
	// Both datasets claim the same indicator for the same key. The outcome
	// must not depend on which map the contributions arrived in.
	forward := map[string][]model.Contribution{
		"a_first":  {contribution("E06000001", 2023, "population", 92000, "a_first")},
		"b_second": {contribution("E06000001", 2023, "population", 93000, "b_second")},
		"c_third":  {contribution("E06000001", 2023, "fuel_ktoe", 48, "c_third")},
		"d_fourth": {contribution("E06000002", 2023, "fuel_ktoe", 50, "d_fourth")},
	}
	reverse := map[string][]model.Contribution{
		"d_fourth": forward["d_fourth"],
		"c_third":  forward["c_third"],
		"b_second": forward["b_second"],
		"a_first":  forward["a_first"],
	}

	left := Build(forward)
	right := Build(reverse)

	leftRows := left.Rows()
	rightRows := right.Rows()
	if len(leftRows) != len(rightRows) {
		t.Fatalf("row counts differ: %d vs %d", len(leftRows), len(rightRows))
	}
	for i := range leftRows {
		if !reflect.DeepEqual(leftRows[i], rightRows[i]) {
			t.Errorf("row %d differs: %+v vs %+v", i, leftRows[i], rightRows[i])
		}
	}

	row, _ := left.Row(model.Key{LADCode: "E06000001", Year: 2023})
	if v, _ := row.Value("population"); v != 92000 {
		t.Errorf("expected lexicographically smaller source to win, got %g", v)
	}
	if prov := row.Provenance["population"]; prov.Source != "a_first" {
		t.Errorf("expected provenance a_first, got %+v", prov)
	}
}

func TestStaticBroadcast(t *testing.T) {
	table := Build(map[string][]model.Contribution{
		"desnz_emissions": {
			contribution("E06000001", 2022, "emissions_ktco2e", 160, "desnz_emissions"),
			contribution("E06000001", 2023, "emissions_ktco2e", 150, "desnz_emissions"),
		},
		"imd": {
			{LADCode: "E06000001", Year: 0, Indicator: "imd_score", Value: 35, Source: "imd", Method: model.AggWeightedMean},
			{LADCode: "E06000009", Year: 0, Indicator: "imd_score", Value: 22, Source: "imd", Method: model.AggWeightedMean},
		},
	})

	// The static score lands on every year the LAD already has.
	for _, year := range []int{2022, 2023} {
		row, ok := table.Row(model.Key{LADCode: "E06000001", Year: year})
		if !ok {
			t.Fatalf("expected row for %d", year)
		}
		if v, present := row.Value("imd_score"); !present || v != 35 {
			t.Errorf("year %d: expected broadcast imd_score 35, got (%g, %v)", year, v, present)
		}
	}

	// A LAD observed only by the static dataset has no year to attach to, so
	// no key is invented for it.
	if table.Len() != 2 {
		t.Errorf("expected 2 rows, got %d", table.Len())
	}
	for _, key := range table.Keys() {
		if key.LADCode == "E06000009" {
			t.Error("static-only LAD must not create canonical keys")
		}
	}
}

func TestTableFrozen(t *testing.T) {
	table := Build(map[string][]model.Contribution{
		"desnz_emissions": {contribution("E06000001", 2023, "emissions_ktco2e", 150, "desnz_emissions")},
	})

	defer func() {
		if recover() == nil {
			t.Error("expected panic on upsert into merged table")
		}
	}()
	table.Upsert(model.Key{LADCode: "E06000002", Year: 2023})
}

func TestGaps(t *testing.T) {
	perDataset := map[string][]model.Contribution{
		"desnz_emissions": {
			contribution("E06000001", 2023, "emissions_ktco2e", 150, "desnz_emissions"),
			contribution("E06000002", 2023, "emissions_ktco2e", 210, "desnz_emissions"),
		},
		"dft_fuel": {
			contribution("E06000001", 2023, "fuel_ktoe", 48, "dft_fuel"),
		},
	}
	table := Build(perDataset)

	gaps := Gaps(table, perDataset)
	if len(gaps) != 2 {
		t.Fatalf("expected 2 gap summaries, got %d", len(gaps))
	}
	// Sorted by dataset id.
	if gaps[0].Dataset != "desnz_emissions" || gaps[0].MissingCount != 0 {
		t.Errorf("unexpected gap %+v", gaps[0])
	}
	if gaps[1].Dataset != "dft_fuel" || gaps[1].MissingCount != 1 {
		t.Errorf("unexpected gap %+v", gaps[1])
	}
	if len(gaps[1].Examples) != 1 || gaps[1].Examples[0].LADCode != "E06000002" {
		t.Errorf("unexpected gap examples %+v", gaps[1].Examples)
	}

	notes := DescribeGaps(gaps)
	if len(notes) != 2 {
		t.Errorf("expected 2 notes, got %v", notes)
	}
}
