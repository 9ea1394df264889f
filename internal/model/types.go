package model

// AggregationMethod says how small-area values combine up to LAD level.
type AggregationMethod string

const (
	// AggSum adds values. Correct for additive quantities (population, emissions).
	AggSum AggregationMethod = "sum"
	// AggWeightedMean averages values weighted by LSOA population.
	// Required for intensities and ranks, where a plain sum is meaningless.
	AggWeightedMean AggregationMethod = "weighted_mean"
	// AggMean is an unweighted average.
	AggMean AggregationMethod = "mean"
	// AggFirst keeps the first value seen. Used for per-area constants that
	// source tables repeat on every sector/gas row (area km2, population).
	AggFirst AggregationMethod = "first"
)

// NormalisationMethod identifies how a raw metric was scaled into an indicator.
type NormalisationMethod string

const (
	NormMinMax NormalisationMethod = "minmax"
	NormZScore NormalisationMethod = "zscore"
)

// Canonical indicator names shared across harmonisation, merge and scoring.
const (
	IndicatorEmissions   = "emissions_ktco2e"
	IndicatorTerritorial = "territorial_emissions_ktco2e"
	IndicatorFuel        = "fuel_ktoe"
	IndicatorPersonal    = "personal_transport_ktoe"
	IndicatorFreight     = "freight_transport_ktoe"
	IndicatorBioenergy   = "bioenergy_ktoe"
	IndicatorPopulation  = "population"
	IndicatorDeprivation = "imd_score"
	IndicatorArea        = "area_km2"
)

// RawTable is a rectangular table as loaded from a source file, tagged with
// the dataset schema it should conform to. Cells are kept verbatim so the
// validator sees exactly what the file contained.
type RawTable struct {
	DatasetID string     `json:"dataset_id"`
	Header    []string   `json:"header"`
	Rows      [][]string `json:"rows"`
}

// ColumnIndex returns the position of a named column, or -1.
func (t *RawTable) ColumnIndex(name string) int {
	for i, h := range t.Header {
		if h == name {
			return i
		}
	}
	return -1
}

// ViolationKind classifies a validation failure.
type ViolationKind string

const (
	ViolationColumnMissing  ViolationKind = "column_missing"
	ViolationTypeMismatch   ViolationKind = "type_mismatch"
	ViolationOutOfBounds    ViolationKind = "out_of_bounds"
	ViolationYearOutOfRange ViolationKind = "year_out_of_range"
	ViolationDuplicateKey   ViolationKind = "duplicate_key"
)

// Violation is a single validation failure. Row is zero-based over data rows
// (the header is not counted) and -1 for table-level violations.
type Violation struct {
	Kind   ViolationKind `json:"kind"`
	Column string        `json:"column,omitempty"`
	Row    int           `json:"row"`
	Value  string        `json:"value,omitempty"`
	Detail string        `json:"detail"`
}

// ValidationReport is the exhaustive result of validating one raw table.
// Immutable once produced.
type ValidationReport struct {
	DatasetID  string      `json:"dataset_id"`
	Rows       int         `json:"rows"`
	Violations []Violation `json:"violations,omitempty"`
	CheckedAt  string      `json:"checked_at"`
}

// Passed reports whether the table conformed to its schema.
func (r *ValidationReport) Passed() bool {
	return len(r.Violations) == 0
}

// Contribution is one harmonised value: a single dataset's statement about
// one indicator for one (LAD, year). Year 0 marks a static contribution that
// applies to every year the LAD appears in (IMD is published once, not
// annually).
type Contribution struct {
	LADCode   string            `json:"lad_code"`
	Year      int               `json:"year"`
	Indicator string            `json:"indicator"`
	Value     float64           `json:"value"`
	Source    string            `json:"source"`
	Method    AggregationMethod `json:"method"`
}

// Key identifies a canonical row.
type Key struct {
	LADCode string `json:"lad_code"`
	Year    int    `json:"year"`
}

// Less orders keys lexicographically by (LADCode, Year).
func (k Key) Less(other Key) bool {
	if k.LADCode != other.LADCode {
		return k.LADCode < other.LADCode
	}
	return k.Year < other.Year
}

// Provenance records where a canonical value came from.
type Provenance struct {
	Source string            `json:"source"`
	Method AggregationMethod `json:"method"`
}

// CanonicalRow holds every harmonised value for one (LAD, year). An indicator
// absent from Values is missing, never zero.
type CanonicalRow struct {
	LADCode    string                `json:"lad_code"`
	Year       int                   `json:"year"`
	Values     map[string]float64    `json:"values"`
	Provenance map[string]Provenance `json:"provenance"`
}

// Key returns the row's identity.
func (r *CanonicalRow) Key() Key {
	return Key{LADCode: r.LADCode, Year: r.Year}
}

// Value looks up an indicator, reporting presence.
func (r *CanonicalRow) Value(indicator string) (float64, bool) {
	v, ok := r.Values[indicator]
	return v, ok
}

// IndicatorSet holds the normalised indicators derived for one canonical row.
type IndicatorSet struct {
	LADCode    string                         `json:"lad_code"`
	Year       int                            `json:"year"`
	Indicators map[string]float64             `json:"indicators"`
	Methods    map[string]NormalisationMethod `json:"methods"`
}

// Key returns the set's identity.
func (s *IndicatorSet) Key() Key {
	return Key{LADCode: s.LADCode, Year: s.Year}
}

// JTIScore is the composite score for one (LAD, year), with the renormalised
// weights that produced it and the indicator values that went in.
type JTIScore struct {
	LADCode   string             `json:"lad_code"`
	Year      int                `json:"year"`
	Score     float64            `json:"score"`
	Weights   map[string]float64 `json:"weights"`
	Breakdown map[string]float64 `json:"breakdown"`
}

// RankEntry is one position in a ranked snapshot.
type RankEntry struct {
	Rank    int     `json:"rank"`
	LADCode string  `json:"lad_code"`
	LADName string  `json:"lad_name,omitempty"`
	Score   float64 `json:"score"`
}

// RankedSnapshot lists every scored LAD for one year, JTI descending, ties
// broken by LAD code ascending, ranks 1..N without gaps.
type RankedSnapshot struct {
	Year    int         `json:"year"`
	Entries []RankEntry `json:"entries"`
}
