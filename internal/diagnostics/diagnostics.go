// Package diagnostics accumulates validation, coverage and scoring
// diagnostics for one pipeline run. Collection is append-only: each parallel
// harmonisation task writes to its own bucket, and the report is assembled
// from all buckets at the end. The report is always produced, even when part
// of the run failed, so operators can see exactly what was excluded and why.
package diagnostics

import (
	"encoding/json"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/create-to-solve/jtis/internal/model"
	"github.com/google/uuid"
)

// UnmappedArea records a row dropped because its spatial code could not be
// resolved to a recognised LAD.
type UnmappedArea struct {
	Dataset  string `json:"dataset"`
	AreaCode string `json:"area_code"`
	Row      int    `json:"row"`
}

// Exclusion records a canonical row left out of ranking because it had no
// scorable indicators.
type Exclusion struct {
	LADCode string `json:"lad_code"`
	Year    int    `json:"year"`
	Reason  string `json:"reason"`
}

// Bucket is one dataset's slice of the run diagnostics. A bucket is owned by
// a single harmonisation task, so its methods need no locking.
type Bucket struct {
	Dataset       string         `json:"dataset"`
	UnmappedAreas []UnmappedArea `json:"unmapped_areas,omitempty"`
	// UnweightedAreas lists LSOA codes that carried no population weight in
	// the lookup and so contributed with unit weight.
	UnweightedAreas []string    `json:"unweighted_areas,omitempty"`
	Coverage        map[int]int `json:"coverage,omitempty"`
	Skipped         bool        `json:"skipped"`
	SkippedReason   string      `json:"skipped_reason,omitempty"`
}

// RecordUnmapped notes a dropped row.
func (b *Bucket) RecordUnmapped(areaCode string, row int) {
	b.UnmappedAreas = append(b.UnmappedAreas, UnmappedArea{
		Dataset:  b.Dataset,
		AreaCode: areaCode,
		Row:      row,
	})
}

// RecordUnweighted notes an LSOA folded in with unit weight.
func (b *Bucket) RecordUnweighted(areaCode string) {
	b.UnweightedAreas = append(b.UnweightedAreas, areaCode)
}

// RecordCoverage counts one contributed value for a year.
func (b *Bucket) RecordCoverage(year int) {
	if b.Coverage == nil {
		b.Coverage = make(map[int]int)
	}
	b.Coverage[year]++
}

// MarkSkipped notes that the dataset's contribution was dropped entirely.
func (b *Bucket) MarkSkipped(reason string) {
	b.Skipped = true
	b.SkippedReason = reason
}

// Report is the serialisable outcome of a run.
type Report struct {
	RunID       string                    `json:"run_id"`
	StartedAt   string                    `json:"started_at"`
	GeneratedAt string                    `json:"generated_at"`
	Validation  []*model.ValidationReport `json:"validation,omitempty"`
	Datasets    []*Bucket                 `json:"datasets,omitempty"`
	Exclusions  []Exclusion               `json:"exclusions,omitempty"`
	Notes       []string                  `json:"notes,omitempty"`
}

// Collector gathers diagnostics across pipeline stages.
type Collector struct {
	runID   string
	started time.Time

	mu         sync.Mutex
	validation []*model.ValidationReport
	buckets    map[string]*Bucket
	exclusions []Exclusion
	notes      []string
}

// New creates a collector with a fresh run id.
func New() *Collector {
	return &Collector{
		runID:   uuid.NewString(),
		started: time.Now().UTC(),
		buckets: make(map[string]*Bucket),
	}
}

// RunID returns the run identifier stamped on the report.
func (c *Collector) RunID() string {
	return c.runID
}

// AddValidation attaches a validation report.
func (c *Collector) AddValidation(report *model.ValidationReport) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.validation = append(c.validation, report)
}

// Bucket returns (creating if needed) the bucket for a dataset. Create all
// buckets before spawning parallel tasks; after that each task touches only
// its own.
func (c *Collector) Bucket(dataset string) *Bucket {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.buckets[dataset]
	if !ok {
		b = &Bucket{Dataset: dataset}
		c.buckets[dataset] = b
	}
	return b
}

// Exclude records a row excluded from scoring.
func (c *Collector) Exclude(ladCode string, year int, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.exclusions = append(c.exclusions, Exclusion{LADCode: ladCode, Year: year, Reason: reason})
}

// Note appends a free-form observation.
func (c *Collector) Note(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notes = append(c.notes, text)
}

// Report assembles the current state into a deterministic report: validation
// by dataset id, buckets by dataset id, exclusions by (LAD, year).
func (c *Collector) Report() *Report {
	c.mu.Lock()
	defer c.mu.Unlock()

	validation := make([]*model.ValidationReport, len(c.validation))
	copy(validation, c.validation)
	sort.Slice(validation, func(i, j int) bool { return validation[i].DatasetID < validation[j].DatasetID })

	buckets := make([]*Bucket, 0, len(c.buckets))
	for _, b := range c.buckets {
		buckets = append(buckets, b)
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Dataset < buckets[j].Dataset })

	exclusions := make([]Exclusion, len(c.exclusions))
	copy(exclusions, c.exclusions)
	sort.Slice(exclusions, func(i, j int) bool {
		if exclusions[i].LADCode != exclusions[j].LADCode {
			return exclusions[i].LADCode < exclusions[j].LADCode
		}
		return exclusions[i].Year < exclusions[j].Year
	})

	return &Report{
		RunID:       c.runID,
		StartedAt:   c.started.Format(time.RFC3339),
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Validation:  validation,
		Datasets:    buckets,
		Exclusions:  exclusions,
		Notes:       append([]string(nil), c.notes...),
	}
}

// WriteJSON serialises the report.
func (c *Collector) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(c.Report())
}
