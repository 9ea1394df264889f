package registry

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
)

// AreaLookup is the fixed spatial reference loaded once with the registry:
// the recognised LAD codes and names, plus the LSOA-to-LAD mapping with LSOA
// populations used as weights for intensity aggregation.
type AreaLookup struct {
	ladName map[string]string
	lsoaLAD map[string]string
	lsoaPop map[string]float64
}

// LoadAreas reads an area lookup CSV with columns
// lsoa_code, lsoa_population, lad_code, lad_name. Rows with an empty
// lsoa_code register the LAD only (for LADs with no LSOA breakdown needed).
func LoadAreas(path string) (*AreaLookup, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening area lookup: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading area lookup: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("area lookup %s is empty", path)
	}

	idx := make(map[string]int)
	for i, h := range records[0] {
		idx[strings.TrimSpace(h)] = i
	}
	for _, col := range []string{"lsoa_code", "lsoa_population", "lad_code", "lad_name"} {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("area lookup %s missing column %q", path, col)
		}
	}

	a := &AreaLookup{
		ladName: make(map[string]string),
		lsoaLAD: make(map[string]string),
		lsoaPop: make(map[string]float64),
	}
	for i, rec := range records[1:] {
		ladCode := strings.TrimSpace(rec[idx["lad_code"]])
		if ladCode == "" {
			return nil, fmt.Errorf("area lookup %s row %d: empty lad_code", path, i+1)
		}
		a.ladName[ladCode] = strings.TrimSpace(rec[idx["lad_name"]])

		lsoa := strings.TrimSpace(rec[idx["lsoa_code"]])
		if lsoa == "" {
			continue
		}
		a.lsoaLAD[lsoa] = ladCode
		if popStr := strings.TrimSpace(rec[idx["lsoa_population"]]); popStr != "" {
			pop, err := strconv.ParseFloat(popStr, 64)
			if err != nil {
				return nil, fmt.Errorf("area lookup %s row %d: bad lsoa_population %q", path, i+1, popStr)
			}
			a.lsoaPop[lsoa] = pop
		}
	}
	return a, nil
}

// LADExists reports whether code is a recognised LAD.
func (a *AreaLookup) LADExists(code string) bool {
	_, ok := a.ladName[code]
	return ok
}

// LADName returns the registered name for a LAD code.
func (a *AreaLookup) LADName(code string) string {
	return a.ladName[code]
}

// LADCodes returns every recognised LAD code, sorted.
func (a *AreaLookup) LADCodes() []string {
	codes := make([]string, 0, len(a.ladName))
	for code := range a.ladName {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// LADCount returns the number of recognised LADs.
func (a *AreaLookup) LADCount() int {
	return len(a.ladName)
}

// LSOA resolves an LSOA code to its parent LAD and population weight.
func (a *AreaLookup) LSOA(code string) (lad string, population float64, ok bool) {
	lad, ok = a.lsoaLAD[code]
	if !ok {
		return "", 0, false
	}
	return lad, a.lsoaPop[code], true
}
