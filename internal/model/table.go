package model

import "sort"

// CanonicalTable is the merged LAD-year table. It is append-only while the
// merger builds it and frozen afterwards; every later stage reads it through
// the sorted accessors so iteration order never depends on input order.
type CanonicalTable struct {
	rows   map[Key]*CanonicalRow
	frozen bool
}

// NewCanonicalTable returns an empty, unfrozen table.
func NewCanonicalTable() *CanonicalTable {
	return &CanonicalTable{rows: make(map[Key]*CanonicalRow)}
}

// Upsert returns the row for key, creating it if needed.
// Panics if the table is frozen: no stage mutates a table it does not own.
func (t *CanonicalTable) Upsert(key Key) *CanonicalRow {
	if t.frozen {
		panic("model: upsert on frozen canonical table")
	}
	row, ok := t.rows[key]
	if !ok {
		row = &CanonicalRow{
			LADCode:    key.LADCode,
			Year:       key.Year,
			Values:     make(map[string]float64),
			Provenance: make(map[string]Provenance),
		}
		t.rows[key] = row
	}
	return row
}

// Freeze marks construction complete.
func (t *CanonicalTable) Freeze() {
	t.frozen = true
}

// Row returns the row for key, if present.
func (t *CanonicalTable) Row(key Key) (*CanonicalRow, bool) {
	row, ok := t.rows[key]
	return row, ok
}

// Len returns the number of rows.
func (t *CanonicalTable) Len() int {
	return len(t.rows)
}

// Keys returns all keys in lexicographic (LAD code, year) order.
func (t *CanonicalTable) Keys() []Key {
	keys := make([]Key, 0, len(t.rows))
	for k := range t.rows {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys
}

// Rows returns all rows in lexicographic key order.
func (t *CanonicalTable) Rows() []*CanonicalRow {
	keys := t.Keys()
	rows := make([]*CanonicalRow, len(keys))
	for i, k := range keys {
		rows[i] = t.rows[k]
	}
	return rows
}

// Indicators returns the sorted set of indicator names present anywhere in
// the table.
func (t *CanonicalTable) Indicators() []string {
	seen := make(map[string]bool)
	for _, row := range t.rows {
		for name := range row.Values {
			seen[name] = true
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Years returns the sorted set of years present in the table.
func (t *CanonicalTable) Years() []int {
	seen := make(map[int]bool)
	for k := range t.rows {
		seen[k.Year] = true
	}
	years := make([]int, 0, len(seen))
	for y := range seen {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}
