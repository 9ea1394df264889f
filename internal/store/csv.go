package store

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/create-to-solve/jtis/internal/model"
)

// EncodeCanonicalCSV writes the canonical table in wide form: lad_code, year,
// then every indicator in sorted column order. Absent indicators are empty
// cells, never zeros. Values use shortest-exact float formatting so decoding
// reproduces them bit for bit.
func EncodeCanonicalCSV(w io.Writer, table *model.CanonicalTable) error {
	indicators := table.Indicators()

	writer := csv.NewWriter(w)
	header := append([]string{"lad_code", "year"}, indicators...)
	if err := writer.Write(header); err != nil {
		return err
	}

	record := make([]string, len(header))
	for _, row := range table.Rows() {
		record[0] = row.LADCode
		record[1] = strconv.Itoa(row.Year)
		for i, name := range indicators {
			if v, ok := row.Value(name); ok {
				record[i+2] = strconv.FormatFloat(v, 'g', -1, 64)
			} else {
				record[i+2] = ""
			}
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// DecodeCanonicalCSV parses a table written by EncodeCanonicalCSV. Provenance
// does not survive the round trip; values and keys do.
func DecodeCanonicalCSV(r io.Reader) (*model.CanonicalTable, error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading canonical CSV header: %w", err)
	}
	if len(header) < 2 || header[0] != "lad_code" || header[1] != "year" {
		return nil, fmt.Errorf("unexpected canonical CSV header %v", header)
	}
	indicators := header[2:]

	table := model.NewCanonicalTable()
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading canonical CSV line %d: %w", line, err)
		}
		year, err := strconv.Atoi(record[1])
		if err != nil {
			return nil, fmt.Errorf("canonical CSV line %d: bad year %q", line, record[1])
		}
		row := table.Upsert(model.Key{LADCode: record[0], Year: year})
		for i, name := range indicators {
			cell := record[i+2]
			if cell == "" {
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, fmt.Errorf("canonical CSV line %d: bad value %q for %s", line, cell, name)
			}
			row.Values[name] = v
		}
	}
	table.Freeze()
	return table, nil
}

// reportColumns is the fixed layout of the operator-facing export.
var reportColumns = []string{
	"lad_code", "lad_name", "year",
	model.IndicatorEmissions, model.IndicatorTerritorial,
	model.IndicatorFuel, model.IndicatorPersonal,
	model.IndicatorPopulation, model.IndicatorDeprivation,
	"jti_score", "rank",
}

// EncodeReportCSV writes the canonical LA-year output table joined with JTI
// scores and within-year ranks. Rows without a score leave those cells empty.
func EncodeReportCSV(w io.Writer, table *model.CanonicalTable, scores []*model.JTIScore, snapshots map[int]*model.RankedSnapshot, nameOf func(string) string) error {
	scoreByKey := make(map[model.Key]*model.JTIScore, len(scores))
	for _, sc := range scores {
		scoreByKey[model.Key{LADCode: sc.LADCode, Year: sc.Year}] = sc
	}
	rankByKey := make(map[model.Key]int)
	for year, snap := range snapshots {
		for _, e := range snap.Entries {
			rankByKey[model.Key{LADCode: e.LADCode, Year: year}] = e.Rank
		}
	}

	writer := csv.NewWriter(w)
	if err := writer.Write(reportColumns); err != nil {
		return err
	}

	formatValue := func(row *model.CanonicalRow, name string) string {
		if v, ok := row.Value(name); ok {
			return strconv.FormatFloat(v, 'g', -1, 64)
		}
		return ""
	}

	for _, row := range table.Rows() {
		name := ""
		if nameOf != nil {
			name = nameOf(row.LADCode)
		}
		record := []string{
			row.LADCode,
			name,
			strconv.Itoa(row.Year),
			formatValue(row, model.IndicatorEmissions),
			formatValue(row, model.IndicatorTerritorial),
			formatValue(row, model.IndicatorFuel),
			formatValue(row, model.IndicatorPersonal),
			formatValue(row, model.IndicatorPopulation),
			formatValue(row, model.IndicatorDeprivation),
			"", "",
		}
		key := row.Key()
		if sc, ok := scoreByKey[key]; ok {
			record[9] = strconv.FormatFloat(sc.Score, 'g', -1, 64)
		}
		if rank, ok := rankByKey[key]; ok {
			record[10] = strconv.Itoa(rank)
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
