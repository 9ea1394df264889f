// Package ingest loads raw dataset files into RawTable form. It is the thin
// collaborator between files on disk and the validation stage: cells are
// trimmed but otherwise untouched, so the validator judges what the source
// actually contained.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/create-to-solve/jtis/internal/model"
)

// LoadCSV reads a raw CSV file into a RawTable tagged with datasetID.
func LoadCSV(path, datasetID string) (*model.RawTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", datasetID, err)
	}
	defer f.Close()

	table, err := ReadCSV(f, datasetID)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return table, nil
}

// ReadCSV parses CSV data into a RawTable. Ragged rows are permitted here;
// the validator reports on their contents rather than the loader guessing.
func ReadCSV(r io.Reader, datasetID string) (*model.RawTable, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	table := &model.RawTable{DatasetID: datasetID, Header: header}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading row %d: %w", len(table.Rows)+1, err)
		}
		for i := range record {
			record[i] = strings.TrimSpace(record[i])
		}
		table.Rows = append(table.Rows, record)
	}
	return table, nil
}
