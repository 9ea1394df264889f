package web

import (
	"encoding/json"
	"net/http"
	"strconv"
)

func (s *Server) handleDatasets(w http.ResponseWriter, r *http.Request) {
	reports, err := s.Store.ReadValidationReports()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, reports)
}

func (s *Server) handleCanonical(w http.ResponseWriter, r *http.Request) {
	table, err := s.Store.ReadCanonical()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	yearStr := r.URL.Query().Get("year")
	if yearStr != "" {
		year, err := strconv.Atoi(yearStr)
		if err != nil {
			http.Error(w, "invalid 'year' parameter", http.StatusBadRequest)
			return
		}
		var filtered []any
		for _, row := range table.Rows() {
			if row.Year == year {
				filtered = append(filtered, row)
			}
		}
		writeJSON(w, filtered)
		return
	}

	writeJSON(w, table.Rows())
}

func (s *Server) handleRankings(w http.ResponseWriter, r *http.Request) {
	yearStr := r.URL.Query().Get("year")
	if yearStr == "" {
		writeJSON(w, s.Store.SnapshotYears())
		return
	}
	year, err := strconv.Atoi(yearStr)
	if err != nil {
		http.Error(w, "invalid 'year' parameter", http.StatusBadRequest)
		return
	}

	snapshot, err := s.Store.ReadSnapshot(year)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, snapshot)
}

func (s *Server) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	reports, err := s.Store.ReadLatestDiagnostics()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, reports)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
