// Package store manages pipeline persistence via DuckDB. Each stage writes
// its output here and the next stage reads it back, so stages can run as
// separate command invocations.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/create-to-solve/jtis/internal/diagnostics"
	"github.com/create-to-solve/jtis/internal/model"
)

// Store wraps the DuckDB database holding all pipeline state.
type Store struct {
	DB      *sql.DB
	DataDir string
}

// New opens (or creates) the pipeline database in the given data directory.
func New(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, "jtis.duckdb")
	db, err := sql.Open("duckdb", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening duckdb: %w", err)
	}

	s := &Store{DB: db, DataDir: dataDir}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.DB.Close()
}

func (s *Store) migrate() error {
	seqs := []string{
		"CREATE SEQUENCE IF NOT EXISTS contributions_seq",
		"CREATE SEQUENCE IF NOT EXISTS diagnostics_seq",
	}
	for _, seq := range seqs {
		if _, err := s.DB.Exec(seq); err != nil {
			return fmt.Errorf("creating sequence: %w", err)
		}
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS validation_reports (
			dataset TEXT PRIMARY KEY,
			rows INTEGER NOT NULL,
			passed BOOLEAN NOT NULL,
			violations TEXT,
			checked_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS contributions (
			id INTEGER PRIMARY KEY DEFAULT nextval('contributions_seq'),
			dataset TEXT NOT NULL,
			lad_code TEXT NOT NULL,
			year INTEGER NOT NULL,
			indicator TEXT NOT NULL,
			value DOUBLE NOT NULL,
			method TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS canonical (
			lad_code TEXT NOT NULL,
			year INTEGER NOT NULL,
			indicator TEXT NOT NULL,
			value DOUBLE NOT NULL,
			source TEXT NOT NULL,
			method TEXT NOT NULL,
			PRIMARY KEY (lad_code, year, indicator)
		)`,
		`CREATE TABLE IF NOT EXISTS scores (
			lad_code TEXT NOT NULL,
			year INTEGER NOT NULL,
			score DOUBLE NOT NULL,
			weights TEXT NOT NULL,
			breakdown TEXT NOT NULL,
			PRIMARY KEY (lad_code, year)
		)`,
		`CREATE TABLE IF NOT EXISTS rankings (
			year INTEGER NOT NULL,
			rank INTEGER NOT NULL,
			lad_code TEXT NOT NULL,
			lad_name TEXT,
			score DOUBLE NOT NULL,
			PRIMARY KEY (year, rank)
		)`,
		`CREATE TABLE IF NOT EXISTS diagnostics (
			id INTEGER PRIMARY KEY DEFAULT nextval('diagnostics_seq'),
			run_id TEXT NOT NULL,
			stage TEXT NOT NULL,
			created_at TEXT NOT NULL,
			body TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.DB.Exec(stmt); err != nil {
			return fmt.Errorf("executing migration %q: %w", stmt[:40], err)
		}
	}
	return nil
}

// WriteValidationReport inserts or replaces a dataset's validation report.
func (s *Store) WriteValidationReport(report *model.ValidationReport) error {
	violations, err := json.Marshal(report.Violations)
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(
		"INSERT OR REPLACE INTO validation_reports (dataset, rows, passed, violations, checked_at) VALUES (?, ?, ?, ?, ?)",
		report.DatasetID, report.Rows, report.Passed(), string(violations), report.CheckedAt,
	)
	return err
}

// ReadValidationReport loads one dataset's report, or nil if absent.
func (s *Store) ReadValidationReport(dataset string) (*model.ValidationReport, error) {
	row := s.DB.QueryRow(
		"SELECT dataset, rows, violations, checked_at FROM validation_reports WHERE dataset = ?",
		dataset,
	)
	report, err := scanValidationReport(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return report, err
}

// ReadValidationReports loads all stored reports ordered by dataset id.
func (s *Store) ReadValidationReports() ([]*model.ValidationReport, error) {
	rows, err := s.DB.Query(
		"SELECT dataset, rows, violations, checked_at FROM validation_reports ORDER BY dataset",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []*model.ValidationReport
	for rows.Next() {
		report, err := scanValidationReport(rows.Scan)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	return reports, rows.Err()
}

func scanValidationReport(scan func(...any) error) (*model.ValidationReport, error) {
	var report model.ValidationReport
	var violations string
	if err := scan(&report.DatasetID, &report.Rows, &violations, &report.CheckedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(violations), &report.Violations); err != nil {
		return nil, fmt.Errorf("decoding violations for %s: %w", report.DatasetID, err)
	}
	return &report, nil
}

// WriteContributions replaces a dataset's harmonised contributions.
func (s *Store) WriteContributions(dataset string, contributions []model.Contribution) error {
	tx, err := s.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM contributions WHERE dataset = ?", dataset); err != nil {
		return err
	}

	stmt, err := tx.Prepare(
		"INSERT INTO contributions (dataset, lad_code, year, indicator, value, method) VALUES (?, ?, ?, ?, ?, ?)",
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range contributions {
		if _, err := stmt.Exec(dataset, c.LADCode, c.Year, c.Indicator, c.Value, string(c.Method)); err != nil {
			return fmt.Errorf("inserting contribution %s/%d/%s: %w", c.LADCode, c.Year, c.Indicator, err)
		}
	}
	return tx.Commit()
}

// ReadContributions loads every dataset's contributions.
func (s *Store) ReadContributions() (map[string][]model.Contribution, error) {
	rows, err := s.DB.Query(
		"SELECT dataset, lad_code, year, indicator, value, method FROM contributions ORDER BY dataset, lad_code, year, indicator",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]model.Contribution)
	for rows.Next() {
		var c model.Contribution
		var method string
		if err := rows.Scan(&c.Source, &c.LADCode, &c.Year, &c.Indicator, &c.Value, &method); err != nil {
			return nil, err
		}
		c.Method = model.AggregationMethod(method)
		out[c.Source] = append(out[c.Source], c)
	}
	return out, rows.Err()
}

// WriteCanonical replaces the stored canonical table.
func (s *Store) WriteCanonical(table *model.CanonicalTable) error {
	tx, err := s.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM canonical"); err != nil {
		return err
	}

	stmt, err := tx.Prepare(
		"INSERT INTO canonical (lad_code, year, indicator, value, source, method) VALUES (?, ?, ?, ?, ?, ?)",
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, row := range table.Rows() {
		indicators := make([]string, 0, len(row.Values))
		for name := range row.Values {
			indicators = append(indicators, name)
		}
		sort.Strings(indicators)
		for _, name := range indicators {
			prov := row.Provenance[name]
			if _, err := stmt.Exec(row.LADCode, row.Year, name, row.Values[name], prov.Source, string(prov.Method)); err != nil {
				return fmt.Errorf("inserting canonical %s/%d/%s: %w", row.LADCode, row.Year, name, err)
			}
		}
	}
	return tx.Commit()
}

// ReadCanonical loads the canonical table, frozen.
func (s *Store) ReadCanonical() (*model.CanonicalTable, error) {
	rows, err := s.DB.Query(
		"SELECT lad_code, year, indicator, value, source, method FROM canonical ORDER BY lad_code, year, indicator",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	table := model.NewCanonicalTable()
	for rows.Next() {
		var ladCode, indicator, source, method string
		var year int
		var value float64
		if err := rows.Scan(&ladCode, &year, &indicator, &value, &source, &method); err != nil {
			return nil, err
		}
		row := table.Upsert(model.Key{LADCode: ladCode, Year: year})
		row.Values[indicator] = value
		row.Provenance[indicator] = model.Provenance{Source: source, Method: model.AggregationMethod(method)}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	table.Freeze()
	return table, nil
}

// WriteScores replaces all stored composite scores.
func (s *Store) WriteScores(scores []*model.JTIScore) error {
	tx, err := s.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM scores"); err != nil {
		return err
	}

	stmt, err := tx.Prepare(
		"INSERT INTO scores (lad_code, year, score, weights, breakdown) VALUES (?, ?, ?, ?, ?)",
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, sc := range scores {
		weights, err := json.Marshal(sc.Weights)
		if err != nil {
			return err
		}
		breakdown, err := json.Marshal(sc.Breakdown)
		if err != nil {
			return err
		}
		if _, err := stmt.Exec(sc.LADCode, sc.Year, sc.Score, string(weights), string(breakdown)); err != nil {
			return fmt.Errorf("inserting score %s/%d: %w", sc.LADCode, sc.Year, err)
		}
	}
	return tx.Commit()
}

// ReadScores loads all composite scores ordered by (LAD, year).
func (s *Store) ReadScores() ([]*model.JTIScore, error) {
	rows, err := s.DB.Query(
		"SELECT lad_code, year, score, weights, breakdown FROM scores ORDER BY lad_code, year",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scores []*model.JTIScore
	for rows.Next() {
		var sc model.JTIScore
		var weights, breakdown string
		if err := rows.Scan(&sc.LADCode, &sc.Year, &sc.Score, &weights, &breakdown); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(weights), &sc.Weights); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(breakdown), &sc.Breakdown); err != nil {
			return nil, err
		}
		scores = append(scores, &sc)
	}
	return scores, rows.Err()
}

// WriteSnapshot replaces the ranked snapshot for its year.
func (s *Store) WriteSnapshot(snapshot *model.RankedSnapshot) error {
	tx, err := s.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM rankings WHERE year = ?", snapshot.Year); err != nil {
		return err
	}

	stmt, err := tx.Prepare(
		"INSERT INTO rankings (year, rank, lad_code, lad_name, score) VALUES (?, ?, ?, ?, ?)",
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range snapshot.Entries {
		if _, err := stmt.Exec(snapshot.Year, e.Rank, e.LADCode, e.LADName, e.Score); err != nil {
			return fmt.Errorf("inserting rank %d for %d: %w", e.Rank, snapshot.Year, err)
		}
	}
	return tx.Commit()
}

// ReadSnapshot loads the ranked snapshot for a year. An unranked year yields
// an empty snapshot, not an error.
func (s *Store) ReadSnapshot(year int) (*model.RankedSnapshot, error) {
	rows, err := s.DB.Query(
		"SELECT rank, lad_code, lad_name, score FROM rankings WHERE year = ? ORDER BY rank",
		year,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	snapshot := &model.RankedSnapshot{Year: year}
	for rows.Next() {
		var e model.RankEntry
		var name sql.NullString
		if err := rows.Scan(&e.Rank, &e.LADCode, &name, &e.Score); err != nil {
			return nil, err
		}
		e.LADName = name.String
		snapshot.Entries = append(snapshot.Entries, e)
	}
	return snapshot, rows.Err()
}

// WriteDiagnostics appends a stage's diagnostics report.
func (s *Store) WriteDiagnostics(stage string, report *diagnostics.Report) error {
	body, err := json.Marshal(report)
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(
		"INSERT INTO diagnostics (run_id, stage, created_at, body) VALUES (?, ?, ?, ?)",
		report.RunID, stage, time.Now().UTC().Format(time.RFC3339), string(body),
	)
	return err
}

// ReadLatestDiagnostics returns the most recent diagnostics body per stage.
func (s *Store) ReadLatestDiagnostics() (map[string]json.RawMessage, error) {
	rows, err := s.DB.Query("SELECT stage, body FROM diagnostics ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]json.RawMessage)
	for rows.Next() {
		var stage, body string
		if err := rows.Scan(&stage, &body); err != nil {
			return nil, err
		}
		out[stage] = json.RawMessage(body) // later rows overwrite earlier
	}
	return out, rows.Err()
}

// Counts used by the status command.

func (s *Store) countRow(query string) int {
	var n int
	s.DB.QueryRow(query).Scan(&n)
	return n
}

// ValidationCount returns the number of stored validation reports.
func (s *Store) ValidationCount() int {
	return s.countRow("SELECT count(*) FROM validation_reports")
}

// ContributionCounts returns contribution counts per dataset.
func (s *Store) ContributionCounts() map[string]int {
	out := make(map[string]int)
	rows, err := s.DB.Query("SELECT dataset, count(*) FROM contributions GROUP BY dataset")
	if err != nil {
		return out
	}
	defer rows.Close()
	for rows.Next() {
		var dataset string
		var n int
		if rows.Scan(&dataset, &n) == nil {
			out[dataset] = n
		}
	}
	return out
}

// CanonicalRowCount returns the number of distinct (LAD, year) keys stored.
func (s *Store) CanonicalRowCount() int {
	return s.countRow("SELECT count(*) FROM (SELECT DISTINCT lad_code, year FROM canonical)")
}

// ScoreCount returns the number of stored composite scores.
func (s *Store) ScoreCount() int {
	return s.countRow("SELECT count(*) FROM scores")
}

// SnapshotYears returns the years with stored rankings, sorted.
func (s *Store) SnapshotYears() []int {
	rows, err := s.DB.Query("SELECT DISTINCT year FROM rankings ORDER BY year")
	if err != nil {
		return nil
	}
	defer rows.Close()
	var years []int
	for rows.Next() {
		var y int
		if rows.Scan(&y) == nil {
			years = append(years, y)
		}
	}
	return years
}

// SetMeta stores a key/value pair.
func (s *Store) SetMeta(key, value string) error {
	_, err := s.DB.Exec("INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)", key, value)
	return err
}

// GetMeta reads a stored value, empty if absent.
func (s *Store) GetMeta(key string) string {
	var value sql.NullString
	s.DB.QueryRow("SELECT value FROM meta WHERE key = ?", key).Scan(&value)
	return value.String
}
