package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/create-to-solve/jtis/internal/model"
	"github.com/create-to-solve/jtis/internal/registry"
	"github.com/create-to-solve/jtis/internal/store"
)

var exportDir string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the canonical table, scored report and diagnostics to files",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := registry.Load(cfg.Registry.Path)
		if err != nil {
			return fmt.Errorf("loading registry: %w", err)
		}

		s, err := store.New(dataDir)
		if err != nil {
			return err
		}
		defer s.Close()

		table, err := s.ReadCanonical()
		if err != nil {
			return fmt.Errorf("reading canonical table: %w", err)
		}
		if table.Len() == 0 {
			return fmt.Errorf("canonical table is empty (run compose first)")
		}

		scores, err := s.ReadScores()
		if err != nil {
			return fmt.Errorf("reading scores: %w", err)
		}
		snapshots := make(map[int]*model.RankedSnapshot)
		for _, year := range s.SnapshotYears() {
			snap, err := s.ReadSnapshot(year)
			if err != nil {
				return fmt.Errorf("reading rankings for %d: %w", year, err)
			}
			snapshots[year] = snap
		}

		if err := os.MkdirAll(exportDir, 0o755); err != nil {
			return fmt.Errorf("creating output dir: %w", err)
		}

		canonicalPath := filepath.Join(exportDir, "canonical_la_year.csv")
		if err := writeFile(canonicalPath, func(f *os.File) error {
			return store.EncodeCanonicalCSV(f, table)
		}); err != nil {
			return err
		}
		fmt.Printf("  wrote %s (%d rows)\n", canonicalPath, table.Len())

		reportPath := filepath.Join(exportDir, "jtis_scored_la_year.csv")
		if err := writeFile(reportPath, func(f *os.File) error {
			return store.EncodeReportCSV(f, table, scores, snapshots, reg.Areas().LADName)
		}); err != nil {
			return err
		}
		fmt.Printf("  wrote %s\n", reportPath)

		diag, err := s.ReadLatestDiagnostics()
		if err != nil {
			return fmt.Errorf("reading diagnostics: %w", err)
		}
		diagPath := filepath.Join(exportDir, "diagnostics.json")
		if err := writeFile(diagPath, func(f *os.File) error {
			enc := json.NewEncoder(f)
			enc.SetIndent("", "  ")
			return enc.Encode(diag)
		}); err != nil {
			return err
		}
		fmt.Printf("  wrote %s\n", diagPath)

		return nil
	},
}

func writeFile(path string, write func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

func init() {
	exportCmd.Flags().StringVar(&exportDir, "out", "outputs", "Directory for exported files")
	rootCmd.AddCommand(exportCmd)
}
