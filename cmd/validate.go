package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/create-to-solve/jtis/internal/diagnostics"
	"github.com/create-to-solve/jtis/internal/ingest"
	"github.com/create-to-solve/jtis/internal/registry"
	"github.com/create-to-solve/jtis/internal/store"
	"github.com/create-to-solve/jtis/internal/validate"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check every registered raw dataset against its schema",
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

		collector := diagnostics.New()
		passed := 0
		ids := reg.DatasetIDs()

		// A broken dataset never stops the others: the point of this stage
		// is a complete picture of what conforms and what does not.
		for _, id := range ids {
			ds, err := reg.Dataset(id)
			if err != nil {
				return err
			}
			schema, err := reg.Schema(id)
			if err != nil {
				return err
			}

			raw, err := ingest.LoadCSV(ds.Path, id)
			if err != nil {
				fmt.Fprintf(os.Stderr, "  WARNING: %s: %v\n", id, err)
				collector.Note(fmt.Sprintf("dataset %s unreadable: %v", id, err))
				continue
			}

			report := validate.Run(raw, schema)
			if err := s.WriteValidationReport(report); err != nil {
				return fmt.Errorf("saving report for %s: %w", id, err)
			}
			collector.AddValidation(report)

			if report.Passed() {
				passed++
				fmt.Printf("  %s: OK (%d rows)\n", id, report.Rows)
			} else {
				fmt.Printf("  %s: FAIL (%d violations over %d rows)\n", id, len(report.Violations), report.Rows)
				logger.Warn("validation failed", "dataset", id, "violations", len(report.Violations))
			}
		}

		if err := s.WriteDiagnostics("validate", collector.Report()); err != nil {
			return fmt.Errorf("saving diagnostics: %w", err)
		}

		fmt.Printf("Validated %d datasets, %d passed.\n", len(ids), passed)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
