package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/create-to-solve/jtis/internal/diagnostics"
	"github.com/create-to-solve/jtis/internal/harmonise"
	"github.com/create-to-solve/jtis/internal/ingest"
	"github.com/create-to-solve/jtis/internal/registry"
	"github.com/create-to-solve/jtis/internal/store"
)

var harmoniseCmd = &cobra.Command{
	Use:   "harmonise",
	Short: "Reshape validated datasets into canonical LAD-year contributions",
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

		var inputs []harmonise.Input
		for _, id := range reg.DatasetIDs() {
			report, err := s.ReadValidationReport(id)
			if err != nil {
				return fmt.Errorf("reading report for %s: %w", id, err)
			}
			if report == nil {
				return fmt.Errorf("no validation report for %s (run validate first)", id)
			}

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
				return fmt.Errorf("loading %s: %w", id, err)
			}
			inputs = append(inputs, harmonise.Input{Raw: raw, Schema: schema, Report: report})
		}

		collector := diagnostics.New()
		results := harmonise.All(inputs, reg.Areas(), collector)

		ids := make([]string, 0, len(inputs))
		for _, in := range inputs {
			ids = append(ids, in.Raw.DatasetID)
		}
		sort.Strings(ids)

		for _, id := range ids {
			contributions, ok := results[id]
			if !ok {
				// Failed datasets contribute nothing; clear any stale rows
				// from a previous run.
				if err := s.WriteContributions(id, nil); err != nil {
					return fmt.Errorf("clearing contributions for %s: %w", id, err)
				}
				fmt.Printf("  %s: skipped (failed validation)\n", id)
				continue
			}
			if err := s.WriteContributions(id, contributions); err != nil {
				return fmt.Errorf("saving contributions for %s: %w", id, err)
			}
			fmt.Printf("  %s: %d contributions\n", id, len(contributions))
		}

		if err := s.WriteDiagnostics("harmonise", collector.Report()); err != nil {
			return fmt.Errorf("saving diagnostics: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(harmoniseCmd)
}
