package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/create-to-solve/jtis/internal/diagnostics"
	"github.com/create-to-solve/jtis/internal/merge"
	"github.com/create-to-solve/jtis/internal/store"
)

var composeCmd = &cobra.Command{
	Use:   "compose",
	Short: "Merge harmonised contributions into the canonical LAD-year table",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := store.New(dataDir)
		if err != nil {
			return err
		}
		defer s.Close()

		perDataset, err := s.ReadContributions()
		if err != nil {
			return fmt.Errorf("reading contributions: %w", err)
		}
		if len(perDataset) == 0 {
			return fmt.Errorf("no contributions found (run harmonise first)")
		}

		fmt.Println("Composing canonical table...")
		table := merge.Build(perDataset)

		collector := diagnostics.New()
		for _, note := range merge.DescribeGaps(merge.Gaps(table, perDataset)) {
			collector.Note(note)
		}

		if err := s.WriteCanonical(table); err != nil {
			return fmt.Errorf("saving canonical table: %w", err)
		}
		if err := s.WriteDiagnostics("compose", collector.Report()); err != nil {
			return fmt.Errorf("saving diagnostics: %w", err)
		}

		years := table.Years()
		fmt.Printf("Canonical table: %d rows across %d datasets", table.Len(), len(perDataset))
		if len(years) > 0 {
			fmt.Printf(", years %d-%d", years[0], years[len(years)-1])
		}
		fmt.Println()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(composeCmd)
}
