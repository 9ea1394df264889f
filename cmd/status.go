package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/create-to-solve/jtis/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pipeline progress",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := store.New(dataDir)
		if err != nil {
			return err
		}
		defer s.Close()

		fmt.Printf("Pipeline Status\n")
		fmt.Printf("===============\n")
		fmt.Printf("Validated datasets:  %d\n", s.ValidationCount())
		fmt.Printf("Canonical rows:      %d\n", s.CanonicalRowCount())
		fmt.Printf("Scored rows:         %d\n", s.ScoreCount())
		fmt.Printf("Ranked years:        %v\n", s.SnapshotYears())

		counts := s.ContributionCounts()
		if len(counts) > 0 {
			fmt.Printf("\nContributions by Dataset\n")
			fmt.Printf("------------------------\n")

			var ids []string
			for id := range counts {
				ids = append(ids, id)
			}
			sort.Strings(ids)

			for _, id := range ids {
				fmt.Printf("  %-24s %6d\n", id, counts[id])
			}
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
