package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/create-to-solve/jtis/internal/store"
)

var rankYear int

var rankCmd = &cobra.Command{
	Use:   "rank",
	Short: "Print the ranked JTI snapshot for a year",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := store.New(dataDir)
		if err != nil {
			return err
		}
		defer s.Close()

		snapshot, err := s.ReadSnapshot(rankYear)
		if err != nil {
			return fmt.Errorf("reading rankings: %w", err)
		}
		if len(snapshot.Entries) == 0 {
			return fmt.Errorf("no rankings for %d (run score first)", rankYear)
		}

		fmt.Printf("JTI ranking, %d\n", snapshot.Year)
		fmt.Printf("================\n")
		for _, e := range snapshot.Entries {
			fmt.Printf("  %3d  %-10s %-30s %.4f\n", e.Rank, e.LADCode, e.LADName, e.Score)
		}
		return nil
	},
}

func init() {
	rankCmd.Flags().IntVar(&rankYear, "year", 2023, "Snapshot year")
	rootCmd.AddCommand(rankCmd)
}
