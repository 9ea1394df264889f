package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/create-to-solve/jtis/internal/diagnostics"
	"github.com/create-to-solve/jtis/internal/registry"
	"github.com/create-to-solve/jtis/internal/score"
	"github.com/create-to-solve/jtis/internal/store"
)

var scoreWeights string

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Derive indicators and compute JTI scores with per-year rankings",
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

		weights := score.Weights(cfg.Scoring.Weights)
		if scoreWeights != "" {
			weights, err = parseWeights(scoreWeights)
			if err != nil {
				return err
			}
		}
		if len(weights) == 0 {
			return fmt.Errorf("no scoring weights configured")
		}

		defs := score.Definitions(cfg.Scoring.Method())
		sets := score.Build(table, defs)

		collector := diagnostics.New()
		scores := score.All(sets, weights, collector)

		if err := s.WriteScores(scores); err != nil {
			return fmt.Errorf("saving scores: %w", err)
		}

		for _, year := range table.Years() {
			snapshot := score.Snapshot(scores, year, reg.Areas().LADName)
			if len(snapshot.Entries) == 0 {
				continue
			}
			if err := s.WriteSnapshot(snapshot); err != nil {
				return fmt.Errorf("saving rankings for %d: %w", year, err)
			}
		}

		if err := s.WriteDiagnostics("score", collector.Report()); err != nil {
			return fmt.Errorf("saving diagnostics: %w", err)
		}

		excluded := table.Len() - len(scores)
		fmt.Printf("Scored %d rows (%d excluded with no scorable indicators).\n", len(scores), excluded)
		return nil
	},
}

// parseWeights reads "emissions_intensity=0.5,deprivation=0.1" style flags.
func parseWeights(spec string) (score.Weights, error) {
	weights := make(score.Weights)
	for _, pair := range strings.Split(spec, ",") {
		name, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			return nil, fmt.Errorf("bad weight %q (want name=value)", pair)
		}
		w, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("bad weight value %q: %w", value, err)
		}
		weights[name] = w
	}
	return weights, nil
}

func init() {
	scoreCmd.Flags().StringVar(&scoreWeights, "weights", "", "Override weights, e.g. emissions_intensity=0.5,deprivation=0.5")
	rootCmd.AddCommand(scoreCmd)
}
