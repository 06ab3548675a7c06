package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/snf-deal-cli/internal/model"
)

var (
	mappingsDeal string
	mappingsJSON bool
)

var mappingsCmd = &cobra.Command{
	Use:   "mappings",
	Short: "Inspect learned label-to-account mappings",
}

var mappingsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List learned mappings (global, or one deal with --deal)",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		var mappings []model.LearnedMapping
		if mappingsDeal != "" {
			mappings, err = env.Learner.ListDeal(cmd.Context(), mappingsDeal)
		} else {
			mappings, err = env.Learner.ListGlobal(cmd.Context())
		}
		if err != nil {
			return err
		}

		if mappingsJSON {
			return printJSON(mappings)
		}
		for _, m := range mappings {
			fmt.Printf("%-40s  %s %-35s  %.2f  used %d\n",
				m.SourceLabel, m.COACode, m.COAName, m.Confidence, m.UseCount)
		}
		return nil
	},
}

var mappingsSuggestCmd = &cobra.Command{
	Use:   "suggest <label>",
	Short: "Show ranked learned suggestions for a label",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		suggestions, err := env.Learner.Suggest(cmd.Context(), args[0], mappingsDeal, cfg.Matching.TopK)
		if err != nil {
			return err
		}

		if mappingsJSON {
			return printJSON(suggestions)
		}
		if len(suggestions) == 0 {
			fmt.Println("no suggestions")
			return nil
		}
		for i, s := range suggestions {
			fmt.Printf("%d. %s %-35s  %.2f  %s\n", i+1, s.COACode, s.COAName, s.Score, s.Source)
		}
		return nil
	},
}

var mappingsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Per-deal mapping coverage statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		if mappingsDeal == "" {
			return fmt.Errorf("--deal is required")
		}
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		stats, err := env.Learner.Stats(cmd.Context(), mappingsDeal)
		if err != nil {
			return err
		}

		if mappingsJSON {
			return printJSON(stats)
		}
		fmt.Printf("total:    %d\nmapped:   %d\nmanual:   %d\nauto:     %d\nunmapped: %d\n",
			stats.Total, stats.Mapped, stats.Manual, stats.Auto, stats.Unmapped)
		return nil
	},
}

func init() {
	mappingsCmd.PersistentFlags().StringVar(&mappingsDeal, "deal", "", "deal id")
	mappingsCmd.PersistentFlags().BoolVar(&mappingsJSON, "json", false, "emit JSON")
	mappingsCmd.AddCommand(mappingsListCmd, mappingsSuggestCmd, mappingsStatsCmd)
	rootCmd.AddCommand(mappingsCmd)
}
