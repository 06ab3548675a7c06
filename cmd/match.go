package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/snf-deal-cli/internal/model"
)

var (
	matchCity  string
	matchState string
	matchBeds  int
	matchJSON  bool
)

var matchCmd = &cobra.Command{
	Use:   "match <facility-name>",
	Short: "Resolve a facility against the certified provider registry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		facility := model.ExtractedFacility{
			Name:  args[0],
			City:  matchCity,
			State: matchState,
			Beds:  matchBeds,
		}
		result, err := env.Resolver.Resolve(cmd.Context(), facility)
		if err != nil {
			return err
		}

		if matchJSON {
			return printJSON(result)
		}

		fmt.Printf("status:     %s\n", result.Status)
		fmt.Printf("confidence: %.2f\n", result.Confidence)
		if result.Provider != nil {
			fmt.Printf("provider:   %s (CCN %s, %s, %s, %d beds)\n",
				result.Provider.Name, result.Provider.CCN,
				result.Provider.City, result.Provider.State, result.Provider.BedCount)
			if result.AutoVerified {
				fmt.Println("verified:   auto")
			}
		}
		fmt.Printf("reason:     %s\n", result.Reason)
		for i, alt := range result.Alternatives {
			fmt.Printf("alt %d:      %s (CCN %s) score %.2f\n",
				i+1, alt.Provider.Name, alt.Provider.CCN, alt.Score)
		}
		return nil
	},
}

func init() {
	matchCmd.Flags().StringVar(&matchCity, "city", "", "extracted city")
	matchCmd.Flags().StringVar(&matchState, "state", "", "two-letter state code")
	matchCmd.Flags().IntVar(&matchBeds, "beds", 0, "extracted bed count")
	matchCmd.Flags().BoolVar(&matchJSON, "json", false, "emit JSON")
	rootCmd.AddCommand(matchCmd)
}
