package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/snf-deal-cli/internal/ingest"
)

var (
	classifyDeal string
	classifyJSON bool
)

var classifyCmd = &cobra.Command{
	Use:   "classify <file.json|file.xlsx>",
	Short: "Classify extracted line items against the chart of accounts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		items, err := ingest.ReadFile(args[0])
		if err != nil {
			return err
		}

		result, err := env.Classifier.ClassifyBatch(cmd.Context(), items, classifyDeal, cfg.Batch.MaxConcurrent)
		if err != nil {
			return err
		}

		if classifyJSON {
			return printJSON(result)
		}

		for _, m := range result.Mappings {
			if m.Account == nil {
				fmt.Printf("%-45s  UNMAPPED", m.Item.Label)
				if len(m.Suggestions) > 0 {
					fmt.Printf("  (try %s %s)", m.Suggestions[0].COACode, m.Suggestions[0].COAName)
				}
				fmt.Println()
				continue
			}
			fmt.Printf("%-45s  %s %-35s  %-7s  %.2f\n",
				m.Item.Label, m.Account.Code, m.Account.Name, m.Method, m.Confidence)
		}
		fmt.Printf("\n%d items: %d mapped (%d auto, %d manual), %d unmapped\n",
			result.Stats.Total, result.Stats.Mapped, result.Stats.Auto,
			result.Stats.Manual, result.Stats.Unmapped)
		return nil
	},
}

func init() {
	classifyCmd.Flags().StringVar(&classifyDeal, "deal", "", "deal id (enables deal-scoped learned mappings)")
	classifyCmd.Flags().BoolVar(&classifyJSON, "json", false, "emit JSON")
	rootCmd.AddCommand(classifyCmd)
}
