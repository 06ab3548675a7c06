package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/snf-deal-cli/internal/model"
)

var (
	confirmDeal     string
	confirmFacility string
	confirmDocument string
	confirmReviewer string
)

var confirmCmd = &cobra.Command{
	Use:   "confirm <label> <coa-code>",
	Short: "Record a human-confirmed label-to-account mapping",
	Long:  "Persists a reviewer's correction: a deal-scoped mapping for the exact label plus a global mapping keyed by the normalized label. Repeated corroboration raises global confidence; a single disagreement never rewrites established knowledge.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		correction := model.Correction{
			Label:      args[0],
			COACode:    args[1],
			DealID:     confirmDeal,
			FacilityID: confirmFacility,
			DocumentID: confirmDocument,
			ReviewedBy: confirmReviewer,
		}
		if err := env.Learner.Confirm(cmd.Context(), correction); err != nil {
			return err
		}

		fmt.Printf("confirmed %q -> %s\n", args[0], args[1])
		return nil
	},
}

func init() {
	confirmCmd.Flags().StringVar(&confirmDeal, "deal", "", "deal id")
	confirmCmd.Flags().StringVar(&confirmFacility, "facility", "", "facility id")
	confirmCmd.Flags().StringVar(&confirmDocument, "document", "", "source document id")
	confirmCmd.Flags().StringVar(&confirmReviewer, "reviewer", "", "reviewer id")
	rootCmd.AddCommand(confirmCmd)
}
