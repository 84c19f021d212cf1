package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Run one Tier-2 AI verification pass",
	Long:  "Builds the staleness-ordered backlog, then fetches, excerpts, and classifies each item, applying the resulting corrective actions.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		summary, err := env.verifier.Run(ctx, "cli")
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}
