package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Run one self-review cycle over the decision log",
	Long:  "Reads the recent decision history, asks the classifier to critique it, and persists accepted heuristics as learning notes for future verification runs.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		summary, err := env.reviewer.Run(ctx, "cli")
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	},
}

func init() {
	rootCmd.AddCommand(reviewCmd)
}
