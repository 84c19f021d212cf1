package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/peptide-index/stockwatch/internal/store"
)

var overrideCmd = &cobra.Command{
	Use:   "override <decision-id>",
	Short: "Mark an AI decision as overridden by a human",
	Long:  "Sets the override flag on a decision log entry. Overridden decisions are weighed by the self-review loop when it generates new heuristics.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.MarkDecisionOverridden(ctx, args[0]); err != nil {
			if errors.Is(err, store.ErrDecisionNotFound) {
				return fmt.Errorf("no decision with id %s; see `stockwatch decisions` for recent entries", args[0])
			}
			return err
		}
		fmt.Printf("decision %s marked overridden\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(overrideCmd)
}
