package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var decisionsLimit int

var decisionsCmd = &cobra.Command{
	Use:   "decisions",
	Short: "List recent AI decisions for triage",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		decisions, err := st.ListRecentDecisions(ctx, decisionsLimit)
		if err != nil {
			return eris.Wrap(err, "decisions list")
		}
		if len(decisions) == 0 {
			fmt.Fprintln(os.Stderr, "No decisions found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "WHEN\tID\tVENDOR\tACTION\tCONF\tOVERRIDDEN\tREASONING")
		for _, d := range decisions {
			overridden := ""
			if d.WasOverridden {
				overridden = "yes"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.2f\t%s\t%s\n",
				d.CreatedAt.Local().Format(time.RFC3339),
				d.ID, d.VendorName, d.Action, d.Confidence, overridden, d.Reasoning)
		}
		return w.Flush()
	},
}

func init() {
	decisionsCmd.Flags().IntVar(&decisionsLimit, "limit", 20, "max decisions to list")
	rootCmd.AddCommand(decisionsCmd)
}
