package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/peptide-index/stockwatch/internal/model"
	"github.com/peptide-index/stockwatch/internal/store"
)

// seedFile is the JSON shape consumed by the seed command.
type seedFile struct {
	Vendors []model.Vendor      `json:"vendors"`
	Items   []model.TrackedItem `json:"items"`
}

var seedCmd = &cobra.Command{
	Use:   "seed <file.json>",
	Short: "Load a local development catalog into the SQLite store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		dev, ok := st.(*store.SQLiteStore)
		if !ok {
			return eris.New("seed only supports the sqlite store; production catalogs are managed upstream")
		}
		if err := dev.Migrate(ctx); err != nil {
			return err
		}

		raw, err := os.ReadFile(args[0])
		if err != nil {
			return eris.Wrap(err, "seed: read file")
		}
		var seed seedFile
		if err := json.Unmarshal(raw, &seed); err != nil {
			return eris.Wrap(err, "seed: parse file")
		}

		for _, v := range seed.Vendors {
			if err := dev.SeedVendor(ctx, v); err != nil {
				return err
			}
		}
		for _, it := range seed.Items {
			if err := dev.SeedItem(ctx, it); err != nil {
				return err
			}
		}

		fmt.Printf("seeded %d vendors, %d items\n", len(seed.Vendors), len(seed.Items))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}
