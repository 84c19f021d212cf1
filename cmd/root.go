package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/peptide-index/stockwatch/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "stockwatch",
	Short: "Two-tier inventory verification pipeline",
	Long:  "Scrapes vendor product pages for deterministic stock signals, resolves ambiguous listings with an AI classifier, and feeds its own decision history back into future runs.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
