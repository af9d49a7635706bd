package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/syndy/cardscan/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "cardscan",
	Short: "Business-card scan and enrichment workflow",
	Long:  "Uploads business-card images for OCR, polls for company enrichment, and drives the selfie/meeting follow-up workflow headlessly or over HTTP.",
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
