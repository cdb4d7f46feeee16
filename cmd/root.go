// Package cmd defines the CLI commands for the smartcrawl executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"smartcrawl/internal/config"
	"smartcrawl/internal/logging"
)

var (
	cfgFile string
	cfg     config.Config
	logger  *zap.Logger
)

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "smartcrawl",
		Short: "Render-and-extract crawl jobs over a headless browser.",
		Long: `smartcrawl renders a page in headless Chrome, waits for dynamic
content to settle, extracts structured items with layered heuristics, and
exposes the whole thing as asynchronous jobs over HTTP.`,

		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			var err error
			cfg, err = config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			logger, err = logging.New(cfg.Logging.Development)
			if err != nil {
				return fmt.Errorf("build logger: %w", err)
			}
			return nil
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newPollCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
