package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"smartcrawl/internal/browser"
	"smartcrawl/internal/clock/system"
	"smartcrawl/internal/crawler"
	"smartcrawl/internal/extract"
	"smartcrawl/internal/sink"
)

// newCrawlCmd builds the one-shot command: crawl a single URL and write the
// result to a JSON file, no HTTP service involved.
func newCrawlCmd() *cobra.Command {
	var (
		targetURL  string
		outputFile string
	)

	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawls a single URL and writes the extraction result to a file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCrawlCommand(cmd.Context(), targetURL, outputFile)
		},
	}
	cmd.Flags().StringVarP(&targetURL, "url", "u", "", "URL to crawl")
	cmd.Flags().StringVarP(&outputFile, "output", "o", "results.json", "Output JSON file")
	_ = cmd.MarkFlagRequired("url")
	return cmd
}

func runCrawlCommand(ctx context.Context, targetURL, outputFile string) error {
	b, err := browser.New(browser.Config{
		Headless:   cfg.Browser.Headless,
		UserAgent:  cfg.Browser.UserAgent,
		IdleWindow: time.Duration(cfg.Browser.IdleWindowMs) * time.Millisecond,
	}, logger)
	if err != nil {
		return fmt.Errorf("launch browser: %w", err)
	}
	defer func() {
		if cerr := b.Close(context.Background()); cerr != nil {
			logger.Warn("browser close failed", zap.Error(cerr))
		}
	}()

	orch := crawler.NewOrchestrator(
		b,
		extract.NewEngine(cfg.Crawler.Selectors),
		sink.NewSingleFile(outputFile),
		crawler.DefaultResourceFilter(),
		system.New(),
		cfg.Orchestrator(),
		logger,
	)

	result, err := orch.Crawl(ctx, "cli", targetURL)
	if err != nil {
		return fmt.Errorf("crawl %s: %w", targetURL, err)
	}
	logger.Info("crawl finished",
		zap.String("url", targetURL),
		zap.String("output", outputFile),
		zap.Int("item_count", result.ItemCount),
	)
	return nil
}
