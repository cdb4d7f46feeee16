package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"smartcrawl/internal/api"
	"smartcrawl/internal/browser"
	"smartcrawl/internal/clock/system"
	"smartcrawl/internal/crawler"
	"smartcrawl/internal/extract"
	"smartcrawl/internal/id/uuid"
	"smartcrawl/internal/metrics"
	"smartcrawl/internal/runner"
	"smartcrawl/internal/sink"
	"smartcrawl/internal/store/memory"
	"smartcrawl/internal/store/postgres"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Starts the crawl job HTTP service",
		RunE:  runServeCommand,
	}
}

func runServeCommand(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Init()

	ids := uuid.NewGenerator()
	clock := system.New()

	store, closeStore, err := buildJobStore(ctx, ids, clock)
	if err != nil {
		return err
	}
	defer closeStore()

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

	resultSink, err := sink.NewFileSystem(cfg.Output.Dir, logger)
	if err != nil {
		return fmt.Errorf("init result sink: %w", err)
	}

	orch := crawler.NewOrchestrator(
		b,
		extract.NewEngine(cfg.Crawler.Selectors),
		resultSink,
		crawler.DefaultResourceFilter(),
		clock,
		cfg.Orchestrator(),
		logger,
	)

	jobs := runner.New(context.Background(), cfg.Crawler.MaxParallelJobs, logger)
	server := api.NewServer(store, jobs, orch, logger)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.Int("port", cfg.Server.Port))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown failed", zap.Error(err))
	}
	if err := jobs.Drain(shutdownCtx); err != nil {
		logger.Warn("jobs still in flight at shutdown", zap.Error(err))
	}
	return nil
}

func buildJobStore(
	ctx context.Context,
	ids crawler.IDGenerator,
	clock crawler.Clock,
) (crawler.JobStore, func(), error) {
	switch cfg.Store.Backend {
	case "postgres":
		store, err := postgres.NewJobStore(ctx, postgres.Config{
			DSN:   cfg.Store.DSN,
			Table: cfg.Store.Table,
		}, ids, clock)
		if err != nil {
			return nil, nil, fmt.Errorf("init postgres job store: %w", err)
		}
		if err := store.Init(ctx); err != nil {
			store.Close()
			return nil, nil, fmt.Errorf("migrate postgres job store: %w", err)
		}
		return store, store.Close, nil
	default:
		return memory.NewJobStore(ids, clock), func() {}, nil
	}
}
