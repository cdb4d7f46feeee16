package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"smartcrawl/internal/metrics"
)

// OrchestratorConfig holds the per-step tuning for a crawl. Decoupled from
// Viper so the engine can be constructed and tested independently.
type OrchestratorConfig struct {
	NavigationTimeout time.Duration
	QuiescenceTimeout time.Duration
	MaxRetries        int
	RetryDelay        time.Duration
	Scroll            ScrollConfig
	ArtifactDir       string
	DomainQPS         float64
}

func (c OrchestratorConfig) withDefaults() OrchestratorConfig {
	if c.NavigationTimeout <= 0 {
		c.NavigationTimeout = 30 * time.Second
	}
	if c.QuiescenceTimeout <= 0 {
		c.QuiescenceTimeout = 5 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.ArtifactDir == "" {
		c.ArtifactDir = "."
	}
	return c
}

// Orchestrator owns one rendering session per crawl and runs the full
// pipeline: resource filtering, navigation with retry, a soft wait for
// network quiescence, lazy-load scrolling, extraction with retry, and
// result persistence. The session is released on every exit path.
type Orchestrator struct {
	browser   Browser
	extractor Extractor
	sink      ResultSink
	filter    *ResourceFilter
	clock     Clock
	cfg       OrchestratorConfig
	logger    *zap.Logger

	domainLimiters sync.Map
}

// NewOrchestrator wires the crawl pipeline.
func NewOrchestrator(
	browser Browser,
	extractor Extractor,
	sink ResultSink,
	filter *ResourceFilter,
	clock Clock,
	cfg OrchestratorConfig,
	logger *zap.Logger,
) *Orchestrator {
	if filter == nil {
		filter = DefaultResourceFilter()
	}
	return &Orchestrator{
		browser:   browser,
		extractor: extractor,
		sink:      sink,
		filter:    filter,
		clock:     clock,
		cfg:       cfg.withDefaults(),
		logger:    logger,
	}
}

// Crawl renders rawURL, extracts structured items and persists them under
// the jobID-derived artifact name. Failures come back as *CrawlError
// wrapping the innermost cause.
func (o *Orchestrator) Crawl(ctx context.Context, jobID, rawURL string) (ExtractionResult, error) {
	o.logger.Info("starting crawl", zap.String("job_id", jobID), zap.String("url", rawURL))
	start := o.clock.Now()

	if err := o.waitDomainBudget(ctx, rawURL); err != nil {
		return ExtractionResult{}, newCrawlError(StageSession, err)
	}

	session, err := o.browser.NewSession(ctx)
	if err != nil {
		return ExtractionResult{}, newCrawlError(StageSession, fmt.Errorf("launch session: %w", err))
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			o.logger.Warn("session close failed", zap.String("job_id", jobID), zap.Error(cerr))
		}
	}()

	result, err := o.run(ctx, session, jobID, rawURL)
	if err != nil {
		o.captureFailure(ctx, session, jobID, err)
		metrics.ObserveCrawl(rawURL, "failure", 0, o.clock.Now().Sub(start))
		return ExtractionResult{}, err
	}

	metrics.ObserveCrawl(rawURL, "success", result.ItemCount, o.clock.Now().Sub(start))
	return result, nil
}

func (o *Orchestrator) run(ctx context.Context, session Session, jobID, rawURL string) (ExtractionResult, error) {
	if err := session.BlockResources(o.filter); err != nil {
		return ExtractionResult{}, newCrawlError(StageSession, fmt.Errorf("install resource filter: %w", err))
	}

	o.logger.Info("navigating to page", zap.String("job_id", jobID), zap.String("url", rawURL))
	_, err := WithRetry(ctx, o.logger, "navigate", o.cfg.MaxRetries, o.cfg.RetryDelay,
		func(ctx context.Context) (struct{}, error) {
			navCtx, cancel := context.WithTimeout(ctx, o.cfg.NavigationTimeout)
			defer cancel()
			return struct{}{}, session.Navigate(navCtx, rawURL)
		})
	if err != nil {
		return ExtractionResult{}, newCrawlError(StageNavigation, err)
	}

	// Soft timeout: a page that never goes network-idle is still worth
	// extracting from.
	if err := session.WaitQuiescence(ctx, o.cfg.QuiescenceTimeout); err != nil {
		if errors.Is(err, ErrQuiescenceTimeout) {
			o.logger.Info("network idle timeout, proceeding", zap.String("job_id", jobID))
		} else {
			o.logger.Warn("quiescence wait failed, proceeding", zap.String("job_id", jobID), zap.Error(err))
		}
	}

	o.logger.Info("scrolling", zap.String("job_id", jobID))
	if err := AutoScroll(ctx, session, o.cfg.Scroll); err != nil {
		return ExtractionResult{}, newCrawlError(StageScroll, err)
	}

	o.logger.Info("extracting data", zap.String("job_id", jobID))
	result, err := WithRetry(ctx, o.logger, "extract", o.cfg.MaxRetries, o.cfg.RetryDelay,
		func(ctx context.Context) (ExtractionResult, error) {
			html, herr := session.HTML(ctx)
			if herr != nil {
				return ExtractionResult{}, fmt.Errorf("read rendered document: %w", herr)
			}
			return o.extractor.Extract(html, rawURL)
		})
	if err != nil {
		return ExtractionResult{}, newCrawlError(StageExtraction, err)
	}

	path, err := o.sink.WriteResult(ctx, jobID, result)
	if err != nil {
		return ExtractionResult{}, newCrawlError(StagePersist, err)
	}
	o.logger.Info("results saved",
		zap.String("job_id", jobID),
		zap.String("path", path),
		zap.Int("item_count", result.ItemCount),
	)
	return result, nil
}

// captureFailure writes a full-page diagnostic screenshot. Best-effort: a
// screenshot failure is logged and never masks the original error. Runs on
// a detached context so an expired crawl deadline does not prevent capture.
func (o *Orchestrator) captureFailure(ctx context.Context, session Session, jobID string, cause error) {
	o.logger.Error("crawl failed", zap.String("job_id", jobID), zap.Error(cause))

	shotCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	path := filepath.Join(o.cfg.ArtifactDir, fmt.Sprintf("error-%d.png", o.clock.Now().UnixMilli()))
	if err := session.Screenshot(shotCtx, path); err != nil {
		o.logger.Warn("failure screenshot not captured", zap.String("job_id", jobID), zap.Error(err))
		return
	}
	o.logger.Info("failure screenshot saved", zap.String("job_id", jobID), zap.String("path", path))
}

func (o *Orchestrator) waitDomainBudget(ctx context.Context, rawURL string) error {
	if o.cfg.DomainQPS <= 0 {
		return nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse crawl url: %w", err)
	}
	host := strings.ToLower(parsed.Host)
	val, _ := o.domainLimiters.LoadOrStore(host, rate.NewLimiter(rate.Limit(o.cfg.DomainQPS), 1))
	limiter, ok := val.(*rate.Limiter)
	if !ok {
		return fmt.Errorf("unexpected limiter type %T", val)
	}
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wait domain budget: %w", err)
	}
	return nil
}
