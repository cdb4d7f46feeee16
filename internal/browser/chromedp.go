// Package browser implements the rendering capability on headless Chrome
// via chromedp. One Browser owns the Chrome process; each crawl job gets
// its own tab-scoped session.
package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"smartcrawl/internal/crawler"
)

// DefaultUserAgent is presented to target sites.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// Config controls the shared browser process and per-session behavior.
type Config struct {
	Headless  bool
	UserAgent string
	// IdleWindow is how long the network must stay quiet before a session
	// is considered quiescent.
	IdleWindow time.Duration
}

func (c Config) withDefaults() Config {
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.IdleWindow <= 0 {
		c.IdleWindow = 500 * time.Millisecond
	}
	return c
}

// Browser implements crawler.Browser over a single Chrome process.
type Browser struct {
	allocatorCancel context.CancelFunc
	browserCtx      context.Context
	browserCancel   context.CancelFunc
	logger          *zap.Logger
	cfg             Config
}

// New launches (and warms up) the browser process.
func New(cfg Config, logger *zap.Logger) (*Browser, error) {
	cfg = cfg.withDefaults()

	opts := chromedp.DefaultExecAllocatorOptions[:]
	opts = append(opts,
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.UserAgent(cfg.UserAgent),
	)
	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocatorCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}

	return &Browser{
		allocatorCancel: allocatorCancel,
		browserCtx:      browserCtx,
		browserCancel:   browserCancel,
		logger:          logger,
		cfg:             cfg,
	}, nil
}

// Close tears down the browser and allocator contexts.
func (b *Browser) Close(_ context.Context) error {
	if b == nil {
		return nil
	}
	b.browserCancel()
	b.allocatorCancel()
	return nil
}

// NewSession opens a fresh tab bound to one crawl job.
func (b *Browser) NewSession(ctx context.Context) (crawler.Session, error) {
	tabCtx, cancelTab := chromedp.NewContext(b.browserCtx)

	s := &session{
		ctx:     tabCtx,
		cancel:  cancelTab,
		logger:  b.logger,
		idle:    b.cfg.IdleWindow,
		tracker: newNetworkTracker(),
	}
	s.tracker.listen(tabCtx)

	if err := s.run(ctx, network.Enable()); err != nil {
		cancelTab()
		return nil, fmt.Errorf("open tab: %w", err)
	}
	return s, nil
}

type session struct {
	ctx     context.Context
	cancel  context.CancelFunc
	logger  *zap.Logger
	idle    time.Duration
	tracker *networkTracker
}

// BlockResources enables the Fetch domain and answers each paused request
// independently: abort for filtered resource types, continue otherwise.
// Must be mounted before Navigate so the navigation's subresource requests
// are intercepted.
func (s *session) BlockResources(filter *crawler.ResourceFilter) error {
	chromedp.ListenTarget(s.ctx, func(ev interface{}) {
		paused, ok := ev.(*fetch.EventRequestPaused)
		if !ok {
			return
		}
		// Each decision runs on its own goroutine: the listener must not
		// block, and decisions carry no ordering guarantee.
		go func() {
			c := chromedp.FromContext(s.ctx)
			execCtx := cdp.WithExecutor(s.ctx, c.Target)
			if filter.Allow(crawler.MapResourceType(string(paused.ResourceType))) {
				if err := fetch.ContinueRequest(paused.RequestID).Do(execCtx); err != nil {
					s.logger.Debug("continue request failed", zap.Error(err))
				}
				return
			}
			err := fetch.FailRequest(paused.RequestID, network.ErrorReasonBlockedByClient).Do(execCtx)
			if err != nil {
				s.logger.Debug("abort request failed", zap.Error(err))
			}
		}()
	})
	if err := s.run(s.ctx, fetch.Enable()); err != nil {
		return fmt.Errorf("enable fetch interception: %w", err)
	}
	return nil
}

// Navigate starts loading url and returns once DOMContentLoaded fires.
// It deliberately does not wait for the full load event; subresources and
// lazy content are handled by the quiescence wait and the scroll driver.
func (s *session) Navigate(ctx context.Context, url string) error {
	ready := make(chan struct{})
	var once sync.Once
	listenCtx, stopListen := context.WithCancel(s.ctx)
	defer stopListen()
	chromedp.ListenTarget(listenCtx, func(ev interface{}) {
		if _, ok := ev.(*page.EventDomContentEventFired); ok {
			once.Do(func() { close(ready) })
		}
	})

	err := s.run(ctx, chromedp.ActionFunc(func(cctx context.Context) error {
		_, _, errText, err := page.Navigate(url).Do(cctx)
		if err != nil {
			return err
		}
		if errText != "" {
			return fmt.Errorf("navigation failed: %s", errText)
		}
		return nil
	}))
	if err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for dom content: %w", ctx.Err())
	case <-s.ctx.Done():
		return fmt.Errorf("session closed: %w", s.ctx.Err())
	}
}

// WaitQuiescence polls the network tracker until no requests have been in
// flight for the idle window, or the timeout elapses.
func (s *session) WaitQuiescence(ctx context.Context, timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case <-deadline.C:
			return crawler.ErrQuiescenceTimeout
		case <-ctx.Done():
			return fmt.Errorf("wait quiescence: %w", ctx.Err())
		case <-s.ctx.Done():
			return fmt.Errorf("session closed: %w", s.ctx.Err())
		case <-tick.C:
			if s.tracker.idleFor(s.idle) {
				return nil
			}
		}
	}
}

func (s *session) ScrollBy(ctx context.Context, pixels int) error {
	err := s.run(ctx, chromedp.Evaluate(fmt.Sprintf("window.scrollBy(0, %d)", pixels), nil))
	if err != nil {
		return fmt.Errorf("scroll by %d: %w", pixels, err)
	}
	return nil
}

func (s *session) Metrics(ctx context.Context) (crawler.ScrollMetrics, error) {
	var m crawler.ScrollMetrics
	const js = `({scrollHeight: document.body.scrollHeight, viewportHeight: window.innerHeight})`
	if err := s.run(ctx, chromedp.Evaluate(js, &m)); err != nil {
		return crawler.ScrollMetrics{}, fmt.Errorf("read page metrics: %w", err)
	}
	return m, nil
}

func (s *session) HTML(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read outer html: %w", err)
	}
	return html, nil
}

func (s *session) Screenshot(ctx context.Context, path string) error {
	var buf []byte
	if err := s.run(ctx, chromedp.FullScreenshot(&buf, 90)); err != nil {
		return fmt.Errorf("capture screenshot: %w", err)
	}
	if err := os.WriteFile(path, buf, 0o600); err != nil {
		return fmt.Errorf("write screenshot %s: %w", path, err)
	}
	return nil
}

func (s *session) Close() error {
	s.cancel()
	return nil
}

// run executes chromedp actions on the session tab while honoring the
// caller's context deadline.
func (s *session) run(ctx context.Context, actions ...chromedp.Action) error {
	taskCtx, cancelTask := context.WithCancel(s.ctx)
	defer cancelTask()

	stopForward := forwardCancel(ctx, cancelTask)
	defer stopForward()

	if err := chromedp.Run(taskCtx, actions...); err != nil {
		// Surface the caller's deadline rather than the derived cancel.
		if ctx.Err() != nil && errors.Is(err, context.Canceled) {
			return ctx.Err()
		}
		return err
	}
	return nil
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}

// networkTracker counts in-flight requests and remembers when the network
// was last active, feeding the quiescence wait.
type networkTracker struct {
	mu           sync.Mutex
	inflight     map[network.RequestID]struct{}
	lastActivity time.Time
}

func newNetworkTracker() *networkTracker {
	return &networkTracker{
		inflight:     make(map[network.RequestID]struct{}),
		lastActivity: time.Now(),
	}
}

func (t *networkTracker) listen(ctx context.Context) {
	chromedp.ListenTarget(ctx, func(ev interface{}) {
		switch e := ev.(type) {
		case *network.EventRequestWillBeSent:
			t.begin(e.RequestID)
		case *network.EventLoadingFinished:
			t.end(e.RequestID)
		case *network.EventLoadingFailed:
			t.end(e.RequestID)
		}
	})
}

func (t *networkTracker) begin(id network.RequestID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inflight[id] = struct{}{}
	t.lastActivity = time.Now()
}

func (t *networkTracker) end(id network.RequestID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.inflight, id)
	t.lastActivity = time.Now()
}

func (t *networkTracker) idleFor(window time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.inflight) == 0 && time.Since(t.lastActivity) >= window
}
