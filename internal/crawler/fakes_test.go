package crawler

import (
	"context"
	"sync"
	"time"
)

// fakeSession is a hand-rolled Session double shared by the scroll and
// orchestrator tests. Error fields inject failures per call site; counters
// record how often each step ran.
type fakeSession struct {
	mu sync.Mutex

	scrollHeight   int
	viewportHeight int
	growPerRead    int // scrollHeight growth applied on each Metrics call

	navFailures int // fail this many Navigate calls before succeeding
	navCalls    int
	navErr      error

	quiescenceErr error

	html     string
	htmlErr  error
	htmlCall int

	scrolled    int
	scrollCalls int

	filter *ResourceFilter

	screenshotPaths []string
	screenshotErr   error

	closed bool
}

func (s *fakeSession) BlockResources(filter *ResourceFilter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filter = filter
	return nil
}

func (s *fakeSession) Navigate(_ context.Context, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.navCalls++
	if s.navErr != nil && (s.navFailures == 0 || s.navCalls <= s.navFailures) {
		return s.navErr
	}
	return nil
}

func (s *fakeSession) WaitQuiescence(context.Context, time.Duration) error {
	return s.quiescenceErr
}

func (s *fakeSession) ScrollBy(_ context.Context, pixels int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scrollCalls++
	s.scrolled += pixels
	return nil
}

func (s *fakeSession) Metrics(context.Context) (ScrollMetrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := ScrollMetrics{ScrollHeight: s.scrollHeight, ViewportHeight: s.viewportHeight}
	s.scrollHeight += s.growPerRead
	return m, nil
}

func (s *fakeSession) HTML(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.htmlCall++
	if s.htmlErr != nil {
		return "", s.htmlErr
	}
	return s.html, nil
}

func (s *fakeSession) Screenshot(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.screenshotErr != nil {
		return s.screenshotErr
	}
	s.screenshotPaths = append(s.screenshotPaths, path)
	return nil
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type fakeBrowser struct {
	session    *fakeSession
	sessionErr error
}

func (b *fakeBrowser) NewSession(context.Context) (Session, error) {
	if b.sessionErr != nil {
		return nil, b.sessionErr
	}
	return b.session, nil
}

func (b *fakeBrowser) Close(context.Context) error { return nil }

type fakeExtractor struct {
	result ExtractionResult
	err    error

	mu       sync.Mutex
	sawHTML  string
	sawBase  string
	extracts int
}

func (e *fakeExtractor) Extract(html, baseURL string) (ExtractionResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.extracts++
	e.sawHTML = html
	e.sawBase = baseURL
	if e.err != nil {
		return ExtractionResult{}, e.err
	}
	return e.result, nil
}

type fakeSink struct {
	mu      sync.Mutex
	names   []string
	results []ExtractionResult
	err     error
}

func (s *fakeSink) WriteResult(_ context.Context, name string, result ExtractionResult) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.names = append(s.names, name)
	s.results = append(s.results, result)
	return "fake://" + name, nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}
