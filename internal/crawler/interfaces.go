package crawler

import (
	"context"
	"time"
)

// Browser launches rendering sessions. Implementations own the underlying
// browser process; sessions are cheap per-job tabs.
type Browser interface {
	NewSession(ctx context.Context) (Session, error)
	Close(ctx context.Context) error
}

// Session is one live rendering surface bound to a single job. Every method
// except Close honors the passed context's deadline.
type Session interface {
	// BlockResources installs request interception for the session. Must be
	// called before Navigate to take effect for the navigation's requests.
	BlockResources(filter *ResourceFilter) error
	// Navigate loads the URL and returns once the DOM content is parsed,
	// without waiting for subresources.
	Navigate(ctx context.Context, url string) error
	// WaitQuiescence blocks until no network activity is observed for a
	// settling window, or returns ErrQuiescenceTimeout after timeout.
	WaitQuiescence(ctx context.Context, timeout time.Duration) error
	// ScrollBy scrolls the viewport down by the given pixel distance.
	ScrollBy(ctx context.Context, pixels int) error
	// Metrics re-reads the current scrollable and viewport heights.
	Metrics(ctx context.Context) (ScrollMetrics, error)
	// HTML returns the rendered document markup.
	HTML(ctx context.Context) (string, error)
	// Screenshot writes a full-page capture to path.
	Screenshot(ctx context.Context, path string) error
	Close() error
}

// Extractor turns a rendered document snapshot into structured items.
// Implementations must be deterministic and free of I/O so they can be
// tested against fabricated snapshots.
type Extractor interface {
	Extract(html string, baseURL string) (ExtractionResult, error)
}

// JobStore persists job lifecycle records. All methods are safe for
// concurrent use by the HTTP boundary and in-flight job tasks.
type JobStore interface {
	// Create inserts a fresh pending job and returns it. The generated ID
	// never collides with a live record.
	Create(ctx context.Context) (Job, error)
	// Transition moves a job to status, attaching the result for completed
	// jobs or errText for failed ones. Returns ErrJobNotFound for unknown
	// IDs and ErrTerminalTransition for jobs already terminal.
	Transition(ctx context.Context, jobID string, status JobStatus, result *ExtractionResult, errText string) error
	Get(ctx context.Context, jobID string) (Job, error)
}

// ResultSink persists a completed extraction and returns the artifact
// location.
type ResultSink interface {
	WriteResult(ctx context.Context, name string, result ExtractionResult) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
