package crawler

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced at the job store and session boundaries.
var (
	// ErrJobNotFound is returned for status queries on unknown job IDs.
	ErrJobNotFound = errors.New("job not found")

	// ErrTerminalTransition indicates a transition out of a completed or
	// failed job. Correct orchestration never does this; it is an invariant
	// violation, not a user-facing condition.
	ErrTerminalTransition = errors.New("job already in terminal state")

	// ErrQuiescenceTimeout is returned by Session.WaitQuiescence when the
	// network did not settle in time. Callers treat it as advisory.
	ErrQuiescenceTimeout = errors.New("network quiescence timeout")
)

// FailureStage identifies which orchestration step a crawl failed in.
type FailureStage string

// Stages a crawl can fail in, in pipeline order.
const (
	StageSession    FailureStage = "session"
	StageNavigation FailureStage = "navigation"
	StageScroll     FailureStage = "scroll"
	StageExtraction FailureStage = "extraction"
	StagePersist    FailureStage = "persist"
)

// CrawlError wraps the innermost cause of a failed crawl with the stage it
// occurred in. The cause is preserved unchanged for errors.Is/As.
type CrawlError struct {
	Stage FailureStage
	Err   error
}

func (e *CrawlError) Error() string {
	return fmt.Sprintf("crawl %s: %v", e.Stage, e.Err)
}

func (e *CrawlError) Unwrap() error {
	return e.Err
}

func newCrawlError(stage FailureStage, err error) *CrawlError {
	return &CrawlError{Stage: stage, Err: err}
}
