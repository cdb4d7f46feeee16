// Package crawler defines the core types and the orchestration engine for
// single-page render-and-extract jobs.
package crawler

import "time"

// JobStatus represents the lifecycle state of a crawl job.
type JobStatus string

// Job status values persisted in the job store.
const (
	JobStatusPending   JobStatus = "pending"
	JobStatusCrawling  JobStatus = "crawling"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Terminal reports whether the status allows no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Job is the record persisted for each submitted crawl request.
// Result is set only for completed jobs, Error only for failed ones.
type Job struct {
	ID        string            `json:"id"`
	Status    JobStatus         `json:"status"`
	Result    *ExtractionResult `json:"data,omitempty"`
	Error     string            `json:"error,omitempty"`
	Submitted time.Time         `json:"submitted_at"`
	Started   *time.Time        `json:"started_at,omitempty"`
	Finished  *time.Time        `json:"finished_at,omitempty"`
}

// ExtractionResult is the structured output of one crawl.
// ItemCount is the deduplicated total before Items is capped, so callers
// can observe how much the cap discarded.
type ExtractionResult struct {
	Title           string `json:"title"`
	MetaDescription string `json:"metaDescription,omitempty"`
	ItemCount       int    `json:"itemCount"`
	Items           []Item `json:"items"`
}

// Item is one discrete content entity extracted from the page.
type Item struct {
	Text  string `json:"text"`
	Link  string `json:"link"`
	Image string `json:"image,omitempty"`
}

// ScrollMetrics is a point-in-time read of the rendering surface geometry.
type ScrollMetrics struct {
	ScrollHeight   int `json:"scrollHeight"`
	ViewportHeight int `json:"viewportHeight"`
}
