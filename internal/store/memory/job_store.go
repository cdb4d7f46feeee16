// Package memory provides the default in-process job store.
package memory

import (
	"context"
	"fmt"
	"sync"

	"smartcrawl/internal/crawler"
)

// JobStore is a mutex-guarded map of job records. Every mutation goes
// through the store API; background tasks never touch records directly.
// Terminal records are kept for the process lifetime; nothing prunes.
type JobStore struct {
	ids   crawler.IDGenerator
	clock crawler.Clock

	mu   sync.RWMutex
	jobs map[string]crawler.Job
}

// NewJobStore constructs a JobStore.
func NewJobStore(ids crawler.IDGenerator, clock crawler.Clock) *JobStore {
	return &JobStore{
		ids:   ids,
		clock: clock,
		jobs:  make(map[string]crawler.Job),
	}
}

// Create inserts a fresh pending job and returns it.
func (s *JobStore) Create(_ context.Context) (crawler.Job, error) {
	id, err := s.ids.NewID()
	if err != nil {
		return crawler.Job{}, fmt.Errorf("generate job id: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[id]; exists {
		return crawler.Job{}, fmt.Errorf("job id collision: %s", id)
	}
	job := crawler.Job{
		ID:        id,
		Status:    crawler.JobStatusPending,
		Submitted: s.clock.Now(),
	}
	s.jobs[id] = job
	return job, nil
}

// Transition moves a job to status, recording the result or error text.
func (s *JobStore) Transition(
	_ context.Context,
	jobID string,
	status crawler.JobStatus,
	result *crawler.ExtractionResult,
	errText string,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return crawler.ErrJobNotFound
	}
	if job.Status.Terminal() {
		return fmt.Errorf("transition %s -> %s: %w", job.Status, status, crawler.ErrTerminalTransition)
	}

	job.Status = status
	job.Result = result
	job.Error = errText
	now := s.clock.Now()
	if status == crawler.JobStatusCrawling && job.Started == nil {
		started := now
		job.Started = &started
	}
	if status.Terminal() {
		finished := now
		job.Finished = &finished
	}
	s.jobs[jobID] = job
	return nil
}

// Get fetches a job by ID.
func (s *JobStore) Get(_ context.Context, jobID string) (crawler.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return crawler.Job{}, crawler.ErrJobNotFound
	}
	return job, nil
}
