package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"smartcrawl/internal/crawler"
)

type seqIDs struct{ n int }

func (g *seqIDs) NewID() (string, error) {
	g.n++
	return fmt.Sprintf("job-%d", g.n), nil
}

type tickClock struct{ now time.Time }

func (c *tickClock) Now() time.Time {
	c.now = c.now.Add(time.Second)
	return c.now
}

func newTestStore() *JobStore {
	return NewJobStore(&seqIDs{}, &tickClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)})
}

func TestCreate_StartsPending(t *testing.T) {
	t.Parallel()

	store := newTestStore()
	job, err := store.Create(context.Background())
	require.NoError(t, err)
	require.Equal(t, "job-1", job.ID)
	require.Equal(t, crawler.JobStatusPending, job.Status)
	require.False(t, job.Submitted.IsZero())
	require.Nil(t, job.Started)
	require.Nil(t, job.Finished)

	got, err := store.Get(context.Background(), job.ID)
	require.NoError(t, err)
	require.Equal(t, job, got)
}

func TestTransition_FullLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore()
	job, err := store.Create(ctx)
	require.NoError(t, err)

	require.NoError(t, store.Transition(ctx, job.ID, crawler.JobStatusCrawling, nil, ""))
	got, err := store.Get(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, crawler.JobStatusCrawling, got.Status)
	require.NotNil(t, got.Started)
	require.Nil(t, got.Finished)

	result := &crawler.ExtractionResult{Title: "Done", ItemCount: 3}
	require.NoError(t, store.Transition(ctx, job.ID, crawler.JobStatusCompleted, result, ""))
	got, err = store.Get(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, crawler.JobStatusCompleted, got.Status)
	require.Equal(t, result, got.Result)
	require.NotNil(t, got.Finished)
	require.True(t, got.Finished.After(*got.Started))
}

func TestTransition_FailureRecordsError(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore()
	job, err := store.Create(ctx)
	require.NoError(t, err)

	require.NoError(t, store.Transition(ctx, job.ID, crawler.JobStatusFailed, nil, "navigation timed out"))
	got, err := store.Get(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, crawler.JobStatusFailed, got.Status)
	require.Equal(t, "navigation timed out", got.Error)
	require.Nil(t, got.Result)
}

func TestTransition_TerminalIsFinal(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore()
	job, err := store.Create(ctx)
	require.NoError(t, err)
	require.NoError(t, store.Transition(ctx, job.ID, crawler.JobStatusCompleted, &crawler.ExtractionResult{}, ""))

	// Once terminal, no transition goes through, not even to the same state.
	for _, next := range []crawler.JobStatus{
		crawler.JobStatusCrawling, crawler.JobStatusFailed, crawler.JobStatusCompleted,
	} {
		err := store.Transition(ctx, job.ID, next, nil, "")
		require.ErrorIs(t, err, crawler.ErrTerminalTransition)
	}

	got, err := store.Get(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, crawler.JobStatusCompleted, got.Status)
}

func TestUnknownJob(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore()

	_, err := store.Get(ctx, "missing")
	require.ErrorIs(t, err, crawler.ErrJobNotFound)

	err = store.Transition(ctx, "missing", crawler.JobStatusCrawling, nil, "")
	require.ErrorIs(t, err, crawler.ErrJobNotFound)
}

func TestCreate_DistinctIDs(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore()
	a, err := store.Create(ctx)
	require.NoError(t, err)
	b, err := store.Create(ctx)
	require.NoError(t, err)
	require.NotEqual(t, a.ID, b.ID)
}
