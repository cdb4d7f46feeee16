package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"smartcrawl/internal/clock/system"
	"smartcrawl/internal/crawler"
	"smartcrawl/internal/id/uuid"
	"smartcrawl/internal/runner"
	"smartcrawl/internal/store/memory"
)

// stubOrchestrator returns a canned result or error per crawl.
type stubOrchestrator struct {
	mu     sync.Mutex
	result crawler.ExtractionResult
	err    error
	urls   []string
}

func (o *stubOrchestrator) Crawl(_ context.Context, _, url string) (crawler.ExtractionResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.urls = append(o.urls, url)
	if o.err != nil {
		return crawler.ExtractionResult{}, o.err
	}
	return o.result, nil
}

func newTestServer(t *testing.T, orch Orchestrator) (*Server, crawler.JobStore) {
	t.Helper()
	store := memory.NewJobStore(uuid.NewGenerator(), system.New())
	run := runner.New(context.Background(), 0, zap.NewNop())
	return NewServer(store, run, orch, zap.NewNop()), store
}

func doRequest(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, &stubOrchestrator{})
	rec := doRequest(t, s, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", decodeBody[map[string]string](t, rec)["status"])
}

func TestSubmitCrawl_MissingURL(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, &stubOrchestrator{})

	for _, body := range []string{`{}`, `{"url":""}`, `{"url":"   "}`} {
		rec := doRequest(t, s, http.MethodPost, "/crawl", body)
		require.Equal(t, http.StatusBadRequest, rec.Code, "body %q", body)
		require.Equal(t, "URL is required", decodeBody[map[string]string](t, rec)["error"])
	}
}

func TestSubmitCrawl_InvalidJSON(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, &stubOrchestrator{})
	rec := doRequest(t, s, http.MethodPost, "/crawl", `{"url":`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatus_UnknownJob(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, &stubOrchestrator{})
	rec := doRequest(t, s, http.MethodGet, "/status/nope", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "Job not found", decodeBody[map[string]string](t, rec)["error"])
}

func TestSubmitCrawl_CompletesJob(t *testing.T) {
	t.Parallel()

	orch := &stubOrchestrator{result: crawler.ExtractionResult{
		Title:     "Example Domain",
		ItemCount: 2,
		Items: []crawler.Item{
			{Text: "first", Link: "https://example.com/1"},
			{Text: "second", Link: "https://example.com/2"},
		},
	}}
	s, store := newTestServer(t, orch)

	rec := doRequest(t, s, http.MethodPost, "/crawl", `{"url":"https://example.com"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	jobID := decodeBody[map[string]string](t, rec)["jobId"]
	require.NotEmpty(t, jobID)

	require.Eventually(t, func() bool {
		job, err := store.Get(context.Background(), jobID)
		return err == nil && job.Status == crawler.JobStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	job, err := store.Get(context.Background(), jobID)
	require.NoError(t, err)
	require.NotNil(t, job.Result)
	require.Equal(t, "Example Domain", job.Result.Title)
	require.Equal(t, []string{"https://example.com"}, orch.urls)

	// The status endpoint serves the full record, items included.
	statusRec := doRequest(t, s, http.MethodGet, "/status/"+jobID, "")
	require.Equal(t, http.StatusOK, statusRec.Code)
	served := decodeBody[crawler.Job](t, statusRec)
	require.Equal(t, crawler.JobStatusCompleted, served.Status)
	require.Len(t, served.Result.Items, 2)
}

func TestSubmitCrawl_RecordsFailure(t *testing.T) {
	t.Parallel()

	orch := &stubOrchestrator{err: errors.New("navigation timed out after retries")}
	s, store := newTestServer(t, orch)

	rec := doRequest(t, s, http.MethodPost, "/crawl", `{"url":"https://slow.example"}`)
	require.Equal(t, http.StatusOK, rec.Code, "submission succeeds even if the crawl later fails")
	jobID := decodeBody[map[string]string](t, rec)["jobId"]

	require.Eventually(t, func() bool {
		job, err := store.Get(context.Background(), jobID)
		return err == nil && job.Status == crawler.JobStatusFailed
	}, 2*time.Second, 10*time.Millisecond)

	job, err := store.Get(context.Background(), jobID)
	require.NoError(t, err)
	require.Equal(t, "navigation timed out after retries", job.Error)
	require.Nil(t, job.Result)
}

func TestSubmitCrawl_ConcurrentJobsGetDistinctIDs(t *testing.T) {
	t.Parallel()

	orch := &stubOrchestrator{result: crawler.ExtractionResult{Title: "ok"}}
	s, store := newTestServer(t, orch)

	ids := make(map[string]struct{})
	for i := 0; i < 5; i++ {
		rec := doRequest(t, s, http.MethodPost, "/crawl", `{"url":"https://example.com"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		ids[decodeBody[map[string]string](t, rec)["jobId"]] = struct{}{}
	}
	require.Len(t, ids, 5)

	require.Eventually(t, func() bool {
		for id := range ids {
			job, err := store.Get(context.Background(), id)
			if err != nil || !job.Status.Terminal() {
				return false
			}
		}
		return true
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCORSPreflight(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, &stubOrchestrator{})
	rec := doRequest(t, s, http.MethodOptions, "/crawl", "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestIDHeader(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, &stubOrchestrator{})
	rec := doRequest(t, s, http.MethodGet, "/healthz", "")
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}
