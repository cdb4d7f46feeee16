// Package poller implements the caller-side job client: submit a URL, show
// simulated progress, poll status at a fixed interval, and terminate into
// success, error or timeout.
package poller

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"go.uber.org/zap"

	"smartcrawl/internal/crawler"
)

// State is the client-visible outcome space. StateTimeout means the poller
// gave up; the server-side job may still be running.
type State string

// Poller states.
const (
	StateCrawling State = "crawling"
	StateSuccess  State = "success"
	StateError    State = "error"
	StateTimeout  State = "timeout"
)

// Terminal reports whether the state ends the poll loop.
func (s State) Terminal() bool {
	return s == StateSuccess || s == StateError || s == StateTimeout
}

// Update is one status emission. Result is set on success, Err on error.
type Update struct {
	State    State
	Progress float64
	Result   *crawler.ExtractionResult
	Err      string
}

// Config tunes the poll loop. Zero values take the documented defaults.
type Config struct {
	BaseURL          string
	PollInterval     time.Duration // default 2s
	ProgressInterval time.Duration // default 1s
	MaxAttempts      int           // default 30 (~60s of polling)
	HTTPClient       *http.Client
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.ProgressInterval <= 0 {
		c.ProgressInterval = time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 30
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	return c
}

// Poller drives one job submission at a time.
type Poller struct {
	cfg    Config
	logger *zap.Logger
}

// New builds a Poller against the service at cfg.BaseURL.
func New(cfg Config, logger *zap.Logger) *Poller {
	return &Poller{cfg: cfg.withDefaults(), logger: logger}
}

// Run submits url and streams status updates. The channel is closed after a
// terminal update. Progress emissions between polls are cosmetic: a timer
// that creeps toward 90 and never gates correctness.
func (p *Poller) Run(ctx context.Context, url string) <-chan Update {
	updates := make(chan Update, 32)
	go func() {
		defer close(updates)
		p.run(ctx, url, updates)
	}()
	return updates
}

func (p *Poller) run(ctx context.Context, url string, updates chan<- Update) {
	progress := 10.0
	emit := func(u Update) {
		if u.State.Terminal() {
			updates <- u
			return
		}
		// Cosmetic updates are droppable when the consumer lags.
		select {
		case updates <- u:
		default:
		}
	}

	emit(Update{State: StateCrawling, Progress: progress})

	jobID, err := p.submit(ctx, url)
	if err != nil {
		p.logger.Error("job submission failed", zap.Error(err))
		emit(Update{State: StateError, Err: err.Error()})
		return
	}
	p.logger.Info("job submitted", zap.String("job_id", jobID), zap.String("url", url))

	progressTick := time.NewTicker(p.cfg.ProgressInterval)
	defer progressTick.Stop()
	pollTick := time.NewTicker(p.cfg.PollInterval)
	defer pollTick.Stop()

	attempts := 0
	for {
		select {
		case <-ctx.Done():
			emit(Update{State: StateError, Progress: progress, Err: ctx.Err().Error()})
			return

		case <-progressTick.C:
			// Stall at 90 until real completion.
			if progress < 90 {
				progress += rand.Float64() * 5
				if progress > 90 {
					progress = 90
				}
			}
			emit(Update{State: StateCrawling, Progress: progress})

		case <-pollTick.C:
			attempts++
			if attempts > p.cfg.MaxAttempts {
				emit(Update{State: StateTimeout, Progress: progress})
				return
			}
			job, err := p.status(ctx, jobID)
			if err != nil {
				// Transient polling failures are swallowed; only the
				// attempt budget ends the loop.
				p.logger.Warn("poll failed", zap.String("job_id", jobID), zap.Error(err))
				continue
			}
			switch job.Status {
			case crawler.JobStatusCompleted:
				emit(Update{State: StateSuccess, Progress: 100, Result: job.Result})
				return
			case crawler.JobStatusFailed:
				emit(Update{State: StateError, Err: job.Error})
				return
			}
		}
	}
}

func (p *Poller) submit(ctx context.Context, url string) (string, error) {
	body, err := json.Marshal(map[string]string{"url": url})
	if err != nil {
		return "", fmt.Errorf("marshal submission: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/crawl", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build submission request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.cfg.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("submit job: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("submit job: unexpected status %d", resp.StatusCode)
	}

	var payload struct {
		JobID string `json:"jobId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode submission response: %w", err)
	}
	if payload.JobID == "" {
		return "", fmt.Errorf("submission response missing job id")
	}
	return payload.JobID, nil
}

func (p *Poller) status(ctx context.Context, jobID string) (crawler.Job, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.BaseURL+"/status/"+jobID, nil)
	if err != nil {
		return crawler.Job{}, fmt.Errorf("build status request: %w", err)
	}
	resp, err := p.cfg.HTTPClient.Do(req)
	if err != nil {
		return crawler.Job{}, fmt.Errorf("fetch status: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return crawler.Job{}, fmt.Errorf("fetch status: unexpected status %d", resp.StatusCode)
	}

	var job crawler.Job
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		return crawler.Job{}, fmt.Errorf("decode status response: %w", err)
	}
	return job, nil
}
