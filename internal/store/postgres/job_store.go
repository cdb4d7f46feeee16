// Package postgres provides a Postgres-backed job store for deployments
// where job records must survive the process.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"smartcrawl/internal/crawler"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for job rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// pool is the subset of pgxpool.Pool the store needs; pgxmock satisfies it.
type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// JobStore persists job records in Postgres.
type JobStore struct {
	pool  pool
	table string
	ids   crawler.IDGenerator
	clock crawler.Clock
}

// NewJobStore connects a pool using the provided config.
func NewJobStore(ctx context.Context, cfg Config, ids crawler.IDGenerator, clock crawler.Clock) (*JobStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "jobs"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &JobStore{pool: p, table: table, ids: ids, clock: clock}, nil
}

// NewJobStoreWithPool constructs a store from an existing pool (primarily
// for testing).
func NewJobStoreWithPool(p pool, table string, ids crawler.IDGenerator, clock crawler.Clock) (*JobStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "jobs"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &JobStore{pool: p, table: table, ids: ids, clock: clock}, nil
}

// Init creates the jobs table when it does not exist yet.
func (s *JobStore) Init(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL,
	result     JSONB,
	error_text TEXT,
	submitted  TIMESTAMPTZ NOT NULL,
	started    TIMESTAMPTZ,
	finished   TIMESTAMPTZ
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create jobs table: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *JobStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Create inserts a fresh pending job row.
func (s *JobStore) Create(ctx context.Context) (crawler.Job, error) {
	id, err := s.ids.NewID()
	if err != nil {
		return crawler.Job{}, fmt.Errorf("generate job id: %w", err)
	}
	job := crawler.Job{
		ID:        id,
		Status:    crawler.JobStatusPending,
		Submitted: s.clock.Now(),
	}
	query := fmt.Sprintf(
		"INSERT INTO %s (id, status, submitted) VALUES ($1, $2, $3)", s.table)
	if _, err := s.pool.Exec(ctx, query, job.ID, string(job.Status), job.Submitted); err != nil {
		return crawler.Job{}, fmt.Errorf("insert job: %w", err)
	}
	return job, nil
}

// Transition updates a non-terminal job row; the WHERE clause enforces the
// monotonic lifecycle at the database level.
func (s *JobStore) Transition(
	ctx context.Context,
	jobID string,
	status crawler.JobStatus,
	result *crawler.ExtractionResult,
	errText string,
) error {
	var resultJSON []byte
	if result != nil {
		payload, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
		resultJSON = payload
	}
	now := s.clock.Now()
	query := fmt.Sprintf(`
UPDATE %s SET
	status = $2,
	result = $3,
	error_text = $4,
	started = CASE WHEN $2 = 'crawling' AND started IS NULL THEN $5 ELSE started END,
	finished = CASE WHEN $2 IN ('completed', 'failed') THEN $5 ELSE finished END
WHERE id = $1 AND status NOT IN ('completed', 'failed')`, s.table)

	tag, err := s.pool.Exec(ctx, query, jobID, string(status), resultJSON, nullable(errText), now)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// Zero rows updated: distinguish unknown job from terminal job.
	check := fmt.Sprintf("SELECT status FROM %s WHERE id = $1", s.table)
	var current string
	if err := s.pool.QueryRow(ctx, check, jobID).Scan(&current); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return crawler.ErrJobNotFound
		}
		return fmt.Errorf("check job status: %w", err)
	}
	return fmt.Errorf("transition %s -> %s: %w", current, status, crawler.ErrTerminalTransition)
}

// Get fetches a job row by ID.
func (s *JobStore) Get(ctx context.Context, jobID string) (crawler.Job, error) {
	query := fmt.Sprintf(
		"SELECT id, status, result, error_text, submitted, started, finished FROM %s WHERE id = $1",
		s.table)

	var (
		job        crawler.Job
		status     string
		resultJSON []byte
		errText    *string
	)
	err := s.pool.QueryRow(ctx, query, jobID).
		Scan(&job.ID, &status, &resultJSON, &errText, &job.Submitted, &job.Started, &job.Finished)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return crawler.Job{}, crawler.ErrJobNotFound
		}
		return crawler.Job{}, fmt.Errorf("select job: %w", err)
	}
	job.Status = crawler.JobStatus(status)
	if errText != nil {
		job.Error = *errText
	}
	if len(resultJSON) > 0 {
		var result crawler.ExtractionResult
		if err := json.Unmarshal(resultJSON, &result); err != nil {
			return crawler.Job{}, fmt.Errorf("unmarshal result: %w", err)
		}
		job.Result = &result
	}
	return job, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
