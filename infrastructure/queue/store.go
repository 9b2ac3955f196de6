package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Store mirrors delayed/waiting jobs to Postgres so the in-process registry
// can be rehydrated after a restart. Postgres is the durable log; the
// in-memory registry is the thing actually scheduling timers.
type Store struct {
	db *sql.DB
}

// NewStore wraps an already-open database handle. The caller owns the
// handle's lifecycle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the jobs mirror table if it does not already exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS jobs (
	id            TEXT PRIMARY KEY,
	queue         TEXT NOT NULL,
	job_type      TEXT NOT NULL,
	payload       JSONB NOT NULL,
	run_at        TIMESTAMPTZ NOT NULL,
	attempts      INT NOT NULL DEFAULT 0,
	max_attempts  INT NOT NULL,
	backoff_base  BIGINT NOT NULL,
	state         TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL,
	last_error    TEXT
)`)
	if err != nil {
		return fmt.Errorf("queue: ensure schema: %w", err)
	}
	return nil
}

// Put upserts j's durable mirror row.
func (s *Store) Put(ctx context.Context, j Job) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO jobs (id, queue, job_type, payload, run_at, attempts, max_attempts, backoff_base, state, created_at, last_error)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (id) DO UPDATE SET
	attempts = EXCLUDED.attempts,
	state = EXCLUDED.state,
	run_at = EXCLUDED.run_at,
	last_error = EXCLUDED.last_error`,
		j.ID, j.Queue, j.Type, []byte(j.Payload), j.RunAt, j.Attempts, j.MaxAttempts,
		int64(j.BackoffBase), string(j.State), j.CreatedAt, nullableString(j.LastError))
	if err != nil {
		return fmt.Errorf("queue: put job %s: %w", j.ID, err)
	}
	return nil
}

// Delete removes a job's durable mirror row, called on completion or
// removal.
func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("queue: delete job %s: %w", id, err)
	}
	return nil
}

// LoadPending returns every {delayed, waiting} job, used to rehydrate the
// in-memory registry on startup.
func (s *Store) LoadPending(ctx context.Context) ([]Job, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, queue, job_type, payload, run_at, attempts, max_attempts, backoff_base, state, created_at, COALESCE(last_error, '')
FROM jobs WHERE state IN ('delayed', 'waiting')`)
	if err != nil {
		return nil, fmt.Errorf("queue: load pending: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var (
			j           Job
			payload     []byte
			backoffNano int64
			state       string
		)
		if err := rows.Scan(&j.ID, &j.Queue, &j.Type, &payload, &j.RunAt, &j.Attempts,
			&j.MaxAttempts, &backoffNano, &state, &j.CreatedAt, &j.LastError); err != nil {
			return nil, fmt.Errorf("queue: scan pending job: %w", err)
		}
		j.Payload = json.RawMessage(payload)
		j.BackoffBase = time.Duration(backoffNano)
		j.State = State(state)
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
