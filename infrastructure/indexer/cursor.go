package indexer

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// CursorStore persists the indexer's own bookkeeping — lastIndexedBlock
// per network — to Postgres in a single-row-per-network table, so a
// restart resumes from the last successfully processed block instead of
// re-seeding head-100. This is engine-owned cursor state, not a
// peer-owned entity, which is why it is carried here rather than
// excluded as out of scope.
type CursorStore struct {
	db *sql.DB
}

// NewCursorStore wraps an already-open database handle.
func NewCursorStore(db *sql.DB) *CursorStore {
	return &CursorStore{db: db}
}

// EnsureSchema creates the sync-state table if it does not already exist.
func (s *CursorStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS indexer_sync_state (
	network     TEXT PRIMARY KEY,
	last_block  BIGINT NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
)`)
	if err != nil {
		return fmt.Errorf("indexer: ensure schema: %w", err)
	}
	return nil
}

// Load returns the last persisted block for network, or ok=false if no
// cursor has been saved yet.
func (s *CursorStore) Load(ctx context.Context, network string) (lastBlock uint64, ok bool, err error) {
	row := s.db.QueryRowContext(ctx, `SELECT last_block FROM indexer_sync_state WHERE network = $1`, network)
	var block int64
	if err := row.Scan(&block); err != nil {
		if err == sql.ErrNoRows {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("indexer: load cursor: %w", err)
	}
	return uint64(block), true, nil
}

// Save upserts network's cursor to block.
func (s *CursorStore) Save(ctx context.Context, network string, block uint64) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO indexer_sync_state (network, last_block, updated_at)
VALUES ($1, $2, $3)
ON CONFLICT (network) DO UPDATE SET last_block = EXCLUDED.last_block, updated_at = EXCLUDED.updated_at`,
		network, int64(block), time.Now())
	if err != nil {
		return fmt.Errorf("indexer: save cursor: %w", err)
	}
	return nil
}
