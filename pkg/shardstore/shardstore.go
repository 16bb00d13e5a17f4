// Package shardstore persists serialized candidate-list shards to
// Postgres, so a multi-chunk run's output can be written incrementally
// and merged once every chunk has landed.
package shardstore

import (
	"bytes"
	"context"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/entitylink/anonlink-go/pkg/candidates"
	"github.com/entitylink/anonlink-go/pkg/serialize"
)

// Store wraps a connection pool to the Postgres instance backing one
// deployment's shard storage.
type Store struct {
	pool *pgxpool.Pool
}

// Connect opens a pooled connection to connStr and verifies it with a
// ping.
func Connect(ctx context.Context, connStr string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("shardstore: unable to connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("shardstore: ping failed: %w", err)
	}
	log.Println("[shardstore] connected")
	return &Store{pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

const schema = `
CREATE TABLE IF NOT EXISTS candidate_shards (
	run_id     TEXT NOT NULL,
	shard_id   TEXT NOT NULL,
	payload    BYTEA NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (run_id, shard_id)
);
`

// InitSchema creates the candidate_shards table if it does not already
// exist.
func (s *Store) InitSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("shardstore: failed to initialize schema: %w", err)
	}
	log.Println("[shardstore] schema initialized")
	return nil
}

// PutShard serializes list and upserts it under (runID, shardID).
func (s *Store) PutShard(ctx context.Context, runID, shardID string, list *candidates.List) error {
	var buf bytes.Buffer
	if err := serialize.Dump(&buf, list); err != nil {
		return fmt.Errorf("shardstore: failed to serialize shard: %w", err)
	}

	const upsert = `
		INSERT INTO candidate_shards (run_id, shard_id, payload)
		VALUES ($1, $2, $3)
		ON CONFLICT (run_id, shard_id) DO UPDATE
		SET payload = EXCLUDED.payload, created_at = NOW();
	`
	_, err := s.pool.Exec(ctx, upsert, runID, shardID, buf.Bytes())
	if err != nil {
		return fmt.Errorf("shardstore: failed to store shard %s/%s: %w", runID, shardID, err)
	}
	return nil
}

// GetShard loads and deserializes one shard.
func (s *Store) GetShard(ctx context.Context, runID, shardID string) (*candidates.List, error) {
	const query = `SELECT payload FROM candidate_shards WHERE run_id = $1 AND shard_id = $2`
	var payload []byte
	if err := s.pool.QueryRow(ctx, query, runID, shardID).Scan(&payload); err != nil {
		return nil, fmt.Errorf("shardstore: failed to load shard %s/%s: %w", runID, shardID, err)
	}
	return serialize.Load(bytes.NewReader(payload))
}

// ListShardIDs returns every shard ID stored under runID.
func (s *Store) ListShardIDs(ctx context.Context, runID string) ([]string, error) {
	const query = `SELECT shard_id FROM candidate_shards WHERE run_id = $1 ORDER BY shard_id`
	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("shardstore: failed to list shards for run %s: %w", runID, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// MergeRun loads every shard stored under runID and merges them into
// one canonically-ordered, deduplicated candidate list.
func (s *Store) MergeRun(ctx context.Context, runID string) (*candidates.List, error) {
	ids, err := s.ListShardIDs(ctx, runID)
	if err != nil {
		return nil, err
	}

	merged := candidates.NewList(0)
	for _, id := range ids {
		shard, err := s.GetShard(ctx, runID, id)
		if err != nil {
			return nil, err
		}
		merged = candidates.Concat(merged, shard)
	}
	merged.SortCanonical()
	merged.Dedup()
	return merged, nil
}
