// Package archive persists the engine's own session snapshot in Postgres so
// a restarted replica can resume the session instead of starting empty.
package archive

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/classpoll/livepoll/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS session_snapshot (
	id        BIGSERIAL PRIMARY KEY,
	taken_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	state     JSONB NOT NULL
)`

// Repository stores and loads serialized session snapshots.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository connects to Postgres and ensures the snapshot table exists.
func NewRepository(ctx context.Context, dsn string) (*Repository, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure snapshot table: %w", err)
	}
	return &Repository{pool: pool}, nil
}

// SaveSnapshot appends the current snapshot to the archive.
func (r *Repository) SaveSnapshot(ctx context.Context, state models.SessionState) error {
	data, err := models.EncodeSnapshot(state)
	if err != nil {
		return err
	}
	if _, err := r.pool.Exec(ctx, `INSERT INTO session_snapshot (state) VALUES ($1)`, data); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// LoadLatest returns the most recent archived snapshot. When the archive is
// empty, it returns an empty session. An undecodable row is discarded and
// the session starts empty rather than failing.
func (r *Repository) LoadLatest(ctx context.Context) (models.SessionState, error) {
	var data []byte
	err := r.pool.QueryRow(ctx, `SELECT state FROM session_snapshot ORDER BY id DESC LIMIT 1`).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.NewSessionState(), nil
	}
	if err != nil {
		return models.SessionState{}, fmt.Errorf("load snapshot: %w", err)
	}

	state, err := models.DecodeSnapshot(data)
	if err != nil {
		log.Error().Err(err).Msg("archived snapshot undecodable, starting from empty session")
		return models.NewSessionState(), nil
	}
	return state, nil
}

// Close releases the connection pool.
func (r *Repository) Close() {
	r.pool.Close()
}
