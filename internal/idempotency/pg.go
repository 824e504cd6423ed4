package idempotency

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// pgCleanupEvery triggers an opportunistic expired-row purge once per this
// many writes, so the table stays bounded without a dedicated janitor.
const pgCleanupEvery = 512

const pgSchema = `
CREATE TABLE IF NOT EXISTS syncline_idempotency (
	key        text PRIMARY KEY,
	response   bytea NOT NULL,
	expires_at timestamptz NOT NULL
);
CREATE INDEX IF NOT EXISTS syncline_idempotency_expires_idx
	ON syncline_idempotency (expires_at);
`

// PG is the Postgres-backed Store for multi-replica deployments where replay
// decisions must be shared across processes.
type PG struct {
	pool *pgxpool.Pool
	ttl  time.Duration
	sets atomic.Uint64
}

// NewPG wraps an existing pool (see db.Open). Call EnsureSchema once
// before use.
func NewPG(pool *pgxpool.Pool, ttl time.Duration) *PG {
	return &PG{pool: pool, ttl: ttl}
}

// EnsureSchema creates the idempotency table and its expiry index.
func (p *PG) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, pgSchema); err != nil {
		return fmt.Errorf("ensure idempotency schema: %w", err)
	}
	return nil
}

func (p *PG) Has(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := p.pool.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM syncline_idempotency
			WHERE key = $1 AND expires_at > now()
		)
	`, key).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check idempotency key: %w", err)
	}
	return exists, nil
}

func (p *PG) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var body []byte
	err := p.pool.QueryRow(ctx, `
		SELECT response FROM syncline_idempotency
		WHERE key = $1 AND expires_at > now()
	`, key).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load idempotency key: %w", err)
	}
	return body, true, nil
}

func (p *PG) Set(ctx context.Context, key string, response []byte) error {
	// First writer wins; concurrent replays keep the original response.
	_, err := p.pool.Exec(ctx, `
		INSERT INTO syncline_idempotency (key, response, expires_at)
		VALUES ($1, $2, now() + $3::bigint * interval '1 millisecond')
		ON CONFLICT (key) DO NOTHING
	`, key, response, p.ttl.Milliseconds())
	if err != nil {
		return fmt.Errorf("store idempotency key: %w", err)
	}
	if p.sets.Add(1)%pgCleanupEvery == 0 {
		if n, err := p.CleanupExpired(ctx); err != nil {
			log.Ctx(ctx).Warn().Err(err).Msg("idempotency cleanup failed")
		} else if n > 0 {
			log.Ctx(ctx).Debug().Int64("removed", n).Msg("idempotency cleanup")
		}
	}
	return nil
}

// CleanupExpired removes expired records and reports how many were dropped.
func (p *PG) CleanupExpired(ctx context.Context) (int64, error) {
	tag, err := p.pool.Exec(ctx, `
		DELETE FROM syncline_idempotency WHERE expires_at <= now()
	`)
	if err != nil {
		return 0, fmt.Errorf("cleanup idempotency keys: %w", err)
	}
	return tag.RowsAffected(), nil
}
