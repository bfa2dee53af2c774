package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNoDatabase is returned by Connect when no DSN is configured.
var ErrNoDatabase = errors.New("database not configured")

// Store persists finished games and the historian's action log.
type Store struct {
	pool *pgxpool.Pool
}

// Connect opens a pool for dsn and pings it.
func Connect(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, ErrNoDatabase
	}
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse pgx config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS games (
	id               UUID PRIMARY KEY,
	chat_id          BIGINT NOT NULL DEFAULT 0,
	mode             TEXT NOT NULL DEFAULT 'classic',
	status           TEXT NOT NULL DEFAULT 'in_progress',
	winner_user_id   BIGINT,
	final_game_state JSONB,
	start_time       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	end_time         TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS game_results (
	game_id    UUID NOT NULL REFERENCES games(id) ON DELETE CASCADE,
	player_id  BIGINT NOT NULL,
	card_count INT NOT NULL,
	did_win    BOOLEAN NOT NULL DEFAULT FALSE,
	PRIMARY KEY (game_id, player_id)
);

CREATE TABLE IF NOT EXISTS game_actions (
	game_id        UUID NOT NULL REFERENCES games(id) ON DELETE CASCADE,
	action_index   INT NOT NULL,
	actor_user_id  BIGINT NOT NULL,
	action_type    TEXT NOT NULL,
	action_payload JSONB,
	created_at     TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (game_id, action_index)
);
`

// EnsureSchema creates the tables if they are missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
