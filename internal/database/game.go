// internal/database/game.go
package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/uno/internal/game"
)

// Game statuses stored in games.status.
const (
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusAbandoned  = "abandoned"
)

// resultStatus maps a final snapshot to its stored status. A session ended before anyone went
// out was abandoned.
func resultStatus(snap game.Snapshot) string {
	if snap.Finished {
		return StatusCompleted
	}
	return StatusAbandoned
}

// SaveResult persists the final outcome of a game: the games row and one game_results row
// per remaining seat.
func (s *Store) SaveResult(ctx context.Context, snap game.Snapshot) error {
	finalState, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal final snapshot: %w", err)
	}
	var winner *int64
	if snap.Winner != nil {
		id := int64(snap.Winner.ID)
		winner = &id
	}

	err = pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		upsertGame := `
			INSERT INTO games (id, chat_id, mode, status, winner_user_id, final_game_state, start_time, end_time)
			VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
			ON CONFLICT (id) DO UPDATE SET
				chat_id = EXCLUDED.chat_id,
				mode = EXCLUDED.mode,
				status = EXCLUDED.status,
				winner_user_id = EXCLUDED.winner_user_id,
				final_game_state = EXCLUDED.final_game_state,
				end_time = NOW()
		`
		if _, e := tx.Exec(ctx, upsertGame, snap.GameID, int64(snap.Chat), string(snap.Mode),
			resultStatus(snap), winner, finalState, snap.CreatedAt); e != nil {
			return e
		}

		for _, pl := range snap.Players {
			didWin := snap.Winner != nil && snap.Winner.ID == pl.User.ID
			q := `
				INSERT INTO game_results (game_id, player_id, card_count, did_win)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT (game_id, player_id)
				DO UPDATE SET card_count=$3, did_win=$4
			`
			if _, e2 := tx.Exec(ctx, q, snap.GameID, int64(pl.User.ID), pl.CardCount, didWin); e2 != nil {
				return e2
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("tx upsert game or results: %w", err)
	}
	return nil
}

// InsertActions writes a batch of action records in a single transaction, creating the games
// row on first sight. An end-game action closes a game still marked in progress.
func (s *Store) InsertActions(ctx context.Context, recs []game.ActionRecord) error {
	if len(recs) == 0 {
		return nil
	}
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, rec := range recs {
			if err := insertActionTx(ctx, tx, rec); err != nil {
				return fmt.Errorf("insert action %s#%d: %w", rec.GameID, rec.ActionIndex, err)
			}
		}
		return nil
	})
}

func insertActionTx(ctx context.Context, tx pgx.Tx, rec game.ActionRecord) error {
	upsertGameQ := `
		INSERT INTO games (id, chat_id, status, start_time)
		VALUES ($1, $2, 'in_progress', NOW())
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := tx.Exec(ctx, upsertGameQ, rec.GameID, int64(rec.Chat)); err != nil {
		return err
	}

	jsonPayload, err := json.Marshal(rec.ActionPayload)
	if err != nil {
		return err
	}
	actionInsertQ := `
		INSERT INTO game_actions (
			game_id, action_index, actor_user_id, action_type, action_payload, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (game_id, action_index) DO NOTHING
	`
	if _, err := tx.Exec(ctx, actionInsertQ,
		rec.GameID, rec.ActionIndex, int64(rec.ActorUserID), rec.ActionType, jsonPayload,
		time.UnixMilli(rec.Timestamp),
	); err != nil {
		return err
	}

	if rec.ActionType == "action_end_game" {
		finalizeQ := `
			UPDATE games
			SET status = 'abandoned', end_time = NOW()
			WHERE id = $1 AND status = 'in_progress'
		`
		if _, err := tx.Exec(ctx, finalizeQ, rec.GameID); err != nil {
			return err
		}
	}
	return nil
}

// MarkAbandoned closes a game that stopped producing actions.
func (s *Store) MarkAbandoned(ctx context.Context, gameID uuid.UUID) (bool, error) {
	q := `
		UPDATE games
		SET status = 'abandoned', end_time = NOW()
		WHERE id = $1 AND status = 'in_progress'
	`
	tag, err := s.pool.Exec(ctx, q, gameID)
	if err != nil {
		return false, fmt.Errorf("mark game %s abandoned: %w", gameID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// GameStatus returns the stored status of a game.
func (s *Store) GameStatus(ctx context.Context, gameID uuid.UUID) (string, error) {
	var status string
	err := s.pool.QueryRow(ctx, `SELECT status FROM games WHERE id = $1`, gameID).Scan(&status)
	if err != nil {
		return "", fmt.Errorf("game %s status: %w", gameID, err)
	}
	return status, nil
}

// ActionCount returns how many actions of a game were stored.
func (s *Store) ActionCount(ctx context.Context, gameID uuid.UUID) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM game_actions WHERE game_id = $1`, gameID).Scan(&n)
	return n, err
}
