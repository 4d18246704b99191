// internal/database/actions.go
package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jason-s-yu/auctionarena/internal/models"
)

// InsertAuctionActions persists a batch of queued actions in one transaction.
// Replays of an already stored (lobby_id, seq) are ignored.
func (s *Store) InsertAuctionActions(ctx context.Context, actions []models.AuctionAction) error {
	if len(actions) == 0 {
		return nil
	}
	q := `
		INSERT INTO auction_actions (lobby_id, seq, action_type, action_payload, recorded_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (lobby_id, seq) DO NOTHING`

	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, a := range actions {
			payload, err := json.Marshal(a.Payload)
			if err != nil {
				return fmt.Errorf("marshal action payload: %w", err)
			}
			if _, err := tx.Exec(ctx, q, a.LobbyID, a.Seq, a.ActionType, payload, time.UnixMilli(a.Timestamp).UTC()); err != nil {
				return fmt.Errorf("insert action %s/%d: %w", a.LobbyID, a.Seq, err)
			}
		}
		return nil
	})
}

// ListAuctionActions returns the stored actions of a lobby in sequence order.
func (s *Store) ListAuctionActions(ctx context.Context, lobbyID string) ([]models.AuctionAction, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT lobby_id, seq, action_type, action_payload, recorded_at
		FROM auction_actions WHERE lobby_id = $1 ORDER BY seq`, lobbyID)
	if err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	defer rows.Close()

	var out []models.AuctionAction
	for rows.Next() {
		var (
			a       models.AuctionAction
			payload []byte
			at      time.Time
		)
		if err := rows.Scan(&a.LobbyID, &a.Seq, &a.ActionType, &payload, &at); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(payload, &a.Payload); err != nil {
			return nil, fmt.Errorf("decode action payload: %w", err)
		}
		a.Timestamp = at.UnixMilli()
		out = append(out, a)
	}
	return out, rows.Err()
}
