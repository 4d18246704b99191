package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jason-s-yu/auctionarena/internal/models"
	"github.com/jason-s-yu/auctionarena/internal/store"
)

const stateColumns = `lobby_id, current_player_id, current_highest_bid, current_highest_bidder_team_id, auction_start_time`

const upsertState = `
	INSERT INTO auction_states (` + stateColumns + `)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (lobby_id) DO UPDATE SET
		current_player_id = EXCLUDED.current_player_id,
		current_highest_bid = EXCLUDED.current_highest_bid,
		current_highest_bidder_team_id = EXCLUDED.current_highest_bidder_team_id,
		auction_start_time = EXCLUDED.auction_start_time`

func scanState(row pgx.Row) (*models.AuctionState, error) {
	var st models.AuctionState
	err := row.Scan(&st.LobbyID, &st.CurrentPlayerID, &st.CurrentHighestBid, &st.CurrentHighestBidderTeamID, &st.AuctionStartTime)
	if err != nil {
		return nil, mapErr(err)
	}
	return &st, nil
}

func (s *Store) GetAuctionState(ctx context.Context, lobbyID string) (*models.AuctionState, error) {
	st, err := scanState(s.pool.QueryRow(ctx, `SELECT `+stateColumns+` FROM auction_states WHERE lobby_id = $1`, lobbyID))
	if errors.Is(err, store.ErrNotFound) {
		return &models.AuctionState{LobbyID: lobbyID}, nil
	}
	return st, err
}

// EnsureAuctionState relies on ON CONFLICT DO NOTHING so concurrent first
// callers both end up reading the single row.
func (s *Store) EnsureAuctionState(ctx context.Context, lobbyID string) (*models.AuctionState, error) {
	var st *models.AuctionState
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `INSERT INTO auction_states (lobby_id) VALUES ($1) ON CONFLICT (lobby_id) DO NOTHING`, lobbyID); err != nil {
			return err
		}
		var err error
		st, err = scanState(tx.QueryRow(ctx, `SELECT `+stateColumns+` FROM auction_states WHERE lobby_id = $1`, lobbyID))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("ensure auction state %s: %w", lobbyID, mapErr(err))
	}
	return st, nil
}

func (s *Store) SaveAuctionState(ctx context.Context, state *models.AuctionState) error {
	_, err := s.pool.Exec(ctx, upsertState,
		state.LobbyID, state.CurrentPlayerID, state.CurrentHighestBid, state.CurrentHighestBidderTeamID, state.AuctionStartTime)
	if err != nil {
		return fmt.Errorf("save auction state %s: %w", state.LobbyID, mapErr(err))
	}
	return nil
}

// RecordBid writes the audit row and the new highest bid in one transaction.
func (s *Store) RecordBid(ctx context.Context, bid *models.Bid, state *models.AuctionState) error {
	if bid.PlacedAt.IsZero() {
		bid.PlacedAt = time.Now().UTC()
	}
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		q := `INSERT INTO bids (lobby_id, player_id, team_id, amount, placed_at) VALUES ($1, $2, $3, $4, $5) RETURNING id`
		if err := tx.QueryRow(ctx, q, bid.LobbyID, bid.PlayerID, bid.TeamID, bid.Amount, bid.PlacedAt).Scan(&bid.ID); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, upsertState,
			state.LobbyID, state.CurrentPlayerID, state.CurrentHighestBid, state.CurrentHighestBidderTeamID, state.AuctionStartTime)
		return err
	})
	if err != nil {
		return fmt.Errorf("record bid: %w", mapErr(err))
	}
	return nil
}

func (s *Store) ListBids(ctx context.Context, playerID int64) ([]models.Bid, error) {
	q := `SELECT id, lobby_id, player_id, team_id, amount, placed_at FROM bids WHERE player_id = $1 ORDER BY amount DESC, id`
	rows, err := s.pool.Query(ctx, q, playerID)
	if err != nil {
		return nil, fmt.Errorf("list bids: %w", err)
	}
	defer rows.Close()

	var bids []models.Bid
	for rows.Next() {
		var b models.Bid
		if err := rows.Scan(&b.ID, &b.LobbyID, &b.PlayerID, &b.TeamID, &b.Amount, &b.PlacedAt); err != nil {
			return nil, err
		}
		bids = append(bids, b)
	}
	return bids, rows.Err()
}

// CommitSale applies every effect of a sale in one transaction. The player
// UPDATE is guarded by is_auctioned so a second commit finds no row.
func (s *Store) CommitSale(ctx context.Context, sale store.Sale) error {
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE players
			SET is_auctioned = TRUE, sold_to_team_id = $2, sold_price = $3
			WHERE id = $1 AND NOT is_auctioned`,
			sale.PlayerID, sale.TeamID, sale.Price)
		if err != nil {
			return mapErr(err)
		}
		if tag.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM players WHERE id = $1)`, sale.PlayerID).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return fmt.Errorf("player %d: %w", sale.PlayerID, store.ErrNotFound)
			}
			return fmt.Errorf("player %d already sold: %w", sale.PlayerID, store.ErrConflict)
		}

		tag, err = tx.Exec(ctx, `
			UPDATE teams
			SET remaining_points = remaining_points - $2, player_count = player_count + 1
			WHERE id = $1`,
			sale.TeamID, sale.Price)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("team %d: %w", sale.TeamID, store.ErrNotFound)
		}

		_, err = tx.Exec(ctx, upsertState, sale.LobbyID, nil, nil, nil, nil)
		return err
	})
	if err != nil {
		return fmt.Errorf("commit sale: %w", err)
	}
	return nil
}
