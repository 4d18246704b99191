package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jason-s-yu/auctionarena/internal/models"
	"github.com/jason-s-yu/auctionarena/internal/store"
)

const stateColumns = `lobby_id, current_player_id, current_highest_bid, current_highest_bidder_team_id, auction_start_time`

const upsertState = `
	INSERT INTO auction_states (` + stateColumns + `) VALUES (?, ?, ?, ?, ?)
	ON CONFLICT (lobby_id) DO UPDATE SET
		current_player_id = excluded.current_player_id,
		current_highest_bid = excluded.current_highest_bid,
		current_highest_bidder_team_id = excluded.current_highest_bidder_team_id,
		auction_start_time = excluded.auction_start_time`

func scanState(row rowScanner) (*models.AuctionState, error) {
	st := &models.AuctionState{}
	var player, bid, bidder, started sql.NullInt64
	if err := row.Scan(&st.LobbyID, &player, &bid, &bidder, &started); err != nil {
		return nil, notFound(err)
	}
	st.CurrentPlayerID = int64Ptr(player)
	st.CurrentHighestBid = intPtr(bid)
	st.CurrentHighestBidderTeamID = int64Ptr(bidder)
	st.AuctionStartTime = timePtr(started)
	return st, nil
}

func stateArgs(st *models.AuctionState) []any {
	return []any{
		st.LobbyID,
		nullInt64(st.CurrentPlayerID),
		nullInt(st.CurrentHighestBid),
		nullInt64(st.CurrentHighestBidderTeamID),
		nullTime(st.AuctionStartTime),
	}
}

func (s *SQLiteStore) GetAuctionState(ctx context.Context, lobbyID string) (*models.AuctionState, error) {
	st, err := scanState(s.db.QueryRowContext(ctx, `SELECT `+stateColumns+` FROM auction_states WHERE lobby_id = ?`, lobbyID))
	if errors.Is(err, store.ErrNotFound) {
		return &models.AuctionState{LobbyID: lobbyID}, nil
	}
	return st, err
}

func (s *SQLiteStore) EnsureAuctionState(ctx context.Context, lobbyID string) (*models.AuctionState, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	exists, err := lobbyExists(ctx, tx, lobbyID)
	if err != nil {
		return nil, fmt.Errorf("failed to check lobby: %w", err)
	}
	if !exists {
		return nil, store.ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO auction_states (lobby_id) VALUES (?) ON CONFLICT (lobby_id) DO NOTHING`, lobbyID); err != nil {
		return nil, fmt.Errorf("failed to insert auction state: %w", err)
	}
	st, err := scanState(tx.QueryRowContext(ctx, `SELECT `+stateColumns+` FROM auction_states WHERE lobby_id = ?`, lobbyID))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return st, nil
}

func (s *SQLiteStore) SaveAuctionState(ctx context.Context, state *models.AuctionState) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	exists, err := lobbyExists(ctx, tx, state.LobbyID)
	if err != nil {
		return fmt.Errorf("failed to check lobby: %w", err)
	}
	if !exists {
		return store.ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, upsertState, stateArgs(state)...); err != nil {
		return fmt.Errorf("failed to save auction state: %w", err)
	}
	return tx.Commit()
}

// RecordBid appends the bid and saves the new state in one transaction.
func (s *SQLiteStore) RecordBid(ctx context.Context, bid *models.Bid, state *models.AuctionState) error {
	if bid.PlacedAt.IsZero() {
		bid.PlacedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	exists, err := lobbyExists(ctx, tx, state.LobbyID)
	if err != nil {
		return fmt.Errorf("failed to check lobby: %w", err)
	}
	if !exists {
		return store.ErrNotFound
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO bids (lobby_id, player_id, team_id, amount, placed_at) VALUES (?, ?, ?, ?, ?)`,
		bid.LobbyID, bid.PlayerID, bid.TeamID, bid.Amount, millis(bid.PlacedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert bid: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read bid id: %w", err)
	}
	if _, err := tx.ExecContext(ctx, upsertState, stateArgs(state)...); err != nil {
		return fmt.Errorf("failed to save auction state: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	bid.ID = id
	return nil
}

func (s *SQLiteStore) ListBids(ctx context.Context, playerID int64) ([]models.Bid, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, lobby_id, player_id, team_id, amount, placed_at FROM bids WHERE player_id = ? ORDER BY amount DESC, id`,
		playerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list bids: %w", err)
	}
	defer rows.Close()

	var bids []models.Bid
	for rows.Next() {
		var b models.Bid
		var placedAt int64
		if err := rows.Scan(&b.ID, &b.LobbyID, &b.PlayerID, &b.TeamID, &b.Amount, &placedAt); err != nil {
			return nil, fmt.Errorf("failed to scan bid: %w", err)
		}
		b.PlacedAt = fromMillis(placedAt)
		bids = append(bids, b)
	}
	return bids, rows.Err()
}

// CommitSale applies every effect of a sale or none of them.
func (s *SQLiteStore) CommitSale(ctx context.Context, sale store.Sale) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var sold bool
	err = tx.QueryRowContext(ctx, `SELECT is_auctioned FROM players WHERE id = ?`, sale.PlayerID).Scan(&sold)
	if err != nil {
		return fmt.Errorf("sale player %d: %w", sale.PlayerID, notFound(err))
	}
	if sold {
		return fmt.Errorf("player %d already sold: %w", sale.PlayerID, store.ErrConflict)
	}

	if err := updateOne(ctx, tx,
		`UPDATE teams SET remaining_points = remaining_points - ?, player_count = player_count + 1 WHERE id = ?`,
		sale.Price, sale.TeamID); err != nil {
		return fmt.Errorf("sale team %d: %w", sale.TeamID, err)
	}
	if err := updateOne(ctx, tx,
		`UPDATE players SET is_auctioned = 1, sold_to_team_id = ?, sold_price = ? WHERE id = ?`,
		sale.TeamID, sale.Price, sale.PlayerID); err != nil {
		return fmt.Errorf("sale player %d: %w", sale.PlayerID, err)
	}
	if _, err := tx.ExecContext(ctx, upsertState, sale.LobbyID, nil, nil, nil, nil); err != nil {
		return fmt.Errorf("failed to clear auction state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
