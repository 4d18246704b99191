package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jason-s-yu/auctionarena/internal/models"
	"github.com/jason-s-yu/auctionarena/internal/store"
)

const playerColumns = `id, lobby_id, name, position, is_auctioned, sold_to_team_id, sold_price, display_order`

func scanPlayer(row rowScanner) (*models.Player, error) {
	p := &models.Player{}
	var soldTo, price sql.NullInt64
	if err := row.Scan(&p.ID, &p.LobbyID, &p.Name, &p.Position, &p.IsAuctioned, &soldTo, &price, &p.DisplayOrder); err != nil {
		return nil, notFound(err)
	}
	p.SoldToTeamID = int64Ptr(soldTo)
	p.SoldPrice = intPtr(price)
	return p, nil
}

// CreatePlayer persists a player. A zero DisplayOrder becomes max+1 for the lobby.
func (s *SQLiteStore) CreatePlayer(ctx context.Context, player *models.Player) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	exists, err := lobbyExists(ctx, tx, player.LobbyID)
	if err != nil {
		return fmt.Errorf("failed to check lobby: %w", err)
	}
	if !exists {
		return fmt.Errorf("player lobby %s: %w", player.LobbyID, store.ErrNotFound)
	}

	order := player.DisplayOrder
	if order == 0 {
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(display_order), 0) + 1 FROM players WHERE lobby_id = ?`, player.LobbyID,
		).Scan(&order); err != nil {
			return fmt.Errorf("failed to compute display order: %w", err)
		}
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO players (lobby_id, name, position, display_order) VALUES (?, ?, ?, ?)`,
		player.LobbyID, player.Name, player.Position, order,
	)
	if err != nil {
		return fmt.Errorf("failed to insert player: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read player id: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	player.ID = id
	player.DisplayOrder = order
	return nil
}

func (s *SQLiteStore) GetPlayer(ctx context.Context, playerID int64) (*models.Player, error) {
	return scanPlayer(s.db.QueryRowContext(ctx, `SELECT `+playerColumns+` FROM players WHERE id = ?`, playerID))
}

func (s *SQLiteStore) ListPlayers(ctx context.Context, lobbyID string) ([]models.Player, error) {
	return s.queryPlayers(ctx, `SELECT `+playerColumns+` FROM players WHERE lobby_id = ? ORDER BY display_order, id`, lobbyID)
}

func (s *SQLiteStore) ListPlayersByTeam(ctx context.Context, teamID int64) ([]models.Player, error) {
	return s.queryPlayers(ctx, `SELECT `+playerColumns+` FROM players WHERE sold_to_team_id = ? ORDER BY sold_price DESC, id`, teamID)
}

func (s *SQLiteStore) queryPlayers(ctx context.Context, q string, arg any) ([]models.Player, error) {
	rows, err := s.db.QueryContext(ctx, q, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to list players: %w", err)
	}
	defer rows.Close()

	var players []models.Player
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, err
		}
		players = append(players, *p)
	}
	return players, rows.Err()
}
