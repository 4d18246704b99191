package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jason-s-yu/auctionarena/internal/models"
)

const playerColumns = `id, lobby_id, name, position, is_auctioned, sold_to_team_id, sold_price, display_order`

func scanPlayer(row pgx.Row) (*models.Player, error) {
	var p models.Player
	err := row.Scan(&p.ID, &p.LobbyID, &p.Name, &p.Position, &p.IsAuctioned, &p.SoldToTeamID, &p.SoldPrice, &p.DisplayOrder)
	if err != nil {
		return nil, mapErr(err)
	}
	return &p, nil
}

func (s *Store) queryPlayers(ctx context.Context, q string, arg any) ([]models.Player, error) {
	rows, err := s.pool.Query(ctx, q, arg)
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
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

// CreatePlayer inserts a player. A zero DisplayOrder is appended after the
// lobby's current maximum inside the same statement.
func (s *Store) CreatePlayer(ctx context.Context, player *models.Player) error {
	q := `
	INSERT INTO players (lobby_id, name, position, display_order)
	VALUES ($1, $2, $3,
		CASE WHEN $4::INTEGER = 0
			THEN (SELECT COALESCE(MAX(display_order), 0) + 1 FROM players WHERE lobby_id = $1)
			ELSE $4::INTEGER
		END)
	RETURNING id, display_order`
	err := s.pool.QueryRow(ctx, q, player.LobbyID, player.Name, player.Position, player.DisplayOrder).
		Scan(&player.ID, &player.DisplayOrder)
	if err != nil {
		return fmt.Errorf("insert player %q: %w", player.Name, mapErr(err))
	}
	return nil
}

func (s *Store) GetPlayer(ctx context.Context, playerID int64) (*models.Player, error) {
	return scanPlayer(s.pool.QueryRow(ctx, `SELECT `+playerColumns+` FROM players WHERE id = $1`, playerID))
}

func (s *Store) ListPlayers(ctx context.Context, lobbyID string) ([]models.Player, error) {
	return s.queryPlayers(ctx, `SELECT `+playerColumns+` FROM players WHERE lobby_id = $1 ORDER BY display_order, id`, lobbyID)
}

func (s *Store) ListPlayersByTeam(ctx context.Context, teamID int64) ([]models.Player, error) {
	return s.queryPlayers(ctx, `SELECT `+playerColumns+` FROM players WHERE sold_to_team_id = $1 ORDER BY sold_price DESC, id`, teamID)
}
