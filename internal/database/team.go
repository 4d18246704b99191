package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jason-s-yu/auctionarena/internal/models"
)

const teamColumns = `id, lobby_id, name, owner_name, captain_name, remaining_points, player_count`

func scanTeam(row pgx.Row) (*models.Team, error) {
	var t models.Team
	err := row.Scan(&t.ID, &t.LobbyID, &t.Name, &t.OwnerName, &t.CaptainName, &t.RemainingPoints, &t.PlayerCount)
	if err != nil {
		return nil, mapErr(err)
	}
	return &t, nil
}

// CreateTeam inserts a team and fills in its generated ID.
func (s *Store) CreateTeam(ctx context.Context, team *models.Team) error {
	q := `
	INSERT INTO teams (lobby_id, name, owner_name, captain_name, remaining_points, player_count)
	VALUES ($1, $2, $3, $4, $5, $6)
	RETURNING id`
	err := s.pool.QueryRow(ctx, q,
		team.LobbyID, team.Name, team.OwnerName, team.CaptainName, team.RemainingPoints, team.PlayerCount,
	).Scan(&team.ID)
	if err != nil {
		return fmt.Errorf("insert team %q: %w", team.Name, mapErr(err))
	}
	return nil
}

func (s *Store) GetTeam(ctx context.Context, teamID int64) (*models.Team, error) {
	return scanTeam(s.pool.QueryRow(ctx, `SELECT `+teamColumns+` FROM teams WHERE id = $1`, teamID))
}

func (s *Store) GetTeamByOwner(ctx context.Context, lobbyID, ownerName string) (*models.Team, error) {
	q := `SELECT ` + teamColumns + ` FROM teams WHERE lobby_id = $1 AND owner_name = $2 ORDER BY id LIMIT 1`
	return scanTeam(s.pool.QueryRow(ctx, q, lobbyID, ownerName))
}

func (s *Store) ListTeams(ctx context.Context, lobbyID string) ([]models.Team, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+teamColumns+` FROM teams WHERE lobby_id = $1 ORDER BY id`, lobbyID)
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	defer rows.Close()

	var teams []models.Team
	for rows.Next() {
		t, err := scanTeam(rows)
		if err != nil {
			return nil, err
		}
		teams = append(teams, *t)
	}
	return teams, rows.Err()
}

// AddTeamPoints applies delta in a single UPDATE and returns the new row.
func (s *Store) AddTeamPoints(ctx context.Context, teamID int64, delta int) (*models.Team, error) {
	q := `UPDATE teams SET remaining_points = remaining_points + $2 WHERE id = $1 RETURNING ` + teamColumns
	return scanTeam(s.pool.QueryRow(ctx, q, teamID, delta))
}
