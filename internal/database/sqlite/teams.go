package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jason-s-yu/auctionarena/internal/models"
	"github.com/jason-s-yu/auctionarena/internal/store"
)

const teamColumns = `id, lobby_id, name, owner_name, captain_name, remaining_points, player_count`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTeam(row rowScanner) (*models.Team, error) {
	t := &models.Team{}
	if err := row.Scan(&t.ID, &t.LobbyID, &t.Name, &t.OwnerName, &t.CaptainName, &t.RemainingPoints, &t.PlayerCount); err != nil {
		return nil, notFound(err)
	}
	return t, nil
}

// CreateTeam persists a team and sets its generated ID.
func (s *SQLiteStore) CreateTeam(ctx context.Context, team *models.Team) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	exists, err := lobbyExists(ctx, tx, team.LobbyID)
	if err != nil {
		return fmt.Errorf("failed to check lobby: %w", err)
	}
	if !exists {
		return fmt.Errorf("team lobby %s: %w", team.LobbyID, store.ErrNotFound)
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO teams (lobby_id, name, owner_name, captain_name, remaining_points, player_count)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		team.LobbyID, team.Name, team.OwnerName, team.CaptainName, team.RemainingPoints, team.PlayerCount,
	)
	if err != nil {
		return fmt.Errorf("failed to insert team: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read team id: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	team.ID = id
	return nil
}

func (s *SQLiteStore) GetTeam(ctx context.Context, teamID int64) (*models.Team, error) {
	return scanTeam(s.db.QueryRowContext(ctx, `SELECT `+teamColumns+` FROM teams WHERE id = ?`, teamID))
}

func (s *SQLiteStore) GetTeamByOwner(ctx context.Context, lobbyID, ownerName string) (*models.Team, error) {
	return scanTeam(s.db.QueryRowContext(ctx,
		`SELECT `+teamColumns+` FROM teams WHERE lobby_id = ? AND owner_name = ? ORDER BY id LIMIT 1`,
		lobbyID, ownerName))
}

func (s *SQLiteStore) ListTeams(ctx context.Context, lobbyID string) ([]models.Team, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+teamColumns+` FROM teams WHERE lobby_id = ? ORDER BY id`, lobbyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list teams: %w", err)
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

func (s *SQLiteStore) AddTeamPoints(ctx context.Context, teamID int64, delta int) (*models.Team, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := updateOne(ctx, tx, `UPDATE teams SET remaining_points = remaining_points + ? WHERE id = ?`, delta, teamID); err != nil {
		return nil, err
	}
	t, err := scanTeam(tx.QueryRowContext(ctx, `SELECT `+teamColumns+` FROM teams WHERE id = ?`, teamID))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return t, nil
}

// updateOne runs an UPDATE inside tx that must touch exactly one row.
func updateOne(ctx context.Context, tx *sql.Tx, q string, args ...any) error {
	res, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("failed to update: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
