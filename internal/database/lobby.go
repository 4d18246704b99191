package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jason-s-yu/auctionarena/internal/models"
	"github.com/jason-s-yu/auctionarena/internal/store"
)

const lobbyColumns = `
	id, host_name, game_name, password_hash,
	total_teams, players_per_team, points_per_team,
	min_players_per_team, max_players_per_team,
	created_at, is_active, is_paused`

// CreateLobby inserts a new lobby row.
func (s *Store) CreateLobby(ctx context.Context, lobby *models.Lobby) error {
	if lobby.CreatedAt.IsZero() {
		lobby.CreatedAt = time.Now().UTC()
	}
	q := `INSERT INTO lobbies (` + lobbyColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q,
			lobby.ID,
			lobby.HostName,
			lobby.GameName,
			lobby.PasswordHash,
			lobby.TotalTeams,
			lobby.PlayersPerTeam,
			lobby.PointsPerTeam,
			lobby.MinPlayersPerTeam,
			lobby.MaxPlayersPerTeam,
			lobby.CreatedAt,
			lobby.IsActive,
			lobby.IsPaused,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("insert lobby %s: %w", lobby.ID, mapErr(err))
	}
	return nil
}

// GetLobby fetches a lobby by ID.
func (s *Store) GetLobby(ctx context.Context, lobbyID string) (*models.Lobby, error) {
	var l models.Lobby
	q := `SELECT ` + lobbyColumns + ` FROM lobbies WHERE id = $1`
	err := s.pool.QueryRow(ctx, q, lobbyID).Scan(
		&l.ID,
		&l.HostName,
		&l.GameName,
		&l.PasswordHash,
		&l.TotalTeams,
		&l.PlayersPerTeam,
		&l.PointsPerTeam,
		&l.MinPlayersPerTeam,
		&l.MaxPlayersPerTeam,
		&l.CreatedAt,
		&l.IsActive,
		&l.IsPaused,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	return &l, nil
}

func (s *Store) SetLobbyPaused(ctx context.Context, lobbyID string, paused bool) error {
	return s.updateLobbyFlag(ctx, `UPDATE lobbies SET is_paused = $2 WHERE id = $1`, lobbyID, paused)
}

func (s *Store) SetLobbyActive(ctx context.Context, lobbyID string, active bool) error {
	return s.updateLobbyFlag(ctx, `UPDATE lobbies SET is_active = $2 WHERE id = $1`, lobbyID, active)
}

func (s *Store) updateLobbyFlag(ctx context.Context, q, lobbyID string, v bool) error {
	tag, err := s.pool.Exec(ctx, q, lobbyID, v)
	if err != nil {
		return fmt.Errorf("update lobby %s: %w", lobbyID, err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// DeactivateIdleLobby marks an active lobby inactive. It reports whether a
// row changed so the historian can log only real transitions.
func (s *Store) DeactivateIdleLobby(ctx context.Context, lobbyID string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `UPDATE lobbies SET is_active = FALSE WHERE id = $1 AND is_active`, lobbyID)
	if err != nil {
		return false, fmt.Errorf("deactivate lobby %s: %w", lobbyID, err)
	}
	return tag.RowsAffected() > 0, nil
}
