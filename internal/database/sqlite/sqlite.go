// Package sqlite provides a SQLite-backed implementation of the store.Store
// interface for single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/jason-s-yu/auctionarena/internal/models"
	"github.com/jason-s-yu/auctionarena/internal/store"
)

var _ store.Store = (*SQLiteStore)(nil)

// SQLiteStore implements store.Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New opens (or creates) the database at dbPath and runs migrations.
func New(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one writer; pragmas are per connection
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func millis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func nullInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func nullTime(p *time.Time) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: millis(*p), Valid: true}
}

func int64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func timePtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	v := fromMillis(n.Int64)
	return &v
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

// lobbyExists runs inside tx so the check and the following write see the same snapshot.
func lobbyExists(ctx context.Context, tx *sql.Tx, lobbyID string) (bool, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM lobbies WHERE id = ?`, lobbyID).Scan(&n)
	return n > 0, err
}

// CreateLobby persists a new lobby.
func (s *SQLiteStore) CreateLobby(ctx context.Context, lobby *models.Lobby) error {
	if lobby.CreatedAt.IsZero() {
		lobby.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	exists, err := lobbyExists(ctx, tx, lobby.ID)
	if err != nil {
		return fmt.Errorf("failed to check lobby: %w", err)
	}
	if exists {
		return fmt.Errorf("lobby %s: %w", lobby.ID, store.ErrConflict)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO lobbies (id, host_name, game_name, password_hash, total_teams, players_per_team,
		 points_per_team, min_players_per_team, max_players_per_team, created_at, is_active, is_paused)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		lobby.ID, lobby.HostName, lobby.GameName, lobby.PasswordHash, lobby.TotalTeams, lobby.PlayersPerTeam,
		lobby.PointsPerTeam, lobby.MinPlayersPerTeam, lobby.MaxPlayersPerTeam, millis(lobby.CreatedAt),
		lobby.IsActive, lobby.IsPaused,
	)
	if err != nil {
		return fmt.Errorf("failed to insert lobby: %w", err)
	}
	return tx.Commit()
}

// GetLobby retrieves a lobby by ID.
func (s *SQLiteStore) GetLobby(ctx context.Context, lobbyID string) (*models.Lobby, error) {
	l := &models.Lobby{}
	var createdAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, host_name, game_name, password_hash, total_teams, players_per_team, points_per_team,
		 min_players_per_team, max_players_per_team, created_at, is_active, is_paused
		 FROM lobbies WHERE id = ?`, lobbyID,
	).Scan(&l.ID, &l.HostName, &l.GameName, &l.PasswordHash, &l.TotalTeams, &l.PlayersPerTeam, &l.PointsPerTeam,
		&l.MinPlayersPerTeam, &l.MaxPlayersPerTeam, &createdAt, &l.IsActive, &l.IsPaused)
	if err != nil {
		return nil, notFound(err)
	}
	l.CreatedAt = fromMillis(createdAt)
	return l, nil
}

func (s *SQLiteStore) SetLobbyPaused(ctx context.Context, lobbyID string, paused bool) error {
	return s.execOne(ctx, `UPDATE lobbies SET is_paused = ? WHERE id = ?`, paused, lobbyID)
}

func (s *SQLiteStore) SetLobbyActive(ctx context.Context, lobbyID string, active bool) error {
	return s.execOne(ctx, `UPDATE lobbies SET is_active = ? WHERE id = ?`, active, lobbyID)
}

// execOne runs an UPDATE that must touch exactly one row.
func (s *SQLiteStore) execOne(ctx context.Context, q string, args ...any) error {
	res, err := s.db.ExecContext(ctx, q, args...)
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
