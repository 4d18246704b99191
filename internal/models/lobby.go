// internal/models/lobby.go
package models

import "time"

// Lobby represents a row in the lobbies table: one auction session owned by a host.
type Lobby struct {
	ID           string `json:"id"` // short opaque code, e.g. "3F9A0C1B"
	HostName     string `json:"host_name"`
	GameName     string `json:"game_name"`
	PasswordHash string `json:"-"` // argon2id encoded hash; empty when the lobby is open

	TotalTeams        int `json:"total_teams"`
	PlayersPerTeam    int `json:"players_per_team"`
	PointsPerTeam     int `json:"points_per_team"` // starting budget for every team
	MinPlayersPerTeam int `json:"min_players_per_team"`
	MaxPlayersPerTeam int `json:"max_players_per_team"`

	CreatedAt time.Time `json:"created_at"`
	IsActive  bool      `json:"is_active"`
	IsPaused  bool      `json:"is_paused"`
}

// HasPassword reports whether joining the lobby requires a password.
func (l *Lobby) HasPassword() bool {
	return l.PasswordHash != ""
}
