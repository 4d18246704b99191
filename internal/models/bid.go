// internal/models/bid.go
package models

import "time"

// Bid is the append-only audit record of an accepted bid.
type Bid struct {
	ID       int64     `json:"id"`
	LobbyID  string    `json:"lobby_id"`
	PlayerID int64     `json:"player_id"`
	TeamID   int64     `json:"team_id"`
	Amount   int       `json:"amount"`
	PlacedAt time.Time `json:"placed_at"`
}
