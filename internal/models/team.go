// internal/models/team.go
package models

// Team is a bidding party inside a lobby.
type Team struct {
	ID          int64  `json:"id"`
	LobbyID     string `json:"lobby_id"`
	Name        string `json:"name"`
	OwnerName   string `json:"owner_name"`
	CaptainName string `json:"captain_name,omitempty"`

	// RemainingPoints only goes down on a committed sale, or moves by an explicit grant.
	RemainingPoints int `json:"remaining_points"`
	PlayerCount     int `json:"player_count"`
}
