// internal/models/player.go
package models

// Player is an auctionable roster entry. It transitions unsold -> sold exactly once.
type Player struct {
	ID       int64  `json:"id"`
	LobbyID  string `json:"lobby_id"`
	Name     string `json:"name"`
	Position string `json:"position"`

	IsAuctioned  bool   `json:"is_auctioned"`
	SoldToTeamID *int64 `json:"sold_to_team_id,omitempty"`
	SoldPrice    *int   `json:"sold_price,omitempty"`

	DisplayOrder int `json:"display_order"`
}
