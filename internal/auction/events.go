package auction

// Event names published on a lobby's topic.
const (
	EventPlayerUpdate = "player-update"
	EventBidUpdate    = "bid-update"
	EventPlayerSold   = "player-sold"
	EventPauseUpdate  = "pause-update"
	EventTeamUpdate   = "team-update"
)

// PlayerUpdate announces the player now up. All fields are null after a skip.
type PlayerUpdate struct {
	PlayerID *int64  `json:"playerId"`
	Name     *string `json:"name"`
	Position *string `json:"position"`
}

type BidUpdate struct {
	PlayerID int64  `json:"playerId"`
	TeamID   int64  `json:"teamId"`
	TeamName string `json:"teamName"`
	Amount   int    `json:"amount"`
}

type PlayerSold struct {
	PlayerID  int64  `json:"playerId"`
	Name      string `json:"name"`
	TeamID    int64  `json:"teamId"`
	TeamName  string `json:"teamName"`
	SoldPrice int    `json:"soldPrice"`
}

type PauseUpdate struct {
	Paused bool `json:"paused"`
}

type TeamUpdate struct {
	TeamID          int64  `json:"teamId"`
	TeamName        string `json:"teamName"`
	RemainingPoints int    `json:"remainingPoints"`
}
