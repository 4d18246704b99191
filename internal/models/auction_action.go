// internal/models/auction_action.go
package models

// AuctionAction is one published auction event as persisted by the historian.
// Seq is assigned by the engine and increases per lobby.
type AuctionAction struct {
	LobbyID    string                 `json:"lobby_id"`
	Seq        int64                  `json:"seq"`
	ActionType string                 `json:"action_type"`
	Payload    map[string]interface{} `json:"action_payload"`
	Timestamp  int64                  `json:"timestamp"` // epoch millis
}
