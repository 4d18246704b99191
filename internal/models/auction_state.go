// internal/models/auction_state.go
package models

import "time"

// AuctionState is the single live-auction row of a lobby. All pointer fields are
// nil while the lobby is idle.
type AuctionState struct {
	LobbyID                    string     `json:"lobby_id"`
	CurrentPlayerID            *int64     `json:"current_player_id"`
	CurrentHighestBid          *int       `json:"current_highest_bid"`
	CurrentHighestBidderTeamID *int64     `json:"current_highest_bidder_team_id"`
	AuctionStartTime           *time.Time `json:"auction_start_time"`
}

// InAuction reports whether a player is currently up.
func (s *AuctionState) InAuction() bool {
	return s.CurrentPlayerID != nil
}

// IsCurrent reports whether playerID is the player currently up.
func (s *AuctionState) IsCurrent(playerID int64) bool {
	return s.CurrentPlayerID != nil && *s.CurrentPlayerID == playerID
}

// Clear resets the state to idle.
func (s *AuctionState) Clear() {
	s.CurrentPlayerID = nil
	s.CurrentHighestBid = nil
	s.CurrentHighestBidderTeamID = nil
	s.AuctionStartTime = nil
}

// Clone returns a deep copy so callers can mutate without aliasing store data.
func (s *AuctionState) Clone() *AuctionState {
	c := &AuctionState{LobbyID: s.LobbyID}
	if s.CurrentPlayerID != nil {
		v := *s.CurrentPlayerID
		c.CurrentPlayerID = &v
	}
	if s.CurrentHighestBid != nil {
		v := *s.CurrentHighestBid
		c.CurrentHighestBid = &v
	}
	if s.CurrentHighestBidderTeamID != nil {
		v := *s.CurrentHighestBidderTeamID
		c.CurrentHighestBidderTeamID = &v
	}
	if s.AuctionStartTime != nil {
		v := *s.AuctionStartTime
		c.AuctionStartTime = &v
	}
	return c
}
