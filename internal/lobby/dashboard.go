// internal/lobby/dashboard.go
package lobby

import (
	"context"
	"errors"
	"fmt"

	"github.com/jason-s-yu/auctionarena/internal/auction"
	"github.com/jason-s-yu/auctionarena/internal/models"
	"github.com/jason-s-yu/auctionarena/internal/store"
)

// HostDashboard is everything the host screen shows.
type HostDashboard struct {
	Lobby                models.Lobby    `json:"lobby"`
	Teams                []models.Team   `json:"teams"`
	CurrentPlayer        *models.Player  `json:"current_player"`
	CurrentHighestBid    *int            `json:"current_highest_bid"`
	CurrentHighestBidder *models.Team    `json:"current_highest_bidder"`
	RemainingPlayers     []models.Player `json:"remaining_players"`
	SoldPlayers          []models.Player `json:"sold_players"`
	IsPaused             bool            `json:"is_paused"`
}

// TeamDashboard is one team's view of the auction.
type TeamDashboard struct {
	Team                     models.Team     `json:"team"`
	MyPlayers                []models.Player `json:"my_players"`
	CurrentPlayer            *models.Player  `json:"current_player"`
	CurrentHighestBid        *int            `json:"current_highest_bid"`
	CurrentHighestBidderName *string         `json:"current_highest_bidder_name"`
	RemainingPoints          int             `json:"remaining_points"`
	CanBid                   bool            `json:"can_bid"`
	IsPaused                 bool            `json:"is_paused"`
}

// auctionView resolves the current player and highest bidder of a state.
func (c *Coordinator) auctionView(ctx context.Context, st *models.AuctionState) (*models.Player, *models.Team, error) {
	if st.CurrentPlayerID == nil {
		return nil, nil, nil
	}
	player, err := c.store.GetPlayer(ctx, *st.CurrentPlayerID)
	if err != nil {
		return nil, nil, fmt.Errorf("load current player: %w", err)
	}
	if st.CurrentHighestBidderTeamID == nil {
		return player, nil, nil
	}
	bidder, err := c.store.GetTeam(ctx, *st.CurrentHighestBidderTeamID)
	if err != nil {
		return nil, nil, fmt.Errorf("load highest bidder: %w", err)
	}
	return player, bidder, nil
}

// HostDashboard reads the host view. Archived lobbies are still readable.
func (c *Coordinator) HostDashboard(ctx context.Context, lobbyID string) (*HostDashboard, error) {
	l, err := c.loadLobby(ctx, lobbyID)
	if err != nil {
		return nil, err
	}
	teams, err := c.store.ListTeams(ctx, l.ID)
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	players, err := c.store.ListPlayers(ctx, l.ID)
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	st, err := c.store.GetAuctionState(ctx, l.ID)
	if err != nil {
		return nil, fmt.Errorf("load auction state: %w", err)
	}
	current, bidder, err := c.auctionView(ctx, st)
	if err != nil {
		return nil, err
	}

	d := &HostDashboard{
		Lobby:                *l,
		Teams:                teams,
		CurrentPlayer:        current,
		CurrentHighestBid:    st.CurrentHighestBid,
		CurrentHighestBidder: bidder,
		RemainingPlayers:     []models.Player{},
		SoldPlayers:          []models.Player{},
		IsPaused:             l.IsPaused,
	}
	for _, p := range players {
		if p.IsAuctioned {
			d.SoldPlayers = append(d.SoldPlayers, p)
		} else {
			d.RemainingPlayers = append(d.RemainingPlayers, p)
		}
	}
	return d, nil
}

// TeamDashboard reads one team's view. CanBid is a hint only; PlaceBid does
// the real validation.
func (c *Coordinator) TeamDashboard(ctx context.Context, lobbyID string, teamID int64) (*TeamDashboard, error) {
	l, err := c.loadLobby(ctx, lobbyID)
	if err != nil {
		return nil, err
	}
	team, err := c.store.GetTeam(ctx, teamID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && team.LobbyID != l.ID) {
		return nil, &auction.Error{Kind: auction.KindNotFound, Reason: auction.ReasonTeamNotFound, Message: fmt.Sprintf("team %d not found in lobby %s", teamID, l.ID)}
	}
	if err != nil {
		return nil, fmt.Errorf("load team %d: %w", teamID, err)
	}
	mine, err := c.store.ListPlayersByTeam(ctx, team.ID)
	if err != nil {
		return nil, fmt.Errorf("list team players: %w", err)
	}
	st, err := c.store.GetAuctionState(ctx, l.ID)
	if err != nil {
		return nil, fmt.Errorf("load auction state: %w", err)
	}
	current, bidder, err := c.auctionView(ctx, st)
	if err != nil {
		return nil, err
	}

	highest := 0
	if st.CurrentHighestBid != nil {
		highest = *st.CurrentHighestBid
	}
	d := &TeamDashboard{
		Team:              *team,
		MyPlayers:         mine,
		CurrentPlayer:     current,
		CurrentHighestBid: st.CurrentHighestBid,
		RemainingPoints:   team.RemainingPoints,
		CanBid:            current != nil && team.RemainingPoints > highest,
		IsPaused:          l.IsPaused,
	}
	if d.MyPlayers == nil {
		d.MyPlayers = []models.Player{}
	}
	if bidder != nil {
		d.CurrentHighestBidderName = &bidder.Name
	}
	return d, nil
}
