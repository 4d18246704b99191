// Package store defines the persistence boundary used by the auction engine and
// the lobby coordinator. Backends live in internal/store/memory,
// internal/database (PostgreSQL) and internal/database/sqlite.
package store

import (
	"context"
	"errors"

	"github.com/jason-s-yu/auctionarena/internal/models"
)

var (
	// ErrNotFound is returned when a keyed record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrConflict is returned when a conditional write finds the row in an
	// unexpected state (e.g. committing a sale for a player already sold).
	ErrConflict = errors.New("conflicting write")
)

// Sale is the full set of changes applied by CommitSale.
type Sale struct {
	LobbyID  string `json:"lobby_id"`
	PlayerID int64  `json:"player_id"`
	TeamID   int64  `json:"team_id"`
	Price    int    `json:"price"`
}

// Store is the entity store. Every method is atomic on its own; RecordBid and
// CommitSale are atomic across all the rows they touch.
type Store interface {
	CreateLobby(ctx context.Context, lobby *models.Lobby) error
	GetLobby(ctx context.Context, lobbyID string) (*models.Lobby, error)
	SetLobbyPaused(ctx context.Context, lobbyID string, paused bool) error
	SetLobbyActive(ctx context.Context, lobbyID string, active bool) error

	// CreateTeam persists a team and populates team.ID.
	CreateTeam(ctx context.Context, team *models.Team) error
	GetTeam(ctx context.Context, teamID int64) (*models.Team, error)
	GetTeamByOwner(ctx context.Context, lobbyID, ownerName string) (*models.Team, error)
	ListTeams(ctx context.Context, lobbyID string) ([]models.Team, error)
	// AddTeamPoints adds delta to the team's balance and returns the updated row.
	AddTeamPoints(ctx context.Context, teamID int64, delta int) (*models.Team, error)

	// CreatePlayer persists a player and populates player.ID. A zero
	// DisplayOrder is replaced with max(display_order)+1 for the lobby.
	CreatePlayer(ctx context.Context, player *models.Player) error
	GetPlayer(ctx context.Context, playerID int64) (*models.Player, error)
	// ListPlayers returns the lobby roster ordered by display order.
	ListPlayers(ctx context.Context, lobbyID string) ([]models.Player, error)
	// ListPlayersByTeam returns the players sold to a team, highest price first.
	ListPlayersByTeam(ctx context.Context, teamID int64) ([]models.Player, error)

	// GetAuctionState returns the lobby's state, or an idle default without
	// persisting it when no row exists yet.
	GetAuctionState(ctx context.Context, lobbyID string) (*models.AuctionState, error)
	// EnsureAuctionState returns the lobby's state row, inserting an idle one
	// if missing. Safe against concurrent first-time callers.
	EnsureAuctionState(ctx context.Context, lobbyID string) (*models.AuctionState, error)
	SaveAuctionState(ctx context.Context, state *models.AuctionState) error

	// RecordBid appends the bid audit row and saves state in one transaction.
	RecordBid(ctx context.Context, bid *models.Bid, state *models.AuctionState) error
	// ListBids returns accepted bids for a player, highest amount first.
	ListBids(ctx context.Context, playerID int64) ([]models.Bid, error)

	// CommitSale marks the player sold, debits the team, bumps its player
	// count and clears the lobby's auction state, all or nothing. It returns
	// ErrConflict if the player is already sold.
	CommitSale(ctx context.Context, sale Sale) error

	Close() error
}
