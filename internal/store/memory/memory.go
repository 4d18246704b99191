// internal/store/memory/memory.go
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jason-s-yu/auctionarena/internal/models"
	"github.com/jason-s-yu/auctionarena/internal/store"
)

var _ store.Store = (*Store)(nil)

// Store keeps every entity in process memory. It is used by tests and by the
// "memory" store driver for local development; nothing survives a restart.
type Store struct {
	mu sync.Mutex

	lobbies  map[string]models.Lobby
	teams    map[int64]models.Team
	players  map[int64]models.Player
	states   map[string]*models.AuctionState
	bids     []models.Bid
	nextTeam int64
	nextPlay int64
	nextBid  int64
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		lobbies: make(map[string]models.Lobby),
		teams:   make(map[int64]models.Team),
		players: make(map[int64]models.Player),
		states:  make(map[string]*models.AuctionState),
	}
}

func (s *Store) Close() error { return nil }

func (s *Store) CreateLobby(ctx context.Context, lobby *models.Lobby) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.lobbies[lobby.ID]; exists {
		return fmt.Errorf("lobby %s: %w", lobby.ID, store.ErrConflict)
	}
	if lobby.CreatedAt.IsZero() {
		lobby.CreatedAt = time.Now().UTC()
	}
	s.lobbies[lobby.ID] = *lobby
	return nil
}

func (s *Store) GetLobby(ctx context.Context, lobbyID string) (*models.Lobby, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lobbies[lobbyID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &l, nil
}

func (s *Store) SetLobbyPaused(ctx context.Context, lobbyID string, paused bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lobbies[lobbyID]
	if !ok {
		return store.ErrNotFound
	}
	l.IsPaused = paused
	s.lobbies[lobbyID] = l
	return nil
}

func (s *Store) SetLobbyActive(ctx context.Context, lobbyID string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lobbies[lobbyID]
	if !ok {
		return store.ErrNotFound
	}
	l.IsActive = active
	s.lobbies[lobbyID] = l
	return nil
}

func (s *Store) CreateTeam(ctx context.Context, team *models.Team) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.lobbies[team.LobbyID]; !ok {
		return fmt.Errorf("team lobby %s: %w", team.LobbyID, store.ErrNotFound)
	}
	s.nextTeam++
	team.ID = s.nextTeam
	s.teams[team.ID] = *team
	return nil
}

func (s *Store) GetTeam(ctx context.Context, teamID int64) (*models.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.teams[teamID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &t, nil
}

func (s *Store) GetTeamByOwner(ctx context.Context, lobbyID, ownerName string) (*models.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.sortedTeamsUnsafe(lobbyID) {
		if t.OwnerName == ownerName {
			return &t, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListTeams(ctx context.Context, lobbyID string) ([]models.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedTeamsUnsafe(lobbyID), nil
}

// sortedTeamsUnsafe assumes s.mu is held.
func (s *Store) sortedTeamsUnsafe(lobbyID string) []models.Team {
	var out []models.Team
	for _, t := range s.teams {
		if t.LobbyID == lobbyID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) AddTeamPoints(ctx context.Context, teamID int64, delta int) (*models.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.teams[teamID]
	if !ok {
		return nil, store.ErrNotFound
	}
	t.RemainingPoints += delta
	s.teams[teamID] = t
	return &t, nil
}

func (s *Store) CreatePlayer(ctx context.Context, player *models.Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.lobbies[player.LobbyID]; !ok {
		return fmt.Errorf("player lobby %s: %w", player.LobbyID, store.ErrNotFound)
	}
	if player.DisplayOrder == 0 {
		maxOrder := 0
		for _, p := range s.players {
			if p.LobbyID == player.LobbyID && p.DisplayOrder > maxOrder {
				maxOrder = p.DisplayOrder
			}
		}
		player.DisplayOrder = maxOrder + 1
	}
	s.nextPlay++
	player.ID = s.nextPlay
	s.players[player.ID] = clonePlayer(*player)
	return nil
}

func (s *Store) GetPlayer(ctx context.Context, playerID int64) (*models.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[playerID]
	if !ok {
		return nil, store.ErrNotFound
	}
	c := clonePlayer(p)
	return &c, nil
}

func (s *Store) ListPlayers(ctx context.Context, lobbyID string) ([]models.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Player
	for _, p := range s.players {
		if p.LobbyID == lobbyID {
			out = append(out, clonePlayer(p))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayOrder != out[j].DisplayOrder {
			return out[i].DisplayOrder < out[j].DisplayOrder
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) ListPlayersByTeam(ctx context.Context, teamID int64) ([]models.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Player
	for _, p := range s.players {
		if p.SoldToTeamID != nil && *p.SoldToTeamID == teamID {
			out = append(out, clonePlayer(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return *out[i].SoldPrice > *out[j].SoldPrice })
	return out, nil
}

func (s *Store) GetAuctionState(ctx context.Context, lobbyID string) (*models.AuctionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.states[lobbyID]; ok {
		return st.Clone(), nil
	}
	return &models.AuctionState{LobbyID: lobbyID}, nil
}

func (s *Store) EnsureAuctionState(ctx context.Context, lobbyID string) (*models.AuctionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.lobbies[lobbyID]; !ok {
		return nil, store.ErrNotFound
	}
	st, ok := s.states[lobbyID]
	if !ok {
		st = &models.AuctionState{LobbyID: lobbyID}
		s.states[lobbyID] = st
	}
	return st.Clone(), nil
}

func (s *Store) SaveAuctionState(ctx context.Context, state *models.AuctionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.lobbies[state.LobbyID]; !ok {
		return store.ErrNotFound
	}
	s.states[state.LobbyID] = state.Clone()
	return nil
}

func (s *Store) RecordBid(ctx context.Context, bid *models.Bid, state *models.AuctionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.lobbies[state.LobbyID]; !ok {
		return store.ErrNotFound
	}
	if bid.PlacedAt.IsZero() {
		bid.PlacedAt = time.Now().UTC()
	}
	s.nextBid++
	bid.ID = s.nextBid
	s.bids = append(s.bids, *bid)
	s.states[state.LobbyID] = state.Clone()
	return nil
}

func (s *Store) ListBids(ctx context.Context, playerID int64) ([]models.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Bid
	for _, b := range s.bids {
		if b.PlayerID == playerID {
			out = append(out, b)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Amount > out[j].Amount })
	return out, nil
}

func (s *Store) CommitSale(ctx context.Context, sale store.Sale) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.players[sale.PlayerID]
	if !ok {
		return fmt.Errorf("sale player %d: %w", sale.PlayerID, store.ErrNotFound)
	}
	t, ok := s.teams[sale.TeamID]
	if !ok {
		return fmt.Errorf("sale team %d: %w", sale.TeamID, store.ErrNotFound)
	}
	if p.IsAuctioned {
		return fmt.Errorf("player %d already sold: %w", sale.PlayerID, store.ErrConflict)
	}

	teamID, price := sale.TeamID, sale.Price
	p.IsAuctioned = true
	p.SoldToTeamID = &teamID
	p.SoldPrice = &price
	t.RemainingPoints -= sale.Price
	t.PlayerCount++

	s.players[p.ID] = p
	s.teams[t.ID] = t
	if st, ok := s.states[sale.LobbyID]; ok {
		st.Clear()
	} else {
		s.states[sale.LobbyID] = &models.AuctionState{LobbyID: sale.LobbyID}
	}
	return nil
}

func clonePlayer(p models.Player) models.Player {
	if p.SoldToTeamID != nil {
		v := *p.SoldToTeamID
		p.SoldToTeamID = &v
	}
	if p.SoldPrice != nil {
		v := *p.SoldPrice
		p.SoldPrice = &v
	}
	return p
}
