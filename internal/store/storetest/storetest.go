// Package storetest is a conformance suite shared by every store.Store backend.
package storetest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jason-s-yu/auctionarena/internal/models"
	"github.com/jason-s-yu/auctionarena/internal/store"
)

// Factory returns a fresh, empty store. Backends register cleanup via t.Cleanup.
type Factory func(t *testing.T) store.Store

// NewLobby persists a lobby with sensible defaults and a unique ID.
func NewLobby(t *testing.T, s store.Store) *models.Lobby {
	t.Helper()
	l := &models.Lobby{
		ID:                strings.ToUpper(uuid.NewString()[:8]),
		HostName:          "host",
		GameName:          "draft",
		TotalTeams:        2,
		PlayersPerTeam:    3,
		PointsPerTeam:     100,
		MinPlayersPerTeam: 1,
		MaxPlayersPerTeam: 3,
		IsActive:          true,
	}
	require.NoError(t, s.CreateLobby(context.Background(), l))
	return l
}

// NewTeam persists a team in lobbyID with the given balance.
func NewTeam(t *testing.T, s store.Store, lobbyID, name string, points int) *models.Team {
	t.Helper()
	team := &models.Team{LobbyID: lobbyID, Name: name, OwnerName: name + "-owner", RemainingPoints: points}
	require.NoError(t, s.CreateTeam(context.Background(), team))
	return team
}

// NewPlayer persists an unsold player in lobbyID.
func NewPlayer(t *testing.T, s store.Store, lobbyID, name string) *models.Player {
	t.Helper()
	p := &models.Player{LobbyID: lobbyID, Name: name, Position: "MID"}
	require.NoError(t, s.CreatePlayer(context.Background(), p))
	return p
}

const missingID int64 = 1 << 40

// Run executes the full suite against the backend produced by newStore.
func Run(t *testing.T, newStore Factory) {
	ctx := context.Background()

	t.Run("lobby round trip", func(t *testing.T) {
		s := newStore(t)
		l := NewLobby(t, s)

		got, err := s.GetLobby(ctx, l.ID)
		require.NoError(t, err)
		assert.Equal(t, l.HostName, got.HostName)
		assert.Equal(t, 100, got.PointsPerTeam)
		assert.True(t, got.IsActive)
		assert.False(t, got.IsPaused)

		require.NoError(t, s.SetLobbyPaused(ctx, l.ID, true))
		require.NoError(t, s.SetLobbyActive(ctx, l.ID, false))
		got, err = s.GetLobby(ctx, l.ID)
		require.NoError(t, err)
		assert.True(t, got.IsPaused)
		assert.False(t, got.IsActive)
	})

	t.Run("missing records", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetLobby(ctx, "NOPE")
		assert.ErrorIs(t, err, store.ErrNotFound)
		_, err = s.GetTeam(ctx, missingID)
		assert.ErrorIs(t, err, store.ErrNotFound)
		_, err = s.GetPlayer(ctx, missingID)
		assert.ErrorIs(t, err, store.ErrNotFound)
		_, err = s.AddTeamPoints(ctx, missingID, 1)
		assert.ErrorIs(t, err, store.ErrNotFound)
		assert.ErrorIs(t, s.SetLobbyPaused(ctx, "NOPE", true), store.ErrNotFound)
	})

	t.Run("duplicate lobby", func(t *testing.T) {
		s := newStore(t)
		l := NewLobby(t, s)
		dup := *l
		err := s.CreateLobby(ctx, &dup)
		assert.ErrorIs(t, err, store.ErrConflict)
	})

	t.Run("teams", func(t *testing.T) {
		s := newStore(t)
		l := NewLobby(t, s)
		a := NewTeam(t, s, l.ID, "Alpha", 100)
		b := NewTeam(t, s, l.ID, "Bravo", 100)
		assert.NotZero(t, a.ID)
		assert.NotEqual(t, a.ID, b.ID)

		teams, err := s.ListTeams(ctx, l.ID)
		require.NoError(t, err)
		require.Len(t, teams, 2)
		assert.Equal(t, "Alpha", teams[0].Name)

		byOwner, err := s.GetTeamByOwner(ctx, l.ID, "Bravo-owner")
		require.NoError(t, err)
		assert.Equal(t, b.ID, byOwner.ID)
		_, err = s.GetTeamByOwner(ctx, l.ID, "nobody")
		assert.ErrorIs(t, err, store.ErrNotFound)

		updated, err := s.AddTeamPoints(ctx, a.ID, -30)
		require.NoError(t, err)
		assert.Equal(t, 70, updated.RemainingPoints)
		got, err := s.GetTeam(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, 70, got.RemainingPoints)
	})

	t.Run("player display order", func(t *testing.T) {
		s := newStore(t)
		l := NewLobby(t, s)
		p1 := NewPlayer(t, s, l.ID, "One")
		p2 := NewPlayer(t, s, l.ID, "Two")
		assert.Equal(t, 1, p1.DisplayOrder)
		assert.Equal(t, 2, p2.DisplayOrder)

		explicit := &models.Player{LobbyID: l.ID, Name: "Zero", Position: "GK", DisplayOrder: -1}
		require.NoError(t, s.CreatePlayer(ctx, explicit))

		players, err := s.ListPlayers(ctx, l.ID)
		require.NoError(t, err)
		require.Len(t, players, 3)
		assert.Equal(t, "Zero", players[0].Name)
		assert.Equal(t, "One", players[1].Name)
		assert.Equal(t, "Two", players[2].Name)
		assert.False(t, players[1].IsAuctioned)
		assert.Nil(t, players[1].SoldPrice)
	})

	t.Run("auction state defaults", func(t *testing.T) {
		s := newStore(t)
		l := NewLobby(t, s)

		st, err := s.GetAuctionState(ctx, l.ID)
		require.NoError(t, err)
		assert.False(t, st.InAuction())

		st, err = s.EnsureAuctionState(ctx, l.ID)
		require.NoError(t, err)
		assert.Equal(t, l.ID, st.LobbyID)
		assert.False(t, st.InAuction())

		_, err = s.EnsureAuctionState(ctx, "NOPE")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("ensure auction state concurrently", func(t *testing.T) {
		s := newStore(t)
		l := NewLobby(t, s)
		var wg sync.WaitGroup
		errs := make(chan error, 8)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.EnsureAuctionState(ctx, l.ID)
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			assert.NoError(t, err)
		}
	})

	t.Run("save auction state", func(t *testing.T) {
		s := newStore(t)
		l := NewLobby(t, s)
		p := NewPlayer(t, s, l.ID, "One")

		st, err := s.EnsureAuctionState(ctx, l.ID)
		require.NoError(t, err)
		now := time.Now().UTC().Truncate(time.Second)
		st.CurrentPlayerID = &p.ID
		st.AuctionStartTime = &now
		require.NoError(t, s.SaveAuctionState(ctx, st))

		got, err := s.GetAuctionState(ctx, l.ID)
		require.NoError(t, err)
		assert.True(t, got.IsCurrent(p.ID))
		require.NotNil(t, got.AuctionStartTime)
		assert.WithinDuration(t, now, *got.AuctionStartTime, time.Second)
		assert.Nil(t, got.CurrentHighestBid)

		got.Clear()
		require.NoError(t, s.SaveAuctionState(ctx, got))
		got, err = s.GetAuctionState(ctx, l.ID)
		require.NoError(t, err)
		assert.False(t, got.InAuction())
	})

	t.Run("record bid and history", func(t *testing.T) {
		s := newStore(t)
		l := NewLobby(t, s)
		team := NewTeam(t, s, l.ID, "Alpha", 100)
		p := NewPlayer(t, s, l.ID, "One")

		st, err := s.EnsureAuctionState(ctx, l.ID)
		require.NoError(t, err)
		st.CurrentPlayerID = &p.ID

		for _, amount := range []int{10, 25, 40} {
			amt := amount
			st.CurrentHighestBid = &amt
			st.CurrentHighestBidderTeamID = &team.ID
			bid := &models.Bid{LobbyID: l.ID, PlayerID: p.ID, TeamID: team.ID, Amount: amt}
			require.NoError(t, s.RecordBid(ctx, bid, st))
			assert.NotZero(t, bid.ID)
		}

		got, err := s.GetAuctionState(ctx, l.ID)
		require.NoError(t, err)
		require.NotNil(t, got.CurrentHighestBid)
		assert.Equal(t, 40, *got.CurrentHighestBid)
		require.NotNil(t, got.CurrentHighestBidderTeamID)
		assert.Equal(t, team.ID, *got.CurrentHighestBidderTeamID)

		bids, err := s.ListBids(ctx, p.ID)
		require.NoError(t, err)
		require.Len(t, bids, 3)
		assert.Equal(t, 40, bids[0].Amount)
		assert.Equal(t, 10, bids[2].Amount)
	})

	t.Run("commit sale", func(t *testing.T) {
		s := newStore(t)
		l := NewLobby(t, s)
		team := NewTeam(t, s, l.ID, "Alpha", 100)
		cheap := NewPlayer(t, s, l.ID, "Cheap")
		pricey := NewPlayer(t, s, l.ID, "Pricey")

		st, err := s.EnsureAuctionState(ctx, l.ID)
		require.NoError(t, err)
		st.CurrentPlayerID = &cheap.ID
		require.NoError(t, s.SaveAuctionState(ctx, st))

		require.NoError(t, s.CommitSale(ctx, store.Sale{LobbyID: l.ID, PlayerID: cheap.ID, TeamID: team.ID, Price: 15}))
		require.NoError(t, s.CommitSale(ctx, store.Sale{LobbyID: l.ID, PlayerID: pricey.ID, TeamID: team.ID, Price: 45}))

		p, err := s.GetPlayer(ctx, cheap.ID)
		require.NoError(t, err)
		assert.True(t, p.IsAuctioned)
		require.NotNil(t, p.SoldToTeamID)
		assert.Equal(t, team.ID, *p.SoldToTeamID)
		require.NotNil(t, p.SoldPrice)
		assert.Equal(t, 15, *p.SoldPrice)

		tm, err := s.GetTeam(ctx, team.ID)
		require.NoError(t, err)
		assert.Equal(t, 40, tm.RemainingPoints)
		assert.Equal(t, 2, tm.PlayerCount)

		got, err := s.GetAuctionState(ctx, l.ID)
		require.NoError(t, err)
		assert.False(t, got.InAuction())
		assert.Nil(t, got.CurrentHighestBid)

		roster, err := s.ListPlayersByTeam(ctx, team.ID)
		require.NoError(t, err)
		require.Len(t, roster, 2)
		assert.Equal(t, "Pricey", roster[0].Name)
		assert.Equal(t, "Cheap", roster[1].Name)
	})

	t.Run("commit sale twice conflicts", func(t *testing.T) {
		s := newStore(t)
		l := NewLobby(t, s)
		team := NewTeam(t, s, l.ID, "Alpha", 100)
		p := NewPlayer(t, s, l.ID, "One")
		sale := store.Sale{LobbyID: l.ID, PlayerID: p.ID, TeamID: team.ID, Price: 20}

		require.NoError(t, s.CommitSale(ctx, sale))
		err := s.CommitSale(ctx, sale)
		require.Error(t, err)
		assert.True(t, errors.Is(err, store.ErrConflict))

		tm, err := s.GetTeam(ctx, team.ID)
		require.NoError(t, err)
		assert.Equal(t, 80, tm.RemainingPoints, "failed sale must not debit twice")
		assert.Equal(t, 1, tm.PlayerCount)
	})

	t.Run("commit sale unknown team", func(t *testing.T) {
		s := newStore(t)
		l := NewLobby(t, s)
		p := NewPlayer(t, s, l.ID, "One")
		err := s.CommitSale(ctx, store.Sale{LobbyID: l.ID, PlayerID: p.ID, TeamID: missingID, Price: 20})
		assert.ErrorIs(t, err, store.ErrNotFound)

		got, err := s.GetPlayer(ctx, p.ID)
		require.NoError(t, err)
		assert.False(t, got.IsAuctioned)
	})
}
