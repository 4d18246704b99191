package auction

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jason-s-yu/auctionarena/internal/broadcast"
	"github.com/jason-s-yu/auctionarena/internal/models"
	"github.com/jason-s-yu/auctionarena/internal/store"
	"github.com/jason-s-yu/auctionarena/internal/store/memory"
	"github.com/jason-s-yu/auctionarena/internal/store/storetest"
)

// mockPublisher collects events instead of sending them to subscribers.
type mockPublisher struct {
	mu     sync.Mutex
	events []broadcast.Event
}

func (mp *mockPublisher) Publish(ev broadcast.Event) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.events = append(mp.events, ev)
}

func (mp *mockPublisher) all() []broadcast.Event {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	out := make([]broadcast.Event, len(mp.events))
	copy(out, mp.events)
	return out
}

// waitFor blocks until at least n events arrived and returns them.
func (mp *mockPublisher) waitFor(t *testing.T, n int) []broadcast.Event {
	t.Helper()
	require.Eventually(t, func() bool { return len(mp.all()) >= n }, time.Second, 2*time.Millisecond)
	return mp.all()
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type fixture struct {
	ctx     context.Context
	store   *memory.Store
	pub     *mockPublisher
	engine  *Engine
	lobby   *models.Lobby
	teams   []*models.Team
	players []*models.Player
}

// setupTestLobby builds a lobby with numTeams teams holding budget points
// each, numPlayers unsold players and a running engine.
func setupTestLobby(t *testing.T, numTeams, numPlayers, budget int) *fixture {
	t.Helper()
	s := memory.New()
	f := &fixture{
		ctx:   context.Background(),
		store: s,
		pub:   &mockPublisher{},
		lobby: storetest.NewLobby(t, s),
	}
	for i := 0; i < numTeams; i++ {
		f.teams = append(f.teams, storetest.NewTeam(t, s, f.lobby.ID, string(rune('A'+i))+"-team", budget))
	}
	for i := 0; i < numPlayers; i++ {
		f.players = append(f.players, storetest.NewPlayer(t, s, f.lobby.ID, string(rune('P'+i))+"-player"))
	}
	f.engine = NewEngine(f.lobby.ID, Options{Store: s, Publisher: f.pub, Logger: quietLogger()})
	t.Cleanup(f.engine.Close)
	return f
}

func (f *fixture) state(t *testing.T) *models.AuctionState {
	t.Helper()
	st, err := f.store.GetAuctionState(f.ctx, f.lobby.ID)
	require.NoError(t, err)
	return st
}

func (f *fixture) team(t *testing.T, i int) *models.Team {
	t.Helper()
	tm, err := f.store.GetTeam(f.ctx, f.teams[i].ID)
	require.NoError(t, err)
	return tm
}

func (f *fixture) player(t *testing.T, i int) *models.Player {
	t.Helper()
	p, err := f.store.GetPlayer(f.ctx, f.players[i].ID)
	require.NoError(t, err)
	return p
}

func (f *fixture) start(t *testing.T, i int) int64 {
	t.Helper()
	_, err := f.engine.StartPlayerAuction(f.ctx, f.players[i].ID)
	require.NoError(t, err)
	return f.players[i].ID
}

func TestStartPlayerAuction(t *testing.T) {
	f := setupTestLobby(t, 2, 2, 100)

	p, err := f.engine.StartPlayerAuction(f.ctx, f.players[0].ID)
	require.NoError(t, err)
	assert.Equal(t, f.players[0].Name, p.Name)

	st := f.state(t)
	assert.True(t, st.IsCurrent(f.players[0].ID))
	assert.Nil(t, st.CurrentHighestBid)
	assert.Nil(t, st.CurrentHighestBidderTeamID)
	assert.NotNil(t, st.AuctionStartTime)

	events := f.pub.waitFor(t, 1)
	require.Equal(t, EventPlayerUpdate, events[0].Name)
	payload := events[0].Payload.(PlayerUpdate)
	assert.Equal(t, f.players[0].ID, *payload.PlayerID)
	assert.Equal(t, f.players[0].Name, *payload.Name)
	assert.Equal(t, "MID", *payload.Position)
	assert.Equal(t, int64(1), events[0].Seq)

	_, err = f.engine.StartPlayerAuction(f.ctx, f.players[1].ID)
	assert.ErrorIs(t, err, ErrAuctionInProgress)
	_, err = f.engine.StartPlayerAuction(f.ctx, f.players[0].ID)
	assert.ErrorIs(t, err, ErrAuctionInProgress)
	assert.True(t, f.state(t).IsCurrent(f.players[0].ID), "rejected start must not change state")

	_, err = f.engine.StartPlayerAuction(f.ctx, 9999)
	assert.ErrorIs(t, err, ErrPlayerNotFound)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStartPlayerFromAnotherLobby(t *testing.T) {
	f := setupTestLobby(t, 1, 1, 100)
	other := storetest.NewLobby(t, f.store)
	stranger := storetest.NewPlayer(t, f.store, other.ID, "Stranger")

	_, err := f.engine.StartPlayerAuction(f.ctx, stranger.ID)
	assert.ErrorIs(t, err, ErrPlayerNotFound)
}

func TestPlaceBidChecks(t *testing.T) {
	f := setupTestLobby(t, 3, 2, 100)

	// fill team 2's roster with free players
	for i := 0; i < f.lobby.MaxPlayersPerTeam; i++ {
		extra := storetest.NewPlayer(t, f.store, f.lobby.ID, "filler")
		require.NoError(t, f.store.CommitSale(f.ctx, store.Sale{
			LobbyID:  f.lobby.ID,
			PlayerID: extra.ID,
			TeamID:   f.teams[2].ID,
		}))
	}

	current := f.start(t, 0)
	_, err := f.engine.PlaceBid(f.ctx, current, f.teams[0].ID, 50)
	require.NoError(t, err)

	cases := []struct {
		name   string
		player int64
		team   int64
		amount int
		want   *Error
	}{
		{"zero amount", current, f.teams[1].ID, 0, ErrInvalidAmount},
		{"negative amount", current, f.teams[1].ID, -5, ErrInvalidAmount},
		{"unknown team", current, 9999, 60, ErrTeamNotFound},
		{"stale player", f.players[1].ID, f.teams[1].ID, 60, ErrPlayerNotCurrent},
		{"over budget", current, f.teams[1].ID, 101, ErrInsufficientPoints},
		{"equal bid", current, f.teams[1].ID, 50, ErrBidTooLow},
		{"lower bid", current, f.teams[1].ID, 10, ErrBidTooLow},
		{"roster full", current, f.teams[2].ID, 60, ErrRosterFull},
		// budget is checked before the increment
		{"over budget and too low", current, f.teams[1].ID, 101, ErrInsufficientPoints},
		// the player check comes before budget
		{"stale and over budget", f.players[1].ID, f.teams[1].ID, 500, ErrPlayerNotCurrent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.engine.PlaceBid(f.ctx, tc.player, tc.team, tc.amount)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)

			st := f.state(t)
			assert.Equal(t, 50, *st.CurrentHighestBid, "rejected bid must not change state")
			assert.Equal(t, f.teams[0].ID, *st.CurrentHighestBidderTeamID)
		})
	}

	bids, err := f.engine.BidHistory(f.ctx, current)
	require.NoError(t, err)
	assert.Len(t, bids, 1, "only the accepted bid is audited")
}

func TestPausedWinsOverOtherChecks(t *testing.T) {
	f := setupTestLobby(t, 1, 1, 100)
	paused, err := f.engine.TogglePause(f.ctx)
	require.NoError(t, err)
	require.True(t, paused)

	// unknown team, no current player, over budget: paused still wins
	_, err = f.engine.PlaceBid(f.ctx, f.players[0].ID, 9999, 500)
	assert.ErrorIs(t, err, ErrPaused)
	assert.ErrorIs(t, err, ErrConstraintViolation)
}

func TestTeamFromAnotherLobbyCannotBid(t *testing.T) {
	f := setupTestLobby(t, 1, 1, 100)
	other := storetest.NewLobby(t, f.store)
	outsider := storetest.NewTeam(t, f.store, other.ID, "Outsider", 100)
	current := f.start(t, 0)

	_, err := f.engine.PlaceBid(f.ctx, current, outsider.ID, 10)
	assert.ErrorIs(t, err, ErrTeamNotFound)
}

func TestPlaceBidPublishes(t *testing.T) {
	f := setupTestLobby(t, 1, 1, 100)
	current := f.start(t, 0)

	bid, err := f.engine.PlaceBid(f.ctx, current, f.teams[0].ID, 25)
	require.NoError(t, err)
	assert.NotZero(t, bid.ID)
	assert.Equal(t, 25, bid.Amount)

	events := f.pub.waitFor(t, 2)
	require.Equal(t, EventBidUpdate, events[1].Name)
	assert.Equal(t, BidUpdate{PlayerID: current, TeamID: f.teams[0].ID, TeamName: f.teams[0].Name, Amount: 25}, events[1].Payload)
	assert.Equal(t, f.lobby.ID, events[1].LobbyID)
}

func TestConfirmSaleWithoutBid(t *testing.T) {
	f := setupTestLobby(t, 1, 2, 100)
	current := f.start(t, 0)

	_, err := f.engine.ConfirmSale(f.ctx, current)
	assert.ErrorIs(t, err, ErrNoBid)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.engine.ConfirmSale(f.ctx, f.players[1].ID)
	assert.ErrorIs(t, err, ErrPlayerNotCurrent)

	assert.True(t, f.state(t).IsCurrent(current))
	assert.False(t, f.player(t, 0).IsAuctioned)
}

func TestConfirmSalePublishesSoldThenTeam(t *testing.T) {
	f := setupTestLobby(t, 1, 1, 100)
	current := f.start(t, 0)
	_, err := f.engine.PlaceBid(f.ctx, current, f.teams[0].ID, 30)
	require.NoError(t, err)

	sale, err := f.engine.ConfirmSale(f.ctx, current)
	require.NoError(t, err)
	assert.Equal(t, 30, sale.Price)
	assert.Equal(t, 70, sale.Team.RemainingPoints)
	assert.Equal(t, 1, sale.Team.PlayerCount)
	assert.True(t, sale.Player.IsAuctioned)

	events := f.pub.waitFor(t, 4)
	assert.Equal(t, EventPlayerSold, events[2].Name)
	assert.Equal(t, PlayerSold{PlayerID: current, Name: f.players[0].Name, TeamID: f.teams[0].ID, TeamName: f.teams[0].Name, SoldPrice: 30}, events[2].Payload)
	assert.Equal(t, EventTeamUpdate, events[3].Name)
	assert.Equal(t, TeamUpdate{TeamID: f.teams[0].ID, TeamName: f.teams[0].Name, RemainingPoints: 70}, events[3].Payload)
}

// Outbid, rejected equal-or-lower bid, then sale to the highest.
func TestScenarioOutbidAndSell(t *testing.T) {
	f := setupTestLobby(t, 2, 1, 100)
	x, y := f.teams[0].ID, f.teams[1].ID
	current := f.start(t, 0)

	_, err := f.engine.PlaceBid(f.ctx, current, x, 50)
	require.NoError(t, err)
	_, err = f.engine.PlaceBid(f.ctx, current, y, 40)
	assert.ErrorIs(t, err, ErrBidTooLow)
	_, err = f.engine.PlaceBid(f.ctx, current, y, 60)
	require.NoError(t, err)

	_, err = f.engine.ConfirmSale(f.ctx, current)
	require.NoError(t, err)

	p := f.player(t, 0)
	assert.True(t, p.IsAuctioned)
	assert.Equal(t, y, *p.SoldToTeamID)
	assert.Equal(t, 60, *p.SoldPrice)
	assert.Equal(t, 40, f.team(t, 1).RemainingPoints)
	assert.Equal(t, 1, f.team(t, 1).PlayerCount)
	assert.Equal(t, 100, f.team(t, 0).RemainingPoints)
	assert.Equal(t, 0, f.team(t, 0).PlayerCount)

	st := f.state(t)
	assert.Nil(t, st.CurrentPlayerID)
	assert.Nil(t, st.CurrentHighestBid)
	assert.Nil(t, st.CurrentHighestBidderTeamID)
	assert.Nil(t, st.AuctionStartTime)
}

// A bid above the team's balance is refused and nothing changes.
func TestScenarioBidAboveBalance(t *testing.T) {
	f := setupTestLobby(t, 1, 1, 30)
	current := f.start(t, 0)
	before := f.state(t)

	_, err := f.engine.PlaceBid(f.ctx, current, f.teams[0].ID, 50)
	assert.ErrorIs(t, err, ErrInsufficientPoints)
	assert.ErrorIs(t, err, ErrConstraintViolation)

	assert.Equal(t, before, f.state(t))
	assert.Equal(t, 30, f.team(t, 0).RemainingPoints)
}

// 70 and 80 race against a prior 60. The final highest is
// always 80; only the 70 can lose, and only when it arrives second.
func TestScenarioConcurrentBids(t *testing.T) {
	for round := 0; round < 50; round++ {
		f := setupTestLobby(t, 3, 1, 100)
		current := f.start(t, 0)
		_, err := f.engine.PlaceBid(f.ctx, current, f.teams[0].ID, 60)
		require.NoError(t, err)

		var wg sync.WaitGroup
		var err70, err80 error
		startGate := make(chan struct{})
		wg.Add(2)
		go func() {
			defer wg.Done()
			<-startGate
			_, err70 = f.engine.PlaceBid(f.ctx, current, f.teams[1].ID, 70)
		}()
		go func() {
			defer wg.Done()
			<-startGate
			_, err80 = f.engine.PlaceBid(f.ctx, current, f.teams[2].ID, 80)
		}()
		close(startGate)
		wg.Wait()

		require.NoError(t, err80)
		st := f.state(t)
		assert.Equal(t, 80, *st.CurrentHighestBid)
		assert.Equal(t, f.teams[2].ID, *st.CurrentHighestBidderTeamID)

		bids, err := f.engine.BidHistory(f.ctx, current)
		require.NoError(t, err)
		if err70 != nil {
			assert.ErrorIs(t, err70, ErrBidTooLow)
			assert.Len(t, bids, 2)
		} else {
			assert.Len(t, bids, 3)
		}
	}
}

// Pausing blocks bids but not the host's confirm.
func TestScenarioPauseThenConfirm(t *testing.T) {
	f := setupTestLobby(t, 2, 1, 100)
	current := f.start(t, 0)
	_, err := f.engine.PlaceBid(f.ctx, current, f.teams[0].ID, 45)
	require.NoError(t, err)

	paused, err := f.engine.TogglePause(f.ctx)
	require.NoError(t, err)
	assert.True(t, paused)

	_, err = f.engine.PlaceBid(f.ctx, current, f.teams[1].ID, 90)
	assert.ErrorIs(t, err, ErrPaused)
	assert.ErrorIs(t, err, ErrConstraintViolation)

	sale, err := f.engine.ConfirmSale(f.ctx, current)
	require.NoError(t, err)
	assert.Equal(t, 45, sale.Price)
	assert.Equal(t, f.teams[0].ID, sale.Team.ID)
	assert.Equal(t, 55, f.team(t, 0).RemainingPoints)

	events := f.pub.waitFor(t, 5)
	assert.Equal(t, EventPauseUpdate, events[2].Name)
	assert.Equal(t, PauseUpdate{Paused: true}, events[2].Payload)

	paused, err = f.engine.TogglePause(f.ctx)
	require.NoError(t, err)
	assert.False(t, paused)
}

// Skip clears the auction only; the player can come back.
func TestScenarioSkipAndRestart(t *testing.T) {
	f := setupTestLobby(t, 2, 1, 100)
	current := f.start(t, 0)
	_, err := f.engine.PlaceBid(f.ctx, current, f.teams[0].ID, 20)
	require.NoError(t, err)

	teamsBefore := []*models.Team{f.team(t, 0), f.team(t, 1)}
	playerBefore := f.player(t, 0)

	require.NoError(t, f.engine.SkipPlayer(f.ctx))

	st := f.state(t)
	assert.False(t, st.InAuction())
	assert.Nil(t, st.CurrentHighestBid)
	assert.Equal(t, teamsBefore, []*models.Team{f.team(t, 0), f.team(t, 1)})
	assert.Equal(t, playerBefore, f.player(t, 0))

	events := f.pub.waitFor(t, 3)
	assert.Equal(t, EventPlayerUpdate, events[2].Name)
	assert.Equal(t, PlayerUpdate{}, events[2].Payload)

	f.start(t, 0)
	assert.True(t, f.state(t).IsCurrent(current))
	assert.Nil(t, f.state(t).CurrentHighestBid, "restart begins with no bid")
}

func TestSkipWhenIdle(t *testing.T) {
	f := setupTestLobby(t, 1, 1, 100)
	require.NoError(t, f.engine.SkipPlayer(f.ctx))
	assert.False(t, f.state(t).InAuction())
}

func TestSoldPlayerRejectsEverything(t *testing.T) {
	f := setupTestLobby(t, 2, 1, 100)
	current := f.start(t, 0)
	_, err := f.engine.PlaceBid(f.ctx, current, f.teams[0].ID, 10)
	require.NoError(t, err)
	_, err = f.engine.ConfirmSale(f.ctx, current)
	require.NoError(t, err)

	_, err = f.engine.PlaceBid(f.ctx, current, f.teams[1].ID, 50)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = f.engine.ConfirmSale(f.ctx, current)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = f.engine.StartPlayerAuction(f.ctx, current)
	assert.ErrorIs(t, err, ErrPlayerSold)

	require.NoError(t, f.engine.SkipPlayer(f.ctx))
	p := f.player(t, 0)
	assert.True(t, p.IsAuctioned)
	assert.Equal(t, 10, *p.SoldPrice)
	assert.Equal(t, 90, f.team(t, 0).RemainingPoints)
}

func TestAcceptedBidsStrictlyIncrease(t *testing.T) {
	f := setupTestLobby(t, 3, 1, 200)
	current := f.start(t, 0)
	rng := rand.New(rand.NewSource(7))

	var accepted []int
	for i := 0; i < 300; i++ {
		team := f.teams[rng.Intn(len(f.teams))].ID
		amount := rng.Intn(220) - 10
		if _, err := f.engine.PlaceBid(f.ctx, current, team, amount); err == nil {
			accepted = append(accepted, amount)
		} else {
			var ae *Error
			require.True(t, errors.As(err, &ae), "unexpected error %v", err)
		}
	}
	require.NotEmpty(t, accepted)
	for i := 1; i < len(accepted); i++ {
		assert.Greater(t, accepted[i], accepted[i-1])
	}
	assert.Equal(t, accepted[len(accepted)-1], *f.state(t).CurrentHighestBid)
}

func TestConcurrentBidStorm(t *testing.T) {
	f := setupTestLobby(t, 4, 1, 1000)
	current := f.start(t, 0)

	const n = 100
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.engine.PlaceBid(f.ctx, current, f.teams[i%len(f.teams)].ID, i+1)
		}(i)
	}
	wg.Wait()

	acceptedCount := 0
	for _, err := range errs {
		if err == nil {
			acceptedCount++
			continue
		}
		assert.ErrorIs(t, err, ErrBidTooLow)
	}
	// the largest amount can never be beaten, so it always lands
	assert.NoError(t, errs[n-1])
	assert.Equal(t, n, *f.state(t).CurrentHighestBid)

	bids, err := f.engine.BidHistory(f.ctx, current)
	require.NoError(t, err)
	assert.Len(t, bids, acceptedCount)

	// in commit order the amounts rise
	sort.Slice(bids, func(i, j int) bool { return bids[i].ID < bids[j].ID })
	for i := 1; i < len(bids); i++ {
		assert.Greater(t, bids[i].Amount, bids[i-1].Amount)
	}

	events := f.pub.waitFor(t, 1+acceptedCount)
	var last int
	for _, ev := range events[1:] {
		amount := ev.Payload.(BidUpdate).Amount
		assert.Greater(t, amount, last, "bid-update events follow commit order")
		last = amount
	}
}

func TestConfirmRacingBid(t *testing.T) {
	for round := 0; round < 50; round++ {
		f := setupTestLobby(t, 2, 1, 100)
		current := f.start(t, 0)
		_, err := f.engine.PlaceBid(f.ctx, current, f.teams[0].ID, 10)
		require.NoError(t, err)

		var wg sync.WaitGroup
		var bidErr, saleErr error
		var sale *Sale
		gate := make(chan struct{})
		wg.Add(2)
		go func() {
			defer wg.Done()
			<-gate
			_, bidErr = f.engine.PlaceBid(f.ctx, current, f.teams[1].ID, 20)
		}()
		go func() {
			defer wg.Done()
			<-gate
			sale, saleErr = f.engine.ConfirmSale(f.ctx, current)
		}()
		close(gate)
		wg.Wait()

		require.NoError(t, saleErr)
		if bidErr == nil {
			assert.Equal(t, 20, sale.Price)
			assert.Equal(t, f.teams[1].ID, sale.Team.ID)
			assert.Equal(t, 80, f.team(t, 1).RemainingPoints)
		} else {
			assert.ErrorIs(t, bidErr, ErrPlayerNotCurrent)
			assert.Equal(t, 10, sale.Price)
			assert.Equal(t, 90, f.team(t, 0).RemainingPoints)
			assert.Equal(t, 100, f.team(t, 1).RemainingPoints)
		}
		assert.False(t, f.state(t).InAuction())
	}
}

func TestAddPoints(t *testing.T) {
	f := setupTestLobby(t, 1, 0, 100)

	team, err := f.engine.AddPoints(f.ctx, f.teams[0].ID, 25)
	require.NoError(t, err)
	assert.Equal(t, 125, team.RemainingPoints)

	team, err = f.engine.AddPoints(f.ctx, f.teams[0].ID, -125)
	require.NoError(t, err)
	assert.Equal(t, 0, team.RemainingPoints)

	_, err = f.engine.AddPoints(f.ctx, f.teams[0].ID, -1)
	assert.ErrorIs(t, err, ErrInsufficientPoints)
	assert.Equal(t, 0, f.team(t, 0).RemainingPoints)

	_, err = f.engine.AddPoints(f.ctx, 9999, 5)
	assert.ErrorIs(t, err, ErrTeamNotFound)

	events := f.pub.waitFor(t, 2)
	assert.Equal(t, EventTeamUpdate, events[0].Name)
	assert.Equal(t, TeamUpdate{TeamID: f.teams[0].ID, TeamName: f.teams[0].Name, RemainingPoints: 125}, events[0].Payload)
	assert.Equal(t, TeamUpdate{TeamID: f.teams[0].ID, TeamName: f.teams[0].Name, RemainingPoints: 0}, events[1].Payload)
}

func TestAddPointsDuringAuction(t *testing.T) {
	f := setupTestLobby(t, 1, 1, 10)
	current := f.start(t, 0)

	_, err := f.engine.PlaceBid(f.ctx, current, f.teams[0].ID, 40)
	assert.ErrorIs(t, err, ErrInsufficientPoints)

	_, err = f.engine.AddPoints(f.ctx, f.teams[0].ID, 40)
	require.NoError(t, err)
	_, err = f.engine.PlaceBid(f.ctx, current, f.teams[0].ID, 40)
	require.NoError(t, err)
}

func TestAddPointsKeepsStandingBidPayable(t *testing.T) {
	f := setupTestLobby(t, 2, 1, 100)
	current := f.start(t, 0)
	_, err := f.engine.PlaceBid(f.ctx, current, f.teams[0].ID, 50)
	require.NoError(t, err)

	_, err = f.engine.AddPoints(f.ctx, f.teams[0].ID, -80)
	assert.ErrorIs(t, err, ErrInsufficientPoints)
	assert.Equal(t, 100, f.team(t, 0).RemainingPoints)

	// down to exactly the bid is still payable
	_, err = f.engine.AddPoints(f.ctx, f.teams[0].ID, -50)
	require.NoError(t, err)

	// other teams are not held to someone else's bid
	_, err = f.engine.AddPoints(f.ctx, f.teams[1].ID, -80)
	require.NoError(t, err)

	sale, err := f.engine.ConfirmSale(f.ctx, current)
	require.NoError(t, err)
	assert.Equal(t, 50, sale.Price)
	assert.Equal(t, 0, f.team(t, 0).RemainingPoints)
}

func TestConfirmSaleRefusesUnpayableBid(t *testing.T) {
	f := setupTestLobby(t, 1, 1, 100)
	current := f.start(t, 0)
	_, err := f.engine.PlaceBid(f.ctx, current, f.teams[0].ID, 50)
	require.NoError(t, err)

	// a balance change made outside the engine
	_, err = f.store.AddTeamPoints(f.ctx, f.teams[0].ID, -80)
	require.NoError(t, err)

	_, err = f.engine.ConfirmSale(f.ctx, current)
	assert.ErrorIs(t, err, ErrInsufficientPoints)

	tm := f.team(t, 0)
	assert.Equal(t, 20, tm.RemainingPoints)
	assert.Equal(t, 0, tm.PlayerCount)
	p := f.player(t, 0)
	assert.False(t, p.IsAuctioned)
	st := f.state(t)
	assert.True(t, st.IsCurrent(current))
	assert.Equal(t, 50, *st.CurrentHighestBid)
}

func TestBalancesStayWithinBounds(t *testing.T) {
	for seed := int64(1); seed <= 25; seed++ {
		checkBalances(t, seed)
	}
}

func checkBalances(t *testing.T, seed int64) {
	t.Helper()
	const budget = 100
	f := setupTestLobby(t, 3, 8, budget)
	rng := rand.New(rand.NewSource(seed))
	grants := make(map[int64]int)

	for _, p := range f.players {
		if _, err := f.engine.StartPlayerAuction(f.ctx, p.ID); err != nil {
			continue
		}
		for i := 0; i < 10; i++ {
			team := f.teams[rng.Intn(len(f.teams))]
			if rng.Intn(5) == 0 {
				delta := rng.Intn(80) - 50
				if _, err := f.engine.AddPoints(f.ctx, team.ID, delta); err == nil {
					grants[team.ID] += delta
				}
				continue
			}
			_, _ = f.engine.PlaceBid(f.ctx, p.ID, team.ID, rng.Intn(60)+1)
		}
		if _, err := f.engine.ConfirmSale(f.ctx, p.ID); err != nil {
			require.NoError(t, f.engine.SkipPlayer(f.ctx))
		}
	}

	for i := range f.teams {
		tm := f.team(t, i)
		roster, err := f.store.ListPlayersByTeam(f.ctx, tm.ID)
		require.NoError(t, err)
		spent := 0
		for _, p := range roster {
			spent += *p.SoldPrice
		}
		assert.GreaterOrEqual(t, tm.RemainingPoints, 0, "seed %d", seed)
		assert.Equal(t, budget+grants[tm.ID]-spent, tm.RemainingPoints, "seed %d", seed)
		assert.LessOrEqual(t, tm.PlayerCount, f.lobby.MaxPlayersPerTeam)
		assert.Equal(t, len(roster), tm.PlayerCount)
	}
}

func TestClosedLobbyRejectsCommands(t *testing.T) {
	f := setupTestLobby(t, 1, 1, 100)
	require.NoError(t, f.store.SetLobbyActive(f.ctx, f.lobby.ID, false))

	_, err := f.engine.StartPlayerAuction(f.ctx, f.players[0].ID)
	assert.ErrorIs(t, err, ErrLobbyClosed)
	_, err = f.engine.TogglePause(f.ctx)
	assert.ErrorIs(t, err, ErrLobbyClosed)
	assert.ErrorIs(t, f.engine.SkipPlayer(f.ctx), ErrLobbyClosed)
}

func TestClosedEngineRejectsCommands(t *testing.T) {
	f := setupTestLobby(t, 1, 1, 100)
	f.engine.Close()
	f.engine.Close()

	_, err := f.engine.StartPlayerAuction(f.ctx, f.players[0].ID)
	assert.ErrorIs(t, err, ErrEngineRetired)
	_, err = f.engine.PlaceBid(f.ctx, f.players[0].ID, f.teams[0].ID, 5)
	assert.ErrorIs(t, err, ErrEngineRetired)
	_, err = f.engine.AddPoints(f.ctx, f.teams[0].ID, 5)
	assert.ErrorIs(t, err, ErrEngineRetired)
}

// blockingPublisher holds every Publish call until release is closed.
type blockingPublisher struct {
	mockPublisher
	release chan struct{}
}

func (bp *blockingPublisher) Publish(ev broadcast.Event) {
	<-bp.release
	bp.mockPublisher.Publish(ev)
}

func TestSlowPublisherNeverBlocksCommands(t *testing.T) {
	s := memory.New()
	lobby := storetest.NewLobby(t, s)
	team := storetest.NewTeam(t, s, lobby.ID, "Alpha", 1000)
	player := storetest.NewPlayer(t, s, lobby.ID, "One")
	pub := &blockingPublisher{release: make(chan struct{})}
	e := NewEngine(lobby.ID, Options{Store: s, Publisher: pub, Logger: quietLogger(), Buffer: 1})

	_, err := e.StartPlayerAuction(context.Background(), player.ID)
	require.NoError(t, err)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for amount := 1; amount <= 20; amount++ {
			_, err := e.PlaceBid(context.Background(), player.ID, team.ID, amount)
			assert.NoError(t, err)
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("commands blocked on a stalled publisher")
	}

	close(pub.release)
	e.Close()

	events := pub.all()
	assert.Less(t, len(events), 21, "some events must have been dropped")
	for i := 1; i < len(events); i++ {
		assert.Greater(t, events[i].Seq, events[i-1].Seq)
	}
	st, err := s.GetAuctionState(context.Background(), lobby.ID)
	require.NoError(t, err)
	assert.Equal(t, 20, *st.CurrentHighestBid, "state commits even when events are lost")
}

func TestPanickingPublisherDoesNotStopPump(t *testing.T) {
	s := memory.New()
	lobby := storetest.NewLobby(t, s)
	rec := &mockPublisher{}
	calls := 0
	pub := broadcast.PublisherFunc(func(ev broadcast.Event) {
		calls++
		if calls == 1 {
			panic("boom")
		}
		rec.Publish(ev)
	})
	e := NewEngine(lobby.ID, Options{Store: s, Publisher: pub, Logger: quietLogger()})

	_, err := e.TogglePause(context.Background())
	require.NoError(t, err)
	_, err = e.TogglePause(context.Background())
	require.NoError(t, err)
	e.Close()

	require.Len(t, rec.all(), 1)
	assert.Equal(t, PauseUpdate{Paused: false}, rec.all()[0].Payload)
}

func TestSnapshot(t *testing.T) {
	f := setupTestLobby(t, 2, 1, 100)

	snap, err := f.engine.Snapshot(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, f.lobby.ID, snap.Lobby.ID)
	assert.Len(t, snap.Teams, 2)
	assert.Nil(t, snap.CurrentPlayer)
	assert.Nil(t, snap.HighestBidder)

	current := f.start(t, 0)
	_, err = f.engine.PlaceBid(f.ctx, current, f.teams[1].ID, 15)
	require.NoError(t, err)

	snap, err = f.engine.Snapshot(f.ctx)
	require.NoError(t, err)
	require.NotNil(t, snap.CurrentPlayer)
	assert.Equal(t, current, snap.CurrentPlayer.ID)
	require.NotNil(t, snap.HighestBidder)
	assert.Equal(t, f.teams[1].ID, snap.HighestBidder.ID)
	assert.Equal(t, 15, *snap.State.CurrentHighestBid)
}

func TestBidHistory(t *testing.T) {
	f := setupTestLobby(t, 2, 1, 100)
	current := f.start(t, 0)
	for i, amount := range []int{5, 12, 30} {
		_, err := f.engine.PlaceBid(f.ctx, current, f.teams[i%2].ID, amount)
		require.NoError(t, err)
	}

	bids, err := f.engine.BidHistory(f.ctx, current)
	require.NoError(t, err)
	require.Len(t, bids, 3)
	assert.Equal(t, []int{30, 12, 5}, []int{bids[0].Amount, bids[1].Amount, bids[2].Amount})

	_, err = f.engine.BidHistory(f.ctx, 9999)
	assert.ErrorIs(t, err, ErrPlayerNotFound)
}
