// Package auction implements the per-lobby auction state machine.
//
// Each lobby has exactly one Engine, reached through a Registry. An Engine
// serializes every command for its lobby behind a mutex held across the whole
// read-validate-write sequence, so two racing bids are always validated one
// after the other. Events are queued while the lock is held, which keeps
// them in commit order, and a pump goroutine hands them to the Publisher.
package auction

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/auctionarena/internal/broadcast"
	"github.com/jason-s-yu/auctionarena/internal/metrics"
	"github.com/jason-s-yu/auctionarena/internal/models"
	"github.com/jason-s-yu/auctionarena/internal/store"
)

// DefaultBuffer is the outbox size used when Options.Buffer is zero.
const DefaultBuffer = 256

// Options are shared by every engine a Registry creates.
type Options struct {
	Store     store.Store
	Publisher broadcast.Publisher
	Logger    *logrus.Logger
	Metrics   *metrics.Collector // may be nil
	Buffer    int
	Now       func() time.Time
}

// Engine is the auction state machine of one lobby.
type Engine struct {
	lobbyID string
	store   store.Store
	pub     broadcast.Publisher
	log     *logrus.Entry
	metrics *metrics.Collector
	now     func() time.Time

	mu     sync.Mutex // held for the full duration of every command
	closed bool
	seq    int64
	outbox chan broadcast.Event
	done   chan struct{}
}

// Sale is the outcome of a confirmed sale.
type Sale struct {
	Player models.Player `json:"player"`
	Team   models.Team   `json:"team"`
	Price  int           `json:"price"`
}

// Snapshot is a read-only view of a lobby. It may be stale by the time the
// caller uses it.
type Snapshot struct {
	Lobby         models.Lobby        `json:"lobby"`
	Teams         []models.Team       `json:"teams"`
	State         models.AuctionState `json:"state"`
	CurrentPlayer *models.Player      `json:"current_player"`
	HighestBidder *models.Team        `json:"highest_bidder"`
}

// NewEngine starts an engine and its publish pump. Call Close to stop it.
func NewEngine(lobbyID string, opts Options) *Engine {
	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	pub := opts.Publisher
	if pub == nil {
		pub = broadcast.Fanout(nil)
	}

	e := &Engine{
		lobbyID: lobbyID,
		store:   opts.Store,
		pub:     pub,
		log:     logger.WithField("lobby", lobbyID),
		metrics: opts.Metrics,
		now:     now,
		outbox:  make(chan broadcast.Event, buffer),
		done:    make(chan struct{}),
	}
	go e.pump()
	return e
}

// LobbyID returns the lobby this engine owns.
func (e *Engine) LobbyID() string { return e.lobbyID }

// Close stops accepting commands, drains queued events and stops the pump.
// Safe to call more than once.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		<-e.done
		return
	}
	e.closed = true
	close(e.outbox)
	e.mu.Unlock()
	<-e.done
}

func (e *Engine) pump() {
	defer close(e.done)
	for ev := range e.outbox {
		e.deliver(ev)
	}
}

func (e *Engine) deliver(ev broadcast.Event) {
	defer func() {
		if r := recover(); r != nil {
			e.log.WithFields(logrus.Fields{"event": ev.Name, "seq": ev.Seq}).Errorf("publisher panicked: %v", r)
		}
	}()
	e.pub.Publish(ev)
}

// emitUnsafe queues an event. Caller must hold e.mu. A full outbox drops the
// event rather than blocking the command.
func (e *Engine) emitUnsafe(name string, payload any) {
	e.seq++
	ev := broadcast.Event{
		LobbyID: e.lobbyID,
		Seq:     e.seq,
		Name:    name,
		Payload: payload,
		At:      e.now(),
	}
	select {
	case e.outbox <- ev:
	default:
		e.log.WithFields(logrus.Fields{"event": name, "seq": ev.Seq}).Warn("outbox full, dropped event")
		e.metrics.EventDropped("outbox")
	}
}

// lockOpen acquires e.mu and fails if the engine was retired.
func (e *Engine) lockOpen() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return reject(ErrEngineRetired, "lobby %s is no longer running an auction", e.lobbyID)
	}
	return nil
}

func (e *Engine) loadLobby(ctx context.Context) (*models.Lobby, error) {
	l, err := e.store.GetLobby(ctx, e.lobbyID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, reject(ErrLobbyNotFound, "lobby %s not found", e.lobbyID)
	}
	if err != nil {
		return nil, fmt.Errorf("load lobby %s: %w", e.lobbyID, err)
	}
	if !l.IsActive {
		return nil, reject(ErrLobbyClosed, "lobby %s is closed", e.lobbyID)
	}
	return l, nil
}

func (e *Engine) loadTeam(ctx context.Context, teamID int64) (*models.Team, error) {
	t, err := e.store.GetTeam(ctx, teamID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && t.LobbyID != e.lobbyID) {
		return nil, reject(ErrTeamNotFound, "team %d not found in lobby %s", teamID, e.lobbyID)
	}
	if err != nil {
		return nil, fmt.Errorf("load team %d: %w", teamID, err)
	}
	return t, nil
}

func (e *Engine) loadPlayer(ctx context.Context, playerID int64) (*models.Player, error) {
	p, err := e.store.GetPlayer(ctx, playerID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && p.LobbyID != e.lobbyID) {
		return nil, reject(ErrPlayerNotFound, "player %d not found in lobby %s", playerID, e.lobbyID)
	}
	if err != nil {
		return nil, fmt.Errorf("load player %d: %w", playerID, err)
	}
	return p, nil
}

func (e *Engine) loadState(ctx context.Context) (*models.AuctionState, error) {
	st, err := e.store.EnsureAuctionState(ctx, e.lobbyID)
	if err != nil {
		return nil, fmt.Errorf("load auction state %s: %w", e.lobbyID, err)
	}
	return st, nil
}

// StartPlayerAuction puts an unsold player up for bidding. The lobby must be
// idle; a running auction has to be confirmed or skipped first.
func (e *Engine) StartPlayerAuction(ctx context.Context, playerID int64) (*models.Player, error) {
	if err := e.lockOpen(); err != nil {
		return nil, err
	}
	defer e.mu.Unlock()

	if _, err := e.loadLobby(ctx); err != nil {
		return nil, err
	}
	player, err := e.loadPlayer(ctx, playerID)
	if err != nil {
		return nil, err
	}
	if player.IsAuctioned {
		return nil, reject(ErrPlayerSold, "player %s has already been sold", player.Name)
	}
	st, err := e.loadState(ctx)
	if err != nil {
		return nil, err
	}
	if st.InAuction() {
		return nil, reject(ErrAuctionInProgress, "player %d is still up for auction; confirm or skip first", *st.CurrentPlayerID)
	}

	started := e.now()
	st.Clear()
	st.CurrentPlayerID = &player.ID
	st.AuctionStartTime = &started
	if err := e.store.SaveAuctionState(ctx, st); err != nil {
		return nil, fmt.Errorf("save auction state: %w", err)
	}

	e.log.WithField("player", player.ID).Infof("auction started for %s", player.Name)
	e.emitUnsafe(EventPlayerUpdate, PlayerUpdate{
		PlayerID: &player.ID,
		Name:     &player.Name,
		Position: &player.Position,
	})
	return player, nil
}

// PlaceBid admits a bid for the current player. Checks run in a fixed order
// and the first failure is returned.
func (e *Engine) PlaceBid(ctx context.Context, playerID, teamID int64, amount int) (*models.Bid, error) {
	bid, err := e.placeBid(ctx, playerID, teamID, amount)
	if err != nil {
		var ae *Error
		if errors.As(err, &ae) {
			e.metrics.BidRejected(string(ae.Reason))
			e.log.WithFields(logrus.Fields{
				"player": playerID,
				"team":   teamID,
				"amount": amount,
				"reason": ae.Reason,
			}).Debug("bid rejected")
		}
		return nil, err
	}
	e.metrics.BidAccepted()
	return bid, nil
}

func (e *Engine) placeBid(ctx context.Context, playerID, teamID int64, amount int) (*models.Bid, error) {
	if amount <= 0 {
		return nil, reject(ErrInvalidAmount, "bid amount must be a positive integer, got %d", amount)
	}
	if err := e.lockOpen(); err != nil {
		return nil, err
	}
	defer e.mu.Unlock()

	lobby, err := e.loadLobby(ctx)
	if err != nil {
		return nil, err
	}
	if lobby.IsPaused {
		return nil, reject(ErrPaused, "bidding is paused")
	}
	team, err := e.loadTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	st, err := e.loadState(ctx)
	if err != nil {
		return nil, err
	}
	if !st.IsCurrent(playerID) {
		return nil, reject(ErrPlayerNotCurrent, "player %d is not currently in auction", playerID)
	}
	if amount > team.RemainingPoints {
		return nil, reject(ErrInsufficientPoints, "bid of %d exceeds %s's remaining %d points", amount, team.Name, team.RemainingPoints)
	}
	if st.CurrentHighestBid != nil && amount <= *st.CurrentHighestBid {
		return nil, reject(ErrBidTooLow, "bid must be higher than current bid of %d", *st.CurrentHighestBid)
	}
	if team.PlayerCount >= lobby.MaxPlayersPerTeam {
		return nil, reject(ErrRosterFull, "%s has reached the maximum of %d players", team.Name, lobby.MaxPlayersPerTeam)
	}

	bid := &models.Bid{
		LobbyID:  e.lobbyID,
		PlayerID: playerID,
		TeamID:   team.ID,
		Amount:   amount,
		PlacedAt: e.now(),
	}
	st.CurrentHighestBid = &amount
	st.CurrentHighestBidderTeamID = &team.ID
	if err := e.store.RecordBid(ctx, bid, st); err != nil {
		return nil, fmt.Errorf("record bid: %w", err)
	}

	e.log.WithFields(logrus.Fields{"player": playerID, "team": team.ID, "amount": amount}).Info("bid accepted")
	e.emitUnsafe(EventBidUpdate, BidUpdate{
		PlayerID: playerID,
		TeamID:   team.ID,
		TeamName: team.Name,
		Amount:   amount,
	})
	return bid, nil
}

// ConfirmSale sells the current player to the highest bidder. The sale is
// committed in one store call; a bid racing the commit waits for the lock and
// then finds the player no longer current.
func (e *Engine) ConfirmSale(ctx context.Context, playerID int64) (*Sale, error) {
	if err := e.lockOpen(); err != nil {
		return nil, err
	}
	defer e.mu.Unlock()

	if _, err := e.loadLobby(ctx); err != nil {
		return nil, err
	}
	st, err := e.loadState(ctx)
	if err != nil {
		return nil, err
	}
	if !st.IsCurrent(playerID) {
		return nil, reject(ErrPlayerNotCurrent, "player %d is not currently in auction", playerID)
	}
	if st.CurrentHighestBidderTeamID == nil || st.CurrentHighestBid == nil {
		return nil, reject(ErrNoBid, "no valid bid to confirm")
	}
	price := *st.CurrentHighestBid

	team, err := e.loadTeam(ctx, *st.CurrentHighestBidderTeamID)
	if err != nil {
		return nil, err
	}
	if team.RemainingPoints < price {
		return nil, reject(ErrInsufficientPoints, "%s has %d points; cannot pay %d", team.Name, team.RemainingPoints, price)
	}
	player, err := e.loadPlayer(ctx, playerID)
	if err != nil {
		return nil, err
	}

	err = e.store.CommitSale(ctx, store.Sale{
		LobbyID:  e.lobbyID,
		PlayerID: player.ID,
		TeamID:   team.ID,
		Price:    price,
	})
	if errors.Is(err, store.ErrConflict) {
		return nil, &Error{Kind: KindInvalidTransition, Reason: ReasonPlayerSold, Message: fmt.Sprintf("player %s has already been sold", player.Name), Cause: err}
	}
	if err != nil {
		return nil, fmt.Errorf("commit sale: %w", err)
	}

	player.IsAuctioned = true
	player.SoldToTeamID = &team.ID
	player.SoldPrice = &price
	team.RemainingPoints -= price
	team.PlayerCount++

	e.metrics.Sale(price)
	e.log.WithFields(logrus.Fields{"player": player.ID, "team": team.ID, "price": price}).Infof("%s sold to %s", player.Name, team.Name)
	e.emitUnsafe(EventPlayerSold, PlayerSold{
		PlayerID:  player.ID,
		Name:      player.Name,
		TeamID:    team.ID,
		TeamName:  team.Name,
		SoldPrice: price,
	})
	e.emitUnsafe(EventTeamUpdate, TeamUpdate{
		TeamID:          team.ID,
		TeamName:        team.Name,
		RemainingPoints: team.RemainingPoints,
	})
	return &Sale{Player: *player, Team: *team, Price: price}, nil
}

// SkipPlayer clears the running auction, if any. The player stays unsold.
func (e *Engine) SkipPlayer(ctx context.Context) error {
	if err := e.lockOpen(); err != nil {
		return err
	}
	defer e.mu.Unlock()

	if _, err := e.loadLobby(ctx); err != nil {
		return err
	}
	st, err := e.loadState(ctx)
	if err != nil {
		return err
	}
	skipped := st.CurrentPlayerID
	st.Clear()
	if err := e.store.SaveAuctionState(ctx, st); err != nil {
		return fmt.Errorf("clear auction state: %w", err)
	}

	if skipped != nil {
		e.log.WithField("player", *skipped).Info("player skipped")
	}
	e.emitUnsafe(EventPlayerUpdate, PlayerUpdate{})
	return nil
}

// TogglePause flips the lobby's paused flag and returns the new value.
// Only PlaceBid honours the flag.
func (e *Engine) TogglePause(ctx context.Context) (bool, error) {
	if err := e.lockOpen(); err != nil {
		return false, err
	}
	defer e.mu.Unlock()

	lobby, err := e.loadLobby(ctx)
	if err != nil {
		return false, err
	}
	paused := !lobby.IsPaused
	if err := e.store.SetLobbyPaused(ctx, e.lobbyID, paused); err != nil {
		return false, fmt.Errorf("set paused: %w", err)
	}

	e.log.WithField("paused", paused).Info("pause toggled")
	e.emitUnsafe(EventPauseUpdate, PauseUpdate{Paused: paused})
	return paused, nil
}

// AddPoints adjusts a team's budget by delta. A result below zero, or below
// the team's own standing bid, is refused.
func (e *Engine) AddPoints(ctx context.Context, teamID int64, delta int) (*models.Team, error) {
	if err := e.lockOpen(); err != nil {
		return nil, err
	}
	defer e.mu.Unlock()

	if _, err := e.loadLobby(ctx); err != nil {
		return nil, err
	}
	team, err := e.loadTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if team.RemainingPoints+delta < 0 {
		return nil, reject(ErrInsufficientPoints, "%s has %d points; cannot apply %d", team.Name, team.RemainingPoints, delta)
	}
	st, err := e.loadState(ctx)
	if err != nil {
		return nil, err
	}
	// the standing bid must stay payable
	if st.CurrentHighestBidderTeamID != nil && *st.CurrentHighestBidderTeamID == teamID &&
		st.CurrentHighestBid != nil && team.RemainingPoints+delta < *st.CurrentHighestBid {
		return nil, reject(ErrInsufficientPoints, "%s holds the standing bid of %d; cannot apply %d", team.Name, *st.CurrentHighestBid, delta)
	}
	updated, err := e.store.AddTeamPoints(ctx, teamID, delta)
	if err != nil {
		return nil, fmt.Errorf("add points: %w", err)
	}

	e.log.WithFields(logrus.Fields{"team": teamID, "delta": delta}).Info("points adjusted")
	e.emitUnsafe(EventTeamUpdate, TeamUpdate{
		TeamID:          updated.ID,
		TeamName:        updated.Name,
		RemainingPoints: updated.RemainingPoints,
	})
	return updated, nil
}

// Snapshot reads the lobby without taking the command lock.
func (e *Engine) Snapshot(ctx context.Context) (*Snapshot, error) {
	lobby, err := e.store.GetLobby(ctx, e.lobbyID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, reject(ErrLobbyNotFound, "lobby %s not found", e.lobbyID)
	}
	if err != nil {
		return nil, fmt.Errorf("load lobby %s: %w", e.lobbyID, err)
	}
	teams, err := e.store.ListTeams(ctx, e.lobbyID)
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	st, err := e.store.GetAuctionState(ctx, e.lobbyID)
	if err != nil {
		return nil, fmt.Errorf("load auction state: %w", err)
	}

	snap := &Snapshot{Lobby: *lobby, Teams: teams, State: *st}
	if st.CurrentPlayerID != nil {
		if p, err := e.store.GetPlayer(ctx, *st.CurrentPlayerID); err == nil {
			snap.CurrentPlayer = p
		} else if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("load current player: %w", err)
		}
	}
	if st.CurrentHighestBidderTeamID != nil {
		for i := range teams {
			if teams[i].ID == *st.CurrentHighestBidderTeamID {
				t := teams[i]
				snap.HighestBidder = &t
				break
			}
		}
	}
	return snap, nil
}

// BidHistory returns the accepted bids for a player, highest first.
func (e *Engine) BidHistory(ctx context.Context, playerID int64) ([]models.Bid, error) {
	if _, err := e.loadPlayer(ctx, playerID); err != nil {
		return nil, err
	}
	bids, err := e.store.ListBids(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("list bids: %w", err)
	}
	return bids, nil
}
