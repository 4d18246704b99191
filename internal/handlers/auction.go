// internal/handlers/auction.go
package handlers

import (
	"context"
	"net/http"

	"github.com/jason-s-yu/auctionarena/internal/auth"
)

// Command names, shared by the HTTP routes and the lobby websocket.
const (
	CommandStart   = "start"
	CommandBid     = "bid"
	CommandConfirm = "confirm"
	CommandSkip    = "skip"
	CommandPause   = "pause"
	CommandPoints  = "points"
)

// Command is an auction command as sent by a client.
type Command struct {
	Type      string `json:"type,omitempty"`
	RequestID string `json:"requestId,omitempty"`
	PlayerID  int64  `json:"playerId,omitempty"`
	TeamID    int64  `json:"teamId,omitempty"`
	Amount    int    `json:"amount,omitempty"`
	Delta     int    `json:"delta,omitempty"`
}

// execute authorizes cmd for the seat and runs it on the lobby's engine.
func (s *Server) execute(ctx context.Context, seat *auth.SeatClaims, cmd Command) (any, error) {
	switch cmd.Type {
	case CommandBid:
		if cmd.PlayerID == 0 || cmd.TeamID == 0 {
			return nil, badRequest("playerId and teamId are required")
		}
		if !seat.CanBidFor(cmd.TeamID) {
			return nil, errForbidden
		}
	case CommandStart, CommandConfirm:
		if cmd.PlayerID == 0 {
			return nil, badRequest("playerId is required")
		}
		fallthrough
	case CommandSkip, CommandPause:
		if !seat.IsHost() {
			return nil, errForbidden
		}
	case CommandPoints:
		if cmd.TeamID == 0 {
			return nil, badRequest("teamId is required")
		}
		if !seat.IsHost() {
			return nil, errForbidden
		}
	default:
		return nil, badRequest("unknown command %q", cmd.Type)
	}

	e, err := s.Coordinator.Engine(ctx, seat.LobbyID)
	if err != nil {
		return nil, err
	}

	switch cmd.Type {
	case CommandStart:
		p, err := e.StartPlayerAuction(ctx, cmd.PlayerID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"player": p}, nil
	case CommandBid:
		b, err := e.PlaceBid(ctx, cmd.PlayerID, cmd.TeamID, cmd.Amount)
		if err != nil {
			return nil, err
		}
		return map[string]any{"bid": b}, nil
	case CommandConfirm:
		sale, err := e.ConfirmSale(ctx, cmd.PlayerID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"sale": sale}, nil
	case CommandSkip:
		if err := e.SkipPlayer(ctx); err != nil {
			return nil, err
		}
		return map[string]any{"skipped": true}, nil
	case CommandPause:
		paused, err := e.TogglePause(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{"paused": paused}, nil
	default: // CommandPoints
		team, err := e.AddPoints(ctx, cmd.TeamID, cmd.Delta)
		if err != nil {
			return nil, err
		}
		return map[string]any{"team": team}, nil
	}
}

// commandHandler serves POST /lobby/{lobbyId}/auction/{name}.
func (s *Server) commandHandler(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var cmd Command
		if err := decodeJSON(w, r, &cmd); err != nil {
			s.writeError(w, r, err)
			return
		}
		cmd.Type = name

		result, err := s.execute(r.Context(), seatFrom(r.Context()), cmd)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// AuctionStateHandler returns a snapshot of the lobby's auction.
func (s *Server) AuctionStateHandler(w http.ResponseWriter, r *http.Request) {
	e, err := s.Coordinator.Engine(r.Context(), lobbyParam(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	snap, err := e.Snapshot(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// BidHistoryHandler lists the accepted bids for a player, highest first.
func (s *Server) BidHistoryHandler(w http.ResponseWriter, r *http.Request) {
	playerID, err := int64Param(r, "playerId")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	e, err := s.Coordinator.Engine(r.Context(), lobbyParam(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	bids, err := e.BidHistory(r.Context(), playerID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bids": bids})
}
