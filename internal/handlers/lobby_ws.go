// internal/handlers/lobby_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/auctionarena/internal/auth"
	"github.com/jason-s-yu/auctionarena/internal/broadcast"
	"github.com/jason-s-yu/auctionarena/internal/middleware"
)

// Subprotocol clients must request when opening the lobby websocket.
const Subprotocol = "auction"

const (
	pingInterval = 30 * time.Second
	pingTimeout  = 15 * time.Second
	writeTimeout = 5 * time.Second
)

// wsMessage is every server-to-client frame that is not a broadcast event.
type wsMessage struct {
	Type      string     `json:"type"`
	RequestID string     `json:"requestId,omitempty"`
	Command   string     `json:"command,omitempty"`
	Payload   any        `json:"payload,omitempty"`
	Error     *ErrorBody `json:"error,omitempty"`
}

// lobbyConn is one websocket client. Only writePump writes to the socket;
// everything else goes through out.
type lobbyConn struct {
	lobbyID string
	seat    *auth.SeatClaims
	remote  string
	out     chan wsMessage
	log     *logrus.Entry
}

func (lc *lobbyConn) send(ctx context.Context, msg wsMessage) {
	select {
	case lc.out <- msg:
	case <-ctx.Done():
	}
}

// wsOriginPatterns turns configured origins into the host patterns the
// websocket library expects.
func (s *Server) wsOriginPatterns() []string {
	if !s.Production || len(s.AllowedOrigins) == 0 {
		return []string{"*"}
	}
	patterns := make([]string, 0, len(s.AllowedOrigins))
	for _, o := range s.AllowedOrigins {
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			patterns = append(patterns, u.Host)
		} else {
			patterns = append(patterns, o)
		}
	}
	return patterns
}

// LobbyWSHandler streams a lobby's events and accepts auction commands.
// Authentication happens before the upgrade so failures are plain HTTP errors.
func (s *Server) LobbyWSHandler(w http.ResponseWriter, r *http.Request) {
	seat, err := s.authenticate(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	engine, err := s.Coordinator.Engine(r.Context(), seat.LobbyID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   []string{Subprotocol},
		OriginPatterns: s.wsOriginPatterns(),
	})
	if err != nil {
		s.Logger.Warnf("websocket accept error: %v", err)
		return
	}
	defer c.Close(websocket.StatusInternalError, "handler finished")

	if c.Subprotocol() != Subprotocol {
		c.Close(BadSubprotocolError, "client must speak the auction subprotocol")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// subscribe before the snapshot so no event falls between the two
	sub := s.Hub.Subscribe(seat.LobbyID, s.SubscriberBuffer)
	defer sub.Close()

	lc := &lobbyConn{
		lobbyID: seat.LobbyID,
		seat:    seat,
		remote:  r.RemoteAddr,
		out:     make(chan wsMessage, 16),
		log:     s.Logger.WithFields(logrus.Fields{"lobby": seat.LobbyID, "role": seat.Role}),
	}
	middleware.LogWebSocketConnect(s.Logger, lc.remote, lc.lobbyID, string(seat.Role))

	snap, err := engine.Snapshot(ctx)
	if err != nil {
		lc.log.WithError(err).Warn("snapshot failed")
		c.Close(websocket.StatusInternalError, "could not load lobby")
		return
	}
	lc.out <- wsMessage{Type: "snapshot", Payload: snap}

	go s.writePump(ctx, cancel, c, lc, sub)
	err = s.readPump(ctx, c, lc)

	middleware.LogWebSocketDisconnect(s.Logger, lc.remote, lc.lobbyID, err)
}

// readPump decodes commands until the connection ends. It returns nil on a
// normal close.
func (s *Server) readPump(ctx context.Context, c *websocket.Conn, lc *lobbyConn) error {
	for {
		typ, msg, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if typ != websocket.MessageText {
			lc.log.Warnf("ignoring non-text message type %d", typ)
			continue
		}

		var cmd Command
		if err := json.Unmarshal(msg, &cmd); err != nil {
			_, body, _ := classify(badRequest("invalid JSON format"))
			lc.send(ctx, wsMessage{Type: "error", Error: &body})
			continue
		}

		result, err := s.execute(ctx, lc.seat, cmd)
		if err != nil {
			_, body, ok := classify(err)
			if !ok {
				lc.log.WithError(err).WithField("command", cmd.Type).Error("command failed")
			}
			lc.send(ctx, wsMessage{Type: "error", RequestID: cmd.RequestID, Command: cmd.Type, Error: &body})
			continue
		}
		lc.send(ctx, wsMessage{Type: "ack", RequestID: cmd.RequestID, Command: cmd.Type, Payload: result})
	}
}

// writePump forwards lobby events and command replies, and pings the client.
func (s *Server) writePump(ctx context.Context, cancel context.CancelFunc, c *websocket.Conn, lc *lobbyConn, sub *broadcast.Subscription) {
	defer cancel()
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		var frame any
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C:
			if !ok {
				c.Close(LobbyClosedError, "lobby archived")
				return
			}
			frame = ev
		case msg := <-lc.out:
			frame = msg
		case <-ticker.C:
			pingCtx, pingCancel := context.WithTimeout(ctx, pingTimeout)
			err := c.Ping(pingCtx)
			pingCancel()
			if err != nil {
				lc.log.Warnf("failed to send ping: %v. Assuming disconnect.", err)
				return
			}
			continue
		}

		data, err := json.Marshal(frame)
		if err != nil {
			lc.log.Warnf("failed to marshal outgoing frame: %v", err)
			continue
		}
		writeCtx, writeCancel := context.WithTimeout(ctx, writeTimeout)
		err = c.Write(writeCtx, websocket.MessageText, data)
		writeCancel()
		if err != nil {
			lc.log.Warnf("failed to write to websocket: %v", err)
			return
		}
	}
}
