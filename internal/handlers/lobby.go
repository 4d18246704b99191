// internal/handlers/lobby.go
package handlers

import (
	"io"
	"net/http"
	"strings"

	"github.com/jason-s-yu/auctionarena/internal/lobby"
)

// CreateLobbyHandler creates a lobby with its teams and returns the host
// token. The token is also set as the seat_token cookie.
func (s *Server) CreateLobbyHandler(w http.ResponseWriter, r *http.Request) {
	var req lobby.CreateLobbyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	created, err := s.Coordinator.CreateLobby(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	setSeatCookie(w, created.HostToken)
	writeJSON(w, http.StatusCreated, created)
}

// JoinLobbyHandler seats a team owner and returns their bidding token.
func (s *Server) JoinLobbyHandler(w http.ResponseWriter, r *http.Request) {
	var req lobby.JoinRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	seat, err := s.Coordinator.JoinLobby(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	setSeatCookie(w, seat.Token)
	writeJSON(w, http.StatusOK, seat)
}

// WatchLobbyHandler returns a viewer token for the lobby's event stream.
func (s *Server) WatchLobbyHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	token, err := s.Coordinator.WatchLobby(r.Context(), lobbyParam(r), req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) HostDashboardHandler(w http.ResponseWriter, r *http.Request) {
	d, err := s.Coordinator.HostDashboard(r.Context(), lobbyParam(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// TeamDashboardHandler is open to the host and to the team itself.
func (s *Server) TeamDashboardHandler(w http.ResponseWriter, r *http.Request) {
	teamID, err := int64Param(r, "teamId")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !seatFrom(r.Context()).CanBidFor(teamID) {
		s.writeError(w, r, errForbidden)
		return
	}
	d, err := s.Coordinator.TeamDashboard(r.Context(), lobbyParam(r), teamID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) ListPlayersHandler(w http.ResponseWriter, r *http.Request) {
	players, err := s.Coordinator.ListPlayers(r.Context(), lobbyParam(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"players": players})
}

func (s *Server) AddPlayerHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Position string `json:"position"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.Coordinator.AddPlayer(r.Context(), lobbyParam(r), req.Name, req.Position)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// ImportPlayersHandler accepts either a text/csv body or JSON
// {"players_data": "..."} with one "name,position" per line.
func (s *Server) ImportPlayersHandler(w http.ResponseWriter, r *http.Request) {
	var data io.Reader = http.MaxBytesReader(w, r.Body, 1<<20)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var req struct {
			PlayersData string `json:"players_data"`
		}
		if err := decodeJSON(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		data = strings.NewReader(req.PlayersData)
	}
	players, err := s.Coordinator.ImportPlayers(r.Context(), lobbyParam(r), data)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"imported": players})
}

// ArchiveLobbyHandler ends the lobby. Connected websockets are closed.
func (s *Server) ArchiveLobbyHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.Coordinator.ArchiveLobby(r.Context(), lobbyParam(r)); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func setSeatCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     seatCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
