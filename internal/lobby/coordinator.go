// internal/lobby/coordinator.go

// Package lobby handles everything around an auction that is not bidding:
// creating a lobby with its teams, joining it, managing the player roster,
// the host and team dashboards, and archiving.
package lobby

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/auctionarena/internal/auction"
	"github.com/jason-s-yu/auctionarena/internal/auth"
	"github.com/jason-s-yu/auctionarena/internal/models"
	"github.com/jason-s-yu/auctionarena/internal/store"
)

var (
	// ErrInvalidRequest wraps every input validation failure.
	ErrInvalidRequest = errors.New("invalid lobby request")
	// ErrWrongPassword is returned when a lobby password does not match.
	ErrWrongPassword = errors.New("incorrect lobby password")
	// ErrNotRegistered is returned when no team in the lobby has the owner name.
	ErrNotRegistered = errors.New("owner is not registered in this lobby")
)

const codeAttempts = 3

// Coordinator serves lobby-level operations. Auction commands go through the
// engine returned by Engine.
type Coordinator struct {
	store    store.Store
	registry *auction.Registry
	signer   *auth.Signer
	log      *logrus.Logger
}

func NewCoordinator(s store.Store, registry *auction.Registry, signer *auth.Signer, logger *logrus.Logger) *Coordinator {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Coordinator{store: s, registry: registry, signer: signer, log: logger}
}

// Signer exposes the seat token signer for transport authentication.
func (c *Coordinator) Signer() *auth.Signer { return c.signer }

// Engine returns the live engine of an active lobby.
func (c *Coordinator) Engine(ctx context.Context, lobbyID string) (*auction.Engine, error) {
	return c.registry.Open(ctx, lobbyID)
}

// TeamSetup describes one team at lobby creation.
type TeamSetup struct {
	Name        string `json:"team_name"`
	OwnerName   string `json:"owner_name"`
	CaptainName string `json:"captain_name,omitempty"`
}

type CreateLobbyRequest struct {
	HostName          string      `json:"host_name"`
	GameName          string      `json:"game_name"`
	Password          string      `json:"password,omitempty"`
	TotalTeams        int         `json:"total_teams"`
	PlayersPerTeam    int         `json:"players_per_team"`
	PointsPerTeam     int         `json:"points_per_team"`
	MinPlayersPerTeam int         `json:"min_players_per_team"`
	MaxPlayersPerTeam int         `json:"max_players_per_team"`
	Teams             []TeamSetup `json:"teams"`
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

// Validate checks the request and fills TotalTeams when it was omitted.
func (r *CreateLobbyRequest) Validate() error {
	r.HostName = strings.TrimSpace(r.HostName)
	r.GameName = strings.TrimSpace(r.GameName)
	switch {
	case r.HostName == "":
		return invalid("host_name is required")
	case r.GameName == "":
		return invalid("game_name is required")
	case r.PointsPerTeam <= 0:
		return invalid("points_per_team must be positive")
	case r.MaxPlayersPerTeam <= 0:
		return invalid("max_players_per_team must be positive")
	case r.MinPlayersPerTeam < 0 || r.MinPlayersPerTeam > r.MaxPlayersPerTeam:
		return invalid("min_players_per_team must be between 0 and max_players_per_team")
	case len(r.Teams) == 0:
		return invalid("at least one team is required")
	}
	if r.TotalTeams == 0 {
		r.TotalTeams = len(r.Teams)
	}
	if r.TotalTeams != len(r.Teams) {
		return invalid("total_teams is %d but %d teams were given", r.TotalTeams, len(r.Teams))
	}
	if r.PlayersPerTeam == 0 {
		r.PlayersPerTeam = r.MaxPlayersPerTeam
	}

	owners := make(map[string]bool, len(r.Teams))
	for i := range r.Teams {
		t := &r.Teams[i]
		t.Name = strings.TrimSpace(t.Name)
		t.OwnerName = strings.TrimSpace(t.OwnerName)
		t.CaptainName = strings.TrimSpace(t.CaptainName)
		if t.Name == "" || t.OwnerName == "" {
			return invalid("team %d needs team_name and owner_name", i+1)
		}
		key := strings.ToLower(t.OwnerName)
		if owners[key] {
			return invalid("owner %q appears twice", t.OwnerName)
		}
		owners[key] = true
	}
	return nil
}

// CreatedLobby is returned to the host. HostToken authorizes host commands.
type CreatedLobby struct {
	Lobby     models.Lobby  `json:"lobby"`
	Teams     []models.Team `json:"teams"`
	HostToken string        `json:"host_token"`
}

// newLobbyCode returns 8 upper-case hex characters from a random UUID.
func newLobbyCode() string {
	return strings.ToUpper(uuid.NewString()[:8])
}

// CreateLobby persists a lobby and its teams, each starting with the full
// budget, and opens its auction engine.
func (c *Coordinator) CreateLobby(ctx context.Context, req CreateLobbyRequest) (*CreatedLobby, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	hash, err := auth.HashLobbyPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash lobby password: %w", err)
	}

	lobby := &models.Lobby{
		HostName:          req.HostName,
		GameName:          req.GameName,
		PasswordHash:      hash,
		TotalTeams:        req.TotalTeams,
		PlayersPerTeam:    req.PlayersPerTeam,
		PointsPerTeam:     req.PointsPerTeam,
		MinPlayersPerTeam: req.MinPlayersPerTeam,
		MaxPlayersPerTeam: req.MaxPlayersPerTeam,
		IsActive:          true,
	}
	for attempt := 1; ; attempt++ {
		lobby.ID = newLobbyCode()
		err = c.store.CreateLobby(ctx, lobby)
		if err == nil {
			break
		}
		if !errors.Is(err, store.ErrConflict) || attempt == codeAttempts {
			return nil, fmt.Errorf("create lobby: %w", err)
		}
	}

	out := &CreatedLobby{Teams: make([]models.Team, 0, len(req.Teams))}
	for _, setup := range req.Teams {
		team := &models.Team{
			LobbyID:         lobby.ID,
			Name:            setup.Name,
			OwnerName:       setup.OwnerName,
			CaptainName:     setup.CaptainName,
			RemainingPoints: req.PointsPerTeam,
		}
		if err := c.store.CreateTeam(ctx, team); err != nil {
			return nil, fmt.Errorf("create team %q: %w", setup.Name, err)
		}
		out.Teams = append(out.Teams, *team)
	}

	if _, err := c.registry.Open(ctx, lobby.ID); err != nil {
		return nil, err
	}
	token, err := c.signer.CreateSeatToken(lobby.ID, auth.RoleHost, 0)
	if err != nil {
		return nil, fmt.Errorf("sign host token: %w", err)
	}

	stored, err := c.store.GetLobby(ctx, lobby.ID)
	if err != nil {
		return nil, fmt.Errorf("reload lobby: %w", err)
	}
	out.Lobby = *stored
	out.HostToken = token

	c.log.WithFields(logrus.Fields{"lobby": lobby.ID, "teams": len(out.Teams)}).Infof("lobby %q created by %s", lobby.GameName, lobby.HostName)
	return out, nil
}

func (c *Coordinator) loadLobby(ctx context.Context, lobbyID string) (*models.Lobby, error) {
	l, err := c.store.GetLobby(ctx, lobbyID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, &auction.Error{Kind: auction.KindNotFound, Reason: auction.ReasonLobbyNotFound, Message: fmt.Sprintf("lobby %s not found", lobbyID)}
	}
	if err != nil {
		return nil, fmt.Errorf("load lobby %s: %w", lobbyID, err)
	}
	return l, nil
}

func (c *Coordinator) loadActiveLobby(ctx context.Context, lobbyID string) (*models.Lobby, error) {
	l, err := c.loadLobby(ctx, lobbyID)
	if err != nil {
		return nil, err
	}
	if !l.IsActive {
		return nil, &auction.Error{Kind: auction.KindInvalidTransition, Reason: auction.ReasonLobbyClosed, Message: fmt.Sprintf("lobby %s is closed", lobbyID)}
	}
	return l, nil
}

func (c *Coordinator) checkPassword(l *models.Lobby, password string) error {
	ok, err := auth.CheckLobbyPassword(password, l.PasswordHash)
	if err != nil {
		return fmt.Errorf("check lobby password: %w", err)
	}
	if !ok {
		return ErrWrongPassword
	}
	return nil
}

type JoinRequest struct {
	LobbyID   string `json:"lobby_id"`
	OwnerName string `json:"owner_name"`
	Password  string `json:"password,omitempty"`
}

// Seat is a joined team and its bidding token.
type Seat struct {
	LobbyID string      `json:"lobby_id"`
	Team    models.Team `json:"team"`
	Token   string      `json:"token"`
}

// JoinLobby resolves a team by owner name and issues its seat token.
func (c *Coordinator) JoinLobby(ctx context.Context, req JoinRequest) (*Seat, error) {
	req.LobbyID = strings.ToUpper(strings.TrimSpace(req.LobbyID))
	req.OwnerName = strings.TrimSpace(req.OwnerName)
	if req.LobbyID == "" || req.OwnerName == "" {
		return nil, invalid("lobby_id and owner_name are required")
	}
	l, err := c.loadActiveLobby(ctx, req.LobbyID)
	if err != nil {
		return nil, err
	}
	if err := c.checkPassword(l, req.Password); err != nil {
		return nil, err
	}
	team, err := c.store.GetTeamByOwner(ctx, l.ID, req.OwnerName)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotRegistered
	}
	if err != nil {
		return nil, fmt.Errorf("find team: %w", err)
	}

	token, err := c.signer.CreateSeatToken(l.ID, auth.RoleTeam, team.ID)
	if err != nil {
		return nil, fmt.Errorf("sign team token: %w", err)
	}
	c.log.WithFields(logrus.Fields{"lobby": l.ID, "team": team.ID}).Infof("%s joined", team.OwnerName)
	return &Seat{LobbyID: l.ID, Team: *team, Token: token}, nil
}

// WatchLobby issues a read-only viewer token.
func (c *Coordinator) WatchLobby(ctx context.Context, lobbyID, password string) (string, error) {
	l, err := c.loadLobby(ctx, strings.ToUpper(strings.TrimSpace(lobbyID)))
	if err != nil {
		return "", err
	}
	if err := c.checkPassword(l, password); err != nil {
		return "", err
	}
	token, err := c.signer.CreateSeatToken(l.ID, auth.RoleViewer, 0)
	if err != nil {
		return "", fmt.Errorf("sign viewer token: %w", err)
	}
	return token, nil
}

// ArchiveLobby closes the lobby for good and retires its engine.
func (c *Coordinator) ArchiveLobby(ctx context.Context, lobbyID string) error {
	return c.registry.Retire(ctx, lobbyID)
}
