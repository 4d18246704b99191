// internal/auth/session.go
package auth

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Role is what a seat token lets its holder do inside one lobby.
type Role string

const (
	RoleHost   Role = "host"
	RoleTeam   Role = "team"
	RoleViewer Role = "viewer"
)

// ErrInvalidToken covers every reason a seat token is refused.
var ErrInvalidToken = errors.New("invalid seat token")

// SeatClaims bind a token to a lobby and, for team seats, to one team.
type SeatClaims struct {
	LobbyID string `json:"lobby"`
	Role    Role   `json:"role"`
	TeamID  int64  `json:"team,omitempty"`
	jwt.RegisteredClaims
}

// IsHost reports whether the seat may run host commands.
func (c *SeatClaims) IsHost() bool { return c.Role == RoleHost }

// CanBidFor reports whether the seat may bid on behalf of teamID.
func (c *SeatClaims) CanBidFor(teamID int64) bool {
	return c.Role == RoleHost || (c.Role == RoleTeam && c.TeamID == teamID)
}

// Signer issues and verifies EdDSA seat tokens.
type Signer struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
	ttl        time.Duration // 0 means tokens never expire
}

// NewSigner generates a fresh ed25519 key pair. Tokens do not survive a
// restart.
func NewSigner(ttl time.Duration) (*Signer, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate ed25519 key pair: %w", err)
	}
	return &Signer{privateKey: priv, publicKey: pub, ttl: ttl}, nil
}

// NewSignerFromFiles reads raw ed25519 keys from disk.
func NewSignerFromFiles(privatePath, publicPath string, ttl time.Duration) (*Signer, error) {
	privateKeyData, err := os.ReadFile(privatePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key file: %w", err)
	}
	publicKeyData, err := os.ReadFile(publicPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read public key file: %w", err)
	}
	if len(privateKeyData) != ed25519.PrivateKeySize || len(publicKeyData) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("ed25519 key files have the wrong size")
	}
	return &Signer{
		privateKey: ed25519.PrivateKey(privateKeyData),
		publicKey:  ed25519.PublicKey(publicKeyData),
		ttl:        ttl,
	}, nil
}

// CreateSeatToken signs a token for lobbyID. teamID is only meaningful for
// RoleTeam.
func (s *Signer) CreateSeatToken(lobbyID string, role Role, teamID int64) (string, error) {
	now := time.Now()
	claims := SeatClaims{
		LobbyID: lobbyID,
		Role:    role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  string(role),
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if role == RoleTeam {
		claims.TeamID = teamID
		claims.Subject = fmt.Sprintf("team:%d", teamID)
	}
	if s.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(s.ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(s.privateKey)
}

// ParseSeatToken verifies a token and returns its claims.
func (s *Signer) ParseSeatToken(tokenString string) (*SeatClaims, error) {
	claims := &SeatClaims{}
	t, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.publicKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !t.Valid {
		return nil, ErrInvalidToken
	}

	switch claims.Role {
	case RoleHost, RoleViewer:
	case RoleTeam:
		if claims.TeamID == 0 {
			return nil, fmt.Errorf("%w: team seat without team", ErrInvalidToken)
		}
	default:
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, claims.Role)
	}
	if claims.LobbyID == "" {
		return nil, fmt.Errorf("%w: missing lobby", ErrInvalidToken)
	}
	return claims, nil
}
