// internal/lobby/roster.go
package lobby

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/auctionarena/internal/models"
)

// AddPlayer appends a player to the end of the lobby's roster.
func (c *Coordinator) AddPlayer(ctx context.Context, lobbyID, name, position string) (*models.Player, error) {
	name, position = strings.TrimSpace(name), strings.TrimSpace(position)
	if name == "" {
		return nil, invalid("player name is required")
	}
	l, err := c.loadActiveLobby(ctx, lobbyID)
	if err != nil {
		return nil, err
	}
	p := &models.Player{LobbyID: l.ID, Name: name, Position: position}
	if err := c.store.CreatePlayer(ctx, p); err != nil {
		return nil, fmt.Errorf("create player: %w", err)
	}
	return p, nil
}

// ImportPlayers reads "name,position" lines and appends each player in
// order. Blank lines and lines with fewer than two fields are skipped.
func (c *Coordinator) ImportPlayers(ctx context.Context, lobbyID string, data io.Reader) ([]models.Player, error) {
	l, err := c.loadActiveLobby(ctx, lobbyID)
	if err != nil {
		return nil, err
	}

	r := csv.NewReader(data)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	r.LazyQuotes = true

	var imported []models.Player
	skipped := 0
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return imported, invalid("line %d: %v", len(imported)+skipped+1, err)
		}
		if len(record) < 2 || strings.TrimSpace(record[0]) == "" {
			skipped++
			continue
		}
		p := &models.Player{
			LobbyID:  l.ID,
			Name:     strings.TrimSpace(record[0]),
			Position: strings.TrimSpace(record[1]),
		}
		if err := c.store.CreatePlayer(ctx, p); err != nil {
			return imported, fmt.Errorf("create player %q: %w", p.Name, err)
		}
		imported = append(imported, *p)
	}

	c.log.WithFields(logrus.Fields{"lobby": l.ID, "imported": len(imported), "skipped": skipped}).Info("players imported")
	return imported, nil
}

// ListPlayers returns the lobby roster in display order.
func (c *Coordinator) ListPlayers(ctx context.Context, lobbyID string) ([]models.Player, error) {
	l, err := c.loadLobby(ctx, lobbyID)
	if err != nil {
		return nil, err
	}
	players, err := c.store.ListPlayers(ctx, l.ID)
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	return players, nil
}
