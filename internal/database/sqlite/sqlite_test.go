package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jason-s-yu/auctionarena/internal/store"
	"github.com/jason-s-yu/auctionarena/internal/store/storetest"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "auction.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return newTestStore(t) })
}

func TestSQLiteStoreReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "auction.db")
	s, err := New(path)
	require.NoError(t, err)
	l := storetest.NewLobby(t, s)
	team := storetest.NewTeam(t, s, l.ID, "Alpha", 100)
	require.NoError(t, s.Close())

	s, err = New(path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.GetTeam(context.Background(), team.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alpha", got.Name)
	assert.Equal(t, 100, got.RemainingPoints)
}

func TestSQLiteStoreRefusesNegativeBalance(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	l := storetest.NewLobby(t, s)
	team := storetest.NewTeam(t, s, l.ID, "Alpha", 30)
	p := storetest.NewPlayer(t, s, l.ID, "One")

	_, err := s.AddTeamPoints(ctx, team.ID, -31)
	require.Error(t, err)

	err = s.CommitSale(ctx, store.Sale{LobbyID: l.ID, PlayerID: p.ID, TeamID: team.ID, Price: 40})
	require.Error(t, err)

	got, err := s.GetTeam(ctx, team.ID)
	require.NoError(t, err)
	assert.Equal(t, 30, got.RemainingPoints)
	assert.Equal(t, 0, got.PlayerCount)
	sold, err := s.GetPlayer(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, sold.IsAuctioned)
}
