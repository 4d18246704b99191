package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jason-s-yu/auctionarena/internal/store"
	"github.com/jason-s-yu/auctionarena/internal/store/storetest"
)

func TestMemoryStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return New() })
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	s := New()
	l := storetest.NewLobby(t, s)
	team := storetest.NewTeam(t, s, l.ID, "Alpha", 50)
	p := storetest.NewPlayer(t, s, l.ID, "One")
	require.NoError(t, s.CommitSale(context.Background(), store.Sale{LobbyID: l.ID, PlayerID: p.ID, TeamID: team.ID, Price: 5}))

	got, err := s.GetPlayer(context.Background(), p.ID)
	require.NoError(t, err)
	*got.SoldPrice = 999

	again, err := s.GetPlayer(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, *again.SoldPrice)
}
