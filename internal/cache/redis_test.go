package cache

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jason-s-yu/auctionarena/internal/broadcast"
	"github.com/jason-s-yu/auctionarena/internal/models"
)

func TestRecordFromEvent(t *testing.T) {
	at := time.UnixMilli(1_700_000_000_123)
	ev := broadcast.Event{
		LobbyID: "ABCD1234",
		Seq:     7,
		Name:    "bid-update",
		Payload: struct {
			PlayerID int64 `json:"playerId"`
			Amount   int   `json:"amount"`
		}{PlayerID: 3, Amount: 40},
		At: at,
	}

	rec, err := Record(ev)
	require.NoError(t, err)
	assert.Equal(t, "ABCD1234", rec.LobbyID)
	assert.Equal(t, int64(7), rec.Seq)
	assert.Equal(t, "bid-update", rec.ActionType)
	assert.Equal(t, float64(40), rec.Payload["amount"])
	assert.Equal(t, at.UnixMilli(), rec.Timestamp)
}

func TestRecordRejectsNonObjectPayload(t *testing.T) {
	_, err := Record(broadcast.Event{LobbyID: "L", Payload: 5})
	assert.Error(t, err)
}

func TestNewActionQueueDefaultsName(t *testing.T) {
	q := NewActionQueue(nil, "", nil)
	assert.Equal(t, DefaultQueueName, q.queue)
}

// fakePusher records RPush calls. When gate is set every push waits on it.
type fakePusher struct {
	mu     sync.Mutex
	gate   chan struct{}
	pushed []models.AuctionAction
}

func (p *fakePusher) RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	if p.gate != nil {
		<-p.gate
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, v := range values {
		var a models.AuctionAction
		if err := json.Unmarshal(v.([]byte), &a); err != nil {
			return redis.NewIntResult(0, err)
		}
		p.pushed = append(p.pushed, a)
	}
	return redis.NewIntResult(int64(len(p.pushed)), nil)
}

func (p *fakePusher) seqs() []int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]int64, 0, len(p.pushed))
	for _, a := range p.pushed {
		out = append(out, a.Seq)
	}
	return out
}

func bidEvent(seq int64) broadcast.Event {
	return broadcast.Event{
		LobbyID: "ABCD1234",
		Seq:     seq,
		Name:    "bid-update",
		Payload: map[string]int{"amount": int(seq) * 10},
		At:      time.Now(),
	}
}

func TestPublishDoesNotWaitForRedis(t *testing.T) {
	pusher := &fakePusher{gate: make(chan struct{})}
	q := NewActionQueue(pusher, "", nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		q.Run(ctx)
	}()

	published := make(chan struct{})
	go func() {
		defer close(published)
		for seq := int64(1); seq <= 3; seq++ {
			q.Publish(bidEvent(seq))
		}
	}()
	select {
	case <-published:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a stalled Redis")
	}

	close(pusher.gate)
	require.Eventually(t, func() bool { return len(pusher.seqs()) == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []int64{1, 2, 3}, pusher.seqs())

	cancel()
	<-done
}

func TestPublishDropsWhenBufferFull(t *testing.T) {
	q := NewActionQueue(&fakePusher{}, "", nil)
	dropped := 0
	q.OnDrop = func(broadcast.Event) { dropped++ }

	for seq := int64(1); seq <= DefaultQueueBuffer+2; seq++ {
		q.Publish(bidEvent(seq))
	}
	assert.Equal(t, 2, dropped)
}

func TestRunFlushesBufferedOnCancel(t *testing.T) {
	pusher := &fakePusher{}
	q := NewActionQueue(pusher, "", nil)
	q.Publish(bidEvent(1))
	q.Publish(bidEvent(2))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	q.Run(ctx)

	assert.Equal(t, []int64{1, 2}, pusher.seqs())
}
