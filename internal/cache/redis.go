// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/auctionarena/internal/broadcast"
	"github.com/jason-s-yu/auctionarena/internal/models"
)

// DefaultQueueName is the Redis list (queue) name for auction action logs.
const DefaultQueueName = "auction_actions"

// ConnectRedis opens a client against addr/db and verifies it with a ping.
func ConnectRedis(ctx context.Context, addr string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// DefaultQueueBuffer is how many events may wait for Redis before new ones
// are dropped.
const DefaultQueueBuffer = 1024

// Pusher is the part of a Redis client the action queue writes with.
type Pusher interface {
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
}

// ActionQueue pushes every published auction event onto a Redis list for
// the historian. It implements broadcast.Publisher. Publish only buffers;
// Run does the Redis writes, so a slow Redis never holds up the caller.
type ActionQueue struct {
	rdb     Pusher
	queue   string
	timeout time.Duration
	logger  *logrus.Logger
	pending chan broadcast.Event

	// OnDrop, if set, is called for every event dropped on a full buffer.
	OnDrop func(ev broadcast.Event)
}

// NewActionQueue returns a publisher writing to queue (DefaultQueueName if empty).
func NewActionQueue(rdb Pusher, queue string, logger *logrus.Logger) *ActionQueue {
	if queue == "" {
		queue = DefaultQueueName
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ActionQueue{
		rdb:     rdb,
		queue:   queue,
		timeout: 2 * time.Second,
		logger:  logger,
		pending: make(chan broadcast.Event, DefaultQueueBuffer),
	}
}

// Record converts an engine event into the queued record.
func Record(ev broadcast.Event) (models.AuctionAction, error) {
	var payload map[string]interface{}
	raw, err := json.Marshal(ev.Payload)
	if err != nil {
		return models.AuctionAction{}, fmt.Errorf("failed to marshal event payload: %w", err)
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return models.AuctionAction{}, fmt.Errorf("event payload is not an object: %w", err)
	}
	return models.AuctionAction{
		LobbyID:    ev.LobbyID,
		Seq:        ev.Seq,
		ActionType: ev.Name,
		Payload:    payload,
		Timestamp:  ev.At.UnixMilli(),
	}, nil
}

// PushAction serializes the record to JSON and RPushes it onto the queue.
func (q *ActionQueue) PushAction(ctx context.Context, record models.AuctionAction) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal AuctionAction: %w", err)
	}
	if err := q.rdb.RPush(ctx, q.queue, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", q.queue, err)
	}
	return nil
}

// Publish buffers ev for Run. A full buffer drops the event.
func (q *ActionQueue) Publish(ev broadcast.Event) {
	select {
	case q.pending <- ev:
	default:
		q.logger.WithFields(logrus.Fields{"lobby": ev.LobbyID, "seq": ev.Seq}).Warn("action queue full, dropped event")
		if q.OnDrop != nil {
			q.OnDrop(ev)
		}
	}
}

// Run writes buffered events to Redis until ctx ends, then flushes what is
// already buffered.
func (q *ActionQueue) Run(ctx context.Context) {
	for {
		select {
		case ev := <-q.pending:
			q.push(ev)
		case <-ctx.Done():
			for {
				select {
				case ev := <-q.pending:
					q.push(ev)
				default:
					return
				}
			}
		}
	}
}

// push is best effort: failures are logged and the event is dropped.
func (q *ActionQueue) push(ev broadcast.Event) {
	record, err := Record(ev)
	if err != nil {
		q.logger.WithError(err).WithField("lobby", ev.LobbyID).Warn("skipping unqueueable event")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()
	if err := q.PushAction(ctx, record); err != nil {
		q.logger.WithError(err).WithFields(logrus.Fields{
			"lobby": ev.LobbyID,
			"event": ev.Name,
		}).Warn("failed to queue auction action")
	}
}
