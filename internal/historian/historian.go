// Package historian drains the Redis action queue into durable storage and
// deactivates lobbies that have gone quiet.
package historian

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/auctionarena/internal/models"
)

// Source is the part of a Redis client the historian reads from.
type Source interface {
	BLPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
}

// Sink persists actions and flips idle lobbies inactive.
type Sink interface {
	InsertAuctionActions(ctx context.Context, actions []models.AuctionAction) error
	DeactivateIdleLobby(ctx context.Context, lobbyID string) (bool, error)
}

// Options tunes the service. Zero values take the defaults below.
type Options struct {
	Queue         string
	BatchSize     int
	FlushInterval time.Duration
	Inactivity    time.Duration // a lobby with no action for this long is deactivated
	CheckInterval time.Duration
	PopTimeout    time.Duration
	Logger        *logrus.Logger
}

func (o *Options) setDefaults() {
	if o.Queue == "" {
		o.Queue = "auction_actions"
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 20
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = 500 * time.Millisecond
	}
	if o.Inactivity <= 0 {
		o.Inactivity = 30 * time.Minute
	}
	if o.CheckInterval <= 0 {
		o.CheckInterval = time.Minute
	}
	if o.PopTimeout <= 0 {
		o.PopTimeout = time.Second
	}
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
}

// Service captures auction actions from the queue in batches.
type Service struct {
	src  Source
	sink Sink
	opts Options
	log  *logrus.Entry
	now  func() time.Time

	lastActivity sync.Map // lobby ID -> time.Time of its last queued action

	batchMu sync.Mutex
	batch   []models.AuctionAction
}

// New builds a Service reading from src and writing to sink.
func New(src Source, sink Sink, opts Options) *Service {
	opts.setDefaults()
	return &Service{
		src:   src,
		sink:  sink,
		opts:  opts,
		log:   opts.Logger.WithField("component", "historian"),
		now:   time.Now,
		batch: make([]models.AuctionAction, 0, opts.BatchSize),
	}
}

// Run starts the queue and inactivity loops and blocks until ctx ends. The
// pending batch is flushed on the way out.
func (s *Service) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.readLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		s.inactivityLoop(ctx)
	}()

	s.log.WithField("queue", s.opts.Queue).Info("historian started")
	wg.Wait()

	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.Flush(flushCtx)
	s.log.Info("historian stopped")
	return err
}

// readLoop pops actions with a bounded BLPop so the flush ticker and ctx are
// both observed between pops.
func (s *Service) readLoop(ctx context.Context) {
	ticker := time.NewTicker(s.opts.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Flush(ctx); err != nil {
				s.log.WithError(err).Error("flush failed")
			}
		default:
			res, err := s.src.BLPop(ctx, s.opts.PopTimeout, s.opts.Queue).Result()
			if err != nil {
				if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
					s.log.WithError(err).Error("BLPop failed")
					time.Sleep(s.opts.PopTimeout)
				}
				continue
			}
			// res[0] is the queue name and res[1] the payload
			if len(res) < 2 {
				continue
			}
			s.handle(ctx, res[1])
		}
	}
}

// handle decodes one queued payload and adds it to the batch.
func (s *Service) handle(ctx context.Context, payload string) {
	var action models.AuctionAction
	if err := json.Unmarshal([]byte(payload), &action); err != nil {
		s.log.WithError(err).Warn("invalid action record")
		return
	}
	if action.LobbyID == "" {
		s.log.Warn("action record without lobby_id")
		return
	}
	s.lastActivity.Store(action.LobbyID, s.now())

	s.batchMu.Lock()
	defer s.batchMu.Unlock()
	s.batch = append(s.batch, action)
	if len(s.batch) >= s.opts.BatchSize {
		if err := s.flushLocked(ctx); err != nil {
			s.log.WithError(err).Error("flush failed")
		}
	}
}

// Flush writes the pending batch. On failure the actions stay queued for
// the next attempt.
func (s *Service) Flush(ctx context.Context) error {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()
	return s.flushLocked(ctx)
}

func (s *Service) flushLocked(ctx context.Context) error {
	if len(s.batch) == 0 {
		return nil
	}
	pending := make([]models.AuctionAction, len(s.batch))
	copy(pending, s.batch)

	if err := s.sink.InsertAuctionActions(ctx, pending); err != nil {
		return err
	}
	s.batch = s.batch[:0]
	s.log.Debugf("flushed %d actions", len(pending))
	return nil
}

// Pending returns the number of actions waiting for a flush.
func (s *Service) Pending() int {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()
	return len(s.batch)
}

func (s *Service) inactivityLoop(ctx context.Context) {
	ticker := time.NewTicker(s.opts.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep deactivates every tracked lobby idle for longer than Inactivity.
func (s *Service) sweep(ctx context.Context) {
	now := s.now()
	s.lastActivity.Range(func(key, val any) bool {
		lobbyID, ok1 := key.(string)
		last, ok2 := val.(time.Time)
		if !ok1 || !ok2 || now.Sub(last) <= s.opts.Inactivity {
			return true
		}
		changed, err := s.sink.DeactivateIdleLobby(ctx, lobbyID)
		if err != nil {
			s.log.WithError(err).WithField("lobby", lobbyID).Error("failed to deactivate idle lobby")
			return true
		}
		s.lastActivity.Delete(lobbyID)
		if changed {
			s.log.WithField("lobby", lobbyID).Info("deactivated lobby after inactivity")
		}
		return true
	})
}
