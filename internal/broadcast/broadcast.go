// internal/broadcast/broadcast.go
package broadcast

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Event is one state change published to every viewer of a lobby.
type Event struct {
	LobbyID string    `json:"lobbyId"`
	Seq     int64     `json:"seq"` // per-lobby, assigned by the publishing engine
	Name    string    `json:"type"`
	Payload any       `json:"payload"`
	At      time.Time `json:"at"`
}

// Publisher delivers events. Implementations must not block the caller for
// long and must be safe for concurrent use.
type Publisher interface {
	Publish(ev Event)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ev Event)

func (f PublisherFunc) Publish(ev Event) { f(ev) }

// Fanout publishes to each publisher in order.
type Fanout []Publisher

func (f Fanout) Publish(ev Event) {
	for _, p := range f {
		if p != nil {
			p.Publish(ev)
		}
	}
}

// Subscription is a single viewer's buffered event stream for one lobby.
type Subscription struct {
	C <-chan Event

	ch      chan Event
	lobbyID string
	hub     *Hub
	once    sync.Once
}

// Close unsubscribes and closes C. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.remove(s)
	})
}

// Hub routes events to the subscriptions of their lobby. A subscriber whose
// buffer is full misses the event; the publisher never waits.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]map[*Subscription]struct{}
	logger *logrus.Logger

	// OnDrop, if set, is called for every event a slow subscriber missed.
	OnDrop func(ev Event)
}

// NewHub returns an empty hub.
func NewHub(logger *logrus.Logger) *Hub {
	return &Hub{
		subs:   make(map[string]map[*Subscription]struct{}),
		logger: logger,
	}
}

// Subscribe registers a new stream for lobbyID with the given buffer size.
func (h *Hub) Subscribe(lobbyID string, buffer int) *Subscription {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan Event, buffer)
	sub := &Subscription{C: ch, ch: ch, lobbyID: lobbyID, hub: h}

	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[lobbyID]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[lobbyID] = set
	}
	set[sub] = struct{}{}
	return sub
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.subs[sub.lobbyID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.subs, sub.lobbyID)
		}
	}
	close(sub.ch)
}

// Subscribers returns the number of live subscriptions for lobbyID.
func (h *Hub) Subscribers(lobbyID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[lobbyID])
}

// Publish delivers ev to every subscriber of ev.LobbyID without blocking.
// Sends happen under h.mu so a concurrent Close cannot close a channel mid-send.
func (h *Hub) Publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs[ev.LobbyID] {
		select {
		case sub.ch <- ev:
		default:
			h.logger.WithFields(logrus.Fields{
				"lobby": ev.LobbyID,
				"event": ev.Name,
				"seq":   ev.Seq,
			}).Warn("subscriber buffer full, dropped event")
			if h.OnDrop != nil {
				h.OnDrop(ev)
			}
		}
	}
}

// CloseLobby closes every subscription of lobbyID, ending their streams.
func (h *Hub) CloseLobby(lobbyID string) {
	h.mu.Lock()
	set := h.subs[lobbyID]
	delete(h.subs, lobbyID)
	h.mu.Unlock()

	for sub := range set {
		// mark closed so a later Close is a no-op
		sub.once.Do(func() { close(sub.ch) })
	}
}
