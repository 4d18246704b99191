package auction

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jason-s-yu/auctionarena/internal/store"
)

// Registry owns the live engines, one per active lobby. Engines are created
// on first use and retired when their lobby is archived.
type Registry struct {
	mu      sync.Mutex
	engines map[string]*Engine
	opts    Options
	closed  bool

	// OnRetire, if set, runs after a lobby's engine has drained.
	OnRetire func(lobbyID string)
}

// NewRegistry returns an empty registry whose engines share opts.
func NewRegistry(opts Options) *Registry {
	return &Registry{
		engines: make(map[string]*Engine),
		opts:    opts,
	}
}

// Open returns the lobby's engine, creating it if the lobby exists and is
// still active.
func (r *Registry) Open(ctx context.Context, lobbyID string) (*Engine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, reject(ErrEngineRetired, "auction service is shutting down")
	}
	if e, ok := r.engines[lobbyID]; ok {
		return e, nil
	}

	lobby, err := r.opts.Store.GetLobby(ctx, lobbyID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, reject(ErrLobbyNotFound, "lobby %s not found", lobbyID)
	}
	if err != nil {
		return nil, fmt.Errorf("load lobby %s: %w", lobbyID, err)
	}
	if !lobby.IsActive {
		return nil, reject(ErrLobbyClosed, "lobby %s is closed", lobbyID)
	}

	e := NewEngine(lobbyID, r.opts)
	r.engines[lobbyID] = e
	r.opts.Metrics.EngineOpened()
	if r.opts.Logger != nil {
		r.opts.Logger.WithField("lobby", lobbyID).Debug("auction engine opened")
	}
	return e, nil
}

// Get returns the lobby's engine if one is live.
func (r *Registry) Get(lobbyID string) (*Engine, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.engines[lobbyID]
	return e, ok
}

// Len reports the number of live engines.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.engines)
}

// Retire archives the lobby and stops its engine. In-flight commands finish
// first; later commands on a stale handle fail with ErrEngineRetired. The
// lobby is marked inactive while r.mu is held so a concurrent Open cannot
// register a fresh engine for it.
func (r *Registry) Retire(ctx context.Context, lobbyID string) error {
	r.mu.Lock()
	err := r.opts.Store.SetLobbyActive(ctx, lobbyID, false)
	missing := errors.Is(err, store.ErrNotFound)
	if err != nil && !missing {
		r.mu.Unlock()
		return fmt.Errorf("archive lobby %s: %w", lobbyID, err)
	}
	e, ok := r.engines[lobbyID]
	delete(r.engines, lobbyID)
	r.mu.Unlock()

	if ok {
		e.Close()
		r.opts.Metrics.EngineClosed()
	}
	if missing && !ok {
		return reject(ErrLobbyNotFound, "lobby %s not found", lobbyID)
	}

	if r.opts.Logger != nil {
		r.opts.Logger.WithField("lobby", lobbyID).Info("lobby archived")
	}
	if r.OnRetire != nil {
		r.OnRetire(lobbyID)
	}
	return nil
}

// Reap retires the live engines whose lobby was deactivated behind the
// registry's back, e.g. by the historian's idle sweep. It returns how many
// were retired.
func (r *Registry) Reap(ctx context.Context) (int, error) {
	r.mu.Lock()
	ids := make([]string, 0, len(r.engines))
	for id := range r.engines {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	reaped := 0
	for _, id := range ids {
		lobby, err := r.opts.Store.GetLobby(ctx, id)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return reaped, fmt.Errorf("check lobby %s: %w", id, err)
		}
		if err == nil && lobby.IsActive {
			continue
		}
		if err := r.Retire(ctx, id); err != nil {
			return reaped, err
		}
		reaped++
	}
	return reaped, nil
}

// Close stops every engine. Open fails afterwards.
func (r *Registry) Close() {
	r.mu.Lock()
	engines := r.engines
	r.engines = make(map[string]*Engine)
	r.closed = true
	r.mu.Unlock()

	for _, e := range engines {
		e.Close()
		r.opts.Metrics.EngineClosed()
	}
}
