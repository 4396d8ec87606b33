package server

import (
	"log/slog"
	"sync"

	"github.com/cowave/cowave/pkg/awareness"
	"github.com/cowave/cowave/pkg/crdt"
	"github.com/cowave/cowave/pkg/protocol"
	"github.com/cowave/cowave/pkg/room"
	"github.com/cowave/cowave/pkg/store"
)

// Registry maps room names to running room actors, creating them lazily
// on first use. Exactly one actor exists per active name; a created
// actor hydrates from the store before its mailbox drains, so requests
// forwarded immediately after creation still observe hydrated state.
//
// Idle actors are never evicted here; that is a host concern.
type Registry struct {
	mu      sync.RWMutex
	rooms   map[string]*room.Room
	store   store.Store
	logger  *slog.Logger
	metrics *Metrics
}

// NewRegistry creates a registry over the given store. metrics may be
// nil.
func NewRegistry(st store.Store, logger *slog.Logger, metrics *Metrics) *Registry {
	if logger == nil {
		logger = slog.Default().With("component", "registry")
	}
	return &Registry{
		rooms:   make(map[string]*room.Room),
		store:   st,
		logger:  logger,
		metrics: metrics,
	}
}

// GetOrCreate returns the actor for name, starting one if needed.
func (g *Registry) GetOrCreate(name string) *room.Room {
	g.mu.RLock()
	r, ok := g.rooms[name]
	g.mu.RUnlock()
	if ok {
		return r
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if r, ok := g.rooms[name]; ok {
		return r
	}

	r = room.New(name, room.Config{
		Store:     g.store,
		Doc:       crdt.NewDoc(),
		Awareness: awareness.New(),
		Logger:    g.logger,
		Hooks:     g.roomHooks(),
	})
	g.rooms[name] = r
	go r.Run()

	if g.metrics != nil {
		g.metrics.RoomsActive.Set(float64(len(g.rooms)))
	}
	g.logger.Info("room created", "room", name)
	return r
}

// Len returns the number of active rooms.
func (g *Registry) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.rooms)
}

// Close stops every actor.
func (g *Registry) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()

	for name, r := range g.rooms {
		r.Close()
		delete(g.rooms, name)
	}
	if g.metrics != nil {
		g.metrics.RoomsActive.Set(0)
	}
}

func (g *Registry) roomHooks() *room.Hooks {
	if g.metrics == nil {
		return nil
	}
	return &room.Hooks{
		Message: func(mt protocol.MessageType) {
			g.metrics.MessagesTotal.WithLabelValues(mt.String()).Inc()
		},
		Broadcast:    func(int) { g.metrics.BroadcastsTotal.Inc() },
		SendFailure:  func() { g.metrics.SendFailures.Inc() },
		PersistError: func() { g.metrics.PersistFailures.Inc() },
	}
}
