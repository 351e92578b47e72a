package app

import (
	"context"
	"sync"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

type connEntry struct {
	Signal core.SignalConnection
	Token  string
	Cancel context.CancelFunc
	Rooms  map[domain.RoomID]struct{}
}

// Registry maps live connection ids to their transport.
// Relay only ever takes the read lock.
type Registry struct {
	mu    sync.RWMutex
	conns map[domain.UserID]*connEntry
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[domain.UserID]*connEntry)}
}

func (r *Registry) Bind(id domain.UserID, sig core.SignalConnection, token string, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[id] = &connEntry{
		Signal: sig,
		Token:  token,
		Cancel: cancel,
		Rooms:  make(map[domain.RoomID]struct{}),
	}
	log.Info().Str("module", "app.registry").Str("user_id", string(id)).Msg("bound connection")
}

func (r *Registry) Signal(id domain.UserID) (core.SignalConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.conns[id]; ok {
		return e.Signal, true
	}
	return nil, false
}

func (r *Registry) Token(id domain.UserID) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.conns[id]; ok {
		return e.Token
	}
	return ""
}

// Unbind forgets the connection and returns the rooms it was associated with.
func (r *Registry) Unbind(id domain.UserID) ([]domain.RoomID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[id]
	if !ok {
		return nil, false
	}
	delete(r.conns, id)
	rooms := make([]domain.RoomID, 0, len(e.Rooms))
	for room := range e.Rooms {
		rooms = append(rooms, room)
	}
	log.Info().Str("module", "app.registry").Str("user_id", string(id)).Int("rooms", len(rooms)).Msg("unbind connection")
	return rooms, true
}

func (r *Registry) AddRoom(id domain.UserID, room domain.RoomID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[id]
	if !ok {
		return false
	}
	e.Rooms[room] = struct{}{}
	return true
}

func (r *Registry) RemoveRoom(id domain.UserID, room domain.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.conns[id]; ok {
		delete(e.Rooms, room)
	}
}

func (r *Registry) RoomsOf(id domain.UserID) []domain.RoomID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[id]
	if !ok {
		return nil
	}
	out := make([]domain.RoomID, 0, len(e.Rooms))
	for room := range e.Rooms {
		out = append(out, room)
	}
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Cancel asks the adapter owning the connection to shut it down.
func (r *Registry) Cancel(id domain.UserID) bool {
	r.mu.RLock()
	e, ok := r.conns[id]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("user_id", string(id)).Msg("canceled connection")
	return true
}
