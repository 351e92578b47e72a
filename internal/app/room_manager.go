package app

import (
	"sort"
	"sync"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

const DefaultHistoryLimit = 256

// RoomManagerImpl holds live rooms plus the audit logs of reaped ones.
// The map lock covers lookup, create and reap only; room state has its own lock.
type RoomManagerImpl struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]core.RoomService

	limit   int
	history map[domain.RoomID]domain.History
	order   []domain.RoomID
}

func NewRoomManager(historyLimit int) *RoomManagerImpl {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &RoomManagerImpl{
		rooms:   make(map[domain.RoomID]core.RoomService),
		limit:   historyLimit,
		history: make(map[domain.RoomID]domain.History),
	}
}

func (f *RoomManagerImpl) GetOrCreate(id domain.RoomID) core.RoomService {
	f.mu.RLock()
	room, ok := f.rooms[id]
	f.mu.RUnlock()
	if ok {
		return room
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if room, ok = f.rooms[id]; ok {
		return room
	}
	room = core.NewRoomService(id)
	f.rooms[id] = room
	log.Info().Str("module", "app.rooms").Str("room_id", string(id)).Msg("room created")
	return room
}

func (f *RoomManagerImpl) Get(id domain.RoomID) (core.RoomService, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	room, ok := f.rooms[id]
	return room, ok
}

func (f *RoomManagerImpl) List() []core.RoomInfo {
	f.mu.RLock()
	rooms := make([]core.RoomService, 0, len(f.rooms))
	for _, r := range f.rooms {
		rooms = append(rooms, r)
	}
	f.mu.RUnlock()

	out := make([]core.RoomInfo, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, r.Info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Reap drops the room if nobody is active or pending and archives its audit log.
func (f *RoomManagerImpl) Reap(id domain.RoomID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[id]
	if !ok || !room.TryClose() {
		return false
	}
	delete(f.rooms, id)
	f.archive(room.History())
	log.Info().Str("module", "app.rooms").Str("room_id", string(id)).Msg("room reaped")
	return true
}

func (f *RoomManagerImpl) archive(h domain.History) {
	if _, seen := f.history[h.RoomID]; seen {
		// a reused room id: keep earlier sessions in front of the new one
		prev := f.history[h.RoomID]
		h.Users = append(prev.Users, h.Users...)
		f.history[h.RoomID] = h
		return
	}
	f.history[h.RoomID] = h
	f.order = append(f.order, h.RoomID)
	for len(f.order) > f.limit {
		delete(f.history, f.order[0])
		f.order = f.order[1:]
	}
}

// History returns the audit log of a live or recently reaped room.
func (f *RoomManagerImpl) History(id domain.RoomID) (domain.History, bool) {
	f.mu.RLock()
	room, live := f.rooms[id]
	archived, old := f.history[id]
	f.mu.RUnlock()

	switch {
	case live && old:
		cur := room.History()
		users := make([]domain.Participant, 0, len(archived.Users)+len(cur.Users))
		users = append(users, archived.Users...)
		users = append(users, cur.Users...)
		return domain.History{RoomID: id, Users: users}, true
	case live:
		return room.History(), true
	case old:
		users := make([]domain.Participant, len(archived.Users))
		copy(users, archived.Users)
		return domain.History{RoomID: id, Users: users}, true
	}
	return domain.History{}, false
}
