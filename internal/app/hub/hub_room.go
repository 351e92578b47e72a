package hub

import (
	"errors"
	"strings"
	"time"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

const (
	maxChatLen  = 2000
	joinRetries = 3
)

var timeNow = time.Now

// normalizeRoomID is applied by every entry point; ids are otherwise opaque.
func normalizeRoomID(id domain.RoomID) (domain.RoomID, error) {
	s := strings.TrimSpace(string(id))
	if s == "" {
		return "", ErrEmptyRoom
	}
	return domain.RoomID(s), nil
}

// lookup finds a live room by a client-supplied id.
func (h *Hub) lookup(roomID domain.RoomID) (core.RoomService, domain.RoomID, bool) {
	roomID, err := normalizeRoomID(roomID)
	if err != nil {
		return nil, "", false
	}
	room, ok := h.Rooms.Get(roomID)
	return room, roomID, ok
}

// Join asks for admission to a room, creating it on first use.
// The first requester of a host-less room becomes host; everyone else queues.
func (h *Hub) Join(roomID domain.RoomID, name string, id domain.UserID) (domain.Admission, error) {
	roomID, err := normalizeRoomID(roomID)
	if err != nil {
		return domain.Rejected, err
	}
	if !h.Registry.AddRoom(id, roomID) {
		return domain.Rejected, ErrUnknownConnection
	}
	token := h.Registry.Token(id)

	var adm domain.Admission
	for i := 0; i < joinRetries; i++ {
		room := h.Rooms.GetOrCreate(roomID)
		adm, err = room.Join(id, name, token, h.outbox(roomID))
		if !errors.Is(err, core.ErrRoomClosed) {
			break
		}
		// lost a race with the reaper; the next GetOrCreate makes a fresh room
	}
	if err != nil {
		h.Registry.RemoveRoom(id, roomID)
		return domain.Rejected, err
	}
	h.Metrics.IncAdmission(adm.String())
	h.Metrics.SetRooms(len(h.Rooms.List()))

	if adm == domain.Rejected {
		h.Registry.RemoveRoom(id, roomID)
		return adm, nil
	}
	// the connection may have dropped while the room was deciding
	if _, ok := h.Registry.Signal(id); !ok {
		if room, ok := h.Rooms.Get(roomID); ok {
			room.Leave(id, h.outbox(roomID))
		}
		h.reap(roomID)
	}
	log.Info().Str("module", "hub").Str("room_id", string(roomID)).Str("user_id", string(id)).Str("admission", adm.String()).Msg("join")
	return adm, nil
}

// Decide applies the host's decision on a pending request.
// Decisions from anyone but the current host are ignored.
func (h *Hub) Decide(roomID domain.RoomID, caller, target domain.UserID, d domain.Decision) bool {
	room, roomID, ok := h.lookup(roomID)
	if !ok {
		return false
	}
	if !room.Decide(caller, target, d, h.outbox(roomID)) {
		return false
	}
	if d == domain.Reject {
		h.Registry.RemoveRoom(target, roomID)
	}
	return true
}

// Leave removes the connection from one room and keeps the socket open.
func (h *Hub) Leave(roomID domain.RoomID, id domain.UserID) bool {
	room, roomID, ok := h.lookup(roomID)
	if !ok {
		return false
	}
	left := room.Leave(id, h.outbox(roomID))
	h.Registry.RemoveRoom(id, roomID)
	h.reap(roomID)
	return left
}

// CheckRole tells a prospective joiner what they would become.
func (h *Hub) CheckRole(roomID domain.RoomID) (domain.Role, error) {
	roomID, err := normalizeRoomID(roomID)
	if err != nil {
		return "", err
	}
	room, ok := h.Rooms.Get(roomID)
	if !ok {
		return domain.RoleHost, nil
	}
	return room.Role(), nil
}

// Chat broadcasts a text message to every active participant, sender included.
func (h *Hub) Chat(roomID domain.RoomID, from domain.UserID, text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	text = domain.TruncateUTF8(text, maxChatLen)
	room, roomID, ok := h.lookup(roomID)
	if !ok {
		return false
	}
	return room.Chat(from, text, h.outbox(roomID))
}
