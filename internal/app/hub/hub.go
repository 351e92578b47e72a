// Package hub is the signaling hub: room admission, relay of negotiation
// messages and membership bookkeeping for live connections.
package hub

import (
	"context"
	"errors"

	"github.com/dkeye/Huddle/internal/app"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/platform/metrics"
	"github.com/rs/zerolog/log"
)

var (
	ErrEmptyRoom         = errors.New("empty room id")
	ErrUnknownConnection = errors.New("unknown connection")
	ErrUnknownPeer       = errors.New("unknown peer")
	ErrBadRelay          = errors.New("bad relay message")
)

type Hub struct {
	Registry *app.Registry
	Rooms    core.RoomManager
	Policy   app.Policy
	Metrics  *metrics.Metrics

	events *Broker
}

func New(reg *app.Registry, rooms core.RoomManager, policy app.Policy, m *metrics.Metrics) *Hub {
	if policy == nil {
		policy = app.SimplePolicy{}
	}
	return &Hub{
		Registry: reg,
		Rooms:    rooms,
		Policy:   policy,
		Metrics:  m,
		events:   NewBroker(),
	}
}

// Connect registers a fresh connection and tells the client its id.
func (h *Hub) Connect(id domain.UserID, sig core.SignalConnection, token string, cancel context.CancelFunc) {
	h.Registry.Bind(id, sig, token, cancel)
	h.Notify(id, core.Welcome{Type: core.MsgWelcome, UserID: id})
	h.Metrics.SetConnections(h.Registry.Count())
}

// Disconnect removes the connection from every room it touched.
// Safe to call more than once.
func (h *Hub) Disconnect(id domain.UserID) {
	rooms, ok := h.Registry.Unbind(id)
	if !ok {
		return
	}
	for _, roomID := range rooms {
		room, ok := h.Rooms.Get(roomID)
		if !ok {
			continue
		}
		room.Leave(id, h.outbox(roomID))
		h.reap(roomID)
	}
	h.Metrics.SetConnections(h.Registry.Count())
	log.Info().Str("module", "hub").Str("user_id", string(id)).Int("rooms", len(rooms)).Msg("disconnected")
}

// Notify sends a hub message to one connection outside of any room.
func (h *Hub) Notify(to domain.UserID, msg any) {
	h.send("", to, msg)
}

// Subscribe returns membership events for one room, or for all rooms when room is empty.
func (h *Hub) Subscribe(room domain.RoomID) (<-chan core.MembershipEvent, func()) {
	return h.events.Subscribe(room)
}

func (h *Hub) RoomList() []core.RoomInfo {
	return h.Rooms.List()
}

func (h *Hub) History(id domain.RoomID) (domain.History, bool) {
	id, err := normalizeRoomID(id)
	if err != nil {
		return domain.History{}, false
	}
	return h.Rooms.History(id)
}

func (h *Hub) reap(roomID domain.RoomID) {
	if h.Rooms.Reap(roomID) {
		h.events.Publish(core.MembershipEvent{RoomID: roomID, Kind: core.RoomClosed, At: timeNow()})
		h.Metrics.SetRooms(len(h.Rooms.List()))
	}
}

func (h *Hub) send(room domain.RoomID, to domain.UserID, msg any) {
	frame, err := core.Encode(msg)
	if err != nil {
		log.Error().Err(err).Str("module", "hub").Msg("encode")
		return
	}
	h.sendFrame(room, to, frame)
}

func (h *Hub) sendFrame(room domain.RoomID, to domain.UserID, frame core.Frame) bool {
	sig, ok := h.Registry.Signal(to)
	if !ok {
		log.Debug().Str("module", "hub").Str("user_id", string(to)).Msg("send to unknown connection dropped")
		return false
	}
	if err := sig.TrySend(frame); err != nil {
		h.onBackpressure(room, to, err)
		return false
	}
	return true
}

func (h *Hub) onBackpressure(room domain.RoomID, to domain.UserID, err error) {
	h.Metrics.IncBackpressure()
	action := h.Policy.OnBackPressure(room, to)
	log.Warn().Err(err).Str("module", "hub").Str("room_id", string(room)).Str("user_id", string(to)).Str("action", action.String()).Msg("send failed")
	switch action {
	case app.KickMember:
		// the adapter's disconnect path does the room cleanup
		h.Registry.Cancel(to)
	case app.MarkSlow, app.DropFrame, app.NoAction:
	}
}

// roomOutbox routes a room's notifications to live connections.
type roomOutbox struct {
	h    *Hub
	room domain.RoomID
}

func (h *Hub) outbox(room domain.RoomID) core.Outbox {
	return roomOutbox{h: h, room: room}
}

func (o roomOutbox) Send(to domain.UserID, msg any) {
	o.h.send(o.room, to, msg)
}

func (o roomOutbox) Emit(ev core.MembershipEvent) {
	o.h.events.Publish(ev)
}
