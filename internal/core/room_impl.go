package core

import (
	"sync"
	"time"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

// roomImpl is a threadsafe in-memory room.
// It never closes adapter-owned resources; everything it wants delivered goes
// through the Outbox while the room lock is held.
type roomImpl struct {
	id  domain.RoomID
	now func() time.Time

	mu       sync.RWMutex
	closed   bool
	host     domain.UserID
	active   []*domain.Participant // admission order
	pending  map[domain.UserID]*domain.PendingRequest
	order    []domain.UserID // pending arrival order
	rejected map[domain.UserID]struct{}
	audit    []*domain.Participant
}

func NewRoomService(id domain.RoomID) RoomService {
	return newRoom(id, time.Now)
}

func newRoom(id domain.RoomID, now func() time.Time) *roomImpl {
	return &roomImpl{
		id:       id,
		now:      now,
		pending:  make(map[domain.UserID]*domain.PendingRequest),
		rejected: make(map[domain.UserID]struct{}),
	}
}

func (r *roomImpl) ID() domain.RoomID { return r.id }

func (r *roomImpl) Join(id domain.UserID, name, token string, out Outbox) (domain.Admission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return domain.Rejected, ErrRoomClosed
	}

	switch {
	case r.findActive(id) >= 0:
		return domain.Admitted, nil
	case r.pending[id] != nil:
		return domain.Queued, nil
	}
	if _, ok := r.rejected[id]; ok {
		out.Send(id, NewRoomNotice(MsgRejected, r.id))
		return domain.Rejected, nil
	}

	name = domain.NormalizeDisplayName(name)
	now := r.now()

	if r.host == "" {
		p := domain.NewParticipant(id, name, token, now)
		p.IsHost = true
		r.host = id
		r.admit(p, out)
		out.Send(id, RoleNotice{Type: MsgRole, RoomID: r.id, Role: domain.RoleHost})
		// a new host inherits whoever queued while the room was host-less
		for _, pid := range r.order {
			req := r.pending[pid]
			out.Send(id, NewUserNotice(MsgUserWaiting, r.id, req.ID, req.DisplayName))
		}
		log.Info().Str("module", "core.room").Str("room_id", string(r.id)).Str("user_id", string(id)).Int("pending", len(r.order)).Msg("host admitted")
		return domain.Admitted, nil
	}

	r.pending[id] = domain.NewPendingRequest(id, name, token, now)
	r.order = append(r.order, id)
	out.Send(id, NewRoomNotice(MsgWaitingForHost, r.id))
	out.Send(r.host, NewUserNotice(MsgUserWaiting, r.id, id, name))
	out.Emit(MembershipEvent{RoomID: r.id, Kind: MemberQueued, UserID: id, Name: name, At: now})
	log.Info().Str("module", "core.room").Str("room_id", string(r.id)).Str("user_id", string(id)).Msg("join request queued")
	return domain.Queued, nil
}

func (r *roomImpl) Decide(caller, target domain.UserID, d domain.Decision, out Outbox) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.host == "" || caller != r.host {
		log.Debug().Str("module", "core.room").Str("room_id", string(r.id)).Str("user_id", string(caller)).Msg("decision from non-host ignored")
		return false
	}
	req := r.dropPending(target)
	if req == nil {
		return false
	}

	switch d {
	case domain.Approve:
		r.admit(domain.NewParticipant(req.ID, req.DisplayName, req.ClientToken, r.now()), out)
	case domain.Reject:
		r.rejected[target] = struct{}{}
		out.Send(target, NewRoomNotice(MsgRejected, r.id))
		out.Emit(MembershipEvent{RoomID: r.id, Kind: MemberRejected, UserID: target, Name: req.DisplayName, At: r.now()})
	}
	log.Info().Str("module", "core.room").Str("room_id", string(r.id)).Str("user_id", string(target)).Str("decision", d.String()).Msg("join request decided")
	return true
}

// admit activates p and runs the admission notifications.
// The newcomer's roster is enqueued before any peer hears about it.
func (r *roomImpl) admit(p *domain.Participant, out Outbox) {
	roster := make([]domain.UserID, 0, len(r.active))
	for _, a := range r.active {
		roster = append(roster, a.ID)
	}
	r.active = append(r.active, p)
	r.audit = append(r.audit, p)

	out.Send(p.ID, NewRoomNotice(MsgAllowedToJoin, r.id))
	out.Send(p.ID, ExistingUsers{Type: MsgExistingUsers, RoomID: r.id, Users: roster})
	joined := NewUserNotice(MsgUserJoined, r.id, p.ID, p.DisplayName)
	for _, id := range roster {
		out.Send(id, joined)
	}
	out.Emit(MembershipEvent{RoomID: r.id, Kind: MemberJoined, UserID: p.ID, Name: p.DisplayName, At: p.JoinedAt})
}

func (r *roomImpl) Leave(id domain.UserID, out Outbox) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()

	if req := r.dropPending(id); req != nil {
		out.Emit(MembershipEvent{RoomID: r.id, Kind: MemberLeft, UserID: id, Name: req.DisplayName, At: now})
		return true
	}

	i := r.findActive(id)
	if i < 0 {
		return false
	}
	p := r.active[i]
	p.MarkLeft(now)
	r.active = append(r.active[:i], r.active[i+1:]...)

	left := NewUserNotice(MsgUserLeft, r.id, id, "")
	for _, a := range r.active {
		out.Send(a.ID, left)
	}
	if r.host == id {
		r.host = ""
		hostLeft := NewRoomNotice(MsgHostLeft, r.id)
		for _, a := range r.active {
			out.Send(a.ID, hostLeft)
		}
	}
	out.Emit(MembershipEvent{RoomID: r.id, Kind: MemberLeft, UserID: id, Name: p.DisplayName, At: now})
	log.Info().Str("module", "core.room").Str("room_id", string(r.id)).Str("user_id", string(id)).Bool("host", p.IsHost).Msg("participant left")
	return true
}

func (r *roomImpl) Chat(from domain.UserID, text string, out Outbox) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i := r.findActive(from)
	if i < 0 {
		return false
	}
	msg := ChatMessage{
		Type:   MsgChat,
		RoomID: r.id,
		From:   from,
		Name:   r.active[i].DisplayName,
		Text:   text,
		Time:   r.now().UnixMilli(),
	}
	for _, a := range r.active {
		out.Send(a.ID, msg)
	}
	return true
}

func (r *roomImpl) Role() domain.Role {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.host == "" {
		return domain.RoleHost
	}
	return domain.RoleGuest
}

func (r *roomImpl) IsActive(id domain.UserID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.findActive(id) >= 0
}

func (r *roomImpl) IsPending(id domain.UserID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pending[id] != nil
}

func (r *roomImpl) Info() RoomInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return RoomInfo{ID: r.id, Host: r.host, Participants: len(r.active), Pending: len(r.order)}
}

func (r *roomImpl) History() domain.History {
	r.mu.RLock()
	defer r.mu.RUnlock()
	users := make([]domain.Participant, 0, len(r.audit))
	for _, p := range r.audit {
		cp := *p
		if p.LeftAt != nil {
			t := *p.LeftAt
			cp.LeftAt = &t
		}
		users = append(users, cp)
	}
	return domain.History{RoomID: r.id, Users: users}
}

func (r *roomImpl) TryClose() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return true
	}
	if len(r.active) > 0 || len(r.order) > 0 {
		return false
	}
	r.closed = true
	return true
}

func (r *roomImpl) findActive(id domain.UserID) int {
	for i, p := range r.active {
		if p.ID == id {
			return i
		}
	}
	return -1
}

func (r *roomImpl) dropPending(id domain.UserID) *domain.PendingRequest {
	req, ok := r.pending[id]
	if !ok {
		return nil
	}
	delete(r.pending, id)
	for i, pid := range r.order {
		if pid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return req
}
