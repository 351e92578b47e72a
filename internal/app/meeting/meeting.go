// Package meeting is the client side of room admission: it walks the
// join flow and routes hub messages into the peer mesh.
package meeting

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

type State int

const (
	StateIdle State = iota
	StateConnecting
	StateWaiting
	StateRejected
	StateAdmitted
	StateCannotJoin
	StateLeft
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateWaiting:
		return "waiting"
	case StateRejected:
		return "rejected"
	case StateAdmitted:
		return "admitted"
	case StateCannotJoin:
		return "cannot-join"
	}
	return "left"
}

var (
	ErrNotJoined     = errors.New("not in a room")
	ErrNotHost       = errors.New("not the host")
	ErrAlreadyJoined = errors.New("join already in progress")
)

// HubLink sends client messages to the hub.
type HubLink interface {
	Send(msg any) error
}

// Mesh is the part of the peer orchestrator the controller drives.
type Mesh interface {
	SetSelf(id domain.UserID) error
	AcquireMedia(audio, camera core.MediaSource) error
	ExistingUsers(ids []domain.UserID) error
	UserJoined(id domain.UserID) error
	UserLeft(id domain.UserID) error
	HandleSignal(msg core.SignalMessage) error
}

type NoticeKind string

const (
	NoticeState    NoticeKind = "state"
	NoticeWaiting  NoticeKind = "user-waiting"
	NoticeHostLeft NoticeKind = "host-left"
	NoticeChat     NoticeKind = "chat"
	NoticeRole     NoticeKind = "role"
	NoticeError    NoticeKind = "error"
)

// Notice is what a presentation layer renders.
type Notice struct {
	Kind   NoticeKind
	State  State
	UserID domain.UserID
	Name   string
	Text   string
	Role   domain.Role
	At     time.Time
}

type Controller struct {
	link HubLink
	mesh Mesh

	notices chan Notice

	mu      sync.Mutex
	state   State
	self    domain.UserID
	room    domain.RoomID
	name    string
	isHost  bool
	pending []domain.PendingRequest
}

func New(link HubLink, mesh Mesh) *Controller {
	return &Controller{link: link, mesh: mesh, notices: make(chan Notice, 64)}
}

func (c *Controller) Notices() <-chan Notice { return c.notices }

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Self() domain.UserID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.self
}

// Pending lists the requests waiting for this client's decision as host.
func (c *Controller) Pending() []domain.PendingRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.PendingRequest(nil), c.pending...)
}

func (c *Controller) notify(n Notice) {
	if n.At.IsZero() {
		n.At = time.Now()
	}
	select {
	case c.notices <- n:
	default:
		log.Warn().Str("module", "meeting").Str("kind", string(n.Kind)).Msg("notice dropped")
	}
}

// setState must be called with mu held.
func (c *Controller) setState(s State) {
	if c.state == s {
		return
	}
	c.state = s
	c.notify(Notice{Kind: NoticeState, State: s})
	log.Info().Str("module", "meeting").Str("room_id", string(c.room)).Str("state", s.String()).Msg("state changed")
}

// Join acquires local media first and only then asks the hub for admission.
// A media failure ends in CannotJoin, which is not a rejection.
func (c *Controller) Join(room domain.RoomID, name string, audio, camera core.MediaSource) error {
	if err := domain.ValidateDisplayName(name); err != nil {
		return err
	}
	c.mu.Lock()
	if c.state == StateConnecting || c.state == StateWaiting || c.state == StateAdmitted {
		c.mu.Unlock()
		return ErrAlreadyJoined
	}
	c.room, c.name = room, name
	c.isHost = false
	c.pending = nil
	c.setState(StateConnecting)
	c.mu.Unlock()

	if err := c.mesh.AcquireMedia(audio, camera); err != nil {
		c.mu.Lock()
		c.setState(StateCannotJoin)
		c.mu.Unlock()
		return fmt.Errorf("acquire media: %w", err)
	}
	return c.link.Send(core.JoinRequest{Type: core.MsgJoinRoom, RoomID: room, DisplayName: name})
}

func (c *Controller) CheckRole(room domain.RoomID) error {
	return c.link.Send(core.RoomRequest{Type: core.MsgCheckRole, RoomID: room})
}

func (c *Controller) Approve(id domain.UserID) error { return c.decide(core.MsgApproveUser, id) }

func (c *Controller) Reject(id domain.UserID) error { return c.decide(core.MsgRejectUser, id) }

func (c *Controller) decide(typ string, id domain.UserID) error {
	c.mu.Lock()
	if c.state != StateAdmitted {
		c.mu.Unlock()
		return ErrNotJoined
	}
	if !c.isHost {
		c.mu.Unlock()
		return ErrNotHost
	}
	room := c.room
	c.dropPending(id)
	c.mu.Unlock()
	return c.link.Send(core.DecisionRequest{Type: typ, RoomID: room, UserID: id})
}

func (c *Controller) Chat(text string) error {
	c.mu.Lock()
	room, st := c.room, c.state
	c.mu.Unlock()
	if st != StateAdmitted {
		return ErrNotJoined
	}
	return c.link.Send(core.ChatRequest{Type: core.MsgChat, RoomID: room, Text: text})
}

// Leave tells the hub and stops routing room traffic into the mesh.
func (c *Controller) Leave() error {
	c.mu.Lock()
	room, st := c.room, c.state
	if room == "" || st == StateIdle {
		c.mu.Unlock()
		return ErrNotJoined
	}
	c.setState(StateLeft)
	c.mu.Unlock()
	return c.link.Send(core.RoomRequest{Type: core.MsgLeaveRoom, RoomID: room})
}

func (c *Controller) dropPending(id domain.UserID) {
	for i, p := range c.pending {
		if p.ID == id {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			return
		}
	}
}

// HandleFrame routes one hub frame. Malformed frames are logged and dropped.
func (c *Controller) HandleFrame(frame []byte) {
	var env core.Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		log.Warn().Err(err).Str("module", "meeting").Msg("bad frame")
		return
	}
	if err := c.route(env.Type, frame); err != nil {
		log.Warn().Err(err).Str("module", "meeting").Str("type", env.Type).Msg("frame dropped")
	}
}

func (c *Controller) route(typ string, frame []byte) error {
	switch typ {
	case core.MsgWelcome:
		var m core.Welcome
		if err := json.Unmarshal(frame, &m); err != nil {
			return err
		}
		c.mu.Lock()
		c.self = m.UserID
		c.mu.Unlock()
		return c.mesh.SetSelf(m.UserID)

	case core.MsgRole:
		var m core.RoleNotice
		if err := json.Unmarshal(frame, &m); err != nil {
			return err
		}
		c.mu.Lock()
		// after admission a role notice hands over host powers; before it only answers check-role
		if c.state == StateAdmitted && m.Role == domain.RoleHost {
			c.isHost = true
		}
		c.mu.Unlock()
		c.notify(Notice{Kind: NoticeRole, Role: m.Role})

	case core.MsgWaitingForHost:
		c.transition(StateConnecting, StateWaiting)
	case core.MsgRejected:
		c.transition(StateConnecting, StateRejected, StateWaiting)
	case core.MsgAllowedToJoin:
		c.transition(StateConnecting, StateAdmitted, StateWaiting)

	case core.MsgUserWaiting:
		var m core.UserNotice
		if err := json.Unmarshal(frame, &m); err != nil {
			return err
		}
		c.mu.Lock()
		c.isHost = true
		c.dropPending(m.UserID)
		c.pending = append(c.pending, domain.PendingRequest{ID: m.UserID, DisplayName: m.Name, RequestedAt: time.Now()})
		c.mu.Unlock()
		c.notify(Notice{Kind: NoticeWaiting, UserID: m.UserID, Name: m.Name})

	case core.MsgExistingUsers:
		var m core.ExistingUsers
		if err := json.Unmarshal(frame, &m); err != nil {
			return err
		}
		if !c.admitted() {
			return ErrNotJoined
		}
		return c.mesh.ExistingUsers(m.Users)

	case core.MsgUserJoined:
		var m core.UserNotice
		if err := json.Unmarshal(frame, &m); err != nil {
			return err
		}
		if !c.admitted() {
			return ErrNotJoined
		}
		c.mu.Lock()
		c.dropPending(m.UserID)
		c.mu.Unlock()
		return c.mesh.UserJoined(m.UserID)

	case core.MsgUserLeft:
		var m core.UserNotice
		if err := json.Unmarshal(frame, &m); err != nil {
			return err
		}
		c.mu.Lock()
		c.dropPending(m.UserID)
		c.mu.Unlock()
		return c.mesh.UserLeft(m.UserID)

	case core.MsgHostLeft:
		c.notify(Notice{Kind: NoticeHostLeft})

	case core.MsgOffer, core.MsgAnswer, core.MsgICECandidate:
		var m core.SignalMessage
		if err := json.Unmarshal(frame, &m); err != nil {
			return err
		}
		if !c.admitted() {
			return ErrNotJoined
		}
		return c.mesh.HandleSignal(m)

	case core.MsgChat:
		var m core.ChatMessage
		if err := json.Unmarshal(frame, &m); err != nil {
			return err
		}
		c.notify(Notice{Kind: NoticeChat, UserID: m.From, Name: m.Name, Text: m.Text, At: time.UnixMilli(m.Time)})

	case core.MsgError:
		var m core.ErrorNotice
		if err := json.Unmarshal(frame, &m); err != nil {
			return err
		}
		c.notify(Notice{Kind: NoticeError, Text: m.Error})

	case core.MsgPong:
	default:
		return fmt.Errorf("unknown message type %q", typ)
	}
	return nil
}

func (c *Controller) admitted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateAdmitted
}

// transition moves to next only from one of the allowed states.
func (c *Controller) transition(from State, next State, alsoFrom ...State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ok := c.state == from
	for _, s := range alsoFrom {
		ok = ok || c.state == s
	}
	if !ok {
		log.Debug().Str("module", "meeting").Str("state", c.state.String()).Str("next", next.String()).Msg("transition ignored")
		return
	}
	c.setState(next)
}
