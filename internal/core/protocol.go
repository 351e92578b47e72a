package core

import (
	"encoding/json"

	"github.com/dkeye/Huddle/internal/domain"
)

// Client -> hub message types.
const (
	MsgCheckRole    = "check-role"
	MsgJoinRoom     = "join-room"
	MsgRequestJoin  = "request-join"
	MsgApproveUser  = "approve-user"
	MsgRejectUser   = "reject-user"
	MsgOffer        = "offer"
	MsgAnswer       = "answer"
	MsgICECandidate = "ice-candidate"
	MsgChat         = "chat-message"
	MsgLeaveRoom    = "leave-room"
	MsgPing         = "ping"
)

// Hub -> client message types.
const (
	MsgWelcome        = "welcome"
	MsgRole           = "role"
	MsgWaitingForHost = "waiting-for-host"
	MsgRejected       = "rejected"
	MsgAllowedToJoin  = "allowed-to-join"
	MsgUserWaiting    = "user-waiting"
	MsgExistingUsers  = "existing-users"
	MsgUserJoined     = "user-joined"
	MsgUserLeft       = "user-left"
	MsgHostLeft       = "host-left"
	MsgPong           = "pong"
	MsgError          = "error"
)

// Envelope is decoded first to find out what the rest of the frame is.
type Envelope struct {
	Type string `json:"type"`
}

type RoomRequest struct {
	Type   string        `json:"type"`
	RoomID domain.RoomID `json:"roomId"`
}

type JoinRequest struct {
	Type        string        `json:"type"`
	RoomID      domain.RoomID `json:"roomId"`
	DisplayName string        `json:"displayName"`
	Name        string        `json:"name,omitempty"`
	IsHost      bool          `json:"isHost,omitempty"`
}

// Display returns the display name, accepting the short "name" alias.
func (j JoinRequest) Display() string {
	if j.DisplayName != "" {
		return j.DisplayName
	}
	return j.Name
}

type DecisionRequest struct {
	Type   string        `json:"type"`
	RoomID domain.RoomID `json:"roomId"`
	UserID domain.UserID `json:"userId"`
}

type ChatRequest struct {
	Type   string        `json:"type"`
	RoomID domain.RoomID `json:"roomId"`
	Text   string        `json:"text"`
}

// SignalMessage carries offer, answer and ice-candidate frames in both directions.
// Payload fields are opaque to the hub.
type SignalMessage struct {
	Type      string          `json:"type"`
	To        domain.UserID   `json:"to,omitempty"`
	From      domain.UserID   `json:"from,omitempty"`
	SDP       json.RawMessage `json:"sdp,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

func IsRelayType(t string) bool {
	return t == MsgOffer || t == MsgAnswer || t == MsgICECandidate
}

type Welcome struct {
	Type   string        `json:"type"`
	UserID domain.UserID `json:"userId"`
}

type RoleNotice struct {
	Type   string        `json:"type"`
	RoomID domain.RoomID `json:"roomId,omitempty"`
	Role   domain.Role   `json:"role"`
}

// RoomNotice covers waiting-for-host, rejected, allowed-to-join and host-left.
type RoomNotice struct {
	Type   string        `json:"type"`
	RoomID domain.RoomID `json:"roomId,omitempty"`
}

// UserNotice covers user-waiting, user-joined and user-left.
type UserNotice struct {
	Type   string        `json:"type"`
	RoomID domain.RoomID `json:"roomId,omitempty"`
	UserID domain.UserID `json:"userId"`
	Name   string        `json:"name,omitempty"`
}

type ExistingUsers struct {
	Type   string          `json:"type"`
	RoomID domain.RoomID   `json:"roomId,omitempty"`
	Users  []domain.UserID `json:"users"`
}

type ChatMessage struct {
	Type   string        `json:"type"`
	RoomID domain.RoomID `json:"roomId"`
	From   domain.UserID `json:"from"`
	Name   string        `json:"name"`
	Text   string        `json:"text"`
	Time   int64         `json:"time"`
}

type ErrorNotice struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

func NewRoomNotice(t string, room domain.RoomID) RoomNotice {
	return RoomNotice{Type: t, RoomID: room}
}

func NewUserNotice(t string, room domain.RoomID, id domain.UserID, name string) UserNotice {
	return UserNotice{Type: t, RoomID: room, UserID: id, Name: name}
}

func NewError(msg string) ErrorNotice {
	return ErrorNotice{Type: MsgError, Error: msg}
}

// Encode marshals a hub message into a frame.
func Encode(msg any) (Frame, error) {
	return json.Marshal(msg)
}
