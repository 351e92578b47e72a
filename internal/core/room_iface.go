package core

import (
	"errors"
	"time"

	"github.com/dkeye/Huddle/internal/domain"
)

var ErrRoomClosed = errors.New("room closed")

// RoomService is the core-facing API of a room.
// It owns the active set, the pending set and the host pointer, and
// serializes every mutation. It never touches transport resources.
type RoomService interface {
	ID() domain.RoomID

	Join(id domain.UserID, name, token string, out Outbox) (domain.Admission, error)
	Decide(caller, target domain.UserID, d domain.Decision, out Outbox) bool
	Leave(id domain.UserID, out Outbox) bool
	Chat(from domain.UserID, text string, out Outbox) bool

	Role() domain.Role
	IsActive(id domain.UserID) bool
	IsPending(id domain.UserID) bool
	Info() RoomInfo
	History() domain.History

	// TryClose marks the room closed when nobody is active or pending.
	TryClose() bool
}

type RoomInfo struct {
	ID           domain.RoomID `json:"roomId"`
	Host         domain.UserID `json:"host,omitempty"`
	Participants int           `json:"participants"`
	Pending      int           `json:"pending"`
}

type RoomManager interface {
	GetOrCreate(id domain.RoomID) RoomService
	Get(id domain.RoomID) (RoomService, bool)
	List() []RoomInfo
	Reap(id domain.RoomID) bool
	History(id domain.RoomID) (domain.History, bool)
}

type MembershipKind string

const (
	MemberJoined   MembershipKind = "joined"
	MemberLeft     MembershipKind = "left"
	MemberQueued   MembershipKind = "queued"
	MemberRejected MembershipKind = "rejected"
	RoomClosed     MembershipKind = "closed"
)

// MembershipEvent is published whenever a room's membership changes.
type MembershipEvent struct {
	RoomID domain.RoomID  `json:"roomId"`
	Kind   MembershipKind `json:"kind"`
	UserID domain.UserID  `json:"userId,omitempty"`
	Name   string         `json:"name,omitempty"`
	At     time.Time      `json:"at"`
}
