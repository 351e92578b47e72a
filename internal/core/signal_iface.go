package core

//go:generate mockgen -source=signal_iface.go -destination=mocks/mock_signal.go -package=mocks

import "github.com/dkeye/Huddle/internal/domain"

// Frame is a raw encoded signaling message.
type Frame []byte

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// Outbox receives everything a room decides to tell the outside world.
// Rooms call it while holding their lock, so enqueue order is delivery order
// for any single connection.
type Outbox interface {
	Send(to domain.UserID, msg any)
	Emit(ev MembershipEvent)
}
