package domain

type RoomID string

// Role is the answer of the pre-join role check.
type Role string

const (
	RoleHost  Role = "host"
	RoleGuest Role = "guest"
)

// Admission is the outcome of a join request.
type Admission int

const (
	Admitted Admission = iota
	Queued
	Rejected
)

func (a Admission) String() string {
	switch a {
	case Admitted:
		return "admitted"
	case Queued:
		return "queued"
	case Rejected:
		return "rejected"
	}
	return "unknown"
}

// Decision is a host's answer to a pending request.
type Decision int

const (
	Approve Decision = iota
	Reject
)

func (d Decision) String() string {
	if d == Approve {
		return "approve"
	}
	return "reject"
}

// History is the read-only view of a room's audit log.
type History struct {
	RoomID RoomID        `json:"roomId"`
	Users  []Participant `json:"users"`
}
