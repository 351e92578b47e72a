package domain

import "time"

// PendingRequest exists only while a join request waits for the host.
type PendingRequest struct {
	ID          UserID    `json:"userId"`
	DisplayName string    `json:"name"`
	RequestedAt time.Time `json:"requestedAt"`
	ClientToken string    `json:"-"`
}

// NewPendingRequest avoids raw literals in the room implementation.
func NewPendingRequest(id UserID, name, token string, now time.Time) *PendingRequest {
	return &PendingRequest{ID: id, DisplayName: name, ClientToken: token, RequestedAt: now}
}
