// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	MaxUserIDLen      = 36
	MaxDisplayNameLen = 64
)

var (
	ErrDisplayNameTooLong = errors.New("display name too long")
	ErrDisplayNameEmpty   = errors.New("display name empty")
)

// UserID is the hub-assigned id of one live connection.
// It regenerates per connection and is never reused.
type UserID string

// Participant is an admitted member of a room.
// A departed participant keeps its record (LeftAt set) in the room's audit log.
type Participant struct {
	ID          UserID     `json:"userId"`
	DisplayName string     `json:"name"`
	IsHost      bool       `json:"isHost"`
	JoinedAt    time.Time  `json:"joinedAt"`
	LeftAt      *time.Time `json:"leftAt,omitempty"`

	// ClientToken pairs the connection with the browser session cookie, best effort.
	ClientToken string `json:"-"`
}

func NewParticipant(id UserID, name, token string, now time.Time) *Participant {
	return &Participant{ID: id, DisplayName: name, ClientToken: token, JoinedAt: now}
}

// Active reports whether the participant has not left yet.
func (p *Participant) Active() bool { return p.LeftAt == nil }

func (p *Participant) MarkLeft(now time.Time) {
	if p.LeftAt != nil {
		return
	}
	t := now
	p.LeftAt = &t
}

// NormalizeDisplayName trims the name and clamps it to MaxDisplayNameLen.
// The hub does not validate names beyond that; duplicates are allowed.
func NormalizeDisplayName(name string) string {
	name = strings.TrimSpace(name)
	name = TruncateUTF8(name, MaxDisplayNameLen)
	if name == "" {
		return "guest"
	}
	return name
}

// TruncateUTF8 cuts s to at most n bytes without splitting a character.
func TruncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// ValidateDisplayName is the strict variant used by clients before joining.
func ValidateDisplayName(name string) error {
	name = strings.TrimSpace(name)
	if len(name) == 0 {
		return ErrDisplayNameEmpty
	}
	if len(name) > MaxDisplayNameLen {
		return ErrDisplayNameTooLong
	}
	return nil
}
