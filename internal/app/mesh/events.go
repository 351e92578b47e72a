package mesh

import (
	"errors"
	"fmt"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/pion/webrtc/v4"
)

var (
	ErrAlreadyRunning    = errors.New("orchestrator already running")
	ErrClosed            = errors.New("orchestrator closed")
	ErrUnknownSession    = errors.New("no session for peer")
	ErrCandidateOverflow = errors.New("candidate queue full")
	ErrUnexpectedAnswer  = errors.New("answer without outstanding offer")
	ErrGlare             = errors.New("offer while own offer outstanding")
	ErrBadPayload        = errors.New("malformed payload")
)

// NegotiationError describes a discarded negotiation message or a failed step.
type NegotiationError struct {
	Op       string
	RemoteID domain.UserID
	Err      error
}

func (e *NegotiationError) Error() string {
	if e.RemoteID != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.RemoteID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NegotiationError) Unwrap() error {
	return e.Err
}

func negErr(op string, remote domain.UserID, err error) *NegotiationError {
	return &NegotiationError{Op: op, RemoteID: remote, Err: err}
}

// Event is something the presentation layer may want to render.
type Event interface {
	isEvent()
}

type RemoteTrack struct {
	RemoteID domain.UserID
	Track    *webrtc.TrackRemote
}

type SessionStateChanged struct {
	RemoteID domain.UserID
	State    SessionState
}

type SessionRemoved struct {
	RemoteID domain.UserID
	Reason   string
}

// MediaState reports the local toggles after every change.
type MediaState struct {
	Microphone  bool
	Camera      bool
	ScreenShare bool
}

type NegotiationFailed struct {
	Err *NegotiationError
}

func (RemoteTrack) isEvent()         {}
func (SessionStateChanged) isEvent() {}
func (SessionRemoved) isEvent()      {}
func (MediaState) isEvent()          {}
func (NegotiationFailed) isEvent()   {}
