package core

//go:generate mockgen -source=media_iface.go -destination=mocks/mock_media.go -package=mocks

import (
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

type TrackKind string

const (
	TrackAudio  TrackKind = "audio"
	TrackCamera TrackKind = "camera"
	TrackScreen TrackKind = "screen"
)

// MediaConnection is one direct media session towards one remote participant.
// Calls on a single connection must not run concurrently.
type MediaConnection interface {
	// CreateOffer generates an offer and stores it as the local description.
	CreateOffer() (webrtc.SessionDescription, error)
	// ApplyOffer stores the remote offer, then generates and stores the answer.
	ApplyOffer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error)
	// ApplyAnswer stores the remote answer.
	ApplyAnswer(answer webrtc.SessionDescription) error
	// AddICECandidate applies a remote ICE candidate.
	AddICECandidate(webrtc.ICECandidateInit) error

	// AddLocalTrack attaches an outgoing track; video kinds share one sender.
	AddLocalTrack(kind TrackKind, track webrtc.TrackLocal) error
	// ReplaceVideoTrack swaps the outgoing video payload without renegotiation.
	ReplaceVideoTrack(track webrtc.TrackLocal) error

	// OnICECandidate sets a callback for newly gathered local ICE candidates.
	OnICECandidate(func(webrtc.ICECandidateInit))
	// OnTrack sets a callback that will be invoked when a new remote track arrives.
	OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver))
	// OnStateChange reports transport state transitions.
	OnStateChange(func(webrtc.PeerConnectionState))

	// Close should stop all underlying media resources.
	Close() error
}

// MediaSource produces RTP packets for one local capture device.
type MediaSource interface {
	ReadRTP() (*rtp.Packet, error)
	Close() error
}
