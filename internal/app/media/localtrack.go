// Package media is the local capture pipeline of the mesh client.
package media

import (
	"sync"
	"sync/atomic"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

type TrackState int32

const (
	TrackStateOk TrackState = iota
	TrackStateMuted
	TrackStateStopped
)

func (s TrackState) String() string {
	switch s {
	case TrackStateOk:
		return "ok"
	case TrackStateMuted:
		return "muted"
	}
	return "stopped"
}

const StreamID = "huddle"

// LocalTrack is one outgoing track shared by every peer session.
type LocalTrack struct {
	Kind  core.TrackKind
	Track *webrtc.TrackLocalStaticRTP

	state   atomic.Int32 // Zero by default (TrackStateOk)
	packets atomic.Uint64

	stopOnce sync.Once
	done     chan struct{}
}

func CodecFor(kind core.TrackKind) webrtc.RTPCodecCapability {
	if kind == core.TrackAudio {
		return webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}
	}
	return webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}
}

func NewLocalTrack(kind core.TrackKind) (*LocalTrack, error) {
	id := "video"
	if kind == core.TrackAudio {
		id = "audio"
	}
	t, err := webrtc.NewTrackLocalStaticRTP(CodecFor(kind), id, StreamID)
	if err != nil {
		return nil, err
	}
	return &LocalTrack{Kind: kind, Track: t, done: make(chan struct{})}, nil
}

func (lt *LocalTrack) GetState() TrackState {
	return TrackState(lt.state.Load())
}

func (lt *LocalTrack) MarkOk() {
	lt.state.CompareAndSwap(int32(TrackStateMuted), int32(TrackStateOk))
}

func (lt *LocalTrack) MarkMuted() {
	lt.state.CompareAndSwap(int32(TrackStateOk), int32(TrackStateMuted))
}

func (lt *LocalTrack) MarkStopped() {
	lt.state.Store(int32(TrackStateStopped))
	lt.stopOnce.Do(func() { close(lt.done) })
}

// Done is closed once the track is stopped.
func (lt *LocalTrack) Done() <-chan struct{} { return lt.done }

// Packets is the number of packets written so far.
func (lt *LocalTrack) Packets() uint64 {
	return lt.packets.Load()
}

// write forwards pkt unless the track is muted or stopped.
func (lt *LocalTrack) write(pkt *rtp.Packet) error {
	if lt.GetState() != TrackStateOk {
		return nil
	}
	if err := lt.Track.WriteRTP(pkt); err != nil {
		return err
	}
	lt.packets.Add(1)
	return nil
}
