package mesh

import (
	"errors"

	"github.com/dkeye/Huddle/internal/app/media"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

type mediaToggle struct {
	kind core.TrackKind
	on   bool
}

type mediaAcquired struct{}

type screenStart struct{ track *media.LocalTrack }

type screenStop struct{}

type screenEnded struct{ track *media.LocalTrack }

// AcquireMedia starts the microphone and camera captures.
// Either source may be nil; a failure means the client cannot join.
func (o *Orchestrator) AcquireMedia(audio, camera core.MediaSource) error {
	if audio != nil {
		if _, err := o.captures.Start(core.TrackAudio, audio); err != nil {
			return err
		}
	}
	if camera != nil {
		if _, err := o.captures.Start(core.TrackCamera, camera); err != nil {
			if audio != nil {
				_ = o.captures.Stop(core.TrackAudio)
			}
			return err
		}
	}
	return o.post(mediaAcquired{})
}

func (o *Orchestrator) SetMicrophone(on bool) error {
	return o.post(mediaToggle{kind: core.TrackAudio, on: on})
}

func (o *Orchestrator) SetCamera(on bool) error {
	return o.post(mediaToggle{kind: core.TrackCamera, on: on})
}

// StartScreenShare replaces the outgoing video of every session with src.
// Sessions keep their state; no renegotiation happens.
func (o *Orchestrator) StartScreenShare(src core.MediaSource) error {
	track, err := o.captures.Start(core.TrackScreen, src)
	if err != nil {
		return err
	}
	if err := o.post(screenStart{track: track}); err != nil {
		_ = o.captures.Stop(core.TrackScreen)
		return err
	}
	go func() {
		select {
		case <-track.Done():
			_ = o.post(screenEnded{track: track})
		case <-o.ctx.Done():
		}
	}()
	return nil
}

func (o *Orchestrator) StopScreenShare() error {
	return o.post(screenStop{})
}

// outgoingTracks is what a new session attaches: audio plus the active video.
func (o *Orchestrator) outgoingTracks() []outgoing {
	var out []outgoing
	if t, ok := o.captures.Track(core.TrackAudio); ok {
		out = append(out, outgoing{kind: core.TrackAudio, track: t.Track})
	}
	if kind, t := o.activeVideo(); t != nil {
		out = append(out, outgoing{kind: kind, track: t.Track})
	}
	return out
}

func (o *Orchestrator) activeVideo() (core.TrackKind, *media.LocalTrack) {
	if o.screen {
		if t, ok := o.captures.Track(core.TrackScreen); ok {
			return core.TrackScreen, t
		}
	}
	if t, ok := o.captures.Track(core.TrackCamera); ok {
		return core.TrackCamera, t
	}
	return core.TrackCamera, nil
}

func (o *Orchestrator) mediaState() MediaState {
	return MediaState{Microphone: o.mic, Camera: o.camera, ScreenShare: o.screen}
}

func (o *Orchestrator) onMediaToggle(v mediaToggle) {
	switch v.kind {
	case core.TrackAudio:
		o.mic = v.on
	case core.TrackCamera:
		o.camera = v.on
	}
	// the toggle is kept even without a device; it applies once one starts
	if err := o.captures.SetMuted(v.kind, !v.on); err != nil && !errors.Is(err, media.ErrNoCapture) {
		log.Warn().Err(err).Str("module", "mesh").Str("kind", string(v.kind)).Msg("toggle media")
	}
	o.emit(o.mediaState())
}

func (o *Orchestrator) onMediaAcquired() {
	_ = o.captures.SetMuted(core.TrackAudio, !o.mic)
	_ = o.captures.SetMuted(core.TrackCamera, !o.camera)
	o.emit(o.mediaState())
}

func (o *Orchestrator) onScreenStart(v screenStart) {
	o.screen = true
	o.replaceVideo(v.track.Track)
	o.emit(o.mediaState())
	log.Info().Str("module", "mesh").Int("sessions", len(o.sessions)).Msg("screen share started")
}

func (o *Orchestrator) onScreenStop() {
	if !o.screen {
		return
	}
	o.screen = false
	var next webrtc.TrackLocal
	if cam, ok := o.captures.Track(core.TrackCamera); ok {
		next = cam.Track
	}
	o.replaceVideo(next)
	if err := o.captures.Stop(core.TrackScreen); err != nil && !errors.Is(err, media.ErrNoCapture) {
		log.Warn().Err(err).Str("module", "mesh").Msg("stop screen capture")
	}
	o.emit(o.mediaState())
	log.Info().Str("module", "mesh").Int("sessions", len(o.sessions)).Msg("screen share stopped")
}

// onScreenEnded handles a screen source that ended on its own.
func (o *Orchestrator) onScreenEnded(v screenEnded) {
	if t, ok := o.captures.Track(core.TrackScreen); o.screen && ok && t == v.track {
		o.onScreenStop()
	}
}

func (o *Orchestrator) replaceVideo(track webrtc.TrackLocal) {
	for _, s := range o.sessions {
		if !s.live() {
			continue
		}
		s.withConn(func(conn core.MediaConnection) {
			if err := conn.ReplaceVideoTrack(track); err != nil {
				_ = o.post(stepFailed{s: s, op: "replace-track", err: err})
			}
		})
	}
}
