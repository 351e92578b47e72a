package rtc

import (
	"errors"
	"strings"
	"sync"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var ErrUnknownKind = errors.New("unknown track kind")

// ICEConfig splits urls into STUN and TURN entries; TURN gets the credentials.
func ICEConfig(urls []string, username, password string) webrtc.Configuration {
	var stun, turn []string
	for _, u := range urls {
		switch {
		case strings.HasPrefix(u, "turn:"), strings.HasPrefix(u, "turns:"):
			turn = append(turn, u)
		case u != "":
			stun = append(stun, u)
		}
	}
	if len(stun) == 0 && len(turn) == 0 {
		stun = []string{"stun:stun.l.google.com:19302"}
	}
	var servers []webrtc.ICEServer
	if len(stun) > 0 {
		servers = append(servers, webrtc.ICEServer{URLs: stun})
	}
	if len(turn) > 0 {
		servers = append(servers, webrtc.ICEServer{URLs: turn, Username: username, Credential: password})
	}
	return webrtc.Configuration{ICEServers: servers}
}

// Factory opens pion peer connections for the mesh.
type Factory struct {
	Config webrtc.Configuration
}

func (f Factory) NewConnection(remote domain.UserID) (core.MediaConnection, error) {
	conn, err := NewWebRTCConnection(f.Config, remote)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// WebRTCConnection is a core.MediaConnection backed by a pion PeerConnection.
// It always carries one audio and one video transceiver so the outgoing video
// can be swapped later without renegotiation.
type WebRTCConnection struct {
	pc     *webrtc.PeerConnection
	remote domain.UserID
	audio  *webrtc.RTPSender
	video  *webrtc.RTPSender

	mu      sync.RWMutex
	onICE   func(webrtc.ICECandidateInit)
	onTrack func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)
	onState func(webrtc.PeerConnectionState)
}

func NewWebRTCConnection(cfg webrtc.Configuration, remote domain.UserID) (*WebRTCConnection, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	c := &WebRTCConnection{pc: pc, remote: remote}

	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
		tr, err := pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionSendrecv})
		if err != nil {
			_ = pc.Close()
			return nil, err
		}
		if kind == webrtc.RTPCodecTypeAudio {
			c.audio = tr.Sender()
		} else {
			c.video = tr.Sender()
		}
		go drainRTCP(tr.Sender())
	}
	c.bind()
	return c, nil
}

// drainRTCP keeps interceptors fed; the loop ends when the connection closes.
func drainRTCP(sender *webrtc.RTPSender) {
	rtcpBuf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(rtcpBuf); err != nil {
			return
		}
	}
}

func (c *WebRTCConnection) bind() {
	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "webrtc").Str("remote_id", string(c.remote)).Str("peer_connection_state", s.String()).Msg("Peer state")
		c.mu.RLock()
		cb := c.onState
		c.mu.RUnlock()
		if cb != nil {
			cb(s)
		}
	})

	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		c.mu.RLock()
		cb := c.onICE
		c.mu.RUnlock()
		if cand != nil && cb != nil {
			cb(cand.ToJSON())
		}
	})

	c.pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "webrtc").
			Str("remote_id", string(c.remote)).
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")
		c.mu.RLock()
		cb := c.onTrack
		c.mu.RUnlock()
		if cb != nil {
			cb(track, receiver)
		}
	})
}

func (c *WebRTCConnection) CreateOffer() (webrtc.SessionDescription, error) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return offer, nil
}

func (c *WebRTCConnection) ApplyOffer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	if err := c.pc.SetRemoteDescription(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return answer, nil
}

func (c *WebRTCConnection) ApplyAnswer(answer webrtc.SessionDescription) error {
	return c.pc.SetRemoteDescription(answer)
}

func (c *WebRTCConnection) AddICECandidate(ci webrtc.ICECandidateInit) error {
	return c.pc.AddICECandidate(ci)
}

// AddLocalTrack puts track on the audio or the video transceiver.
func (c *WebRTCConnection) AddLocalTrack(kind core.TrackKind, track webrtc.TrackLocal) error {
	switch kind {
	case core.TrackAudio:
		return c.audio.ReplaceTrack(track)
	case core.TrackCamera, core.TrackScreen:
		return c.video.ReplaceTrack(track)
	}
	return ErrUnknownKind
}

func (c *WebRTCConnection) ReplaceVideoTrack(track webrtc.TrackLocal) error {
	return c.video.ReplaceTrack(track)
}

func (c *WebRTCConnection) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onICE = fn
}

// OnTrack sets application-level callback for remote tracks.
func (c *WebRTCConnection) OnTrack(fn func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onTrack = fn
}

func (c *WebRTCConnection) OnStateChange(fn func(webrtc.PeerConnectionState)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = fn
}

func (c *WebRTCConnection) Close() error {
	if err := c.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "webrtc").Str("remote_id", string(c.remote)).Msg("close error")
		return err
	}
	log.Info().Str("module", "webrtc").Str("remote_id", string(c.remote)).Msg("closed")
	return nil
}
