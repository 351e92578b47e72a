package mesh

import (
	"encoding/json"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

type setSelf struct{ id domain.UserID }

type existingUsers struct{ ids []domain.UserID }

type userJoined struct{ id domain.UserID }

type userLeft struct{ id domain.UserID }

type remoteSignal struct{ msg core.SignalMessage }

type snapshotReq struct{ reply chan []SessionInfo }

// worker completions

type connFailed struct {
	s   *PeerSession
	err error
}

type localDescription struct {
	s   *PeerSession
	sdp webrtc.SessionDescription
	err error
}

type remoteApplied struct {
	s      *PeerSession
	op     string
	answer *webrtc.SessionDescription
	err    error
}

type stepFailed struct {
	s   *PeerSession
	op  string
	err error
}

// transport callbacks

type localCandidate struct {
	s *PeerSession
	c webrtc.ICECandidateInit
}

type transportState struct {
	s  *PeerSession
	st webrtc.PeerConnectionState
}

type remoteTrack struct {
	s     *PeerSession
	track *webrtc.TrackRemote
}

type outgoing struct {
	kind  core.TrackKind
	track webrtc.TrackLocal
}

func (o *Orchestrator) onExisting(id domain.UserID) {
	if id == "" || id == o.self {
		return
	}
	if _, ok := o.sessions[id]; ok {
		log.Debug().Str("module", "mesh").Str("remote_id", string(id)).Msg("session already exists")
		return
	}
	s := o.openSession(id, roleOfferer)
	s.offering = true
	o.setState(s, StateNegotiating)
}

func (o *Orchestrator) onJoined(id domain.UserID) {
	if id == "" || id == o.self {
		return
	}
	if _, ok := o.sessions[id]; ok {
		return
	}
	o.openSession(id, roleWaiting)
}

func (o *Orchestrator) onLeft(id domain.UserID) {
	s, ok := o.sessions[id]
	if !ok {
		return
	}
	o.drop(s, StateClosed, "left")
}

// openSession registers a session and queues creation of its transport.
func (o *Orchestrator) openSession(id domain.UserID, r role) *PeerSession {
	s := newPeerSession(id, r)
	o.sessions[id] = s
	tracks := o.outgoingTracks()
	offer := r == roleOfferer

	s.worker.submit(func() {
		conn, err := o.transports.NewConnection(id)
		if err != nil {
			_ = o.post(connFailed{s: s, err: err})
			return
		}
		conn.OnICECandidate(func(c webrtc.ICECandidateInit) { _ = o.post(localCandidate{s: s, c: c}) })
		conn.OnTrack(func(t *webrtc.TrackRemote, _ *webrtc.RTPReceiver) { _ = o.post(remoteTrack{s: s, track: t}) })
		conn.OnStateChange(func(st webrtc.PeerConnectionState) { _ = o.post(transportState{s: s, st: st}) })
		for _, t := range tracks {
			if err := conn.AddLocalTrack(t.kind, t.track); err != nil {
				log.Warn().Err(err).Str("module", "mesh").Str("remote_id", string(id)).Str("kind", string(t.kind)).Msg("add local track")
			}
		}
		s.conn = conn
		if offer {
			sdp, err := conn.CreateOffer()
			_ = o.post(localDescription{s: s, sdp: sdp, err: err})
		}
	})
	log.Info().Str("module", "mesh").Str("remote_id", string(id)).Bool("offerer", offer).Msg("session opened")
	return s
}

// withConn queues f on the session worker; f is skipped if the transport never came up.
func (s *PeerSession) withConn(f func(core.MediaConnection)) {
	s.worker.submit(func() {
		if s.conn != nil {
			f(s.conn)
		}
	})
}

func (o *Orchestrator) setState(s *PeerSession, st SessionState) {
	if s.state == st {
		return
	}
	s.state = st
	o.emit(SessionStateChanged{RemoteID: s.RemoteID, State: st})
}

// drop removes a session from the mesh and closes it in the background.
func (o *Orchestrator) drop(s *PeerSession, final SessionState, reason string) {
	if o.sessions[s.RemoteID] == s {
		delete(o.sessions, s.RemoteID)
	}
	o.setState(s, final)
	o.closeSession(s, final, false)
	o.emit(SessionRemoved{RemoteID: s.RemoteID, Reason: reason})
	log.Info().Str("module", "mesh").Str("remote_id", string(s.RemoteID)).Str("reason", reason).Msg("session removed")
}

// closeSession is idempotent; with wait it returns after the transport is closed.
func (o *Orchestrator) closeSession(s *PeerSession, final SessionState, wait bool) {
	s.state = final
	s.inbound = nil
	s.outbound = nil
	s.worker.finish(func() {
		if s.conn == nil {
			return
		}
		if err := s.conn.Close(); err != nil {
			log.Warn().Err(err).Str("module", "mesh").Str("remote_id", string(s.RemoteID)).Msg("close transport")
		}
	})
	if wait {
		<-s.worker.done
	}
}

func (o *Orchestrator) onConnFailed(v connFailed) {
	if !o.current(v.s) {
		return
	}
	o.report(negErr("new-connection", v.s.RemoteID, v.err))
	o.drop(v.s, StateFailed, "transport failed")
}

func (o *Orchestrator) onSignal(msg core.SignalMessage) {
	from := msg.From
	switch msg.Type {
	case core.MsgOffer:
		o.onOffer(from, msg.SDP)
	case core.MsgAnswer:
		o.onAnswer(from, msg.SDP)
	case core.MsgICECandidate:
		o.onRemoteCandidate(from, msg.Candidate)
	default:
		o.report(negErr("signal", from, ErrBadPayload))
	}
}

func decodeDescription(raw json.RawMessage, want webrtc.SDPType) (webrtc.SessionDescription, bool) {
	var sd webrtc.SessionDescription
	if len(raw) == 0 || json.Unmarshal(raw, &sd) != nil {
		return sd, false
	}
	return sd, sd.Type == want && sd.SDP != ""
}

func (o *Orchestrator) onOffer(from domain.UserID, raw json.RawMessage) {
	sd, ok := decodeDescription(raw, webrtc.SDPTypeOffer)
	if !ok || from == "" {
		o.report(negErr("offer", from, ErrBadPayload))
		return
	}
	s, exists := o.sessions[from]
	switch {
	case !exists:
		s = o.openSession(from, roleAnswerer)
	case s.offering:
		o.report(negErr("offer", from, ErrGlare))
		return
	default:
		s.role = roleAnswerer
	}
	o.setState(s, StateNegotiating)

	s.withConn(func(conn core.MediaConnection) {
		answer, err := conn.ApplyOffer(sd)
		_ = o.post(remoteApplied{s: s, op: "apply-offer", answer: &answer, err: err})
	})
}

func (o *Orchestrator) onAnswer(from domain.UserID, raw json.RawMessage) {
	s, ok := o.sessions[from]
	if !ok {
		o.report(negErr("answer", from, ErrUnknownSession))
		return
	}
	if !s.offering {
		o.report(negErr("answer", from, ErrUnexpectedAnswer))
		return
	}
	sd, ok := decodeDescription(raw, webrtc.SDPTypeAnswer)
	if !ok {
		o.report(negErr("answer", from, ErrBadPayload))
		return
	}
	s.withConn(func(conn core.MediaConnection) {
		err := conn.ApplyAnswer(sd)
		_ = o.post(remoteApplied{s: s, op: "apply-answer", err: err})
	})
}

func (o *Orchestrator) onRemoteCandidate(from domain.UserID, raw json.RawMessage) {
	s, ok := o.sessions[from]
	if !ok {
		o.report(negErr("ice-candidate", from, ErrUnknownSession))
		return
	}
	var c webrtc.ICECandidateInit
	if len(raw) == 0 || json.Unmarshal(raw, &c) != nil {
		o.report(negErr("ice-candidate", from, ErrBadPayload))
		return
	}
	if c.Candidate == "" {
		// end-of-candidates marker
		return
	}
	if !s.remoteSet {
		if len(s.inbound) >= o.cfg.MaxPendingCandidates {
			o.report(negErr("ice-candidate", from, ErrCandidateOverflow))
			return
		}
		s.inbound = append(s.inbound, c)
		return
	}
	o.addCandidate(s, c)
}

func (o *Orchestrator) addCandidate(s *PeerSession, c webrtc.ICECandidateInit) {
	s.withConn(func(conn core.MediaConnection) {
		if err := conn.AddICECandidate(c); err != nil {
			_ = o.post(stepFailed{s: s, op: "add-candidate", err: err})
		}
	})
}

func (o *Orchestrator) onLocalDescription(v localDescription) {
	s := v.s
	if !o.current(s) {
		return
	}
	if v.err != nil {
		o.report(negErr("create-offer", s.RemoteID, v.err))
		o.drop(s, StateFailed, "transport failed")
		return
	}
	o.sendDescription(s, core.MsgOffer, v.sdp)
}

func (o *Orchestrator) onRemoteApplied(v remoteApplied) {
	s := v.s
	if !o.current(s) {
		return
	}
	if v.err != nil {
		o.report(negErr(v.op, s.RemoteID, v.err))
		return
	}
	s.remoteSet = true
	s.offering = false
	if v.answer != nil {
		o.sendDescription(s, core.MsgAnswer, *v.answer)
	}
	// flush in arrival order, then forget
	for _, c := range s.inbound {
		o.addCandidate(s, c)
	}
	s.inbound = nil
}

func (o *Orchestrator) sendDescription(s *PeerSession, typ string, sd webrtc.SessionDescription) {
	raw, err := json.Marshal(sd)
	if err != nil {
		o.report(negErr(typ, s.RemoteID, err))
		return
	}
	if err := o.signal.SendSignal(core.SignalMessage{Type: typ, To: s.RemoteID, From: o.self, SDP: raw}); err != nil {
		o.report(negErr(typ, s.RemoteID, err))
		return
	}
	s.localSent = true
	for _, c := range s.outbound {
		o.sendCandidate(s, c)
	}
	s.outbound = nil
}

func (o *Orchestrator) onLocalCandidate(v localCandidate) {
	s := v.s
	if !o.current(s) {
		return
	}
	if !s.localSent {
		s.outbound = append(s.outbound, v.c)
		return
	}
	o.sendCandidate(s, v.c)
}

func (o *Orchestrator) sendCandidate(s *PeerSession, c webrtc.ICECandidateInit) {
	raw, err := json.Marshal(c)
	if err != nil {
		o.report(negErr("ice-candidate", s.RemoteID, err))
		return
	}
	if err := o.signal.SendSignal(core.SignalMessage{Type: core.MsgICECandidate, To: s.RemoteID, From: o.self, Candidate: raw}); err != nil {
		o.report(negErr("ice-candidate", s.RemoteID, err))
	}
}

func (o *Orchestrator) onTransportState(v transportState) {
	s := v.s
	if !o.current(s) {
		return
	}
	log.Debug().Str("module", "mesh").Str("remote_id", string(s.RemoteID)).Str("state", v.st.String()).Msg("transport state")
	switch v.st {
	case webrtc.PeerConnectionStateConnected:
		o.setState(s, StateConnected)
	case webrtc.PeerConnectionStateFailed:
		o.drop(s, StateFailed, "transport failed")
	case webrtc.PeerConnectionStateClosed:
		o.drop(s, StateClosed, "transport closed")
	default:
	}
}
