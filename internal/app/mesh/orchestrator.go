// Package mesh keeps one direct media session per remote participant and
// drives their negotiation from hub messages.
package mesh

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/dkeye/Huddle/internal/app/media"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
)

const (
	DefaultMaxPendingCandidates = 64
	defaultInboxSize            = 256
	defaultEventBuffer          = 128
)

// Signaler delivers negotiation messages to the hub.
type Signaler interface {
	SendSignal(msg core.SignalMessage) error
}

// TransportFactory opens a media connection towards one remote participant.
type TransportFactory interface {
	NewConnection(remote domain.UserID) (core.MediaConnection, error)
}

type Config struct {
	MaxPendingCandidates int
	EventBuffer          int
}

// Orchestrator processes every input on a single loop goroutine, in arrival order.
// Transport calls run on per-session workers and report back through the same loop.
type Orchestrator struct {
	cfg        Config
	signal     Signaler
	transports TransportFactory
	captures   *media.CaptureManager

	inbox  chan any
	events chan Event

	ctx      context.Context
	cancel   context.CancelFunc
	running  atomic.Bool
	loopDone chan struct{}
	teardown sync.Once

	// loop-owned
	self     domain.UserID
	sessions map[domain.UserID]*PeerSession
	mic      bool
	camera   bool
	screen   bool
}

func New(cfg Config, sig Signaler, transports TransportFactory, captures *media.CaptureManager) *Orchestrator {
	if cfg.MaxPendingCandidates <= 0 {
		cfg.MaxPendingCandidates = DefaultMaxPendingCandidates
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = defaultEventBuffer
	}
	if captures == nil {
		captures = media.NewCaptureManager()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		cfg:        cfg,
		signal:     sig,
		transports: transports,
		captures:   captures,
		inbox:      make(chan any, defaultInboxSize),
		events:     make(chan Event, cfg.EventBuffer),
		ctx:        ctx,
		cancel:     cancel,
		loopDone:   make(chan struct{}),
		sessions:   make(map[domain.UserID]*PeerSession),
		mic:        true,
		camera:     true,
	}
}

// Events is closed after the orchestrator shuts down.
func (o *Orchestrator) Events() <-chan Event { return o.events }

// Run is the ordered event loop. It returns when ctx is done or Close is called,
// after every session has been closed and every device released.
func (o *Orchestrator) Run(ctx context.Context) error {
	if o.ctx.Err() != nil {
		return ErrClosed
	}
	if !o.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(o.loopDone)
	defer o.shutdown()
	for {
		select {
		case <-ctx.Done():
			o.cancel()
			return ctx.Err()
		case <-o.ctx.Done():
			return nil
		case in := <-o.inbox:
			o.handle(in)
		}
	}
}

// Close stops the loop, closes every session and releases local devices.
// It returns once all of that has happened.
func (o *Orchestrator) Close() {
	o.cancel()
	if o.running.Load() {
		<-o.loopDone
		return
	}
	o.shutdown()
}

func (o *Orchestrator) shutdown() {
	o.teardown.Do(func() {
		var wg conc.WaitGroup
		for id, s := range o.sessions {
			delete(o.sessions, id)
			wg.Go(func() { o.closeSession(s, StateClosed, true) })
		}
		wg.Wait()
		o.captures.StopAll()
		close(o.events)
		log.Info().Str("module", "mesh").Msg("orchestrator closed")
	})
}

func (o *Orchestrator) post(in any) error {
	select {
	case <-o.ctx.Done():
		return ErrClosed
	default:
	}
	select {
	case o.inbox <- in:
		return nil
	case <-o.ctx.Done():
		return ErrClosed
	}
}

func (o *Orchestrator) emit(ev Event) {
	select {
	case o.events <- ev:
	default:
		log.Warn().Str("module", "mesh").Msgf("event dropped: %T", ev)
	}
}

// SetSelf records the local connection id handed out by the hub.
func (o *Orchestrator) SetSelf(id domain.UserID) error { return o.post(setSelf{id: id}) }

// ExistingUsers starts an offering session towards every listed participant.
func (o *Orchestrator) ExistingUsers(ids []domain.UserID) error {
	return o.post(existingUsers{ids: append([]domain.UserID(nil), ids...)})
}

// UserJoined prepares a session that waits for the newcomer's offer.
func (o *Orchestrator) UserJoined(id domain.UserID) error { return o.post(userJoined{id: id}) }

func (o *Orchestrator) UserLeft(id domain.UserID) error { return o.post(userLeft{id: id}) }

// HandleSignal feeds a relayed offer, answer or ice-candidate into the loop.
func (o *Orchestrator) HandleSignal(msg core.SignalMessage) error {
	return o.post(remoteSignal{msg: msg})
}

// Sessions returns a snapshot of the live sessions.
func (o *Orchestrator) Sessions(ctx context.Context) ([]SessionInfo, error) {
	reply := make(chan []SessionInfo, 1)
	if err := o.post(snapshotReq{reply: reply}); err != nil {
		return nil, err
	}
	select {
	case out := <-reply:
		return out, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-o.ctx.Done():
		return nil, ErrClosed
	}
}

func (o *Orchestrator) handle(in any) {
	switch v := in.(type) {
	case setSelf:
		o.self = v.id
	case existingUsers:
		for _, id := range v.ids {
			o.onExisting(id)
		}
	case userJoined:
		o.onJoined(v.id)
	case userLeft:
		o.onLeft(v.id)
	case remoteSignal:
		o.onSignal(v.msg)
	case connFailed:
		o.onConnFailed(v)
	case localDescription:
		o.onLocalDescription(v)
	case remoteApplied:
		o.onRemoteApplied(v)
	case localCandidate:
		o.onLocalCandidate(v)
	case stepFailed:
		if o.current(v.s) {
			o.report(negErr(v.op, v.s.RemoteID, v.err))
		}
	case transportState:
		o.onTransportState(v)
	case remoteTrack:
		if o.current(v.s) {
			o.emit(RemoteTrack{RemoteID: v.s.RemoteID, Track: v.track})
		}
	case mediaToggle:
		o.onMediaToggle(v)
	case screenStart:
		o.onScreenStart(v)
	case screenStop:
		o.onScreenStop()
	case screenEnded:
		o.onScreenEnded(v)
	case mediaAcquired:
		o.onMediaAcquired()
	case snapshotReq:
		v.reply <- o.snapshot()
	default:
		log.Warn().Str("module", "mesh").Msgf("unknown input %T", in)
	}
}

// current reports whether s is still the registered session for its peer.
func (o *Orchestrator) current(s *PeerSession) bool {
	return s != nil && o.sessions[s.RemoteID] == s && s.live()
}

func (o *Orchestrator) snapshot() []SessionInfo {
	out := make([]SessionInfo, 0, len(o.sessions))
	for _, s := range o.sessions {
		out = append(out, SessionInfo{RemoteID: s.RemoteID, State: s.state.String(), Offerer: s.role == roleOfferer})
	}
	return out
}

// report logs a negotiation error; the offending message is already discarded.
func (o *Orchestrator) report(err *NegotiationError) {
	log.Warn().Err(err).Str("module", "mesh").Str("remote_id", string(err.RemoteID)).Msg("negotiation error")
	o.emit(NegotiationFailed{Err: err})
}
