package mesh

import (
	"sync"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/pion/webrtc/v4"
)

type SessionState int

const (
	StateNew SessionState = iota
	StateNegotiating
	StateConnected
	StateFailed
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateNegotiating:
		return "negotiating"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	}
	return "closed"
}

type role int

const (
	roleWaiting role = iota // peer announced itself, its offer is expected
	roleOfferer
	roleAnswerer
)

// PeerSession is the local view of one direct media session.
// Everything except conn is owned by the orchestrator loop; conn belongs to the worker.
type PeerSession struct {
	RemoteID domain.UserID

	role      role
	state     SessionState
	remoteSet bool
	localSent bool
	offering  bool

	inbound  []webrtc.ICECandidateInit // remote candidates waiting for the remote description
	outbound []webrtc.ICECandidateInit // local candidates waiting for our description to be sent

	conn   core.MediaConnection
	worker *worker
}

func newPeerSession(remote domain.UserID, r role) *PeerSession {
	return &PeerSession{RemoteID: remote, role: r, worker: newWorker()}
}

func (s *PeerSession) State() SessionState { return s.state }

func (s *PeerSession) live() bool {
	return s.state != StateClosed && s.state != StateFailed
}

// SessionInfo is a snapshot of one session for status displays.
type SessionInfo struct {
	RemoteID domain.UserID `json:"remoteId"`
	State    string        `json:"state"`
	Offerer  bool          `json:"offerer"`
}

// worker runs transport calls of one session one at a time, in submission order.
// submit never blocks.
type worker struct {
	mu      sync.Mutex
	queue   []func()
	stopped bool

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
}

func newWorker() *worker {
	w := &worker{
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *worker) submit(f func()) bool {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return false
	}
	w.queue = append(w.queue, f)
	w.mu.Unlock()
	select {
	case w.wake <- struct{}{}:
	default:
	}
	return true
}

// finish runs f after everything already queued, then stops the worker.
func (w *worker) finish(f func()) {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.queue = append(w.queue, f)
	w.stopped = true
	w.mu.Unlock()
	close(w.stop)
}

func (w *worker) pop() func() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.queue) == 0 {
		return nil
	}
	f := w.queue[0]
	w.queue[0] = nil
	w.queue = w.queue[1:]
	return f
}

func (w *worker) run() {
	defer close(w.done)
	for {
		if f := w.pop(); f != nil {
			f()
			continue
		}
		select {
		case <-w.wake:
		case <-w.stop:
			// drain whatever finish queued
			for f := w.pop(); f != nil; f = w.pop() {
				f()
			}
			return
		}
	}
}
