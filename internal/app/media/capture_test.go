package media

import (
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chanSource struct {
	pkts   chan *rtp.Packet
	once   sync.Once
	closed chan struct{}
}

func newChanSource() *chanSource {
	return &chanSource{pkts: make(chan *rtp.Packet), closed: make(chan struct{})}
}

func (s *chanSource) ReadRTP() (*rtp.Packet, error) {
	select {
	case p := <-s.pkts:
		return p, nil
	case <-s.closed:
		return nil, ErrSourceClosed
	}
}

func (s *chanSource) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

func (s *chanSource) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func (s *chanSource) push(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case s.pkts <- &rtp.Packet{Header: rtp.Header{SequenceNumber: uint16(i)}}:
		case <-time.After(time.Second):
			t.Fatal("capture loop not reading")
		}
	}
}

func waitPackets(t *testing.T, lt *LocalTrack, want uint64) {
	t.Helper()
	require.Eventually(t, func() bool { return lt.Packets() == want }, time.Second, 5*time.Millisecond)
}

func TestCaptureManager_ForwardsUntilMuted(t *testing.T) {
	m := NewCaptureManager()
	src := newChanSource()
	track, err := m.Start(core.TrackAudio, src)
	require.NoError(t, err)
	assert.Equal(t, "audio", track.Track.ID())
	assert.Equal(t, StreamID, track.Track.StreamID())

	src.push(t, 3)
	waitPackets(t, track, 3)

	require.NoError(t, m.SetMuted(core.TrackAudio, true))
	assert.Equal(t, TrackStateMuted, track.GetState())
	src.push(t, 2)

	// the first muted packet was fully handled before the second was read
	require.NoError(t, m.SetMuted(core.TrackAudio, false))
	src.push(t, 1)
	require.Eventually(t, func() bool { return track.Packets() >= 4 }, time.Second, 5*time.Millisecond)
	assert.LessOrEqual(t, track.Packets(), uint64(5))

	m.StopAll()
	assert.True(t, src.isClosed())
	assert.Equal(t, TrackStateStopped, track.GetState())
}

func TestCaptureManager_StopReleasesDevice(t *testing.T) {
	m := NewCaptureManager()
	src := newChanSource()
	_, err := m.Start(core.TrackCamera, src)
	require.NoError(t, err)

	require.NoError(t, m.Stop(core.TrackCamera))
	assert.True(t, src.isClosed())
	assert.ErrorIs(t, m.Stop(core.TrackCamera), ErrNoCapture)
	assert.ErrorIs(t, m.SetMuted(core.TrackCamera, true), ErrNoCapture)
	_, ok := m.Track(core.TrackCamera)
	assert.False(t, ok)
}

func TestCaptureManager_RestartReplacesCapture(t *testing.T) {
	m := NewCaptureManager()
	first := newChanSource()
	second := newChanSource()
	_, err := m.Start(core.TrackScreen, first)
	require.NoError(t, err)
	track, err := m.Start(core.TrackScreen, second)
	require.NoError(t, err)

	assert.True(t, first.isClosed())
	got, ok := m.Track(core.TrackScreen)
	require.True(t, ok)
	assert.Same(t, track, got)
	m.StopAll()
	assert.True(t, second.isClosed())
}

func TestLocalTrack_StoppedIsTerminal(t *testing.T) {
	lt, err := NewLocalTrack(core.TrackCamera)
	require.NoError(t, err)
	assert.Equal(t, "video", lt.Track.Kind().String())

	lt.MarkStopped()
	lt.MarkOk()
	lt.MarkMuted()
	assert.Equal(t, TrackStateStopped, lt.GetState())
}
