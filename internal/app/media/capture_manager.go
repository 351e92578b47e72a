package media

import (
	"errors"
	"sync"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
)

var (
	ErrSourceClosed = errors.New("media source closed")
	ErrNoCapture    = errors.New("no capture for kind")
)

// CaptureManager owns the capture pumps, one per track kind.
type CaptureManager struct {
	mu       sync.Mutex
	captures map[core.TrackKind]*Capture
}

func NewCaptureManager() *CaptureManager {
	return &CaptureManager{captures: make(map[core.TrackKind]*Capture)}
}

// Start creates a LocalTrack for kind and begins pumping src into it.
// A previous capture of the same kind is stopped first.
func (m *CaptureManager) Start(kind core.TrackKind, src core.MediaSource) (*LocalTrack, error) {
	track, err := NewLocalTrack(kind)
	if err != nil {
		return nil, err
	}
	logger := log.With().Str("module", "media").Str("kind", string(kind)).Logger()
	c := NewCapture(track, src)

	m.mu.Lock()
	old := m.captures[kind]
	m.captures[kind] = c
	m.mu.Unlock()

	if old != nil {
		logger.Info().Msg("replacing existing capture")
		_ = old.stop()
	}
	logger.Info().Msg("starting capture loop")
	go c.loop(&logger)
	return track, nil
}

func (m *CaptureManager) Track(kind core.TrackKind) (*LocalTrack, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.captures[kind]
	if !ok {
		return nil, false
	}
	return c.Track, true
}

// SetMuted pauses or resumes forwarding without releasing the device.
func (m *CaptureManager) SetMuted(kind core.TrackKind, muted bool) error {
	m.mu.Lock()
	c, ok := m.captures[kind]
	m.mu.Unlock()
	if !ok {
		return ErrNoCapture
	}
	if muted {
		c.Track.MarkMuted()
	} else {
		c.Track.MarkOk()
	}
	return nil
}

// Stop releases the device of kind and waits for its pump.
func (m *CaptureManager) Stop(kind core.TrackKind) error {
	m.mu.Lock()
	c, ok := m.captures[kind]
	delete(m.captures, kind)
	m.mu.Unlock()
	if !ok {
		return ErrNoCapture
	}
	return c.stop()
}

// StopAll releases every device; it returns once all pumps have exited.
func (m *CaptureManager) StopAll() {
	m.mu.Lock()
	all := m.captures
	m.captures = make(map[core.TrackKind]*Capture)
	m.mu.Unlock()

	var wg conc.WaitGroup
	for kind, c := range all {
		wg.Go(func() {
			if err := c.stop(); err != nil {
				log.Warn().Err(err).Str("module", "media").Str("kind", string(kind)).Msg("close source")
			}
		})
	}
	wg.Wait()
}
