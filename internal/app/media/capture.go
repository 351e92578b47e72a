package media

import (
	"errors"
	"io"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/rs/zerolog"
)

// Capture pumps RTP from one device into its LocalTrack.
type Capture struct {
	Track *LocalTrack

	src  core.MediaSource
	done chan struct{}
}

func NewCapture(track *LocalTrack, src core.MediaSource) *Capture {
	return &Capture{Track: track, src: src, done: make(chan struct{})}
}

// loop reads packets until the source fails or is closed.
func (c *Capture) loop(logger *zerolog.Logger) {
	defer close(c.done)
	defer c.Track.MarkStopped()
	for {
		pkt, err := c.src.ReadRTP()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, ErrSourceClosed) {
				logger.Info().Msg("capture source closed")
			} else if c.Track.GetState() != TrackStateStopped {
				logger.Error().Err(err).Msg("capture read RTP error, stopping")
			}
			return
		}
		if err := c.Track.write(pkt); err != nil {
			logger.Warn().Err(err).Msg("capture write RTP error")
		}
	}
}

// stop releases the device and waits for the pump to exit.
func (c *Capture) stop() error {
	c.Track.MarkStopped()
	err := c.src.Close()
	<-c.done
	return err
}

// Done is closed once the pump has exited.
func (c *Capture) Done() <-chan struct{} { return c.done }
