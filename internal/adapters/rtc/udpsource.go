package rtc

import (
	"errors"
	"fmt"
	"net"

	"github.com/dkeye/Huddle/internal/app/media"
	"github.com/pion/rtp"
	"github.com/rs/zerolog/log"
)

const maxRTPPacket = 1500

// UDPSource reads RTP from a local UDP port, e.g. fed by
// `ffmpeg ... -f rtp rtp://127.0.0.1:<port>`.
type UDPSource struct {
	conn *net.UDPConn
	buf  []byte
}

func ListenUDP(port int) (*UDPSource, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port})
	if err != nil {
		return nil, fmt.Errorf("listen rtp on %d: %w", port, err)
	}
	return &UDPSource{conn: conn, buf: make([]byte, maxRTPPacket)}, nil
}

func (s *UDPSource) Addr() net.Addr { return s.conn.LocalAddr() }

// ReadRTP skips datagrams that are not RTP.
func (s *UDPSource) ReadRTP() (*rtp.Packet, error) {
	for {
		n, _, err := s.conn.ReadFrom(s.buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil, media.ErrSourceClosed
			}
			return nil, err
		}
		pkt := &rtp.Packet{}
		if err := pkt.Unmarshal(s.buf[:n]); err != nil {
			log.Debug().Err(err).Str("module", "rtc").Str("addr", s.Addr().String()).Msg("dropping non-RTP datagram")
			continue
		}
		return pkt, nil
	}
}

func (s *UDPSource) Close() error {
	return s.conn.Close()
}
