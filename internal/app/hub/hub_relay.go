package hub

import (
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

// Relay forwards an offer, answer or ice-candidate to its addressee.
// The payload is passed through untouched; only the sender id is rewritten.
func (h *Hub) Relay(from domain.UserID, msg core.SignalMessage) error {
	if !core.IsRelayType(msg.Type) || msg.To == "" {
		return ErrBadRelay
	}
	out := core.SignalMessage{
		Type:      msg.Type,
		From:      from,
		SDP:       msg.SDP,
		Candidate: msg.Candidate,
	}
	frame, err := core.Encode(out)
	if err != nil {
		return err
	}
	if _, ok := h.Registry.Signal(msg.To); !ok {
		log.Warn().Str("module", "hub").Str("type", msg.Type).Str("from", string(from)).Str("to", string(msg.To)).Msg("relay to unknown peer dropped")
		return ErrUnknownPeer
	}
	if h.sendFrame("", msg.To, frame) {
		h.Metrics.IncRelayed(msg.Type)
	}
	return nil
}
