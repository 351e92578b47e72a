package signal

import (
	"encoding/json"
	"errors"

	"github.com/dkeye/Huddle/internal/app/hub"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

// handleRelay forwards offer, answer and ice-candidate frames between peers.
func (ctl *SignalWSController) handleRelay(id domain.UserID, conn *WsSignalConn, data []byte) {
	var msg core.SignalMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad relay payload")
		ctl.sendError(conn, "bad_payload")
		return
	}
	err := ctl.Hub.Relay(id, msg)
	switch {
	case err == nil, errors.Is(err, hub.ErrUnknownPeer):
		// unknown addressees are dropped silently
	case errors.Is(err, hub.ErrBadRelay):
		ctl.sendError(conn, "bad_payload")
	default:
		log.Error().Err(err).Str("module", "signal").Str("type", msg.Type).Msg("relay")
	}
}
