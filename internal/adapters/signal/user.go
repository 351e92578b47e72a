package signal

import (
	"encoding/json"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleChat(id domain.UserID, conn *WsSignalConn, data []byte) {
	var p core.ChatRequest
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad chat payload")
		ctl.sendError(conn, "bad_payload")
		return
	}
	if !ctl.Hub.Chat(p.RoomID, id, p.Text) {
		ctl.sendError(conn, "chat_rejected")
	}
}
