package signal

import (
	"encoding/json"
	"errors"

	"github.com/dkeye/Huddle/internal/app/hub"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

// maxRoomIDLen bounds client-supplied ids; longer ids are refused, never cut.
const maxRoomIDLen = 256

func roomIDTooLong(id domain.RoomID) bool {
	return len(id) > maxRoomIDLen
}

func (ctl *SignalWSController) handleCheckRole(conn *WsSignalConn, data []byte) {
	var p core.RoomRequest
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(conn, "bad_payload")
		return
	}
	if roomIDTooLong(p.RoomID) {
		ctl.sendError(conn, "bad_room")
		return
	}
	role, err := ctl.Hub.CheckRole(p.RoomID)
	if err != nil {
		ctl.sendError(conn, "bad_room")
		return
	}
	ctl.sendJSON(conn, core.RoleNotice{
		Type:   core.MsgRole,
		RoomID: p.RoomID,
		Role:   role,
	})
}

func (ctl *SignalWSController) handleJoin(id domain.UserID, conn *WsSignalConn, data []byte) {
	var p core.JoinRequest
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad join payload")
		ctl.sendError(conn, "bad_payload")
		return
	}
	if roomIDTooLong(p.RoomID) {
		ctl.sendError(conn, "bad_room")
		return
	}
	if ctl.Limiter != nil && !ctl.Limiter.Allow(id) {
		log.Warn().Str("module", "signal").Str("user_id", string(id)).Msg("join rate limited")
		ctl.sendError(conn, "rate_limited")
		return
	}

	// isHost is advisory; the hub alone decides who hosts
	if _, err := ctl.Hub.Join(p.RoomID, p.Display(), id); err != nil {
		switch {
		case errors.Is(err, hub.ErrEmptyRoom):
			ctl.sendError(conn, "bad_room")
		default:
			log.Error().Err(err).Str("module", "signal").Str("room_id", string(p.RoomID)).Msg("join failed")
			ctl.sendError(conn, "join_failed")
		}
	}
}

func (ctl *SignalWSController) handleDecision(id domain.UserID, conn *WsSignalConn, data []byte, d domain.Decision) {
	var p core.DecisionRequest
	if err := json.Unmarshal(data, &p); err != nil || p.UserID == "" {
		ctl.sendError(conn, "bad_payload")
		return
	}
	if !ctl.Hub.Decide(p.RoomID, id, p.UserID, d) {
		log.Debug().Str("module", "signal").Str("room_id", string(p.RoomID)).Str("caller", string(id)).Str("target", string(p.UserID)).Msg("decision ignored")
	}
}

func (ctl *SignalWSController) handleLeave(id domain.UserID, conn *WsSignalConn, data []byte) {
	var p core.RoomRequest
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(conn, "bad_payload")
		return
	}
	ctl.Hub.Leave(p.RoomID, id)
}
