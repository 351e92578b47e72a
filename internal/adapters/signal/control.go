package signal

import "github.com/dkeye/Huddle/internal/core"

func (ctl *SignalWSController) handlePing(conn *WsSignalConn) {
	ctl.sendJSON(conn, core.Envelope{Type: core.MsgPong})
}
