package signal

import "github.com/dkeye/CodeSync/internal/protocol"

func (ctl *SignalWSController) handlePing(conn *WsSignalConn) {
	ctl.sendJSON(conn, protocol.Pong, nil)
}
