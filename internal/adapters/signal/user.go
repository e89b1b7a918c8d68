package signal

import "github.com/dkeye/CodeSync/internal/core"

func (ctl *SignalWSController) handleWhoAmI(sid core.SessionID, conn *WsSignalConn) {
	ctl.Orch.WhoAmI(sid, conn)
}
