package signal

import (
	"github.com/dkeye/CodeSync/internal/core"
	"github.com/dkeye/CodeSync/internal/protocol"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleJoin(sid core.SessionID, conn *WsSignalConn, p protocol.Join) {
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room_id", p.RoomID).Msg("join")
	if err := ctl.Orch.Join(sid, conn, p); err != nil {
		log.Debug().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("join not accepted")
	}
}

// handleLeave is the explicit form of a transport close: the session is
// removed, "left" is flushed, then the socket is closed.
func (ctl *SignalWSController) handleLeave(sid core.SessionID, conn *WsSignalConn) {
	log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("leave")
	ctl.Orch.Disconnect(sid)
	ctl.sendJSON(conn, protocol.Left, nil)
	conn.Drain()
}
