package signal

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/CodeSync/internal/core"
	"github.com/dkeye/CodeSync/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.opts.WriteWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Debug().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.opts.WriteWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().Err(err).Str("module", "signal").Msg("writePump ping error")
				return
			}
		}
	}
}

// readPump owns the connection's presence: however it exits, the session
// is disconnected. It reports whether the peer left explicitly, in which
// case writePump flushes the queue and closes the socket.
func (ctl *SignalWSController) readPump(ctx context.Context, sid core.SessionID, c *WsSignalConn) (left bool) {
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(sid)).Bool("left", left).Msg("readPump closing")
		ctl.Orch.Disconnect(sid)
		ctl.limiter.Forget(sid)
		if !left {
			c.Close()
		}
		ctl.Metrics.ConnectionClosed()
	}()

	c.conn.SetReadLimit(ctl.opts.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
	})

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Str("sid", string(sid)).Msg("readPump ctx done")
			return false
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("readPump read error")
				}
				return false
			}
			if !ctl.limiter.Allow(sid) {
				log.Warn().Str("module", "signal").Str("sid", string(sid)).Msg("rate limited, event dropped")
				continue
			}
			if ctl.handleSignal(sid, c, data) {
				return true
			}
		}
	}
}

// handleSignal dispatches one frame and reports whether the connection left.
// Nothing is read from a connection after it leaves.
func (ctl *SignalWSController) handleSignal(sid core.SessionID, c *WsSignalConn, data []byte) bool {
	ev, err := protocol.Decode(data)
	if err != nil {
		ctl.handleBadFrame(sid, c, data, err)
		return false
	}

	switch ev := ev.(type) {
	case protocol.Join:
		ctl.handleJoin(sid, c, ev)
	case protocol.StatusChange:
		ctl.Orch.SetStatus(sid, ev.Online)
	case protocol.Typing:
		ctl.Orch.TypingStart(sid, ev)
	case protocol.TypingStop:
		ctl.Orch.TypingPause(sid)
	case protocol.Relayed:
		ctl.Orch.Forward(sid, ev)
	case protocol.FileStructureSync:
		ctl.Orch.SyncFileStructure(sid, ev)
	case protocol.DrawingRequest:
		ctl.Orch.RequestDrawing(sid)
	case protocol.DrawingSync:
		ctl.Orch.SyncDrawing(sid, ev)
	case protocol.Control:
		switch ev.Kind {
		case protocol.Ping:
			ctl.handlePing(c)
		case protocol.WhoAmI:
			ctl.handleWhoAmI(sid, c)
		case protocol.Leave:
			ctl.handleLeave(sid, c)
			return true
		}
	}
	return false
}

// handleBadFrame answers malformed join requests; every other bad frame is
// dropped since it has no reply channel.
func (ctl *SignalWSController) handleBadFrame(sid core.SessionID, c *WsSignalConn, data []byte, err error) {
	if errors.Is(err, protocol.ErrUnknownEvent) {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("unknown signal")
		return
	}
	log.Debug().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("bad payload")
	if protocol.PeekType(data) == protocol.JoinRequest {
		ctl.sendJSON(c, protocol.Error, protocol.ErrorPayload{Error: "bad_payload"})
	}
}

func (ctl *SignalWSController) sendJSON(c *WsSignalConn, t protocol.Type, payload any) {
	f, err := protocol.Encode(t, payload)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(f)
}
