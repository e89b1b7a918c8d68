package orch

import (
	"github.com/dkeye/CodeSync/internal/core"
	"github.com/dkeye/CodeSync/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Forward relays a file, directory, chat or drawing-update event to the
// rest of the sender's room. Concurrent edits are last-write-wins.
func (o *Orchestrator) Forward(sid core.SessionID, ev protocol.Relayed) {
	t := protocol.OutboundType(ev.Kind)
	f, err := protocol.Encode(t, ev.Payload)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("type", string(t)).Msg("encode relay")
		return
	}
	if _, ok := o.Relay.Broadcast(sid, f); ok {
		o.Metrics.Relayed(string(t))
	}
}

// SyncFileStructure hands a full file tree to one room mate.
func (o *Orchestrator) SyncFileStructure(sid core.SessionID, ev protocol.FileStructureSync) {
	f, err := protocol.Encode(protocol.SyncFileStructure, ev.Payload)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("encode file structure")
		return
	}
	if o.Relay.Unicast(sid, core.SessionID(ev.Target), f) {
		o.Metrics.Relayed(string(protocol.SyncFileStructure))
	}
}

// RequestDrawing asks the sender's room mates for the current canvas.
func (o *Orchestrator) RequestDrawing(sid core.SessionID) {
	f, err := protocol.Encode(protocol.RequestDrawing, protocol.ConnectionPayload{ConnectionID: string(sid)})
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("encode drawing request")
		return
	}
	if _, ok := o.Relay.Broadcast(sid, f); ok {
		o.Metrics.Relayed(string(protocol.RequestDrawing))
	}
}

// SyncDrawing answers a drawing request, to the requester only.
func (o *Orchestrator) SyncDrawing(sid core.SessionID, ev protocol.DrawingSync) {
	f, err := protocol.Encode(protocol.SyncDrawing, protocol.DrawingSyncPayload{CanvasData: ev.CanvasData})
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("encode drawing sync")
		return
	}
	if o.Relay.Unicast(sid, core.SessionID(ev.Target), f) {
		o.Metrics.Relayed(string(protocol.SyncDrawing))
	}
}
