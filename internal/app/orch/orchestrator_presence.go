package orch

import (
	"github.com/dkeye/CodeSync/internal/core"
	"github.com/dkeye/CodeSync/internal/domain"
	"github.com/dkeye/CodeSync/internal/protocol"
	"github.com/rs/zerolog/log"
)

// SetStatus records sid as online or offline and tells its room.
func (o *Orchestrator) SetStatus(sid core.SessionID, online bool) {
	status := domain.StatusOffline
	if online {
		status = domain.StatusOnline
	}
	p, peers, ok := o.update(sid, domain.PresencePatch{Status: &status})
	if !ok {
		return
	}
	t := protocol.UserOffline
	if online {
		t = protocol.UserOnline
	}
	o.fanout(p.RoomID, peers, t, protocol.ConnectionPayload{ConnectionID: p.ConnectionID})
}

func (o *Orchestrator) TypingStart(sid core.SessionID, ev protocol.Typing) {
	typing := true
	pos := ev.CursorPosition
	p, peers, ok := o.update(sid, domain.PresencePatch{
		Typing:         &typing,
		CursorPosition: &pos,
		CurrentFileID:  ev.CurrentFileID,
	})
	if !ok {
		return
	}
	o.fanout(p.RoomID, peers, protocol.TypingStart, protocol.UserPayload{User: p})
}

func (o *Orchestrator) TypingPause(sid core.SessionID) {
	typing := false
	p, peers, ok := o.update(sid, domain.PresencePatch{Typing: &typing})
	if !ok {
		return
	}
	o.fanout(p.RoomID, peers, protocol.TypingPause, protocol.UserPayload{User: p})
}

// update only ever touches sid's own record. A miss means the connection
// has not joined or has already gone, and the event is dropped.
func (o *Orchestrator) update(sid core.SessionID, patch domain.PresencePatch) (domain.Presence, []core.Peer, bool) {
	p, peers, err := o.Registry.Update(sid, patch)
	if err != nil {
		log.Debug().Err(err).Str("module", "orch").Str("sid", string(sid)).Msg("presence update dropped")
		return domain.Presence{}, nil, false
	}
	return p, peers, true
}
