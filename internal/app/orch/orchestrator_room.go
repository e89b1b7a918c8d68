package orch

import (
	"errors"

	"github.com/dkeye/CodeSync/internal/app"
	"github.com/dkeye/CodeSync/internal/core"
	"github.com/dkeye/CodeSync/internal/domain"
	"github.com/dkeye/CodeSync/internal/metrics"
	"github.com/dkeye/CodeSync/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Join moves sid from Unjoined to Active. Rejections are answered on conn
// only and leave the registry untouched.
func (o *Orchestrator) Join(sid core.SessionID, conn core.SignalConnection, req protocol.Join) error {
	if _, ok := o.Registry.Find(sid); ok {
		o.reply(conn, protocol.Error, protocol.ErrorPayload{Error: "already_joined"})
		return ErrAlreadyJoined
	}
	room, err := domain.ParseRoomID(req.RoomID)
	if err != nil {
		o.rejectInvalid(sid, conn, err)
		return err
	}
	name, err := domain.ParseDisplayName(req.DisplayName)
	if err != nil {
		o.rejectInvalid(sid, conn, err)
		return err
	}

	snap, err := o.Registry.Join(sid, domain.NewPresence(string(sid), room, name), conn)
	switch {
	case errors.Is(err, app.ErrNameTaken):
		log.Info().Str("module", "orch").Str("sid", string(sid)).Str("room", string(room)).Str("name", name).Msg("username exists")
		o.Metrics.Join(metrics.JoinNameTaken)
		o.reply(conn, protocol.UsernameExists, nil)
		return err
	case errors.Is(err, app.ErrConflict):
		o.reply(conn, protocol.Error, protocol.ErrorPayload{Error: "already_joined"})
		return ErrAlreadyJoined
	case err != nil:
		log.Error().Err(err).Str("module", "orch").Str("sid", string(sid)).Msg("registry join")
		o.reply(conn, protocol.Error, protocol.ErrorPayload{Error: "internal"})
		return err
	}

	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("room", string(room)).Str("name", name).Int("members", len(snap.Members)).Msg("joined")
	o.Metrics.Join(metrics.JoinAccepted)
	o.Metrics.Records(o.Registry.Len())
	o.fanout(room, snap.Peers, protocol.UserJoined, protocol.UserPayload{User: snap.Presence})
	o.reply(conn, protocol.JoinAccepted, protocol.JoinAcceptedPayload{User: snap.Presence, Users: snap.Members})
	return nil
}

func (o *Orchestrator) rejectInvalid(sid core.SessionID, conn core.SignalConnection, err error) {
	log.Info().Err(err).Str("module", "orch").Str("sid", string(sid)).Msg("join rejected")
	o.Metrics.Join(metrics.JoinInvalid)
	o.reply(conn, protocol.Error, protocol.ErrorPayload{Error: err.Error()})
}

// Disconnect moves sid to Removed and tells the remaining members. It is
// safe to call any number of times; only the first call has an effect.
func (o *Orchestrator) Disconnect(sid core.SessionID) bool {
	p, peers, ok := o.Registry.Remove(sid)
	if !ok {
		return false
	}
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("room", string(p.RoomID)).Int("remaining", len(peers)).Msg("disconnected")
	o.Metrics.Disconnect()
	o.Metrics.Records(o.Registry.Len())
	o.fanout(p.RoomID, peers, protocol.UserDisconnected, protocol.UserPayload{User: p})
	return true
}
