// Package orch drives the presence lifecycle of a connection
// (Unjoined -> Active -> Removed) and routes room events through the relay.
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

var ErrAlreadyJoined = errors.New("already joined")

type Orchestrator struct {
	Registry *app.Registry
	Relay    *app.Relay
	Metrics  *metrics.Metrics
}

func New(reg *app.Registry, policy app.Policy, m *metrics.Metrics) *Orchestrator {
	return &Orchestrator{
		Registry: reg,
		Relay:    &app.Relay{Registry: reg, Policy: policy, Metrics: m},
		Metrics:  m,
	}
}

// reply sends directly to a connection that may not have joined yet.
func (o *Orchestrator) reply(conn core.SignalConnection, t protocol.Type, payload any) {
	f, err := protocol.Encode(t, payload)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("encode reply")
		return
	}
	if err := conn.TrySend(f); err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("type", string(t)).Msg("reply dropped")
	}
}

// fanout encodes once and delivers to a snapshot of peers.
func (o *Orchestrator) fanout(room domain.RoomID, peers []core.Peer, t protocol.Type, payload any) {
	if len(peers) == 0 {
		return
	}
	f, err := protocol.Encode(t, payload)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("type", string(t)).Msg("encode broadcast")
		return
	}
	o.Relay.Fanout(room, peers, f)
	o.Metrics.Relayed(string(t))
}

// WhoAmI answers with the caller's record, or a null user before join.
func (o *Orchestrator) WhoAmI(sid core.SessionID, conn core.SignalConnection) {
	resp := protocol.WhoAmIPayload{}
	if p, ok := o.Registry.Find(sid); ok {
		resp.User = &p
	}
	o.reply(conn, protocol.WhoAmI, resp)
}
