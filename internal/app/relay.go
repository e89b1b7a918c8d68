package app

import (
	"github.com/dkeye/CodeSync/internal/core"
	"github.com/dkeye/CodeSync/internal/domain"
	"github.com/dkeye/CodeSync/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Relay fans frames out to room members. Recipient sets are snapshotted from
// the Registry and sends happen after its lock is released.
type Relay struct {
	Registry *Registry
	Policy   Policy
	Metrics  *metrics.Metrics
}

// Broadcast delivers f to every member of from's room except from. It
// reports false when from has not joined, in which case nothing is sent.
func (r *Relay) Broadcast(from core.SessionID, f core.Frame) (core.PublishResult, bool) {
	room, peers, ok := r.Registry.RoomMates(from)
	if !ok {
		log.Debug().Str("module", "app.relay").Str("from", string(from)).Msg("source not joined, dropping")
		return core.PublishResult{}, false
	}
	return r.Fanout(room, peers, f), true
}

// Unicast delivers f to exactly one member, which must share from's room
// and cannot be from itself.
func (r *Relay) Unicast(from, to core.SessionID, f core.Frame) bool {
	if from == to {
		log.Debug().Str("module", "app.relay").Str("from", string(from)).Msg("unicast to self dropped")
		return false
	}
	fromRoom, ok := r.Registry.RoomOf(from)
	if !ok {
		log.Debug().Str("module", "app.relay").Str("from", string(from)).Msg("unicast source not joined")
		return false
	}
	sig, toRoom, ok := r.Registry.Signal(to)
	if !ok || toRoom != fromRoom {
		log.Debug().Str("module", "app.relay").Str("from", string(from)).Str("to", string(to)).Msg("unicast target not in room")
		return false
	}
	res := r.Fanout(toRoom, []core.Peer{{SID: to, Signal: sig}}, f)
	return res.SendTo == 1
}

// Fanout sends f to a snapshot of peers taken by the caller.
func (r *Relay) Fanout(room domain.RoomID, peers []core.Peer, f core.Frame) core.PublishResult {
	res := core.PublishResult{}
	for _, p := range peers {
		if err := p.Signal.TrySend(f); err != nil {
			res.Dropped = append(res.Dropped, p)
			continue
		}
		res.SendTo++
	}
	log.Debug().Str("module", "app.relay").Str("room", string(room)).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	r.Metrics.Dropped(len(res.Dropped))
	r.applyPolicy(room, res.Dropped)
	return res
}

func (r *Relay) applyPolicy(room domain.RoomID, dropped []core.Peer) {
	if r.Policy == nil {
		return
	}
	for _, slow := range dropped {
		switch r.Policy.OnBackPressure(room, slow) {
		case KickMember:
			log.Warn().Str("module", "app.relay").Str("sid", string(slow.SID)).Str("room", string(room)).Msg("kicking slow member")
			slow.Signal.Close()
		case DropFrame, NoAction:
		}
	}
}
