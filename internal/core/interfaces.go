package core

import "github.com/dkeye/CodeSync/internal/domain"

// Peer is a transient view of a room member used for fan-out.
// It must not be retained past the send it was taken for.
type Peer struct {
	SID    SessionID
	Signal SignalConnection
}

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SendTo  int
	Dropped []Peer
}

type RoomInfo struct {
	ID          domain.RoomID `json:"id"`
	MemberCount int           `json:"client_count"`
}
