package app

import (
	"github.com/dkeye/CodeSync/internal/core"
	"github.com/dkeye/CodeSync/internal/domain"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	KickMember
	DropFrame
)

// Policy decides what happens to a peer whose send queue was full.
type Policy interface {
	OnBackPressure(room domain.RoomID, peer core.Peer) BackpressureAction
}

// DropPolicy discards the frame for that peer only.
type DropPolicy struct{}

func (DropPolicy) OnBackPressure(domain.RoomID, core.Peer) BackpressureAction {
	return DropFrame
}

// KickPolicy closes the slow peer; its transport then reports the disconnect.
type KickPolicy struct{}

func (KickPolicy) OnBackPressure(domain.RoomID, core.Peer) BackpressureAction {
	return KickMember
}

// PolicyFor maps the config value to a Policy, defaulting to DropPolicy.
func PolicyFor(name string) Policy {
	if name == "kick" {
		return KickPolicy{}
	}
	return DropPolicy{}
}
