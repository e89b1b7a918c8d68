package app

import (
	"github.com/dkeye/CodeSync/internal/core"
	"github.com/dkeye/CodeSync/internal/domain"
)

// roomIndex groups session ids by room. It is not safe for concurrent use;
// the Registry guards it with its own lock.
type roomIndex struct {
	rooms map[domain.RoomID]map[core.SessionID]struct{}
}

func newRoomIndex() *roomIndex {
	return &roomIndex{rooms: make(map[domain.RoomID]map[core.SessionID]struct{})}
}

func (ix *roomIndex) add(room domain.RoomID, sid core.SessionID) {
	members, ok := ix.rooms[room]
	if !ok {
		members = make(map[core.SessionID]struct{})
		ix.rooms[room] = members
	}
	members[sid] = struct{}{}
}

// remove drops sid from room. A room left without members leaves no trace.
func (ix *roomIndex) remove(room domain.RoomID, sid core.SessionID) {
	members, ok := ix.rooms[room]
	if !ok {
		return
	}
	delete(members, sid)
	if len(members) == 0 {
		delete(ix.rooms, room)
	}
}

func (ix *roomIndex) members(room domain.RoomID) map[core.SessionID]struct{} {
	return ix.rooms[room]
}

func (ix *roomIndex) list() []core.RoomInfo {
	out := make([]core.RoomInfo, 0, len(ix.rooms))
	for id, members := range ix.rooms {
		out = append(out, core.RoomInfo{ID: id, MemberCount: len(members)})
	}
	return out
}
