package app

import (
	"errors"
	"sync"

	"github.com/dkeye/CodeSync/internal/core"
	"github.com/dkeye/CodeSync/internal/domain"
	"github.com/rs/zerolog/log"
)

var (
	ErrConflict  = errors.New("session already registered")
	ErrNotFound  = errors.New("session not found")
	ErrNameTaken = errors.New("display name taken in room")
)

type sessionEntry struct {
	Presence domain.Presence
	Signal   core.SignalConnection
}

// Registry is the authoritative table of joined connections, one presence
// record per SessionID, with an incrementally maintained room index.
// Everything it returns is a copy; no caller holds a record across calls.
type Registry struct {
	mu       sync.RWMutex
	sessions map[core.SessionID]*sessionEntry
	rooms    *roomIndex
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[core.SessionID]*sessionEntry),
		rooms:    newRoomIndex(),
	}
}

// JoinSnapshot is what a successful join observed, taken under one lock.
type JoinSnapshot struct {
	Presence domain.Presence
	// Peers are the members present before the join.
	Peers []core.Peer
	// Members is the full post-join listing, the joiner included.
	Members []domain.Presence
}

// Insert adds a record keyed by sid.
func (r *Registry) Insert(sid core.SessionID, p domain.Presence, sig core.SignalConnection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[sid]; ok {
		return ErrConflict
	}
	r.insertLocked(sid, p, sig)
	return nil
}

// Join checks display-name uniqueness in the record's room and inserts it
// in the same critical section, so two racing joins cannot both claim a name.
func (r *Registry) Join(sid core.SessionID, p domain.Presence, sig core.SignalConnection) (JoinSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[sid]; ok {
		return JoinSnapshot{}, ErrConflict
	}
	for member := range r.rooms.members(p.RoomID) {
		if r.sessions[member].Presence.DisplayName == p.DisplayName {
			return JoinSnapshot{}, ErrNameTaken
		}
	}
	peers := r.peersLocked(p.RoomID, sid)
	r.insertLocked(sid, p, sig)
	return JoinSnapshot{
		Presence: p.Clone(),
		Peers:    peers,
		Members:  r.listLocked(p.RoomID),
	}, nil
}

func (r *Registry) insertLocked(sid core.SessionID, p domain.Presence, sig core.SignalConnection) {
	r.sessions[sid] = &sessionEntry{Presence: p.Clone(), Signal: sig}
	r.rooms.add(p.RoomID, sid)
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("room", string(p.RoomID)).Msg("inserted")
}

// Remove deletes the record for sid and returns it together with the room
// members that remain. Removing an unknown sid reports false and does nothing.
func (r *Registry) Remove(sid core.SessionID) (domain.Presence, []core.Peer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok {
		return domain.Presence{}, nil, false
	}
	delete(r.sessions, sid)
	r.rooms.remove(e.Presence.RoomID, sid)
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("room", string(e.Presence.RoomID)).Msg("removed")
	return e.Presence, r.peersLocked(e.Presence.RoomID, sid), true
}

func (r *Registry) Find(sid core.SessionID) (domain.Presence, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[sid]
	if !ok {
		return domain.Presence{}, false
	}
	return e.Presence.Clone(), true
}

// Update merges patch into the record for sid and returns the result along
// with the peers to notify. ErrNotFound means sid already disconnected.
func (r *Registry) Update(sid core.SessionID, patch domain.PresencePatch) (domain.Presence, []core.Peer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok {
		return domain.Presence{}, nil, ErrNotFound
	}
	e.Presence.Apply(patch)
	return e.Presence.Clone(), r.peersLocked(e.Presence.RoomID, sid), nil
}

func (r *Registry) ListRoom(room domain.RoomID) []domain.Presence {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listLocked(room)
}

func (r *Registry) RoomOf(sid core.SessionID) (domain.RoomID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[sid]
	if !ok {
		return "", false
	}
	return e.Presence.RoomID, true
}

// RoomMates snapshots the members sharing sid's room, sid excluded.
func (r *Registry) RoomMates(sid core.SessionID) (domain.RoomID, []core.Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[sid]
	if !ok {
		return "", nil, false
	}
	return e.Presence.RoomID, r.peersLocked(e.Presence.RoomID, sid), true
}

// Signal returns the transport of a joined session.
func (r *Registry) Signal(sid core.SessionID) (core.SignalConnection, domain.RoomID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[sid]
	if !ok {
		return nil, "", false
	}
	return e.Signal, e.Presence.RoomID, true
}

func (r *Registry) Rooms() []core.RoomInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rooms.list()
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) peersLocked(room domain.RoomID, except core.SessionID) []core.Peer {
	members := r.rooms.members(room)
	out := make([]core.Peer, 0, len(members))
	for sid := range members {
		if sid == except {
			continue
		}
		out = append(out, core.Peer{SID: sid, Signal: r.sessions[sid].Signal})
	}
	return out
}

func (r *Registry) listLocked(room domain.RoomID) []domain.Presence {
	members := r.rooms.members(room)
	out := make([]domain.Presence, 0, len(members))
	for sid := range members {
		out = append(out, r.sessions[sid].Presence.Clone())
	}
	return out
}
