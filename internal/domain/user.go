// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"strings"
)

const MaxUsernameLen = 36

var (
	ErrUsernameTooLong = errors.New("username too long")
	ErrUsernameEmpty   = errors.New("username empty")
)

type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

// Presence is the per-connection state broadcast to room peers.
type Presence struct {
	ConnectionID   string  `json:"connectionId"`
	RoomID         RoomID  `json:"roomId"`
	DisplayName    string  `json:"displayName"`
	Status         Status  `json:"status"`
	CursorPosition int     `json:"cursorPosition"`
	Typing         bool    `json:"typing"`
	CurrentFileID  *string `json:"currentFileId"`
}

// NewPresence builds the record a successful join creates.
func NewPresence(connID string, room RoomID, displayName string) Presence {
	return Presence{
		ConnectionID: connID,
		RoomID:       room,
		DisplayName:  displayName,
		Status:       StatusOnline,
	}
}

// PresencePatch carries the fields an update merges into a record.
// Nil fields are left untouched.
type PresencePatch struct {
	Status         *Status
	CursorPosition *int
	Typing         *bool
	CurrentFileID  *string
}

// Apply merges the patch into p. Negative cursor positions clamp to zero.
func (p *Presence) Apply(patch PresencePatch) {
	if patch.Status != nil {
		p.Status = *patch.Status
	}
	if patch.CursorPosition != nil {
		pos := *patch.CursorPosition
		if pos < 0 {
			pos = 0
		}
		p.CursorPosition = pos
	}
	if patch.Typing != nil {
		p.Typing = *patch.Typing
	}
	if patch.CurrentFileID != nil {
		id := *patch.CurrentFileID
		p.CurrentFileID = &id
	}
}

// Clone returns a copy that shares no pointers with p.
func (p Presence) Clone() Presence {
	if p.CurrentFileID != nil {
		id := *p.CurrentFileID
		p.CurrentFileID = &id
	}
	return p
}

// ParseDisplayName trims and validates a name supplied with a join request.
func ParseDisplayName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if len(name) == 0 {
		return "", ErrUsernameEmpty
	}
	if len(name) > MaxUsernameLen {
		return "", ErrUsernameTooLong
	}
	return name, nil
}
