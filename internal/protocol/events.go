// Package protocol defines the closed set of events exchanged over a
// connection, their payloads, and the envelope they travel in.
package protocol

import (
	"github.com/goccy/go-json"

	"github.com/dkeye/CodeSync/internal/domain"
)

type Type string

// Presence lifecycle.
const (
	JoinRequest      Type = "join-request"
	JoinAccepted     Type = "join-accepted"
	UsernameExists   Type = "username-exists"
	UserJoined       Type = "user-joined"
	UserDisconnected Type = "user-disconnected"
	UserOnline       Type = "user-online"
	UserOffline      Type = "user-offline"
	TypingStart      Type = "typing-start"
	TypingPause      Type = "typing-pause"
)

// Room relay.
const (
	DirectoryCreated Type = "directory-created"
	DirectoryUpdated Type = "directory-updated"
	DirectoryRenamed Type = "directory-renamed"
	DirectoryDeleted Type = "directory-deleted"
	FileCreated      Type = "file-created"
	FileUpdated      Type = "file-updated"
	FileRenamed      Type = "file-renamed"
	FileDeleted      Type = "file-deleted"
	SendMessage      Type = "send-message"
	ReceiveMessage   Type = "receive-message"
	DrawingUpdate    Type = "drawing-update"
)

// Sync.
const (
	SyncFileStructure Type = "sync-file-structure"
	RequestDrawing    Type = "request-drawing"
	SyncDrawing       Type = "sync-drawing"
)

// Control.
const (
	Ping   Type = "ping"
	Pong   Type = "pong"
	WhoAmI Type = "whoami"
	Leave  Type = "leave"
	Left   Type = "left"
	Error  Type = "error"
)

// Envelope is the frame layout on the wire.
type Envelope struct {
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Event is one decoded inbound event. The set of implementations is closed.
type Event interface {
	Type() Type
	isEvent()
}

type Join struct {
	RoomID      string `json:"roomId" validate:"required"`
	DisplayName string `json:"displayName" validate:"required"`
}

type StatusChange struct {
	Online bool `json:"-"`
}

type Typing struct {
	CursorPosition int     `json:"cursorPosition" validate:"min=0"`
	CurrentFileID  *string `json:"currentFileId,omitempty"`
}

type TypingStop struct{}

// Relayed is a room event forwarded to peers with its payload untouched.
type Relayed struct {
	Kind    Type
	Payload json.RawMessage
}

type FileStructureSync struct {
	Target  string
	Payload json.RawMessage
}

type DrawingRequest struct{}

type DrawingSync struct {
	Target     string
	CanvasData json.RawMessage
}

type Control struct {
	Kind Type
}

func (Join) Type() Type { return JoinRequest }
func (e StatusChange) Type() Type { return statusType(e.Online) }
func (Typing) Type() Type { return TypingStart }
func (TypingStop) Type() Type { return TypingPause }
func (e Relayed) Type() Type { return e.Kind }
func (FileStructureSync) Type() Type { return SyncFileStructure }
func (DrawingRequest) Type() Type { return RequestDrawing }
func (DrawingSync) Type() Type { return SyncDrawing }
func (e Control) Type() Type { return e.Kind }

func (Join) isEvent() {}
func (StatusChange) isEvent() {}
func (Typing) isEvent() {}
func (TypingStop) isEvent() {}
func (Relayed) isEvent() {}
func (FileStructureSync) isEvent() {}
func (DrawingRequest) isEvent() {}
func (DrawingSync) isEvent() {}
func (Control) isEvent() {}

func statusType(online bool) Type {
	if online {
		return UserOnline
	}
	return UserOffline
}

// OutboundType is the event name peers receive for a relayed kind.
func OutboundType(kind Type) Type {
	if kind == SendMessage {
		return ReceiveMessage
	}
	return kind
}

// Outbound payloads.

type UserPayload struct {
	User domain.Presence `json:"user"`
}

type JoinAcceptedPayload struct {
	User  domain.Presence   `json:"user"`
	Users []domain.Presence `json:"users"`
}

type ConnectionPayload struct {
	ConnectionID string `json:"connectionId"`
}

type WhoAmIPayload struct {
	User *domain.Presence `json:"user"`
}

type ErrorPayload struct {
	Error string `json:"error"`
}

type DrawingSyncPayload struct {
	CanvasData json.RawMessage `json:"canvasData"`
}
