package protocol

import "github.com/goccy/go-json"

// Inbound payload shapes. They are only used to validate; relayed events are
// forwarded with the bytes the client sent.

type directoryCreated struct {
	ParentDirID  string          `json:"parentDirId" validate:"required"`
	NewDirectory json.RawMessage `json:"newDirectory" validate:"required"`
}

type directoryUpdated struct {
	DirID    string          `json:"dirId" validate:"required"`
	Children json.RawMessage `json:"children" validate:"required"`
}

type directoryRenamed struct {
	DirID   string `json:"dirId" validate:"required"`
	NewName string `json:"newName" validate:"required"`
}

type directoryDeleted struct {
	DirID string `json:"dirId" validate:"required"`
}

type fileCreated struct {
	ParentDirID string          `json:"parentDirId" validate:"required"`
	NewFile     json.RawMessage `json:"newFile" validate:"required"`
}

type fileUpdated struct {
	FileID     string  `json:"fileId" validate:"required"`
	NewContent *string `json:"newContent" validate:"required"`
}

type fileRenamed struct {
	FileID  string `json:"fileId" validate:"required"`
	NewName string `json:"newName" validate:"required"`
}

type fileDeleted struct {
	FileID string `json:"fileId" validate:"required"`
}

type chatMessage struct {
	Message json.RawMessage `json:"message" validate:"required"`
}

type drawingUpdate struct {
	Snapshot json.RawMessage `json:"snapshot" validate:"required"`
}

type fileStructureSync struct {
	FileTree     json.RawMessage `json:"fileTree" validate:"required"`
	OpenFiles    json.RawMessage `json:"openFiles,omitempty"`
	ActiveFileID json.RawMessage `json:"activeFileId,omitempty"`
	Target       string          `json:"targetConnectionId" validate:"required"`
}

// fileStructurePayload is what the target receives; the routing field is stripped.
type fileStructurePayload struct {
	FileTree     json.RawMessage `json:"fileTree"`
	OpenFiles    json.RawMessage `json:"openFiles"`
	ActiveFileID json.RawMessage `json:"activeFileId"`
}

type drawingSync struct {
	CanvasData json.RawMessage `json:"canvasData" validate:"required"`
	Target     string          `json:"targetConnectionId" validate:"required"`
}

// relayShapes lists every relayed kind with a constructor for its shape.
var relayShapes = map[Type]func() any{
	DirectoryCreated: func() any { return &directoryCreated{} },
	DirectoryUpdated: func() any { return &directoryUpdated{} },
	DirectoryRenamed: func() any { return &directoryRenamed{} },
	DirectoryDeleted: func() any { return &directoryDeleted{} },
	FileCreated:      func() any { return &fileCreated{} },
	FileUpdated:      func() any { return &fileUpdated{} },
	FileRenamed:      func() any { return &fileRenamed{} },
	FileDeleted:      func() any { return &fileDeleted{} },
	SendMessage:      func() any { return &chatMessage{} },
	DrawingUpdate:    func() any { return &drawingUpdate{} },
}
