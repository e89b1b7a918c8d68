package core

// SessionID identifies one live transport connection. It is assigned by the
// transport when the socket is accepted and never reused.
type SessionID string
