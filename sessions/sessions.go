// Package sessions tracks open streaming connections: a bounded, TTL-expiring
// registry addressed by signed, unguessable session ids. The registry owns
// each session's transport handle; removing a session closes its stream.
package sessions

import (
	"context"
	"errors"
)

// ErrSessionNotFound indicates the session id is unknown, expired, or failed
// signature verification.
var ErrSessionNotFound = errors.New("session not found")

// EventType enumerates the event-stream frame types used by the gateway.
type EventType string

const (
	EventEndpoint  EventType = "endpoint"
	EventConnected EventType = "connected"
	EventMessage   EventType = "message"
	EventHeartbeat EventType = "heartbeat"
	EventTimeout   EventType = "timeout"
	EventError     EventType = "error"
	EventClose     EventType = "close"
)

// Transport is the write side of one streaming connection. Implementations
// assign monotonically increasing event ids per connection and must treat a
// failed write as fatal for the connection.
type Transport interface {
	// WriteEvent emits one event frame. The data payload is written verbatim
	// as the frame's data field.
	WriteEvent(ctx context.Context, typ EventType, data []byte) error
	// Close tears the connection down. It must be idempotent.
	Close() error
}

// ClientInfo is the metadata recorded when a session is created.
type ClientInfo struct {
	ClientID   string
	Name       string
	Version    string
	UserAgent  string
	RemoteAddr string
}
