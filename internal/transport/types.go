package transport

import (
	"encoding/json"
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no heartbeat)")
	ErrAlreadyClosed   = errors.New("already closed")

	// ErrUnauthorized marks a handshake explicitly rejected as 401/403.
	// It is terminal: the manager must not retry until fresh credentials
	// are supplied.
	ErrUnauthorized = errors.New("handshake rejected: unauthorized")
)

// Frame types.
const (
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
	FrameSend        = "send"
	FrameMessage     = "message"
)

// Outbound destinations.
const (
	DestSendMessage = "chat.send"
	DestJoinRoom    = "chat.join"
)

// Personal inbound addresses, established once per connected session.
const (
	DestNotice = "user.notice"
	DestError  = "user.error"
)

// RoomDest returns the broadcast address for a room.
func RoomDest(roomID string) string {
	return "room." + roomID
}

// Frame is one unit of data on the persistent connection.
type Frame struct {
	Type        string            `json:"type"`
	Destination string            `json:"destination"`
	Headers     map[string]string `json:"headers,omitempty"`
	Body        json.RawMessage   `json:"body,omitempty"`
}

// RawFrame wraps received frame bytes with the local receive timestamp.
type RawFrame struct {
	Data       []byte
	ReceivedAt time.Time
}

// Handshake header names. The gateway reads identity from these and the
// Authorization header on the upgrade request.
const (
	HeaderUserID   = "user-id"
	HeaderUserName = "user-name"
	HeaderAuth     = "Authorization"
)

// Config configures a gateway connection.
type Config struct {
	URL               string        // Gateway URL (e.g., wss://gw.momnect.io/ws-chat)
	HandshakeTimeout  time.Duration // Dial deadline
	WriteTimeout      time.Duration // Write deadline for sends
	HeartbeatInterval time.Duration // Outgoing ping interval
	StaleTimeout      time.Duration // Max time without ping/pong before declaring stale
	BufferSize        int           // Frame channel buffer size
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout:  10 * time.Second,
		WriteTimeout:      5 * time.Second,
		HeartbeatInterval: 4 * time.Second,
		StaleTimeout:      30 * time.Second,
		BufferSize:        1000,
	}
}
