package connection

import (
	"errors"
	"time"

	"github.com/momnect/chatlink/internal/model"
	"github.com/momnect/chatlink/internal/transport"
)

// Errors
var (
	// ErrConnectionFailed is surfaced after the reconnect attempt cap is
	// exhausted. Only ForceReconnect clears it.
	ErrConnectionFailed = errors.New("connection failed")

	// ErrNotConnected is returned by sends attempted while not Connected.
	ErrNotConnected = transport.ErrNotConnected
)

// State is the connection lifecycle state. Exactly one instance exists per
// process; callers read it through Status and never mutate it directly.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateError        State = "error"
)

// Status is a point-in-time snapshot of the manager.
type Status struct {
	State     State
	Connected bool
	Err       error
	HasClient bool
	Attempts  int
}

// Envelope is the JSON body of every outbound chat frame.
type Envelope struct {
	RoomID     string            `json:"roomId"`
	SenderID   string            `json:"senderId"`
	SenderName string            `json:"senderName"`
	Content    string            `json:"content"`
	Type       model.MessageType `json:"messageType"`
}

// Config configures the Connection Manager.
type Config struct {
	Transport          transport.Config // Settings for the underlying connection
	MaxAttempts        int              // Reconnect attempt cap
	RetryDelay         time.Duration    // Fixed delay between attempts
	FrameBufferSize    int              // Buffer size for the outbound frame channel to the router
	SubscriptionBuffer int              // Per-room message channel buffer size
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Transport:          transport.DefaultConfig(),
		MaxAttempts:        5,
		RetryDelay:         5 * time.Second,
		FrameBufferSize:    1000,
		SubscriptionBuffer: 64,
	}
}
