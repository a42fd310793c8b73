package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// MessageType classifies a chat message.
type MessageType string

const (
	TypeText   MessageType = "TEXT"   // Regular user message
	TypeJoin   MessageType = "JOIN"   // Presence announcement on room open
	TypeRead   MessageType = "READ"   // Read receipt
	TypeSystem MessageType = "SYSTEM" // Synthesized locally (e.g., unparseable frame)
)

// PendingIDPrefix marks locally-generated ids of not-yet-confirmed messages.
const PendingIDPrefix = "temp-"

// Message is one chat message, either confirmed by the gateway or still
// pending local confirmation.
type Message struct {
	ID         string      `json:"id"`
	RoomID     string      `json:"roomId"`
	SenderID   string      `json:"senderId"`
	SenderName string      `json:"senderName"`
	Content    string      `json:"content"`
	Type       MessageType `json:"messageType"`
	SentAt     time.Time   `json:"sentAt"`

	// Pending is true while the message exists only in the local view.
	// Never sent over the wire.
	Pending bool `json:"-"`
}

// NewPendingID returns a fresh local message id.
func NewPendingID() string {
	return PendingIDPrefix + uuid.NewString()
}

// IsPendingID reports whether id was generated locally by NewPendingID.
func IsPendingID(id string) bool {
	return strings.HasPrefix(id, PendingIDPrefix)
}

// Identity is the user identity attached to the handshake and every outbound
// envelope. It is supplied by the external session store, never derived here.
type Identity struct {
	UserID   string
	Nickname string
}

// Room summarizes a conversation as returned by the chat REST service.
type Room struct {
	RoomID            string         `json:"roomId"`
	OtherUserID       string         `json:"otherUserId"`
	OtherUserNickname string         `json:"otherUserNickname"`
	LastMessage       string         `json:"lastMessage"`
	LastSentAt        time.Time      `json:"lastSentAt"`
	Product           ProductSummary `json:"productInfo"`
}

// ProductSummary is the marketplace listing a conversation is about.
type ProductSummary struct {
	ProductID string `json:"productId"`
	Title     string `json:"title"`
	Price     int64  `json:"price"`
	Thumbnail string `json:"thumbnailUrl"`
}

// Participant is a member of a room.
type Participant struct {
	UserID   string `json:"userId"`
	Nickname string `json:"nickname"`
}
