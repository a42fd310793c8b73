package connection

import (
	"encoding/json"
	"log/slog"

	"github.com/momnect/chatlink/internal/model"
	"github.com/momnect/chatlink/internal/session"
	"github.com/momnect/chatlink/internal/transport"
)

// Gateway builds and transmits outbound chat frames. Every send carries the
// sender identity and the bearer token currently held by the session store.
//
// Publishing never mutates local message state; optimistic insertion is the
// reconciliation engine's job.
type Gateway struct {
	mgr    *Manager
	store  session.Store
	logger *slog.Logger
}

// NewGateway creates the outbound gateway.
func NewGateway(mgr *Manager, store session.Store, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{mgr: mgr, store: store, logger: logger}
}

// SendMessage publishes a TEXT message to the room. Returns false, never an
// error or panic, when the manager is not Connected or the write fails, so
// callers can surface a synchronous failure.
func (g *Gateway) SendMessage(roomID, senderID, senderName, content string) bool {
	return g.publish(transport.DestSendMessage, Envelope{
		RoomID:     roomID,
		SenderID:   senderID,
		SenderName: senderName,
		Content:    content,
		Type:       model.TypeText,
	})
}

// JoinRoom announces presence in the room with an empty-content JOIN message.
// Called once per conversation-open event.
func (g *Gateway) JoinRoom(roomID, senderID, senderName string) bool {
	return g.publish(transport.DestJoinRoom, Envelope{
		RoomID:     roomID,
		SenderID:   senderID,
		SenderName: senderName,
		Content:    "",
		Type:       model.TypeJoin,
	})
}

func (g *Gateway) publish(dest string, env Envelope) bool {
	body, err := json.Marshal(env)
	if err != nil {
		g.logger.Error("failed to encode envelope", "destination", dest, "error", err)
		return false
	}

	headers := map[string]string{}
	if token, ok := g.store.AccessToken(); ok {
		headers[transport.HeaderAuth] = "Bearer " + token
	}
	if env.SenderID != "" {
		headers[transport.HeaderUserID] = env.SenderID
	}
	if env.SenderName != "" {
		headers[transport.HeaderUserName] = env.SenderName
	}

	err = g.mgr.send(transport.Frame{
		Type:        transport.FrameSend,
		Destination: dest,
		Headers:     headers,
		Body:        body,
	})
	if err != nil {
		g.logger.Warn("publish failed",
			"destination", dest,
			"room", env.RoomID,
			"error", err,
		)
		return false
	}

	return true
}
