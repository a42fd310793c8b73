package connection

import (
	"log/slog"
	"sync"

	"github.com/momnect/chatlink/internal/model"
	"github.com/momnect/chatlink/internal/transport"
)

// Subscription is one live room subscription. The registry owns the channel;
// the Message Router is its single writer. The channel is closed when the
// subscription is replaced, unsubscribed, or torn down by Disconnect, so a
// consumer ranges over it and exits cleanly.
type Subscription struct {
	RoomID string
	ch     chan model.Message
}

// Messages returns the inbound message stream for the room.
func (s *Subscription) Messages() <-chan model.Message {
	return s.ch
}

// Registry multiplexes the single gateway connection over many logical room
// conversations. It guarantees at most one live subscription per room.
type Registry struct {
	mgr    *Manager
	buf    int
	logger *slog.Logger

	mu   sync.RWMutex
	subs map[string]*Subscription
}

func newRegistry(mgr *Manager, buf int, logger *slog.Logger) *Registry {
	return &Registry{
		mgr:    mgr,
		buf:    buf,
		logger: logger,
		subs:   make(map[string]*Subscription),
	}
}

// Subscribe registers a subscription for the room and asks the gateway for
// its broadcast address. An existing subscription for the same room is
// unsubscribed first, never silently duplicated; its channel is closed so
// only the new subscription receives further frames.
//
// Returns false while the manager is not Connected. Callers should wait for
// a Connected transition and retry.
func (r *Registry) Subscribe(roomID string) (*Subscription, bool) {
	if !r.mgr.connected() {
		r.logger.Warn("subscribe while not connected", "room", roomID)
		return nil, false
	}

	r.mu.Lock()
	if old, ok := r.subs[roomID]; ok {
		close(old.ch)
		delete(r.subs, roomID)
		r.mgr.send(transport.Frame{
			Type:        transport.FrameUnsubscribe,
			Destination: transport.RoomDest(roomID),
		})
	}

	sub := &Subscription{
		RoomID: roomID,
		ch:     make(chan model.Message, r.buf),
	}
	r.subs[roomID] = sub
	r.mu.Unlock()

	err := r.mgr.send(transport.Frame{
		Type:        transport.FrameSubscribe,
		Destination: transport.RoomDest(roomID),
	})
	if err != nil {
		r.logger.Warn("failed to subscribe room", "room", roomID, "error", err)

		// Rollback so a retry starts clean.
		r.mu.Lock()
		if r.subs[roomID] == sub {
			close(sub.ch)
			delete(r.subs, roomID)
		}
		r.mu.Unlock()
		return nil, false
	}

	r.logger.Debug("subscribed", "room", roomID)
	return sub, true
}

// Unsubscribe removes the room subscription. Idempotent; a no-op when none
// exists.
func (r *Registry) Unsubscribe(roomID string) {
	r.mu.Lock()
	sub, ok := r.subs[roomID]
	if ok {
		close(sub.ch)
		delete(r.subs, roomID)
	}
	r.mu.Unlock()

	if !ok {
		return
	}

	if err := r.mgr.send(transport.Frame{
		Type:        transport.FrameUnsubscribe,
		Destination: transport.RoomDest(roomID),
	}); err != nil {
		// The gateway drops server-side subscriptions with the
		// connection, so a failed unsubscribe frame is harmless.
		r.logger.Debug("unsubscribe frame not sent", "room", roomID, "error", err)
	}

	r.logger.Debug("unsubscribed", "room", roomID)
}

// Deliver hands an inbound message to the room's subscription. Returns false
// when the room has no subscription or its buffer is full.
func (r *Registry) Deliver(roomID string, msg model.Message) bool {
	r.mu.RLock()
	sub, ok := r.subs[roomID]
	r.mu.RUnlock()

	if !ok {
		return false
	}

	select {
	case sub.ch <- msg:
		return true
	default:
		r.logger.Warn("subscription buffer full, dropping message", "room", roomID)
		return false
	}
}

// Len returns the number of registered rooms.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

// Rooms returns the registered room ids.
func (r *Registry) Rooms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rooms := make([]string, 0, len(r.subs))
	for id := range r.subs {
		rooms = append(rooms, id)
	}
	return rooms
}

// replay re-requests every registered room's broadcast address on a fresh
// connection. The subscription channels stay open across reconnects; callers
// keep their existing consumers.
func (r *Registry) replay(client transport.Client) {
	r.mu.RLock()
	rooms := make([]string, 0, len(r.subs))
	for id := range r.subs {
		rooms = append(rooms, id)
	}
	r.mu.RUnlock()

	for _, roomID := range rooms {
		err := client.Send(transport.Frame{
			Type:        transport.FrameSubscribe,
			Destination: transport.RoomDest(roomID),
		})
		if err != nil {
			r.logger.Warn("failed to replay subscription", "room", roomID, "error", err)
			continue
		}
		r.logger.Debug("replayed subscription", "room", roomID)
	}
}

// clear closes every subscription. Used by Disconnect; after it, callers must
// subscribe again explicitly.
func (r *Registry) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, sub := range r.subs {
		close(sub.ch)
		delete(r.subs, id)
	}
}
