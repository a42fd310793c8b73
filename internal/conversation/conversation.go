// Package conversation binds one room's subscription, outbound sends, and
// reconciliation into a single view: callers see an immediately-updated,
// eventually-consistent message list regardless of network latency.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/momnect/chatlink/internal/chatapi"
	"github.com/momnect/chatlink/internal/connection"
	"github.com/momnect/chatlink/internal/model"
	"github.com/momnect/chatlink/internal/reconcile"
)

// Errors
var (
	ErrSendFailed   = errors.New("message send failed")
	ErrNotConnected = connection.ErrNotConnected
	ErrAlreadyOpen  = errors.New("conversation already open")
)

// Gateway is the slice of the outbound gateway a conversation needs.
type Gateway interface {
	SendMessage(roomID, senderID, senderName, content string) bool
	JoinRoom(roomID, senderID, senderName string) bool
}

// Subscriber is the slice of the subscription registry a conversation needs.
type Subscriber interface {
	Subscribe(roomID string) (*connection.Subscription, bool)
	Unsubscribe(roomID string)
}

// History fetches stored messages for the room. Optional; nil means the view
// starts empty.
type History interface {
	GetMessages(ctx context.Context, roomID string, page, size int) (chatapi.MessagePage, error)
}

// Options tune a conversation.
type Options struct {
	HistoryPageSize int // Messages fetched on open (default 50)
}

// Conversation is one open room view.
type Conversation struct {
	roomID   string
	self     model.Identity
	gw       Gateway
	subs     Subscriber
	history  History
	timeline *reconcile.Timeline
	logger   *slog.Logger
	opts     Options

	updates chan struct{}

	mu     sync.Mutex
	sub    *connection.Subscription
	opened bool
	wg     sync.WaitGroup
}

// New creates a conversation view for the room. The timeline carries the
// reconciliation policy (local user id, dedupe window).
func New(roomID string, self model.Identity, timeline *reconcile.Timeline, gw Gateway, subs Subscriber, history History, opts Options, logger *slog.Logger) *Conversation {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.HistoryPageSize == 0 {
		opts.HistoryPageSize = 50
	}

	return &Conversation{
		roomID:   roomID,
		self:     self,
		gw:       gw,
		subs:     subs,
		history:  history,
		timeline: timeline,
		logger:   logger.With("room", roomID),
		opts:     opts,
		updates:  make(chan struct{}, 1),
	}
}

// Open loads history, subscribes to the room, and announces presence. The
// subscription survives reconnects; callers only reopen after an explicit
// manager Disconnect.
func (c *Conversation) Open(ctx context.Context) error {
	c.mu.Lock()
	if c.opened {
		c.mu.Unlock()
		return ErrAlreadyOpen
	}
	c.mu.Unlock()

	if c.history != nil {
		page, err := c.history.GetMessages(ctx, c.roomID, 0, c.opts.HistoryPageSize)
		if err != nil {
			return fmt.Errorf("load history: %w", err)
		}
		c.timeline.Load(page.Content)
	}

	sub, ok := c.subs.Subscribe(c.roomID)
	if !ok {
		return ErrNotConnected
	}

	c.mu.Lock()
	c.sub = sub
	c.opened = true
	c.mu.Unlock()

	if !c.gw.JoinRoom(c.roomID, c.self.UserID, c.self.Nickname) {
		c.logger.Warn("join announcement not sent")
	}

	c.wg.Add(1)
	go c.applyLoop(sub)

	return nil
}

// Close unsubscribes from the room and stops the apply loop.
func (c *Conversation) Close() {
	c.mu.Lock()
	if !c.opened {
		c.mu.Unlock()
		return
	}
	c.opened = false
	c.mu.Unlock()

	c.subs.Unsubscribe(c.roomID)
	c.wg.Wait()
}

// Send inserts an optimistic pending entry, then publishes. On a failed
// publish the pending entry is removed and ErrSendFailed returned; the
// message is never silently lost or silently retried.
func (c *Conversation) Send(content string) error {
	pending := c.timeline.AppendPending(c.roomID, c.self.Nickname, content)
	c.notify()

	if !c.gw.SendMessage(c.roomID, c.self.UserID, c.self.Nickname, content) {
		c.timeline.RemovePending(pending.ID)
		c.notify()
		return ErrSendFailed
	}

	return nil
}

// Messages returns the merged, sorted conversation.
func (c *Conversation) Messages() []model.Message {
	return c.timeline.Messages()
}

// Updates signals (coalesced) whenever the view changes.
func (c *Conversation) Updates() <-chan struct{} {
	return c.updates
}

// applyLoop feeds every routed message through the reconciliation engine.
// It exits when the subscription channel is closed by unsubscribe, replace,
// or manager teardown.
func (c *Conversation) applyLoop(sub *connection.Subscription) {
	defer c.wg.Done()

	for msg := range sub.Messages() {
		c.timeline.Apply(msg)
		c.notify()
	}

	c.logger.Debug("subscription stream ended")
}

func (c *Conversation) notify() {
	select {
	case c.updates <- struct{}{}:
	default:
	}
}
