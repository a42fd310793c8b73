package router

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/momnect/chatlink/internal/model"
	"github.com/momnect/chatlink/internal/transport"
)

const roomDestPrefix = "room."

// Sink receives parsed room messages. Implemented by the subscription
// registry.
type Sink interface {
	Deliver(roomID string, msg model.Message) bool
}

// Stats contains runtime routing statistics.
type Stats struct {
	FramesReceived int64
	Routed         int64
	ParseFallbacks int64
	Undeliverable  int64
	Unknown        int64
}

// Config configures the Message Router.
type Config struct {
	NoticeBuffer int // Buffer size for the personal notice channel
	ErrorBuffer  int // Buffer size for the personal error channel
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		NoticeBuffer: 16,
		ErrorBuffer:  16,
	}
}

// Router demultiplexes inbound frames to room subscriptions and the personal
// channels.
type Router struct {
	cfg    Config
	logger *slog.Logger

	input <-chan transport.RawFrame
	sink  Sink

	notices chan model.Message
	errs    chan string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.RWMutex
	received int64
	routed   int64
	fallback int64
	dropped  int64
	unknown  int64
}

// New creates a Message Router consuming the given frame stream.
func New(cfg Config, input <-chan transport.RawFrame, sink Sink, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.NoticeBuffer == 0 {
		cfg.NoticeBuffer = DefaultConfig().NoticeBuffer
	}
	if cfg.ErrorBuffer == 0 {
		cfg.ErrorBuffer = DefaultConfig().ErrorBuffer
	}

	return &Router{
		cfg:     cfg,
		logger:  logger,
		input:   input,
		sink:    sink,
		notices: make(chan model.Message, cfg.NoticeBuffer),
		errs:    make(chan string, cfg.ErrorBuffer),
	}
}

// Start begins routing frames.
func (r *Router) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go r.routeLoop()

	r.logger.Info("message router started")
	return nil
}

// Stop gracefully shuts down the router.
func (r *Router) Stop(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("message router stopped")
	case <-ctx.Done():
		r.logger.Warn("message router stop timed out")
	}

	return nil
}

// Notices returns the personal out-of-band notice channel.
func (r *Router) Notices() <-chan model.Message {
	return r.notices
}

// GatewayErrors returns the personal error channel.
func (r *Router) GatewayErrors() <-chan string {
	return r.errs
}

// Stats returns current statistics.
func (r *Router) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return Stats{
		FramesReceived: r.received,
		Routed:         r.routed,
		ParseFallbacks: r.fallback,
		Undeliverable:  r.dropped,
		Unknown:        r.unknown,
	}
}

// routeLoop is the main routing goroutine.
func (r *Router) routeLoop() {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		case raw, ok := <-r.input:
			if !ok {
				r.logger.Info("frame channel closed")
				return
			}
			r.route(raw)
		}
	}
}

// route parses and routes a single frame.
func (r *Router) route(raw transport.RawFrame) {
	r.count(&r.received)

	var frame transport.Frame
	if err := json.Unmarshal(raw.Data, &frame); err != nil {
		// Without a destination there is nowhere to deliver even a
		// fallback message, so this is the one path that only logs.
		r.logger.Warn("unparseable frame envelope", "error", err)
		r.count(&r.fallback)
		return
	}

	switch {
	case strings.HasPrefix(frame.Destination, roomDestPrefix):
		roomID := strings.TrimPrefix(frame.Destination, roomDestPrefix)
		msg := r.parseMessage(frame.Body, roomID, raw.ReceivedAt)
		if r.sink.Deliver(roomID, msg) {
			r.count(&r.routed)
		} else {
			r.count(&r.dropped)
		}

	case frame.Destination == transport.DestNotice:
		msg := r.parseMessage(frame.Body, "", raw.ReceivedAt)
		select {
		case r.notices <- msg:
			r.count(&r.routed)
		default:
			r.logger.Warn("notice buffer full, dropping")
			r.count(&r.dropped)
		}

	case frame.Destination == transport.DestError:
		select {
		case r.errs <- rawText(frame.Body):
			r.count(&r.routed)
		default:
			r.logger.Warn("error buffer full, dropping")
			r.count(&r.dropped)
		}

	default:
		r.logger.Debug("skipping frame destination", "destination", frame.Destination)
		r.count(&r.unknown)
	}
}

// parseMessage decodes a frame body as the canonical message schema. A body
// that fails to parse becomes a SYSTEM message carrying the raw text with a
// locally-assigned timestamp, so nothing arrives unseen.
func (r *Router) parseMessage(body []byte, roomID string, receivedAt time.Time) model.Message {
	var msg model.Message
	if err := json.Unmarshal(body, &msg); err != nil || (msg.Content == "" && msg.Type == "") {
		r.count(&r.fallback)
		return model.Message{
			ID:      "msg-" + uuid.NewString(),
			RoomID:  roomID,
			Content: rawText(body),
			Type:    model.TypeSystem,
			SentAt:  receivedAt,
		}
	}

	if msg.RoomID == "" {
		msg.RoomID = roomID
	}
	// The gateway echoes some system notices without ids.
	if msg.ID == "" {
		msg.ID = "msg-" + uuid.NewString()
	}
	if msg.SentAt.IsZero() {
		msg.SentAt = receivedAt
	}

	return msg
}

// rawText extracts readable text from an arbitrary frame body: JSON strings
// are unquoted, anything else is passed through as-is.
func rawText(body []byte) string {
	var s string
	if err := json.Unmarshal(body, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(body))
}

func (r *Router) count(field *int64) {
	r.mu.Lock()
	*field++
	r.mu.Unlock()
}
