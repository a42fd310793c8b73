package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/momnect/chatlink/internal/chatapi"
	"github.com/momnect/chatlink/internal/connection"
	"github.com/momnect/chatlink/internal/model"
	"github.com/momnect/chatlink/internal/poller"
	"github.com/momnect/chatlink/internal/reconcile"
	"github.com/momnect/chatlink/internal/router"
	"github.com/momnect/chatlink/internal/session"
	"github.com/momnect/chatlink/internal/transport"
)

// echoGateway is a WebSocket server that confirms every chat.send by
// broadcasting the stored message back on the room destination, the way the
// real gateway does.
type echoGateway struct {
	server *httptest.Server

	mu       sync.Mutex
	received []transport.Frame
	conns    []*websocket.Conn
	nextID   int
}

func newEchoGateway(t *testing.T) *echoGateway {
	g := &echoGateway{}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	g.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()
		g.mu.Lock()
		g.conns = append(g.conns, conn)
		g.mu.Unlock()
		g.serve(conn)
	}))

	t.Cleanup(g.server.Close)
	return g
}

func (g *echoGateway) url() string {
	return "ws" + strings.TrimPrefix(g.server.URL, "http")
}

func (g *echoGateway) serve(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var frame transport.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}

		g.mu.Lock()
		g.received = append(g.received, frame)
		g.mu.Unlock()

		if frame.Type != transport.FrameSend || frame.Destination != transport.DestSendMessage {
			continue
		}

		var env connection.Envelope
		if err := json.Unmarshal(frame.Body, &env); err != nil {
			continue
		}

		g.mu.Lock()
		g.nextID++
		id := fmt.Sprintf("msg-srv-%d", g.nextID)
		g.mu.Unlock()

		stored := model.Message{
			ID:         id,
			RoomID:     env.RoomID,
			SenderID:   env.SenderID,
			SenderName: env.SenderName,
			Content:    env.Content,
			Type:       env.Type,
			SentAt:     time.Now(),
		}
		body, _ := json.Marshal(stored)
		reply, _ := json.Marshal(transport.Frame{
			Type:        transport.FrameMessage,
			Destination: transport.RoomDest(env.RoomID),
			Body:        body,
		})
		conn.WriteMessage(websocket.TextMessage, reply)
	}
}

// dropConnections severs every live connection, simulating a network drop.
func (g *echoGateway) dropConnections() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, conn := range g.conns {
		conn.Close()
	}
	g.conns = nil
}

func (g *echoGateway) frames() []transport.Frame {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]transport.Frame, len(g.received))
	copy(out, g.received)
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stack struct {
	mgr *connection.Manager
	gw  *connection.Gateway
}

// startStack brings up a connected manager and router against the echo
// gateway.
func startStack(t *testing.T, g *echoGateway) *stack {
	t.Helper()

	store := session.NewMemoryStore()
	store.SignIn(model.Identity{UserID: "user-1", Nickname: "Jin"}, "tok-xyz")

	cfg := connection.DefaultConfig()
	cfg.Transport.URL = g.url()
	cfg.Transport.HandshakeTimeout = 5 * time.Second
	cfg.MaxAttempts = 2
	cfg.RetryDelay = 10 * time.Millisecond

	mgr := connection.NewManager(cfg, store, testLogger())
	if err := mgr.Connect(context.Background(), "user-1", model.Identity{UserID: "user-1", Nickname: "Jin"}); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	t.Cleanup(mgr.Disconnect)

	rtr := router.New(router.DefaultConfig(), mgr.Frames(), mgr.Registry(), testLogger())
	if err := rtr.Start(context.Background()); err != nil {
		t.Fatalf("router Start failed: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		rtr.Stop(ctx)
	})

	return &stack{
		mgr: mgr,
		gw:  connection.NewGateway(mgr, store, testLogger()),
	}
}

func newConversation(t *testing.T, s *stack, history History) *Conversation {
	t.Helper()

	timeline := reconcile.NewTimeline("user-1", 5*time.Second)
	conv := New("room-1", model.Identity{UserID: "user-1", Nickname: "Jin"},
		timeline, s.gw, s.mgr.Registry(), history, Options{}, testLogger())
	t.Cleanup(conv.Close)
	return conv
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", what)
}

func TestConversation_OpenAnnouncesJoin(t *testing.T) {
	g := newEchoGateway(t)
	s := startStack(t, g)
	conv := newConversation(t, s, nil)

	if err := conv.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	waitFor(t, "join frame", func() bool {
		for _, fr := range g.frames() {
			if fr.Type == transport.FrameSend && fr.Destination == transport.DestJoinRoom {
				return true
			}
		}
		return false
	})

	// Opening twice is a caller bug, reported not ignored.
	if err := conv.Open(context.Background()); !errors.Is(err, ErrAlreadyOpen) {
		t.Errorf("second Open = %v, want ErrAlreadyOpen", err)
	}
}

func TestConversation_OpenNotConnected(t *testing.T) {
	g := newEchoGateway(t)
	s := startStack(t, g)
	conv := newConversation(t, s, nil)

	s.mgr.Disconnect()

	if err := conv.Open(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Open = %v, want ErrNotConnected", err)
	}
}

func TestConversation_SendConfirmedByEcho(t *testing.T) {
	g := newEchoGateway(t)
	s := startStack(t, g)
	conv := newConversation(t, s, nil)

	if err := conv.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if err := conv.Send("yes it is still available"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	// The pending entry shows up immediately.
	msgs := conv.Messages()
	found := false
	for _, m := range msgs {
		if m.Content == "yes it is still available" && m.Pending {
			found = true
		}
	}
	if !found {
		t.Error("expected an immediate pending entry")
	}

	// The gateway echo replaces it with the stored message.
	waitFor(t, "echo confirmation", func() bool {
		for _, m := range conv.Messages() {
			if m.Content == "yes it is still available" && !m.Pending && strings.HasPrefix(m.ID, "msg-srv-") {
				return true
			}
		}
		return false
	})

	// Exactly one copy remains.
	count := 0
	for _, m := range conv.Messages() {
		if m.Content == "yes it is still available" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("message appears %d times, want 1", count)
	}
}

func TestConversation_SendFailureRemovesPending(t *testing.T) {
	g := newEchoGateway(t)
	s := startStack(t, g)
	conv := newConversation(t, s, nil)

	if err := conv.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	s.mgr.Disconnect()

	if err := conv.Send("lost to the void"); !errors.Is(err, ErrSendFailed) {
		t.Fatalf("Send = %v, want ErrSendFailed", err)
	}

	for _, m := range conv.Messages() {
		if m.Content == "lost to the void" {
			t.Error("failed send left a pending entry behind")
		}
	}
}

// A dropped connection is recovered by the status poller and the room
// subscription is replayed without any caller action.
func TestConversation_RecoversFromDrop(t *testing.T) {
	g := newEchoGateway(t)
	s := startStack(t, g)
	conv := newConversation(t, s, nil)

	if err := conv.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	p := poller.New(poller.Config{Interval: 20 * time.Millisecond}, s.mgr,
		"user-1", model.Identity{UserID: "user-1", Nickname: "Jin"}, testLogger())
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("poller Start failed: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		p.Stop(ctx)
	})

	framesBefore := len(g.frames())
	g.dropConnections()

	waitFor(t, "reconnect", func() bool { return s.mgr.Status().Connected })

	// The fresh connection re-requested the room's broadcast address.
	waitFor(t, "replayed subscription", func() bool {
		for _, fr := range g.frames()[framesBefore:] {
			if fr.Type == transport.FrameSubscribe && fr.Destination == transport.RoomDest("room-1") {
				return true
			}
		}
		return false
	})

	// The conversation still works end to end over the new connection.
	if err := conv.Send("still here"); err != nil {
		t.Fatalf("Send after recovery failed: %v", err)
	}
	waitFor(t, "echo after recovery", func() bool {
		for _, m := range conv.Messages() {
			if m.Content == "still here" && !m.Pending {
				return true
			}
		}
		return false
	})
}

// fixedHistory serves a canned first page.
type fixedHistory struct {
	page chatapi.MessagePage
	err  error
}

func (h *fixedHistory) GetMessages(ctx context.Context, roomID string, page, size int) (chatapi.MessagePage, error) {
	return h.page, h.err
}

func TestConversation_OpenSeedsHistory(t *testing.T) {
	g := newEchoGateway(t)
	s := startStack(t, g)

	now := time.Now()
	history := &fixedHistory{page: chatapi.MessagePage{
		Content: []model.Message{
			{ID: "h-2", RoomID: "room-1", SenderID: "user-2", Content: "second", Type: model.TypeText, SentAt: now},
			{ID: "h-1", RoomID: "room-1", SenderID: "user-2", Content: "first", Type: model.TypeText, SentAt: now.Add(-time.Minute)},
		},
		Last: true,
	}}

	conv := newConversation(t, s, history)
	if err := conv.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	msgs := conv.Messages()
	if len(msgs) != 2 {
		t.Fatalf("Len = %d, want 2", len(msgs))
	}
	if msgs[0].ID != "h-1" || msgs[1].ID != "h-2" {
		t.Errorf("history not sorted by SentAt: got [%s %s]", msgs[0].ID, msgs[1].ID)
	}
}

func TestConversation_OpenHistoryError(t *testing.T) {
	g := newEchoGateway(t)
	s := startStack(t, g)

	history := &fixedHistory{err: errors.New("service unavailable")}
	conv := newConversation(t, s, history)

	if err := conv.Open(context.Background()); err == nil {
		t.Error("expected Open to surface the history error")
	}
}
