package connection

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/momnect/chatlink/internal/model"
	"github.com/momnect/chatlink/internal/session"
	"github.com/momnect/chatlink/internal/transport"
)

// fakeClient is an in-memory transport.Client.
type fakeClient struct {
	dialErr error

	mu        sync.Mutex
	connected bool
	sent      []transport.Frame
	header    http.Header

	frames chan transport.RawFrame
	errs   chan error
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		frames: make(chan transport.RawFrame, 16),
		errs:   make(chan error, 1),
	}
}

func (f *fakeClient) Connect(ctx context.Context, header http.Header) error {
	if f.dialErr != nil {
		return f.dialErr
	}
	f.mu.Lock()
	f.connected = true
	f.header = header
	f.mu.Unlock()
	return nil
}

func (f *fakeClient) Close() error {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
	return nil
}

func (f *fakeClient) Send(fr transport.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return transport.ErrNotConnected
	}
	f.sent = append(f.sent, fr)
	return nil
}

func (f *fakeClient) Frames() <-chan transport.RawFrame { return f.frames }
func (f *fakeClient) Errors() <-chan error              { return f.errs }

func (f *fakeClient) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeClient) sentFrames() []transport.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]transport.Frame, len(f.sent))
	copy(out, f.sent)
	return out
}

// fakeDialer hands out fakeClients, failing the first len(errs) dials.
type fakeDialer struct {
	mu      sync.Mutex
	clients []*fakeClient
	errs    []error
}

func (d *fakeDialer) newClient(cfg transport.Config, logger *slog.Logger) transport.Client {
	d.mu.Lock()
	defer d.mu.Unlock()

	c := newFakeClient()
	if len(d.errs) > 0 {
		c.dialErr = d.errs[0]
		d.errs = d.errs[1:]
	}
	d.clients = append(d.clients, c)
	return c
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.clients)
}

func (d *fakeDialer) client(i int) *fakeClient {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.clients[i]
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testIdentity() model.Identity {
	return model.Identity{UserID: "user-1", Nickname: "Jin"}
}

func testStore() *session.MemoryStore {
	store := session.NewMemoryStore()
	store.SignIn(testIdentity(), "tok-xyz")
	return store
}

func testManager(dialer *fakeDialer) (*Manager, *session.MemoryStore) {
	store := testStore()

	cfg := DefaultConfig()
	cfg.MaxAttempts = 3
	cfg.RetryDelay = time.Millisecond
	cfg.SubscriptionBuffer = 4

	m := NewManager(cfg, store, testLogger())
	m.newClient = dialer.newClient
	return m, store
}

func TestManager_ConnectIdempotent(t *testing.T) {
	dialer := &fakeDialer{}
	mgr, _ := testManager(dialer)
	defer mgr.Disconnect()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := mgr.Connect(context.Background(), "user-1", testIdentity()); err != nil {
				t.Errorf("Connect failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := dialer.dialCount(); got != 1 {
		t.Errorf("dial count = %d, want 1", got)
	}

	status := mgr.Status()
	if status.State != StateConnected {
		t.Errorf("State = %s, want %s", status.State, StateConnected)
	}
	if !status.Connected {
		t.Error("expected Connected true")
	}
}

func TestManager_ConnectRetriesToCap(t *testing.T) {
	dialFail := errors.New("dial tcp: connection refused")
	dialer := &fakeDialer{errs: []error{dialFail, dialFail, dialFail, dialFail}}
	mgr, _ := testManager(dialer)

	err := mgr.Connect(context.Background(), "user-1", testIdentity())
	if !errors.Is(err, ErrConnectionFailed) {
		t.Fatalf("expected ErrConnectionFailed, got %v", err)
	}

	if got := dialer.dialCount(); got != 3 {
		t.Errorf("dial count = %d, want 3 (the attempt cap)", got)
	}

	status := mgr.Status()
	if status.State != StateError {
		t.Errorf("State = %s, want %s", status.State, StateError)
	}
	if status.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", status.Attempts)
	}
	if !errors.Is(status.Err, ErrConnectionFailed) {
		t.Errorf("Status.Err = %v, want ErrConnectionFailed", status.Err)
	}
}

func TestManager_ConnectUnauthorizedIsTerminal(t *testing.T) {
	rejected := fmt.Errorf("%w (status 401)", transport.ErrUnauthorized)
	dialer := &fakeDialer{errs: []error{rejected, rejected}}
	mgr, _ := testManager(dialer)

	err := mgr.Connect(context.Background(), "user-1", testIdentity())
	if !errors.Is(err, transport.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	// No retry: a credential problem does not heal by redialing.
	if got := dialer.dialCount(); got != 1 {
		t.Errorf("dial count = %d, want 1", got)
	}

	if status := mgr.Status(); status.State != StateError {
		t.Errorf("State = %s, want %s", status.State, StateError)
	}
}

func TestManager_ForceReconnectResetsAttempts(t *testing.T) {
	dialFail := errors.New("dial tcp: connection refused")
	dialer := &fakeDialer{errs: []error{dialFail, dialFail, dialFail}}
	mgr, _ := testManager(dialer)

	if err := mgr.Connect(context.Background(), "user-1", testIdentity()); !errors.Is(err, ErrConnectionFailed) {
		t.Fatalf("expected ErrConnectionFailed, got %v", err)
	}

	// The dialer's failures are exhausted; the next dial succeeds.
	if err := mgr.ForceReconnect(context.Background(), "user-1", testIdentity()); err != nil {
		t.Fatalf("ForceReconnect failed: %v", err)
	}
	defer mgr.Disconnect()

	status := mgr.Status()
	if status.State != StateConnected {
		t.Errorf("State = %s, want %s", status.State, StateConnected)
	}
	if status.Attempts != 0 {
		t.Errorf("Attempts = %d, want 0", status.Attempts)
	}
	if status.Err != nil {
		t.Errorf("Status.Err = %v, want nil", status.Err)
	}
}

func TestManager_HandshakeCarriesIdentity(t *testing.T) {
	dialer := &fakeDialer{}
	mgr, _ := testManager(dialer)
	defer mgr.Disconnect()

	if err := mgr.Connect(context.Background(), "user-1", testIdentity()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	header := dialer.client(0).header
	if got := header.Get(transport.HeaderUserID); got != "user-1" {
		t.Errorf("user-id header = %q, want user-1", got)
	}
	if got := header.Get(transport.HeaderUserName); got != "Jin" {
		t.Errorf("user-name header = %q, want Jin", got)
	}
	if got := header.Get(transport.HeaderAuth); got != "Bearer tok-xyz" {
		t.Errorf("Authorization header = %q, want Bearer tok-xyz", got)
	}
}

func TestManager_SubscribesPersonalAddresses(t *testing.T) {
	dialer := &fakeDialer{}
	mgr, _ := testManager(dialer)
	defer mgr.Disconnect()

	if err := mgr.Connect(context.Background(), "user-1", testIdentity()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	want := map[string]bool{
		transport.DestNotice: false,
		transport.DestError:  false,
	}
	for _, fr := range dialer.client(0).sentFrames() {
		if fr.Type == transport.FrameSubscribe {
			if _, ok := want[fr.Destination]; ok {
				want[fr.Destination] = true
			}
		}
	}
	for dest, seen := range want {
		if !seen {
			t.Errorf("no subscribe frame sent for %s", dest)
		}
	}
}

func TestManager_PumpForwardsFrames(t *testing.T) {
	dialer := &fakeDialer{}
	mgr, _ := testManager(dialer)
	defer mgr.Disconnect()

	if err := mgr.Connect(context.Background(), "user-1", testIdentity()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	raw := transport.RawFrame{Data: []byte(`{"type":"message"}`), ReceivedAt: time.Now()}
	dialer.client(0).frames <- raw

	select {
	case got := <-mgr.Frames():
		if string(got.Data) != string(raw.Data) {
			t.Errorf("frame data = %q, want %q", got.Data, raw.Data)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for forwarded frame")
	}
}

func TestManager_DropTransitionsToDisconnected(t *testing.T) {
	dialer := &fakeDialer{}
	mgr, _ := testManager(dialer)

	if err := mgr.Connect(context.Background(), "user-1", testIdentity()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	states := mgr.StateChanges()
	dialer.client(0).errs <- errors.New("unexpected EOF")

	select {
	case state := <-states:
		if state != StateDisconnected {
			t.Errorf("state = %s, want %s", state, StateDisconnected)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for disconnect transition")
	}

	// The dead client handle stays so the poller can tell a drop from an
	// explicit Disconnect.
	status := mgr.Status()
	if !status.HasClient {
		t.Error("expected HasClient true after drop")
	}
	if status.Connected {
		t.Error("expected Connected false after drop")
	}
}

func TestManager_DisconnectClearsSubscriptions(t *testing.T) {
	dialer := &fakeDialer{}
	mgr, _ := testManager(dialer)

	if err := mgr.Connect(context.Background(), "user-1", testIdentity()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if _, ok := mgr.Registry().Subscribe("room-9"); !ok {
		t.Fatal("Subscribe failed while connected")
	}

	mgr.Disconnect()

	if got := mgr.Registry().Len(); got != 0 {
		t.Errorf("registry Len = %d, want 0 after Disconnect", got)
	}

	status := mgr.Status()
	if status.State != StateDisconnected {
		t.Errorf("State = %s, want %s", status.State, StateDisconnected)
	}
	if status.HasClient {
		t.Error("expected HasClient false after Disconnect")
	}
}

func TestManager_StateChangeSequence(t *testing.T) {
	dialer := &fakeDialer{}
	mgr, _ := testManager(dialer)
	defer mgr.Disconnect()

	states := mgr.StateChanges()

	if err := mgr.Connect(context.Background(), "user-1", testIdentity()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	want := []State{StateConnecting, StateConnected}
	for _, expected := range want {
		select {
		case got := <-states:
			if got != expected {
				t.Errorf("state = %s, want %s", got, expected)
			}
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for %s transition", expected)
		}
	}
}
