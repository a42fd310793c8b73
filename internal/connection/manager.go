package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/momnect/chatlink/internal/model"
	"github.com/momnect/chatlink/internal/session"
	"github.com/momnect/chatlink/internal/transport"
)

// Manager owns the single persistent gateway connection for the process.
// All components reach the transport through it; nothing else holds a
// reference to the underlying connection.
type Manager struct {
	cfg    Config
	store  session.Store
	logger *slog.Logger

	registry *Registry

	// Stable inbound frame channel for the Message Router. Survives
	// reconnects; each live connection pumps into it.
	frames chan transport.RawFrame

	mu       sync.RWMutex
	state    State
	lastErr  error
	attempts int
	client   transport.Client
	gen      int           // connection generation, guards stale pumps
	pumpStop chan struct{} // closed on teardown of the current connection
	userID   string
	identity model.Identity

	subMu     sync.Mutex
	stateSubs []chan State

	// newClient is swappable in tests.
	newClient func(transport.Config, *slog.Logger) transport.Client
}

// NewManager creates the Connection Manager. One per process.
func NewManager(cfg Config, store session.Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	m := &Manager{
		cfg:       cfg,
		store:     store,
		logger:    logger,
		frames:    make(chan transport.RawFrame, cfg.FrameBufferSize),
		state:     StateDisconnected,
		newClient: transport.NewClient,
	}
	m.registry = newRegistry(m, cfg.SubscriptionBuffer, logger)
	return m
}

// Registry returns the room subscription registry.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// Frames returns the inbound frame channel consumed by the Message Router.
func (m *Manager) Frames() <-chan transport.RawFrame {
	return m.frames
}

// Connect establishes the gateway connection. It is a no-op while already
// Connected or Connecting, so concurrent calls cause exactly one handshake.
//
// Transport failures are retried with a fixed delay up to the attempt cap;
// reaching the cap transitions to Error and returns ErrConnectionFailed. A
// 401/403 handshake rejection transitions to Error immediately and is not
// retried until a caller supplies fresh credentials via ForceReconnect.
func (m *Manager) Connect(ctx context.Context, userID string, identity model.Identity) error {
	m.mu.Lock()
	if m.state == StateConnected || m.state == StateConnecting {
		m.mu.Unlock()
		return nil
	}
	m.userID = userID
	m.identity = identity
	m.setStateLocked(StateConnecting)
	m.mu.Unlock()

	for {
		client := m.newClient(m.cfg.Transport, m.logger)
		err := client.Connect(ctx, m.handshakeHeader(userID, identity))
		if err == nil {
			m.finishConnect(client)
			return nil
		}

		if isUnauthorized(err) {
			m.logger.Error("gateway rejected credentials", "error", err)
			m.mu.Lock()
			m.lastErr = err
			m.setStateLocked(StateError)
			m.mu.Unlock()
			return err
		}

		m.mu.Lock()
		m.attempts++
		attempts := m.attempts
		m.mu.Unlock()

		m.logger.Warn("gateway connect failed",
			"attempt", attempts,
			"max_attempts", m.cfg.MaxAttempts,
			"error", err,
		)

		if attempts >= m.cfg.MaxAttempts {
			failure := fmt.Errorf("%w after %d attempts: %v", ErrConnectionFailed, attempts, err)
			m.mu.Lock()
			m.lastErr = failure
			m.setStateLocked(StateError)
			m.mu.Unlock()
			return failure
		}

		select {
		case <-ctx.Done():
			m.mu.Lock()
			m.lastErr = ctx.Err()
			m.setStateLocked(StateDisconnected)
			m.mu.Unlock()
			return ctx.Err()
		case <-time.After(m.cfg.RetryDelay):
		}
	}
}

// finishConnect installs a freshly-connected client and replays subscriptions.
func (m *Manager) finishConnect(client transport.Client) {
	stop := make(chan struct{})

	m.mu.Lock()
	m.client = client
	m.gen++
	gen := m.gen
	m.pumpStop = stop
	m.attempts = 0
	m.lastErr = nil
	m.setStateLocked(StateConnected)
	m.mu.Unlock()

	go m.pump(client, gen, stop)

	// Personal addresses first, then every registered room. Callers never
	// need to re-subscribe after a reconnect.
	m.subscribePersonal(client)
	m.registry.replay(client)

	m.logger.Info("gateway connected", "rooms", m.registry.Len())
}

// Disconnect unsubscribes every registered room, closes the transport, and
// transitions to Disconnected. The attempt counter is cleared.
func (m *Manager) Disconnect() {
	m.registry.clear()

	m.mu.Lock()
	if m.client != nil {
		m.client.Close()
		m.client = nil
	}
	if m.pumpStop != nil {
		close(m.pumpStop)
		m.pumpStop = nil
	}
	m.gen++
	m.attempts = 0
	m.lastErr = nil
	m.setStateLocked(StateDisconnected)
	m.mu.Unlock()

	m.logger.Info("gateway disconnected")
}

// ForceReconnect tears down the current connection, resets the attempt
// counter, and connects again. Registered subscriptions are kept and replayed
// on success. Used when an external caller detects a stale connection or has
// supplied fresh credentials after an authorization failure.
func (m *Manager) ForceReconnect(ctx context.Context, userID string, identity model.Identity) error {
	m.mu.Lock()
	if m.client != nil {
		m.client.Close()
		m.client = nil
	}
	if m.pumpStop != nil {
		close(m.pumpStop)
		m.pumpStop = nil
	}
	m.gen++
	m.attempts = 0
	m.lastErr = nil
	m.setStateLocked(StateDisconnected)
	m.mu.Unlock()

	return m.Connect(ctx, userID, identity)
}

// Status returns a snapshot of the connection state.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	connected := m.state == StateConnected && m.client != nil && m.client.IsConnected()

	return Status{
		State:     m.state,
		Connected: connected,
		Err:       m.lastErr,
		HasClient: m.client != nil,
		Attempts:  m.attempts,
	}
}

// StateChanges returns a channel receiving every state transition. Sends are
// non-blocking; a slow consumer misses intermediate transitions, not the
// latest state, because it can always re-read Status.
func (m *Manager) StateChanges() <-chan State {
	ch := make(chan State, 8)
	m.subMu.Lock()
	m.stateSubs = append(m.stateSubs, ch)
	m.subMu.Unlock()
	return ch
}

// send writes one frame if Connected.
func (m *Manager) send(f transport.Frame) error {
	m.mu.RLock()
	client := m.client
	connected := m.state == StateConnected
	m.mu.RUnlock()

	if !connected || client == nil {
		return ErrNotConnected
	}
	return client.Send(f)
}

// connected reports whether the manager is currently Connected.
func (m *Manager) connected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == StateConnected && m.client != nil
}

// setStateLocked updates the state and notifies subscribers. Caller holds mu.
func (m *Manager) setStateLocked(s State) {
	if m.state == s {
		return
	}
	m.state = s

	m.subMu.Lock()
	for _, ch := range m.stateSubs {
		select {
		case ch <- s:
		default:
		}
	}
	m.subMu.Unlock()
}

// handshakeHeader builds the upgrade-request headers: identity plus the
// bearer token currently held by the session store, when present.
func (m *Manager) handshakeHeader(userID string, identity model.Identity) http.Header {
	header := http.Header{}
	if userID != "" {
		header.Set(transport.HeaderUserID, userID)
	}
	if identity.Nickname != "" {
		header.Set(transport.HeaderUserName, identity.Nickname)
	}
	if token, ok := m.store.AccessToken(); ok {
		header.Set(transport.HeaderAuth, "Bearer "+token)
	}
	return header
}

// subscribePersonal establishes the per-user notice and error addresses,
// once per connected session.
func (m *Manager) subscribePersonal(client transport.Client) {
	for _, dest := range []string{transport.DestNotice, transport.DestError} {
		err := client.Send(transport.Frame{
			Type:        transport.FrameSubscribe,
			Destination: dest,
		})
		if err != nil {
			m.logger.Warn("failed to subscribe personal address", "destination", dest, "error", err)
		}
	}
}

// pump forwards frames from one connection into the stable router channel
// until the connection dies or is torn down. A transport error transitions
// the manager to Disconnected; recovery is the status poller's job.
func (m *Manager) pump(client transport.Client, gen int, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return

		case err := <-client.Errors():
			m.logger.Warn("gateway connection lost", "error", err)
			m.mu.Lock()
			if m.gen == gen {
				m.lastErr = err
				m.setStateLocked(StateDisconnected)
			}
			m.mu.Unlock()
			return

		case raw, ok := <-client.Frames():
			if !ok {
				return
			}
			select {
			case m.frames <- raw:
			case <-stop:
				return
			default:
				m.logger.Warn("router frame buffer full, dropping frame")
			}
		}
	}
}

func isUnauthorized(err error) bool {
	return errors.Is(err, transport.ErrUnauthorized)
}
