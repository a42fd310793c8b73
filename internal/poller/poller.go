package poller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/momnect/chatlink/internal/connection"
	"github.com/momnect/chatlink/internal/model"
	"github.com/momnect/chatlink/internal/transport"
)

// Mode is the poller state.
type Mode string

const (
	ModeIdle    Mode = "idle"    // Connected; ticker cancelled
	ModePolling Mode = "polling" // Not connected; sampling status each tick
)

// ConnectionManager is the slice of the manager the poller needs.
type ConnectionManager interface {
	Status() connection.Status
	StateChanges() <-chan connection.State
	ForceReconnect(ctx context.Context, userID string, identity model.Identity) error
}

// Config holds poller configuration.
type Config struct {
	Interval time.Duration // Status sample interval (default: 3s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval: 3 * time.Second,
	}
}

// Poller keeps the connection alive on behalf of every caller.
type Poller struct {
	cfg      Config
	mgr      ConnectionManager
	userID   string
	identity model.Identity
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu   sync.RWMutex
	mode Mode
}

// New creates a Poller that reconnects as the given user.
func New(cfg Config, mgr ConnectionManager, userID string, identity model.Identity, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval == 0 {
		cfg.Interval = DefaultConfig().Interval
	}

	return &Poller{
		cfg:      cfg,
		mgr:      mgr,
		userID:   userID,
		identity: identity,
		logger:   logger,
		mode:     ModeIdle,
	}
}

// Start begins watching connection state.
func (p *Poller) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.run()

	p.logger.Info("status poller started", "interval", p.cfg.Interval)
	return nil
}

// Stop gracefully shuts down the poller.
func (p *Poller) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("status poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Mode returns the current poller state.
func (p *Poller) Mode() Mode {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.mode
}

// run is the main watch loop. The ticker exists only in Polling mode.
func (p *Poller) run() {
	defer p.wg.Done()

	states := p.mgr.StateChanges()

	var ticker *time.Ticker
	var tickC <-chan time.Time

	arm := func() {
		if ticker == nil {
			ticker = time.NewTicker(p.cfg.Interval)
			tickC = ticker.C
			p.setMode(ModePolling)
		}
	}
	disarm := func() {
		if ticker != nil {
			ticker.Stop()
			ticker, tickC = nil, nil
			p.setMode(ModeIdle)
		}
	}
	defer disarm()

	if !p.mgr.Status().Connected {
		arm()
	}

	for {
		select {
		case <-p.ctx.Done():
			return

		case state := <-states:
			if state == connection.StateConnected {
				disarm()
			} else {
				arm()
			}

		case <-tickC:
			p.check()
		}
	}
}

// check samples status once and triggers recovery when appropriate.
func (p *Poller) check() {
	status := p.mgr.Status()

	if status.Connected {
		// The transition event will disarm the ticker; nothing to do.
		return
	}

	// Error state needs caller intervention: an authorization failure wants
	// fresh credentials, and an exhausted attempt cap wants an explicit
	// ForceReconnect. Retrying here would defeat both.
	if status.State == connection.StateError {
		return
	}

	// Connecting means a dial is already in flight.
	if status.State == connection.StateConnecting {
		return
	}

	// An explicit Disconnect releases the client handle; only a dropped
	// connection leaves one behind to recover.
	if !status.HasClient {
		return
	}

	p.logger.Info("connection down, forcing reconnect")
	if err := p.mgr.ForceReconnect(p.ctx, p.userID, p.identity); err != nil {
		if errors.Is(err, transport.ErrUnauthorized) {
			p.logger.Error("reconnect rejected as unauthorized, waiting for fresh credentials")
			return
		}
		p.logger.Warn("reconnect failed", "error", err)
	}
}

func (p *Poller) setMode(m Mode) {
	p.mu.Lock()
	p.mode = m
	p.mu.Unlock()
}
