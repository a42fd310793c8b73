// chatprobe connects to the chat gateway, joins a room, and bridges the
// conversation to the console: incoming messages print as they arrive and
// stdin lines are sent as chat messages.
// Usage: go run ./cmd/chatprobe --config configs/chatprobe.yaml --room 42
//
// Identity comes from the session store file when configured, otherwise from
// the --user/--name/--token flags.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/momnect/chatlink/internal/chatapi"
	"github.com/momnect/chatlink/internal/config"
	"github.com/momnect/chatlink/internal/connection"
	"github.com/momnect/chatlink/internal/conversation"
	"github.com/momnect/chatlink/internal/model"
	"github.com/momnect/chatlink/internal/poller"
	"github.com/momnect/chatlink/internal/reconcile"
	"github.com/momnect/chatlink/internal/router"
	"github.com/momnect/chatlink/internal/session"
	"github.com/momnect/chatlink/internal/transport"
	"github.com/momnect/chatlink/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/chatprobe.example.yaml", "path to config file")
	roomID := flag.String("room", "", "room id to join")
	userID := flag.String("user", "", "user id (when no session store is configured)")
	userName := flag.String("name", "", "display name (when no session store is configured)")
	token := flag.String("token", "", "bearer token (when no session store is configured)")
	verbose := flag.Bool("verbose", false, "log at debug level and print periodic stats")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))

	if *roomID == "" {
		logger.Error("missing required --room flag")
		os.Exit(1)
	}

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	// Session store: the web client's blob when configured, flags otherwise.
	var store session.Store
	if cfg.Session.StorePath != "" {
		store = session.NewFileStore(cfg.Session.StorePath)
	} else {
		mem := session.NewMemoryStore()
		mem.SignIn(model.Identity{UserID: *userID, Nickname: *userName}, *token)
		store = mem
	}

	identity, ok := store.Identity()
	if !ok {
		logger.Error("no signed-in identity",
			"store_path", cfg.Session.StorePath,
			"user_flag_set", *userID != "",
		)
		os.Exit(1)
	}
	logger.Info("using identity", "user", identity.UserID, "name", identity.Nickname)

	// Connection Manager
	connCfg := connection.DefaultConfig()
	connCfg.Transport = transport.Config{
		URL:               cfg.Gateway.URL,
		HandshakeTimeout:  cfg.Gateway.HandshakeTimeout,
		WriteTimeout:      cfg.Gateway.WriteTimeout,
		HeartbeatInterval: cfg.Gateway.HeartbeatInterval,
		StaleTimeout:      cfg.Gateway.StaleTimeout,
		BufferSize:        cfg.Gateway.FrameBufferSize,
	}
	connCfg.MaxAttempts = cfg.Reconnect.MaxAttempts
	connCfg.RetryDelay = cfg.Reconnect.Delay
	connCfg.FrameBufferSize = cfg.Gateway.FrameBufferSize
	connCfg.SubscriptionBuffer = cfg.Gateway.SubscriptionBuffer

	mgr := connection.NewManager(connCfg, store, logger)

	// Router consumes the manager's stable frame channel and delivers into
	// the subscription registry.
	rtr := router.New(router.DefaultConfig(), mgr.Frames(), mgr.Registry(), logger)
	if err := rtr.Start(ctx); err != nil {
		logger.Error("failed to start router", "error", err)
		os.Exit(1)
	}

	logger.Info("connecting", "gateway", cfg.Gateway.URL)
	if err := mgr.Connect(ctx, identity.UserID, identity); err != nil {
		logger.Error("failed to connect", "error", err)
		os.Exit(1)
	}

	// Status poller recovers dropped connections in the background.
	pol := poller.New(poller.Config{Interval: cfg.Poller.Interval}, mgr, identity.UserID, identity, logger)
	if err := pol.Start(ctx); err != nil {
		logger.Error("failed to start poller", "error", err)
		os.Exit(1)
	}

	// REST collaborator for history.
	api := chatapi.NewClient(cfg.Rest.BaseURL, store,
		chatapi.WithTimeout(cfg.Rest.Timeout),
		chatapi.WithRetries(cfg.Rest.MaxRetries, time.Second),
		chatapi.WithLogger(logger),
	)

	gw := connection.NewGateway(mgr, store, logger)
	timeline := reconcile.NewTimeline(identity.UserID, cfg.Reconcile.DedupeWindow)

	conv := conversation.New(*roomID, identity, timeline, gw, mgr.Registry(), api,
		conversation.Options{HistoryPageSize: cfg.Rest.PageSize}, logger)
	if err := conv.Open(ctx); err != nil {
		logger.Error("failed to open conversation", "room", *roomID, "error", err)
		os.Exit(1)
	}

	go printConversation(ctx, conv, identity.UserID)
	go printNotices(ctx, rtr)

	if *verbose {
		go printStats(ctx, rtr, mgr, logger)
	}

	go readStdin(ctx, cancel, conv, logger)

	logger.Info("conversation open, type to chat, Ctrl+C or /quit to exit", "room", *roomID)

	// Wait for shutdown
	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	logger.Info("shutting down...")
	conv.Close()
	pol.Stop(shutdownCtx)
	rtr.Stop(shutdownCtx)
	mgr.Disconnect()

	logger.Info("shutdown complete")
}

// printConversation writes newly-appended messages to stdout on every view
// update. Replaced pendings reprint under their server id.
func printConversation(ctx context.Context, conv *conversation.Conversation, selfID string) {
	printed := 0

	for {
		select {
		case <-ctx.Done():
			return
		case <-conv.Updates():
			msgs := conv.Messages()
			if len(msgs) < printed {
				printed = len(msgs)
			}
			for _, msg := range msgs[printed:] {
				printMessage(msg, selfID)
			}
			printed = len(msgs)
		}
	}
}

func printMessage(msg model.Message, selfID string) {
	marker := " "
	switch {
	case msg.Pending:
		marker = "…"
	case msg.SenderID == selfID:
		marker = "*"
	}

	switch msg.Type {
	case model.TypeJoin:
		fmt.Printf("%s [%s] %s joined\n", marker, msg.SentAt.Format("15:04:05"), msg.SenderName)
	case model.TypeSystem:
		fmt.Printf("%s [%s] system: %s\n", marker, msg.SentAt.Format("15:04:05"), msg.Content)
	default:
		fmt.Printf("%s [%s] %s: %s\n", marker, msg.SentAt.Format("15:04:05"), msg.SenderName, msg.Content)
	}
}

// printNotices surfaces the personal out-of-band channels.
func printNotices(ctx context.Context, rtr *router.Router) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-rtr.Notices():
			fmt.Printf("  [notice] %s\n", msg.Content)
		case errText := <-rtr.GatewayErrors():
			fmt.Printf("  [gateway error] %s\n", errText)
		}
	}
}

func printStats(ctx context.Context, rtr *router.Router, mgr *connection.Manager, logger *slog.Logger) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := rtr.Stats()
			status := mgr.Status()
			logger.Debug("stats",
				"state", status.State,
				"attempts", status.Attempts,
				"frames_received", stats.FramesReceived,
				"routed", stats.Routed,
				"parse_fallbacks", stats.ParseFallbacks,
				"undeliverable", stats.Undeliverable,
			)
		}
	}
}

// readStdin sends each line as a chat message. A failed send is reported and
// the line is not retried.
func readStdin(ctx context.Context, cancel context.CancelFunc, conv *conversation.Conversation, logger *slog.Logger) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" {
			cancel()
			return
		}

		if err := conv.Send(line); err != nil {
			logger.Warn("send failed, message dropped", "error", err)
		}
	}
	// stdin closed (piped input finished)
	cancel()
}
