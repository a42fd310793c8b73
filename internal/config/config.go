package config

import "time"

// Config is the root configuration for the chat transport core.
type Config struct {
	Gateway   GatewayConfig   `yaml:"gateway"`
	Rest      RestConfig      `yaml:"rest"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
	Poller    PollerConfig    `yaml:"poller"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
	Session   SessionConfig   `yaml:"session"`
}

// GatewayConfig holds settings for the persistent messaging-gateway connection.
type GatewayConfig struct {
	URL                string        `yaml:"url"`
	HandshakeTimeout   time.Duration `yaml:"handshake_timeout"`
	WriteTimeout       time.Duration `yaml:"write_timeout"`
	HeartbeatInterval  time.Duration `yaml:"heartbeat_interval"`
	StaleTimeout       time.Duration `yaml:"stale_timeout"`
	FrameBufferSize    int           `yaml:"frame_buffer_size"`
	SubscriptionBuffer int           `yaml:"subscription_buffer"`
}

// RestConfig holds settings for the chat REST collaborator service.
type RestConfig struct {
	BaseURL    string        `yaml:"base_url"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	PageSize   int           `yaml:"page_size"`
}

// ReconnectConfig holds the connection retry policy.
type ReconnectConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Delay       time.Duration `yaml:"delay"`
}

// PollerConfig holds connection status poller settings.
type PollerConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// ReconcileConfig holds message reconciliation settings.
type ReconcileConfig struct {
	DedupeWindow time.Duration `yaml:"dedupe_window"`
}

// SessionConfig locates the external session store.
type SessionConfig struct {
	// StorePath points at the JSON session blob written by the web client.
	// Empty means an in-memory store supplied by the caller.
	StorePath string `yaml:"store_path"`
}
