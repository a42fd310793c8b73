package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultGatewayURL         = "ws://localhost:8000/ws-chat"
	DefaultRestURL            = "http://localhost:8000/api/v1"
	DefaultHandshakeTimeout   = 10 * time.Second
	DefaultWriteTimeout       = 5 * time.Second
	DefaultHeartbeatInterval  = 4 * time.Second
	DefaultStaleTimeout       = 30 * time.Second
	DefaultFrameBufferSize    = 1000
	DefaultSubscriptionBuffer = 64
	DefaultRestTimeout        = 30 * time.Second
	DefaultMaxRetries         = 3
	DefaultPageSize           = 50
	DefaultMaxAttempts        = 5
	DefaultReconnectDelay     = 5 * time.Second
	DefaultPollInterval       = 3 * time.Second
	DefaultDedupeWindow       = 5 * time.Second
)

func (c *Config) applyDefaults() {
	if c.Gateway.URL == "" {
		c.Gateway.URL = DefaultGatewayURL
	}
	if c.Gateway.HandshakeTimeout == 0 {
		c.Gateway.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Gateway.WriteTimeout == 0 {
		c.Gateway.WriteTimeout = DefaultWriteTimeout
	}
	if c.Gateway.HeartbeatInterval == 0 {
		c.Gateway.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.Gateway.StaleTimeout == 0 {
		c.Gateway.StaleTimeout = DefaultStaleTimeout
	}
	if c.Gateway.FrameBufferSize == 0 {
		c.Gateway.FrameBufferSize = DefaultFrameBufferSize
	}
	if c.Gateway.SubscriptionBuffer == 0 {
		c.Gateway.SubscriptionBuffer = DefaultSubscriptionBuffer
	}

	if c.Rest.BaseURL == "" {
		c.Rest.BaseURL = DefaultRestURL
	}
	if c.Rest.Timeout == 0 {
		c.Rest.Timeout = DefaultRestTimeout
	}
	if c.Rest.MaxRetries == 0 {
		c.Rest.MaxRetries = DefaultMaxRetries
	}
	if c.Rest.PageSize == 0 {
		c.Rest.PageSize = DefaultPageSize
	}

	if c.Reconnect.MaxAttempts == 0 {
		c.Reconnect.MaxAttempts = DefaultMaxAttempts
	}
	if c.Reconnect.Delay == 0 {
		c.Reconnect.Delay = DefaultReconnectDelay
	}

	if c.Poller.Interval == 0 {
		c.Poller.Interval = DefaultPollInterval
	}

	if c.Reconcile.DedupeWindow == 0 {
		c.Reconcile.DedupeWindow = DefaultDedupeWindow
	}
}
