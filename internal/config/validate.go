package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Gateway.URL == "" {
		return errors.New("gateway.url is required")
	}
	if !strings.HasPrefix(c.Gateway.URL, "ws://") && !strings.HasPrefix(c.Gateway.URL, "wss://") {
		return fmt.Errorf("gateway.url must be a ws:// or wss:// URL, got %q", c.Gateway.URL)
	}
	if c.Gateway.FrameBufferSize < 1 {
		return errors.New("gateway.frame_buffer_size must be >= 1")
	}
	if c.Gateway.SubscriptionBuffer < 1 {
		return errors.New("gateway.subscription_buffer must be >= 1")
	}

	if c.Rest.BaseURL == "" {
		return errors.New("rest.base_url is required")
	}
	if c.Rest.PageSize < 1 {
		return errors.New("rest.page_size must be >= 1")
	}

	if c.Reconnect.MaxAttempts < 1 {
		return errors.New("reconnect.max_attempts must be >= 1")
	}
	if c.Reconnect.Delay <= 0 {
		return errors.New("reconnect.delay must be positive")
	}

	if c.Poller.Interval <= 0 {
		return errors.New("poller.interval must be positive")
	}

	if c.Reconcile.DedupeWindow <= 0 {
		return errors.New("reconcile.dedupe_window must be positive")
	}

	return nil
}
