// Package connection implements the Connection Manager component.
//
// The Connection Manager:
//   - Owns the single persistent gateway connection for the process
//   - Applies the capped fixed-delay reconnection policy
//   - Treats 401/403 handshake rejections as terminal (no auto-retry)
//   - Replays every registered room subscription after a reconnect
//   - Forwards inbound frames to the Message Router
//
// The subscription registry and the outbound gateway live here too; they are
// the only other components allowed to touch the transport, and they do so
// exclusively through the manager.
package connection
