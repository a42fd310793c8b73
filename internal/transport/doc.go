// Package transport implements the single persistent WebSocket connection to
// the messaging gateway.
//
// The wire protocol is a frame-based pub/sub subprotocol: every frame is one
// JSON object with a type, a destination, optional headers, and an optional
// body. Room broadcasts arrive on "room.<roomId>"; out-of-band notices and
// errors arrive on the per-user "user.notice" and "user.error" addresses.
package transport
