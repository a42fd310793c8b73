// Package model defines shared data types used across the chat transport core.
//
// Conventions:
//   - Timestamps: time.Time, serialized as RFC 3339 on the wire
//   - Message ids: server-assigned strings once confirmed; "temp-" prefixed
//     uuids while a locally-originated message is still pending
//   - User ids: strings (the gateway treats them as opaque)
package model
