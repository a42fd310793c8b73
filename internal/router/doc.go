// Package router implements the Message Router component.
//
// The router is the single consumer of the Connection Manager's inbound frame
// stream. It demultiplexes frames by destination (room broadcasts versus the
// personal notice and error addresses), parses payloads into canonical
// messages, and hands them to the matching subscription.
//
// An inbound payload that fails to parse is never dropped silently: it is
// wrapped as a SYSTEM message carrying the raw text.
package router
