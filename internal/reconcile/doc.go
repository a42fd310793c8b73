// Package reconcile implements the Reconciliation Engine.
//
// A Timeline merges locally-originated pending messages with gateway-echoed
// confirmed messages into one list sorted by send time. It is a pure data
// structure, independent of transport and rendering, so the merge policy is
// testable on its own.
package reconcile
