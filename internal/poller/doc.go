// Package poller implements the Connection Status Poller component.
//
// The poller is the only timer owner for connection recovery. While the
// manager reports not-connected it samples status every few seconds and
// triggers a force-reconnect; the moment a Connected transition arrives the
// ticker is cancelled. UI surfaces never manage their own reconnect timers.
package poller
