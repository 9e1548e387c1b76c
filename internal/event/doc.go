// Package event provides a minimal in-process publish/subscribe bus used
// to push status-changed and log-line events to the front-end without
// polling.
//
// The bus fans events out synchronously to registered callbacks under a
// read lock. Subscribers must return quickly; anything slow (UI redraws,
// disk writes) belongs on the subscriber's own goroutine.
package event
