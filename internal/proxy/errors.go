package proxy

import "errors"

// Proxy server errors.
var (
	// ErrServerClosed is returned by Serve after Shutdown closes the
	// listener, mirroring net/http's convention.
	ErrServerClosed = errors.New("proxy server closed")

	// ErrNoActiveInstance means the pool has no active circuit; new
	// connections are rejected with 502 instead of being queued.
	ErrNoActiveInstance = errors.New("no active circuit instance")
)
