package pool

import "errors"

// Pool operation errors.
var (
	// ErrPoolNotStarted is returned by operations that require a running
	// pool.
	ErrPoolNotStarted = errors.New("pool is not started")

	// ErrPoolAlreadyStarted is returned by Start on a running pool.
	// Changing pool configuration requires a stop and a fresh start.
	ErrPoolAlreadyStarted = errors.New("pool is already started")

	// ErrAllInstancesFailed is returned by Start when zero instances
	// reached Ready. A pool with at least one Ready instance is usable
	// and does not produce this error.
	ErrAllInstancesFailed = errors.New("all circuit instances failed to start")

	// ErrNoReadyInstance is returned by Rotate when no instance other
	// than the active one is Ready. The active pointer is left
	// unchanged.
	ErrNoReadyInstance = errors.New("no other ready instance to rotate to")

	// ErrRenewalFailed is returned by Rotate on a single-instance pool
	// when the in-place identity renewal fails. The instance is marked
	// Error and keeps its last known-good identity cached.
	ErrRenewalFailed = errors.New("identity renewal failed")

	// ErrInstanceBusy is returned when a rotation targets an instance
	// that already has a lifecycle operation in flight.
	ErrInstanceBusy = errors.New("instance has an operation in flight")
)
