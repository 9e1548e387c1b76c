// Package pool implements the circuit pool manager: it launches and
// supervises a fixed-size set of Tor processes, tracks each one's
// readiness and exit identity, and performs rotation with pre-warming of
// the instance being rotated out.
//
// The manager is the single owner of all per-instance state. The active
// pointer and the per-instance status table are the only state shared
// across goroutines, and every read and write goes through the manager's
// mutex. Each instance has at most one in-flight lifecycle operation at a
// time; a late-arriving result for an instance torn down by Stop is
// discarded via a generation counter rather than applied to a freed slot.
//
// Tor daemon lifecycle and control-port operations are reached through
// the Launcher, Process, and Controller interfaces so tests can run the
// full pool without a tor binary. The production implementation wraps
// tornago.
package pool
