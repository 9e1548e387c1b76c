// Package model defines the shared value types exchanged between the
// circuit pool, the forwarding proxy, and the CLI/front-end layers.
//
// The types here are plain data carriers with no behavior beyond
// formatting. Components communicate by passing these values rather than
// sharing internal state, which keeps the pool manager the single owner
// of all mutable per-instance data.
package model
