// Package resolver learns the current exit identity of a circuit.
//
// Given a SOCKS5 endpoint, the resolver issues a public-IP lookup through
// that endpoint and then a country lookup for the resolved IP, both
// bounded by a single timeout. It performs no retries; retry policy
// belongs to the pool manager, which re-resolves only through an
// instance's normal Connecting -> Ready transition.
//
// The resolver depends on nothing else in this system and is safe for
// concurrent use.
package resolver
