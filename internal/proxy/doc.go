// Package proxy implements the forwarding proxy server: a loopback-only
// HTTP/HTTPS proxy that relays client traffic through the circuit pool's
// currently active SOCKS endpoint.
//
// Each accepted connection captures the active endpoint once and keeps
// it for its whole lifetime; a rotation mid-connection never retargets
// in-flight traffic. Origin-form GET requests are the in-band control
// surface (/rotate, /status) and are handled locally, never forwarded
// upstream.
package proxy
