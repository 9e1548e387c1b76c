// Package main provides the entry point for the mkproxy CLI.
//
// mkproxy runs a pool of Tor circuits behind a local HTTP/HTTPS
// forwarding proxy and rotates the exit identity on demand or on a
// schedule.
//
// Usage:
//
//	mkproxy serve
//	mkproxy rotate
//	mkproxy status
//
// See --help for all available options.
package main

// main is the entry point for mkproxy.
func main() {
	Execute()
}
