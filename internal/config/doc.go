// Package config holds the pool and proxy configuration.
//
// Configuration is a plain struct handed to the pool manager and proxy
// server at startup; the core never reads or writes persisted
// configuration itself. Loading and saving the YAML file is provided here
// for the CLI and front-end layers.
//
// A running pool treats its configuration as immutable: changing the pool
// size, proxy port, or base ports requires stopping and restarting the
// pool.
package config
