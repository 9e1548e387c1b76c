package config

import "errors"

// Configuration validation errors.
//
// Design decision: We use package-level sentinel errors rather than
// creating new error instances in Validate(). This allows callers to use
// errors.Is() for programmatic error handling while still providing
// human-readable messages.
var (
	// ErrInvalidPoolSize is returned when the pool size is less than 1.
	ErrInvalidPoolSize = errors.New("invalid pool size: must be at least 1")

	// ErrInvalidProxyPort is returned when the proxy port is outside
	// 1..65535.
	ErrInvalidProxyPort = errors.New("invalid proxy port: must be 1-65535")

	// ErrInvalidAutoRotate is returned when the auto-rotate interval is
	// negative. Use zero to disable scheduled rotation.
	ErrInvalidAutoRotate = errors.New("invalid auto-rotate interval: must be non-negative")

	// ErrInvalidBasePort is returned when a base port is non-positive or
	// the derived port range runs past 65535.
	ErrInvalidBasePort = errors.New("invalid base port")

	// ErrInvalidTimeout is returned when a timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrPortOverlap is returned when the derived SOCKS/control port
	// ranges collide with each other or with the proxy port.
	ErrPortOverlap = errors.New("port ranges overlap")
)
