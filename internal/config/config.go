package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

// Default configuration values. The pool sizing and port defaults follow
// the conventions of the Tor daemon (9050/9051) with a stride of two so a
// pool of instances never collides with itself.
const (
	// DefaultPoolSize is the number of circuit instances to run.
	// Five instances give quick rotation without overwhelming the host;
	// a single instance still works but rotation degrades to in-place
	// renewal, which takes several seconds per identity change.
	DefaultPoolSize = 5

	// DefaultProxyPort is the local HTTP/HTTPS proxy listener port.
	DefaultProxyPort = 8080

	// DefaultBaseSocksPort is the SOCKS port of instance 0. Port 9050 is
	// the conventional Tor SOCKS port.
	DefaultBaseSocksPort = 9050

	// DefaultBaseControlPort is the control port of instance 0.
	DefaultBaseControlPort = 9051

	// portStride is the spacing between consecutive instances' ports.
	// Each instance consumes a SOCKS and a control port, so a stride of
	// two keeps both sequences collision-free.
	portStride = 2

	// DefaultStartupTimeout bounds how long one instance may take to
	// bootstrap its first circuit. Tor bootstrap regularly takes tens of
	// seconds on slow networks.
	DefaultStartupTimeout = 90 * time.Second

	// DefaultResolveTimeout bounds a single identity resolution (exit IP
	// plus country lookup) through a SOCKS endpoint.
	DefaultResolveTimeout = 10 * time.Second

	// DefaultStopGracePeriod is how long to wait for a Tor process to
	// exit after being signalled before force-killing it.
	DefaultStopGracePeriod = 5 * time.Second

	// AppName is used for XDG directory paths.
	AppName = "mkproxy"
)

// Config holds all settings for the circuit pool and forwarding proxy.
// It is populated from the YAML config file and CLI flags, then passed
// through the application via dependency injection rather than global
// state.
type Config struct {
	// PoolSize is the number of circuit instances to launch. Must be at
	// least 1. The pool never resizes while running.
	PoolSize int `yaml:"pool_size"`

	// ProxyPort is the loopback port the forwarding proxy listens on.
	ProxyPort int `yaml:"proxy_port"`

	// AutoRotateInterval is the period of scheduled rotation. Zero
	// disables the rotation scheduler.
	AutoRotateInterval time.Duration `yaml:"auto_rotate_interval"`

	// BaseSocksPort is the SOCKS port assigned to instance 0. Instance i
	// gets BaseSocksPort + 2*i.
	BaseSocksPort int `yaml:"base_socks_port"`

	// BaseControlPort is the control port assigned to instance 0.
	// Instance i gets BaseControlPort + 2*i.
	BaseControlPort int `yaml:"base_control_port"`

	// DataDir is the parent directory for per-instance Tor data
	// directories. Empty means the XDG data directory for mkproxy.
	DataDir string `yaml:"data_dir"`

	// TorBinary is the tor executable name or path. Empty means "tor"
	// resolved via PATH.
	TorBinary string `yaml:"tor_binary"`

	// StartupTimeout bounds each instance's bootstrap.
	StartupTimeout time.Duration `yaml:"startup_timeout"`

	// ResolveTimeout bounds one identity resolution round trip.
	ResolveTimeout time.Duration `yaml:"resolve_timeout"`

	// StopGracePeriod is the wait before force-killing a Tor process on
	// pool stop.
	StopGracePeriod time.Duration `yaml:"stop_grace_period"`

	// HistoryDB is the directory holding the rotation-history database.
	// Empty disables history recording.
	HistoryDB string `yaml:"history_db"`

	// Verbose enables debug-level logging.
	Verbose bool `yaml:"verbose"`
}

// Default returns a Config populated with default values.
func Default() *Config {
	return &Config{
		PoolSize:           DefaultPoolSize,
		ProxyPort:          DefaultProxyPort,
		AutoRotateInterval: 0,
		BaseSocksPort:      DefaultBaseSocksPort,
		BaseControlPort:    DefaultBaseControlPort,
		DataDir:            DefaultDataDir(),
		StartupTimeout:     DefaultStartupTimeout,
		ResolveTimeout:     DefaultResolveTimeout,
		StopGracePeriod:    DefaultStopGracePeriod,
		HistoryDB:          DefaultHistoryDir(),
	}
}

// DefaultDataDir returns the XDG data directory for per-instance Tor
// state.
func DefaultDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// DefaultHistoryDir returns the XDG state directory for the rotation
// history database.
func DefaultHistoryDir() string {
	return filepath.Join(xdg.StateHome, AppName)
}

// SocksPortFor returns the SOCKS port assigned to the given instance id.
func (c *Config) SocksPortFor(id int) int {
	return c.BaseSocksPort + portStride*id
}

// ControlPortFor returns the control port assigned to the given instance
// id.
func (c *Config) ControlPortFor(id int) int {
	return c.BaseControlPort + portStride*id
}

// InstanceDataDir returns the Tor data directory for the given instance
// id. The directory is keyed by SOCKS port so restarting with the same
// configuration reuses cached Tor state.
func (c *Config) InstanceDataDir(id int) string {
	return filepath.Join(c.DataDir, fmt.Sprintf("tor_%d", c.SocksPortFor(id)))
}

// yamlConfig mirrors Config for YAML with durations as strings, since
// the YAML decoder does not parse "90s" into time.Duration on its own.
// Pointer fields distinguish absent keys from zero values so absent
// keys keep their defaults.
type yamlConfig struct {
	PoolSize           *int    `yaml:"pool_size,omitempty"`
	ProxyPort          *int    `yaml:"proxy_port,omitempty"`
	AutoRotateInterval *string `yaml:"auto_rotate_interval,omitempty"`
	BaseSocksPort      *int    `yaml:"base_socks_port,omitempty"`
	BaseControlPort    *int    `yaml:"base_control_port,omitempty"`
	DataDir            *string `yaml:"data_dir,omitempty"`
	TorBinary          *string `yaml:"tor_binary,omitempty"`
	StartupTimeout     *string `yaml:"startup_timeout,omitempty"`
	ResolveTimeout     *string `yaml:"resolve_timeout,omitempty"`
	StopGracePeriod    *string `yaml:"stop_grace_period,omitempty"`
	HistoryDB          *string `yaml:"history_db,omitempty"`
	Verbose            *bool   `yaml:"verbose,omitempty"`
}

// UnmarshalYAML decodes YAML into the Config, overwriting only the
// fields present in the document.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	var raw yamlConfig
	if err := value.Decode(&raw); err != nil {
		return err
	}

	setInt := func(dst *int, src *int) {
		if src != nil {
			*dst = *src
		}
	}
	setString := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	setDuration := func(dst *time.Duration, src *string, key string) error {
		if src == nil {
			return nil
		}
		d, err := time.ParseDuration(*src)
		if err != nil {
			return fmt.Errorf("invalid duration for %s: %w", key, err)
		}
		*dst = d
		return nil
	}

	setInt(&c.PoolSize, raw.PoolSize)
	setInt(&c.ProxyPort, raw.ProxyPort)
	setInt(&c.BaseSocksPort, raw.BaseSocksPort)
	setInt(&c.BaseControlPort, raw.BaseControlPort)
	setString(&c.DataDir, raw.DataDir)
	setString(&c.TorBinary, raw.TorBinary)
	setString(&c.HistoryDB, raw.HistoryDB)
	if raw.Verbose != nil {
		c.Verbose = *raw.Verbose
	}

	if err := setDuration(&c.AutoRotateInterval, raw.AutoRotateInterval, "auto_rotate_interval"); err != nil {
		return err
	}
	if err := setDuration(&c.StartupTimeout, raw.StartupTimeout, "startup_timeout"); err != nil {
		return err
	}
	if err := setDuration(&c.ResolveTimeout, raw.ResolveTimeout, "resolve_timeout"); err != nil {
		return err
	}
	return setDuration(&c.StopGracePeriod, raw.StopGracePeriod, "stop_grace_period")
}

// MarshalYAML encodes the Config with durations in "90s" form.
func (c *Config) MarshalYAML() (any, error) {
	str := func(s string) *string { return &s }
	return yamlConfig{
		PoolSize:           &c.PoolSize,
		ProxyPort:          &c.ProxyPort,
		AutoRotateInterval: str(c.AutoRotateInterval.String()),
		BaseSocksPort:      &c.BaseSocksPort,
		BaseControlPort:    &c.BaseControlPort,
		DataDir:            &c.DataDir,
		TorBinary:          &c.TorBinary,
		StartupTimeout:     str(c.StartupTimeout.String()),
		ResolveTimeout:     str(c.ResolveTimeout.String()),
		StopGracePeriod:    str(c.StopGracePeriod.String()),
		HistoryDB:          &c.HistoryDB,
		Verbose:            &c.Verbose,
	}, nil
}

// Validate checks the configuration for internal consistency.
// It returns one of the package sentinel errors wrapped with context.
func (c *Config) Validate() error {
	if c.PoolSize < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidPoolSize, c.PoolSize)
	}
	if c.ProxyPort < 1 || c.ProxyPort > 65535 {
		return fmt.Errorf("%w: got %d", ErrInvalidProxyPort, c.ProxyPort)
	}
	if c.AutoRotateInterval < 0 {
		return fmt.Errorf("%w: got %s", ErrInvalidAutoRotate, c.AutoRotateInterval)
	}
	if c.BaseSocksPort < 1 || c.BaseControlPort < 1 {
		return fmt.Errorf("%w: socks %d, control %d", ErrInvalidBasePort, c.BaseSocksPort, c.BaseControlPort)
	}
	if c.SocksPortFor(c.PoolSize-1) > 65535 || c.ControlPortFor(c.PoolSize-1) > 65535 {
		return fmt.Errorf("%w: pool of %d exceeds port 65535", ErrInvalidBasePort, c.PoolSize)
	}
	if c.StartupTimeout <= 0 || c.ResolveTimeout <= 0 {
		return ErrInvalidTimeout
	}
	if overlaps(c) {
		return fmt.Errorf("%w: socks base %d, control base %d, pool %d",
			ErrPortOverlap, c.BaseSocksPort, c.BaseControlPort, c.PoolSize)
	}
	return nil
}

// overlaps reports whether any instance's SOCKS port collides with any
// instance's control port, or either collides with the proxy port.
func overlaps(c *Config) bool {
	used := make(map[int]bool, 2*c.PoolSize+1)
	used[c.ProxyPort] = true
	for i := range c.PoolSize {
		for _, p := range []int{c.SocksPortFor(i), c.ControlPortFor(i)} {
			if used[p] {
				return true
			}
			used[p] = true
		}
	}
	return false
}
