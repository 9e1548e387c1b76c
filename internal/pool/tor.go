package pool

import (
	"context"
	"fmt"
	"time"

	"github.com/nao1215/tornago"
)

// Process is a supervised Tor daemon. *tornago.TorProcess satisfies it.
type Process interface {
	// SocksAddr returns the daemon's SOCKS5 address in host:port form.
	SocksAddr() string

	// ControlAddr returns the daemon's control-port address.
	ControlAddr() string

	// PID returns the daemon's process identifier.
	PID() int

	// Stop terminates the daemon and cleans up its resources.
	Stop() error
}

// Controller is a Tor control-port session used to force identity
// renewal. *tornago.ControlClient satisfies it.
type Controller interface {
	// NewIdentity signals the daemon to build fresh circuits.
	NewIdentity(ctx context.Context) error

	// Close releases the control connection.
	Close() error
}

// LaunchSpec describes one instance's daemon to a Launcher.
type LaunchSpec struct {
	// SocksPort is the loopback SOCKS5 port to bind.
	SocksPort int

	// ControlPort is the loopback control port to bind.
	ControlPort int

	// DataDir is the daemon's persistent data directory.
	DataDir string

	// TorBinary is the executable name or path; empty means "tor".
	TorBinary string

	// StartupTimeout bounds the wait for the daemon to bootstrap.
	StartupTimeout time.Duration

	// LogReporter, if non-nil, receives the daemon's own log lines.
	LogReporter func(string)
}

// Launcher starts Tor daemons and opens control sessions to them.
// Tests substitute a fake; production uses TornagoLauncher.
type Launcher interface {
	// Launch starts a daemon and blocks until it is reachable or the
	// startup timeout elapses.
	Launch(spec LaunchSpec) (Process, error)

	// Control opens an authenticated control session to a running
	// daemon.
	Control(controlAddr string, timeout time.Duration) (Controller, error)
}

// TornagoLauncher launches real Tor daemons via tornago.
type TornagoLauncher struct{}

// Launch starts a Tor daemon bound to the spec's loopback ports.
// StartTorDaemon blocks until both ports are reachable, which covers the
// "control channel reports a usable circuit" wait: Tor does not open its
// SOCKS listener for traffic until bootstrap has progressed far enough.
func (TornagoLauncher) Launch(spec LaunchSpec) (Process, error) {
	opts := []tornago.TorLaunchOption{
		tornago.WithTorSocksAddr(fmt.Sprintf("127.0.0.1:%d", spec.SocksPort)),
		tornago.WithTorControlAddr(fmt.Sprintf("127.0.0.1:%d", spec.ControlPort)),
		tornago.WithTorDataDir(spec.DataDir),
		tornago.WithTorStartupTimeout(spec.StartupTimeout),
	}
	if spec.TorBinary != "" {
		opts = append(opts, tornago.WithTorBinary(spec.TorBinary))
	}
	if spec.LogReporter != nil {
		opts = append(opts, tornago.WithTorLogReporter(spec.LogReporter))
	}

	cfg, err := tornago.NewTorLaunchConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("build tor launch config: %w", err)
	}

	proc, err := tornago.StartTorDaemon(cfg)
	if err != nil {
		return nil, fmt.Errorf("start tor daemon: %w", err)
	}
	return proc, nil
}

// Control discovers the daemon's cookie authentication and returns an
// authenticated control session.
func (TornagoLauncher) Control(controlAddr string, timeout time.Duration) (Controller, error) {
	auth, _, err := tornago.ControlAuthFromTor(controlAddr, timeout)
	if err != nil {
		return nil, fmt.Errorf("discover control auth: %w", err)
	}

	client, err := tornago.NewControlClient(controlAddr, auth, timeout)
	if err != nil {
		return nil, fmt.Errorf("dial control port: %w", err)
	}
	if err := client.Authenticate(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("authenticate control port: %w", err)
	}
	return client, nil
}
