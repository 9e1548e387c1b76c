package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/developermelih/mk-proxy-generator/internal/config"
	"github.com/developermelih/mk-proxy-generator/internal/event"
	"github.com/developermelih/mk-proxy-generator/internal/history"
	mklog "github.com/developermelih/mk-proxy-generator/internal/log"
	"github.com/developermelih/mk-proxy-generator/internal/pool"
	"github.com/developermelih/mk-proxy-generator/internal/proxy"
	"github.com/developermelih/mk-proxy-generator/internal/resolver"
)

// shutdownTimeout bounds the proxy connection drain on exit.
const shutdownTimeout = 10 * time.Second

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Launch the circuit pool and the local forwarding proxy",
		Long: `Serve launches the configured number of Tor circuits, waits for them
to become usable, and then serves a local HTTP/HTTPS proxy that routes
all traffic through the pool's active circuit.

While running:
- GET http://127.0.0.1:<proxy_port>/rotate switches the active circuit
- GET http://127.0.0.1:<proxy_port>/status reports the instance table
- the auto-rotation timer (if configured) rotates on a fixed period

Serve keeps running until interrupted. On shutdown it drains in-flight
proxy connections, then stops every Tor process.

Examples:
  # Start with defaults (5 circuits, proxy on port 8080)
  mkproxy serve

  # Start 3 circuits with scheduled rotation every 10 minutes
  mkproxy serve --pool-size 3 --auto-rotate 10m

  # Use a custom configuration file
  mkproxy serve -c myconfig.yaml`,
		Args: cobra.NoArgs,
		RunE: runServeCmd,
	}

	cmd.Flags().IntP("pool-size", "n", config.DefaultPoolSize,
		"Number of Tor circuit instances to run")
	cmd.Flags().IntP("proxy-port", "p", config.DefaultProxyPort,
		"Loopback port for the forwarding proxy")
	cmd.Flags().DurationP("auto-rotate", "r", 0,
		"Scheduled rotation period (0 disables)")
	cmd.Flags().Int("base-socks-port", config.DefaultBaseSocksPort,
		"SOCKS port of instance 0 (instance i uses base + 2*i)")
	cmd.Flags().Int("base-control-port", config.DefaultBaseControlPort,
		"Control port of instance 0 (instance i uses base + 2*i)")
	cmd.Flags().String("data-dir", "",
		"Parent directory for per-instance Tor data directories")
	cmd.Flags().String("tor-binary", "",
		"Tor executable name or path (default: tor from PATH)")
	cmd.Flags().Bool("no-history", false,
		"Disable rotation history recording")

	return cmd
}

// runServeCmd executes the serve command.
func runServeCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := buildServeConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	bus := event.NewBus()
	logger := mklog.New(os.Stderr, cfg.Verbose, bus)
	slog.SetDefault(logger)

	// Mirror instance status changes on stdout, the headless counterpart
	// of the original desktop status table.
	cancelStatus := bus.Subscribe(func(e event.Event) {
		if e.Type != event.TypeStatusChanged {
			return
		}
		inst := e.Instance
		line := fmt.Sprintf("instance %d: %s", inst.ID, inst.StatusText)
		if inst.CurrentIP != "" {
			line += fmt.Sprintf(" (%s %s)", inst.CurrentIP, inst.CountryCode)
		}
		if inst.Active {
			line += " [active]"
		}
		fmt.Fprintln(cmd.OutOrStdout(), line)
	})
	defer cancelStatus()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runServe(ctx, cfg, bus, logger, cmd)
}

// buildServeConfig loads the config file and applies serve flag
// overrides on top. Flags only override when explicitly set.
func buildServeConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("pool-size") {
		cfg.PoolSize, _ = flags.GetInt("pool-size")
	}
	if flags.Changed("proxy-port") {
		cfg.ProxyPort, _ = flags.GetInt("proxy-port")
	}
	if flags.Changed("auto-rotate") {
		cfg.AutoRotateInterval, _ = flags.GetDuration("auto-rotate")
	}
	if flags.Changed("base-socks-port") {
		cfg.BaseSocksPort, _ = flags.GetInt("base-socks-port")
	}
	if flags.Changed("base-control-port") {
		cfg.BaseControlPort, _ = flags.GetInt("base-control-port")
	}
	if flags.Changed("data-dir") {
		cfg.DataDir, _ = flags.GetString("data-dir")
	}
	if flags.Changed("tor-binary") {
		cfg.TorBinary, _ = flags.GetString("tor-binary")
	}
	if noHistory, _ := flags.GetBool("no-history"); noHistory {
		cfg.HistoryDB = ""
	}
	if getVerboseFlag(cmd) {
		cfg.Verbose = true
	}
	return cfg, nil
}

// loadConfig resolves and loads the YAML configuration file.
// An explicitly specified file that does not exist is an error; when no
// file is found through the search order, defaults are used.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath := ""
	if f := cmd.Flags().Lookup("config"); f != nil {
		configPath = f.Value.String()
	}

	found := config.FindConfigFile(configPath)
	if found == "" {
		if configPath != "" {
			return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, configPath)
		}
		return config.Default(), nil
	}

	cfg, err := config.Load(found)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file %s: %w", found, err)
	}
	return cfg, nil
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		return false
	}
	return verbose
}

// runServe wires the pool, history store, proxy, and scheduler together
// and blocks until ctx is cancelled or the proxy fails.
func runServe(ctx context.Context, cfg *config.Config, bus *event.Bus, logger *slog.Logger, cmd *cobra.Command) error {
	managerOpts := []pool.ManagerOption{
		pool.WithBus(bus),
		pool.WithManagerLogger(logger),
		pool.WithResolver(resolver.New(
			resolver.WithTimeout(cfg.ResolveTimeout),
			resolver.WithLogger(logger),
		)),
	}

	var db *history.DB
	if cfg.HistoryDB != "" {
		var err error
		db, err = history.Open(cfg.HistoryDB, history.DefaultOptions())
		if err != nil {
			return fmt.Errorf("open rotation history: %w", err)
		}
		defer func() { _ = db.Close() }()
		managerOpts = append(managerOpts, pool.WithRecorder(db))
	}

	manager := pool.NewManager(cfg, managerOpts...)

	report, err := manager.Start(ctx)
	if err != nil {
		return fmt.Errorf("start circuit pool: %w", err)
	}
	defer manager.Stop()

	fmt.Fprintf(cmd.OutOrStdout(), "pool ready: %d/%d circuits up in %s\n",
		report.ReadyCount, report.PoolSize, report.Elapsed.Round(time.Second))

	server := proxy.New(manager, proxy.WithLogger(logger))
	if err := server.Listen(cfg.ProxyPort); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "proxy listening on %s\n", server.Addr())

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Serve() }()

	if cfg.AutoRotateInterval > 0 {
		sched := pool.NewScheduler(manager, cfg.AutoRotateInterval, logger)
		go sched.Run(ctx)
	}

	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal, draining...")
	case err := <-serveErr:
		if err != nil && !errors.Is(err, proxy.ErrServerClosed) {
			return fmt.Errorf("proxy server: %w", err)
		}
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(drainCtx); err != nil {
		logger.Warn("proxy shutdown incomplete", "error", err)
	}
	return nil
}
