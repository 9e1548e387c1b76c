package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/developermelih/mk-proxy-generator/internal/config"
)

// TestNewServeCmd tests the serve command creation.
func TestNewServeCmd(t *testing.T) {
	t.Parallel()

	cmd := NewServeCmd()

	t.Run("has correct use", func(t *testing.T) {
		t.Parallel()
		if cmd.Use != "serve" {
			t.Errorf("expected use 'serve', got %q", cmd.Use)
		}
	})

	t.Run("has pool-size flag", func(t *testing.T) {
		t.Parallel()
		flag := cmd.Flags().Lookup("pool-size")
		if flag == nil {
			t.Fatal("expected pool-size flag")
		}
		if flag.Shorthand != "n" {
			t.Errorf("expected shorthand 'n', got %q", flag.Shorthand)
		}
		if flag.DefValue != "5" {
			t.Errorf("expected default '5', got %q", flag.DefValue)
		}
	})

	t.Run("has proxy-port flag", func(t *testing.T) {
		t.Parallel()
		flag := cmd.Flags().Lookup("proxy-port")
		if flag == nil {
			t.Fatal("expected proxy-port flag")
		}
		if flag.DefValue != "8080" {
			t.Errorf("expected default '8080', got %q", flag.DefValue)
		}
	})

	t.Run("has auto-rotate flag", func(t *testing.T) {
		t.Parallel()
		if cmd.Flags().Lookup("auto-rotate") == nil {
			t.Error("expected auto-rotate flag")
		}
	})

	t.Run("has no-history flag", func(t *testing.T) {
		t.Parallel()
		if cmd.Flags().Lookup("no-history") == nil {
			t.Error("expected no-history flag")
		}
	})
}

// TestBuildServeConfig tests flag and config file precedence.
func TestBuildServeConfig(t *testing.T) {
	t.Parallel()

	// writeConfig creates a config file and returns its path.
	writeConfig := func(t *testing.T, content string) string {
		t.Helper()
		path := filepath.Join(t.TempDir(), "mkproxy.yaml")
		if err := os.WriteFile(path, []byte(content), 0600); err != nil {
			t.Fatal(err)
		}
		return path
	}

	// newServeForTest builds a serve command carrying the config flag
	// that is normally inherited from the root command.
	newServeForTest := func(t *testing.T, args ...string) *cobra.Command {
		t.Helper()
		cmd := NewServeCmd()
		cmd.Flags().StringP("config", "c", "", "")
		cmd.Flags().BoolP("verbose", "v", false, "")
		if err := cmd.ParseFlags(args); err != nil {
			t.Fatalf("ParseFlags() error = %v", err)
		}
		return cmd
	}

	t.Run("defaults when no file and no flags", func(t *testing.T) {
		t.Parallel()

		cfg, err := buildServeConfig(newServeForTest(t, "-c", writeConfig(t, "")))
		if err != nil {
			t.Fatalf("buildServeConfig() error = %v", err)
		}
		if cfg.PoolSize != config.DefaultPoolSize {
			t.Errorf("PoolSize = %d, want default %d", cfg.PoolSize, config.DefaultPoolSize)
		}
		if cfg.ProxyPort != config.DefaultProxyPort {
			t.Errorf("ProxyPort = %d, want default %d", cfg.ProxyPort, config.DefaultProxyPort)
		}
	})

	t.Run("config file values apply", func(t *testing.T) {
		t.Parallel()

		path := writeConfig(t, "pool_size: 3\nproxy_port: 3128\nauto_rotate_interval: 5m\n")
		cfg, err := buildServeConfig(newServeForTest(t, "-c", path))
		if err != nil {
			t.Fatalf("buildServeConfig() error = %v", err)
		}
		if cfg.PoolSize != 3 || cfg.ProxyPort != 3128 {
			t.Errorf("config file not applied: %+v", cfg)
		}
		if cfg.AutoRotateInterval != 5*time.Minute {
			t.Errorf("AutoRotateInterval = %s, want 5m", cfg.AutoRotateInterval)
		}
	})

	t.Run("flags override the config file", func(t *testing.T) {
		t.Parallel()

		path := writeConfig(t, "pool_size: 3\nproxy_port: 3128\n")
		cfg, err := buildServeConfig(newServeForTest(t, "-c", path, "--pool-size", "7"))
		if err != nil {
			t.Fatalf("buildServeConfig() error = %v", err)
		}
		if cfg.PoolSize != 7 {
			t.Errorf("PoolSize = %d, want flag override 7", cfg.PoolSize)
		}
		if cfg.ProxyPort != 3128 {
			t.Errorf("ProxyPort = %d, want file value 3128", cfg.ProxyPort)
		}
	})

	t.Run("no-history clears the history directory", func(t *testing.T) {
		t.Parallel()

		cfg, err := buildServeConfig(newServeForTest(t, "-c", writeConfig(t, ""), "--no-history"))
		if err != nil {
			t.Fatalf("buildServeConfig() error = %v", err)
		}
		if cfg.HistoryDB != "" {
			t.Errorf("HistoryDB = %q, want empty", cfg.HistoryDB)
		}
	})

	t.Run("explicit missing config file is an error", func(t *testing.T) {
		t.Parallel()

		_, err := buildServeConfig(newServeForTest(t, "-c", filepath.Join(t.TempDir(), "absent.yaml")))
		if err == nil {
			t.Error("expected error for missing explicit config file")
		}
	})
}
