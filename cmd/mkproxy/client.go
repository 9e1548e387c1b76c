package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/developermelih/mk-proxy-generator/internal/config"
)

// controlTimeout bounds one request against the running proxy. Rotation
// can take several seconds when the vacated circuit is slow to renew,
// so this is generous.
const controlTimeout = 45 * time.Second

// addControlFlags registers the flags shared by subcommands that talk
// to a running proxy.
func addControlFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("addr", "a", "",
		"Address of the running proxy (default: 127.0.0.1:<proxy_port> from config)")
}

// controlAddr resolves the proxy address from the --addr flag, falling
// back to the configured proxy port on loopback.
func controlAddr(cmd *cobra.Command) (string, error) {
	addr, err := cmd.Flags().GetString("addr")
	if err != nil {
		return "", err
	}
	if addr != "" {
		return addr, nil
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("127.0.0.1:%d", cfg.ProxyPort), nil
}

// controlGet performs one GET against the proxy's control surface and
// decodes the JSON response into out. Non-2xx responses are returned as
// errors carrying the proxy's error body.
func controlGet(ctx context.Context, addr, path string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, controlTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+path, nil)
	if err != nil {
		return err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("proxy not reachable at %s (is `%s serve` running?): %w",
			addr, config.AppName, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read proxy response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var proxyErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &proxyErr) == nil && proxyErr.Error != "" {
			return fmt.Errorf("proxy returned %s: %s", resp.Status, proxyErr.Error)
		}
		return fmt.Errorf("proxy returned %s", resp.Status)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode proxy response: %w", err)
	}
	return nil
}
