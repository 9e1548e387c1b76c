package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/proxy"
)

// Default lookup services. Both are plain JSON endpoints with no
// authentication, the same services the original rotator used.
const (
	// DefaultIPLookupURL returns {"ip":"<exit ip>"}.
	DefaultIPLookupURL = "https://api.ipify.org?format=json"

	// DefaultCountryLookupURL is a format string taking the IP and
	// returning {"countryCode":"<ISO code>"}.
	DefaultCountryLookupURL = "http://ip-api.com/json/%s?fields=countryCode"

	// DefaultTimeout bounds a full Resolve call (both lookups).
	DefaultTimeout = 10 * time.Second

	// maxLookupBody caps response bodies read from the lookup services.
	// Both services return tiny JSON objects; anything larger is a
	// misbehaving endpoint.
	maxLookupBody = 64 * 1024
)

// Identity is the resolved exit identity of a circuit.
type Identity struct {
	// IP is the apparent public IP of traffic leaving the circuit.
	IP string

	// CountryCode is the ISO 3166-1 alpha-2 code for IP.
	CountryCode string
}

// DialFunc opens a connection to addr through the SOCKS endpoint at
// socksAddr. Tests substitute a direct dialer.
type DialFunc func(ctx context.Context, socksAddr, network, addr string) (net.Conn, error)

// Resolver performs identity lookups through SOCKS endpoints.
type Resolver struct {
	// timeout bounds a full Resolve call.
	timeout time.Duration

	// ipURL is the public-IP lookup endpoint.
	ipURL string

	// countryURL is the country lookup endpoint format string.
	countryURL string

	// dial opens connections through a SOCKS endpoint.
	dial DialFunc

	// logger receives debug-level lookup traces.
	logger *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithTimeout sets the bound on a full Resolve call.
func WithTimeout(timeout time.Duration) Option {
	return func(r *Resolver) {
		if timeout > 0 {
			r.timeout = timeout
		}
	}
}

// WithIPLookupURL overrides the public-IP lookup endpoint.
func WithIPLookupURL(url string) Option {
	return func(r *Resolver) {
		r.ipURL = url
	}
}

// WithCountryLookupURL overrides the country lookup endpoint. The value
// is a format string receiving the resolved IP.
func WithCountryLookupURL(format string) Option {
	return func(r *Resolver) {
		r.countryURL = format
	}
}

// WithDialFunc overrides how connections are opened. Used by tests to
// bypass SOCKS and dial directly.
func WithDialFunc(dial DialFunc) Option {
	return func(r *Resolver) {
		r.dial = dial
	}
}

// WithLogger sets the logger for lookup traces.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// New creates a Resolver with the given options applied over the
// defaults.
func New(opts ...Option) *Resolver {
	r := &Resolver{
		timeout:    DefaultTimeout,
		ipURL:      DefaultIPLookupURL,
		countryURL: DefaultCountryLookupURL,
		dial:       socksDial,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Resolve learns the exit identity behind socksAddr. It issues the
// public-IP lookup through the endpoint, then the country lookup for the
// resolved IP through the same endpoint. Both calls share one timeout
// and there are no retries.
func (r *Resolver) Resolve(ctx context.Context, socksAddr string) (Identity, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	client := r.httpClient(socksAddr)
	defer client.CloseIdleConnections()

	start := time.Now()

	ip, err := r.lookupIP(ctx, client)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrIPLookup, err)
	}

	code, err := r.lookupCountry(ctx, client, ip)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: ip %s: %w", ErrCountryLookup, ip, err)
	}

	r.logger.Debug("resolved exit identity",
		"socks_addr", socksAddr,
		"ip", ip,
		"country", code,
		"elapsed", time.Since(start),
	)

	return Identity{IP: ip, CountryCode: code}, nil
}

// httpClient builds an HTTP client whose connections go through the
// SOCKS endpoint. Keep-alives are disabled so no connection outlives the
// resolution; circuits rotate underneath us and a pooled connection
// would pin the old circuit.
func (r *Resolver) httpClient(socksAddr string) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				return r.dial(ctx, socksAddr, network, addr)
			},
			DisableKeepAlives: true,
		},
		CheckRedirect: func(*http.Request, []*http.Request) error {
			// The lookup services never redirect; following one would
			// mean something on the path is tampering.
			return http.ErrUseLastResponse
		},
	}
}

// lookupIP fetches the public IP as seen by the lookup service.
func (r *Resolver) lookupIP(ctx context.Context, client *http.Client) (string, error) {
	var body struct {
		IP string `json:"ip"`
	}
	if err := r.getJSON(ctx, client, r.ipURL, &body); err != nil {
		return "", err
	}

	ip := strings.TrimSpace(body.IP)
	if ip == "" {
		return "", fmt.Errorf("empty ip in response")
	}
	return ip, nil
}

// lookupCountry fetches the country code for the given IP.
func (r *Resolver) lookupCountry(ctx context.Context, client *http.Client, ip string) (string, error) {
	var body struct {
		CountryCode string `json:"countryCode"`
	}
	if err := r.getJSON(ctx, client, fmt.Sprintf(r.countryURL, ip), &body); err != nil {
		return "", err
	}

	code := strings.TrimSpace(body.CountryCode)
	if code == "" {
		return "", fmt.Errorf("empty country code in response")
	}
	return code, nil
}

// getJSON performs a GET and decodes the JSON response into out.
func (r *Resolver) getJSON(ctx context.Context, client *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxLookupBody))
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// socksDial is the default DialFunc: a SOCKS5 CONNECT through socksAddr.
func socksDial(ctx context.Context, socksAddr, network, addr string) (net.Conn, error) {
	dialer, err := proxy.SOCKS5("tcp", socksAddr, nil, proxy.Direct)
	if err != nil {
		return nil, err
	}
	if cd, ok := dialer.(proxy.ContextDialer); ok {
		return cd.DialContext(ctx, network, addr)
	}
	return dialer.Dial(network, addr)
}
