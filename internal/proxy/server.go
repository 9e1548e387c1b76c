package proxy

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	xproxy "golang.org/x/net/proxy"

	"github.com/developermelih/mk-proxy-generator/internal/model"
)

// Defaults matching the original rotator's proxy behavior.
const (
	// DefaultIdleTimeout is the per-direction read deadline on relayed
	// connections.
	DefaultIdleTimeout = 30 * time.Second

	// DefaultDialTimeout bounds the SOCKS connect to the target.
	DefaultDialTimeout = 10 * time.Second

	// rotateTimeout bounds the synchronous rotation behind GET /rotate.
	rotateTimeout = 30 * time.Second

	// relayBufferSize is the copy buffer for each relay direction.
	relayBufferSize = 8 * 1024
)

// PoolController is the slice of the pool manager the proxy needs.
type PoolController interface {
	// ActiveEndpoint returns the active instance's SOCKS endpoint, or
	// false when no instance is active. Never blocks on network I/O.
	ActiveEndpoint() (string, bool)

	// Rotate switches the active instance.
	Rotate(ctx context.Context, trigger model.RotationTrigger) (model.ActiveInfo, error)

	// Snapshot returns the instance table for the /status endpoint.
	Snapshot() []model.InstanceView
}

// DialFunc opens a connection to addr through the SOCKS endpoint at
// socksAddr. Tests substitute a direct dialer.
type DialFunc func(ctx context.Context, socksAddr, network, addr string) (net.Conn, error)

// Server is the forwarding proxy. Create with New, bind with Listen,
// run with Serve, stop with Shutdown.
type Server struct {
	pool        PoolController
	logger      *slog.Logger
	dial        DialFunc
	idleTimeout time.Duration
	dialTimeout time.Duration

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	closed   bool

	handlers sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithDialFunc overrides how upstream connections are opened. Used by
// tests to bypass SOCKS.
func WithDialFunc(dial DialFunc) Option {
	return func(s *Server) { s.dial = dial }
}

// WithIdleTimeout sets the relay idle timeout. Zero disables it.
func WithIdleTimeout(d time.Duration) Option {
	return func(s *Server) { s.idleTimeout = d }
}

// New creates a Server forwarding through pool.
func New(pool PoolController, opts ...Option) *Server {
	s := &Server{
		pool:        pool,
		dial:        socksDial,
		idleTimeout: DefaultIdleTimeout,
		dialTimeout: DefaultDialTimeout,
		conns:       make(map[net.Conn]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Listen binds the loopback listener. Port 0 picks an ephemeral port;
// Addr reports the actual address. The proxy trusts local callers, so it
// never binds a non-loopback address.
func (s *Server) Listen(port int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return fmt.Errorf("bind proxy listener: %w", err)
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("proxy listening", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound listener address, or empty before Listen.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Serve accepts connections until Shutdown. Each connection is handled
// on its own goroutine with no shared mutable state beyond the active
// endpoint lookup.
func (s *Server) Serve() error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return fmt.Errorf("proxy server: Serve called before Listen")
	}

	for {
		conn, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return ErrServerClosed
			}
			return fmt.Errorf("accept: %w", err)
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = conn.Close()
			return ErrServerClosed
		}
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.handlers.Add(1)
		go func() {
			defer s.handlers.Done()
			defer s.forget(conn)
			s.handleConn(conn)
		}()
	}
}

// Shutdown stops accepting new connections and waits for in-flight
// handlers to drain. When ctx expires first, remaining connections are
// force-closed. Safe to call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	ln := s.listener
	s.mu.Unlock()

	if ln != nil {
		_ = ln.Close()
	}

	done := make(chan struct{})
	go func() {
		s.handlers.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("proxy drained")
		return nil
	case <-ctx.Done():
	}

	s.mu.Lock()
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()

	<-done
	s.logger.Warn("proxy force-closed remaining connections")
	return ctx.Err()
}

// forget drops a finished connection from the registry.
func (s *Server) forget(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	_ = conn.Close()
}

// handleConn reads the request line and routes: CONNECT tunnels,
// origin-form GETs hit the control surface, everything else is forwarded
// through the active circuit.
func (s *Server) handleConn(conn net.Conn) {
	if s.idleTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(s.idleTimeout))
	}

	br := bufio.NewReader(conn)
	req, err := http.ReadRequest(br)
	if err != nil {
		return
	}

	if req.Method == http.MethodGet && req.URL.Host == "" {
		s.handleControl(conn, req)
		return
	}

	// The endpoint is captured exactly once per connection; a rotation
	// during the connection's lifetime must not retarget it.
	endpoint, ok := s.pool.ActiveEndpoint()
	if !ok {
		s.logger.Warn("rejecting connection: no active instance", "remote", conn.RemoteAddr().String())
		s.writeError(conn, http.StatusBadGateway, ErrNoActiveInstance.Error())
		return
	}

	if req.Method == http.MethodConnect {
		s.handleTunnel(conn, req, endpoint)
		return
	}
	s.handleForward(conn, br, req, endpoint)
}

// handleTunnel serves CONNECT: open the SOCKS tunnel, confirm to the
// client, then relay raw bytes both ways until either side closes.
func (s *Server) handleTunnel(conn net.Conn, req *http.Request, endpoint string) {
	target := req.URL.Host
	if target == "" {
		target = req.Host
	}

	upstream, err := s.dialUpstream(endpoint, target)
	if err != nil {
		s.logger.Warn("tunnel connect failed",
			"target", target,
			"endpoint", endpoint,
			"error", err,
		)
		s.writeError(conn, http.StatusBadGateway, "upstream connect failed")
		return
	}
	defer func() { _ = upstream.Close() }()

	if _, err := io.WriteString(conn, "HTTP/1.1 200 Connection Established\r\n\r\n"); err != nil {
		return
	}

	s.logger.Debug("tunnel established", "target", target, "endpoint", endpoint)
	s.relay(conn, conn, upstream)
}

// handleForward serves plain HTTP: dial the target through the circuit,
// replay the parsed request, then relay the remainder of the connection
// verbatim so keep-alive requests to the same host keep working.
func (s *Server) handleForward(conn net.Conn, br *bufio.Reader, req *http.Request, endpoint string) {
	target, err := forwardTarget(req)
	if err != nil {
		s.writeError(conn, http.StatusBadRequest, err.Error())
		return
	}

	upstream, err := s.dialUpstream(endpoint, target)
	if err != nil {
		s.logger.Warn("forward connect failed",
			"target", target,
			"endpoint", endpoint,
			"error", err,
		)
		s.writeError(conn, http.StatusBadGateway, "upstream connect failed")
		return
	}
	defer func() { _ = upstream.Close() }()

	if err := req.Write(upstream); err != nil {
		s.writeError(conn, http.StatusBadGateway, "upstream write failed")
		return
	}

	s.logger.Debug("forwarding", "target", target, "endpoint", endpoint)
	s.relay(conn, br, upstream)
}

// forwardTarget extracts host:port from an absolute-form request URL or
// the Host header, defaulting the port from the scheme.
func forwardTarget(req *http.Request) (string, error) {
	host := req.URL.Host
	if host == "" {
		host = req.Host
	}
	if host == "" {
		return "", fmt.Errorf("request has no target host")
	}
	if !strings.Contains(host, ":") {
		port := "80"
		if req.URL.Scheme == "https" {
			port = "443"
		}
		host = net.JoinHostPort(host, port)
	}
	return host, nil
}

// dialUpstream opens the SOCKS connection to the target, bounded by the
// dial timeout.
func (s *Server) dialUpstream(endpoint, target string) (net.Conn, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.dialTimeout)
	defer cancel()
	return s.dial(ctx, endpoint, "tcp", target)
}

// relay copies bytes in both directions until one side closes or goes
// idle. clientR carries any bytes the request parser already buffered.
func (s *Server) relay(client net.Conn, clientR io.Reader, upstream net.Conn) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.copyHalf(upstream, clientR, client)
	}()
	go func() {
		defer wg.Done()
		s.copyHalf(client, upstream, upstream)
	}()
	wg.Wait()
}

// copyHalf streams src into dst, refreshing srcConn's read deadline
// before each read and half-closing dst when src is exhausted.
func (s *Server) copyHalf(dst net.Conn, src io.Reader, srcConn net.Conn) {
	buf := make([]byte, relayBufferSize)
	for {
		if s.idleTimeout > 0 {
			_ = srcConn.SetReadDeadline(time.Now().Add(s.idleTimeout))
		}
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				break
			}
		}
		if err != nil {
			break
		}
	}
	if tc, ok := dst.(*net.TCPConn); ok {
		_ = tc.CloseWrite()
	} else {
		_ = dst.Close()
	}
}

// handleControl serves the in-band control surface for origin-form GET
// requests. These are always handled locally, never forwarded.
func (s *Server) handleControl(conn net.Conn, req *http.Request) {
	switch req.URL.Path {
	case "/rotate":
		s.handleRotate(conn)
	case "/status":
		s.writeJSON(conn, http.StatusOK, s.pool.Snapshot())
	default:
		s.writeError(conn, http.StatusNotFound, "unknown control path")
	}
}

// handleRotate invokes a synchronous rotation and reports the outcome:
// 200 with the new active identity, or 503 when rotation fails.
func (s *Server) handleRotate(conn net.Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), rotateTimeout)
	defer cancel()

	info, err := s.pool.Rotate(ctx, model.TriggerManual)
	if err != nil {
		s.logger.Warn("rotation via control endpoint failed", "error", err)
		s.writeJSON(conn, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}

	s.logger.Info("rotation via control endpoint",
		"active_id", info.ID,
		"ip", info.IP,
		"country", info.Country,
	)
	s.writeJSON(conn, http.StatusOK, info)
}

// writeJSON writes a minimal HTTP/1.1 response with a JSON body.
func (s *Server) writeJSON(conn net.Conn, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		s.writeError(conn, http.StatusInternalServerError, "encode response")
		return
	}
	fmt.Fprintf(conn, "HTTP/1.1 %d %s\r\nContent-Type: application/json\r\nContent-Length: %d\r\nConnection: close\r\n\r\n",
		status, http.StatusText(status), len(body))
	_, _ = conn.Write(body)
}

// writeError writes a minimal plain-text error response.
func (s *Server) writeError(conn net.Conn, status int, msg string) {
	fmt.Fprintf(conn, "HTTP/1.1 %d %s\r\nContent-Type: text/plain\r\nContent-Length: %d\r\nConnection: close\r\n\r\n%s",
		status, http.StatusText(status), len(msg), msg)
}

// socksDial is the default DialFunc: a SOCKS5 CONNECT through the
// active instance's endpoint.
func socksDial(ctx context.Context, socksAddr, network, addr string) (net.Conn, error) {
	dialer, err := xproxy.SOCKS5("tcp", socksAddr, nil, xproxy.Direct)
	if err != nil {
		return nil, err
	}
	if cd, ok := dialer.(xproxy.ContextDialer); ok {
		return cd.DialContext(ctx, network, addr)
	}
	return dialer.Dial(network, addr)
}
