package pool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/developermelih/mk-proxy-generator/internal/config"
	"github.com/developermelih/mk-proxy-generator/internal/event"
	"github.com/developermelih/mk-proxy-generator/internal/model"
	"github.com/developermelih/mk-proxy-generator/internal/resolver"
)

// controlSessionTimeout bounds opening and authenticating a control
// session to a freshly launched daemon.
const controlSessionTimeout = 15 * time.Second

// IdentityResolver validates a circuit and reports its exit identity.
// *resolver.Resolver satisfies it.
type IdentityResolver interface {
	Resolve(ctx context.Context, socksAddr string) (resolver.Identity, error)
}

// HistoryRecorder persists completed rotations. *history.DB satisfies it.
type HistoryRecorder interface {
	Record(ctx context.Context, rec model.RotationRecord) error
}

// ReadyReport summarizes a completed Start.
type ReadyReport struct {
	// PoolSize is the configured number of instances.
	PoolSize int

	// ReadyCount is how many instances reached Ready.
	ReadyCount int

	// ErrorCount is how many instances ended startup in Error.
	ErrorCount int

	// ActiveID is the initially active instance.
	ActiveID int

	// Elapsed is the wall time Start took.
	Elapsed time.Duration
}

// Manager owns the circuit pool. All exported methods are safe for
// concurrent use from any goroutine (UI, scheduler, proxy control
// endpoint).
type Manager struct {
	cfg      *config.Config
	launcher Launcher
	resolver IdentityResolver
	recorder HistoryRecorder
	bus      *event.Bus
	logger   *slog.Logger

	// pollInterval is the delay between readiness probes while an
	// instance is Connecting.
	pollInterval time.Duration

	// rotateMu serializes Rotate calls. Manual clicks and timer ticks
	// funnel through the same exclusion so rotations never interleave.
	rotateMu sync.Mutex

	// mu guards everything below. It is never held across network I/O,
	// so ActiveEndpoint and Snapshot stay non-blocking.
	mu         sync.Mutex
	instances  []*instance
	active     int
	started    bool
	generation uint64

	// prewarms tracks background pre-warm goroutines for Stop.
	prewarms sync.WaitGroup
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLauncher overrides the Tor daemon launcher. Used by tests.
func WithLauncher(l Launcher) ManagerOption {
	return func(m *Manager) { m.launcher = l }
}

// WithResolver overrides the identity resolver.
func WithResolver(r IdentityResolver) ManagerOption {
	return func(m *Manager) { m.resolver = r }
}

// WithRecorder sets the rotation-history recorder. Nil disables
// recording.
func WithRecorder(r HistoryRecorder) ManagerOption {
	return func(m *Manager) { m.recorder = r }
}

// WithBus sets the event bus for status-changed notifications.
func WithBus(b *event.Bus) ManagerOption {
	return func(m *Manager) { m.bus = b }
}

// WithManagerLogger sets the manager's logger.
func WithManagerLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = logger }
}

// WithPollInterval sets the readiness-probe interval. Used by tests to
// keep polling fast.
func WithPollInterval(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.pollInterval = d
		}
	}
}

// NewManager creates a Manager for the given configuration. The pool is
// created empty; call Start to launch instances.
func NewManager(cfg *config.Config, opts ...ManagerOption) *Manager {
	m := &Manager{
		cfg:          cfg,
		launcher:     TornagoLauncher{},
		active:       -1,
		pollInterval: time.Second,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.resolver == nil {
		m.resolver = resolver.New(resolver.WithTimeout(cfg.ResolveTimeout))
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	return m
}

// Start creates poolSize instances and launches their Tor processes
// concurrently, one worker per instance. It returns once every instance
// has reached Ready or Error. At least one Ready instance makes the pool
// usable; the lowest-id Ready instance becomes active. Start fails only
// when zero instances become Ready.
func (m *Manager) Start(ctx context.Context) (*ReadyReport, error) {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return nil, ErrPoolAlreadyStarted
	}
	m.started = true
	m.active = -1
	gen := m.generation
	m.instances = make([]*instance, m.cfg.PoolSize)
	for i := range m.instances {
		inst := &instance{
			id:          i,
			socksPort:   m.cfg.SocksPortFor(i),
			controlPort: m.cfg.ControlPortFor(i),
			dataDir:     m.cfg.InstanceDataDir(i),
			busy:        true,
		}
		inst.setStatus(model.StatusConnecting)
		m.instances[i] = inst
	}
	instances := m.instances
	views := m.viewsLocked()
	m.mu.Unlock()

	for _, v := range views {
		m.publish(v)
	}

	m.logger.Info("starting circuit pool", "pool_size", m.cfg.PoolSize)
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	for _, inst := range instances {
		g.Go(func() error {
			m.startInstance(gctx, gen, inst)
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // workers report failure via instance status

	m.mu.Lock()
	report := &ReadyReport{PoolSize: m.cfg.PoolSize, Elapsed: time.Since(start)}
	for _, inst := range m.instances {
		switch inst.status {
		case model.StatusReady:
			report.ReadyCount++
			if m.active == -1 {
				m.active = inst.id
			}
		case model.StatusError:
			report.ErrorCount++
		}
	}
	report.ActiveID = m.active
	usable := m.active != -1
	m.mu.Unlock()

	if !usable {
		m.logger.Error("circuit pool start failed", "pool_size", m.cfg.PoolSize)
		m.Stop()
		return nil, fmt.Errorf("%w: %d instances attempted", ErrAllInstancesFailed, m.cfg.PoolSize)
	}

	m.logger.Info("circuit pool started",
		"ready", report.ReadyCount,
		"failed", report.ErrorCount,
		"active_id", report.ActiveID,
		"elapsed", report.Elapsed,
	)
	return report, nil
}

// startInstance launches one instance's daemon, opens its control
// session, and probes readiness until the circuit resolves or the
// startup deadline passes.
func (m *Manager) startInstance(ctx context.Context, gen uint64, inst *instance) {
	logger := m.logger.With("instance_id", inst.id)

	spec := LaunchSpec{
		SocksPort:      inst.socksPort,
		ControlPort:    inst.controlPort,
		DataDir:        inst.dataDir,
		TorBinary:      m.cfg.TorBinary,
		StartupTimeout: m.cfg.StartupTimeout,
		LogReporter: func(line string) {
			logger.Debug("tor", "line", line)
		},
	}

	proc, err := m.launcher.Launch(spec)
	if err != nil {
		logger.Error("tor process failed to launch", "phase", "launch", "error", err)
		m.applyStartup(gen, inst, nil, nil, resolver.Identity{}, err)
		return
	}

	ctrl, err := m.launcher.Control(proc.ControlAddr(), controlSessionTimeout)
	if err != nil {
		logger.Error("control session failed", "phase", "control", "error", err)
		_ = proc.Stop()
		m.applyStartup(gen, inst, nil, nil, resolver.Identity{}, err)
		return
	}

	deadline := time.Now().Add(m.cfg.StartupTimeout)
	identity, err := m.waitReady(ctx, proc.SocksAddr(), deadline)
	if err != nil {
		logger.Error("circuit did not become ready", "phase", "resolve", "error", err)
		// The process stays up: a later rotation targeting this
		// instance retries through the normal renewal path.
		m.applyStartup(gen, inst, proc, ctrl, resolver.Identity{}, err)
		return
	}

	logger.Info("instance ready",
		"socks_port", inst.socksPort,
		"ip", identity.IP,
		"country", identity.CountryCode,
	)
	m.applyStartup(gen, inst, proc, ctrl, identity, nil)
}

// applyStartup records a startup worker's outcome unless the pool was
// stopped while the worker was in flight.
func (m *Manager) applyStartup(gen uint64, inst *instance, proc Process, ctrl Controller, identity resolver.Identity, opErr error) {
	m.mu.Lock()
	if m.generation != gen {
		// Pool stopped underneath us; release whatever the worker
		// acquired instead of applying to a torn-down slot.
		m.mu.Unlock()
		if ctrl != nil {
			_ = ctrl.Close()
		}
		if proc != nil {
			_ = proc.Stop()
		}
		return
	}

	inst.process = proc
	inst.control = ctrl
	inst.busy = false
	if opErr != nil {
		inst.setStatus(model.StatusError)
	} else {
		inst.setIdentity(identity)
		inst.setStatus(model.StatusReady)
	}
	view := inst.view(m.active == inst.id)
	m.mu.Unlock()

	m.publish(view)
}

// waitReady probes the circuit through its SOCKS endpoint until it
// resolves, the deadline passes, or ctx is cancelled. Each probe is
// bounded by the resolver's own timeout.
func (m *Manager) waitReady(ctx context.Context, socksAddr string, deadline time.Time) (resolver.Identity, error) {
	var lastErr error
	for {
		identity, err := m.resolver.Resolve(ctx, socksAddr)
		if err == nil {
			return identity, nil
		}
		lastErr = err

		if time.Now().After(deadline) {
			return resolver.Identity{}, lastErr
		}
		select {
		case <-ctx.Done():
			return resolver.Identity{}, ctx.Err()
		case <-time.After(m.pollInterval):
		}
	}
}

// Stop terminates every instance's process, waits for exit up to the
// grace period per instance, and clears the pool. Calling Stop on a
// stopped pool is a no-op.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.started = false
	m.generation++
	instances := m.instances
	m.instances = nil
	m.active = -1

	views := make([]model.InstanceView, 0, len(instances))
	for _, inst := range instances {
		inst.setStatus(model.StatusStopped)
		views = append(views, inst.view(false))
	}
	m.mu.Unlock()

	for _, v := range views {
		m.publish(v)
	}

	m.logger.Info("stopping circuit pool", "instances", len(instances))

	var wg sync.WaitGroup
	for _, inst := range instances {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.stopInstance(inst)
		}()
	}
	wg.Wait()

	// Pre-warm goroutines discard their results via the generation
	// bump; waiting here just keeps shutdown observable.
	m.prewarms.Wait()

	m.logger.Info("circuit pool stopped")
}

// stopInstance closes the control session and terminates the process,
// bounding the wait by the configured grace period. tornago escalates to
// a kill on its own; the watchdog only caps how long Stop blocks.
func (m *Manager) stopInstance(inst *instance) {
	if inst.control != nil {
		_ = inst.control.Close()
	}
	if inst.process == nil {
		return
	}

	done := make(chan error, 1)
	go func() { done <- inst.process.Stop() }()

	grace := m.cfg.StopGracePeriod
	if grace <= 0 {
		grace = config.DefaultStopGracePeriod
	}
	select {
	case err := <-done:
		if err != nil {
			m.logger.Warn("tor process stop reported error", "instance_id", inst.id, "error", err)
		}
	case <-time.After(grace):
		m.logger.Warn("tor process did not exit within grace period", "instance_id", inst.id)
	}
}

// Rotate switches the active instance. With a single-instance pool it
// renews the instance in place; otherwise it swaps the active pointer to
// the next Ready instance in id order and pre-warms the vacated instance
// in the background. The trigger is recorded in rotation history.
func (m *Manager) Rotate(ctx context.Context, trigger model.RotationTrigger) (model.ActiveInfo, error) {
	m.rotateMu.Lock()
	defer m.rotateMu.Unlock()

	m.mu.Lock()
	if !m.started || m.active == -1 {
		m.mu.Unlock()
		return model.ActiveInfo{}, ErrPoolNotStarted
	}
	if len(m.instances) == 1 {
		return m.renewSingleLocked(ctx, trigger)
	}
	return m.rotateMultiLocked(trigger)
}

// renewSingleLocked performs the pool-size-1 renewal: signal a new
// identity, re-resolve synchronously, and keep the single instance
// active regardless of outcome. Called with m.mu held; releases it.
func (m *Manager) renewSingleLocked(ctx context.Context, trigger model.RotationTrigger) (model.ActiveInfo, error) {
	inst := m.instances[0]
	if inst.busy {
		m.mu.Unlock()
		return model.ActiveInfo{}, fmt.Errorf("%w: instance %d", ErrInstanceBusy, inst.id)
	}
	inst.busy = true
	oldIP := inst.currentIP
	gen := m.generation
	inst.setStatus(model.StatusConnecting)
	view := inst.view(true)
	m.mu.Unlock()

	m.publish(view)
	m.logger.Info("renewing single instance", "instance_id", inst.id, "old_ip", oldIP)

	identity, err := m.renew(ctx, inst)

	m.mu.Lock()
	if m.generation != gen {
		m.mu.Unlock()
		return model.ActiveInfo{}, ErrPoolNotStarted
	}
	inst.busy = false
	if err != nil {
		// Keep the stale identity cached; the active pointer has
		// nowhere else to go.
		inst.setStatus(model.StatusError)
		view = inst.view(true)
		m.mu.Unlock()

		m.publish(view)
		m.logger.Error("renewal failed", "instance_id", inst.id, "phase", "renew", "error", err)
		return model.ActiveInfo{}, fmt.Errorf("%w: %w", ErrRenewalFailed, err)
	}

	inst.setIdentity(identity)
	inst.setStatus(model.StatusReady)
	info := model.ActiveInfo{ID: inst.id, IP: identity.IP, Country: identity.CountryCode}
	view = inst.view(true)
	m.mu.Unlock()

	m.publish(view)
	m.logger.Info("identity renewed", "instance_id", inst.id, "old_ip", oldIP, "new_ip", identity.IP)
	m.record(model.RotationRecord{
		InstanceID: inst.id,
		OldIP:      oldIP,
		NewIP:      identity.IP,
		Country:    identity.CountryCode,
		Trigger:    trigger,
		RotatedAt:  time.Now(),
	})
	return info, nil
}

// rotateMultiLocked swaps the active pointer to the next Ready instance
// after the current one in wrapping id order, then pre-warms the vacated
// instance in the background. Called with m.mu held; releases it.
func (m *Manager) rotateMultiLocked(trigger model.RotationTrigger) (model.ActiveInfo, error) {
	n := len(m.instances)
	candidate := -1
	for off := 1; off < n; off++ {
		idx := (m.active + off) % n
		inst := m.instances[idx]
		if inst.status == model.StatusReady && !inst.busy {
			candidate = idx
			break
		}
	}
	if candidate == -1 {
		m.mu.Unlock()
		m.logger.Warn("rotation failed: no other ready instance")
		return model.ActiveInfo{}, ErrNoReadyInstance
	}

	prev := m.instances[m.active]
	next := m.instances[candidate]
	m.active = candidate

	prev.busy = true
	oldIP := prev.currentIP
	prev.setStatus(model.StatusConnecting)
	gen := m.generation

	info := model.ActiveInfo{ID: next.id, IP: next.currentIP, Country: next.countryCode}
	prevView := prev.view(false)
	nextView := next.view(true)
	m.mu.Unlock()

	m.publish(prevView)
	m.publish(nextView)
	m.logger.Info("rotated active instance",
		"from_id", prev.id,
		"to_id", next.id,
		"new_ip", info.IP,
		"country", info.Country,
	)

	m.prewarms.Add(1)
	go m.prewarm(gen, prev)

	m.record(model.RotationRecord{
		InstanceID: next.id,
		OldIP:      oldIP,
		NewIP:      info.IP,
		Country:    info.Country,
		Trigger:    trigger,
		RotatedAt:  time.Now(),
	})
	return info, nil
}

// prewarm renews the vacated instance so it is Ready before a later
// rotation cycles back to it. Its outcome never blocks the Rotate call
// that spawned it; a result arriving after Stop is discarded.
func (m *Manager) prewarm(gen uint64, inst *instance) {
	defer m.prewarms.Done()

	identity, err := m.renew(context.Background(), inst)

	m.mu.Lock()
	if m.generation != gen {
		m.mu.Unlock()
		return
	}
	inst.busy = false
	if err != nil {
		inst.setStatus(model.StatusError)
	} else {
		inst.setIdentity(identity)
		inst.setStatus(model.StatusReady)
	}
	view := inst.view(m.active == inst.id)
	m.mu.Unlock()

	m.publish(view)
	if err != nil {
		m.logger.Error("pre-warm failed", "instance_id", inst.id, "phase", "prewarm", "error", err)
		return
	}
	m.logger.Info("pre-warm complete", "instance_id", inst.id, "new_ip", identity.IP)
}

// renew signals a fresh identity and waits for the circuit to resolve
// again, bounded by the resolve timeout.
func (m *Manager) renew(ctx context.Context, inst *instance) (resolver.Identity, error) {
	if inst.control == nil {
		return resolver.Identity{}, fmt.Errorf("instance %d has no control session", inst.id)
	}

	ctx, cancel := context.WithTimeout(ctx, m.cfg.ResolveTimeout)
	defer cancel()

	if err := inst.control.NewIdentity(ctx); err != nil {
		return resolver.Identity{}, fmt.Errorf("new identity signal: %w", err)
	}
	return m.waitReady(ctx, inst.socksAddr(), time.Now().Add(m.cfg.ResolveTimeout))
}

// ActiveEndpoint returns the SOCKS endpoint of the active instance. The
// second return is false when no instance is active. It never performs
// network I/O; the proxy calls it on every accepted connection.
func (m *Manager) ActiveEndpoint() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started || m.active == -1 {
		return "", false
	}
	return m.instances[m.active].socksAddr(), true
}

// Snapshot returns a point-in-time view of every instance in id order,
// built from cached fields only.
func (m *Manager) Snapshot() []model.InstanceView {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.viewsLocked()
}

// viewsLocked builds views for all instances. Caller holds m.mu.
func (m *Manager) viewsLocked() []model.InstanceView {
	views := make([]model.InstanceView, len(m.instances))
	for i, inst := range m.instances {
		views[i] = inst.view(m.active == inst.id)
	}
	return views
}

// publish sends a status-changed event if a bus is attached. Never
// called with m.mu held: subscribers may call back into the manager.
func (m *Manager) publish(view model.InstanceView) {
	if m.bus != nil {
		m.bus.StatusChanged(view)
	}
}

// record persists a rotation if a recorder is attached.
func (m *Manager) record(rec model.RotationRecord) {
	if m.recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.recorder.Record(ctx, rec); err != nil {
		m.logger.Warn("failed to record rotation", "error", err)
	}
}
