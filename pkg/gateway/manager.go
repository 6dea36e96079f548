package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"mercator-hq/apiflow/pkg/config"
	"mercator-hq/apiflow/pkg/logstore"
	"mercator-hq/apiflow/pkg/proxy"
	"mercator-hq/apiflow/pkg/proxy/handlers"
	"mercator-hq/apiflow/pkg/proxy/middleware"
	"mercator-hq/apiflow/pkg/routing"
	"mercator-hq/apiflow/pkg/server"
	"mercator-hq/apiflow/pkg/telemetry/logging"
	"mercator-hq/apiflow/pkg/telemetry/metrics"
	"mercator-hq/apiflow/pkg/telemetry/tracing"
)

// Persister saves accepted routing settings. settings.Store implements it.
type Persister interface {
	Save(cfg *config.ProxyConfig) error
}

// Option configures a Manager.
type Option func(*Manager)

// WithPersister saves the configuration of every successful start and
// reload. Save failures are logged and do not fail the operation.
func WithPersister(p Persister) Option {
	return func(m *Manager) { m.persister = p }
}

// WithMetrics exports request, upstream and reload metrics.
func WithMetrics(c *metrics.Collector) Option {
	return func(m *Manager) { m.metrics = c }
}

// WithTracer traces gateway requests and upstream attempts.
func WithTracer(t *tracing.Tracer) Option {
	return func(m *Manager) { m.tracer = t }
}

// WithLogStore uses store instead of a store sized from the configuration.
func WithLogStore(store *logstore.Store) Option {
	return func(m *Manager) { m.store = store }
}

// Manager owns the gateway lifecycle: the listener, the published routing
// snapshot, the request log and the upstream statistics. Lifecycle
// operations are serialized; reads of the snapshot are lock free.
type Manager struct {
	cfg *config.Config

	persister Persister
	metrics   *metrics.Collector
	tracer    *tracing.Tracer
	logger    *slog.Logger

	store   *logstore.Store
	stats   *routing.AtomicUpstreamStats
	handler http.Handler

	snap    atomic.Pointer[routing.Snapshot]
	version atomic.Uint64

	// op serializes Start, Reload and Stop.
	op sync.Mutex

	mu         sync.RWMutex
	state      State
	srv        *server.Server
	startedAt  time.Time
	reloadedAt time.Time
	lastErr    string

	subMu  sync.Mutex
	subs   map[int]chan Status
	nextID int
}

// New creates a stopped manager for the given application configuration.
func New(cfg *config.Config, opts ...Option) *Manager {
	m := &Manager{
		cfg:    cfg,
		stats:  routing.NewAtomicUpstreamStats(),
		logger: slog.Default().With("component", "gateway"),
		subs:   make(map[int]chan Status),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.store == nil {
		m.store = logstore.New(cfg.Logs.Capacity)
	}

	var mask func(name, value string) string
	if cfg.Logs.RedactSecrets {
		mask = logging.MaskHeader
	}

	fwdOpts := []proxy.Option{proxy.WithHeaderMask(mask)}
	handlerOpts := []handlers.GatewayOption{
		handlers.WithMaxBodySize(cfg.Gateway.MaxRequestBody),
		handlers.WithRequestCapture(cfg.Forwarder.Capture.RequestBodyBytes),
		handlers.WithHeaderMask(mask),
	}
	if m.metrics != nil {
		fwdOpts = append(fwdOpts,
			proxy.WithStats(proxy.TeeStats(m.stats, m.metrics)),
			proxy.WithObserver(m.metrics),
		)
		handlerOpts = append(handlerOpts, handlers.WithObserver(m.metrics))
		m.store.OnFinish(m.metrics.ObserveEntry)
		m.store.OnActiveChange(m.metrics.SetActive)
	} else {
		fwdOpts = append(fwdOpts, proxy.WithStats(m.stats))
	}
	if m.tracer != nil {
		fwdOpts = append(fwdOpts, proxy.WithTracer(m.tracer))
		handlerOpts = append(handlerOpts, handlers.WithTracer(m.tracer))
	}

	fwd := proxy.NewForwarder(cfg.Forwarder, fwdOpts...)
	m.handler = middleware.Chain(handlers.NewGatewayHandler(m, m.store, fwd, handlerOpts...))
	m.store.OnActiveChange(func(int) { m.notify() })

	return m
}

// Current returns the published snapshot, nil when stopped.
func (m *Manager) Current() *routing.Snapshot {
	return m.snap.Load()
}

// Logs returns the request log.
func (m *Manager) Logs() *logstore.Store {
	return m.store
}

// Stats returns the upstream statistics. They persist across restarts.
func (m *Manager) Stats() *routing.AtomicUpstreamStats {
	return m.stats
}

// Handler returns the gateway handler including its middleware.
func (m *Manager) Handler() http.Handler {
	return m.handler
}

// Start validates cfg, publishes its snapshot and binds the gateway port.
// Validation failures are config.ValidationError; a port that cannot be
// bound is a *BindError. The request log is reset on success.
func (m *Manager) Start(ctx context.Context, cfg *config.ProxyConfig) error {
	m.op.Lock()
	defer m.op.Unlock()
	return m.start(ctx, cfg)
}

func (m *Manager) start(_ context.Context, cfg *config.ProxyConfig) error {
	if m.State() != Stopped {
		return ErrAlreadyRunning
	}
	m.setState(Starting)

	snap, err := m.buildSnapshot(cfg)
	if err != nil {
		m.fail(Stopped, err)
		return err
	}

	addr := net.JoinHostPort(m.cfg.Gateway.BindHost, strconv.Itoa(snap.ListenPort))
	srv := server.New(m.handler, server.Options{
		Name:              "gateway",
		ReadHeaderTimeout: m.cfg.Gateway.ReadHeaderTimeout,
		IdleTimeout:       m.cfg.Gateway.IdleTimeout,
		MaxHeaderBytes:    m.cfg.Gateway.MaxHeaderBytes,
		DrainTimeout:      m.cfg.Gateway.DrainTimeout,
	})

	m.store.Reset()
	m.snap.Store(snap)
	if err := srv.Listen(addr); err != nil {
		m.snap.Store(nil)
		proxy.CloseIdle(snap.Client)
		bindErr := &BindError{Addr: addr, Port: snap.ListenPort, Err: err}
		m.fail(Stopped, bindErr)
		return bindErr
	}

	now := time.Now()
	m.mu.Lock()
	m.srv = srv
	m.state = Running
	m.startedAt = now
	m.reloadedAt = time.Time{}
	m.lastErr = ""
	m.mu.Unlock()
	m.notify()

	m.metrics.ObserveReload("start")
	m.logger.Info("gateway started",
		"address", addr,
		"version", snap.Version,
		"services", len(snap.Routes),
	)
	m.persist(snap.Config)
	return nil
}

// Reload validates cfg and atomically replaces the published snapshot.
// Requests already dispatched finish on the snapshot they started with. A
// failed reload leaves the previous snapshot active. The listen port cannot
// change on reload. When the gateway is stopped Reload behaves like Start.
func (m *Manager) Reload(ctx context.Context, cfg *config.ProxyConfig) error {
	m.op.Lock()
	defer m.op.Unlock()

	if m.State() == Stopped {
		return m.start(ctx, cfg)
	}
	m.setState(Reloading)

	current := m.snap.Load()
	normalized, err := config.PrepareProxyConfig(cfg)
	if err == nil && current != nil && normalized.ListenPort != current.ListenPort {
		err = config.ValidationError{Errors: []config.FieldError{{
			Field:   "listenPort",
			Message: fmt.Sprintf("cannot change from %d to %d while running; restart instead", current.ListenPort, normalized.ListenPort),
		}}}
	}
	var snap *routing.Snapshot
	if err == nil {
		snap, err = m.newSnapshot(normalized)
	}
	if err != nil {
		m.metrics.ObserveReload("error")
		m.fail(Running, err)
		m.logger.Warn("reload rejected, keeping current configuration", "error", err)
		return err
	}

	if old := m.snap.Swap(snap); old != nil {
		old.Retire(func() { proxy.CloseIdle(old.Client) })
	}

	m.mu.Lock()
	m.state = Running
	m.reloadedAt = time.Now()
	m.lastErr = ""
	m.mu.Unlock()
	m.notify()

	m.metrics.ObserveReload("success")
	m.logger.Info("gateway reloaded", "version", snap.Version, "services", len(snap.Routes))
	m.persist(snap.Config)
	return nil
}

// Stop closes the listener, drains in-flight requests for the configured
// drain timeout and then cancels the rest. Stopping a stopped gateway is a
// no-op.
func (m *Manager) Stop(ctx context.Context) error {
	m.op.Lock()
	defer m.op.Unlock()
	return m.stop(ctx)
}

func (m *Manager) stop(ctx context.Context) error {
	m.mu.Lock()
	if m.state == Stopped {
		m.mu.Unlock()
		return nil
	}
	srv := m.srv
	m.srv = nil
	m.state = Stopping
	m.mu.Unlock()
	m.notify()

	var err error
	if srv != nil {
		err = srv.Shutdown(ctx)
	}
	if old := m.snap.Swap(nil); old != nil {
		old.Retire(func() { proxy.CloseIdle(old.Client) })
	}

	m.mu.Lock()
	m.state = Stopped
	m.startedAt = time.Time{}
	m.mu.Unlock()
	m.notify()

	m.logger.Info("gateway stopped")
	return err
}

// StopPort stops the gateway if it is bound to port. A zero port stops
// whatever is running. Naming a port the gateway is not bound to returns
// ErrNotRunning.
func (m *Manager) StopPort(ctx context.Context, port int) error {
	m.op.Lock()
	defer m.op.Unlock()

	if port != 0 {
		snap := m.snap.Load()
		if snap == nil || snap.ListenPort != port {
			return fmt.Errorf("%w on port %d", ErrNotRunning, port)
		}
	}
	return m.stop(ctx)
}

// Restart stops a running gateway and starts it with cfg. The config is
// validated first so an invalid config never stops a running gateway.
func (m *Manager) Restart(ctx context.Context, cfg *config.ProxyConfig) error {
	m.op.Lock()
	defer m.op.Unlock()

	if _, err := config.PrepareProxyConfig(cfg); err != nil {
		return err
	}
	if err := m.stop(ctx); err != nil {
		m.logger.Warn("previous listener did not stop cleanly", "error", err)
	}
	return m.start(ctx, cfg)
}

// Running reports whether the gateway is serving.
func (m *Manager) Running() bool {
	s := m.State()
	return s == Running || s == Reloading
}

// State returns the lifecycle state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Status returns a snapshot of the gateway state.
func (m *Manager) Status() Status {
	m.mu.RLock()
	st := Status{
		State:      m.state,
		Running:    m.state == Running || m.state == Reloading,
		StartedAt:  m.startedAt,
		ReloadedAt: m.reloadedAt,
		LastError:  m.lastErr,
	}
	m.mu.RUnlock()

	st.Active = m.store.Active()
	if snap := m.snap.Load(); snap != nil {
		st.ListenPort = snap.ListenPort
		st.BindHost = m.cfg.Gateway.BindHost
		st.Version = snap.Version
		st.Services = len(snap.Routes)
	}
	return st
}

// Subscribe returns a channel receiving the latest status whenever the
// state or the active request count changes. Slow receivers only miss
// intermediate values. Call cancel to unsubscribe.
func (m *Manager) Subscribe() (updates <-chan Status, cancel func()) {
	ch := make(chan Status, 1)

	m.subMu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = ch
	m.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.subMu.Lock()
			delete(m.subs, id)
			m.subMu.Unlock()
			close(ch)
		})
	}
}

func (m *Manager) notify() {
	st := m.Status()

	m.subMu.Lock()
	defer m.subMu.Unlock()
	for _, ch := range m.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- st:
		default:
		}
	}
}

func (m *Manager) buildSnapshot(cfg *config.ProxyConfig) (*routing.Snapshot, error) {
	normalized, err := config.PrepareProxyConfig(cfg)
	if err != nil {
		return nil, err
	}
	return m.newSnapshot(normalized)
}

func (m *Manager) newSnapshot(normalized *config.ProxyConfig) (*routing.Snapshot, error) {
	client, err := proxy.NewClient(m.cfg.Forwarder, normalized.ProxyURL)
	if err != nil {
		return nil, config.ValidationError{Errors: []config.FieldError{{
			Field:   "proxyUrl",
			Message: err.Error(),
		}}}
	}
	return routing.NewSnapshot(normalized, m.version.Add(1), client), nil
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
	m.notify()
}

func (m *Manager) fail(s State, err error) {
	m.mu.Lock()
	m.state = s
	m.lastErr = err.Error()
	m.mu.Unlock()
	m.notify()
}

func (m *Manager) persist(cfg *config.ProxyConfig) {
	if m.persister == nil {
		return
	}
	if err := m.persister.Save(cfg); err != nil {
		m.logger.Error("failed to save settings", "error", err)
	}
}
