package control

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"mercator-hq/apiflow/pkg/archive"
	"mercator-hq/apiflow/pkg/config"
	"mercator-hq/apiflow/pkg/gateway"
	"mercator-hq/apiflow/pkg/logstore"
	"mercator-hq/apiflow/pkg/netinfo"
	"mercator-hq/apiflow/pkg/proxy/middleware"
	"mercator-hq/apiflow/pkg/routing"
	"mercator-hq/apiflow/pkg/security/auth"
	"mercator-hq/apiflow/pkg/telemetry/health"
)

// DefaultLogLimit is the number of log entries returned when the request
// sets no limit.
const DefaultLogLimit = 200

// DefaultOperationTimeout bounds one lifecycle call on the API.
const DefaultOperationTimeout = 30 * time.Second

// Gateway is the lifecycle surface the API drives. gateway.Manager
// implements it.
type Gateway interface {
	Start(ctx context.Context, cfg *config.ProxyConfig) error
	Reload(ctx context.Context, cfg *config.ProxyConfig) error
	Restart(ctx context.Context, cfg *config.ProxyConfig) error
	StopPort(ctx context.Context, port int) error
	Status() gateway.Status
	Logs() *logstore.Store
	Stats() *routing.AtomicUpstreamStats
}

// Settings reads and writes the persisted routing config. settings.Store
// implements it.
type Settings interface {
	Load() (*config.ProxyConfig, error)
	Save(cfg *config.ProxyConfig) error
}

// Options configures the API.
type Options struct {
	// Token guards /api routes. Empty disables the check.
	Token string

	CORS config.CORSConfig

	// OperationTimeout bounds /api calls.
	OperationTimeout time.Duration

	// Archive serves GET /api/archive. Nil answers 404.
	Archive archive.Storage

	// Metrics serves GET /metrics. Nil answers 404.
	Metrics http.Handler

	// Health serves /health and /ready.
	Health *health.Checker

	Version health.VersionInfo

	// NetworkInfo defaults to netinfo.Get.
	NetworkInfo func() netinfo.Info
}

// API is the control HTTP API used by the CLI and the desktop shell.
type API struct {
	gateway  Gateway
	settings Settings
	opts     Options
	logger   *slog.Logger
}

// New creates the API.
func New(gw Gateway, settings Settings, opts Options) *API {
	if opts.OperationTimeout <= 0 {
		opts.OperationTimeout = DefaultOperationTimeout
	}
	if opts.Health == nil {
		opts.Health = health.New(0)
	}
	if opts.NetworkInfo == nil {
		opts.NetworkInfo = netinfo.Get
	}
	return &API{
		gateway:  gw,
		settings: settings,
		opts:     opts,
		logger:   slog.Default().With("component", "control"),
	}
}

// Handler returns the routed handler wrapped in the common middleware.
func (a *API) Handler() http.Handler {
	return middleware.Chain(a.Router(), middleware.CORSMiddleware(middleware.FromConfig(a.opts.CORS)))
}

// Router builds the chi routing tree.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()

	health.Mount(r, a.opts.Health, a.opts.Version)
	r.Get("/metrics", a.handleMetrics)

	r.Route("/api", func(r chi.Router) {
		r.Use(auth.NewTokenMiddleware(a.opts.Token).Handle)
		r.Use(middleware.TimeoutMiddleware(a.opts.OperationTimeout))

		r.Get("/status", a.handleStatus)

		r.Post("/proxy/start", a.handleStart)
		r.Post("/proxy/reload", a.handleReload)
		r.Post("/proxy/stop", a.handleStop)

		r.Get("/logs", a.handleLogs)
		r.Delete("/logs", a.handleClearLogs)

		r.Get("/stats", a.handleStats)
		r.Delete("/stats", a.handleResetStats)

		r.Get("/settings", a.handleGetSettings)
		r.Put("/settings", a.handlePutSettings)

		r.Get("/network", a.handleNetwork)
		r.Get("/archive", a.handleArchive)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}
