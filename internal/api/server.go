// Package api exposes the engine over HTTP: the snapshot stream (SSE and
// WebSocket), fleet commands and the derived read views.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"sentinel-sim/internal/config"
	"sentinel-sim/internal/logging"
	"sentinel-sim/internal/observability"
	"sentinel-sim/internal/sim"
)

// Server serves the engine over HTTP.
type Server struct {
	engine  *sim.Engine
	derive  config.DeriveConfig
	cfg     config.ServerConfig
	metrics *observability.Collector
	log     *slog.Logger
	now     func() time.Time
}

// Options configures a Server. Zero values fall back to defaults.
type Options struct {
	Server  config.ServerConfig
	Derive  config.DeriveConfig
	Metrics *observability.Collector
	Logger  *slog.Logger
	// Now overrides the wall clock used for freshness checks.
	Now func() time.Time
}

// New builds a server around engine.
func New(engine *sim.Engine, opts Options) *Server {
	def := config.Default()
	if opts.Server.Addr == "" {
		opts.Server = def.Server
	}
	if opts.Derive.OnlineTTL <= 0 {
		opts.Derive = def.Derive
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Server{
		engine:  engine,
		derive:  opts.Derive,
		cfg:     opts.Server,
		metrics: opts.Metrics,
		log:     opts.Logger.With("component", "api"),
		now:     opts.Now,
	}
}

// Handler returns the full route table wrapped with tracing.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	route := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, s.metrics.Instrument(pattern, h))
	}

	route("GET /api/stream", s.handleStream)
	route("GET /api/ws", s.handleWS)
	route("GET /api/snapshot", s.handleSnapshot)
	route("GET /api/summary", s.handleSummary)

	route("GET /api/gateways", s.handleListGateways)
	route("POST /api/gateways", s.handleCreateGateway)
	route("PATCH /api/gateways", s.handlePatchGateway)
	route("DELETE /api/gateways", s.handleDeleteGateway)
	route("POST /api/gateways/control", s.handleGatewayControl)

	route("GET /api/nodes", s.handleListNodes)
	route("POST /api/nodes", s.handleCreateNode)
	route("PATCH /api/nodes", s.handlePatchNode)
	route("DELETE /api/nodes", s.handleDeleteNode)
	route("POST /api/nodes/control", s.handleNodeControl)

	route("GET /api/series", s.handleSeries)
	route("GET /api/alerts", s.handleAlerts)
	route("POST /api/alerts/ack", s.handleAckAlert)
	route("GET /api/settings", s.handleGetSettings)
	route("PATCH /api/settings", s.handlePatchSettings)

	mux.Handle("GET /metrics", s.metrics.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "subscribers": s.engine.SubscriberCount()})
	})

	return otelhttp.NewHandler(cors(mux), "sentinel.http",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

// Start listens on the configured address until ctx is cancelled. The
// returned channel receives a terminal serve error, if any, and is closed
// when the server stops.
func (s *Server) Start(ctx context.Context) (*http.Server, <-chan error, error) {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return nil, nil, err
	}
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: durationOr(s.cfg.ReadHeaderTimeout, 5*time.Second),
		IdleTimeout:       60 * time.Second,
		// streams end when ctx does
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("api listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), durationOr(s.cfg.ShutdownTimeout, 5*time.Second))
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Warn("api shutdown", "err", err)
		}
	}()

	return srv, errCh, nil
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func durationOr(v, d time.Duration) time.Duration {
	if v <= 0 {
		return d
	}
	return v
}
