// Package server exposes the hub's HTTP surface: task submission, fleet
// registration and heartbeats, baseline management, artifact downloads, and
// the websocket log stream.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/scan-io-git/scanio-hub/internal/fleet"
	"github.com/scan-io-git/scanio-hub/internal/fleet/wire"
	"github.com/scan-io-git/scanio-hub/internal/ingest"
	"github.com/scan-io-git/scanio-hub/internal/pipeline"
	"github.com/scan-io-git/scanio-hub/internal/task"
	"github.com/scan-io-git/scanio-hub/internal/workspace"
	"github.com/scan-io-git/scanio-hub/pkg/shared/config"
)

// tenantHeader selects the tenant of a request. Requests without it fall
// into the default tenant.
const tenantHeader = "X-Scanio-Tenant"

const defaultTenant = "default"

// Server wires the HTTP handlers over the orchestrator services.
type Server struct {
	cfg       *config.Config
	tasks     *task.Service
	taskStore task.Store
	runner    *pipeline.Runner
	fleet     *fleet.Manager
	findings  ingest.FindingStore
	baselines ingest.BaselineStore
	workspace *workspace.Store
	hub       *wire.Hub
	mux       *http.ServeMux
	logger    hclog.Logger
}

// New builds a Server and registers its routes.
func New(
	cfg *config.Config,
	tasks *task.Service,
	taskStore task.Store,
	runner *pipeline.Runner,
	fleetMgr *fleet.Manager,
	findings ingest.FindingStore,
	baselines ingest.BaselineStore,
	ws *workspace.Store,
	hub *wire.Hub,
	logger hclog.Logger,
) *Server {
	s := &Server{
		cfg:       cfg,
		tasks:     tasks,
		taskStore: taskStore,
		runner:    runner,
		fleet:     fleetMgr,
		findings:  findings,
		baselines: baselines,
		workspace: ws,
		hub:       hub,
		mux:       http.NewServeMux(),
		logger:    logger,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	// Tasks
	s.mux.HandleFunc("/api/tasks", s.handleTasks)
	s.mux.HandleFunc("/api/tasks/", s.handleTask)

	// Fleet
	s.mux.HandleFunc("/api/executors", s.handleExecutors)
	s.mux.HandleFunc("/api/executors/", s.handleExecutor)

	// Baselines
	s.mux.HandleFunc("/api/baselines", s.handleBaselines)

	// Artifacts (executor token auth)
	s.mux.HandleFunc("/api/artifacts/", s.handleArtifact)

	// WebSocket log stream
	s.mux.HandleFunc("/ws/logs", s.handleLogStream)
}

// Handler returns the routed handler, including the logging middleware.
func (s *Server) Handler() http.Handler {
	return s.loggingMiddleware(s.mux)
}

// ListenAndServe starts the HTTP server and shuts it down when ctx ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Server.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	s.logger.Info("server listening", "addr", s.cfg.Server.ListenAddr)
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request handled", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

func tenantOf(r *http.Request) string {
	if t := r.Header.Get(tenantHeader); t != "" {
		return t
	}
	return defaultTenant
}
