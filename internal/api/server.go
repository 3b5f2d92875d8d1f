package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/emrlift/emrlift/internal/engine"
	"github.com/emrlift/emrlift/internal/ws"
)

// Server exposes the host contract over HTTP.
type Server struct {
	engine  *engine.Engine
	hub     *ws.Hub
	logger  *slog.Logger
	addr    string
	server  *http.Server
	devMode bool
}

// Option configures the API server.
type Option func(*Server)

// WithDevMode enables CORS and cross-origin websockets for development.
func WithDevMode(dev bool) Option {
	return func(s *Server) {
		s.devMode = dev
	}
}

// WithHub sets the WebSocket hub that receives progress events.
func WithHub(hub *ws.Hub) Option {
	return func(s *Server) {
		s.hub = hub
	}
}

// New creates a new API server listening on addr.
func New(eng *engine.Engine, logger *slog.Logger, addr string, opts ...Option) *Server {
	s := &Server{
		engine: eng,
		logger: logger,
		addr:   addr,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.hub != nil {
		s.hub.SetRecords(s.clustersJSON)
		s.hub.SetCanceller(eng.Cancel)
		s.hub.AllowAnyOrigin(s.devMode)
	}
	return s
}

// Handler returns the routed handler with logging and, in dev mode, CORS.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerRoutes(mux)

	var handler http.Handler = mux
	if s.devMode {
		handler = s.corsMiddleware(handler)
	}
	return requestLogger(s.logger, handler)
}

// Start starts the HTTP server. It blocks until Shutdown.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("starting host API", "addr", s.addr, "dev_mode", s.devMode)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/clusters", s.handleListClusters)
	mux.HandleFunc("GET /api/clusters/{id}", s.handleGetCluster)
	mux.HandleFunc("POST /api/clusters/{id}/start", s.handleStart)
	mux.HandleFunc("POST /api/clusters/{id}/stop", s.handleStop)
	mux.HandleFunc("POST /api/clusters/{id}/scale", s.handleScale)
	mux.HandleFunc("POST /api/clusters/{id}/cancel", s.handleCancel)
	mux.HandleFunc("GET /api/clusters/{id}/info", s.handleInfo)

	if s.hub != nil {
		mux.Handle("/api/ws", s.hub)
	}
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) clusters() []ClusterResponse {
	records := s.engine.Records()
	out := make([]ClusterResponse, 0, len(records))
	for _, r := range records {
		out = append(out, clusterResponse(r, s.engine.Running(r.ID)))
	}
	return out
}

func (s *Server) clustersJSON() ([]byte, error) {
	return json.Marshal(s.clusters())
}

// progress reports a step to the log and, when a hub is attached, to every
// websocket client.
func (s *Server) progress(clusterID, op string) func(string) {
	return func(step string) {
		s.logger.Debug("progress", "cluster", clusterID, "operation", op, "step", step)
		if s.hub != nil {
			s.hub.Progress(clusterID, op, step)
		}
	}
}

func (s *Server) finish(clusterID, op string, result map[string]any, err error) {
	if s.hub == nil {
		return
	}
	ev := ws.ResultEvent{ClusterID: clusterID, Operation: op, OK: err == nil, Result: result}
	if err != nil {
		ev.Error = err.Error()
	}
	s.hub.Result(ev)
	if op != "scale" {
		s.hub.RecordsChanged()
	}
}
