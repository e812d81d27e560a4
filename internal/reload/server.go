package reload

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"fswatch/internal/event"
	"fswatch/internal/logging"
	"fswatch/internal/metrics"
	"fswatch/internal/runner"
)

// RunStatus is the dispatcher view surfaced by /status. The dispatcher
// publishes these through atomics, so reads are safe from any goroutine.
type RunStatus interface {
	State() runner.State
	Command() string
	Policy() runner.Policy
}

// Options configures the live-reload and status server.
type Options struct {
	Addr      string
	Logger    *logging.Logger
	Registry  *metrics.Registry
	Bus       *event.Bus
	LogBuffer *logging.LogBuffer
	Status    RunStatus
	Targets   []string
	Exclude   string
}

// Server exposes the watcher over HTTP: a websocket event stream for
// live-reload clients plus JSON status, log and metrics snapshots.
type Server struct {
	addr      string
	logger    *logging.Logger
	registry  *metrics.Registry
	bus       *event.Bus
	logBuffer *logging.LogBuffer
	status    RunStatus
	targets   []string
	exclude   string

	listener   net.Listener
	httpServer *http.Server
}

func NewServer(options Options) (*Server, error) {
	if options.Addr == "" {
		return nil, errors.New("listen address is required")
	}
	registry := options.Registry
	if registry == nil {
		registry = metrics.Default
	}
	return &Server{
		addr:      options.Addr,
		logger:    options.Logger,
		registry:  registry,
		bus:       options.Bus,
		logBuffer: options.LogBuffer,
		status:    options.Status,
		targets:   options.Targets,
		exclude:   options.Exclude,
	}, nil
}

// Start binds the listener synchronously so an unusable address fails
// startup, then serves in the background.
func (s *Server) Start() error {
	if s == nil {
		return errors.New("server is nil")
	}
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	s.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc("/reload", s.handleReload)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/logs", s.handleLogs)
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/metrics", s.handleMetrics)

	s.httpServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("reload server failed", map[string]string{"error": err.Error()})
		}
	}()

	s.logger.Info("reload server listening", map[string]string{"addr": s.Addr()})
	return nil
}

// Addr reports the bound address, useful when Start was given ":0".
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil || s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = s.registry.WritePrometheus(w)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
