// Package web provides the HTTP control plane for review coordination:
// the JSON API consumed by the browser and the interceptor, and the
// event stream gateway.
package web

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/roasbeef/planloop/internal/activity"
	"github.com/roasbeef/planloop/internal/bus"
	"github.com/roasbeef/planloop/internal/review"
)

const (
	// DefaultPort is the preferred listen port. When it is taken the
	// server falls back to an ephemeral port.
	DefaultPort = 3030

	// DefaultIdleTimeout shuts the process down after this long without
	// API traffic or open stream connections.
	DefaultIdleTimeout = 30 * time.Minute

	// idleCheckInterval is the watchdog's polling cadence.
	idleCheckInterval = time.Minute
)

// Config holds configuration for the web server.
type Config struct {
	// Port is the preferred listen port; 0 means ephemeral.
	Port int

	// IdleTimeout is the idle shutdown deadline; 0 disables the
	// watchdog.
	IdleTimeout time.Duration

	// MCPHandler, when non-nil, is mounted at /mcp for the HTTP agent
	// transport.
	MCPHandler http.Handler

	// DefaultProjectPath is applied to created reviews whose request
	// omits a project path.
	DefaultProjectPath string
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Port:        DefaultPort,
		IdleTimeout: DefaultIdleTimeout,
	}
}

// Server is the HTTP server for the review API and event streams.
type Server struct {
	cfg      *Config
	svc      *review.Service
	bus      *bus.Bus
	activity *activity.Store
	log      *slog.Logger

	router   chi.Router
	srv      *http.Server
	listener net.Listener
	port     int

	// lastActive is the unix-nano timestamp of the last request.
	lastActive atomic.Int64

	// activeStreams counts open event stream connections; the idle
	// watchdog never fires while one is open.
	activeStreams atomic.Int64

	idleOnce sync.Once
	idleC    chan struct{}
	quit     chan struct{}
}

// NewServer creates a web server. The activity store may be nil when
// the audit log is disabled.
func NewServer(cfg *Config, svc *review.Service, eventBus *bus.Bus,
	activityStore *activity.Store, log *slog.Logger,
) *Server {

	if cfg == nil {
		cfg = DefaultConfig()
	}
	if log == nil {
		log = slog.Default()
	}

	s := &Server{
		cfg:      cfg,
		svc:      svc,
		bus:      eventBus,
		activity: activityStore,
		log:      log.With("subsys", "web"),
		idleC:    make(chan struct{}),
		quit:     make(chan struct{}),
	}
	s.lastActive.Store(time.Now().UnixNano())

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))
	r.Use(s.touch)

	s.registerRoutes(r)

	if cfg.MCPHandler != nil {
		r.Handle("/mcp", cfg.MCPHandler)
	}

	s.router = r

	return s
}

// touch records request activity for the idle watchdog.
func (s *Server) touch(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.lastActive.Store(time.Now().UnixNano())
		next.ServeHTTP(w, r)
	})
}

// Start binds the listener and begins serving. When the preferred port
// is unavailable the server falls back to an ephemeral one. Start
// returns once the listener is bound; serving continues in the
// background.
func (s *Server) Start() error {
	listener, err := net.Listen(
		"tcp", fmt.Sprintf("127.0.0.1:%d", s.cfg.Port),
	)
	if err != nil && s.cfg.Port != 0 {
		s.log.Info("preferred port unavailable, using ephemeral port",
			"preferred", s.cfg.Port, "err", err)
		listener, err = net.Listen("tcp", "127.0.0.1:0")
	}
	if err != nil {
		return fmt.Errorf("bind listener: %w", err)
	}

	s.listener = listener
	s.port = listener.Addr().(*net.TCPAddr).Port

	s.srv = &http.Server{
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		// No write timeout: event streams are long-lived.
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		err := s.srv.Serve(listener)
		if err != nil && err != http.ErrServerClosed {
			s.log.Error("http server stopped", "err", err)
		}
	}()

	if s.cfg.IdleTimeout > 0 {
		go s.watchIdle()
	}

	s.log.Info("web server listening", "port", s.port)

	return nil
}

// Port returns the bound listen port. Valid after Start.
func (s *Server) Port() int {
	return s.port
}

// Idle is closed once the server has seen no traffic and no open
// streams for the configured idle timeout.
func (s *Server) Idle() <-chan struct{} {
	return s.idleC
}

// watchIdle polls the activity markers and signals idleness once.
func (s *Server) watchIdle() {
	ticker := time.NewTicker(idleCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if s.activeStreams.Load() > 0 {
				continue
			}

			last := time.Unix(0, s.lastActive.Load())
			if time.Since(last) < s.cfg.IdleTimeout {
				continue
			}

			s.log.Info("idle timeout reached, signaling shutdown",
				"idle_for", time.Since(last).Round(time.Second))
			s.idleOnce.Do(func() { close(s.idleC) })
			return

		case <-s.quit:
			return
		}
	}
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	close(s.quit)

	if s.srv != nil {
		return s.srv.Shutdown(ctx)
	}
	return nil
}
