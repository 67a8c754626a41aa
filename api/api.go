package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"nutriserve/config"
	"nutriserve/logger"

	"github.com/gorilla/mux"
)

// State is the server lifecycle. It only moves forward:
// NotStarted -> Listening -> ShuttingDown -> Stopped.
type State int32

const (
	NotStarted State = iota
	Listening
	ShuttingDown
	Stopped
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "NOT_STARTED"
	case Listening:
		return "LISTENING"
	case ShuttingDown:
		return "SHUTTING_DOWN"
	case Stopped:
		return "STOPPED"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// BindError is returned by Start when the listener cannot be opened
type BindError struct {
	Addr string
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("failed to bind %s: %v", e.Addr, e.Err)
}

func (e *BindError) Unwrap() error {
	return e.Err
}

// ErrAlreadyStarted is returned when Start is called more than once
var ErrAlreadyStarted = errors.New("server already started")

// Server serves the configured root directory over HTTP
type Server struct {
	cfg    *config.Config
	log    *logger.Logger
	router *mux.Router

	handler     http.Handler
	handlerOnce sync.Once
	liveReload  http.Handler

	// mu guards server and listener, and serializes lifecycle transitions
	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	state    atomic.Int32

	done       chan struct{}
	finishOnce sync.Once
	serveErr   error
}

// NewServer builds a server for cfg. cfg must already be validated.
func NewServer(cfg *config.Config, log *logger.Logger) *Server {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Server{
		cfg:    cfg,
		log:    log,
		router: mux.NewRouter(),
		done:   make(chan struct{}),
	}
}

// SetLiveReload mounts h at LiveReloadPath. It must be called before Start
// or Handler.
func (s *Server) SetLiveReload(h http.Handler) {
	s.liveReload = h
}

// Handler returns the fully wrapped request handler
func (s *Server) Handler() http.Handler {
	s.handlerOnce.Do(func() {
		s.setupRoutes()
		s.handler = s.withMiddleware(s.router)
	})
	return s.handler
}

// State reports the current lifecycle state
func (s *Server) State() State {
	return State(s.state.Load())
}

// Addr returns the bound listener address, or the configured one before Start
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.cfg.Server.Addr()
}

// Port returns the bound TCP port, or the configured one before Start
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		if tcp, ok := s.listener.Addr().(*net.TCPAddr); ok {
			return tcp.Port
		}
	}
	return s.cfg.Server.Port
}

// Done is closed once the server has reached Stopped
func (s *Server) Done() <-chan struct{} {
	return s.done
}

// Err returns the serve loop failure, if any. It is nil after a clean
// shutdown and only meaningful once Done is closed.
func (s *Server) Err() error {
	select {
	case <-s.done:
		return s.serveErr
	default:
		return nil
	}
}

// Start binds the listener synchronously and serves in the background. The
// state becomes Listening only once the socket is bound. A bind failure is
// returned as *BindError and moves the server straight to Stopped.
// Cancelling ctx triggers Shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State() != NotStarted {
		return ErrAlreadyStarted
	}

	addr := s.cfg.Server.Addr()
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		bindErr := &BindError{Addr: addr, Err: err}
		s.finish(bindErr)
		return bindErr
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		// Route "OPTIONS *" through the handler chain so it gets CORS headers
		DisableGeneralOptionsHandler: true,
	}
	s.listener = ln
	s.server = srv
	s.state.Store(int32(Listening))

	s.log.Info("Starting static file server", map[string]interface{}{
		"addr":              ln.Addr().String(),
		"root":              s.cfg.Server.Root,
		"directory_listing": s.cfg.Server.DirectoryListing,
		"gzip":              s.cfg.Server.Gzip,
		"no_cache":          s.cfg.Server.NoCache,
		"health_path":       s.cfg.Server.HealthPath,
		"live_reload":       s.liveReload != nil,
	})

	go func() {
		err := srv.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("Static file server error", map[string]interface{}{
				"error": err.Error(),
			})
			s.finish(err)
		}
	}()

	// Wait for context cancellation
	go func() {
		select {
		case <-ctx.Done():
			if err := s.Shutdown(); err != nil {
				s.log.Error("Shutdown failed", map[string]interface{}{
					"error": err.Error(),
				})
			}
		case <-s.done:
		}
	}()

	return nil
}

// Shutdown stops accepting connections and drains in-flight requests for up
// to the configured shutdown timeout, then closes whatever is left. It is
// safe to call more than once.
func (s *Server) Shutdown() error {
	s.mu.Lock()
	switch {
	case s.State() == NotStarted:
		// A later Start reports ErrAlreadyStarted.
		s.finish(nil)
		s.mu.Unlock()
		return nil
	case !s.state.CompareAndSwap(int32(Listening), int32(ShuttingDown)):
		s.mu.Unlock()
		<-s.done
		return nil
	}
	srv := s.server
	s.mu.Unlock()

	timeout := s.cfg.Server.GetShutdownTimeout()
	s.log.Info("Shutting down static file server", map[string]interface{}{
		"drain_timeout": timeout.String(),
	})

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		s.log.Warn("Drain timed out, closing remaining connections", map[string]interface{}{
			"error": err.Error(),
		})
		if closeErr := srv.Close(); closeErr != nil {
			s.finish(nil)
			return fmt.Errorf("server close failed: %w", closeErr)
		}
	}

	s.finish(nil)
	s.log.Info("Static file server stopped", nil)
	return nil
}

func (s *Server) finish(err error) {
	s.finishOnce.Do(func() {
		s.serveErr = err
		s.state.Store(int32(Stopped))
		close(s.done)
	})
}
