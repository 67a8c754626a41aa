package api

import (
	"net/http"

	"nutriserve/livereload"
)

const (
	// LiveReloadPath is where the live reload websocket is mounted
	LiveReloadPath = "/__livereload"
	// LiveReloadScriptPath serves the browser client for LiveReloadPath
	LiveReloadScriptPath = LiveReloadPath + livereload.ScriptSuffix
)

// setupRoutes initializes all routes. Static files go last since the
// catch-all prefix matches every path.
func (s *Server) setupRoutes() {
	s.router.MethodNotAllowedHandler = http.HandlerFunc(handleMethodNotAllowed)

	if s.cfg.Server.HealthPath != "" {
		s.router.HandleFunc(s.cfg.Server.HealthPath, s.handleHealthCheck).Methods(http.MethodGet, http.MethodHead)
	}

	if s.liveReload != nil {
		s.router.Handle(LiveReloadPath, s.liveReload).Methods(http.MethodGet)
		s.router.Handle(LiveReloadScriptPath, s.liveReload).Methods(http.MethodGet, http.MethodHead)
	}

	s.router.PathPrefix("/").Handler(newStaticHandler(s.cfg.Server.Root, s.cfg.Server.DirectoryListing)).
		Methods(http.MethodGet, http.MethodHead)
}

// withMiddleware wraps h so every response, including router-level 405s and
// recovered panics, passes through CORS header injection.
func (s *Server) withMiddleware(h http.Handler) http.Handler {
	if s.cfg.Server.Gzip {
		h = GzipMiddleware(h)
	}
	if s.cfg.Server.NoCache {
		h = NoCacheMiddleware(h)
	}
	h = s.LoggingMiddleware(h)
	h = s.RecoveryMiddleware(h)
	h = RequestIDMiddleware(h)
	h = CORSMiddleware(h)
	return h
}
