package api

import (
	"encoding/json"
	"net/http"
	"time"
)

// Response is the envelope for the few JSON bodies the server writes itself
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthStatus is the payload of the optional health endpoint
type HealthStatus struct {
	Status    string `json:"status"`
	State     string `json:"state"`
	Root      string `json:"root"`
	Timestamp string `json:"timestamp"`
}

func writeJSON(w http.ResponseWriter, statusCode int, body Response) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(statusCode)
	// Headers are already sent, so an encode failure has no one to report to.
	_ = json.NewEncoder(w).Encode(body)
}

func writeInternalError(w http.ResponseWriter) {
	writeJSON(w, http.StatusInternalServerError, Response{
		Error:   "An internal server error occurred",
		Message: "Something went wrong. Please try again later.",
	})
}

func handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Allow", corsAllowMethods)
	writeJSON(w, http.StatusMethodNotAllowed, Response{
		Error:   "Method not allowed",
		Message: r.Method + " is not supported",
	})
}

// handleHealthCheck reports liveness for tooling that polls the dev server
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Message: "Static file server is running",
		Data: HealthStatus{
			Status:    "healthy",
			State:     s.State().String(),
			Root:      s.cfg.Server.Root,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
	})
}
