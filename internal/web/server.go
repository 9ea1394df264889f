// Package web exposes the pipeline's outputs as a read-only JSON API for
// reporting layers. It has no write access back into the pipeline.
package web

import (
	"log/slog"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/create-to-solve/jtis/internal/store"
)

// Server serves canonical data, rankings and diagnostics over HTTP.
type Server struct {
	Store *store.Store
	Addr  string
	Log   *slog.Logger

	limiter *rate.Limiter
}

// NewServer creates a server allowing rps API requests per second.
func NewServer(s *store.Store, addr string, rps float64, log *slog.Logger) *Server {
	if rps <= 0 {
		rps = 10
	}
	return &Server{
		Store:   s,
		Addr:    addr,
		Log:     log,
		limiter: rate.NewLimiter(rate.Limit(rps), int(rps)+1),
	}
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/datasets", s.throttle(s.handleDatasets))
	mux.HandleFunc("/api/canonical", s.throttle(s.handleCanonical))
	mux.HandleFunc("/api/rankings", s.throttle(s.handleRankings))
	mux.HandleFunc("/api/diagnostics", s.throttle(s.handleDiagnostics))

	s.Log.Info("serving", "addr", s.Addr)
	return http.ListenAndServe(s.Addr, mux)
}

func (s *Server) throttle(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}
