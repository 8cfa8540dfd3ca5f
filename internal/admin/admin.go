// Package admin provides the loopback-only health/metrics HTTP surface
// every RIB and switch process binds (SPEC_FULL.md §6
// "Admin/observability surface"), grounded on internal/cli/relay.go's
// healthHandler and the promhttp.Handler() wiring in
// cmd/qumo-relay/main.go.
package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server is a minimal HTTP server exposing /health and /metrics. It is
// disabled (Start is a no-op) when constructed with an empty addr,
// matching the config key's "disabled if empty" contract.
type Server struct {
	addr      string
	startedAt time.Time
	live      func() bool
	http      *http.Server
}

// New constructs an admin server bound to addr. live reports whether
// the owning agent considers itself healthy (e.g. all its sockets are
// still bound); it may be nil, in which case /health always reports
// healthy once Start has run.
func New(addr string, live func() bool) *Server {
	s := &Server{addr: addr, startedAt: time.Now(), live: live}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.serveHealth)
	mux.Handle("/metrics", promhttp.Handler())
	s.http = &http.Server{Addr: addr, Handler: mux}
	return s
}

// Enabled reports whether this server was configured with a bind
// address.
func (s *Server) Enabled() bool {
	return s.addr != ""
}

// Start runs the HTTP server in its own goroutine; ListenAndServe
// errors other than a graceful Shutdown are returned on errc. Start is
// a no-op if the server is disabled.
func (s *Server) Start(errc chan<- error) {
	if !s.Enabled() {
		return
	}
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if errc != nil {
				errc <- err
			}
		}
	}()
}

// Shutdown gracefully stops the HTTP server, bounded by ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	if !s.Enabled() {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) serveHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	healthy := s.live == nil || s.live()
	status := "healthy"
	code := http.StatusOK
	if !healthy {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if r.Method == http.MethodHead {
		return
	}
	json.NewEncoder(w).Encode(map[string]any{
		"status": status,
		"uptime": time.Since(s.startedAt).String(),
	})
}
