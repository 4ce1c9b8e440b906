// Package web provides an HTTP status server for the receiver daemon.
package web

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/sweeney/cresta-receiver/internal/registry"
	"github.com/sweeney/cresta-receiver/internal/status"
)

// Server serves the status page, per-sensor records and metrics over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	registry   *registry.Registry
}

// New creates a Server that reads state from the given tracker and
// registry. If metrics is nil the /metrics route is not registered.
func New(addr string, tracker *status.Tracker, reg *registry.Registry, metrics http.Handler) *Server {
	s := &Server{tracker: tracker, registry: reg}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("/index.json", s.handleJSON)
	mux.HandleFunc("GET /sensors/{sensor}", s.handleSensor)
	if metrics != nil {
		mux.Handle("/metrics", metrics)
	}

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the server's request router.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, snap)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

// handleSensor serves the binary export record of one sensor's latest
// measurement. The sensor is given by address ("0x20", "32") or by name.
func (s *Server) handleSensor(w http.ResponseWriter, r *http.Request) {
	sensor, code := s.findSensor(r.PathValue("sensor"))
	if sensor == nil {
		http.Error(w, http.StatusText(code), code)
		return
	}

	rd, err := sensor.Open()
	if errors.Is(err, registry.ErrNoMeasurement) {
		http.Error(w, "no measurement yet", http.StatusServiceUnavailable)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	http.ServeContent(w, r, sensor.Name(), rd.Measurement.Timestamp(), rd)
}

func (s *Server) findSensor(key string) (*registry.Sensor, int) {
	if addr, err := strconv.ParseUint(key, 0, 8); err == nil {
		if sensor, ok := s.registry.Lookup(uint8(addr)); ok {
			return sensor, http.StatusOK
		}
		return nil, http.StatusNotFound
	}
	for _, sensor := range s.registry.Sensors() {
		if sensor.Name() == key {
			return sensor, http.StatusOK
		}
	}
	if _, err := strconv.ParseInt(key, 0, 64); err == nil {
		// Numeric but outside the 8-bit address space.
		return nil, http.StatusBadRequest
	}
	return nil, http.StatusNotFound
}
