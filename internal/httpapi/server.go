// internal/httpapi/server.go
package httpapi

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tamzrod/mightywatt/internal/device"
	"github.com/tamzrod/mightywatt/internal/protocol"
	"github.com/tamzrod/mightywatt/internal/status"
	"github.com/tamzrod/mightywatt/internal/transport"
)

// Device is the facade surface the routes drive.
type Device interface {
	Status() (status.Snapshot, error)
	Properties() status.Properties
	MsSinceLastUpdate() float64
	SetMode(m protocol.Mode, value float64) error
	SetRemote(remote bool) error
	SetTemperatureThreshold(v float64) error
	Stop() error
	SetUpdateRate(hz float64) error
	UpdateRate() float64
	Port() string
}

type Option func(*Server)

// WithMetrics serves h on /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithHub serves the live status stream on /ws.
func WithHub(h *Hub) Option {
	return func(s *Server) { s.hub = h }
}

// WithStaleAfter sets the age after which /health reports unavailable.
func WithStaleAfter(d time.Duration) Option {
	return func(s *Server) { s.staleAfter = d }
}

// Server translates HTTP requests into device calls.
type Server struct {
	dev        Device
	log        logrus.FieldLogger
	metrics    http.Handler
	hub        *Hub
	staleAfter time.Duration
}

func New(dev Device, log logrus.FieldLogger, opts ...Option) *Server {
	s := &Server{
		dev:        dev,
		log:        log.WithField("component", "http"),
		staleAfter: device.DefaultStaleAfter,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the route table. Device routes are served both at the
// root and under /api/.
func (s *Server) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("GET /status", s.handleStatus)
	api.HandleFunc("GET /properties", s.handleProperties)
	api.HandleFunc("GET /mode/{mode}/{value}", s.handleMode)
	api.HandleFunc("GET /voltage-sensing/{mode}", s.handleSensing)
	api.HandleFunc("GET /temperature-threshold/{value}", s.handleThreshold)
	api.HandleFunc("GET /stop", s.handleStop)
	api.HandleFunc("GET /ms_since_last_update", s.handleAge)
	api.HandleFunc("GET /update-rate", s.handleGetRate)
	api.HandleFunc("GET /update-rate/{hz}", s.handleSetRate)

	root := http.NewServeMux()
	root.Handle("/api/", http.StripPrefix("/api", api))
	root.HandleFunc("GET /health", s.handleHealth)
	if s.metrics != nil {
		root.Handle("GET /metrics", s.metrics)
	}
	if s.hub != nil {
		root.HandleFunc("GET /ws", s.hub.ServeWS)
	}
	root.Handle("/", api)

	return s.logRequests(root)
}

// ---- handlers ----

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := s.dev.Status()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleProperties(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.dev.Properties())
}

func (s *Server) handleMode(w http.ResponseWriter, r *http.Request) {
	m, err := protocol.ParseMode(r.PathValue("mode"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	v, err := parseFloat(r.PathValue("value"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeResult(w, s.dev.SetMode(m, v))
}

func (s *Server) handleSensing(w http.ResponseWriter, r *http.Request) {
	switch r.PathValue("mode") {
	case "remote":
		s.writeResult(w, s.dev.SetRemote(true))
	case "local":
		s.writeResult(w, s.dev.SetRemote(false))
	default:
		s.writeError(w, fmt.Errorf("%w: voltage sensing must be local or remote, got %q",
			protocol.ErrValidation, r.PathValue("mode")))
	}
}

func (s *Server) handleThreshold(w http.ResponseWriter, r *http.Request) {
	v, err := parseFloat(r.PathValue("value"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeResult(w, s.dev.SetTemperatureThreshold(v))
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.writeResult(w, s.dev.Stop())
}

func (s *Server) handleAge(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]float64{"ms_since_last_update": s.dev.MsSinceLastUpdate()})
}

func (s *Server) handleGetRate(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]float64{"update_rate": s.dev.UpdateRate()})
}

func (s *Server) handleSetRate(w http.ResponseWriter, r *http.Request) {
	hz, err := parseFloat(r.PathValue("hz"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeResult(w, s.dev.SetUpdateRate(hz))
}

// handleHealth only looks at the snapshot age so it never consumes a
// pending tick error meant for /status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	age := s.dev.MsSinceLastUpdate()
	body := map[string]any{
		"port":                 s.dev.Port(),
		"ms_since_last_update": age,
		"status":               "ok",
	}
	code := http.StatusOK
	if age > float64(s.staleAfter/time.Millisecond) {
		body["status"] = "stale"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, body)
}

// ---- helpers ----

func parseFloat(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", protocol.ErrValidation, s)
	}
	return v, nil
}

func (s *Server) writeResult(w http.ResponseWriter, err error) {
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := statusCode(err)
	if code == http.StatusInternalServerError {
		s.log.Errorf("request failed: %v", err)
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func statusCode(err error) int {
	switch {
	case errors.Is(err, protocol.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, device.ErrStale),
		errors.Is(err, device.ErrClosed),
		errors.Is(err, transport.ErrComm):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// ---- request logging ----

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack passes through for the websocket upgrade.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("httpapi: response writer cannot hijack")
	}
	return h.Hijack()
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"code":     rec.code,
			"duration": time.Since(start),
		}).Debug("request")
	})
}
