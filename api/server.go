// Package api exposes the HTTP surface: reading submission and query
// endpoints, the device listing, a publish passthrough, health and metrics.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/c360/meshtel/config"
	"github.com/c360/meshtel/device"
	"github.com/c360/meshtel/health"
	"github.com/c360/meshtel/ingest"
	"github.com/c360/meshtel/store"
)

// ReadingQuerier is the slice of the reading store the API reads from.
type ReadingQuerier interface {
	GatewayReadings(ctx context.Context, deviceID int64, r store.TimeRange) ([]store.GatewayReading, error)
	SensorReadings(ctx context.Context, deviceID int64, r store.TimeRange) ([]store.SensorReading, error)
}

// Publisher pushes a payload onto the message transport.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// Deps holds the server dependencies
type Deps struct {
	Config    config.HTTPConfig
	Pipeline  *ingest.Pipeline
	Directory device.Directory
	Store     ReadingQuerier
	Publisher Publisher    // optional, disables /api/publish when nil
	Feed      http.Handler // optional, disables /feed when nil
	Health    *health.Monitor
	Metrics   http.Handler // optional, disables /metrics when nil
	Logger    *slog.Logger
}

// Server is the HTTP API server
type Server struct {
	cfg       config.HTTPConfig
	pipeline  *ingest.Pipeline
	directory device.Directory
	store     ReadingQuerier
	publisher Publisher
	health    *health.Monitor
	logger    *slog.Logger

	httpServer *http.Server
}

// NewServer creates the server and installs its routes
func NewServer(deps Deps) (*Server, error) {
	if deps.Pipeline == nil {
		return nil, fmt.Errorf("pipeline is required")
	}
	if deps.Directory == nil {
		return nil, fmt.Errorf("directory is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	s := &Server{
		cfg:       deps.Config,
		pipeline:  deps.Pipeline,
		directory: deps.Directory,
		store:     deps.Store,
		publisher: deps.Publisher,
		health:    deps.Health,
		logger:    deps.Logger.With("component", "api"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/gateway-readings", s.submitGateway)
	mux.HandleFunc("GET /api/gateway-readings", s.queryGateway)
	mux.HandleFunc("POST /api/temperature-readings", s.submitSensor)
	mux.HandleFunc("GET /api/temperature-readings", s.querySensor)
	mux.HandleFunc("GET /api/devices", s.listDevices)
	mux.HandleFunc("POST /api/publish", s.publish)
	mux.HandleFunc("GET /healthz", s.healthz)
	if deps.Metrics != nil {
		mux.Handle("GET /metrics", deps.Metrics)
	}
	if deps.Feed != nil {
		mux.Handle("GET /feed", deps.Feed)
	}

	s.httpServer = &http.Server{
		Addr:         deps.Config.Addr,
		Handler:      mux,
		ReadTimeout:  deps.Config.ReadTimeout,
		WriteTimeout: deps.Config.WriteTimeout,
	}

	return s, nil
}

// Handler exposes the route table for tests
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins serving. Blocks until the listener fails or Shutdown runs.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.cfg.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, map[string]any{"statusCode": http.StatusOK})
		return
	}

	status := s.health.AggregateHealth("meshtel")
	code := http.StatusOK
	if status.IsUnhealthy() {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}
