package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/nerrad567/storefront-telemetry/internal/broadcast"
	"github.com/nerrad567/storefront-telemetry/internal/device"
	"github.com/nerrad567/storefront-telemetry/internal/infrastructure/config"
	"github.com/nerrad567/storefront-telemetry/internal/infrastructure/logging"
	"github.com/nerrad567/storefront-telemetry/internal/ingestion"
	"github.com/nerrad567/storefront-telemetry/internal/inventory"
	"github.com/nerrad567/storefront-telemetry/internal/reading"
)

// gracefulShutdownTimeout bounds how long Close waits for in-flight
// requests.
const gracefulShutdownTimeout = 10 * time.Second

// Ingester accepts submissions and reports counters.
// *ingestion.Pipeline satisfies it.
type Ingester interface {
	Ingest(ctx context.Context, sub ingestion.Submission) (*reading.Reading, error)
	Stats() ingestion.Stats
}

// ItemStore is the part of the inventory store the API reads.
type ItemStore interface {
	GetItem(ctx context.Context, id string) (*inventory.Item, error)
	ListMovements(ctx context.Context, filter inventory.MovementFilter) (*inventory.MovementList, error)
}

// HealthChecker is implemented by every backing service.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies of the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Logger   *logging.Logger
	Registry *device.Registry
	Ingester Ingester
	Readings reading.Repository
	Items    ItemStore
	Hub      *broadcast.Hub

	// Checks are reported by /health, keyed by component name.
	Checks  map[string]HealthChecker
	Version string
}

// Server is the HTTP API server.
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	logger    *logging.Logger
	registry  *device.Registry
	ingester  Ingester
	readings  reading.Repository
	items     ItemStore
	hub       *broadcast.Hub
	checks    map[string]HealthChecker
	version   string
	startTime time.Time

	server *http.Server
}

// New creates a server. It does not listen until Start.
func New(deps Deps) (*Server, error) {
	switch {
	case deps.Logger == nil:
		return nil, fmt.Errorf("logger is required")
	case deps.Registry == nil:
		return nil, fmt.Errorf("device registry is required")
	case deps.Ingester == nil:
		return nil, fmt.Errorf("ingester is required")
	case deps.Readings == nil:
		return nil, fmt.Errorf("readings repository is required")
	case deps.Items == nil:
		return nil, fmt.Errorf("item store is required")
	case deps.Hub == nil:
		return nil, fmt.Errorf("broadcast hub is required")
	}

	return &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		logger:    deps.Logger,
		registry:  deps.Registry,
		ingester:  deps.Ingester,
		readings:  deps.Readings,
		items:     deps.Items,
		hub:       deps.Hub,
		checks:    deps.Checks,
		version:   deps.Version,
		startTime: time.Now(),
	}, nil
}

// Handler returns the router. Start uses it; tests serve it directly.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start binds the listen address and serves in a background goroutine.
// A bind failure, such as the port being in use, is returned.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.buildRouter(),
		ReadTimeout:       s.cfg.Timeouts.ReadTimeout(),
		ReadHeaderTimeout: s.cfg.Timeouts.ReadTimeout(),
		WriteTimeout:      s.cfg.Timeouts.WriteTimeout(),
		IdleTimeout:       s.cfg.Timeouts.IdleTimeout(),
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()
	return nil
}

// Close waits up to gracefulShutdownTimeout for in-flight requests.
// Hijacked WebSocket connections are not tracked by http.Server; they end
// when the hub is closed.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}
