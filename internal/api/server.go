package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/nerrad567/iotlink/internal/audit"
	"github.com/nerrad567/iotlink/internal/auth"
	"github.com/nerrad567/iotlink/internal/infrastructure/config"
	"github.com/nerrad567/iotlink/internal/infrastructure/logging"
	"github.com/nerrad567/iotlink/internal/node"
	"github.com/nerrad567/iotlink/internal/settings"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 5 * time.Second

// Admin is the node's goroutine-safe admin surface. *node.Admin satisfies it.
type Admin interface {
	Status(ctx context.Context) (node.Status, error)
	ForceDisconnect(ctx context.Context) (bool, error)
	ForceReconnect(ctx context.Context) (bool, error)
	Reset(ctx context.Context) (time.Duration, error)
}

// SettingsStore persists overrides. *settings.Store satisfies it.
type SettingsStore interface {
	Load(ctx context.Context) (settings.Overrides, error)
	Save(ctx context.Context, o settings.Overrides) error
}

// EventLister lists lifecycle events. *audit.SQLiteRepository satisfies it.
type EventLister interface {
	List(ctx context.Context, filter audit.Filter) (*audit.ListResult, error)
}

// HealthChecker is implemented by the database, MQTT and InfluxDB clients.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	Logger   *logging.Logger
	Admin    Admin
	Settings SettingsStore            // optional
	Events   EventLister              // optional
	Auth     *auth.BasicAuth          // optional: nil leaves the API open
	Health   map[string]HealthChecker // optional, keyed by component
	Hub      *Hub                     // optional: live event stream
	DB       DBStatter                // optional: pool metrics
	Drops    map[string]DropCounter   // optional, keyed by pipeline
	Version  string
}

// Server is the administrative HTTP server.
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
type Server struct {
	cfg      config.APIConfig
	logger   *logging.Logger
	admin    Admin
	settings SettingsStore
	events   EventLister
	auth     *auth.BasicAuth
	health   map[string]HealthChecker
	hub      *Hub
	db       DBStatter
	drops    map[string]DropCounter
	version  string

	startTime time.Time

	server   *http.Server
	listener net.Listener
}

// New creates a new API server with the given dependencies.
// The server is not started until Start is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Admin == nil {
		return nil, fmt.Errorf("admin surface is required")
	}

	return &Server{
		cfg:      deps.Config,
		logger:   deps.Logger,
		admin:    deps.Admin,
		settings: deps.Settings,
		events:   deps.Events,
		auth:     deps.Auth,
		health:   deps.Health,
		hub:      deps.Hub,
		db:       deps.DB,
		drops:    deps.Drops,
		version:  deps.Version,

		startTime: time.Now(),
	}, nil
}

// Start binds the listener and serves in a background goroutine.
//
// Returns:
//   - error: If the address cannot be bound (port in use, etc.)
func (s *Server) Start(_ context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("binding API listener: %w", err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	s.logger.Info("API server listening", "address", ln.Addr().String(), "auth", s.auth != nil)

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the API server.
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

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
